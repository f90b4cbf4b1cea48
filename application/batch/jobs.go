package batch

import (
	"context"

	"paytx/application/payment"
	"paytx/application/txn"
	domain "paytx/domain/payment"
)

// Job names, also the names of their outer leases.
const (
	JobBatchPay    = "batchPay"
	JobBatchNotify = "batchNotify"
)

// Sizing is the pool and lease sizing of one job.
type Sizing struct {
	Workers       int
	QueueCapacity int
	Throughput    float64
}

// PayJob re-drives every due payment request through the pay pipeline.
func PayJob(backlog domain.Backlog, svc *payment.Service, s Sizing) Job {
	return Job{
		Name:  JobBatchPay,
		Count: backlog.CountUnpaid,
		Fetch: backlog.FindUnpaid,
		Task: func(ctx context.Context, e domain.BacklogEntry) (*txn.Model, error) {
			return svc.Pay(ctx, payment.PayCommand{BizIdentify: e.BizIdentify, BizUniqueNo: e.BizUniqueNo})
		},
		Workers:       s.Workers,
		QueueCapacity: s.QueueCapacity,
		Throughput:    s.Throughput,
	}
}

// NotifyJob re-drives every due notification through the notify pipeline.
func NotifyJob(backlog domain.Backlog, svc *payment.Service, s Sizing) Job {
	return Job{
		Name:  JobBatchNotify,
		Count: backlog.CountUnsent,
		Fetch: backlog.FindUnsent,
		Task: func(ctx context.Context, e domain.BacklogEntry) (*txn.Model, error) {
			return svc.Notify(ctx, payment.NotifyCommand{BizIdentify: e.BizIdentify, BizUniqueNo: e.BizUniqueNo})
		},
		Workers:       s.Workers,
		QueueCapacity: s.QueueCapacity,
		Throughput:    s.Throughput,
	}
}
