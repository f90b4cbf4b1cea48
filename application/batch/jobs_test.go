package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paytx/application/payment"
	"paytx/domain/channel"
	domain "paytx/domain/payment"
	"paytx/infrastructure/lock"
	"paytx/infrastructure/persistence/mocks"
)

type flakyChannel struct {
	tag      channel.Tag
	mu       sync.Mutex
	failures map[string]int // order no -> remaining failures
}

func (c *flakyChannel) Identify() channel.Tag { return c.tag }

func (c *flakyChannel) Execute(_ context.Context, req channel.Request) (*channel.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failures[req.OrderNo] > 0 {
		c.failures[req.OrderNo]--
		return nil, errors.New("connection refused")
	}
	return &channel.Response{Success: true, TraceID: "T-" + req.RequestID}, nil
}

func TestPayAndNotifyJobsDrainBacklog(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	repo := mocks.NewMockPaymentRepository()
	locks := lock.NewService(lock.NewLocalBackend())
	pay := &flakyChannel{tag: "alipay", failures: map[string]int{}}
	notify := &flakyChannel{tag: channel.TagNotify, failures: map[string]int{}}
	svc, err := payment.NewService(payment.Deps{
		Repo:             repo,
		Locks:            locks,
		Channels:         channel.NewRegistry(pay, notify),
		LeaseTTL:         10 * time.Second,
		MaxPayRetries:    5,
		MaxNotifyRetries: 5,
		Backoff:          func(int) time.Duration { return time.Minute },
		Env:              "test",
		Now:              clock,
	})
	require.NoError(t, err)

	ctx := context.Background()
	var flakyOrder string
	for i := 0; i < 5; i++ {
		m, err := svc.Accept(ctx, payment.AcceptCommand{
			SourceCode: "HR", BizIdentify: "SALARY", BizUniqueNo: fmt.Sprintf("U%d", i),
			Amount: "10.00", Currency: "CNY", Direction: "DEBIT",
			ChannelCode: "alipay", PayeeAccount: "62220000", NotifyURL: "http://hr.local/notify",
		})
		require.NoError(t, err)
		if i == 0 {
			flakyOrder = m.Order.OrderNo()
		}
	}
	pay.failures[flakyOrder] = 1

	o := NewOrchestrator(locks, lock.NewEstimator(30), 2, WithClock(clock))
	defer o.Close()
	sizing := Sizing{Workers: 2, QueueCapacity: 8, Throughput: 5}
	require.NoError(t, o.Register(PayJob(repo, svc, sizing)))
	require.NoError(t, o.Register(NotifyJob(repo, svc, sizing)))

	report, err := o.RunJob(ctx, JobBatchPay)
	require.NoError(t, err)
	assert.Equal(t, int64(5), report.Backlog)
	assert.Equal(t, 3, report.Pages)
	assert.Equal(t, 4, report.Success)
	assert.Equal(t, 1, report.Failure)

	// the failed request is deferred by the backoff, so nothing is due yet
	report, err = o.RunJob(ctx, JobBatchPay)
	require.NoError(t, err)
	assert.Zero(t, report.Submitted)

	now = now.Add(2 * time.Minute)
	report, err = o.RunJob(ctx, JobBatchPay)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Success)

	report, err = o.RunJob(ctx, JobBatchNotify)
	require.NoError(t, err)
	assert.Zero(t, report.Submitted, "notifications were delivered inline by the pay pipeline")

	orders, err := repo.FindByOrderNos(ctx, []string{flakyOrder})
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, domain.StatusSuccess, orders[0].Status())
	assert.Equal(t, 2, orders[0].Payment().RetryCount())
}
