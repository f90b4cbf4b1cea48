package mocks

import (
	"context"
	"sort"
	"sync"
	"time"

	"paytx/domain/payment"
	"paytx/domain/shared"
)

// MockPaymentRepository In-memory payment repository.
// Stores snapshots rather than live aggregates so callers never share state,
// and enforces the same uniqueness and version rules as the MySQL repository.
type MockPaymentRepository struct {
	mu     sync.RWMutex
	orders map[string]payment.ReconstructionDTO // by order no
	byBiz  map[string]string                    // biz key -> order no
	nextNo func() string
}

// NewMockPaymentRepository Create in-memory payment repository
func NewMockPaymentRepository() *MockPaymentRepository {
	return &MockPaymentRepository{
		orders: make(map[string]payment.ReconstructionDTO),
		byBiz:  make(map[string]string),
		nextNo: payment.NewOrderNo,
	}
}

func (r *MockPaymentRepository) NextOrderNo(ctx context.Context) (string, error) {
	return r.nextNo(), nil
}

func (r *MockPaymentRepository) Insert(ctx context.Context, o *payment.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byBiz[o.BizKey()]; ok {
		return shared.NewDuplicateError("payment_order", o.BizKey())
	}
	if _, ok := r.orders[o.OrderNo()]; ok {
		return shared.NewDuplicateError("payment_order", o.OrderNo())
	}
	r.orders[o.OrderNo()] = o.Snapshot()
	r.byBiz[o.BizKey()] = o.OrderNo()
	o.MarkPersisted()
	return nil
}

func (r *MockPaymentRepository) Update(ctx context.Context, o *payment.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.orders[o.OrderNo()]
	if !ok || stored.Version != o.PersistedVersion() {
		return shared.NewConcurrencyConflictError("payment_order", o.OrderNo(), o.PersistedVersion())
	}
	r.orders[o.OrderNo()] = o.Snapshot()
	o.MarkPersisted()
	return nil
}

func (r *MockPaymentRepository) FindByBizKey(ctx context.Context, bizIdentify, bizUniqueNo string) (*payment.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	key := payment.BizKey(bizIdentify, bizUniqueNo)
	no, ok := r.byBiz[key]
	if !ok {
		return nil, payment.NewOrderNotFoundError(key)
	}
	return payment.RebuildFromDTO(r.orders[no]), nil
}

func (r *MockPaymentRepository) FindByOrderNos(ctx context.Context, orderNos []string) ([]*payment.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*payment.Order, 0, len(orderNos))
	for _, no := range orderNos {
		if dto, ok := r.orders[no]; ok {
			out = append(out, payment.RebuildFromDTO(dto))
		}
	}
	return out, nil
}

// ============================================================================
// Backlog
// ============================================================================

func (r *MockPaymentRepository) CountUnpaid(ctx context.Context, now time.Time) (int64, error) {
	return int64(len(r.backlog(ctx, payment.UnpaidSpec(now), "", 0))), nil
}

func (r *MockPaymentRepository) FindUnpaid(ctx context.Context, now time.Time, afterID string, limit int) ([]payment.BacklogEntry, error) {
	return r.backlog(ctx, payment.UnpaidSpec(now), afterID, limit), nil
}

func (r *MockPaymentRepository) CountUnsent(ctx context.Context, now time.Time) (int64, error) {
	return int64(len(r.backlog(ctx, payment.UnsentSpec(now), "", 0))), nil
}

func (r *MockPaymentRepository) FindUnsent(ctx context.Context, now time.Time, afterID string, limit int) ([]payment.BacklogEntry, error) {
	return r.backlog(ctx, payment.UnsentSpec(now), afterID, limit), nil
}

// backlog scans every stored request against spec, in ID order after afterID.
func (r *MockPaymentRepository) backlog(ctx context.Context, spec shared.Specification, afterID string, limit int) []payment.BacklogEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []payment.BacklogEntry
	for _, dto := range r.orders {
		o := payment.RebuildFromDTO(dto)
		requests := o.Notifications()
		if p := o.Payment(); p != nil {
			requests = append(requests, p)
		}
		for _, req := range requests {
			if req.ID() <= afterID || !spec.IsSatisfiedBy(ctx, payment.BacklogItem{Order: o, Request: req}) {
				continue
			}
			out = append(out, payment.BacklogEntry{
				ID:          req.ID(),
				OrderNo:     o.OrderNo(),
				BizIdentify: o.BizIdentify(),
				BizUniqueNo: o.BizUniqueNo(),
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Len number of stored orders
func (r *MockPaymentRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.orders)
}
