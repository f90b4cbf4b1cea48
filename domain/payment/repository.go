package payment

import (
	"context"
	"time"
)

// Repository 支付单仓储
type Repository interface {
	// NextOrderNo 分配新的支付单号
	NextOrderNo(ctx context.Context) (string, error)

	// Insert 保存新受理的支付单；业务键重复返回 shared.ErrDuplicate
	Insert(ctx context.Context, order *Order) error

	// Update 以落库版本为条件更新支付单及其请求；影响行数为 0 返回 shared.ErrConcurrencyConflict
	Update(ctx context.Context, order *Order) error

	// FindByBizKey 按业务幂等键加载完整支付单；不存在返回 shared.ErrNotFound
	FindByBizKey(ctx context.Context, bizIdentify, bizUniqueNo string) (*Order, error)

	// FindByOrderNos 批量加载，缺失的单号直接忽略
	FindByOrderNos(ctx context.Context, orderNos []string) ([]*Order, error)
}

// BacklogEntry 待处理的渠道请求，ID 同时是分页游标
type BacklogEntry struct {
	ID          string
	OrderNo     string
	BizIdentify string
	BizUniqueNo string
}

// Backlog 批处理待办查询：next_execute_at <= now 且未结束的请求，按 ID 升序键集分页
type Backlog interface {
	CountUnpaid(ctx context.Context, now time.Time) (int64, error)
	FindUnpaid(ctx context.Context, now time.Time, afterID string, limit int) ([]BacklogEntry, error)
	CountUnsent(ctx context.Context, now time.Time) (int64, error)
	FindUnsent(ctx context.Context, now time.Time, afterID string, limit int) ([]BacklogEntry, error)
}
