package shared

import "context"

// UnitOfWork 事务边界。fn 内通过 ctx 取得的仓储写入同一事务；
// ctx 已处于事务中时直接加入，不再嵌套。
type UnitOfWork interface {
	Execute(ctx context.Context, fn func(ctx context.Context) error) error
}
