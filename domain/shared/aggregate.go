package shared

// AggregateRoot 聚合根接口
// 所有修改必须通过聚合根进行，版本号用于乐观锁并发控制
type AggregateRoot interface {
	// ID 返回聚合根的全局唯一业务标识
	ID() string

	// Version 返回当前版本号
	Version() int
}

// Entity 实体接口，通过标识判断相等性
type Entity interface {
	ID() string
}
