package shared

import (
	"context"
)

// Specification 业务规则对象，用于内存过滤（如 mock 仓储的待办扫描）。
// entity 由具体规约自行断言类型；类型不符视为不满足。
type Specification interface {
	IsSatisfiedBy(ctx context.Context, entity interface{}) bool
}

// AndSpecification 两个规约同时满足
type AndSpecification struct {
	Left  Specification
	Right Specification
}

func (spec AndSpecification) IsSatisfiedBy(ctx context.Context, entity interface{}) bool {
	return spec.Left.IsSatisfiedBy(ctx, entity) && spec.Right.IsSatisfiedBy(ctx, entity)
}

func And(left, right Specification) Specification {
	return AndSpecification{Left: left, Right: right}
}

// OrSpecification 任一规约满足
type OrSpecification struct {
	Left  Specification
	Right Specification
}

func (spec OrSpecification) IsSatisfiedBy(ctx context.Context, entity interface{}) bool {
	return spec.Left.IsSatisfiedBy(ctx, entity) || spec.Right.IsSatisfiedBy(ctx, entity)
}

func Or(left, right Specification) Specification {
	return OrSpecification{Left: left, Right: right}
}

// NotSpecification 规约取反
type NotSpecification struct {
	Spec Specification
}

func (spec NotSpecification) IsSatisfiedBy(ctx context.Context, entity interface{}) bool {
	return !spec.Spec.IsSatisfiedBy(ctx, entity)
}

func Not(inner Specification) Specification {
	return NotSpecification{Spec: inner}
}
