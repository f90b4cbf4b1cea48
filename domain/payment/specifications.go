package payment

import (
	"context"
	"time"

	"paytx/domain/shared"
)

// BacklogItem 待办扫描的候选：渠道请求连同其所属支付单
type BacklogItem struct {
	Order   *Order
	Request *ChannelRequest
}

// DueRequestSpec 请求未结束且 next_execute_at 不晚于 Now
type DueRequestSpec struct {
	Now time.Time
}

func (s DueRequestSpec) IsSatisfiedBy(_ context.Context, entity interface{}) bool {
	item, ok := entity.(BacklogItem)
	if !ok || item.Request == nil {
		return false
	}
	return !item.Request.IsFinished() && !item.Request.NextExecuteAt().After(s.Now)
}

// RequestTypeSpec 请求类型属于 Types 之一
type RequestTypeSpec struct {
	Types []RequestType
}

func (s RequestTypeSpec) IsSatisfiedBy(_ context.Context, entity interface{}) bool {
	item, ok := entity.(BacklogItem)
	if !ok || item.Request == nil {
		return false
	}
	for _, t := range s.Types {
		if item.Request.Type() == t {
			return true
		}
	}
	return false
}

// TerminalOrderSpec 支付单已处于终态
type TerminalOrderSpec struct{}

func (TerminalOrderSpec) IsSatisfiedBy(_ context.Context, entity interface{}) bool {
	item, ok := entity.(BacklogItem)
	return ok && item.Order != nil && item.Order.IsTerminal()
}

// UnpaidSpec 批量支付的待办：到期的支付请求，且支付单未到终态
func UnpaidSpec(now time.Time) shared.Specification {
	return shared.And(
		shared.And(DueRequestSpec{Now: now}, RequestTypeSpec{Types: []RequestType{RequestPayment}}),
		shared.Not(TerminalOrderSpec{}),
	)
}

// UnsentSpec 批量通知的待办：到期的通知或退票通知请求
func UnsentSpec(now time.Time) shared.Specification {
	return shared.And(
		DueRequestSpec{Now: now},
		RequestTypeSpec{Types: []RequestType{RequestNotify, RequestBounceNotify}},
	)
}
