/*
Package payment - 支付单领域错误定义

错误均为 *shared.DomainError，支持:
  - errors.Is(err, shared.ErrValidation / ErrStateTransition / ...) 判断分类
  - errors.Is(err, ErrXxx) 判断具体原因
  - err.(shared.Stacker).Stack() 获取堆栈
*/
package payment

import (
	"errors"
	"fmt"

	"paytx/domain/shared"
)

var (
	// ErrOrderIncomplete 子单或支付请求缺失（精简加载的支付单）
	ErrOrderIncomplete = errors.New("payment order is missing sub-order or payment request")

	// ErrNotificationExists 同类型通知请求已存在
	ErrNotificationExists = errors.New("notification request already exists")

	// ErrBounceNotAllowed 非退票状态不能创建退票通知
	ErrBounceNotAllowed = errors.New("bounce notification requires BOUNCED order")

	// ErrRequestFinished 渠道请求已结束，不能再次执行
	ErrRequestFinished = errors.New("channel request already finished")
)

const entityOrder = "payment_order"

// NewOrderNotFoundError 按业务键查找支付单失败
func NewOrderNotFoundError(key string) error {
	return shared.NewDomainError(shared.ErrNotFound, entityOrder, "", "payment order not found: "+key, nil)
}

// NewIncompleteOrderError 精简支付单不能执行受理之后的活动
func NewIncompleteOrderError(orderNo string) error {
	return shared.NewDomainError(shared.ErrValidation, entityOrder, "sub_order", "payment order "+orderNo+" is incomplete", ErrOrderIncomplete)
}

// NewNotificationExistsError 同一类型通知只能有一条
func NewNotificationExistsError(orderNo string, t RequestType) error {
	return shared.NewDomainError(shared.ErrValidation, entityOrder, "notifications",
		fmt.Sprintf("payment order %s already has a %s request", orderNo, t), ErrNotificationExists)
}

// NewBounceNotAllowedError 退票通知仅在 BOUNCED 时允许
func NewBounceNotAllowedError(orderNo string, status Status) error {
	return shared.NewDomainError(shared.ErrValidation, entityOrder, "notifications",
		fmt.Sprintf("payment order %s is %s, bounce notification not allowed", orderNo, status), ErrBounceNotAllowed)
}

// NewRequestFinishedError 已结束的渠道请求不能再执行
func NewRequestFinishedError(id string, status RequestStatus) error {
	return shared.NewDomainError(shared.ErrValidation, "channel_request", "status",
		fmt.Sprintf("channel request %s is %s", id, status), ErrRequestFinished)
}

func newValidationError(field, message string) error {
	return shared.NewDomainError(shared.ErrValidation, entityOrder, field, message, nil)
}
