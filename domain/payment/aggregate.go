/*
Package payment 支付单子域

支付单 (Order) 是聚合根，持有子单 (SubOrder)、一条支付请求与若干通知请求
(ChannelRequest)。所有状态修改必须经过聚合根，状态迁移由 TransitionTo 守护，
每次合法迁移版本号加一；仓储以落库时的版本号做乐观锁更新。
*/
package payment

import (
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"paytx/domain/shared"
)

const (
	// CloseReasonRetryExhausted 重试耗尽关闭
	CloseReasonRetryExhausted = "RETRY_EXHAUSTED"
	// CloseReasonBounced 退票时关闭未结束的支付请求
	CloseReasonBounced = "BOUNCED"
)

// Order 支付单聚合根
type Order struct {
	orderNo     string
	sourceCode  string
	bizIdentify string
	bizUniqueNo string
	amount      shared.Money
	direction   Direction
	status      Status
	env         string

	version          int
	persistedVersion int

	acceptedAt     *time.Time
	paymentBeginAt *time.Time
	successAt      *time.Time
	failureAt      *time.Time
	closedAt       *time.Time
	bouncedAt      *time.Time

	channelTraceID string
	errorCode      string
	errorMessage   string

	subOrder      *SubOrder
	payment       *ChannelRequest
	notifications []*ChannelRequest

	createdAt time.Time
	updatedAt time.Time
}

// BizKey 业务幂等键：业务标识带长度前缀，("A:B","C") 与 ("A","B:C") 不会相同
func BizKey(bizIdentify, bizUniqueNo string) string {
	return strconv.Itoa(len(bizIdentify)) + ":" + bizIdentify + ":" + bizUniqueNo
}

// NewOrderNo 生成全局唯一、按时间有序的支付单号
func NewOrderNo() string {
	return ulid.Make().String()
}

// AcceptParams 受理参数
type AcceptParams struct {
	OrderNo     string
	SourceCode  string
	BizIdentify string
	BizUniqueNo string
	Amount      shared.Money
	Direction   Direction
	Env         string
	SubOrder    *SubOrder
}

// Accept 受理一笔支付：创建 INIT 状态（版本 1）的支付单，并附带子单与支付请求。
// 这是创建支付单的唯一入口。
func Accept(p AcceptParams, now time.Time) (*Order, error) {
	if strings.TrimSpace(p.OrderNo) == "" {
		return nil, newValidationError("order_no", "order number is required")
	}
	if strings.TrimSpace(p.BizIdentify) == "" || strings.TrimSpace(p.BizUniqueNo) == "" {
		return nil, newValidationError("biz_unique_no", "business identify and unique number are required")
	}
	if strings.TrimSpace(p.SourceCode) == "" {
		return nil, newValidationError("source_code", "source code is required")
	}
	if err := p.Amount.Validate(); err != nil {
		return nil, err
	}
	if !p.Direction.Valid() {
		return nil, newValidationError("direction", "direction must be DEBIT or CREDIT")
	}
	if p.SubOrder == nil {
		return nil, newValidationError("sub_order", "sub order is required")
	}

	o := &Order{
		orderNo:     p.OrderNo,
		sourceCode:  p.SourceCode,
		bizIdentify: p.BizIdentify,
		bizUniqueNo: p.BizUniqueNo,
		amount:      p.Amount,
		direction:   p.Direction,
		status:      StatusNone,
		env:         p.Env,
		subOrder:    p.SubOrder,
		createdAt:   now,
		updatedAt:   now,
	}
	if err := o.TransitionTo(StatusInit, now); err != nil {
		return nil, err
	}

	req, err := newChannelRequest(o.orderNo, RequestPayment, now)
	if err != nil {
		return nil, err
	}
	o.payment = req
	return o, nil
}

// ============================================================================
// Getters
// ============================================================================

func (o *Order) ID() string { return o.orderNo }
func (o *Order) OrderNo() string { return o.orderNo }
func (o *Order) SourceCode() string { return o.sourceCode }
func (o *Order) BizIdentify() string { return o.bizIdentify }
func (o *Order) BizUniqueNo() string { return o.bizUniqueNo }
func (o *Order) Amount() shared.Money { return o.amount }
func (o *Order) Direction() Direction { return o.direction }
func (o *Order) Status() Status { return o.status }
func (o *Order) Env() string { return o.env }
func (o *Order) Version() int { return o.version }
func (o *Order) PersistedVersion() int { return o.persistedVersion }
func (o *Order) AcceptedAt() *time.Time { return o.acceptedAt }
func (o *Order) PaymentBeginAt() *time.Time { return o.paymentBeginAt }
func (o *Order) SuccessAt() *time.Time { return o.successAt }
func (o *Order) FailureAt() *time.Time { return o.failureAt }
func (o *Order) ClosedAt() *time.Time { return o.closedAt }
func (o *Order) BouncedAt() *time.Time { return o.bouncedAt }
func (o *Order) ChannelTraceID() string { return o.channelTraceID }
func (o *Order) ErrorCode() string { return o.errorCode }
func (o *Order) ErrorMessage() string { return o.errorMessage }
func (o *Order) SubOrder() *SubOrder { return o.subOrder }
func (o *Order) Payment() *ChannelRequest { return o.payment }
func (o *Order) CreatedAt() time.Time { return o.createdAt }
func (o *Order) UpdatedAt() time.Time { return o.updatedAt }
func (o *Order) BizKey() string { return BizKey(o.bizIdentify, o.bizUniqueNo) }
func (o *Order) IsNew() bool { return o.persistedVersion == 0 }
func (o *Order) IsTerminal() bool { return o.status.IsTerminal() }
func (o *Order) Notifications() []*ChannelRequest {
	out := make([]*ChannelRequest, len(o.notifications))
	copy(out, o.notifications)
	return out
}

// IsLite 精简加载（缺少子单或支付请求）的支付单只能用于查询
func (o *Order) IsLite() bool {
	return o.subOrder == nil || o.payment == nil
}

// EnsureComplete 受理之后的所有活动都要求完整的支付单
func (o *Order) EnsureComplete() error {
	if o.IsLite() {
		return NewIncompleteOrderError(o.orderNo)
	}
	return nil
}

// ============================================================================
// State machine
// ============================================================================

// TransitionTo 守护的状态设置：非法迁移返回 StateTransitionError，状态与版本不变；
// 合法迁移版本号加一并记录里程碑时间。
func (o *Order) TransitionTo(to Status, now time.Time) error {
	if !CanTransition(o.status, to) {
		return shared.NewStateTransitionError(entityOrder, string(o.status), string(to))
	}
	o.status = to
	o.version++
	o.updatedAt = now

	at := now
	switch to {
	case StatusInit:
		o.acceptedAt = &at
	case StatusPending:
		o.paymentBeginAt = &at
	case StatusSuccess:
		o.successAt = &at
	case StatusFailed:
		o.failureAt = &at
	case StatusClosed:
		o.closedAt = &at
	case StatusBounced:
		o.bouncedAt = &at
	}
	return nil
}

// BeginPayment 支付在途：INIT -> PENDING（已是 PENDING 则保持），支付请求计数 +1。
// 调用渠道之前必须先落库。
func (o *Order) BeginPayment(payload string, now time.Time) error {
	if err := o.EnsureComplete(); err != nil {
		return err
	}
	if o.status != StatusPending {
		if err := o.TransitionTo(StatusPending, now); err != nil {
			return err
		}
	}
	return o.payment.begin(payload, now)
}

// ChannelOutcome 渠道返回的业务结果
type ChannelOutcome struct {
	Success      bool
	TraceID      string
	ErrorCode    string
	ErrorMessage string
	Payload      string
}

// CompletePayment 根据渠道结果迁移到 SUCCESS 或 FAILED
func (o *Order) CompletePayment(out ChannelOutcome, now time.Time) error {
	if err := o.EnsureComplete(); err != nil {
		return err
	}
	to := StatusFailed
	if out.Success {
		to = StatusSuccess
	}
	if err := o.TransitionTo(to, now); err != nil {
		return err
	}
	o.channelTraceID = out.TraceID
	if out.Success {
		o.errorCode, o.errorMessage = "", ""
		o.payment.succeed(out.Payload, now)
	} else {
		o.errorCode, o.errorMessage = out.ErrorCode, out.ErrorMessage
		o.payment.fail(out.ErrorCode, out.ErrorMessage, out.Payload, now)
	}
	return nil
}

// RecordPaymentError 记录渠道传输失败，支付单保持 PENDING，推迟下次执行
func (o *Order) RecordPaymentError(code, message string, next, now time.Time) error {
	if err := o.EnsureComplete(); err != nil {
		return err
	}
	o.errorCode, o.errorMessage = code, message
	o.updatedAt = now
	o.payment.scheduleRetry(code, message, next, now)
	return nil
}

// ParkPayment 支付重试耗尽：记录最后一次传输错误并关闭支付请求，支付单保持 PENDING。
// 渠道可能已受理该笔支付，终态只能由回调或人工对账确定，批处理不再重新驱动。
func (o *Order) ParkPayment(code, message string, now time.Time) error {
	if err := o.EnsureComplete(); err != nil {
		return err
	}
	if o.IsTerminal() {
		return shared.NewStateTransitionError(entityOrder, string(o.status), string(o.status))
	}
	o.errorCode, o.errorMessage = code, message
	o.updatedAt = now
	o.payment.errorCode, o.payment.errorMessage = code, message
	o.payment.close(CloseReasonRetryExhausted, now)
	return nil
}

// PaymentParked 支付请求已因重试耗尽关闭，而支付单仍未到终态
func (o *Order) PaymentParked() bool {
	return !o.IsTerminal() && o.payment != nil && o.payment.Status() == RequestClosed
}

// Close 关闭支付单，未结束的支付请求一并关闭
func (o *Order) Close(reason string, now time.Time) error {
	if err := o.TransitionTo(StatusClosed, now); err != nil {
		return err
	}
	if o.payment != nil {
		o.payment.close(reason, now)
	}
	return nil
}

// Bounce 退票：任意受理后状态均可迁移到 BOUNCED，未结束的支付请求一并关闭
func (o *Order) Bounce(reason string, now time.Time) error {
	if err := o.TransitionTo(StatusBounced, now); err != nil {
		return err
	}
	if o.payment != nil {
		o.payment.close(CloseReasonBounced, now)
	}
	if reason != "" {
		o.errorMessage = reason
	}
	return nil
}

// RecordCallback 保存渠道回调原文
func (o *Order) RecordCallback(payload string, now time.Time) {
	if o.payment != nil {
		o.payment.recordCallback(payload, now)
	}
	o.updatedAt = now
}

// ============================================================================
// Notifications
// ============================================================================

// AddNotification 创建通知请求：每种类型至多一条，退票通知仅在 BOUNCED 时允许
func (o *Order) AddNotification(t RequestType, now time.Time) (*ChannelRequest, error) {
	if t != RequestNotify && t != RequestBounceNotify {
		return nil, newValidationError("notifications", "unsupported notification type "+string(t))
	}
	if t == RequestBounceNotify && o.status != StatusBounced {
		return nil, NewBounceNotAllowedError(o.orderNo, o.status)
	}
	if o.Notification(t) != nil {
		return nil, NewNotificationExistsError(o.orderNo, t)
	}
	req, err := newChannelRequest(o.orderNo, t, now)
	if err != nil {
		return nil, err
	}
	o.notifications = append(o.notifications, req)
	o.updatedAt = now
	return req, nil
}

// Notification 返回指定类型的通知请求
func (o *Order) Notification(t RequestType) *ChannelRequest {
	for _, n := range o.notifications {
		if n.requestType == t {
			return n
		}
	}
	return nil
}

// PendingNotification 第一条未结束的通知请求
func (o *Order) PendingNotification() *ChannelRequest {
	for _, n := range o.notifications {
		if !n.IsFinished() {
			return n
		}
	}
	return nil
}

// BeginNotification 通知在途
func (o *Order) BeginNotification(req *ChannelRequest, payload string, now time.Time) error {
	o.updatedAt = now
	return req.begin(payload, now)
}

// CompleteNotification 通知送达
func (o *Order) CompleteNotification(req *ChannelRequest, response string, now time.Time) {
	o.updatedAt = now
	req.succeed(response, now)
}

// RecordNotificationError 通知失败，推迟下次执行
func (o *Order) RecordNotificationError(req *ChannelRequest, code, message string, next, now time.Time) {
	o.updatedAt = now
	req.scheduleRetry(code, message, next, now)
}

// CloseNotification 通知重试耗尽
func (o *Order) CloseNotification(req *ChannelRequest, reason string, now time.Time) {
	o.updatedAt = now
	req.close(reason, now)
}

// MarkPersisted 仓储保存成功后调用，同步落库版本
func (o *Order) MarkPersisted() {
	o.persistedVersion = o.version
	if o.payment != nil {
		o.payment.persisted = true
	}
	for _, n := range o.notifications {
		n.persisted = true
	}
}

// ============================================================================
// ReconstructionDTO - 仅供仓储层使用
// ============================================================================

// ReconstructionDTO 支付单重建数据。SubOrder 或 Payment 为空时重建为精简支付单。
type ReconstructionDTO struct {
	OrderNo        string
	SourceCode     string
	BizIdentify    string
	BizUniqueNo    string
	Amount         shared.Money
	Direction      Direction
	Status         Status
	Env            string
	Version        int
	AcceptedAt     *time.Time
	PaymentBeginAt *time.Time
	SuccessAt      *time.Time
	FailureAt      *time.Time
	ClosedAt       *time.Time
	BouncedAt      *time.Time
	ChannelTraceID string
	ErrorCode      string
	ErrorMessage   string
	SubOrder       *SubOrderDTO
	Payment        *ChannelRequestDTO
	Notifications  []ChannelRequestDTO
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// RebuildFromDTO 从仓储数据重建聚合根，不做业务校验
func RebuildFromDTO(dto ReconstructionDTO) *Order {
	o := &Order{
		orderNo:          dto.OrderNo,
		sourceCode:       dto.SourceCode,
		bizIdentify:      dto.BizIdentify,
		bizUniqueNo:      dto.BizUniqueNo,
		amount:           dto.Amount,
		direction:        dto.Direction,
		status:           dto.Status,
		env:              dto.Env,
		version:          dto.Version,
		persistedVersion: dto.Version,
		acceptedAt:       copyTime(dto.AcceptedAt),
		paymentBeginAt:   copyTime(dto.PaymentBeginAt),
		successAt:        copyTime(dto.SuccessAt),
		failureAt:        copyTime(dto.FailureAt),
		closedAt:         copyTime(dto.ClosedAt),
		bouncedAt:        copyTime(dto.BouncedAt),
		channelTraceID:   dto.ChannelTraceID,
		errorCode:        dto.ErrorCode,
		errorMessage:     dto.ErrorMessage,
		subOrder:         rebuildSubOrder(dto.SubOrder),
		createdAt:        dto.CreatedAt,
		updatedAt:        dto.UpdatedAt,
	}
	if dto.Payment != nil {
		o.payment = rebuildChannelRequest(*dto.Payment)
	}
	for _, n := range dto.Notifications {
		o.notifications = append(o.notifications, rebuildChannelRequest(n))
	}
	return o
}

// Snapshot 导出当前状态，供仓储映射
func (o *Order) Snapshot() ReconstructionDTO {
	dto := ReconstructionDTO{
		OrderNo:        o.orderNo,
		SourceCode:     o.sourceCode,
		BizIdentify:    o.bizIdentify,
		BizUniqueNo:    o.bizUniqueNo,
		Amount:         o.amount,
		Direction:      o.direction,
		Status:         o.status,
		Env:            o.env,
		Version:        o.version,
		AcceptedAt:     copyTime(o.acceptedAt),
		PaymentBeginAt: copyTime(o.paymentBeginAt),
		SuccessAt:      copyTime(o.successAt),
		FailureAt:      copyTime(o.failureAt),
		ClosedAt:       copyTime(o.closedAt),
		BouncedAt:      copyTime(o.bouncedAt),
		ChannelTraceID: o.channelTraceID,
		ErrorCode:      o.errorCode,
		ErrorMessage:   o.errorMessage,
		CreatedAt:      o.createdAt,
		UpdatedAt:      o.updatedAt,
	}
	if o.subOrder != nil {
		dto.SubOrder = o.subOrder.snapshot()
	}
	if o.payment != nil {
		p := o.payment.snapshot()
		dto.Payment = &p
	}
	for _, n := range o.notifications {
		dto.Notifications = append(dto.Notifications, n.snapshot())
	}
	return dto
}

var _ shared.AggregateRoot = (*Order)(nil)
