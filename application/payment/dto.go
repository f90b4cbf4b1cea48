package payment

import (
	"strings"
	"time"

	"paytx/domain/payment"
)

// ============================================================================
// Commands
// ============================================================================

// AcceptCommand 受理一笔支付
type AcceptCommand struct {
	SourceCode   string `json:"source_code" binding:"required"`
	BizIdentify  string `json:"biz_identify" binding:"required"`
	BizUniqueNo  string `json:"biz_unique_no" binding:"required"`
	Amount       string `json:"amount" binding:"required"`
	Currency     string `json:"currency" binding:"required"`
	Direction    string `json:"direction" binding:"required"`
	ChannelCode  string `json:"channel_code" binding:"required"`
	PayeeAccount string `json:"payee_account" binding:"required"`
	PayeeName    string `json:"payee_name"`
	Remark       string `json:"remark"`
	NotifyURL    string `json:"notify_url"`
}

// PayCommand 发起（或重发）渠道支付
type PayCommand struct {
	BizIdentify string `json:"biz_identify" binding:"required"`
	BizUniqueNo string `json:"biz_unique_no" binding:"required"`
}

// NotifyCommand 推送待发送的结果通知
type NotifyCommand struct {
	BizIdentify string `json:"biz_identify" binding:"required"`
	BizUniqueNo string `json:"biz_unique_no" binding:"required"`
}

// CallbackOutcome 渠道异步回调的结果
type CallbackOutcome string

const (
	OutcomeSuccess CallbackOutcome = "SUCCESS"
	OutcomeFailed  CallbackOutcome = "FAILED"
	OutcomeBounced CallbackOutcome = "BOUNCED"
)

// Target 回调结果对应的支付单状态
func (o CallbackOutcome) Target() (payment.Status, bool) {
	switch o {
	case OutcomeSuccess:
		return payment.StatusSuccess, true
	case OutcomeFailed:
		return payment.StatusFailed, true
	case OutcomeBounced:
		return payment.StatusBounced, true
	}
	return payment.StatusNone, false
}

// CallbackCommand 渠道回调
type CallbackCommand struct {
	BizIdentify  string          `json:"biz_identify" binding:"required"`
	BizUniqueNo  string          `json:"biz_unique_no" binding:"required"`
	Outcome      CallbackOutcome `json:"outcome" binding:"required"`
	TraceID      string          `json:"trace_id"`
	ErrorCode    string          `json:"error_code"`
	ErrorMessage string          `json:"error_message"`
	Payload      string          `json:"payload"`
}

// bizKey 去除首尾空白，受理落库、加锁、查询使用同一组值
func bizKey(bizIdentify, bizUniqueNo string) (string, string) {
	return strings.TrimSpace(bizIdentify), strings.TrimSpace(bizUniqueNo)
}

func acceptKey(c AcceptCommand) (string, string)     { return bizKey(c.BizIdentify, c.BizUniqueNo) }
func payKey(c PayCommand) (string, string)           { return bizKey(c.BizIdentify, c.BizUniqueNo) }
func notifyKey(c NotifyCommand) (string, string)     { return bizKey(c.BizIdentify, c.BizUniqueNo) }
func callbackKey(c CallbackCommand) (string, string) { return bizKey(c.BizIdentify, c.BizUniqueNo) }

// ============================================================================
// Responses
// ============================================================================

// OrderResponse 支付单视图
type OrderResponse struct {
	OrderNo        string                   `json:"order_no"`
	SourceCode     string                   `json:"source_code"`
	BizIdentify    string                   `json:"biz_identify"`
	BizUniqueNo    string                   `json:"biz_unique_no"`
	Amount         string                   `json:"amount"`
	Currency       string                   `json:"currency"`
	Direction      string                   `json:"direction"`
	Status         string                   `json:"status"`
	Version        int                      `json:"version"`
	ChannelCode    string                   `json:"channel_code"`
	ChannelTraceID string                   `json:"channel_trace_id,omitempty"`
	ErrorCode      string                   `json:"error_code,omitempty"`
	ErrorMessage   string                   `json:"error_message,omitempty"`
	Requests       []ChannelRequestResponse `json:"requests"`
	AcceptedAt     *time.Time               `json:"accepted_at,omitempty"`
	SuccessAt      *time.Time               `json:"success_at,omitempty"`
	FailureAt      *time.Time               `json:"failure_at,omitempty"`
	ClosedAt       *time.Time               `json:"closed_at,omitempty"`
	BouncedAt      *time.Time               `json:"bounced_at,omitempty"`
	UpdatedAt      time.Time                `json:"updated_at"`
}

// ChannelRequestResponse 渠道请求视图
type ChannelRequestResponse struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	Status        string    `json:"status"`
	RetryCount    int       `json:"retry_count"`
	NextExecuteAt time.Time `json:"next_execute_at"`
	CloseReason   string    `json:"close_reason,omitempty"`
	ErrorCode     string    `json:"error_code,omitempty"`
}

// ResultResponse 一次命令执行的结果
type ResultResponse struct {
	Success    bool           `json:"success"`
	Idempotent bool           `json:"idempotent"`
	Order      *OrderResponse `json:"order,omitempty"`
}

// ToOrderResponse 聚合 -> 视图
func ToOrderResponse(o *payment.Order) *OrderResponse {
	if o == nil {
		return nil
	}
	resp := &OrderResponse{
		OrderNo:        o.OrderNo(),
		SourceCode:     o.SourceCode(),
		BizIdentify:    o.BizIdentify(),
		BizUniqueNo:    o.BizUniqueNo(),
		Amount:         o.Amount().Amount().StringFixed(2),
		Currency:       o.Amount().Currency(),
		Direction:      string(o.Direction()),
		Status:         o.Status().String(),
		Version:        o.Version(),
		ChannelTraceID: o.ChannelTraceID(),
		ErrorCode:      o.ErrorCode(),
		ErrorMessage:   o.ErrorMessage(),
		AcceptedAt:     o.AcceptedAt(),
		SuccessAt:      o.SuccessAt(),
		FailureAt:      o.FailureAt(),
		ClosedAt:       o.ClosedAt(),
		BouncedAt:      o.BouncedAt(),
		UpdatedAt:      o.UpdatedAt(),
	}
	if s := o.SubOrder(); s != nil {
		resp.ChannelCode = s.ChannelCode()
	}
	requests := o.Notifications()
	if p := o.Payment(); p != nil {
		requests = append([]*payment.ChannelRequest{p}, requests...)
	}
	resp.Requests = make([]ChannelRequestResponse, 0, len(requests))
	for _, r := range requests {
		resp.Requests = append(resp.Requests, ChannelRequestResponse{
			ID:            r.ID(),
			Type:          string(r.Type()),
			Status:        string(r.Status()),
			RetryCount:    r.RetryCount(),
			NextExecuteAt: r.NextExecuteAt(),
			CloseReason:   r.CloseReason(),
			ErrorCode:     r.ErrorCode(),
		})
	}
	return resp
}
