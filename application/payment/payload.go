package payment

import (
	"github.com/bytedance/sonic"

	"paytx/domain/payment"
)

// paymentPayload 发往支付渠道的请求报文
type paymentPayload struct {
	OrderNo      string `json:"order_no"`
	RequestID    string `json:"request_id"`
	Amount       string `json:"amount"`
	Currency     string `json:"currency"`
	Direction    string `json:"direction"`
	ChannelCode  string `json:"channel_code"`
	PayeeAccount string `json:"payee_account"`
	PayeeName    string `json:"payee_name,omitempty"`
	Remark       string `json:"remark,omitempty"`
	Attempt      int    `json:"attempt"`
}

// notifyPayload 推送给来源系统的结果通知
type notifyPayload struct {
	Type         string `json:"type"`
	OrderNo      string `json:"order_no"`
	BizIdentify  string `json:"biz_identify"`
	BizUniqueNo  string `json:"biz_unique_no"`
	Status       string `json:"status"`
	Amount       string `json:"amount"`
	Currency     string `json:"currency"`
	TraceID      string `json:"trace_id,omitempty"`
	ErrorCode    string `json:"error_code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

func marshalPaymentPayload(o *payment.Order) ([]byte, error) {
	sub := o.SubOrder()
	return sonic.Marshal(paymentPayload{
		OrderNo:      o.OrderNo(),
		RequestID:    o.Payment().ID(),
		Amount:       o.Amount().Amount().StringFixed(2),
		Currency:     o.Amount().Currency(),
		Direction:    string(o.Direction()),
		ChannelCode:  sub.ChannelCode(),
		PayeeAccount: sub.PayeeAccount(),
		PayeeName:    sub.PayeeName(),
		Remark:       sub.Remark(),
		Attempt:      o.Payment().RetryCount() + 1,
	})
}

func marshalNotifyPayload(o *payment.Order, req *payment.ChannelRequest) ([]byte, error) {
	return sonic.Marshal(notifyPayload{
		Type:         string(req.Type()),
		OrderNo:      o.OrderNo(),
		BizIdentify:  o.BizIdentify(),
		BizUniqueNo:  o.BizUniqueNo(),
		Status:       o.Status().String(),
		Amount:       o.Amount().Amount().StringFixed(2),
		Currency:     o.Amount().Currency(),
		TraceID:      o.ChannelTraceID(),
		ErrorCode:    o.ErrorCode(),
		ErrorMessage: o.ErrorMessage(),
	})
}
