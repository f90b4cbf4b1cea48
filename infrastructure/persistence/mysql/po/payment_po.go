package po

import (
	"time"

	"github.com/shopspring/decimal"

	"paytx/domain/payment"
	"paytx/domain/shared"
)

// PaymentOrderPO Payment order persistence object
// Note: Only used for database mapping, does not contain any business logic
// Defining GORM associations is prohibited here
type PaymentOrderPO struct {
	OrderNo        string          `gorm:"primaryKey;size:32"`
	SourceCode     string          `gorm:"size:64;not null"`
	BizIdentify    string          `gorm:"size:64;not null;uniqueIndex:uk_biz_key,priority:1"`
	BizUniqueNo    string          `gorm:"size:128;not null;uniqueIndex:uk_biz_key,priority:2"`
	Amount         decimal.Decimal `gorm:"type:decimal(20,2);not null"`
	Currency       string          `gorm:"size:3;not null"`
	Direction      string          `gorm:"size:10;not null"`
	Status         string          `gorm:"size:20;not null;index"`
	Env            string          `gorm:"size:32;not null;index"`
	Version        int             `gorm:"not null"`
	AcceptedAt     *time.Time
	PaymentBeginAt *time.Time
	SuccessAt      *time.Time
	FailureAt      *time.Time
	ClosedAt       *time.Time
	BouncedAt      *time.Time
	ChannelTraceID string    `gorm:"size:128"`
	ErrorCode      string    `gorm:"size:64"`
	ErrorMessage   string    `gorm:"size:512"`
	CreatedAt      time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime:false"`
}

// TableName Specify table name
func (PaymentOrderPO) TableName() string {
	return "payment_orders"
}

// SubOrderPO Sub-order persistence object, written once at acceptance
type SubOrderPO struct {
	OrderNo      string `gorm:"primaryKey;size:32"` // Only store order no, no GORM association
	ChannelCode  string `gorm:"size:32;not null"`
	PayeeAccount string `gorm:"size:64;not null"`
	PayeeName    string `gorm:"size:128"`
	Remark       string `gorm:"size:255"`
	NotifyURL    string `gorm:"size:512"`
}

// TableName Specify table name
func (SubOrderPO) TableName() string {
	return "payment_sub_orders"
}

// ChannelRequestPO Channel request persistence object.
// One row per (order, request type); the id is time ordered and doubles as the backlog cursor.
type ChannelRequestPO struct {
	ID              string    `gorm:"primaryKey;size:36"`
	OrderNo         string    `gorm:"size:32;not null;uniqueIndex:uk_order_type,priority:1"`
	RequestType     string    `gorm:"size:20;not null;uniqueIndex:uk_order_type,priority:2"`
	Status          string    `gorm:"size:20;not null;index:idx_backlog,priority:1"`
	RetryCount      int       `gorm:"not null"`
	NextExecuteAt   time.Time `gorm:"not null;index:idx_backlog,priority:2"`
	LastExecuteAt   *time.Time
	RequestPayload  string    `gorm:"type:text"`
	ResponsePayload string    `gorm:"type:text"`
	CallbackPayload string    `gorm:"type:text"`
	CloseReason     string    `gorm:"size:64"`
	ErrorCode       string    `gorm:"size:64"`
	ErrorMessage    string    `gorm:"size:512"`
	CreatedAt       time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime:false"`
}

// TableName Specify table name
func (ChannelRequestPO) TableName() string {
	return "payment_channel_requests"
}

// FromPaymentDomain Convert domain model to persistence objects
func FromPaymentDomain(o *payment.Order) (*PaymentOrderPO, *SubOrderPO) {
	dto := o.Snapshot()
	orderPO := &PaymentOrderPO{
		OrderNo:        dto.OrderNo,
		SourceCode:     dto.SourceCode,
		BizIdentify:    dto.BizIdentify,
		BizUniqueNo:    dto.BizUniqueNo,
		Amount:         dto.Amount.Amount(),
		Currency:       dto.Amount.Currency(),
		Direction:      string(dto.Direction),
		Status:         string(dto.Status),
		Env:            dto.Env,
		Version:        dto.Version,
		AcceptedAt:     dto.AcceptedAt,
		PaymentBeginAt: dto.PaymentBeginAt,
		SuccessAt:      dto.SuccessAt,
		FailureAt:      dto.FailureAt,
		ClosedAt:       dto.ClosedAt,
		BouncedAt:      dto.BouncedAt,
		ChannelTraceID: dto.ChannelTraceID,
		ErrorCode:      dto.ErrorCode,
		ErrorMessage:   dto.ErrorMessage,
		CreatedAt:      dto.CreatedAt,
		UpdatedAt:      dto.UpdatedAt,
	}

	var subPO *SubOrderPO
	if s := dto.SubOrder; s != nil {
		subPO = &SubOrderPO{
			OrderNo:      dto.OrderNo,
			ChannelCode:  s.ChannelCode,
			PayeeAccount: s.PayeeAccount,
			PayeeName:    s.PayeeName,
			Remark:       s.Remark,
			NotifyURL:    s.NotifyURL,
		}
	}
	return orderPO, subPO
}

// FromChannelRequest Convert one channel request to its persistence object
func FromChannelRequest(r *payment.ChannelRequest) ChannelRequestPO {
	return ChannelRequestPO{
		ID:              r.ID(),
		OrderNo:         r.OrderNo(),
		RequestType:     string(r.Type()),
		Status:          string(r.Status()),
		RetryCount:      r.RetryCount(),
		NextExecuteAt:   r.NextExecuteAt(),
		LastExecuteAt:   r.LastExecuteAt(),
		RequestPayload:  r.RequestPayload(),
		ResponsePayload: r.ResponsePayload(),
		CallbackPayload: r.CallbackPayload(),
		CloseReason:     r.CloseReason(),
		ErrorCode:       r.ErrorCode(),
		ErrorMessage:    r.ErrorMessage(),
		CreatedAt:       r.CreatedAt(),
		UpdatedAt:       r.UpdatedAt(),
	}
}

func (po *ChannelRequestPO) toDTO() payment.ChannelRequestDTO {
	return payment.ChannelRequestDTO{
		ID:              po.ID,
		OrderNo:         po.OrderNo,
		Type:            payment.RequestType(po.RequestType),
		Status:          payment.RequestStatus(po.Status),
		RetryCount:      po.RetryCount,
		NextExecuteAt:   po.NextExecuteAt,
		LastExecuteAt:   po.LastExecuteAt,
		RequestPayload:  po.RequestPayload,
		ResponsePayload: po.ResponsePayload,
		CallbackPayload: po.CallbackPayload,
		CloseReason:     po.CloseReason,
		ErrorCode:       po.ErrorCode,
		ErrorMessage:    po.ErrorMessage,
		CreatedAt:       po.CreatedAt,
		UpdatedAt:       po.UpdatedAt,
	}
}

// ToDomain Convert persistence objects to domain model.
// A missing sub-order or payment request rebuilds a lite order.
func (po *PaymentOrderPO) ToDomain(sub *SubOrderPO, requests []ChannelRequestPO) *payment.Order {
	dto := payment.ReconstructionDTO{
		OrderNo:        po.OrderNo,
		SourceCode:     po.SourceCode,
		BizIdentify:    po.BizIdentify,
		BizUniqueNo:    po.BizUniqueNo,
		Amount:         shared.NewMoney(po.Amount, po.Currency),
		Direction:      payment.Direction(po.Direction),
		Status:         payment.Status(po.Status),
		Env:            po.Env,
		Version:        po.Version,
		AcceptedAt:     po.AcceptedAt,
		PaymentBeginAt: po.PaymentBeginAt,
		SuccessAt:      po.SuccessAt,
		FailureAt:      po.FailureAt,
		ClosedAt:       po.ClosedAt,
		BouncedAt:      po.BouncedAt,
		ChannelTraceID: po.ChannelTraceID,
		ErrorCode:      po.ErrorCode,
		ErrorMessage:   po.ErrorMessage,
		CreatedAt:      po.CreatedAt,
		UpdatedAt:      po.UpdatedAt,
	}
	if sub != nil {
		dto.SubOrder = &payment.SubOrderDTO{
			ChannelCode:  sub.ChannelCode,
			PayeeAccount: sub.PayeeAccount,
			PayeeName:    sub.PayeeName,
			Remark:       sub.Remark,
			NotifyURL:    sub.NotifyURL,
		}
	}
	for i := range requests {
		r := requests[i].toDTO()
		if r.Type == payment.RequestPayment {
			dto.Payment = &r
			continue
		}
		dto.Notifications = append(dto.Notifications, r)
	}
	return payment.RebuildFromDTO(dto)
}

// OrderColumns Mutable header columns written by a version-conditioned update
func (po *PaymentOrderPO) OrderColumns() map[string]interface{} {
	return map[string]interface{}{
		"status":           po.Status,
		"version":          po.Version,
		"accepted_at":      po.AcceptedAt,
		"payment_begin_at": po.PaymentBeginAt,
		"success_at":       po.SuccessAt,
		"failure_at":       po.FailureAt,
		"closed_at":        po.ClosedAt,
		"bounced_at":       po.BouncedAt,
		"channel_trace_id": po.ChannelTraceID,
		"error_code":       po.ErrorCode,
		"error_message":    po.ErrorMessage,
		"updated_at":       po.UpdatedAt,
	}
}

// Models All tables, in migration order
func Models() []interface{} {
	return []interface{}{&PaymentOrderPO{}, &SubOrderPO{}, &ChannelRequestPO{}}
}
