package payment

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RequestType 渠道请求类型
type RequestType string

const (
	RequestPayment      RequestType = "PAYMENT"
	RequestNotify       RequestType = "NOTIFY"
	RequestBounceNotify RequestType = "BOUNCE_NOTIFY"
)

// RequestStatus 渠道请求状态
type RequestStatus string

const (
	RequestInit       RequestStatus = "INIT"
	RequestProcessing RequestStatus = "PROCESSING"
	RequestSucceeded  RequestStatus = "SUCCESS"
	RequestFailed     RequestStatus = "FAILED"
	RequestClosed     RequestStatus = "CLOSED"
)

// IsFinished 已结束的请求不会再被调度
func (s RequestStatus) IsFinished() bool {
	return s == RequestSucceeded || s == RequestFailed || s == RequestClosed
}

// ChannelRequest 渠道请求 - 聚合内实体，记录一次对外调用的完整历史
type ChannelRequest struct {
	id              string
	orderNo         string
	requestType     RequestType
	status          RequestStatus
	retryCount      int
	nextExecuteAt   time.Time
	lastExecuteAt   *time.Time
	requestPayload  string
	responsePayload string
	callbackPayload string
	closeReason     string
	errorCode       string
	errorMessage    string
	createdAt       time.Time
	updatedAt       time.Time

	persisted bool
}

func newChannelRequest(orderNo string, t RequestType, now time.Time) (*ChannelRequest, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate channel request ID: %w", err)
	}
	return &ChannelRequest{
		id:            id.String(),
		orderNo:       orderNo,
		requestType:   t,
		status:        RequestInit,
		nextExecuteAt: now,
		createdAt:     now,
		updatedAt:     now,
	}, nil
}

func (r *ChannelRequest) ID() string { return r.id }
func (r *ChannelRequest) OrderNo() string { return r.orderNo }
func (r *ChannelRequest) Type() RequestType { return r.requestType }
func (r *ChannelRequest) Status() RequestStatus { return r.status }
func (r *ChannelRequest) RetryCount() int { return r.retryCount }
func (r *ChannelRequest) NextExecuteAt() time.Time { return r.nextExecuteAt }
func (r *ChannelRequest) LastExecuteAt() *time.Time { return r.lastExecuteAt }
func (r *ChannelRequest) RequestPayload() string { return r.requestPayload }
func (r *ChannelRequest) ResponsePayload() string { return r.responsePayload }
func (r *ChannelRequest) CallbackPayload() string { return r.callbackPayload }
func (r *ChannelRequest) CloseReason() string { return r.closeReason }
func (r *ChannelRequest) ErrorCode() string { return r.errorCode }
func (r *ChannelRequest) ErrorMessage() string { return r.errorMessage }
func (r *ChannelRequest) CreatedAt() time.Time { return r.createdAt }
func (r *ChannelRequest) UpdatedAt() time.Time { return r.updatedAt }

// IsPersisted 是否已落库（决定仓储走 insert 还是 update）
func (r *ChannelRequest) IsPersisted() bool { return r.persisted }

// IsFinished 请求是否已结束
func (r *ChannelRequest) IsFinished() bool { return r.status.IsFinished() }

// begin 发起一次执行：计数 +1，状态置为处理中
func (r *ChannelRequest) begin(payload string, now time.Time) error {
	if r.IsFinished() {
		return NewRequestFinishedError(r.id, r.status)
	}
	r.status = RequestProcessing
	r.retryCount++
	r.lastExecuteAt = &now
	if payload != "" {
		r.requestPayload = payload
	}
	r.updatedAt = now
	return nil
}

func (r *ChannelRequest) succeed(response string, now time.Time) {
	r.status = RequestSucceeded
	r.responsePayload = response
	r.errorCode, r.errorMessage = "", ""
	r.updatedAt = now
}

func (r *ChannelRequest) fail(code, message, response string, now time.Time) {
	r.status = RequestFailed
	r.responsePayload = response
	r.errorCode, r.errorMessage = code, message
	r.updatedAt = now
}

// scheduleRetry 记录失败并推迟下次执行，状态保持处理中
func (r *ChannelRequest) scheduleRetry(code, message string, next, now time.Time) {
	r.status = RequestProcessing
	r.errorCode, r.errorMessage = code, message
	r.nextExecuteAt = next
	r.updatedAt = now
}

func (r *ChannelRequest) close(reason string, now time.Time) {
	if r.IsFinished() {
		return
	}
	r.status = RequestClosed
	r.closeReason = reason
	r.updatedAt = now
}

func (r *ChannelRequest) recordCallback(payload string, now time.Time) {
	r.callbackPayload = payload
	r.updatedAt = now
}

// ChannelRequestDTO 仓储层重建用
type ChannelRequestDTO struct {
	ID              string
	OrderNo         string
	Type            RequestType
	Status          RequestStatus
	RetryCount      int
	NextExecuteAt   time.Time
	LastExecuteAt   *time.Time
	RequestPayload  string
	ResponsePayload string
	CallbackPayload string
	CloseReason     string
	ErrorCode       string
	ErrorMessage    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func rebuildChannelRequest(dto ChannelRequestDTO) *ChannelRequest {
	return &ChannelRequest{
		id:              dto.ID,
		orderNo:         dto.OrderNo,
		requestType:     dto.Type,
		status:          dto.Status,
		retryCount:      dto.RetryCount,
		nextExecuteAt:   dto.NextExecuteAt,
		lastExecuteAt:   copyTime(dto.LastExecuteAt),
		requestPayload:  dto.RequestPayload,
		responsePayload: dto.ResponsePayload,
		callbackPayload: dto.CallbackPayload,
		closeReason:     dto.CloseReason,
		errorCode:       dto.ErrorCode,
		errorMessage:    dto.ErrorMessage,
		createdAt:       dto.CreatedAt,
		updatedAt:       dto.UpdatedAt,
		persisted:       true,
	}
}

func (r *ChannelRequest) snapshot() ChannelRequestDTO {
	return ChannelRequestDTO{
		ID:              r.id,
		OrderNo:         r.orderNo,
		Type:            r.requestType,
		Status:          r.status,
		RetryCount:      r.retryCount,
		NextExecuteAt:   r.nextExecuteAt,
		LastExecuteAt:   copyTime(r.lastExecuteAt),
		RequestPayload:  r.requestPayload,
		ResponsePayload: r.responsePayload,
		CallbackPayload: r.callbackPayload,
		CloseReason:     r.closeReason,
		ErrorCode:       r.errorCode,
		ErrorMessage:    r.errorMessage,
		CreatedAt:       r.createdAt,
		UpdatedAt:       r.updatedAt,
	}
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
