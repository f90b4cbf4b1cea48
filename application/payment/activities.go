package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"paytx/application/txn"
	"paytx/domain/channel"
	"paytx/domain/payment"
	"paytx/domain/shared"
)

// Activity names, also usable with txn.WithCompleted.
const (
	ActivityIDGeneration = "idGeneration"
	ActivityAccept       = "accept"
	ActivityPay          = "pay"
	ActivityNotify       = "notify"
	ActivityCallback     = "callback"
)

// dispatch 一次渠道调用的结果
type dispatch struct {
	request  *payment.ChannelRequest
	response *channel.Response
	err      error
}

// failure 传输失败或响应格式错误时的错误码与描述
func (d *dispatch) failure() (code, message string, failed bool) {
	switch {
	case d.err != nil:
		return "CHANNEL_ERROR", d.err.Error(), true
	case !d.response.WellFormed():
		return "MALFORMED_RESPONSE", "channel returned a malformed response", true
	}
	return "", "", false
}

func dispatchOf[C any](tc *txn.Context[C], name string) (*dispatch, error) {
	d, ok := tc.ActivityResponse(name).(*dispatch)
	if !ok || d == nil {
		return nil, fmt.Errorf("%s: no channel dispatch recorded", name)
	}
	return d, nil
}

func requireOrder[C any](tc *txn.Context[C]) (*payment.Order, error) {
	o := tc.Order()
	if o == nil {
		return nil, payment.NewOrderNotFoundError("context")
	}
	return o, nil
}

// ============================================================================
// IDGeneration
// ============================================================================

type idGeneration struct {
	repo payment.Repository
}

func (a *idGeneration) Name() string { return ActivityIDGeneration }

func (a *idGeneration) Validate(*txn.Context[AcceptCommand]) error { return nil }

func (a *idGeneration) Satisfied(tc *txn.Context[AcceptCommand]) bool {
	no, _ := tc.ActivityResponse(ActivityIDGeneration).(string)
	return no != ""
}

func (a *idGeneration) Execute(ctx context.Context, tc *txn.Context[AcceptCommand]) error {
	no, err := a.repo.NextOrderNo(ctx)
	if err != nil {
		return err
	}
	tc.SetActivityResponse(ActivityIDGeneration, no)
	return nil
}

func (a *idGeneration) Complete(context.Context, *txn.Context[AcceptCommand]) error { return nil }

// ============================================================================
// Accept
// ============================================================================

type accept struct {
	repo payment.Repository
	env  string
	now  func() time.Time
}

func (a *accept) Name() string { return ActivityAccept }

// Validate 构造受理参数；任何字段非法都在落库前失败
func (a *accept) Validate(tc *txn.Context[AcceptCommand]) error {
	cmd := tc.Request()
	amount, err := shared.ParseMoney(cmd.Amount, cmd.Currency)
	if err != nil {
		return err
	}
	if err := amount.Validate(); err != nil {
		return err
	}
	direction := payment.Direction(strings.ToUpper(strings.TrimSpace(cmd.Direction)))
	if !direction.Valid() {
		return shared.NewValidationError("payment_order", "direction", "direction must be DEBIT or CREDIT")
	}
	sub, err := payment.NewSubOrder(cmd.ChannelCode, cmd.PayeeAccount, cmd.PayeeName, cmd.Remark, cmd.NotifyURL)
	if err != nil {
		return err
	}
	bizIdentify, bizUniqueNo := acceptKey(cmd)
	tc.SetActivityRequest(ActivityAccept, &payment.AcceptParams{
		SourceCode:  strings.TrimSpace(cmd.SourceCode),
		BizIdentify: bizIdentify,
		BizUniqueNo: bizUniqueNo,
		Amount:      amount,
		Direction:   direction,
		Env:         a.env,
		SubOrder:    sub,
	})
	return nil
}

func (a *accept) Satisfied(tc *txn.Context[AcceptCommand]) bool {
	return tc.Order() != nil
}

func (a *accept) Execute(_ context.Context, tc *txn.Context[AcceptCommand]) error {
	params, ok := tc.ActivityRequest(ActivityAccept).(*payment.AcceptParams)
	if !ok {
		return errors.New("accept: parameters not assembled")
	}
	no, _ := tc.ActivityResponse(ActivityIDGeneration).(string)
	params.OrderNo = no

	o, err := payment.Accept(*params, a.now())
	if err != nil {
		return err
	}
	tc.SetOrder(o)
	return nil
}

func (a *accept) Complete(ctx context.Context, tc *txn.Context[AcceptCommand]) error {
	o, err := requireOrder(tc)
	if err != nil {
		return err
	}
	return a.repo.Insert(ctx, o)
}

// ============================================================================
// Pay
// ============================================================================

// payer 支付活动
type payer struct {
	repo       payment.Repository
	channels   *channel.Registry
	maxRetries int
	backoff    func(attempt int) time.Duration
	now        func() time.Time
	log        *zap.Logger
}

func (a *payer) Name() string { return ActivityPay }

func (a *payer) Validate(tc *txn.Context[PayCommand]) error {
	o, err := requireOrder(tc)
	if err != nil {
		return err
	}
	if err := o.EnsureComplete(); err != nil {
		return err
	}
	_, err = a.channels.Resolve(channel.Tag(o.SubOrder().ChannelCode()))
	return err
}

func (a *payer) Satisfied(tc *txn.Context[PayCommand]) bool {
	return tc.Order().IsTerminal()
}

// Execute 先落库在途状态，再调用渠道
func (a *payer) Execute(ctx context.Context, tc *txn.Context[PayCommand]) error {
	o := tc.Order()
	strategy, err := a.channels.Resolve(channel.Tag(o.SubOrder().ChannelCode()))
	if err != nil {
		return err
	}
	body, err := marshalPaymentPayload(o)
	if err != nil {
		return err
	}
	if err := o.BeginPayment(string(body), a.now()); err != nil {
		return err
	}
	if err := a.repo.Update(ctx, o); err != nil {
		return err
	}

	resp, err := strategy.Execute(ctx, channel.Request{
		RequestID:   o.Payment().ID(),
		OrderNo:     o.OrderNo(),
		Kind:        string(payment.RequestPayment),
		Payload:     body,
		Idempotency: o.BizKey(),
	})
	if err != nil {
		err = shared.NewChannelExecutionError(o.SubOrder().ChannelCode(), err)
	}
	tc.SetActivityResponse(ActivityPay, &dispatch{request: o.Payment(), response: resp, err: err})
	return nil
}

func (a *payer) Complete(ctx context.Context, tc *txn.Context[PayCommand]) error {
	o := tc.Order()
	d, err := dispatchOf(tc, ActivityPay)
	if err != nil {
		return err
	}
	now := a.now()

	if code, message, failed := d.failure(); failed {
		attempts := o.Payment().RetryCount()
		a.log.Warn("payment dispatch failed",
			zap.String("order_no", o.OrderNo()),
			zap.Int("attempt", attempts),
			zap.String("error_code", code),
			zap.Error(d.err),
		)
		if attempts >= a.maxRetries {
			a.log.Error("payment retries exhausted, parked until callback",
				zap.String("order_no", o.OrderNo()),
				zap.Int("attempts", attempts),
			)
			if err := o.ParkPayment(code, message, now); err != nil {
				return err
			}
		} else if err := o.RecordPaymentError(code, message, now.Add(a.backoff(attempts)), now); err != nil {
			return err
		}
		tc.MarkRetryable()
	} else {
		if err := o.CompletePayment(outcomeOf(d.response), now); err != nil {
			return err
		}
	}

	if err := scheduleNotification(tc, o, payment.RequestNotify, now); err != nil {
		return err
	}
	return a.repo.Update(context.WithoutCancel(ctx), o)
}

func outcomeOf(r *channel.Response) payment.ChannelOutcome {
	return payment.ChannelOutcome{
		Success:      r.Success,
		TraceID:      r.TraceID,
		ErrorCode:    r.ErrorCode,
		ErrorMessage: r.ErrorMessage,
		Payload:      string(r.Raw),
	}
}

// scheduleNotification 支付单到达终态时追加通知请求并放行通知活动，否则跳过通知活动。
// 来源系统未提供通知地址时不创建通知。
func scheduleNotification[C any](tc *txn.Context[C], o *payment.Order, t payment.RequestType, now time.Time) error {
	if !o.IsTerminal() {
		tc.SetComplete(ActivityNotify, true)
		return nil
	}
	if o.SubOrder().NotifyURL() != "" && o.Notification(t) == nil {
		if _, err := o.AddNotification(t, now); err != nil {
			return err
		}
	}
	tc.SetComplete(ActivityNotify, false)
	return nil
}

// ============================================================================
// Notify
// ============================================================================

type notifier[C any] struct {
	repo       payment.Repository
	channels   *channel.Registry
	maxRetries int
	backoff    func(attempt int) time.Duration
	now        func() time.Time
	log        *zap.Logger
}

func (a *notifier[C]) Name() string { return ActivityNotify }

func (a *notifier[C]) Validate(tc *txn.Context[C]) error {
	o, err := requireOrder(tc)
	if err != nil {
		return err
	}
	if err := o.EnsureComplete(); err != nil {
		return err
	}
	_, err = a.channels.Resolve(channel.TagNotify)
	return err
}

func (a *notifier[C]) Satisfied(tc *txn.Context[C]) bool {
	return nextNotification(tc.Order()) == nil
}

// nextNotification 退票后优先发送退票通知
func nextNotification(o *payment.Order) *payment.ChannelRequest {
	if o.Status() == payment.StatusBounced {
		if req := o.Notification(payment.RequestBounceNotify); req != nil && !req.IsFinished() {
			return req
		}
	}
	return o.PendingNotification()
}

func (a *notifier[C]) Execute(ctx context.Context, tc *txn.Context[C]) error {
	o := tc.Order()
	req := nextNotification(o)
	strategy, err := a.channels.Resolve(channel.TagNotify)
	if err != nil {
		return err
	}
	body, err := marshalNotifyPayload(o, req)
	if err != nil {
		return err
	}
	if err := o.BeginNotification(req, string(body), a.now()); err != nil {
		return err
	}
	if err := a.repo.Update(ctx, o); err != nil {
		return err
	}

	resp, err := strategy.Execute(ctx, channel.Request{
		RequestID:   req.ID(),
		OrderNo:     o.OrderNo(),
		Kind:        string(req.Type()),
		Endpoint:    o.SubOrder().NotifyURL(),
		Payload:     body,
		Idempotency: req.ID(),
	})
	if err != nil {
		err = shared.NewChannelExecutionError(string(channel.TagNotify), err)
	}
	tc.SetActivityResponse(ActivityNotify, &dispatch{request: req, response: resp, err: err})
	return nil
}

func (a *notifier[C]) Complete(ctx context.Context, tc *txn.Context[C]) error {
	o := tc.Order()
	d, err := dispatchOf(tc, ActivityNotify)
	if err != nil {
		return err
	}
	now := a.now()
	req := d.request

	code, message, failed := d.failure()
	if !failed && !d.response.Success {
		code, message, failed = d.response.ErrorCode, d.response.ErrorMessage, true
	}
	if failed {
		a.log.Warn("notification failed",
			zap.String("order_no", o.OrderNo()),
			zap.String("type", string(req.Type())),
			zap.Int("attempt", req.RetryCount()),
			zap.String("error_code", code),
			zap.Error(d.err),
		)
		if req.RetryCount() >= a.maxRetries {
			o.CloseNotification(req, payment.CloseReasonRetryExhausted, now)
		} else {
			o.RecordNotificationError(req, code, message, now.Add(a.backoff(req.RetryCount())), now)
			tc.MarkRetryable()
		}
	} else {
		o.CompleteNotification(req, string(d.response.Raw), now)
	}
	return a.repo.Update(context.WithoutCancel(ctx), o)
}

// ============================================================================
// Callback
// ============================================================================

type callback struct {
	repo payment.Repository
	now  func() time.Time
}

func (a *callback) Name() string { return ActivityCallback }

func (a *callback) Validate(tc *txn.Context[CallbackCommand]) error {
	if _, ok := tc.Request().Outcome.Target(); !ok {
		return shared.NewValidationError("callback", "outcome", "outcome must be SUCCESS, FAILED or BOUNCED")
	}
	o, err := requireOrder(tc)
	if err != nil {
		return err
	}
	return o.EnsureComplete()
}

func (a *callback) Satisfied(tc *txn.Context[CallbackCommand]) bool {
	target, _ := tc.Request().Outcome.Target()
	return tc.Order().Status() == target
}

func (a *callback) Execute(_ context.Context, tc *txn.Context[CallbackCommand]) error {
	cmd := tc.Request()
	o := tc.Order()
	now := a.now()

	o.RecordCallback(cmd.Payload, now)
	if cmd.Outcome == OutcomeBounced {
		return o.Bounce(cmd.ErrorMessage, now)
	}
	return o.CompletePayment(payment.ChannelOutcome{
		Success:      cmd.Outcome == OutcomeSuccess,
		TraceID:      cmd.TraceID,
		ErrorCode:    cmd.ErrorCode,
		ErrorMessage: cmd.ErrorMessage,
		Payload:      cmd.Payload,
	}, now)
}

func (a *callback) Complete(ctx context.Context, tc *txn.Context[CallbackCommand]) error {
	o := tc.Order()
	t := payment.RequestNotify
	if o.Status() == payment.StatusBounced {
		t = payment.RequestBounceNotify
	}
	if err := scheduleNotification(tc, o, t, a.now()); err != nil {
		return err
	}
	return a.repo.Update(context.WithoutCancel(ctx), o)
}
