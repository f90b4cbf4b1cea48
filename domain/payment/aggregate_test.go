package payment

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paytx/domain/shared"
)

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func newTestOrder(t *testing.T) *Order {
	t.Helper()
	sub, err := NewSubOrder("alipay", "6222000011112222", "Alice", "salary", "http://source.local/notify")
	require.NoError(t, err)
	o, err := Accept(AcceptParams{
		OrderNo:     NewOrderNo(),
		SourceCode:  "HR",
		BizIdentify: "SALARY",
		BizUniqueNo: "2026-03-0001",
		Amount:      shared.NewMoney(decimal.RequireFromString("1250.50"), "cny"),
		Direction:   DirectionCredit,
		Env:         "test",
		SubOrder:    sub,
	}, t0)
	require.NoError(t, err)
	return o
}

func withStatus(status Status) *Order {
	return &Order{orderNo: "O1", status: status, version: 5}
}

func TestTransitionTable(t *testing.T) {
	allowed := map[Status][]Status{
		StatusNone:    {StatusInit},
		StatusInit:    {StatusPending, StatusSuccess, StatusFailed, StatusClosed, StatusBounced},
		StatusPending: {StatusSuccess, StatusFailed, StatusClosed, StatusBounced},
		StatusSuccess: {StatusBounced},
		StatusFailed:  {StatusBounced},
		StatusClosed:  {StatusBounced},
		StatusBounced: {},
	}
	targets := append([]Status{StatusNone}, AllStatuses...)

	for from, tos := range allowed {
		for _, to := range targets {
			want := false
			for _, a := range tos {
				if a == to {
					want = true
				}
			}
			t.Run(from.String()+"->"+to.String(), func(t *testing.T) {
				o := withStatus(from)
				err := o.TransitionTo(to, t0)
				if want {
					require.NoError(t, err)
					assert.Equal(t, to, o.Status())
					assert.Equal(t, 6, o.Version(), "accepted transition bumps version by one")
					return
				}
				assert.ErrorIs(t, err, shared.ErrStateTransition)
				assert.Equal(t, from, o.Status(), "status unchanged on rejection")
				assert.Equal(t, 5, o.Version(), "version unchanged on rejection")
			})
		}
	}
}

func TestTransitionStampsMilestones(t *testing.T) {
	o := newTestOrder(t)
	require.NotNil(t, o.AcceptedAt())

	t1 := t0.Add(time.Minute)
	require.NoError(t, o.TransitionTo(StatusPending, t1))
	assert.Equal(t, t1, *o.PaymentBeginAt())

	t2 := t1.Add(time.Minute)
	require.NoError(t, o.TransitionTo(StatusSuccess, t2))
	assert.Equal(t, t2, *o.SuccessAt())

	t3 := t2.Add(time.Hour)
	require.NoError(t, o.Bounce("returned by bank", t3))
	assert.Equal(t, t3, *o.BouncedAt())
	assert.Equal(t, 4, o.Version())

	err := o.Bounce("again", t3)
	assert.ErrorIs(t, err, shared.ErrStateTransition)
	var de *shared.DomainError
	require.True(t, errors.As(err, &de))
	assert.NotEmpty(t, de.Stack())
}

func TestAcceptBuildsCompleteOrder(t *testing.T) {
	o := newTestOrder(t)

	assert.Equal(t, StatusInit, o.Status())
	assert.Equal(t, 1, o.Version())
	assert.True(t, o.IsNew())
	assert.False(t, o.IsLite())
	assert.Equal(t, "CNY", o.Amount().Currency())
	assert.Equal(t, "6:SALARY:2026-03-0001", o.BizKey())
	assert.NotEqual(t, BizKey("A:B", "C"), BizKey("A", "B:C"))
	require.NotNil(t, o.Payment())
	assert.Equal(t, RequestPayment, o.Payment().Type())
	assert.Equal(t, RequestInit, o.Payment().Status())
	assert.Equal(t, t0, o.Payment().NextExecuteAt())
	assert.Empty(t, o.Notifications())
}

func TestAcceptValidation(t *testing.T) {
	sub, _ := NewSubOrder("alipay", "acc", "", "", "")
	valid := AcceptParams{
		OrderNo: "O1", SourceCode: "HR", BizIdentify: "B", BizUniqueNo: "1",
		Amount: shared.NewMoney(decimal.NewFromInt(10), "CNY"), Direction: DirectionDebit, SubOrder: sub,
	}
	cases := map[string]func(p *AcceptParams){
		"blank order no":   func(p *AcceptParams) { p.OrderNo = " " },
		"blank unique no":  func(p *AcceptParams) { p.BizUniqueNo = "" },
		"blank source":     func(p *AcceptParams) { p.SourceCode = "" },
		"zero amount":      func(p *AcceptParams) { p.Amount = shared.NewMoney(decimal.Zero, "CNY") },
		"bad currency":     func(p *AcceptParams) { p.Amount = shared.NewMoney(decimal.NewFromInt(1), "RMBX") },
		"bad direction":    func(p *AcceptParams) { p.Direction = "SIDEWAYS" },
		"missing suborder": func(p *AcceptParams) { p.SubOrder = nil },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			p := valid
			mutate(&p)
			_, err := Accept(p, t0)
			assert.ErrorIs(t, err, shared.ErrValidation)
		})
	}

	_, err := NewSubOrder("", "acc", "", "", "")
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestPaymentLifecycle(t *testing.T) {
	o := newTestOrder(t)

	// first attempt fails in transport
	require.NoError(t, o.BeginPayment(`{"amount":"1250.50"}`, t0))
	assert.Equal(t, StatusPending, o.Status())
	assert.Equal(t, 2, o.Version())
	assert.Equal(t, 1, o.Payment().RetryCount())
	assert.Equal(t, RequestProcessing, o.Payment().Status())

	next := t0.Add(30 * time.Second)
	require.NoError(t, o.RecordPaymentError("CHANNEL_ERROR", "timeout", next, t0))
	assert.Equal(t, StatusPending, o.Status())
	assert.Equal(t, next, o.Payment().NextExecuteAt())
	assert.Equal(t, "timeout", o.ErrorMessage())

	// second attempt succeeds
	t1 := next.Add(time.Second)
	require.NoError(t, o.BeginPayment("", t1))
	assert.Equal(t, 2, o.Version(), "PENDING is kept without a transition")
	require.NoError(t, o.CompletePayment(ChannelOutcome{Success: true, TraceID: "TR-1"}, t1))

	assert.Equal(t, StatusSuccess, o.Status())
	assert.Equal(t, 3, o.Version())
	assert.Equal(t, 2, o.Payment().RetryCount())
	assert.Equal(t, RequestSucceeded, o.Payment().Status())
	assert.Equal(t, "TR-1", o.ChannelTraceID())
	assert.Empty(t, o.ErrorCode())
	assert.Equal(t, `{"amount":"1250.50"}`, o.Payment().RequestPayload())

	err := o.BeginPayment("", t1)
	assert.ErrorIs(t, err, shared.ErrStateTransition)
}

func TestCloseClosesPaymentRequest(t *testing.T) {
	o := newTestOrder(t)
	require.NoError(t, o.BeginPayment("", t0))
	require.NoError(t, o.Close("MANUAL", t0))

	assert.Equal(t, StatusClosed, o.Status())
	assert.Equal(t, RequestClosed, o.Payment().Status())
	assert.Equal(t, "MANUAL", o.Payment().CloseReason())
	assert.False(t, o.PaymentParked())
}

func TestParkPaymentKeepsOrderPending(t *testing.T) {
	o := newTestOrder(t)
	require.NoError(t, o.BeginPayment("", t0))
	version := o.Version()
	t1 := t0.Add(time.Minute)

	require.NoError(t, o.ParkPayment("CHANNEL_ERROR", "i/o timeout", t1))

	assert.Equal(t, StatusPending, o.Status())
	assert.Equal(t, version, o.Version())
	assert.True(t, o.PaymentParked())
	assert.Nil(t, o.ClosedAt())
	assert.Equal(t, "CHANNEL_ERROR", o.ErrorCode())
	assert.Equal(t, RequestClosed, o.Payment().Status())
	assert.Equal(t, CloseReasonRetryExhausted, o.Payment().CloseReason())
	assert.Equal(t, "i/o timeout", o.Payment().ErrorMessage())

	require.NoError(t, o.CompletePayment(ChannelOutcome{Success: true, TraceID: "TR-9"}, t1))
	assert.Equal(t, StatusSuccess, o.Status())
	assert.False(t, o.PaymentParked())

	assert.ErrorIs(t, o.ParkPayment("CHANNEL_ERROR", "late", t1), shared.ErrStateTransition)
}

func TestNotificationsInvariants(t *testing.T) {
	o := newTestOrder(t)

	_, err := o.AddNotification(RequestBounceNotify, t0)
	assert.ErrorIs(t, err, ErrBounceNotAllowed)
	assert.ErrorIs(t, err, shared.ErrValidation)

	n, err := o.AddNotification(RequestNotify, t0)
	require.NoError(t, err)
	assert.Same(t, n, o.PendingNotification())

	_, err = o.AddNotification(RequestNotify, t0)
	assert.ErrorIs(t, err, ErrNotificationExists)

	_, err = o.AddNotification(RequestPayment, t0)
	assert.ErrorIs(t, err, shared.ErrValidation)

	require.NoError(t, o.BeginNotification(n, "{}", t0))
	o.CompleteNotification(n, "ok", t0)
	assert.Nil(t, o.PendingNotification())
	assert.ErrorIs(t, o.BeginNotification(n, "{}", t0), ErrRequestFinished)

	require.NoError(t, o.Bounce("", t0))
	b, err := o.AddNotification(RequestBounceNotify, t0)
	require.NoError(t, err)
	assert.Same(t, b, o.PendingNotification())
	assert.Len(t, o.Notifications(), 2)
}

func TestIncompleteOrderRejected(t *testing.T) {
	lite := RebuildFromDTO(ReconstructionDTO{OrderNo: "O1", Status: StatusInit, Version: 1})
	assert.True(t, lite.IsLite())

	err := lite.BeginPayment("", t0)
	assert.ErrorIs(t, err, ErrOrderIncomplete)
	assert.Equal(t, StatusInit, lite.Status())
}

func TestSnapshotRebuild(t *testing.T) {
	o := newTestOrder(t)
	require.NoError(t, o.BeginPayment("{}", t0))
	require.NoError(t, o.CompletePayment(ChannelOutcome{Success: false, ErrorCode: "E1", ErrorMessage: "rejected"}, t0))
	_, err := o.AddNotification(RequestNotify, t0)
	require.NoError(t, err)

	rebuilt := RebuildFromDTO(o.Snapshot())

	assert.Equal(t, o.Snapshot(), rebuilt.Snapshot())
	assert.Equal(t, o.Version(), rebuilt.PersistedVersion())
	assert.False(t, rebuilt.IsNew())
	assert.True(t, rebuilt.Payment().IsPersisted())
	assert.Equal(t, StatusFailed, rebuilt.Status())
	assert.Equal(t, RequestFailed, rebuilt.Payment().Status())

	assert.False(t, o.Payment().IsPersisted())
	o.MarkPersisted()
	assert.True(t, o.Payment().IsPersisted())
	assert.Equal(t, o.Version(), o.PersistedVersion())
}
