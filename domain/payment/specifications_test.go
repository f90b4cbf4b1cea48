package payment

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnpaidSpec(t *testing.T) {
	ctx := context.Background()
	o := newTestOrder(t)
	item := BacklogItem{Order: o, Request: o.Payment()}

	assert.True(t, UnpaidSpec(t0).IsSatisfiedBy(ctx, item))
	assert.False(t, UnpaidSpec(t0.Add(-time.Second)).IsSatisfiedBy(ctx, item), "not yet due")

	require.NoError(t, o.BeginPayment("", t0))
	require.NoError(t, o.RecordPaymentError("CHANNEL_ERROR", "timeout", t0.Add(time.Minute), t0))
	assert.False(t, UnpaidSpec(t0).IsSatisfiedBy(ctx, item))
	assert.True(t, UnpaidSpec(t0.Add(time.Minute)).IsSatisfiedBy(ctx, item))

	require.NoError(t, o.ParkPayment("CHANNEL_ERROR", "timeout", t0))
	assert.False(t, o.IsTerminal())
	assert.False(t, UnpaidSpec(t0.Add(time.Hour)).IsSatisfiedBy(ctx, item))

	assert.False(t, UnpaidSpec(t0).IsSatisfiedBy(ctx, "not an item"))
}

func TestUnsentSpec(t *testing.T) {
	ctx := context.Background()
	o := newTestOrder(t)
	n, err := o.AddNotification(RequestNotify, t0)
	require.NoError(t, err)

	assert.True(t, UnsentSpec(t0).IsSatisfiedBy(ctx, BacklogItem{Order: o, Request: n}))
	assert.False(t, UnsentSpec(t0).IsSatisfiedBy(ctx, BacklogItem{Order: o, Request: o.Payment()}), "payment requests are not notifications")

	require.NoError(t, o.BeginNotification(n, "{}", t0))
	o.CompleteNotification(n, "ok", t0)
	assert.False(t, UnsentSpec(t0).IsSatisfiedBy(ctx, BacklogItem{Order: o, Request: n}))
}
