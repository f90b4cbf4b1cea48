// Package txn runs transaction commands through a lease-guarded pipeline of
// domain activities.
//
// A Handler serializes every invocation sharing one idempotency key, probes
// whether the command's effect is already in place (handler-level
// idempotency), then runs its activities in order. Each activity can also
// short-circuit on its own (activity-level idempotency), so an invocation
// resumed after a partial failure only redoes what is missing.
package txn

import (
	"paytx/domain/payment"
)

// Model is the result of one pipeline invocation.
type Model struct {
	Order      *payment.Order
	Success    bool // false when a recoverable failure asks for a later re-drive
	Idempotent bool // true when the command had already taken effect
}

type slot struct {
	complete bool
	request  any
	response any
}

// Context is the per-invocation state shared by the handler and its
// activities. It is owned by a single invocation and cleared on exit.
type Context[C any] struct {
	request         C
	model           *Model
	slots           map[string]*slot
	handlerComplete bool
	retryable       bool
}

func newContext[C any](cmd C) *Context[C] {
	return &Context[C]{
		request: cmd,
		model:   &Model{},
		slots:   make(map[string]*slot),
	}
}

// NewContext builds a detached context, for driving a single activity in tests
// or tools.
func NewContext[C any](cmd C) *Context[C] {
	return newContext(cmd)
}

func (c *Context[C]) Request() C { return c.request }

func (c *Context[C]) Model() *Model { return c.model }

// Order is the aggregate loaded or created by this invocation, if any.
func (c *Context[C]) Order() *payment.Order {
	if c.model == nil {
		return nil
	}
	return c.model.Order
}

func (c *Context[C]) SetOrder(o *payment.Order) {
	c.model.Order = o
}

func (c *Context[C]) slot(name string) *slot {
	s, ok := c.slots[name]
	if !ok {
		s = &slot{}
		c.slots[name] = s
	}
	return s
}

// Completed reports whether the named activity has nothing left to do.
func (c *Context[C]) Completed(name string) bool {
	if s, ok := c.slots[name]; ok {
		return s.complete
	}
	return false
}

// SetComplete sets the completion flag of any activity, including downstream ones.
func (c *Context[C]) SetComplete(name string, complete bool) {
	c.slot(name).complete = complete
}

func (c *Context[C]) SetActivityRequest(name string, v any) { c.slot(name).request = v }

func (c *Context[C]) ActivityRequest(name string) any { return c.slot(name).request }

func (c *Context[C]) SetActivityResponse(name string, v any) { c.slot(name).response = v }

func (c *Context[C]) ActivityResponse(name string) any { return c.slot(name).response }

// MarkRetryable records a recoverable failure; the invocation then reports
// Success=false so the batch layer counts it and re-drives later.
func (c *Context[C]) MarkRetryable() { c.retryable = true }

func (c *Context[C]) Retryable() bool { return c.retryable }

func (c *Context[C]) HandlerComplete() bool { return c.handlerComplete }

// Clear drops every reference held by the context.
func (c *Context[C]) Clear() {
	var zero C
	c.request = zero
	c.model = nil
	c.slots = nil
	c.handlerComplete = false
	c.retryable = false
}

// Cleared reports whether Clear has run.
func (c *Context[C]) Cleared() bool {
	return c.slots == nil
}
