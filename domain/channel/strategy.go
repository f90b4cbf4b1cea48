// Package channel defines the outbound channel capability that activities
// dispatch to, and a registry resolving a strategy from its tag.
package channel

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"paytx/domain/shared"
)

// Tag identifies a strategy: a payment channel code or a notifier kind.
type Tag string

const (
	// TagNotify is the strategy delivering result notifications to source systems.
	TagNotify Tag = "notify"
)

// Request is what an activity hands to a strategy.
type Request struct {
	RequestID   string
	OrderNo     string
	Kind        string
	Endpoint    string
	Payload     []byte
	Idempotency string
}

// Response is the channel's answer. A nil error with a malformed Response
// (no trace id on success) is treated like a transport failure.
type Response struct {
	Success      bool   `json:"success"`
	TraceID      string `json:"trace_id"`
	ErrorCode    string `json:"error_code"`
	ErrorMessage string `json:"error_message"`
	Raw          []byte `json:"-"`
}

// WellFormed reports whether the response can drive a state transition.
func (r *Response) WellFormed() bool {
	if r == nil {
		return false
	}
	if r.Success {
		return r.TraceID != ""
	}
	return r.ErrorCode != "" || r.ErrorMessage != ""
}

// Strategy executes one kind of channel call. Any returned error is a
// transport failure and is recoverable.
type Strategy interface {
	Identify() Tag
	Execute(ctx context.Context, req Request) (*Response, error)
}

// Registry maps tags to strategies.
type Registry struct {
	mu         sync.RWMutex
	strategies map[Tag]Strategy
}

func NewRegistry(strategies ...Strategy) *Registry {
	r := &Registry{strategies: make(map[Tag]Strategy, len(strategies))}
	for _, s := range strategies {
		r.Register(s)
	}
	return r
}

// Register adds or replaces the strategy for its tag.
func (r *Registry) Register(s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[s.Identify()] = s
}

// Resolve returns the strategy for tag, or a validation error when none is registered.
func (r *Registry) Resolve(tag Tag) (Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.strategies[tag]
	if !ok {
		return nil, shared.NewValidationError("channel", "tag", fmt.Sprintf("no strategy registered for %q", tag))
	}
	return s, nil
}

// Tags lists registered tags in sorted order.
func (r *Registry) Tags() []Tag {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tags := make([]Tag, 0, len(r.strategies))
	for t := range r.strategies {
		tags = append(tags, t)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	return tags
}
