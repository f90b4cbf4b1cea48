package txn

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"paytx/domain/payment"
	"paytx/domain/shared"
	"paytx/infrastructure/lock"
	"paytx/pkg/logger"
)

// KeyFunc extracts the idempotency key parts of a command.
type KeyFunc[C any] func(cmd C) (bizIdentify, bizUniqueNo string)

// ProbeFunc loads state for the invocation (typically tc.SetOrder) and
// reports whether the command's effect is already in place. A probe that
// calls tc.MarkRetryable short-circuits with Success=false.
type ProbeFunc[C any] func(ctx context.Context, tc *Context[C]) (bool, error)

// HookFunc runs before the activities or after the invocation.
type HookFunc[C any] func(ctx context.Context, tc *Context[C]) error

// HandlerConfig describes one command pipeline.
type HandlerConfig[C any] struct {
	Name       string
	Locks      *lock.Service
	LeaseTTL   time.Duration
	Key        KeyFunc[C]
	Probe      ProbeFunc[C]
	Before     HookFunc[C]
	After      HookFunc[C]
	Activities []Activity[C]
}

// Handler executes one command type.
type Handler[C any] struct {
	cfg HandlerConfig[C]
	log *zap.Logger
}

func NewHandler[C any](cfg HandlerConfig[C]) (*Handler[C], error) {
	if cfg.Name == "" {
		return nil, errors.New("handler name is required")
	}
	if cfg.Locks == nil {
		return nil, fmt.Errorf("handler %s: lock service is required", cfg.Name)
	}
	if cfg.LeaseTTL <= 0 {
		return nil, fmt.Errorf("handler %s: %w", cfg.Name, lock.ErrInvalidTTL)
	}
	if cfg.Key == nil || cfg.Probe == nil {
		return nil, fmt.Errorf("handler %s: key and probe functions are required", cfg.Name)
	}
	if len(cfg.Activities) == 0 {
		return nil, fmt.Errorf("handler %s: at least one activity is required", cfg.Name)
	}
	seen := make(map[string]bool, len(cfg.Activities))
	for _, a := range cfg.Activities {
		if seen[a.Name()] {
			return nil, fmt.Errorf("handler %s: duplicate activity %s", cfg.Name, a.Name())
		}
		seen[a.Name()] = true
	}
	return &Handler[C]{cfg: cfg, log: logger.Named("pipeline").With(zap.String("handler", cfg.Name))}, nil
}

func (h *Handler[C]) Name() string { return h.cfg.Name }

// ExecOption adjusts a single invocation.
type ExecOption func(*execOptions)

type execOptions struct {
	completed []string
}

// WithCompleted seeds completion flags so a resumed invocation starts at
// the first activity not listed.
func WithCompleted(names ...string) ExecOption {
	return func(o *execOptions) {
		o.completed = append(o.completed, names...)
	}
}

// IdempotencyKey builds the lease name shared by every command on one order.
// Both parts are trimmed; the identify part is length-prefixed so a colon in
// either part cannot make two keys collide.
func IdempotencyKey(bizIdentify, bizUniqueNo string) string {
	return payment.BizKey(strings.TrimSpace(bizIdentify), strings.TrimSpace(bizUniqueNo))
}

// Execute runs cmd under the lease of its idempotency key.
func (h *Handler[C]) Execute(ctx context.Context, cmd C, opts ...ExecOption) (*Model, error) {
	bizIdentify, bizUniqueNo := h.cfg.Key(cmd)
	if strings.TrimSpace(bizIdentify) == "" || strings.TrimSpace(bizUniqueNo) == "" {
		return nil, shared.NewValidationError("command", "idempotency_key",
			h.cfg.Name+": business identify and unique number must not be blank")
	}
	key := IdempotencyKey(bizIdentify, bizUniqueNo)

	var o execOptions
	for _, opt := range opts {
		opt(&o)
	}

	log := h.log.With(zap.String("key", key))
	log.Debug("locking")
	return lock.CallInterruptibly(ctx, h.cfg.Locks, key, h.cfg.LeaseTTL, func(ctx context.Context) (*Model, error) {
		return h.run(ctx, log, cmd, o)
	})
}

func (h *Handler[C]) run(ctx context.Context, log *zap.Logger, cmd C, o execOptions) (model *Model, err error) {
	tc := newContext(cmd)
	defer tc.Clear()
	for _, name := range o.completed {
		tc.SetComplete(name, true)
	}

	defer func() {
		if h.cfg.After != nil {
			if afterErr := h.cfg.After(ctx, tc); afterErr != nil && err == nil {
				model, err = nil, afterErr
			}
		}
		log.Debug("finalized", zap.Error(err))
	}()

	log.Debug("initializing")
	reflected, err := h.cfg.Probe(ctx, tc)
	if err != nil {
		return nil, err
	}
	if reflected {
		tc.handlerComplete = true
		tc.model.Idempotent = true
		tc.model.Success = !tc.retryable
		log.Debug("command already applied")
		return tc.model, nil
	}

	log.Debug("executing")
	if h.cfg.Before != nil {
		if err := h.cfg.Before(ctx, tc); err != nil {
			return nil, err
		}
	}
	for _, a := range h.cfg.Activities {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := RunActivity(ctx, a, tc); err != nil {
			return nil, fmt.Errorf("%s/%s: %w", h.cfg.Name, a.Name(), err)
		}
	}
	tc.model.Success = !tc.retryable
	return tc.model, nil
}
