package gateway

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	"paytx/domain/channel"
)

// Simulated answers every request locally: after an optional delay it fails
// with the configured probability, otherwise it succeeds with a fresh trace id.
type Simulated struct {
	tag         channel.Tag
	latency     time.Duration
	failureRate float64
}

func NewSimulated(tag channel.Tag, latency time.Duration, failureRate float64) *Simulated {
	return &Simulated{tag: tag, latency: latency, failureRate: failureRate}
}

func (s *Simulated) Identify() channel.Tag { return s.tag }

func (s *Simulated) Execute(ctx context.Context, req channel.Request) (*channel.Response, error) {
	if s.latency > 0 {
		timer := time.NewTimer(s.latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	resp := &channel.Response{Success: true, TraceID: "SIM-" + uuid.NewString()}
	if s.failureRate > 0 && rand.Float64() < s.failureRate {
		resp = &channel.Response{Success: false, ErrorCode: "SIMULATED_DECLINE", ErrorMessage: "declined by simulated channel"}
	}
	raw, err := sonic.Marshal(resp)
	if err != nil {
		return nil, err
	}
	resp.Raw = raw
	return resp, nil
}
