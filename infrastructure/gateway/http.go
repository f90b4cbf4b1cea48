// Package gateway implements outbound channel strategies: HTTP payment
// channels guarded by a circuit breaker and a rate limiter, the HTTP
// notifier calling back source systems, and a simulated channel for
// development.
package gateway

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"paytx/domain/channel"
	"paytx/pkg/logger"
)

const maxResponseBytes = 1 << 20

// HTTPOptions tune one HTTP channel.
type HTTPOptions struct {
	Timeout          time.Duration
	Rate             float64 // requests per second; zero disables limiting
	Burst            int
	FailureThreshold int
	SuccessThreshold int
	OpenTimeout      time.Duration
}

// HTTPStrategy posts payment requests to a channel endpoint and decodes a
// channel.Response from the JSON body.
type HTTPStrategy struct {
	tag      channel.Tag
	endpoint string
	client   *http.Client
	limiter  *rate.Limiter
	breaker  *CircuitBreaker
	log      *zap.Logger
}

func NewHTTPStrategy(tag channel.Tag, endpoint string, opts HTTPOptions) *HTTPStrategy {
	limit := rate.Inf
	if opts.Rate > 0 {
		limit = rate.Limit(opts.Rate)
	}
	burst := opts.Burst
	if burst < 1 {
		burst = 1
	}
	return &HTTPStrategy{
		tag:      tag,
		endpoint: endpoint,
		client:   &http.Client{Timeout: opts.Timeout},
		limiter:  rate.NewLimiter(limit, burst),
		breaker:  NewCircuitBreaker(opts.FailureThreshold, opts.OpenTimeout, opts.SuccessThreshold),
		log:      logger.Named("gateway").With(zap.String("channel", string(tag))),
	}
}

func (s *HTTPStrategy) Identify() channel.Tag { return s.tag }

// Breaker exposes the breaker state for health reporting.
func (s *HTTPStrategy) Breaker() *CircuitBreaker { return s.breaker }

func (s *HTTPStrategy) Execute(ctx context.Context, req channel.Request) (*channel.Response, error) {
	if !s.breaker.Allow() {
		return nil, ErrCircuitOpen
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	status, body, err := post(ctx, s.client, s.endpoint, req)
	if err != nil || status >= http.StatusInternalServerError {
		s.breaker.OnFailure()
		if err == nil {
			err = fmt.Errorf("channel returned status %d", status)
		}
		s.log.Warn("channel call failed", zap.String("request_id", req.RequestID), zap.Error(err))
		return nil, err
	}
	s.breaker.OnSuccess()

	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("channel returned status %d", status)
	}
	var resp channel.Response
	if err := sonic.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode channel response: %w", err)
	}
	resp.Raw = body
	return &resp, nil
}

// post sends the payload with the request and idempotency ids as headers.
func post(ctx context.Context, client *http.Client, url string, req channel.Request) (int, []byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(req.Payload))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Request-ID", req.RequestID)
	if req.Idempotency != "" {
		httpReq.Header.Set("Idempotency-Key", req.Idempotency)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, body, nil
}
