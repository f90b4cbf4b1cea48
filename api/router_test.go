package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"paytx/api/health"
	"paytx/api/job"
	apipayment "paytx/api/payment"
	"paytx/application/batch"
	payapp "paytx/application/payment"
	"paytx/config"
	"paytx/infrastructure/gateway"
	"paytx/infrastructure/lock"
	"paytx/infrastructure/persistence/mocks"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	Error     string          `json:"error"`
	Code      int             `json:"code"`
	Message   string          `json:"message"`
	RequestID string          `json:"request_id"`
}

type stubRunner struct {
	report *batch.Report
	err    error
}

func (s *stubRunner) RunJob(_ context.Context, name string) (*batch.Report, error) {
	if name != batch.JobBatchPay {
		return nil, batch.ErrUnknownJob
	}
	return s.report, s.err
}

func (s *stubRunner) Jobs() []string { return []string{batch.JobBatchPay} }

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Name: "paytx", Version: "test", Env: "test"},
		CORS: config.CORSConfig{
			AllowOrigins: []string{"*"},
			AllowMethods: []string{"GET", "POST"},
			AllowHeaders: []string{"Content-Type"},
			MaxAge:       600,
		},
	}
}

func newTestEngine(t *testing.T, cfg *config.Config, runner job.Runner, checks map[string]health.CheckFunc) *gin.Engine {
	t.Helper()
	svc, err := payapp.NewService(payapp.Deps{
		Repo:     mocks.NewMockPaymentRepository(),
		Locks:    lock.NewService(lock.NewLocalBackend()),
		Channels: gateway.NewRegistry(config.ChannelConfig{Simulated: true, Endpoints: map[string]string{"alipay": ""}}, config.NotifyConfig{}),
		LeaseTTL: 30 * time.Second,

		MaxPayRetries:    3,
		MaxNotifyRetries: 3,
		Env:              "test",
	})
	require.NoError(t, err)

	r := NewRouter(cfg,
		health.NewController(cfg, checks),
		apipayment.NewController(svc),
		job.NewController(runner),
	)
	r.SetupRoutes()
	return r.GetEngine()
}

func do(t *testing.T, h http.Handler, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &env)
	}
	return w, env
}

func acceptBody() map[string]string {
	return map[string]string{
		"source_code":   "HR",
		"biz_identify":  "SALARY",
		"biz_unique_no": "2026-05-0001",
		"amount":        "1250.5",
		"currency":      "CNY",
		"direction":     "CREDIT",
		"channel_code":  "alipay",
		"payee_account": "6222000011112222",
		"notify_url":    "http://hr.local/notify",
	}
}

func TestPaymentLifecycleOverHTTP(t *testing.T) {
	h := newTestEngine(t, testConfig(), &stubRunner{}, nil)

	w, env := do(t, h, http.MethodPost, "/api/v1/payments", acceptBody())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.True(t, env.Success)
	assert.NotEmpty(t, env.RequestID)
	assert.Equal(t, env.RequestID, w.Header().Get("X-Request-ID"))

	var result payapp.ResultResponse
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, "INIT", result.Order.Status)
	assert.Equal(t, "1250.50", result.Order.Amount)

	w, env = do(t, h, http.MethodPost, "/api/v1/payments", acceptBody())
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.True(t, result.Idempotent)

	key := map[string]string{"biz_identify": "SALARY", "biz_unique_no": "2026-05-0001"}
	w, env = do(t, h, http.MethodPost, "/api/v1/payments/pay", key)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.True(t, result.Success)
	assert.Equal(t, "SUCCESS", result.Order.Status)

	w, env = do(t, h, http.MethodGet, "/api/v1/payments/SALARY/2026-05-0001", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var order payapp.OrderResponse
	require.NoError(t, json.Unmarshal(env.Data, &order))
	assert.Equal(t, "SUCCESS", order.Status)
	require.Len(t, order.Requests, 2)
	assert.Equal(t, "PAYMENT", order.Requests[0].Type)
	assert.Equal(t, "SUCCESS", order.Requests[1].Status)

	w, env = do(t, h, http.MethodPost, "/api/v1/payments/callback", map[string]string{
		"biz_identify": "SALARY", "biz_unique_no": "2026-05-0001", "outcome": "FAILED",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "INVALID_ORDER_STATE", env.Error)
}

func TestPaymentErrorMapping(t *testing.T) {
	h := newTestEngine(t, testConfig(), &stubRunner{}, nil)

	w, env := do(t, h, http.MethodPost, "/api/v1/payments", map[string]string{"biz_identify": "SALARY"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "BAD_REQUEST", env.Error)

	body := acceptBody()
	body["amount"] = "-3"
	w, env = do(t, h, http.MethodPost, "/api/v1/payments", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", env.Error)

	w, env = do(t, h, http.MethodGet, "/api/v1/payments/SALARY/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "ORDER_NOT_FOUND", env.Error)

	w, env = do(t, h, http.MethodPost, "/api/v1/payments/pay", map[string]string{"biz_identify": "SALARY", "biz_unique_no": "missing"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "ORDER_NOT_FOUND", env.Error)
}

func TestJobEndpoints(t *testing.T) {
	runner := &stubRunner{
		report: &batch.Report{Job: batch.JobBatchPay, Submitted: 3, Success: 2, Failure: 1, LeaseTTL: time.Minute},
		err:    &batch.BatchError{Job: batch.JobBatchPay, Errs: []error{errors.New("item 1: boom")}},
	}
	h := newTestEngine(t, testConfig(), runner, nil)

	w, env := do(t, h, http.MethodPost, "/api/v1/jobs/batchPay/run", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var report job.ReportResponse
	require.NoError(t, json.Unmarshal(env.Data, &report))
	assert.Equal(t, 3, report.Submitted)
	assert.Equal(t, 1, report.Failure)
	assert.Equal(t, "1m0s", report.LeaseTTL)
	assert.Equal(t, []string{"item 1: boom"}, report.Errors)

	w, env = do(t, h, http.MethodPost, "/api/v1/jobs/nope/run", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", env.Error)

	runner.report, runner.err = &batch.Report{Job: batch.JobBatchPay, Skipped: true}, nil
	w, _ = do(t, h, http.MethodPost, "/api/v1/jobs/batchPay/run", nil)
	assert.Equal(t, http.StatusAccepted, w.Code)

	runner.report, runner.err = &batch.Report{Job: batch.JobBatchPay}, lock.ErrInterrupted
	w, env = do(t, h, http.MethodPost, "/api/v1/jobs/batchPay/run", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "SERVICE_UNAVAILABLE", env.Error)

	runner.err = errors.Join(lock.ErrInterrupted, &batch.BatchError{Job: batch.JobBatchPay, Errs: []error{errors.New("boom")}})
	w, env = do(t, h, http.MethodPost, "/api/v1/jobs/batchPay/run", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "SERVICE_UNAVAILABLE", env.Error)
}

func TestHealthChecks(t *testing.T) {
	healthy := newTestEngine(t, testConfig(), &stubRunner{}, map[string]health.CheckFunc{
		"database": func(context.Context) error { return nil },
	})
	w, _ := do(t, healthy, http.MethodGet, "/api/v1/health/ready", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	broken := newTestEngine(t, testConfig(), &stubRunner{}, map[string]health.CheckFunc{
		"lock": func(context.Context) error { return errors.New("redis down") },
	})
	w, _ = do(t, broken, http.MethodGet, "/api/v1/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var resp health.HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "unhealthy", resp.Checks["lock"].Status)
	assert.Equal(t, "redis down", resp.Checks["lock"].Message)

	w, _ = do(t, broken, http.MethodGet, "/api/v1/health/live", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimitAndRequestID(t *testing.T) {
	cfg := testConfig()
	cfg.Server.RateLimit = config.RateLimitConfig{Enabled: true, Rate: 0.001, Burst: 1}
	h := newTestEngine(t, cfg, &stubRunner{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health/live", nil)
	req.Header.Set("X-Request-ID", "req-42")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "req-42", w.Header().Get("X-Request-ID"))

	w, env := do(t, h, http.MethodGet, "/api/v1/health/live", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "TOO_MANY_REQUESTS", env.Error)
}
