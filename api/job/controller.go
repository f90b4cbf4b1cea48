// Package job exposes manual batch job triggers.
package job

import (
	"context"
	"time"

	"paytx/api/ctxutil"
	"paytx/api/response"
	"paytx/application/batch"

	"github.com/gin-gonic/gin"
)

// Runner is the orchestrator surface the controller needs.
type Runner interface {
	RunJob(ctx context.Context, name string) (*batch.Report, error)
	Jobs() []string
}

// Controller triggers batch jobs on demand.
type Controller struct {
	runner Runner
}

func NewController(runner Runner) *Controller {
	return &Controller{runner: runner}
}

func (c *Controller) RegisterRoutes(router *gin.RouterGroup) {
	group := router.Group("/jobs")
	{
		group.GET("", c.List)
		group.POST("/:name/run", c.Run)
	}
}

// ReportResponse is the JSON view of batch.Report.
type ReportResponse struct {
	Job        string   `json:"job"`
	Skipped    bool     `json:"skipped"`
	Backlog    int64    `json:"backlog"`
	LeaseTTL   string   `json:"lease_ttl"`
	Pages      int      `json:"pages"`
	Submitted  int      `json:"submitted"`
	Success    int      `json:"success"`
	Failure    int      `json:"failure"`
	Idempotent int      `json:"idempotent"`
	Elapsed    string   `json:"elapsed"`
	Errors     []string `json:"errors,omitempty"`
}

func toReportResponse(r *batch.Report, batchErr *batch.BatchError) *ReportResponse {
	resp := &ReportResponse{
		Job:        r.Job,
		Skipped:    r.Skipped,
		Backlog:    r.Backlog,
		LeaseTTL:   r.LeaseTTL.String(),
		Pages:      r.Pages,
		Submitted:  r.Submitted,
		Success:    r.Success,
		Failure:    r.Failure,
		Idempotent: r.Idempotent,
		Elapsed:    r.Elapsed.Round(time.Millisecond).String(),
	}
	if batchErr != nil {
		for _, err := range batchErr.Errs {
			resp.Errors = append(resp.Errors, err.Error())
		}
	}
	return resp
}

// List GET /api/v1/jobs
func (c *Controller) List(ctx *gin.Context) {
	response.HandleSuccess(ctx, c.runner.Jobs(), "registered jobs")
}

// Run POST /api/v1/jobs/:name/run. Item failures still return the report;
// only a run that could not complete is an error response.
func (c *Controller) Run(ctx *gin.Context) {
	report, err := c.runner.RunJob(ctxutil.RequestContext(ctx), ctx.Param("name"))

	// A bare *BatchError means every page drained; anything wrapping it did not.
	batchErr, drained := err.(*batch.BatchError)
	if err != nil && !drained {
		response.HandleAppError(ctx, err)
		return
	}
	if report.Skipped {
		response.HandleAccepted(ctx, toReportResponse(report, nil), "job already running elsewhere")
		return
	}
	response.HandleSuccess(ctx, toReportResponse(report, batchErr), "job finished")
}
