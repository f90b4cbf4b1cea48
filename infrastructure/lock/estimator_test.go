package lock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEstimateElapsedSeconds(t *testing.T) {
	e := NewEstimator(60)
	cases := []struct {
		name       string
		workers    int
		tasks      int64
		throughput float64
		want       int64
	}{
		{"empty backlog", 4, 0, 5, 60},
		{"exact division", 4, 40, 5, 62},
		{"rounds up", 4, 41, 5, 63},
		{"zero workers clamp", 0, 10, 1, 70},
		{"zero throughput clamp", 2, 10, 0, 65},
		{"negative tasks clamp", 2, -5, 1, 60},
		{"fractional throughput", 1, 3, 0.5, 66},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, e.EstimateElapsedSeconds(tc.workers, tc.tasks, tc.throughput))
		})
	}
}

func TestEstimatorMonotonicity(t *testing.T) {
	e := NewEstimator(30)
	for workers := 1; workers <= 8; workers++ {
		prev := int64(-1)
		for tasks := int64(0); tasks <= 500; tasks += 7 {
			got := e.EstimateElapsedSeconds(workers, tasks, 3)
			assert.GreaterOrEqual(t, got, prev, "non-decreasing in task count")
			assert.GreaterOrEqual(t, got, e.PaddingSeconds)
			assert.LessOrEqual(t, e.EstimateElapsedSeconds(workers+1, tasks, 3), got, "non-increasing in workers")
			assert.LessOrEqual(t, e.EstimateElapsedSeconds(workers, tasks, 4), got, "non-increasing in throughput")
			prev = got
		}
	}
}

func TestEstimateTTL(t *testing.T) {
	assert.Equal(t, time.Second, NewEstimator(0).EstimateTTL(1, 0, 1))
	assert.Equal(t, 62*time.Second, NewEstimator(60).EstimateTTL(4, 40, 5))
	assert.Equal(t, int64(0), NewEstimator(-5).PaddingSeconds)
}
