package lock

import (
	"math"
	"time"
)

// Estimator sizes the lease of a batch job from its backlog.
type Estimator struct {
	PaddingSeconds int64
}

func NewEstimator(paddingSeconds int64) Estimator {
	if paddingSeconds < 0 {
		paddingSeconds = 0
	}
	return Estimator{PaddingSeconds: paddingSeconds}
}

// EstimateElapsedSeconds returns ceil(tasks / (workers * throughput)) plus
// padding. Workers below one and non-positive throughput count as one;
// negative task counts as zero.
func (e Estimator) EstimateElapsedSeconds(workers int, approxTasks int64, perWorkerThroughput float64) int64 {
	if workers < 1 {
		workers = 1
	}
	if perWorkerThroughput <= 0 || math.IsNaN(perWorkerThroughput) {
		perWorkerThroughput = 1
	}
	if approxTasks < 0 {
		approxTasks = 0
	}
	capacity := float64(workers) * perWorkerThroughput
	return int64(math.Ceil(float64(approxTasks)/capacity)) + e.PaddingSeconds
}

// EstimateTTL is EstimateElapsedSeconds as a lease TTL of at least one second.
func (e Estimator) EstimateTTL(workers int, approxTasks int64, perWorkerThroughput float64) time.Duration {
	secs := e.EstimateElapsedSeconds(workers, approxTasks, perWorkerThroughput)
	if secs < 1 {
		secs = 1
	}
	return time.Duration(secs) * time.Second
}
