package monitor

import (
	"context"
	"math"

	"github.com/tphakala/healthmon/internal/logger"
)

const (
	// DefaultProcessingTime is assumed when no job completed in the last 24h
	DefaultProcessingTime = 300.0
	// FallbackQueueWait is returned when the job store cannot be read
	FallbackQueueWait = 300
	// DefaultMaxConcurrent is the assumed number of worker slots
	DefaultMaxConcurrent = 3

	queueWaitSafetyFactor = 1.2
)

// PerformancePredictor estimates how long a newly queued job will wait
type PerformancePredictor struct {
	jobs          JobStore
	maxConcurrent int
	log           logger.Logger
}

// NewPerformancePredictor creates a predictor for a pool of maxConcurrent workers
func NewPerformancePredictor(jobs JobStore, maxConcurrent int) *PerformancePredictor {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	return &PerformancePredictor{
		jobs:          jobs,
		maxConcurrent: maxConcurrent,
		log:           GetLogger().Module("predictor"),
	}
}

// PredictQueueWait returns the predicted wait in seconds. Any job store
// error yields FallbackQueueWait.
func (p *PerformancePredictor) PredictQueueWait(ctx context.Context) int {
	queued, err := p.jobs.CountByStatus(ctx, TaskQueued)
	if err != nil {
		p.log.Warn("queue wait prediction fell back to default", logger.Error(err))
		return FallbackQueueWait
	}
	running, err := p.jobs.CountByStatus(ctx, TaskRunning)
	if err != nil {
		p.log.Warn("queue wait prediction fell back to default", logger.Error(err))
		return FallbackQueueWait
	}
	avg, ok, err := p.jobs.AverageProcessingTime(ctx, 24)
	if err != nil {
		p.log.Warn("queue wait prediction fell back to default", logger.Error(err))
		return FallbackQueueWait
	}
	if !ok || avg <= 0 {
		avg = DefaultProcessingTime
	}

	return EstimateQueueWait(queued, running, p.maxConcurrent, avg)
}

// EstimateQueueWait computes the wait for queued jobs given running jobs,
// the worker pool size and the mean processing time in seconds. With no
// free slot the wait is one processing time. The estimate includes a 20%
// safety margin and is truncated to whole seconds.
func EstimateQueueWait(queued, running, maxConcurrent int, avgProcessingTime float64) int {
	if avgProcessingTime <= 0 {
		avgProcessingTime = DefaultProcessingTime
	}
	if queued < 0 {
		queued = 0
	}

	var wait float64
	capacity := maxConcurrent - running
	if capacity <= 0 {
		wait = avgProcessingTime
	} else {
		rate := float64(capacity) / avgProcessingTime
		wait = float64(queued) / rate
	}

	// epsilon keeps 60*1.2 from truncating to 71
	return int(math.Floor(wait*queueWaitSafetyFactor + 1e-9))
}
