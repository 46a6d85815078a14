package orchestrator

import (
	"context"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/ternarybob/lotwatch/internal/common"
)

// Fan-out defaults when config leaves them unset.
const (
	defaultRPMLimit   = 500
	minConcurrency    = 5
	defaultTaskTries  = 2
	defaultSourceRank = 50
)

// jobLimits bundles the two gates every task request passes through: a token
// bucket pacing calls against the fetch service and backend APIs, and a
// semaphore bounding in-flight fetches. Both are scoped to one job.
type jobLimits struct {
	bucket *rate.Limiter
	gate   *semaphore.Weighted
}

func newJobLimits(cfg common.ScrapeConfig) *jobLimits {
	rpm := cfg.RPMLimit
	if rpm <= 0 {
		rpm = defaultRPMLimit
	}
	concurrency := int64(cfg.MaxConcurrency)
	if concurrency < minConcurrency {
		concurrency = minConcurrency
	}
	return &jobLimits{
		bucket: rate.NewLimiter(rate.Limit(float64(rpm)/60.0), rpm),
		gate:   semaphore.NewWeighted(concurrency),
	}
}

// acquireToken blocks until the bucket grants one request, or ctx ends.
func (l *jobLimits) acquireToken(ctx context.Context) error {
	return l.bucket.WaitN(ctx, 1)
}

// enter claims a concurrency slot; leave releases it.
func (l *jobLimits) enter(ctx context.Context) error {
	return l.gate.Acquire(ctx, 1)
}

func (l *jobLimits) leave() {
	l.gate.Release(1)
}
