package fetch

import (
	"math/rand"
	"time"
)

// RetryPolicy defines retry behavior for calls to the rendering service.
// The orchestrator runs its own attempt loop above this; the policy here
// only smooths over transient failures within one fetch call.
type RetryPolicy struct {
	MaxRetries           int
	BackoffBase          time.Duration
	RetryableStatusCodes []int
}

// NewRetryPolicy creates a policy with the default transient status set.
func NewRetryPolicy(maxRetries int) *RetryPolicy {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &RetryPolicy{
		MaxRetries:  maxRetries,
		BackoffBase: time.Second,
		RetryableStatusCodes: []int{
			429, // Too Many Requests
			500, // Internal Server Error
			502, // Bad Gateway
			503, // Service Unavailable
			504, // Gateway Timeout
		},
	}
}

// RetryableStatus checks if a status code is worth retrying.
func (p *RetryPolicy) RetryableStatus(statusCode int) bool {
	for _, code := range p.RetryableStatusCodes {
		if statusCode == code {
			return true
		}
	}
	return false
}

// Backoff returns the wait after failed attempt number attempt (zero-based):
// the base doubled per attempt, plus up to 300ms of jitter.
func (p *RetryPolicy) Backoff(attempt int) time.Duration {
	backoff := p.BackoffBase << uint(attempt)
	jitter := time.Duration(rand.Int63n(int64(300 * time.Millisecond)))
	return backoff + jitter
}
