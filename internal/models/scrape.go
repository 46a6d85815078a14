package models

import (
	"time"

	"github.com/google/uuid"
)

// Job statuses.
const (
	JobStatusPending = "pending"
	JobStatusRunning = "running"
	JobStatusSuccess = "success"
	JobStatusPartial = "partial"
	JobStatusFailed  = "failed"
)

// Task statuses.
const (
	TaskStatusPending = "pending"
	TaskStatusRunning = "running"
	TaskStatusSuccess = "success"
	TaskStatusFailed  = "failed"
)

// ScrapeJob is one fan-out of a model scrape across a dealer set.
type ScrapeJob struct {
	ID           uuid.UUID  `json:"id"`
	Model        string     `json:"model"`
	Region       string     `json:"region,omitempty"`
	Status       string     `json:"status"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	TargetCount  int        `json:"target_count"`
	SuccessCount int        `json:"success_count"`
	FailCount    int        `json:"fail_count"`
	Notes        string     `json:"notes,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// ScrapeTask is the per-dealer unit of work within a job.
type ScrapeTask struct {
	ID          int64      `json:"id"`
	JobID       uuid.UUID  `json:"job_id"`
	DealerID    int64      `json:"dealer_id"`
	URL         string     `json:"url,omitempty"`
	Attempt     int        `json:"attempt"`
	Status      string     `json:"status"`
	HTTPStatus  *int       `json:"http_status,omitempty"`
	Error       string     `json:"error,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// JobSummary is the caller-facing result of a completed job.
type JobSummary struct {
	JobID   uuid.UUID     `json:"job_id"`
	Model   string        `json:"model"`
	Region  string        `json:"region,omitempty"`
	Status  string        `json:"status"`
	Dealers int           `json:"dealers"`
	Success int           `json:"success"`
	Failed  int           `json:"failed"`
	Elapsed time.Duration `json:"elapsed_ms"`
}
