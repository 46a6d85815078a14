package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ternarybob/lotwatch/internal/models"
)

const jobSelect = `SELECT id, model, region, status, started_at, completed_at,
	target_count, success_count, fail_count, notes, created_at FROM scrape_jobs`

const taskSelect = `SELECT id, job_id, dealer_id, url, attempt, status, http_status,
	error, started_at, completed_at FROM scrape_tasks`

// CreateJob persists a new scrape job, assigning id, status, and created_at
// defaults when the caller left them zero.
func (s *Store) CreateJob(ctx context.Context, job *models.ScrapeJob) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.Status == "" {
		job.Status = models.JobStatusPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO scrape_jobs (id, model, region, status, started_at, target_count,
			success_count, fail_count, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		job.ID, job.Model, job.Region, job.Status, job.StartedAt, job.TargetCount,
		job.SuccessCount, job.FailCount, job.Notes, job.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create job %s: %w", job.ID, err)
	}
	return nil
}

// GetJob returns one job, or (nil, nil) when the id is unknown.
func (s *Store) GetJob(ctx context.Context, id uuid.UUID) (*models.ScrapeJob, error) {
	job, err := scanJob(s.pool.QueryRow(ctx, jobSelect+` WHERE id = $1`, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job %s: %w", id, err)
	}
	return job, nil
}

// ListJobs returns the most recent jobs, newest first.
func (s *Store) ListJobs(ctx context.Context, limit int) ([]*models.ScrapeJob, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx, jobSelect+` ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.ScrapeJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// CloseJob records the terminal status and counters for a finished job.
func (s *Store) CloseJob(ctx context.Context, id uuid.UUID, status string, successCount, failCount int, completedAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE scrape_jobs
		SET status = $2, success_count = $3, fail_count = $4, completed_at = $5
		WHERE id = $1`,
		id, status, successCount, failCount, completedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to close job %s: %w", id, err)
	}
	return nil
}

// CreateTask inserts a per-dealer task row and writes the generated id back
// onto the task.
func (s *Store) CreateTask(ctx context.Context, task *models.ScrapeTask) error {
	if task.Status == "" {
		task.Status = models.TaskStatusPending
	}
	if task.Attempt == 0 {
		task.Attempt = 1
	}

	err := s.pool.QueryRow(ctx, `
		INSERT INTO scrape_tasks (job_id, dealer_id, url, attempt, status, http_status,
			error, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		task.JobID, task.DealerID, task.URL, task.Attempt, task.Status, task.HTTPStatus,
		task.Error, task.StartedAt, task.CompletedAt,
	).Scan(&task.ID)
	if err != nil {
		return fmt.Errorf("failed to create task for dealer %d: %w", task.DealerID, err)
	}
	return nil
}

// UpdateTask overwrites the mutable fields of a task row.
func (s *Store) UpdateTask(ctx context.Context, task *models.ScrapeTask) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE scrape_tasks
		SET url = $2, attempt = $3, status = $4, http_status = $5, error = $6,
			started_at = $7, completed_at = $8
		WHERE id = $1`,
		task.ID, task.URL, task.Attempt, task.Status, task.HTTPStatus, task.Error,
		task.StartedAt, task.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update task %d: %w", task.ID, err)
	}
	return nil
}

// ListTasks returns a job's tasks in creation order.
func (s *Store) ListTasks(ctx context.Context, jobID uuid.UUID) ([]*models.ScrapeTask, error) {
	rows, err := s.pool.Query(ctx, taskSelect+` WHERE job_id = $1 ORDER BY id`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks for job %s: %w", jobID, err)
	}
	defer rows.Close()

	var tasks []*models.ScrapeTask
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

func scanJob(row pgx.Row) (*models.ScrapeJob, error) {
	var j models.ScrapeJob
	err := row.Scan(&j.ID, &j.Model, &j.Region, &j.Status, &j.StartedAt, &j.CompletedAt,
		&j.TargetCount, &j.SuccessCount, &j.FailCount, &j.Notes, &j.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func scanTask(row pgx.Row) (*models.ScrapeTask, error) {
	var t models.ScrapeTask
	err := row.Scan(&t.ID, &t.JobID, &t.DealerID, &t.URL, &t.Attempt, &t.Status,
		&t.HTTPStatus, &t.Error, &t.StartedAt, &t.CompletedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
