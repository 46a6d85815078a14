package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/lotwatch/internal/common"
	"github.com/ternarybob/lotwatch/internal/interfaces"
	"github.com/ternarybob/lotwatch/internal/models"
	"github.com/ternarybob/lotwatch/internal/parsers"
)

// Service runs scrape jobs: one task per dealer, fanned out under shared rate
// and concurrency gates, gathered into a persisted job record.
type Service struct {
	store    interfaces.JobStorage
	dealers  interfaces.DealerStorage
	fetch    interfaces.FetchService
	ingest   interfaces.IngestService
	blobs    interfaces.BlobStorage
	events   interfaces.EventService
	registry *parsers.ModelRegistry
	config   common.ScrapeConfig
	api      *followupClient
	convert  *contentConverter
	logger   arbor.ILogger

	mu      sync.Mutex
	running map[uuid.UUID]context.CancelFunc
}

var _ interfaces.OrchestratorService = (*Service)(nil)

// NewService creates the scrape orchestrator. The event service may be nil
// when no subscribers exist, for example in one-shot CLI runs.
func NewService(
	store interfaces.JobStorage,
	dealerStore interfaces.DealerStorage,
	fetchService interfaces.FetchService,
	ingestService interfaces.IngestService,
	blobStore interfaces.BlobStorage,
	eventService interfaces.EventService,
	registry *parsers.ModelRegistry,
	config common.ScrapeConfig,
	logger arbor.ILogger,
) interfaces.OrchestratorService {
	return &Service{
		store:    store,
		dealers:  dealerStore,
		fetch:    fetchService,
		ingest:   ingestService,
		blobs:    blobStore,
		events:   eventService,
		registry: registry,
		config:   config,
		api:      newFollowupClient(config, logger),
		convert:  &contentConverter{logger: logger},
		logger:   logger,
		running:  make(map[uuid.UUID]context.CancelFunc),
	}
}

// RunJob scrapes the given dealers for one model and blocks until the job
// closes.
func (s *Service) RunJob(ctx context.Context, dealers []*models.Dealer, model string) (*models.JobSummary, error) {
	return s.runJob(ctx, dealers, model, "")
}

// RunModelJob loads active dealers, optionally narrowed by region, and runs
// a job over them.
func (s *Service) RunModelJob(ctx context.Context, model, region string) (*models.JobSummary, error) {
	dealers, err := s.dealers.ListDealers(ctx, interfaces.DealerFilter{Region: region, ActiveOnly: true})
	if err != nil {
		return nil, fmt.Errorf("failed to list dealers: %w", err)
	}
	return s.runJob(ctx, dealers, model, region)
}

// StartJob creates the job record for the given dealers and runs it in the
// background, returning as soon as the row exists. Callers follow the job
// through storage or the event stream.
func (s *Service) StartJob(ctx context.Context, dealers []*models.Dealer, model string) (*models.ScrapeJob, error) {
	return s.startJob(ctx, dealers, model, "")
}

// StartModelJob resolves active dealers, optionally narrowed by region, and
// starts a detached job over them.
func (s *Service) StartModelJob(ctx context.Context, model, region string) (*models.ScrapeJob, error) {
	dealers, err := s.dealers.ListDealers(ctx, interfaces.DealerFilter{Region: region, ActiveOnly: true})
	if err != nil {
		return nil, fmt.Errorf("failed to list dealers: %w", err)
	}
	return s.startJob(ctx, dealers, model, region)
}

// CancelJob signals a running job to stop. Its tasks fail at their next
// suspension point.
func (s *Service) CancelJob(id uuid.UUID) bool {
	s.mu.Lock()
	cancel, ok := s.running[id]
	s.mu.Unlock()
	if !ok {
		return false
	}
	cancel()
	s.logger.Info().
		Str("job_id", id.String()).
		Msg("Job cancellation requested")
	return true
}

func (s *Service) runJob(ctx context.Context, dealers []*models.Dealer, model, region string) (*models.JobSummary, error) {
	job, err := s.openJob(ctx, dealers, model, region)
	if err != nil {
		return nil, err
	}
	return s.executeJob(ctx, job, dealers), nil
}

func (s *Service) startJob(ctx context.Context, dealers []*models.Dealer, model, region string) (*models.ScrapeJob, error) {
	job, err := s.openJob(ctx, dealers, model, region)
	if err != nil {
		return nil, err
	}

	// The job must outlive the request that started it.
	go s.executeJob(context.WithoutCancel(ctx), job, dealers)

	return job, nil
}

// ErrNoDealers is returned when a job resolves to an empty dealer set.
var ErrNoDealers = errors.New("no dealers to scrape")

// openJob persists the job record for a dealer set.
func (s *Service) openJob(ctx context.Context, dealers []*models.Dealer, model, region string) (*models.ScrapeJob, error) {
	if len(dealers) == 0 {
		return nil, fmt.Errorf("%w for model %s", ErrNoDealers, model)
	}

	startedAt := time.Now().UTC()
	job := &models.ScrapeJob{
		ID:          uuid.New(),
		Model:       model,
		Region:      region,
		Status:      models.JobStatusRunning,
		StartedAt:   &startedAt,
		TargetCount: len(dealers),
		CreatedAt:   startedAt,
	}
	if err := s.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}
	return job, nil
}

// executeJob fans tasks out and closes the job. Task problems never fail the
// run; they land in the job counters.
func (s *Service) executeJob(ctx context.Context, job *models.ScrapeJob, dealers []*models.Dealer) *models.JobSummary {
	model := job.Model

	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.track(job.ID, cancel)
	defer s.untrack(job.ID)

	s.logger.Info().
		Str("job_id", job.ID.String()).
		Str("model", model).
		Int("dealers", len(dealers)).
		Msg("Scrape job started")
	s.publish(ctx, models.EventJobStarted, map[string]any{
		"job_id":  job.ID.String(),
		"model":   model,
		"dealers": len(dealers),
	})

	limits := newJobLimits(s.config)
	outcomes := make(chan bool, len(dealers))
	var wg sync.WaitGroup
	buildFailures := 0

	for _, dealer := range dealers {
		task := &models.ScrapeTask{
			JobID:    job.ID,
			DealerID: dealer.ID,
			Status:   models.TaskStatusPending,
			Attempt:  1,
		}

		pageURL, err := parsers.BuildInventoryURL(dealer, model, s.registry)
		if err != nil {
			// Nothing to fetch; record the failure without fanning out.
			now := time.Now().UTC()
			task.Status = models.TaskStatusFailed
			task.Error = err.Error()
			task.StartedAt = &now
			task.CompletedAt = &now
			if createErr := s.store.CreateTask(ctx, task); createErr != nil {
				s.logger.Warn().
					Err(createErr).
					Int64("dealer_id", dealer.ID).
					Msg("Failed to persist task")
			}
			s.logger.Warn().
				Err(err).
				Int64("dealer_id", dealer.ID).
				Str("model", model).
				Msg("Inventory URL build failed, dealer skipped")
			buildFailures++
			continue
		}

		task.URL = pageURL
		if err := s.store.CreateTask(ctx, task); err != nil {
			s.logger.Error().
				Err(err).
				Int64("dealer_id", dealer.ID).
				Msg("Failed to persist task")
			buildFailures++
			continue
		}

		wg.Add(1)
		go func(dealer *models.Dealer, task *models.ScrapeTask) {
			defer wg.Done()
			ok := s.runTask(jobCtx, limits, job, dealer, task)
			if ok {
				if err := s.dealers.TouchLastScraped(jobCtx, dealer.ID, time.Now().UTC()); err != nil {
					s.logger.Warn().
						Err(err).
						Int64("dealer_id", dealer.ID).
						Msg("Failed to record scrape time")
				}
			}
			outcomes <- ok
		}(dealer, task)
	}

	wg.Wait()
	close(outcomes)

	success := 0
	failed := buildFailures
	for ok := range outcomes {
		if ok {
			success++
		} else {
			failed++
		}
	}

	status := models.JobStatusSuccess
	switch {
	case failed == 0:
	case success > 0:
		status = models.JobStatusPartial
	default:
		status = models.JobStatusFailed
	}

	completedAt := time.Now().UTC()
	// Close the job even when the caller's context is gone; a cancelled job
	// still needs its terminal state recorded.
	closeCtx := context.WithoutCancel(ctx)
	if err := s.store.CloseJob(closeCtx, job.ID, status, success, failed, completedAt); err != nil {
		s.logger.Error().
			Err(err).
			Str("job_id", job.ID.String()).
			Msg("Failed to close job")
	}

	elapsed := completedAt.Sub(job.CreatedAt)
	s.logger.Info().
		Str("job_id", job.ID.String()).
		Str("status", status).
		Int("success", success).
		Int("failed", failed).
		Str("elapsed", elapsed.String()).
		Msg("Scrape job finished")
	s.publish(closeCtx, models.EventJobCompleted, map[string]any{
		"job_id":     job.ID.String(),
		"status":     status,
		"success":    success,
		"failed":     failed,
		"elapsed_ms": elapsed.Milliseconds(),
	})

	return &models.JobSummary{
		JobID:   job.ID,
		Model:   model,
		Region:  job.Region,
		Status:  status,
		Dealers: len(dealers),
		Success: success,
		Failed:  failed,
		Elapsed: elapsed,
	}
}

func (s *Service) track(id uuid.UUID, cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running[id] = cancel
}

func (s *Service) untrack(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, id)
}

// publish sends an event when an event service is wired, logging delivery
// failures instead of surfacing them into the scrape path.
func (s *Service) publish(ctx context.Context, eventType models.EventType, payload map[string]any) {
	if s.events == nil {
		return
	}
	event := models.Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Warn().
			Err(err).
			Str("event_type", string(eventType)).
			Msg("Failed to publish event")
	}
}

// updateTask persists task state, logging rather than failing the scrape
// flow when the write itself errors.
func (s *Service) updateTask(ctx context.Context, task *models.ScrapeTask) {
	if err := s.store.UpdateTask(ctx, task); err != nil {
		s.logger.Warn().
			Err(err).
			Int64("task_id", task.ID).
			Msg("Failed to update task")
	}
}

func (s *Service) completeTask(ctx context.Context, task *models.ScrapeTask) {
	now := time.Now().UTC()
	task.Status = models.TaskStatusSuccess
	task.Error = ""
	task.CompletedAt = &now
	s.updateTask(ctx, task)
	s.publish(ctx, models.EventTaskComplete, map[string]any{
		"job_id":    task.JobID.String(),
		"dealer_id": task.DealerID,
		"status":    task.Status,
	})
}

func (s *Service) failTask(ctx context.Context, task *models.ScrapeTask, message string) {
	now := time.Now().UTC()
	task.Status = models.TaskStatusFailed
	task.Error = message
	task.CompletedAt = &now
	s.updateTask(ctx, task)
	s.logger.Warn().
		Int64("dealer_id", task.DealerID).
		Str("error", message).
		Msg("Scrape task failed")
	s.publish(ctx, models.EventTaskComplete, map[string]any{
		"job_id":    task.JobID.String(),
		"dealer_id": task.DealerID,
		"status":    task.Status,
		"error":     message,
	})
}
