package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/lotwatch/internal/common"
	"github.com/ternarybob/lotwatch/internal/interfaces"
)

// defaultSchedule mirrors the config default: a sweep every six hours.
const defaultSchedule = "0 0 */6 * * *"

// Service runs recurring inventory sweeps on a cron schedule. Each tick
// scrapes the configured models one after another so a sweep never holds more
// than one job's worth of fetch capacity.
type Service struct {
	orchestrator interfaces.OrchestratorService
	config       common.SchedulerConfig
	cron         *cron.Cron
	logger       arbor.ILogger

	mu      sync.Mutex // protects running and cancel
	running bool
	cancel  context.CancelFunc

	sweepMu  sync.Mutex // protects sweeping
	sweeping bool
}

var _ interfaces.SchedulerService = (*Service)(nil)

// NewService creates a scheduler that triggers model scrape jobs through the
// orchestrator on the configured cron schedule.
func NewService(orchestrator interfaces.OrchestratorService, config common.SchedulerConfig, logger arbor.ILogger) interfaces.SchedulerService {
	// Accept both 5-field and 6-field (seconds) expressions, matching what
	// common.ValidateSchedule allows.
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	return &Service{
		orchestrator: orchestrator,
		config:       config,
		cron:         cron.New(cron.WithParser(parser)),
		logger:       logger,
	}
}

// Start registers the sweep with the cron runner. The context bounds every
// sweep the scheduler triggers; cancelling it unwinds in-flight jobs.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running")
	}

	schedule := s.config.Schedule
	if schedule == "" {
		schedule = defaultSchedule
	}
	if err := common.ValidateSchedule(schedule); err != nil {
		return fmt.Errorf("invalid schedule: %w", err)
	}
	if len(s.config.Models) == 0 {
		return fmt.Errorf("no models configured for scheduled scraping")
	}

	sweepCtx, cancel := context.WithCancel(ctx)
	if _, err := s.cron.AddFunc(schedule, func() { s.runSweep(sweepCtx) }); err != nil {
		cancel()
		return fmt.Errorf("failed to add cron entry: %w", err)
	}

	s.cancel = cancel
	s.cron.Start()
	s.running = true

	s.logger.Info().
		Str("schedule", schedule).
		Int("models", len(s.config.Models)).
		Str("region", s.config.Region).
		Msg("Scheduler started")

	return nil
}

// Stop halts the cron runner and cancels any sweep still in flight.
func (s *Service) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	stopCtx := s.cron.Stop()

	// A tick that already fired keeps running until its jobs notice the
	// cancelled context. Give it a moment to unwind before returning.
	select {
	case <-stopCtx.Done():
	case <-time.After(10 * time.Second):
		s.logger.Warn().Msg("Sweep did not finish within shutdown timeout")
	}

	s.logger.Info().Msg("Scheduler stopped")
	return nil
}

// IsRunning returns true while the cron runner is active.
func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// runSweep guards a single tick. Ticks that land while a previous sweep is
// still working are skipped rather than queued.
func (s *Service) runSweep(ctx context.Context) {
	s.sweepMu.Lock()
	if s.sweeping {
		s.sweepMu.Unlock()
		s.logger.Warn().Msg("Previous sweep still running, skipping this tick")
		return
	}
	s.sweeping = true
	s.sweepMu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str("panic", fmt.Sprintf("%v", r)).
				Msg("Recovered panic in scheduled sweep")
		}
		s.sweepMu.Lock()
		s.sweeping = false
		s.sweepMu.Unlock()
	}()

	s.sweep(ctx)
}

// sweep scrapes every configured model once.
func (s *Service) sweep(ctx context.Context) {
	started := time.Now()
	s.logger.Info().
		Int("models", len(s.config.Models)).
		Str("region", s.config.Region).
		Msg("Scheduled sweep started")

	for _, model := range s.config.Models {
		if ctx.Err() != nil {
			s.logger.Warn().Msg("Scheduled sweep cancelled")
			return
		}

		summary, err := s.orchestrator.RunModelJob(ctx, model, s.config.Region)
		if err != nil {
			s.logger.Error().
				Err(err).
				Str("model", model).
				Msg("Scheduled scrape job failed")
			continue
		}

		s.logger.Info().
			Str("model", model).
			Str("status", summary.Status).
			Int("success", summary.Success).
			Int("failed", summary.Failed).
			Msg("Scheduled scrape job finished")
	}

	s.logger.Info().
		Str("elapsed", time.Since(started).String()).
		Msg("Scheduled sweep finished")
}
