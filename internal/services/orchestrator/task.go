package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/lotwatch/internal/interfaces"
	"github.com/ternarybob/lotwatch/internal/models"
	"github.com/ternarybob/lotwatch/internal/parsers"
	"github.com/ternarybob/lotwatch/internal/services/fetch"
)

// taskState carries the mutable scrape context for one task attempt. The
// fallback paths rewrite result, markup and backend when a different page or
// platform ends up serving the rows.
type taskState struct {
	url     string
	result  *models.FetchResult
	rawHTML string
	backend models.Backend
}

// runTask drives one dealer from fetch through reconcile and owns the task
// row's status transitions. Returns whether the task succeeded.
func (s *Service) runTask(ctx context.Context, limits *jobLimits, job *models.ScrapeJob, dealer *models.Dealer, task *models.ScrapeTask) bool {
	// Status writes must survive job cancellation so the record shows how
	// the task ended.
	persistCtx := context.WithoutCancel(ctx)

	backend := dealer.Backend()
	entry, err := parsers.Lookup(backend)
	if err != nil {
		s.failTask(persistCtx, task, fmt.Sprintf("no parser for backend %s", backend))
		return false
	}

	observedAt := time.Now().UTC()
	task.Status = models.TaskStatusRunning
	task.StartedAt = &observedAt
	s.updateTask(persistCtx, task)

	proxy := dealer.ScrapingConfig.Proxy()
	maxAttempts := s.config.TaskAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultTaskTries
	}

	lastError := ""
	for attempt := 0; attempt < maxAttempts; attempt++ {
		task.Attempt = attempt + 1
		allowExtract := attempt == maxAttempts-1

		result, err := s.fetchPage(ctx, limits, task.URL, proxy, allowExtract)
		if err != nil {
			if ctx.Err() != nil {
				s.failTask(persistCtx, task, cancelMessage(ctx))
				return false
			}
			if fetch.IsRetryable(err) {
				lastError = err.Error()
				s.logger.Debug().
					Err(err).
					Int64("dealer_id", dealer.ID).
					Int("attempt", task.Attempt).
					Msg("Fetch attempt failed, retrying")
				continue
			}
			s.failTask(persistCtx, task, err.Error())
			return false
		}

		if result.StatusCode > 0 {
			status := result.StatusCode
			task.HTTPStatus = &status
		}

		state := &taskState{
			url:     task.URL,
			result:  result,
			rawHTML: result.Raw(),
			backend: backend,
		}

		rows, err := s.parseRows(ctx, limits, dealer, entry, state, job.Model, proxy)
		if err != nil {
			if ctx.Err() != nil {
				s.failTask(persistCtx, task, cancelMessage(ctx))
				return false
			}
			// Markup problems don't improve on a refetch.
			lastError = err.Error()
			break
		}

		if len(rows) == 0 && entry.Followup != parsers.FollowupNone {
			rows, err = s.followupRows(ctx, limits, entry.Followup, state, job.Model)
			if err != nil {
				if ctx.Err() != nil {
					s.failTask(persistCtx, task, cancelMessage(ctx))
					return false
				}
				lastError = err.Error()
				break
			}
		}

		if len(rows) > 0 {
			err = s.persistRows(ctx, job, dealer, state, rows, observedAt)
		} else {
			err = s.persistEmpty(ctx, job, dealer, state, observedAt)
		}
		if err != nil {
			if ctx.Err() != nil {
				s.failTask(persistCtx, task, cancelMessage(ctx))
				return false
			}
			s.failTask(persistCtx, task, err.Error())
			return false
		}

		s.completeTask(persistCtx, task)
		return true
	}

	if lastError == "" {
		lastError = "unknown error"
	}
	s.failTask(persistCtx, task, lastError)
	return false
}

// fetchPage runs one rate-limited, concurrency-gated render call.
func (s *Service) fetchPage(ctx context.Context, limits *jobLimits, pageURL, proxy string, allowExtract bool) (*models.FetchResult, error) {
	if err := limits.acquireToken(ctx); err != nil {
		return nil, err
	}
	if err := limits.enter(ctx); err != nil {
		return nil, err
	}
	defer limits.leave()
	return s.fetch.Scrape(ctx, pageURL, interfaces.ScrapeOptions{Proxy: proxy, AllowExtract: allowExtract})
}

// parseRows turns fetched content into parsed rows for the dealer's backend
// family, chasing the DealerOn and SmartPath recovery paths when the page
// turns out to be misfiled.
func (s *Service) parseRows(ctx context.Context, limits *jobLimits, dealer *models.Dealer, entry parsers.Entry, state *taskState, model, proxy string) ([]models.ParsedRow, error) {
	content := s.convert.parserText(state.result)
	if entry.RawHTML {
		content = state.rawHTML
	}

	var rows []models.ParsedRow
	var err error
	switch dealer.Backend().Family() {
	case models.BackendDealerOn:
		rows, err = s.dealerOnRows(ctx, limits, content)
	case models.BackendSmartPath:
		rows, err = s.smartPathRows(ctx, limits, content)
	default:
		rows, err = entry.Parse(content)
	}
	if err == nil {
		return rows, nil
	}

	var doErr *parsers.DealerOnError
	if errors.As(err, &doErr) {
		return s.recoverMisclassified(ctx, limits, state, err)
	}
	var spErr *parsers.SmartPathError
	if errors.As(err, &spErr) {
		return s.sweepCandidates(ctx, limits, dealer, state, model, proxy, err)
	}
	return nil, err
}

// followupRows queries a backend's inventory API when the rendered page
// carried no rows. A page without the expected embedded config is treated as
// legitimately empty.
func (s *Service) followupRows(ctx context.Context, limits *jobLimits, followup parsers.Followup, state *taskState, model string) ([]models.ParsedRow, error) {
	switch followup {
	case parsers.FollowupCDK:
		request, ok := parsers.ExtractCDKRequest(state.rawHTML)
		if !ok {
			return nil, nil
		}
		if err := limits.acquireToken(ctx); err != nil {
			return nil, err
		}
		return s.api.cdkInventory(ctx, request, state.url)
	case parsers.FollowupAlgolia:
		cfg, ok := parsers.ExtractAlgoliaConfig(state.rawHTML)
		if !ok {
			return nil, nil
		}
		if err := limits.acquireToken(ctx); err != nil {
			return nil, err
		}
		return s.api.algoliaQuery(ctx, cfg, model, state.url)
	case parsers.FollowupTypesense:
		cfg, ok := parsers.ExtractTypesenseConfig(state.rawHTML)
		if !ok {
			return nil, nil
		}
		if err := limits.acquireToken(ctx); err != nil {
			return nil, err
		}
		return s.api.typesenseSearch(ctx, cfg, model, state.url)
	}
	return nil, nil
}

// cancelMessage labels a cancellation-driven failure on the task record.
func cancelMessage(ctx context.Context) string {
	return fmt.Sprintf("task cancelled: %v", context.Cause(ctx))
}
