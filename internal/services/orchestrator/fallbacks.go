package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ternarybob/lotwatch/internal/models"
	"github.com/ternarybob/lotwatch/internal/parsers"
)

// fallbackChain orders the parsers tried against a misfiled SmartPath page,
// most structurally distinctive first.
var fallbackChain = []models.Backend{
	models.BackendTeamVelocity,
	models.BackendDealerInspire,
	models.BackendDealerCom,
	models.BackendDealerOn,
	models.BackendDealerSocket,
	models.BackendCDK,
}

// smartPathCandidateURLs guesses where a dealer keeps conventional inventory
// pages when its SmartPath subdomain renders without configuration.
func smartPathCandidateURLs(dealer *models.Dealer, model string, registry *parsers.ModelRegistry) []string {
	homepage := strings.TrimRight(dealer.HomepageURL, "/")
	if homepage == "" {
		return nil
	}
	slug := registry.Slug(model)
	return []string{
		homepage + "/inventory/new/toyota/" + slug,
		homepage + "/inventory/new/" + slug,
		homepage + "/inventory/new-toyota-" + slug,
		homepage + "/inventory/new-" + slug,
	}
}

// dealerOnRows reads Cosmos configuration out of DealerOn markup and queries
// the SRP vehicles API. Config failures surface *DealerOnError so the caller
// can try its misclassification fallbacks; an embedded 404 is a real page
// with zero vehicles.
func (s *Service) dealerOnRows(ctx context.Context, limits *jobLimits, markup string) ([]models.ParsedRow, error) {
	if markup == "" {
		return nil, nil
	}
	page, err := parsers.ExtractDealerOnPage(markup)
	if err != nil {
		return nil, err
	}
	if page.Empty {
		return nil, nil
	}
	if err := limits.acquireToken(ctx); err != nil {
		return nil, err
	}
	return s.api.cosmosVehicles(ctx, page)
}

// smartPathRows reads Typesense configuration out of SmartPath markup and
// runs the documents search. Config failures surface *SmartPathError so the
// caller can sweep candidate URLs.
func (s *Service) smartPathRows(ctx context.Context, limits *jobLimits, markup string) ([]models.ParsedRow, error) {
	if markup == "" {
		return nil, nil
	}
	page, err := parsers.ExtractSmartPathPage(markup)
	if err != nil {
		return nil, err
	}
	if err := limits.acquireToken(ctx); err != nil {
		return nil, err
	}
	return s.api.smartPathDocuments(ctx, page)
}

// recoverMisclassified handles DealerOn markup that belongs to another
// platform. The page is fingerprinted for SmartPath and Team Velocity
// signatures and reparsed accordingly, with a synthetic canonical link
// prepended when the markup lacks one so host extraction can work.
func (s *Service) recoverMisclassified(ctx context.Context, limits *jobLimits, state *taskState, parseErr error) ([]models.ParsedRow, error) {
	lower := strings.ToLower(state.rawHTML)
	adjusted := state.rawHTML
	if !strings.Contains(lower, `rel="canonical"`) {
		adjusted = fmt.Sprintf(`<link rel="canonical" href="%s">`, state.url) + state.rawHTML
	}

	if strings.Contains(lower, "smartpath") {
		rows, err := s.smartPathRows(ctx, limits, adjusted)
		if err == nil {
			state.backend = models.BackendSmartPath
			s.logger.Debug().
				Str("url", state.url).
				Msg("DealerOn page reparsed as SmartPath")
			return rows, nil
		}
		var spErr *parsers.SmartPathError
		if !errors.As(err, &spErr) {
			return nil, err
		}
		parseErr = err
	}

	if strings.Contains(lower, "teamvelocityportal") || strings.Contains(lower, "inventoryapibaseurl") {
		rows, err := parsers.ParseTeamVelocity(adjusted)
		if err == nil {
			state.backend = models.BackendTeamVelocity
			s.logger.Debug().
				Str("url", state.url).
				Msg("DealerOn page reparsed as Team Velocity")
			return rows, nil
		}
		parseErr = err
	}

	return nil, parseErr
}

// sweepCandidates fetches the dealer's likely inventory URLs and runs each
// through the fallback parser chain, taking the first page that yields rows.
// The task's content state is rewritten to the winning page.
func (s *Service) sweepCandidates(ctx context.Context, limits *jobLimits, dealer *models.Dealer, state *taskState, model, proxy string, parseErr error) ([]models.ParsedRow, error) {
	lastErr := parseErr
	for _, candidate := range smartPathCandidateURLs(dealer, model, s.registry) {
		result, err := s.fetchPage(ctx, limits, candidate, proxy, false)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			lastErr = err
			continue
		}

		markup := result.Raw()
		rows, backend := s.tryFallbackChain(ctx, limits, markup)
		if len(rows) == 0 {
			continue
		}

		s.logger.Info().
			Int64("dealer_id", dealer.ID).
			Str("url", candidate).
			Str("backend", backend.String()).
			Int("rows", len(rows)).
			Msg("SmartPath fallback located inventory")
		state.result = result
		state.rawHTML = markup
		state.backend = backend
		return rows, nil
	}
	return nil, lastErr
}

// tryFallbackChain parses markup with each chain backend in order, returning
// the first non-empty row set. Parser errors just move to the next backend.
func (s *Service) tryFallbackChain(ctx context.Context, limits *jobLimits, markup string) ([]models.ParsedRow, models.Backend) {
	for _, backend := range fallbackChain {
		if ctx.Err() != nil {
			return nil, ""
		}

		var rows []models.ParsedRow
		var err error
		if backend == models.BackendDealerOn {
			rows, err = s.dealerOnRows(ctx, limits, markup)
		} else {
			entry, lookupErr := parsers.Lookup(backend)
			if lookupErr != nil || entry.Parse == nil {
				continue
			}
			rows, err = entry.Parse(markup)
		}
		if err != nil || len(rows) == 0 {
			continue
		}
		return rows, backend
	}
	return nil, ""
}
