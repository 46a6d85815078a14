package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/lotwatch/internal/common"
	"github.com/ternarybob/lotwatch/internal/models"
	"github.com/ternarybob/lotwatch/internal/parsers"
)

const defaultFollowupTimeout = 30 * time.Second

// followupClient issues the direct backend API calls that stand in for page
// scraping: the credential blocks parsers extract from markup are replayed
// against the platform's own inventory endpoints.
type followupClient struct {
	httpClient *http.Client
	userAgent  string
	logger     arbor.ILogger
}

func newFollowupClient(cfg common.ScrapeConfig, logger arbor.ILogger) *followupClient {
	timeout := cfg.FollowupTimeout
	if timeout <= 0 {
		timeout = defaultFollowupTimeout
	}
	return &followupClient{
		httpClient: &http.Client{Timeout: timeout},
		userAgent:  cfg.UserAgent,
		logger:     logger,
	}
}

// cosmosVehicles queries the DealerOn SRP vehicles API for a configured page.
func (f *followupClient) cosmosVehicles(ctx context.Context, page *parsers.DealerOnPage) ([]models.ParsedRow, error) {
	endpoint := page.APIURL() + "?" + page.APIParams().Encode()
	body, err := f.doJSON(ctx, http.MethodGet, endpoint, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("cosmos api request failed: %w", err)
	}
	rows, err := parsers.ParseCosmosResponse(body, page.Host)
	if err != nil {
		return nil, fmt.Errorf("failed to decode cosmos response: %w", err)
	}
	f.logger.Debug().
		Str("host", page.Host).
		Int("rows", len(rows)).
		Msg("Cosmos inventory fetched")
	return rows, nil
}

// smartPathDocuments runs the Typesense documents search a SmartPath page is
// configured for.
func (f *followupClient) smartPathDocuments(ctx context.Context, page *parsers.SmartPathPage) ([]models.ParsedRow, error) {
	endpoint := page.SearchURL() + "?" + page.SearchParams().Encode()
	headers := map[string]string{"x-typesense-api-key": page.APIKey}
	body, err := f.doJSON(ctx, http.MethodGet, endpoint, nil, headers)
	if err != nil {
		return nil, fmt.Errorf("smartpath typesense request failed: %w", err)
	}
	rows, err := parsers.ParseSmartPathDocuments(body, page.DealerHost)
	if err != nil {
		return nil, fmt.Errorf("failed to decode smartpath response: %w", err)
	}
	f.logger.Debug().
		Str("dealer_host", page.DealerHost).
		Int("rows", len(rows)).
		Msg("SmartPath inventory fetched")
	return rows, nil
}

// cdkInventory replays the getInventory call a CDK page issues from script.
// The endpoint resolves against the scraped page's origin, and Referer and
// Origin are set so the widget API accepts the request.
func (f *followupClient) cdkInventory(ctx context.Context, request *parsers.CDKRequest, pageURL string) ([]models.ParsedRow, error) {
	origin := pageOrigin(pageURL)
	if origin == "" {
		return nil, fmt.Errorf("cannot determine origin for %s", pageURL)
	}
	endpoint, err := resolveEndpoint(origin, request.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve cdk endpoint: %w", err)
	}

	headers := map[string]string{
		"Referer": pageURL,
		"Origin":  origin,
	}
	body, err := f.doJSON(ctx, http.MethodPost, endpoint, request.Payload, headers)
	if err != nil {
		return nil, fmt.Errorf("cdk inventory request failed: %w", err)
	}
	rows, err := parsers.ParseCDKResponse(body, origin)
	if err != nil {
		return nil, fmt.Errorf("failed to decode cdk response: %w", err)
	}
	f.logger.Debug().
		Str("endpoint", endpoint).
		Int("rows", len(rows)).
		Msg("CDK inventory fetched")
	return rows, nil
}

// algoliaQuery runs a DealerInspire page's Algolia index query.
func (f *followupClient) algoliaQuery(ctx context.Context, cfg *parsers.AlgoliaConfig, model, pageURL string) ([]models.ParsedRow, error) {
	endpoint := fmt.Sprintf("https://%s-dsn.algolia.net/1/indexes/%s/query",
		cfg.AppID, url.PathEscape(cfg.Index))
	headers := map[string]string{
		"X-Algolia-Application-Id": cfg.AppID,
		"X-Algolia-API-Key":        cfg.APIKey,
	}
	payload := map[string]any{"params": parsers.BuildAlgoliaParams(cfg, model)}

	body, err := f.doJSON(ctx, http.MethodPost, endpoint, payload, headers)
	if err != nil {
		return nil, fmt.Errorf("algolia request failed: %w", err)
	}
	rows, err := parsers.ParseAlgoliaHits(body, pageOrigin(pageURL))
	if err != nil {
		return nil, fmt.Errorf("failed to decode algolia response: %w", err)
	}
	f.logger.Debug().
		Str("index", cfg.Index).
		Int("rows", len(rows)).
		Msg("Algolia inventory fetched")
	return rows, nil
}

// typesenseSearch runs a Dealer Alchemy page's multi_search query.
func (f *followupClient) typesenseSearch(ctx context.Context, cfg *parsers.TypesenseConfig, model, pageURL string) ([]models.ParsedRow, error) {
	headers := map[string]string{"X-TYPESENSE-API-KEY": cfg.APIKey}
	body, err := f.doJSON(ctx, http.MethodPost, cfg.Endpoint(), cfg.SearchBody(model), headers)
	if err != nil {
		return nil, fmt.Errorf("typesense request failed: %w", err)
	}
	rows, err := parsers.ParseTypesenseHits(body, pageURL)
	if err != nil {
		return nil, fmt.Errorf("failed to decode typesense response: %w", err)
	}
	f.logger.Debug().
		Str("index", cfg.IndexName).
		Int("rows", len(rows)).
		Msg("Typesense inventory fetched")
	return rows, nil
}

// doJSON sends one request and returns the response body. Payloads are JSON
// encoded; any 4xx/5xx answer is an error.
func (f *followupClient) doJSON(ctx context.Context, method, endpoint string, payload any, headers map[string]string) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode payload: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%s returned status %d", endpoint, resp.StatusCode)
	}
	return body, nil
}

// pageOrigin returns scheme://host for a page URL, empty when unparseable.
func pageOrigin(pageURL string) string {
	parsed, err := url.Parse(pageURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return ""
	}
	return parsed.Scheme + "://" + parsed.Host
}

// resolveEndpoint joins a possibly-relative endpoint onto a base origin.
func resolveEndpoint(base, endpoint string) (string, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}
	return baseURL.ResolveReference(ref).String(), nil
}
