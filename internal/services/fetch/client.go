package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/tidwall/gjson"

	"github.com/ternarybob/lotwatch/internal/common"
	"github.com/ternarybob/lotwatch/internal/interfaces"
	"github.com/ternarybob/lotwatch/internal/models"
)

// Client talks to the headless rendering service. Scrape posts a URL and
// gets markdown and html back; the extract endpoint is the slower fallback
// used when a page renders to nothing.
type Client struct {
	baseURL      string
	apiKey       string
	maxAgeMs     int
	defaultProxy string
	policy       *RetryPolicy
	httpClient   *http.Client
	logger       arbor.ILogger
}

// NewClient creates a fetch client from config.
func NewClient(cfg common.FetchConfig, logger arbor.ILogger) interfaces.FetchService {
	return newClient(cfg, logger)
}

func newClient(cfg common.FetchConfig, logger arbor.ILogger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 25 * time.Second
	}
	maxAge := cfg.MaxAgeMs
	if maxAge <= 0 {
		maxAge = 14400000
	}
	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:       cfg.APIKey,
		maxAgeMs:     maxAge,
		defaultProxy: cfg.Proxy,
		policy:       NewRetryPolicy(cfg.MaxRetries),
		httpClient:   &http.Client{Timeout: timeout},
		logger:       logger,
	}
}

// Scrape renders a page and returns its content. When the render comes back
// with neither markdown nor html and opts allow it, extract is tried before
// giving up.
func (c *Client) Scrape(ctx context.Context, pageURL string, opts interfaces.ScrapeOptions) (*models.FetchResult, error) {
	body, err := c.post(ctx, "scrape", "/v2/scrape", c.scrapePayload(pageURL, opts.Proxy))
	if err != nil {
		return nil, err
	}

	result, err := c.decodeScrape(pageURL, body)
	if err != nil {
		return nil, err
	}

	if result.Markdown == "" && result.HTML == "" && opts.AllowExtract {
		c.logger.Debug().
			Str("url", pageURL).
			Msg("Scrape returned no content, trying extract")
		return c.extract(ctx, pageURL, opts.Proxy)
	}
	return result, nil
}

// scrapeOptions builds the render option set sent on every call.
func (c *Client) scrapeOptions(proxy string) map[string]any {
	options := map[string]any{
		"onlyMainContent":     true,
		"removeBase64Images":  true,
		"skipTlsVerification": true,
		"storeInCache":        true,
		"blockAds":            true,
		"maxAge":              c.maxAgeMs,
		"formats":             []string{"markdown", "html"},
	}
	if proxy == "" {
		proxy = c.defaultProxy
	}
	if proxy != "" {
		options["proxy"] = proxy
	}
	return options
}

func (c *Client) scrapePayload(pageURL, proxy string) map[string]any {
	payload := c.scrapeOptions(proxy)
	payload["url"] = pageURL
	return payload
}

// post sends one JSON request with the internal retry loop. Retryable
// statuses and transport errors back off and try again; anything else is
// terminal.
func (c *Client) post(ctx context.Context, op, path string, payload any) ([]byte, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, &TerminalError{Op: op, Err: err}
	}
	endpoint := c.baseURL + path

	var lastErr error
	for attempt := 0; attempt <= c.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.policy.Backoff(attempt - 1)):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
		if err != nil {
			return nil, &TerminalError{Op: op, URL: endpoint, Err: err}
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = &RetryableError{Op: op, URL: endpoint, Err: err}
			c.logger.Debug().
				Err(err).
				Str("op", op).
				Int("attempt", attempt+1).
				Msg("Fetch transport error")
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = &RetryableError{Op: op, URL: endpoint, StatusCode: resp.StatusCode, Err: readErr}
			continue
		}

		if c.policy.RetryableStatus(resp.StatusCode) {
			lastErr = &RetryableError{Op: op, URL: endpoint, StatusCode: resp.StatusCode}
			c.logger.Debug().
				Str("op", op).
				Int("status", resp.StatusCode).
				Int("attempt", attempt+1).
				Msg("Fetch service busy, will retry")
			continue
		}
		if resp.StatusCode >= 400 {
			return nil, &TerminalError{
				Op:         op,
				URL:        endpoint,
				StatusCode: resp.StatusCode,
				Err:        fmt.Errorf("%s", snippet(body)),
			}
		}
		return body, nil
	}
	return nil, lastErr
}

// decodeScrape maps a /v2/scrape response onto a FetchResult. An
// unparseable body is terminal: the service answered, just not usefully.
func (c *Client) decodeScrape(pageURL string, body []byte) (*models.FetchResult, error) {
	if !gjson.ValidBytes(body) {
		return nil, &TerminalError{Op: "scrape", URL: pageURL, Err: fmt.Errorf("invalid JSON response: %s", snippet(body))}
	}
	parsed := gjson.ParseBytes(body)
	if success := parsed.Get("success"); success.Exists() && !success.Bool() {
		return nil, &TerminalError{Op: "scrape", URL: pageURL, Err: fmt.Errorf("service error: %s", parsed.Get("error").String())}
	}

	data := parsed.Get("data")
	result := &models.FetchResult{
		URL:      pageURL,
		Markdown: data.Get("markdown").String(),
		HTML:     data.Get("html").String(),
		RawHTML:  data.Get("rawHtml").String(),
		Metadata: metadataMap(data.Get("metadata")),
		Source:   models.FetchSourceScrape,
	}
	if status := data.Get("metadata.statusCode"); status.Exists() {
		result.StatusCode = int(status.Int())
	}
	return result, nil
}

// extract calls /v2/extract. The response data shape varies by service
// version: the document itself, a single-element array, or a wrapper
// holding a documents list.
func (c *Client) extract(ctx context.Context, pageURL, proxy string) (*models.FetchResult, error) {
	payload := map[string]any{
		"urls":          []string{pageURL},
		"scrapeOptions": c.scrapeOptions(proxy),
	}
	body, err := c.post(ctx, "extract", "/v2/extract", payload)
	if err != nil {
		return nil, err
	}

	if !gjson.ValidBytes(body) {
		return nil, &TerminalError{Op: "extract", URL: pageURL, Err: fmt.Errorf("invalid JSON response: %s", snippet(body))}
	}
	parsed := gjson.ParseBytes(body)
	if status := parsed.Get("status").String(); status != "" && status != "completed" {
		return nil, &TerminalError{Op: "extract", URL: pageURL, Err: fmt.Errorf("extract not completed: %s", status)}
	}
	if success := parsed.Get("success"); success.Exists() && !success.Bool() {
		return nil, &TerminalError{Op: "extract", URL: pageURL, Err: fmt.Errorf("service error: %s", parsed.Get("error").String())}
	}

	doc := extractDocument(parsed.Get("data"))
	result := &models.FetchResult{
		URL:      pageURL,
		Markdown: doc.Get("markdown").String(),
		HTML:     doc.Get("html").String(),
		RawHTML:  doc.Get("rawHtml").String(),
		Metadata: metadataMap(doc.Get("metadata")),
		Source:   models.FetchSourceExtract,
	}
	if result.Markdown == "" {
		result.Markdown = doc.Get("content").String()
	}
	if status := doc.Get("metadata.statusCode"); status.Exists() {
		result.StatusCode = int(status.Int())
	}
	return result, nil
}

// extractDocument digs the single document out of an extract response.
func extractDocument(data gjson.Result) gjson.Result {
	if data.IsArray() {
		for _, item := range data.Array() {
			if item.IsObject() {
				data = item
				break
			}
		}
	}
	if docs := data.Get("documents"); docs.IsArray() {
		if arr := docs.Array(); len(arr) > 0 {
			return arr[0]
		}
	}
	return data
}

// metadataMap converts a metadata node to a map, dropping null values.
func metadataMap(node gjson.Result) map[string]any {
	if !node.IsObject() {
		return nil
	}
	out := make(map[string]any)
	node.ForEach(func(key, value gjson.Result) bool {
		if value.Type != gjson.Null {
			out[key.String()] = value.Value()
		}
		return true
	})
	if len(out) == 0 {
		return nil
	}
	return out
}

// snippet trims a response body for error messages.
func snippet(body []byte) string {
	const max = 200
	s := strings.TrimSpace(string(body))
	if len(s) > max {
		s = s[:max] + "..."
	}
	return s
}
