package tenor

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/timmy/gifsearch/internal/domain"
	"github.com/timmy/gifsearch/internal/logger"
	"github.com/timmy/gifsearch/internal/metrics"
	"golang.org/x/time/rate"
)

const defaultBaseURL = "https://tenor.googleapis.com/v2"

// ClientConfig holds configuration for the Tenor client.
type ClientConfig struct {
	BaseURL   string
	Timeout   time.Duration
	RateLimit float64 // requests per second; 0 disables limiting
	RateBurst int
	Builder   *QueryBuilder
}

// Client performs search round trips against the Tenor v2 API and downloads
// media payloads.
type Client struct {
	http    *resty.Client
	baseURL string
	builder *QueryBuilder
	limiter *rate.Limiter
}

// NewClient creates a new Tenor client.
func NewClient(cfg *ClientConfig) *Client {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	client := resty.New()
	client.SetTimeout(timeout)
	client.SetHeader("Accept", "application/json")

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	builder := cfg.Builder
	if builder == nil {
		builder = NewQueryBuilder(BuilderConfig{})
	}

	return &Client{
		http:    client,
		baseURL: baseURL,
		builder: builder,
		limiter: limiter,
	}
}

// Fetch performs one search round trip. It never retries.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - term: search term.
//   - cursor: continuation token, empty for the first page.
//
// Returns:
//   - *domain.Page: items plus the next cursor (empty at end of results).
//   - error: wraps domain.ErrNetwork, domain.ErrDecoding or domain.ErrNoResults.
func (c *Client) Fetch(ctx context.Context, term, cursor string) (*domain.Page, error) {
	query, err := c.builder.Build(term, cursor)
	if err != nil {
		return nil, err
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limiter: %v", domain.ErrNetwork, err)
	}

	start := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParamsFromValues(query.Values()).
		Get(c.baseURL + "/search")
	metrics.ProviderRequestDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.ProviderRequestsTotal.WithLabelValues("network_error").Inc()
		return nil, fmt.Errorf("%w: search request failed: %v", domain.ErrNetwork, err)
	}

	if !resp.IsSuccess() {
		metrics.ProviderRequestsTotal.WithLabelValues("http_error").Inc()
		if msg := decodeAPIError(resp.Body()); msg != "" {
			return nil, fmt.Errorf("%w: tenor API error: %s", domain.ErrNetwork, msg)
		}
		return nil, fmt.Errorf("%w: tenor API error: status %d", domain.ErrNetwork, resp.StatusCode())
	}

	page, err := decodeSearchResponse(resp.Body(), query.MediaFilter)
	if err != nil {
		metrics.ProviderRequestsTotal.WithLabelValues("decode_error").Inc()
		return nil, err
	}
	metrics.ProviderRequestsTotal.WithLabelValues("ok").Inc()

	logger.FromContext(ctx).WithFields(logger.Fields{
		logger.FieldTerm:       query.Term,
		logger.FieldCount:      len(page.Items),
		logger.FieldDurationMs: time.Since(start).Milliseconds(),
		"has_more":             page.HasMore(),
	}).Debug("Fetched search page")

	return page, nil
}

// Download fetches a media payload.
// Returns the body and its content type.
func (c *Client) Download(ctx context.Context, mediaURL string) ([]byte, string, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Accept", "image/gif, image/webp, */*").
		Get(mediaURL)
	if err != nil {
		return nil, "", fmt.Errorf("%w: download %s: %v", domain.ErrNetwork, mediaURL, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, "", fmt.Errorf("%w: download %s: status %d", domain.ErrNetwork, mediaURL, resp.StatusCode())
	}
	return resp.Body(), resp.Header().Get("Content-Type"), nil
}
