// Package sfmcrest implements the metadata-source client over the
// Marketing Cloud REST APIs. Authentication stays behind the TokenProvider
// port; this package owns paging, rate limiting and retries.
package sfmcrest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/aali87/sfmc-scripting-sub000/internal/core"
	"github.com/aali87/sfmc-scripting-sub000/internal/retry"
)

// Config tunes the REST client.
type Config struct {
	// BaseURL is the tenant REST endpoint, e.g.
	// https://<subdomain>.rest.marketingcloudapis.com
	BaseURL string
	// PageSize for paginated list calls.
	PageSize int
	// RequestInterval is the fixed delay enforced between API calls to
	// respect upstream rate limits.
	RequestInterval time.Duration
	// HTTPTimeout bounds a single request.
	HTTPTimeout time.Duration
	// Retry is the shared retry policy applied to every call.
	Retry retry.Policy
}

// StaticToken is a TokenProvider for pre-acquired tokens (tests, scripts).
type StaticToken string

func (t StaticToken) Token(ctx context.Context) (string, error) {
	return string(t), nil
}

// Client fetches the seven metadata collections.
type Client struct {
	httpClient *http.Client
	baseURL    string
	tokens     core.TokenProvider
	limiter    *rate.Limiter
	retry      retry.Policy
	pageSize   int
	logger     *zap.Logger
}

// New validates the config and builds a client.
func New(cfg Config, tokens core.TokenProvider, logger *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL must not be empty")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 250
	}
	if cfg.RequestInterval <= 0 {
		cfg.RequestInterval = 200 * time.Millisecond
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		baseURL:    cfg.BaseURL,
		tokens:     tokens,
		limiter:    rate.NewLimiter(rate.Every(cfg.RequestInterval), 1),
		retry:      cfg.Retry,
		pageSize:   cfg.PageSize,
		logger:     logger,
	}, nil
}

// get performs one authenticated GET with the shared retry policy and
// decodes the JSON response into out.
func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	return c.retry.Do(ctx, func(ctx context.Context) error {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return fmt.Errorf("%w: token acquisition failed: %v", core.ErrPlatformUnavailable, err)
		}

		u := c.baseURL + path
		if len(query) > 0 {
			u += "?" + query.Encode()
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			// Connection-level failure: retryable, and fatal for the whole
			// load once attempts are exhausted.
			return fmt.Errorf("%w: %w: %v", core.ErrPlatformUnavailable, retry.ErrTransient, err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
			return json.NewDecoder(resp.Body).Decode(out)
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable:
			io.Copy(io.Discard, resp.Body)
			err := fmt.Errorf("%w: %s returned %d", retry.ErrTransient, path, resp.StatusCode)
			if after := parseRetryAfter(resp.Header.Get("Retry-After")); after > 0 {
				return retry.WithHint(err, after)
			}
			return err
		case resp.StatusCode >= 500:
			io.Copy(io.Discard, resp.Body)
			return fmt.Errorf("%w: %s returned %d", retry.ErrTransient, path, resp.StatusCode)
		default:
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return fmt.Errorf("%s returned %d: %s", path, resp.StatusCode, body)
		}
	})
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	secs, err := strconv.Atoi(header)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// listResponse is the common paging envelope of the REST list endpoints.
type listResponse struct {
	Count    int           `json:"count"`
	Page     int           `json:"page"`
	PageSize int           `json:"pageSize"`
	Items    []core.Record `json:"items"`
}

// listPaged walks an endpoint's pages sequentially; each page request
// depends on the previous page having been consumed.
func (c *Client) listPaged(ctx context.Context, path string) ([]core.Record, error) {
	var all []core.Record
	for page := 1; ; page++ {
		query := url.Values{
			"$page":     {strconv.Itoa(page)},
			"$pageSize": {strconv.Itoa(c.pageSize)},
		}
		var resp listResponse
		if err := c.get(ctx, path, query, &resp); err != nil {
			return nil, err
		}
		all = append(all, resp.Items...)
		if len(resp.Items) == 0 || len(resp.Items) < c.pageSize || (resp.Count > 0 && len(all) >= resp.Count) {
			break
		}
	}
	c.logger.Debug("Fetched collection",
		zap.String("path", path),
		zap.Int("records", len(all)))
	return all, nil
}

func (c *Client) ListAutomations(ctx context.Context) ([]core.Record, error) {
	return c.listPaged(ctx, "/automation/v1/automations")
}

// GetAutomation fetches the full step/activity structure for one
// automation; the list endpoint omits it.
func (c *Client) GetAutomation(ctx context.Context, id string) (core.Record, error) {
	var rec core.Record
	if err := c.get(ctx, "/automation/v1/automations/"+url.PathEscape(id), nil, &rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (c *Client) ListDataFilters(ctx context.Context) ([]core.Record, error) {
	return c.listPaged(ctx, "/automation/v1/filters")
}

func (c *Client) ListQueries(ctx context.Context) ([]core.Record, error) {
	return c.listPaged(ctx, "/automation/v1/queries")
}

// GetQueryText fetches one query definition and returns its SQL body.
func (c *Client) GetQueryText(ctx context.Context, id string) (string, error) {
	var rec core.Record
	if err := c.get(ctx, "/automation/v1/queries/"+url.PathEscape(id), nil, &rec); err != nil {
		return "", err
	}
	return core.FirstString(rec, "queryText"), nil
}

func (c *Client) ListImports(ctx context.Context) ([]core.Record, error) {
	return c.listPaged(ctx, "/automation/v1/imports")
}

func (c *Client) ListTriggeredSends(ctx context.Context) ([]core.Record, error) {
	return c.listPaged(ctx, "/messaging/v1/messageDefinitionSends")
}

func (c *Client) ListJourneys(ctx context.Context) ([]core.Record, error) {
	return c.listPaged(ctx, "/interaction/v1/interactions")
}

func (c *Client) ListDataExtracts(ctx context.Context) ([]core.Record, error) {
	return c.listPaged(ctx, "/automation/v1/dataextracts")
}
