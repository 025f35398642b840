package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/dgnsrekt/heatseeker/internal/exposure"
)

const expirationLayout = "2006-01-02"

// Client interface for testability
type Client interface {
	Spot(ctx context.Context, apiKey, ticker string) (float64, error)
	Chain(ctx context.Context, apiKey, ticker string) ([]exposure.ChainRow, error)
}

type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
	pageLimit  int
	maxPages   int
	limiter    *rate.Limiter
	retryCount int
	retryDelay time.Duration
	logger     *zap.Logger
}

// Options configures an HTTPClient.
type Options struct {
	BaseURL    string
	RatePerSec int
	Timeout    time.Duration
	RetryCount int
	RetryDelay time.Duration
	PageLimit  int
	MaxPages   int
}

func NewClient(opts Options, logger *zap.Logger) *HTTPClient {
	transport := &http.Transport{
		MaxIdleConns:       100,
		MaxConnsPerHost:    10,
		IdleConnTimeout:    90 * time.Second,
		DisableCompression: false,
	}

	if opts.RatePerSec < 1 {
		opts.RatePerSec = 1
	}
	if opts.PageLimit < 1 {
		opts.PageLimit = 250
	}
	if opts.MaxPages < 1 {
		opts.MaxPages = 40
	}

	return &HTTPClient{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   opts.Timeout,
		},
		baseURL:    opts.BaseURL,
		pageLimit:  opts.PageLimit,
		maxPages:   opts.MaxPages,
		limiter:    rate.NewLimiter(rate.Limit(opts.RatePerSec), opts.RatePerSec*2),
		retryCount: opts.RetryCount,
		retryDelay: opts.RetryDelay,
		logger:     logger,
	}
}

// Spot returns the last trade price for ticker.
func (c *HTTPClient) Spot(ctx context.Context, apiKey, ticker string) (float64, error) {
	if apiKey == "" {
		return 0, ErrNoAPIKey
	}

	endpoint := fmt.Sprintf("%s/v2/last/trade/%s", c.baseURL, url.PathEscape(ticker))

	var resp lastTradeResponse
	if err := c.getJSON(ctx, endpoint, apiKey, &resp); err != nil {
		return 0, err
	}

	if resp.Results == nil || resp.Results.Price == nil {
		return 0, fmt.Errorf("%w: last trade for %s has no price", ErrMalformedResponse, ticker)
	}
	price := *resp.Results.Price
	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return 0, fmt.Errorf("%w: last trade price %v for %s", ErrMalformedResponse, price, ticker)
	}

	return price, nil
}

// Chain returns every contract of the ticker's options chain as a ChainRow,
// following pagination. Missing open interest and unparsable expirations are
// left nil for the aggregator to substitute.
func (c *HTTPClient) Chain(ctx context.Context, apiKey, ticker string) ([]exposure.ChainRow, error) {
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}

	endpoint := fmt.Sprintf("%s/v3/snapshot/options/%s?limit=%d", c.baseURL, url.PathEscape(ticker), c.pageLimit)

	var rows []exposure.ChainRow
	for page := 0; endpoint != ""; page++ {
		if page >= c.maxPages {
			c.logger.Warn("chain pagination truncated",
				zap.String("ticker", ticker),
				zap.Int("pages", page),
				zap.Int("rows", len(rows)),
			)
			break
		}

		var resp chainSnapshotResponse
		if err := c.getJSON(ctx, endpoint, apiKey, &resp); err != nil {
			return nil, err
		}

		for i, contract := range resp.Results {
			row, err := toChainRow(contract)
			if err != nil {
				return nil, fmt.Errorf("%w: page %d contract %d: %v", ErrMalformedResponse, page, i, err)
			}
			rows = append(rows, row)
		}

		endpoint = resp.NextURL
	}

	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: empty options chain for %s", ErrNotFound, ticker)
	}

	c.logger.Debug("chain fetched", zap.String("ticker", ticker), zap.Int("rows", len(rows)))
	return rows, nil
}

func toChainRow(contract contractSnapshot) (exposure.ChainRow, error) {
	if contract.Details == nil || contract.Details.StrikePrice == nil {
		return exposure.ChainRow{}, fmt.Errorf("missing strike_price")
	}

	row := exposure.ChainRow{Strike: *contract.Details.StrikePrice}

	if v := contract.OpenInterest; v != nil && *v >= 0 && !math.IsNaN(*v) && !math.IsInf(*v, 0) {
		oi := int64(*v)
		row.OpenInterest = &oi
	}

	if exp, err := time.Parse(expirationLayout, contract.Details.ExpirationDate); err == nil {
		row.Expiration = &exp
	}

	return row, nil
}

// getJSON performs a GET with rate limiting and retries, decoding the body into out.
func (c *HTTPClient) getJSON(ctx context.Context, endpoint, apiKey string, out any) error {
	// Wait for rate limiter
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: rate limiter: %v", ErrUnavailable, err)
	}

	reqURL, err := withAPIKey(endpoint, apiKey)
	if err != nil {
		return fmt.Errorf("building request url: %w", err)
	}
	c.logger.Debug("requesting", zap.String("url", endpoint))

	var lastErr error
	for attempt := 0; attempt <= c.retryCount; attempt++ {
		if attempt > 0 {
			delay := c.retryDelay * time.Duration(1<<(attempt-1)) // Exponential backoff
			c.logger.Debug("retrying request", zap.Int("attempt", attempt), zap.Duration("delay", delay))

			select {
			case <-ctx.Done():
				return fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
			case <-time.After(delay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("%w: %v", ErrUnavailable, err)
			continue
		}

		// Read body before closing for error messages
		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()

		if readErr != nil {
			lastErr = fmt.Errorf("%w: reading body: %v", ErrUnavailable, readErr)
			continue
		}

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return ErrNotFound
		case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
			return ErrAuthFailed
		case resp.StatusCode == http.StatusTooManyRequests:
			lastErr = ErrRateLimited
			continue
		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("%w: server error: %d", ErrUnavailable, resp.StatusCode)
			continue
		case resp.StatusCode != http.StatusOK:
			return fmt.Errorf("%w: unexpected status %d: %s", ErrUnavailable, resp.StatusCode, string(body))
		}

		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("%w: decoding response: %v", ErrMalformedResponse, err)
		}
		return nil
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// withAPIKey sets the apiKey query parameter, replacing any value carried by a next_url.
func withAPIKey(endpoint, apiKey string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("apiKey", apiKey)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
