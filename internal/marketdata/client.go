// Package marketdata wraps a third-party historical daily-quote API.
package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"
)

const (
	defaultTimeout = 60 * time.Second
	rateLimit      = 2 // requests per second

	// maxAttempts and retryDelay define the client's retry contract: up to
	// five attempts per call with a fixed 3s delay between them. Not-found
	// responses are terminal and never retried.
	maxAttempts = 5
	retryDelay  = 3 * time.Second
)

// ErrNotFound is returned when the provider does not know the ticker.
var ErrNotFound = errors.New("ticker not found")

// DailyBar is a single daily OHLCV observation. Any price field may be nil
// when the provider omits it.
type DailyBar struct {
	Date          time.Time
	Open          *decimal.Decimal
	High          *decimal.Decimal
	Low           *decimal.Decimal
	Close         *decimal.Decimal
	AdjustedClose *decimal.Decimal
	Volume        *int64
}

// Client is a rate-limited client for the historical quote provider.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rateLimiter
	delay      time.Duration
}

// rateLimiter implements a simple token bucket rate limiter.
type rateLimiter struct {
	mu       sync.Mutex
	lastCall time.Time
	interval time.Duration
}

func newRateLimiter(requestsPerSecond int) *rateLimiter {
	return &rateLimiter{
		interval: time.Second / time.Duration(requestsPerSecond),
	}
}

func (r *rateLimiter) Wait() {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(r.lastCall)
	if elapsed < r.interval {
		time.Sleep(r.interval - elapsed)
	}
	r.lastCall = time.Now()
}

// Option customises a Client.
type Option func(*Client)

// WithRetryDelay overrides the fixed delay between retry attempts.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Client) { c.delay = d }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a client for the quote provider at baseURL.
func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		limiter: newRateLimiter(rateLimit),
		delay:   retryDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// barPayload is the provider's daily price row.
type barPayload struct {
	Date     string   `json:"date"`
	Open     *float64 `json:"open"`
	High     *float64 `json:"high"`
	Low      *float64 `json:"low"`
	Close    *float64 `json:"close"`
	AdjClose *float64 `json:"adjClose"`
	Volume   *int64   `json:"volume"`
}

// FetchHistory returns the daily bars for ticker in [start, end], oldest
// first. It returns ErrNotFound when the provider does not know the ticker;
// transient failures are retried up to the attempt cap before the last error
// is returned.
func (c *Client) FetchHistory(ctx context.Context, ticker string, start, end time.Time) ([]DailyBar, error) {
	if ticker == "" {
		return nil, fmt.Errorf("ticker is required")
	}
	if end.Before(start) {
		return nil, fmt.Errorf("invalid range: start %s after end %s", start.Format("2006-01-02"), end.Format("2006-01-02"))
	}

	u, err := url.Parse(fmt.Sprintf("%s/daily/%s/prices", c.baseURL, url.PathEscape(ticker)))
	if err != nil {
		return nil, fmt.Errorf("invalid ticker: %w", err)
	}
	q := u.Query()
	q.Set("startDate", start.Format("2006-01-02"))
	q.Set("endDate", end.Format("2006-01-02"))
	q.Set("token", c.apiKey)
	u.RawQuery = q.Encode()

	var bars []DailyBar
	backoff := retry.WithMaxRetries(maxAttempts-1, retry.NewConstant(c.delay))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		c.limiter.Wait()
		var reqErr error
		bars, reqErr = c.doRequest(ctx, u.String())
		if reqErr == nil {
			return nil
		}
		if errors.Is(reqErr, ErrNotFound) {
			return reqErr
		}
		return retry.RetryableError(reqErr)
	})
	if err != nil {
		return nil, err
	}
	return bars, nil
}

func (c *Client) doRequest(ctx context.Context, urlStr string) ([]DailyBar, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	switch {
	case httpResp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case httpResp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("rate limited (429)")
	case httpResp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("unexpected status %d: %s", httpResp.StatusCode, string(body))
	}

	var payload []barPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}

	bars := make([]DailyBar, 0, len(payload))
	for _, p := range payload {
		date, err := parseDate(p.Date)
		if err != nil {
			continue // skip rows without a usable date
		}
		bars = append(bars, DailyBar{
			Date:          date,
			Open:          toDecimal(p.Open),
			High:          toDecimal(p.High),
			Low:           toDecimal(p.Low),
			Close:         toDecimal(p.Close),
			AdjustedClose: toDecimal(p.AdjClose),
			Volume:        p.Volume,
		})
	}
	return bars, nil
}

func parseDate(s string) (time.Time, error) {
	formats := []string{
		"2006-01-02",
		"2006-01-02T15:04:05.000Z",
		"2006-01-02T15:04:05Z",
	}
	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}

func toDecimal(f *float64) *decimal.Decimal {
	if f == nil {
		return nil
	}
	d := decimal.NewFromFloat(*f)
	return &d
}
