// Package market fetches DeFi protocol market data from a CoinGecko-compatible API.
package market

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"defi-risk-lab/internal/datasource"
	"defi-risk-lab/internal/domain"
	"defi-risk-lab/internal/logging"
	"defi-risk-lab/internal/observability"
)

// Default configuration values.
const (
	DefaultBaseURL     = "https://api.coingecko.com/api/v3"
	DefaultCategory    = "decentralized-finance-defi"
	DefaultPerPage     = 100
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 1 * time.Second
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0

	apiKeyHeader = "x-cg-demo-api-key"
	sourceName   = "market"
)

// StatusError is a non-retryable HTTP status from the API.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// Client implements datasource.DataSource over HTTP.
type Client struct {
	baseURL     string
	apiKey      string
	category    string
	perPage     int
	client      *http.Client
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
	logger      logrus.FieldLogger
	metrics     *observability.Metrics
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.client = client
	}
}

// WithMaxRetries sets maximum retry attempts. Negative values mean no retries.
func WithMaxRetries(n int) ClientOption {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		c.retryDelay = d
	}
}

// WithMaxDelay sets maximum retry delay.
func WithMaxDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		c.maxDelay = d
	}
}

// WithAPIKey sets the demo API key header.
func WithAPIKey(key string) ClientOption {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithCategory sets the coin category filter.
func WithCategory(category string) ClientOption {
	return func(c *Client) {
		c.category = category
	}
}

// WithPerPage sets the page size.
func WithPerPage(n int) ClientOption {
	return func(c *Client) {
		c.perPage = n
	}
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) ClientOption {
	return func(c *Client) {
		c.logger = l
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *observability.Metrics) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}

// NewClient creates a market data client. An empty baseURL uses DefaultBaseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		category:    DefaultCategory,
		perPage:     DefaultPerPage,
		client:      &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.maxRetries < 0 {
		c.maxRetries = 0
	}
	if c.logger == nil {
		c.logger = logging.Discard()
	}
	return c
}

// coin is one entry of /coins/markets. Nullable numbers decode to nil.
type coin struct {
	ID                       string       `json:"id"`
	Symbol                   string       `json:"symbol"`
	Name                     string       `json:"name"`
	MarketCap                *json.Number `json:"market_cap"`
	TotalVolume              *json.Number `json:"total_volume"`
	PriceChangePercentage24h *json.Number `json:"price_change_percentage_24h"`
}

// Fetch retrieves one page of markets and maps each coin to a raw record.
func (c *Client) Fetch(ctx context.Context) ([]domain.RawRecord, error) {
	start := time.Now()
	body, err := c.get(ctx, "/coins/markets", c.marketsQuery())
	c.metrics.RecordSourceCall(sourceName, time.Since(start), err)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var coins []coin
	if err := dec.Decode(&coins); err != nil {
		return nil, fmt.Errorf("decode markets: %w", err)
	}

	records := make([]domain.RawRecord, 0, len(coins))
	for _, cn := range coins {
		records = append(records, toRawRecord(cn))
	}

	c.logger.WithFields(logrus.Fields{
		"category": c.category,
		"coins":    len(records),
		"elapsed":  time.Since(start).String(),
	}).Debug("fetched market data")

	return records, nil
}

func (c *Client) marketsQuery() url.Values {
	q := url.Values{}
	q.Set("vs_currency", "usd")
	if c.category != "" {
		q.Set("category", c.category)
	}
	q.Set("order", "market_cap_desc")
	q.Set("per_page", strconv.Itoa(c.perPage))
	q.Set("page", "1")
	q.Set("price_change_percentage", "24h")
	return q
}

// toRawRecord keeps missing numbers absent so normalization drops the record.
func toRawRecord(cn coin) domain.RawRecord {
	name := cn.Name
	if name == "" {
		name = cn.ID
	}
	rec := domain.RawRecord{"name": name}
	if cn.MarketCap != nil {
		rec["market_cap"] = *cn.MarketCap
	}
	if cn.TotalVolume != nil {
		rec["total_volume"] = *cn.TotalVolume
	}
	if cn.PriceChangePercentage24h != nil {
		if v, err := volatilityFromChange(*cn.PriceChangePercentage24h); err == nil {
			rec["volatility"] = v
		}
	}
	return rec
}

// volatilityFromChange converts a signed 24h percentage change to a [0,1]-scaled magnitude.
func volatilityFromChange(pct json.Number) (float64, error) {
	d, err := decimal.NewFromString(pct.String())
	if err != nil {
		return 0, err
	}
	v, _ := d.Abs().Div(decimal.NewFromInt(100)).Float64()
	return v, nil
}

// get performs a GET with retries and exponential backoff.
// Transport errors, 429 and 5xx are retried; other statuses fail immediately.
func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.WithFields(logrus.Fields{
				"attempt": attempt,
				"delay":   delay.String(),
				"error":   lastErr,
			}).Warn("retrying market request")

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			// Exponential backoff
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if c.apiKey != "" {
			req.Header.Set(apiKeyHeader, c.apiKey)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		// Handle rate limiting
		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = errors.New("rate limited (429)")
			continue
		}

		if resp.StatusCode >= http.StatusInternalServerError {
			lastErr = &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
			continue
		}

		if resp.StatusCode != http.StatusOK {
			return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
		}

		return respBody, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

var _ datasource.DataSource = (*Client)(nil)
