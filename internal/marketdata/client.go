package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	apperrors "shockstudy/internal/errors"
	"shockstudy/internal/infrastructure"
	"shockstudy/internal/panel"
)

const (
	// DefaultBaseURL is the chart API host
	DefaultBaseURL = "https://query1.finance.yahoo.com"

	// DefaultTimeout is the default HTTP timeout
	DefaultTimeout = 30 * time.Second

	// DefaultRateLimit is the default request rate per second
	DefaultRateLimit = 2

	maxBackoff = 30 * time.Second
)

// Client fetches daily closes and company profiles from a Yahoo-style
// chart API
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	logger     *slog.Logger
	limiter    *rate.Limiter
	maxRetries int
	retryDelay time.Duration
	metrics    *infrastructure.PipelineMetrics
}

// ClientOption configures the Client
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets a logger
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit paces requests to rps per second with the given burst
func WithRateLimit(rps float64, burst int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), max(burst, 1))
	}
}

// WithRetries sets the retry count and the first backoff delay, which
// doubles on each attempt
func WithRetries(n int, delay time.Duration) ClientOption {
	return func(c *Client) {
		c.maxRetries = max(n, 0)
		c.retryDelay = delay
	}
}

// WithMetrics counts every request attempt by endpoint and outcome
func WithMetrics(m *infrastructure.PipelineMetrics) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithUserAgent sets the User-Agent header
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// NewClient creates a new chart API client
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		userAgent:  "Mozilla/5.0",
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     slog.Default(),
		limiter:    rate.NewLimiter(rate.Limit(DefaultRateLimit), 1),
		maxRetries: 3,
		retryDelay: time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError is a non-200 response
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("chart API error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// Retryable reports whether the request may succeed on a later attempt
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// get performs a paced GET with exponential backoff on retryable failures
func (c *Client) get(ctx context.Context, endpoint, path string, params url.Values, result interface{}) error {
	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())

	var lastErr error
	backoff := c.retryDelay
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.DebugContext(ctx, "retrying request",
				"path", path, "attempt", attempt, "backoff", backoff.String(), "error", lastErr)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, maxBackoff)
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		err := c.do(ctx, reqURL, path, result)
		c.metrics.RecordProviderRequest(ctx, endpoint, err)
		if err == nil {
			return nil
		}
		lastErr = err
		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.Retryable() {
			break
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return apperrors.NewNetworkError(fmt.Sprintf("GET %s failed after %d attempts", path, c.maxRetries+1), lastErr)
}

func (c *Client) do(ctx context.Context, reqURL, path string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &APIError{StatusCode: resp.StatusCode, Message: string(body), Endpoint: path}
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return apperrors.NewParsingError(fmt.Sprintf("decode %s", path), err)
	}
	return nil
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
				AdjClose []struct {
					AdjClose []*float64 `json:"adjclose"`
				} `json:"adjclose"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// DailyCloses returns split and dividend adjusted daily closes for
// [from, to), oldest first. Null closes are skipped.
func (c *Client) DailyCloses(ctx context.Context, symbol string, from, to time.Time) ([]panel.Point, error) {
	params := url.Values{}
	params.Set("period1", strconv.FormatInt(from.Unix(), 10))
	params.Set("period2", strconv.FormatInt(to.Unix(), 10))
	params.Set("interval", "1d")
	params.Set("events", "div,split")

	var resp chartResponse
	if err := c.get(ctx, "chart", "/v8/finance/chart/"+url.PathEscape(symbol), params, &resp); err != nil {
		return nil, err
	}
	if e := resp.Chart.Error; e != nil {
		return nil, &APIError{StatusCode: http.StatusOK, Message: e.Code + ": " + e.Description, Endpoint: symbol}
	}
	if len(resp.Chart.Result) == 0 {
		return nil, fmt.Errorf("no data for %s", symbol)
	}

	res := resp.Chart.Result[0]
	var closes []*float64
	if len(res.Indicators.AdjClose) > 0 && len(res.Indicators.AdjClose[0].AdjClose) > 0 {
		closes = res.Indicators.AdjClose[0].AdjClose
	} else if len(res.Indicators.Quote) > 0 {
		closes = res.Indicators.Quote[0].Close
	}

	out := make([]panel.Point, 0, len(res.Timestamp))
	for i, ts := range res.Timestamp {
		if i >= len(closes) || closes[i] == nil || *closes[i] <= 0 {
			continue
		}
		out = append(out, panel.Point{Date: time.Unix(ts, 0).UTC(), Value: *closes[i]})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no closes for %s", symbol)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

type profileResponse struct {
	QuoteSummary struct {
		Result []struct {
			AssetProfile struct {
				Sector       string `json:"sector"`
				SectorDisp   string `json:"sectorDisp"`
				Industry     string `json:"industry"`
				IndustryDisp string `json:"industryDisp"`
			} `json:"assetProfile"`
		} `json:"result"`
	} `json:"quoteSummary"`
}

// Profile is a company's sector classification
type Profile struct {
	Sector   string
	Industry string
}

// Profile returns the sector and industry of symbol. Empty fields mean the
// provider has no classification.
func (c *Client) Profile(ctx context.Context, symbol string) (Profile, error) {
	params := url.Values{}
	params.Set("modules", "assetProfile")

	var resp profileResponse
	if err := c.get(ctx, "profile", "/v10/finance/quoteSummary/"+url.PathEscape(symbol), params, &resp); err != nil {
		return Profile{}, err
	}
	if len(resp.QuoteSummary.Result) == 0 {
		return Profile{}, nil
	}
	a := resp.QuoteSummary.Result[0].AssetProfile
	p := Profile{Sector: firstNonEmpty(a.Sector, a.SectorDisp, a.IndustryDisp, a.Industry)}
	p.Industry = firstNonEmpty(a.Industry, a.IndustryDisp)
	return p, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
