package alphavantage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/ternarybob/arbor"
)

const (
	// DefaultBaseURL is the Alpha Vantage query endpoint.
	DefaultBaseURL = "https://www.alphavantage.co/query"

	// DefaultTimeout is the default HTTP timeout.
	DefaultTimeout = 30 * time.Second
)

// Client is an Alpha Vantage API client.
// Quota enforcement is left to the caller.
type Client struct {
	baseURL    string
	apiKey     string
	outputSize string
	httpClient *http.Client
	logger     arbor.ILogger
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets a logger.
func WithLogger(logger arbor.ILogger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithDefaultOutputSize sets the output size used when a query does not override it.
func WithDefaultOutputSize(size string) ClientOption {
	return func(c *Client) {
		if size != "" {
			c.outputSize = size
		}
	}
}

// NewClient creates a new Alpha Vantage API client.
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		apiKey:     apiKey,
		outputSize: OutputSizeCompact,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// get performs a GET request and decodes the top-level JSON object.
// Quota and error fields carried in a 200 body are converted to typed errors.
func (c *Client) get(ctx context.Context, function string, params url.Values) (map[string]json.RawMessage, error) {
	if params == nil {
		params = url.Values{}
	}
	params.Set("function", function)
	params.Set("apikey", c.apiKey)

	reqURL := fmt.Sprintf("%s?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if c.logger != nil {
		c.logger.Debug().
			Str("function", function).
			Str("symbol", params.Get("symbol")).
			Msg("Alpha Vantage API request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &RateLimitError{RetryAfter: time.Minute}
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(body),
			Function:   function,
		}
	}

	var payload map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, &PayloadError{Symbol: params.Get("symbol"), Message: fmt.Sprintf("failed to decode response: %v", err)}
	}

	for _, key := range []string{noteKey, informationKey} {
		if raw, ok := payload[key]; ok {
			return nil, &RateLimitError{Message: rawString(raw), RetryAfter: time.Minute}
		}
	}
	if raw, ok := payload[errorMessageKey]; ok {
		return nil, &PayloadError{Symbol: params.Get("symbol"), Message: rawString(raw)}
	}

	return payload, nil
}

// GetDailySeries retrieves the daily close series for a symbol.
// Symbol format is the plain exchange ticker (e.g., "AAPL", "BRK.B").
func (c *Client) GetDailySeries(ctx context.Context, symbol string, opts ...QueryOption) (*DailySeries, error) {
	params := &queryParams{
		OutputSize: c.outputSize,
	}
	for _, opt := range opts {
		opt(params)
	}

	query := url.Values{}
	query.Set("symbol", symbol)
	if params.OutputSize != "" {
		query.Set("outputsize", params.OutputSize)
	}

	payload, err := c.get(ctx, FunctionTimeSeriesDaily, query)
	if err != nil {
		return nil, err
	}

	raw, ok := payload[timeSeriesDailyKey]
	if !ok {
		return nil, &PayloadError{Symbol: symbol, Message: fmt.Sprintf("missing %q in response", timeSeriesDailyKey)}
	}

	series := &DailySeries{}
	if err := json.Unmarshal(raw, &series.Bars); err != nil {
		return nil, &PayloadError{Symbol: symbol, Message: fmt.Sprintf("malformed time series: %v", err)}
	}
	if meta, ok := payload[metaDataKey]; ok {
		// Meta data is informational only
		_ = json.Unmarshal(meta, &series.Meta)
	}

	return series, nil
}

// rawString returns a JSON string value, or the raw text when it is not a string
func rawString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
