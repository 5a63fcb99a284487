// Package alphavantage provides a client for the Alpha Vantage time series REST API.
package alphavantage

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// FunctionTimeSeriesDaily is the daily OHLCV endpoint
	FunctionTimeSeriesDaily = "TIME_SERIES_DAILY"

	// OutputSizeCompact returns the latest ~100 trading days
	OutputSizeCompact = "compact"
	// OutputSizeFull returns the full history
	OutputSizeFull = "full"

	timeSeriesDailyKey = "Time Series (Daily)"
	metaDataKey        = "Meta Data"
	noteKey            = "Note"
	informationKey     = "Information"
	errorMessageKey    = "Error Message"
)

// QueryOption represents an optional parameter for API queries.
type QueryOption func(*queryParams)

type queryParams struct {
	OutputSize string
}

// WithOutputSize overrides the client's output size for one query.
func WithOutputSize(size string) QueryOption {
	return func(p *queryParams) {
		p.OutputSize = size
	}
}

// MetaData is the "Meta Data" block of a time series response.
type MetaData struct {
	Information   string `json:"1. Information"`
	Symbol        string `json:"2. Symbol"`
	LastRefreshed string `json:"3. Last Refreshed"`
	OutputSize    string `json:"4. Output Size"`
	TimeZone      string `json:"5. Time Zone"`
}

// DailyBar is one day of a TIME_SERIES_DAILY response. Values arrive as strings.
type DailyBar struct {
	Open   string `json:"1. open"`
	High   string `json:"2. high"`
	Low    string `json:"3. low"`
	Close  string `json:"4. close"`
	Volume string `json:"5. volume"`
}

// CloseValue parses the close price
func (b DailyBar) CloseValue() (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(b.Close), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid close %q: %w", b.Close, err)
	}
	return v, nil
}

// DailySeries is a decoded TIME_SERIES_DAILY response keyed by ISO date.
type DailySeries struct {
	Meta MetaData
	Bars map[string]DailyBar
}

// Closes returns the parsed close of every bar. Bars with unparsable or
// non-positive closes are skipped; the number skipped is returned.
func (s *DailySeries) Closes() (map[string]float64, int) {
	closes := make(map[string]float64, len(s.Bars))
	skipped := 0
	for date, bar := range s.Bars {
		if _, err := time.Parse("2006-01-02", date); err != nil {
			skipped++
			continue
		}
		v, err := bar.CloseValue()
		if err != nil || v <= 0 {
			skipped++
			continue
		}
		closes[date] = v
	}
	return closes, skipped
}

// APIError represents an HTTP level error from the Alpha Vantage API.
type APIError struct {
	StatusCode int
	Message    string
	Function   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("Alpha Vantage API error: %s (status: %d, function: %s)", e.Message, e.StatusCode, e.Function)
}

// Temporary reports whether the status indicates a server side failure
func (e *APIError) Temporary() bool {
	return e.StatusCode >= 500
}

// RateLimitError is returned when the API reports an exhausted quota.
// Alpha Vantage signals this with HTTP 200 and a "Note" or "Information" field.
type RateLimitError struct {
	Message    string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("Alpha Vantage rate limit exceeded, retry after %v", e.RetryAfter)
	}
	return fmt.Sprintf("Alpha Vantage rate limit exceeded: %s", e.Message)
}

// PayloadError is returned when a 200 response carries "Error Message"
// or lacks the expected time series.
type PayloadError struct {
	Symbol  string
	Message string
}

func (e *PayloadError) Error() string {
	return fmt.Sprintf("Alpha Vantage payload error for %s: %s", e.Symbol, e.Message)
}
