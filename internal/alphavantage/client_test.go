package alphavantage

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dailyFixture = `{
  "Meta Data": {"1. Information": "Daily Prices", "2. Symbol": "AAPL", "3. Last Refreshed": "2024-01-05"},
  "Time Series (Daily)": {
    "2024-01-05": {"1. open": "181.99", "2. high": "182.76", "3. low": "180.17", "4. close": "181.18", "5. volume": "62303300"},
    "2024-01-04": {"1. open": "182.15", "2. high": "183.09", "3. low": "180.88", "4. close": "181.91", "5. volume": "71983600"},
    "2024-01-03": {"1. open": "184.22", "2. high": "185.88", "3. low": "183.43", "4. close": "bad", "5. volume": "58414500"}
  }
}`

func newTestServer(t *testing.T, status int, body string) (*httptest.Server, *[]string) {
	t.Helper()
	var queries []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		queries = append(queries, r.URL.RawQuery)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &queries
}

func TestGetDailySeries_Success(t *testing.T) {
	srv, queries := newTestServer(t, http.StatusOK, dailyFixture)
	client := NewClient("test-key", WithBaseURL(srv.URL), WithDefaultOutputSize(OutputSizeFull))

	series, err := client.GetDailySeries(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "AAPL", series.Meta.Symbol)
	assert.Len(t, series.Bars, 3)

	closes, skipped := series.Closes()
	assert.Equal(t, 1, skipped)
	assert.Equal(t, 181.18, closes["2024-01-05"])
	assert.Equal(t, 181.91, closes["2024-01-04"])

	require.Len(t, *queries, 1)
	assert.Contains(t, (*queries)[0], "function=TIME_SERIES_DAILY")
	assert.Contains(t, (*queries)[0], "outputsize=full")
	assert.Contains(t, (*queries)[0], "apikey=test-key")
	assert.Contains(t, (*queries)[0], "symbol=AAPL")
}

func TestGetDailySeries_PayloadErrors(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          string
		wantRateLimit bool
		wantPayload   bool
		wantAPI       bool
	}{
		{name: "note field", status: 200, body: `{"Note": "Thank you for using Alpha Vantage! Our standard API call frequency is 5 calls per minute"}`, wantRateLimit: true},
		{name: "information field", status: 200, body: `{"Information": "daily rate limit reached"}`, wantRateLimit: true},
		{name: "error message", status: 200, body: `{"Error Message": "Invalid API call"}`, wantPayload: true},
		{name: "missing series", status: 200, body: `{"Meta Data": {}}`, wantPayload: true},
		{name: "malformed json", status: 200, body: `{not json`, wantPayload: true},
		{name: "http 429", status: 429, body: ``, wantRateLimit: true},
		{name: "http 503", status: 503, body: `unavailable`, wantAPI: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newTestServer(t, tt.status, tt.body)
			client := NewClient("k", WithBaseURL(srv.URL))

			_, err := client.GetDailySeries(context.Background(), "XYZ")
			require.Error(t, err)

			var rl *RateLimitError
			var pe *PayloadError
			var ae *APIError
			assert.Equal(t, tt.wantRateLimit, errors.As(err, &rl), "rate limit: %v", err)
			assert.Equal(t, tt.wantPayload, errors.As(err, &pe), "payload: %v", err)
			assert.Equal(t, tt.wantAPI, errors.As(err, &ae), "api: %v", err)
		})
	}
}

func TestGetDailySeries_QueryOverride(t *testing.T) {
	srv, queries := newTestServer(t, http.StatusOK, dailyFixture)
	client := NewClient("k", WithBaseURL(srv.URL))

	_, err := client.GetDailySeries(context.Background(), "AAPL", WithOutputSize(OutputSizeFull))
	require.NoError(t, err)
	assert.Contains(t, (*queries)[0], "outputsize=full")
}
