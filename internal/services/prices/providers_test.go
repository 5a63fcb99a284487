package prices

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/pulse/internal/alphavantage"
	"github.com/ternarybob/pulse/internal/interfaces"
	"github.com/ternarybob/pulse/internal/models"
)

func TestAlphaVantageProvider_Classification(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantKind models.ErrorKind
	}{
		{name: "note is rate limit", status: 200, body: `{"Note": "Thank you for using Alpha Vantage!"}`, wantKind: models.ErrorKindRateLimitExceeded},
		{name: "information is rate limit", status: 200, body: `{"Information": "limit"}`, wantKind: models.ErrorKindRateLimitExceeded},
		{name: "error message is data error", status: 200, body: `{"Error Message": "Invalid API call"}`, wantKind: models.ErrorKindProviderData},
		{name: "missing series is data error", status: 200, body: `{"Meta Data": {}}`, wantKind: models.ErrorKindProviderData},
		{name: "empty series is data error", status: 200, body: `{"Time Series (Daily)": {}}`, wantKind: models.ErrorKindProviderData},
		{name: "server error is transport", status: 502, body: `bad gateway`, wantKind: models.ErrorKindTransport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client := alphavantage.NewClient("k", alphavantage.WithBaseURL(srv.URL))
			p := NewAlphaVantageProvider(client, nil, createTestLogger())

			_, err := p.FetchDailySeries(context.Background(), "XYZ")
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, models.KindOf(err))
		})
	}
}

func TestAlphaVantageProvider_Series(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "MSFT", r.URL.Query().Get("symbol"))
		_, _ = w.Write([]byte(`{"Time Series (Daily)": {
			"2024-01-05": {"4. close": "367.75"},
			"2024-01-04": {"4. close": "367.94"}
		}}`))
	}))
	defer srv.Close()

	clock := newFakeClock(date("2024-01-08"))
	limiter := NewPerMinuteLimiter(5, 12500*time.Millisecond, clock)
	p := NewAlphaVantageProvider(alphavantage.NewClient("k", alphavantage.WithBaseURL(srv.URL)), limiter, createTestLogger())

	series, err := p.FetchDailySeries(context.Background(), "MSFT")
	require.NoError(t, err)
	assert.Equal(t, ProviderAlphaVantage, series.Source)
	c, ok := series.Close("2024-01-05")
	require.True(t, ok)
	assert.Equal(t, 367.75, c)
	assert.Equal(t, 1, limiter.Count())
}

const historyPageFixture = `<html><body>
<table data-test="historical-prices"><thead><tr><th>Date</th><th>Open</th><th>High</th><th>Low</th><th>Close</th><th>Adj Close</th><th>Volume</th></tr></thead>
<tbody>
<tr><td>Jan 8, 2024</td><td>182.09</td><td>185.60</td><td>181.50</td><td>185.56</td><td>185.56</td><td>59,144,500</td></tr>
<tr><td>Jan 5, 2024</td><td>181.99</td><td>182.76</td><td>180.17</td><td>181.18</td><td>181.18</td><td>62,303,300</td></tr>
<tr><td>Nov 10, 2023</td><td colspan="6">0.24 Dividend</td></tr>
<tr><td>Jan 4, 2024</td><td>182.15</td><td>183.09</td><td>180.88</td><td>1,181.91</td><td>181.91</td><td>71,983,600</td></tr>
</tbody></table></body></html>`

const quotePageFixture = `<html><body>
<fin-streamer data-symbol="AAPL" data-field="regularMarketPrice" data-value="185.56">185.56</fin-streamer>
<fin-streamer data-symbol="AAPL" data-field="regularMarketPreviousClose">181.18</fin-streamer>
<fin-streamer data-symbol="MSFT" data-field="regularMarketPreviousClose">367.75</fin-streamer>
</body></html>`

func TestParseHistoryTable(t *testing.T) {
	series := models.NewPriceSeries("AAPL", ProviderScrape)
	n := ParseHistoryTable(historyPageFixture, series)

	assert.Equal(t, 3, n)
	c, _ := series.Close("2024-01-08")
	assert.Equal(t, 185.56, c)
	c, _ = series.Close("2024-01-04")
	assert.Equal(t, 1181.91, c, "thousands separators are removed")
}

func TestParseQuoteFields(t *testing.T) {
	series := models.NewPriceSeries("AAPL", ProviderScrape)
	// Monday: price is dated Monday, previous close the Friday before
	n := ParseQuoteFields(quotePageFixture, "AAPL", date("2024-01-08"), series)

	assert.Equal(t, 2, n)
	c, ok := series.Close("2024-01-08")
	require.True(t, ok)
	assert.Equal(t, 185.56, c)
	c, ok = series.Close("2024-01-05")
	require.True(t, ok)
	assert.Equal(t, 181.18, c)
}

type stubFetcher struct {
	pages map[string]string
	calls []string
}

func (f *stubFetcher) FetchPage(ctx context.Context, pageURL string) (string, error) {
	f.calls = append(f.calls, pageURL)
	for suffix, html := range f.pages {
		if strings.HasSuffix(pageURL, suffix) {
			return html, nil
		}
	}
	return "", &HTTPStatusError{StatusCode: http.StatusNotFound, URL: pageURL}
}

type stubGenerator struct {
	reply   string
	err     error
	prompts []string
	search  []bool
}

func (g *stubGenerator) GenerateContent(ctx context.Context, req *interfaces.ContentRequest) (*interfaces.ContentResponse, error) {
	g.prompts = append(g.prompts, req.Messages[0].Content)
	g.search = append(g.search, req.GoogleSearch)
	if g.err != nil {
		return nil, g.err
	}
	return &interfaces.ContentResponse{Text: g.reply, Provider: "stub"}, nil
}

func TestScrapeProvider_HistoryThenQuoteFallback(t *testing.T) {
	fetcher := &stubFetcher{pages: map[string]string{
		"/quote/AAPL/history/": "<html><body>consent wall</body></html>",
		"/quote/AAPL/":         quotePageFixture,
	}}
	p := NewScrapeProvider("https://finance.example.com/", fetcher, nil, createTestLogger(),
		WithScrapeClock(newFakeClock(date("2024-01-08"))))

	series, err := p.FetchDailySeries(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 2, series.Len())
	assert.Equal(t, []string{
		"https://finance.example.com/quote/AAPL/history/",
		"https://finance.example.com/quote/AAPL/",
	}, fetcher.calls)
}

func TestScrapeProvider_NotFoundIsDataError(t *testing.T) {
	p := NewScrapeProvider("https://finance.example.com", &stubFetcher{}, nil, createTestLogger())

	_, err := p.FetchDailySeries(context.Background(), "NOPE")
	require.Error(t, err)
	assert.Equal(t, models.ErrorKindProviderData, models.KindOf(err))
}

func TestHTTPPageFetcher_StatusErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "LIMIT") {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := NewScrapeProvider(srv.URL, NewHTTPPageFetcher(srv.Client()), nil, createTestLogger())

	_, err := p.FetchDailySeries(context.Background(), "LIMIT")
	assert.Equal(t, models.ErrorKindRateLimitExceeded, models.KindOf(err))

	_, err = p.FetchDailySeries(context.Background(), "DOWN")
	assert.Equal(t, models.ErrorKindTransport, models.KindOf(err))
}

func TestParseSearchReply(t *testing.T) {
	now := date("2024-01-08")

	tests := []struct {
		name    string
		reply   string
		want    map[string]float64
		wantErr bool
	}{
		{
			name:  "current price with prose around json",
			reply: "Here you go:\n```json\n{\"AAPL\": {\"company_name\": \"Apple Inc.\", \"current_price\": 185.56, \"date\": \"2024-01-08\"}}\n```",
			want:  map[string]float64{"2024-01-08": 185.56},
		},
		{
			name:  "closes map",
			reply: `{"AAPL": {"closes": {"2024-01-05": 181.18, "2024-01-04": 181.91}}}`,
			want:  map[string]float64{"2024-01-05": 181.18, "2024-01-04": 181.91},
		},
		{
			name:  "start end pair",
			reply: `{"AAPL": {"start_date": "2024-01-02", "start_price": 185.64, "end_date": "2024-01-08", "end_price": 185.56}}`,
			want:  map[string]float64{"2024-01-02": 185.64, "2024-01-08": 185.56},
		},
		{
			name:  "undated current price uses last weekday",
			reply: `{"aapl": {"current_price": 185.56}}`,
			want:  map[string]float64{"2024-01-08": 185.56},
		},
		{
			name:  "trailing prose with braces",
			reply: "{\"AAPL\": {\"current_price\": 185.56, \"date\": \"2024-01-08\"}}\nSources: {Yahoo Finance}",
			want:  map[string]float64{"2024-01-08": 185.56},
		},
		{name: "no json", reply: "I could not find that.", wantErr: true},
		{name: "null price", reply: `{"AAPL": {"company_name": "Apple Inc.", "current_price": null}}`, wantErr: true},
		{name: "other ticker only", reply: `{"MSFT": {"current_price": 367.75}}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			series, err := ParseSearchReply(tt.reply, "AAPL", now)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, series.Closes)
		})
	}
}

func TestSearchProvider_UsesGrounding(t *testing.T) {
	gen := &stubGenerator{reply: `{"GE": {"company_name": "General Electric Company", "current_price": 127.2, "date": "2024-01-05"}}`}
	p := NewSearchProvider(gen, "", 30, nil, newFakeClock(date("2024-01-08")), createTestLogger())

	series, err := p.FetchDailySeries(context.Background(), "GE")
	require.NoError(t, err)
	assert.Equal(t, ProviderSearch, series.Source)
	assert.Equal(t, "General Electric Company", series.Name)
	require.Len(t, gen.search, 1)
	assert.True(t, gen.search[0])
	assert.Contains(t, gen.prompts[0], "GE")

	gen.err = fmt.Errorf("Error 429, RESOURCE_EXHAUSTED")
	_, err = p.FetchDailySeries(context.Background(), "GE")
	assert.Equal(t, models.ErrorKindRateLimitExceeded, models.KindOf(err))
}

func TestFallbackProvider_FirstNonEmptyWins(t *testing.T) {
	primary := newMockProvider()
	primary.name = "primary"
	primary.errs["PM"] = models.NewPriceError(models.ErrorKindRateLimitExceeded, "PM", "quota")

	secondary := newMockProvider()
	secondary.name = "secondary"
	secondary.series["PM"] = seriesOf("PM", map[string]float64{"2024-01-05": 94.1})

	f := NewFallbackProvider(createTestLogger(), primary, secondary)
	assert.Equal(t, "primary>secondary", f.Name())

	series, err := f.FetchDailySeries(context.Background(), "PM")
	require.NoError(t, err)
	assert.Equal(t, 1, series.Len())
	assert.Equal(t, 1, primary.Calls("PM"))
	assert.Equal(t, 1, secondary.Calls("PM"))

	_, err = f.FetchDailySeries(context.Background(), "MO")
	require.Error(t, err)
	assert.Equal(t, models.ErrorKindProviderData, models.KindOf(err))
}
