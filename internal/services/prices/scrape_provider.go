package prices

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/pulse/internal/common"
	"github.com/ternarybob/pulse/internal/interfaces"
	"github.com/ternarybob/pulse/internal/models"
	"github.com/ternarybob/pulse/internal/services/transform"
)

// ProviderScrape is the provider name used in config and records
const ProviderScrape = "scrape"

// historyDateLayouts are the date formats seen in quote history tables
var historyDateLayouts = []string{"Jan 2, 2006", "Jan 02, 2006", "2006-01-02", "01/02/2006"}

// PageFetcher returns the HTML of a page
type PageFetcher interface {
	FetchPage(ctx context.Context, pageURL string) (string, error)
}

// HTTPStatusError is a non-200 page response
type HTTPStatusError struct {
	StatusCode int
	URL        string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("HTTP %d fetching %s", e.StatusCode, e.URL)
}

// HTTPPageFetcher fetches pages with a plain HTTP client
type HTTPPageFetcher struct {
	client *http.Client
}

// NewHTTPPageFetcher creates a fetcher. Use httpclient.NewBrowserLikeClient for quote sites.
func NewHTTPPageFetcher(client *http.Client) *HTTPPageFetcher {
	return &HTTPPageFetcher{client: client}
}

// FetchPage implements PageFetcher
func (f *HTTPPageFetcher) FetchPage(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &HTTPStatusError{StatusCode: resp.StatusCode, URL: pageURL}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read body: %w", err)
	}
	return string(body), nil
}

// BrowserPageFetcher renders pages in headless Chrome so script-built tables are present
type BrowserPageFetcher struct {
	wait      time.Duration
	userAgent string
	logger    arbor.ILogger
}

// NewBrowserPageFetcher creates a chromedp-backed fetcher
func NewBrowserPageFetcher(wait time.Duration, userAgent string, logger arbor.ILogger) *BrowserPageFetcher {
	return &BrowserPageFetcher{
		wait:      wait,
		userAgent: userAgent,
		logger:    logger,
	}
}

// FetchPage implements PageFetcher
func (f *BrowserPageFetcher) FetchPage(ctx context.Context, pageURL string) (string, error) {
	opts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(1920, 1080),
	)
	if f.userAgent != "" {
		opts = append(opts, chromedp.UserAgent(f.userAgent))
	}

	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(ctx, opts...)
	defer allocatorCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)
	defer browserCancel()

	start := time.Now()
	var html string
	if err := chromedp.Run(browserCtx,
		chromedp.Navigate(pageURL),
		chromedp.Sleep(f.wait),
		chromedp.OuterHTML("html", &html),
	); err != nil {
		return "", fmt.Errorf("failed to render page: %w", err)
	}

	f.logger.Debug().
		Str("url", pageURL).
		Int("html_length", len(html)).
		Dur("render_time", time.Since(start)).
		Msg("Rendered page with headless Chrome")

	return html, nil
}

// ScrapeProvider reads closes from quote history pages.
// Order: history table, then the quote page market fields, then an optional LLM read of the page.
type ScrapeProvider struct {
	baseURL   string
	fetcher   PageFetcher
	limiter   *RateLimiter
	transform *transform.Service
	llm       interfaces.ContentGenerator
	llmModel  string
	clock     common.Clock
	logger    arbor.ILogger
}

// ScrapeOption configures ScrapeProvider
type ScrapeOption func(*ScrapeProvider)

// WithLLMParse enables reading the page with a language model when selectors find nothing
func WithLLMParse(llm interfaces.ContentGenerator, model string, transformer *transform.Service) ScrapeOption {
	return func(p *ScrapeProvider) {
		p.llm = llm
		p.llmModel = model
		p.transform = transformer
	}
}

// WithScrapeClock sets the clock used to date quote-page prices
func WithScrapeClock(clock common.Clock) ScrapeOption {
	return func(p *ScrapeProvider) {
		p.clock = clock
	}
}

// NewScrapeProvider creates the HTML provider
func NewScrapeProvider(baseURL string, fetcher PageFetcher, limiter *RateLimiter, logger arbor.ILogger, opts ...ScrapeOption) *ScrapeProvider {
	p := &ScrapeProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		fetcher: fetcher,
		limiter: limiter,
		clock:   common.SystemClock(),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name implements interfaces.PriceProvider
func (p *ScrapeProvider) Name() string {
	return ProviderScrape
}

// FetchDailySeries implements interfaces.PriceProvider
func (p *ScrapeProvider) FetchDailySeries(ctx context.Context, ticker string) (models.PriceSeries, error) {
	series := models.NewPriceSeries(ticker, ProviderScrape)

	historyURL := fmt.Sprintf("%s/quote/%s/history/", p.baseURL, url.PathEscape(ticker))
	historyHTML, err := p.fetch(ctx, ticker, historyURL)
	if err != nil {
		return models.PriceSeries{}, err
	}

	if n := ParseHistoryTable(historyHTML, series); n > 0 {
		p.logger.Debug().Str("ticker", ticker).Int("rows", n).Msg("Parsed history table")
		return series, nil
	}

	quoteURL := fmt.Sprintf("%s/quote/%s/", p.baseURL, url.PathEscape(ticker))
	quoteHTML, err := p.fetch(ctx, ticker, quoteURL)
	if err != nil {
		return models.PriceSeries{}, err
	}

	if n := ParseQuoteFields(quoteHTML, ticker, p.clock.Now(), series); n > 0 {
		p.logger.Debug().Str("ticker", ticker).Int("fields", n).Msg("Parsed quote page market fields")
		return series, nil
	}

	if p.llm != nil {
		if err := p.parseWithLLM(ctx, ticker, historyHTML, historyURL, series); err != nil {
			p.logger.Warn().Str("ticker", ticker).Err(err).Msg("LLM page parse failed")
		}
		if !series.IsEmpty() {
			return series, nil
		}
	}

	return models.PriceSeries{}, models.NewPriceError(models.ErrorKindProviderData, ticker, "no prices found on quote pages")
}

func (p *ScrapeProvider) fetch(ctx context.Context, ticker, pageURL string) (string, error) {
	if p.limiter != nil {
		if err := p.limiter.Acquire(ctx); err != nil {
			return "", models.WrapPriceError(models.ErrorKindTransport, ticker, err)
		}
	}

	html, err := p.fetcher.FetchPage(ctx, pageURL)
	if err == nil {
		return html, nil
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == http.StatusTooManyRequests:
			return "", models.WrapPriceError(models.ErrorKindRateLimitExceeded, ticker, err)
		case statusErr.StatusCode >= 500:
			return "", models.WrapPriceError(models.ErrorKindTransport, ticker, err)
		default:
			return "", models.WrapPriceError(models.ErrorKindProviderData, ticker, err)
		}
	}
	return "", models.WrapPriceError(models.ErrorKindTransport, ticker, err)
}

func (p *ScrapeProvider) parseWithLLM(ctx context.Context, ticker, html, pageURL string, series models.PriceSeries) error {
	text, err := p.transform.HTMLToMarkdown(html, pageURL)
	if err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("page has no readable text")
	}

	prompt := fmt.Sprintf(`The following is the historical prices page for the stock %s.
Return ONLY a JSON object (no markdown, no explanation) mapping each trading date in YYYY-MM-DD format to its closing price.

Format:
{"2024-01-05": 181.18, "2024-01-04": 181.91}

Page:
%s`, ticker, transform.Truncate(text, 20000))

	resp, err := p.llm.GenerateContent(ctx, &interfaces.ContentRequest{
		Model:    p.llmModel,
		Messages: []interfaces.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return err
	}

	var closes map[string]float64
	if err := transform.DecodeFirstJSONObject(resp.Text, &closes); err != nil {
		return fmt.Errorf("failed to decode reply: %w", err)
	}
	for date, c := range closes {
		if t, err := time.Parse(models.DateFormat, date); err == nil {
			series.Add(t, c)
		}
	}
	return nil
}

// ParseHistoryTable reads Date/Close rows from a quote history table into series.
// Close is the fifth column (Date, Open, High, Low, Close, Adj Close, Volume).
// Dividend and split rows have fewer cells and are skipped.
func ParseHistoryTable(html string, series models.PriceSeries) int {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return 0
	}

	rows := doc.Find(`table[data-test="historical-prices"] tbody tr`)
	if rows.Length() == 0 {
		rows = doc.Find("table tbody tr")
	}

	added := 0
	rows.Each(func(i int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 6 {
			return
		}

		date, ok := parseHistoryDate(strings.TrimSpace(cells.Eq(0).Text()))
		if !ok {
			return
		}
		c, err := parsePrice(cells.Eq(4).Text())
		if err != nil || c <= 0 {
			return
		}

		series.Add(date, c)
		added++
	})
	return added
}

// ParseQuoteFields reads the quote page fin-streamer fields for ticker.
// The regular market price is dated on the most recent weekday up to now;
// the previous close on the weekday before that.
func ParseQuoteFields(html, ticker string, now time.Time, series models.PriceSeries) int {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return 0
	}

	lastSession := previousWeekday(now, false)
	added := 0

	fields := []struct {
		name string
		date time.Time
	}{
		{name: "regularMarketPreviousClose", date: previousWeekday(lastSession, true)},
		{name: "regularMarketPrice", date: lastSession},
	}

	for _, field := range fields {
		selector := fmt.Sprintf(`fin-streamer[data-field=%q][data-symbol=%q]`, field.name, ticker)
		sel := doc.Find(selector).First()
		if sel.Length() == 0 {
			continue
		}

		text := sel.AttrOr("data-value", "")
		if text == "" {
			text = sel.Text()
		}
		c, err := parsePrice(text)
		if err != nil || c <= 0 {
			continue
		}
		series.Add(field.date, c)
		added++
	}
	return added
}

func parseHistoryDate(s string) (time.Time, bool) {
	for _, layout := range historyDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func parsePrice(s string) (float64, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	s = strings.TrimPrefix(s, "$")
	return strconv.ParseFloat(s, 64)
}

// previousWeekday returns t, or when strict the day before t, moved back over weekends
func previousWeekday(t time.Time, strict bool) time.Time {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	if strict {
		day = day.AddDate(0, 0, -1)
	}
	for day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
		day = day.AddDate(0, 0, -1)
	}
	return day
}
