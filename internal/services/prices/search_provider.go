package prices

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/pulse/internal/common"
	"github.com/ternarybob/pulse/internal/interfaces"
	"github.com/ternarybob/pulse/internal/models"
	"github.com/ternarybob/pulse/internal/services/transform"
)

// ProviderSearch is the provider name used in config and records
const ProviderSearch = "search"

// searchQuote is one ticker entry of a search reply
type searchQuote struct {
	CompanyName  string             `json:"company_name"`
	CurrentPrice *float64           `json:"current_price"`
	Date         string             `json:"date"`
	Closes       map[string]float64 `json:"closes"`
	StartDate    string             `json:"start_date"`
	StartPrice   *float64           `json:"start_price"`
	EndDate      string             `json:"end_date"`
	EndPrice     *float64           `json:"end_price"`
}

// SearchProvider asks a web-search enabled language model for recent closes
type SearchProvider struct {
	llm     interfaces.ContentGenerator
	model   string
	days    int
	limiter *RateLimiter
	clock   common.Clock
	logger  arbor.ILogger
}

// NewSearchProvider creates the LLM search provider. days is how much history to request.
func NewSearchProvider(llm interfaces.ContentGenerator, model string, days int, limiter *RateLimiter, clock common.Clock, logger arbor.ILogger) *SearchProvider {
	if clock == nil {
		clock = common.SystemClock()
	}
	if days <= 0 {
		days = DefaultLookbackDays
	}
	return &SearchProvider{
		llm:     llm,
		model:   model,
		days:    days,
		limiter: limiter,
		clock:   clock,
		logger:  logger,
	}
}

// Name implements interfaces.PriceProvider
func (p *SearchProvider) Name() string {
	return ProviderSearch
}

// FetchDailySeries implements interfaces.PriceProvider
func (p *SearchProvider) FetchDailySeries(ctx context.Context, ticker string) (models.PriceSeries, error) {
	if p.limiter != nil {
		if err := p.limiter.Acquire(ctx); err != nil {
			return models.PriceSeries{}, models.WrapPriceError(models.ErrorKindTransport, ticker, err)
		}
	}

	now := p.clock.Now()
	resp, err := p.llm.GenerateContent(ctx, &interfaces.ContentRequest{
		Model:        p.model,
		Messages:     []interfaces.Message{{Role: "user", Content: p.buildPrompt(ticker, now)}},
		GoogleSearch: true,
	})
	if err != nil {
		return models.PriceSeries{}, classifyLLMError(ticker, err)
	}

	series, err := ParseSearchReply(resp.Text, ticker, now)
	if err != nil {
		return models.PriceSeries{}, models.WrapPriceError(models.ErrorKindProviderData, ticker, err)
	}

	p.logger.Debug().
		Str("ticker", ticker).
		Int("days", series.Len()).
		Int("sources", len(resp.Sources)).
		Msg("Parsed search price reply")

	return series, nil
}

func (p *SearchProvider) buildPrompt(ticker string, now time.Time) string {
	from := now.AddDate(0, 0, -p.days)
	return fmt.Sprintf(`Return ONLY a JSON object (no markdown, no explanation, no prose) with the daily closing stock prices for %s from %s to %s.

Format:
{
    "%s": {
        "company_name": "Apple Inc.",
        "current_price": 212.44,
        "date": "%s",
        "closes": {"%s": 212.44}
    }
}

Use the most recent closing prices available from reliable financial sources. Use YYYY-MM-DD dates and include only trading days.`,
		ticker, from.Format("January 02, 2006"), now.Format("January 02, 2006"),
		ticker, now.Format(models.DateFormat), now.Format(models.DateFormat))
}

// ParseSearchReply extracts the first JSON object of an LLM reply and builds a series for ticker.
// Accepted shapes: closes map, current_price with date, and start/end price pairs.
func ParseSearchReply(text, ticker string, now time.Time) (models.PriceSeries, error) {
	var reply map[string]searchQuote
	if err := transform.DecodeFirstJSONObject(text, &reply); err != nil {
		return models.PriceSeries{}, fmt.Errorf("failed to decode reply: %w", err)
	}

	quote, ok := reply[ticker]
	if !ok {
		for k, v := range reply {
			if strings.EqualFold(k, ticker) {
				quote, ok = v, true
				break
			}
		}
	}
	if !ok {
		return models.PriceSeries{}, fmt.Errorf("reply has no entry for %s", ticker)
	}

	series := models.NewPriceSeries(ticker, ProviderSearch)
	series.Name = strings.TrimSpace(quote.CompanyName)
	for date, c := range quote.Closes {
		if t, err := time.Parse(models.DateFormat, date); err == nil {
			series.Add(t, c)
		}
	}
	addDated(series, quote.StartDate, quote.StartPrice)
	addDated(series, quote.EndDate, quote.EndPrice)

	if quote.CurrentPrice != nil {
		date := quote.Date
		if date == "" {
			date = previousWeekday(now, false).Format(models.DateFormat)
		}
		addDated(series, date, quote.CurrentPrice)
	}

	if series.IsEmpty() {
		return models.PriceSeries{}, fmt.Errorf("reply for %s contains no prices", ticker)
	}
	return series, nil
}

func addDated(series models.PriceSeries, date string, price *float64) {
	if price == nil || date == "" {
		return
	}
	if t, err := time.Parse(models.DateFormat, date); err == nil {
		series.Add(t, *price)
	}
}

// classifyLLMError maps LLM client errors onto price error kinds
func classifyLLMError(ticker string, err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429") || strings.Contains(msg, "resource_exhausted") || strings.Contains(msg, "rate limit") || strings.Contains(msg, "quota"):
		return models.WrapPriceError(models.ErrorKindRateLimitExceeded, ticker, err)
	default:
		return models.WrapPriceError(models.ErrorKindTransport, ticker, err)
	}
}
