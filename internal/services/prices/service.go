package prices

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/pulse/internal/common"
	"github.com/ternarybob/pulse/internal/models"
)

// Service is the price half of the core API: batch performance and current prices
type Service struct {
	resolver *Resolver
	current  *Cache[models.Quote]
	clock    common.Clock
	logger   arbor.ILogger
}

// NewService creates a price service. current may be nil to disable quote caching.
func NewService(resolver *Resolver, current *Cache[models.Quote], clock common.Clock, logger arbor.ILogger) *Service {
	if clock == nil {
		clock = common.SystemClock()
	}
	return &Service{
		resolver: resolver,
		current:  current,
		clock:    clock,
		logger:   logger,
	}
}

// Now returns the service clock time
func (s *Service) Now() time.Time {
	return s.clock.Now()
}

// GetBatchPricePerformance resolves first/last closes for every ticker over [start, end]
func (s *Service) GetBatchPricePerformance(ctx context.Context, tickers []string, start, end time.Time, periodName string) map[string]models.Result {
	started := s.clock.Now()
	results := s.resolver.ResolveBatch(ctx, tickers, start, end, periodName)

	failed := 0
	for _, r := range results {
		if !r.OK() {
			failed++
		}
	}

	s.logger.Info().
		Str("period", periodName).
		Str("start", start.Format(models.DateFormat)).
		Str("end", end.Format(models.DateFormat)).
		Int("tickers", len(tickers)).
		Int("failed", failed).
		Dur("elapsed", s.clock.Now().Sub(started)).
		Msg("Resolved batch price performance")

	return results
}

// GetCurrentPrice returns the close on the nearest trading day up to today
func (s *Service) GetCurrentPrice(ctx context.Context, ticker string) (models.Quote, error) {
	fetch := func(ctx context.Context) (models.Quote, error) {
		series, symbol, err := s.resolver.FetchSeries(ctx, ticker)
		if err != nil {
			return models.Quote{}, err
		}

		date, price, err := NearestDate(series, s.clock.Now(), s.resolver.opts.LookbackDays)
		if err != nil {
			return models.Quote{}, err
		}

		p := models.Round2(price)
		source := series.Source
		if symbol != ticker {
			source = source + ":" + symbol
		}
		name := ticker
		if series.Name != "" {
			name = series.Name
		}
		return models.Quote{
			Ticker:       ticker,
			DisplayName:  name,
			CurrentPrice: &p,
			Date:         date,
			Source:       source,
		}, nil
	}

	if s.current == nil {
		return fetch(ctx)
	}
	return s.current.GetOrFetch(ctx, ticker, fetch)
}

// GetCurrentPrices returns a quote per ticker. Unresolved tickers have a nil CurrentPrice.
func (s *Service) GetCurrentPrices(ctx context.Context, tickers []string) map[string]models.Quote {
	quotes := make(map[string]models.Quote, len(tickers))
	for _, ticker := range tickers {
		if _, done := quotes[ticker]; done {
			continue
		}

		quote, err := s.GetCurrentPrice(ctx, ticker)
		if err != nil {
			s.logger.Warn().
				Str("ticker", ticker).
				Str("kind", string(models.KindOf(err))).
				Err(err).
				Msg("Failed to resolve current price")
			quotes[ticker] = models.Quote{Ticker: ticker, DisplayName: ticker, Error: err.Error()}
			continue
		}
		quotes[ticker] = quote
	}
	return quotes
}
