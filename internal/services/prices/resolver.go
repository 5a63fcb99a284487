package prices

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/pulse/internal/common"
	"github.com/ternarybob/pulse/internal/interfaces"
	"github.com/ternarybob/pulse/internal/models"
)

// ResolverOptions configures Resolver
type ResolverOptions struct {
	LookbackDays     int
	EndDateFallback  bool
	CandidateRetries int // Retries for every ticker candidate except the last
	FinalRetries     int // Retries for the last candidate; negative uses the provider default
}

// DefaultResolverOptions returns 30 day lookback, fallback on, 1 candidate retry
func DefaultResolverOptions() ResolverOptions {
	return ResolverOptions{
		LookbackDays:     DefaultLookbackDays,
		EndDateFallback:  true,
		CandidateRetries: 1,
		FinalRetries:     -1,
	}
}

// Resolver turns tickers into first/last close records over a date range.
// Tickers are resolved one at a time; provider quota is the bottleneck.
type Resolver struct {
	provider   interfaces.PriceProvider
	normalizer *common.TickerNormalizer
	series     *Cache[models.PriceSeries]
	records    *Cache[models.PerformanceRecord]
	opts       ResolverOptions
	logger     arbor.ILogger
}

// NewResolver creates a resolver. series and records may be nil to disable caching.
func NewResolver(
	provider interfaces.PriceProvider,
	normalizer *common.TickerNormalizer,
	series *Cache[models.PriceSeries],
	records *Cache[models.PerformanceRecord],
	opts ResolverOptions,
	logger arbor.ILogger,
) *Resolver {
	if normalizer == nil {
		normalizer = common.NewTickerNormalizer(nil)
	}
	if opts.LookbackDays <= 0 {
		opts.LookbackDays = DefaultLookbackDays
	}
	return &Resolver{
		provider:   provider,
		normalizer: normalizer,
		series:     series,
		records:    records,
		opts:       opts,
		logger:     logger,
	}
}

// ResolveBatch resolves every ticker over [start, end]. The result covers every
// requested ticker. When ctx ends, unresolved tickers get transport failures.
func (r *Resolver) ResolveBatch(ctx context.Context, tickers []string, start, end time.Time, periodName string) map[string]models.Result {
	results := make(map[string]models.Result, len(tickers))

	for i, ticker := range tickers {
		if _, done := results[ticker]; done {
			continue
		}

		if err := ctx.Err(); err != nil {
			r.logger.Warn().
				Int("remaining", len(tickers)-i).
				Err(err).
				Msg("Batch cancelled, marking remaining tickers failed")
			for _, rest := range tickers[i:] {
				if _, done := results[rest]; !done {
					results[rest] = models.Failed(models.NewFailureRecord(rest, models.WrapPriceError(models.ErrorKindTransport, rest, err)))
				}
			}
			break
		}

		record, err := r.Resolve(ctx, ticker, start, end, periodName)
		if err != nil {
			r.logger.Warn().
				Str("ticker", ticker).
				Str("period", periodName).
				Str("kind", string(models.KindOf(err))).
				Err(err).
				Msg("Failed to resolve ticker performance")
			results[ticker] = models.Failed(models.NewFailureRecord(ticker, err))
			continue
		}

		results[ticker] = models.Success(record)
	}

	return results
}

// Resolve resolves one ticker over [start, end], using the record cache
func (r *Resolver) Resolve(ctx context.Context, ticker string, start, end time.Time, periodName string) (models.PerformanceRecord, error) {
	fetch := func(ctx context.Context) (models.PerformanceRecord, error) {
		return r.resolve(ctx, ticker, start, end, periodName)
	}
	if r.records == nil {
		return fetch(ctx)
	}

	key := fmt.Sprintf("%s_%s_%s", ticker, start.Format(models.DateFormat), end.Format(models.DateFormat))
	record, err := r.records.GetOrFetch(ctx, key, fetch)
	if err != nil {
		return models.PerformanceRecord{}, err
	}
	record.PeriodName = periodName
	return record, nil
}

func (r *Resolver) resolve(ctx context.Context, ticker string, start, end time.Time, periodName string) (models.PerformanceRecord, error) {
	series, symbol, err := r.FetchSeries(ctx, ticker)
	if err != nil {
		return models.PerformanceRecord{}, err
	}

	firstDate, firstClose, err := NearestDate(series, start, r.opts.LookbackDays)
	if err != nil {
		return models.PerformanceRecord{}, models.WrapPriceError(models.ErrorKindNoDataForDate, ticker, err)
	}

	lastDate, lastClose, err := NearestDate(series, end, r.opts.LookbackDays)
	fallback := false
	if err != nil {
		if !r.opts.EndDateFallback {
			return models.PerformanceRecord{}, models.WrapPriceError(models.ErrorKindNoDataForDate, ticker, err)
		}
		r.logger.Warn().
			Str("ticker", ticker).
			Str("end", end.Format(models.DateFormat)).
			Str("start_date", firstDate).
			Msg("No close near end date, using start close")
		lastDate, lastClose, fallback = firstDate, firstClose, true
	}

	// A start lookup can land after the end lookup when the range is shorter than a market gap
	if lastDate < firstDate {
		lastDate, lastClose = firstDate, firstClose
	}

	record := models.NewPerformanceRecord(ticker, periodName, firstDate, firstClose, lastDate, lastClose)
	record.ResolvedSymbol = symbol
	record.Source = series.Source
	record.EndDateFallback = fallback

	r.logger.Debug().
		Str("ticker", ticker).
		Str("symbol", symbol).
		Str("first_date", firstDate).
		Str("last_date", lastDate).
		Float64("pct_change", record.PctChange).
		Msg("Resolved ticker performance")

	return record, nil
}

// FetchSeries tries every ticker variation in order and returns the first non-empty
// series with the symbol that produced it. When every candidate fails with a data
// error the ticker is reported invalid; otherwise the last error kind is kept.
func (r *Resolver) FetchSeries(ctx context.Context, ticker string) (models.PriceSeries, string, error) {
	candidates := r.normalizer.Variations(ticker)
	if len(candidates) == 0 {
		return models.PriceSeries{}, "", models.NewPriceError(models.ErrorKindInvalidTicker, ticker, "empty ticker")
	}

	var lastErr error
	allDataErrors := true
	for i, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			return models.PriceSeries{}, "", models.WrapPriceError(models.ErrorKindTransport, ticker, err)
		}

		retries := r.opts.CandidateRetries
		if i == len(candidates)-1 {
			retries = r.opts.FinalRetries
		}

		series, err := r.fetchCandidate(ctx, candidate, retries)
		if err == nil && !series.IsEmpty() {
			if candidate != ticker {
				r.logger.Debug().Str("ticker", ticker).Str("symbol", candidate).Msg("Resolved ticker variation")
			}
			return series, candidate, nil
		}
		if err == nil {
			err = models.NewPriceError(models.ErrorKindProviderData, candidate, "empty series")
		}

		lastErr = err
		if kind := models.KindOf(err); kind != models.ErrorKindProviderData && kind != models.ErrorKindInvalidTicker {
			allDataErrors = false
		}

		r.logger.Debug().
			Str("ticker", ticker).
			Str("candidate", candidate).
			Int("candidate_index", i).
			Err(err).
			Msg("Ticker candidate failed")
	}

	if allDataErrors {
		return models.PriceSeries{}, "", &models.PriceError{
			Kind:    models.ErrorKindInvalidTicker,
			Ticker:  ticker,
			Message: fmt.Sprintf("no data for any of %v: %v", candidates, lastErr),
			Err:     lastErr,
		}
	}
	return models.PriceSeries{}, "", lastErr
}

func (r *Resolver) fetchCandidate(ctx context.Context, candidate string, retries int) (models.PriceSeries, error) {
	fetch := func(ctx context.Context) (models.PriceSeries, error) {
		if rp, ok := r.provider.(RetryBudgetProvider); ok && retries >= 0 {
			return rp.FetchDailySeriesWithRetries(ctx, candidate, retries)
		}
		return r.provider.FetchDailySeries(ctx, candidate)
	}
	if r.series == nil {
		return fetch(ctx)
	}
	return r.series.GetOrFetch(ctx, candidate, fetch)
}
