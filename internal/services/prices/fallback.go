package prices

import (
	"context"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/pulse/internal/interfaces"
	"github.com/ternarybob/pulse/internal/models"
)

// FallbackProvider tries providers in order; the first non-empty series wins.
type FallbackProvider struct {
	providers []interfaces.PriceProvider
	logger    arbor.ILogger
}

// NewFallbackProvider creates a provider chain
func NewFallbackProvider(logger arbor.ILogger, providers ...interfaces.PriceProvider) *FallbackProvider {
	return &FallbackProvider{
		providers: providers,
		logger:    logger,
	}
}

// Name joins the chained provider names
func (f *FallbackProvider) Name() string {
	names := make([]string, 0, len(f.providers))
	for _, p := range f.providers {
		names = append(names, p.Name())
	}
	return strings.Join(names, ">")
}

// FetchDailySeries returns the first provider's non-empty series,
// or the last error when every provider fails.
func (f *FallbackProvider) FetchDailySeries(ctx context.Context, ticker string) (models.PriceSeries, error) {
	return f.fetch(ctx, ticker, func(p interfaces.PriceProvider) (models.PriceSeries, error) {
		return p.FetchDailySeries(ctx, ticker)
	})
}

// FetchDailySeriesWithRetries passes the retry budget to providers that accept one
func (f *FallbackProvider) FetchDailySeriesWithRetries(ctx context.Context, ticker string, retries int) (models.PriceSeries, error) {
	return f.fetch(ctx, ticker, func(p interfaces.PriceProvider) (models.PriceSeries, error) {
		if rp, ok := p.(RetryBudgetProvider); ok {
			return rp.FetchDailySeriesWithRetries(ctx, ticker, retries)
		}
		return p.FetchDailySeries(ctx, ticker)
	})
}

func (f *FallbackProvider) fetch(ctx context.Context, ticker string, call func(interfaces.PriceProvider) (models.PriceSeries, error)) (models.PriceSeries, error) {
	if len(f.providers) == 0 {
		return models.PriceSeries{}, models.NewPriceError(models.ErrorKindProviderData, ticker, "no price providers configured")
	}

	var lastErr error
	for _, p := range f.providers {
		if err := ctx.Err(); err != nil {
			return models.PriceSeries{}, models.WrapPriceError(models.ErrorKindTransport, ticker, err)
		}

		series, err := call(p)
		if err == nil && !series.IsEmpty() {
			return series, nil
		}
		if err == nil {
			err = models.NewPriceError(models.ErrorKindProviderData, ticker, "%s returned an empty series", p.Name())
		}
		lastErr = err

		f.logger.Debug().
			Str("provider", p.Name()).
			Str("ticker", ticker).
			Err(err).
			Msg("Price provider failed, trying next")
	}

	return models.PriceSeries{}, lastErr
}
