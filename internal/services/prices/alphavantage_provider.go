package prices

import (
	"context"
	"errors"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/pulse/internal/alphavantage"
	"github.com/ternarybob/pulse/internal/models"
)

// ProviderAlphaVantage is the provider name used in config and records
const ProviderAlphaVantage = "alphavantage"

// AlphaVantageProvider fetches TIME_SERIES_DAILY through the Alpha Vantage REST API.
// Every request first acquires the shared quota limiter.
type AlphaVantageProvider struct {
	client  *alphavantage.Client
	limiter *RateLimiter
	logger  arbor.ILogger
}

// NewAlphaVantageProvider creates the REST provider
func NewAlphaVantageProvider(client *alphavantage.Client, limiter *RateLimiter, logger arbor.ILogger) *AlphaVantageProvider {
	return &AlphaVantageProvider{
		client:  client,
		limiter: limiter,
		logger:  logger,
	}
}

// Name implements interfaces.PriceProvider
func (p *AlphaVantageProvider) Name() string {
	return ProviderAlphaVantage
}

// FetchDailySeries implements interfaces.PriceProvider
func (p *AlphaVantageProvider) FetchDailySeries(ctx context.Context, ticker string) (models.PriceSeries, error) {
	if p.limiter != nil {
		if err := p.limiter.Acquire(ctx); err != nil {
			return models.PriceSeries{}, models.WrapPriceError(models.ErrorKindTransport, ticker, err)
		}
	}

	daily, err := p.client.GetDailySeries(ctx, ticker)
	if err != nil {
		return models.PriceSeries{}, classifyAlphaVantageError(ticker, err)
	}

	closes, skipped := daily.Closes()
	if skipped > 0 {
		p.logger.Warn().
			Str("ticker", ticker).
			Int("skipped", skipped).
			Msg("Skipped malformed daily bars")
	}
	if len(closes) == 0 {
		return models.PriceSeries{}, models.NewPriceError(models.ErrorKindProviderData, ticker, "time series contains no valid closes")
	}

	series := models.NewPriceSeries(ticker, ProviderAlphaVantage)
	for date, c := range closes {
		series.Closes[date] = c
	}

	p.logger.Debug().
		Str("ticker", ticker).
		Int("days", series.Len()).
		Msg("Fetched daily series")

	return series, nil
}

// classifyAlphaVantageError maps client errors onto price error kinds
func classifyAlphaVantageError(ticker string, err error) error {
	var rateLimitErr *alphavantage.RateLimitError
	var payloadErr *alphavantage.PayloadError
	var apiErr *alphavantage.APIError

	switch {
	case errors.As(err, &rateLimitErr):
		return models.WrapPriceError(models.ErrorKindRateLimitExceeded, ticker, err)
	case errors.As(err, &payloadErr):
		return models.WrapPriceError(models.ErrorKindProviderData, ticker, err)
	case errors.As(err, &apiErr):
		if apiErr.Temporary() {
			return models.WrapPriceError(models.ErrorKindTransport, ticker, err)
		}
		return models.WrapPriceError(models.ErrorKindProviderData, ticker, err)
	default:
		return models.WrapPriceError(models.ErrorKindTransport, ticker, err)
	}
}
