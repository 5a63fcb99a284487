package prices

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/pulse/internal/common"
	"github.com/ternarybob/pulse/internal/interfaces"
	"github.com/ternarybob/pulse/internal/models"
)

// RetryPolicy configures RetryingProvider.
// Rate limit and transport failures back off independently.
type RetryPolicy struct {
	MaxRetries          int
	RateLimitBackoff    time.Duration
	RateLimitMaxBackoff time.Duration
	ErrorBackoff        time.Duration
	ErrorMaxBackoff     time.Duration
}

// DefaultRetryPolicy returns 3 retries, 30s→5m for rate limits and 2s→30s otherwise
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:          3,
		RateLimitBackoff:    30 * time.Second,
		RateLimitMaxBackoff: 5 * time.Minute,
		ErrorBackoff:        2 * time.Second,
		ErrorMaxBackoff:     30 * time.Second,
	}
}

// RetryPolicyFromConfig builds a policy from the [prices] section
func RetryPolicyFromConfig(cfg *common.PricesConfig) RetryPolicy {
	rlInit, rlMax := cfg.GetRateLimitBackoff()
	errInit, errMax := cfg.GetErrorBackoff()
	return RetryPolicy{
		MaxRetries:          cfg.MaxRetries,
		RateLimitBackoff:    rlInit,
		RateLimitMaxBackoff: rlMax,
		ErrorBackoff:        errInit,
		ErrorMaxBackoff:     errMax,
	}
}

// RetryBudgetProvider is a provider whose retry count can be set per call
type RetryBudgetProvider interface {
	interfaces.PriceProvider
	FetchDailySeriesWithRetries(ctx context.Context, ticker string, retries int) (models.PriceSeries, error)
}

// RetryingProvider retries rate limit and transport failures of the wrapped provider
// with exponential backoff. Data and invalid ticker errors are returned immediately.
type RetryingProvider struct {
	inner  interfaces.PriceProvider
	policy RetryPolicy
	clock  common.Clock
	logger arbor.ILogger
}

// NewRetryingProvider wraps inner
func NewRetryingProvider(inner interfaces.PriceProvider, policy RetryPolicy, clock common.Clock, logger arbor.ILogger) *RetryingProvider {
	if clock == nil {
		clock = common.SystemClock()
	}
	return &RetryingProvider{
		inner:  inner,
		policy: policy,
		clock:  clock,
		logger: logger,
	}
}

// Name returns the wrapped provider name
func (p *RetryingProvider) Name() string {
	return p.inner.Name()
}

// FetchDailySeries fetches with the policy's retry count
func (p *RetryingProvider) FetchDailySeries(ctx context.Context, ticker string) (models.PriceSeries, error) {
	return p.FetchDailySeriesWithRetries(ctx, ticker, p.policy.MaxRetries)
}

// FetchDailySeriesWithRetries fetches with an explicit retry count
func (p *RetryingProvider) FetchDailySeriesWithRetries(ctx context.Context, ticker string, retries int) (models.PriceSeries, error) {
	if retries < 0 {
		retries = 0
	}

	rateLimitBackoff := p.newBackOff(p.policy.RateLimitBackoff, p.policy.RateLimitMaxBackoff)
	errorBackoff := p.newBackOff(p.policy.ErrorBackoff, p.policy.ErrorMaxBackoff)

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		series, err := p.inner.FetchDailySeries(ctx, ticker)
		if err == nil {
			return series, nil
		}
		lastErr = err

		kind := models.KindOf(err)
		if !kind.Retryable() || ctx.Err() != nil {
			return models.PriceSeries{}, err
		}
		if attempt == retries {
			break
		}

		var wait time.Duration
		if kind == models.ErrorKindRateLimitExceeded {
			wait = rateLimitBackoff.NextBackOff()
		} else {
			wait = errorBackoff.NextBackOff()
		}

		p.logger.Warn().
			Str("provider", p.inner.Name()).
			Str("ticker", ticker).
			Str("kind", string(kind)).
			Int("attempt", attempt+1).
			Int("max_retries", retries).
			Dur("backoff", wait).
			Err(err).
			Msg("Retrying price fetch")

		select {
		case <-ctx.Done():
			return models.PriceSeries{}, models.WrapPriceError(models.ErrorKindTransport, ticker, ctx.Err())
		case <-p.clock.After(wait):
		}
	}

	return models.PriceSeries{}, lastErr
}

// newBackOff returns a deterministic doubling backoff capped at max
func (p *RetryingProvider) newBackOff(initial, max time.Duration) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.MaxInterval = max
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Clock = p.clock
	b.Reset()
	return b
}
