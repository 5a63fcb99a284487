package prices

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/pulse/internal/alphavantage"
	"github.com/ternarybob/pulse/internal/common"
	"github.com/ternarybob/pulse/internal/httpclient"
	"github.com/ternarybob/pulse/internal/interfaces"
	"github.com/ternarybob/pulse/internal/models"
	"github.com/ternarybob/pulse/internal/services/transform"
)

// NewServiceFromConfig wires providers, limiters, retries and caches from configuration.
// llm may be nil when neither the search provider nor LLM page parsing is enabled.
func NewServiceFromConfig(
	ctx context.Context,
	cfg *common.Config,
	kvStorage interfaces.KeyValueStorage,
	llm interfaces.ContentGenerator,
	clock common.Clock,
	logger arbor.ILogger,
) (*Service, error) {
	if clock == nil {
		clock = common.SystemClock()
	}

	policy := RetryPolicyFromConfig(&cfg.Prices)
	chain := make([]interfaces.PriceProvider, 0, len(cfg.Prices.Providers))

	for _, name := range cfg.Prices.Providers {
		var provider interfaces.PriceProvider

		switch name {
		case ProviderAlphaVantage:
			apiKey, err := common.ResolveAPIKey(ctx, kvStorage, "alphavantage_api_key", cfg.AlphaVantage.APIKey)
			if err != nil {
				return nil, fmt.Errorf("failed to resolve Alpha Vantage API key: %w", err)
			}
			client := alphavantage.NewClient(apiKey,
				alphavantage.WithBaseURL(cfg.AlphaVantage.BaseURL),
				alphavantage.WithHTTPClient(httpclient.NewDefaultHTTPClient(cfg.AlphaVantage.GetTimeout())),
				alphavantage.WithDefaultOutputSize(cfg.AlphaVantage.OutputSize),
				alphavantage.WithLogger(logger),
			)
			limiter := NewPerMinuteLimiter(cfg.Prices.CallsPerMinute, cfg.Prices.GetMinSpacing(), clock)
			provider = NewAlphaVantageProvider(client, limiter, logger)

		case ProviderScrape:
			var fetcher PageFetcher
			if cfg.Scraper.UseBrowser {
				userAgent := ""
				if len(cfg.Scraper.UserAgents) > 0 {
					userAgent = cfg.Scraper.UserAgents[0]
				}
				fetcher = NewBrowserPageFetcher(cfg.Scraper.GetBrowserWait(), userAgent, logger)
			} else {
				httpClient, err := httpclient.NewBrowserLikeClient(cfg.Scraper.GetRequestTimeout(), cfg.Scraper.UserAgents)
				if err != nil {
					return nil, err
				}
				fetcher = NewHTTPPageFetcher(httpClient)
			}

			opts := []ScrapeOption{WithScrapeClock(clock)}
			if cfg.Scraper.LLMParse && llm != nil {
				opts = append(opts, WithLLMParse(llm, cfg.LLM.ExtractionModel, transform.NewService(logger)))
			}
			limiter := NewPerMinuteLimiter(cfg.Scraper.CallsPerMinute, cfg.Scraper.GetMinSpacing(), clock)
			provider = NewScrapeProvider(cfg.Scraper.BaseURL, fetcher, limiter, logger, opts...)

		case ProviderSearch:
			if llm == nil {
				return nil, fmt.Errorf("price provider %q requires an LLM", name)
			}
			limiter := NewPerMinuteLimiter(cfg.Prices.CallsPerMinute, cfg.Prices.GetMinSpacing(), clock)
			provider = NewSearchProvider(llm, cfg.LLM.SearchModel, cfg.Prices.LookbackDays+7, limiter, clock, logger)

		default:
			return nil, fmt.Errorf("unknown price provider %q", name)
		}

		chain = append(chain, NewRetryingProvider(provider, policy, clock, logger))
	}

	if len(chain) == 0 {
		return nil, fmt.Errorf("no price providers configured")
	}

	var provider interfaces.PriceProvider = chain[0]
	if len(chain) > 1 {
		provider = NewFallbackProvider(logger, chain...)
	}

	resolver := NewResolver(
		provider,
		common.NewTickerNormalizer(cfg.Prices.TickerAliases),
		NewCache[models.PriceSeries]("series", cfg.Prices.GetSeriesTTL(), clock),
		NewCache[models.PerformanceRecord]("historical", cfg.Prices.GetHistoricalTTL(), clock),
		ResolverOptions{
			LookbackDays:     cfg.Prices.LookbackDays,
			EndDateFallback:  cfg.Prices.EndDateFallback,
			CandidateRetries: cfg.Prices.CandidateRetries,
			FinalRetries:     cfg.Prices.MaxRetries,
		},
		logger,
	)

	logger.Debug().
		Strs("providers", cfg.Prices.Providers).
		Int("calls_per_minute", cfg.Prices.CallsPerMinute).
		Dur("min_spacing", cfg.Prices.GetMinSpacing()).
		Dur("series_ttl", cfg.Prices.GetSeriesTTL()).
		Msg("Price service configured")

	current := NewCache[models.Quote]("current", cfg.Prices.GetCurrentPriceTTL(), clock)
	return NewService(resolver, current, clock, logger), nil
}
