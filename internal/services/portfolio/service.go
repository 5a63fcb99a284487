// Package portfolio aggregates per-ticker price performance into portfolio results.
package portfolio

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/pulse/internal/models"
	"github.com/ternarybob/pulse/internal/services/prices"
)

// PeriodReport is one period's per-ticker results and their aggregate
type PeriodReport struct {
	Period      string
	Results     map[string]models.Result
	Performance models.PortfolioPerformance
}

// Service is the portfolio half of the core API
type Service struct {
	prices     *prices.Service
	aggregator *Aggregator
	logger     arbor.ILogger
}

// NewService creates a portfolio service over the price service
func NewService(priceService *prices.Service, aggregator *Aggregator, logger arbor.ILogger) *Service {
	return &Service{
		prices:     priceService,
		aggregator: aggregator,
		logger:     logger,
	}
}

// Now returns the current time of the underlying price service clock
func (s *Service) Now() time.Time {
	return s.prices.Now()
}

// GetCurrentPrices returns current quotes with company display names.
// Tickers missing from the name table keep the name the provider reported.
func (s *Service) GetCurrentPrices(ctx context.Context, tickers []string) map[string]models.Quote {
	quotes := s.prices.GetCurrentPrices(ctx, tickers)
	for ticker, q := range quotes {
		if name, ok := LookupCompanyName(ticker); ok {
			q.DisplayName = name
		} else if q.DisplayName == "" {
			q.DisplayName = ticker
		}
		quotes[ticker] = q
	}
	return quotes
}

// GetPeriodReport resolves tickers over a named period and aggregates the results
func (s *Service) GetPeriodReport(ctx context.Context, tickers []string, period string, holdings models.Holdings) (*PeriodReport, error) {
	start, end, err := PeriodRange(period, s.prices.Now())
	if err != nil {
		return nil, err
	}

	results := s.prices.GetBatchPricePerformance(ctx, tickers, start, end, period)
	perf := s.aggregator.Aggregate(results, holdings)
	perf.Period = period

	s.logger.Info().
		Str("period", period).
		Float64("overall_change_pct", perf.OverallChangePct).
		Float64("success_rate_pct", perf.SuccessRatePct).
		Int("valid_holdings", perf.ValidHoldingsCount).
		Bool("weighted", perf.Weighted).
		Strs("major_movers", perf.MajorMovers).
		Msg("Portfolio performance aggregated")

	return &PeriodReport{
		Period:      period,
		Results:     results,
		Performance: perf,
	}, nil
}

// GetOverallPortfolioPerformance aggregates tickers over weekly, ytd or mtd
func (s *Service) GetOverallPortfolioPerformance(ctx context.Context, tickers []string, period string, holdings models.Holdings) (models.PortfolioPerformance, error) {
	report, err := s.GetPeriodReport(ctx, tickers, period, holdings)
	if err != nil {
		return models.PortfolioPerformance{}, fmt.Errorf("failed to get %s performance: %w", period, err)
	}
	return report.Performance, nil
}

// ValidateTickers returns, in input order, the tickers whose current price resolved
func (s *Service) ValidateTickers(ctx context.Context, tickers []string) []string {
	quotes := s.prices.GetCurrentPrices(ctx, tickers)

	valid := make([]string, 0, len(tickers))
	seen := make(map[string]bool, len(tickers))
	for _, ticker := range tickers {
		if seen[ticker] {
			continue
		}
		seen[ticker] = true
		if q, ok := quotes[ticker]; ok && q.HasPrice() {
			valid = append(valid, ticker)
		}
	}

	s.logger.Debug().
		Int("requested", len(tickers)).
		Int("valid", len(valid)).
		Msg("Validated tickers")

	return valid
}
