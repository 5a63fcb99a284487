package portfolio

import (
	"fmt"
	"math"
	"sort"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/pulse/internal/models"
)

// MoverStrategy selects how major movers are ranked
type MoverStrategy string

const (
	// MoverStrategyMagnitude ranks by absolute percentage change
	MoverStrategyMagnitude MoverStrategy = "magnitude"
	// MoverStrategyBalanced takes the top gainer and top loser first, then fills by magnitude
	MoverStrategyBalanced MoverStrategy = "balanced"
)

// AggregatorOptions configures portfolio aggregation
type AggregatorOptions struct {
	MaxMovers          int
	Strategy           MoverStrategy
	WarnSuccessRatePct float64 // Warn-log below this success rate; 0 disables
}

// DefaultAggregatorOptions returns two magnitude-ranked movers and an 80% warn threshold
func DefaultAggregatorOptions() AggregatorOptions {
	return AggregatorOptions{
		MaxMovers:          2,
		Strategy:           MoverStrategyMagnitude,
		WarnSuccessRatePct: 80,
	}
}

// Aggregator combines per-ticker results into portfolio performance
type Aggregator struct {
	opts   AggregatorOptions
	logger arbor.ILogger
}

// NewAggregator creates an aggregator
func NewAggregator(opts AggregatorOptions, logger arbor.ILogger) *Aggregator {
	if opts.MaxMovers <= 0 {
		opts.MaxMovers = 2
	}
	if opts.Strategy == "" {
		opts.Strategy = MoverStrategyMagnitude
	}
	return &Aggregator{
		opts:   opts,
		logger: logger,
	}
}

// Aggregate computes overall change, movers and success rate over one batch.
// With non-empty holdings the change is value weighted over held tickers with shares > 0;
// otherwise it is the unweighted mean of successful pct changes.
func (a *Aggregator) Aggregate(results map[string]models.Result, holdings models.Holdings) models.PortfolioPerformance {
	perf := models.PortfolioPerformance{
		MajorMovers:   []string{},
		FailedTickers: []string{},
	}

	var records []models.PerformanceRecord
	for ticker, r := range results {
		if r.OK() {
			records = append(records, *r.Record)
			continue
		}
		perf.FailedTickers = append(perf.FailedTickers, ticker)
	}
	sort.Strings(perf.FailedTickers)

	if len(results) > 0 {
		perf.SuccessRatePct = models.Round2(float64(len(results)-len(perf.FailedTickers)) / float64(len(results)) * 100)
	}

	if len(holdings) > 0 {
		perf.Weighted = true
		for _, rec := range records {
			shares, ok := holdings[rec.Ticker]
			if !ok || shares <= 0 {
				continue
			}
			perf.StartValue += rec.FirstClose * shares
			perf.EndValue += rec.LastClose * shares
			perf.ValidHoldingsCount++
		}
		if perf.StartValue > 0 {
			perf.OverallChangePct = models.Round2((perf.EndValue - perf.StartValue) / perf.StartValue * 100)
		}
		perf.StartValue = models.Round2(perf.StartValue)
		perf.EndValue = models.Round2(perf.EndValue)
	} else {
		perf.ValidHoldingsCount = len(records)
		if len(records) > 0 {
			sum := 0.0
			for _, rec := range records {
				sum += rec.PctChange
			}
			perf.OverallChangePct = models.Round2(sum / float64(len(records)))
		}
	}

	for _, rec := range RankMovers(records, a.opts.MaxMovers, a.opts.Strategy) {
		perf.MajorMovers = append(perf.MajorMovers, FormatMover(rec))
	}

	if len(records) > 0 {
		if p := records[0].PeriodName; p != "" {
			perf.Period = p
		}
	}

	if a.opts.WarnSuccessRatePct > 0 && len(results) > 0 && perf.SuccessRatePct < a.opts.WarnSuccessRatePct {
		a.logger.Warn().
			Str("period", perf.Period).
			Float64("success_rate_pct", perf.SuccessRatePct).
			Float64("threshold_pct", a.opts.WarnSuccessRatePct).
			Strs("failed_tickers", perf.FailedTickers).
			Msg("Price resolution success rate below threshold")
	}

	return perf
}

// FormatMover renders a record as "TICKER (+X.XX%)"
func FormatMover(rec models.PerformanceRecord) string {
	return fmt.Sprintf("%s (%+.2f%%)", rec.Ticker, rec.PctChange)
}

// RankMovers returns up to n records ordered by the strategy. Ties break by ticker.
func RankMovers(records []models.PerformanceRecord, n int, strategy MoverStrategy) []models.PerformanceRecord {
	ranked := make([]models.PerformanceRecord, len(records))
	copy(ranked, records)
	sort.Slice(ranked, func(i, j int) bool {
		mi, mj := math.Abs(ranked[i].PctChange), math.Abs(ranked[j].PctChange)
		if mi != mj {
			return mi > mj
		}
		return ranked[i].Ticker < ranked[j].Ticker
	})

	if n <= 0 || len(ranked) == 0 {
		return nil
	}
	if strategy != MoverStrategyBalanced {
		if len(ranked) > n {
			ranked = ranked[:n]
		}
		return ranked
	}

	gainer, loser := -1, -1
	for i, rec := range ranked {
		if rec.PctChange > 0 && (gainer < 0 || rec.PctChange > ranked[gainer].PctChange) {
			gainer = i
		}
		if rec.PctChange < 0 && (loser < 0 || rec.PctChange < ranked[loser].PctChange) {
			loser = i
		}
	}

	picked := make(map[int]bool)
	var out []models.PerformanceRecord
	for _, i := range []int{gainer, loser} {
		if i >= 0 && len(out) < n {
			picked[i] = true
			out = append(out, ranked[i])
		}
	}
	for i, rec := range ranked {
		if len(out) >= n {
			break
		}
		if !picked[i] {
			out = append(out, rec)
		}
	}
	return out
}
