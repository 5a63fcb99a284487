package portfolio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/pulse/internal/models"
)

func record(ticker string, first, last float64) models.Result {
	return models.Success(models.NewPerformanceRecord(ticker, "weekly", "2024-01-02", first, "2024-01-08", last))
}

func failure(ticker string, kind models.ErrorKind) models.Result {
	return models.Failed(models.FailureRecord{Ticker: ticker, Kind: kind, Message: "failed"})
}

func TestAggregate_WeightedAndUnweighted(t *testing.T) {
	results := map[string]models.Result{
		"A": record("A", 100, 110),
		"B": record("B", 200, 190),
	}

	tests := []struct {
		name         string
		holdings     models.Holdings
		wantPct      float64
		wantWeighted bool
		wantValid    int
	}{
		{name: "equal value weights", holdings: models.Holdings{"A": 10, "B": 5}, wantPct: 2.5, wantWeighted: true, wantValid: 2},
		{name: "asymmetric shares", holdings: models.Holdings{"A": 10, "B": 1}, wantPct: 7.5, wantWeighted: true, wantValid: 2},
		{name: "zero shares excluded", holdings: models.Holdings{"A": 0, "B": 5}, wantPct: -5, wantWeighted: true, wantValid: 1},
		{name: "no holdings is unweighted mean", holdings: nil, wantPct: 2.5, wantWeighted: false, wantValid: 2},
		{name: "held tickers all missing", holdings: models.Holdings{"Z": 3}, wantPct: 0, wantWeighted: true, wantValid: 0},
	}

	agg := NewAggregator(DefaultAggregatorOptions(), arbor.NewLogger())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			perf := agg.Aggregate(results, tt.holdings)
			assert.Equal(t, tt.wantPct, perf.OverallChangePct)
			assert.Equal(t, tt.wantWeighted, perf.Weighted)
			assert.Equal(t, tt.wantValid, perf.ValidHoldingsCount)
			assert.Equal(t, 100.0, perf.SuccessRatePct)
		})
	}
}

func TestAggregate_PartialFailure(t *testing.T) {
	results := map[string]models.Result{
		"AAA": record("AAA", 100, 101),
		"EEE": failure("EEE", models.ErrorKindRateLimitExceeded),
		"BBB": record("BBB", 50, 45),
		"DDD": failure("DDD", models.ErrorKindInvalidTicker),
		"CCC": record("CCC", 10, 10.5),
	}

	perf := NewAggregator(DefaultAggregatorOptions(), arbor.NewLogger()).Aggregate(results, nil)

	assert.Equal(t, 60.0, perf.SuccessRatePct)
	assert.Equal(t, []string{"DDD", "EEE"}, perf.FailedTickers)
	assert.Equal(t, 3, perf.ValidHoldingsCount)
	assert.Equal(t, []string{"BBB (-10.00%)", "CCC (+5.00%)"}, perf.MajorMovers)
	assert.Equal(t, "weekly", perf.Period)
}

func TestAggregate_EmptyBatch(t *testing.T) {
	perf := NewAggregator(DefaultAggregatorOptions(), arbor.NewLogger()).Aggregate(map[string]models.Result{}, models.Holdings{"A": 1})

	assert.Equal(t, 0.0, perf.OverallChangePct)
	assert.Equal(t, 0.0, perf.SuccessRatePct)
	assert.Empty(t, perf.MajorMovers)
	assert.Empty(t, perf.FailedTickers)
}

func TestRankMovers(t *testing.T) {
	records := []models.PerformanceRecord{
		models.NewPerformanceRecord("A", "weekly", "", 100, "", 110),
		models.NewPerformanceRecord("B", "weekly", "", 100, "", 95),
		models.NewPerformanceRecord("C", "weekly", "", 100, "", 108),
		models.NewPerformanceRecord("D", "weekly", "", 100, "", 99),
		models.NewPerformanceRecord("E", "weekly", "", 100, "", 92),
	}

	tickers := func(recs []models.PerformanceRecord) []string {
		var out []string
		for _, r := range recs {
			out = append(out, r.Ticker)
		}
		return out
	}

	tests := []struct {
		name     string
		n        int
		strategy MoverStrategy
		want     []string
	}{
		{name: "magnitude top two", n: 2, strategy: MoverStrategyMagnitude, want: []string{"A", "C"}},
		{name: "ties break by ticker", n: 3, strategy: MoverStrategyMagnitude, want: []string{"A", "C", "E"}},
		{name: "balanced gainer then loser", n: 2, strategy: MoverStrategyBalanced, want: []string{"A", "E"}},
		{name: "balanced fills by magnitude", n: 4, strategy: MoverStrategyBalanced, want: []string{"A", "E", "C", "B"}},
		{name: "n larger than records", n: 10, strategy: MoverStrategyMagnitude, want: []string{"A", "C", "E", "B", "D"}},
		{name: "zero", n: 0, strategy: MoverStrategyMagnitude, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tickers(RankMovers(records, tt.n, tt.strategy)))
		})
	}
}

func TestRankMovers_BalancedWithoutLosers(t *testing.T) {
	records := []models.PerformanceRecord{
		models.NewPerformanceRecord("A", "weekly", "", 100, "", 101),
		models.NewPerformanceRecord("B", "weekly", "", 100, "", 103),
		models.NewPerformanceRecord("C", "weekly", "", 100, "", 102),
	}

	got := RankMovers(records, 2, MoverStrategyBalanced)
	require.Len(t, got, 2)
	assert.Equal(t, "B", got[0].Ticker)
	assert.Equal(t, "C", got[1].Ticker)
}

func TestFormatMover(t *testing.T) {
	assert.Equal(t, "NVDA (+3.21%)", FormatMover(models.PerformanceRecord{Ticker: "NVDA", PctChange: 3.21}))
	assert.Equal(t, "PFE (-1.05%)", FormatMover(models.PerformanceRecord{Ticker: "PFE", PctChange: -1.05}))
	assert.Equal(t, "GLD (+0.00%)", FormatMover(models.PerformanceRecord{Ticker: "GLD"}))
}
