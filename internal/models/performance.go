package models

// PerformanceRecord is the first/last close pair of one ticker over a date range.
// FirstDate <= LastDate and both dates exist in the source series.
type PerformanceRecord struct {
	Ticker          string  `json:"ticker"`
	PeriodName      string  `json:"period_name"`
	FirstDate       string  `json:"first_date"`
	LastDate        string  `json:"last_date"`
	FirstClose      float64 `json:"first_close"`
	LastClose       float64 `json:"last_close"`
	AbsChange       float64 `json:"abs_change"`
	PctChange       float64 `json:"pct_change"`
	ResolvedSymbol  string  `json:"resolved_symbol,omitempty"` // Candidate symbol that produced data
	Source          string  `json:"source,omitempty"`
	EndDateFallback bool    `json:"end_date_fallback,omitempty"` // Last close copied from the first close
}

// NewPerformanceRecord computes abs/pct change from a first/last close pair.
// Values are rounded to 2 decimals; pct change is 0 when the first close is 0.
func NewPerformanceRecord(ticker, periodName, firstDate string, firstClose float64, lastDate string, lastClose float64) PerformanceRecord {
	absChange := lastClose - firstClose
	pctChange := 0.0
	if firstClose != 0 {
		pctChange = absChange / firstClose * 100
	}

	return PerformanceRecord{
		Ticker:     ticker,
		PeriodName: periodName,
		FirstDate:  firstDate,
		LastDate:   lastDate,
		FirstClose: Round2(firstClose),
		LastClose:  Round2(lastClose),
		AbsChange:  Round2(absChange),
		PctChange:  Round2(pctChange),
	}
}

// FailureRecord replaces a PerformanceRecord when a ticker cannot be resolved.
type FailureRecord struct {
	Ticker  string    `json:"ticker"`
	Kind    ErrorKind `json:"error_kind"`
	Message string    `json:"message"`
}

// NewFailureRecord builds a FailureRecord from a classified or plain error
func NewFailureRecord(ticker string, err error) FailureRecord {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return FailureRecord{
		Ticker:  ticker,
		Kind:    KindOf(err),
		Message: msg,
	}
}

// Result holds exactly one of Record or Failure. Use Success/Failed to construct.
type Result struct {
	Record  *PerformanceRecord `json:"record,omitempty"`
	Failure *FailureRecord     `json:"failure,omitempty"`
}

// Success wraps a resolved record
func Success(record PerformanceRecord) Result {
	return Result{Record: &record}
}

// Failed wraps a failure
func Failed(failure FailureRecord) Result {
	return Result{Failure: &failure}
}

// OK reports whether the result holds a record
func (r Result) OK() bool {
	return r.Record != nil && r.Failure == nil
}

// PortfolioPerformance is the aggregate over one batch of results.
type PortfolioPerformance struct {
	Period             string   `json:"period,omitempty"`
	OverallChangePct   float64  `json:"overall_change_pct"`
	MajorMovers        []string `json:"major_movers"`
	FailedTickers      []string `json:"failed_tickers"`
	SuccessRatePct     float64  `json:"success_rate_pct"`
	ValidHoldingsCount int      `json:"valid_holdings_count"`
	Weighted           bool     `json:"weighted"`
	StartValue         float64  `json:"start_value,omitempty"`
	EndValue           float64  `json:"end_value,omitempty"`
}
