// Package models holds the price, performance and holdings types shared across services.
package models

import (
	"math"
	"sort"
	"time"
)

// DateFormat is the ISO calendar date layout used as PriceSeries keys.
const DateFormat = "2006-01-02"

// PriceSeries maps ISO dates to closing prices for one ticker.
// A series is read-only once returned by a provider.
type PriceSeries struct {
	Ticker string             `json:"ticker"`
	Source string             `json:"source"`
	Closes map[string]float64 `json:"closes"`
	// Name is the company name when the provider reports one
	Name string `json:"name,omitempty"`
}

// NewPriceSeries creates an empty series for ticker
func NewPriceSeries(ticker, source string) PriceSeries {
	return PriceSeries{
		Ticker: ticker,
		Source: source,
		Closes: make(map[string]float64),
	}
}

// Add records a close for date. Non-positive prices are ignored.
func (s PriceSeries) Add(date time.Time, close float64) {
	if close <= 0 || math.IsNaN(close) || math.IsInf(close, 0) {
		return
	}
	s.Closes[date.Format(DateFormat)] = close
}

// Close returns the close for an ISO date key
func (s PriceSeries) Close(date string) (float64, bool) {
	c, ok := s.Closes[date]
	return c, ok
}

// Len returns the number of trading days in the series
func (s PriceSeries) Len() int {
	return len(s.Closes)
}

// IsEmpty reports whether the series holds no closes
func (s PriceSeries) IsEmpty() bool {
	return len(s.Closes) == 0
}

// Dates returns the series dates in ascending order
func (s PriceSeries) Dates() []string {
	dates := make([]string, 0, len(s.Closes))
	for d := range s.Closes {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	return dates
}

// Latest returns the most recent date and close
func (s PriceSeries) Latest() (string, float64, bool) {
	if s.IsEmpty() {
		return "", 0, false
	}
	dates := s.Dates()
	last := dates[len(dates)-1]
	return last, s.Closes[last], true
}

// Quote is the current price view of a ticker. CurrentPrice is nil when unresolved.
type Quote struct {
	Ticker       string   `json:"ticker"`
	DisplayName  string   `json:"display_name"`
	CurrentPrice *float64 `json:"current_price"`
	Date         string   `json:"date,omitempty"`
	Source       string   `json:"source,omitempty"`
	Error        string   `json:"error,omitempty"`
}

// HasPrice reports whether the quote resolved to a positive price
func (q Quote) HasPrice() bool {
	return q.CurrentPrice != nil && *q.CurrentPrice > 0
}

// Round2 rounds to two decimal places
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
