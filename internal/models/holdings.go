package models

import (
	"fmt"
	"sort"
	"time"
)

// Holdings maps ticker to shares held. Shares are non-negative.
type Holdings map[string]float64

// Tickers returns the held tickers in sorted order
func (h Holdings) Tickers() []string {
	tickers := make([]string, 0, len(h))
	for t := range h {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)
	return tickers
}

// Clone returns a copy of h
func (h Holdings) Clone() Holdings {
	out := make(Holdings, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}

// Validate rejects negative share counts and empty tickers
func (h Holdings) Validate() error {
	for ticker, shares := range h {
		if ticker == "" {
			return fmt.Errorf("holding with empty ticker")
		}
		if shares < 0 {
			return fmt.Errorf("holding %s has negative shares: %v", ticker, shares)
		}
	}
	return nil
}

// UserHoldings is the stored holdings of one newsletter subscriber.
type UserHoldings struct {
	UserID      string    `json:"user_id"`
	Holdings    Holdings  `json:"holdings"`
	LastUpdated time.Time `json:"last_updated"`
}
