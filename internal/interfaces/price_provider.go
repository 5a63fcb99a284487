package interfaces

import (
	"context"

	"github.com/ternarybob/pulse/internal/models"
)

// PriceProvider fetches the daily close series of one ticker symbol.
// Errors are *models.PriceError values carrying the failure kind.
type PriceProvider interface {
	// FetchDailySeries returns all daily closes the provider holds for ticker.
	// An empty series without error is never returned.
	FetchDailySeries(ctx context.Context, ticker string) (models.PriceSeries, error)

	// Name identifies the provider in logs and records
	Name() string
}
