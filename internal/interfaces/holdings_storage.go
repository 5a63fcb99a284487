package interfaces

import (
	"context"
	"errors"

	"github.com/ternarybob/pulse/internal/models"
)

// ErrHoldingsNotFound is returned when a user has no stored holdings
var ErrHoldingsNotFound = errors.New("holdings not found")

// HoldingsStorage persists subscriber holdings keyed by user ID
type HoldingsStorage interface {
	// SaveHoldings replaces the user's holdings and stamps LastUpdated
	SaveHoldings(ctx context.Context, userID string, holdings models.Holdings) error

	// LoadHoldings returns ErrHoldingsNotFound when the user is unknown
	LoadHoldings(ctx context.Context, userID string) (*models.UserHoldings, error)

	// ListAllUsers returns every stored user ordered by LastUpdated DESC
	ListAllUsers(ctx context.Context) ([]models.UserHoldings, error)

	DeleteUser(ctx context.Context, userID string) error
}
