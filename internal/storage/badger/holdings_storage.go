package badger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/pulse/internal/interfaces"
	"github.com/ternarybob/pulse/internal/models"
)

// HoldingsStorage implements the HoldingsStorage interface for Badger
type HoldingsStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewHoldingsStorage creates a new HoldingsStorage instance
func NewHoldingsStorage(db *BadgerDB, logger arbor.ILogger) interfaces.HoldingsStorage {
	return &HoldingsStorage{
		db:     db,
		logger: logger,
	}
}

// SaveHoldings replaces the user's holdings
func (s *HoldingsStorage) SaveHoldings(ctx context.Context, userID string, holdings models.Holdings) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("user ID is required")
	}
	if err := holdings.Validate(); err != nil {
		return fmt.Errorf("invalid holdings for %s: %w", userID, err)
	}

	record := models.UserHoldings{
		UserID:      userID,
		Holdings:    holdings.Clone(),
		LastUpdated: time.Now().UTC(),
	}

	if err := s.db.Store().Upsert(userID, &record); err != nil {
		return fmt.Errorf("failed to save holdings: %w", err)
	}

	s.logger.Debug().
		Str("user_id", userID).
		Int("holdings", len(holdings)).
		Msg("Holdings saved")
	return nil
}

// LoadHoldings returns the stored holdings of a user
func (s *HoldingsStorage) LoadHoldings(ctx context.Context, userID string) (*models.UserHoldings, error) {
	var record models.UserHoldings
	err := s.db.Store().Get(strings.TrimSpace(userID), &record)
	if err == badgerhold.ErrNotFound {
		return nil, interfaces.ErrHoldingsNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load holdings: %w", err)
	}
	if record.Holdings == nil {
		record.Holdings = models.Holdings{}
	}
	return &record, nil
}

// ListAllUsers returns every stored user ordered by LastUpdated DESC
func (s *HoldingsStorage) ListAllUsers(ctx context.Context) ([]models.UserHoldings, error) {
	var records []models.UserHoldings
	err := s.db.Store().Find(&records, badgerhold.Where("UserID").Ne("").SortBy("LastUpdated").Reverse())
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return records, nil
}

// DeleteUser removes a user's holdings
func (s *HoldingsStorage) DeleteUser(ctx context.Context, userID string) error {
	err := s.db.Store().Delete(strings.TrimSpace(userID), &models.UserHoldings{})
	if err == badgerhold.ErrNotFound {
		return interfaces.ErrHoldingsNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return nil
}
