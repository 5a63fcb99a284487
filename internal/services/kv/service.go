package kv

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/pulse/internal/interfaces"
)

// KnownKeys are the secrets resolved from the key/value store at startup
var KnownKeys = map[string]string{
	"alphavantage_api_key": "Alpha Vantage REST API key",
	"gemini_api_key":       "Google Gemini API key",
	"anthropic_api_key":    "Anthropic Claude API key",
	"smtp_password":        "SMTP account password",
}

// Service provides business logic for stored API keys and settings
type Service struct {
	storage interfaces.KeyValueStorage
	logger  arbor.ILogger
}

// NewService creates a new key/value service
func NewService(storage interfaces.KeyValueStorage, logger arbor.ILogger) *Service {
	return &Service{
		storage: storage,
		logger:  logger,
	}
}

// Set stores or updates a key. Known keys get their default description.
func (s *Service) Set(ctx context.Context, key string, value string, description string) error {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return fmt.Errorf("key cannot be empty")
	}
	if value == "" {
		return fmt.Errorf("value for %s cannot be empty", key)
	}
	if description == "" {
		description = KnownKeys[key]
	}

	if err := s.storage.Set(ctx, key, value, description); err != nil {
		s.logger.Error().Err(err).Str("key", key).Msg("Failed to store key/value pair")
		return err
	}

	s.logger.Info().Str("key", key).Bool("known", KnownKeys[key] != "").Msg("Stored key/value pair")
	return nil
}

// Delete removes a key/value pair
func (s *Service) Delete(ctx context.Context, key string) error {
	if err := s.storage.Delete(ctx, key); err != nil {
		s.logger.Error().Err(err).Str("key", key).Msg("Failed to delete key/value pair")
		return err
	}

	s.logger.Info().Str("key", key).Msg("Deleted key/value pair")
	return nil
}

// List returns stored pairs sorted by key with values masked
func (s *Service) List(ctx context.Context) ([]interfaces.KeyValuePair, error) {
	pairs, err := s.storage.List(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list key/value pairs")
		return nil, err
	}

	for i := range pairs {
		pairs[i].Value = Mask(pairs[i].Value)
	}

	s.logger.Debug().Int("count", len(pairs)).Msg("Listed key/value pairs")
	return pairs, nil
}

// Missing returns the known keys absent from the store, sorted
func (s *Service) Missing(ctx context.Context) ([]string, error) {
	pairs, err := s.storage.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read key/value store: %w", err)
	}

	stored := make(map[string]bool, len(pairs))
	for _, pair := range pairs {
		stored[pair.Key] = pair.Value != ""
	}

	var missing []string
	for key := range KnownKeys {
		if !stored[key] {
			missing = append(missing, key)
		}
	}
	sort.Strings(missing)
	return missing, nil
}

// Mask hides all but the last four characters of a secret
func Mask(value string) string {
	if len(value) <= 4 {
		return strings.Repeat("*", len(value))
	}
	return strings.Repeat("*", len(value)-4) + value[len(value)-4:]
}
