package badger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/pulse/internal/interfaces"
)

// KVStorage keeps API keys and SMTP overrides in badger.
// Keys are trimmed and lowercased before they reach the store.
type KVStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewKVStorage creates the key store over db
func NewKVStorage(db *BadgerDB, logger arbor.ILogger) interfaces.KeyValueStorage {
	return &KVStorage{
		db:     db,
		logger: logger,
	}
}

func kvKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

func (s *KVStorage) lookup(key string) (interfaces.KeyValuePair, error) {
	var pair interfaces.KeyValuePair
	err := s.db.Store().Get(key, &pair)
	switch {
	case errors.Is(err, badgerhold.ErrNotFound):
		return pair, interfaces.ErrKeyNotFound
	case err != nil:
		return pair, fmt.Errorf("failed to read key %s: %w", key, err)
	}
	return pair, nil
}

// Get returns the value stored under key
func (s *KVStorage) Get(ctx context.Context, key string) (string, error) {
	pair, err := s.lookup(kvKey(key))
	if err != nil {
		return "", err
	}
	return pair.Value, nil
}

// Set stores value under key. CreatedAt survives overwrites.
func (s *KVStorage) Set(ctx context.Context, key string, value string, description string) error {
	key = kvKey(key)
	now := time.Now()
	pair := interfaces.KeyValuePair{
		Key:         key,
		Value:       value,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	existing, err := s.lookup(key)
	switch {
	case err == nil:
		pair.CreatedAt = existing.CreatedAt
	case !errors.Is(err, interfaces.ErrKeyNotFound):
		return err
	}

	if err := s.db.Store().Upsert(key, &pair); err != nil {
		return fmt.Errorf("failed to store key %s: %w", key, err)
	}
	s.logger.Debug().Str("key", key).Msg("Stored key")
	return nil
}

// Delete removes key, returning ErrKeyNotFound when it was never stored
func (s *KVStorage) Delete(ctx context.Context, key string) error {
	key = kvKey(key)
	err := s.db.Store().Delete(key, &interfaces.KeyValuePair{})
	switch {
	case errors.Is(err, badgerhold.ErrNotFound):
		return interfaces.ErrKeyNotFound
	case err != nil:
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	return nil
}

// List returns every stored pair ordered by key
func (s *KVStorage) List(ctx context.Context) ([]interfaces.KeyValuePair, error) {
	var pairs []interfaces.KeyValuePair
	if err := s.db.Store().Find(&pairs, badgerhold.Where("Key").Ne("").SortBy("Key")); err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	return pairs, nil
}
