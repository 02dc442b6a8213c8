// Package config manages the run configuration edited through the bot.
//
// Configuration is a flat mapping of setting names to string values,
// persisted as a single JSON blob in the store. The setting names double as
// button labels in the bot's admin menu and are kept in Russian, matching
// the rest of the bot UI. When nothing has been saved yet, the embedded
// server defaults are returned.
package config

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"sctables/internal/store"
)

// Setting names.
const (
	KeyServiceAccount = "Сервисный аккаунт (JSON)"
	KeySpreadsheetURL = "URL таблицы"
	KeyEmail          = "Email"
	KeyRunHour        = "Час запуска (UTC)"
)

// Keys returns the setting names in their menu display order.
func Keys() []string {
	return []string{KeyServiceAccount, KeySpreadsheetURL, KeyEmail, KeyRunHour}
}

// ErrInvalidHour is returned by [ValidateHour] for values outside 8-23.
var ErrInvalidHour = errors.New("run hour must be a natural number from 8 to 23 inclusive")

//go:embed default.json
var defaults []byte

const storeKey = "config"

// Service loads and saves the configuration blob.
type Service struct {
	Store store.Store
}

// Load returns the current configuration, falling back to the embedded
// server defaults when nothing has been saved yet.
func (s *Service) Load(ctx context.Context) (map[string]string, error) {
	b, err := s.Store.Get(ctx, storeKey)
	if err != nil {
		return nil, err
	}
	if b == nil {
		b = defaults
	}
	var cfg map[string]string
	if err := json.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("corrupted config: %w", err)
	}
	return cfg, nil
}

// Save persists the configuration.
func (s *Service) Save(ctx context.Context, cfg map[string]string) error {
	b, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	return s.Store.Set(ctx, storeKey, b)
}

// Reset restores the embedded server defaults and returns them.
func (s *Service) Reset(ctx context.Context) (map[string]string, error) {
	if err := s.Store.Set(ctx, storeKey, defaults); err != nil {
		return nil, err
	}
	var cfg map[string]string
	if err := json.Unmarshal(defaults, &cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// RunHour returns the configured daily run hour (UTC), or the default of 12
// when the value is absent or malformed.
func (s *Service) RunHour(ctx context.Context) int {
	cfg, err := s.Load(ctx)
	if err != nil {
		return 12
	}
	h, err := ValidateHour(cfg[KeyRunHour])
	if err != nil {
		return 12
	}
	return h
}

// ValidateHour parses and validates a daily run hour value.
func ValidateHour(v string) (int, error) {
	h, err := strconv.Atoi(v)
	if err != nil || h < 8 || h > 23 {
		return 0, ErrInvalidHour
	}
	return h, nil
}
