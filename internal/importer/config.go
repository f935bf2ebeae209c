package importer

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/joaoarmando-ctrl/pretorian-nfse1/internal/nfse"
)

// Config holds the active export schema and decimal locale. Every change is
// written through to the store before it becomes visible.
type Config struct {
	mu       sync.RWMutex
	store    SettingsStore
	settings Settings
}

// LoadConfig reads settings from store. Unreadable settings fall back to defaults.
func LoadConfig(store SettingsStore) *Config {
	settings, err := store.LoadSettings()
	if err != nil {
		slog.Warn("Failed to load settings, using defaults", "error", err)
		settings = DefaultSettings()
	}
	return &Config{store: store, settings: settings}
}

// Settings returns a copy of the current settings
func (c *Config) Settings() Settings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Settings{
		Schema:  append(nfse.Schema(nil), c.settings.Schema...),
		Decimal: c.settings.Decimal,
	}
}

// Schema returns a copy of the active schema
func (c *Config) Schema() nfse.Schema {
	return c.Settings().Schema
}

// Decimal returns the active decimal locale
func (c *Config) Decimal() nfse.DecimalLocale {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.settings.Decimal
}

// SetSchema validates and stores a new field order
func (c *Config) SetSchema(names []string) error {
	schema, err := nfse.ParseSchema(names)
	if err != nil {
		return err
	}
	return c.update(func(s *Settings) error {
		s.Schema = schema
		return nil
	})
}

// SetDecimal stores a new decimal locale
func (c *Config) SetDecimal(locale string) error {
	l, err := nfse.ParseDecimalLocale(locale)
	if err != nil {
		return err
	}
	return c.update(func(s *Settings) error {
		s.Decimal = l
		return nil
	})
}

// MoveField moves the field at index from to index to
func (c *Config) MoveField(from, to int) error {
	return c.update(func(s *Settings) error {
		moved, err := s.Schema.Move(from, to)
		if err != nil {
			return err
		}
		s.Schema = moved
		return nil
	})
}

// update applies fn to a copy, persists it and only then swaps it in
func (c *Config) update(fn func(*Settings) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := Settings{
		Schema:  append(nfse.Schema(nil), c.settings.Schema...),
		Decimal: c.settings.Decimal,
	}
	if err := fn(&next); err != nil {
		return err
	}
	if err := c.store.SaveSettings(next); err != nil {
		return fmt.Errorf("saving settings: %w", err)
	}
	c.settings = next
	return nil
}
