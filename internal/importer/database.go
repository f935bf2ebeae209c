package importer

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/joaoarmando-ctrl/pretorian-nfse1/internal/nfse"
)

const (
	settingsBucket = "settings"
	schemaKey      = "schema_layout"
	decimalKey     = "decimal"
)

// Settings are the user preferences that survive restarts
type Settings struct {
	Schema  nfse.Schema        `json:"schema"`
	Decimal nfse.DecimalLocale `json:"decimal"`
}

// DefaultSettings exports every canonical field with a decimal comma
func DefaultSettings() Settings {
	return Settings{Schema: nfse.DefaultSchema(), Decimal: nfse.DecimalPT}
}

// SettingsStore defines the interface for persisting settings
type SettingsStore interface {
	// LoadSettings returns the stored settings, filling defaults for missing keys
	LoadSettings() (Settings, error)

	// SaveSettings replaces the stored settings
	SaveSettings(s Settings) error

	// Close closes the underlying database
	Close() error
}

// BoltDB implements SettingsStore using BoltDB
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB opens or creates the database at path
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(settingsBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

// LoadSettings reads the schema layout and decimal locale. Stored field names
// that are no longer canonical are dropped.
func (b *BoltDB) LoadSettings() (Settings, error) {
	settings := DefaultSettings()
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(settingsBucket))

		if data := bucket.Get([]byte(schemaKey)); data != nil {
			var names []string
			if err := json.Unmarshal(data, &names); err != nil {
				return fmt.Errorf("unmarshaling schema: %w", err)
			}
			if schema := knownFields(names); len(schema) > 0 {
				settings.Schema = schema
			}
		}

		if data := bucket.Get([]byte(decimalKey)); data != nil {
			if locale, err := nfse.ParseDecimalLocale(string(data)); err == nil {
				settings.Decimal = locale
			}
		}
		return nil
	})
	if err != nil {
		return DefaultSettings(), err
	}
	return settings, nil
}

// SaveSettings writes both keys in one transaction
func (b *BoltDB) SaveSettings(s Settings) error {
	data, err := json.Marshal(s.Schema)
	if err != nil {
		return fmt.Errorf("marshaling schema: %w", err)
	}
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(settingsBucket))
		if err := bucket.Put([]byte(schemaKey), data); err != nil {
			return err
		}
		return bucket.Put([]byte(decimalKey), []byte(s.Decimal))
	})
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}

// knownFields keeps canonical, not yet seen names in order
func knownFields(names []string) nfse.Schema {
	seen := make(map[string]bool, len(names))
	out := make(nfse.Schema, 0, len(names))
	for _, name := range names {
		if _, ok := nfse.FieldByName(name); !ok || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}
