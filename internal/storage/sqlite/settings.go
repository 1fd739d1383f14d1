package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/yegors/co-hud/pkg/logger"
)

// SettingsStorage keeps key/value settings in the settings table
type SettingsStorage struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewSettingsStorage creates the settings table if needed
func NewSettingsStorage(db *sql.DB, log *logger.Logger) (*SettingsStorage, error) {
	storage := &SettingsStorage{
		db:     db,
		logger: log.Named("sqlite-settings"),
	}

	if err := storage.initDB(); err != nil {
		return nil, err
	}
	return storage, nil
}

func (s *SettingsStorage) initDB() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create settings table: %w", err)
	}
	return nil
}

// Get returns the value stored under key
func (s *SettingsStorage) Get(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to query setting %s: %w", key, err)
	}
	return value, true, nil
}

// Put inserts or replaces the value under key
func (s *SettingsStorage) Put(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert setting %s: %w", key, err)
	}
	return nil
}

// All returns every stored setting
func (s *SettingsStorage) All() (map[string]string, error) {
	rows, err := s.db.Query(`SELECT key, value FROM settings ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("failed to query settings: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan setting: %w", err)
		}
		out[key] = value
	}
	return out, rows.Err()
}

// Close is a no-op; the shared *sql.DB is closed by its owner
func (s *SettingsStorage) Close() error {
	return nil
}
