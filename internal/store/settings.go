package store

import (
	"database/sql"
	"errors"
	"strconv"
	"time"
)

// SettingsStore provides methods for managing runtime settings
type SettingsStore interface {
	Get(key string) (string, bool)
	// Lookup is Get with read errors surfaced instead of reported as absence.
	Lookup(key string) (string, bool, error)
	Set(key, value string) error
	// SetIfAbsent stores value only when key has no value yet and reports
	// whether this call stored it.
	SetIfAbsent(key, value string) (bool, error)
	Delete(key string) error
	GetInt(key string, defaultVal int) int
	SetInt(key string, value int) error
	GetBool(key string, defaultVal bool) bool
	SetBool(key string, value bool) error
}

// Setting keys
const (
	SettingVaultSecret = "vault_secret"
	SettingBotMode     = "bot_mode"
)

// SQLiteSettingsStore implements SettingsStore using SQLite
type SQLiteSettingsStore struct {
	db *sql.DB
}

// NewSQLiteSettingsStore creates a new settings store
func NewSQLiteSettingsStore(db *sql.DB) (*SQLiteSettingsStore, error) {
	store := &SQLiteSettingsStore{db: db}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return nil, err
	}
	return store, nil
}

// Get retrieves a setting value
func (s *SQLiteSettingsStore) Get(key string) (string, bool) {
	value, ok, err := s.Lookup(key)
	if err != nil {
		return "", false
	}
	return value, ok
}

func (s *SQLiteSettingsStore) Lookup(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// Set sets a setting value
func (s *SQLiteSettingsStore) Set(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO settings (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now().UTC())
	return err
}

func (s *SQLiteSettingsStore) SetIfAbsent(key, value string) (bool, error) {
	res, err := s.db.Exec(`
		INSERT INTO settings (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO NOTHING
	`, key, value, time.Now().UTC())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Delete removes a setting
func (s *SQLiteSettingsStore) Delete(key string) error {
	_, err := s.db.Exec("DELETE FROM settings WHERE key = ?", key)
	return err
}

// GetInt retrieves an integer setting
func (s *SQLiteSettingsStore) GetInt(key string, defaultVal int) int {
	value, ok := s.Get(key)
	return intOr(value, ok, defaultVal)
}

// SetInt sets an integer setting
func (s *SQLiteSettingsStore) SetInt(key string, value int) error {
	return s.Set(key, strconv.Itoa(value))
}

// GetBool retrieves a bool setting
func (s *SQLiteSettingsStore) GetBool(key string, defaultVal bool) bool {
	value, ok := s.Get(key)
	return boolOr(value, ok, defaultVal)
}

// SetBool sets a bool setting
func (s *SQLiteSettingsStore) SetBool(key string, value bool) error {
	return s.Set(key, strconv.FormatBool(value))
}

func intOr(value string, ok bool, def int) int {
	if !ok {
		return def
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return n
}

func boolOr(value string, ok bool, def bool) bool {
	if !ok {
		return def
	}
	return value == "true" || value == "1" || value == "yes"
}

var _ SettingsStore = (*SQLiteSettingsStore)(nil)
