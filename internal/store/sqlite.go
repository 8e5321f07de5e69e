package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"

	"github.com/vrceventbot/vrceventbot/internal/errors"
	_ "modernc.org/sqlite"
)

// SQLiteStore is the bot's durable state: settings, sealed credential
// records, managed groups and the joined-groups cache. WAL mode lets the
// Discord handlers read while a write is in flight.
type SQLiteStore struct {
	db       *sql.DB
	path     string
	settings *SQLiteSettingsStore
}

// NewSQLiteStore opens (or creates) the database at dbPath and migrates it.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, &errors.ErrDirectoryCreate{Path: dir, Err: err}
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, &errors.ErrDatabaseOpen{Path: dbPath, Err: err}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, &errors.ErrDatabaseOpen{Path: dbPath, Err: err}
	}

	settings, err := NewSQLiteSettingsStore(db)
	if err != nil {
		db.Close()
		return nil, &errors.ErrDatabaseQuery{Operation: "create settings table", Err: err}
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db, path: dbPath, settings: settings}, nil
}

// runMigrations applies every migration newer than the recorded version in one transaction.
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "create migrations table", Err: err}
	}

	var currentVersion int
	err = db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion)
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "get current migration version", Err: err}
	}

	migrations := []struct {
		version int
		up      string
	}{
		{
			version: 1,
			up: `
				CREATE TABLE IF NOT EXISTS credentials (
					user_id TEXT PRIMARY KEY,
					username BLOB NOT NULL,
					password BLOB NOT NULL,
					auth_token BLOB NOT NULL,
					two_factor_token BLOB NOT NULL,
					updated_at DATETIME NOT NULL
				);

				CREATE TABLE IF NOT EXISTS managed_groups (
					mode TEXT NOT NULL,
					owner_id TEXT NOT NULL,
					group_id TEXT NOT NULL,
					name TEXT NOT NULL DEFAULT '',
					short_code TEXT NOT NULL DEFAULT '',
					discriminator TEXT NOT NULL DEFAULT '',
					description TEXT NOT NULL DEFAULT '',
					icon_url TEXT NOT NULL DEFAULT '',
					banner_url TEXT NOT NULL DEFAULT '',
					vrc_owner_id TEXT NOT NULL DEFAULT '',
					added_at DATETIME NOT NULL,
					PRIMARY KEY (mode, owner_id, group_id)
				);

				CREATE TABLE IF NOT EXISTS selected_groups (
					guild_id TEXT PRIMARY KEY,
					group_id TEXT NOT NULL,
					updated_at DATETIME NOT NULL
				);

				CREATE TABLE IF NOT EXISTS role_groups (
					guild_id TEXT NOT NULL,
					role_id TEXT NOT NULL,
					group_id TEXT NOT NULL,
					updated_at DATETIME NOT NULL,
					PRIMARY KEY (guild_id, role_id)
				);
			`,
		},
		{
			version: 2,
			up: `
				CREATE TABLE IF NOT EXISTS joined_groups (
					user_id TEXT NOT NULL,
					group_id TEXT NOT NULL,
					name TEXT NOT NULL DEFAULT '',
					short_code TEXT NOT NULL DEFAULT '',
					discriminator TEXT NOT NULL DEFAULT '',
					owner_id TEXT NOT NULL DEFAULT '',
					cached_at DATETIME NOT NULL,
					PRIMARY KEY (user_id, group_id)
				);

				CREATE INDEX IF NOT EXISTS idx_joined_groups_cached_at ON joined_groups(cached_at);
			`,
		},
	}

	tx, err := db.Begin()
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "begin transaction", Err: err}
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := tx.Exec(m.up); err != nil {
			return &errors.ErrDatabaseMigration{Version: m.version, Err: err}
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", m.version); err != nil {
			return &errors.ErrDatabaseMigration{Version: m.version, Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &errors.ErrDatabaseQuery{Operation: "commit migrations", Err: err}
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// DB exposes the handle for housekeeping jobs.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// Settings returns the settings store.
func (s *SQLiteStore) Settings() SettingsStore {
	return s.settings
}

// SchemaVersion returns the highest applied migration.
func (s *SQLiteStore) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	if err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&v); err != nil {
		return 0, &errors.ErrDatabaseQuery{Operation: "schema version", Err: err}
	}
	return v, nil
}

// Ping checks the connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// StoreStats summarises row counts for status reporting.
type StoreStats struct {
	LinkedUsers  int `json:"linked_users"`
	Groups       int `json:"groups"`
	JoinedCached int `json:"joined_cached"`
}

// Stats returns row counts.
func (s *SQLiteStore) Stats(ctx context.Context) (StoreStats, error) {
	var st StoreStats
	for _, q := range []struct {
		query string
		dst   *int
	}{
		{"SELECT COUNT(*) FROM credentials", &st.LinkedUsers},
		{"SELECT COUNT(*) FROM managed_groups", &st.Groups},
		{"SELECT COUNT(*) FROM joined_groups", &st.JoinedCached},
	} {
		if err := s.db.QueryRowContext(ctx, q.query).Scan(q.dst); err != nil {
			return StoreStats{}, &errors.ErrDatabaseQuery{Operation: "stats", Err: err}
		}
	}
	return st, nil
}
