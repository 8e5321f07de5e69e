package cli

import (
	stderrors "errors"

	"github.com/vrceventbot/vrceventbot/internal/config"
	"github.com/vrceventbot/vrceventbot/internal/errors"
	"github.com/vrceventbot/vrceventbot/internal/store"
	"github.com/vrceventbot/vrceventbot/internal/vault"
)

const defaultDBPath = "./data/vrceventbot.db"

// loadOptionalConfig loads the config file for the offline commands. A
// missing file is not an error; they fall back to defaults.
func loadOptionalConfig() (*config.Config, error) {
	cfg, err := config.NewLoader(globalFlags.Config).Load()
	if err != nil {
		var notFound *errors.ErrConfigNotFound
		if stderrors.As(err, &notFound) {
			return nil, nil
		}
		return nil, err
	}
	return cfg, nil
}

// resolveDBPath picks --db, then store.path, then the default.
func resolveDBPath(cfg *config.Config) string {
	if globalFlags.DBPath != "" {
		return globalFlags.DBPath
	}
	if cfg != nil && cfg.Store.Path != "" {
		return cfg.Store.Path
	}
	return defaultDBPath
}

// openRecords returns the record backend the config selects.
func openRecords(cfg *config.Config, st *store.SQLiteStore) (vault.RecordStore, error) {
	if cfg != nil && cfg.Vault.Backend == config.VaultBackendFile {
		return vault.NewFileRecordStore(cfg.Vault.LoginsDir)
	}
	return st, nil
}

// openOffline opens the database and record backend without connecting to Discord.
func openOffline() (*config.Config, *store.SQLiteStore, vault.RecordStore, error) {
	cfg, err := loadOptionalConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	st, err := store.NewSQLiteStore(resolveDBPath(cfg))
	if err != nil {
		return nil, nil, nil, err
	}
	records, err := openRecords(cfg, st)
	if err != nil {
		st.Close()
		return nil, nil, nil, err
	}
	return cfg, st, records, nil
}
