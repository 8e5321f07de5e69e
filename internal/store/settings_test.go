package store

import (
	"database/sql"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func newTestSettingsStore(t *testing.T) *SQLiteSettingsStore {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	// every pooled connection would otherwise get its own empty database
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	store, err := NewSQLiteSettingsStore(db)
	require.NoError(t, err)
	return store
}

func settingsStores(t *testing.T) map[string]SettingsStore {
	return map[string]SettingsStore{
		"sqlite": newTestSettingsStore(t),
		"memory": NewMemorySettingsStore(),
	}
}

func TestSettingsStore_GetSetDelete(t *testing.T) {
	for name, store := range settingsStores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Set("k", "v1"))
			require.NoError(t, store.Set("k", "v2"))

			value, ok := store.Get("k")
			assert.True(t, ok)
			assert.Equal(t, "v2", value)

			value, ok, err := store.Lookup("k")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "v2", value)

			require.NoError(t, store.Delete("k"))
			_, ok = store.Get("k")
			assert.False(t, ok)
		})
	}
}

func TestSettingsStore_SetIfAbsent(t *testing.T) {
	for name, store := range settingsStores(t) {
		t.Run(name, func(t *testing.T) {
			stored, err := store.SetIfAbsent("secret", "first")
			require.NoError(t, err)
			assert.True(t, stored)

			stored, err = store.SetIfAbsent("secret", "second")
			require.NoError(t, err)
			assert.False(t, stored)

			value, _ := store.Get("secret")
			assert.Equal(t, "first", value)
		})
	}
}

func TestSettingsStore_SetIfAbsentRace(t *testing.T) {
	store := newTestSettingsStore(t)

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			stored, err := store.SetIfAbsent("once", "x")
			if err == nil && stored {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, winners)
}

func TestSettingsStore_Typed(t *testing.T) {
	for name, store := range settingsStores(t) {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, 42, store.GetInt("missing", 42))
			require.NoError(t, store.SetInt("n", 100))
			assert.Equal(t, 100, store.GetInt("n", 0))
			require.NoError(t, store.Set("bad", "nope"))
			assert.Equal(t, 7, store.GetInt("bad", 7))

			assert.True(t, store.GetBool("missing", true))
			require.NoError(t, store.SetBool("b", true))
			assert.True(t, store.GetBool("b", false))
			require.NoError(t, store.SetBool("b", false))
			assert.False(t, store.GetBool("b", true))
		})
	}
}

func TestSettingsStore_Persistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.db")

	db1, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	store1, err := NewSQLiteSettingsStore(db1)
	require.NoError(t, err)
	require.NoError(t, store1.Set("persistent_key", "persistent_value"))
	require.NoError(t, db1.Close())

	db2, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db2.Close()
	store2, err := NewSQLiteSettingsStore(db2)
	require.NoError(t, err)

	value, ok := store2.Get("persistent_key")
	assert.True(t, ok)
	assert.Equal(t, "persistent_value", value)
}
