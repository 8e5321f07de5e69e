package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/vrceventbot/vrceventbot/internal/errors"
	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the environment variable holding the config file path.
const EnvConfigPath = "VRCEVENTBOT_CONFIG_PATH"

// Loader handles configuration loading and hot-reloading
type Loader struct {
	path     string
	mu       sync.RWMutex
	config   *Config
	lastMod  time.Time
	onChange func(*Config)
	onError  func(error)
}

// NewLoader creates a new configuration loader
func NewLoader(path string) *Loader {
	return &Loader{path: path}
}

// Path returns the file the loader reads.
func (l *Loader) Path() string {
	return l.path
}

// Load reads, substitutes, parses and validates the configuration file.
func (l *Loader) Load() (*Config, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	info, err := os.Stat(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &errors.ErrConfigNotFound{Path: l.path}
		}
		return nil, &errors.ErrFileRead{Path: l.path, Err: err}
	}

	content, err := os.ReadFile(l.path)
	if err != nil {
		return nil, &errors.ErrFileRead{Path: l.path, Err: err}
	}

	cfg, err := Parse(substituteEnvVars(content))
	if err != nil {
		return nil, err
	}

	l.config = cfg
	l.lastMod = info.ModTime()
	return cfg, nil
}

// Reload forces a reload and notifies the change callback.
func (l *Loader) Reload() (*Config, error) {
	cfg, err := l.Load()
	if err != nil {
		return nil, err
	}

	l.mu.RLock()
	onChange := l.onChange
	l.mu.RUnlock()

	if onChange != nil {
		onChange(cfg)
	}
	return cfg, nil
}

// Get returns the current configuration
func (l *Loader) Get() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.config
}

// SetOnChange sets a callback to be called when configuration changes
func (l *Loader) SetOnChange(fn func(*Config)) {
	l.mu.Lock()
	l.onChange = fn
	l.mu.Unlock()
}

// SetOnError sets a callback for reload failures seen by the watcher.
func (l *Loader) SetOnError(fn func(error)) {
	l.mu.Lock()
	l.onError = fn
	l.mu.Unlock()
}

// Watch reloads the configuration whenever the file changes until ctx is done.
// The parent directory is watched so that editors replacing the file by rename
// are picked up.
func (l *Loader) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	dir := filepath.Dir(l.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return err
	}
	target := filepath.Clean(l.path)

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Chmod) {
					l.reloadIfChanged()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				l.reportError(err)
			}
		}
	}()

	return nil
}

func (l *Loader) reloadIfChanged() {
	info, err := os.Stat(l.path)
	if err != nil {
		return
	}

	l.mu.RLock()
	lastMod := l.lastMod
	l.mu.RUnlock()

	if !info.ModTime().After(lastMod) {
		return
	}
	if _, err := l.Reload(); err != nil {
		l.reportError(err)
	}
}

func (l *Loader) reportError(err error) {
	l.mu.RLock()
	onError := l.onError
	l.mu.RUnlock()
	if onError != nil {
		onError(err)
	}
}

// ResolvePath returns explicit if set, then the environment variable, then config.yaml.
func ResolvePath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if path := os.Getenv(EnvConfigPath); path != "" {
		return path
	}
	return "config.yaml"
}

// Parse parses configuration from byte slice
func Parse(data []byte) (*Config, error) {
	var cfg Config

	cfg.Server.HTTPPort = 8319
	cfg.Server.ShutdownTimeout = 30 * time.Second
	cfg.Logging.Level = "info"
	cfg.Vault.Backend = VaultBackendSQLite

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, &errors.ErrConfigParse{Err: err}
	}

	if err := cfg.Validate(); err != nil {
		return nil, &errors.ErrConfigValidation{Err: err}
	}

	return &cfg, nil
}

func substituteEnvVars(content []byte) []byte {
	return []byte(os.ExpandEnv(string(content)))
}
