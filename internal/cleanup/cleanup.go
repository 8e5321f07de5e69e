// Package cleanup runs periodic housekeeping: retention of cached rows,
// pruning of abandoned logins and SQLite maintenance.
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/vrceventbot/vrceventbot/internal/logging"
)

// MetricsRecorder defines the interface for recording cleanup metrics.
type MetricsRecorder interface {
	RecordCleanupOperation(tableName string, deletedCount int64, duration time.Duration)
	RecordVacuumOperation(duration time.Duration)
	RecordAnalyzeOperation(duration time.Duration)
}

// PendingPruner drops expired in-memory logins. auth.Service implements it.
type PendingPruner interface {
	PrunePending() int
}

// Config contains the cleanup manager configuration.
type Config struct {
	Interval          time.Duration     `json:"interval"`
	RetentionPolicies []RetentionPolicy `json:"retention_policies"`
	VacuumEnabled     bool              `json:"vacuum_enabled"`
	VacuumInterval    time.Duration     `json:"vacuum_interval"`
	AnalyzeEnabled    bool              `json:"analyze_enabled"`
	AnalyzeInterval   time.Duration     `json:"analyze_interval"`
}

// Stats contains cleanup statistics.
type Stats struct {
	TotalRuns         int              `json:"total_runs"`
	TotalDeletedCount int64            `json:"total_deleted_count"`
	PendingPruned     int              `json:"pending_pruned"`
	LastRunAt         time.Time        `json:"last_run_at"`
	LastRunDuration   time.Duration    `json:"last_run_duration"`
	LastRunResults    []*CleanupResult `json:"last_run_results"`
	VacuumCount       int              `json:"vacuum_count"`
	VacuumLastAt      time.Time        `json:"vacuum_last_at"`
	AnalyzeCount      int              `json:"analyze_count"`
	AnalyzeLastAt     time.Time        `json:"analyze_last_at"`
}

// Manager handles periodic cleanup of old data.
type Manager struct {
	config   Config
	provider PolicyProvider
	cleaner  *SQLiteCleaner
	metrics  MetricsRecorder
	pending  PendingPruner
	logger   *logging.Logger

	done    chan struct{}
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex

	statsMu sync.RWMutex
	stats   Stats
}

// NewManager creates a new cleanup manager. metrics may be nil.
func NewManager(config Config, db *sql.DB, metrics MetricsRecorder) *Manager {
	return &Manager{
		config:   config,
		provider: NewInMemoryPolicyProvider(config.RetentionPolicies),
		cleaner:  NewSQLiteCleaner(db),
		metrics:  metrics,
		logger:   logging.Nop(),
	}
}

// SetPolicyProvider sets a custom policy provider.
func (m *Manager) SetPolicyProvider(provider PolicyProvider) {
	m.provider = provider
}

// SetPendingPruner makes every cleanup run also prune abandoned logins.
func (m *Manager) SetPendingPruner(p PendingPruner) {
	m.pending = p
}

// SetLogger sets the logger used for background failures.
func (m *Manager) SetLogger(logger *logging.Logger) {
	if logger != nil {
		m.logger = logger
	}
}

// Start starts the cleanup manager.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("cleanup manager is already running")
	}
	m.running = true
	m.done = make(chan struct{})

	if m.config.Interval > 0 {
		m.loop(ctx, m.config.Interval, func() { m.RunCleanup(ctx) })
	}
	if m.config.VacuumEnabled && m.config.VacuumInterval > 0 {
		m.loop(ctx, m.config.VacuumInterval, func() {
			if err := m.RunVacuum(ctx); err != nil {
				m.logger.Warn("vacuum failed", "error", err)
			}
		})
	}
	if m.config.AnalyzeEnabled && m.config.AnalyzeInterval > 0 {
		m.loop(ctx, m.config.AnalyzeInterval, func() {
			if err := m.RunAnalyze(ctx); err != nil {
				m.logger.Warn("analyze failed", "error", err)
			}
		})
	}
	return nil
}

func (m *Manager) loop(ctx context.Context, every time.Duration, run func()) {
	ticker := time.NewTicker(every)
	done := m.done
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				run()
			}
		}
	}()
}

// Stop stops the background loops and waits for a run in progress.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	close(m.done)
	m.mu.Unlock()

	m.wg.Wait()
	return nil
}

// RunCleanup performs a cleanup operation immediately.
func (m *Manager) RunCleanup(ctx context.Context) *Stats {
	start := time.Now()

	results, err := m.cleaner.RunAllCleanup(ctx, m.provider)
	if err != nil {
		m.logger.Warn("retention cleanup failed", "error", err)
	}

	pruned := 0
	if m.pending != nil {
		pruned = m.pending.PrunePending()
	}

	duration := time.Since(start)

	m.statsMu.Lock()
	m.stats.TotalRuns++
	m.stats.LastRunAt = time.Now()
	m.stats.LastRunDuration = duration
	m.stats.LastRunResults = results
	m.stats.PendingPruned += pruned
	for _, result := range results {
		if result.Error == nil {
			m.stats.TotalDeletedCount += result.DeletedCount
		}
	}
	m.statsMu.Unlock()

	if m.metrics != nil {
		for _, result := range results {
			if result.Error == nil {
				m.metrics.RecordCleanupOperation(result.TableName, result.DeletedCount, result.Duration)
			}
		}
	}

	m.logger.Debug("cleanup run finished", "duration_ms", duration.Milliseconds(), "pending_pruned", pruned)
	return m.GetStats()
}

// RunVacuum performs a vacuum operation immediately.
func (m *Manager) RunVacuum(ctx context.Context) error {
	start := time.Now()
	err := m.cleaner.VacuumDatabase(ctx)
	duration := time.Since(start)

	m.statsMu.Lock()
	m.stats.VacuumCount++
	m.stats.VacuumLastAt = time.Now()
	m.statsMu.Unlock()

	if m.metrics != nil && err == nil {
		m.metrics.RecordVacuumOperation(duration)
	}
	return err
}

// RunAnalyze performs an analyze operation immediately.
func (m *Manager) RunAnalyze(ctx context.Context) error {
	start := time.Now()
	err := m.cleaner.AnalyzeDatabase(ctx)
	duration := time.Since(start)

	m.statsMu.Lock()
	m.stats.AnalyzeCount++
	m.stats.AnalyzeLastAt = time.Now()
	m.statsMu.Unlock()

	if m.metrics != nil && err == nil {
		m.metrics.RecordAnalyzeOperation(duration)
	}
	return err
}

// GetStats returns a copy of the current cleanup statistics.
func (m *Manager) GetStats() *Stats {
	m.statsMu.RLock()
	defer m.statsMu.RUnlock()
	cp := m.stats
	return &cp
}

// GetCleaner returns the SQLite cleaner instance.
func (m *Manager) GetCleaner() *SQLiteCleaner {
	return m.cleaner
}

// IsRunning returns whether the cleanup manager is running.
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}
