package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Pruner deletes rows older than cutoff and reports how many went.
type Pruner func(ctx context.Context, cutoff time.Time) (int64, error)

// SQLiteCleaner runs retention and maintenance against the bot database.
// Table specific deletes are registered as Pruners so that the SQL stays with
// the store that owns the schema.
type SQLiteCleaner struct {
	db      *sql.DB
	pruners map[string]Pruner
	now     func() time.Time
}

// NewSQLiteCleaner creates a new SQLite cleaner.
func NewSQLiteCleaner(db *sql.DB) *SQLiteCleaner {
	return &SQLiteCleaner{db: db, pruners: make(map[string]Pruner), now: time.Now}
}

// Register binds table to its pruner.
func (c *SQLiteCleaner) Register(table string, p Pruner) {
	c.pruners[table] = p
}

// CleanupResult holds the result of a cleanup operation.
type CleanupResult struct {
	TableName    string
	DeletedCount int64
	Duration     time.Duration
	Error        error
}

// Cleanup applies one policy.
func (c *SQLiteCleaner) Cleanup(ctx context.Context, policy RetentionPolicy) (*CleanupResult, error) {
	start := time.Now()
	result := &CleanupResult{TableName: policy.TableName}

	if err := policy.Validate(); err != nil {
		result.Error = err
		return result, err
	}
	prune, ok := c.pruners[policy.TableName]
	if !ok {
		result.Error = fmt.Errorf("no pruner registered for %s", policy.TableName)
		return result, result.Error
	}

	deleted, err := prune(ctx, c.now().Add(-policy.RetentionPeriod))
	result.Duration = time.Since(start)
	if err != nil {
		result.Error = fmt.Errorf("failed to cleanup %s: %w", policy.TableName, err)
		return result, result.Error
	}
	result.DeletedCount = deleted
	return result, nil
}

// RunAllCleanup applies every enabled policy. It keeps going after a failure
// and returns the first error.
func (c *SQLiteCleaner) RunAllCleanup(ctx context.Context, provider PolicyProvider) ([]*CleanupResult, error) {
	var results []*CleanupResult
	var firstErr error
	for _, policy := range provider.GetAllPolicies() {
		if !policy.Enabled {
			continue
		}
		result, err := c.Cleanup(ctx, policy)
		results = append(results, result)
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return results, firstErr
}

// VacuumDatabase reclaims free pages.
func (c *SQLiteCleaner) VacuumDatabase(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("failed to vacuum database: %w", err)
	}
	return nil
}

// AnalyzeDatabase refreshes query planner statistics.
func (c *SQLiteCleaner) AnalyzeDatabase(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, "ANALYZE"); err != nil {
		return fmt.Errorf("failed to analyze database: %w", err)
	}
	return nil
}
