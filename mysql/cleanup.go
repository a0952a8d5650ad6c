package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/velmie/jobrelay"
)

const (
	defaultCleanupLimit      = 10000
	defaultCleanupEvery      = time.Hour
	defaultCleanupLockPrefix = "jobrelay:cleanup:"
)

// CleanupOptions defines which processed and dead messages to delete.
type CleanupOptions struct {
	// Before removes rows older than this timestamp (required).
	Before time.Time
	// Limit caps the number of rows deleted per call (0 uses the default).
	Limit int
	// IncludeDead removes rows with status=dead using updated_at for cutoff.
	IncludeDead bool
	// JobName restricts cleanup to messages of one job. Empty means every job.
	JobName string
}

// CleanupResult reports how many rows were removed.
type CleanupResult struct {
	Processed int64
	Dead      int64
}

// CleanupMaintainerConfig controls periodic cleanup of a job message table.
type CleanupMaintainerConfig struct {
	// Table is the job message table name. Use schema.table for non-default schema.
	Table string
	// Retention removes rows older than now-retention (required).
	Retention time.Duration
	// CheckEvery is the interval between cleanup runs.
	CheckEvery time.Duration
	// Limit caps the number of rows deleted per run (0 uses the default).
	Limit int
	// IncludeDead removes dead rows in addition to processed rows.
	IncludeDead bool
	// JobName restricts cleanup to messages of one job. Empty means every job.
	JobName string
	// LockName is the advisory lock name. Defaults to jobrelay:cleanup:<table>.
	LockName string
	// Clock overrides time source (useful for tests).
	Clock jobrelay.Clock
	// Logger receives warnings about cleanup failures.
	Logger jobrelay.Logger
}

// CleanupMaintainer periodically deletes old messages. Instances on several hosts
// coordinate through a MySQL advisory lock, so one pass runs at a time.
type CleanupMaintainer struct {
	store *Store
	cfg   CleanupMaintainerConfig
}

// Cleanup removes processed messages, and optionally dead ones, older than opts.Before.
// Poison messages are acknowledged, so they are removed with the processed ones.
func (s *Store) Cleanup(ctx context.Context, opts CleanupOptions) (CleanupResult, error) {
	if opts.Before.IsZero() {
		return CleanupResult{}, ErrCleanupBeforeRequired
	}
	limit := opts.Limit
	if limit == 0 {
		limit = defaultCleanupLimit
	}
	if limit < 0 {
		return CleanupResult{}, ErrCleanupLimitInvalid
	}

	targets := []cleanupTarget{{status: jobrelay.StatusProcessed, column: "processed_at"}}
	if opts.IncludeDead {
		targets = append(targets, cleanupTarget{status: jobrelay.StatusDead, column: "updated_at"})
	}

	var result CleanupResult
	remaining := limit
	for _, target := range targets {
		if remaining <= 0 {
			break
		}
		removed, err := s.cleanupTarget(ctx, target, opts, remaining)
		if err != nil {
			return result, err
		}
		remaining -= int(removed)
		if target.status == jobrelay.StatusDead {
			result.Dead = removed
		} else {
			result.Processed = removed
		}
	}

	return result, nil
}

// NewCleanupMaintainer creates a new cleanup maintainer with defaults applied.
func NewCleanupMaintainer(db *sql.DB, cfg CleanupMaintainerConfig) (*CleanupMaintainer, error) {
	if db == nil {
		return nil, ErrDBRequired
	}
	if cfg.Retention <= 0 {
		return nil, ErrCleanupRetentionInvalid
	}
	if cfg.Clock == nil {
		cfg.Clock = jobrelay.SystemClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = jobrelay.NopLogger{}
	}
	if cfg.CheckEvery <= 0 {
		cfg.CheckEvery = defaultCleanupEvery
	}
	if cfg.Limit == 0 {
		cfg.Limit = defaultCleanupLimit
	}
	if cfg.Limit < 0 {
		return nil, ErrCleanupLimitInvalid
	}

	store, err := NewStore(db, WithTable(cfg.Table), WithClock(cfg.Clock))
	if err != nil {
		return nil, err
	}
	cfg.Table = store.table
	if cfg.LockName == "" {
		cfg.LockName = defaultCleanupLockPrefix + cfg.Table
	}

	return &CleanupMaintainer{store: store, cfg: cfg}, nil
}

// Run deletes old messages every CheckEvery until the context is canceled.
func (m *CleanupMaintainer) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.CheckEvery)
	defer ticker.Stop()

	m.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.runOnce(ctx)
		}
	}
}

func (m *CleanupMaintainer) runOnce(ctx context.Context) {
	res, err := m.Ensure(ctx)
	if err != nil {
		m.cfg.Logger.Warn("jobrelay cleanup failed", "table", m.cfg.Table, "err", err)

		return
	}
	if res.Processed > 0 || res.Dead > 0 {
		m.cfg.Logger.Info("jobrelay cleanup removed messages", "table", m.cfg.Table, "processed", res.Processed, "dead", res.Dead)
	}
}

// Ensure executes a single cleanup pass. It returns a zero result when another
// session holds the lock.
func (m *CleanupMaintainer) Ensure(ctx context.Context) (CleanupResult, error) {
	conn, err := m.store.db.Conn(ctx)
	if err != nil {
		return CleanupResult{}, fmt.Errorf("jobrelay mysql: cleanup conn failed: %w", err)
	}
	defer conn.Close()

	locked, err := m.tryLock(ctx, conn)
	if err != nil {
		return CleanupResult{}, err
	}
	if !locked {
		m.cfg.Logger.Debug("jobrelay cleanup lock held by another session")

		return CleanupResult{}, nil
	}
	defer m.releaseLock(ctx, conn)

	before := m.cfg.Clock.Now().Add(-m.cfg.Retention)

	return m.store.Cleanup(ctx, CleanupOptions{
		Before:      before,
		Limit:       m.cfg.Limit,
		IncludeDead: m.cfg.IncludeDead,
		JobName:     m.cfg.JobName,
	})
}

// cleanupTarget pairs a terminal status with the timestamp column its age is
// measured by.
type cleanupTarget struct {
	status jobrelay.Status
	column string
}

func (s *Store) cleanupTarget(ctx context.Context, target cleanupTarget, opts CleanupOptions, limit int) (int64, error) {
	args := []any{target.status, opts.Before}
	if opts.JobName != "" {
		args = append(args, opts.JobName)
	}
	args = append(args, limit)

	res, err := s.db.ExecContext(ctx, buildCleanupQuery(s.table, target.column, opts.JobName != ""), args...)
	if err != nil {
		return 0, fmt.Errorf("jobrelay mysql: cleanup delete failed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("jobrelay mysql: cleanup rows failed: %w", err)
	}

	return affected, nil
}

func buildCleanupQuery(table, column string, byJob bool) string {
	var b strings.Builder
	// #nosec G202 -- table and column names are internal and sanitized.
	b.WriteString("DELETE FROM " + table + " WHERE status = ? AND " + column + " IS NOT NULL AND " + column + " <= ?")
	if byJob {
		b.WriteString(" AND job_name = ?")
	}
	b.WriteString(" ORDER BY id LIMIT ?")

	return b.String()
}

func (m *CleanupMaintainer) tryLock(ctx context.Context, conn *sql.Conn) (bool, error) {
	var got sql.NullInt64
	if err := conn.QueryRowContext(ctx, "SELECT GET_LOCK(?, 0)", m.cfg.LockName).Scan(&got); err != nil {
		return false, fmt.Errorf("jobrelay mysql: acquire cleanup lock failed: %w", err)
	}
	if !got.Valid || got.Int64 == 0 {
		return false, nil
	}

	return true, nil
}

func (m *CleanupMaintainer) releaseLock(ctx context.Context, conn *sql.Conn) {
	var released sql.NullInt64
	if err := conn.QueryRowContext(ctx, "SELECT RELEASE_LOCK(?)", m.cfg.LockName).Scan(&released); err != nil {
		m.cfg.Logger.Warn("jobrelay cleanup release lock failed", "err", err)
	}
}
