package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/velmie/jobrelay"
)

const (
	maxErrorLen       = 1024
	ackFixedArgs      = 2
	placeholderGrowth = 2
)

// Executor allows enqueuing within an existing transaction.
type Executor interface {
	// ExecContext executes a statement with the provided context.
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Store implements a MySQL-backed job queue using polling + SKIP LOCKED.
type Store struct {
	db      *sql.DB
	cfg     Config
	queries queries
	table   string
}

var (
	_ jobrelay.Consumer       = (*Store)(nil)
	_ jobrelay.PendingCounter = (*Store)(nil)
)

// NewStore constructs a MySQL store with validated configuration.
func NewStore(db *sql.DB, opts ...Option) (*Store, error) {
	if db == nil {
		return nil, ErrDBRequired
	}

	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg = cfg.withDefaults()

	table, err := sanitizeTableName(cfg.Table)
	if err != nil {
		return nil, err
	}

	return &Store{
		db:      db,
		cfg:     cfg,
		queries: newQueries(table),
		table:   table,
	}, nil
}

// MustNewStore constructs a MySQL store or panics on error.
func MustNewStore(db *sql.DB, opts ...Option) *Store {
	store, err := NewStore(db, opts...)
	if err != nil {
		panic(err)
	}

	return store
}

// Table returns the sanitized table name.
func (s *Store) Table() string {
	return s.table
}

// Enqueue inserts a job message using the provided executor (transaction preferred).
func (s *Store) Enqueue(ctx context.Context, exec Executor, env jobrelay.Envelope) (jobrelay.ID, error) {
	if exec == nil {
		return jobrelay.ID{}, ErrExecutorRequired
	}
	if s.cfg.ValidatePayload {
		if err := env.Validate(); err != nil {
			return jobrelay.ID{}, err
		}
	} else if env.JobName == "" {
		return jobrelay.ID{}, jobrelay.ErrJobNameRequired
	}

	id := env.ID
	if id == (jobrelay.ID{}) {
		var err error
		id, err = s.cfg.Generator.New()
		if err != nil {
			return jobrelay.ID{}, fmt.Errorf("jobrelay mysql: generate id failed: %w", err)
		}
	}

	if _, err := exec.ExecContext(ctx, s.queries.insert, idBytes(id), env.JobName, env.PayloadOrEmpty()); err != nil {
		return jobrelay.ID{}, fmt.Errorf("jobrelay mysql: insert failed: %w", err)
	}

	return id, nil
}

// Fetch locks and returns a batch of pending messages using READ COMMITTED + SKIP LOCKED.
func (s *Store) Fetch(ctx context.Context, opts jobrelay.FetchOptions) (jobrelay.Batch, error) {
	if opts.BatchSize <= 0 {
		return nil, jobrelay.ErrInvalidBatchSize
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("jobrelay mysql: begin tx failed: %w", err)
	}

	messages, err := s.selectBatch(ctx, tx, opts)
	if err != nil {
		rollbackErr := tx.Rollback()

		return nil, errors.Join(err, rollbackErr)
	}
	if len(messages) == 0 {
		_ = tx.Rollback()

		return nil, jobrelay.ErrNoMessages
	}

	return &batch{tx: tx, store: s, messages: messages}, nil
}

func (s *Store) selectBatch(ctx context.Context, tx *sql.Tx, opts jobrelay.FetchOptions) ([]jobrelay.Message, error) {
	var (
		rows *sql.Rows
		err  error
	)

	if opts.MinCreatedAt.IsZero() {
		rows, err = tx.QueryContext(ctx, s.queries.selectPending, jobrelay.StatusPending, opts.BatchSize)
	} else {
		rows, err = tx.QueryContext(ctx, s.queries.selectPendingTS, jobrelay.StatusPending, createdTS(opts.MinCreatedAt), opts.BatchSize)
	}
	if err != nil {
		return nil, fmt.Errorf("jobrelay mysql: select failed: %w", err)
	}
	defer rows.Close()

	messages := make([]jobrelay.Message, 0, opts.BatchSize)
	for rows.Next() {
		var msg jobrelay.Message
		if err := rows.Scan(&msg.ID, &msg.JobName, &msg.Payload, &msg.CreatedAt, &msg.Attempts); err != nil {
			return nil, fmt.Errorf("jobrelay mysql: scan failed: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("jobrelay mysql: rows failed: %w", err)
	}

	return messages, nil
}

func (s *Store) ack(ctx context.Context, tx *sql.Tx, ids []jobrelay.ID) error {
	if len(ids) == 0 {
		return nil
	}

	query := buildAckQuery(s.table, len(ids))
	args := make([]any, 0, len(ids)+ackFixedArgs)
	args = append(args, jobrelay.StatusProcessed, s.cfg.Clock.Now())
	for _, id := range ids {
		args = append(args, idBytes(id))
	}

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("jobrelay mysql: ack update failed: %w", err)
	}

	return nil
}

func (s *Store) fail(ctx context.Context, tx *sql.Tx, failures []jobrelay.Failure) error {
	for _, failure := range failures {
		if _, err := tx.ExecContext(
			ctx,
			s.queries.updateFailureOne,
			truncateError(failure.Err),
			s.cfg.MaxAttempts,
			jobrelay.StatusDead,
			jobrelay.StatusPending,
			idBytes(failure.ID),
		); err != nil {
			return fmt.Errorf("jobrelay mysql: fail update failed: %w", err)
		}
	}

	return nil
}

func (s *Store) dead(ctx context.Context, tx *sql.Tx, failures []jobrelay.Failure) error {
	for _, failure := range failures {
		if _, err := tx.ExecContext(
			ctx,
			s.queries.updateDeadOne,
			truncateError(failure.Err),
			jobrelay.StatusDead,
			idBytes(failure.ID),
		); err != nil {
			return fmt.Errorf("jobrelay mysql: dead update failed: %w", err)
		}
	}

	return nil
}

// PendingCount returns the number of pending job messages.
func (s *Store) PendingCount(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, s.queries.countPending, jobrelay.StatusPending).Scan(&count); err != nil {
		return 0, fmt.Errorf("jobrelay mysql: pending count failed: %w", err)
	}

	return count, nil
}

// CountByStatus returns the number of stored messages per status.
func (s *Store) CountByStatus(ctx context.Context) (map[jobrelay.Status]int, error) {
	rows, err := s.db.QueryContext(ctx, s.queries.countByStatus)
	if err != nil {
		return nil, fmt.Errorf("jobrelay mysql: status count failed: %w", err)
	}
	defer rows.Close()

	counts := make(map[jobrelay.Status]int, 3)
	for rows.Next() {
		var (
			status jobrelay.Status
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("jobrelay mysql: status count scan failed: %w", err)
		}
		counts[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("jobrelay mysql: status count rows failed: %w", err)
	}

	return counts, nil
}

func buildAckQuery(table string, count int) string {
	placeholders := makePlaceholders(count)

	return fmt.Sprintf("UPDATE %s SET status = ?, processed_at = ?, last_error = NULL WHERE id IN (%s)", table, placeholders)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}

	buf := make([]byte, 0, count*placeholderGrowth)
	for i := 0; i < count; i++ {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = append(buf, '?')
	}

	return string(buf)
}

// idBytes binds an ID as BINARY(16); uuid.UUID values bind as text.
func idBytes(id jobrelay.ID) []byte {
	return id[:]
}

func createdTS(t time.Time) int64 {
	return t.UTC().Unix()
}

func truncateError(err error) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	if utf8.RuneCountInString(msg) <= maxErrorLen {
		return msg
	}

	return string([]rune(msg)[:maxErrorLen])
}
