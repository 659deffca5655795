package history

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"log/slog"

	_ "modernc.org/sqlite"

	"skystack/internal/config"
	"skystack/internal/imaging"
	"skystack/internal/logging"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current ledger schema version. Bump on schema changes;
// users clear the database after a bump.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database schema version doesn't match the
// expected version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// Decode outcomes stored in the ledger.
const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
)

// Entry is one ledger row.
type Entry struct {
	ID           int64
	Path         string
	Outcome      string
	Error        string
	BayerPattern string
	Width        int
	Height       int
	ImageID      string
	CreatedAt    time.Time
}

// Store manages ledger persistence backed by SQLite.
type Store struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// Open initializes or connects to the ledger database under the data dir.
func Open(cfg *config.Config, logger *slog.Logger) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.DataDir, "history.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{
		db:     db,
		path:   dbPath,
		logger: logging.NewComponentLogger(logger, "history"),
	}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	err = s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s to rebuild)",
			ErrSchemaMismatch, version, schemaVersion, s.path)
	}
	return nil
}

func (s *Store) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

// Record appends one entry to the ledger. A zero CreatedAt is stamped with
// the current time.
func (s *Store) Record(ctx context.Context, entry Entry) error {
	created := entry.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	return s.execWithRetry(ctx,
		`INSERT INTO ingest_history (
            path, outcome, error, bayer_pattern, width, height, image_id, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.Path,
		entry.Outcome,
		entry.Error,
		entry.BayerPattern,
		entry.Width,
		entry.Height,
		entry.ImageID,
		created.Format(time.RFC3339Nano),
	)
}

// Recent returns the newest entries first, at most limit rows.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, path, outcome, error, bayer_pattern, width, height, image_id, created_at
         FROM ingest_history ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var entry Entry
		var created string
		if err := rows.Scan(
			&entry.ID, &entry.Path, &entry.Outcome, &entry.Error,
			&entry.BayerPattern, &entry.Width, &entry.Height, &entry.ImageID,
			&created,
		); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		if ts, parseErr := time.Parse(time.RFC3339Nano, created); parseErr == nil {
			entry.CreatedAt = ts
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history rows: %w", err)
	}
	return entries, nil
}

// RecordSuccess journals a decoded image. It satisfies the watcher's recorder
// contract; persistence failures are logged, never propagated into the watch
// loop.
func (s *Store) RecordSuccess(ctx context.Context, path string, img *imaging.Image) {
	entry := Entry{
		Path:    path,
		Outcome: OutcomeSuccess,
	}
	if img != nil {
		entry.BayerPattern = img.BayerPattern
		entry.Width = img.Width()
		entry.Height = img.Height()
		entry.ImageID = img.ID.String()
	}
	s.recordOrLog(ctx, entry)
}

// RecordFailure journals a failed decode attempt.
func (s *Store) RecordFailure(ctx context.Context, path string, decodeErr error) {
	entry := Entry{
		Path:    path,
		Outcome: OutcomeFailed,
	}
	if decodeErr != nil {
		entry.Error = decodeErr.Error()
	}
	s.recordOrLog(ctx, entry)
}

func (s *Store) recordOrLog(ctx context.Context, entry Entry) {
	if err := s.Record(ctx, entry); err != nil {
		s.logger.Warn("failed to journal ingest outcome",
			logging.Error(err),
			logging.String(logging.FieldEventType, "history_record_failed"),
			logging.String(logging.FieldPath, entry.Path),
		)
	}
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) error {
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query, args...)
		return err
	})
}
