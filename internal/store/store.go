package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/beacon/internal/serial"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Empty database
// 1 - events and data tables
const currentSchemaVersion = 1

type options struct {
	logger *slog.Logger
	now    func() time.Time
}

func defaultOptions() options {
	return options{
		logger: slog.Default(),
		now:    time.Now,
	}
}

// WithLogger sets the logger used for skipped rows and the serial queue.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithNow sets the time source used for created_at and updated_at.
func WithNow(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// SQLiteStore is a Store backed by one SQLite file.
type SQLiteStore struct {
	db     *sql.DB
	queue  *serial.Queue
	logger *slog.Logger
	now    func() time.Time

	closeOnce sync.Once
	closeErr  error
}

var _ Store = (*SQLiteStore)(nil)

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and migrations automatically.
//
// This function is idempotent - safe to call multiple times on the same file.
func Open(path string, opts ...Option) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, openError("open database", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, openError("connect", err)
	}

	// SQLite supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, openError("apply pragmas", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, openError("apply schema", err)
	}

	return newSQLStore(db, opts...), nil
}

// newSQLStore wraps an already configured connection and starts its queue.
func newSQLStore(db *sql.DB, opts ...Option) *SQLiteStore {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	return &SQLiteStore{
		db:     db,
		queue:  serial.Start(serial.New("store", serial.WithLogger(o.logger))),
		logger: o.logger,
		now:    o.now,
	}
}

// Close drains pending operations and closes the database connection.
// Safe to call more than once.
func (s *SQLiteStore) Close() error {
	s.closeOnce.Do(func() {
		s.queue.Close()
		<-s.queue.Done()
		s.closeErr = s.db.Close()
	})
	return s.closeErr
}

// do runs fn on the store's serial queue with the caller's context.
func (s *SQLiteStore) do(ctx context.Context, op string, fn func() error) error {
	err := s.queue.Call(ctx, func(context.Context) error { return fn() })
	if errors.Is(err, serial.ErrClosed) {
		return execError(op, err)
	}
	return err
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}

// applySchema creates tables if they don't exist and records the version.
// This function is idempotent.
func applySchema(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", version, currentSchemaVersion)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}
