package evalstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"git.home.luguber.info/inful/sagecache/internal/artifact"
	"git.home.luguber.info/inful/sagecache/internal/foundation/errors"
	"git.home.luguber.info/inful/sagecache/internal/logfields"
)

// Store implements the evaluation cache on SQLite.
type Store struct {
	db        *sql.DB
	artifacts artifact.Store
	fetcher   artifact.Fetcher
	now       func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithArtifacts sets where file results are written. Without it, file results
// are recorded but their bytes are discarded.
func WithArtifacts(a artifact.Store) Option {
	return func(s *Store) { s.artifacts = a }
}

// WithFetcher sets the downloader used for backend-served files.
func WithFetcher(f artifact.Fetcher) Option {
	return func(s *Store) { s.fetcher = f }
}

// WithClock overrides the evaluation timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open opens (creating if needed) the store at dbPath.
// Use ":memory:" for an in-memory database.
func Open(dbPath string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, errors.StoreError("open sqlite database").WithCause(err).
			WithContext("path", dbPath).Build()
	}
	// One connection: ":memory:" databases are per-connection, and SQLite
	// serializes writers anyway.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.initialize(context.Background()); err != nil {
		_ = db.Close()
		return nil, errors.StoreError("initialize schema").WithCause(err).
			WithContext("path", dbPath).Build()
	}
	return s, nil
}

func (s *Store) initialize(ctx context.Context) error {
	schema := `
	PRAGMA foreign_keys = ON;
	CREATE TABLE IF NOT EXISTS sources (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		path TEXT NOT NULL UNIQUE,
		filetype TEXT NOT NULL DEFAULT '',
		permalink TEXT NOT NULL DEFAULT '',
		fingerprint TEXT NOT NULL DEFAULT ''
	);
	CREATE TABLE IF NOT EXISTS code_blocks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		src_id INTEGER NOT NULL REFERENCES sources(id) ON DELETE CASCADE,
		ord INTEGER NOT NULL,
		user_id TEXT,
		content TEXT NOT NULL,
		language TEXT NOT NULL DEFAULT '',
		platform TEXT NOT NULL DEFAULT '',
		last_evaluated INTEGER,
		permalink TEXT NOT NULL DEFAULT '',
		UNIQUE (src_id, ord)
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_code_user_id ON code_blocks(src_id, user_id) WHERE user_id IS NOT NULL;
	CREATE TABLE IF NOT EXISTS stream_results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		code_id INTEGER NOT NULL REFERENCES code_blocks(id) ON DELETE CASCADE,
		ord INTEGER NOT NULL,
		mimetype TEXT NOT NULL,
		data TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_stream_code ON stream_results(code_id);
	CREATE TABLE IF NOT EXISTS file_results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		code_id INTEGER NOT NULL REFERENCES code_blocks(id) ON DELETE CASCADE,
		ord INTEGER NOT NULL,
		mimetype TEXT NOT NULL,
		file_name TEXT NOT NULL,
		url TEXT NOT NULL DEFAULT '',
		artifact_key TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_file_code ON file_results(code_id);
	CREATE TABLE IF NOT EXISTS error_results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		code_id INTEGER NOT NULL REFERENCES code_blocks(id) ON DELETE CASCADE,
		ord INTEGER NOT NULL,
		ename TEXT NOT NULL,
		evalue TEXT NOT NULL,
		traceback TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_error_code ON error_results(code_id);
	CREATE TABLE IF NOT EXISTS src_references (
		src_id1 INTEGER NOT NULL REFERENCES sources(id) ON DELETE CASCADE,
		src_id2 INTEGER NOT NULL REFERENCES sources(id) ON DELETE CASCADE,
		PRIMARY KEY (src_id1, src_id2)
	);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Artifacts returns the artifact store, or nil when none is configured.
func (s *Store) Artifacts() artifact.Store {
	return s.artifacts
}

// withTx runs fn in a transaction. fn must use tx exclusively: the pool holds
// a single connection.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// dropArtifacts removes the stored files of the given blocks. The database is
// authoritative, so failures are logged only.
func (s *Store) dropArtifacts(ctx context.Context, codeIDs []int64) {
	if s.artifacts == nil {
		return
	}
	for _, id := range codeIDs {
		if _, err := s.artifacts.DeletePrefix(ctx, artifact.BlockPrefix(id)); err != nil {
			slog.Warn("Failed to delete block artifacts", logfields.CodeID(id), logfields.Error(err))
		}
	}
}

func storeErr(op string, err error) error {
	return errors.StoreError(op).WithCause(err).Build()
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
