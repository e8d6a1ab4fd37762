// Package store implements the durable local store: sessions, interval
// records, settings, consent history, and the sync queue. It owns no
// network or retry logic; the sync engine drives it.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	// Pure-Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"
)

// ErrStorage is the sentinel for local persistence failures. Every error
// returned by this package matches errors.Is(err, ErrStorage); retrying a
// sync cycle cannot help until storage is healthy again.
var ErrStorage = errors.New("store: storage unavailable")

// wrapErr joins the storage sentinel with the underlying driver error so
// both errors.Is(err, ErrStorage) and driver-level checks keep working.
func wrapErr(op string, err error) error {
	return fmt.Errorf("store: %s: %w", op, errors.Join(ErrStorage, err))
}

// Store is the SQLite-backed local store. It is the single durable
// contract between producers (detector, session manager, consent UI) and
// the sync engine.
type Store struct {
	db     *sql.DB
	logger *slog.Logger

	// Prepared statements for repeated queries, grouped by domain.
	recordStmts  recordStatements
	sessionStmts sessionStatements
	queueStmts   queueStatements
	settingStmts settingStatements
	consentStmts consentStatements
}

// Statement groups to avoid a flat list of 25+ fields.
type recordStatements struct {
	insert, listBySession, listUnsynced, markSynced, bumpAttempts, sumSession, countUnsynced *sql.Stmt
}

type sessionStatements struct {
	insert, get, getOpen, close, recomputeTotal, markSynced, upsert, listByUser *sql.Stmt
}

type queueStatements struct {
	insert, oldestEligible, batch, markSuccess, markRetry, markFailed, get, countByStatus, deadLetters *sql.Stmt
}

type settingStatements struct {
	get, set *sql.Stmt
}

type consentStatements struct {
	append, listByUser *sql.Stmt
}

// Open creates a Store backed by the database at dbPath, applying
// migrations and preparing all repeated statements. The database uses WAL
// mode with synchronous=FULL for crash-safe durability. Use ":memory:"
// for tests.
func Open(dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	// DSN parameters ensure pragmas apply to every connection from the pool.
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)"+
			"&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)"+
			"&_pragma=journal_size_limit(67108864)",
		dbPath,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, wrapErr("opening database "+dbPath, err)
	}

	// Sole-writer pattern: only one connection writes at a time.
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, errors.Join(ErrStorage, err)
	}

	s := &Store{db: db, logger: logger}

	if err := s.prepareAllStatements(ctx); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("local store ready", slog.String("db_path", dbPath))

	return s, nil
}

// DB exposes the underlying handle for components that share the
// connection (GDPR erasure runs multi-table transactions directly).
func (s *Store) DB() *sql.DB {
	return s.db
}

// stmtDef maps a SQL string to the prepared statement pointer it should
// populate. Used by the generic prepare helper to eliminate repetitive
// error handling.
type stmtDef struct {
	dest **sql.Stmt
	sql  string
	name string
}

// prepareAll prepares a batch of statements, returning on first error.
func prepareAll(ctx context.Context, db *sql.DB, defs []stmtDef) error {
	for i := range defs {
		stmt, err := db.PrepareContext(ctx, defs[i].sql)
		if err != nil {
			return wrapErr("preparing "+defs[i].name, err)
		}

		*defs[i].dest = stmt
	}

	return nil
}

// prepareAllStatements creates all prepared statements grouped by domain.
func (s *Store) prepareAllStatements(ctx context.Context) error {
	if err := s.prepareRecordStmts(ctx); err != nil {
		return err
	}

	if err := s.prepareSessionStmts(ctx); err != nil {
		return err
	}

	if err := s.prepareQueueStmts(ctx); err != nil {
		return err
	}

	if err := s.prepareSettingStmts(ctx); err != nil {
		return err
	}

	return s.prepareConsentStmts(ctx)
}

// Close closes all prepared statements and the database connection.
func (s *Store) Close() error {
	s.logger.Info("closing local store")

	if err := s.closeStatements(); err != nil {
		s.logger.Error("error closing statements", "error", err)
	}

	if err := s.db.Close(); err != nil {
		return wrapErr("closing database", err)
	}

	return nil
}

// closeStatements closes all prepared statements, collecting errors.
func (s *Store) closeStatements() error {
	stmts := []*sql.Stmt{
		s.recordStmts.insert, s.recordStmts.listBySession, s.recordStmts.listUnsynced,
		s.recordStmts.markSynced, s.recordStmts.bumpAttempts, s.recordStmts.sumSession,
		s.recordStmts.countUnsynced,
		s.sessionStmts.insert, s.sessionStmts.get, s.sessionStmts.getOpen,
		s.sessionStmts.close, s.sessionStmts.recomputeTotal, s.sessionStmts.markSynced,
		s.sessionStmts.upsert, s.sessionStmts.listByUser,
		s.queueStmts.insert, s.queueStmts.oldestEligible, s.queueStmts.batch,
		s.queueStmts.markSuccess, s.queueStmts.markRetry, s.queueStmts.markFailed,
		s.queueStmts.get, s.queueStmts.countByStatus, s.queueStmts.deadLetters,
		s.settingStmts.get, s.settingStmts.set,
		s.consentStmts.append, s.consentStmts.listByUser,
	}

	var errs []string

	for _, stmt := range stmts {
		if stmt != nil {
			if err := stmt.Close(); err != nil {
				errs = append(errs, err.Error())
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close statements: %s", strings.Join(errs, "; "))
	}

	return nil
}
