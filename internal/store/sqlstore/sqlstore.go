// Package sqlstore implements store.Store on database/sql through sqlx.
// Queries are written with ? placeholders and rebound for the driver, so the
// same code serves Postgres (pgx) and SQLite (modernc).
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/onionlab/onion/internal/model"
	"github.com/onionlab/onion/internal/store"
)

// Supported drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type dialect struct {
	name      string
	forUpdate string // row-lock suffix for SELECT
	skipLock  string // lock suffix for lease subqueries
	tsType    string
}

var (
	postgresDialect = dialect{name: DriverPostgres, forUpdate: " FOR UPDATE", skipLock: " FOR UPDATE SKIP LOCKED", tsType: "TIMESTAMPTZ"}
	// SQLite serializes writers on the single connection, so no row locks.
	sqliteDialect = dialect{name: DriverSQLite, tsType: "TIMESTAMP"}
)

// Options selects and locates the backing database.
type Options struct {
	Driver      string
	PostgresDSN string
	SQLitePath  string // ":memory:" for a private in-memory database
}

// SQLStore is the shared implementation of store.Store.
type SQLStore struct {
	db *sqlx.DB
	d  dialect
}

var _ store.Store = (*SQLStore)(nil)

// Open connects, verifies connectivity and applies the schema.
func Open(ctx context.Context, opts Options) (*SQLStore, error) {
	var (
		db  *sqlx.DB
		err error
		d   dialect
	)
	switch opts.Driver {
	case DriverPostgres:
		if opts.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres DSN is empty")
		}
		db, err = sqlx.Open("pgx", opts.PostgresDSN)
		d = postgresDialect
	case DriverSQLite:
		var dsn string
		dsn, err = sqliteDSN(opts.SQLitePath)
		if err != nil {
			return nil, err
		}
		db, err = sqlx.Open("sqlite", dsn)
		d = sqliteDialect
	default:
		return nil, fmt.Errorf("unsupported driver %q", opts.Driver)
	}
	if err != nil {
		return nil, err
	}
	if d.name == DriverSQLite {
		// One connection: keeps :memory: alive and avoids SQLITE_BUSY between writers.
		db.SetMaxOpenConns(1)
		db.SetConnMaxLifetime(0)
		db.SetConnMaxIdleTime(0)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	s := &SQLStore{db: db, d: d}
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func sqliteDSN(path string) (string, error) {
	const pragmas = "_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)&_time_format=sqlite"
	if path == "" || path == ":memory:" {
		return "file::memory:?" + pragmas, nil
	}
	// ensure parent directory exists to avoid SQLITE_CANTOPEN errors
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	return fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&%s", path, pragmas), nil
}

// Driver returns the dialect name.
func (s *SQLStore) Driver() string { return s.d.name }

// Migrate creates tables and indexes if they do not exist.
func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range schema(s.d) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s: %w", firstLine(stmt), err)
		}
	}
	return nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func (s *SQLStore) Entries() store.Entries   { return &entries{q: s.db, d: s.d} }
func (s *SQLStore) Profiles() store.Profiles { return &profiles{q: s.db, d: s.d} }
func (s *SQLStore) Reports() store.Reports   { return &reports{q: s.db, d: s.d} }
func (s *SQLStore) Outbox() store.Outbox     { return &outbox{q: s.db, d: s.d} }
func (s *SQLStore) Musics() store.Musics     { return &musics{q: s.db} }

// InTx runs fn inside a transaction and commits when fn returns nil.
func (s *SQLStore) InTx(ctx context.Context, fn func(tx store.Repos) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(txRepos{q: tx, d: s.d}); err != nil {
		return err
	}
	return tx.Commit()
}

// HealthPing implements health.HealthPinger.
func (s *SQLStore) HealthPing(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the connection pool.
func (s *SQLStore) Close() error { return s.db.Close() }

type txRepos struct {
	q *sqlx.Tx
	d dialect
}

func (t txRepos) Entries() store.Entries   { return &entries{q: t.q, d: t.d} }
func (t txRepos) Profiles() store.Profiles { return &profiles{q: t.q, d: t.d} }
func (t txRepos) Reports() store.Reports   { return &reports{q: t.q, d: t.d} }
func (t txRepos) Outbox() store.Outbox     { return &outbox{q: t.q, d: t.d} }
func (t txRepos) Musics() store.Musics     { return &musics{q: t.q} }

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return model.ErrNotFound
	}
	return err
}
