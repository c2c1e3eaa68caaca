package ledger

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 1 - accounts and events tables
const currentSchemaVersion = 1

// Ledger is the account host. Safe for concurrent use; transactions are
// serialized on a single SQLite connection.
type Ledger struct {
	db    *sql.DB
	rent  Rent
	ids   IDGenerator
	clock *Clock
	log   *slog.Logger
}

// Option configures a Ledger at Open.
type Option func(*Ledger)

// WithRent overrides DefaultRent.
func WithRent(r Rent) Option {
	return func(l *Ledger) { l.rent = r }
}

// WithIDGenerator overrides the UUIDv7 transaction id generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(l *Ledger) { l.ids = g }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(l *Ledger) { l.log = log }
}

// Open creates or opens a SQLite ledger at the given path.
// Applies required pragmas and the schema automatically.
//
// This function is idempotent - safe to call multiple times.
func Open(path string, opts ...Option) (*Ledger, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	var lastSeq int64
	if err := db.QueryRow("SELECT COALESCE(MAX(seq), 0) FROM events").Scan(&lastSeq); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to read last seq: %w", err)
	}

	l := &Ledger{
		db:    db,
		rent:  DefaultRent,
		ids:   UUIDv7Generator{},
		clock: NewClockAt(lastSeq),
		log:   slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Close closes the database connection.
func (l *Ledger) Close() error {
	if l.db == nil {
		return nil
	}
	return l.db.Close()
}

// Rent returns the ledger's rent parameters.
func (l *Ledger) Rent() Rent {
	return l.rent
}

// Atomic runs fn inside one SQL transaction. instruction names the operation
// and is recorded on every event fn emits. If fn returns an error, nothing fn
// did is persisted and the error is returned unchanged.
func (l *Ledger) Atomic(ctx context.Context, instruction string, fn func(*Tx) error) error {
	sqlTx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: begin tx: %w", instruction, err)
	}
	defer sqlTx.Rollback() // No-op if committed

	tx := &Tx{
		ctx:         ctx,
		tx:          sqlTx,
		ledger:      l,
		id:          l.ids.Generate(),
		instruction: instruction,
	}

	if err := fn(tx); err != nil {
		l.log.Debug("transaction rolled back",
			"tx", tx.id, "instruction", instruction, "error", err)
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", instruction, err)
	}
	l.log.Debug("transaction committed",
		"tx", tx.id, "instruction", instruction, "events", tx.events)
	return nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// applySchema creates tables if they don't exist and stamps the schema
// version. This function is idempotent.
func applySchema(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("ledger schema version %d is newer than supported version %d", version, currentSchemaVersion)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (l *Ledger) verifyPragma(name, expected string) error {
	var value string
	if err := l.db.QueryRow(fmt.Sprintf("PRAGMA %s", name)).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
