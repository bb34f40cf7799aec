/*
Package sqlite provides a SQLite-backed implementation of ledger.Store.

PURPOSE:
  A durable single-file document store. Documents are JSON bodies keyed by
  collection + id in one table; the engine never sees SQL.

ATOMIC SECTIONS:
  RunAtomic maps to a BEGIN IMMEDIATE transaction. SQLITE_BUSY on commit or
  write is treated as a write-write conflict: the whole attempt is retried a
  bounded number of times and exhaustion surfaces as ErrTransientFailure.
  A read issued after the attempt's first write fails with ErrReadAfterWrite,
  matching the store contract.

WAL MODE:
  The database is opened with WAL (Write-Ahead Logging):
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

CONCURRENCY:
  A sync.Mutex serializes atomic sections within the process; SQLite's own
  locking covers other processes sharing the file.

USAGE:
  st, err := sqlite.New("./data/mepague.db")
  if err != nil {
      log.Fatal(err)
  }
  defer st.Close()

  eng := ledger.NewEngine(st, ledger.SystemClock{}, userID)

SEE ALSO:
  - ledger/store.go: Interface definitions and the atomic section contract
  - ledger/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/Caiozmartins/me-pague-App/ledger"
)

const maxAttempts = 5

// Store implements ledger.Store on a single SQLite file.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// New opens (or creates) the database at dbPath and migrates the schema.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps ":memory:" databases coherent and pairs with the
	// store mutex serializing atomic sections.
	db.SetMaxOpenConns(1)
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		collection TEXT NOT NULL,
		id         TEXT NOT NULL,
		data       TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (collection, id)
	);

	CREATE INDEX IF NOT EXISTS idx_documents_collection
		ON documents(collection);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// READS
// =============================================================================

func (s *Store) Get(ctx context.Context, collection, id string, out any) error {
	row := s.db.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE collection = ? AND id = ?`, collection, id)
	return scanDoc(row, collection, id, out)
}

func (s *Store) List(ctx context.Context, collection string) ([]ledger.RawDoc, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, data FROM documents WHERE collection = ? ORDER BY id`, collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDocs(rows)
}

// =============================================================================
// ATOMIC SECTIONS
// =============================================================================

// RunAtomic executes fn in a BEGIN IMMEDIATE transaction, retrying the whole
// attempt on lock conflicts.
func (s *Store) RunAtomic(ctx context.Context, fn func(tx ledger.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := s.attempt(ctx, fn)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ledger.ErrConflict) {
			return err
		}
		lastErr = err
		time.Sleep(time.Duration(attempt+1) * 10 * time.Millisecond)
	}
	return fmt.Errorf("%w: %d attempts: %v", ledger.ErrTransientFailure, maxAttempts, lastErr)
}

func (s *Store) attempt(ctx context.Context, fn func(tx ledger.Tx) error) error {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return asConflict(err)
	}
	view := &sqliteTx{ctx: ctx, tx: dbTx}
	if err := fn(view); err != nil {
		dbTx.Rollback()
		return asConflict(err)
	}
	if err := dbTx.Commit(); err != nil {
		return asConflict(err)
	}
	return nil
}

// asConflict converts SQLite lock contention into the store-level conflict
// signal so RunAtomic retries it.
func asConflict(err error) error {
	var sqErr sqlite3.Error
	if errors.As(err, &sqErr) {
		if sqErr.Code == sqlite3.ErrBusy || sqErr.Code == sqlite3.ErrLocked {
			return fmt.Errorf("%w: %v", ledger.ErrConflict, err)
		}
	}
	if err != nil && strings.Contains(err.Error(), "database is locked") {
		return fmt.Errorf("%w: %v", ledger.ErrConflict, err)
	}
	return err
}

// =============================================================================
// TRANSACTION VIEW
// =============================================================================

type sqliteTx struct {
	ctx   context.Context
	tx    *sql.Tx
	wrote bool
}

func (t *sqliteTx) Get(ctx context.Context, collection, id string, out any) error {
	if t.wrote {
		return ledger.ErrReadAfterWrite
	}
	row := t.tx.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE collection = ? AND id = ?`, collection, id)
	return scanDoc(row, collection, id, out)
}

func (t *sqliteTx) List(ctx context.Context, collection string) ([]ledger.RawDoc, error) {
	if t.wrote {
		return nil, ledger.ErrReadAfterWrite
	}
	rows, err := t.tx.QueryContext(ctx,
		`SELECT id, data FROM documents WHERE collection = ? ORDER BY id`, collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDocs(rows)
}

func (t *sqliteTx) Set(collection, id string, doc any) error {
	data, err := encodeDoc(collection, id, doc)
	if err != nil {
		return err
	}
	t.wrote = true
	_, err = t.tx.ExecContext(t.ctx, `
		INSERT INTO documents (collection, id, data, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (collection, id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		collection, id, data, time.Now().UTC().Format(time.RFC3339Nano))
	return err
}

func (t *sqliteTx) Update(collection, id string, doc any) error {
	data, err := encodeDoc(collection, id, doc)
	if err != nil {
		return err
	}
	t.wrote = true
	res, err := t.tx.ExecContext(t.ctx, `
		UPDATE documents SET data = ?, updated_at = ? WHERE collection = ? AND id = ?`,
		data, time.Now().UTC().Format(time.RFC3339Nano), collection, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &ledger.NotFoundError{Collection: collection, ID: id}
	}
	return nil
}

func (t *sqliteTx) Delete(collection, id string) error {
	t.wrote = true
	_, err := t.tx.ExecContext(t.ctx,
		`DELETE FROM documents WHERE collection = ? AND id = ?`, collection, id)
	return err
}

// =============================================================================
// HELPERS
// =============================================================================

func encodeDoc(collection, id string, doc any) (string, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}
	return string(data), nil
}

func scanDoc(row *sql.Row, collection, id string, out any) error {
	var data string
	if err := row.Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &ledger.NotFoundError{Collection: collection, ID: id}
		}
		return err
	}
	if err := json.Unmarshal([]byte(data), out); err != nil {
		return fmt.Errorf("decode %s/%s: %w", collection, id, err)
	}
	return nil
}

func collectDocs(rows *sql.Rows) ([]ledger.RawDoc, error) {
	var out []ledger.RawDoc
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, err
		}
		out = append(out, ledger.RawDoc{ID: id, Data: []byte(data)})
	}
	return out, rows.Err()
}
