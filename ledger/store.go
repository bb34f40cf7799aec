/*
store.go - Document store contract

PURPOSE:
  Defines the interface between the engine and the database. The engine only
  ever mutates Card, Person and Transaction documents inside RunAtomic, so
  every multi-document update either fully commits or fully aborts.

ATOMIC SECTION CONTRACT:
  - All reads precede the first write within one attempt. Implementations
    reject a read issued after a write with ErrReadAfterWrite.
  - On a detected write-write conflict an attempt fails with ErrConflict and
    the whole function is retried from scratch, a bounded number of times.
  - Retry exhaustion surfaces as ErrTransientFailure to the caller. No
    partial application is ever observable.

DOCUMENTS:
  Documents are JSON-encoded Go structs keyed by collection + id. Get
  unmarshals into the caller's value; Set/Update marshal the given value.

IMPLEMENTATIONS:
  - ledger/store/memory.go: In-memory, for tests and dev
  - store/sqlite/sqlite.go: Durable single-file store

SEE ALSO:
  - engine.go: The only caller of RunAtomic
*/
package ledger

import (
	"context"
	"time"
)

// =============================================================================
// STORE - Document database boundary
// =============================================================================

// RawDoc is an encoded document returned by collection scans.
type RawDoc struct {
	ID   string
	Data []byte
}

// Reader is the read surface shared by the store and its transactions.
type Reader interface {
	// Get unmarshals the document collection/id into out.
	// Returns a *NotFoundError when the document does not exist.
	Get(ctx context.Context, collection, id string, out any) error

	// List returns every document in a collection. Collections here are
	// per-user and small; filtering happens in the engine.
	List(ctx context.Context, collection string) ([]RawDoc, error)
}

// Tx is one attempt of an atomic section. Reads must all happen before the
// first write.
type Tx interface {
	Reader

	// Set creates or fully replaces a document.
	Set(collection, id string, doc any) error

	// Update fully replaces an existing document.
	// Returns a *NotFoundError when the document does not exist.
	Update(collection, id string, doc any) error

	// Delete removes a document. Deleting a missing document is a no-op.
	Delete(collection, id string) error
}

// Store is the engine's only I/O dependency besides the clock.
type Store interface {
	Reader

	// RunAtomic executes fn as one atomic transaction. fn may be invoked
	// multiple times on conflict; it must be pure apart from its Tx usage.
	// Exhausted retries surface as ErrTransientFailure.
	RunAtomic(ctx context.Context, fn func(tx Tx) error) error
}

// =============================================================================
// CLOCK
// =============================================================================

// Clock supplies "now" so tests can pin the active invoice period.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// FixedClock always returns the same instant.
type FixedClock struct {
	T time.Time
}

func (c FixedClock) Now() time.Time { return c.T }
