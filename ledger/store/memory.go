// Package store provides ledger.Store implementations.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/Caiozmartins/me-pague-App/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// maxAttempts bounds the conflict-retry loop of RunAtomic.
const maxAttempts = 5

// Memory is an in-memory document store. One mutex serializes atomic
// sections, so attempts are trivially serializable; the bounded retry loop
// exists so callers exercise the same contract as durable stores.
type Memory struct {
	mu          sync.RWMutex
	collections map[string]map[string]json.RawMessage

	// failAttempts injects conflicts for tests: the next n attempts of any
	// RunAtomic fail with ErrConflict before fn runs.
	failAttempts int
}

func NewMemory() *Memory {
	return &Memory{collections: make(map[string]map[string]json.RawMessage)}
}

// FailNextAttempts makes the next n atomic attempts fail with a conflict.
func (m *Memory) FailNextAttempts(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAttempts = n
}

func (m *Memory) Get(_ context.Context, collection, id string, out any) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return getLocked(m.collections, collection, id, out)
}

func (m *Memory) List(_ context.Context, collection string) ([]ledger.RawDoc, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return listLocked(m.collections, collection), nil
}

// RunAtomic executes fn under the store mutex with snapshot/rollback
// semantics: if fn (or a conflict) fails the attempt, the pre-attempt state
// is restored in full. Exhausted retries surface as ErrTransientFailure.
func (m *Memory) RunAtomic(ctx context.Context, fn func(tx ledger.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		snapshot := m.snapshot()
		if m.failAttempts > 0 {
			m.failAttempts--
			lastErr = ledger.ErrConflict
			continue
		}
		view := &memoryTx{collections: m.collections}
		err := fn(view)
		if err == nil {
			return nil
		}
		m.collections = snapshot
		if !errors.Is(err, ledger.ErrConflict) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("%w: %d attempts: %v", ledger.ErrTransientFailure, maxAttempts, lastErr)
}

func (m *Memory) snapshot() map[string]map[string]json.RawMessage {
	out := make(map[string]map[string]json.RawMessage, len(m.collections))
	for name, docs := range m.collections {
		cp := make(map[string]json.RawMessage, len(docs))
		for id, data := range docs {
			cp[id] = data
		}
		out[name] = cp
	}
	return out
}

// =============================================================================
// TRANSACTION VIEW
// =============================================================================

// memoryTx is one attempt. Writes go straight to the parent maps; rollback
// is the caller restoring its snapshot. Reads after the first write violate
// the atomic section contract and fail the attempt.
type memoryTx struct {
	collections map[string]map[string]json.RawMessage
	wrote       bool
}

func (t *memoryTx) Get(_ context.Context, collection, id string, out any) error {
	if t.wrote {
		return ledger.ErrReadAfterWrite
	}
	return getLocked(t.collections, collection, id, out)
}

func (t *memoryTx) List(_ context.Context, collection string) ([]ledger.RawDoc, error) {
	if t.wrote {
		return nil, ledger.ErrReadAfterWrite
	}
	return listLocked(t.collections, collection), nil
}

func (t *memoryTx) Set(collection, id string, doc any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}
	t.wrote = true
	docs, ok := t.collections[collection]
	if !ok {
		docs = make(map[string]json.RawMessage)
		t.collections[collection] = docs
	}
	docs[id] = data
	return nil
}

func (t *memoryTx) Update(collection, id string, doc any) error {
	if _, ok := t.collections[collection][id]; !ok {
		return &ledger.NotFoundError{Collection: collection, ID: id}
	}
	return t.Set(collection, id, doc)
}

func (t *memoryTx) Delete(collection, id string) error {
	t.wrote = true
	delete(t.collections[collection], id)
	return nil
}

// =============================================================================
// SHARED HELPERS
// =============================================================================

func getLocked(collections map[string]map[string]json.RawMessage, collection, id string, out any) error {
	data, ok := collections[collection][id]
	if !ok {
		return &ledger.NotFoundError{Collection: collection, ID: id}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s/%s: %w", collection, id, err)
	}
	return nil
}

func listLocked(collections map[string]map[string]json.RawMessage, collection string) []ledger.RawDoc {
	docs := collections[collection]
	out := make([]ledger.RawDoc, 0, len(docs))
	for id, data := range docs {
		out = append(out, ledger.RawDoc{ID: id, Data: append([]byte(nil), data...)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
