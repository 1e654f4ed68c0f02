// Package storage keeps submission audit entries in process memory. It is the
// default AuditLog when no database is configured; entries live only as long
// as the process, so a restart forgets every submission it has seen.
package storage

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/GBSLIT/FairForm/internal/model"
)

var (
	// ErrNotFound is exported so callers can compare errors using errors.Is.
	ErrNotFound = errors.New("submission not found")
)

// MemoryStore holds audit entries behind an RWMutex: lookups from the API
// share the read lock, submissions take the write lock.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*model.AuditEntry
}

// NewMemoryStore constructs a MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*model.AuditEntry),
	}
}

// Save inserts or replaces an entry.
func (m *MemoryStore) Save(_ context.Context, entry *model.AuditEntry) error {
	m.mu.Lock()
	// The deferred unlock runs on every return path, including the early
	// ones added later.
	defer m.mu.Unlock()
	// Timestamps are kept in UTC so the API and the Postgres store agree.
	now := time.Now().UTC()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.UpdatedAt = now
	// Store a copy. The pipeline keeps appending warnings to its own entry
	// after Save, and those must reach the store through MarkFormula only.
	// Copying the struct still shares the slice backing array, hence the
	// explicit append.
	cp := *entry
	cp.Warnings = append([]string(nil), entry.Warnings...)
	m.entries[entry.ID] = &cp
	return nil
}

// MarkFormula stores the outcome of a formula patch. A non-empty
// warning is appended to the entry's warnings.
func (m *MemoryStore) MarkFormula(_ context.Context, id, address, warning string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	// A map lookup yields (value, ok); ok is false for unknown ids, which
	// happens when a queued job outlives a restart of this process.
	entry, ok := m.entries[id]
	if !ok {
		return ErrNotFound
	}
	// An empty address leaves the previous value, usually "queued", so a
	// failed deferred patch still shows that one was attempted.
	if address != "" {
		entry.Formula = address
	}
	if warning != "" {
		entry.Warnings = append(entry.Warnings, warning)
	}
	entry.UpdatedAt = time.Now().UTC()
	return nil
}

// Get returns a copy of the entry.
func (m *MemoryStore) Get(_ context.Context, id string) (*model.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	// copying keeps callers from mutating the stored entry
	cp := *entry
	cp.Warnings = append([]string(nil), entry.Warnings...)
	return &cp, nil
}
