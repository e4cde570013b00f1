// Package memstore provides an in-memory record store for tieredsession.
//
// Memstore keeps the hot and cold collections as two maps keyed by the
// hashed session id. Each record carries the time it was last written or
// touched, which DeleteOlderThan uses to purge expired sessions.
//
// This package is suitable for single-process applications or testing
// scenarios. It is not persistent and does not share state across
// processes.
package memstore

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bluescreen10/tieredsession"
)

// ErrInvalidCollection is returned for a collection other than Hot or Cold.
var ErrInvalidCollection = errors.New("memstore: invalid collection")

// Ensure Memstore implements tieredsession.RecordStore.
var _ tieredsession.RecordStore = &Memstore{}

// Memstore is an in-memory storage for session records.
// It is safe for concurrent use by multiple goroutines.
type Memstore struct {
	mu          sync.RWMutex
	collections [2]map[string]record
	now         func() time.Time
}

// record represents a single stored session, containing the data
// and the time it was last touched.
type record struct {
	touchedAt time.Time
	data      []byte
}

type option func(*Memstore)

// WithClock sets the time source used to stamp records. (default time.Now)
func WithClock(now func() time.Time) option {
	return option(func(m *Memstore) {
		m.now = now
	})
}

// New creates and returns a new Memstore instance.
func New(opts ...option) *Memstore {
	m := &Memstore{
		collections: [2]map[string]record{
			tieredsession.Hot:  make(map[string]record),
			tieredsession.Cold: make(map[string]record),
		},
		now: time.Now,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Exists reports whether id is stored in collection c.
func (m *Memstore) Exists(_ context.Context, c tieredsession.Collection, id string) (bool, error) {
	if !c.Valid() {
		return false, ErrInvalidCollection
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.collections[c][id]
	return ok, nil
}

// Get retrieves the record stored under id. Returns the record, a boolean
// indicating whether it was found, and an error.
func (m *Memstore) Get(_ context.Context, c tieredsession.Collection, id string) (tieredsession.Record, bool, error) {
	if !c.Valid() {
		return tieredsession.Record{}, false, ErrInvalidCollection
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.collections[c][id]
	if !ok {
		return tieredsession.Record{}, false, nil
	}

	data := make([]byte, len(rec.data))
	copy(data, rec.data)
	return tieredsession.Record{Payload: data, LastTouched: rec.touchedAt}, true, nil
}

// Put stores payload under id. If a record with the same id already exists,
// it is overwritten.
func (m *Memstore) Put(_ context.Context, c tieredsession.Collection, id string, payload []byte) error {
	if !c.Valid() {
		return ErrInvalidCollection
	}

	data := make([]byte, len(payload))
	copy(data, payload)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.collections[c][id] = record{touchedAt: m.now(), data: data}
	return nil
}

// Delete removes id from collection c. If the id does not exist, this is a
// no-op.
func (m *Memstore) Delete(_ context.Context, c tieredsession.Collection, id string) error {
	if !c.Valid() {
		return ErrInvalidCollection
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.collections[c], id)
	return nil
}

// DeleteOlderThan removes every record in c touched before cutoff.
func (m *Memstore) DeleteOlderThan(_ context.Context, c tieredsession.Collection, cutoff time.Time) (int64, error) {
	if !c.Valid() {
		return 0, ErrInvalidCollection
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for id, rec := range m.collections[c] {
		if rec.touchedAt.Before(cutoff) {
			delete(m.collections[c], id)
			n++
		}
	}
	return n, nil
}

// Touch refreshes the last-touched time of id.
func (m *Memstore) Touch(_ context.Context, c tieredsession.Collection, id string) error {
	if !c.Valid() {
		return ErrInvalidCollection
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if rec, ok := m.collections[c][id]; ok {
		rec.touchedAt = m.now()
		m.collections[c][id] = rec
	}
	return nil
}

// Count returns the number of records stored in collection c, or 0 for an
// invalid collection.
func (m *Memstore) Count(c tieredsession.Collection) int {
	if !c.Valid() {
		return 0
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.collections[c])
}

// SetTouched overrides the last-touched time of id. It is intended for
// tests that need records of a specific age.
func (m *Memstore) SetTouched(c tieredsession.Collection, id string, at time.Time) {
	if !c.Valid() {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if rec, ok := m.collections[c][id]; ok {
		rec.touchedAt = at
		m.collections[c][id] = rec
	}
}
