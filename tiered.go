// Package tieredsession provides a session store that keeps each session in
// one of two collections of a backing RecordStore: a hot collection for small
// payloads and a cold collection for large ones. A write moves the record
// between collections when its size crosses the configured threshold, and
// Sweep purges sessions left untouched for longer than the ttl.
//
// Usage:
//
//	package main
//
//	import (
//	    "context"
//	    "time"
//
//	    "github.com/bluescreen10/tieredsession"
//	    "github.com/bluescreen10/tieredsession/memstore"
//	)
//
//	func main() {
//	    ctx := context.Background()
//	    store, err := tieredsession.New(memstore.New(),
//	        tieredsession.WithSizeThreshold(4096),
//	        tieredsession.WithTTL(30*time.Minute),
//	    )
//	    if err != nil {
//	        panic(err)
//	    }
//	    go store.PeriodicSweep(ctx, time.Minute)
//
//	    store.Write(ctx, "token", []byte("payload"))
//	    data, err := store.Read(ctx, "token")
//	    ...
//	}
package tieredsession

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Store places session records in the hot or cold collection of a
// RecordStore and moves them as their size changes. Its configuration is
// immutable after New, so a Store is safe for concurrent use; operations on
// the same id are only serialized when a Locker is configured.
type Store struct {
	records           RecordStore
	defaultCollection Collection
	sizeThreshold     int
	ttl               time.Duration
	nonVolatile       bool
	hashName          string
	hash              hasher
	codec             Codec
	locker            Locker
	logger            *slog.Logger
	readRefresh       bool
	now               func() time.Time
}

// New creates a Store on top of records. It returns an error wrapping
// ErrConfiguration when the options are invalid.
func New(records RecordStore, opts ...option) (*Store, error) {
	s := &Store{
		records:       records,
		sizeThreshold: DefaultSizeThreshold,
		ttl:           DefaultTTL,
		hashName:      DefaultHash,
		codec:         identityCodec{},
		locker:        noopLocker{},
		logger:        slog.New(slog.DiscardHandler),
		readRefresh:   true,
		now:           time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	if records == nil {
		return nil, configErr("nil record store")
	}
	if s.sizeThreshold <= 0 {
		return nil, configErr("size threshold must be positive, got %d", s.sizeThreshold)
	}
	if s.ttl <= 0 {
		return nil, configErr("ttl must be positive, got %s", s.ttl)
	}
	if s.codec == nil || s.locker == nil || s.logger == nil || s.now == nil {
		return nil, configErr("nil codec, locker, logger or clock")
	}

	if hc, ok := records.(HotCapacitor); ok && s.sizeThreshold > hc.HotCapacity() {
		return nil, configErr("size threshold %d exceeds hot capacity %d", s.sizeThreshold, hc.HotCapacity())
	}

	h, err := newHasher(s.hashName)
	if err != nil {
		return nil, err
	}
	s.hash = h

	s.defaultCollection = Hot
	if s.nonVolatile {
		s.defaultCollection = Cold
	}

	return s, nil
}

// SizeThreshold returns the configured threshold in bytes.
func (s *Store) SizeThreshold() int { return s.sizeThreshold }

// TTL returns the configured session ttl.
func (s *Store) TTL() time.Duration { return s.ttl }

// DefaultCollection returns the collection new sessions are created in.
func (s *Store) DefaultCollection() Collection { return s.defaultCollection }

// Read returns the payload stored for rawID and refreshes its last-touched
// time. It returns ErrSessionNotFound when no collection holds the session.
func (s *Store) Read(ctx context.Context, rawID string) ([]byte, error) {
	id := s.hash.sum(rawID)

	unlock := s.locker.Lock(id)
	defer unlock()

	c, found, err := s.locate(ctx, id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrSessionNotFound
	}

	rec, found, err := s.records.Get(ctx, c, id)
	if err != nil {
		return nil, storageErr("read", err)
	}
	if !found {
		// removed between locate and get
		return nil, ErrSessionNotFound
	}

	if s.readRefresh {
		if err := s.records.Touch(ctx, c, id); err != nil {
			return nil, storageErr("touch", err)
		}
	}

	return s.codec.Decode(rec.Payload)
}

// Write stores payload for rawID. A new session is created in the default
// collection, or directly in the cold one when it is already too large for
// hot. An existing session is updated in place or moved to the other
// collection when the new size crosses the threshold.
func (s *Store) Write(ctx context.Context, rawID string, payload []byte) error {
	id := s.hash.sum(rawID)

	data, err := s.codec.Encode(payload)
	if err != nil {
		return err
	}

	unlock := s.locker.Lock(id)
	defer unlock()

	current, found, err := s.locate(ctx, id)
	if err != nil {
		return err
	}

	if !found {
		to := s.target(current, len(data))
		if err := s.records.Put(ctx, to, id, data); err != nil {
			return storageErr("write", err)
		}
		return nil
	}

	to, err := s.maybeRelocate(ctx, id, current, len(data))
	if err != nil {
		return err
	}

	if err := s.records.Put(ctx, to, id, data); err != nil {
		if to != current {
			rerr := &RelocationError{ID: id, From: current, To: to, Err: storageErr("write", err)}
			s.logger.Error("session lost during relocation", "id", id, "from", current, "to", to, "error", err)
			return rerr
		}
		return storageErr("write", err)
	}
	return nil
}

// Destroy removes the session for rawID. Destroying a session that does not
// exist succeeds.
func (s *Store) Destroy(ctx context.Context, rawID string) error {
	id := s.hash.sum(rawID)

	unlock := s.locker.Lock(id)
	defer unlock()

	c, found, err := s.locate(ctx, id)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}

	if err := s.records.Delete(ctx, c, id); err != nil {
		return storageErr("destroy", err)
	}
	return nil
}

// Locate reports which collection currently holds the session for rawID.
func (s *Store) Locate(ctx context.Context, rawID string) (Collection, bool, error) {
	return s.locate(ctx, s.hash.sum(rawID))
}

// IsNotFound reports whether err means the session does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrSessionNotFound)
}
