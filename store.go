package tieredsession

import (
	"context"
	"time"
)

// Collection identifies one of the two storage tiers. It is a closed
// enumeration: backends map each value to a physical table or key namespace
// chosen at construction time, never to caller input.
type Collection int

const (
	// Hot holds small, frequently accessed payloads.
	Hot Collection = iota
	// Cold holds payloads larger than the size threshold.
	Cold
)

// Collections lists both tiers in probe order.
var Collections = [2]Collection{Hot, Cold}

// String returns "hot" or "cold".
func (c Collection) String() string {
	switch c {
	case Hot:
		return "hot"
	case Cold:
		return "cold"
	default:
		return "unknown"
	}
}

// Other returns the opposite tier.
func (c Collection) Other() Collection {
	if c == Hot {
		return Cold
	}
	return Hot
}

// Valid reports whether c is Hot or Cold.
func (c Collection) Valid() bool {
	return c == Hot || c == Cold
}

// Record is a stored session payload and the time it was last read or written.
type Record struct {
	Payload     []byte
	LastTouched time.Time
}

// RecordStore defines the persistence boundary for the tiered store. A
// RecordStore keeps two independent collections, each keyed by the hashed
// session id. Implementations return raw driver errors; the Store classifies
// them.
type RecordStore interface {
	// Exists reports whether id is present in collection c.
	Exists(ctx context.Context, c Collection, id string) (bool, error)

	// Get retrieves the record stored under id. It returns the record, a
	// boolean indicating whether it was found, and an error if the lookup
	// failed.
	Get(ctx context.Context, c Collection, id string) (rec Record, found bool, err error)

	// Put inserts or replaces the payload stored under id and sets its
	// last-touched time to the backend's current time.
	Put(ctx context.Context, c Collection, id string, payload []byte) error

	// Delete removes id from collection c. It should not return an error if
	// the record does not exist.
	Delete(ctx context.Context, c Collection, id string) error

	// DeleteOlderThan removes every record in c whose last-touched time is
	// before cutoff and returns the number of records removed.
	DeleteOlderThan(ctx context.Context, c Collection, cutoff time.Time) (int64, error)

	// Touch refreshes the last-touched time of id without changing its
	// payload. Touching a missing record is a no-op.
	Touch(ctx context.Context, c Collection, id string) error
}

// Prober is implemented by record stores that can check both collections for
// an id in a single round trip.
type Prober interface {
	Probe(ctx context.Context, id string) (inHot, inCold bool, err error)
}

// HotCapacitor is implemented by record stores whose hot collection cannot
// hold payloads above a fixed size. New rejects a size threshold larger than
// the reported capacity.
type HotCapacitor interface {
	HotCapacity() int
}
