package tieredsession

import (
	"hash/maphash"
	"sync"
)

// Locker serializes operations on the same record id. Lock blocks until the
// id is held and returns the function that releases it.
type Locker interface {
	Lock(id string) (unlock func())
}

// noopLocker performs no mutual exclusion. Concurrent writers to the same id
// may race between locate, relocate and write, leaving the record in both
// collections or losing it mid relocation. Last write wins otherwise.
type noopLocker struct{}

func (noopLocker) Lock(string) func() { return func() {} }

const lockStripes = 256

// stripedLocker maps ids onto a fixed set of mutexes. Distinct ids may share
// a stripe; that only costs throughput.
type stripedLocker struct {
	seed    maphash.Seed
	stripes [lockStripes]sync.Mutex
}

// NewStripedLocker returns a Locker backed by a fixed pool of mutexes.
func NewStripedLocker() Locker {
	return &stripedLocker{seed: maphash.MakeSeed()}
}

func (l *stripedLocker) Lock(id string) func() {
	mu := &l.stripes[maphash.String(l.seed, id)%lockStripes]
	mu.Lock()
	return mu.Unlock
}
