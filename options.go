package tieredsession

import (
	"log/slog"
	"time"
)

const (
	// DefaultSizeThreshold is the largest payload, in bytes, kept in the hot
	// collection.
	DefaultSizeThreshold = 8192

	// DefaultTTL is the age after which an untouched session is swept.
	DefaultTTL = 900 * time.Second
)

type option func(*Store)

// WithSizeThreshold sets the byte length separating hot from cold payloads.
// (default 8192)
func WithSizeThreshold(n int) option {
	return option(func(s *Store) {
		s.sizeThreshold = n
	})
}

// WithTTL sets how long a session may go untouched before Sweep purges it.
// (default 15m)
func WithTTL(ttl time.Duration) option {
	return option(func(s *Store) {
		s.ttl = ttl
	})
}

// WithNonVolatile pins every record to the cold collection and disables
// migration. (default false)
func WithNonVolatile(nonVolatile bool) option {
	return option(func(s *Store) {
		s.nonVolatile = nonVolatile
	})
}

// WithHash selects the algorithm used to turn session ids into record keys.
// See Hashes for accepted names. (default "sha256")
func WithHash(name string) option {
	return option(func(s *Store) {
		s.hashName = name
	})
}

// WithCodec sets the transform applied to payloads before they are stored
// and after they are read. (default identity)
func WithCodec(codec Codec) option {
	return option(func(s *Store) {
		s.codec = codec
	})
}

// WithLogger sets the structured logger. (default discard)
func WithLogger(logger *slog.Logger) option {
	return option(func(s *Store) {
		s.logger = logger
	})
}

// WithLocking serializes reads, writes and destroys of the same id with a
// striped mutex so concurrent writers cannot split a record across
// collections and readers never observe a record mid relocation.
// (default off)
func WithLocking() option {
	return WithLocker(NewStripedLocker())
}

// WithLocker installs a custom per-id Locker, for example one backed by a
// distributed lock.
func WithLocker(l Locker) option {
	return option(func(s *Store) {
		s.locker = l
	})
}

// WithReadRefresh controls whether Read refreshes the record's last-touched
// time. (default true)
func WithReadRefresh(refresh bool) option {
	return option(func(s *Store) {
		s.readRefresh = refresh
	})
}

// WithClock sets the time source used by PeriodicSweep. (default time.Now)
func WithClock(now func() time.Time) option {
	return option(func(s *Store) {
		s.now = now
	})
}

// Config is the file representation of the store settings.
type Config struct {
	SizeThreshold int    `yaml:"size_threshold"`
	TTLSeconds    int    `yaml:"ttl_seconds"`
	NonVolatile   bool   `yaml:"non_volatile"`
	Hash          string `yaml:"hash"`
	Locking       bool   `yaml:"locking"`
	ReadRefresh   *bool  `yaml:"read_refresh"`
}

// Options converts c into store options. Zero fields keep their defaults.
func (c Config) Options() []option {
	var opts []option
	if c.SizeThreshold != 0 {
		opts = append(opts, WithSizeThreshold(c.SizeThreshold))
	}
	if c.TTLSeconds != 0 {
		opts = append(opts, WithTTL(time.Duration(c.TTLSeconds)*time.Second))
	}
	if c.NonVolatile {
		opts = append(opts, WithNonVolatile(true))
	}
	if c.Hash != "" {
		opts = append(opts, WithHash(c.Hash))
	}
	if c.Locking {
		opts = append(opts, WithLocking())
	}
	if c.ReadRefresh != nil {
		opts = append(opts, WithReadRefresh(*c.ReadRefresh))
	}
	return opts
}
