package tieredsession

import (
	"context"
	"errors"
	"time"
)

// SweepResult holds the number of sessions purged from each collection.
type SweepResult struct {
	Hot  int64
	Cold int64
}

// Total returns the number of sessions purged from both collections.
func (r SweepResult) Total() int64 {
	return r.Hot + r.Cold
}

// Sweep deletes every session last touched more than ttl before now. Each
// collection is swept independently; if one fails the other is still swept
// and the errors are joined.
func (s *Store) Sweep(ctx context.Context, now time.Time) (SweepResult, error) {
	cutoff := now.Add(-s.ttl)

	var res SweepResult
	var errs []error
	for _, c := range Collections {
		n, err := s.records.DeleteOlderThan(ctx, c, cutoff)
		if err != nil {
			errs = append(errs, storageErr("sweep "+c.String(), err))
			continue
		}
		if c == Hot {
			res.Hot = n
		} else {
			res.Cold = n
		}
	}

	return res, errors.Join(errs...)
}

// PeriodicSweep runs Sweep every interval until ctx is done.
//
// Example usage:
//
//	ctx, cancel := context.WithCancel(context.Background())
//	go store.PeriodicSweep(ctx, time.Minute)
//	...
//	cancel() // stop sweeping
func (s *Store) PeriodicSweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			res, err := s.Sweep(ctx, s.now())
			if err != nil {
				s.logger.Error("sweep failed", "error", err, "hot", res.Hot, "cold", res.Cold)
				continue
			}
			s.logger.Info("sweep finished", "hot", res.Hot, "cold", res.Cold)
		case <-ctx.Done():
			return
		}
	}
}
