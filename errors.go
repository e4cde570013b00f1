package tieredsession

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrStorageUnavailable is returned when the record store cannot be
	// reached or a query fails. The backend error is wrapped alongside it.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrSessionNotFound is returned by Read when the id is present in
	// neither collection. Callers usually treat it as an empty session.
	ErrSessionNotFound = errors.New("session not found")

	// ErrConfiguration is returned by constructors when the threshold, ttl,
	// hash or collection naming is invalid.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrRelocationFailure is returned when a migrating write removed the
	// record from its old collection but could not insert it into the new
	// one. The record is lost.
	ErrRelocationFailure = errors.New("relocation failure")

	// ErrCancelled is returned when the caller's context was cancelled or
	// timed out during a storage call. Partial writes must not be assumed
	// committed.
	ErrCancelled = errors.New("operation cancelled")
)

// RelocationError describes a write whose delete-then-insert sequence
// failed after the delete. It matches ErrRelocationFailure and the
// underlying storage error with errors.Is.
type RelocationError struct {
	ID   string
	From Collection
	To   Collection
	Err  error
}

func (e *RelocationError) Error() string {
	return fmt.Sprintf("%v: %s moved %s -> %s: %v", ErrRelocationFailure, e.ID, e.From, e.To, e.Err)
}

func (e *RelocationError) Is(target error) bool {
	return target == ErrRelocationFailure
}

func (e *RelocationError) Unwrap() error {
	return e.Err
}

// storageErr classifies a backend error for operation op.
func storageErr(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("tieredsession: %s: %w: %w", op, ErrCancelled, err)
	}
	return fmt.Errorf("tieredsession: %s: %w: %w", op, ErrStorageUnavailable, err)
}

func configErr(format string, args ...any) error {
	return fmt.Errorf("tieredsession: %w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}
