package domain

import (
	"errors"
	"fmt"
)

// ErrCancelled marks a run failed by explicit user action rather than a fault.
var ErrCancelled = errors.New("migration cancelled")

// StorageUnavailableError is returned when the client-side store cannot be
// read. Recoverable by retry.
type StorageUnavailableError struct {
	Err error
}

func (e *StorageUnavailableError) Error() string {
	return fmt.Sprintf("local storage unavailable: %v", e.Err)
}

func (e *StorageUnavailableError) Unwrap() error {
	return e.Err
}

// ManifestNotFoundError is returned for a restore request naming an unknown
// backup manifest.
type ManifestNotFoundError struct {
	ID string
}

func (e *ManifestNotFoundError) Error() string {
	return fmt.Sprintf("backup manifest not found: %s", e.ID)
}

// ConflictNotFoundError is returned for a resolution naming a conflict id that
// is not present in the current run's conflict list.
type ConflictNotFoundError struct {
	ID string
}

func (e *ConflictNotFoundError) Error() string {
	return fmt.Sprintf("conflict not found: %s", e.ID)
}

// AlreadyInProgressError is returned when a migration is started while a
// non-terminal run exists for the same owner.
type AlreadyInProgressError struct {
	UserID string
}

func (e *AlreadyInProgressError) Error() string {
	return fmt.Sprintf("migration already in progress for user %s", e.UserID)
}

// WriteFailedError is returned when a destination write fails. It marks the
// run failed while preserving partial progress.
type WriteFailedError struct {
	Schema string
	Key    string
	Err    error
}

func (e *WriteFailedError) Error() string {
	return fmt.Sprintf("write failed for %s/%s: %v", e.Schema, e.Key, e.Err)
}

func (e *WriteFailedError) Unwrap() error {
	return e.Err
}
