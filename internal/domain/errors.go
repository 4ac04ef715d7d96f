package domain

import "errors"

var (
	// ErrValidation is returned when a ledger write is missing required identifiers.
	ErrValidation = errors.New("validation failed")

	// ErrVersionNotFound is returned when an operation references a version that does not exist.
	ErrVersionNotFound = errors.New("version not found")

	// ErrVersionAlreadyUndone is returned when a restore targets a version already flagged undone.
	ErrVersionAlreadyUndone = errors.New("version already undone")

	// ErrNoRestoreData is returned when a restore targets a creation event, which has no prior state.
	ErrNoRestoreData = errors.New("version has no data to restore")

	// ErrPersistence is returned when the backing store fails to durably read or write a record.
	ErrPersistence = errors.New("persistence failure")
)
