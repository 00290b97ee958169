// Package kberrors defines the typed error taxonomy shared across the
// knowledge-base pipeline (hashing, chunking, storage, loading, search).
// Hashing, embedding, chunking, storage, search and config failures are
// reported as one of these types (or wrap one with fmt.Errorf/%w) instead
// of an untyped error, so callers can branch on error kind and on
// retryability.
package kberrors

import (
	"errors"
	"fmt"
)

// Validation reports that a caller's input violated a documented contract.
type Validation struct {
	Message string
}

func (e *Validation) Error() string { return fmt.Sprintf("validation: %s", e.Message) }

func NewValidation(format string, args ...any) *Validation {
	return &Validation{Message: fmt.Sprintf(format, args...)}
}

// NotFound reports that a referenced resource (file path, chunk id) does
// not exist in the store.
type NotFound struct {
	Resource string
}

func (e *NotFound) Error() string { return fmt.Sprintf("not found: %s", e.Resource) }

func NewNotFound(resource string) *NotFound { return &NotFound{Resource: resource} }

// FileIO reports a filesystem failure during discovery or hashing.
type FileIO struct {
	Path   string
	Reason string
	Err    error
}

func (e *FileIO) Error() string {
	return fmt.Sprintf("file io error for %s: %s", e.Path, e.Reason)
}

func (e *FileIO) Unwrap() error { return e.Err }

func NewFileIO(path, reason string, err error) *FileIO {
	return &FileIO{Path: path, Reason: reason, Err: err}
}

// Embedding reports a failure from the embedding oracle. Retryable
// classifies transient failures (network, timeout) versus permanent ones
// (bad input, missing model).
type Embedding struct {
	Reason    string
	Retryable bool
	Err       error
}

func (e *Embedding) Error() string {
	return fmt.Sprintf("embedding error: %s (retryable=%t)", e.Reason, e.Retryable)
}

func (e *Embedding) Unwrap() error { return e.Err }

func NewEmbedding(reason string, retryable bool, err error) *Embedding {
	return &Embedding{Reason: reason, Retryable: retryable, Err: err}
}

// Storage reports a failure from the chunk store backend.
type Storage struct {
	Reason    string
	Retryable bool
	Err       error
}

func (e *Storage) Error() string {
	return fmt.Sprintf("storage error: %s (retryable=%t)", e.Reason, e.Retryable)
}

func (e *Storage) Unwrap() error { return e.Err }

func NewStorage(reason string, retryable bool, err error) *Storage {
	return &Storage{Reason: reason, Retryable: retryable, Err: err}
}

// Timeout reports that an operation exceeded its configured budget.
type Timeout struct {
	Operation string
}

func (e *Timeout) Error() string { return fmt.Sprintf("timeout: %s", e.Operation) }

func NewTimeout(operation string) *Timeout { return &Timeout{Operation: operation} }

// DimensionMismatch reports that an embedding's length didn't match the
// store-wide dimension fixed on first insertion.
type DimensionMismatch struct {
	Expected int
	Actual   int
}

func (e *DimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

func NewDimensionMismatch(expected, actual int) *DimensionMismatch {
	return &DimensionMismatch{Expected: expected, Actual: actual}
}

// InvalidState reports a broken internal invariant. This should be
// unreachable in correct code; treat it as a bug, not a recoverable error.
type InvalidState struct {
	Message string
}

func (e *InvalidState) Error() string { return fmt.Sprintf("invalid state: %s", e.Message) }

func NewInvalidState(format string, args ...any) *InvalidState {
	return &InvalidState{Message: fmt.Sprintf(format, args...)}
}

// Retryable reports whether err carries retry semantics the caller should
// act on. Errors with no opinion (Validation, NotFound, InvalidState,
// DimensionMismatch) are never retryable. err may wrap one of these types.
func Retryable(err error) bool {
	var emb *Embedding
	if errors.As(err, &emb) {
		return emb.Retryable
	}
	var st *Storage
	if errors.As(err, &st) {
		return st.Retryable
	}
	var to *Timeout
	return errors.As(err, &to)
}
