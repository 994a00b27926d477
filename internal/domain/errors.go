package domain

import (
	"errors"
	"fmt"
)

// ErrEmptyStore is returned when a summary is requested over no records.
var ErrEmptyStore = errors.New("history store is empty")

// ErrInvalidDate is returned when a date string matches no known layout.
var ErrInvalidDate = errors.New("invalid date")

// NoDataError means the provider answered but returned no bars.
type NoDataError struct {
	Symbol string
}

func (e *NoDataError) Error() string {
	return fmt.Sprintf("no data returned for %s", e.Symbol)
}

// ProviderError wraps a transport, auth or rate-limit failure. The cause is
// opaque to the pipeline.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s provider: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// MalformedBarError means a required bar field was missing or invalid.
type MalformedBarError struct {
	Field  string
	Reason string
}

func (e *MalformedBarError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("malformed bar: missing %s", e.Field)
	}
	return fmt.Sprintf("malformed bar: %s %s", e.Field, e.Reason)
}

// CorruptStoreError means existing history content could not be parsed.
// Line is 1-based and counts the header; zero means the whole file.
type CorruptStoreError struct {
	Path   string
	Line   int
	Reason string
}

func (e *CorruptStoreError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("corrupt store %s line %d: %s", e.Path, e.Line, e.Reason)
	}
	return fmt.Sprintf("corrupt store %s: %s", e.Path, e.Reason)
}

// PersistenceError wraps a filesystem or database write failure.
type PersistenceError struct {
	Op   string
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Kind returns a short machine-readable label for the error's type.
func Kind(err error) string {
	var (
		noData    *NoDataError
		provider  *ProviderError
		malformed *MalformedBarError
		corrupt   *CorruptStoreError
		persist   *PersistenceError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &noData):
		return "no_data"
	case errors.As(err, &provider):
		return "provider"
	case errors.As(err, &malformed):
		return "malformed"
	case errors.As(err, &corrupt):
		return "corrupt_store"
	case errors.As(err, &persist):
		return "persistence"
	case errors.Is(err, ErrEmptyStore):
		return "empty_store"
	default:
		return "unknown"
	}
}
