package storage

import "fmt"

// WriteError wraps a transient I/O or network failure on the write path.
// The service does not retry; retry policy is left to the caller.
type WriteError struct {
	Tier string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("%s write failed: %v", e.Tier, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// ReadError wraps a transient failure on the read path.
type ReadError struct {
	Tier string
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("%s read failed: %v", e.Tier, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// UnavailableError reports a failed connectivity probe during tier selection.
// It triggers fallback to the next tier and is fatal only when every tier
// fails.
type UnavailableError struct {
	Tier string
	Err  error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s tier unavailable: %v", e.Tier, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }
