package capture

import "fmt"

// ValidationError reports absent or empty caller input. It is a local error,
// never forwarded to storage and never retried.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s is required", e.Field)
}
