package crawler

import "fmt"

// ExtractionError reports a detail page whose structure did not match
// expectations. It carries the source URL so a failed task records where the
// bad page came from.
type ExtractionError struct {
	URL string
	Err error
}

// Error implements the error interface.
func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.URL, e.Err)
}

// Unwrap exposes the underlying cause.
func (e *ExtractionError) Unwrap() error {
	return e.Err
}
