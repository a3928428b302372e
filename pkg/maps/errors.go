package maps

import (
	"errors"
	"fmt"
)

// ErrNoResults is returned when an address cannot be geocoded.
var ErrNoResults = errors.New("no results found")

// StatusError is a non-2xx response from Azure Maps. Body is the raw
// response body.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: azure maps returned %d: %s", e.Op, e.StatusCode, e.Body)
}

// ValidationError rejects an address before any request is made.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
