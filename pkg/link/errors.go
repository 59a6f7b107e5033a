package link

import (
	"errors"
	"fmt"
)

// ErrClosed indicates the ring is closed for writing.
var ErrClosed = errors.New("link closed")

// URLError reports a bad or unsupported endpoint URL.
type URLError struct {
	URL string
	Err error
}

// Error implements error.
func (e *URLError) Error() string {
	return fmt.Sprintf("endpoint %q: %v", e.URL, e.Err)
}
