package gateway

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrMalformedResponse   = errors.New("malformed upstream response")
	ErrNotFound            = errors.New("upstream resource not found")
	ErrRejected            = errors.New("upstream rejected request")
)

// Attempt records one failed call.
type Attempt struct {
	Number     int           `json:"attempt"`
	StatusCode int           `json:"status_code,omitempty"`
	Error      string        `json:"error,omitempty"`
	Delay      time.Duration `json:"delay,omitempty"` // wait before the next attempt
}

func (a Attempt) String() string {
	if a.StatusCode != 0 {
		return fmt.Sprintf("#%d status %d", a.Number, a.StatusCode)
	}
	return fmt.Sprintf("#%d %s", a.Number, a.Error)
}

// APIError is returned by Client.Fetch for every upstream failure. Kind is one
// of the package sentinels and is what errors.Is matches against.
type APIError struct {
	Kind       error
	Path       string
	StatusCode int
	Attempts   []Attempt
	Err        error
}

func (e *APIError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: GET %s", e.Kind, e.Path)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if len(e.Attempts) > 0 {
		parts := make([]string, len(e.Attempts))
		for i, a := range e.Attempts {
			parts[i] = a.String()
		}
		fmt.Fprintf(&b, " [failed attempts: %s]", strings.Join(parts, ", "))
	}
	return b.String()
}

func (e *APIError) Unwrap() error { return e.Err }

func (e *APIError) Is(target error) bool { return target == e.Kind }
