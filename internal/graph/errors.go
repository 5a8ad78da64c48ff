package graph

import (
	"errors"
	"fmt"
)

var (
	// ErrDirectoryUnavailable means the member listing failed after
	// retries; the whole poll cycle must be abandoned.
	ErrDirectoryUnavailable = errors.New("directory unavailable")

	// ErrUnauthorized means the upstream rejected our credentials.
	// Never retried: it indicates a systemic credential problem.
	ErrUnauthorized = errors.New("graph authorization failed")
)

// FetchError is a per-member presence fetch failure. Soft: the caller
// records it in the cycle report and continues with other members.
type FetchError struct {
	MemberID string
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("presence fetch for %s failed: %v", e.MemberID, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
