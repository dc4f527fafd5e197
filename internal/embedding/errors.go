package embedding

import (
	"errors"
	"fmt"
)

var (
	// ErrRateLimited signals that the provider refused further calls within
	// the current quota window. It is never retried.
	ErrRateLimited = errors.New("embedding provider rate limited")

	// ErrNoEmbedding is returned by EmbedOne when no valid vector could be
	// produced for the input.
	ErrNoEmbedding = errors.New("no embedding produced")
)

// APIError is a non-quota provider failure. Server-side failures are
// transient and subject to retry; client-side failures are not.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("embedding API error (status %d): %s", e.StatusCode, e.Body)
}

// Transient reports whether the failure is worth retrying.
func (e *APIError) Transient() bool {
	return e.StatusCode >= 500
}
