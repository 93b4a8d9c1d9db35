package auth

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates that no credential record could be resolved from
// any source. It is a valid terminal state, not a fault: the caller is
// expected to prompt for re-authentication out of band.
var ErrNotFound = errors.New("no stored credentials found")

// ErrNotAuthenticated is the degraded form every resolution failure maps
// to at the Token/ForceRefresh boundary. Callers of those methods never
// see storage or provider details.
var ErrNotAuthenticated = errors.New("not authenticated")

// ErrMissingClientCredentials indicates a refresh was required but neither
// the record nor the environment carries a client id and secret.
var ErrMissingClientCredentials = errors.New("refresh requires client credentials (client id and secret)")

// CorruptError reports a credential file that exists but cannot be parsed.
// The manager treats it as "not found" rather than failing the caller.
type CorruptError struct {
	Path string
	Err  error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("credential file %s is corrupt: %v", e.Path, e.Err)
}

func (e *CorruptError) Unwrap() error { return e.Err }

// RefreshError reports a refresh-token exchange the identity provider
// rejected. Body carries the provider's error payload for diagnostics.
type RefreshError struct {
	StatusCode int
	Body       string
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("token refresh failed with status %d: %s", e.StatusCode, e.Body)
}
