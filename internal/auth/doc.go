// Package auth implements the OAuth2 token lifecycle for the Microsoft
// identity platform: a file-backed credential store with a legacy-path
// migration, a refresh-token exchanger, and a manager that resolves a
// valid access token from the environment, the canonical store, or the
// legacy store, refreshing and persisting as needed.
//
// The package never lets a storage or refresh failure escape as a fault:
// callers receive ErrNotAuthenticated (or a nil record) and decide how to
// surface it. Exactly one identity is managed per process.
package auth
