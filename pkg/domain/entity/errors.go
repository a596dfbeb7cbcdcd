package entity

import "errors"

var (
	// ErrNoMatch is returned when a markup query selects nothing
	ErrNoMatch = errors.New("query matched no nodes")
	// ErrMissingContentLength is returned when a download has no declared size
	ErrMissingContentLength = errors.New("response has no content length")
	// ErrUnexpectedStatus is returned for non-2xx responses
	ErrUnexpectedStatus = errors.New("unexpected HTTP status")
	// ErrLockContended is returned when a lock could not be taken within the retry budget
	ErrLockContended = errors.New("lock contended")
	// ErrMissingCredentials is returned when no repository credentials are configured
	ErrMissingCredentials = errors.New("missing repository credentials")
	// ErrPathTraversal is returned when a remote name would escape its directory
	ErrPathTraversal = errors.New("path escapes target directory")
	// ErrResponseTooLarge is returned when a page exceeds the configured size cap
	ErrResponseTooLarge = errors.New("response too large")
	// ErrNotFound is returned when a collection or dataset alias is unknown
	ErrNotFound = errors.New("not found")
)
