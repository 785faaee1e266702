package domain

import "errors"

// Domain errors - used across all layers
var (
	// ErrNotFound indicates the requested key does not exist
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates the input is invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrSessionNotFound indicates the connection id is not present in the registry
	ErrSessionNotFound = errors.New("session not found")

	// ErrConnectivity indicates a store connection could not be established or maintained
	ErrConnectivity = errors.New("store unreachable")

	// ErrMalformedPayload indicates a write payload does not match the declared kind
	ErrMalformedPayload = errors.New("malformed payload")

	// ErrOperationFailed indicates a single store operation failed while the
	// session itself remains usable
	ErrOperationFailed = errors.New("store operation failed")
)
