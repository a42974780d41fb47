package trth

import (
	"fmt"
	"net/http"
)

// ListingError is returned when the result listing cannot be fetched or parsed.
// It is fatal for a batch: without a listing no file is known.
type ListingError struct {
	Reason string // Human-readable explanation of what went wrong
	Err    error  // Underlying error, if any
}

func (e *ListingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("failed to list results: %s: %v", e.Reason, e.Err)
	}

	return fmt.Sprintf("failed to list results: %s", e.Reason)
}

func (e *ListingError) Unwrap() error {
	return e.Err
}

// DecodeError is returned when a listed file name does not follow the
// -<request id>[-<part>].<csv|txt> convention.
type DecodeError struct {
	Name string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("unrecognised result file name %q", e.Name)
}

// NetworkError represents connection failures, non-2xx answers and broken
// streams while talking to the TRTH endpoints.
type NetworkError struct {
	Operation  string // The operation that failed (e.g., "list", "download", "cancel_request")
	StatusCode int    // HTTP status code, if applicable (0 for non-HTTP errors)
	Message    string // Error message from the API or network layer
	Err        error  // Underlying error, if any
}

func (e *NetworkError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("network error during %s (HTTP %d): %s", e.Operation, e.StatusCode, e.Message)
	}

	return fmt.Sprintf("network error during %s: %s", e.Operation, e.Message)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// FilesystemError represents a failure creating or writing a local file.
type FilesystemError struct {
	Op   string // "create", "write", "mkdir", "close"
	Path string
	Err  error
}

func (e *FilesystemError) Error() string {
	return fmt.Sprintf("filesystem error during %s of %s: %v", e.Op, e.Path, e.Err)
}

func (e *FilesystemError) Unwrap() error {
	return e.Err
}

// CancellationError is returned when the upstream CancelRequest call fails.
type CancellationError struct {
	RequestID string
	Err       error
}

func (e *CancellationError) Error() string {
	return fmt.Sprintf("failed to cancel request %s: %v", e.RequestID, e.Err)
}

func (e *CancellationError) Unwrap() error {
	return e.Err
}

// Retryable reports whether repeating the operation may succeed: transport
// failures, throttling and server errors are, other client errors are not.
func (e *NetworkError) Retryable() bool {
	switch {
	case e.StatusCode == 0:
		return true
	case e.StatusCode == http.StatusTooManyRequests:
		return true
	case e.StatusCode >= http.StatusInternalServerError:
		return true
	default:
		return false
	}
}
