package resilience

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// Sentinel errors for pipeline-level conditions.
var (
	// ErrAlreadyRunning rejects a trigger while a run is in progress.
	// It is a rejection of the new trigger, not a failure of the old run.
	ErrAlreadyRunning = errors.New("a pipeline run is already in progress")

	// ErrUnsupportedIndex signals an index tag outside the closed set.
	ErrUnsupportedIndex = errors.New("unsupported index type")
)

// StorageUnavailableError aborts the current run: the metadata store could
// not complete an operation. Each upsert is atomic per entity, so partially
// written records are never left behind.
type StorageUnavailableError struct {
	Op  string
	Err error
}

func (e *StorageUnavailableError) Error() string {
	return fmt.Sprintf("storage unavailable: %s: %v", e.Op, e.Err)
}

func (e *StorageUnavailableError) Unwrap() error { return e.Err }

// Storage wraps a driver error as a StorageUnavailableError.
func Storage(op string, err error) error {
	return &StorageUnavailableError{Op: op, Err: err}
}

// IsStorageUnavailable reports whether the error chain contains a storage
// failure.
func IsStorageUnavailable(err error) bool {
	var se *StorageUnavailableError
	return errors.As(err, &se)
}

// ProviderUnavailableError is returned after retries against the imagery
// provider are exhausted. The run records it and continues with whatever
// scenes were already fetched.
type ProviderUnavailableError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *ProviderUnavailableError) Error() string {
	return fmt.Sprintf("provider unavailable: %s after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

func (e *ProviderUnavailableError) Unwrap() error { return e.Err }

// IsProviderUnavailable reports whether the error chain contains an
// exhausted-provider failure.
func IsProviderUnavailable(err error) bool {
	var pe *ProviderUnavailableError
	return errors.As(err, &pe)
}

// AuthExpiredError marks an authorization failure that persisted through
// the single re-authentication attempt. Callers treat it like
// ProviderUnavailable.
type AuthExpiredError struct {
	Err error
}

func (e *AuthExpiredError) Error() string {
	return fmt.Sprintf("provider authorization expired: %v", e.Err)
}

func (e *AuthExpiredError) Unwrap() error { return e.Err }

// BandMismatchError is scene-local: the two band rasters do not share
// dimensions. Only that scene's calculation is aborted.
type BandMismatchError struct {
	BandA, BandB     string
	WidthA, HeightA  int
	WidthB, HeightB  int
}

func (e *BandMismatchError) Error() string {
	return fmt.Sprintf("band raster mismatch: %s is %dx%d, %s is %dx%d",
		e.BandA, e.WidthA, e.HeightA, e.BandB, e.WidthB, e.HeightB)
}

// IsBandMismatch reports whether the error chain contains a band dimension
// mismatch.
func IsBandMismatch(err error) bool {
	var be *BandMismatchError
	return errors.As(err, &be)
}

// TransientError wraps an error that is safe to retry (429, 5xx, network
// timeout).
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string { return e.Err.Error() }

func (e *TransientError) Unwrap() error { return e.Err }

// NewTransientError wraps an error as transient with an optional HTTP
// status code.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// IsTransient returns true if the error (or any error in its chain) is a
// TransientError, or if it matches common transient network failures.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	// String-based heuristics for wrapped errors from HTTP clients.
	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"no such host",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}

// IsTransientHTTPStatus returns true if the HTTP status code indicates a
// transient server-side issue that is safe to retry.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
