package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound is returned when an exact-match lookup finds no document.
	ErrNotFound = errors.New("domain not found")
	// ErrMalformedInput classifies a raw zonefile line that fails
	// normalization (bad chars, missing dot, empty/oversize label).
	// domain.Parse reports such lines as *domain.ParseError and does not
	// wrap this sentinel.
	ErrMalformedInput = errors.New("malformed domain input")
	// ErrBadQuery classifies an invalid search request (empty query, limit
	// out of range, too many bulk queries). query.Parse and the bulk handler
	// report these with their own error values and do not wrap this sentinel.
	ErrBadQuery = errors.New("invalid query")
	// ErrWriterLocked is returned when a writer process cannot acquire the
	// single-writer file lock because another writer already holds it.
	ErrWriterLocked = errors.New("index writer lock held by another process")
	// ErrCorruptSegment is returned when a segment file fails its checksum
	// or magic-byte validation on open.
	ErrCorruptSegment = errors.New("corrupt index segment")
	// ErrUnsupportedManifest is returned when an index's MANIFEST.json
	// carries a version this build does not recognize, refusing to open a
	// foreign or future-format index rather than silently misreading it.
	ErrUnsupportedManifest = errors.New("unsupported manifest version")
	// ErrIndexClosed is returned when an operation is attempted against an
	// Engine or Snapshot that has already been closed.
	ErrIndexClosed = errors.New("index is closed")
	// ErrInternal covers unexpected failures that do not map to any of the
	// above, per spec.md §7's default error-kind.
	ErrInternal = errors.New("internal error")
	// ErrTimeout is returned when a bounded operation exceeds its deadline.
	ErrTimeout = errors.New("operation timed out")
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrBadQuery), errors.Is(err, ErrMalformedInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrWriterLocked):
		return http.StatusConflict
	case errors.Is(err, ErrIndexClosed), errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrCorruptSegment), errors.Is(err, ErrUnsupportedManifest):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
