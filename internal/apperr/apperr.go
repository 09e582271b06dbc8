// Package apperr defines the error taxonomy shared by the enrichment
// pipeline and the HTTP layer. Handlers detect these types with errors.As
// and map them to status codes; everything else is treated as an internal
// failure and reported opaquely.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// ValidationError reports malformed or missing client input (bad location,
// empty upload, disallowed media type). Maps to 400.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// NotFoundError reports an unknown owner or event identifier. Maps to 404.
type NotFoundError struct {
	Resource string // "user" or "event"
	Key      string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.Key)
}

// ExternalServiceError reports a failure of an external analysis capability:
// the vision model call, or the scoring subprocess (non-zero exit, timeout,
// unparseable output). Maps to 500; detail is logged, never sent to clients.
type ExternalServiceError struct {
	Service string // "gemini", "scorer"
	Err     error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Service, e.Err)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

// StorageError reports a persistence failure. Maps to 500.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// HTTPStatus maps an error to the response status code for its category.
func HTTPStatus(err error) int {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return http.StatusBadRequest
	}
	var nf *NotFoundError
	if errors.As(err, &nf) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// ClientMessage returns the message safe to send to the caller. Validation
// and not-found errors identify the offending field or key; external and
// storage failures collapse to a generic message.
func ClientMessage(err error) string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Error()
	}
	var nf *NotFoundError
	if errors.As(err, &nf) {
		return nf.Error()
	}
	var ese *ExternalServiceError
	if errors.As(err, &ese) {
		return "analysis failed"
	}
	return "internal error"
}
