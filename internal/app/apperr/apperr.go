// Package apperr classifies failures into the small set of kinds that the
// HTTP layer and the click pipeline make decisions on.
package apperr

import (
	"errors"
	"net/http"
)

// Kind is the caller-facing category of an error.
type Kind string

const (
	KindInternal            Kind = "internal"
	KindInvalidInput        Kind = "invalid_input"
	KindNotFound            Kind = "not_found"
	KindAllocationExhausted Kind = "allocation_exhausted"
	KindStoreUnavailable    Kind = "store_unavailable"
	KindQueueUnavailable    Kind = "queue_unavailable"
)

// Error attaches a Kind to an underlying error.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New tags err with kind. A nil err yields nil.
func New(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: err}
}

// KindOf returns the kind of the outermost tagged error in the chain, or
// KindInternal when nothing in the chain is tagged.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var tagged *Error
	if errors.As(err, &tagged) {
		return tagged.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps a kind onto the response status the API answers with.
// Allocation exhaustion and infrastructure failures share 500; clients tell
// them apart by the kind in the response body.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
