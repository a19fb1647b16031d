package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sifan077/clicklink/internal/app/apperr"
	"github.com/sifan077/clicklink/internal/app/model"
)

var (
	// ErrLinkNotFound signals that the requested short link does not exist.
	ErrLinkNotFound = apperr.New(apperr.KindNotFound, errors.New("link not found"))

	// ErrStoreUnavailable wraps transport or driver failures talking to the store.
	ErrStoreUnavailable = apperr.New(apperr.KindStoreUnavailable, errors.New("store unavailable"))

	// ErrUnsupportedField is returned when Increment targets a non-counter field.
	ErrUnsupportedField = apperr.New(apperr.KindInvalidInput, errors.New("field is not incrementable"))
)

// KeyStore is the only synchronisation point of the service. ConditionalPut
// and Increment must be atomic against any number of concurrent callers.
type KeyStore interface {
	// ConditionalPut stores link only if no row exists for link.Code. It
	// returns false, nil when the code is already taken.
	ConditionalPut(ctx context.Context, link *model.Link) (bool, error)
	// Get returns ErrLinkNotFound when no row exists.
	Get(ctx context.Context, code string) (*model.Link, error)
	// Increment adds delta to field and returns the new value, or
	// ErrLinkNotFound when no row exists. It never creates a row.
	Increment(ctx context.Context, code string, field model.Field, delta int64) (int64, error)
}

// LinkLister serves the reporting endpoints. Results are read-only snapshots.
type LinkLister interface {
	Recent(ctx context.Context, limit int) ([]model.Link, error)
	Top(ctx context.Context, limit int) ([]model.Link, error)
	Summary(ctx context.Context) (model.Summary, error)
	// HourlyCreated buckets every link by the UTC hour of its CreatedAt.
	HourlyCreated(ctx context.Context) (model.HourlyCounts, error)
}

// Store is implemented by every backend.
type Store interface {
	KeyStore
	LinkLister
}

const (
	defaultListLimit = 10
	maxListLimit     = 100
)

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

func checkField(field model.Field) error {
	if field != model.FieldVisitCount {
		return fmt.Errorf("%w: %q", ErrUnsupportedField, field)
	}
	return nil
}

func hourOf(createdAt int64) int {
	return time.Unix(createdAt, 0).UTC().Hour()
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}
