package service

import (
	"context"
	"fmt"

	"github.com/sifan077/clicklink/internal/app/apperr"
	"github.com/sifan077/clicklink/internal/app/repository"
	"github.com/sifan077/clicklink/internal/app/shortcode"
	metrics "github.com/sifan077/clicklink/internal/infra/prometheus"
	"go.uber.org/zap"
)

// RedirectResolver looks up redirect targets. It has no side effects; the
// caller decides whether to record a visit.
type RedirectResolver struct {
	logger *zap.Logger
	store  repository.KeyStore
}

// NewRedirectResolver creates a resolver reading from store.
func NewRedirectResolver(store repository.KeyStore, logger *zap.Logger) *RedirectResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedirectResolver{logger: logger.Named("resolver"), store: store}
}

// Resolve returns the original URL stored for code. It fails with
// ErrEmptyCode, repository.ErrLinkNotFound or a store-unavailable error.
// A code that could never have been allocated is not found without a store
// round trip.
func (r *RedirectResolver) Resolve(ctx context.Context, code string) (string, error) {
	if code == "" {
		return "", ErrEmptyCode
	}
	if !shortcode.Valid(code, shortcode.DefaultLength) {
		metrics.Redirects.WithLabelValues("not_found").Inc()
		return "", repository.ErrLinkNotFound
	}

	link, err := r.store.Get(ctx, code)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			metrics.Redirects.WithLabelValues("not_found").Inc()
			return "", err
		}
		metrics.Redirects.WithLabelValues("error").Inc()
		return "", fmt.Errorf("resolve %s: %w", code, err)
	}

	metrics.Redirects.WithLabelValues("found").Inc()
	return link.URL, nil
}
