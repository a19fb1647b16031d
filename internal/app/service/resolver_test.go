package service

import (
	"context"
	"testing"

	"github.com/sifan077/clicklink/internal/app/apperr"
	"github.com/sifan077/clicklink/internal/app/model"
	"github.com/sifan077/clicklink/internal/app/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	store := repository.NewMemoryStore()
	_, err := store.ConditionalPut(context.Background(), &model.Link{Code: "abc123", URL: "https://example.com/x"})
	require.NoError(t, err)

	resolver := NewRedirectResolver(store, nil)

	target, err := resolver.Resolve(context.Background(), "abc123")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/x", target)

	link, err := store.Get(context.Background(), "abc123")
	require.NoError(t, err)
	assert.Zero(t, link.VisitCount, "resolving must not count a visit")
}

func TestResolve_Errors(t *testing.T) {
	tests := []struct {
		name  string
		code  string
		getFn func(ctx context.Context, code string) (*model.Link, error)
		kind  apperr.Kind
	}{
		{
			name: "empty code",
			code: "",
			kind: apperr.KindInvalidInput,
		},
		{
			name: "unknown code",
			code: "nope00",
			kind: apperr.KindNotFound,
		},
		{
			name: "store down",
			code: "abc123",
			getFn: func(ctx context.Context, code string) (*model.Link, error) {
				return nil, repository.ErrStoreUnavailable
			},
			kind: apperr.KindStoreUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolver := NewRedirectResolver(&mockStore{getFn: tt.getFn}, nil)
			target, err := resolver.Resolve(context.Background(), tt.code)
			assert.Empty(t, target)
			assert.Equal(t, tt.kind, apperr.KindOf(err))
		})
	}
}

func TestResolve_NotFoundIsTheSentinel(t *testing.T) {
	_, err := NewRedirectResolver(repository.NewMemoryStore(), nil).Resolve(context.Background(), "zzzzzz")
	assert.ErrorIs(t, err, repository.ErrLinkNotFound)
}

func TestResolve_MalformedCodeSkipsStore(t *testing.T) {
	store := &mockStore{
		getFn: func(ctx context.Context, code string) (*model.Link, error) {
			t.Fatalf("store queried for %q", code)
			return nil, nil
		},
	}
	resolver := NewRedirectResolver(store, nil)

	for _, code := range []string{"abc", "abc1234", "abc-12", "favicon.ico"} {
		_, err := resolver.Resolve(context.Background(), code)
		assert.ErrorIs(t, err, repository.ErrLinkNotFound, code)
		assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	}
}
