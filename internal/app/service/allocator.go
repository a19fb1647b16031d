package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sifan077/clicklink/internal/app/model"
	"github.com/sifan077/clicklink/internal/app/repository"
	"github.com/sifan077/clicklink/internal/app/shortcode"
	metrics "github.com/sifan077/clicklink/internal/infra/prometheus"
	"go.uber.org/zap"
)

// MaxAttempts is how many candidate codes one allocation tries before it
// reports exhaustion.
const MaxAttempts = 3

// Allocation is the result of a successful Allocate call.
type Allocation struct {
	OriginalURL string `json:"originalUrl"`
	ShortCode   string `json:"shortCode"`
	ShortURL    string `json:"shortUrl"`
}

// AllocatorDeps groups dependencies required by ShortCodeAllocator.
type AllocatorDeps struct {
	Logger  *zap.Logger
	Store   repository.KeyStore
	Codes   shortcode.Generator
	BaseURL string
	Now     func() time.Time
}

// ShortCodeAllocator assigns a fresh random code to a URL. Uniqueness comes
// entirely from the store's conditional write; nothing is locked across
// attempts, so any number of allocators may run concurrently.
type ShortCodeAllocator struct {
	logger  *zap.Logger
	store   repository.KeyStore
	codes   shortcode.Generator
	baseURL string
	now     func() time.Time
}

// NewShortCodeAllocator creates an allocator with the provided dependencies.
func NewShortCodeAllocator(deps AllocatorDeps) *ShortCodeAllocator {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	codes := deps.Codes
	if codes == nil {
		codes = shortcode.NewRandomGenerator(shortcode.DefaultLength)
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &ShortCodeAllocator{
		logger:  logger.Named("allocator"),
		store:   deps.Store,
		codes:   codes,
		baseURL: strings.TrimRight(deps.BaseURL, "/"),
		now:     now,
	}
}

// Allocate stores originalURL under a newly drawn code. A collision draws a
// new candidate; after MaxAttempts collisions it gives up with
// ErrAllocationExhausted, having written nothing.
func (a *ShortCodeAllocator) Allocate(ctx context.Context, originalURL string) (*Allocation, error) {
	if strings.TrimSpace(originalURL) == "" {
		return nil, ErrEmptyURL
	}

	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		code, err := a.codes.Generate(ctx)
		if err != nil {
			return nil, fmt.Errorf("allocate: generate code: %w", err)
		}

		link := &model.Link{
			Code:       code,
			URL:        originalURL,
			CreatedAt:  a.now().Unix(),
			VisitCount: 0,
		}

		stored, err := a.store.ConditionalPut(ctx, link)
		if err != nil {
			return nil, fmt.Errorf("allocate: %w", err)
		}
		if stored {
			metrics.LinksAllocated.Inc()
			a.logger.Debug("short code allocated",
				zap.String("code", code),
				zap.Int("attempt", attempt),
			)
			return &Allocation{
				OriginalURL: originalURL,
				ShortCode:   code,
				ShortURL:    a.ShortURL(code),
			}, nil
		}

		metrics.AllocationCollisions.Inc()
		a.logger.Info("short code collision", zap.String("code", code), zap.Int("attempt", attempt))
	}

	metrics.AllocationExhausted.Inc()
	a.logger.Error("short code allocation exhausted", zap.Int("attempts", MaxAttempts))
	return nil, ErrAllocationExhausted
}

// ShortURL joins the public base URL and code.
func (a *ShortCodeAllocator) ShortURL(code string) string {
	return a.baseURL + "/" + code
}
