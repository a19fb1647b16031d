package service

import (
	"context"
	"fmt"

	"github.com/sifan077/clicklink/internal/app/model"
	"github.com/sifan077/clicklink/internal/app/repository"
)

// LinkService defines the read-only reporting operations on links.
type LinkService interface {
	GetLink(ctx context.Context, code string) (*model.Link, error)
	RecentLinks(ctx context.Context, limit int) ([]model.Link, error)
	TopLinks(ctx context.Context, limit int) ([]model.Link, error)
	Summary(ctx context.Context) (model.Summary, error)
	HourlyTrends(ctx context.Context) (model.HourlyCounts, error)
}

type linkService struct {
	store  repository.KeyStore
	lister repository.LinkLister
}

// NewLinkService returns a service implementation backed by the given store.
func NewLinkService(store repository.Store) LinkService {
	return &linkService{store: store, lister: store}
}

func (s *linkService) GetLink(ctx context.Context, code string) (*model.Link, error) {
	if code == "" {
		return nil, ErrEmptyCode
	}
	link, err := s.store.Get(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("get link: %w", err)
	}
	return link, nil
}

func (s *linkService) RecentLinks(ctx context.Context, limit int) ([]model.Link, error) {
	links, err := s.lister.Recent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("recent links: %w", err)
	}
	return links, nil
}

func (s *linkService) TopLinks(ctx context.Context, limit int) ([]model.Link, error) {
	links, err := s.lister.Top(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("top links: %w", err)
	}
	return links, nil
}

func (s *linkService) Summary(ctx context.Context) (model.Summary, error) {
	summary, err := s.lister.Summary(ctx)
	if err != nil {
		return model.Summary{}, fmt.Errorf("summary: %w", err)
	}
	return summary, nil
}

func (s *linkService) HourlyTrends(ctx context.Context) (model.HourlyCounts, error) {
	counts, err := s.lister.HourlyCreated(ctx)
	if err != nil {
		return model.HourlyCounts{}, fmt.Errorf("hourly trends: %w", err)
	}
	return counts, nil
}
