package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/sifan077/clicklink/internal/app/model"
)

// MemoryStore keeps links in a map guarded by a mutex. It backs local
// development and tests; all operations are atomic under the lock.
type MemoryStore struct {
	mu    sync.RWMutex
	links map[string]model.Link
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{links: make(map[string]model.Link)}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) ConditionalPut(ctx context.Context, link *model.Link) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, unavailable("memory: conditional put", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.links[link.Code]; exists {
		return false, nil
	}
	s.links[link.Code] = *link
	return true, nil
}

func (s *MemoryStore) Get(ctx context.Context, code string) (*model.Link, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable("memory: get", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	link, ok := s.links[code]
	if !ok {
		return nil, ErrLinkNotFound
	}
	return &link, nil
}

func (s *MemoryStore) Increment(ctx context.Context, code string, field model.Field, delta int64) (int64, error) {
	if err := checkField(field); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, unavailable("memory: increment", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	link, ok := s.links[code]
	if !ok {
		return 0, ErrLinkNotFound
	}
	link.VisitCount += delta
	s.links[code] = link
	return link.VisitCount, nil
}

func (s *MemoryStore) Recent(ctx context.Context, limit int) ([]model.Link, error) {
	return s.sorted(ctx, limit, func(a, b model.Link) bool {
		if a.CreatedAt != b.CreatedAt {
			return a.CreatedAt > b.CreatedAt
		}
		return a.Code < b.Code
	})
}

func (s *MemoryStore) Top(ctx context.Context, limit int) ([]model.Link, error) {
	return s.sorted(ctx, limit, func(a, b model.Link) bool {
		if a.VisitCount != b.VisitCount {
			return a.VisitCount > b.VisitCount
		}
		return a.Code < b.Code
	})
}

func (s *MemoryStore) Summary(ctx context.Context) (model.Summary, error) {
	if err := ctx.Err(); err != nil {
		return model.Summary{}, unavailable("memory: summary", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	summary := model.Summary{TotalLinks: int64(len(s.links))}
	for _, link := range s.links {
		summary.TotalVisits += link.VisitCount
	}
	return summary, nil
}

func (s *MemoryStore) HourlyCreated(ctx context.Context) (model.HourlyCounts, error) {
	var counts model.HourlyCounts
	if err := ctx.Err(); err != nil {
		return counts, unavailable("memory: hourly created", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, link := range s.links {
		counts[hourOf(link.CreatedAt)]++
	}
	return counts, nil
}

func (s *MemoryStore) sorted(ctx context.Context, limit int, less func(a, b model.Link) bool) ([]model.Link, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable("memory: list", err)
	}

	s.mu.RLock()
	all := make([]model.Link, 0, len(s.links))
	for _, link := range s.links {
		all = append(all, link)
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return less(all[i], all[j]) })

	if limit = clampLimit(limit); len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}
