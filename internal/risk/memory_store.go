package risk

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/chainfolio/chainfolio/internal/validation"
)

// Compile-time assertion.
var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-memory rating table for demo/test use.
type MemoryStore struct {
	mu      sync.RWMutex
	ratings map[string]*Rating
}

// NewMemoryStore creates an in-memory rating store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{ratings: make(map[string]*Rating)}
}

func (s *MemoryStore) GetRating(_ context.Context, address string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if r, ok := s.ratings[validation.NormalizeAddress(address)]; ok {
		return r.Score, nil
	}
	return 0, nil
}

func (s *MemoryStore) SetRating(_ context.Context, address string, score int) error {
	if score < 0 || score > MaxRating {
		return ErrInvalidRating
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	addr := validation.NormalizeAddress(address)
	s.ratings[addr] = &Rating{Address: addr, Score: score, UpdatedAt: time.Now()}
	return nil
}

func (s *MemoryStore) ListRatings(_ context.Context, limit int) ([]*Rating, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*Rating, 0, len(s.ratings))
	for _, r := range s.ratings {
		cp := *r
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Score != result[j].Score {
			return result[i].Score > result[j].Score
		}
		return result[i].Address < result[j].Address
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
