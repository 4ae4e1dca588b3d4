package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/atmx/yield-farm/internal/authority"
	"github.com/atmx/yield-farm/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu        sync.RWMutex
	pools     map[common.Address]*model.Pool
	positions map[common.Address]*model.Position // keyed by derived position address
	events    []model.Event
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		pools:     make(map[common.Address]*model.Pool),
		positions: make(map[common.Address]*model.Position),
	}
}

func (s *MemoryStore) CreatePool(_ context.Context, pool *model.Pool, ev *model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pools[pool.ID]; ok {
		return fmt.Errorf("%w: %s", ErrPoolExists, pool.ID.Hex())
	}

	// Store a copy to avoid external mutation.
	copy := *pool
	s.pools[pool.ID] = &copy
	if ev != nil {
		s.events = append(s.events, *ev)
	}
	return nil
}

func (s *MemoryStore) GetPool(_ context.Context, id common.Address) (*model.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.pools[id]
	if !ok {
		return nil, fmt.Errorf("pool %s: %w", id.Hex(), ErrNotFound)
	}
	copy := *p
	return &copy, nil
}

func (s *MemoryStore) ListPools(_ context.Context) ([]model.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pools := make([]model.Pool, 0, len(s.pools))
	for _, p := range s.pools {
		pools = append(pools, *p)
	}
	sort.Slice(pools, func(i, j int) bool {
		return pools[i].CreatedAt.After(pools[j].CreatedAt)
	})
	return pools, nil
}

func (s *MemoryStore) GetPosition(_ context.Context, pool, owner common.Address) (*model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if p, ok := s.positions[authority.PositionAddress(pool, owner)]; ok {
		copy := *p
		return &copy, nil
	}
	return &model.Position{Pool: pool, Owner: owner}, nil
}

func (s *MemoryStore) ListPositions(_ context.Context, pool common.Address) ([]model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Position
	for _, p := range s.positions {
		if p.Pool == pool {
			result = append(result, *p)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Amount > result[j].Amount
	})
	return result, nil
}

func (s *MemoryStore) Commit(_ context.Context, pool *model.Pool, pos *model.Position, ev *model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pools[pool.ID]; !ok {
		return fmt.Errorf("pool %s: %w", pool.ID.Hex(), ErrNotFound)
	}
	if pos != nil && pos.Pool != pool.ID {
		return fmt.Errorf("position belongs to pool %s, not %s", pos.Pool.Hex(), pool.ID.Hex())
	}

	poolCopy := *pool
	s.pools[pool.ID] = &poolCopy
	if pos != nil {
		posCopy := *pos
		s.positions[authority.PositionAddress(pos.Pool, pos.Owner)] = &posCopy
	}
	if ev != nil {
		s.events = append(s.events, *ev)
	}
	return nil
}

func (s *MemoryStore) GetEvents(_ context.Context, pool common.Address) ([]model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Event
	for _, e := range s.events {
		if e.Pool == pool {
			result = append(result, e)
		}
	}
	return result, nil
}
