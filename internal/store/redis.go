package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"github.com/atmx/yield-farm/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and invalidate the cache; reads
// check Redis first then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) CreatePool(ctx context.Context, pool *model.Pool, ev *model.Event) error {
	if err := s.primary.CreatePool(ctx, pool, ev); err != nil {
		return err
	}
	s.cache(ctx, poolKey(pool.ID), pool)
	return nil
}

func (s *CachedStore) Commit(ctx context.Context, pool *model.Pool, pos *model.Position, ev *model.Event) error {
	// Invalidate before and after so a concurrent reader cannot re-cache
	// the old record between the write and the delete.
	keys := []string{poolKey(pool.ID)}
	if pos != nil {
		keys = append(keys, positionKey(pos.Pool, pos.Owner))
	}
	s.rdb.Del(ctx, keys...)

	if err := s.primary.Commit(ctx, pool, pos, ev); err != nil {
		return err
	}
	s.rdb.Del(ctx, keys...)
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetPool(ctx context.Context, id common.Address) (*model.Pool, error) {
	data, err := s.rdb.Get(ctx, poolKey(id)).Bytes()
	if err == nil {
		var p model.Pool
		if json.Unmarshal(data, &p) == nil {
			return &p, nil
		}
	}

	// Cache miss: read from primary.
	p, err := s.primary.GetPool(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache(ctx, poolKey(id), p)
	return p, nil
}

func (s *CachedStore) GetPosition(ctx context.Context, pool, owner common.Address) (*model.Position, error) {
	data, err := s.rdb.Get(ctx, positionKey(pool, owner)).Bytes()
	if err == nil {
		var pos model.Position
		if json.Unmarshal(data, &pos) == nil {
			return &pos, nil
		}
	}

	pos, err := s.primary.GetPosition(ctx, pool, owner)
	if err != nil {
		return nil, err
	}
	s.cache(ctx, positionKey(pool, owner), pos)
	return pos, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListPools(ctx context.Context) ([]model.Pool, error) {
	return s.primary.ListPools(ctx)
}

func (s *CachedStore) ListPositions(ctx context.Context, pool common.Address) ([]model.Position, error) {
	return s.primary.ListPositions(ctx, pool)
}

func (s *CachedStore) GetEvents(ctx context.Context, pool common.Address) ([]model.Event, error) {
	return s.primary.GetEvents(ctx, pool)
}

// --- Cache helpers ---

func (s *CachedStore) cache(ctx context.Context, key string, v any) {
	if data, err := json.Marshal(v); err == nil {
		s.rdb.Set(ctx, key, data, s.ttl)
	}
}

func poolKey(id common.Address) string { return fmt.Sprintf("farm:pool:%s", id.Hex()) }
func positionKey(pool, owner common.Address) string {
	return fmt.Sprintf("farm:position:%s:%s", pool.Hex(), owner.Hex())
}
