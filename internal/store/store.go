// Package store defines the persistence interface for the yield farm.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"github.com/atmx/yield-farm/internal/model"
)

var (
	// ErrNotFound is returned when a pool does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrPoolExists is returned when a pool is created twice.
	ErrPoolExists = errors.New("store: pool already exists")
)

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer.
type Store interface {
	// --- Pool records ---

	// CreatePool persists a new pool and its creation event atomically.
	CreatePool(ctx context.Context, pool *model.Pool, ev *model.Event) error

	// GetPool retrieves a pool by ID.
	GetPool(ctx context.Context, id common.Address) (*model.Pool, error)

	// ListPools returns all pools.
	ListPools(ctx context.Context) ([]model.Pool, error)

	// --- Position records ---

	// GetPosition returns the position for (pool, owner). A position that
	// was never written is returned zero-valued, already bound to its pool
	// and owner.
	GetPosition(ctx context.Context, pool, owner common.Address) (*model.Position, error)

	// ListPositions returns every stored position of a pool.
	ListPositions(ctx context.Context, pool common.Address) ([]model.Position, error)

	// --- Transitions ---

	// Commit writes the pool, and optionally a position and an event, as
	// one atomic unit. Either all of them are visible afterwards or none.
	Commit(ctx context.Context, pool *model.Pool, pos *model.Position, ev *model.Event) error

	// --- Immutable event log ---

	// GetEvents returns the events of a pool in emission order.
	GetEvents(ctx context.Context, pool common.Address) ([]model.Event, error)
}
