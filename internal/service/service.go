// Package service runs pool operations against the store and the token
// bank and exposes them over HTTP.
//
// Every mutating operation runs under a single mutex: load the records,
// run the engine on copies, apply the token batch, then persist. If
// persisting fails the token batch is reverted, so a failed operation has
// no observable effect.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/atmx/yield-farm/internal/authority"
	"github.com/atmx/yield-farm/internal/farm"
	"github.com/atmx/yield-farm/internal/metrics"
	"github.com/atmx/yield-farm/internal/model"
	"github.com/atmx/yield-farm/internal/reward"
	"github.com/atmx/yield-farm/internal/store"
	"github.com/atmx/yield-farm/internal/token"
)

// Service handles pool operations. Uses a mutex for serialized execution
// (single-instance). For horizontal scaling, replace with distributed
// locking or row-level locks in the store.
type Service struct {
	store    store.Store
	bank     token.Bank
	engine   *farm.Engine
	verifier authority.Verifier
	wsHub    *WSHub // optional WebSocket hub for real-time broadcasts
	now      func() time.Time
	devMode  bool
	mu       sync.Mutex
}

// NewService creates a new pool service.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewService(st store.Store, bank token.Bank, engine *farm.Engine, verifier authority.Verifier, hub *WSHub) *Service {
	return &Service{
		store:    st,
		bank:     bank,
		engine:   engine,
		verifier: verifier,
		wsHub:    hub,
		now:      time.Now,
	}
}

// SetClock replaces the wall clock used to timestamp operations.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// EnableDevMode turns on the account funding endpoint. The bank must
// implement token.Funder.
func (s *Service) EnableDevMode() { s.devMode = true }

// InitializePool creates the pool for p.TokenMint and opens its vault and
// treasury fee account.
func (s *Service) InitializePool(ctx context.Context, p farm.InitParams) (*model.Pool, error) {
	start := time.Now()
	defer observe("initialize_pool", start)

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	pool, ev := s.engine.InitializePool(p, now.Unix())
	pool.CreatedAt = now.UTC()
	ev.ID = uuid.New().String()

	signer := authority.PoolSigner(pool.ID)
	if err := s.bank.Open(ctx, pool.Vault, signer, pool.TokenMint); err != nil {
		return nil, fmt.Errorf("open vault: %w", err)
	}
	treasury := s.engine.Treasury()
	if err := s.bank.Open(ctx, authority.TokenAccount(treasury, pool.TokenMint), treasury, pool.TokenMint); err != nil {
		return nil, fmt.Errorf("open treasury account: %w", err)
	}

	if err := s.store.CreatePool(ctx, &pool, &ev); err != nil {
		return nil, err
	}

	metrics.ActivePools.Inc()
	metrics.SetPoolState(pool.ID.Hex(), pool.TotalLiquidity, pool.IsPaused)

	slog.Info("pool initialized",
		"pool", pool.ID.Hex(),
		"mint", pool.TokenMint.Hex(),
		"admin", pool.Admin.Hex(),
		"coefficient", pool.RewardCoefficient,
		"max_per_user", pool.MaxDepositPerUser,
		"max_total", pool.TotalMaxLiquidity,
	)
	s.broadcast(ev, pool)
	return &pool, nil
}

// Stake deposits p.Amount from the caller into the pool and pays the
// boosted reward, either minted to the caller's farm token account or
// compounded into the position.
func (s *Service) Stake(ctx context.Context, poolID common.Address, auth authority.Capability, p farm.StakeParams) (*farm.Transition, error) {
	const op = "stake"
	start := time.Now()
	defer observe(op, start)

	s.mu.Lock()
	defer s.mu.Unlock()

	pool, pos, err := s.load(ctx, poolID, auth.Caller)
	if err != nil {
		return nil, err
	}

	tr, err := s.engine.Stake(*pool, *pos, p, auth, s.now().Unix())
	if err != nil {
		return nil, s.fail(op, poolID, auth.Caller, err)
	}

	user := auth.Caller
	if err := s.bank.Open(ctx, authority.TokenAccount(user, pool.TokenMint), user, pool.TokenMint); err != nil {
		return nil, s.fail(op, poolID, user, err)
	}
	if !p.AutoCompound {
		farmMint := s.engine.FarmMint()
		if err := s.bank.Open(ctx, authority.TokenAccount(user, farmMint), user, farmMint); err != nil {
			return nil, s.fail(op, poolID, user, err)
		}
	}

	if err := s.execute(ctx, op, tr); err != nil {
		return nil, err
	}

	mode := "mint"
	if p.AutoCompound {
		mode = "compound"
	}
	metrics.StakesTotal.WithLabelValues(mode).Inc()
	metrics.RewardsDistributed.WithLabelValues(poolID.Hex(), mode).Add(float64(tr.Reward))

	slog.Info("stake executed",
		"event_id", tr.Event.ID,
		"pool", poolID.Hex(),
		"user", user.Hex(),
		"amount", p.Amount,
		"reward", tr.Reward,
		"mode", mode,
		"position", tr.Position.Amount,
		"unlock_time", tr.Position.UnlockTime,
		"total_liquidity", tr.Pool.TotalLiquidity,
	)
	return tr, nil
}

// Withdraw returns amount from the caller's position, less the pool fee.
func (s *Service) Withdraw(ctx context.Context, poolID, user common.Address, amount uint64) (*farm.Transition, error) {
	const op = "withdraw"
	start := time.Now()
	defer observe(op, start)

	s.mu.Lock()
	defer s.mu.Unlock()

	pool, pos, err := s.load(ctx, poolID, user)
	if err != nil {
		return nil, err
	}

	tr, err := s.engine.Withdraw(*pool, *pos, amount, user, s.now().Unix())
	if err != nil {
		return nil, s.fail(op, poolID, user, err)
	}

	if err := s.bank.Open(ctx, authority.TokenAccount(user, pool.TokenMint), user, pool.TokenMint); err != nil {
		return nil, s.fail(op, poolID, user, err)
	}

	if err := s.execute(ctx, op, tr); err != nil {
		return nil, err
	}

	metrics.WithdrawalsTotal.Inc()
	metrics.FeesCollected.WithLabelValues(poolID.Hex()).Add(float64(tr.Fee))

	slog.Info("withdrawal executed",
		"event_id", tr.Event.ID,
		"pool", poolID.Hex(),
		"user", user.Hex(),
		"amount", amount,
		"fee", tr.Fee,
		"net", tr.Net,
		"position", tr.Position.Amount,
		"total_liquidity", tr.Pool.TotalLiquidity,
	)
	return tr, nil
}

// TogglePause flips the pool's circuit breaker on behalf of caller.
func (s *Service) TogglePause(ctx context.Context, poolID, caller common.Address) (*model.Pool, error) {
	const op = "toggle_pause"
	start := time.Now()
	defer observe(op, start)

	s.mu.Lock()
	defer s.mu.Unlock()

	pool, err := s.store.GetPool(ctx, poolID)
	if err != nil {
		return nil, err
	}

	updated, err := s.engine.TogglePause(*pool, caller)
	if err != nil {
		return nil, s.fail(op, poolID, caller, err)
	}
	if err := s.store.Commit(ctx, &updated, nil, nil); err != nil {
		return nil, fmt.Errorf("persist pause state: %w", err)
	}

	metrics.SetPoolState(poolID.Hex(), updated.TotalLiquidity, updated.IsPaused)
	slog.Info("pool pause toggled",
		"pool", poolID.Hex(),
		"admin", caller.Hex(),
		"paused", updated.IsPaused,
	)

	if s.wsHub != nil {
		msgType := MsgPoolResumed
		if updated.IsPaused {
			msgType = MsgPoolPaused
		}
		s.wsHub.Broadcast(WSMessage{
			Type:           msgType,
			PoolID:         poolID.Hex(),
			TotalLiquidity: updated.TotalLiquidity,
			Paused:         updated.IsPaused,
		})
	}
	return &updated, nil
}

// Quote evaluates the reward formula without touching any pool.
func (s *Service) Quote(amount uint64, stakeTime, lastUpdate int64, coefficient uint64) (Quote, error) {
	timeMul, amountMul := reward.Multipliers(amount, stakeTime, lastUpdate)
	r, err := reward.Boosted(amount, stakeTime, lastUpdate, coefficient)
	if err != nil {
		return Quote{}, fmt.Errorf("%w: %w", farm.ErrArithmeticOverflow, err)
	}
	return Quote{
		TimeMultiplier:   timeMul,
		AmountMultiplier: amountMul,
		Boost:            percent(timeMul).Mul(percent(amountMul)).Round(4),
		Reward:           r,
	}, nil
}

// Fund credits the owner's token account for mint. Development only.
func (s *Service) Fund(ctx context.Context, owner, mint common.Address, amount uint64) (uint64, error) {
	funder, ok := s.bank.(token.Funder)
	if !s.devMode || !ok {
		return 0, errDevModeDisabled
	}
	acct := authority.TokenAccount(owner, mint)
	if err := s.bank.Open(ctx, acct, owner, mint); err != nil {
		return 0, err
	}
	if err := funder.Fund(ctx, acct, amount); err != nil {
		return 0, err
	}
	slog.Warn("dev account funded", "owner", owner.Hex(), "mint", mint.Hex(), "amount", amount)
	return s.bank.Balance(ctx, acct)
}

// RefreshGauges seeds the pool gauges from the store. Called on startup.
func (s *Service) RefreshGauges(ctx context.Context) error {
	pools, err := s.store.ListPools(ctx)
	if err != nil {
		return err
	}
	metrics.ActivePools.Set(float64(len(pools)))
	for _, p := range pools {
		metrics.SetPoolState(p.ID.Hex(), p.TotalLiquidity, p.IsPaused)
	}
	return nil
}

func (s *Service) load(ctx context.Context, poolID, user common.Address) (*model.Pool, *model.Position, error) {
	pool, err := s.store.GetPool(ctx, poolID)
	if err != nil {
		return nil, nil, err
	}
	pos, err := s.store.GetPosition(ctx, poolID, user)
	if err != nil {
		return nil, nil, fmt.Errorf("load position: %w", err)
	}
	return pool, pos, nil
}

// execute applies the transition's token batch and persists its records.
// A persistence failure reverts the batch.
func (s *Service) execute(ctx context.Context, op string, tr *farm.Transition) error {
	tr.Event.ID = uuid.New().String()

	if err := s.bank.Apply(ctx, tr.Ops...); err != nil {
		return s.fail(op, tr.Pool.ID, tr.Event.User, err)
	}

	if err := s.store.Commit(ctx, &tr.Pool, &tr.Position, &tr.Event); err != nil {
		// The store is untouched; undo the token effects so the operation
		// leaves nothing behind.
		if rerr := s.bank.Revert(context.WithoutCancel(ctx), tr.Ops...); rerr != nil {
			slog.Error("token batch revert failed",
				"op", op,
				"pool", tr.Pool.ID.Hex(),
				"user", tr.Event.User.Hex(),
				"ops", fmt.Sprint(tr.Ops),
				"err", rerr,
			)
		}
		return fmt.Errorf("persist %s: %w", op, err)
	}

	metrics.SetPoolState(tr.Pool.ID.Hex(), tr.Pool.TotalLiquidity, tr.Pool.IsPaused)
	s.broadcast(tr.Event, tr.Pool)
	return nil
}

// fail records a refused operation and returns err unchanged.
func (s *Service) fail(op string, poolID, user common.Address, err error) error {
	if errors.Is(err, farm.ErrArithmeticOverflow) {
		slog.Error("operation aborted",
			"op", op,
			"pool", poolID.Hex(),
			"user", user.Hex(),
			"err", err,
		)
		metrics.Rejections.WithLabelValues(op, "overflow").Inc()
		return err
	}
	slog.Info("operation rejected",
		"op", op,
		"pool", poolID.Hex(),
		"user", user.Hex(),
		"reason", err.Error(),
	)
	metrics.Rejections.WithLabelValues(op, reasonOf(err)).Inc()
	return err
}

func (s *Service) broadcast(ev model.Event, pool model.Pool) {
	if s.wsHub != nil {
		s.wsHub.Broadcast(eventMessage(ev, pool))
	}
}

func observe(op string, start time.Time) {
	metrics.OperationLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// reasonOf maps an error to a bounded metrics label.
func reasonOf(err error) string {
	switch {
	case errors.Is(err, farm.ErrPoolPaused):
		return "paused"
	case errors.Is(err, farm.ErrPoolLiquidityExceeded):
		return "pool_limit"
	case errors.Is(err, farm.ErrUserDepositLimitExceeded):
		return "user_limit"
	case errors.Is(err, farm.ErrStillLocked):
		return "locked"
	case errors.Is(err, farm.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, farm.ErrInvalidAuthority), errors.Is(err, token.ErrInvalidAuthority):
		return "invalid_authority"
	case errors.Is(err, farm.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, farm.ErrPositionMismatch):
		return "position_mismatch"
	case errors.Is(err, token.ErrInsufficientBalance):
		return "insufficient_balance"
	default:
		return "other"
	}
}
