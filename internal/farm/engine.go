// Package farm implements the staking pool state transitions.
//
// Every operation takes the pool and position by value, checks all of its
// preconditions before touching anything, and returns the new records
// together with the token ops and event the host must apply. A rejected
// operation returns an error and no records, so the caller's copies are
// never partially updated.
//
// Known divergence: a compounded reward is added to the position but not
// to TotalLiquidity. The gap is tracked in TotalCompounded.
package farm

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/atmx/yield-farm/internal/authority"
	"github.com/atmx/yield-farm/internal/model"
	"github.com/atmx/yield-farm/internal/reward"
	"github.com/atmx/yield-farm/internal/token"
)

// Engine holds the addresses shared by every pool.
type Engine struct {
	treasury common.Address // owner of the fee accounts
	farmMint common.Address // reward token mint
}

// NewEngine creates an engine paying fees to treasury and minting rewards
// from farmMint.
func NewEngine(treasury, farmMint common.Address) *Engine {
	return &Engine{treasury: treasury, farmMint: farmMint}
}

// Treasury returns the owner of the fee accounts.
func (e *Engine) Treasury() common.Address { return e.treasury }

// FarmMint returns the reward token mint.
func (e *Engine) FarmMint() common.Address { return e.farmMint }

// InitParams are the caller-supplied pool parameters.
type InitParams struct {
	Admin             common.Address
	TokenMint         common.Address
	RewardCoefficient uint64
	MaxDepositPerUser uint64
	TotalMaxLiquidity uint64
	AdvanceBaseline   bool // move LastUpdate forward after every stake
}

// StakeParams are the arguments of a stake.
type StakeParams struct {
	Amount       uint64
	AutoCompound bool
	Lockup       *uint64 // seconds; nil leaves UnlockTime unchanged
}

// Transition is the result of a successful operation.
type Transition struct {
	Pool     model.Pool
	Position model.Position
	Ops      []token.Op
	Event    model.Event
	Reward   uint64
	Fee      uint64
	Net      uint64
}

// InitializePool builds a fresh pool record. The ID is derived from the
// mint, so a mint can back at most one pool.
func (e *Engine) InitializePool(p InitParams, now int64) (model.Pool, model.Event) {
	id := authority.PoolAddress(p.TokenMint)
	pool := model.Pool{
		ID:                id,
		Admin:             p.Admin,
		TokenMint:         p.TokenMint,
		Vault:             authority.TokenAccount(authority.PoolSigner(id), p.TokenMint),
		RewardCoefficient: p.RewardCoefficient,
		FeeRate:           model.DefaultFeeRate,
		LastUpdate:        now,
		AdvanceBaseline:   p.AdvanceBaseline,
		MaxDepositPerUser: p.MaxDepositPerUser,
		TotalMaxLiquidity: p.TotalMaxLiquidity,
	}
	ev := model.Event{
		Kind:        model.EventPoolInitialized,
		Pool:        id,
		Mint:        p.TokenMint,
		Coefficient: p.RewardCoefficient,
		Timestamp:   now,
	}
	return pool, ev
}

// Stake admits amount into the caller's position.
func (e *Engine) Stake(pool model.Pool, pos model.Position, p StakeParams, auth authority.Capability, now int64) (*Transition, error) {
	user := auth.Caller
	if err := checkOwnership(pool, pos, user); err != nil {
		return nil, err
	}
	if pool.IsPaused {
		return nil, ErrPoolPaused
	}
	if !fitsWithin(pool.TotalLiquidity, p.Amount, pool.TotalMaxLiquidity) {
		return nil, ErrPoolLiquidityExceeded
	}
	if !fitsWithin(pos.Amount, p.Amount, pool.MaxDepositPerUser) {
		return nil, ErrUserDepositLimitExceeded
	}
	if !p.AutoCompound && auth.MintAuthority != authority.FarmMintAuthority() {
		return nil, fmt.Errorf("%w: got %s", ErrInvalidAuthority, auth.MintAuthority.Hex())
	}

	var err error
	pos.Amount += p.Amount
	pos.StakeTime = now
	if p.Lockup != nil {
		if pos.UnlockTime, err = unlockAt(now, *p.Lockup); err != nil {
			return nil, err
		}
	}
	pool.TotalLiquidity += p.Amount

	// Reward uses the updated position against the pool baseline.
	amount, err := reward.Boosted(pos.Amount, pos.StakeTime, pool.LastUpdate, pool.RewardCoefficient)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrArithmeticOverflow, err)
	}

	ops := []token.Op{
		token.Transfer(authority.TokenAccount(user, pool.TokenMint), pool.Vault, user, p.Amount),
	}
	if p.AutoCompound {
		if pos.Amount, err = addU64(pos.Amount, amount, "compound position"); err != nil {
			return nil, err
		}
		if pool.TotalCompounded, err = addU64(pool.TotalCompounded, amount, "total compounded"); err != nil {
			return nil, err
		}
	} else {
		ops = append(ops, token.MintTo(e.farmMint, authority.TokenAccount(user, e.farmMint), auth.MintAuthority, amount))
	}

	if pool.TotalRewardsDistributed, err = addU64(pool.TotalRewardsDistributed, amount, "rewards distributed"); err != nil {
		return nil, err
	}

	if pos.Amount > pool.TopStakerAmount {
		pool.TopStaker = user
		pool.TopStakerAmount = pos.Amount
	}
	if pool.AdvanceBaseline {
		pool.LastUpdate = now
	}

	return &Transition{
		Pool:     pool,
		Position: pos,
		Ops:      ops,
		Reward:   amount,
		Event: model.Event{
			Kind:      model.EventStaked,
			Pool:      pool.ID,
			User:      user,
			Amount:    p.Amount,
			Reward:    amount,
			Timestamp: now,
		},
	}, nil
}

// Withdraw removes amount from the caller's position, paying the fee to the
// treasury and the rest to the user.
func (e *Engine) Withdraw(pool model.Pool, pos model.Position, amount uint64, user common.Address, now int64) (*Transition, error) {
	if err := checkOwnership(pool, pos, user); err != nil {
		return nil, err
	}
	if pool.IsPaused {
		return nil, ErrPoolPaused
	}
	if now < pos.UnlockTime {
		return nil, fmt.Errorf("%w: unlocks at %d, now %d", ErrStillLocked, pos.UnlockTime, now)
	}
	if pos.Amount < amount {
		return nil, fmt.Errorf("%w: have %d, requested %d", ErrInsufficientFunds, pos.Amount, amount)
	}

	fee, err := percentOf(amount, pool.FeeRate)
	if err != nil {
		return nil, err
	}
	net := amount - fee

	pos.Amount -= amount
	if pool.TotalLiquidity, err = subU64(pool.TotalLiquidity, amount, "total liquidity"); err != nil {
		return nil, err
	}
	if pool.TotalFeesCollected, err = addU64(pool.TotalFeesCollected, fee, "fees collected"); err != nil {
		return nil, err
	}

	signer := authority.PoolSigner(pool.ID)
	ops := []token.Op{
		token.Transfer(pool.Vault, authority.TokenAccount(e.treasury, pool.TokenMint), signer, fee),
		token.Transfer(pool.Vault, authority.TokenAccount(user, pool.TokenMint), signer, net),
	}

	return &Transition{
		Pool:     pool,
		Position: pos,
		Ops:      ops,
		Fee:      fee,
		Net:      net,
		Event: model.Event{
			Kind:      model.EventWithdrawn,
			Pool:      pool.ID,
			User:      user,
			Amount:    amount,
			Fee:       fee,
			Timestamp: now,
		},
	}, nil
}

// TogglePause flips the circuit breaker. Only the pool admin may call it;
// a pool without an admin can never be paused.
func (e *Engine) TogglePause(pool model.Pool, caller common.Address) (model.Pool, error) {
	if caller == (common.Address{}) || caller != pool.Admin {
		return pool, ErrUnauthorized
	}
	pool.IsPaused = !pool.IsPaused
	return pool, nil
}

func checkOwnership(pool model.Pool, pos model.Position, user common.Address) error {
	if pos.Pool != pool.ID || pos.Owner != user {
		return ErrPositionMismatch
	}
	return nil
}
