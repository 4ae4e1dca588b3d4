// Package model defines the core records shared across the yield farm.
// All balances are whole token units held in uint64; never float64 for money.
package model

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// DefaultFeeRate is the withdrawal fee percentage assigned at pool creation.
const DefaultFeeRate uint64 = 2

// Pool is the singleton staking pool for one token mint.
type Pool struct {
	ID                      common.Address `json:"id" db:"id"`
	Admin                   common.Address `json:"admin" db:"admin"`
	TokenMint               common.Address `json:"token_mint" db:"token_mint"`
	Vault                   common.Address `json:"vault" db:"vault"` // token account holding pooled liquidity
	TotalLiquidity          uint64         `json:"total_liquidity" db:"total_liquidity"`
	RewardCoefficient       uint64         `json:"reward_coefficient" db:"reward_coefficient"`
	FeeRate                 uint64         `json:"fee_rate" db:"fee_rate"`       // percent
	LastUpdate              int64          `json:"last_update" db:"last_update"` // unix seconds
	AdvanceBaseline         bool           `json:"advance_baseline" db:"advance_baseline"`
	TopStaker               common.Address `json:"top_staker" db:"top_staker"`
	TopStakerAmount         uint64         `json:"top_staker_amount" db:"top_staker_amount"`
	TotalRewardsDistributed uint64         `json:"total_rewards_distributed" db:"total_rewards_distributed"`
	TotalCompounded         uint64         `json:"total_compounded" db:"total_compounded"`
	TotalFeesCollected      uint64         `json:"total_fees_collected" db:"total_fees_collected"`
	MaxDepositPerUser       uint64         `json:"max_deposit_per_user" db:"max_deposit_per_user"`
	TotalMaxLiquidity       uint64         `json:"total_max_liquidity" db:"total_max_liquidity"`
	IsPaused                bool           `json:"is_paused" db:"is_paused"`
	CreatedAt               time.Time      `json:"created_at" db:"created_at"`
}

// Position is one user's stake in one pool. Its address is derived from
// the (pool, owner) pair, never supplied by the caller.
type Position struct {
	Pool       common.Address `json:"pool" db:"pool_id"`
	Owner      common.Address `json:"owner" db:"owner"`
	Amount     uint64         `json:"amount" db:"amount"`
	StakeTime  int64          `json:"stake_time" db:"stake_time"`
	UnlockTime int64          `json:"unlock_time" db:"unlock_time"` // 0 = no lockup
	Multiplier uint64         `json:"multiplier" db:"multiplier"`   // reserved
}

// Event kinds.
const (
	EventPoolInitialized = "pool_initialized"
	EventStaked          = "staked"
	EventWithdrawn       = "withdrawn"
)

// Event is an immutable notification emitted by a successful transition.
// Once recorded, events are never modified or deleted.
type Event struct {
	ID          string         `json:"id" db:"id"`
	Kind        string         `json:"kind" db:"kind"`
	Pool        common.Address `json:"pool" db:"pool_id"`
	User        common.Address `json:"user,omitempty" db:"user_addr"`
	Mint        common.Address `json:"mint,omitempty" db:"mint"`
	Coefficient uint64         `json:"coefficient,omitempty" db:"coefficient"`
	Amount      uint64         `json:"amount,omitempty" db:"amount"`
	Reward      uint64         `json:"reward,omitempty" db:"reward"`
	Fee         uint64         `json:"fee,omitempty" db:"fee"`
	Timestamp   int64          `json:"timestamp" db:"timestamp"`
}

// PoolSummary is a pool snapshot with derived ratios for API responses.
type PoolSummary struct {
	Pool
	Utilization decimal.Decimal `json:"utilization"` // percent of total_max_liquidity in use
}
