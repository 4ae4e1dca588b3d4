package token

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

type account struct {
	owner   common.Address
	mint    common.Address
	balance uint64
}

type mintInfo struct {
	authority common.Address
	supply    uint64
}

// MemoryBank implements Bank with in-memory maps. Used for testing and
// development; balances do not persist.
type MemoryBank struct {
	mu       sync.Mutex
	accounts map[common.Address]*account
	mints    map[common.Address]*mintInfo
}

// NewMemoryBank creates an empty bank.
func NewMemoryBank() *MemoryBank {
	return &MemoryBank{
		accounts: make(map[common.Address]*account),
		mints:    make(map[common.Address]*mintInfo),
	}
}

// CreateMint registers a mint controlled by authority.
func (b *MemoryBank) CreateMint(mint, authority common.Address) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.mints[mint]; !ok {
		b.mints[mint] = &mintInfo{authority: authority}
	}
}

// Supply returns the total units minted by a mint.
func (b *MemoryBank) Supply(mint common.Address) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if m, ok := b.mints[mint]; ok {
		return m.supply
	}
	return 0
}

func (b *MemoryBank) Open(_ context.Context, acct, owner, mint common.Address) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if existing, ok := b.accounts[acct]; ok {
		if existing.owner != owner || existing.mint != mint {
			return fmt.Errorf("%w: %s", ErrAccountConflict, acct.Hex())
		}
		return nil
	}
	b.accounts[acct] = &account{owner: owner, mint: mint}
	return nil
}

func (b *MemoryBank) Balance(_ context.Context, acct common.Address) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if a, ok := b.accounts[acct]; ok {
		return a.balance, nil
	}
	return 0, nil
}

// Fund credits an opened account without a source. Development only.
func (b *MemoryBank) Fund(_ context.Context, acct common.Address, amount uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	a, ok := b.accounts[acct]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAccount, acct.Hex())
	}
	if a.balance > math.MaxUint64-amount {
		return ErrBalanceOverflow
	}
	a.balance += amount
	return nil
}

// kindBurn removes units from an account and the mint supply. Only
// produced internally by Revert.
const kindBurn = "burn"

// Apply validates the whole batch against a scratch copy of the touched
// balances and only then commits it.
func (b *MemoryBank) Apply(_ context.Context, ops ...Op) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.applyLocked(ops, true)
}

// Revert applies the inverse of ops in reverse order. Authority is not
// rechecked: the batch was already authorized when applied.
func (b *MemoryBank) Revert(_ context.Context, ops ...Op) error {
	inverse := make([]Op, 0, len(ops))
	for i := len(ops) - 1; i >= 0; i-- {
		op := ops[i]
		switch op.Kind {
		case KindTransfer:
			inverse = append(inverse, Op{Kind: KindTransfer, From: op.To, To: op.From, Amount: op.Amount})
		case KindMint:
			inverse = append(inverse, Op{Kind: kindBurn, Mint: op.Mint, From: op.To, Amount: op.Amount})
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.applyLocked(inverse, false); err != nil {
		return fmt.Errorf("revert: %w", err)
	}
	return nil
}

func (b *MemoryBank) applyLocked(ops []Op, authorize bool) error {
	balances := make(map[common.Address]uint64)
	supplies := make(map[common.Address]uint64)
	bal := func(addr common.Address) uint64 {
		if v, ok := balances[addr]; ok {
			return v
		}
		return b.accounts[addr].balance
	}
	sup := func(mint common.Address) uint64 {
		if v, ok := supplies[mint]; ok {
			return v
		}
		return b.mints[mint].supply
	}

	for i, op := range ops {
		switch op.Kind {
		case KindTransfer:
			from, ok := b.accounts[op.From]
			if !ok {
				return fmt.Errorf("op %d: %w: %s", i, ErrUnknownAccount, op.From.Hex())
			}
			to, ok := b.accounts[op.To]
			if !ok {
				return fmt.Errorf("op %d: %w: %s", i, ErrUnknownAccount, op.To.Hex())
			}
			if authorize && from.owner != op.Authority {
				return fmt.Errorf("op %d: %w: %s does not own %s", i, ErrInvalidAuthority, op.Authority.Hex(), op.From.Hex())
			}
			if from.mint != to.mint {
				return fmt.Errorf("op %d: %w", i, ErrMintMismatch)
			}
			if bal(op.From) < op.Amount {
				return fmt.Errorf("op %d: %w: %s has %d, needs %d", i, ErrInsufficientBalance, op.From.Hex(), bal(op.From), op.Amount)
			}
			balances[op.From] = bal(op.From) - op.Amount
			if bal(op.To) > math.MaxUint64-op.Amount {
				return fmt.Errorf("op %d: %w", i, ErrBalanceOverflow)
			}
			balances[op.To] = bal(op.To) + op.Amount

		case KindMint:
			m, ok := b.mints[op.Mint]
			if !ok {
				return fmt.Errorf("op %d: %w: %s", i, ErrUnknownMint, op.Mint.Hex())
			}
			to, ok := b.accounts[op.To]
			if !ok {
				return fmt.Errorf("op %d: %w: %s", i, ErrUnknownAccount, op.To.Hex())
			}
			if authorize && m.authority != op.Authority {
				return fmt.Errorf("op %d: %w: %s is not the mint authority", i, ErrInvalidAuthority, op.Authority.Hex())
			}
			if to.mint != op.Mint {
				return fmt.Errorf("op %d: %w", i, ErrMintMismatch)
			}
			if bal(op.To) > math.MaxUint64-op.Amount || sup(op.Mint) > math.MaxUint64-op.Amount {
				return fmt.Errorf("op %d: %w", i, ErrBalanceOverflow)
			}
			balances[op.To] = bal(op.To) + op.Amount
			supplies[op.Mint] = sup(op.Mint) + op.Amount

		case kindBurn:
			if _, ok := b.accounts[op.From]; !ok {
				return fmt.Errorf("op %d: %w: %s", i, ErrUnknownAccount, op.From.Hex())
			}
			if _, ok := b.mints[op.Mint]; !ok {
				return fmt.Errorf("op %d: %w: %s", i, ErrUnknownMint, op.Mint.Hex())
			}
			if bal(op.From) < op.Amount || sup(op.Mint) < op.Amount {
				return fmt.Errorf("op %d: %w", i, ErrInsufficientBalance)
			}
			balances[op.From] = bal(op.From) - op.Amount
			supplies[op.Mint] = sup(op.Mint) - op.Amount

		default:
			return fmt.Errorf("op %d: unknown kind %q", i, op.Kind)
		}
	}

	for addr, v := range balances {
		b.accounts[addr].balance = v
	}
	for mint, v := range supplies {
		b.mints[mint].supply = v
	}
	return nil
}
