// Package token provides the asset transfer and mint capability the farm
// issues its external effects through.
//
// A Bank applies a batch of operations all-or-nothing: either every
// transfer and mint in the batch is visible afterwards, or none is.
package token

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrInvalidAuthority is returned when an op's authority does not own
	// the source account (transfer) or control the mint (mint).
	ErrInvalidAuthority = errors.New("token: invalid authority")

	// ErrInsufficientBalance is returned when a transfer exceeds the
	// source balance.
	ErrInsufficientBalance = errors.New("token: insufficient balance")

	// ErrUnknownAccount is returned for ops naming an account never opened.
	ErrUnknownAccount = errors.New("token: unknown account")

	// ErrUnknownMint is returned when minting against an unregistered mint.
	ErrUnknownMint = errors.New("token: unknown mint")

	// ErrMintMismatch is returned when an op moves value between accounts
	// of different mints.
	ErrMintMismatch = errors.New("token: account mint mismatch")

	// ErrAccountConflict is returned when an account is reopened with a
	// different owner or mint.
	ErrAccountConflict = errors.New("token: account already opened with different owner or mint")

	// ErrBalanceOverflow is returned when a credit would overflow uint64.
	ErrBalanceOverflow = errors.New("token: balance overflow")
)

// Op kinds.
const (
	KindTransfer = "transfer"
	KindMint     = "mint"
)

// Op is one transfer or mint inside a batch.
type Op struct {
	Kind      string         `json:"kind"`
	Mint      common.Address `json:"mint,omitempty"` // mint ops only
	From      common.Address `json:"from,omitempty"` // transfer ops only
	To        common.Address `json:"to"`
	Authority common.Address `json:"authority"`
	Amount    uint64         `json:"amount"`
}

// Transfer moves amount between two accounts of the same mint, authorized
// by the owner of from.
func Transfer(from, to, authority common.Address, amount uint64) Op {
	return Op{Kind: KindTransfer, From: from, To: to, Authority: authority, Amount: amount}
}

// MintTo creates amount new units of mint in account to.
func MintTo(mint, to, authority common.Address, amount uint64) Op {
	return Op{Kind: KindMint, Mint: mint, To: to, Authority: authority, Amount: amount}
}

func (o Op) String() string {
	if o.Kind == KindMint {
		return fmt.Sprintf("mint %d of %s to %s", o.Amount, o.Mint.Hex(), o.To.Hex())
	}
	return fmt.Sprintf("transfer %d from %s to %s", o.Amount, o.From.Hex(), o.To.Hex())
}

// Bank is the external asset capability.
type Bank interface {
	// Open registers a token account for owner and mint. Reopening with
	// the same owner and mint is a no-op.
	Open(ctx context.Context, account, owner, mint common.Address) error

	// Apply executes every op or none.
	Apply(ctx context.Context, ops ...Op) error

	// Revert undoes a batch previously returned successfully from Apply.
	Revert(ctx context.Context, ops ...Op) error

	// Balance returns the balance of an account (0 if never opened).
	Balance(ctx context.Context, account common.Address) (uint64, error)
}

// Funder credits accounts out of band. Only development banks implement it.
type Funder interface {
	Fund(ctx context.Context, account common.Address, amount uint64) error
}
