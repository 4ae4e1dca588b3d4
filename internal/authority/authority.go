// Package authority derives the deterministic addresses the farm operates on
// and verifies that a request was signed by the caller it claims to be.
//
// Every record address is a Keccak-256 hash of a fixed label and its seeds,
// truncated to 20 bytes. Callers never choose which record an operation
// mutates: the pool comes from its mint, the position from (pool, user).
package authority

import (
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Derivation labels.
const (
	labelPool          = "pool"
	labelPoolSigner    = "pool-signer"
	labelFarmMint      = "farm-mint"
	labelFarmMintToken = "farm-mint-token"
	labelPosition      = "position"
	labelTokenAccount  = "token-account"
)

var (
	// ErrBadSignature is returned when a signature is malformed or does not
	// recover to the claimed caller.
	ErrBadSignature = errors.New("authority: signature does not match caller")

	// ErrMissingCaller is returned when a request carries no caller identity.
	ErrMissingCaller = errors.New("authority: caller identity is required")
)

// Derive returns the address for a label and its seeds.
func Derive(label string, seeds ...[]byte) common.Address {
	parts := make([][]byte, 0, len(seeds)+1)
	parts = append(parts, []byte(label))
	parts = append(parts, seeds...)
	return common.BytesToAddress(crypto.Keccak256(parts...))
}

// PoolAddress is the pool record for a token mint.
func PoolAddress(mint common.Address) common.Address {
	return Derive(labelPool, mint.Bytes())
}

// PoolSigner is the authority that owns a pool's vault and signs its
// outbound transfers.
func PoolSigner(pool common.Address) common.Address {
	return Derive(labelPoolSigner, pool.Bytes())
}

// FarmMintAuthority is the only authority allowed to mint farm rewards.
func FarmMintAuthority() common.Address {
	return Derive(labelFarmMint)
}

// FarmMint is the default reward token mint.
func FarmMint() common.Address {
	return Derive(labelFarmMintToken)
}

// PositionAddress is the position record for a user in a pool.
func PositionAddress(pool, user common.Address) common.Address {
	return Derive(labelPosition, pool.Bytes(), user.Bytes())
}

// TokenAccount is the owner's balance account for a mint.
func TokenAccount(owner, mint common.Address) common.Address {
	return Derive(labelTokenAccount, owner.Bytes(), mint.Bytes())
}

// Capability is the explicit authorization passed into each operation in
// place of ambient lookups.
type Capability struct {
	Caller        common.Address // verified request signer
	MintAuthority common.Address // authority presented for reward minting
}

// Verifier authenticates a caller against a request payload.
type Verifier interface {
	Verify(caller common.Address, payload, sig []byte) error
}

// SignatureVerifier checks a 65-byte secp256k1 signature over the
// Keccak-256 hash of the payload.
type SignatureVerifier struct{}

// Verify recovers the signer of payload and compares it to caller.
func (SignatureVerifier) Verify(caller common.Address, payload, sig []byte) error {
	if caller == (common.Address{}) {
		return ErrMissingCaller
	}
	if len(sig) != crypto.SignatureLength {
		return fmt.Errorf("%w: want %d bytes, got %d", ErrBadSignature, crypto.SignatureLength, len(sig))
	}
	pub, err := crypto.SigToPub(crypto.Keccak256(payload), sig)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	if crypto.PubkeyToAddress(*pub) != caller {
		return ErrBadSignature
	}
	return nil
}

// TrustingVerifier accepts any non-empty caller. Development use only.
type TrustingVerifier struct{}

// Verify only checks that a caller was named.
func (TrustingVerifier) Verify(caller common.Address, _, _ []byte) error {
	if caller == (common.Address{}) {
		return ErrMissingCaller
	}
	return nil
}

// Sign produces the signature SignatureVerifier expects for payload.
func Sign(key *ecdsa.PrivateKey, payload []byte) ([]byte, error) {
	return crypto.Sign(crypto.Keccak256(payload), key)
}
