package farm

import "errors"

// Rejections. Each aborts the operation before any mutation.
var (
	ErrInsufficientFunds        = errors.New("farm: insufficient funds to withdraw")
	ErrInvalidAuthority         = errors.New("farm: invalid farm mint authority")
	ErrStillLocked              = errors.New("farm: stake is still locked")
	ErrPoolLiquidityExceeded    = errors.New("farm: pool liquidity limit exceeded")
	ErrUserDepositLimitExceeded = errors.New("farm: user deposit limit exceeded")
	ErrPoolPaused               = errors.New("farm: pool is currently paused")
	ErrUnauthorized             = errors.New("farm: unauthorized operation")

	// ErrPositionMismatch is returned when the position handed to an
	// operation does not belong to the calling user in this pool.
	ErrPositionMismatch = errors.New("farm: position does not belong to caller")
)

// ErrArithmeticOverflow is fatal: a balance or reward computation left the
// uint64 range. It is never retried and never wrapped around.
var ErrArithmeticOverflow = errors.New("farm: arithmetic overflow")

// IsRejection reports whether err is a precondition failure the caller can
// fix by changing inputs or waiting, as opposed to a fatal error.
func IsRejection(err error) bool {
	for _, target := range []error{
		ErrInsufficientFunds,
		ErrInvalidAuthority,
		ErrStillLocked,
		ErrPoolLiquidityExceeded,
		ErrUserDepositLimitExceeded,
		ErrPoolPaused,
		ErrUnauthorized,
		ErrPositionMismatch,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
