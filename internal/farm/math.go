package farm

import (
	"fmt"
	"math"

	"github.com/holiman/uint256"
)

func addU64(a, b uint64, what string) (uint64, error) {
	if a > math.MaxUint64-b {
		return 0, fmt.Errorf("%w: %s %d + %d", ErrArithmeticOverflow, what, a, b)
	}
	return a + b, nil
}

func subU64(a, b uint64, what string) (uint64, error) {
	if b > a {
		return 0, fmt.Errorf("%w: %s %d - %d", ErrArithmeticOverflow, what, a, b)
	}
	return a - b, nil
}

// fitsWithin reports whether a + b <= limit without overflowing.
func fitsWithin(a, b, limit uint64) bool {
	return a <= limit && b <= limit-a
}

// percentOf returns amount * rate / 100, rounded down.
func percentOf(amount, rate uint64) (uint64, error) {
	v := new(uint256.Int).Mul(uint256.NewInt(amount), uint256.NewInt(rate))
	v.Div(v, uint256.NewInt(100))
	if !v.IsUint64() {
		return 0, fmt.Errorf("%w: fee on %d at %d%%", ErrArithmeticOverflow, amount, rate)
	}
	return v.Uint64(), nil
}

// unlockAt returns now + lockup seconds.
func unlockAt(now int64, lockup uint64) (int64, error) {
	if now < 0 || lockup > uint64(math.MaxInt64-now) {
		return 0, fmt.Errorf("%w: unlock time %d + %d", ErrArithmeticOverflow, now, lockup)
	}
	return now + int64(lockup), nil
}
