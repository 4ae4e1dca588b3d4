// Package reward implements the boosted staking reward formula.
//
// The reward grows with both the time elapsed since the pool baseline and
// the size of the stake:
//
//	time multiplier   = 100 + elapsed / 86400   (+1 per full day)
//	amount multiplier = 100 + amount / 1000     (+1 per 1000 units)
//	reward            = amount * time * size * coefficient / 10000
//
// The four-factor product routinely exceeds 64 bits before the final
// division, so it is evaluated in 256-bit arithmetic. A result that does
// not fit back into uint64 is an error, never a wrapped value.
package reward

import (
	"errors"

	"github.com/holiman/uint256"
)

const (
	// SecondsPerDay is the time-multiplier step.
	SecondsPerDay = 86400

	// AmountStep is the stake size that adds one unit to the amount multiplier.
	AmountStep = 1000

	// MultiplierBase is the neutral multiplier (100 = 1.00x).
	MultiplierBase = 100

	// Scale undoes the two percent scalings (100 * 100).
	Scale = MultiplierBase * MultiplierBase
)

// ErrOverflow is returned when the reward does not fit in 64 bits.
var ErrOverflow = errors.New("reward: result overflows uint64")

var scale = uint256.NewInt(Scale)

// Multipliers returns the time and amount multipliers for a stake. Stakes
// recorded before the baseline are clamped to zero elapsed time.
func Multipliers(amount uint64, stakeTime, lastUpdate int64) (timeMul, amountMul uint64) {
	var elapsed uint64
	if stakeTime > lastUpdate {
		elapsed = uint64(stakeTime - lastUpdate)
	}
	return MultiplierBase + elapsed/SecondsPerDay, MultiplierBase + amount/AmountStep
}

// Boosted computes the reward for a position of the given amount staked at
// stakeTime against the pool baseline lastUpdate.
func Boosted(amount uint64, stakeTime, lastUpdate int64, coefficient uint64) (uint64, error) {
	timeMul, amountMul := Multipliers(amount, stakeTime, lastUpdate)

	// Four uint64 factors always fit in 256 bits; only the quotient can overflow.
	product := new(uint256.Int).Mul(uint256.NewInt(amount), uint256.NewInt(timeMul))
	product.Mul(product, uint256.NewInt(amountMul))
	product.Mul(product, uint256.NewInt(coefficient))
	product.Div(product, scale)

	if !product.IsUint64() {
		return 0, ErrOverflow
	}
	return product.Uint64(), nil
}
