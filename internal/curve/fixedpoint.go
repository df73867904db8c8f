// =============================
// File: internal/curve/fixedpoint.go
// =============================
package curve

import (
	"fmt"

	"github.com/holiman/uint256"
)

// BasisPoints is the denominator of every fee and tolerance.
const BasisPoints = 10_000

// MulDiv returns floor(a*b/c) computed over a 256-bit intermediate.
func MulDiv(a, b, c uint64) (uint64, error) {
	if c == 0 {
		return 0, fmt.Errorf("%w: division by zero in mul_div", ErrArithmeticOverflow)
	}

	product := new(uint256.Int).Mul(uint256.NewInt(a), uint256.NewInt(b))
	quotient := product.Div(product, uint256.NewInt(c))
	if !quotient.IsUint64() {
		return 0, fmt.Errorf("%w: %d*%d/%d", ErrArithmeticOverflow, a, b, c)
	}
	return quotient.Uint64(), nil
}

// CheckedSub returns a-b or ErrInsufficientReserves when b > a.
func CheckedSub(a, b uint64) (uint64, error) {
	if b > a {
		return 0, fmt.Errorf("%w: %d - %d", ErrInsufficientReserves, a, b)
	}
	return a - b, nil
}

// CheckedAdd returns a+b or ErrArithmeticOverflow on wrap.
func CheckedAdd(a, b uint64) (uint64, error) {
	sum := a + b
	if sum < a {
		return 0, fmt.Errorf("%w: %d + %d", ErrArithmeticOverflow, a, b)
	}
	return sum, nil
}

// product returns a*b as a 256-bit value. Two u64 factors always fit.
func product(a, b uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(a), uint256.NewInt(b))
}

// feeOf returns floor(amount*feeBps/10000).
func feeOf(amount uint64, feeBps uint16) (uint64, error) {
	if feeBps > BasisPoints {
		return 0, fmt.Errorf("%w: %d", ErrInvalidFee, feeBps)
	}
	return MulDiv(amount, uint64(feeBps), BasisPoints)
}
