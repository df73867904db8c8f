// =============================
// File: internal/curve/errors.go
// =============================
package curve

import (
	"errors"
	"fmt"
)

var (
	// ErrArithmeticOverflow is returned when an intermediate or final value leaves the u64 domain.
	ErrArithmeticOverflow = errors.New("arithmetic overflow")

	// ErrInsufficientReserves is returned by CheckedSub when the subtrahend is larger.
	ErrInsufficientReserves = errors.New("insufficient reserves")

	// ErrInsufficientLiquidity is returned when the real pool cannot serve the trade.
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")

	// ErrCurveClosed is returned for any trade on a graduated curve.
	ErrCurveClosed = errors.New("bonding curve is complete")

	// ErrZeroAmount is returned for a zero trade input.
	ErrZeroAmount = errors.New("trade amount is zero")

	// ErrZeroOutput is returned when a trade is too small to move any units out of the curve.
	ErrZeroOutput = errors.New("trade produces zero output")

	// ErrSlippageExceeded is returned when a simulated outcome violates the caller's bound.
	ErrSlippageExceeded = errors.New("slippage exceeded")

	// ErrStateUnavailable is returned when the reserve state could not be fetched.
	ErrStateUnavailable = errors.New("reserve state unavailable")

	// ErrInvalidFee is returned for a fee above 10000 basis points.
	ErrInvalidFee = errors.New("fee basis points out of range")

	// ErrInvalidSlippage is returned for a slippage tolerance above 10000 basis points.
	ErrInvalidSlippage = errors.New("slippage tolerance out of range")

	// ErrDegenerateReserves is returned when a virtual reserve is zero.
	ErrDegenerateReserves = errors.New("virtual reserves must be positive")

	// ErrBelowMinimum is returned when a trade or a supply is below a configured minimum.
	ErrBelowMinimum = errors.New("amount below minimum")
)

// LiquidityError reports a buy the real pool cannot serve together with the
// largest input it still can.
type LiquidityError struct {
	Requested   uint64
	MaxInput    uint64
	Available   uint64
	WouldRemove uint64
}

func (e *LiquidityError) Error() string {
	return fmt.Sprintf("%v: trade needs %d units but pool holds %d (max input %d, requested %d)",
		ErrInsufficientLiquidity, e.WouldRemove, e.Available, e.MaxInput, e.Requested)
}

func (e *LiquidityError) Unwrap() error {
	return ErrInsufficientLiquidity
}
