// =============================
// File: internal/curve/simulator.go
// =============================
package curve

import (
	"fmt"
	"math"

	"github.com/holiman/uint256"
)

// SimulateBuy computes the outcome of depositing baseIn into the curve.
// The fee is taken from the input before the constant-product step.
func SimulateBuy(state ReserveState, baseIn uint64, feeBps uint16) (TradeOutcome, error) {
	outcome, err := buyStep(state, baseIn, feeBps)
	if err == errPoolExhausted {
		return TradeOutcome{}, &LiquidityError{
			Requested:   baseIn,
			MaxInput:    MaxBuyInput(state, feeBps),
			Available:   state.RealQuoteReserves,
			WouldRemove: outcome.OutputAmount,
		}
	}
	if err != nil {
		return TradeOutcome{}, err
	}
	return outcome, nil
}

// SimulateSell computes the outcome of returning quoteIn tokens to the curve.
// The constant-product step runs on the full input; the fee is taken from the
// proceeds.
func SimulateSell(state ReserveState, quoteIn uint64, feeBps uint16) (TradeOutcome, error) {
	if err := precheck(state, quoteIn, feeBps); err != nil {
		return TradeOutcome{}, err
	}

	newVirtualQuote, err := CheckedAdd(state.VirtualQuoteReserves, quoteIn)
	if err != nil {
		return TradeOutcome{}, fmt.Errorf("virtual quote reserves: %w", err)
	}

	// floor(vb * q / (vq + q)); strictly below vb.
	grossOut, err := MulDiv(state.VirtualBaseReserves, quoteIn, newVirtualQuote)
	if err != nil {
		return TradeOutcome{}, err
	}
	if grossOut == 0 {
		return TradeOutcome{}, fmt.Errorf("%w: selling %d tokens", ErrZeroOutput, quoteIn)
	}
	if grossOut > state.RealBaseReserves {
		return TradeOutcome{}, fmt.Errorf("%w: sell needs %d base units, pool holds %d",
			ErrInsufficientLiquidity, grossOut, state.RealBaseReserves)
	}

	fee, err := feeOf(grossOut, feeBps)
	if err != nil {
		return TradeOutcome{}, err
	}
	newRealQuote, err := CheckedAdd(state.RealQuoteReserves, quoteIn)
	if err != nil {
		return TradeOutcome{}, fmt.Errorf("real quote reserves: %w", err)
	}

	next := state
	next.VirtualBaseReserves = state.VirtualBaseReserves - grossOut
	next.VirtualQuoteReserves = newVirtualQuote
	next.RealBaseReserves = state.RealBaseReserves - grossOut
	next.RealQuoteReserves = newRealQuote

	return TradeOutcome{
		Direction:      Sell,
		InputAmount:    quoteIn,
		OutputAmount:   grossOut - fee,
		FeeAmount:      fee,
		NewState:       next,
		PriceImpactBps: priceImpactBps(state, next),
	}, nil
}

// SimulateTrade dispatches on direction.
func SimulateTrade(state ReserveState, direction Direction, amount uint64, feeBps uint16) (TradeOutcome, error) {
	switch direction {
	case Buy:
		return SimulateBuy(state, amount, feeBps)
	case Sell:
		return SimulateSell(state, amount, feeBps)
	default:
		return TradeOutcome{}, fmt.Errorf("unknown trade direction %d", direction)
	}
}

// MaxBuyInput returns the largest base input whose token output the real pool
// can still serve. Zero on a closed or degenerate curve.
func MaxBuyInput(state ReserveState, feeBps uint16) uint64 {
	if state.Complete || state.VirtualBaseReserves == 0 || state.VirtualQuoteReserves == 0 || feeBps > BasisPoints {
		return 0
	}

	fits := func(baseIn uint64) bool {
		out, err := buyQuoteOut(state, baseIn, feeBps)
		return err == nil && out <= state.RealQuoteReserves
	}

	hi := math.MaxUint64 - state.VirtualBaseReserves
	if fits(hi) {
		return hi
	}

	// Output is non-decreasing in the input, so the fitting inputs form a prefix.
	var lo uint64
	for hi-lo > 1 {
		mid := lo + (hi-lo)/2
		if fits(mid) {
			lo = mid
		} else {
			hi = mid
		}
	}
	return lo
}

var errPoolExhausted = fmt.Errorf("%w: real token pool exhausted", ErrInsufficientLiquidity)

func buyStep(state ReserveState, baseIn uint64, feeBps uint16) (TradeOutcome, error) {
	if err := precheck(state, baseIn, feeBps); err != nil {
		return TradeOutcome{}, err
	}

	fee, err := feeOf(baseIn, feeBps)
	if err != nil {
		return TradeOutcome{}, err
	}
	netIn := baseIn - fee

	quoteOut, err := buyQuoteOut(state, baseIn, feeBps)
	if err != nil {
		return TradeOutcome{}, err
	}
	if quoteOut == 0 {
		return TradeOutcome{}, fmt.Errorf("%w: buying with %d base units", ErrZeroOutput, baseIn)
	}
	if quoteOut > state.RealQuoteReserves {
		return TradeOutcome{OutputAmount: quoteOut}, errPoolExhausted
	}

	newRealBase, err := CheckedAdd(state.RealBaseReserves, netIn)
	if err != nil {
		return TradeOutcome{}, fmt.Errorf("real base reserves: %w", err)
	}

	next := state
	next.VirtualBaseReserves = state.VirtualBaseReserves + netIn
	next.VirtualQuoteReserves = state.VirtualQuoteReserves - quoteOut
	next.RealBaseReserves = newRealBase
	next.RealQuoteReserves = state.RealQuoteReserves - quoteOut

	return TradeOutcome{
		Direction:      Buy,
		InputAmount:    baseIn,
		OutputAmount:   quoteOut,
		FeeAmount:      fee,
		NewState:       next,
		PriceImpactBps: priceImpactBps(state, next),
	}, nil
}

// buyQuoteOut is vq - k/(vb + net) with k = vb*vq over 256 bits.
func buyQuoteOut(state ReserveState, baseIn uint64, feeBps uint16) (uint64, error) {
	fee, err := feeOf(baseIn, feeBps)
	if err != nil {
		return 0, err
	}
	newVirtualBase, err := CheckedAdd(state.VirtualBaseReserves, baseIn-fee)
	if err != nil {
		return 0, fmt.Errorf("virtual base reserves: %w", err)
	}

	k := product(state.VirtualBaseReserves, state.VirtualQuoteReserves)
	newVirtualQuote := k.Div(k, uint256.NewInt(newVirtualBase))
	// newVirtualBase >= vb, so the quotient is at most vq.
	return state.VirtualQuoteReserves - newVirtualQuote.Uint64(), nil
}

func precheck(state ReserveState, amount uint64, feeBps uint16) error {
	if state.Complete {
		return ErrCurveClosed
	}
	if amount == 0 {
		return ErrZeroAmount
	}
	if feeBps > BasisPoints {
		return fmt.Errorf("%w: %d", ErrInvalidFee, feeBps)
	}
	if state.VirtualBaseReserves == 0 || state.VirtualQuoteReserves == 0 {
		return ErrDegenerateReserves
	}
	return nil
}

// priceImpactBps is the signed change of vb/vq in basis points:
// (vb'*vq - vb*vq') * 10000 / (vb*vq'), truncated toward zero.
func priceImpactBps(before, after ReserveState) int32 {
	num := product(after.VirtualBaseReserves, before.VirtualQuoteReserves)
	den := product(before.VirtualBaseReserves, after.VirtualQuoteReserves)
	if den.IsZero() {
		return 0
	}

	negative := num.Lt(den)
	diff := new(uint256.Int)
	if negative {
		diff.Sub(den, num)
	} else {
		diff.Sub(num, den)
	}
	diff.Mul(diff, uint256.NewInt(BasisPoints))
	diff.Div(diff, den)

	magnitude := int64(math.MaxInt32)
	if diff.IsUint64() && diff.Uint64() < math.MaxInt32 {
		magnitude = int64(diff.Uint64())
	}
	if negative {
		return int32(-magnitude)
	}
	return int32(magnitude)
}
