package curve

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// DefaultGraduationThreshold is the market cap, in the feed's unit currency,
// at which a curve migrates to an external pool.
var DefaultGraduationThreshold = decimal.NewFromInt(69_000)

// Evaluator decides whether a curve has reached its graduation market cap.
// It is informational: it never mutates a ReserveState.
type Evaluator struct {
	Threshold    decimal.Decimal
	BaseDecimals int32
}

// NewEvaluator returns an evaluator for SOL-denominated curves.
func NewEvaluator(threshold decimal.Decimal) Evaluator {
	return Evaluator{Threshold: threshold, BaseDecimals: BaseDecimals}
}

// MarketCap values the whole supply at the current curve price:
// vb * total_supply / vq whole base units, times the unit price of one base unit.
func (e Evaluator) MarketCap(state ReserveState, unitPrice decimal.Decimal) decimal.Decimal {
	if state.VirtualQuoteReserves == 0 {
		return decimal.Zero
	}

	numerator := fromUint64(state.VirtualBaseReserves).Mul(fromUint64(state.TotalSupply))
	baseUnits := numerator.Div(fromUint64(state.VirtualQuoteReserves))
	return baseUnits.Shift(-e.BaseDecimals).Mul(unitPrice)
}

// Evaluate reports whether the market cap is at or above the threshold.
func (e Evaluator) Evaluate(state ReserveState, unitPrice decimal.Decimal) bool {
	return e.MarketCap(state, unitPrice).GreaterThanOrEqual(e.Threshold)
}

// Progress returns the share of the curve's initial token allocation already
// sold, in percent.
func Progress(state ReserveState, initialRealQuote uint64) float64 {
	if initialRealQuote == 0 {
		return 0
	}
	if state.Complete || state.RealQuoteReserves == 0 {
		return 100
	}
	if state.RealQuoteReserves >= initialRealQuote {
		return 0
	}

	sold := fromUint64(initialRealQuote - state.RealQuoteReserves)
	pct := sold.Mul(decimal.NewFromInt(100)).Div(fromUint64(initialRealQuote))
	f, _ := pct.Float64()
	return f
}

func fromUint64(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
}
