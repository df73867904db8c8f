// =============================
// File: internal/curve/state.go
// =============================
package curve

import (
	"fmt"
	"math"
)

// Standard decimals for SOL and Pump.fun tokens.
const (
	BaseDecimals  = 9
	QuoteDecimals = 6
)

// ReserveState is one token's curve. Base is the deposited asset (SOL),
// quote is the issued token.
type ReserveState struct {
	VirtualBaseReserves  uint64 `json:"virtual_base_reserves"`
	VirtualQuoteReserves uint64 `json:"virtual_quote_reserves"`
	RealBaseReserves     uint64 `json:"real_base_reserves"`
	RealQuoteReserves    uint64 `json:"real_quote_reserves"`
	TotalSupply          uint64 `json:"total_supply"`
	Complete             bool   `json:"complete"`
}

// Validate checks the structural invariants of a snapshot. allocationBps is the
// share of total supply minted into the curve; zero skips the allocation check.
func (s ReserveState) Validate(allocationBps uint16) error {
	if s.VirtualBaseReserves == 0 || s.VirtualQuoteReserves == 0 {
		return fmt.Errorf("%w: base=%d quote=%d", ErrDegenerateReserves,
			s.VirtualBaseReserves, s.VirtualQuoteReserves)
	}
	if allocationBps == 0 {
		return nil
	}

	// real_quote * 10000 <= total_supply * allocation
	owed := product(s.RealQuoteReserves, BasisPoints)
	minted := product(s.TotalSupply, uint64(allocationBps))
	if owed.Gt(minted) {
		return fmt.Errorf("%w: curve owes %d tokens, only %d bps of %d were minted into it",
			ErrInsufficientReserves, s.RealQuoteReserves, allocationBps, s.TotalSupply)
	}
	return nil
}

// SpotPrice returns the current price in SOL per whole token. Display only.
func (s ReserveState) SpotPrice() float64 {
	if s.VirtualQuoteReserves == 0 {
		return 0
	}
	base := float64(s.VirtualBaseReserves) / math.Pow10(BaseDecimals)
	quote := float64(s.VirtualQuoteReserves) / math.Pow10(QuoteDecimals)
	return base / quote
}

// Direction is the side of a trade.
type Direction uint8

const (
	Buy Direction = iota
	Sell
)

func (d Direction) String() string {
	switch d {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	default:
		return fmt.Sprintf("direction(%d)", uint8(d))
	}
}

// ParseDirection parses "buy" or "sell".
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "buy":
		return Buy, nil
	case "sell":
		return Sell, nil
	default:
		return 0, fmt.Errorf("unknown trade direction %q", s)
	}
}

// TradeRequest is an ephemeral trade intent. ExpectedOutput is the output of an
// earlier quote; zero means the caller has no reference quote.
type TradeRequest struct {
	Direction            Direction
	InputAmount          uint64
	SlippageToleranceBps uint16
	ExpectedOutput       uint64
}

// TradeOutcome is the result of a simulation.
type TradeOutcome struct {
	Direction      Direction    `json:"direction"`
	InputAmount    uint64       `json:"input_amount"`
	OutputAmount   uint64       `json:"output_amount"`
	FeeAmount      uint64       `json:"fee_amount"`
	NewState       ReserveState `json:"new_state"`
	PriceImpactBps int32        `json:"price_impact_bps"`
}
