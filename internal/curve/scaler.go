package curve

import "fmt"

// DefaultCurve holds the canonical curve every token is scaled from.
type DefaultCurve struct {
	VirtualBaseReserves  uint64 `mapstructure:"virtual_base_reserves"`
	VirtualQuoteReserves uint64 `mapstructure:"virtual_quote_reserves"`
	TotalSupply          uint64 `mapstructure:"total_supply"`
	CurveAllocationBps   uint16 `mapstructure:"curve_allocation_bps"`
}

// Pump.fun launch parameters.
const (
	DefaultVirtualBaseReserves  uint64 = 30_000_000_000
	DefaultVirtualQuoteReserves uint64 = 1_073_000_000_000_000
	DefaultTotalSupply          uint64 = 1_000_000_000_000_000
	DefaultCurveAllocationBps   uint16 = 7931
	DefaultFeeBps               uint16 = 100

	// DefaultMinTotalSupply is 100,000 whole tokens.
	DefaultMinTotalSupply uint64 = 100_000_000_000
)

// PumpFunDefaultCurve returns the program's launch curve.
func PumpFunDefaultCurve() DefaultCurve {
	return DefaultCurve{
		VirtualBaseReserves:  DefaultVirtualBaseReserves,
		VirtualQuoteReserves: DefaultVirtualQuoteReserves,
		TotalSupply:          DefaultTotalSupply,
		CurveAllocationBps:   DefaultCurveAllocationBps,
	}
}

// InitialRealQuoteReserves is the number of tokens the default curve starts with.
func (dc DefaultCurve) InitialRealQuoteReserves() (uint64, error) {
	return MulDiv(dc.TotalSupply, uint64(dc.CurveAllocationBps), BasisPoints)
}

// Validate checks the constants are usable for scaling.
func (dc DefaultCurve) Validate() error {
	if dc.VirtualBaseReserves == 0 || dc.VirtualQuoteReserves == 0 {
		return fmt.Errorf("%w: default curve", ErrDegenerateReserves)
	}
	if dc.TotalSupply == 0 {
		return fmt.Errorf("default curve total supply is zero")
	}
	if dc.CurveAllocationBps == 0 || dc.CurveAllocationBps > BasisPoints {
		return fmt.Errorf("curve allocation %d bps out of range", dc.CurveAllocationBps)
	}
	return nil
}

// Derive scales the default curve to totalSupply. The virtual base reserve is
// not scaled: seed liquidity is the same for every token. Business minimums are
// the caller's concern, see ValidateTotalSupply.
func Derive(totalSupply uint64, dc DefaultCurve) (ReserveState, error) {
	if err := dc.Validate(); err != nil {
		return ReserveState{}, err
	}

	virtualQuote, err := MulDiv(dc.VirtualQuoteReserves, totalSupply, dc.TotalSupply)
	if err != nil {
		return ReserveState{}, fmt.Errorf("scale virtual quote reserves: %w", err)
	}
	realQuote, err := MulDiv(totalSupply, uint64(dc.CurveAllocationBps), BasisPoints)
	if err != nil {
		return ReserveState{}, fmt.Errorf("scale real quote reserves: %w", err)
	}
	if virtualQuote == 0 {
		return ReserveState{}, fmt.Errorf("%w: total supply %d scales virtual quote to zero",
			ErrDegenerateReserves, totalSupply)
	}

	return ReserveState{
		VirtualBaseReserves:  dc.VirtualBaseReserves,
		VirtualQuoteReserves: virtualQuote,
		RealBaseReserves:     0,
		RealQuoteReserves:    realQuote,
		TotalSupply:          totalSupply,
		Complete:             false,
	}, nil
}

// ScalingFactor is totalSupply relative to the default supply, for display.
func ScalingFactor(totalSupply uint64, dc DefaultCurve) float64 {
	if dc.TotalSupply == 0 {
		return 0
	}
	return float64(totalSupply) / float64(dc.TotalSupply)
}

// ValidateTotalSupply rejects supplies below the platform minimum.
func ValidateTotalSupply(totalSupply, minimum uint64) error {
	if totalSupply < minimum {
		return fmt.Errorf("%w: total supply %d < %d", ErrBelowMinimum, totalSupply, minimum)
	}
	return nil
}
