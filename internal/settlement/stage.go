package settlement

import (
	"errors"
	"fmt"

	"github.com/rovshanmuradov/pumpcurve/internal/curve"
)

// Stage is a step of the settlement state machine.
type Stage uint8

const (
	StageFetching Stage = iota
	StageSimulating
	StageValidating
	StageReady
	StageRejected
)

func (s Stage) String() string {
	switch s {
	case StageFetching:
		return "fetching"
	case StageSimulating:
		return "simulating"
	case StageValidating:
		return "validating"
	case StageReady:
		return "ready"
	case StageRejected:
		return "rejected"
	default:
		return fmt.Sprintf("stage(%d)", uint8(s))
	}
}

// RejectionError is returned when a settlement stops before Ready. Stage is the
// step that failed; Err unwraps to a curve sentinel.
type RejectionError struct {
	Stage   Stage
	TokenID string
	Err     error
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("settlement of %s rejected while %s: %v", e.TokenID, e.Stage, e.Err)
}

func (e *RejectionError) Unwrap() error {
	return e.Err
}

// Reason maps an error to a short label for metrics and journals.
func Reason(err error) string {
	switch {
	case err == nil:
		return "ready"
	case errors.Is(err, curve.ErrStateUnavailable):
		return "state_unavailable"
	case errors.Is(err, curve.ErrCurveClosed):
		return "curve_closed"
	case errors.Is(err, curve.ErrInsufficientLiquidity):
		return "insufficient_liquidity"
	case errors.Is(err, curve.ErrSlippageExceeded):
		return "slippage_exceeded"
	case errors.Is(err, curve.ErrBelowMinimum):
		return "below_minimum"
	case errors.Is(err, curve.ErrZeroAmount), errors.Is(err, curve.ErrZeroOutput):
		return "zero_amount"
	case errors.Is(err, curve.ErrArithmeticOverflow):
		return "overflow"
	case errors.Is(err, curve.ErrInvalidFee), errors.Is(err, curve.ErrInvalidSlippage):
		return "invalid_parameters"
	case errors.Is(err, curve.ErrDegenerateReserves), errors.Is(err, curve.ErrInsufficientReserves):
		return "invalid_state"
	default:
		return "other"
	}
}
