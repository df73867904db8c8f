package curve

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarketCapOnDefaultCurve(t *testing.T) {
	state := defaultState(t)
	eval := NewEvaluator(DefaultGraduationThreshold)

	// 30 SOL * 1e9 tokens / 1.073e9 tokens
	capInSol, _ := eval.MarketCap(state, decimal.NewFromInt(1)).Float64()
	assert.InDelta(t, 27.958993476, capInSol, 1e-6)

	assert.False(t, eval.Evaluate(state, decimal.NewFromInt(150)))
	assert.True(t, eval.Evaluate(state, decimal.NewFromInt(2_500)))
}

func TestEvaluateCrossesThresholdAfterBuys(t *testing.T) {
	state := defaultState(t)
	eval := NewEvaluator(decimal.NewFromInt(69_000))
	price := decimal.NewFromInt(200)

	require.False(t, eval.Evaluate(state, price))

	graduated := false
	for i := 0; i < 40 && !graduated; i++ {
		outcome, err := SimulateBuy(state, 2_000_000_000, DefaultFeeBps)
		require.NoError(t, err)
		state = outcome.NewState
		graduated = eval.Evaluate(state, price)
	}
	assert.True(t, graduated)
}

func TestEvaluatorZeroVirtualQuote(t *testing.T) {
	eval := NewEvaluator(DefaultGraduationThreshold)
	assert.True(t, eval.MarketCap(ReserveState{}, decimal.NewFromInt(100)).IsZero())
}

func TestProgress(t *testing.T) {
	state := defaultState(t)
	initial := state.RealQuoteReserves

	assert.Equal(t, 0.0, Progress(state, initial))

	state.RealQuoteReserves = initial / 2
	assert.InDelta(t, 50.0, Progress(state, initial), 1e-9)

	state.RealQuoteReserves = 0
	assert.Equal(t, 100.0, Progress(state, initial))

	assert.Equal(t, 0.0, Progress(state, 0))
}
