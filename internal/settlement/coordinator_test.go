package settlement

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/pumpcurve/internal/curve"
)

const testToken = "TESTMINT"

type fakeOracle struct {
	mu     sync.Mutex
	states map[string]curve.ReserveState
	err    error
	calls  int
}

func (f *fakeOracle) FetchReserveState(_ context.Context, tokenID string) (curve.ReserveState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return curve.ReserveState{}, f.err
	}
	state, ok := f.states[tokenID]
	if !ok {
		return curve.ReserveState{}, errors.New("unknown token")
	}
	return state, nil
}

type fakeFeed struct {
	price decimal.Decimal
	err   error
}

func (f fakeFeed) CurrentUnitPrice(context.Context) (decimal.Decimal, error) {
	return f.price, f.err
}

type mapCache struct {
	mu     sync.Mutex
	states map[string]curve.ReserveState
}

func (m *mapCache) Load(_ context.Context, tokenID string) (curve.ReserveState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.states[tokenID]
	return s, ok
}

func (m *mapCache) Store(_ context.Context, tokenID string, state curve.ReserveState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[tokenID] = state
}

func defaultState(t *testing.T) curve.ReserveState {
	t.Helper()
	state, err := curve.Derive(curve.DefaultTotalSupply, curve.PumpFunDefaultCurve())
	require.NoError(t, err)
	return state
}

func newTestCoordinator(t *testing.T, oracle ReserveOracle, feed PriceFeed, options ...Option) *Coordinator {
	t.Helper()
	opts := DefaultOptions()
	opts.MinBaseIn = 1_000_000
	opts.MinQuoteIn = 1_000_000
	c, err := NewCoordinator(oracle, feed, opts, zap.NewNop(), options...)
	require.NoError(t, err)
	return c
}

func TestSettleReady(t *testing.T) {
	state := defaultState(t)
	oracle := &fakeOracle{states: map[string]curve.ReserveState{testToken: state}}
	c := newTestCoordinator(t, oracle, fakeFeed{price: decimal.NewFromInt(150)})

	s, err := c.Settle(context.Background(), testToken, curve.TradeRequest{
		Direction:            curve.Buy,
		InputAmount:          1_000_000_000,
		SlippageToleranceBps: 100,
	})
	require.NoError(t, err)

	assert.Equal(t, StageReady, s.Stage)
	assert.Equal(t, state, s.Prior)
	assert.Equal(t, uint64(34_277_831_558_568), s.Outcome.OutputAmount)
	assert.Equal(t, uint64(33_935_053_242_982), s.MinOutput)
	assert.False(t, s.Graduating)
	assert.False(t, s.CurveExhausted)
	assert.True(t, s.MarketCap.GreaterThan(decimal.Zero))
}

func TestSettleRejections(t *testing.T) {
	state := defaultState(t)
	closed := state
	closed.Complete = true
	degenerate := state
	degenerate.VirtualQuoteReserves = 0
	overdrawn := state
	overdrawn.RealQuoteReserves = state.TotalSupply

	tests := []struct {
		name      string
		oracle    *fakeOracle
		req       curve.TradeRequest
		wantStage Stage
		wantErr   error
	}{
		{
			name:      "oracle failure",
			oracle:    &fakeOracle{err: errors.New("rpc down")},
			req:       curve.TradeRequest{Direction: curve.Buy, InputAmount: 1_000_000_000},
			wantStage: StageFetching,
			wantErr:   curve.ErrStateUnavailable,
		},
		{
			name:      "degenerate snapshot",
			oracle:    &fakeOracle{states: map[string]curve.ReserveState{testToken: degenerate}},
			req:       curve.TradeRequest{Direction: curve.Buy, InputAmount: 1_000_000_000},
			wantStage: StageFetching,
			wantErr:   curve.ErrStateUnavailable,
		},
		{
			name:      "snapshot owes more than was minted",
			oracle:    &fakeOracle{states: map[string]curve.ReserveState{testToken: overdrawn}},
			req:       curve.TradeRequest{Direction: curve.Buy, InputAmount: 1_000_000_000},
			wantStage: StageFetching,
			wantErr:   curve.ErrInsufficientReserves,
		},
		{
			name:      "closed curve",
			oracle:    &fakeOracle{states: map[string]curve.ReserveState{testToken: closed}},
			req:       curve.TradeRequest{Direction: curve.Sell, InputAmount: 1_000_000_000},
			wantStage: StageSimulating,
			wantErr:   curve.ErrCurveClosed,
		},
		{
			name:      "below minimum",
			oracle:    &fakeOracle{states: map[string]curve.ReserveState{testToken: state}},
			req:       curve.TradeRequest{Direction: curve.Buy, InputAmount: 999_999},
			wantStage: StageValidating,
			wantErr:   curve.ErrBelowMinimum,
		},
		{
			name:      "tolerance out of range",
			oracle:    &fakeOracle{states: map[string]curve.ReserveState{testToken: state}},
			req:       curve.TradeRequest{Direction: curve.Buy, InputAmount: 1_000_000_000, SlippageToleranceBps: 10_001},
			wantStage: StageValidating,
			wantErr:   curve.ErrInvalidSlippage,
		},
		{
			name:   "slippage",
			oracle: &fakeOracle{states: map[string]curve.ReserveState{testToken: state}},
			req: curve.TradeRequest{
				Direction:            curve.Buy,
				InputAmount:          1_000_000_000,
				SlippageToleranceBps: 50,
				ExpectedOutput:       40_000_000_000_000,
			},
			wantStage: StageValidating,
			wantErr:   curve.ErrSlippageExceeded,
		},
		{
			name:      "drains past the pool",
			oracle:    &fakeOracle{states: map[string]curve.ReserveState{testToken: state}},
			req:       curve.TradeRequest{Direction: curve.Buy, InputAmount: 500_000_000_000},
			wantStage: StageSimulating,
			wantErr:   curve.ErrInsufficientLiquidity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestCoordinator(t, tt.oracle, nil)
			s, err := c.Settle(context.Background(), testToken, tt.req)
			require.Error(t, err)
			assert.Nil(t, s)
			assert.ErrorIs(t, err, tt.wantErr)

			var rejection *RejectionError
			require.True(t, errors.As(err, &rejection))
			assert.Equal(t, tt.wantStage, rejection.Stage)
			assert.Equal(t, testToken, rejection.TokenID)
			if tt.wantStage == StageFetching {
				assert.ErrorIs(t, err, curve.ErrStateUnavailable)
				assert.Equal(t, "state_unavailable", Reason(err))
			}
		})
	}
}

func TestSettleSlippageWithinTolerance(t *testing.T) {
	state := defaultState(t)
	oracle := &fakeOracle{states: map[string]curve.ReserveState{testToken: state}}
	c := newTestCoordinator(t, oracle, nil)

	// A quote taken before someone else's buy still clears a 5% tolerance.
	quote, err := curve.SimulateBuy(state, 1_000_000_000, curve.DefaultFeeBps)
	require.NoError(t, err)
	moved, err := curve.SimulateBuy(state, 500_000_000, curve.DefaultFeeBps)
	require.NoError(t, err)
	oracle.states[testToken] = moved.NewState

	s, err := c.Settle(context.Background(), testToken, curve.TradeRequest{
		Direction:            curve.Buy,
		InputAmount:          1_000_000_000,
		SlippageToleranceBps: 500,
		ExpectedOutput:       quote.OutputAmount,
	})
	require.NoError(t, err)
	assert.Less(t, s.Outcome.OutputAmount, quote.OutputAmount)
}

func TestSettleFlagsGraduationAndExhaustion(t *testing.T) {
	small := curve.ReserveState{
		VirtualBaseReserves:  100,
		VirtualQuoteReserves: 100,
		RealQuoteReserves:    50,
		TotalSupply:          100,
	}
	oracle := &fakeOracle{states: map[string]curve.ReserveState{testToken: small}}

	opts := DefaultOptions()
	opts.FeeBps = 0
	opts.DefaultCurve.CurveAllocationBps = 5_000
	opts.Evaluator = curve.Evaluator{Threshold: decimal.NewFromInt(1), BaseDecimals: 0}
	c, err := NewCoordinator(oracle, fakeFeed{price: decimal.NewFromInt(1)}, opts, zap.NewNop())
	require.NoError(t, err)

	s, err := c.Settle(context.Background(), testToken, curve.TradeRequest{Direction: curve.Buy, InputAmount: 100})
	require.NoError(t, err)
	assert.True(t, s.CurveExhausted)
	assert.True(t, s.Graduating)
	assert.False(t, s.Outcome.NewState.Complete, "the ledger closes the curve, not the coordinator")
}

func TestSettleIgnoresPriceFeedFailure(t *testing.T) {
	oracle := &fakeOracle{states: map[string]curve.ReserveState{testToken: defaultState(t)}}
	c := newTestCoordinator(t, oracle, fakeFeed{err: errors.New("feed offline")})

	s, err := c.Settle(context.Background(), testToken, curve.TradeRequest{Direction: curve.Buy, InputAmount: 1_000_000_000})
	require.NoError(t, err)
	assert.False(t, s.Graduating)
}

func TestQuoteUsesCache(t *testing.T) {
	state := defaultState(t)
	oracle := &fakeOracle{states: map[string]curve.ReserveState{testToken: state}}
	cache := &mapCache{states: map[string]curve.ReserveState{}}
	c := newTestCoordinator(t, oracle, nil, WithCache(cache))
	ctx := context.Background()

	q, err := c.Quote(ctx, testToken, curve.Buy, 1_000_000_000)
	require.NoError(t, err)
	assert.False(t, q.Cached)

	q, err = c.Quote(ctx, testToken, curve.Buy, 1_000_000_000)
	require.NoError(t, err)
	assert.True(t, q.Cached)
	assert.Equal(t, 1, oracle.calls)

	// Settle always goes to the oracle.
	_, err = c.Settle(ctx, testToken, curve.TradeRequest{Direction: curve.Buy, InputAmount: 1_000_000_000})
	require.NoError(t, err)
	assert.Equal(t, 2, oracle.calls)
}

func TestCreateCurve(t *testing.T) {
	c := newTestCoordinator(t, &fakeOracle{}, nil)

	state, err := c.CreateCurve(2 * curve.DefaultTotalSupply)
	require.NoError(t, err)
	assert.Equal(t, 2*curve.DefaultVirtualQuoteReserves, state.VirtualQuoteReserves)

	_, err = c.CreateCurve(curve.DefaultMinTotalSupply - 1)
	assert.ErrorIs(t, err, curve.ErrBelowMinimum)
}

func TestNewCoordinatorValidatesOptions(t *testing.T) {
	opts := DefaultOptions()
	opts.FeeBps = 10_001
	_, err := NewCoordinator(&fakeOracle{}, nil, opts, zap.NewNop())
	assert.ErrorIs(t, err, curve.ErrInvalidFee)

	_, err = NewCoordinator(nil, nil, DefaultOptions(), zap.NewNop())
	assert.Error(t, err)
}

func TestMetricsRecorded(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := NewMetrics(reg)
	require.NoError(t, err)

	again, err := NewMetrics(reg)
	require.NoError(t, err)
	assert.NotNil(t, again)

	oracle := &fakeOracle{states: map[string]curve.ReserveState{testToken: defaultState(t)}}
	c := newTestCoordinator(t, oracle, nil, WithMetrics(metrics))
	ctx := context.Background()

	_, err = c.Settle(ctx, testToken, curve.TradeRequest{Direction: curve.Buy, InputAmount: 1_000_000_000})
	require.NoError(t, err)
	_, err = c.Settle(ctx, testToken, curve.TradeRequest{Direction: curve.Buy, InputAmount: 10})
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.settlements.WithLabelValues("buy", "ready")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.settlements.WithLabelValues("buy", "below_minimum")))
	assert.Equal(t, 1, testutil.CollectAndCount(metrics.priceImpact))
}

func TestConcurrentSettlements(t *testing.T) {
	oracle := &fakeOracle{states: map[string]curve.ReserveState{testToken: defaultState(t)}}
	c := newTestCoordinator(t, oracle, fakeFeed{price: decimal.NewFromInt(150)})

	var wg sync.WaitGroup
	outputs := make([]uint64, 32)
	for i := range outputs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := c.Settle(context.Background(), testToken, curve.TradeRequest{Direction: curve.Buy, InputAmount: 1_000_000_000})
			if err == nil {
				outputs[i] = s.Outcome.OutputAmount
			}
		}(i)
	}
	wg.Wait()

	// Same snapshot, same answer: settlement holds no shared mutable state.
	for _, out := range outputs {
		assert.Equal(t, uint64(34_277_831_558_568), out)
	}
}
