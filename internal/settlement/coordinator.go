// =============================
// File: internal/settlement/coordinator.go
// =============================
package settlement

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/pumpcurve/internal/curve"
)

// ReserveOracle reads the authoritative reserve state of a token.
type ReserveOracle interface {
	FetchReserveState(ctx context.Context, tokenID string) (curve.ReserveState, error)
}

// PriceFeed returns the price of one whole base unit in the graduation currency.
type PriceFeed interface {
	CurrentUnitPrice(ctx context.Context) (decimal.Decimal, error)
}

// SnapshotCache holds advisory snapshots. It is never consulted by Settle.
type SnapshotCache interface {
	Load(ctx context.Context, tokenID string) (curve.ReserveState, bool)
	Store(ctx context.Context, tokenID string, state curve.ReserveState)
}

// FetchingCache is a SnapshotCache that collapses concurrent misses for one
// token into a single oracle read. Quote uses it when the cache provides it.
type FetchingCache interface {
	SnapshotCache
	GetOrFetch(ctx context.Context, tokenID string,
		fetch func(ctx context.Context, tokenID string) (curve.ReserveState, error)) (curve.ReserveState, error)
}

// Options are the platform constants the coordinator applies.
type Options struct {
	FeeBps         uint16
	MinBaseIn      uint64
	MinQuoteIn     uint64
	MinTotalSupply uint64
	DefaultCurve   curve.DefaultCurve
	Evaluator      curve.Evaluator
}

// DefaultOptions returns the Pump.fun launch constants.
func DefaultOptions() Options {
	return Options{
		FeeBps:         curve.DefaultFeeBps,
		MinTotalSupply: curve.DefaultMinTotalSupply,
		DefaultCurve:   curve.PumpFunDefaultCurve(),
		Evaluator:      curve.NewEvaluator(curve.DefaultGraduationThreshold),
	}
}

// Settlement is a trade that passed every check against a fresh snapshot.
// MinOutput is the bound to encode into the signed trade so the ledger rejects
// it if the curve moves further than the caller tolerates.
type Settlement struct {
	TokenID        string
	Request        curve.TradeRequest
	Prior          curve.ReserveState
	Outcome        curve.TradeOutcome
	MinOutput      uint64
	Graduating     bool
	MarketCap      decimal.Decimal
	CurveExhausted bool
	Stage          Stage
}

// Quote is an advisory simulation.
type Quote struct {
	TokenID  string
	Snapshot curve.ReserveState
	Outcome  curve.TradeOutcome
	Cached   bool
}

// Coordinator drives a trade through Fetching, Simulating and Validating.
// It holds no per-trade state and is safe for concurrent use.
type Coordinator struct {
	oracle  ReserveOracle
	feed    PriceFeed
	cache   SnapshotCache
	metrics *Metrics
	opts    Options
	logger  *zap.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithCache attaches an advisory snapshot cache used by Quote.
func WithCache(cache SnapshotCache) Option {
	return func(c *Coordinator) { c.cache = cache }
}

// WithMetrics records every settlement attempt.
func WithMetrics(m *Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// NewCoordinator creates a coordinator. feed may be nil, in which case no
// settlement is ever flagged as graduating.
func NewCoordinator(oracle ReserveOracle, feed PriceFeed, opts Options, logger *zap.Logger, options ...Option) (*Coordinator, error) {
	if oracle == nil {
		return nil, fmt.Errorf("reserve oracle is required")
	}
	if opts.FeeBps > curve.BasisPoints {
		return nil, fmt.Errorf("%w: %d", curve.ErrInvalidFee, opts.FeeBps)
	}
	if err := opts.DefaultCurve.Validate(); err != nil {
		return nil, fmt.Errorf("invalid default curve: %w", err)
	}

	c := &Coordinator{
		oracle: oracle,
		feed:   feed,
		opts:   opts,
		logger: logger.Named("settlement"),
	}
	for _, o := range options {
		o(c)
	}
	return c, nil
}

// Settle fetches a fresh snapshot, simulates req against it and validates the
// outcome. The coordinator never retries and never writes the ledger.
func (c *Coordinator) Settle(ctx context.Context, tokenID string, req curve.TradeRequest) (*Settlement, error) {
	log := c.logger.With(
		zap.String("token", tokenID),
		zap.Stringer("direction", req.Direction),
		zap.Uint64("input", req.InputAmount))

	s, err := c.settle(ctx, log, tokenID, req)
	if err != nil {
		c.metrics.observe(req.Direction.String(), Reason(err), 0)
		log.Info("Settlement rejected", zap.Error(err))
		return nil, err
	}

	c.metrics.observe(req.Direction.String(), Reason(nil), s.Outcome.PriceImpactBps)
	log.Info("Settlement ready",
		zap.Uint64("output", s.Outcome.OutputAmount),
		zap.Uint64("fee", s.Outcome.FeeAmount),
		zap.Uint64("min_output", s.MinOutput),
		zap.Int32("price_impact_bps", s.Outcome.PriceImpactBps),
		zap.Bool("graduating", s.Graduating),
		zap.Bool("curve_exhausted", s.CurveExhausted))
	return s, nil
}

func (c *Coordinator) settle(ctx context.Context, log *zap.Logger, tokenID string, req curve.TradeRequest) (*Settlement, error) {
	reject := func(stage Stage, err error) error {
		return &RejectionError{Stage: stage, TokenID: tokenID, Err: err}
	}

	log.Debug("Settlement stage", zap.Stringer("stage", StageFetching))
	prior, err := c.fetchSnapshot(ctx, tokenID)
	if err != nil {
		return nil, reject(StageFetching, err)
	}
	if c.cache != nil {
		c.cache.Store(ctx, tokenID, prior)
	}

	log.Debug("Settlement stage", zap.Stringer("stage", StageSimulating))
	outcome, err := curve.SimulateTrade(prior, req.Direction, req.InputAmount, c.opts.FeeBps)
	if err != nil {
		return nil, reject(StageSimulating, err)
	}

	log.Debug("Settlement stage", zap.Stringer("stage", StageValidating))
	minOutput, err := c.validate(req, outcome)
	if err != nil {
		return nil, reject(StageValidating, err)
	}

	s := &Settlement{
		TokenID:        tokenID,
		Request:        req,
		Prior:          prior,
		Outcome:        outcome,
		MinOutput:      minOutput,
		CurveExhausted: outcome.NewState.RealQuoteReserves == 0,
		Stage:          StageReady,
	}
	s.Graduating, s.MarketCap = c.evaluate(ctx, log, outcome.NewState)
	return s, nil
}

// fetchSnapshot reads and checks an authoritative snapshot. Both a failed read
// and a structurally invalid snapshot are ErrStateUnavailable.
func (c *Coordinator) fetchSnapshot(ctx context.Context, tokenID string) (curve.ReserveState, error) {
	state, err := c.oracle.FetchReserveState(ctx, tokenID)
	if err != nil {
		return curve.ReserveState{}, fmt.Errorf("%w: %w", curve.ErrStateUnavailable, err)
	}
	if err := state.Validate(c.opts.DefaultCurve.CurveAllocationBps); err != nil {
		return curve.ReserveState{}, fmt.Errorf("%w: invalid snapshot: %w", curve.ErrStateUnavailable, err)
	}
	return state, nil
}

// validate applies the business minimums and the slippage bound, and returns
// the minimum output the caller should sign for.
func (c *Coordinator) validate(req curve.TradeRequest, outcome curve.TradeOutcome) (uint64, error) {
	if req.SlippageToleranceBps > curve.BasisPoints {
		return 0, fmt.Errorf("%w: %d bps", curve.ErrInvalidSlippage, req.SlippageToleranceBps)
	}

	minimum := c.opts.MinBaseIn
	if req.Direction == curve.Sell {
		minimum = c.opts.MinQuoteIn
	}
	if req.InputAmount < minimum {
		return 0, fmt.Errorf("%w: %s input %d < %d", curve.ErrBelowMinimum, req.Direction, req.InputAmount, minimum)
	}

	keep := uint64(curve.BasisPoints - req.SlippageToleranceBps)
	if req.ExpectedOutput > 0 {
		bound, err := curve.MulDiv(req.ExpectedOutput, keep, curve.BasisPoints)
		if err != nil {
			return 0, err
		}
		if outcome.OutputAmount < bound {
			return 0, fmt.Errorf("%w: output %d below %d (expected %d, tolerance %d bps)",
				curve.ErrSlippageExceeded, outcome.OutputAmount, bound, req.ExpectedOutput, req.SlippageToleranceBps)
		}
	}

	return curve.MulDiv(outcome.OutputAmount, keep, curve.BasisPoints)
}

// evaluate is informational: a price feed failure never rejects a settlement.
func (c *Coordinator) evaluate(ctx context.Context, log *zap.Logger, state curve.ReserveState) (bool, decimal.Decimal) {
	if c.feed == nil {
		return false, decimal.Zero
	}
	price, err := c.feed.CurrentUnitPrice(ctx)
	if err != nil {
		log.Warn("Price feed unavailable, skipping graduation check", zap.Error(err))
		return false, decimal.Zero
	}
	marketCap := c.opts.Evaluator.MarketCap(state, price)
	return marketCap.GreaterThanOrEqual(c.opts.Evaluator.Threshold), marketCap
}

// Quote simulates a trade against the cached snapshot when one is available,
// otherwise against a fresh one. The result is advisory only.
func (c *Coordinator) Quote(ctx context.Context, tokenID string, direction curve.Direction, amount uint64) (*Quote, error) {
	snapshot, cached := curve.ReserveState{}, false
	if c.cache != nil {
		snapshot, cached = c.cache.Load(ctx, tokenID)
	}
	if !cached {
		var err error
		snapshot, err = c.refresh(ctx, tokenID)
		if err != nil {
			return nil, err
		}
	}

	outcome, err := curve.SimulateTrade(snapshot, direction, amount, c.opts.FeeBps)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("Quote",
		zap.String("token", tokenID),
		zap.Stringer("direction", direction),
		zap.Uint64("input", amount),
		zap.Uint64("output", outcome.OutputAmount),
		zap.Bool("cached", cached))

	return &Quote{TokenID: tokenID, Snapshot: snapshot, Outcome: outcome, Cached: cached}, nil
}

// refresh fetches a snapshot for Quote and stores it in the cache.
func (c *Coordinator) refresh(ctx context.Context, tokenID string) (curve.ReserveState, error) {
	if fc, ok := c.cache.(FetchingCache); ok {
		return fc.GetOrFetch(ctx, tokenID, c.fetchSnapshot)
	}
	state, err := c.fetchSnapshot(ctx, tokenID)
	if err != nil {
		return curve.ReserveState{}, err
	}
	if c.cache != nil {
		c.cache.Store(ctx, tokenID, state)
	}
	return state, nil
}

// CreateCurve derives the initial reserve state for a new token.
func (c *Coordinator) CreateCurve(totalSupply uint64) (curve.ReserveState, error) {
	if err := curve.ValidateTotalSupply(totalSupply, c.opts.MinTotalSupply); err != nil {
		return curve.ReserveState{}, err
	}
	state, err := curve.Derive(totalSupply, c.opts.DefaultCurve)
	if err != nil {
		return curve.ReserveState{}, fmt.Errorf("failed to derive curve: %w", err)
	}

	c.logger.Info("Curve derived",
		zap.Uint64("total_supply", totalSupply),
		zap.Uint64("virtual_quote", state.VirtualQuoteReserves),
		zap.Uint64("real_quote", state.RealQuoteReserves),
		zap.Float64("scaling_factor", curve.ScalingFactor(totalSupply, c.opts.DefaultCurve)))
	return state, nil
}

// FeeBps returns the fee the coordinator simulates with.
func (c *Coordinator) FeeBps() uint16 {
	return c.opts.FeeBps
}
