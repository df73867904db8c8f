package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/pumpcurve/internal/cache"
	"github.com/rovshanmuradov/pumpcurve/internal/curve"
)

// ErrNoChain is returned by operations that need the Solana RPC oracle.
var ErrNoChain = errors.New("engine has no RPC oracle")

// CurveView is a display summary of one bonding curve.
type CurveView struct {
	TokenID    string
	State      curve.ReserveState
	SpotPrice  float64
	Progress   float64
	Scaling    float64
	MarketCap  decimal.Decimal
	Graduating bool
	PriceKnown bool
	ObservedAt time.Time
}

// Inspect reads fresh states for tokenIDs, refreshes the snapshot cache and,
// when Redis is configured, appends the spot price to each token's history.
// Tokens without a curve account are left out.
func (e *Engine) Inspect(ctx context.Context, tokenIDs []string) ([]CurveView, error) {
	states, err := e.fetchStates(ctx, tokenIDs)
	if err != nil {
		return nil, err
	}

	price, priceErr := decimal.Zero, errors.New("no price feed")
	if e.feed != nil {
		price, priceErr = e.feed.CurrentUnitPrice(ctx)
	}
	if priceErr != nil {
		e.logger.Debug("Market cap unavailable", zap.Error(priceErr))
	}

	now := time.Now()
	views := make([]CurveView, 0, len(states))
	for _, id := range tokenIDs {
		state, ok := states[id]
		if !ok {
			e.logger.Warn("Bonding curve not found", zap.String("token", id))
			continue
		}
		e.snapshots.Store(ctx, id, state)

		view := CurveView{
			TokenID:    id,
			State:      state,
			SpotPrice:  state.SpotPrice(),
			Progress:   curve.Progress(state, e.initialRealQuote(state)),
			Scaling:    curve.ScalingFactor(state.TotalSupply, e.opts.DefaultCurve),
			ObservedAt: now,
		}
		if priceErr == nil {
			view.PriceKnown = true
			view.MarketCap = e.opts.Evaluator.MarketCap(state, price)
			view.Graduating = view.MarketCap.GreaterThanOrEqual(e.opts.Evaluator.Threshold)
		}
		if e.history != nil {
			if err := e.history.RecordPrice(ctx, id, now, view.SpotPrice); err != nil {
				e.logger.Warn("Failed to record price", zap.String("token", id), zap.Error(err))
			}
		}
		views = append(views, view)
	}
	return views, nil
}

func (e *Engine) fetchStates(ctx context.Context, tokenIDs []string) (map[string]curve.ReserveState, error) {
	if batch, ok := e.oracle.(batchOracle); ok && len(tokenIDs) > 1 {
		states, err := batch.FetchReserveStates(ctx, tokenIDs)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", curve.ErrStateUnavailable, err)
		}
		return states, nil
	}

	states := make(map[string]curve.ReserveState, len(tokenIDs))
	for _, id := range tokenIDs {
		state, err := e.oracle.FetchReserveState(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			e.logger.Debug("Failed to fetch curve", zap.String("token", id), zap.Error(err))
			continue
		}
		states[id] = state
	}
	return states, nil
}

// initialRealQuote is the token allocation a curve of this supply started with.
func (e *Engine) initialRealQuote(state curve.ReserveState) uint64 {
	initial, err := curve.MulDiv(state.TotalSupply, uint64(e.opts.DefaultCurve.CurveAllocationBps), curve.BasisPoints)
	if err != nil {
		return 0
	}
	return initial
}

// Watch calls Inspect every interval and hands the views to fn until ctx ends.
// Recorded prices older than history_retention are dropped as it goes.
func (e *Engine) Watch(ctx context.Context, tokenIDs []string, interval time.Duration, fn func([]CurveView)) error {
	if interval <= 0 {
		return fmt.Errorf("watch interval must be positive, got %s", interval)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		views, err := e.Inspect(ctx, tokenIDs)
		switch {
		case ctx.Err() != nil:
			return nil
		case err != nil:
			e.logger.Warn("Watch refresh failed", zap.Error(err))
		default:
			fn(views)
			e.trimHistory(ctx, views)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (e *Engine) trimHistory(ctx context.Context, views []CurveView) {
	if e.history == nil || e.cfg.HistoryRetention <= 0 {
		return
	}
	for _, v := range views {
		cutoff := v.ObservedAt.Add(-e.cfg.HistoryRetention)
		if err := e.history.TrimPriceHistory(ctx, v.TokenID, cutoff); err != nil {
			e.logger.Warn("Failed to trim price history", zap.String("token", v.TokenID), zap.Error(err))
		}
	}
}

// Global reads the program's launch constants from chain.
func (e *Engine) Global(ctx context.Context) (*curve.GlobalAccount, error) {
	if e.chain == nil {
		return nil, ErrNoChain
	}
	return e.chain.FetchGlobal(ctx)
}

// PriceHistory returns the recorded spot prices of a token since a moment.
func (e *Engine) PriceHistory(ctx context.Context, tokenID string, since time.Time) ([]cache.PricePoint, error) {
	if e.history == nil {
		return nil, errors.New("price history needs redis_addr")
	}
	return e.history.PriceHistory(ctx, tokenID, since)
}
