// =============================
// File: internal/ledger/memory.go
// =============================
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/pumpcurve/internal/curve"
)

var (
	ErrUnknownCurve = errors.New("unknown bonding curve")
	ErrCurveExists  = errors.New("bonding curve already exists")
)

// TradeRecord is a trade the ledger accepted.
type TradeRecord struct {
	Sequence  uint64
	TokenID   string
	Trader    solana.PublicKey
	Signature solana.Signature
	Outcome   curve.TradeOutcome
	Completed bool
	Graduated bool
	Timestamp time.Time
}

// PriceFeed returns the price of one whole base unit in the graduation currency.
type PriceFeed interface {
	CurrentUnitPrice(ctx context.Context) (decimal.Decimal, error)
}

// Memory is an in-process authoritative ledger. Every commit re-simulates the
// trade against the current state under one lock, so concurrent trades are
// serialized and a trade priced on a stale snapshot fails its MinOutput.
type Memory struct {
	mu       sync.RWMutex
	feeBps   uint16
	curves   map[string]curve.ReserveState
	seen     map[solana.Signature]struct{}
	records  []TradeRecord
	sequence uint64
	now      func() time.Time
	logger   *zap.Logger

	evaluator curve.Evaluator
	feed      PriceFeed
}

// MemoryOption configures a Memory ledger.
type MemoryOption func(*Memory)

// WithGraduation closes a curve on the commit whose post-trade state reaches
// the evaluator's market cap threshold at the feed's current price.
func WithGraduation(evaluator curve.Evaluator, feed PriceFeed) MemoryOption {
	return func(m *Memory) {
		m.evaluator = evaluator
		m.feed = feed
	}
}

// NewMemory creates an empty ledger charging feeBps on every trade.
func NewMemory(feeBps uint16, logger *zap.Logger, options ...MemoryOption) *Memory {
	m := &Memory{
		feeBps: feeBps,
		curves: make(map[string]curve.ReserveState),
		seen:   make(map[solana.Signature]struct{}),
		now:    time.Now,
		logger: logger.Named("ledger"),
	}
	for _, o := range options {
		o(m)
	}
	return m
}

// unitPrice reads the graduation price before the ledger lock is taken. A
// feed failure leaves graduation for a later commit.
func (m *Memory) unitPrice(ctx context.Context) (decimal.Decimal, bool) {
	if m.feed == nil {
		return decimal.Zero, false
	}
	price, err := m.feed.CurrentUnitPrice(ctx)
	if err != nil {
		m.logger.Warn("Price feed unavailable, graduation deferred", zap.Error(err))
		return decimal.Zero, false
	}
	return price, true
}

// CreateCurve registers the initial state of a token.
func (m *Memory) CreateCurve(tokenID string, state curve.ReserveState) error {
	if err := state.Validate(0); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.curves[tokenID]; ok {
		return fmt.Errorf("%w: %s", ErrCurveExists, tokenID)
	}
	m.curves[tokenID] = state
	m.logger.Info("Curve created",
		zap.String("token", tokenID),
		zap.Uint64("total_supply", state.TotalSupply),
		zap.Uint64("real_quote", state.RealQuoteReserves))
	return nil
}

// FetchReserveState returns the committed state of a token.
func (m *Memory) FetchReserveState(_ context.Context, tokenID string) (curve.ReserveState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.curves[tokenID]
	if !ok {
		return curve.ReserveState{}, fmt.Errorf("%w: %s", ErrUnknownCurve, tokenID)
	}
	return state, nil
}

// SubmitTrade verifies and commits a signed trade. The outcome is recomputed
// from the ledger's state, not taken from the caller's simulation.
func (m *Memory) SubmitTrade(ctx context.Context, trade SignedTrade) (*TradeRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := trade.Verify(); err != nil {
		return nil, err
	}

	intent := trade.Intent
	price, priced := m.unitPrice(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.seen[trade.Signature]; ok {
		return nil, fmt.Errorf("%w: %s", ErrReplayedTrade, trade.Signature)
	}
	state, ok := m.curves[intent.TokenID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCurve, intent.TokenID)
	}

	outcome, err := curve.SimulateTrade(state, intent.Direction, intent.InputAmount, m.feeBps)
	if err != nil {
		return nil, err
	}
	if outcome.OutputAmount < intent.MinOutput {
		return nil, fmt.Errorf("%w: ledger output %d below signed minimum %d",
			curve.ErrSlippageExceeded, outcome.OutputAmount, intent.MinOutput)
	}

	next := outcome.NewState
	graduated := false
	switch {
	case next.RealQuoteReserves == 0:
		next.Complete = true
	case priced && m.evaluator.Evaluate(next, price):
		next.Complete = true
		graduated = true
	}
	m.curves[intent.TokenID] = next
	m.seen[trade.Signature] = struct{}{}
	m.sequence++

	record := TradeRecord{
		Sequence:  m.sequence,
		TokenID:   intent.TokenID,
		Trader:    trade.Trader,
		Signature: trade.Signature,
		Outcome:   outcome,
		Completed: next.Complete,
		Graduated: graduated,
		Timestamp: m.now(),
	}
	record.Outcome.NewState = next
	m.records = append(m.records, record)

	m.logger.Info("Trade committed",
		zap.Uint64("sequence", record.Sequence),
		zap.String("token", intent.TokenID),
		zap.Stringer("direction", intent.Direction),
		zap.Uint64("input", intent.InputAmount),
		zap.Uint64("output", outcome.OutputAmount),
		zap.Bool("complete", next.Complete),
		zap.Bool("graduated", graduated))

	return &record, nil
}

// MarkComplete closes a curve, e.g. after migration. It cannot be undone.
func (m *Memory) MarkComplete(tokenID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.curves[tokenID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCurve, tokenID)
	}
	state.Complete = true
	m.curves[tokenID] = state
	return nil
}

// Records returns the committed trades of a token, oldest first. An empty
// tokenID returns every record.
func (m *Memory) Records(tokenID string) []TradeRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []TradeRecord
	for _, r := range m.records {
		if tokenID == "" || r.TokenID == tokenID {
			out = append(out, r)
		}
	}
	return out
}
