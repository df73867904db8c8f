package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/pumpcurve/internal/curve"
	"github.com/rovshanmuradov/pumpcurve/internal/journal"
	"github.com/rovshanmuradov/pumpcurve/internal/ledger"
	"github.com/rovshanmuradov/pumpcurve/internal/settlement"
)

// DefaultMaxAttempts bounds how often a trader re-settles after the ledger
// rejects a trade priced on a stale snapshot.
const DefaultMaxAttempts = 5

// Trade is one scripted order in a market run.
type Trade struct {
	Trader      int
	Direction   curve.Direction
	Amount      uint64
	SlippageBps uint16
}

// MarketResult summarises a market run.
type MarketResult struct {
	Committed int
	Rejected  int
	Resettled int
	Final     curve.ReserveState
	Records   []ledger.TradeRecord
	Errors    []error
}

// RaceResult reports how a set of trades settled on one snapshot fared.
type RaceResult struct {
	FirstAttempt int
	Resettled    int
	Failed       int
}

// Market replays trades from several traders against an in-process ledger.
// Traders settle, sign the resulting MinOutput and submit; a ledger rejection
// for slippage makes the trader re-fetch and re-settle.
type Market struct {
	tokenID     string
	book        *ledger.Memory
	coordinator *settlement.Coordinator
	traders     []*ledger.KeypairSigner
	journal     *journal.Journal
	initial     uint64
	maxAttempts uint
	newBackOff  func() backoff.BackOff
	nonce       atomic.Uint64
	resettled   atomic.Int64
	logger      *zap.Logger
}

// NewMarket creates a fresh ledger holding one curve of totalSupply, derived
// from the configured default curve, and n traders with random keys. With a
// price feed the ledger closes the curve once it reaches graduation.
func (e *Engine) NewMarket(tokenID string, totalSupply uint64, n int) (*Market, error) {
	if n <= 0 {
		return nil, fmt.Errorf("market needs at least one trader, got %d", n)
	}

	var bookOptions []ledger.MemoryOption
	if e.feed != nil {
		bookOptions = append(bookOptions, ledger.WithGraduation(e.opts.Evaluator, e.feed))
	}
	book := ledger.NewMemory(e.opts.FeeBps, e.logger, bookOptions...)
	coordinator, err := settlement.NewCoordinator(book, e.feed, e.opts, e.logger,
		settlement.WithMetrics(e.metrics))
	if err != nil {
		return nil, err
	}

	state, err := coordinator.CreateCurve(totalSupply)
	if err != nil {
		return nil, err
	}
	if err := book.CreateCurve(tokenID, state); err != nil {
		return nil, err
	}

	traders := make([]*ledger.KeypairSigner, n)
	for i := range traders {
		if traders[i], err = ledger.NewRandomSigner(); err != nil {
			return nil, err
		}
	}

	return &Market{
		tokenID:     tokenID,
		book:        book,
		coordinator: coordinator,
		traders:     traders,
		journal:     e.journal,
		initial:     state.RealQuoteReserves,
		maxAttempts: DefaultMaxAttempts,
		newBackOff:  e.newBackOff,
		logger:      e.logger.Named("market").With(zap.String("token", tokenID)),
	}, nil
}

// Ledger returns the market's authoritative ledger.
func (m *Market) Ledger() *ledger.Memory {
	return m.book
}

// Trader returns the signer of trader i.
func (m *Market) Trader(i int) *ledger.KeypairSigner {
	return m.traders[i%len(m.traders)]
}

// Run executes trades with the given number of concurrent workers. Trades are
// taken in order but may commit in any order when workers > 1.
func (m *Market) Run(ctx context.Context, trades []Trade, workers int) (*MarketResult, error) {
	if workers <= 0 {
		workers = 1
	}

	queue := make(chan Trade, len(trades))
	for _, t := range trades {
		queue <- t
	}
	close(queue)

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		result MarketResult
	)
	before := m.resettled.Load()

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			log := m.logger.With(zap.Int("worker_id", id))

			for t := range queue {
				if ctx.Err() != nil {
					return
				}
				_, _, err := m.execute(ctx, t, nil)

				mu.Lock()
				if err != nil {
					result.Rejected++
					result.Errors = append(result.Errors, err)
					log.Info("Trade rejected",
						zap.Int("trader", t.Trader),
						zap.Stringer("direction", t.Direction),
						zap.Uint64("amount", t.Amount),
						zap.String("reason", settlement.Reason(err)))
				} else {
					result.Committed++
				}
				mu.Unlock()
			}
		}(i + 1)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	final, err := m.book.FetchReserveState(ctx, m.tokenID)
	if err != nil {
		return nil, err
	}
	result.Final = final
	result.Records = m.book.Records(m.tokenID)
	result.Resettled = int(m.resettled.Load() - before)
	return &result, nil
}

// Race settles req once per trader against the same committed state, then
// submits all of them at once. With zero slippage tolerance exactly one
// commits on its first attempt; the others are rejected by the ledger and
// re-settle.
func (m *Market) Race(ctx context.Context, req curve.TradeRequest) (*RaceResult, error) {
	settled := make([]*settlement.Settlement, len(m.traders))
	for i := range m.traders {
		s, err := m.coordinator.Settle(ctx, m.tokenID, req)
		if err != nil {
			return nil, err
		}
		settled[i] = s
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		result RaceResult
		start  = make(chan struct{})
	)
	for i, s := range settled {
		wg.Add(1)
		go func(i int, s *settlement.Settlement) {
			defer wg.Done()
			<-start

			t := Trade{Trader: i, Direction: req.Direction, Amount: req.InputAmount, SlippageBps: req.SlippageToleranceBps}
			_, attempts, err := m.execute(ctx, t, s)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				result.Failed++
			case attempts == 1:
				result.FirstAttempt++
			default:
				result.Resettled++
			}
		}(i, s)
	}
	close(start)
	wg.Wait()

	return &result, nil
}

// execute settles, signs and submits one trade and reports how many attempts
// it took. A pre-settled s is used for the first attempt. Only ledger
// slippage rejections are retried.
func (m *Market) execute(ctx context.Context, t Trade, s *settlement.Settlement) (*ledger.TradeRecord, int, error) {
	req := curve.TradeRequest{
		Direction:            t.Direction,
		InputAmount:          t.Amount,
		SlippageToleranceBps: t.SlippageBps,
	}
	trader := m.Trader(t.Trader)
	attempt := 0

	op := func() (*ledger.TradeRecord, error) {
		attempt++
		if attempt > 1 || s == nil {
			if attempt > 1 {
				m.resettled.Add(1)
			}
			var err error
			if s, err = m.coordinator.Settle(ctx, m.tokenID, req); err != nil {
				m.recordRejection(req, err)
				return nil, backoff.Permanent(err)
			}
		}
		if m.journal != nil {
			if err := m.journal.RecordSettlement(s); err != nil {
				m.logger.Warn("Failed to journal settlement", zap.Error(err))
			}
		}

		signed, err := trader.Sign(ledger.TradeIntent{
			TokenID:     m.tokenID,
			Direction:   req.Direction,
			InputAmount: req.InputAmount,
			MinOutput:   s.MinOutput,
			Nonce:       m.nonce.Add(1),
		})
		if err != nil {
			return nil, backoff.Permanent(err)
		}

		record, err := m.book.SubmitTrade(ctx, signed)
		if err != nil {
			m.recordRejection(req, err)
			if errors.Is(err, curve.ErrSlippageExceeded) {
				return nil, err
			}
			return nil, backoff.Permanent(err)
		}
		if m.journal != nil {
			if err := m.journal.RecordCommit(record, m.initial); err != nil {
				m.logger.Warn("Failed to journal commit",
					zap.Uint64("sequence", record.Sequence),
					zap.Error(err))
			}
		}
		return record, nil
	}

	record, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(m.newBackOff()),
		backoff.WithMaxTries(m.maxAttempts))
	return record, attempt, err
}

func (m *Market) recordRejection(req curve.TradeRequest, err error) {
	if m.journal == nil {
		return
	}
	if jerr := m.journal.RecordRejection(m.tokenID, req, err); jerr != nil {
		m.logger.Warn("Failed to journal rejection", zap.Error(jerr))
	}
}
