package journal

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/pumpcurve/internal/curve"
	"github.com/rovshanmuradov/pumpcurve/internal/ledger"
	"github.com/rovshanmuradov/pumpcurve/internal/logger"
	"github.com/rovshanmuradov/pumpcurve/internal/settlement"
)

// Journal writes settlements and ledger confirmations to CSV and keeps the
// most recent entries and running totals in memory.
type Journal struct {
	mu         sync.RWMutex
	rows       *logger.RowWriter
	entries    []Entry
	maxEntries int
	now        func() time.Time
	logger     *zap.Logger
	totals     tally
}

// tally accumulates Statistics over entries.
type tally struct {
	settled   int
	rejected  int
	committed int
	buys      int
	sells     int
	volume    uint64
	fees      uint64
	reasons   map[string]int
}

func (t *tally) add(e Entry) {
	switch e.Kind {
	case KindSettled:
		t.settled++
	case KindRejected:
		t.rejected++
		if t.reasons == nil {
			t.reasons = make(map[string]int)
		}
		t.reasons[e.Reason]++
	case KindCommitted:
		t.committed++
		t.fees += e.Fee
		switch e.Direction {
		case curve.Buy.String():
			t.buys++
			t.volume += e.Input
		case curve.Sell.String():
			t.sells++
			t.volume += e.Output + e.Fee
		}
	}
}

func (t *tally) statistics() Statistics {
	reasons := make(map[string]int, len(t.reasons))
	for k, v := range t.reasons {
		reasons[k] = v
	}

	stats := Statistics{
		Settled:          t.settled,
		Rejected:         t.rejected,
		Committed:        t.committed,
		BuyCount:         t.buys,
		SellCount:        t.sells,
		BaseVolume:       t.volume,
		FeesCollected:    t.fees,
		RejectionReasons: reasons,
	}
	if attempts := t.settled + t.rejected; attempts > 0 {
		stats.RejectionRate = float64(t.rejected) / float64(attempts) * 100
	}
	return stats
}

// NewJournal creates journal_<timestamp>.csv under dir.
func NewJournal(dir string, maxEntries int, zapLogger *zap.Logger) (*Journal, error) {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	filename := fmt.Sprintf("journal_%s.csv", time.Now().Format("20060102_150405"))
	csvPath := filepath.Join(dir, filename)

	rows, err := logger.NewRowWriter(logger.RowWriterConfig{
		Path:          csvPath,
		Header:        CSVHeaders(),
		FlushInterval: 30 * time.Second,
		FlushEvery:    100,
	}, zapLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to create CSV writer: %w", err)
	}

	zapLogger.Info("Trade journal initialized",
		zap.String("csv_file", csvPath),
		zap.Int("max_memory_entries", maxEntries))

	return &Journal{
		rows:       rows,
		entries:    make([]Entry, 0, maxEntries),
		maxEntries: maxEntries,
		now:        time.Now,
		logger:     zapLogger.Named("journal"),
	}, nil
}

// RecordSettlement journals a Ready settlement.
func (j *Journal) RecordSettlement(s *settlement.Settlement) error {
	return j.Record(Entry{
		Kind:           KindSettled,
		TokenID:        s.TokenID,
		Direction:      s.Request.Direction.String(),
		Input:          s.Outcome.InputAmount,
		Output:         s.Outcome.OutputAmount,
		Fee:            s.Outcome.FeeAmount,
		MinOutput:      s.MinOutput,
		PriceImpactBps: s.Outcome.PriceImpactBps,
		SpotPrice:      s.Outcome.NewState.SpotPrice(),
		Graduating:     s.Graduating,
		Complete:       s.Outcome.NewState.Complete,
	})
}

// RecordRejection journals a settlement or submission that failed.
func (j *Journal) RecordRejection(tokenID string, req curve.TradeRequest, err error) error {
	return j.Record(Entry{
		Kind:      KindRejected,
		TokenID:   tokenID,
		Direction: req.Direction.String(),
		Input:     req.InputAmount,
		Reason:    settlement.Reason(err),
		Error:     err.Error(),
	})
}

// RecordCommit journals a trade the ledger accepted. initialRealQuote is the
// curve's starting token allocation, used for the progress column.
func (j *Journal) RecordCommit(r *ledger.TradeRecord, initialRealQuote uint64) error {
	return j.Record(Entry{
		ID:             fmt.Sprintf("%s_%d", shortID(r.TokenID), r.Sequence),
		Timestamp:      r.Timestamp,
		Kind:           KindCommitted,
		TokenID:        r.TokenID,
		Trader:         r.Trader.String(),
		Direction:      r.Outcome.Direction.String(),
		Input:          r.Outcome.InputAmount,
		Output:         r.Outcome.OutputAmount,
		Fee:            r.Outcome.FeeAmount,
		PriceImpactBps: r.Outcome.PriceImpactBps,
		SpotPrice:      r.Outcome.NewState.SpotPrice(),
		Progress:       curve.Progress(r.Outcome.NewState, initialRealQuote),
		Graduating:     r.Graduated,
		Complete:       r.Completed,
	})
}

// Record writes an entry and updates the statistics.
func (j *Journal) Record(e Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if e.Timestamp.IsZero() {
		e.Timestamp = j.now()
	}
	if e.ID == "" {
		e.ID = fmt.Sprintf("%s_%d", shortID(e.TokenID), e.Timestamp.UnixNano())
	}

	if err := j.rows.Append(e.ToCSV()); err != nil {
		j.logger.Error("Failed to write journal entry",
			zap.String("id", e.ID),
			zap.Error(err))
		return fmt.Errorf("failed to write journal entry: %w", err)
	}

	if len(j.entries) >= j.maxEntries {
		j.entries = j.entries[1:]
	}
	j.entries = append(j.entries, e)
	j.totals.add(e)

	j.logger.Debug("Journal entry recorded",
		zap.String("id", e.ID),
		zap.String("kind", e.Kind),
		zap.String("token", e.TokenID))
	return nil
}

// Recent returns up to limit entries, oldest first.
func (j *Journal) Recent(limit int) []Entry {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if limit <= 0 || limit > len(j.entries) {
		limit = len(j.entries)
	}
	result := make([]Entry, limit)
	copy(result, j.entries[len(j.entries)-limit:])
	return result
}

// ByToken returns the in-memory entries of one token.
func (j *Journal) ByToken(tokenID string) []Entry {
	j.mu.RLock()
	defer j.mu.RUnlock()

	var result []Entry
	for _, e := range j.entries {
		if e.TokenID == tokenID {
			result = append(result, e)
		}
	}
	return result
}

// Statistics are running totals since the journal was opened.
type Statistics struct {
	Settled          int            `json:"settled"`
	Rejected         int            `json:"rejected"`
	Committed        int            `json:"committed"`
	BuyCount         int            `json:"buy_count"`
	SellCount        int            `json:"sell_count"`
	BaseVolume       uint64         `json:"base_volume"`
	FeesCollected    uint64         `json:"fees_collected"`
	RejectionReasons map[string]int `json:"rejection_reasons"`
	RejectionRate    float64        `json:"rejection_rate"`
}

// Statistics returns the running totals.
func (j *Journal) Statistics() Statistics {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.totals.statistics()
}

// Flush forces buffered entries to disk.
func (j *Journal) Flush() error {
	return j.rows.Flush()
}

// Close writes everything out and closes the file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	stats := j.totals.statistics()
	j.logger.Info("Closing trade journal",
		zap.Int("settled", stats.Settled),
		zap.Int("rejected", stats.Rejected),
		zap.Int("committed", stats.Committed),
		zap.Uint64("base_volume", stats.BaseVolume),
		zap.Uint64("fees_collected", stats.FeesCollected))

	return j.rows.Close()
}

// Path is the CSV file of this journal.
func (j *Journal) Path() string {
	return j.rows.Path()
}

func shortID(tokenID string) string {
	if len(tokenID) > 8 {
		return tokenID[:8]
	}
	return tokenID
}
