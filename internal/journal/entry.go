package journal

import (
	"strconv"
	"time"
)

// Entry kinds.
const (
	KindSettled   = "settled"
	KindRejected  = "rejected"
	KindCommitted = "committed"
)

// Entry is one line of the trade journal.
type Entry struct {
	ID             string    `json:"id"`
	Timestamp      time.Time `json:"timestamp"`
	Kind           string    `json:"kind"`
	TokenID        string    `json:"token_id"`
	Trader         string    `json:"trader,omitempty"`
	Direction      string    `json:"direction"`
	Input          uint64    `json:"input"`
	Output         uint64    `json:"output"`
	Fee            uint64    `json:"fee"`
	MinOutput      uint64    `json:"min_output"`
	PriceImpactBps int32     `json:"price_impact_bps"`
	SpotPrice      float64   `json:"spot_price"`
	Progress       float64   `json:"progress"`
	Graduating     bool      `json:"graduating"`
	Complete       bool      `json:"complete"`
	Reason         string    `json:"reason,omitempty"`
	Error          string    `json:"error,omitempty"`
}

// CSVHeaders returns the column names matching ToCSV.
func CSVHeaders() []string {
	return []string{
		"id", "timestamp", "kind", "token", "trader", "direction",
		"input", "output", "fee", "min_output", "price_impact_bps",
		"spot_price", "progress", "graduating", "complete", "reason", "error",
	}
}

// ToCSV converts the entry to a CSV record
func (e *Entry) ToCSV() []string {
	return []string{
		e.ID,
		e.Timestamp.Format(time.RFC3339Nano),
		e.Kind,
		e.TokenID,
		e.Trader,
		e.Direction,
		strconv.FormatUint(e.Input, 10),
		strconv.FormatUint(e.Output, 10),
		strconv.FormatUint(e.Fee, 10),
		strconv.FormatUint(e.MinOutput, 10),
		strconv.FormatInt(int64(e.PriceImpactBps), 10),
		strconv.FormatFloat(e.SpotPrice, 'g', -1, 64),
		strconv.FormatFloat(e.Progress, 'f', 4, 64),
		strconv.FormatBool(e.Graduating),
		strconv.FormatBool(e.Complete),
		e.Reason,
		e.Error,
	}
}
