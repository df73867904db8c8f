package journal

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"
)

// ExportFormat represents the export file format
type ExportFormat string

const (
	FormatCSV  ExportFormat = "csv"
	FormatJSON ExportFormat = "json"
)

// ErrNothingToExport is returned when no entry passes the filters.
var ErrNothingToExport = errors.New("no journal entries match the export criteria")

// ExportOptions configures the export behavior
type ExportOptions struct {
	Format          ExportFormat
	StartTime       time.Time
	EndTime         time.Time
	TokenFilter     string
	KindFilter      string
	DirectionFilter string
	OutputDir       string
}

// ExportSummary describes the exported entries.
type ExportSummary struct {
	Statistics
	Entries      int       `json:"entries"`
	UniqueTokens int       `json:"unique_tokens"`
	StartDate    time.Time `json:"start_date"`
	EndDate      time.Time `json:"end_date"`
}

// Export writes the in-memory entries that pass opts to a new file under
// opts.OutputDir and returns its path.
func (j *Journal) Export(opts ExportOptions) (string, error) {
	j.mu.RLock()
	entries := make([]Entry, len(j.entries))
	copy(entries, j.entries)
	j.mu.RUnlock()

	return ExportEntries(entries, opts, j.logger)
}

// ExportEntries writes entries that pass opts, oldest first.
func ExportEntries(entries []Entry, opts ExportOptions, logger *zap.Logger) (string, error) {
	filtered := filterEntries(entries, opts)
	if len(filtered) == 0 {
		return "", ErrNothingToExport
	}
	sort.SliceStable(filtered, func(i, k int) bool {
		return filtered[i].Timestamp.Before(filtered[k].Timestamp)
	})

	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	outputPath := filepath.Join(opts.OutputDir, exportFilename(opts))

	var err error
	switch opts.Format {
	case FormatCSV:
		err = exportCSV(filtered, outputPath)
	case FormatJSON:
		err = exportJSON(filtered, outputPath)
	default:
		err = fmt.Errorf("unsupported format: %s", opts.Format)
	}
	if err != nil {
		return "", err
	}

	logger.Info("Journal exported",
		zap.String("file", outputPath),
		zap.Int("count", len(filtered)),
		zap.String("format", string(opts.Format)))
	return outputPath, nil
}

func filterEntries(entries []Entry, opts ExportOptions) []Entry {
	var filtered []Entry
	for _, e := range entries {
		if !opts.StartTime.IsZero() && e.Timestamp.Before(opts.StartTime) {
			continue
		}
		if !opts.EndTime.IsZero() && e.Timestamp.After(opts.EndTime) {
			continue
		}
		if opts.TokenFilter != "" && e.TokenID != opts.TokenFilter {
			continue
		}
		if opts.KindFilter != "" && e.Kind != opts.KindFilter {
			continue
		}
		if opts.DirectionFilter != "" && e.Direction != opts.DirectionFilter {
			continue
		}
		filtered = append(filtered, e)
	}
	return filtered
}

func exportFilename(opts ExportOptions) string {
	prefix := "journal_all"
	if opts.KindFilter != "" {
		prefix = "journal_" + opts.KindFilter
	}
	if opts.TokenFilter != "" {
		prefix += "_" + shortID(opts.TokenFilter)
	}
	return fmt.Sprintf("%s_%s.%s", prefix, time.Now().Format("20060102_150405.000"), opts.Format)
}

func exportCSV(entries []Entry, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(CSVHeaders()); err != nil {
		return fmt.Errorf("failed to write CSV headers: %w", err)
	}
	for i := range entries {
		if err := writer.Write(entries[i].ToCSV()); err != nil {
			return fmt.Errorf("failed to write entry: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}

func exportJSON(entries []Entry, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create JSON file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")

	exportData := struct {
		ExportTime time.Time     `json:"export_time"`
		Summary    ExportSummary `json:"summary"`
		Entries    []Entry       `json:"entries"`
	}{
		ExportTime: time.Now(),
		Summary:    Summarize(entries),
		Entries:    entries,
	}
	if err := encoder.Encode(exportData); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

// Summarize computes statistics over entries sorted oldest first.
func Summarize(entries []Entry) ExportSummary {
	var t tally
	tokens := make(map[string]struct{})
	for _, e := range entries {
		t.add(e)
		tokens[e.TokenID] = struct{}{}
	}

	summary := ExportSummary{
		Statistics:   t.statistics(),
		Entries:      len(entries),
		UniqueTokens: len(tokens),
	}
	if len(entries) > 0 {
		summary.StartDate = entries[0].Timestamp
		summary.EndDate = entries[len(entries)-1].Timestamp
	}
	return summary
}
