package logger

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrWriterClosed is returned by Append after Close.
var ErrWriterClosed = errors.New("csv row writer closed")

// RowWriterConfig describes an append-only CSV file.
type RowWriterConfig struct {
	Path   string
	Header []string
	// FlushInterval bounds how long an appended row may sit in the buffer.
	FlushInterval time.Duration
	// FlushEvery forces a flush once this many rows are pending. Zero disables it.
	FlushEvery int
}

// WriterStats reports what a RowWriter has done so far.
type WriterStats struct {
	Rows    uint64
	Flushes uint64
	Pending int
}

// RowWriter appends CSV rows from many goroutines and flushes them to disk on
// a timer, on a row-count threshold and on Close.
type RowWriter struct {
	cfg    RowWriterConfig
	logger *zap.Logger

	mu      sync.Mutex
	file    *os.File
	csv     *csv.Writer
	pending int
	stats   WriterStats
	closed  bool

	stop      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// NewRowWriter opens cfg.Path for appending. The header goes in only when the
// file is new or empty.
func NewRowWriter(cfg RowWriterConfig, logger *zap.Logger) (*RowWriter, error) {
	if cfg.FlushInterval <= 0 {
		return nil, fmt.Errorf("flush interval must be positive, got %s", cfg.FlushInterval)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", cfg.Path, err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat %s: %w", cfg.Path, err)
	}

	w := &RowWriter{
		cfg:     cfg,
		logger:  logger.Named("csv"),
		file:    file,
		csv:     csv.NewWriter(file),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	if info.Size() == 0 && len(cfg.Header) > 0 {
		w.csv.Write(cfg.Header)
		w.csv.Flush()
		if err := w.csv.Error(); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to write header: %w", err)
		}
	}

	go w.flushLoop()
	return w, nil
}

// Append buffers one row.
func (w *RowWriter) Append(row []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWriterClosed
	}
	if err := w.csv.Write(row); err != nil {
		return fmt.Errorf("failed to write row: %w", err)
	}
	w.stats.Rows++
	w.pending++

	if w.cfg.FlushEvery > 0 && w.pending >= w.cfg.FlushEvery {
		return w.flushLocked()
	}
	return nil
}

// Flush writes pending rows and syncs the file.
func (w *RowWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	return w.flushLocked()
}

func (w *RowWriter) flushLocked() error {
	if w.pending == 0 {
		return nil
	}
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		return fmt.Errorf("csv flush: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync %s: %w", w.cfg.Path, err)
	}
	w.pending = 0
	w.stats.Flushes++
	return nil
}

func (w *RowWriter) flushLoop() {
	defer close(w.stopped)
	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := w.Flush(); err != nil {
				w.logger.Error("Periodic flush failed", zap.String("file", w.cfg.Path), zap.Error(err))
			}
		case <-w.stop:
			return
		}
	}
}

// Close stops the flush loop, writes out pending rows and closes the file.
// Calling it again returns the first result.
func (w *RowWriter) Close() error {
	w.closeOnce.Do(func() {
		close(w.stop)
		<-w.stopped

		w.mu.Lock()
		defer w.mu.Unlock()

		flushErr := w.flushLocked()
		w.closed = true
		w.closeErr = errors.Join(flushErr, w.file.Close())

		w.logger.Debug("CSV writer closed",
			zap.String("file", w.cfg.Path),
			zap.Uint64("rows", w.stats.Rows),
			zap.Uint64("flushes", w.stats.Flushes))
	})
	return w.closeErr
}

// Stats returns a copy of the counters.
func (w *RowWriter) Stats() WriterStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := w.stats
	s.Pending = w.pending
	return s
}

// Path is the file being written.
func (w *RowWriter) Path() string {
	return w.cfg.Path
}
