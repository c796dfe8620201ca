// Package events writes the one-JSON-object-per-message event log:
// daily UTC-rotated JSONL files, flushed after every write.
package events

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/protei/monitoring/pkg/decoder"
	"github.com/rs/zerolog"
)

// Writer appends one JSON line per decoded Message to
// events/events_YYYY-MM-DD.jsonl, rotating when the UTC date changes.
type Writer struct {
	mu          sync.Mutex
	baseDir     string
	logger      zerolog.Logger
	currentDate string
	currentFile *os.File
	dropped     int64
}

// NewWriter creates a Writer rooted at baseDir, creating the directory
// if needed.
func NewWriter(baseDir string, logger zerolog.Logger) (*Writer, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("create events directory: %w", err)
	}
	return &Writer{baseDir: baseDir, logger: logger}, nil
}

// WriteMessage marshals msg as one JSON line and appends it to the
// file for its UTC date, rotating first if the date has advanced. A
// failure is logged and counted rather than propagated: decoding must never stall on event-log trouble.
func (w *Writer) WriteMessage(msg *decoder.Message) {
	w.mu.Lock()
	defer w.mu.Unlock()

	date := msg.Timestamp.UTC().Format("2006-01-02")
	if date != w.currentDate || w.currentFile == nil {
		if err := w.rotate(date); err != nil {
			w.logger.Error().Err(err).Msg("event writer: rotation failed")
			w.dropped++
			return
		}
	}

	line, err := json.Marshal(msg)
	if err != nil {
		w.logger.Error().Err(err).Msg("event writer: marshal failed")
		w.dropped++
		return
	}
	line = append(line, '\n')

	if _, err := w.currentFile.Write(line); err != nil {
		w.logger.Error().Err(err).Msg("event writer: write failed, reopening on next write")
		w.dropped++
		w.closeLocked()
		return
	}
	if err := w.currentFile.Sync(); err != nil {
		w.logger.Error().Err(err).Msg("event writer: flush failed")
		w.dropped++
	}
}

func (w *Writer) rotate(date string) error {
	w.closeLocked()

	path := filepath.Join(w.baseDir, fmt.Sprintf("events_%s.jsonl", date))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	w.currentFile = f
	w.currentDate = date
	return nil
}

func (w *Writer) closeLocked() {
	if w.currentFile != nil {
		w.currentFile.Close()
	}
	w.currentFile = nil
}

// Close closes the currently open file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closeLocked()
	return nil
}

// Dropped returns the count of messages dropped due to I/O failure.
func (w *Writer) Dropped() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dropped
}

// RunRetentionSweep removes events_*.jsonl files older than
// retentionDays, relative to now.
func (w *Writer) RunRetentionSweep(now time.Time, retentionDays int) {
	cutoff := now.AddDate(0, 0, -retentionDays)
	entries, err := os.ReadDir(w.baseDir)
	if err != nil {
		w.logger.Error().Err(err).Msg("event retention sweep: read dir failed")
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if ok, _ := filepath.Match("events_*.jsonl", entry.Name()); !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			path := filepath.Join(w.baseDir, entry.Name())
			if err := os.Remove(path); err != nil {
				w.logger.Error().Err(err).Str("file", path).Msg("event retention sweep: remove failed")
			}
		}
	}
}
