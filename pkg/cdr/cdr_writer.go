// Package cdr writes the call-detail-record CSV output: one row per
// completed or expired correlation session, a single fixed column set,
// hourly file rotation.
package cdr

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Record is one completed-or-expired session rendered to the fixed CDR
// schema.
type Record struct {
	TID         string
	IMSI        string
	MSISDN      string
	Procedure   string
	StartTime   time.Time
	EndTime     time.Time
	DurationMs  int64
	Result      string
	Cause       string
	PLMN        string
	CellID      string
	APN         string
	Vendor      string
}

var header = []string{
	"tid", "imsi", "msisdn", "procedure", "start_time", "end_time",
	"duration_ms", "result", "cause", "plmn", "cell_id", "apn", "vendor",
}

func (r Record) row() []string {
	return []string{
		r.TID,
		r.IMSI,
		r.MSISDN,
		r.Procedure,
		r.StartTime.Format(time.RFC3339),
		r.EndTime.Format(time.RFC3339),
		fmt.Sprintf("%d", r.DurationMs),
		r.Result,
		r.Cause,
		r.PLMN,
		r.CellID,
		r.APN,
		r.Vendor,
	}
}

// Writer appends Records to hour-rotated CSV files under baseDir,
// flushing after every row. A write failure is logged, the row is
// dropped, and the file is closed and re-opened on the next write
// rather than stalling the caller.
type Writer struct {
	mu           sync.Mutex
	baseDir      string
	logger       zerolog.Logger
	currentHour  string
	currentFile  *os.File
	currentCSV   *csv.Writer
	rowsDropped  int64
}

// NewWriter creates a Writer rooted at baseDir, creating the directory
// if needed.
func NewWriter(baseDir string, logger zerolog.Logger) (*Writer, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("create cdr directory: %w", err)
	}
	return &Writer{baseDir: baseDir, logger: logger}, nil
}

// WriteRecord appends one CDR row to the file for r.EndTime's UTC hour,
// rotating when that hour differs from the open file's hour or no file
// is open.
func (w *Writer) WriteRecord(r Record) {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := r.EndTime.UTC().Format("2006-01-02_15")
	if hour != w.currentHour || w.currentFile == nil {
		if err := w.rotate(hour); err != nil {
			w.logger.Error().Err(err).Msg("cdr writer: rotation failed")
			w.rowsDropped++
			return
		}
	}

	if err := w.currentCSV.Write(r.row()); err != nil {
		w.logger.Error().Err(err).Msg("cdr writer: write failed, reopening on next write")
		w.rowsDropped++
		w.closeLocked()
		return
	}
	w.currentCSV.Flush()
	if err := w.currentCSV.Error(); err != nil {
		w.logger.Error().Err(err).Msg("cdr writer: flush failed")
		w.rowsDropped++
	}
}

// rotate closes the current file (if any) and opens/creates the file
// for hour, writing the header only when the file is newly created.
func (w *Writer) rotate(hour string) error {
	w.closeLocked()

	path := filepath.Join(w.baseDir, fmt.Sprintf("cdr_%s.csv", hour))
	_, statErr := os.Stat(path)
	isNew := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	w.currentFile = f
	w.currentCSV = csv.NewWriter(f)
	w.currentHour = hour

	if isNew {
		if err := w.currentCSV.Write(header); err != nil {
			return err
		}
		w.currentCSV.Flush()
	}
	return nil
}

func (w *Writer) closeLocked() {
	if w.currentCSV != nil {
		w.currentCSV.Flush()
	}
	if w.currentFile != nil {
		w.currentFile.Close()
	}
	w.currentFile = nil
	w.currentCSV = nil
}

// Close flushes and closes the currently open file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closeLocked()
	return nil
}

// Dropped returns the count of rows dropped due to I/O failure.
func (w *Writer) Dropped() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rowsDropped
}

// RunRetentionSweep removes cdr_*.csv files older than retentionDays,
// relative to now. Intended to be called from a daily ticker loop by the
// composition root.
func (w *Writer) RunRetentionSweep(now time.Time, retentionDays int) {
	cutoff := now.AddDate(0, 0, -retentionDays)
	entries, err := os.ReadDir(w.baseDir)
	if err != nil {
		w.logger.Error().Err(err).Msg("cdr retention sweep: read dir failed")
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if ok, _ := filepath.Match("cdr_*.csv", entry.Name()); !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			path := filepath.Join(w.baseDir, entry.Name())
			if err := os.Remove(path); err != nil {
				w.logger.Error().Err(err).Str("file", path).Msg("cdr retention sweep: remove failed")
			}
		}
	}
}
