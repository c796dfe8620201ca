package events

import (
	"bufio"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/protei/monitoring/pkg/decoder"
)

func TestWriteMessageCreatesDatedFile(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewWriter returned error: %v", err)
	}
	defer w.Close()

	ts := time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC)
	w.WriteMessage(&decoder.Message{ID: "m1", Protocol: decoder.ProtocolDiameter, Timestamp: ts})

	path := filepath.Join(dir, "events_2026-03-05.jsonl")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected file %s to exist: %v", path, err)
	}

	lines := readLines(t, path)
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1", len(lines))
	}
}

func TestWriteMessageRotatesOnDateChange(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewWriter returned error: %v", err)
	}
	defer w.Close()

	day1 := time.Date(2026, 3, 5, 23, 59, 0, 0, time.UTC)
	day2 := time.Date(2026, 3, 6, 0, 1, 0, 0, time.UTC)
	w.WriteMessage(&decoder.Message{ID: "m1", Timestamp: day1})
	w.WriteMessage(&decoder.Message{ID: "m2", Timestamp: day2})

	if _, err := os.Stat(filepath.Join(dir, "events_2026-03-05.jsonl")); err != nil {
		t.Error("day-1 file missing after rotation")
	}
	if _, err := os.Stat(filepath.Join(dir, "events_2026-03-06.jsonl")); err != nil {
		t.Error("day-2 file missing after rotation")
	}
}

func TestWriteMessageAppendsWithinSameDate(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewWriter returned error: %v", err)
	}
	defer w.Close()

	ts := time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC)
	w.WriteMessage(&decoder.Message{ID: "m1", Timestamp: ts})
	w.WriteMessage(&decoder.Message{ID: "m2", Timestamp: ts.Add(time.Minute)})

	lines := readLines(t, filepath.Join(dir, "events_2026-03-05.jsonl"))
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
}

func TestRunRetentionSweepRemovesOldFiles(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewWriter returned error: %v", err)
	}
	defer w.Close()

	oldPath := filepath.Join(dir, "events_2020-01-01.jsonl")
	if err := os.WriteFile(oldPath, []byte("{}\n"), 0644); err != nil {
		t.Fatal(err)
	}
	old := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := os.Chtimes(oldPath, old, old); err != nil {
		t.Fatal(err)
	}

	w.RunRetentionSweep(time.Now(), 30)

	if _, err := os.Stat(oldPath); !os.IsNotExist(err) {
		t.Error("expected old event file to be removed by the retention sweep")
	}
}

func TestRunRetentionSweepKeepsRecentFiles(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewWriter returned error: %v", err)
	}
	defer w.Close()

	ts := time.Now().UTC()
	w.WriteMessage(&decoder.Message{ID: "m1", Timestamp: ts})
	fresh := filepath.Join(dir, "events_"+ts.Format("2006-01-02")+".jsonl")

	w.RunRetentionSweep(time.Now(), 30)

	if _, err := os.Stat(fresh); err != nil {
		t.Error("retention sweep removed a file within the retention window")
	}
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines
}
