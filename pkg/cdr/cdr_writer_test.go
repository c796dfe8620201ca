package cdr

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestWriteRecordCreatesFileWithHeader(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewWriter returned error: %v", err)
	}
	defer w.Close()

	end := time.Date(2026, 3, 5, 14, 30, 0, 0, time.UTC)
	w.WriteRecord(Record{TID: "t1", IMSI: "001010000000001", Result: "success", EndTime: end})

	path := filepath.Join(dir, "cdr_2026-03-05_14.csv")
	rows := readCSV(t, path)
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want header + 1 record", len(rows))
	}
	if rows[0][0] != "tid" {
		t.Errorf("header row[0] = %q, want tid", rows[0][0])
	}
	if rows[1][0] != "t1" || rows[1][1] != "001010000000001" {
		t.Errorf("record row = %v", rows[1])
	}
}

func TestWriteRecordRotatesOnHourChange(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewWriter returned error: %v", err)
	}
	defer w.Close()

	hour1 := time.Date(2026, 3, 5, 14, 59, 0, 0, time.UTC)
	hour2 := time.Date(2026, 3, 5, 15, 1, 0, 0, time.UTC)
	w.WriteRecord(Record{TID: "t1", EndTime: hour1})
	w.WriteRecord(Record{TID: "t2", EndTime: hour2})

	if _, err := os.Stat(filepath.Join(dir, "cdr_2026-03-05_14.csv")); err != nil {
		t.Error("hour-14 file missing")
	}
	if _, err := os.Stat(filepath.Join(dir, "cdr_2026-03-05_15.csv")); err != nil {
		t.Error("hour-15 file missing")
	}
}

func TestWriteRecordAppendsWithoutDuplicatingHeader(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewWriter returned error: %v", err)
	}
	defer w.Close()

	end := time.Date(2026, 3, 5, 14, 0, 0, 0, time.UTC)
	w.WriteRecord(Record{TID: "t1", EndTime: end})
	w.WriteRecord(Record{TID: "t2", EndTime: end.Add(10 * time.Minute)})

	rows := readCSV(t, filepath.Join(dir, "cdr_2026-03-05_14.csv"))
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want header + 2 records", len(rows))
	}
	headerCount := 0
	for _, row := range rows {
		if row[0] == "tid" {
			headerCount++
		}
	}
	if headerCount != 1 {
		t.Errorf("header written %d times, want 1", headerCount)
	}
}

func TestRunRetentionSweepRemovesOldFiles(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewWriter returned error: %v", err)
	}
	defer w.Close()

	oldPath := filepath.Join(dir, "cdr_2020-01-01_00.csv")
	if err := os.WriteFile(oldPath, []byte("tid\n"), 0644); err != nil {
		t.Fatal(err)
	}
	old := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := os.Chtimes(oldPath, old, old); err != nil {
		t.Fatal(err)
	}

	w.RunRetentionSweep(time.Now(), 30)

	if _, err := os.Stat(oldPath); !os.IsNotExist(err) {
		t.Error("expected old CDR file to be removed by the retention sweep")
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	return rows
}
