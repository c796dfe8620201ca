package health

import (
	"errors"
	"testing"

	"github.com/protei/monitoring/pkg/stats"
)

func TestSnapshotReflectsRecordedCounters(t *testing.T) {
	p := NewProbe()
	p.RecordMessage()
	p.RecordMessage()
	p.RecordError(errors.New("boom"))
	p.UpdateSessionCount(3)

	snap := p.Snapshot(stats.New(), 7, 2)

	if !snap.Healthy {
		t.Error("Healthy = false, want true")
	}
	if snap.MessagesProcessed != 2 {
		t.Errorf("MessagesProcessed = %d, want 2", snap.MessagesProcessed)
	}
	if snap.ErrorCount != 1 {
		t.Errorf("ErrorCount = %d, want 1", snap.ErrorCount)
	}
	if snap.LastError != "boom" {
		t.Errorf("LastError = %q, want boom", snap.LastError)
	}
	if snap.SessionsActive != 3 {
		t.Errorf("SessionsActive = %d, want 3", snap.SessionsActive)
	}
	if snap.PersistenceDropped != 7 {
		t.Errorf("PersistenceDropped = %d, want 7", snap.PersistenceDropped)
	}
	if snap.EventsDropped != 2 {
		t.Errorf("EventsDropped = %d, want 2", snap.EventsDropped)
	}
}

func TestSnapshotUptimeIsNonNegative(t *testing.T) {
	p := NewProbe()
	snap := p.Snapshot(stats.New(), 0, 0)
	if snap.UptimeSeconds < 0 {
		t.Errorf("UptimeSeconds = %d, want >= 0", snap.UptimeSeconds)
	}
}
