package stats

import (
	"testing"
	"time"

	"github.com/protei/monitoring/pkg/decoder"
)

func TestObserveTotalsAndTimeouts(t *testing.T) {
	s := New()
	s.Observe(&decoder.Message{Protocol: decoder.ProtocolDiameter, Result: decoder.ResultSuccess}, 0)
	s.Observe(&decoder.Message{Protocol: decoder.ProtocolDiameter, Result: decoder.ResultTimeout}, 0)

	if s.TotalMessages() != 2 {
		t.Errorf("TotalMessages = %d, want 2", s.TotalMessages())
	}
	if s.TimeoutCount() != 1 {
		t.Errorf("TimeoutCount = %d, want 1", s.TimeoutCount())
	}
}

func TestProtocolSuccessRateDefaultsToPerfect(t *testing.T) {
	s := New()
	if rate := s.ProtocolSuccessRate(decoder.ProtocolMAP); rate != 1.0 {
		t.Errorf("ProtocolSuccessRate on unseen protocol = %v, want 1.0", rate)
	}
}

func TestProtocolSuccessRateDropsWithFailures(t *testing.T) {
	s := New()
	for i := 0; i < 95; i++ {
		s.Observe(&decoder.Message{Protocol: decoder.ProtocolGTPv2C, Result: decoder.ResultSuccess}, 0)
	}
	for i := 0; i < 5; i++ {
		s.Observe(&decoder.Message{Protocol: decoder.ProtocolGTPv2C, Result: decoder.ResultFailure}, 0)
	}
	if rate := s.ProtocolSuccessRate(decoder.ProtocolGTPv2C); rate != 0.95 {
		t.Errorf("ProtocolSuccessRate = %v, want 0.95", rate)
	}
}

func TestProcedureBaselineRequiresFiftySamples(t *testing.T) {
	s := New()
	msg := &decoder.Message{Protocol: decoder.ProtocolDiameter, MessageName: "ULR", Result: decoder.ResultSuccess}

	for i := 0; i < 49; i++ {
		s.Observe(msg, 100*time.Millisecond)
	}
	if _, established := s.ProcedureBaseline(decoder.ProtocolDiameter, "ULR"); established {
		t.Error("ProcedureBaseline established after only 49 samples, want not established")
	}

	s.Observe(msg, 100*time.Millisecond)
	baseline, established := s.ProcedureBaseline(decoder.ProtocolDiameter, "ULR")
	if !established {
		t.Fatal("ProcedureBaseline not established after 50 samples")
	}
	if baseline <= 0 {
		t.Errorf("baseline latency = %v, want > 0", baseline)
	}
}

func TestRecentErrorsSinceFiltersByTime(t *testing.T) {
	s := New()
	now := time.Now()

	s.Observe(&decoder.Message{Protocol: decoder.ProtocolMAP, Result: decoder.ResultFailure, CauseCode: 34, IMSI: "x", Timestamp: now.Add(-2 * time.Minute)}, 0)
	s.Observe(&decoder.Message{Protocol: decoder.ProtocolMAP, Result: decoder.ResultFailure, CauseCode: 34, IMSI: "x", Timestamp: now}, 0)

	recent := s.RecentErrorsSince(now.Add(-time.Minute))
	if len(recent) != 1 {
		t.Fatalf("RecentErrorsSince returned %d entries, want 1", len(recent))
	}
	if recent[0].CauseCode != 34 {
		t.Errorf("CauseCode = %d, want 34", recent[0].CauseCode)
	}
}

func TestProcedureCounts(t *testing.T) {
	s := New()
	msg := &decoder.Message{Protocol: decoder.ProtocolGTPv2C, MessageName: "CreateSessionRequest", Result: decoder.ResultSuccess}
	failMsg := &decoder.Message{Protocol: decoder.ProtocolGTPv2C, MessageName: "CreateSessionRequest", Result: decoder.ResultFailure}

	s.Observe(msg, 0)
	s.Observe(msg, 0)
	s.Observe(failMsg, 0)

	total, failures := s.ProcedureCounts(decoder.ProtocolGTPv2C, "CreateSessionRequest")
	if total != 3 || failures != 1 {
		t.Errorf("ProcedureCounts = (%d, %d), want (3, 1)", total, failures)
	}
}

func TestSnapshotIsIndependentCopy(t *testing.T) {
	s := New()
	s.Observe(&decoder.Message{Protocol: decoder.ProtocolDiameter, Result: decoder.ResultFailure, CauseCode: 5001}, 0)

	snap := s.Snapshot()
	snap.ErrorsByProtocol[decoder.ProtocolDiameter] = 999

	if got := s.Snapshot().ErrorsByProtocol[decoder.ProtocolDiameter]; got != 1 {
		t.Errorf("mutating a returned Snapshot affected internal state: got %d, want 1", got)
	}
}
