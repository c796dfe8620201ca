package correlation

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/protei/monitoring/pkg/decoder"
)

func newTestEngine() *Engine {
	return NewEngine(Config{SessionTimeout: time.Minute, SweepInterval: time.Hour}, nil, zerolog.Nop())
}

func msgAt(protocol decoder.Protocol, offset time.Duration) *decoder.Message {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return &decoder.Message{
		ID:        "m",
		Protocol:  protocol,
		Timestamp: base.Add(offset),
		Result:    decoder.ResultSuccess,
	}
}

func TestObserveCreatesNewSession(t *testing.T) {
	e := newTestEngine()
	defer e.Stop()

	msg := msgAt(decoder.ProtocolDiameter, 0)
	msg.IMSI = "001010000000001"

	session := e.Observe(msg)
	if session == nil {
		t.Fatal("Observe returned nil session")
	}
	if session.Status != StatusActive {
		t.Errorf("Status = %q, want active", session.Status)
	}
	if got, ok := e.GetSessionByIdentifier(IdentifierIMSI, "001010000000001"); !ok || got.ID != session.ID {
		t.Errorf("identifier index does not map IMSI to the created session")
	}
}

func TestObserveJoinsExistingSession(t *testing.T) {
	e := newTestEngine()
	defer e.Stop()

	first := msgAt(decoder.ProtocolDiameter, 0)
	first.IMSI = "001010000000001"
	session := e.Observe(first)

	second := msgAt(decoder.ProtocolDiameter, time.Second)
	second.IMSI = "001010000000001"
	joined := e.Observe(second)

	if joined.ID != session.ID {
		t.Fatalf("second message joined session %q, want %q", joined.ID, session.ID)
	}
	msgs, _, _, _ := joined.Snapshot()
	if len(msgs) != 2 {
		t.Errorf("session has %d messages, want 2", len(msgs))
	}
}

func TestObserveMergesOnSharedIdentifier(t *testing.T) {
	e := newTestEngine()
	defer e.Stop()

	// Session A: Diameter message carrying IMSI only.
	diamMsg := msgAt(decoder.ProtocolDiameter, 0)
	diamMsg.IMSI = "001010000000001"
	sessionA := e.Observe(diamMsg)

	// Session B: GTP CreateSession carrying a TEID only, no IMSI.
	gtpCreate := msgAt(decoder.ProtocolGTPv2C, time.Second)
	gtpCreate.TEID = 42
	sessionB := e.Observe(gtpCreate)

	if sessionA.ID == sessionB.ID {
		t.Fatal("sessions A and B should start independent")
	}

	// Bridging message carries both identifiers -> triggers merge.
	bridge := msgAt(decoder.ProtocolGTPv2C, 2*time.Second)
	bridge.IMSI = "001010000000001"
	bridge.TEID = 42
	survivor := e.Observe(bridge)

	msgs, status, _, _ := survivor.Snapshot()
	if len(msgs) != 3 {
		t.Errorf("survivor has %d messages, want 3 (diam + gtp-create + bridge)", len(msgs))
	}
	if status != StatusActive {
		t.Errorf("survivor status = %q, want active", status)
	}
	for i := 1; i < len(msgs); i++ {
		if msgs[i].Timestamp.Before(msgs[i-1].Timestamp) {
			t.Errorf("survivor messages not timestamp-ordered after merge: %v before %v", msgs[i].Timestamp, msgs[i-1].Timestamp)
		}
	}

	imsiSession, ok := e.GetSessionByIdentifier(IdentifierIMSI, "001010000000001")
	if !ok || imsiSession.ID != survivor.ID {
		t.Error("identifier index does not point IMSI at the merge survivor")
	}
	teidSession, ok := e.GetSessionByIdentifier(IdentifierTEID, "42")
	if !ok || teidSession.ID != survivor.ID {
		t.Error("identifier index does not point TEID at the merge survivor")
	}

	loserID := sessionA.ID
	if survivor.ID == sessionA.ID {
		loserID = sessionB.ID
	}
	if _, ok := e.GetSession(loserID); ok {
		t.Error("losing session is still reachable by id after merge")
	}
}

func TestTerminalMessageCompletesSession(t *testing.T) {
	e := newTestEngine()
	defer e.Stop()

	create := msgAt(decoder.ProtocolGTPv2C, 0)
	create.TEID = 7
	create.MessageName = "CreateSessionRequest"
	session := e.Observe(create)

	deleteResp := msgAt(decoder.ProtocolGTPv2C, time.Second)
	deleteResp.TEID = 7
	deleteResp.MessageName = "DeleteSessionResponse"
	e.Observe(deleteResp)

	if session.Status != StatusCompleted {
		t.Errorf("session status = %q, want completed after terminal message", session.Status)
	}
	if _, ok := e.GetSession(session.ID); ok {
		t.Error("completed session is still reachable via GetSession")
	}
}

func TestCompletedSessionNeverAppended(t *testing.T) {
	e := newTestEngine()
	defer e.Stop()

	create := msgAt(decoder.ProtocolGTPv2C, 0)
	create.TEID = 7
	create.MessageName = "CreateSessionRequest"
	session := e.Observe(create)

	deleteResp := msgAt(decoder.ProtocolGTPv2C, time.Second)
	deleteResp.TEID = 7
	deleteResp.MessageName = "DeleteSessionResponse"
	e.Observe(deleteResp)

	msgsBefore, _, _, _ := session.Snapshot()

	// A stray late message for the same TEID must not resurrect the
	// completed session's message list (it's no longer indexed, so it
	// starts a brand-new session instead).
	late := msgAt(decoder.ProtocolGTPv2C, 2*time.Second)
	late.TEID = 7
	newSess := e.Observe(late)

	if newSess.ID == session.ID {
		t.Fatal("a message arriving after completion should not be attributed to the completed session")
	}
	msgsAfter, _, _, _ := session.Snapshot()
	if len(msgsAfter) != len(msgsBefore) {
		t.Errorf("completed session's message list changed: had %d, now %d", len(msgsBefore), len(msgsAfter))
	}
}

func TestSweepExpiresIdleSessions(t *testing.T) {
	e := NewEngine(Config{SessionTimeout: 10 * time.Millisecond, SweepInterval: 5 * time.Millisecond}, nil, zerolog.Nop())
	defer e.Stop()

	msg := &decoder.Message{ID: "m", Protocol: decoder.ProtocolDiameter, Timestamp: time.Now(), IMSI: "001010000000001"}
	session := e.Observe(msg)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := e.GetSession(session.ID); !ok {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	if _, ok := e.GetSession(session.ID); ok {
		t.Fatal("idle session was not expired by the sweep")
	}
	if e.GetStats().ExpiredSessions != 1 {
		t.Errorf("ExpiredSessions = %d, want 1", e.GetStats().ExpiredSessions)
	}
}

func TestForceCompleteAll(t *testing.T) {
	e := newTestEngine()

	msg := &decoder.Message{ID: "m", Protocol: decoder.ProtocolDiameter, Timestamp: time.Now(), IMSI: "001010000000001"}
	session := e.Observe(msg)

	e.ForceCompleteAll()
	e.Stop()

	if session.Status == StatusActive {
		t.Error("ForceCompleteAll left a session active")
	}
	if _, ok := e.GetSession(session.ID); ok {
		t.Error("ForceCompleteAll left a session reachable by id")
	}
}
