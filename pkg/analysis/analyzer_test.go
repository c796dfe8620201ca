package analysis

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/protei/monitoring/pkg/decoder"
	"github.com/protei/monitoring/pkg/knowledge"
	"github.com/protei/monitoring/pkg/stats"
)

func newTestEngine() (*Engine, *stats.Statistics) {
	st := stats.New()
	kb := knowledge.NewKnowledgeBase()
	return NewEngine(kb, st, zerolog.Nop()), st
}

func TestAnalyzeDiameterUserUnknownFires(t *testing.T) {
	e, _ := newTestEngine()

	msg := &decoder.Message{
		ID:        "m1",
		Protocol:  decoder.ProtocolDiameter,
		Result:    decoder.ResultFailure,
		CauseCode: 5001,
		IMSI:      "001010000000001",
		Timestamp: time.Now(),
	}

	issues := e.Analyze(msg)
	if len(issues) != 1 {
		t.Fatalf("Analyze returned %d issues, want 1", len(issues))
	}
	issue := issues[0]
	if issue.RuleID != "DIAM-5001" {
		t.Errorf("RuleID = %q, want DIAM-5001", issue.RuleID)
	}
	if issue.Severity != "major" {
		t.Errorf("Severity = %q, want major", issue.Severity)
	}
	if issue.RootCause == "" {
		t.Error("RootCause not populated from knowledge base")
	}
	if len(issue.Recommendations) == 0 {
		t.Error("Recommendations not populated from knowledge base")
	}
}

func TestAnalyzeMapSystemFailureDedupesRepeats(t *testing.T) {
	e, _ := newTestEngine()

	base := time.Now()
	var last *Issue
	for i := 0; i < 5; i++ {
		msg := &decoder.Message{
			ID:        "m",
			Protocol:  decoder.ProtocolMAP,
			Result:    decoder.ResultFailure,
			CauseCode: 34,
			IMSI:      "001010000000001",
			Timestamp: base.Add(time.Duration(i) * time.Second),
		}
		issues := e.Analyze(msg)
		if len(issues) != 1 {
			t.Fatalf("iteration %d: Analyze returned %d issues, want 1", i, len(issues))
		}
		last = issues[0]
	}

	if last.RuleID != "MAP-SYSTEM-FAILURE" {
		t.Fatalf("RuleID = %q, want MAP-SYSTEM-FAILURE", last.RuleID)
	}
	if last.OccurrenceCount != 5 {
		t.Errorf("OccurrenceCount = %d, want 5 (deduped within the 60s window)", last.OccurrenceCount)
	}

	all := e.Issues()
	if len(all) != 1 {
		t.Errorf("Issues() returned %d tracked issues, want 1", len(all))
	}
}

func TestAnalyzeDedupWindowExpiresAfter60s(t *testing.T) {
	e, _ := newTestEngine()

	base := time.Now()
	first := &decoder.Message{
		ID: "m1", Protocol: decoder.ProtocolMAP, Result: decoder.ResultFailure,
		CauseCode: 34, IMSI: "001010000000001", Timestamp: base,
	}
	second := &decoder.Message{
		ID: "m2", Protocol: decoder.ProtocolMAP, Result: decoder.ResultFailure,
		CauseCode: 34, IMSI: "001010000000001", Timestamp: base.Add(90 * time.Second),
	}

	e.Analyze(first)
	issues := e.Analyze(second)
	if len(issues) != 1 {
		t.Fatalf("Analyze returned %d issues, want 1", len(issues))
	}
	if issues[0].OccurrenceCount != 1 {
		t.Errorf("OccurrenceCount = %d, want 1 (outside the dedup window, new Issue)", issues[0].OccurrenceCount)
	}
	if len(e.Issues()) != 2 {
		t.Errorf("Issues() = %d, want 2 separate tracked issues", len(e.Issues()))
	}
}

func TestAnalyzeGtpNoResourcesAliasesCauses(t *testing.T) {
	e, _ := newTestEngine()

	for _, cause := range []int{73, 91} {
		msg := &decoder.Message{
			ID:        "m",
			Protocol:  decoder.ProtocolGTPv2C,
			Result:    decoder.ResultFailure,
			CauseCode: cause,
			Timestamp: time.Now(),
		}
		issues := e.Analyze(msg)
		if len(issues) != 1 || issues[0].RuleID != "GTP-NO-RESOURCES" {
			t.Errorf("cause %d did not fire GTP-NO-RESOURCES, got %+v", cause, issues)
		}
	}
}

func TestAnalyzeKnownErrorCodeGetsKnowledgeBaseRootCause(t *testing.T) {
	e, st := newTestEngine()
	_ = st

	msg := &decoder.Message{
		ID:        "m1",
		Protocol:  decoder.ProtocolMAP,
		Result:    decoder.ResultFailure,
		CauseCode: 34,
		IMSI:      "001010000000001",
		Timestamp: time.Now(),
	}
	issues := e.Analyze(msg)
	if len(issues) != 1 {
		t.Fatalf("Analyze returned %d issues, want 1", len(issues))
	}
	if issues[0].RootCause == "" {
		t.Error("expected a populated RootCause from the knowledge base")
	}
}

func TestAnalyzeHighErrorRateFires(t *testing.T) {
	e, st := newTestEngine()

	for i := 0; i < 90; i++ {
		st.Observe(&decoder.Message{Protocol: decoder.ProtocolGTPv2C, Result: decoder.ResultSuccess}, 0)
	}
	for i := 0; i < 10; i++ {
		st.Observe(&decoder.Message{Protocol: decoder.ProtocolGTPv2C, Result: decoder.ResultFailure}, 0)
	}

	msg := &decoder.Message{ID: "m", Protocol: decoder.ProtocolGTPv2C, Result: decoder.ResultFailure, Timestamp: time.Now()}
	issues := e.Analyze(msg)

	found := false
	for _, issue := range issues {
		if issue.RuleID == "HIGH-ERROR-RATE" {
			found = true
		}
	}
	if !found {
		t.Error("expected HIGH-ERROR-RATE to fire once success rate drops under 95%")
	}
}

func TestAnalyzeHighLatencyRequiresEstablishedBaseline(t *testing.T) {
	e, st := newTestEngine()

	baseMsg := &decoder.Message{Protocol: decoder.ProtocolDiameter, MessageName: "ULR", Result: decoder.ResultSuccess}
	for i := 0; i < 50; i++ {
		st.Observe(baseMsg, 100*time.Millisecond)
	}

	slow := &decoder.Message{
		ID:          "m",
		Protocol:    decoder.ProtocolDiameter,
		MessageName: "ULR",
		Result:      decoder.ResultSuccess,
		Timestamp:   time.Now(),
		Details:     map[string]interface{}{"latency_ms": 500.0},
	}
	issues := e.Analyze(slow)

	found := false
	for _, issue := range issues {
		if issue.RuleID == "HIGH-LATENCY" {
			found = true
		}
	}
	if !found {
		t.Error("expected HIGH-LATENCY to fire for a sample over 2x the established baseline")
	}
}

func TestAnalyzeHighLatencyDoesNotFireWithoutBaseline(t *testing.T) {
	e, _ := newTestEngine()

	slow := &decoder.Message{
		ID:          "m",
		Protocol:    decoder.ProtocolDiameter,
		MessageName: "ULR",
		Result:      decoder.ResultSuccess,
		Timestamp:   time.Now(),
		Details:     map[string]interface{}{"latency_ms": 5000.0},
	}
	issues := e.Analyze(slow)
	for _, issue := range issues {
		if issue.RuleID == "HIGH-LATENCY" {
			t.Error("HIGH-LATENCY fired before a baseline was established")
		}
	}
}

func TestAnalyzeRepeatedFailureSameIMSI(t *testing.T) {
	e, st := newTestEngine()

	base := time.Now()
	var last []*Issue
	for i := 0; i < 3; i++ {
		msg := &decoder.Message{
			ID:        "m",
			Protocol:  decoder.ProtocolMAP,
			Result:    decoder.ResultFailure,
			CauseCode: 34,
			IMSI:      "001010000000009",
			Timestamp: base.Add(time.Duration(i) * time.Second),
		}
		st.Observe(msg, 0)
		last = e.Analyze(msg)
	}

	found := false
	for _, issue := range last {
		if issue.RuleID == "REPEATED-FAILURE-SAME-IMSI" {
			found = true
		}
	}
	if !found {
		t.Error("expected REPEATED-FAILURE-SAME-IMSI to fire on the third same-cause failure within 60s")
	}
}

func TestAnalyzeTimeoutPattern(t *testing.T) {
	e, st := newTestEngine()

	base := time.Now()
	var last []*Issue
	for i := 0; i < 6; i++ {
		msg := &decoder.Message{
			ID:          "m",
			Protocol:    decoder.ProtocolDiameter,
			MessageName: "ULR",
			Result:      decoder.ResultTimeout,
			Timestamp:   base.Add(time.Duration(i) * time.Second),
		}
		st.Observe(msg, 0)
		last = e.Analyze(msg)
	}

	found := false
	for _, issue := range last {
		if issue.RuleID == "TIMEOUT-PATTERN" {
			found = true
		}
	}
	if !found {
		t.Error("expected TIMEOUT-PATTERN to fire after more than 5 timeouts in 60s")
	}
}

func TestAnalyzeNoRuleFiresOnCleanSuccess(t *testing.T) {
	e, _ := newTestEngine()

	msg := &decoder.Message{
		ID:        "m",
		Protocol:  decoder.ProtocolDiameter,
		Result:    decoder.ResultSuccess,
		Timestamp: time.Now(),
	}
	if issues := e.Analyze(msg); len(issues) != 0 {
		t.Errorf("Analyze fired %d issues on a clean success message, want 0", len(issues))
	}
}
