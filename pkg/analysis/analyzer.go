// Package analysis implements the rule-driven message inspector: on
// each decoded message it evaluates a fixed list of
// detection rules against that message and a Statistics snapshot, and
// emits zero or more Issues enriched from the knowledge base.
package analysis

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/protei/monitoring/pkg/decoder"
	"github.com/protei/monitoring/pkg/knowledge"
	"github.com/protei/monitoring/pkg/stats"
	"github.com/rs/zerolog"
)

// Issue is the product of the analysis engine: one detected condition,
// enriched from the KB when a root-cause is known.
type Issue struct {
	ID              string                 `json:"id"`
	RuleID          string                 `json:"rule_id"`
	FirstDetected   time.Time              `json:"first_detected"`
	LastDetected    time.Time              `json:"last_detected"`
	OccurrenceCount int                    `json:"occurrence_count"`
	Severity        string                 `json:"severity"` // critical, major, minor, warning
	Category        string                 `json:"category"` // protocol_error, timeout, abnormal_pattern, config_issue, performance
	Protocol        string                 `json:"protocol"`
	Title           string                 `json:"title"`
	Description     string                 `json:"description"`
	RootCause       string                 `json:"root_cause"`
	Recommendations []string               `json:"recommendations"`
	StandardRef     string                 `json:"standard_ref,omitempty"`
	AffectedIMSI    string                 `json:"affected_imsi,omitempty"`
	ErrorCode       int                    `json:"error_code,omitempty"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
}

// dedupWindow is the repeat-suppression window for duplicate Issues.
const dedupWindow = 60 * time.Second

// rule is a single detection rule: condition decides whether a message
// (plus the current statistics snapshot) triggers, action builds the
// Issue it produces.
type rule struct {
	id        string
	severity  string
	category  string
	condition func(msg *decoder.Message, st *stats.Statistics) bool
	action    func(msg *decoder.Message, kb *knowledge.KnowledgeBase) *Issue
}

// issueHistoryLimit bounds the retained issue history.
const issueHistoryLimit = 10000

// Engine runs the fixed rule list against every decoded message and
// deduplicates resulting Issues within dedupWindow.
type Engine struct {
	kb     *knowledge.KnowledgeBase
	stats  *stats.Statistics
	logger zerolog.Logger
	rules  []rule

	mu       sync.Mutex
	history  map[string]*Issue // dedup key -> most recent issue
	archived []*Issue          // issues rotated out of the dedup window, oldest first
}

// NewEngine builds the analysis engine. st is the same Statistics bucket
// the dispatcher updates; the engine only reads it.
func NewEngine(kb *knowledge.KnowledgeBase, st *stats.Statistics, logger zerolog.Logger) *Engine {
	e := &Engine{
		kb:      kb,
		stats:   st,
		logger:  logger,
		history: make(map[string]*Issue),
	}
	e.rules = e.buildRules()
	return e
}

// Analyze evaluates every rule against msg and returns the Issues it
// produced or updated this call. A deduplicated repeat returns the
// existing Issue, with its OccurrenceCount bumped and LastDetected
// advanced in place, rather than a new one.
func (e *Engine) Analyze(msg *decoder.Message) []*Issue {
	var fired []*Issue
	for _, r := range e.rules {
		if !r.condition(msg, e.stats) {
			continue
		}
		issue := r.action(msg, e.kb)
		if issue == nil {
			continue
		}
		issue.RuleID = r.id
		issue.Severity = r.severity
		issue.Category = r.category
		fired = append(fired, e.record(issue))
	}
	return fired
}

// dedupKey is (ruleId, affectedIMSI, code).
func dedupKey(issue *Issue) string {
	return issue.RuleID + "|" + issue.AffectedIMSI + "|" + fmt.Sprint(issue.ErrorCode)
}

// record applies the 60s repeat-suppression window: within the window an
// identical (ruleId, imsi, code) increments occurrenceCount on the
// existing Issue instead of creating a new one.
func (e *Engine) record(issue *Issue) *Issue {
	e.mu.Lock()
	defer e.mu.Unlock()

	key := dedupKey(issue)
	if existing, ok := e.history[key]; ok {
		if issue.FirstDetected.Sub(existing.LastDetected) <= dedupWindow {
			existing.OccurrenceCount++
			existing.LastDetected = issue.FirstDetected
			return existing
		}
		// Outside the window: the old issue is final, rotate it out.
		e.archived = append(e.archived, existing)
		if len(e.archived) > issueHistoryLimit {
			e.archived = e.archived[len(e.archived)-issueHistoryLimit:]
		}
	}

	issue.LastDetected = issue.FirstDetected
	issue.OccurrenceCount = 1
	e.history[key] = issue
	e.logger.Warn().
		Str("rule_id", issue.RuleID).
		Str("severity", issue.Severity).
		Str("imsi", issue.AffectedIMSI).
		Msg("issue detected")
	return issue
}

// Issues returns a snapshot of every Issue tracked so far (including
// suppressed repeats, reflected via OccurrenceCount).
func (e *Engine) Issues() []*Issue {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Issue, 0, len(e.archived)+len(e.history))
	out = append(out, e.archived...)
	for _, issue := range e.history {
		out = append(out, issue)
	}
	return out
}

// errorCodeLookup resolves (protocol, code) against the KB, populating
// RootCause/Recommendations/StandardRef, and falls back to a generic
// root-cause string when the KB has no entry.
func errorCodeLookup(kb *knowledge.KnowledgeBase, protocol string, code int, issue *Issue) {
	ref, err := kb.GetErrorCode(protocol, code)
	if err != nil || ref == nil {
		issue.RootCause = fmt.Sprintf("No knowledge-base entry for %s code %d.", protocol, code)
		return
	}
	issue.RootCause = ref.Causes
	issue.Recommendations = strings.Split(ref.Solutions, ". ")
	issue.StandardRef = ref.StandardRef
}

func (e *Engine) buildRules() []rule {
	return []rule{
		diameterResultRule("DIAM-5001", 5001, "major", "Subscriber Not Found in HSS",
			"HSS returned DIAMETER_ERROR_USER_UNKNOWN: the IMSI is not provisioned."),
		diameterResultRule("DIAM-5004", 5004, "major", "Roaming Not Allowed",
			"HSS rejected the request: subscriber is not permitted to roam in the visited network."),
		diameterResultRule("DIAM-5012", 5012, "major", "RAT Not Allowed",
			"HSS rejected the request: the subscriber's RAT type is restricted."),
		diameterResultRule("DIAM-4181", 4181, "critical", "Authentication Data Unavailable",
			"HSS has no authentication vectors available for this subscriber."),

		gtpCauseRule("GTP-CTX-NOT-FOUND", 64, "major", "protocol_error", "GTP Session Context Not Found",
			"Receiving node cannot find the requested GTP context."),
		gtpNoResourcesRule(),
		gtpCauseRule("GTP-MISSING-APN", 67, "major", "config_issue", "APN Not Recognised",
			"PGW/SMF rejected the Create Session Request: APN is missing or unknown."),

		mapErrorRule("MAP-UNKNOWN-SUBSCRIBER", 1, "major", "Unknown Subscriber",
			"HLR reports the subscriber is unknown."),
		mapErrorRule("MAP-SYSTEM-FAILURE", 34, "critical", "MAP System Failure",
			"HLR reports an internal system failure processing the request."),

		nasCauseRule("NAS-PLMN-NOT-ALLOWED", 11, "major", "PLMN Not Allowed",
			"Network rejected the UE: PLMN is not in the allowed list for this subscriber."),

		highErrorRateRule(),
		highLatencyRule(),
		repeatedFailureRule(),
		timeoutPatternRule(),
	}
}

func diameterResultRule(id string, code int, severity, title, desc string) rule {
	return rule{
		id:       id,
		severity: severity,
		category: "protocol_error",
		condition: func(msg *decoder.Message, st *stats.Statistics) bool {
			return msg.Protocol == decoder.ProtocolDiameter && msg.CauseCode == code
		},
		action: func(msg *decoder.Message, kb *knowledge.KnowledgeBase) *Issue {
			issue := &Issue{
				ID:            fmt.Sprintf("%s-%s", id, msg.ID),
				FirstDetected: msg.Timestamp,
				Protocol:      string(decoder.ProtocolDiameter),
				Title:         title,
				Description:   desc,
				ErrorCode:     code,
				AffectedIMSI:  msg.IMSI,
			}
			errorCodeLookup(kb, "Diameter", code, issue)
			return issue
		},
	}
}

func gtpCauseRule(id string, cause int, severity, category, title, desc string) rule {
	return rule{
		id:       id,
		severity: severity,
		category: category,
		condition: func(msg *decoder.Message, st *stats.Statistics) bool {
			return (msg.Protocol == decoder.ProtocolGTPv1C || msg.Protocol == decoder.ProtocolGTPv2C) && msg.CauseCode == cause
		},
		action: func(msg *decoder.Message, kb *knowledge.KnowledgeBase) *Issue {
			issue := &Issue{
				ID:            fmt.Sprintf("%s-%s", id, msg.ID),
				FirstDetected: msg.Timestamp,
				Protocol:      string(msg.Protocol),
				Title:         title,
				Description:   desc,
				ErrorCode:     cause,
				AffectedIMSI:  msg.IMSI,
			}
			if msg.APN != "" {
				issue.Metadata = map[string]interface{}{"apn": msg.APN}
				issue.Description = fmt.Sprintf("%s (APN=%s)", desc, msg.APN)
			}
			errorCodeLookup(kb, "GTP", cause, issue)
			return issue
		},
	}
}

// gtpNoResourcesRule implements GTP-NO-RESOURCES, aliasing cause 73 and
// 91 to the same rule.
func gtpNoResourcesRule() rule {
	return rule{
		id:       "GTP-NO-RESOURCES",
		severity: "critical",
		category: "performance",
		condition: func(msg *decoder.Message, st *stats.Statistics) bool {
			if msg.Protocol != decoder.ProtocolGTPv1C && msg.Protocol != decoder.ProtocolGTPv2C {
				return false
			}
			return msg.CauseCode == 73 || msg.CauseCode == 91
		},
		action: func(msg *decoder.Message, kb *knowledge.KnowledgeBase) *Issue {
			issue := &Issue{
				ID:            fmt.Sprintf("GTP-NO-RESOURCES-%s", msg.ID),
				FirstDetected: msg.Timestamp,
				Protocol:      string(msg.Protocol),
				Title:         "Network Node Resource Exhaustion",
				Description:   "SGW/PGW/UPF reports insufficient resources to handle the request.",
				ErrorCode:     msg.CauseCode,
				AffectedIMSI:  msg.IMSI,
			}
			errorCodeLookup(kb, "GTP", msg.CauseCode, issue)
			return issue
		},
	}
}

func mapErrorRule(id string, code int, severity, title, desc string) rule {
	return rule{
		id:       id,
		severity: severity,
		category: "protocol_error",
		condition: func(msg *decoder.Message, st *stats.Statistics) bool {
			return msg.Protocol == decoder.ProtocolMAP && msg.CauseCode == code
		},
		action: func(msg *decoder.Message, kb *knowledge.KnowledgeBase) *Issue {
			issue := &Issue{
				ID:            fmt.Sprintf("%s-%s", id, msg.ID),
				FirstDetected: msg.Timestamp,
				Protocol:      string(decoder.ProtocolMAP),
				Title:         title,
				Description:   desc,
				ErrorCode:     code,
				AffectedIMSI:  msg.IMSI,
			}
			errorCodeLookup(kb, "MAP", code, issue)
			return issue
		},
	}
}

func nasCauseRule(id string, cause int, severity, title, desc string) rule {
	return rule{
		id:       id,
		severity: severity,
		category: "protocol_error",
		condition: func(msg *decoder.Message, st *stats.Statistics) bool {
			return (msg.Protocol == decoder.ProtocolNAS4G || msg.Protocol == decoder.ProtocolNAS5G) && msg.CauseCode == cause
		},
		action: func(msg *decoder.Message, kb *knowledge.KnowledgeBase) *Issue {
			issue := &Issue{
				ID:            fmt.Sprintf("%s-%s", id, msg.ID),
				FirstDetected: msg.Timestamp,
				Protocol:      string(msg.Protocol),
				Title:         title,
				Description:   desc,
				ErrorCode:     cause,
				AffectedIMSI:  msg.IMSI,
			}
			errorCodeLookup(kb, "NAS", cause, issue)
			return issue
		},
	}
}

// highErrorRateRule fires when a protocol's success rate over its last
// 1000 observed messages drops below 95%.
func highErrorRateRule() rule {
	const threshold = 0.95
	return rule{
		id:       "HIGH-ERROR-RATE",
		severity: "major",
		category: "abnormal_pattern",
		condition: func(msg *decoder.Message, st *stats.Statistics) bool {
			return st.ProtocolSuccessRate(msg.Protocol) < threshold
		},
		action: func(msg *decoder.Message, kb *knowledge.KnowledgeBase) *Issue {
			return &Issue{
				ID:            fmt.Sprintf("HIGH-ERROR-RATE-%s-%s", msg.Protocol, msg.ID),
				FirstDetected: msg.Timestamp,
				Protocol:      string(msg.Protocol),
				Title:         fmt.Sprintf("High Error Rate on %s", msg.Protocol),
				Description:   fmt.Sprintf("Success rate for %s has dropped below %.0f%% over the last 1000 messages.", msg.Protocol, threshold*100),
				RootCause:     "Multiple failures detected; possible network congestion, configuration change, or backend overload.",
				Recommendations: []string{
					"Review recent configuration changes",
					"Check backend system health and logs",
					"Analyze error code distribution to isolate the failing component",
				},
			}
		},
	}
}

// highLatencyRule fires when an observed procedure latency exceeds twice
// its established EMA baseline (>=50 samples).
func highLatencyRule() rule {
	return rule{
		id:       "HIGH-LATENCY",
		severity: "warning",
		category: "performance",
		condition: func(msg *decoder.Message, st *stats.Statistics) bool {
			latencyMs, ok := msg.Details["latency_ms"].(float64)
			if !ok || latencyMs <= 0 {
				return false
			}
			baseline, established := st.ProcedureBaseline(msg.Protocol, msg.MessageName)
			return established && latencyMs > baseline*2.0
		},
		action: func(msg *decoder.Message, kb *knowledge.KnowledgeBase) *Issue {
			latencyMs, _ := msg.Details["latency_ms"].(float64)
			return &Issue{
				ID:            fmt.Sprintf("HIGH-LATENCY-%s-%s", msg.MessageName, msg.ID),
				FirstDetected: msg.Timestamp,
				Protocol:      string(msg.Protocol),
				Title:         fmt.Sprintf("High Latency for %s", msg.MessageName),
				Description:   fmt.Sprintf("%s took %.2f ms, more than twice the established baseline.", msg.MessageName, latencyMs),
				RootCause:     "Possible network congestion, slow backend response, or resource contention.",
				Recommendations: []string{
					"Check network latency between the involved nodes",
					"Review backend system performance and load",
					"Check for CPU/memory/I/O contention",
				},
			}
		},
	}
}

// repeatedFailureRule fires on the third or later failure sharing
// (protocol, causeCode, imsi) within a 60s window; condition re-derives
// the count from Statistics' recent-error ring on every call, so the
// dedup logic in record() is what keeps this to one Issue.
func repeatedFailureRule() rule {
	return rule{
		id:       "REPEATED-FAILURE-SAME-IMSI",
		severity: "major",
		category: "abnormal_pattern",
		condition: func(msg *decoder.Message, st *stats.Statistics) bool {
			if msg.Result != decoder.ResultFailure || msg.IMSI == "" {
				return false
			}
			since := msg.Timestamp.Add(-dedupWindow)
			count := 0
			for _, occ := range st.RecentErrorsSince(since) {
				if occ.Protocol == msg.Protocol && occ.CauseCode == msg.CauseCode && occ.IMSI == msg.IMSI {
					count++
				}
			}
			return count >= 3
		},
		action: func(msg *decoder.Message, kb *knowledge.KnowledgeBase) *Issue {
			issue := &Issue{
				ID:            fmt.Sprintf("REPEATED-FAILURE-%s-%s", msg.IMSI, msg.ID),
				FirstDetected: msg.Timestamp,
				Protocol:      string(msg.Protocol),
				Title:         "Repeated Failures for Subscriber",
				Description:   fmt.Sprintf("IMSI %s has repeated %s failures (cause %d) within 60s.", msg.IMSI, msg.Protocol, msg.CauseCode),
				ErrorCode:     msg.CauseCode,
				AffectedIMSI:  msg.IMSI,
			}
			errorCodeLookup(kb, string(msg.Protocol), msg.CauseCode, issue)
			return issue
		},
	}
}

// timeoutPatternRule fires when more than 5 timeout-classified messages
// for the same procedure occurred in the last 60s.
func timeoutPatternRule() rule {
	return rule{
		id:       "TIMEOUT-PATTERN",
		severity: "major",
		category: "performance",
		condition: func(msg *decoder.Message, st *stats.Statistics) bool {
			if msg.Result != decoder.ResultTimeout {
				return false
			}
			procedure := stats.ProcedureKey(msg.Protocol, msg.MessageName)
			since := msg.Timestamp.Add(-dedupWindow)
			count := 0
			for _, occ := range st.RecentErrorsSince(since) {
				if occ.IsTimeout && occ.Procedure == procedure {
					count++
				}
			}
			return count > 5
		},
		action: func(msg *decoder.Message, kb *knowledge.KnowledgeBase) *Issue {
			return &Issue{
				ID:            fmt.Sprintf("TIMEOUT-PATTERN-%s-%s", msg.MessageName, msg.ID),
				FirstDetected: msg.Timestamp,
				Protocol:      string(msg.Protocol),
				Title:         fmt.Sprintf("Timeout Pattern on %s", msg.MessageName),
				Description:   fmt.Sprintf("More than 5 timeouts observed for %s in the last 60s.", msg.MessageName),
				RootCause:     "Possible peer unavailability, network partition, or overload causing the peer to stop responding in time.",
				Recommendations: []string{
					"Check peer node reachability and health",
					"Review timeout configuration against observed RTT",
					"Check for network-level packet loss",
				},
			}
		},
	}
}
