// Package stats implements the rolling traffic-statistics bucket the
// dispatcher updates after every decoded message and that the analysis
// engine and health probe read as a snapshot.
package stats

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/protei/monitoring/pkg/decoder"
)

// emaAlpha is the smoothing factor for the per-procedure latency moving
// average. Lower values weight history more heavily.
const emaAlpha = 0.1

// errorWindowSize bounds both the global recent-error ring and the
// per-protocol success/failure window.
const errorWindowSize = 1000

// ErrorOccurrence records a single failed or timed-out message for the
// time-windowed detection rules (repeated-failure, timeout-pattern).
type ErrorOccurrence struct {
	Timestamp time.Time
	Protocol  decoder.Protocol
	Procedure string
	CauseCode int
	IMSI      string
	IsTimeout bool
}

type procedureStat struct {
	total     int64
	failures  int64
	latencyMA float64
	samples   int64
}

// protocolWindow is a fixed-size ring of recent success/failure outcomes
// for one protocol, used for the HIGH-ERROR-RATE rule's "last 1000
// messages" clause.
type protocolWindow struct {
	buf       [errorWindowSize]bool
	pos       int
	filled    int
	successes int
}

func (w *protocolWindow) add(success bool) {
	if w.filled < errorWindowSize {
		w.buf[w.pos] = success
		if success {
			w.successes++
		}
		w.filled++
	} else {
		if w.buf[w.pos] {
			w.successes--
		}
		w.buf[w.pos] = success
		if success {
			w.successes++
		}
	}
	w.pos = (w.pos + 1) % errorWindowSize
}

func (w *protocolWindow) successRate() float64 {
	if w.filled == 0 {
		return 1.0
	}
	return float64(w.successes) / float64(w.filled)
}

// Statistics is a rolling, thread-safe bucket of pipeline counters.
// Counters are updated via Observe; readers call the snapshot-style
// accessor methods, which never mutate state.
type Statistics struct {
	totalMessages int64 // atomic
	timeoutCount  int64 // atomic

	mu               sync.RWMutex
	errorsByProtocol map[decoder.Protocol]int64
	errorsByCode     map[decoder.Protocol]map[int]int64
	procedures       map[string]*procedureStat
	protocolWindows  map[decoder.Protocol]*protocolWindow
	recentErrors     []ErrorOccurrence // oldest first, bounded to errorWindowSize
}

// New creates an empty Statistics bucket.
func New() *Statistics {
	return &Statistics{
		errorsByProtocol: make(map[decoder.Protocol]int64),
		errorsByCode:     make(map[decoder.Protocol]map[int]int64),
		procedures:       make(map[string]*procedureStat),
		protocolWindows:  make(map[decoder.Protocol]*protocolWindow),
		recentErrors:     make([]ErrorOccurrence, 0, errorWindowSize),
	}
}

// ProcedureKey builds the (protocol, messageName) composite key used for
// per-procedure counters and the latency EMA.
func ProcedureKey(protocol decoder.Protocol, messageName string) string {
	return string(protocol) + "|" + messageName
}

// Observe records one decoded message. latency is the elapsed time since
// the paired request for this procedure, or zero if no pairing is known
// (e.g. the message itself is a request, or no prior request was seen).
func (s *Statistics) Observe(msg *decoder.Message, latency time.Duration) {
	atomic.AddInt64(&s.totalMessages, 1)

	failed := msg.Result == decoder.ResultFailure || msg.Result == decoder.ResultTimeout
	if msg.Result == decoder.ResultTimeout {
		atomic.AddInt64(&s.timeoutCount, 1)
	}

	procedure := ProcedureKey(msg.Protocol, msg.MessageName)

	s.mu.Lock()
	defer s.mu.Unlock()

	win, ok := s.protocolWindows[msg.Protocol]
	if !ok {
		win = &protocolWindow{}
		s.protocolWindows[msg.Protocol] = win
	}
	win.add(!failed)

	ps, ok := s.procedures[procedure]
	if !ok {
		ps = &procedureStat{}
		s.procedures[procedure] = ps
	}
	ps.total++
	if failed {
		ps.failures++
	}
	if latency > 0 {
		latencyMs := float64(latency.Microseconds()) / 1000.0
		if ps.samples == 0 {
			ps.latencyMA = latencyMs
		} else {
			ps.latencyMA = emaAlpha*latencyMs + (1-emaAlpha)*ps.latencyMA
		}
		ps.samples++
	}

	if failed {
		s.errorsByProtocol[msg.Protocol]++
		if msg.CauseCode != 0 {
			byCode, ok := s.errorsByCode[msg.Protocol]
			if !ok {
				byCode = make(map[int]int64)
				s.errorsByCode[msg.Protocol] = byCode
			}
			byCode[msg.CauseCode]++
		}
		occ := ErrorOccurrence{
			Timestamp: msg.Timestamp,
			Protocol:  msg.Protocol,
			Procedure: procedure,
			CauseCode: msg.CauseCode,
			IMSI:      msg.IMSI,
			IsTimeout: msg.Result == decoder.ResultTimeout,
		}
		if len(s.recentErrors) >= errorWindowSize {
			s.recentErrors = s.recentErrors[1:]
		}
		s.recentErrors = append(s.recentErrors, occ)
	}
}

// TotalMessages returns the all-time decoded message count.
func (s *Statistics) TotalMessages() int64 {
	return atomic.LoadInt64(&s.totalMessages)
}

// TimeoutCount returns the all-time timeout-classified message count.
func (s *Statistics) TimeoutCount() int64 {
	return atomic.LoadInt64(&s.timeoutCount)
}

// ProtocolSuccessRate returns the success rate over the last 1000
// messages observed for protocol (1.0 if nothing has been observed yet).
func (s *Statistics) ProtocolSuccessRate(protocol decoder.Protocol) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	win, ok := s.protocolWindows[protocol]
	if !ok {
		return 1.0
	}
	return win.successRate()
}

// ProcedureBaseline returns the current EMA latency for a procedure and
// whether at least 50 samples have been folded into it (the minimum
// before HIGH-LATENCY may fire).
func (s *Statistics) ProcedureBaseline(protocol decoder.Protocol, messageName string) (latencyMs float64, established bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ps, ok := s.procedures[ProcedureKey(protocol, messageName)]
	if !ok {
		return 0, false
	}
	return ps.latencyMA, ps.samples >= 50
}

// ProcedureCounts returns the total and failure counts recorded for a
// procedure.
func (s *Statistics) ProcedureCounts(protocol decoder.Protocol, messageName string) (total, failures int64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ps, ok := s.procedures[ProcedureKey(protocol, messageName)]
	if !ok {
		return 0, 0
	}
	return ps.total, ps.failures
}

// RecentErrorsSince returns a copy of recorded error occurrences with
// Timestamp >= since, oldest first.
func (s *Statistics) RecentErrorsSince(since time.Time) []ErrorOccurrence {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ErrorOccurrence, 0, len(s.recentErrors))
	for _, occ := range s.recentErrors {
		if !occ.Timestamp.Before(since) {
			out = append(out, occ)
		}
	}
	return out
}

// Snapshot is an immutable point-in-time copy suitable for the health
// probe and other external readers.
type Snapshot struct {
	TotalMessages    int64
	TimeoutCount     int64
	ErrorsByProtocol map[decoder.Protocol]int64
	ErrorsByCode     map[decoder.Protocol]map[int]int64
}

// Snapshot copies the counters that make sense to export wholesale. Time
// windowed and per-procedure lookups stay behind the accessor methods
// above so callers can't accidentally read a half-built copy.
func (s *Statistics) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		TotalMessages:    atomic.LoadInt64(&s.totalMessages),
		TimeoutCount:     atomic.LoadInt64(&s.timeoutCount),
		ErrorsByProtocol: make(map[decoder.Protocol]int64, len(s.errorsByProtocol)),
		ErrorsByCode:     make(map[decoder.Protocol]map[int]int64, len(s.errorsByCode)),
	}
	for k, v := range s.errorsByProtocol {
		snap.ErrorsByProtocol[k] = v
	}
	for proto, byCode := range s.errorsByCode {
		cp := make(map[int]int64, len(byCode))
		for code, count := range byCode {
			cp[code] = count
		}
		snap.ErrorsByCode[proto] = cp
	}
	return snap
}
