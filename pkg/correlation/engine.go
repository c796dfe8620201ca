// Package correlation stitches decoded protocol messages into end-to-end
// subscriber sessions via a multi-identifier index.
package correlation

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/protei/monitoring/pkg/decoder"
	"github.com/protei/monitoring/pkg/persistence"
)

const shardCount = 16

// Config controls the engine's timers and buffers.
type Config struct {
	SessionTimeout  time.Duration // default 300s
	SweepInterval   time.Duration // default 30s
	OnSessionClosed func(*Session)
}

// shard guards one partition of the session store. The identifier index
// is kept global (not sharded) because a single incoming message's
// identifier set routinely spans sessions that would otherwise hash to
// different shards, and correlation step 2 ("look up every identifier")
// must see a consistent view before deciding the merge case.
type shard struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// Engine is the correlation engine.
type Engine struct {
	shards [shardCount]*shard

	idxMu index
	persist *persistence.Store

	cfg    Config
	logger zerolog.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup

	statsMu sync.Mutex
	stats   Stats
}

// Stats are cheap counters surfaced to the health/statistics reader.
type Stats struct {
	TotalSessions   int64
	ActiveSessions  int64
	MergedSessions  int64
	ExpiredSessions int64
}

type index struct {
	mu  sync.RWMutex
	idx map[IdentifierType]map[string]*Session
}

// NewEngine creates a correlation engine. persist may be nil (no DB).
func NewEngine(cfg Config, persist *persistence.Store, logger zerolog.Logger) *Engine {
	if cfg.SessionTimeout <= 0 {
		cfg.SessionTimeout = 300 * time.Second
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 30 * time.Second
	}

	e := &Engine{
		cfg:     cfg,
		persist: persist,
		logger:  logger,
		stopCh:  make(chan struct{}),
	}
	e.idxMu.idx = make(map[IdentifierType]map[string]*Session)
	for _, t := range allIdentifierTypes {
		e.idxMu.idx[t] = make(map[string]*Session)
	}
	for i := range e.shards {
		e.shards[i] = &shard{sessions: make(map[string]*Session)}
	}

	e.wg.Add(1)
	go e.sweepLoop()

	return e
}

var allIdentifierTypes = []IdentifierType{
	IdentifierIMSI, IdentifierMSISDN, IdentifierIMEI, IdentifierSUPI,
	IdentifierTEID, IdentifierSEID, IdentifierDiamSess,
	IdentifierNgapAmf, IdentifierNgapRan, IdentifierS1apMme, IdentifierS1apEnb,
	IdentifierIP,
}

func (e *Engine) shardFor(sessionID string) *shard {
	h := sha256.Sum256([]byte(sessionID))
	n := int(h[0])<<8 | int(h[1])
	return e.shards[n%shardCount]
}

// Observe ingests a decoded Message and returns the session it was
// attributed to, creating or merging sessions as needed.
func (e *Engine) Observe(msg *decoder.Message) *Session {
	ids := extractIdentifiers(msg)

	matches := e.lookupSessions(ids)

	var session *Session
	switch len(matches) {
	case 0:
		session = e.createSession(msg, ids)
	case 1:
		session = matches[0]
		e.appendToSession(session, msg, ids, 0.95)
	default:
		session = e.mergeSessions(matches, msg, ids)
	}

	if isTerminalMessage(msg) {
		e.completeSession(session, StatusCompleted)
	}

	return session
}

// lookupSessions finds the distinct sessions currently indexed under any
// of the given identifiers.
func (e *Engine) lookupSessions(ids []Identifier) []*Session {
	e.idxMu.mu.RLock()
	defer e.idxMu.mu.RUnlock()

	seen := make(map[string]*Session)
	for _, id := range ids {
		if id.Value == "" {
			continue
		}
		if s, ok := e.idxMu.idx[id.Type][id.Value]; ok {
			seen[s.ID] = s
		}
	}

	out := make([]*Session, 0, len(seen))
	for _, s := range seen {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (e *Engine) createSession(msg *decoder.Message, ids []Identifier) *Session {
	id := generateSessionID(msg)
	session := newSession(id, msg)

	session.mu.Lock()
	session.Messages = append(session.Messages, msg)
	for _, ident := range ids {
		session.addIdentifier(ident)
	}
	applyCrossReferences(session, msg)
	session.mu.Unlock()

	e.shardFor(id).mu.Lock()
	e.shardFor(id).sessions[id] = session
	e.shardFor(id).mu.Unlock()

	e.idxMu.mu.Lock()
	for _, ident := range ids {
		if ident.Value == "" {
			continue
		}
		e.idxMu.idx[ident.Type][ident.Value] = session
	}
	e.idxMu.mu.Unlock()

	e.statsMu.Lock()
	e.stats.TotalSessions++
	e.stats.ActiveSessions++
	e.statsMu.Unlock()

	e.logger.Debug().Str("session_id", id).Str("protocol", string(msg.Protocol)).Msg("session created")
	return session
}

// appendToSession adds msg to an already-matched session. confidence is 1.0 for identifiers the session already
// carries, 0.95 for identifiers newly seen via this cross-protocol link.
func (e *Engine) appendToSession(session *Session, msg *decoder.Message, ids []Identifier, newIdentConfidence float64) {
	session.mu.Lock()
	if session.Status != StatusActive {
		session.mu.Unlock()
		return
	}

	prevTimestamp := time.Time{}
	if len(session.Messages) > 0 {
		prevTimestamp = session.Messages[len(session.Messages)-1].Timestamp
	}

	session.Messages = append(session.Messages, msg)
	if msg.Timestamp.After(session.LastActivity) {
		session.LastActivity = msg.Timestamp
	}

	newIdx := make([]Identifier, 0, len(ids))
	for _, ident := range ids {
		if ident.Value == "" {
			continue
		}
		if !session.hasIdentifier(ident.Type, ident.Value) {
			ident.Confidence = newIdentConfidence
			newIdx = append(newIdx, ident)
		}
		session.addIdentifier(ident)
	}
	applyCrossReferences(session, msg)
	updateMetrics(session, msg, prevTimestamp)
	session.mu.Unlock()

	if len(newIdx) > 0 {
		e.idxMu.mu.Lock()
		for _, ident := range newIdx {
			e.idxMu.idx[ident.Type][ident.Value] = session
		}
		e.idxMu.mu.Unlock()
	}
}

func (s *Session) hasIdentifier(t IdentifierType, v string) bool {
	for _, existing := range s.Identifiers[t] {
		if existing.Value == v {
			return true
		}
	}
	return false
}

// mergeSessions handles a message matching more than one active session:
// the lowest-id session survives, losers are folded into it.
func (e *Engine) mergeSessions(matches []*Session, msg *decoder.Message, ids []Identifier) *Session {
	survivor := matches[0]
	losers := matches[1:]

	survivor.mu.Lock()
	defer survivor.mu.Unlock()

	for _, loser := range losers {
		loser.mu.Lock()

		survivor.Messages = mergeByTimestamp(survivor.Messages, loser.Messages)

		for _, idents := range loser.Identifiers {
			for _, ident := range idents {
				survivor.addIdentifier(ident)
			}
		}
		survivor.LocationHistory = mergeLocations(survivor.LocationHistory, loser.LocationHistory)
		survivor.BytesUplink += loser.BytesUplink
		survivor.BytesDownlink += loser.BytesDownlink
		survivor.ErrorCount += loser.ErrorCount

		if loser.LastActivity.After(survivor.LastActivity) {
			survivor.LastActivity = loser.LastActivity
		}
		loser.Status = StatusCompleted
		survivor.Merges = append(survivor.Merges, MergeAudit{
			AbsorbedSessionID: loser.ID,
			Timestamp:         msg.Timestamp,
			Reason:            "identifier collision",
		})

		loserID := loser.ID
		loser.mu.Unlock()

		e.shardFor(loserID).mu.Lock()
		delete(e.shardFor(loserID).sessions, loserID)
		e.shardFor(loserID).mu.Unlock()
	}

	survivor.Messages = appendSorted(survivor.Messages, msg)
	if msg.Timestamp.After(survivor.LastActivity) {
		survivor.LastActivity = msg.Timestamp
	}
	for _, ident := range ids {
		if ident.Value != "" {
			survivor.addIdentifier(ident)
		}
	}
	applyCrossReferences(survivor, msg)

	e.idxMu.mu.Lock()
	for t, idents := range survivor.Identifiers {
		for _, ident := range idents {
			e.idxMu.idx[t][ident.Value] = survivor
		}
	}
	e.idxMu.mu.Unlock()

	e.statsMu.Lock()
	e.stats.MergedSessions += int64(len(losers))
	e.stats.ActiveSessions -= int64(len(losers))
	e.statsMu.Unlock()

	e.logger.Info().Str("survivor", survivor.ID).Int("absorbed", len(losers)).Msg("sessions merged")
	return survivor
}

func mergeByTimestamp(a, b []*decoder.Message) []*decoder.Message {
	out := make([]*decoder.Message, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if a[i].Timestamp.After(b[j].Timestamp) {
			out = append(out, b[j])
			j++
		} else {
			out = append(out, a[i])
			i++
		}
	}
	out = append(out, a[i:]...)
	out = append(out, b[j:]...)
	return out
}

func appendSorted(list []*decoder.Message, msg *decoder.Message) []*decoder.Message {
	i := len(list)
	for i > 0 && list[i-1].Timestamp.After(msg.Timestamp) {
		i--
	}
	list = append(list, nil)
	copy(list[i+1:], list[i:])
	list[i] = msg
	return list
}

func mergeLocations(a, b []LocationUpdate) []LocationUpdate {
	out := append([]LocationUpdate{}, a...)
	out = append(out, b...)
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

// updateMetrics maintains the session's incremental derived counters.
func updateMetrics(session *Session, msg *decoder.Message, prevTimestamp time.Time) {
	n := float64(len(session.Messages))
	successes := session.SuccessRate * (n - 1)
	if msg.Result == decoder.ResultSuccess {
		successes++
	} else if msg.Result == decoder.ResultFailure || msg.Result == decoder.ResultTimeout {
		session.ErrorCount++
	}
	if n > 0 {
		session.SuccessRate = successes / n
	}

	if msg.Direction == decoder.DirectionResponse && !prevTimestamp.IsZero() {
		latency := msg.Timestamp.Sub(prevTimestamp).Seconds() * 1000
		if latency >= 0 {
			count := n - 1
			if count <= 0 {
				session.AvgLatencyMs = latency
			} else {
				session.AvgLatencyMs = (session.AvgLatencyMs*count + latency) / (count + 1)
			}
		}
	}

	switch msg.Protocol {
	case decoder.ProtocolGTPv1C, decoder.ProtocolGTPv2C, decoder.ProtocolPFCP:
		if ul, ok := msg.Details["bytes_uplink"].(uint64); ok {
			session.BytesUplink += ul
		}
		if dl, ok := msg.Details["bytes_downlink"].(uint64); ok {
			session.BytesDownlink += dl
		}
	}

	if loc, ok := buildLocationUpdate(msg); ok {
		session.LocationHistory = append(session.LocationHistory, loc)
	}
}

func buildLocationUpdate(msg *decoder.Message) (LocationUpdate, bool) {
	if msg.CellID == "" && msg.PLMN == "" {
		return LocationUpdate{}, false
	}
	return LocationUpdate{
		Timestamp: msg.Timestamp,
		Protocol:  string(msg.Protocol),
		CellID:    msg.CellID,
	}, true
}

// applyCrossReferences mirrors convenience scalar fields from the
// identifier set onto the session's per-protocol reference fields.
func applyCrossReferences(session *Session, msg *decoder.Message) {
	switch msg.Protocol {
	case decoder.ProtocolMAP, decoder.ProtocolCAP, decoder.ProtocolINAP:
		if session.MapTransactionID == "" {
			session.MapTransactionID = msg.TransactionID
		}
	case decoder.ProtocolDiameter:
		if session.DiameterSessionID == "" && msg.DiameterSessionID != "" {
			session.DiameterSessionID = msg.DiameterSessionID
		}
	case decoder.ProtocolGTPv1C, decoder.ProtocolGTPv2C:
		if session.GtpTEID == 0 && msg.TEID != 0 {
			session.GtpTEID = msg.TEID
		}
	case decoder.ProtocolPFCP:
		if session.PfcpSEID == 0 && msg.SEID != 0 {
			session.PfcpSEID = msg.SEID
		}
	case decoder.ProtocolNGAP:
		if session.NgapUEID == 0 && msg.NGAPAmfUEID != 0 {
			session.NgapUEID = msg.NGAPAmfUEID
		}
	case decoder.ProtocolS1AP:
		if session.S1apMmeID == 0 && msg.S1APMmeUEID != 0 {
			session.S1apMmeID = msg.S1APMmeUEID
		}
	}
}

// terminalMessages lists (protocol, messageName) pairs after which no
// further session activity is expected.
var terminalMessages = map[decoder.Protocol]map[string]bool{
	decoder.ProtocolGTPv2C: {"DeleteSessionResponse": true},
	decoder.ProtocolGTPv1C: {"DeletePDPContextResponse": true},
	decoder.ProtocolPFCP:   {"SessionDeletionResponse": true},
	decoder.ProtocolNAS4G:  {"DetachAccept": true},
	decoder.ProtocolNAS5G:  {"DeregistrationAccept": true},
}

// isTerminalMessage decides whether msg closes out its session.
func isTerminalMessage(msg *decoder.Message) bool {
	if msg.Protocol == decoder.ProtocolMAP && msg.MessageType == "TCAP_End" {
		return true
	}
	if msg.Protocol == decoder.ProtocolS1AP && msg.MessageName == "UEContextRelease" && msg.Direction == decoder.DirectionResponse {
		return true
	}
	if msg.Protocol == decoder.ProtocolHTTP2 && msg.Direction == decoder.DirectionResponse && msg.CauseCode == 200 {
		if name, ok := msg.Details["service"].(string); ok && name == "nsmf-pdusession" {
			return true
		}
	}
	byName, ok := terminalMessages[msg.Protocol]
	if !ok {
		return false
	}
	return byName[msg.MessageName]
}

func (e *Engine) completeSession(session *Session, status Status) {
	session.mu.Lock()
	if session.Status != StatusActive {
		session.mu.Unlock()
		return
	}
	session.Status = status
	session.EndTime = session.LastActivity
	session.mu.Unlock()

	e.shardFor(session.ID).mu.Lock()
	delete(e.shardFor(session.ID).sessions, session.ID)
	e.shardFor(session.ID).mu.Unlock()

	e.idxMu.mu.Lock()
	for t, idents := range session.Identifiers {
		for _, ident := range idents {
			if s, ok := e.idxMu.idx[t][ident.Value]; ok && s.ID == session.ID {
				delete(e.idxMu.idx[t], ident.Value)
			}
		}
	}
	e.idxMu.mu.Unlock()

	e.statsMu.Lock()
	e.stats.ActiveSessions--
	if status == StatusExpired {
		e.stats.ExpiredSessions++
	}
	e.statsMu.Unlock()

	if e.persist != nil {
		e.persist.Enqueue(toSnapshot(session))
	}
	if e.cfg.OnSessionClosed != nil {
		e.cfg.OnSessionClosed(session)
	}
}

// sweepLoop expires sessions idle for longer than SessionTimeout.
func (e *Engine) sweepLoop() {
	defer e.wg.Done()
	ticker := time.NewTicker(e.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.sweepExpired()
		case <-e.stopCh:
			return
		}
	}
}

func (e *Engine) sweepExpired() {
	cutoff := time.Now().Add(-e.cfg.SessionTimeout)
	var expired []*Session

	for _, sh := range e.shards {
		sh.mu.Lock()
		for _, s := range sh.sessions {
			s.mu.RLock()
			idle := s.Status == StatusActive && s.LastActivity.Before(cutoff)
			s.mu.RUnlock()
			if idle {
				expired = append(expired, s)
			}
		}
		sh.mu.Unlock()
	}

	for _, s := range expired {
		e.completeSession(s, StatusExpired)
	}
}

// Stop halts the background sweep and waits for it to exit.
func (e *Engine) Stop() {
	close(e.stopCh)
	e.wg.Wait()
}

// ForceCompleteAll marks every still-active session completed. Called
// during graceful shutdown.
func (e *Engine) ForceCompleteAll() {
	var active []*Session
	for _, sh := range e.shards {
		sh.mu.Lock()
		for _, s := range sh.sessions {
			active = append(active, s)
		}
		sh.mu.Unlock()
	}
	for _, s := range active {
		e.completeSession(s, StatusCompleted)
	}
}

// GetStats returns a snapshot of engine counters.
func (e *Engine) GetStats() Stats {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	return e.stats
}

// GetSession looks up an active session by id.
func (e *Engine) GetSession(id string) (*Session, bool) {
	sh := e.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	s, ok := sh.sessions[id]
	return s, ok
}

// GetSessionByIdentifier looks up the active session currently indexed
// under (identType, value).
func (e *Engine) GetSessionByIdentifier(identType IdentifierType, value string) (*Session, bool) {
	e.idxMu.mu.RLock()
	defer e.idxMu.mu.RUnlock()
	s, ok := e.idxMu.idx[identType][value]
	return s, ok
}

func generateSessionID(msg *decoder.Message) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%d", msg.ID, msg.Timestamp.UnixNano())
	return hex.EncodeToString(h.Sum(nil))[:24]
}
