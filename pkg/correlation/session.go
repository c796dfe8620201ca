package correlation

import (
	"sync"
	"time"

	"github.com/protei/monitoring/pkg/decoder"
)

// IdentifierType enumerates the kinds of subscriber/session identifiers the
// engine indexes messages by.
type IdentifierType string

const (
	IdentifierIMSI     IdentifierType = "IMSI"
	IdentifierMSISDN   IdentifierType = "MSISDN"
	IdentifierIMEI     IdentifierType = "IMEI"
	IdentifierSUPI     IdentifierType = "SUPI"
	IdentifierTEID     IdentifierType = "TEID"
	IdentifierSEID     IdentifierType = "SEID"
	IdentifierDiamSess IdentifierType = "DIAMETER_SESSION_ID"
	IdentifierNgapAmf  IdentifierType = "NGAP_AMF_UE_ID"
	IdentifierNgapRan  IdentifierType = "NGAP_RAN_UE_ID"
	IdentifierS1apMme  IdentifierType = "S1AP_MME_UE_ID"
	IdentifierS1apEnb  IdentifierType = "S1AP_ENB_UE_ID"
	IdentifierIP       IdentifierType = "IP"
)

// Identifier is one entry of a session's identifier set: (type, value)
// plus provenance and confidence.
type Identifier struct {
	Type       IdentifierType
	Value      string
	Protocol   string
	FirstSeen  time.Time
	LastSeen   time.Time
	Confidence float64
}

// Status is a Session's lifecycle state. Transitions are monotone:
// active -> {completed, expired}; terminal states are final.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusExpired   Status = "expired"
)

// LocationUpdate records a location change observed on the session.
type LocationUpdate struct {
	Timestamp    time.Time
	Protocol     string
	MCC          string
	MNC          string
	LAC          string
	CellID       string
	TAC          string
	EUTRANCGI    string
	GlobalRANID  string
}

// MergeAudit records that a session was absorbed into a survivor during a
// multi-match correlation.
type MergeAudit struct {
	AbsorbedSessionID string
	Timestamp         time.Time
	Reason            string
}

// Session is the correlated, end-to-end subscriber session produced by the
// Engine. A Session exclusively owns its message list and identifier set;
// the Engine's index maps each identifier value to the *Session itself.
type Session struct {
	mu sync.RWMutex

	ID          string
	StartTime   time.Time
	LastActivity time.Time
	EndTime     time.Time
	Status      Status
	SessionType string

	Identifiers map[IdentifierType][]Identifier
	Messages    []*decoder.Message

	BytesUplink   uint64
	BytesDownlink uint64
	SuccessRate   float64
	AvgLatencyMs  float64
	ErrorCount    int

	LocationHistory []LocationUpdate
	Merges          []MergeAudit

	// cross-protocol convenience handles, mirrored from identifiers
	MapTransactionID  string
	DiameterSessionID string
	GtpTEID           uint32
	PfcpSEID          uint64
	NgapUEID          uint64
	S1apMmeID         uint32
}

func newSession(id string, msg *decoder.Message) *Session {
	return &Session{
		ID:           id,
		StartTime:    msg.Timestamp,
		LastActivity: msg.Timestamp,
		Status:       StatusActive,
		SessionType:  classifySessionType(msg),
		Identifiers:  make(map[IdentifierType][]Identifier),
	}
}

// classifySessionType makes a best-effort guess at the session taxonomy
// (voice, data, sms, location-update, registration, handover) from
// the first message's protocol/name. It is set once, when the session is
// created, and later messages do not change it.
func classifySessionType(msg *decoder.Message) string {
	switch msg.Protocol {
	case decoder.ProtocolGTPv1C, decoder.ProtocolGTPv2C, decoder.ProtocolPFCP:
		return "data"
	case decoder.ProtocolMAP:
		if msg.MessageName == "UpdateLocation" || msg.MessageName == "SendAuthenticationInfo" {
			return "location_update"
		}
		return "sms"
	case decoder.ProtocolNGAP, decoder.ProtocolS1AP:
		if msg.MessageName == "HandoverPreparation" || msg.MessageName == "HandoverNotification" {
			return "handover"
		}
		return "registration"
	case decoder.ProtocolNAS4G, decoder.ProtocolNAS5G:
		return "registration"
	default:
		return "unknown"
	}
}

// addIdentifier inserts or refreshes an identifier entry. Existing entries
// are never removed while the session is active.
func (s *Session) addIdentifier(id Identifier) {
	for i := range s.Identifiers[id.Type] {
		if s.Identifiers[id.Type][i].Value == id.Value {
			if id.LastSeen.After(s.Identifiers[id.Type][i].LastSeen) {
				s.Identifiers[id.Type][i].LastSeen = id.LastSeen
			}
			return
		}
	}
	s.Identifiers[id.Type] = append(s.Identifiers[id.Type], id)
}

// Identifier returns the first value indexed under t, or "" if the
// session carries none. Used by callers outside the package (e.g. the
// dispatcher's session-completion handler when it builds CDR records)
// that only need a representative value, not the full provenance list.
func (s *Session) Identifier(t IdentifierType) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if idents := s.Identifiers[t]; len(idents) > 0 {
		return idents[0].Value
	}
	return ""
}

// Snapshot returns copies of the fields the dispatcher needs to build a
// CDR row and to feed the flow reconstructor, without exposing the
// mutex-guarded Session itself.
func (s *Session) Snapshot() (messages []*decoder.Message, status Status, startTime, endTime time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := make([]*decoder.Message, len(s.Messages))
	copy(msgs, s.Messages)
	return msgs, s.Status, s.StartTime, s.EndTime
}
