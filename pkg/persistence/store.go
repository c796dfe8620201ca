// Package persistence writes correlated sessions to the correlation
// SQL schema, queued through a bounded buffer so a slow or unreachable
// database never stalls decoding.
package persistence

import (
	"database/sql"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
)

// SessionSnapshot is the flattened, DB-shaped view of a completed or
// expired correlation session.
type SessionSnapshot struct {
	ID            string
	StartTime     time.Time
	EndTime       time.Time
	Status        string
	SessionType   string
	BytesUplink   uint64
	BytesDownlink uint64
	SuccessRate   float64
	AvgLatencyMs  float64
	ErrorCount    int

	MapTransactionID  string
	DiameterSessionID string
	GtpTEID           uint32
	PfcpSEID          uint64
	NgapUEID          uint64
	S1apMmeID         uint32

	Identifiers  []IdentifierRecord
	Transactions []TransactionRecord
	Locations    []LocationRecord
}

// IdentifierRecord maps to a correlation_identifiers row.
type IdentifierRecord struct {
	Type       string
	Value      string
	Protocol   string
	FirstSeen  time.Time
	LastSeen   time.Time
	Confidence float64
}

// TransactionRecord maps to a correlation_transactions row.
type TransactionRecord struct {
	TransactionID string
	Protocol      string
	Timestamp     time.Time
	Success       bool
	LatencyMs     float64
}

// LocationRecord maps to a correlation_location_history row.
type LocationRecord struct {
	Timestamp   time.Time
	Protocol    string
	MCC, MNC    string
	LAC         string
	CellID      string
	TAC         string
	EUTRANCGI   string
	GlobalRANID string
}

// Store queues SessionSnapshots and writes them to Postgres off the hot
// path. When db is nil, Enqueue is a no-op (persistence is optional).
type Store struct {
	db     *sql.DB
	logger zerolog.Logger

	queue chan SessionSnapshot

	dropped int64

	wg     sync.WaitGroup
	stopCh chan struct{}
}

// BufferSize is the default bounded-buffer capacity.
const BufferSize = 10000

// NewStore creates a persistence store backed by db. Pass a nil db to run
// with persistence disabled (snapshots are simply dropped, uncounted).
func NewStore(db *sql.DB, bufferSize int, logger zerolog.Logger) *Store {
	if bufferSize <= 0 {
		bufferSize = BufferSize
	}
	s := &Store{
		db:     db,
		logger: logger,
		queue:  make(chan SessionSnapshot, bufferSize),
		stopCh: make(chan struct{}),
	}
	if db != nil {
		s.wg.Add(1)
		go s.drain()
	}
	return s
}

// Enqueue submits a snapshot for persistence. If the buffer is full the
// oldest queued entry is dropped to make room, and Dropped() is incremented.
func (s *Store) Enqueue(snap SessionSnapshot) {
	if s.db == nil {
		return
	}
	select {
	case s.queue <- snap:
	default:
		select {
		case <-s.queue:
			atomic.AddInt64(&s.dropped, 1)
		default:
		}
		select {
		case s.queue <- snap:
		default:
			atomic.AddInt64(&s.dropped, 1)
		}
	}
}

// Dropped returns the count of snapshots dropped due to buffer overflow
// or to a constraint violation on write.
func (s *Store) Dropped() int64 {
	return atomic.LoadInt64(&s.dropped)
}

func (s *Store) drain() {
	defer s.wg.Done()
	for {
		select {
		case snap := <-s.queue:
			if err := s.writeWithRetry(snap); err != nil {
				s.logger.Error().Err(err).Str("session_id", snap.ID).Msg("persisting session failed permanently")
			}
		case <-s.stopCh:
			// flush remaining queued snapshots before exiting.
			for {
				select {
				case snap := <-s.queue:
					_ = s.writeWithRetry(snap)
				default:
					return
				}
			}
		}
	}
}

// writeWithRetry retries connection-level errors with 100ms, 500ms, 2s
// backoff; constraint violations are permanent and the row is dropped.
func (s *Store) writeWithRetry(snap SessionSnapshot) error {
	backoffs := []time.Duration{100 * time.Millisecond, 500 * time.Millisecond, 2 * time.Second}
	var err error
	for attempt := 0; attempt <= len(backoffs); attempt++ {
		err = s.write(snap)
		if err == nil {
			return nil
		}
		if isConstraintViolation(err) {
			atomic.AddInt64(&s.dropped, 1)
			return err
		}
		if attempt < len(backoffs) {
			time.Sleep(backoffs[attempt])
		}
	}
	return err
}

func isConstraintViolation(err error) bool {
	// lib/pq surfaces constraint violations as *pq.Error with a 23xxx
	// SQLSTATE class; string-matching keeps this file free of a direct
	// *pq.Error type assertion so it degrades gracefully with other
	// PostgreSQL-compatible drivers.
	msg := err.Error()
	return containsAny(msg, "duplicate key", "violates", "constraint")
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if indexOf(s, sub) >= 0 {
			return true
		}
	}
	return false
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

func (s *Store) write(snap SessionSnapshot) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(upsertSessionSQL,
		snap.ID, snap.StartTime, snap.EndTime, snap.Status, snap.SessionType,
		snap.BytesUplink, snap.BytesDownlink, snap.SuccessRate, snap.AvgLatencyMs, snap.ErrorCount,
		snap.MapTransactionID, snap.DiameterSessionID, snap.GtpTEID, snap.PfcpSEID, snap.NgapUEID, snap.S1apMmeID,
	)
	if err != nil {
		return err
	}

	for _, id := range snap.Identifiers {
		if _, err := tx.Exec(upsertIdentifierSQL,
			snap.ID, id.Type, id.Value, id.Protocol, id.FirstSeen, id.LastSeen, id.Confidence); err != nil {
			return err
		}
	}

	for _, txn := range snap.Transactions {
		if _, err := tx.Exec(upsertTransactionSQL,
			snap.ID, txn.TransactionID, txn.Protocol, txn.Timestamp, txn.Success, txn.LatencyMs); err != nil {
			return err
		}
	}

	for _, loc := range snap.Locations {
		if _, err := tx.Exec(insertLocationSQL,
			snap.ID, loc.Timestamp, loc.Protocol, loc.MCC, loc.MNC, loc.LAC, loc.CellID, loc.TAC, loc.EUTRANCGI, loc.GlobalRANID); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Close stops the drain loop, flushing whatever remains queued.
func (s *Store) Close() {
	if s.db == nil {
		return
	}
	close(s.stopCh)
	s.wg.Wait()
}

const upsertSessionSQL = `
INSERT INTO correlation_sessions (
	id, start_time, end_time, status, session_type,
	bytes_uplink, bytes_downlink, success_rate, avg_latency_ms, error_count,
	map_transaction_id, diameter_session_id, gtp_teid, pfcp_seid, ngap_ue_id, s1ap_mme_id,
	created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,NOW(),NOW())
ON CONFLICT (id) DO UPDATE SET
	end_time = EXCLUDED.end_time,
	status = EXCLUDED.status,
	bytes_uplink = EXCLUDED.bytes_uplink,
	bytes_downlink = EXCLUDED.bytes_downlink,
	success_rate = EXCLUDED.success_rate,
	avg_latency_ms = EXCLUDED.avg_latency_ms,
	error_count = EXCLUDED.error_count,
	updated_at = NOW()
`

const upsertIdentifierSQL = `
INSERT INTO correlation_identifiers (
	session_id, identifier_type, identifier_value, protocol, first_seen, last_seen, confidence
) VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (session_id, identifier_type, identifier_value) DO UPDATE SET
	last_seen = EXCLUDED.last_seen,
	confidence = EXCLUDED.confidence
`

const upsertTransactionSQL = `
INSERT INTO correlation_transactions (
	session_id, transaction_id, protocol, timestamp, success, latency_ms
) VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (transaction_id) DO UPDATE SET
	success = EXCLUDED.success,
	latency_ms = EXCLUDED.latency_ms
`

const insertLocationSQL = `
INSERT INTO correlation_location_history (
	session_id, timestamp, protocol, mcc, mnc, lac, cell_id, tac, eutran_cgi, global_ran_id
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
`

// Schema is the DDL for the correlation persistence schema,
// exposed so the composition root can apply it on an empty database.
const Schema = `
CREATE TABLE IF NOT EXISTS correlation_sessions (
	id varchar(100) PRIMARY KEY,
	start_time timestamptz NOT NULL,
	end_time timestamptz,
	status varchar(20) NOT NULL,
	session_type varchar(30),
	bytes_uplink bigint DEFAULT 0,
	bytes_downlink bigint DEFAULT 0,
	success_rate double precision DEFAULT 0,
	avg_latency_ms double precision DEFAULT 0,
	error_count integer DEFAULT 0,
	map_transaction_id varchar(100),
	diameter_session_id varchar(200),
	gtp_teid bigint,
	pfcp_seid bigint,
	ngap_ue_id bigint,
	s1ap_mme_id bigint,
	created_at timestamptz NOT NULL DEFAULT NOW(),
	updated_at timestamptz NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_correlation_sessions_start_time ON correlation_sessions (start_time DESC);
CREATE INDEX IF NOT EXISTS idx_correlation_sessions_status ON correlation_sessions (status);

CREATE TABLE IF NOT EXISTS correlation_identifiers (
	id bigserial PRIMARY KEY,
	session_id varchar(100) NOT NULL REFERENCES correlation_sessions(id),
	identifier_type varchar(30) NOT NULL,
	identifier_value varchar(100) NOT NULL,
	protocol varchar(20),
	first_seen timestamptz,
	last_seen timestamptz,
	confidence double precision DEFAULT 1.0,
	UNIQUE (session_id, identifier_type, identifier_value)
);
CREATE INDEX IF NOT EXISTS idx_correlation_identifiers_reverse ON correlation_identifiers (identifier_type, identifier_value);

CREATE TABLE IF NOT EXISTS correlation_transactions (
	id bigserial PRIMARY KEY,
	session_id varchar(100) NOT NULL REFERENCES correlation_sessions(id),
	transaction_id varchar(100) UNIQUE,
	protocol varchar(20),
	timestamp timestamptz,
	success boolean,
	latency_ms double precision
);

CREATE TABLE IF NOT EXISTS correlation_location_history (
	id bigserial PRIMARY KEY,
	session_id varchar(100) NOT NULL REFERENCES correlation_sessions(id),
	timestamp timestamptz,
	protocol varchar(20),
	mcc varchar(5),
	mnc varchar(5),
	lac varchar(10),
	cell_id varchar(20),
	tac varchar(10),
	eutran_cgi varchar(20),
	global_ran_id varchar(20)
);
`
