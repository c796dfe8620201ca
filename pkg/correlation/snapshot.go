package correlation

import (
	"github.com/protei/monitoring/pkg/decoder"
	"github.com/protei/monitoring/pkg/persistence"
)

// toSnapshot flattens a Session (and its owned message list) into the
// DB-shaped record the persistence store writes.
func toSnapshot(s *Session) persistence.SessionSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := persistence.SessionSnapshot{
		ID:                s.ID,
		StartTime:         s.StartTime,
		EndTime:           s.EndTime,
		Status:            string(s.Status),
		SessionType:       s.SessionType,
		BytesUplink:       s.BytesUplink,
		BytesDownlink:     s.BytesDownlink,
		SuccessRate:       s.SuccessRate,
		AvgLatencyMs:      s.AvgLatencyMs,
		ErrorCount:        s.ErrorCount,
		MapTransactionID:  s.MapTransactionID,
		DiameterSessionID: s.DiameterSessionID,
		GtpTEID:           s.GtpTEID,
		PfcpSEID:          s.PfcpSEID,
		NgapUEID:          s.NgapUEID,
		S1apMmeID:         s.S1apMmeID,
	}

	for t, idents := range s.Identifiers {
		for _, id := range idents {
			snap.Identifiers = append(snap.Identifiers, persistence.IdentifierRecord{
				Type: string(t), Value: id.Value, Protocol: id.Protocol,
				FirstSeen: id.FirstSeen, LastSeen: id.LastSeen, Confidence: id.Confidence,
			})
		}
	}

	for _, msg := range s.Messages {
		if msg.TransactionID == "" {
			continue
		}
		snap.Transactions = append(snap.Transactions, persistence.TransactionRecord{
			TransactionID: msg.TransactionID,
			Protocol:      string(msg.Protocol),
			Timestamp:     msg.Timestamp,
			Success:       msg.Result == decoder.ResultSuccess,
			LatencyMs:     float64(msg.DecodeTimeUs) / 1000.0,
		})
	}

	for _, loc := range s.LocationHistory {
		snap.Locations = append(snap.Locations, persistence.LocationRecord{
			Timestamp: loc.Timestamp, Protocol: loc.Protocol,
			MCC: loc.MCC, MNC: loc.MNC, LAC: loc.LAC, CellID: loc.CellID,
			TAC: loc.TAC, EUTRANCGI: loc.EUTRANCGI, GlobalRANID: loc.GlobalRANID,
		})
	}

	return snap
}
