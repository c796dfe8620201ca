package dispatcher

import (
	"github.com/rs/zerolog"

	"github.com/protei/monitoring/pkg/cdr"
	"github.com/protei/monitoring/pkg/correlation"
	"github.com/protei/monitoring/pkg/flows"
)

// NewSessionCompletionHandler builds the correlation.Config.OnSessionClosed
// callback: it reconstructs the session's flow and writes one CDR row.
func NewSessionCompletionHandler(fr *flows.FlowReconstructor, cdrWriter *cdr.Writer, logger zerolog.Logger) func(*correlation.Session) {
	return func(session *correlation.Session) {
		messages, _, startTime, endTime := session.Snapshot()
		if len(messages) == 0 {
			return
		}

		flow := fr.ReconstructFlow(messages)
		last := messages[len(messages)-1]

		record := cdr.Record{
			TID:        session.ID,
			IMSI:       session.Identifier(correlation.IdentifierIMSI),
			MSISDN:     session.Identifier(correlation.IdentifierMSISDN),
			Procedure:  flow.Procedure,
			StartTime:  startTime,
			EndTime:    endTime,
			DurationMs: endTime.Sub(startTime).Milliseconds(),
			Result:     flow.Result,
			Cause:      last.CauseText,
			PLMN:       last.PLMN,
			CellID:     last.CellID,
			APN:        firstNonEmpty(last.APN, last.DNN),
			Vendor:     last.VendorName,
		}

		cdrWriter.WriteRecord(record)
		logger.Debug().
			Str("session_id", session.ID).
			Str("procedure", flow.Procedure).
			Str("result", flow.Result).
			Float64("completeness", flow.Completeness).
			Msg("session closed, CDR written")
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
