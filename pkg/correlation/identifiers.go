package correlation

import (
	"strconv"

	"github.com/protei/monitoring/pkg/decoder"
)

// extractIdentifiers collects the tagged identifier set carried by a
// decoded Message.
func extractIdentifiers(msg *decoder.Message) []Identifier {
	var out []Identifier
	add := func(t IdentifierType, v string) {
		if v == "" {
			return
		}
		out = append(out, Identifier{
			Type: t, Value: v, Protocol: string(msg.Protocol),
			FirstSeen: msg.Timestamp, LastSeen: msg.Timestamp, Confidence: 1.0,
		})
	}

	add(IdentifierIMSI, msg.IMSI)
	add(IdentifierMSISDN, msg.MSISDN)
	add(IdentifierIMEI, msg.IMEI)
	add(IdentifierSUPI, msg.SUPI)
	if msg.TEID != 0 {
		add(IdentifierTEID, strconv.FormatUint(uint64(msg.TEID), 10))
	}
	if msg.SEID != 0 {
		add(IdentifierSEID, strconv.FormatUint(msg.SEID, 10))
	}
	add(IdentifierDiamSess, msg.DiameterSessionID)
	if msg.NGAPAmfUEID != 0 {
		add(IdentifierNgapAmf, strconv.FormatUint(msg.NGAPAmfUEID, 10))
	}
	if msg.NGAPRanUEID != 0 {
		add(IdentifierNgapRan, strconv.FormatUint(msg.NGAPRanUEID, 10))
	}
	if msg.S1APMmeUEID != 0 {
		add(IdentifierS1apMme, strconv.FormatUint(uint64(msg.S1APMmeUEID), 10))
	}
	if msg.S1APEnbUEID != 0 {
		add(IdentifierS1apEnb, strconv.FormatUint(uint64(msg.S1APEnbUEID), 10))
	}
	// Only a subscriber-plane address is a session identifier; the
	// transport endpoints are shared network nodes and would cross-link
	// unrelated subscribers.
	if ueIP, ok := msg.Details["ue_ip"].(string); ok {
		add(IdentifierIP, ueIP)
	}

	return out
}
