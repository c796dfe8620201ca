package s1ap

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/protei/monitoring/pkg/decoder"
)

// S1APDecoder handles 4G S1 Application Protocol
type S1APDecoder struct{}

// NewS1APDecoder creates a new S1AP decoder
func NewS1APDecoder() *S1APDecoder {
	return &S1APDecoder{}
}

// Protocol returns the protocol type
func (d *S1APDecoder) Protocol() decoder.Protocol {
	return decoder.ProtocolS1AP
}

// CanDecode checks if the data is an S1AP message
func (d *S1APDecoder) CanDecode(data []byte) bool {
	if len(data) < 4 {
		return false
	}
	return data[0] == 0x00 || data[0] == 0x20 || data[0] == 0x40
}

// Decode decodes an S1AP message
func (d *S1APDecoder) Decode(data []byte, metadata *decoder.Metadata) (*decoder.Message, error) {
	startTime := time.Now()

	if len(data) < 8 {
		return nil, decoder.ErrInsufficientData
	}

	msg := &decoder.Message{
		ID:          generateMessageID(),
		Timestamp:   metadata.CaptureTime,
		Protocol:    decoder.ProtocolS1AP,
		Details:     make(map[string]interface{}),
		Source:      decoder.NetworkElement{IP: metadata.SourceIP, Port: metadata.SourcePort},
		Destination: decoder.NetworkElement{IP: metadata.DestIP, Port: metadata.DestPort},
		RawPayload:  data,
		PayloadSize: len(data),
	}

	pduChoice := data[0]
	procedureCode := int(data[2])
	procName := getS1APProcedureName(procedureCode)

	switch pduChoice {
	case 0x00: // initiatingMessage
		msg.Direction = decoder.DirectionRequest
		msg.MessageType = "S1AP_InitiatingMessage"
		msg.MessageName = procName + " Request"
	case 0x20: // successfulOutcome
		msg.Direction = decoder.DirectionResponse
		msg.MessageType = "S1AP_SuccessfulOutcome"
		msg.MessageName = procName + " Response"
		msg.Result = decoder.ResultSuccess
	case 0x40: // unsuccessfulOutcome
		msg.Direction = decoder.DirectionResponse
		msg.MessageType = "S1AP_UnsuccessfulOutcome"
		msg.MessageName = procName + " Failure"
		msg.Result = decoder.ResultFailure
	}
	msg.Details["procedure_code"] = procedureCode

	ies := d.parseIEs(data[3:])
	msg.Details["ie_count"] = len(ies)

	d.extractCorrelationFields(msg, ies)
	d.identifyNetworkElements(msg, procedureCode)

	msg.ProcessedAt = time.Now()
	msg.DecodeTimeUs = time.Since(startTime).Microseconds()

	return msg, nil
}

type s1apIE struct {
	ID    int
	Value []byte
}

// parseIEs heuristically walks the ProtocolIE-Container the same way the
// NGAP decoder does; S1AP's IE framing (TS 36.413) is likewise APER and a
// full decoder isn't required.
func (d *S1APDecoder) parseIEs(body []byte) []s1apIE {
	var ies []s1apIE
	if len(body) < 4 {
		return ies
	}
	off := 1
	for off+3 <= len(body) {
		id := int(body[off])
		length := int(body[off+2])
		if length <= 0 || off+3+length > len(body) {
			break
		}
		ies = append(ies, s1apIE{ID: id, Value: body[off+3 : off+3+length]})
		off += 3 + length
	}
	return ies
}

func findS1APIE(ies []s1apIE, id int) ([]byte, bool) {
	for _, ie := range ies {
		if ie.ID == id {
			return ie.Value, true
		}
	}
	return nil, false
}

// S1AP IE identifiers (3GPP TS 36.413 §9.3.3).
const (
	ieMMEUES1APID = 0
	ieENBUES1APID = 8
	ieNASPDU      = 26
	ieCause       = 2
)

// extractCorrelationFields pulls MME-UE-S1AP-ID, ENB-UE-S1AP-ID, and the
// embedded NAS-PDU.
func (d *S1APDecoder) extractCorrelationFields(msg *decoder.Message, ies []s1apIE) {
	if v, ok := findS1APIE(ies, ieMMEUES1APID); ok {
		msg.S1APMmeUEID = uint32(beUint(v))
	}
	if v, ok := findS1APIE(ies, ieENBUES1APID); ok {
		msg.S1APEnbUEID = uint32(beUint(v))
	}
	if v, ok := findS1APIE(ies, ieNASPDU); ok {
		msg.Details["nas_pdu"] = v
	}
	if v, ok := findS1APIE(ies, ieCause); ok && len(v) >= 2 {
		msg.CauseCode = int(v[1])
	}
}

func beUint(b []byte) uint64 {
	if len(b) > 8 {
		b = b[len(b)-8:]
	}
	var buf [8]byte
	copy(buf[8-len(b):], b)
	return binary.BigEndian.Uint64(buf[:])
}

// identifyNetworkElements identifies source and destination
func (d *S1APDecoder) identifyNetworkElements(msg *decoder.Message, procedureCode int) {
	switch procedureCode {
	case 12, 13, 0: // InitialUEMessage, UplinkNASTransport, HandoverPreparation
		msg.Source.Type = "eNB"
		msg.Destination.Type = "MME"
	case 11, 9, 5, 1, 23: // DownlinkNASTransport, InitialContextSetup, E-RABSetup, HandoverResourceAllocation, UEContextRelease
		msg.Source.Type = "MME"
		msg.Destination.Type = "eNB"
	default:
		msg.Source.Type = "Unknown"
		msg.Destination.Type = "Unknown"
	}
}

// getS1APProcedureName returns procedure name for code
func getS1APProcedureName(code int) string {
	procedures := map[int]string{
		0:  "HandoverPreparation",
		1:  "HandoverResourceAllocation",
		2:  "HandoverNotification",
		3:  "PathSwitchRequest",
		4:  "HandoverCancel",
		5:  "E-RABSetup",
		6:  "E-RABModify",
		7:  "E-RABRelease",
		8:  "E-RABReleaseIndication",
		9:  "InitialContextSetup",
		10: "Paging",
		11: "DownlinkNASTransport",
		12: "InitialUEMessage",
		13: "UplinkNASTransport",
		14: "Reset",
		15: "ErrorIndication",
		16: "NASNonDeliveryIndication",
		17: "S1Setup",
		18: "UEContextReleaseRequest",
		19: "DownlinkS1cdma2000tunnelling",
		20: "UplinkS1cdma2000tunnelling",
		21: "UEContextModification",
		22: "UECapabilityInfoIndication",
		23: "UEContextRelease",
		24: "eNBStatusTransfer",
		25: "MMEStatusTransfer",
		26: "DeactivateTrace",
		27: "TraceStart",
		28: "TraceFailureIndication",
		29: "ENBConfigurationUpdate",
		30: "MMEConfigurationUpdate",
		31: "LocationReportingControl",
		32: "LocationReportingFailureIndication",
		33: "LocationReport",
		34: "OverloadStart",
		35: "OverloadStop",
		36: "WriteReplaceWarning",
		37: "eNBDirectInformationTransfer",
		38: "MMEDirectInformationTransfer",
		39: "PrivateMessage",
		40: "eNBConfigurationTransfer",
		41: "MMEConfigurationTransfer",
		42: "CellTrafficTrace",
		43: "Kill",
		44: "DownlinkUEAssociatedLPPaTransport",
		45: "UplinkUEAssociatedLPPaTransport",
		46: "DownlinkNonUEAssociatedLPPaTransport",
		47: "UplinkNonUEAssociatedLPPaTransport",
	}

	if name, ok := procedures[code]; ok {
		return name
	}
	return fmt.Sprintf("S1AP_Procedure_%d", code)
}

func generateMessageID() string {
	return fmt.Sprintf("msg_%d", time.Now().UnixNano())
}
