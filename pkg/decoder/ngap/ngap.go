package ngap

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/protei/monitoring/pkg/decoder"
)

// NGAPDecoder handles 5G NG Application Protocol
type NGAPDecoder struct{}

// NewNGAPDecoder creates a new NGAP decoder
func NewNGAPDecoder() *NGAPDecoder {
	return &NGAPDecoder{}
}

// Protocol returns the protocol type
func (d *NGAPDecoder) Protocol() decoder.Protocol {
	return decoder.ProtocolNGAP
}

// CanDecode checks if the data is an NGAP message
func (d *NGAPDecoder) CanDecode(data []byte) bool {
	if len(data) < 4 {
		return false
	}
	// NGAP uses SCTP; first byte carries the PDU choice
	return data[0] == 0x00 || data[0] == 0x20 || data[0] == 0x40
}

// Decode decodes an NGAP message
func (d *NGAPDecoder) Decode(data []byte, metadata *decoder.Metadata) (*decoder.Message, error) {
	startTime := time.Now()

	if len(data) < 8 {
		return nil, decoder.ErrInsufficientData
	}

	msg := &decoder.Message{
		ID:          generateMessageID(),
		Timestamp:   metadata.CaptureTime,
		Protocol:    decoder.ProtocolNGAP,
		Details:     make(map[string]interface{}),
		Source:      decoder.NetworkElement{IP: metadata.SourceIP, Port: metadata.SourcePort},
		Destination: decoder.NetworkElement{IP: metadata.DestIP, Port: metadata.DestPort},
		RawPayload:  data,
		PayloadSize: len(data),
	}

	pduChoice := data[0]
	procedureCode := int(data[2])
	procName := getNGAPProcedureName(procedureCode)

	switch pduChoice {
	case 0x00: // initiatingMessage
		msg.Direction = decoder.DirectionRequest
		msg.MessageType = "NGAP_InitiatingMessage"
		msg.MessageName = procName + " Request"
	case 0x20: // successfulOutcome
		msg.Direction = decoder.DirectionResponse
		msg.MessageType = "NGAP_SuccessfulOutcome"
		msg.MessageName = procName + " Response"
		msg.Result = decoder.ResultSuccess
	case 0x40: // unsuccessfulOutcome
		msg.Direction = decoder.DirectionResponse
		msg.MessageType = "NGAP_UnsuccessfulOutcome"
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

// ngapIE is one heuristically-extracted NGAP Information Element. NGAP's
// ProtocolIE-Container is APER-encoded; a full PER decoder isn't required
// to reach the identifiers, so this walks the container as a run of
// (id, criticality, length, value) tuples and stops at the first entry
// that doesn't fit the remaining bytes.
type ngapIE struct {
	ID    int
	Value []byte
}

// parseIEs heuristically scans an NGAP ProtocolIE-Container.
func (d *NGAPDecoder) parseIEs(body []byte) []ngapIE {
	var ies []ngapIE
	if len(body) < 4 {
		return ies
	}
	off := 1 // skip the IE count byte
	for off+3 <= len(body) {
		id := int(body[off])
		length := int(body[off+2])
		if length <= 0 || off+3+length > len(body) {
			break
		}
		ies = append(ies, ngapIE{ID: id, Value: body[off+3 : off+3+length]})
		off += 3 + length
	}
	return ies
}

func findIE(ies []ngapIE, id int) ([]byte, bool) {
	for _, ie := range ies {
		if ie.ID == id {
			return ie.Value, true
		}
	}
	return nil, false
}

// NGAP ProtocolIE identifiers (3GPP TS 38.413 §9.3.2).
const (
	ieAMFUENGAPID = 10
	ieGUAMI       = 28
	ieNASPDU      = 38
	ieRANUENGAPID = 85
	ieCause       = 15
)

// extractCorrelationFields pulls the NGAP correlation identifiers:
// AMF-UE-NGAP-ID, RAN-UE-NGAP-ID, the serving PLMN from GUAMI, and the
// embedded NAS-PDU (handed off for re-decode by the NAS decoder).
func (d *NGAPDecoder) extractCorrelationFields(msg *decoder.Message, ies []ngapIE) {
	if v, ok := findIE(ies, ieAMFUENGAPID); ok {
		msg.NGAPAmfUEID = beUint(v)
	}
	if v, ok := findIE(ies, ieRANUENGAPID); ok {
		msg.NGAPRanUEID = beUint(v)
	}
	if v, ok := findIE(ies, ieGUAMI); ok && len(v) >= 3 {
		msg.PLMN = fmt.Sprintf("%02x%02x%02x", v[0], v[1], v[2])
	}
	if v, ok := findIE(ies, ieNASPDU); ok {
		msg.Details["nas_pdu"] = v
	}
	if v, ok := findIE(ies, ieCause); ok && len(v) >= 2 {
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

// identifyNetworkElements identifies source and destination node type from
// the procedure code.
func (d *NGAPDecoder) identifyNetworkElements(msg *decoder.Message, procedureCode int) {
	switch procedureCode {
	case 21, 46, 15, 12: // NGSetup, UplinkNASTransport, InitialUEMessage, HandoverPreparation
		msg.Source.Type = "gNB"
		msg.Destination.Type = "AMF"
	case 4, 14, 29, 13: // DownlinkNASTransport, InitialContextSetup, PDUSessionResourceSetup, HandoverResourceAllocation
		msg.Source.Type = "AMF"
		msg.Destination.Type = "gNB"
	default:
		msg.Source.Type = "Unknown"
		msg.Destination.Type = "Unknown"
	}
}

// getNGAPProcedureName returns the procedure name for a procedure code.
func getNGAPProcedureName(code int) string {
	procedures := map[int]string{
		0:  "AMFConfigurationUpdate",
		1:  "AMFStatusIndication",
		2:  "CellTrafficTrace",
		3:  "DeactivateTrace",
		4:  "DownlinkNASTransport",
		5:  "DownlinkNonUEAssociatedNRPPaTransport",
		6:  "DownlinkRANConfigurationTransfer",
		7:  "DownlinkRANStatusTransfer",
		8:  "DownlinkUEAssociatedNRPPaTransport",
		9:  "ErrorIndication",
		10: "HandoverCancel",
		11: "HandoverNotification",
		12: "HandoverPreparation",
		13: "HandoverResourceAllocation",
		14: "InitialContextSetup",
		15: "InitialUEMessage",
		16: "LocationReportingControl",
		17: "LocationReportingFailureIndication",
		18: "LocationReport",
		19: "NASNonDeliveryIndication",
		20: "NGReset",
		21: "NGSetup",
		22: "OverloadStart",
		23: "OverloadStop",
		24: "Paging",
		25: "PathSwitchRequest",
		26: "PDUSessionResourceModify",
		27: "PDUSessionResourceModifyIndication",
		28: "PDUSessionResourceRelease",
		29: "PDUSessionResourceSetup",
		30: "PDUSessionResourceNotify",
		31: "PrivateMessage",
		32: "PWSCancel",
		33: "PWSFailureIndication",
		34: "PWSRestartIndication",
		35: "RANConfigurationUpdate",
		36: "RerouteNASRequest",
		37: "RRCInactiveTransitionReport",
		38: "TraceFailureIndication",
		39: "TraceStart",
		40: "UEContextModification",
		41: "UEContextRelease",
		42: "UEContextReleaseRequest",
		43: "UERadioCapabilityCheck",
		44: "UERadioCapabilityInfoIndication",
		45: "UETNLABindingRelease",
		46: "UplinkNASTransport",
		47: "UplinkNonUEAssociatedNRPPaTransport",
		48: "UplinkRANConfigurationTransfer",
		49: "UplinkRANStatusTransfer",
		50: "UplinkUEAssociatedNRPPaTransport",
		51: "WriteReplaceWarning",
	}

	if name, ok := procedures[code]; ok {
		return name
	}
	return fmt.Sprintf("NGAP_Procedure_%d", code)
}

func generateMessageID() string {
	return fmt.Sprintf("msg_%d", time.Now().UnixNano())
}
