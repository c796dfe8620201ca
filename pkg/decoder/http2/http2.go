// Package http2 decodes 5G Service-Based Interface (SBI) traffic: HTTP/2
// HEADERS (HPACK-compressed) and DATA frames carrying JSON bodies, per
// 3GPP TS 29.500/29.501.
package http2

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/hpack"

	"github.com/protei/monitoring/pkg/decoder"
)

// HTTP2Decoder handles 5G SBI traffic carried over HTTP/2.
type HTTP2Decoder struct{}

// NewHTTP2Decoder creates a new HTTP/2 SBI decoder.
func NewHTTP2Decoder() *HTTP2Decoder {
	return &HTTP2Decoder{}
}

// Protocol returns the protocol type.
func (d *HTTP2Decoder) Protocol() decoder.Protocol {
	return decoder.ProtocolHTTP2
}

// CanDecode checks if data opens with a valid HTTP/2 frame header whose
// type is HEADERS (0x1) or DATA (0x0). The connection preface
// ("PRI * HTTP/2.0...") is handled by the capture layer, not here.
func (d *HTTP2Decoder) CanDecode(data []byte) bool {
	if len(data) < 9 {
		return false
	}
	frameType := data[3]
	return frameType == 0x00 || frameType == 0x01
}

// Decode parses a single framed unit: a HEADERS frame (reconstituting
// pseudo-headers and common SBI headers via HPACK) optionally followed by
// a DATA frame carrying a JSON body.
func (d *HTTP2Decoder) Decode(data []byte, metadata *decoder.Metadata) (*decoder.Message, error) {
	startTime := time.Now()

	if len(data) < 9 {
		return nil, decoder.ErrInsufficientData
	}

	msg := &decoder.Message{
		ID:          generateMessageID(),
		Timestamp:   metadata.CaptureTime,
		Protocol:    decoder.ProtocolHTTP2,
		Details:     make(map[string]interface{}),
		Source:      decoder.NetworkElement{IP: metadata.SourceIP, Port: metadata.SourcePort},
		Destination: decoder.NetworkElement{IP: metadata.DestIP, Port: metadata.DestPort},
		RawPayload:  data,
		PayloadSize: len(data),
	}

	framer := http2.NewFramer(io.Discard, bytes.NewReader(data))
	framer.ReadMetaHeaders = hpack.NewDecoder(4096, nil)

	var body []byte
	var sawHeaders bool

	for {
		frame, err := framer.ReadFrame()
		if err != nil {
			break
		}

		switch f := frame.(type) {
		case *http2.MetaHeadersFrame:
			sawHeaders = true
			msg.Details["stream_id"] = f.StreamID
			applyHeaders(msg, f.Fields)
		case *http2.DataFrame:
			body = append(body, f.Data()...)
		}
	}

	if !sawHeaders {
		return nil, decoder.ErrInvalidData
	}

	if len(body) > 0 {
		msg.Details["body"] = string(body)
		extractBodyFields(msg, body)
	}

	extractPathIdentifiers(msg)
	identifyNetworkElements(msg)

	msg.ProcessedAt = time.Now()
	msg.DecodeTimeUs = time.Since(startTime).Microseconds()

	return msg, nil
}

// applyHeaders reconstitutes the request-line / status from HTTP/2
// pseudo-headers and pulls out the common SBI headers.
func applyHeaders(msg *decoder.Message, fields []hpack.HeaderField) {
	var method, path, status string

	for _, f := range fields {
		switch f.Name {
		case ":method":
			method = f.Value
		case ":path":
			path = f.Value
		case ":status":
			status = f.Value
		case "3gpp-sbi-message-priority":
			msg.Details["sbi_message_priority"] = f.Value
		case "content-type":
			msg.Details["content_type"] = f.Value
		default:
			msg.Details["header_"+f.Name] = f.Value
		}
	}

	msg.Details["path"] = path
	if segs := strings.Split(strings.Trim(path, "/"), "/"); len(segs) > 0 && segs[0] != "" {
		msg.Details["service"] = segs[0]
	}

	switch {
	case method != "":
		msg.Direction = decoder.DirectionRequest
		msg.MessageName = serviceOperationName(path)
		msg.MessageType = fmt.Sprintf("HTTP2_%s", method)
	case status != "":
		msg.Direction = decoder.DirectionResponse
		msg.MessageType = fmt.Sprintf("HTTP2_%s", status)
		if len(status) > 0 && status[0] == '2' {
			msg.Result = decoder.ResultSuccess
		} else {
			msg.Result = decoder.ResultFailure
		}
		if code := parseStatus(status); code != 0 {
			msg.CauseCode = code
		}
	}
}

func parseStatus(status string) int {
	n := 0
	for _, c := range status {
		if c < '0' || c > '9' {
			return 0
		}
		n = n*10 + int(c-'0')
	}
	return n
}

// serviceOperationName derives a human-readable SBI operation name from the
// request path, e.g. "/nudm-uecm/v1/{supi}/registrations/amf-3gpp-access"
// -> "Nudm_UECM_Registration".
func serviceOperationName(path string) string {
	serviceNames := map[string]string{
		"nudm-uecm": "Nudm_UECM_Registration",
		"nudm-sdm":  "Nudm_SDM_Get",
		"nsmf-pdusession": "Nsmf_PDUSession_CreateSMContext",
		"namf-comm": "Namf_Communication_N1N2MessageTransfer",
	}

	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) == 0 {
		return "Unknown"
	}
	if name, ok := serviceNames[parts[0]]; ok {
		return name
	}
	return parts[0]
}

// extractPathIdentifiers pulls the SUPI (or similar UUID-shaped
// identifier) out of URI path segments, e.g.
// /nudm-uecm/v1/{supi}/registrations/... -> SUPI.
func extractPathIdentifiers(msg *decoder.Message) {
	path, _ := msg.Details["path"].(string)
	if path == "" {
		return
	}
	for _, seg := range strings.Split(path, "/") {
		if isSUPI(seg) {
			msg.SUPI = seg
			return
		}
	}
}

func isSUPI(seg string) bool {
	if strings.HasPrefix(seg, "imsi-") {
		return len(seg) == 20
	}
	if strings.HasPrefix(seg, "suci-") {
		return true
	}
	return false
}

// sbiProblemDetails mirrors the RFC 7807 problem-details JSON 3GPP SBI
// error responses carry (TS 29.500 §5.2.7.2).
type sbiProblemDetails struct {
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail"`
	Cause  string `json:"cause"`
}

// extractBodyFields pulls the SBI problem-details cause out of an error
// response body and surfaces a SUPI carried in the JSON payload.
func extractBodyFields(msg *decoder.Message, body []byte) {
	var problem sbiProblemDetails
	if err := json.Unmarshal(body, &problem); err == nil && problem.Cause != "" {
		msg.CauseText = problem.Cause
		msg.Details["problem_title"] = problem.Title
	}

	var generic map[string]interface{}
	if err := json.Unmarshal(body, &generic); err == nil {
		if supi, ok := generic["supi"].(string); ok && msg.SUPI == "" {
			msg.SUPI = supi
		}
	}
}

func identifyNetworkElements(msg *decoder.Message) {
	switch {
	case strings.Contains(msg.MessageName, "Nudm"):
		if msg.Direction == decoder.DirectionRequest {
			msg.Source.Type = "AMF"
			msg.Destination.Type = "UDM"
		} else {
			msg.Source.Type = "UDM"
			msg.Destination.Type = "AMF"
		}
	case strings.Contains(msg.MessageName, "Nsmf"):
		if msg.Direction == decoder.DirectionRequest {
			msg.Source.Type = "AMF"
			msg.Destination.Type = "SMF"
		} else {
			msg.Source.Type = "SMF"
			msg.Destination.Type = "AMF"
		}
	default:
		msg.Source.Type = "Unknown"
		msg.Destination.Type = "Unknown"
	}
}

func generateMessageID() string {
	return fmt.Sprintf("msg_%d", time.Now().UnixNano())
}
