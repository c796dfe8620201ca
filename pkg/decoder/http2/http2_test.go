package http2

import (
	"bytes"
	"testing"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/hpack"

	"github.com/protei/monitoring/pkg/decoder"
)

func encodeHeaders(t *testing.T, fields [][2]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	enc := hpack.NewEncoder(&buf)
	for _, f := range fields {
		if err := enc.WriteField(hpack.HeaderField{Name: f[0], Value: f[1]}); err != nil {
			t.Fatalf("WriteField: %v", err)
		}
	}
	return buf.Bytes()
}

func buildHeadersFrame(t *testing.T, streamID uint32, fields [][2]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	fr := http2.NewFramer(&buf, nil)
	block := encodeHeaders(t, fields)
	if err := fr.WriteHeaders(http2.HeadersFrameParam{
		StreamID:      streamID,
		BlockFragment: block,
		EndHeaders:    true,
	}); err != nil {
		t.Fatalf("WriteHeaders: %v", err)
	}
	return buf.Bytes()
}

func buildDataFrame(t *testing.T, streamID uint32, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	fr := http2.NewFramer(&buf, nil)
	if err := fr.WriteData(streamID, true, data); err != nil {
		t.Fatalf("WriteData: %v", err)
	}
	return buf.Bytes()
}

func TestHTTP2CanDecode(t *testing.T) {
	d := NewHTTP2Decoder()
	headers := buildHeadersFrame(t, 1, [][2]string{{":method", "GET"}})
	if !d.CanDecode(headers) {
		t.Error("CanDecode rejected a HEADERS frame")
	}
	if d.CanDecode([]byte{0, 0, 0, 0x06, 0, 0, 0, 0, 1}) {
		t.Error("CanDecode accepted a non-HEADERS/DATA frame type")
	}
}

func TestHTTP2DecodeRequestDerivesServiceOperation(t *testing.T) {
	d := NewHTTP2Decoder()
	raw := buildHeadersFrame(t, 1, [][2]string{
		{":method", "PUT"},
		{":path", "/nudm-uecm/v1/imsi-001010000000001/registrations/amf-3gpp-access"},
		{"content-type", "application/json"},
	})

	msg, err := d.Decode(raw, &decoder.Metadata{CaptureTime: time.Now()})
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if msg.Direction != decoder.DirectionRequest {
		t.Errorf("Direction = %q, want request", msg.Direction)
	}
	if msg.MessageName != "Nudm_UECM_Registration" {
		t.Errorf("MessageName = %q, want Nudm_UECM_Registration", msg.MessageName)
	}
	if msg.SUPI != "imsi-001010000000001" {
		t.Errorf("SUPI = %q, want imsi-001010000000001", msg.SUPI)
	}
	if msg.Source.Type != "AMF" || msg.Destination.Type != "UDM" {
		t.Errorf("Source/Destination = %s/%s, want AMF/UDM", msg.Source.Type, msg.Destination.Type)
	}
}

func TestHTTP2DecodeSuccessResponse(t *testing.T) {
	d := NewHTTP2Decoder()
	raw := buildHeadersFrame(t, 1, [][2]string{{":status", "200"}})

	msg, err := d.Decode(raw, &decoder.Metadata{CaptureTime: time.Now()})
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if msg.Direction != decoder.DirectionResponse {
		t.Errorf("Direction = %q, want response", msg.Direction)
	}
	if msg.Result != decoder.ResultSuccess {
		t.Errorf("Result = %q, want success", msg.Result)
	}
	if msg.CauseCode != 200 {
		t.Errorf("CauseCode = %d, want 200", msg.CauseCode)
	}
}

func TestHTTP2DecodeErrorResponseWithProblemDetailsBody(t *testing.T) {
	d := NewHTTP2Decoder()
	headers := buildHeadersFrame(t, 1, [][2]string{{":status", "404"}})
	body := buildDataFrame(t, 1, []byte(`{"title":"Not Found","status":404,"cause":"SUBSCRIBER_NOT_FOUND"}`))
	raw := append(headers, body...)

	msg, err := d.Decode(raw, &decoder.Metadata{CaptureTime: time.Now()})
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if msg.Result != decoder.ResultFailure {
		t.Errorf("Result = %q, want failure", msg.Result)
	}
	if msg.CauseCode != 404 {
		t.Errorf("CauseCode = %d, want 404", msg.CauseCode)
	}
	if msg.CauseText != "SUBSCRIBER_NOT_FOUND" {
		t.Errorf("CauseText = %q, want SUBSCRIBER_NOT_FOUND", msg.CauseText)
	}
}

func TestHTTP2DecodeWithoutHeadersIsInvalidData(t *testing.T) {
	d := NewHTTP2Decoder()
	raw := buildDataFrame(t, 1, []byte("{}"))

	if _, err := d.Decode(raw, &decoder.Metadata{CaptureTime: time.Now()}); err != decoder.ErrInvalidData {
		t.Errorf("Decode error = %v, want ErrInvalidData", err)
	}
}

func TestHTTP2DecodeTooShortIsInsufficientData(t *testing.T) {
	d := NewHTTP2Decoder()
	if _, err := d.Decode([]byte{0, 0, 0}, &decoder.Metadata{CaptureTime: time.Now()}); err != decoder.ErrInsufficientData {
		t.Errorf("Decode error = %v, want ErrInsufficientData", err)
	}
}
