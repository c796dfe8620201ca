package ngap

import (
	"testing"
	"time"

	"github.com/protei/monitoring/pkg/decoder"
)

func TestNGAPCanDecode(t *testing.T) {
	d := NewNGAPDecoder()
	for _, pdu := range []byte{0x00, 0x20, 0x40} {
		if !d.CanDecode([]byte{pdu, 0, 0, 0}) {
			t.Errorf("CanDecode rejected PDU choice 0x%02x", pdu)
		}
	}
	if d.CanDecode([]byte{0x10, 0, 0, 0}) {
		t.Error("CanDecode accepted an unknown PDU choice")
	}
}

func buildIE(id byte, value []byte) []byte {
	return append([]byte{id, 0, byte(len(value))}, value...)
}

func buildNGAP(pduChoice byte, procCode byte, ies ...[]byte) []byte {
	data := []byte{pduChoice, 0, procCode}
	body := []byte{0} // IE count byte, unused by the decoder
	for _, ie := range ies {
		body = append(body, ie...)
	}
	data = append(data, body...)
	for len(data) < 8 {
		data = append(data, 0)
	}
	return data
}

func TestNGAPDecodeInitialUEMessage(t *testing.T) {
	d := NewNGAPDecoder()
	ranUEID := buildIE(85, []byte{0, 0, 0, 7})
	raw := buildNGAP(0x00, 15, ranUEID)

	msg, err := d.Decode(raw, &decoder.Metadata{CaptureTime: time.Now()})
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if msg.Direction != decoder.DirectionRequest {
		t.Errorf("Direction = %q, want request", msg.Direction)
	}
	if msg.MessageName != "InitialUEMessage Request" {
		t.Errorf("MessageName = %q, want InitialUEMessage Request", msg.MessageName)
	}
	if msg.NGAPRanUEID != 7 {
		t.Errorf("NGAPRanUEID = %d, want 7", msg.NGAPRanUEID)
	}
	if msg.Source.Type != "gNB" || msg.Destination.Type != "AMF" {
		t.Errorf("Source/Destination = %s/%s, want gNB/AMF", msg.Source.Type, msg.Destination.Type)
	}
}

func TestNGAPDecodeUnsuccessfulOutcomeCarriesCause(t *testing.T) {
	d := NewNGAPDecoder()
	cause := buildIE(15, []byte{1, 5})
	amfUEID := buildIE(10, []byte{0, 0, 0, 42})
	raw := buildNGAP(0x40, 14, cause, amfUEID) // InitialContextSetup failure

	msg, err := d.Decode(raw, &decoder.Metadata{CaptureTime: time.Now()})
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if msg.Direction != decoder.DirectionResponse {
		t.Errorf("Direction = %q, want response", msg.Direction)
	}
	if msg.Result != decoder.ResultFailure {
		t.Errorf("Result = %q, want failure", msg.Result)
	}
	if msg.MessageName != "InitialContextSetup Failure" {
		t.Errorf("MessageName = %q, want InitialContextSetup Failure", msg.MessageName)
	}
	if msg.CauseCode != 5 {
		t.Errorf("CauseCode = %d, want 5", msg.CauseCode)
	}
	if msg.NGAPAmfUEID != 42 {
		t.Errorf("NGAPAmfUEID = %d, want 42", msg.NGAPAmfUEID)
	}
}

func TestNGAPDecodeSuccessfulOutcomeIsSuccess(t *testing.T) {
	d := NewNGAPDecoder()
	raw := buildNGAP(0x20, 21) // NGSetup response

	msg, err := d.Decode(raw, &decoder.Metadata{CaptureTime: time.Now()})
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if msg.Result != decoder.ResultSuccess {
		t.Errorf("Result = %q, want success", msg.Result)
	}
	if msg.MessageName != "NGSetup Response" {
		t.Errorf("MessageName = %q, want NGSetup Response", msg.MessageName)
	}
}

func TestNGAPDecodeTooShortIsInsufficientData(t *testing.T) {
	d := NewNGAPDecoder()
	if _, err := d.Decode([]byte{0, 0, 0}, &decoder.Metadata{CaptureTime: time.Now()}); err != decoder.ErrInsufficientData {
		t.Errorf("Decode error = %v, want ErrInsufficientData", err)
	}
}
