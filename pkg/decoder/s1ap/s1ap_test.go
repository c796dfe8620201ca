package s1ap

import (
	"testing"
	"time"

	"github.com/protei/monitoring/pkg/decoder"
)

func TestS1APCanDecode(t *testing.T) {
	d := NewS1APDecoder()
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

func buildS1AP(pduChoice byte, procCode byte, ies ...[]byte) []byte {
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

func TestS1APDecodeInitialUEMessage(t *testing.T) {
	d := NewS1APDecoder()
	enbUEID := buildIE(8, []byte{0, 0, 0, 11})
	raw := buildS1AP(0x00, 12, enbUEID)

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
	if msg.S1APEnbUEID != 11 {
		t.Errorf("S1APEnbUEID = %d, want 11", msg.S1APEnbUEID)
	}
	if msg.Source.Type != "eNB" || msg.Destination.Type != "MME" {
		t.Errorf("Source/Destination = %s/%s, want eNB/MME", msg.Source.Type, msg.Destination.Type)
	}
}

func TestS1APDecodeUnsuccessfulOutcomeCarriesCause(t *testing.T) {
	d := NewS1APDecoder()
	cause := buildIE(2, []byte{1, 9})
	mmeUEID := buildIE(0, []byte{0, 0, 0, 77})
	raw := buildS1AP(0x40, 9, cause, mmeUEID) // InitialContextSetup failure

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
	if msg.CauseCode != 9 {
		t.Errorf("CauseCode = %d, want 9", msg.CauseCode)
	}
	if msg.S1APMmeUEID != 77 {
		t.Errorf("S1APMmeUEID = %d, want 77", msg.S1APMmeUEID)
	}
}

func TestS1APDecodeSuccessfulOutcomeIsSuccess(t *testing.T) {
	d := NewS1APDecoder()
	raw := buildS1AP(0x20, 17) // S1Setup response

	msg, err := d.Decode(raw, &decoder.Metadata{CaptureTime: time.Now()})
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if msg.Result != decoder.ResultSuccess {
		t.Errorf("Result = %q, want success", msg.Result)
	}
	if msg.MessageName != "S1Setup Response" {
		t.Errorf("MessageName = %q, want S1Setup Response", msg.MessageName)
	}
}

func TestS1APDecodeTooShortIsInsufficientData(t *testing.T) {
	d := NewS1APDecoder()
	if _, err := d.Decode([]byte{0, 0, 0}, &decoder.Metadata{CaptureTime: time.Now()}); err != decoder.ErrInsufficientData {
		t.Errorf("Decode error = %v, want ErrInsufficientData", err)
	}
}
