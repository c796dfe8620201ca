package nas

import (
	"testing"
	"time"

	"github.com/protei/monitoring/pkg/decoder"
)

func TestNASCanDecode(t *testing.T) {
	d := NewNASDecoder(nil)
	if !d.CanDecode([]byte{0x07, 0x41, 0}) {
		t.Error("CanDecode rejected a plain 4G NAS header")
	}
	if d.CanDecode([]byte{0x07, 0x41}) {
		t.Error("CanDecode accepted a too-short buffer")
	}
}

// encodeBCDIdentity packs digits into a TBCD mobile identity, with
// identityType in the low 3 bits of the first octet the way TS 24.008
// §10.5.1.4 mobile identities are encoded.
func encodeBCDIdentity(identityType byte, digits string) []byte {
	raw := []byte{(digits[0]-'0')<<4 | identityType}
	rest := digits[1:]
	for i := 0; i < len(rest); i += 2 {
		low := rest[i] - '0'
		high := byte(0x0F)
		if i+1 < len(rest) {
			high = rest[i+1] - '0'
		}
		raw = append(raw, low|(high<<4))
	}
	return raw
}

func buildIE(ieType byte, value []byte) []byte {
	return append([]byte{ieType, byte(len(value))}, value...)
}

func TestNASDecodeAttachRequestCarriesIMSI(t *testing.T) {
	d := NewNASDecoder(nil)
	identity := encodeBCDIdentity(0x01, "001010000000001")
	raw := append([]byte{0x07, 0x41}, buildIE(0x52, identity)...)

	msg, err := d.Decode(raw, &decoder.Metadata{CaptureTime: time.Now()})
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if msg.Protocol != decoder.ProtocolNAS4G {
		t.Errorf("Protocol = %q, want 4G NAS", msg.Protocol)
	}
	if msg.MessageName != "AttachRequest" {
		t.Errorf("MessageName = %q, want AttachRequest", msg.MessageName)
	}
	if msg.Direction != decoder.DirectionRequest {
		t.Errorf("Direction = %q, want request", msg.Direction)
	}
	if msg.Source.Type != "UE" || msg.Destination.Type != "MME" {
		t.Errorf("Source/Destination = %s/%s, want UE/MME", msg.Source.Type, msg.Destination.Type)
	}
	if msg.IMSI != "001010000000001" {
		t.Errorf("IMSI = %q, want 001010000000001", msg.IMSI)
	}
}

func TestNASDecode5GRegistrationRequest(t *testing.T) {
	d := NewNASDecoder(nil)
	raw := []byte{0x0F, 0x41, 0, 0}

	msg, err := d.Decode(raw, &decoder.Metadata{CaptureTime: time.Now()})
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if msg.Protocol != decoder.ProtocolNAS5G {
		t.Errorf("Protocol = %q, want 5G NAS", msg.Protocol)
	}
	if msg.MessageName != "RegistrationRequest" {
		t.Errorf("MessageName = %q, want RegistrationRequest", msg.MessageName)
	}
	if msg.Source.Type != "UE" || msg.Destination.Type != "AMF" {
		t.Errorf("Source/Destination = %s/%s, want UE/AMF", msg.Source.Type, msg.Destination.Type)
	}
}

func TestNASDecodeAttachRejectCarriesEMMCause(t *testing.T) {
	d := NewNASDecoder(nil)
	raw := append([]byte{0x07, 0x44}, buildIE(0x5c, []byte{17})...)

	msg, err := d.Decode(raw, &decoder.Metadata{CaptureTime: time.Now()})
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if msg.MessageName != "AttachReject" {
		t.Errorf("MessageName = %q, want AttachReject", msg.MessageName)
	}
	if msg.Direction != decoder.DirectionResponse {
		t.Errorf("Direction = %q, want response", msg.Direction)
	}
	if msg.CauseCode != 17 {
		t.Errorf("CauseCode = %d, want 17", msg.CauseCode)
	}
}

func TestNASDecodeCipheredMessageStopsAtSecurityHeader(t *testing.T) {
	d := NewNASDecoder(nil)
	raw := []byte{0x27, 0, 0, 0} // secHeaderType=2 (ciphered), epd=7

	msg, err := d.Decode(raw, &decoder.Metadata{CaptureTime: time.Now()})
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if msg.MessageName != "NAS (ciphered)" {
		t.Errorf("MessageName = %q, want NAS (ciphered)", msg.MessageName)
	}
	if msg.Result != decoder.ResultUnknown {
		t.Errorf("Result = %q, want unknown", msg.Result)
	}
}

func TestNASDecodeTooShortIsInsufficientData(t *testing.T) {
	d := NewNASDecoder(nil)
	if _, err := d.Decode([]byte{0x07, 0x41}, &decoder.Metadata{CaptureTime: time.Now()}); err != decoder.ErrInsufficientData {
		t.Errorf("Decode error = %v, want ErrInsufficientData", err)
	}
}
