package cap

import (
	"testing"
	"time"

	"github.com/protei/monitoring/pkg/decoder"
	"github.com/protei/monitoring/pkg/telcoenc"
)

func TestCAPCanDecode(t *testing.T) {
	d := NewCAPDecoder(nil)
	for _, tag := range []byte{0x62, 0x65, 0x64, 0x67} {
		if !d.CanDecode([]byte{tag, 0x00}) {
			t.Errorf("CanDecode rejected TCAP tag 0x%02x", tag)
		}
	}
	if d.CanDecode([]byte{0x01, 0x00}) {
		t.Error("CanDecode accepted a non-TCAP tag")
	}
}

func buildInitialDP(imsi string) []byte {
	data := []byte{0x62, 0x00, 0, 0, 0, 0, 0, 0, 0, 0}
	data = append(data, 0xA1, 0x03, 0x02, 0x01, 0x00) // invoke, operation code 0 (InitialDP)
	bcd := telcoenc.EncodeBCD(imsi)
	data = append(data, 0x04, byte(len(bcd)))
	data = append(data, bcd...)
	return data
}

func buildSystemFailureEnd() []byte {
	data := []byte{0x64, 0x00, 0, 0, 0, 0, 0, 0, 0, 0}
	data = append(data, 0xA3, 0x06, 0x02, 0x01, 0x01, 0x02, 0x01, 0x04) // ReturnError, invokeId=1, error=4
	return data
}

func TestCAPDecodeInitialDP(t *testing.T) {
	d := NewCAPDecoder(nil)
	raw := buildInitialDP("001010000000001")

	msg, err := d.Decode(raw, &decoder.Metadata{CaptureTime: time.Now()})
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if msg.MessageName != "InitialDP" {
		t.Errorf("MessageName = %q, want InitialDP", msg.MessageName)
	}
	if msg.IMSI != "001010000000001" {
		t.Errorf("IMSI = %q, want 001010000000001", msg.IMSI)
	}
	if msg.Source.Type != "MSC/SSF" || msg.Destination.Type != "gsmSCF" {
		t.Errorf("Source/Destination = %s/%s, want MSC/SSF / gsmSCF", msg.Source.Type, msg.Destination.Type)
	}
}

func TestCAPDecodeSystemFailure(t *testing.T) {
	d := NewCAPDecoder(nil)
	raw := buildSystemFailureEnd()

	msg, err := d.Decode(raw, &decoder.Metadata{CaptureTime: time.Now()})
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if msg.CauseCode != 4 {
		t.Fatalf("CauseCode = %d, want 4", msg.CauseCode)
	}
	if msg.CauseText != "SystemFailure" {
		t.Errorf("CauseText = %q, want SystemFailure", msg.CauseText)
	}
	if msg.Result != decoder.ResultFailure {
		t.Errorf("Result = %q, want failure", msg.Result)
	}
}
