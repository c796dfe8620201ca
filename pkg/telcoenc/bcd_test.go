package telcoenc

import "testing"

func TestBCDRoundTrip(t *testing.T) {
	cases := []string{
		"001010000000001",
		"310150123456789",
		"999999999999999",
		"123456789012345",
	}
	for _, imsi := range cases {
		encoded := EncodeBCD(imsi)
		decoded := DecodeBCD(encoded)
		if decoded != imsi {
			t.Errorf("DecodeBCD(EncodeBCD(%q)) = %q, want %q", imsi, decoded, imsi)
		}
	}
}

func TestBCDRoundTripOddLength(t *testing.T) {
	digits := "1234567"
	encoded := EncodeBCD(digits)
	if len(encoded) != 4 {
		t.Fatalf("EncodeBCD(%q) produced %d bytes, want 4", digits, len(encoded))
	}
	if decoded := DecodeBCD(encoded); decoded != digits {
		t.Errorf("DecodeBCD(EncodeBCD(%q)) = %q, want %q", digits, decoded, digits)
	}
}

func TestDecodeBCDRejectsNonFillerInvalidNibble(t *testing.T) {
	// 0xFA: low nibble 0xA (invalid digit, not the filler), high nibble 0xF (filler).
	got := DecodeBCD([]byte{0xFA})
	if got != "" {
		t.Errorf("DecodeBCD({0xFA}) = %q, want empty string (no valid digits)", got)
	}
}

func TestDecodeBCDFillerOnlyOnLastByte(t *testing.T) {
	// 0x21 0xF3 -> digits 1,2,3 with trailing filler dropped.
	got := DecodeBCD([]byte{0x21, 0xF3})
	if got != "123" {
		t.Errorf("DecodeBCD = %q, want %q", got, "123")
	}
}

func TestBCDIdentityRoundTrip(t *testing.T) {
	const identityType = 0x01 // IMSI
	digits := "001010000000001"
	encoded := EncodeBCDIdentity(identityType, digits)
	decoded := DecodeBCDIdentity(encoded)
	if decoded != digits {
		t.Errorf("DecodeBCDIdentity(EncodeBCDIdentity(...)) = %q, want %q", decoded, digits)
	}
}

func TestBCDIdentityEmptyDigits(t *testing.T) {
	encoded := EncodeBCDIdentity(0x01, "")
	if len(encoded) != 1 {
		t.Fatalf("EncodeBCDIdentity with empty digits produced %d bytes, want 1", len(encoded))
	}
}

func TestAPNRoundTrip(t *testing.T) {
	cases := []string{
		"internet",
		"ims",
		"internet.mnc001.mcc001.gprs",
		"a.b.c",
	}
	for _, apn := range cases {
		encoded := EncodeAPN(apn)
		decoded := DecodeAPN(encoded)
		if decoded != apn {
			t.Errorf("DecodeAPN(EncodeAPN(%q)) = %q, want %q", apn, decoded, apn)
		}
	}
}

func TestAPNEmpty(t *testing.T) {
	if got := EncodeAPN(""); got != nil {
		t.Errorf("EncodeAPN(\"\") = %v, want nil", got)
	}
	if got := DecodeAPN(nil); got != "" {
		t.Errorf("DecodeAPN(nil) = %q, want empty string", got)
	}
}

func TestDecodeAPNTruncatedLabel(t *testing.T) {
	// length byte claims more bytes than are actually present.
	data := []byte{0x08, 'i', 'n', 't'}
	if got := DecodeAPN(data); got != "" {
		t.Errorf("DecodeAPN(truncated) = %q, want empty string", got)
	}
}
