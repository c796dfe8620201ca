// Package telcoenc holds the small, protocol-agnostic binary encodings
// (TBCD digit strings, DNS-label-style APNs) that several of the
// decoders under pkg/decoder need. It was split out of four near-
// identical decodeBCD copies (MAP, CAP, INAP, GTP) into one place with
// matching Encode functions, so the digit-packing rules have a single
// definition and a round-trip test.
package telcoenc

// fillerNibble marks the padding half-octet in an odd-length BCD string.
const fillerNibble = 0x0F

// DecodeBCD unpacks telephony binary-coded decimal: each byte holds two
// digits, low nibble first, with a trailing 0xF filler nibble allowed on
// the last byte of an odd-length digit string. Any other nibble above 9
// makes the input invalid and DecodeBCD returns "".
func DecodeBCD(data []byte) string {
	digits := make([]byte, 0, len(data)*2)
	for i, b := range data {
		low := b & 0x0F
		high := (b >> 4) & 0x0F
		if low > 9 {
			return ""
		}
		digits = append(digits, '0'+low)
		if high <= 9 {
			digits = append(digits, '0'+high)
		} else if high != fillerNibble || i != len(data)-1 {
			return ""
		}
	}
	return string(digits)
}

// EncodeBCD packs a digit string into telephony BCD, padding an odd
// number of digits with a trailing filler nibble so DecodeBCD(EncodeBCD(s))
// reproduces s exactly.
func EncodeBCD(digits string) []byte {
	out := make([]byte, 0, (len(digits)+1)/2)
	for i := 0; i < len(digits); i += 2 {
		low := digits[i] - '0'
		high := byte(fillerNibble)
		if i+1 < len(digits) {
			high = digits[i+1] - '0'
		}
		out = append(out, (high<<4)|low)
	}
	return out
}

// DecodeBCDIdentity unpacks a TBCD-packed NAS mobile identity, whose
// first half-octet holds the identity-type/odd-even indicator rather
// than a digit, per 3GPP TS 24.008 §10.5.1.4.
func DecodeBCDIdentity(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}
	digits := make([]byte, 0, len(raw)*2)
	if high := raw[0] >> 4; high <= 9 {
		digits = append(digits, '0'+high)
	}
	for _, b := range raw[1:] {
		low := b & 0x0F
		high := b >> 4
		if low <= 9 {
			digits = append(digits, '0'+low)
		}
		if high <= 9 {
			digits = append(digits, '0'+high)
		}
	}
	return string(digits)
}

// EncodeBCDIdentity packs digits into a TBCD mobile identity, leaving
// identityType in the low nibble of the first byte (the high nibble of
// the first byte carries the first digit, matching DecodeBCDIdentity).
func EncodeBCDIdentity(identityType byte, digits string) []byte {
	if len(digits) == 0 {
		return []byte{identityType & 0x0F}
	}
	out := make([]byte, 0, (len(digits)+1)/2+1)
	out = append(out, (digits[0]-'0')<<4|(identityType&0x0F))
	rest := digits[1:]
	for i := 0; i < len(rest); i += 2 {
		low := rest[i] - '0'
		high := byte(fillerNibble)
		if i+1 < len(rest) {
			high = rest[i+1] - '0'
		}
		out = append(out, (high<<4)|low)
	}
	return out
}

// DecodeAPN unpacks a DNS-label-style access point name: each label is
// prefixed by its length byte, with no separator; labels are joined with
// '.' on decode.
func DecodeAPN(data []byte) string {
	apn := ""
	offset := 0
	for offset < len(data) {
		labelLen := int(data[offset])
		if labelLen == 0 || offset+1+labelLen > len(data) {
			break
		}
		if apn != "" {
			apn += "."
		}
		apn += string(data[offset+1 : offset+1+labelLen])
		offset += 1 + labelLen
	}
	return apn
}

// EncodeAPN packs a dotted APN string into the length-prefixed label
// format DecodeAPN expects, so DecodeAPN(EncodeAPN(s)) reproduces s.
func EncodeAPN(apn string) []byte {
	if apn == "" {
		return nil
	}
	out := make([]byte, 0, len(apn)+1)
	start := 0
	for i := 0; i <= len(apn); i++ {
		if i == len(apn) || apn[i] == '.' {
			label := apn[start:i]
			out = append(out, byte(len(label)))
			out = append(out, label...)
			start = i + 1
		}
	}
	return out
}
