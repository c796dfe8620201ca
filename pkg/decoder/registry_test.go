package decoder

import "testing"

type stubDecoder struct {
	proto    Protocol
	accepts  func([]byte) bool
	decodeFn func([]byte, *Metadata) (*Message, error)
}

func (s *stubDecoder) Protocol() Protocol       { return s.proto }
func (s *stubDecoder) CanDecode(data []byte) bool { return s.accepts(data) }
func (s *stubDecoder) Decode(data []byte, md *Metadata) (*Message, error) {
	return s.decodeFn(data, md)
}

func TestRegistryDispatchesFirstMatchInRegistrationOrder(t *testing.T) {
	r := NewRegistry()

	first := &stubDecoder{
		proto:   ProtocolMAP,
		accepts: func(b []byte) bool { return len(b) > 0 && b[0] == 0x62 },
		decodeFn: func(b []byte, md *Metadata) (*Message, error) {
			return &Message{Protocol: ProtocolMAP}, nil
		},
	}
	second := &stubDecoder{
		proto:   ProtocolCAP,
		accepts: func(b []byte) bool { return len(b) > 0 && b[0] == 0x62 },
		decodeFn: func(b []byte, md *Metadata) (*Message, error) {
			return &Message{Protocol: ProtocolCAP}, nil
		},
	}
	r.Register(first)
	r.Register(second)

	msg, err := r.Decode([]byte{0x62, 0x00}, &Metadata{})
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if msg.Protocol != ProtocolMAP {
		t.Errorf("Decode dispatched to %s, want %s (first registered match wins)", msg.Protocol, ProtocolMAP)
	}
}

func TestRegistryNoDecoderFound(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubDecoder{
		proto:   ProtocolMAP,
		accepts: func(b []byte) bool { return false },
	})

	_, err := r.Decode([]byte{0x01}, &Metadata{})
	if err != ErrNoDecoderFound {
		t.Errorf("Decode error = %v, want %v", err, ErrNoDecoderFound)
	}
}

func TestRegistryGet(t *testing.T) {
	r := NewRegistry()
	d := &stubDecoder{proto: ProtocolDiameter, accepts: func(b []byte) bool { return true }}
	r.Register(d)

	got, ok := r.Get(ProtocolDiameter)
	if !ok || got != d {
		t.Errorf("Get(%s) = %v, %v; want %v, true", ProtocolDiameter, got, ok, d)
	}

	if _, ok := r.Get(ProtocolPFCP); ok {
		t.Errorf("Get(%s) found a decoder that was never registered", ProtocolPFCP)
	}
}
