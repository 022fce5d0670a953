package hapcan

import "testing"

func TestCANIDRoundTrip(t *testing.T) {
	cases := []Frame{
		{FrameType: 0x301, Flags: 0, Module: 0x10, Group: 0x20, Data: [8]byte{1, 2, 3, 4, 5, 6, 7, 8}},
		{FrameType: 0xFFF, Flags: 1, Module: 0xFF, Group: 0xFF, Data: [8]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}},
		{FrameType: 0, Flags: 0, Module: 0, Group: 0},
	}
	for _, f := range cases {
		id := ToCANID(f)
		got := FromCANID(id, f.Data)
		if got != f {
			t.Fatalf("round trip mismatch: in=%+v out=%+v id=0x%X", f, got, id)
		}
	}
}

func TestTCPRoundTrip(t *testing.T) {
	f := Frame{FrameType: 0x10A, Flags: 0, Module: 0x10, Group: 0x20, Data: [8]byte{1, 4, 0x10, 0x20, 0, 0xFF, 0xFF, 0xFF}}
	wire := EncodeTCP(f)
	got, err := DecodeTCP(wire[:])
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if got != f {
		t.Fatalf("round trip mismatch: in=%+v out=%+v wire=% 02X", f, got, wire)
	}
}

func TestTCPChecksumMatchesFrame(t *testing.T) {
	f := Frame{FrameType: 0x104, Module: 1, Group: 2}
	wire := EncodeTCP(f)
	if err := VerifyTCPChecksum(wire[:]); err != nil {
		t.Fatalf("checksum self-check failed: %v", err)
	}
	if wire[13] != checksum8(wire[:]) {
		t.Fatalf("checksum mismatch")
	}
}

func TestHWTypeQueryScenario(t *testing.T) {
	// Scenario 4 of the spec: TCP hardware-type query.
	query := []byte{0xAA, 0x10, 0x40, 0x00, 0x00, 0x50, 0xA5}
	if err := VerifyTCPChecksum(query); err != nil {
		t.Fatalf("query checksum invalid: %v", err)
	}
	opcode := (uint16(query[1])<<8 | uint16(query[2])) >> 4
	if opcode != 0x104 {
		t.Fatalf("opcode = 0x%X, want 0x104", opcode)
	}
}

func TestDecodeTCPBadFraming(t *testing.T) {
	buf := make([]byte, SocketDataLen)
	buf[0] = 0x00 // wrong leading byte
	if _, err := DecodeTCP(buf); err == nil {
		t.Fatalf("expected error for bad framing")
	}
}

func TestDecodeTCPBadChecksum(t *testing.T) {
	f := Frame{FrameType: 0x301}
	wire := EncodeTCP(f)
	wire[13] ^= 0xFF
	if _, err := DecodeTCP(wire[:]); err == nil {
		t.Fatalf("expected checksum error")
	}
}

func TestMatchMasked(t *testing.T) {
	mask := Frame{FrameType: 0xFFF, Module: 0xFF, Group: 0xFF, Data: [8]byte{0, 0, 0xFF, 0, 0, 0, 0, 0}}
	match := Frame{FrameType: 0x304, Module: 4, Group: 1, Data: [8]byte{0, 0, 0x11, 0, 0, 0, 0, 0}}
	good := Frame{FrameType: 0x304, Module: 4, Group: 1, Data: [8]byte{9, 9, 0x11, 9, 9, 9, 9, 9}}
	bad := Frame{FrameType: 0x304, Module: 4, Group: 1, Data: [8]byte{9, 9, 0x12, 9, 9, 9, 9, 9}}
	if !good.MatchMasked(mask, match) {
		t.Fatalf("expected match")
	}
	if bad.MatchMasked(mask, match) {
		t.Fatalf("expected no match")
	}
}
