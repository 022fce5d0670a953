package programmer

import (
	"testing"
	"time"

	"github.com/hapcan/gw-server/internal/hapcan"
)

// TestHardwareTypeQueryScenario reproduces spec.md's acceptance scenario 4
// verbatim: connect and send AA 10 40 00 00 50 A5, expect a 13-byte
// response starting AA 10 41 30 00 03 FF 00 11 22 33.
func TestHardwareTypeQueryScenario(t *testing.T) {
	query := []byte{0xAA, 0x10, 0x40, 0x00, 0x00, 0x50, 0xA5}
	opcode, _, err := decodeSystemQuery(query)
	if err != nil {
		t.Fatalf("decodeSystemQuery: %v", err)
	}
	if opcode != opHardwareType {
		t.Fatalf("opcode = 0x%X, want 0x%X", opcode, opHardwareType)
	}

	id := Identity{}
	d, err := id.HandleSystemQuery(opcode)
	if err != nil {
		t.Fatalf("HandleSystemQuery: %v", err)
	}
	if len(d.SystemResponses) != 1 {
		t.Fatalf("expected 1 response, got %d", len(d.SystemResponses))
	}
	resp := d.SystemResponses[0]
	want := []byte{0xAA, 0x10, 0x41, 0x30, 0x00, 0x03, 0xFF, 0x00, 0x11, 0x22, 0x33}
	for i, b := range want {
		if resp[i] != b {
			t.Fatalf("byte %d = 0x%02X, want 0x%02X (resp=% 02X)", i, resp[i], b, resp)
		}
	}
	if resp[12] != 0xA5 {
		t.Fatalf("trailing framing byte = 0x%02X, want 0xA5", resp[12])
	}
}

func TestSystemQueryRejectsBadChecksum(t *testing.T) {
	query := []byte{0xAA, 0x10, 0x40, 0x00, 0x00, 0x00, 0xA5}
	if _, _, err := decodeSystemQuery(query); err == nil {
		t.Fatalf("expected checksum error")
	}
}

func TestEnterProgrammingReusesHardwareTypeHeader(t *testing.T) {
	id := Identity{}
	d, err := id.HandleSystemQuery(opEnterProgramming)
	if err != nil {
		t.Fatalf("HandleSystemQuery: %v", err)
	}
	resp := d.SystemResponses[0]
	if resp[1] != 0x10 || resp[2] != 0x41 {
		t.Fatalf("enter-programming response header = % 02X, want 10 41", resp[1:3])
	}
}

func TestRebootHasNoResponse(t *testing.T) {
	id := Identity{}
	d, err := id.HandleSystemQuery(opReboot)
	if err != nil {
		t.Fatalf("HandleSystemQuery: %v", err)
	}
	if len(d.SystemResponses) != 0 {
		t.Fatalf("expected no response for reboot, got %d", len(d.SystemResponses))
	}
}

func TestDescriptionSendsTwoIdenticalResponses(t *testing.T) {
	id := Identity{Description: "HMSG-rPi"}
	d, err := id.HandleSystemQuery(opDescription)
	if err != nil {
		t.Fatalf("HandleSystemQuery: %v", err)
	}
	if len(d.SystemResponses) != 2 {
		t.Fatalf("expected 2 responses, got %d", len(d.SystemResponses))
	}
	if d.SystemResponses[0] != d.SystemResponses[1] {
		t.Fatalf("expected identical responses")
	}
	if string(d.SystemResponses[0][3:11]) != "HMSG-rPi" {
		t.Fatalf("description payload = %q", d.SystemResponses[0][3:11])
	}
}

func TestStatusAddressedQueryUsesCANFrameShape(t *testing.T) {
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	id := Identity{
		ComputerID1: 254,
		ComputerID2: 253,
		Now:         func() time.Time { return now },
	}
	d, err := id.HandleAddressedQuery(opStatusRequest)
	if err != nil {
		t.Fatalf("HandleAddressedQuery: %v", err)
	}
	if d.AddressedResp == nil {
		t.Fatalf("expected addressed response")
	}
	wire := *d.AddressedResp
	if wire[1] != 0x30 || wire[2] != 0x01 {
		t.Fatalf("header = % 02X, want 30 01", wire[1:3])
	}
	if wire[3] != 254 || wire[4] != 253 {
		t.Fatalf("module/group = %d/%d, want 254/253", wire[3], wire[4])
	}
	f, err := hapcan.DecodeTCP(wire[:])
	if err != nil {
		t.Fatalf("DecodeTCP: %v", err)
	}
	if f.FrameType != hapcan.RTCFrameType {
		t.Fatalf("frametype = 0x%X, want RTCFrameType", f.FrameType)
	}
}

func TestUptimeAddressedQueryEncodesSeconds(t *testing.T) {
	id := Identity{
		ComputerID1: 1,
		ComputerID2: 2,
		Uptime:      func() uint32 { return 0x01020304 },
	}
	d, err := id.HandleAddressedQuery(opUptimeRequest)
	if err != nil {
		t.Fatalf("HandleAddressedQuery: %v", err)
	}
	wire := *d.AddressedResp
	if wire[1] != 0x11 || wire[2] != 0x31 {
		t.Fatalf("header = % 02X, want 11 31", wire[1:3])
	}
	f, err := hapcan.DecodeTCP(wire[:])
	if err != nil {
		t.Fatalf("DecodeTCP: %v", err)
	}
	if f.Data[4] != 0x01 || f.Data[5] != 0x02 || f.Data[6] != 0x03 || f.Data[7] != 0x04 {
		t.Fatalf("uptime bytes = % 02X", f.Data[4:8])
	}
}

func TestUnrecognizedOpcodeErrors(t *testing.T) {
	id := Identity{}
	if _, err := id.HandleSystemQuery(0x999); err == nil {
		t.Fatalf("expected error for unrecognized opcode")
	}
}

func TestCANBoundFrameLengthUnaffectedByProgrammer(t *testing.T) {
	f := hapcan.Frame{FrameType: 0x302, Module: 1, Group: 2, Data: [8]byte{0, 0, 0, 0xFF, 0, 0xFF, 0xFF, 0xFF}}
	wire := hapcan.EncodeTCP(f)
	if len(wire) != hapcan.SocketDataLen {
		t.Fatalf("expected CAN-bound wire length %d, got %d", hapcan.SocketDataLen, len(wire))
	}
}
