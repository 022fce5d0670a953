package programmer

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/hapcan/gw-server/internal/hapcan"
)

func TestReadFrameClassifiesSystemQuery(t *testing.T) {
	query := []byte{0xAA, 0x10, 0x40, 0x00, 0x00, 0x50, 0xA5}
	r := bufio.NewReader(bytes.NewReader(query))
	frame, err := readFrame(r)
	if err != nil {
		t.Fatalf("readFrame: %v", err)
	}
	if len(frame) != 7 {
		t.Fatalf("expected 7-byte frame, got %d", len(frame))
	}
}

func TestReadFrameClassifiesCANBoundFrame(t *testing.T) {
	f := hapcan.Frame{FrameType: 0x302, Module: 1, Group: 2, Data: [8]byte{0, 0, 0, 0xFF, 0, 0xFF, 0xFF, 0xFF}}
	wire := hapcan.EncodeTCP(f)
	r := bufio.NewReader(bytes.NewReader(wire[:]))
	frame, err := readFrame(r)
	if err != nil {
		t.Fatalf("readFrame: %v", err)
	}
	if len(frame) != hapcan.SocketDataLen {
		t.Fatalf("expected %d-byte frame, got %d", hapcan.SocketDataLen, len(frame))
	}
}

func TestReadFrameResyncsAfterGarbage(t *testing.T) {
	query := []byte{0xAA, 0x10, 0x40, 0x00, 0x00, 0x50, 0xA5}
	garbage := append([]byte{0xAA, 0x01, 0x02}, query...)
	r := bufio.NewReader(bytes.NewReader(garbage))
	if _, err := readFrame(r); err == nil {
		t.Fatalf("expected resync error on first attempt")
	}
	frame, err := readFrame(r)
	if err != nil {
		t.Fatalf("readFrame after resync: %v", err)
	}
	if len(frame) != 7 {
		t.Fatalf("expected 7-byte frame after resync, got %d", len(frame))
	}
}

func TestDispatchInjectsCANBoundFrame(t *testing.T) {
	var got *hapcan.Frame
	c := &Conn{
		inject: func(f hapcan.Frame) error {
			got = &f
			return nil
		},
	}
	f := hapcan.Frame{FrameType: 0x302, Module: 9, Group: 8, Data: [8]byte{0, 0, 0, 0xFF, 0, 0xFF, 0xFF, 0xFF}}
	wire := hapcan.EncodeTCP(f)
	if err := c.dispatch(wire[:]); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if got == nil || got.Module != 9 {
		t.Fatalf("expected injected frame with module 9, got %+v", got)
	}
}
