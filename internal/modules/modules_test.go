package modules

import (
	"encoding/json"
	"testing"

	"github.com/hapcan/gw-server/internal/hapcan"
)

func TestButtonCANToPayload(t *testing.T) {
	c := ButtonCodec{}
	cases := []struct {
		button byte
		led    byte
		want   []string
	}{
		{0x00, 0, []string{"OFF"}},
		{0xFE, 0, []string{"ON"}},
		{0xFB, 0, []string{"ON", "OFF"}},
		{0x01, 0x00, []string{"OFF"}},
		{0x01, 0xFF, []string{"ON"}},
	}
	for _, tc := range cases {
		f := hapcan.Frame{Data: [8]byte{0, 0, 0, tc.button, tc.led}}
		got, err := c.CANToPayload(hapcan.Frame{}, f)
		if err != nil {
			t.Fatalf("button=0x%X: %v", tc.button, err)
		}
		if len(got) != len(tc.want) {
			t.Fatalf("button=0x%X: got %d payloads, want %d", tc.button, len(got), len(tc.want))
		}
		for i, w := range tc.want {
			if string(got[i]) != w {
				t.Fatalf("button=0x%X payload %d = %q, want %q", tc.button, i, got[i], w)
			}
		}
	}
}

func TestButtonCANToPayloadSilentAndError(t *testing.T) {
	c := ButtonCodec{}
	f := hapcan.Frame{Data: [8]byte{0, 0, 0, 0x01, 0x01}}
	got, err := c.CANToPayload(hapcan.Frame{}, f)
	if err != nil || got != nil {
		t.Fatalf("expected silent no-op, got %v err=%v", got, err)
	}
	f.Data[3] = 0x50
	if _, err := c.CANToPayload(hapcan.Frame{}, f); err != ErrUnrecognized {
		t.Fatalf("expected ErrUnrecognized, got %v", err)
	}
}

func TestButtonPayloadToCAN(t *testing.T) {
	c := ButtonCodec{}
	tmpl := hapcan.Frame{Module: 5, Group: 1}
	frames, err := c.PayloadToCAN(tmpl, []byte("ON"))
	if err != nil {
		t.Fatalf("ON: %v", err)
	}
	if frames[0].FrameType != hapcan.DirectControlFrameType || frames[0].Data[0] != 1 {
		t.Fatalf("unexpected frame: %+v", frames[0])
	}

	frames, err = c.PayloadToCAN(tmpl, []byte(`{"INSTR1":5,"INSTR4":10}`))
	if err != nil {
		t.Fatalf("json: %v", err)
	}
	if frames[0].Data[0] != 5 || frames[0].Data[5] != 10 {
		t.Fatalf("unexpected instr frame: %+v", frames[0])
	}

	if _, err := c.PayloadToCAN(tmpl, []byte("7")); err != ErrOutOfRange {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
}

func TestRelayCANToPayload(t *testing.T) {
	c := RelayCodec{}
	f := hapcan.Frame{Data: [8]byte{0, 0, 0, 0xFF}}
	got, err := c.CANToPayload(hapcan.Frame{}, f)
	if err != nil || string(got[0]) != "ON" {
		t.Fatalf("got %v err %v", got, err)
	}
}

func TestRelayPayloadToCANFixedBytes(t *testing.T) {
	c := RelayCodec{}
	frames, err := c.PayloadToCAN(hapcan.Frame{}, []byte("OFF"))
	if err != nil {
		t.Fatalf("%v", err)
	}
	f := frames[0]
	if f.Data[4] != 0 || f.Data[5] != 0xFF || f.Data[6] != 0xFF || f.Data[7] != 0xFF {
		t.Fatalf("unexpected fixed bytes: %+v", f)
	}
}

func TestTemperatureCurrentReading(t *testing.T) {
	c := TemperatureCodec{}
	f := hapcan.Frame{Data: [8]byte{0, 0, 0x11, 0x01, 0x90, 0x00, 0x00, 0x00}}
	got, err := c.CANToPayload(hapcan.Frame{}, f)
	if err != nil {
		t.Fatalf("%v", err)
	}
	var reading tempReading
	if err := json.Unmarshal(got[0], &reading); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := float64(int16(0x0190)) * tempScale
	if reading.Temperature != want {
		t.Fatalf("temperature = %v, want %v", reading.Temperature, want)
	}
}

func TestTemperatureSetpointPayload(t *testing.T) {
	c := TemperatureCodec{}
	frames, err := c.PayloadToCAN(hapcan.Frame{}, []byte("21.5"))
	if err != nil {
		t.Fatalf("%v", err)
	}
	raw := i16(frames[0].Data[3], frames[0].Data[4])
	got := float64(raw) * tempScale
	if got < 21.4 || got > 21.6 {
		t.Fatalf("round-tripped setpoint = %v, want ~21.5", got)
	}
}

func TestTemperatureOutOfRange(t *testing.T) {
	c := TemperatureCodec{}
	if _, err := c.PayloadToCAN(hapcan.Frame{}, []byte("200")); err != ErrOutOfRange {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
}

func TestTemperatureIncreaseSentinel(t *testing.T) {
	c := TemperatureCodec{}
	frames, err := c.PayloadToCAN(hapcan.Frame{}, []byte(`{"Increase":16}`))
	if err != nil {
		t.Fatalf("%v", err)
	}
	if frames[0].Data[3] != 0 {
		t.Fatalf("expected sentinel coerced to 0, got %d", frames[0].Data[3])
	}
}

func TestTIMDelegatesToTemperatureFamilies(t *testing.T) {
	c := TIMCodec{}
	f := hapcan.Frame{Data: [8]byte{0, 1, 0x17, 0x01, 0x90, 0x00, 0x00, 0x00}}
	got, err := c.CANToPayload(hapcan.Frame{}, f)
	if err != nil {
		t.Fatalf("%v", err)
	}
	var reading tempReading
	if err := json.Unmarshal(got[0], &reading); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
}

func TestTIMIRTransmitter(t *testing.T) {
	c := TIMCodec{}
	tmpl := hapcan.Frame{Data: [8]byte{0, 0xC0}}
	frames, err := c.PayloadToCAN(tmpl, []byte(`{"INSTR1":9}`))
	if err != nil {
		t.Fatalf("%v", err)
	}
	if frames[0].Data[0] != 9 {
		t.Fatalf("unexpected IR frame: %+v", frames[0])
	}
}

func TestRGBOnEmitsSetThenMaster(t *testing.T) {
	c := RGBCodec{Channel: -1}
	frames, err := c.PayloadToCAN(hapcan.Frame{Module: 1}, []byte("ON"))
	if err != nil {
		t.Fatalf("%v", err)
	}
	if len(frames) != 2 || frames[1].Data[0] != opMasterSet || frames[1].Data[1] != 0xFF {
		t.Fatalf("unexpected frames: %+v", frames)
	}
}

func TestRGBCSVTriplet(t *testing.T) {
	c := RGBCodec{Channel: -1}
	frames, err := c.PayloadToCAN(hapcan.Frame{}, []byte("10,20,30"))
	if err != nil {
		t.Fatalf("%v", err)
	}
	if frames[0].Data[1] != 10 || frames[0].Data[4] != 20 || frames[0].Data[5] != 30 {
		t.Fatalf("unexpected set frame: %+v", frames[0])
	}
}

func TestRGBSingleChannelToggle(t *testing.T) {
	c := RGBCodec{Channel: 1}
	frames, err := c.PayloadToCAN(hapcan.Frame{}, []byte("TOGGLE"))
	if err != nil {
		t.Fatalf("%v", err)
	}
	if len(frames) != 2 || frames[0].Data[0] != 0x05 {
		t.Fatalf("unexpected toggle frames: %+v", frames)
	}
}

func TestRawRoundTrip(t *testing.T) {
	c := RawCodec{}
	f := hapcan.Frame{FrameType: 0x302, Flags: 1, Module: 4, Group: 2, Data: [8]byte{1, 2, 3, 4, 5, 6, 7, 8}}
	payloads, err := c.CANToPayload(hapcan.Frame{}, f)
	if err != nil {
		t.Fatalf("%v", err)
	}
	frames, err := c.PayloadToCAN(hapcan.Frame{}, payloads[0])
	if err != nil {
		t.Fatalf("%v", err)
	}
	if frames[0] != f {
		t.Fatalf("round trip mismatch: in=%+v out=%+v", f, frames[0])
	}
}

func TestRawSkipsSystemFrames(t *testing.T) {
	c := RawCodec{}
	f := hapcan.Frame{FrameType: 0x104}
	got, err := c.CANToPayload(hapcan.Frame{}, f)
	if err != nil || got != nil {
		t.Fatalf("expected skip, got %v err %v", got, err)
	}
}
