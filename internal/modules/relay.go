package modules

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/hapcan/gw-server/internal/hapcan"
)

// RelayCodec implements the relay module family (frametype 0x302),
// grounded on hapcanrelay.c's state reporting and timer-qualified direct
// control (spec.md §4.5.2).
type RelayCodec struct{}

// CANToPayload maps data[3] straight to "OFF"/"ON".
func (RelayCodec) CANToPayload(_, f hapcan.Frame) ([][]byte, error) {
	switch f.Data[3] {
	case 0x00:
		return [][]byte{[]byte("OFF")}, nil
	case 0xFF:
		return [][]byte{[]byte("ON")}, nil
	default:
		return nil, ErrUnrecognized
	}
}

type relayInstr struct {
	INSTR1 *int `json:"INSTR1"`
	INSTR3 *int `json:"INSTR3"`
	INSTR4 *int `json:"INSTR4"`
	INSTR5 *int `json:"INSTR5"`
	INSTR6 *int `json:"INSTR6"`
}

// PayloadToCAN mirrors ButtonCodec but always fixes the timer byte (data[4])
// to immediate (0) and the trailing bytes to 0xFF, per spec.md §4.5.2.
func (RelayCodec) PayloadToCAN(template hapcan.Frame, payload []byte) ([]hapcan.Frame, error) {
	out := template
	out.FrameType = hapcan.DirectControlFrameType
	out.Data[4] = 0
	out.Data[5], out.Data[6], out.Data[7] = 0xFF, 0xFF, 0xFF

	s := strings.TrimSpace(string(payload))
	switch strings.ToUpper(s) {
	case "ON":
		out.Data[0] = 1
		return []hapcan.Frame{out}, nil
	case "OFF":
		out.Data[0] = 0
		return []hapcan.Frame{out}, nil
	case "TOGGLE":
		out.Data[0] = 2
		return []hapcan.Frame{out}, nil
	}

	if v, err := strconv.ParseInt(s, 0, 32); err == nil {
		switch v {
		case 0:
			out.Data[0] = 0
			return []hapcan.Frame{out}, nil
		case 255:
			out.Data[0] = 1
			return []hapcan.Frame{out}, nil
		default:
			return nil, ErrOutOfRange
		}
	}

	var instr relayInstr
	if err := json.Unmarshal(payload, &instr); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnrecognized, err)
	}
	for _, field := range []struct {
		idx int
		val *int
	}{{0, instr.INSTR1}, {3, instr.INSTR3}, {5, instr.INSTR4}, {6, instr.INSTR5}, {7, instr.INSTR6}} {
		if field.val == nil {
			continue
		}
		b, err := clampByte(int64(*field.val))
		if err != nil {
			return nil, err
		}
		out.Data[field.idx] = b
	}
	return []hapcan.Frame{out}, nil
}
