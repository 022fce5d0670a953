package modules

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/hapcan/gw-server/internal/hapcan"
)

// ButtonCodec implements the button/LED module family (frametype 0x301,
// channel in data[2]), grounded on hapcanbutton.c's button/LED state
// reporting and direct-control command handling (spec.md §4.5.1).
type ButtonCodec struct{}

// CANToPayload decides the state string from data[3] (button), falling back
// to data[4] (LED) when the button is disabled.
func (ButtonCodec) CANToPayload(_, f hapcan.Frame) ([][]byte, error) {
	button := f.Data[3]
	switch {
	case button == 0x00:
		return [][]byte{[]byte("OFF")}, nil
	case button >= 0xFD:
		return [][]byte{[]byte("ON")}, nil
	case button >= 0xFA && button <= 0xFC:
		return [][]byte{[]byte("ON"), []byte("OFF")}, nil
	case button == 0x01:
		switch led := f.Data[4]; led {
		case 0x00:
			return [][]byte{[]byte("OFF")}, nil
		case 0xFF:
			return [][]byte{[]byte("ON")}, nil
		case 0x01:
			return nil, nil // silent, not an error
		default:
			return nil, ErrUnrecognized
		}
	default:
		return nil, ErrUnrecognized
	}
}

type buttonInstr struct {
	INSTR1 *int `json:"INSTR1"`
	INSTR4 *int `json:"INSTR4"`
	INSTR5 *int `json:"INSTR5"`
	INSTR6 *int `json:"INSTR6"`
}

// PayloadToCAN builds a direct-control frame (0x10A) from "ON"/"OFF"/
// "TOGGLE", a bare 0/255 integer, or a JSON INSTR1/4/5/6 object.
func (ButtonCodec) PayloadToCAN(template hapcan.Frame, payload []byte) ([]hapcan.Frame, error) {
	out := template
	out.FrameType = hapcan.DirectControlFrameType

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

	var instr buttonInstr
	if err := json.Unmarshal(payload, &instr); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnrecognized, err)
	}
	for _, field := range []struct {
		idx int
		val *int
	}{{0, instr.INSTR1}, {5, instr.INSTR4}, {6, instr.INSTR5}, {7, instr.INSTR6}} {
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
