package modules

import (
	"encoding/json"
	"fmt"

	"github.com/hapcan/gw-server/internal/hapcan"
)

// TIMCodec implements the multi-temperature + IR module family (frametype
// 0x307-family, sensor index in data[1], selector in data[2]), grounded on
// htim.c (spec.md §4.5.4). It reuses TemperatureCodec's reading/state shapes
// since the sub-message layout is identical once keyed by selector.
type TIMCodec struct {
	temp TemperatureCodec
}

// CANToPayload dispatches on data[2] using the same families as
// TemperatureCodec (0x17 current reading, 0x18 thermostat state, 0xF6
// sensor error), keyed additionally by data[1] (sensor index) which callers
// use to pick the routing rule that reaches this frame in the first place.
func (c TIMCodec) CANToPayload(meta, f hapcan.Frame) ([][]byte, error) {
	switch f.Data[2] {
	case 0x17:
		shifted := f
		shifted.Data[2] = 0x11
		return c.temp.CANToPayload(meta, shifted)
	case 0x18:
		shifted := f
		shifted.Data[2] = 0x12
		return c.temp.CANToPayload(meta, shifted)
	case 0xF6:
		shifted := f
		shifted.Data[2] = 0xF0
		return c.temp.CANToPayload(meta, shifted)
	default:
		return nil, ErrUnrecognized
	}
}

type timIRInstr struct {
	INSTR1 *int `json:"INSTR1"`
	INSTR2 *int `json:"INSTR2"`
	INSTR3 *int `json:"INSTR3"`
	INSTR4 *int `json:"INSTR4"`
	INSTR5 *int `json:"INSTR5"`
	INSTR6 *int `json:"INSTR6"`
}

// PayloadToCAN drives the module's IR transmitter when the routing
// template's data[1] sentinel is 0xC0 (raw INSTR1..6 literal frame);
// otherwise it delegates to the shared setpoint/ON/OFF handling.
func (c TIMCodec) PayloadToCAN(template hapcan.Frame, payload []byte) ([]hapcan.Frame, error) {
	if template.Data[1] == 0xC0 {
		out := template
		out.FrameType = hapcan.DirectControlFrameType
		var instr timIRInstr
		if err := json.Unmarshal(payload, &instr); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnrecognized, err)
		}
		for _, field := range []struct {
			idx int
			val *int
		}{{0, instr.INSTR1}, {1, instr.INSTR2}, {2, instr.INSTR3}, {5, instr.INSTR4}, {6, instr.INSTR5}, {7, instr.INSTR6}} {
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
	return c.temp.PayloadToCAN(template, payload)
}
