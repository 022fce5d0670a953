package modules

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/hapcan/gw-server/internal/hapcan"
)

// TemperatureCodec implements the single-sensor temperature module family
// (frametype 0x304, sub-message selector in data[2]), grounded on
// hapcantemperature.c (spec.md §4.5.3).
type TemperatureCodec struct{}

const tempScale = 0.0625

type tempReading struct {
	Temperature float64 `json:"Temperature"`
	Thermostat  float64 `json:"Thermostat"`
	Hysteresis  float64 `json:"Hysteresis"`
}

type thermostatState struct {
	Position byte   `json:"Position"`
	State    string `json:"State"`
}

type controllerState struct {
	HeatState    byte `json:"HeatState"`
	HeatValue    byte `json:"HeatValue"`
	CoolState    byte `json:"CoolState"`
	CoolValue    byte `json:"CoolValue"`
	ControlState byte `json:"ControlState"`
}

// CANToPayload dispatches on data[2].
func (TemperatureCodec) CANToPayload(_, f hapcan.Frame) ([][]byte, error) {
	switch f.Data[2] {
	case 0x11:
		reading := tempReading{
			Temperature: float64(i16(f.Data[3], f.Data[4])) * tempScale,
			Thermostat:  float64(i16(f.Data[5], f.Data[6])) * tempScale,
			Hysteresis:  float64(f.Data[7]) * tempScale,
		}
		b, err := json.Marshal(reading)
		return [][]byte{b}, err
	case 0x12:
		state := "OFF"
		if f.Data[7] != 0 {
			state = "ON"
		}
		b, err := json.Marshal(thermostatState{Position: f.Data[3], State: state})
		return [][]byte{b}, err
	case 0x13:
		b, err := json.Marshal(controllerState{
			HeatState:    f.Data[3],
			HeatValue:    f.Data[4],
			CoolState:    f.Data[5],
			CoolValue:    f.Data[6],
			ControlState: f.Data[7],
		})
		return [][]byte{b}, err
	case 0xF0:
		return [][]byte{[]byte(strconv.Itoa(int(f.Data[3])))}, nil
	default:
		return nil, ErrUnrecognized
	}
}

type tempInstr struct {
	Setpoint *float64 `json:"Setpoint"`
	Increase *float64 `json:"Increase"`
	Decrease *float64 `json:"Decrease"`
}

// coerceStep maps the vendor's "full scale means one unit" sentinel: a step
// of 15.95..16 collapses to 0 (spec.md §4.5.3).
func coerceStep(v float64) byte {
	if v >= 15.95 && v <= 16 {
		return 0
	}
	return byte(v)
}

// PayloadToCAN accepts ON/OFF/TOGGLE direct control, a bare setpoint, or a
// JSON Setpoint/Increase/Decrease object. template.Data[1] selects the
// thermostat (1) or controller (2) sub-target for direct control frames,
// pre-filled by the routing rule.
func (TemperatureCodec) PayloadToCAN(template hapcan.Frame, payload []byte) ([]hapcan.Frame, error) {
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

	if v, err := strconv.ParseFloat(s, 64); err == nil {
		if v < -55 || v > 125 {
			return nil, ErrOutOfRange
		}
		raw := int16(v / tempScale)
		hi, lo := splitI16(raw)
		out.Data[0] = 0x20 // setpoint-write opcode
		out.Data[3], out.Data[4] = hi, lo
		return []hapcan.Frame{out}, nil
	}

	var instr tempInstr
	if err := json.Unmarshal(payload, &instr); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnrecognized, err)
	}
	switch {
	case instr.Setpoint != nil:
		v := *instr.Setpoint
		if v < -55 || v > 125 {
			return nil, ErrOutOfRange
		}
		raw := int16(v / tempScale)
		hi, lo := splitI16(raw)
		out.Data[0] = 0x20
		out.Data[3], out.Data[4] = hi, lo
		return []hapcan.Frame{out}, nil
	case instr.Increase != nil:
		out.Data[0] = 0x21
		out.Data[3] = coerceStep(*instr.Increase)
		return []hapcan.Frame{out}, nil
	case instr.Decrease != nil:
		out.Data[0] = 0x22
		out.Data[3] = coerceStep(*instr.Decrease)
		return []hapcan.Frame{out}, nil
	default:
		return nil, ErrUnrecognized
	}
}
