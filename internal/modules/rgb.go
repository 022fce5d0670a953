package modules

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/hapcan/gw-server/internal/hapcan"
)

// RGBCodec implements the MQTT→CAN half of the RGB/RGBW module family
// (frametype 0x308). The CAN→MQTT half is stateful (it must accumulate
// several channels before it can emit) and lives in internal/aggregator;
// this codec only expands commands into direct-control frame sequences
// (spec.md §4.5.5), grounded on hrgbw.c's soft-set/toggle opcodes.
type RGBCodec struct {
	// Channel selects single-channel mode when >= 0 (0=R,1=G,2=B,3=W);
	// combined RGB(W) mode when < 0. Set from the routing template's
	// pre-filled metadata by the caller.
	Channel int
}

const (
	opSoftSetAll = 0x21
	opMasterSet  = 0x03
)

func toggleOpcodes(channel int) []byte {
	if channel >= 0 {
		return []byte{byte(channel + 0x04)}
	}
	return []byte{0x04, 0x05, 0x06}
}

func softSetOpcode(channel int) byte {
	if channel >= 0 {
		return byte(channel + 0x10)
	}
	return opSoftSetAll
}

// PayloadToCAN recognizes ON/OFF/TOGGLE, "r,g,b[,w]" CSV, and JSON
// INSTR1..6 literal frames.
func (c RGBCodec) PayloadToCAN(template hapcan.Frame, payload []byte) ([]hapcan.Frame, error) {
	s := strings.TrimSpace(string(payload))
	switch strings.ToUpper(s) {
	case "ON":
		set := template
		set.FrameType = hapcan.DirectControlFrameType
		set.Data[0] = softSetOpcode(c.Channel)
		if c.Channel < 0 {
			// Combined mode: data[2]/data[3] carry the target node/group
			// (hrgbw.c's hrgbw_setMQTT2CANResponse keeps colour values out of
			// them), so the three values go in data[1],[4],[5].
			set.Data[1], set.Data[4], set.Data[5] = 0x7F, 0x7F, 0x7F
		} else {
			set.Data[1] = 0x7F
		}
		master := template
		master.FrameType = hapcan.DirectControlFrameType
		master.Data[0] = opMasterSet
		master.Data[1] = 0xFF
		return []hapcan.Frame{set, master}, nil
	case "OFF":
		out := template
		out.FrameType = hapcan.DirectControlFrameType
		out.Data[0] = softSetOpcode(c.Channel)
		out.Data[1] = 0
		out.Data[4] = 0 // timer immediate; also the combined-mode G byte, zeroed either way
		if c.Channel < 0 {
			out.Data[5] = 0
		}
		return []hapcan.Frame{out}, nil
	case "TOGGLE":
		frames := make([]hapcan.Frame, 0, 4)
		for _, op := range toggleOpcodes(c.Channel) {
			f := template
			f.FrameType = hapcan.DirectControlFrameType
			f.Data[0] = op
			frames = append(frames, f)
		}
		master := template
		master.FrameType = hapcan.DirectControlFrameType
		master.Data[0] = opMasterSet
		master.Data[1] = 0xFF
		return append(frames, master), nil
	}

	if parts := strings.Split(s, ","); len(parts) == 3 || len(parts) == 4 {
		vals := make([]byte, len(parts))
		for i, p := range parts {
			n, err := strconv.Atoi(strings.TrimSpace(p))
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrUnrecognized, err)
			}
			b, err := clampByte(int64(n))
			if err != nil {
				return nil, err
			}
			vals[i] = b
		}
		set := template
		set.FrameType = hapcan.DirectControlFrameType
		set.Data[0] = opSoftSetAll
		// r,g,b[,w] land in data[1],[4],[5],[6]: data[2]/data[3] are reserved
		// for the target node/group (hrgbw.c's combined soft-set layout).
		rgbwIdx := [4]int{1, 4, 5, 6}
		for i, v := range vals {
			set.Data[rgbwIdx[i]] = v
		}
		master := template
		master.FrameType = hapcan.DirectControlFrameType
		master.Data[0] = opMasterSet
		master.Data[1] = 0xFF
		return []hapcan.Frame{set, master}, nil
	}

	var instr timIRInstr
	if err := json.Unmarshal(payload, &instr); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnrecognized, err)
	}
	out := template
	out.FrameType = hapcan.DirectControlFrameType
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
