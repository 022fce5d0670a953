package modules

import (
	"encoding/json"

	"github.com/hapcan/gw-server/internal/hapcan"
)

// RawCodec implements the optional raw passthrough family (spec.md
// §4.5.6): every application frame serialized verbatim in both directions,
// with no per-type translation.
type RawCodec struct{}

type rawFrame struct {
	Frame  uint16  `json:"Frame"`
	Flags  uint8   `json:"Flags"`
	Module uint8   `json:"Module"`
	Group  uint8   `json:"Group"`
	D0     uint8   `json:"D0"`
	D1     uint8   `json:"D1"`
	D2     uint8   `json:"D2"`
	D3     uint8   `json:"D3"`
	D4     uint8   `json:"D4"`
	D5     uint8   `json:"D5"`
	D6     uint8   `json:"D6"`
	D7     uint8   `json:"D7"`
}

// CANToPayload publishes application frames (frametype > 0x200) verbatim;
// non-application frames are silently skipped.
func (RawCodec) CANToPayload(_, f hapcan.Frame) ([][]byte, error) {
	if !f.IsApplicationFrame() {
		return nil, nil
	}
	rf := rawFrame{
		Frame: f.FrameType, Flags: f.Flags, Module: f.Module, Group: f.Group,
		D0: f.Data[0], D1: f.Data[1], D2: f.Data[2], D3: f.Data[3],
		D4: f.Data[4], D5: f.Data[5], D6: f.Data[6], D7: f.Data[7],
	}
	b, err := json.Marshal(rf)
	return [][]byte{b}, err
}

// PayloadToCAN parses the same JSON shape into a HAPCAN frame with no other
// translation; template is ignored since raw frames carry their own
// addressing.
func (RawCodec) PayloadToCAN(_ hapcan.Frame, payload []byte) ([]hapcan.Frame, error) {
	var rf rawFrame
	if err := json.Unmarshal(payload, &rf); err != nil {
		return nil, err
	}
	f := hapcan.Frame{
		FrameType: rf.Frame, Flags: rf.Flags, Module: rf.Module, Group: rf.Group,
		Data: [8]byte{rf.D0, rf.D1, rf.D2, rf.D3, rf.D4, rf.D5, rf.D6, rf.D7},
	}
	return []hapcan.Frame{f}, nil
}
