package programmer

import (
	"time"

	"github.com/hapcan/gw-server/internal/hapcan"
)

// System query opcodes (spec.md §4.6).
const (
	opEnterProgramming = 0x100
	opReboot           = 0x102
	opHardwareType     = 0x104
	opFirmwareType     = 0x106
	opSupplyVoltage    = 0x10C
	opDescription      = 0x10E
	opDevID            = 0x111

	opStatusRequest = 0x109
	opUptimeRequest = 0x113
)

const responseFlags = 1

// Identity carries the fixed values the gateway reports about itself when
// it is the addressee of a TCP system query, grounded on
// original_source/SW/source/hapcan.h's fixed Ethernet-module constants.
type Identity struct {
	ComputerID1, ComputerID2 uint8
	Description              string // truncated/padded to 8 bytes ("HMSG-rPi")
	Uptime                   func() uint32
	Now                      func() time.Time
}

func fixedString8(s string) [8]byte {
	var b [8]byte
	copy(b[:], s)
	return b
}

// Dispatch resolves one incoming frame (already classified by length) into
// zero or more 13-byte system responses, or a 15-byte addressed-query
// response, or a parsed CAN-bound frame to inject into the CAN write
// queue. At most one of SystemResponses, AddressedResp and CANFrame is
// populated on success; none populated means the query was valid but
// produces no reply (e.g. reboot). The Handle* methods never set CANFrame:
// Conn.dispatch injects CAN-bound frames directly.
type Dispatch struct {
	SystemResponses [][13]byte
	AddressedResp   *[15]byte
	CANFrame        *hapcan.Frame
}

// HandleSystemQuery dispatches a validated 7-byte system query.
func (id Identity) HandleSystemQuery(opcode uint16) (Dispatch, error) {
	switch opcode {
	case opEnterProgramming:
		data := [8]byte{0xFF, 0xFF, hapcan.BVer1, hapcan.BVer2, 0xFF, 0xFF, 0xFF, 0xFF}
		return Dispatch{SystemResponses: [][13]byte{buildShortFrame(opHardwareType, responseFlags, data)}}, nil
	case opReboot:
		return Dispatch{}, nil // no response
	case opHardwareType:
		data := [8]byte{
			byte(hapcan.HWType >> 8), byte(hapcan.HWType),
			hapcan.HWVer, 0xFF,
			hapcan.HWID0, hapcan.HWID1, hapcan.HWID2, hapcan.HWID3,
		}
		return Dispatch{SystemResponses: [][13]byte{buildShortFrame(opHardwareType, responseFlags, data)}}, nil
	case opFirmwareType:
		data := [8]byte{
			byte(hapcan.HWType >> 8), byte(hapcan.HWType),
			hapcan.HWVer, hapcan.AType, hapcan.AVers, hapcan.FVers,
			hapcan.BVer1, hapcan.BVer2,
		}
		return Dispatch{SystemResponses: [][13]byte{buildShortFrame(opFirmwareType, responseFlags, data)}}, nil
	case opSupplyVoltage:
		data := [8]byte{hapcan.VolBus1, hapcan.VolBus2, hapcan.VolCPU1, hapcan.VolCPU2, 0xFF, 0xFF, 0xFF, 0xFF}
		return Dispatch{SystemResponses: [][13]byte{buildShortFrame(opSupplyVoltage, responseFlags, data)}}, nil
	case opDescription:
		data := fixedString8(id.Description)
		resp := buildShortFrame(opDescription, responseFlags, data)
		return Dispatch{SystemResponses: [][13]byte{resp, resp}}, nil
	case opDevID:
		data := [8]byte{hapcan.DevID1, hapcan.DevID2, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
		return Dispatch{SystemResponses: [][13]byte{buildShortFrame(opDevID, responseFlags, data)}}, nil
	default:
		return Dispatch{}, errUnrecognizedOpcode(opcode)
	}
}

// HandleAddressedQuery dispatches a validated 13-byte addressed query
// (the gateway itself is the addressee), returning a full 15-byte HAPCAN
// response frame.
func (id Identity) HandleAddressedQuery(opcode uint16) (Dispatch, error) {
	switch opcode {
	case opStatusRequest:
		wc := hapcan.WallClockBytes(id.Now())
		f := hapcan.Frame{FrameType: hapcan.RTCFrameType, Flags: responseFlags, Module: id.ComputerID1, Group: id.ComputerID2}
		f.Data[0] = 0xFF
		copy(f.Data[1:8], wc[:])
		wire := hapcan.EncodeTCP(f)
		return Dispatch{AddressedResp: &wire}, nil
	case opUptimeRequest:
		up := hapcan.UptimeBytes(id.Uptime())
		f := hapcan.Frame{FrameType: hapcan.UptimeRequestNodeFrameType, Flags: responseFlags, Module: id.ComputerID1, Group: id.ComputerID2}
		f.Data[0], f.Data[1], f.Data[2], f.Data[3] = 0xFF, 0xFF, 0xFF, 0xFF
		copy(f.Data[4:8], up[:])
		wire := hapcan.EncodeTCP(f)
		return Dispatch{AddressedResp: &wire}, nil
	default:
		return Dispatch{}, errUnrecognizedOpcode(opcode)
	}
}
