package hapcan

import "fmt"

// Frame is the logical HAPCAN frame shared by the CAN and TCP sides: a
// 12-bit frametype, a 1-bit request/response flag, an 8-bit module and
// group address pair, and 8 payload bytes (spec.md §3).
type Frame struct {
	FrameType uint16
	Flags     uint8 // 0 or 1
	Module    uint8
	Group     uint8
	Data      [DataLen]byte
}

// String renders a frame for logs.
func (f Frame) String() string {
	return fmt.Sprintf("ft=0x%03X flags=%d mod=%d grp=%d data=% 02X", f.FrameType, f.Flags, f.Module, f.Group, f.Data)
}

// IsApplicationFrame reports whether the frame is a "normal" application
// message (frametype above the system-message range), per spec.md §3.
func (f Frame) IsApplicationFrame() bool { return f.FrameType > StartNormalMessages }

// Clear resets a frame to its zero value in place (mirrors the vendor's
// aux_clearHAPCANFrame helper, used heavily when building mask/match/result
// templates).
func (f *Frame) Clear() { *f = Frame{} }

// MatchMasked reports whether f matches `match` under `mask`, field by
// field, short-circuiting on the first mismatch: (received^match)&mask==0
// independently on frametype, module, group and each data byte; the flags
// bit is not compared (spec.md §4.4, §8).
func (f Frame) MatchMasked(mask, match Frame) bool {
	if (f.FrameType^match.FrameType)&mask.FrameType != 0 {
		return false
	}
	if (f.Module^match.Module)&mask.Module != 0 {
		return false
	}
	if (f.Group^match.Group)&mask.Group != 0 {
		return false
	}
	for i := 0; i < DataLen; i++ {
		if (f.Data[i]^match.Data[i])&mask.Data[i] != 0 {
			return false
		}
	}
	return true
}
