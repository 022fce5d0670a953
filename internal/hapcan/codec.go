package hapcan

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/hapcan/gw-server/internal/can"
	"github.com/hapcan/gw-server/internal/metrics"
)

// Codec packs/unpacks HAPCAN frames to/from the 29-bit extended CAN
// identifier and the 15-byte TCP programmer framing. Stateless, safe for
// concurrent use (mirrors the teacher's cnl.Codec shape).
type Codec struct{}

// ErrInvalidLength is returned when a TCP frame has an unsupported length.
var ErrInvalidLength = errors.New("hapcan: invalid tcp frame length")

// ErrBadFraming is returned when the leading/trailing framing bytes are
// wrong, or when the checksum does not match.
var ErrBadFraming = errors.New("hapcan: bad framing or checksum")

// CAN identifier bit layout (spec.md §4.2):
//
//	bits [28:17] = frametype (12 bits)
//	bit  [16]    = flags (1 bit)
//	bits [15:8]  = module
//	bits [7:0]   = group
const (
	frameTypeShift = 17
	flagsShift     = 16
	moduleShift    = 8
)

// FromCANID unpacks the 29-bit extended CAN identifier (SocketCAN flag
// bits are masked off here with CAN_EFF_MASK) into a Frame, copying the 8
// data bytes verbatim.
func FromCANID(id uint32, data [DataLen]byte) Frame {
	id &= can.CAN_EFF_MASK
	return Frame{
		FrameType: uint16((id >> frameTypeShift) & 0xFFF),
		Flags:     uint8((id >> flagsShift) & 0x1),
		Module:    uint8((id >> moduleShift) & 0xFF),
		Group:     uint8(id & 0xFF),
		Data:      data,
	}
}

// ToCANID packs a Frame into a 29-bit extended CAN identifier (EFF flag
// set, as required for SocketCAN transmission).
func ToCANID(f Frame) uint32 {
	id := (uint32(f.FrameType) & 0xFFF) << frameTypeShift
	id |= (uint32(f.Flags) & 0x1) << flagsShift
	id |= uint32(f.Module) << moduleShift
	id |= uint32(f.Group)
	return id | can.CAN_EFF_FLAG
}

// FromCAN converts a raw transport can.Frame into a logical HAPCAN Frame.
func FromCAN(raw can.Frame) Frame {
	var data [DataLen]byte
	n := int(raw.Len)
	if n > DataLen {
		n = DataLen
	}
	copy(data[:n], raw.Data[:n])
	return FromCANID(raw.CANID, data)
}

// ToCAN converts a logical HAPCAN Frame into a raw transport can.Frame
// ready for SocketCAN/serial transmission. HAPCAN traffic always carries a
// full 8-byte DLC (spec.md §6).
func ToCAN(f Frame) can.Frame {
	var raw can.Frame
	raw.CANID = ToCANID(f)
	raw.Len = DataLen
	copy(raw.Data[:DataLen], f.Data[:])
	return raw
}

// checksum8 sums bytes[1:13] (interior bytes, excluding the 0xAA/0xA5
// framing) modulo 256, per spec.md §4.2.
func checksum8(tcp []byte) uint8 {
	var sum uint8
	for _, b := range tcp[1:13] {
		sum += b
	}
	return sum
}

// EncodeTCP packs a Frame into the 15-byte TCP programmer wire format:
// AA | ft_hi | (ft_lo<<4)|flags | module | group | d0..d7 | checksum | A5
func EncodeTCP(f Frame) [SocketDataLen]byte {
	var buf [SocketDataLen]byte
	buf[0] = 0xAA
	buf[1] = byte(f.FrameType >> 4)
	buf[2] = byte(f.FrameType<<4) | (f.Flags & 0x1)
	buf[3] = f.Module
	buf[4] = f.Group
	copy(buf[5:13], f.Data[:])
	buf[13] = checksum8(buf[:])
	buf[14] = 0xA5
	return buf
}

// DecodeTCP validates and unpacks a 15-byte TCP programmer frame.
func DecodeTCP(buf []byte) (Frame, error) {
	var f Frame
	if len(buf) != SocketDataLen {
		return f, fmt.Errorf("%w: got %d want %d", ErrInvalidLength, len(buf), SocketDataLen)
	}
	if buf[0] != 0xAA || buf[14] != 0xA5 {
		metrics.IncMalformed()
		return f, ErrBadFraming
	}
	if checksum8(buf) != buf[13] {
		metrics.IncMalformed()
		return f, fmt.Errorf("%w: checksum", ErrBadFraming)
	}
	f.FrameType = (uint16(buf[1]) << 4) | uint16(buf[2]>>4)
	f.Flags = buf[2] & 0x1
	f.Module = buf[3]
	f.Group = buf[4]
	copy(f.Data[:], buf[5:13])
	return f, nil
}

// VerifyTCPChecksum checks framing+checksum without fully decoding,
// for the 5- and 13-byte system/control query branches which use the same
// checksum scheme over a shorter frame.
func VerifyTCPChecksum(buf []byte) error {
	n := len(buf)
	if n < 3 {
		return fmt.Errorf("%w: too short", ErrInvalidLength)
	}
	if buf[0] != 0xAA || buf[n-1] != 0xA5 {
		return ErrBadFraming
	}
	var sum uint8
	for _, b := range buf[1 : n-2] {
		sum += b
	}
	if sum != buf[n-2] {
		return fmt.Errorf("%w: checksum", ErrBadFraming)
	}
	return nil
}
