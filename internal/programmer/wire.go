// Package programmer implements the TCP "programmer" state machine and
// server (component F): the vendor's PC configuration tool talks a framed
// protocol distinct from CAN-bound traffic — short system queries with no
// module/group addressing — multiplexed over the same TCP connection that
// also carries full HAPCAN frames (spec.md §4.6). Grounded on
// hapcansocket.c's opcode/response table and internal/server's
// connect/read/write worker shape.
package programmer

import (
	"fmt"

	"github.com/hapcan/gw-server/internal/hapcan"
)

// System query/response frames carry no module/group bytes: AA | op_hi |
// (op_lo<<4)|flags | data... | checksum | A5. The incoming system query
// (spec.md's "5-byte" interior count, 7 bytes total) carries 2 reserved
// bytes instead of 8; responses and addressed queries carry the full 8.

// decodeOpcode extracts the 12-bit opcode and 4-bit flags nibble from the
// header bytes at buf[1], buf[2].
func decodeOpcode(buf []byte) (opcode uint16, flags uint8) {
	opcode = (uint16(buf[1])<<8 | uint16(buf[2])) >> 4
	flags = buf[2] & 0x0F
	return
}

// encodeHeader packs opcode/flags back into the two header bytes.
func encodeHeader(opcode uint16, flags uint8) (b1, b2 byte) {
	b1 = byte(opcode >> 4)
	b2 = byte(opcode<<4) | (flags & 0x0F)
	return
}

func checksum(buf []byte) uint8 {
	var sum uint8
	for _, b := range buf[1 : len(buf)-2] {
		sum += b
	}
	return sum
}

// buildShortFrame builds a 13-byte system response: header + 8 data bytes
// + checksum + framing.
func buildShortFrame(opcode uint16, flags uint8, data [8]byte) [13]byte {
	var out [13]byte
	out[0] = 0xAA
	out[1], out[2] = encodeHeader(opcode, flags)
	copy(out[3:11], data[:])
	out[11] = checksum(out[:])
	out[12] = 0xA5
	return out
}

// decodeShortFrame validates framing+checksum and extracts opcode/flags
// and the 8 data bytes from a 13-byte addressed query. Note this is the
// incoming-query shape only: the status/uptime *responses* to an
// addressed query are full 15-byte CAN-frame-shaped wires built via
// hapcan.EncodeTCP (see opcodes.go), since the firmware addresses those
// responses with its own module/group computer ID.
func decodeShortFrame(buf []byte) (opcode uint16, flags uint8, data [8]byte, err error) {
	if len(buf) != 13 {
		return 0, 0, data, fmt.Errorf("programmer: short frame length %d, want 13", len(buf))
	}
	if err := hapcan.VerifyTCPChecksum(buf); err != nil {
		return 0, 0, data, err
	}
	opcode, flags = decodeOpcode(buf)
	copy(data[:], buf[3:11])
	return opcode, flags, data, nil
}

// errUnrecognizedOpcode reports a system-query opcode this gateway does not
// implement a response for.
func errUnrecognizedOpcode(opcode uint16) error {
	return fmt.Errorf("programmer: unrecognized opcode 0x%03X", opcode)
}

// decodeSystemQuery validates and extracts the opcode from the 7-byte
// system query (spec.md scenario 4 shape: AA | op_hi | op_lo_flags | 0x00
// | 0x00 | checksum | A5).
func decodeSystemQuery(buf []byte) (opcode uint16, flags uint8, err error) {
	if len(buf) != 7 {
		return 0, 0, fmt.Errorf("programmer: system query length %d, want 7", len(buf))
	}
	if err := hapcan.VerifyTCPChecksum(buf); err != nil {
		return 0, 0, err
	}
	opcode, flags = decodeOpcode(buf)
	return opcode, flags, nil
}
