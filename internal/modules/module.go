// Package modules implements the per-module-type encoders and decoders
// (component E): each HAPCAN module family registers a CAN→MQTT payload
// builder and an MQTT→CAN frame builder, selected by the routing template's
// pre-filled metadata bytes (spec.md §4.5).
package modules

import (
	"errors"

	"github.com/hapcan/gw-server/internal/hapcan"
)

// ErrUnrecognized is returned when a frame or payload does not match any
// branch a decoder/encoder knows about; callers drop the message without
// publishing, mirroring the vendor firmware's silent-ignore-on-error policy.
var ErrUnrecognized = errors.New("modules: unrecognized value")

// ErrOutOfRange is returned when a decoded numeric field falls outside the
// bounds the protocol allows (e.g. an INSTR byte outside [0,255]).
var ErrOutOfRange = errors.New("modules: value out of range")

// Encoder turns an observed CAN frame into zero or more MQTT payloads for a
// single state topic. Some module families (button press-release) emit more
// than one payload per frame.
type Encoder interface {
	CANToPayload(meta, f hapcan.Frame) ([][]byte, error)
}

// Decoder turns an MQTT payload into one or more outbound CAN frames, built
// from the routing rule's Result frame used as a template.
type Decoder interface {
	PayloadToCAN(template hapcan.Frame, payload []byte) ([]hapcan.Frame, error)
}

func clampByte(v int64) (byte, error) {
	if v < 0 || v > 255 {
		return 0, ErrOutOfRange
	}
	return byte(v), nil
}

func i16(hi, lo byte) int16 { return int16(uint16(hi)<<8 | uint16(lo)) }

func splitI16(v int16) (hi, lo byte) {
	u := uint16(v)
	return byte(u >> 8), byte(u)
}
