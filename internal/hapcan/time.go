package hapcan

import "time"

func decToBCD(v uint8) uint8 { return ((v / 10) << 4) | (v % 10) }

// WallClockBytes returns the 7-byte HAPCAN RTC encoding of t: YY MM DD WD HH MM SS,
// all BCD except weekday which is a plain 1 (Monday) .. 7 (Sunday) integer
// (spec.md §4.6, grounded on auxiliary.c's aux_getHAPCANTime).
func WallClockBytes(t time.Time) [7]byte {
	var b [7]byte
	year := t.Year() - 2000
	if year < 0 {
		year = 0
	}
	b[0] = decToBCD(uint8(year % 100))
	b[1] = decToBCD(uint8(t.Month()))
	b[2] = decToBCD(uint8(t.Day()))
	wd := int(t.Weekday()) // Sunday=0 .. Saturday=6
	if wd == 0 {
		wd = 7
	}
	b[3] = uint8(wd)
	b[4] = decToBCD(uint8(t.Hour()))
	b[5] = decToBCD(uint8(t.Minute()))
	b[6] = decToBCD(uint8(t.Second()))
	return b
}

// UptimeBytes returns the big-endian 32-bit seconds encoding used by the
// programmer's uptime response and the RTC-adjacent health fields.
func UptimeBytes(seconds uint32) [4]byte {
	return [4]byte{
		byte(seconds >> 24),
		byte(seconds >> 16),
		byte(seconds >> 8),
		byte(seconds),
	}
}

// RTCFrame builds the 0x300 RTC broadcast frame addressed as `from` (the
// gateway's own computer ID pair), populated with the current wall-clock
// time, per spec.md §4.9.
func RTCFrame(fromNode, fromGroup uint8, t time.Time) Frame {
	wc := WallClockBytes(t)
	var f Frame
	f.FrameType = RTCFrameType
	f.Module = fromNode
	f.Group = fromGroup
	copy(f.Data[:7], wc[:])
	return f
}
