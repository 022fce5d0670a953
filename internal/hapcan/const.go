// Package hapcan implements the HAPCAN application-layer frame codec: the
// mapping between a 29-bit extended CAN identifier plus 8 data bytes and the
// logical {frametype, flags, module, group, data} frame, and the TCP
// "programmer" 15-byte framing used by the vendor's PC configuration tool.
package hapcan

// Frame type constants, grounded on the vendor firmware's hapcan.h.
const (
	RTCFrameType              uint16 = 0x300
	ButtonFrameType           uint16 = 0x301
	RelayFrameType            uint16 = 0x302
	IRReceiverFrameType       uint16 = 0x303
	TemperatureFrameType      uint16 = 0x304
	IRTransmitterFrameType    uint16 = 0x305
	DimmerFrameType           uint16 = 0x306
	MultiTempIRFrameType      uint16 = 0x307
	RGBFrameType              uint16 = 0x308
	OpenCollectorFrameType    uint16 = 0x309
	StartNormalMessages       uint16 = 0x200

	HWTypeRequestGroupFrameType   uint16 = 0x103
	HWTypeRequestNodeFrameType    uint16 = 0x104
	FWTypeRequestGroupFrameType   uint16 = 0x105
	FWTypeRequestNodeFrameType    uint16 = 0x106
	StatusRequestGroupFrameType   uint16 = 0x108
	StatusRequestNodeFrameType    uint16 = 0x109
	SupplyRequestGroupFrameType   uint16 = 0x10B
	SupplyRequestNodeFrameType    uint16 = 0x10C
	DirectControlFrameType        uint16 = 0x10A
	DescriptionRequestGroupType   uint16 = 0x10D
	DescriptionRequestNodeType    uint16 = 0x10E
	DevIDRequestGroupFrameType    uint16 = 0x10F
	DevIDRequestNodeFrameType     uint16 = 0x111
	UptimeRequestGroupFrameType   uint16 = 0x112
	UptimeRequestNodeFrameType    uint16 = 0x113
	HealthCheckRequestGroupType   uint16 = 0x114
	HealthCheckRequestNodeType    uint16 = 0x115
)

// Fixed Ethernet-module identity values the gateway reports about itself
// when it is the addressee of a TCP system query (§4.6 of the spec),
// grounded on original_source/SW/source/hapcan.h.
const (
	HWType  uint16 = 0x3000
	HWVer   uint8  = 3
	AType   uint8  = 102
	AVers   uint8  = 0
	FVers   uint8  = 1
	BVer1   uint8  = 3
	BVer2   uint8  = 4
	HWID0   uint8  = 0x00
	HWID1   uint8  = 0x11
	HWID2   uint8  = 0x22
	HWID3   uint8  = 0x33
	VolBus1 uint8  = 0x27
	VolBus2 uint8  = 0x58
	VolCPU1 uint8  = 0x27
	VolCPU2 uint8  = 0x58
	DevID1  uint8  = 0xFF
	DevID2  uint8  = 0xFF

	// DefaultComputerID is used for computerID1/computerID2 when the config
	// file omits them or they fail to parse.
	DefaultComputerID uint8 = 254

	// StatusSendRetries is the ceiling on identical consecutive requests
	// before a module is considered unresponsive (spec.md §4.7/§4.8,
	// grounded on HAPCAN_CAN_STATUS_SEND_RETRIES in the vendor source).
	StatusSendRetries = 3

	// DataLen is the number of payload bytes in a HAPCAN frame.
	DataLen = 8
	// SocketDataLen is the length of a CAN-bound TCP programmer frame.
	SocketDataLen = 15
)
