// internal/driver/pelco/descriptor.go
package pelco

import (
	"time"

	"hamlink/internal/caps"
	"hamlink/internal/model"
)

// Pelco-D opcodes (command 2 byte)
const (
	opStop           = 0x00
	opRight          = 0x02
	opLeft           = 0x04
	opUp             = 0x08
	opDown           = 0x10
	opSetAzimuth     = 0x4B
	opSetElevation   = 0x4D
	opQueryAzimuth   = 0x51
	opQueryElevation = 0x53
	opAzimuthReply   = 0x59
	opElevationReply = 0x5B
)

// Layout is the 7-byte Pelco-D frame: FF addr cmd1 cmd2 data1 data2 sum,
// with the checksum summed over bytes 1 to 5.
var Layout = caps.FrameLayout{
	Length:         7,
	Sync:           0xFF,
	AddressOffset:  1,
	Command1Offset: 2,
	OpcodeOffset:   3,
	OperandHigh:    4,
	OperandLow:     5,
	ChecksumOffset: 6,
	ChecksumStart:  1,
	ChecksumEnd:    5,
	Scale:          100,
	// 360.00 degrees is 36000, which only fits unsigned.
	SignedOperand:         false,
	ValidateReplyChecksum: false,
	ReplyLength:           7,
}

var opcodes = caps.RotatorOpcodes{
	SetAzimuth:     opSetAzimuth,
	SetElevation:   opSetElevation,
	QueryAzimuth:   opQueryAzimuth,
	QueryElevation: opQueryElevation,
	AzimuthReply:   opAzimuthReply,
	ElevationReply: opElevationReply,
	Stop:           opStop,
	Up:             opUp,
	Down:           opDown,
	Left:           opLeft,
	Right:          opRight,
}

var capabilities = []model.Capability{
	model.CapabilitySetPosition,
	model.CapabilityGetPosition,
	model.CapabilityStop,
	model.CapabilityPark,
	model.CapabilityMove,
	model.CapabilityReset,
}

// YL3040 describes the YAAN YL3040 pan/tilt positioner
func YL3040() *caps.Descriptor {
	layout := Layout
	return &caps.Descriptor{
		Brand:        model.BrandYaan,
		Model:        "YL3040",
		DeviceType:   model.DeviceTypeRotator,
		Manufacturer: "YAAN",
		Version:      "0.1",
		Status:       caps.StatusAlpha,
		Port:         model.ConnectionTypeSerial,
		Serial: caps.SerialCaps{
			RateMin:   9600,
			RateMax:   19200,
			DataBits:  8,
			StopBits:  1,
			Parity:    "NONE",
			Handshake: "NONE",
		},
		Timing: caps.Timing{
			WriteDelay:     0,
			PostWriteDelay: 0,
			Timeout:        200 * time.Millisecond,
			Retry:          3,
		},
		DefaultAddress: 0x01,
		Frame:          &layout,
		Rotator: &caps.RotatorCaps{
			MinAz:    0,
			MaxAz:    360,
			MinEl:    0,
			MaxEl:    84,
			SpeedMin: 1,
			SpeedMax: 64,
			Opcodes:  opcodes,
		},
		Capabilities: append([]model.Capability(nil), capabilities...),
	}
}

// Generic describes an unspecified Pelco-D positioner. Limits are the
// full operand range of the protocol.
func Generic() *caps.Descriptor {
	d := YL3040()
	d.Brand = model.BrandPelco
	d.Model = "PELCO-D"
	d.Manufacturer = "Pelco"
	d.Serial.RateMin = 2400
	d.Rotator.MaxEl = 90
	return d
}
