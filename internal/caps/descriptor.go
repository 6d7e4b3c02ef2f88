// internal/caps/descriptor.go
package caps

import (
	"fmt"
	"time"

	"hamlink/internal/model"
)

// Status is the maturity of a backend
type Status string

const (
	StatusAlpha  Status = "ALPHA"
	StatusBeta   Status = "BETA"
	StatusStable Status = "STABLE"
)

// MaxFrameLength bounds every fixed-length dialect.
const MaxFrameLength = 16

// Descriptor is the static, per-model protocol table. It is built once at
// registration time and never mutated afterwards.
type Descriptor struct {
	Brand        model.DeviceBrand
	Model        string
	DeviceType   model.DeviceType
	Manufacturer string
	Version      string
	Copyright    string
	Status       Status
	Port         model.ConnectionType

	Serial SerialCaps
	Timing Timing

	// DefaultAddress is the bus address used when a session does not set one.
	DefaultAddress byte

	// Frame is nil for text (terminator delimited) dialects.
	Frame   *FrameLayout
	Rotator *RotatorCaps
	Rig     *RigCaps

	Capabilities []model.Capability
}

// SerialCaps describes the serial line settings a device accepts
type SerialCaps struct {
	RateMin   int
	RateMax   int
	DataBits  int
	StopBits  int
	Parity    string
	Handshake string
}

// Timing holds write pacing, read timeout and retry policy
type Timing struct {
	WriteDelay     time.Duration
	PostWriteDelay time.Duration
	Timeout        time.Duration
	Retry          int
}

// FrameLayout describes a fixed-length binary frame. All offsets are byte
// indexes into the frame; the checksum range is inclusive.
type FrameLayout struct {
	Length         int
	Sync           byte
	AddressOffset  int
	Command1Offset int
	OpcodeOffset   int
	OperandHigh    int
	OperandLow     int
	ChecksumOffset int
	ChecksumStart  int
	ChecksumEnd    int

	// Scale converts a physical value to the integer operand.
	Scale float64

	SignedOperand         bool
	ValidateReplyChecksum bool
	ReplyLength           int
}

// RotatorCaps holds the limits and opcodes of an az/el rotator dialect
type RotatorCaps struct {
	MinAz    float64
	MaxAz    float64
	MinEl    float64
	MaxEl    float64
	SpeedMin int
	SpeedMax int
	Opcodes  RotatorOpcodes
}

// RotatorOpcodes are the command bytes of a two-axis positioner
type RotatorOpcodes struct {
	SetAzimuth     byte
	SetElevation   byte
	QueryAzimuth   byte
	QueryElevation byte
	AzimuthReply   byte
	ElevationReply byte
	Stop           byte
	Up             byte
	Down           byte
	Left           byte
	Right          byte
}

// RigCaps holds the limits of a transceiver dialect
type RigCaps struct {
	MinFreq    float64
	MaxFreq    float64
	Terminator byte
	MaxReply   int
	Modes      []string
	GetLevels  []string
	SetLevels  []string

	StrengthCal     CalTable
	RFPowerMeterCal CalTable
}

// Attempts is the number of times a transaction is tried before giving up.
func (d *Descriptor) Attempts() int {
	if d.Timing.Retry < 1 {
		return 1
	}
	return d.Timing.Retry
}

// HasCapability reports whether the model advertises the capability
func (d *Descriptor) HasCapability(c model.Capability) bool {
	for _, have := range d.Capabilities {
		if have == c {
			return true
		}
	}
	return false
}

// SupportsBaudRate reports whether rate is inside the serial range
func (d *Descriptor) SupportsBaudRate(rate int) bool {
	return rate >= d.Serial.RateMin && rate <= d.Serial.RateMax
}

// Validate checks internal consistency of the descriptor
func (d *Descriptor) Validate() error {
	if d.Model == "" {
		return fmt.Errorf("descriptor: model is required")
	}
	if d.Serial.RateMin <= 0 || d.Serial.RateMax < d.Serial.RateMin {
		return fmt.Errorf("descriptor %s: invalid serial rate range %d-%d", d.Model, d.Serial.RateMin, d.Serial.RateMax)
	}
	if d.Timing.Timeout <= 0 {
		return fmt.Errorf("descriptor %s: timeout must be > 0", d.Model)
	}
	if d.Frame != nil {
		if err := d.Frame.Validate(); err != nil {
			return fmt.Errorf("descriptor %s: %w", d.Model, err)
		}
	}
	switch d.DeviceType {
	case model.DeviceTypeRotator:
		if d.Rotator == nil || d.Frame == nil {
			return fmt.Errorf("descriptor %s: rotator needs rotator caps and a frame layout", d.Model)
		}
		r := d.Rotator
		if r.MaxAz <= r.MinAz || r.MaxEl < r.MinEl {
			return fmt.Errorf("descriptor %s: invalid position limits", d.Model)
		}
		if r.SpeedMin < 1 || r.SpeedMax < r.SpeedMin || r.SpeedMax > 0xFF {
			return fmt.Errorf("descriptor %s: invalid speed range %d-%d", d.Model, r.SpeedMin, r.SpeedMax)
		}
	case model.DeviceTypeRig:
		if d.Rig == nil {
			return fmt.Errorf("descriptor %s: rig needs rig caps", d.Model)
		}
		if d.Rig.Terminator == 0 || d.Rig.MaxReply <= 0 {
			return fmt.Errorf("descriptor %s: rig needs a terminator and reply limit", d.Model)
		}
	default:
		return fmt.Errorf("descriptor %s: unknown device type %q", d.Model, d.DeviceType)
	}
	return nil
}

// Validate checks that every offset lies inside the frame
func (l *FrameLayout) Validate() error {
	if l.Length <= 0 || l.Length > MaxFrameLength {
		return fmt.Errorf("frame length %d out of range 1-%d", l.Length, MaxFrameLength)
	}
	for name, off := range map[string]int{
		"address":   l.AddressOffset,
		"command1":  l.Command1Offset,
		"opcode":    l.OpcodeOffset,
		"operand_h": l.OperandHigh,
		"operand_l": l.OperandLow,
		"checksum":  l.ChecksumOffset,
	} {
		if off < 0 || off >= l.Length {
			return fmt.Errorf("%s offset %d outside frame of %d bytes", name, off, l.Length)
		}
	}
	if l.OperandHigh == l.OperandLow {
		return fmt.Errorf("operand high and low bytes share offset %d", l.OperandHigh)
	}
	if l.ChecksumStart < 0 || l.ChecksumEnd < l.ChecksumStart || l.ChecksumEnd >= l.Length {
		return fmt.Errorf("invalid checksum range %d-%d", l.ChecksumStart, l.ChecksumEnd)
	}
	if l.ChecksumOffset >= l.ChecksumStart && l.ChecksumOffset <= l.ChecksumEnd {
		return fmt.Errorf("checksum byte %d inside its own range", l.ChecksumOffset)
	}
	if l.Scale <= 0 {
		return fmt.Errorf("scale must be > 0")
	}
	if l.ReplyLength < 0 || l.ReplyLength > MaxFrameLength {
		return fmt.Errorf("reply length %d out of range", l.ReplyLength)
	}
	if l.ReplyLength > 0 {
		need := max(l.OpcodeOffset, l.OperandHigh, l.OperandLow)
		if l.ValidateReplyChecksum {
			need = max(need, l.ChecksumOffset, l.ChecksumEnd)
		}
		if l.ReplyLength <= need {
			return fmt.Errorf("reply length %d does not reach byte %d", l.ReplyLength, need)
		}
	}
	return nil
}
