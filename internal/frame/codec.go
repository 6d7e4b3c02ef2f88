// internal/frame/codec.go
package frame

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"hamlink/internal/caps"
	"hamlink/pkg/driver"
)

// MaxLength is the capacity of a Frame
const MaxLength = caps.MaxFrameLength

// Frame is a fixed-capacity command frame. Only the first Len bytes are
// meaningful.
type Frame struct {
	buf [MaxLength]byte
	n   int
}

// Bytes returns the encoded frame
func (f Frame) Bytes() []byte {
	out := make([]byte, f.n)
	copy(out, f.buf[:f.n])
	return out
}

// Len returns the frame length
func (f Frame) Len() int { return f.n }

// String renders the frame as space separated hex
func (f Frame) String() string {
	return Hex(f.buf[:f.n])
}

// Hex renders bytes the way device manuals print frames
func Hex(b []byte) string {
	var sb strings.Builder
	for i, c := range b {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%02X", c)
	}
	return sb.String()
}

// Reply is a decoded reply frame
type Reply struct {
	Opcode byte
	Raw    uint16
	Value  float64
}

// Codec builds and parses frames for one dialect and bus address
type Codec struct {
	layout  caps.FrameLayout
	address byte
	scale   decimal.Decimal
}

// NewCodec validates layout and binds it to a device address
func NewCodec(layout caps.FrameLayout, address byte) (*Codec, error) {
	if err := layout.Validate(); err != nil {
		return nil, fmt.Errorf("invalid frame layout: %w", err)
	}
	return &Codec{
		layout:  layout,
		address: address,
		scale:   decimal.NewFromFloat(layout.Scale),
	}, nil
}

// Layout returns the bound frame layout
func (c *Codec) Layout() caps.FrameLayout { return c.layout }

// Address returns the bound device address
func (c *Codec) Address() byte { return c.address }

// ReplyLength is the fixed size of a reply frame
func (c *Codec) ReplyLength() int {
	if c.layout.ReplyLength > 0 {
		return c.layout.ReplyLength
	}
	return c.layout.Length
}

// Encode builds a frame carrying a raw 16-bit operand
func (c *Codec) Encode(opcode byte, operand uint16) Frame {
	return c.EncodeBytes(opcode, byte(operand>>8), byte(operand))
}

// EncodeBytes builds a frame with the two operand bytes given directly.
func (c *Codec) EncodeBytes(opcode byte, high, low byte) Frame {
	var f Frame
	f.n = c.layout.Length
	f.buf[0] = c.layout.Sync
	f.buf[c.layout.AddressOffset] = c.address
	f.buf[c.layout.Command1Offset] = 0
	f.buf[c.layout.OpcodeOffset] = opcode
	f.buf[c.layout.OperandHigh] = high
	f.buf[c.layout.OperandLow] = low
	f.buf[c.layout.ChecksumOffset] = c.Checksum(f.buf[:f.n])
	return f
}

// EncodeValue scales a physical value into the operand. Values that do not
// fit the 16-bit operand encoding are rejected.
func (c *Codec) EncodeValue(opcode byte, value float64) (Frame, error) {
	raw, err := c.ToRaw(value)
	if err != nil {
		return Frame{}, err
	}
	return c.Encode(opcode, raw), nil
}

// ToRaw converts a physical value into its wire operand, rounding half away
// from zero.
func (c *Codec) ToRaw(value float64) (uint16, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, fmt.Errorf("value %v: %w", value, driver.ErrInvalidArgument)
	}
	scaled := decimal.NewFromFloat(value).Mul(c.scale).Round(0)

	lo, hi := int64(0), int64(math.MaxUint16)
	if c.layout.SignedOperand {
		lo, hi = math.MinInt16, math.MaxInt16
	}
	if scaled.LessThan(decimal.NewFromInt(lo)) || scaled.GreaterThan(decimal.NewFromInt(hi)) {
		return 0, fmt.Errorf("value %v overflows operand range [%d, %d]: %w",
			value, lo, hi, driver.ErrInvalidArgument)
	}
	n := scaled.IntPart()
	if n < 0 {
		return uint16(int16(n)), nil
	}
	return uint16(n), nil
}

// FromRaw converts a wire operand back into a physical value.
func (c *Codec) FromRaw(raw uint16) float64 {
	n := int64(raw)
	if c.layout.SignedOperand {
		n = int64(int16(raw))
	}
	v, _ := decimal.NewFromInt(n).Div(c.scale).Float64()
	return v
}

// Decode validates a reply and extracts its opcode and operand
func (c *Codec) Decode(reply []byte) (Reply, error) {
	want := c.ReplyLength()
	if len(reply) < want {
		return Reply{}, fmt.Errorf("got %d of %d bytes: %w", len(reply), want, driver.ErrShortReply)
	}
	reply = reply[:want]
	if c.layout.ValidateReplyChecksum && !c.Verify(reply) {
		return Reply{}, fmt.Errorf("reply %s: %w", Hex(reply), driver.ErrChecksum)
	}

	raw := uint16(reply[c.layout.OperandHigh])<<8 | uint16(reply[c.layout.OperandLow])
	return Reply{
		Opcode: reply[c.layout.OpcodeOffset],
		Raw:    raw,
		Value:  c.FromRaw(raw),
	}, nil
}

// Checksum sums the layout's checksum range modulo 256
func (c *Codec) Checksum(frame []byte) byte {
	var sum byte
	for i := c.layout.ChecksumStart; i <= c.layout.ChecksumEnd && i < len(frame); i++ {
		sum += frame[i]
	}
	return sum
}

// Verify recomputes the checksum and compares it with the stored byte
func (c *Codec) Verify(frame []byte) bool {
	if len(frame) <= c.layout.ChecksumOffset {
		return false
	}
	return c.Checksum(frame) == frame[c.layout.ChecksumOffset]
}
