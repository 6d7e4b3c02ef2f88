package fake

import "sync"

// PelcoDevice emulates a Pelco-D positioner: it stores set positions and
// answers position queries with them.
type PelcoDevice struct {
	mu sync.Mutex

	Address   byte
	Azimuth   uint16
	Elevation uint16

	// MisorderReplies answers each query with the other axis' reply opcode.
	MisorderReplies bool

	commands [][]byte
}

// NewPelcoDevice returns a stub listening on address
func NewPelcoDevice(address byte) *PelcoDevice {
	return &PelcoDevice{Address: address}
}

// Transport wires the stub to a fresh scripted transport
func (d *PelcoDevice) Transport() *Transport {
	return NewTransport(d.Respond)
}

// Respond implements Responder
func (d *PelcoDevice) Respond(cmd []byte) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(cmd) != 7 || cmd[0] != 0xFF || cmd[1] != d.Address {
		return nil
	}
	d.commands = append(d.commands, append([]byte(nil), cmd...))

	operand := uint16(cmd[4])<<8 | uint16(cmd[5])
	switch cmd[3] {
	case 0x4B:
		d.Azimuth = operand
	case 0x4D:
		d.Elevation = operand
	case 0x51:
		if d.MisorderReplies {
			return d.reply(0x5B, d.Elevation)
		}
		return d.reply(0x59, d.Azimuth)
	case 0x53:
		if d.MisorderReplies {
			return d.reply(0x59, d.Azimuth)
		}
		return d.reply(0x5B, d.Elevation)
	}
	return nil
}

// Commands returns every frame addressed to the stub
func (d *PelcoDevice) Commands() [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([][]byte, len(d.commands))
	copy(out, d.commands)
	return out
}

func (d *PelcoDevice) reply(op byte, v uint16) []byte {
	r := []byte{0xFF, d.Address, 0x00, op, byte(v >> 8), byte(v), 0}
	r[6] = r[1] + r[2] + r[3] + r[4] + r[5]
	return r
}
