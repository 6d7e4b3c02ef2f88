package fake

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// YaesuRig emulates the subset of the newcat CAT set used by the FT-891
// driver. Set commands are silent; queries echo the command prefix with
// the current value.
type YaesuRig struct {
	mu sync.Mutex

	Frequency int64
	Mode      byte
	SMeter    int
	Power     int
	AF        int
	Squelch   int
	PowerMtr  int
	TX        bool

	commands []string
}

// NewYaesuRig returns a rig on 14.074 MHz USB
func NewYaesuRig() *YaesuRig {
	return &YaesuRig{Frequency: 14074000, Mode: '2', Power: 100, AF: 128}
}

// Transport wires the rig to a fresh scripted transport
func (r *YaesuRig) Transport() *Transport {
	return NewTransport(r.Respond)
}

// Commands returns every command received
func (r *YaesuRig) Commands() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.commands...)
}

// Respond implements Responder
func (r *YaesuRig) Respond(cmd []byte) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := string(cmd)
	r.commands = append(r.commands, s)
	if !strings.HasSuffix(s, ";") {
		return []byte("?;")
	}
	s = strings.TrimSuffix(s, ";")

	switch {
	case s == "FA":
		return []byte(fmt.Sprintf("FA%09d;", r.Frequency))
	case strings.HasPrefix(s, "FA"):
		v, err := strconv.ParseInt(s[2:], 10, 64)
		if err != nil || len(s) != 11 {
			return []byte("?;")
		}
		r.Frequency = v
	case s == "MD0":
		return []byte(fmt.Sprintf("MD0%c;", r.Mode))
	case strings.HasPrefix(s, "MD0") && len(s) == 4:
		r.Mode = s[3]
	case s == "SM0":
		return []byte(fmt.Sprintf("SM0%03d;", r.SMeter))
	case s == "PC":
		return []byte(fmt.Sprintf("PC%03d;", r.Power))
	case strings.HasPrefix(s, "PC"):
		return r.setInt(s[2:], 5, 100, &r.Power)
	case s == "AG0":
		return []byte(fmt.Sprintf("AG0%03d;", r.AF))
	case strings.HasPrefix(s, "AG0"):
		return r.setInt(s[3:], 0, 255, &r.AF)
	case s == "SQ0":
		return []byte(fmt.Sprintf("SQ0%03d;", r.Squelch))
	case strings.HasPrefix(s, "SQ0"):
		return r.setInt(s[3:], 0, 100, &r.Squelch)
	case s == "RM5":
		return []byte(fmt.Sprintf("RM5%03d000;", r.PowerMtr))
	case s == "TX":
		if r.TX {
			return []byte("TX1;")
		}
		return []byte("TX0;")
	case s == "TX1":
		r.TX = true
	case s == "TX0":
		r.TX = false
	default:
		return []byte("?;")
	}
	return nil
}

func (r *YaesuRig) setInt(digits string, lo, hi int, dst *int) []byte {
	v, err := strconv.Atoi(digits)
	if err != nil || v < lo || v > hi {
		return []byte("?;")
	}
	*dst = v
	return nil
}
