// internal/caps/dump.go
package caps

import "fmt"

// MarshalYAML renders the descriptor the way rotctl/rigctl --dump-caps
// lists capabilities, with durations and opcodes in readable form.
func (d *Descriptor) MarshalYAML() (interface{}, error) {
	out := map[string]interface{}{
		"model":        d.Model,
		"brand":        string(d.Brand),
		"manufacturer": d.Manufacturer,
		"type":         string(d.DeviceType),
		"version":      d.Version,
		"status":       string(d.Status),
		"port":         string(d.Port),
		"serial": map[string]interface{}{
			"rate_min":  d.Serial.RateMin,
			"rate_max":  d.Serial.RateMax,
			"data_bits": d.Serial.DataBits,
			"stop_bits": d.Serial.StopBits,
			"parity":    d.Serial.Parity,
			"handshake": d.Serial.Handshake,
		},
		"timing": map[string]interface{}{
			"write_delay":      d.Timing.WriteDelay.String(),
			"post_write_delay": d.Timing.PostWriteDelay.String(),
			"timeout":          d.Timing.Timeout.String(),
			"retry":            d.Timing.Retry,
		},
	}

	capabilities := make([]string, len(d.Capabilities))
	for i, c := range d.Capabilities {
		capabilities[i] = string(c)
	}
	out["capabilities"] = capabilities

	if f := d.Frame; f != nil {
		out["frame"] = map[string]interface{}{
			"length":          f.Length,
			"sync":            hexByte(f.Sync),
			"default_address": hexByte(d.DefaultAddress),
			"checksum_range":  fmt.Sprintf("%d-%d", f.ChecksumStart, f.ChecksumEnd),
			"scale":           f.Scale,
			"signed_operand":  f.SignedOperand,
			"reply_checksum":  f.ValidateReplyChecksum,
		}
	}
	if r := d.Rotator; r != nil {
		out["rotator"] = map[string]interface{}{
			"min_az":    r.MinAz,
			"max_az":    r.MaxAz,
			"min_el":    r.MinEl,
			"max_el":    r.MaxEl,
			"speed_min": r.SpeedMin,
			"speed_max": r.SpeedMax,
		}
	}
	if r := d.Rig; r != nil {
		out["rig"] = map[string]interface{}{
			"min_freq":   r.MinFreq,
			"max_freq":   r.MaxFreq,
			"modes":      r.Modes,
			"get_levels": r.GetLevels,
			"set_levels": r.SetLevels,
		}
	}
	return out, nil
}

func hexByte(b byte) string {
	return fmt.Sprintf("0x%02X", b)
}
