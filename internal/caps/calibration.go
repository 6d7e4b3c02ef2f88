// internal/caps/calibration.go
package caps

// CalPoint maps a raw meter reading to a calibrated value
type CalPoint struct {
	Raw   int
	Value float64
}

// CalTable is a monotonic list of calibration points ordered by Raw.
type CalTable []CalPoint

// Interpolate converts raw into a calibrated value with linear
// interpolation. Readings outside the table clamp to the end points.
func (t CalTable) Interpolate(raw int) float64 {
	if len(t) == 0 {
		return float64(raw)
	}
	if raw <= t[0].Raw {
		return t[0].Value
	}
	last := t[len(t)-1]
	if raw >= last.Raw {
		return last.Value
	}

	for i := 1; i < len(t); i++ {
		if raw > t[i].Raw {
			continue
		}
		lo, hi := t[i-1], t[i]
		if hi.Raw == lo.Raw {
			return hi.Value
		}
		frac := float64(raw-lo.Raw) / float64(hi.Raw-lo.Raw)
		return lo.Value + frac*(hi.Value-lo.Value)
	}
	return last.Value
}
