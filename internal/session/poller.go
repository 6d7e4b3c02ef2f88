// internal/session/poller.go
package session

// Axis is one half of a two-phase position poll
type Axis int

const (
	AxisAzimuth Axis = iota
	AxisElevation
)

func (a Axis) String() string {
	if a == AxisElevation {
		return "elevation"
	}
	return "azimuth"
}

// PositionPoller is the polling cursor for positioners that can only be
// asked for one axis per transaction. Each poll refreshes the due axis and
// reports the cached value of the other one.
type PositionPoller struct {
	due       Axis
	azimuth   float64
	elevation float64
}

// Due returns the axis the next poll must query
func (p *PositionPoller) Due() Axis { return p.due }

// Complete records the outcome of a successful query of axis and advances
// the cursor. When fresh is false the reply answered a different query and
// the cached value is kept.
func (p *PositionPoller) Complete(axis Axis, value float64, fresh bool) (azimuth, elevation float64) {
	if axis != p.due {
		panic("session: completed " + axis.String() + " poll while " + p.due.String() + " was due")
	}

	switch axis {
	case AxisAzimuth:
		if fresh {
			p.azimuth = value
		}
		p.due = AxisElevation
	case AxisElevation:
		if fresh {
			p.elevation = value
		}
		p.due = AxisAzimuth
	}
	return p.azimuth, p.elevation
}

// Cached returns the last known position without touching the cursor
func (p *PositionPoller) Cached() (azimuth, elevation float64) {
	return p.azimuth, p.elevation
}

// Reset returns to the initial state
func (p *PositionPoller) Reset() {
	*p = PositionPoller{}
}
