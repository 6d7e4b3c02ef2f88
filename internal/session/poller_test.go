package session

import "testing"

func TestPollerAlternates(t *testing.T) {
	var p PositionPoller
	if p.Due() != AxisAzimuth {
		t.Fatalf("initial Due()=%v, want azimuth", p.Due())
	}

	az, el := p.Complete(AxisAzimuth, 180, true)
	if az != 180 || el != 0 || p.Due() != AxisElevation {
		t.Fatalf("after azimuth: (%v, %v) due %v", az, el, p.Due())
	}

	az, el = p.Complete(AxisElevation, 45, true)
	if az != 180 || el != 45 || p.Due() != AxisAzimuth {
		t.Fatalf("after elevation: (%v, %v) due %v", az, el, p.Due())
	}
}

func TestPollerKeepsCachedValueOnStaleReply(t *testing.T) {
	var p PositionPoller
	p.Complete(AxisAzimuth, 90, true)
	p.Complete(AxisElevation, 10, true)

	az, el := p.Complete(AxisAzimuth, 999, false)
	if az != 90 || el != 10 {
		t.Fatalf("stale reply changed cache: (%v, %v)", az, el)
	}
	if p.Due() != AxisElevation {
		t.Fatalf("Due()=%v, want elevation", p.Due())
	}
}

func TestPollerReset(t *testing.T) {
	var p PositionPoller
	p.Complete(AxisAzimuth, 90, true)
	p.Reset()

	az, el := p.Cached()
	if p.Due() != AxisAzimuth || az != 0 || el != 0 {
		t.Fatalf("after Reset: due %v cache (%v, %v)", p.Due(), az, el)
	}
}

func TestPollerPanicsOutOfTurn(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("Complete() out of turn did not panic")
		}
	}()
	var p PositionPoller
	p.Complete(AxisElevation, 1, true)
}
