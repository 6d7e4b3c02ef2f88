package pelco

import (
	"bytes"
	"context"
	"errors"
	"math"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap/zaptest"

	"hamlink/internal/frame"
	"hamlink/internal/model"
	"hamlink/internal/protocol"
	"hamlink/internal/protocol/fake"
	"hamlink/internal/session"
	"hamlink/pkg/driver"
)

func newDriver(t *testing.T, tr protocol.Transport) *Driver {
	t.Helper()
	sess, err := session.New(YL3040(), tr, session.Options{Port: "/dev/ttyTEST"}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("session.New() err=%v", err)
	}
	d, err := New(sess)
	if err != nil {
		t.Fatalf("New() err=%v", err)
	}
	return d
}

func TestDescriptorsValid(t *testing.T) {
	if err := YL3040().Validate(); err != nil {
		t.Fatalf("YL3040().Validate() err=%v", err)
	}
	if err := Generic().Validate(); err != nil {
		t.Fatalf("Generic().Validate() err=%v", err)
	}
	if YL3040().Attempts() != 3 {
		t.Fatalf("YL3040 attempts=%d, want 3", YL3040().Attempts())
	}
}

func TestExampleScenario(t *testing.T) {
	dev := fake.NewPelcoDevice(0x01)
	tr := dev.Transport()
	d := newDriver(t, tr)
	ctx := context.Background()

	if err := d.SetPosition(ctx, 180.0, 45.0); err != nil {
		t.Fatalf("SetPosition() err=%v", err)
	}

	writes := tr.Writes()
	want := [][]byte{
		{0xFF, 0x01, 0x00, 0x4B, 0x46, 0x50, 0xE2},
		{0xFF, 0x01, 0x00, 0x4D, 0x11, 0x94, 0xF3},
	}
	if len(writes) != len(want) {
		t.Fatalf("writes=%d, want %d", len(writes), len(want))
	}
	for i := range want {
		if !bytes.Equal(writes[i], want[i]) {
			t.Fatalf("frame %d = %s, want %s", i, frame.Hex(writes[i]), frame.Hex(want[i]))
		}
	}

	pos, err := d.GetPosition(ctx)
	if err != nil {
		t.Fatalf("GetPosition() err=%v", err)
	}
	if pos.Azimuth != 180 || pos.Elevation != 0 {
		t.Fatalf("first poll = %+v, want azimuth only", pos)
	}

	pos, err = d.GetPosition(ctx)
	if err != nil {
		t.Fatalf("GetPosition() err=%v", err)
	}
	if pos != (driver.Position{Azimuth: 180, Elevation: 45}) {
		t.Fatalf("second poll = %+v, want (180, 45)", pos)
	}
}

func TestPollingAlternates(t *testing.T) {
	dev := fake.NewPelcoDevice(0x01)
	tr := dev.Transport()
	d := newDriver(t, tr)

	for i := 0; i < 4; i++ {
		if _, err := d.GetPosition(context.Background()); err != nil {
			t.Fatalf("GetPosition() err=%v", err)
		}
	}

	wantOps := []byte{0x51, 0x53, 0x51, 0x53}
	writes := tr.Writes()
	for i, op := range wantOps {
		if writes[i][3] != op {
			t.Fatalf("poll %d opcode %#x, want %#x", i, writes[i][3], op)
		}
	}
	if !bytes.Equal(writes[0], []byte{0xFF, 0x01, 0x00, 0x51, 0x00, 0x00, 0x52}) {
		t.Fatalf("azimuth query = %s", frame.Hex(writes[0]))
	}
}

func TestSessionsPollIndependently(t *testing.T) {
	a := newDriver(t, fake.NewPelcoDevice(0x01).Transport())
	b := newDriver(t, fake.NewPelcoDevice(0x01).Transport())

	if _, err := a.GetPosition(context.Background()); err != nil {
		t.Fatalf("GetPosition() err=%v", err)
	}
	if a.sess.Poller().Due() != session.AxisElevation {
		t.Fatal("session a did not advance")
	}
	if b.sess.Poller().Due() != session.AxisAzimuth {
		t.Fatal("session b was advanced by session a")
	}
}

func TestMisorderedReplyKeepsCache(t *testing.T) {
	dev := fake.NewPelcoDevice(0x01)
	dev.Azimuth, dev.Elevation = 9000, 1000
	d := newDriver(t, dev.Transport())
	ctx := context.Background()

	d.GetPosition(ctx)
	d.GetPosition(ctx)

	dev.MisorderReplies = true
	dev.Azimuth, dev.Elevation = 27000, 3000

	pos, err := d.GetPosition(ctx)
	if err != nil {
		t.Fatalf("GetPosition() err=%v", err)
	}
	if pos != (driver.Position{Azimuth: 90, Elevation: 10}) {
		t.Fatalf("GetPosition() = %+v, want cached (90, 10)", pos)
	}
	if d.sess.Poller().Due() != session.AxisElevation {
		t.Fatal("cursor did not advance on misordered reply")
	}
}

func TestFailedPollDoesNotAdvance(t *testing.T) {
	dev := fake.NewPelcoDevice(0x01)
	tr := dev.Transport()
	tr.ReadErrs = []error{protocol.ErrTimeout, protocol.ErrTimeout, protocol.ErrTimeout}
	d := newDriver(t, tr)

	_, err := d.GetPosition(context.Background())
	if !errors.Is(err, driver.ErrRetriesExhausted) || !errors.Is(err, driver.ErrTransportRead) {
		t.Fatalf("GetPosition() err=%v, want exhausted read", err)
	}
	if tr.Reads() != 3 {
		t.Fatalf("reads=%d, want 3", tr.Reads())
	}
	if d.sess.Poller().Due() != session.AxisAzimuth {
		t.Fatal("cursor advanced after failure")
	}
}

func TestPollRecoversWithinRetryBudget(t *testing.T) {
	dev := fake.NewPelcoDevice(0x01)
	dev.Azimuth = 12345
	tr := dev.Transport()
	tr.ReadErrs = []error{protocol.ErrTimeout, protocol.ErrTimeout}
	d := newDriver(t, tr)

	pos, err := d.GetPosition(context.Background())
	if err != nil {
		t.Fatalf("GetPosition() err=%v", err)
	}
	if pos.Azimuth != 123.45 {
		t.Fatalf("Azimuth=%v, want 123.45", pos.Azimuth)
	}
}

func TestMoveRejectsBadSpeedWithoutIO(t *testing.T) {
	for _, speed := range []int{-1, 0, 65, 255} {
		tr := fake.NewTransport(nil)
		d := newDriver(t, tr)
		err := d.Move(context.Background(), driver.MoveLeft, speed)
		if !errors.Is(err, driver.ErrInvalidArgument) {
			t.Fatalf("Move(speed=%d) err=%v, want ErrInvalidArgument", speed, err)
		}
		if tr.IOCount() != 0 || tr.Flushes() != 0 {
			t.Fatalf("Move(speed=%d) did I/O", speed)
		}
	}
}

func TestMoveFrames(t *testing.T) {
	tests := []struct {
		dir   driver.MoveDirection
		speed int
		want  []byte
	}{
		{driver.MoveLeft, 32, []byte{0xFF, 0x01, 0x00, 0x04, 0x20, 0x00, 0x25}},
		{driver.MoveRight, 1, []byte{0xFF, 0x01, 0x00, 0x02, 0x01, 0x00, 0x04}},
		{driver.MoveUp, 64, []byte{0xFF, 0x01, 0x00, 0x08, 0x00, 0x40, 0x49}},
		{driver.MoveDown, 10, []byte{0xFF, 0x01, 0x00, 0x10, 0x00, 0x0A, 0x1B}},
	}
	for _, tt := range tests {
		t.Run(string(tt.dir), func(t *testing.T) {
			tr := fake.NewTransport(nil)
			d := newDriver(t, tr)
			if err := d.Move(context.Background(), tt.dir, tt.speed); err != nil {
				t.Fatalf("Move() err=%v", err)
			}
			if got := tr.Writes()[0]; !bytes.Equal(got, tt.want) {
				t.Fatalf("Move() frame %s, want %s", frame.Hex(got), frame.Hex(tt.want))
			}
		})
	}

	tr := fake.NewTransport(nil)
	if err := newDriver(t, tr).Move(context.Background(), "SIDEWAYS", 5); !errors.Is(err, driver.ErrInvalidArgument) {
		t.Fatalf("Move(SIDEWAYS) err=%v", err)
	}
	if tr.IOCount() != 0 {
		t.Fatal("invalid direction did I/O")
	}
}

func TestStopAndPark(t *testing.T) {
	tr := fake.NewTransport(nil)
	d := newDriver(t, tr)
	ctx := context.Background()

	if err := d.Stop(ctx); err != nil {
		t.Fatalf("Stop() err=%v", err)
	}
	if err := d.Park(ctx); err != nil {
		t.Fatalf("Park() err=%v", err)
	}

	want := [][]byte{
		{0xFF, 0x01, 0x00, 0x00, 0x00, 0x00, 0x01},
		{0xFF, 0x01, 0x00, 0x4B, 0x00, 0x00, 0x4C},
		{0xFF, 0x01, 0x00, 0x4D, 0x00, 0x00, 0x4E},
	}
	writes := tr.Writes()
	for i := range want {
		if !bytes.Equal(writes[i], want[i]) {
			t.Fatalf("frame %d = %s, want %s", i, frame.Hex(writes[i]), frame.Hex(want[i]))
		}
	}
}

func TestSendOnlyWriteFailureSurfaces(t *testing.T) {
	tr := fake.NewTransport(nil)
	tr.WriteErrs = []error{errors.New("x"), errors.New("y"), errors.New("z")}
	d := newDriver(t, tr)

	err := d.Stop(context.Background())
	if !errors.Is(err, driver.ErrTransportWrite) || !errors.Is(err, driver.ErrRetriesExhausted) {
		t.Fatalf("Stop() err=%v", err)
	}
}

func TestSetPositionValidation(t *testing.T) {
	tests := []struct {
		name   string
		az, el float64
	}{
		{"negative azimuth", -1, 0},
		{"azimuth past 360", 360.01, 0},
		{"elevation past 84", 10, 84.5},
		{"nan", math.NaN(), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := fake.NewTransport(nil)
			d := newDriver(t, tr)
			if err := d.SetPosition(context.Background(), tt.az, tt.el); !errors.Is(err, driver.ErrInvalidArgument) {
				t.Fatalf("SetPosition() err=%v, want ErrInvalidArgument", err)
			}
			if tr.IOCount() != 0 {
				t.Fatal("rejected SetPosition did I/O")
			}
		})
	}
}

func TestSetGetRoundTrip(t *testing.T) {
	dev := fake.NewPelcoDevice(0x01)
	d := newDriver(t, dev.Transport())
	ctx := context.Background()

	for az := 0.0; az < 360; az += 17.377 {
		for el := 0.0; el <= 84; el += 9.731 {
			if err := d.SetPosition(ctx, az, el); err != nil {
				t.Fatalf("SetPosition(%v, %v) err=%v", az, el, err)
			}
			var pos driver.Position
			for i := 0; i < 2; i++ {
				p, err := d.GetPosition(ctx)
				if err != nil {
					t.Fatalf("GetPosition() err=%v", err)
				}
				pos = p
			}
			if math.Abs(pos.Azimuth-az) > 0.005+1e-9 || math.Abs(pos.Elevation-el) > 0.005+1e-9 {
				t.Fatalf("round trip (%v, %v) -> %+v", az, el, pos)
			}
		}
	}
}

func TestResetClearsPollerWithoutIO(t *testing.T) {
	dev := fake.NewPelcoDevice(0x01)
	tr := dev.Transport()
	d := newDriver(t, tr)
	ctx := context.Background()

	if _, err := d.GetPosition(ctx); err != nil {
		t.Fatalf("GetPosition() err=%v", err)
	}
	io := tr.IOCount()

	if err := d.Reset(ctx, "SOFT"); !errors.Is(err, driver.ErrInvalidArgument) {
		t.Fatalf("Reset(SOFT) err=%v", err)
	}
	if err := d.Reset(ctx, driver.ResetAll); err != nil {
		t.Fatalf("Reset(ALL) err=%v", err)
	}
	if tr.IOCount() != io {
		t.Fatal("Reset did I/O")
	}
	if d.sess.Poller().Due() != session.AxisAzimuth {
		t.Fatal("Reset did not rewind the cursor")
	}
}

type recordingHandler struct {
	completed []string
	errors    []error
}

func (h *recordingHandler) OnDeviceConnected(string)            {}
func (h *recordingHandler) OnDeviceDisconnected(string, string) {}
func (h *recordingHandler) OnDeviceError(_ string, err error)   { h.errors = append(h.errors, err) }
func (h *recordingHandler) OnOperationCompleted(_ string, id string, _ *driver.OperationResult) {
	h.completed = append(h.completed, id)
}

func TestExecuteOperation(t *testing.T) {
	dev := fake.NewPelcoDevice(0x01)
	d := newDriver(t, dev.Transport())
	h := &recordingHandler{}
	d.SetEventHandler(h)
	ctx := context.Background()

	set := model.NewOperation(uuid.New(), model.OperationTypeSetPosition,
		model.JSONObject{"azimuth": 270.0, "elevation": 30.0})
	if _, err := d.ExecuteOperation(ctx, set); err != nil {
		t.Fatalf("ExecuteOperation(SET_POSITION) err=%v", err)
	}

	get := model.NewOperation(uuid.New(), model.OperationTypeGetPosition, nil)
	res, err := d.ExecuteOperation(ctx, get)
	if err != nil {
		t.Fatalf("ExecuteOperation(GET_POSITION) err=%v", err)
	}
	if !res.Success || res.Data["azimuth"] != 270.0 {
		t.Fatalf("result=%+v", res)
	}

	move := model.NewOperation(uuid.New(), model.OperationTypeMove,
		model.JSONObject{"direction": "up", "speed": 99.0})
	if _, err := d.ExecuteOperation(ctx, move); !errors.Is(err, driver.ErrInvalidArgument) {
		t.Fatalf("ExecuteOperation(MOVE) err=%v", err)
	}

	freq := model.NewOperation(uuid.New(), model.OperationTypeSetFrequency, model.JSONObject{"frequency": 7e6})
	if _, err := d.ExecuteOperation(ctx, freq); !errors.Is(err, driver.ErrNotSupported) {
		t.Fatalf("ExecuteOperation(SET_FREQUENCY) err=%v", err)
	}

	if len(h.completed) != 2 || len(h.errors) != 2 {
		t.Fatalf("events completed=%d errors=%d", len(h.completed), len(h.errors))
	}
}
