package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"hamlink/internal/caps"
	"hamlink/internal/config"
	internalDriver "hamlink/internal/driver"
	"hamlink/internal/model"
	"hamlink/internal/protocol"
	"hamlink/internal/protocol/fake"
	"hamlink/pkg/driver"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.DeviceEvent
}

func (p *recordingPublisher) Publish(event model.DeviceEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) count(t model.EventType) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.EventType == t {
			n++
		}
	}
	return n
}

func testConfig() *config.Config {
	return &config.Config{
		Device: config.DeviceConfig{
			OperationTimeout:       2 * time.Second,
			PositionStreamInterval: 10 * time.Millisecond,
			DefaultSerial:          config.SerialPortConfig{DataBits: 8, StopBits: 1, Parity: "none"},
		},
	}
}

// newTestService wires the default registry to a transport factory that
// returns tr for every session
func newTestService(t *testing.T, tr protocol.Transport) (*DeviceService, *recordingPublisher) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	registry := internalDriver.NewRegistry(logger)
	if err := internalDriver.RegisterDefaultDrivers(registry, logger); err != nil {
		t.Fatalf("RegisterDefaultDrivers() err=%v", err)
	}

	pub := &recordingPublisher{}
	ds := NewDeviceService(registry, testConfig(), pub, logger).
		WithTransportFactory(func(*caps.Descriptor, map[string]interface{}, *zap.Logger) (protocol.Transport, error) {
			return tr, nil
		})
	return ds, pub
}

func openRotator(t *testing.T, ds *DeviceService) *model.Device {
	t.Helper()
	dev, err := ds.OpenSession(context.Background(), &OpenSessionRequest{
		Brand: model.BrandYaan,
		Model: "YL3040",
		Port:  "/dev/ttyUSB0",
	})
	if err != nil {
		t.Fatalf("OpenSession() err=%v", err)
	}
	return dev
}

func TestOpenExecuteClose(t *testing.T) {
	stub := fake.NewPelcoDevice(0x01)
	ds, pub := newTestService(t, stub.Transport())
	ctx := context.Background()

	dev := openRotator(t, ds)
	if dev.Status != model.DeviceStatusOnline || dev.DeviceType != model.DeviceTypeRotator {
		t.Fatalf("OpenSession() device=%+v", dev)
	}
	if dev.ConnectionConfig["data_bits"] != 8 {
		t.Fatalf("connection config=%v, want default data bits", dev.ConnectionConfig)
	}
	if len(ds.ListSessions()) != 1 {
		t.Fatalf("ListSessions()=%d, want 1", len(ds.ListSessions()))
	}

	if _, err := ds.Execute(ctx, dev.ID, model.OperationTypeSetPosition, model.JSONObject{"azimuth": 180.0, "elevation": 45.0}); err != nil {
		t.Fatalf("Execute(SET_POSITION) err=%v", err)
	}
	resp, err := ds.Execute(ctx, dev.ID, model.OperationTypeGetPosition, nil)
	if err != nil {
		t.Fatalf("Execute(GET_POSITION) err=%v", err)
	}
	if resp.Result["azimuth"] != 180.0 || !resp.Success {
		t.Fatalf("GET_POSITION response=%+v", resp)
	}

	got, err := ds.GetSession(dev.ID)
	if err != nil {
		t.Fatalf("GetSession() err=%v", err)
	}
	if got.LastActivity == nil {
		t.Fatalf("GetSession() LastActivity not set")
	}

	health, err := ds.Health(dev.ID)
	if err != nil {
		t.Fatalf("Health() err=%v", err)
	}
	if health.Metrics.TotalOperations != 3 || health.HealthScore != 100 {
		t.Fatalf("Health() metrics=%+v", health.Metrics)
	}

	if err := ds.CloseSession(dev.ID, "test"); err != nil {
		t.Fatalf("CloseSession() err=%v", err)
	}
	if _, err := ds.GetSession(dev.ID); !errors.Is(err, driver.ErrSessionNotFound) {
		t.Fatalf("GetSession() after close err=%v", err)
	}
	if err := ds.CloseSession(dev.ID, "test"); !errors.Is(err, driver.ErrSessionNotFound) {
		t.Fatalf("second CloseSession() err=%v", err)
	}

	if pub.count(model.EventDeviceConnected) != 1 || pub.count(model.EventDeviceDisconnected) != 1 {
		t.Fatalf("connection events=%+v", pub.events)
	}
	if pub.count(model.EventOperationCompleted) != 2 || pub.count(model.EventPositionUpdate) != 1 {
		t.Fatalf("operation events=%+v", pub.events)
	}
}

func TestOpenSessionRejects(t *testing.T) {
	tests := []struct {
		name string
		req  OpenSessionRequest
		want error
	}{
		{"missing port", OpenSessionRequest{Brand: model.BrandYaan, Model: "YL3040"}, driver.ErrInvalidArgument},
		{"address range", OpenSessionRequest{Brand: model.BrandYaan, Model: "YL3040", Port: "/dev/x", Address: 300}, driver.ErrInvalidArgument},
		{"baud outside model range", OpenSessionRequest{Brand: model.BrandYaan, Model: "YL3040", Port: "/dev/x", BaudRate: 4800}, driver.ErrInvalidArgument},
		{"bad parity", OpenSessionRequest{Brand: model.BrandYaan, Model: "YL3040", Port: "/dev/x", Parity: "sometimes"}, driver.ErrInvalidArgument},
		{"unknown model", OpenSessionRequest{Brand: model.BrandYaesu, Model: "FT-1000", Port: "/dev/x"}, driver.ErrNotSupported},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds, _ := newTestService(t, fake.NewTransport(nil))
			if _, err := ds.OpenSession(context.Background(), &tt.req); !errors.Is(err, tt.want) {
				t.Fatalf("OpenSession() err=%v, want %v", err, tt.want)
			}
			if len(ds.ListSessions()) != 0 {
				t.Fatalf("rejected session was stored")
			}
		})
	}
}

func TestExecuteUnknownSession(t *testing.T) {
	ds, _ := newTestService(t, fake.NewTransport(nil))

	_, err := ds.Execute(context.Background(), uuid.New(), model.OperationTypeStop, nil)
	if !errors.Is(err, driver.ErrSessionNotFound) {
		t.Fatalf("Execute() err=%v, want ErrSessionNotFound", err)
	}
	if _, err := ds.Health(uuid.New()); !errors.Is(err, driver.ErrSessionNotFound) {
		t.Fatalf("Health() err=%v, want ErrSessionNotFound", err)
	}
}

func TestExecuteFailureMarksDeviceError(t *testing.T) {
	ds, pub := newTestService(t, fake.NewTransport(nil))
	dev := openRotator(t, ds)

	_, err := ds.Execute(context.Background(), dev.ID, model.OperationTypeGetPosition, nil)
	if !errors.Is(err, driver.ErrRetriesExhausted) {
		t.Fatalf("Execute() err=%v, want ErrRetriesExhausted", err)
	}

	got, _ := ds.GetSession(dev.ID)
	if got.Status != model.DeviceStatusError {
		t.Fatalf("status=%s, want ERROR", got.Status)
	}
	if pub.count(model.EventDeviceError) != 1 {
		t.Fatalf("device error events=%d, want 1", pub.count(model.EventDeviceError))
	}

	// argument errors leave the device status alone
	stub := fake.NewPelcoDevice(0x01)
	ds, _ = newTestService(t, stub.Transport())
	dev = openRotator(t, ds)
	if _, err := ds.Execute(context.Background(), dev.ID, model.OperationTypeMove, model.JSONObject{"direction": "UP", "speed": 65}); !errors.Is(err, driver.ErrInvalidArgument) {
		t.Fatalf("Execute(MOVE) err=%v", err)
	}
	got, _ = ds.GetSession(dev.ID)
	if got.Status != model.DeviceStatusOnline {
		t.Fatalf("status=%s, want ONLINE", got.Status)
	}
}

func TestConcurrentPollsAreSerialized(t *testing.T) {
	stub := fake.NewPelcoDevice(0x01)
	ds, _ := newTestService(t, stub.Transport())
	dev := openRotator(t, ds)

	const polls = 10
	var wg sync.WaitGroup
	errs := make(chan error, polls)
	for i := 0; i < polls; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ds.Execute(context.Background(), dev.ID, model.OperationTypeGetPosition, nil)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("Execute() err=%v", err)
		}
	}

	var az, el int
	for _, cmd := range stub.Commands() {
		switch cmd[3] {
		case 0x51:
			az++
		case 0x53:
			el++
		}
	}
	if az != polls/2 || el != polls/2 {
		t.Fatalf("azimuth queries=%d elevation queries=%d, want %d each", az, el, polls/2)
	}
}

func TestCapabilities(t *testing.T) {
	ds, _ := newTestService(t, fake.NewTransport(nil))

	mc, err := ds.Capabilities(model.BrandYaesu, "FT-891")
	if err != nil {
		t.Fatalf("Capabilities() err=%v", err)
	}
	found := false
	for _, op := range mc.Operations {
		if op == model.OperationTypeSetPTT {
			found = true
		}
		if op == model.OperationTypeSetPosition {
			t.Fatalf("rig advertises SET_POSITION")
		}
	}
	if !found {
		t.Fatalf("Operations()=%v, want SET_PTT", mc.Operations)
	}

	if _, err := ds.Capabilities("KENWOOD", "TS-590"); !errors.Is(err, driver.ErrNotSupported) {
		t.Fatalf("Capabilities(KENWOOD) err=%v", err)
	}
}

func TestCloseAll(t *testing.T) {
	ds, _ := newTestService(t, fake.NewPelcoDevice(0x01).Transport())
	openRotator(t, ds)
	openRotator(t, ds)

	ds.CloseAll("shutdown")
	if n := len(ds.ListSessions()); n != 0 {
		t.Fatalf("ListSessions() after CloseAll=%d", n)
	}
}

// gatedTransport parks the first write after arm until release is closed
type gatedTransport struct {
	*fake.Transport
	armed   atomic.Bool
	entered chan struct{}
	release chan struct{}
}

func (g *gatedTransport) Write(data []byte) error {
	if g.armed.CompareAndSwap(true, false) {
		close(g.entered)
		<-g.release
	}
	return g.Transport.Write(data)
}

func TestListSessionsDuringTransaction(t *testing.T) {
	stub := fake.NewPelcoDevice(0x01)
	tr := &gatedTransport{
		Transport: stub.Transport(),
		entered:   make(chan struct{}),
		release:   make(chan struct{}),
	}
	ds, _ := newTestService(t, tr)
	dev := openRotator(t, ds)

	tr.armed.Store(true)
	done := make(chan error, 1)
	go func() {
		_, err := ds.Execute(context.Background(), dev.ID, model.OperationTypeGetPosition, nil)
		done <- err
	}()
	<-tr.entered

	listed := make(chan int, 1)
	go func() {
		if _, err := ds.GetSession(dev.ID); err != nil {
			t.Errorf("GetSession() err=%v", err)
		}
		listed <- len(ds.ListSessions())
	}()

	select {
	case n := <-listed:
		if n != 1 {
			t.Errorf("ListSessions() = %d sessions, want 1", n)
		}
	case <-time.After(time.Second):
		t.Error("ListSessions() blocked behind an in-flight transaction")
	}

	close(tr.release)
	if err := <-done; err != nil {
		t.Fatalf("Execute() err=%v", err)
	}
}
