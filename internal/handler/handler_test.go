package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"hamlink/internal/caps"
	"hamlink/internal/config"
	internalDriver "hamlink/internal/driver"
	"hamlink/internal/model"
	"hamlink/internal/protocol"
	"hamlink/internal/protocol/fake"
	"hamlink/internal/service"
)

type testServer struct {
	srv *httptest.Server
	ws  *WebSocketHandler
	bus *EventBus
}

// newTestServer wires the handlers the way the router does, with every
// session talking to tr
func newTestServer(t *testing.T, tr protocol.Transport) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	// stream goroutines can outlive the test, so no zaptest logger here
	logger := zap.NewNop()
	cfg := &config.Config{
		App: config.AppConfig{Name: "hamlink", Version: "test"},
		Device: config.DeviceConfig{
			OperationTimeout:       2 * time.Second,
			PositionStreamInterval: 10 * time.Millisecond,
		},
		Security: config.SecurityConfig{AllowedOrigins: []string{"http://localhost:3000"}},
	}

	registry := internalDriver.NewRegistry(logger)
	if err := internalDriver.RegisterDefaultDrivers(registry, logger); err != nil {
		t.Fatalf("RegisterDefaultDrivers() err=%v", err)
	}

	bus := NewEventBus(logger)
	ds := service.NewDeviceService(registry, cfg, bus, logger).
		WithTransportFactory(func(*caps.Descriptor, map[string]interface{}, *zap.Logger) (protocol.Transport, error) {
			return tr, nil
		})

	ws := NewWebSocketHandler(ds, bus, cfg, logger)

	router := gin.New()
	NewHealthHandler(ds, cfg, logger).RegisterRoutes(&router.RouterGroup)
	api := router.Group("/api/v1")
	NewDeviceHandler(ds, logger).RegisterRoutes(api)
	NewOperationHandler(ds, logger).RegisterRoutes(api)
	NewDiscoveryHandler(service.NewDiscoveryService(registry, logger), logger).RegisterRoutes(api)
	ws.RegisterRoutes(router.Group("/ws"))

	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		ws.connections.CloseAll()
		srv.Close()
		ds.CloseAll("test done")
	})
	return &testServer{srv: srv, ws: ws, bus: bus}
}

type apiResponse struct {
	Success bool                   `json:"success"`
	Data    map[string]interface{} `json:"data"`
	Error   *struct {
		Code string `json:"code"`
	} `json:"error"`
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}) (int, apiResponse) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, ts.srv.URL+path, reader)
	if err != nil {
		t.Fatalf("NewRequest() err=%v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s err=%v", method, path, err)
	}
	defer resp.Body.Close()

	var out apiResponse
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func (ts *testServer) open(t *testing.T, brand, deviceModel string) string {
	t.Helper()
	status, resp := ts.do(t, http.MethodPost, "/api/v1/sessions", map[string]interface{}{
		"brand": brand,
		"model": deviceModel,
		"port":  "/dev/ttyUSB0",
	})
	if status != http.StatusCreated {
		t.Fatalf("open session status=%d resp=%+v", status, resp)
	}
	id, _ := resp.Data["id"].(string)
	if id == "" {
		t.Fatalf("open session returned no id: %+v", resp.Data)
	}
	return id
}

func TestRotatorRoutes(t *testing.T) {
	stub := fake.NewPelcoDevice(0x01)
	ts := newTestServer(t, stub.Transport())
	id := ts.open(t, "yaan", "YL3040")

	status, _ := ts.do(t, http.MethodPut, "/api/v1/sessions/"+id+"/position", map[string]float64{"azimuth": 120, "elevation": 30})
	if status != http.StatusOK {
		t.Fatalf("PUT position status=%d", status)
	}

	status, resp := ts.do(t, http.MethodGet, "/api/v1/sessions/"+id+"/position", nil)
	if status != http.StatusOK {
		t.Fatalf("GET position status=%d", status)
	}
	result, _ := resp.Data["result"].(map[string]interface{})
	if result["azimuth"] != 120.0 {
		t.Fatalf("GET position result=%v", result)
	}

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
		want   int
	}{
		{"stop", http.MethodPost, "/stop", nil, http.StatusOK},
		{"move", http.MethodPost, "/move", map[string]interface{}{"direction": "left", "speed": 20}, http.StatusOK},
		{"move speed out of range", http.MethodPost, "/move", map[string]interface{}{"direction": "left", "speed": 99}, http.StatusBadRequest},
		{"reset without body", http.MethodPost, "/reset", nil, http.StatusOK},
		{"position out of range", http.MethodPut, "/position", map[string]float64{"azimuth": 400, "elevation": 0}, http.StatusBadRequest},
		{"position missing elevation", http.MethodPut, "/position", map[string]float64{"azimuth": 10}, http.StatusBadRequest},
		{"rig op on rotator", http.MethodPut, "/frequency", map[string]float64{"frequency": 7074000}, http.StatusNotImplemented},
		{"generic op", http.MethodPost, "/operations", map[string]interface{}{"operation_type": "park"}, http.StatusOK},
		{"unknown op", http.MethodPost, "/operations", map[string]interface{}{"operation_type": "SPIN"}, http.StatusNotImplemented},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, resp := ts.do(t, tt.method, "/api/v1/sessions/"+id+tt.path, tt.body)
			if status != tt.want {
				t.Fatalf("status=%d, want %d (resp=%+v)", status, tt.want, resp)
			}
		})
	}

	status, _ = ts.do(t, http.MethodGet, "/api/v1/sessions/"+id+"/health", nil)
	if status != http.StatusOK {
		t.Fatalf("GET health status=%d", status)
	}

	status, _ = ts.do(t, http.MethodDelete, "/api/v1/sessions/"+id, nil)
	if status != http.StatusOK {
		t.Fatalf("DELETE status=%d", status)
	}
	status, resp = ts.do(t, http.MethodGet, "/api/v1/sessions/"+id, nil)
	if status != http.StatusNotFound || resp.Error == nil || resp.Error.Code != "NOT_FOUND" {
		t.Fatalf("GET closed session status=%d resp=%+v", status, resp)
	}
}

func TestRigRoutes(t *testing.T) {
	rig := fake.NewYaesuRig()
	ts := newTestServer(t, rig.Transport())
	id := ts.open(t, "YAESU", "FT-891")

	status, _ := ts.do(t, http.MethodPut, "/api/v1/sessions/"+id+"/frequency", map[string]float64{"frequency": 7074000})
	if status != http.StatusOK {
		t.Fatalf("PUT frequency status=%d", status)
	}

	status, resp := ts.do(t, http.MethodGet, "/api/v1/sessions/"+id+"/frequency", nil)
	result, _ := resp.Data["result"].(map[string]interface{})
	if status != http.StatusOK || result["frequency"] != 7074000.0 {
		t.Fatalf("GET frequency status=%d result=%v", status, result)
	}

	status, _ = ts.do(t, http.MethodPut, "/api/v1/sessions/"+id+"/levels/af", map[string]float64{"value": 0.5})
	if status != http.StatusOK {
		t.Fatalf("PUT level status=%d", status)
	}

	status, _ = ts.do(t, http.MethodPut, "/api/v1/sessions/"+id+"/mode", map[string]string{"mode": "WFM"})
	if status != http.StatusBadRequest {
		t.Fatalf("PUT unknown mode status=%d, want 400", status)
	}

	status, _ = ts.do(t, http.MethodPut, "/api/v1/sessions/"+id+"/position", map[string]float64{"azimuth": 1, "elevation": 1})
	if status != http.StatusNotImplemented {
		t.Fatalf("PUT position on rig status=%d, want 501", status)
	}

	status, resp = ts.do(t, http.MethodPut, "/api/v1/sessions/"+id+"/ptt", map[string]bool{"ptt": true})
	if status != http.StatusOK {
		t.Fatalf("PUT ptt status=%d resp=%+v", status, resp)
	}
}

func TestSessionErrors(t *testing.T) {
	ts := newTestServer(t, fake.NewTransport(nil))

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
		want   int
	}{
		{"bad id", http.MethodGet, "/api/v1/sessions/not-a-uuid", nil, http.StatusBadRequest},
		{"unknown id", http.MethodGet, "/api/v1/sessions/6f1c0a52-5d2e-4c38-9d4c-0a7f3b1e2c11", nil, http.StatusNotFound},
		{"unknown model", http.MethodPost, "/api/v1/sessions", map[string]string{"brand": "KENWOOD", "model": "TS-590", "port": "/dev/x"}, http.StatusNotImplemented},
		{"missing port", http.MethodPost, "/api/v1/sessions", map[string]string{"brand": "YAAN", "model": "YL3040"}, http.StatusBadRequest},
		{"malformed body", http.MethodPost, "/api/v1/sessions", "{", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if status, resp := ts.do(t, tt.method, tt.path, tt.body); status != tt.want {
				t.Fatalf("status=%d, want %d (resp=%+v)", status, tt.want, resp)
			}
		})
	}

	// a silent rotator exhausts its retries
	id := ts.open(t, "YAAN", "YL3040")
	status, resp := ts.do(t, http.MethodGet, "/api/v1/sessions/"+id+"/position", nil)
	if status != http.StatusGatewayTimeout || resp.Error == nil || resp.Error.Code != "DEVICE_TIMEOUT" {
		t.Fatalf("silent device status=%d resp=%+v", status, resp)
	}
}

func TestModelRoutes(t *testing.T) {
	ts := newTestServer(t, fake.NewTransport(nil))

	status, resp := ts.do(t, http.MethodGet, "/api/v1/models/YAESU/FT-891/caps", nil)
	if status != http.StatusOK {
		t.Fatalf("caps status=%d", status)
	}
	view, _ := resp.Data["caps"].(map[string]interface{})
	if view["model"] != "FT-891" || view["type"] != "RIG" {
		t.Fatalf("caps view=%v", view)
	}

	res, err := http.Get(ts.srv.URL + "/api/v1/models/YAAN/YL3040/caps?format=yaml")
	if err != nil {
		t.Fatalf("GET yaml err=%v", err)
	}
	defer res.Body.Close()
	var buf bytes.Buffer
	buf.ReadFrom(res.Body)
	if !strings.Contains(buf.String(), "model: YL3040") || !strings.Contains(buf.String(), "0xFF") {
		t.Fatalf("yaml dump=%s", buf.String())
	}

	status, resp = ts.do(t, http.MethodGet, "/api/v1/discovery/supported", nil)
	if status != http.StatusOK || resp.Data["total"] != 3.0 {
		t.Fatalf("supported status=%d data=%v", status, resp.Data)
	}

	status, _ = ts.do(t, http.MethodGet, "/health", nil)
	if status != http.StatusOK {
		t.Fatalf("health status=%d", status)
	}
}

func dial(t *testing.T, ts *testServer, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + path
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("Dial(%s) err=%v status=%d", path, err, status)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil reads messages until one of type want arrives
func readUntil(t *testing.T, conn *websocket.Conn, want string) WebSocketMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var msg WebSocketMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("waiting for %q: %v", want, err)
		}
		if msg.Type == want {
			return msg
		}
	}
}

func TestPositionStream(t *testing.T) {
	stub := fake.NewPelcoDevice(0x01)
	stub.Azimuth, stub.Elevation = 27000, 1500
	ts := newTestServer(t, stub.Transport())
	id := ts.open(t, "YAAN", "YL3040")

	conn := dial(t, ts, "/ws/sessions/"+id+"/position")

	msg := readUntil(t, conn, "position")
	data, _ := msg.Data.(map[string]interface{})
	if data["azimuth"] != 270.0 {
		t.Fatalf("first position=%v, want azimuth 270", data)
	}

	// the second poll fills in elevation
	msg = readUntil(t, conn, "position")
	data, _ = msg.Data.(map[string]interface{})
	if data["elevation"] != 15.0 {
		t.Fatalf("second position=%v, want elevation 15", data)
	}

	if err := conn.WriteJSON(WebSocketMessage{
		Type:      "operation",
		RequestID: "r1",
		Data:      map[string]interface{}{"operation_type": "stop"},
	}); err != nil {
		t.Fatalf("WriteJSON() err=%v", err)
	}
	msg = readUntil(t, conn, "operation_result")
	if msg.RequestID != "r1" {
		t.Fatalf("operation_result request id=%q", msg.RequestID)
	}
}

func TestPositionStreamRejects(t *testing.T) {
	ts := newTestServer(t, fake.NewYaesuRig().Transport())
	id := ts.open(t, "YAESU", "FT-891")

	url := "ws" + strings.TrimPrefix(ts.srv.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(url+"/ws/sessions/"+id+"/position", nil)
	if err == nil || resp == nil || resp.StatusCode != http.StatusNotImplemented {
		t.Fatalf("rig position stream err=%v resp=%v, want 501", err, resp)
	}

	_, resp, err = websocket.DefaultDialer.Dial(url+"/ws/sessions/6f1c0a52-5d2e-4c38-9d4c-0a7f3b1e2c11/position", nil)
	if err == nil || resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown session stream err=%v resp=%v, want 404", err, resp)
	}
}

func TestEventStream(t *testing.T) {
	ts := newTestServer(t, fake.NewTransport(nil))
	conn := dial(t, ts, "/ws/events")

	// a pong proves the client is registered
	conn.WriteJSON(WebSocketMessage{Type: "ping"})
	readUntil(t, conn, "pong")

	status, resp := ts.do(t, http.MethodGet, "/ws/stats", nil)
	if status != http.StatusOK || resp.Data["total_connections"] != float64(1) {
		t.Fatalf("stats = %d %v", status, resp.Data)
	}

	conn.WriteJSON(WebSocketMessage{Type: "subscribe", Data: map[string]interface{}{"topic": string(model.EventDeviceError)}})
	readUntil(t, conn, "subscribed")

	ts.ws.BroadcastEvent(model.NewDeviceEvent(model.EventDeviceConnected, "s1", nil))
	ts.ws.BroadcastEvent(model.NewDeviceEvent(model.EventDeviceError, "s1", model.JSONObject{"error": "boom"}))

	msg := readUntil(t, conn, "device_event")
	data, _ := msg.Data.(map[string]interface{})
	if data["event_type"] != string(model.EventDeviceError) {
		t.Fatalf("event=%v, want only the subscribed DEVICE_ERROR", data)
	}
}

func TestEventBus(t *testing.T) {
	bus := NewEventBus(zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	all := bus.Subscribe(AllEvents)
	errs := bus.Subscribe(model.EventDeviceError)
	go bus.Start(ctx)

	bus.Publish(model.NewDeviceEvent(model.EventDeviceConnected, "s1", nil))
	bus.Publish(model.NewDeviceEvent(model.EventDeviceError, "s1", nil))

	for _, want := range []model.EventType{model.EventDeviceConnected, model.EventDeviceError} {
		select {
		case e := <-all:
			if e.EventType != want {
				t.Fatalf("all subscriber got %s, want %s", e.EventType, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("all subscriber missed %s", want)
		}
	}

	select {
	case e := <-errs:
		if e.EventType != model.EventDeviceError {
			t.Fatalf("error subscriber got %s", e.EventType)
		}
	case <-time.After(time.Second):
		t.Fatalf("error subscriber missed event")
	}

	bus.Unsubscribe(errs)
	if _, ok := <-errs; ok {
		t.Fatalf("unsubscribed channel still open")
	}
}

func TestOriginChecker(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"no origin header", []string{"http://a"}, "", true},
		{"listed", []string{"http://a", "http://b"}, "http://b", true},
		{"case insensitive", []string{"http://A"}, "http://a", true},
		{"unlisted", []string{"http://a"}, "http://evil", false},
		{"wildcard", []string{"*"}, "http://any", true},
		{"empty list", nil, "http://a", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/ws/events", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			if got := originChecker(tt.allowed)(r); got != tt.want {
				t.Fatalf("originChecker()=%v, want %v", got, tt.want)
			}
		})
	}
}
