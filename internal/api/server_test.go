package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sporelab/mycelia-core/internal/command"
	"github.com/sporelab/mycelia-core/internal/device"
	"github.com/sporelab/mycelia-core/internal/farm"
	"github.com/sporelab/mycelia-core/internal/infrastructure/config"
	"github.com/sporelab/mycelia-core/internal/infrastructure/logging"
	"github.com/sporelab/mycelia-core/internal/notification"
	"github.com/sporelab/mycelia-core/internal/telemetry"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// ─── Mocks ───────────────────────────────────────────────────────────────────

type stubFarms struct{}

func (stubFarms) GetFarm(_ context.Context, id string) (*farm.Farm, error) {
	if id != "farm-1" {
		return nil, farm.ErrFarmNotFound
	}
	return &farm.Farm{ID: "farm-1", Name: "North Site"}, nil
}

func (stubFarms) GetRoom(_ context.Context, id string) (*farm.Room, error) {
	if id != "room-3" {
		return nil, farm.ErrRoomNotFound
	}
	return &farm.Room{ID: "room-3", FarmID: "farm-1", Name: "Fruiting 3"}, nil
}

func (stubFarms) ListFarms(_ context.Context) ([]farm.Farm, error) {
	return []farm.Farm{{ID: "farm-1", Name: "North Site"}}, nil
}

func (stubFarms) ListRooms(_ context.Context, _ string) ([]farm.Room, error) {
	return []farm.Room{{ID: "room-3", FarmID: "farm-1", Name: "Fruiting 3"}}, nil
}

type stubDevices struct{}

func (stubDevices) GetByID(_ context.Context, id string) (*device.Device, error) {
	if id != "sensor-7" {
		return nil, device.ErrDeviceNotFound
	}
	return &device.Device{ID: "sensor-7", RoomID: "room-3", FarmID: "farm-1", Name: "Combo Sensor", Status: device.StatusOnline}, nil
}

func (s stubDevices) List(ctx context.Context) ([]device.Device, error) {
	d, _ := s.GetByID(ctx, "sensor-7")
	return []device.Device{*d}, nil
}

func (stubDevices) ListByRoom(_ context.Context, _ string) ([]device.Device, error) {
	return nil, nil
}

func (stubDevices) ListByStatus(_ context.Context, _ device.Status) ([]device.Device, error) {
	return nil, nil
}

func (stubDevices) Create(_ context.Context, _ *device.Device) error { return nil }
func (stubDevices) UpdateStatus(_ context.Context, _ string, _ device.Status, _ *time.Time) error {
	return nil
}
func (stubDevices) UpdateFirmware(_ context.Context, _ string, _ string) error { return nil }

type stubReadings struct{}

func (stubReadings) InsertWithLiveness(_ context.Context, _ *telemetry.Reading, _ time.Time) error {
	return nil
}

func (stubReadings) LatestByRoom(_ context.Context, _ string) ([]telemetry.Reading, error) {
	return []telemetry.Reading{{ID: "r1", DeviceID: "sensor-7", RoomID: "room-3", FarmID: "farm-1"}}, nil
}

func (stubReadings) LatestByDevice(_ context.Context, _ string) (*telemetry.Reading, error) {
	return nil, telemetry.ErrReadingNotFound
}

func (stubReadings) ListByDevice(_ context.Context, _ string, _ time.Time, _ int) ([]telemetry.Reading, error) {
	return nil, nil
}

type stubCommands struct {
	lastIssuedBy string
}

func (s *stubCommands) CreateAndIssue(_ context.Context, deviceID, name string, params map[string]any, issuedBy string) (*command.Command, error) {
	if deviceID != "sensor-7" && deviceID != "humidifier-2" {
		return nil, device.ErrDeviceNotFound
	}
	s.lastIssuedBy = issuedBy
	return &command.Command{
		ID: "cmd-1", DeviceID: deviceID, RoomID: "room-3", FarmID: "farm-1",
		Command: name, Params: params, IssuedBy: issuedBy, Status: command.StatusSent,
	}, nil
}

func (*stubCommands) Get(_ context.Context, id string) (*command.Command, error) {
	if id != "cmd-1" {
		return nil, command.ErrCommandNotFound
	}
	return &command.Command{ID: "cmd-1", Status: command.StatusSent}, nil
}

func (*stubCommands) ListByDevice(_ context.Context, _ string, _ int) ([]command.Command, error) {
	return nil, nil
}

type stubEvaluator struct{}

func (stubEvaluator) EvaluateRoom(_ context.Context, _ string) (int, error) {
	return 2, nil
}

type stubNotifications struct {
	acked map[string]bool
}

func (s *stubNotifications) Insert(_ context.Context, _ *notification.Notification) error { return nil }

func (s *stubNotifications) GetByID(_ context.Context, id string) (*notification.Notification, error) {
	if id != "n1" {
		return nil, notification.ErrNotificationNotFound
	}
	return &notification.Notification{ID: "n1", Level: notification.LevelWarning, Message: "test"}, nil
}

func (s *stubNotifications) List(_ context.Context, _ bool, _ int) ([]notification.Notification, error) {
	return nil, nil
}

func (s *stubNotifications) ListByFarm(_ context.Context, _ string, _ bool, _ int) ([]notification.Notification, error) {
	return nil, nil
}

func (s *stubNotifications) Ack(_ context.Context, id string, _ string, _ time.Time) error {
	if id != "n1" {
		return notification.ErrNotificationNotFound
	}
	if s.acked[id] {
		return notification.ErrAlreadyAcked
	}
	s.acked[id] = true
	return nil
}

// ─── Fixtures ────────────────────────────────────────────────────────────────

func newTestServer(t *testing.T) (*Server, *stubCommands, *stubNotifications) {
	t.Helper()

	logger := logging.New(config.LoggingConfig{Level: "error", Format: "text"}, "test")
	commands := &stubCommands{}
	notifications := &stubNotifications{acked: map[string]bool{}}

	registry := device.NewRegistry(stubDevices{})

	s, err := New(Deps{
		Config:        config.APIConfig{Host: "127.0.0.1", Port: 0},
		WS:            config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10},
		Security:      config.SecurityConfig{JWT: config.JWTConfig{Secret: testSecret}},
		Logger:        logger,
		Farms:         stubFarms{},
		Devices:       stubDevices{},
		Registry:      registry,
		Readings:      stubReadings{},
		Commands:      commands,
		Evaluator:     stubEvaluator{},
		Notifications: notifications,
		Version:       "test",
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	s.hub = NewHub(s.wsCfg, logger)

	return s, commands, notifications
}

func userToken(t *testing.T, sub string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": sub,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return signed
}

func doRequest(t *testing.T, s *Server, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	s.buildRouter().ServeHTTP(rec, req)
	return rec
}

// ─── Tests ───────────────────────────────────────────────────────────────────

func TestHealthNoAuth(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/api/v1/health", "", "")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestProtectedRouteRequiresToken(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/api/v1/devices", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}

	rec = doRequest(t, s, http.MethodGet, "/api/v1/devices", "not-a-jwt", "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status with bad token = %d, want 401", rec.Code)
	}
}

func TestGetDevice(t *testing.T) {
	s, _, _ := newTestServer(t)
	token := userToken(t, "user-42")

	rec := doRequest(t, s, http.MethodGet, "/api/v1/devices/sensor-7", token, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var d device.Device
	if err := json.Unmarshal(rec.Body.Bytes(), &d); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if d.ID != "sensor-7" || d.Status != device.StatusOnline {
		t.Errorf("device = %+v", d)
	}

	rec = doRequest(t, s, http.MethodGet, "/api/v1/devices/ghost", token, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown device status = %d, want 404", rec.Code)
	}
}

func TestIssueCommandRecordsPrincipal(t *testing.T) {
	s, commands, _ := newTestServer(t)
	token := userToken(t, "user-42")

	rec := doRequest(t, s, http.MethodPost, "/api/v1/devices/humidifier-2/commands", token,
		`{"command": "set_humidity", "params": {"target_pct": 90}}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}
	if commands.lastIssuedBy != "user-42" {
		t.Errorf("issuedBy = %q, want user-42", commands.lastIssuedBy)
	}
}

func TestIssueCommandValidation(t *testing.T) {
	s, _, _ := newTestServer(t)
	token := userToken(t, "user-42")

	rec := doRequest(t, s, http.MethodPost, "/api/v1/devices/humidifier-2/commands", token, `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty command status = %d, want 400", rec.Code)
	}

	rec = doRequest(t, s, http.MethodPost, "/api/v1/devices/ghost/commands", token,
		`{"command": "set_humidity"}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown device status = %d, want 404", rec.Code)
	}
}

func TestEvaluateRoom(t *testing.T) {
	s, _, _ := newTestServer(t)
	token := userToken(t, "user-42")

	rec := doRequest(t, s, http.MethodPost, "/api/v1/rooms/room-3/evaluate", token, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if body["rules_fired"] != float64(2) {
		t.Errorf("rules_fired = %v, want 2", body["rules_fired"])
	}

	rec = doRequest(t, s, http.MethodPost, "/api/v1/rooms/ghost/evaluate", token, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown room status = %d, want 404", rec.Code)
	}
}

func TestAckNotification(t *testing.T) {
	s, _, _ := newTestServer(t)
	token := userToken(t, "user-42")

	rec := doRequest(t, s, http.MethodPost, "/api/v1/notifications/n1/ack", token, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("first ack status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, s, http.MethodPost, "/api/v1/notifications/n1/ack", token, "")
	if rec.Code != http.StatusConflict {
		t.Errorf("second ack status = %d, want 409", rec.Code)
	}

	rec = doRequest(t, s, http.MethodPost, "/api/v1/notifications/ghost/ack", token, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown notification status = %d, want 404", rec.Code)
	}
}
