package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesanet/scale-telemetry/internal/bridge"
	"github.com/pesanet/scale-telemetry/internal/infrastructure/config"
	"github.com/pesanet/scale-telemetry/internal/infrastructure/logging"
	"github.com/pesanet/scale-telemetry/internal/journal"
	"github.com/pesanet/scale-telemetry/internal/scale"
)

type fakeDevices struct {
	statuses []scale.DeviceStatus
	stats    scale.Stats
}

func (f *fakeDevices) Snapshot() []scale.DeviceStatus { return f.statuses }

func (f *fakeDevices) Status(id string) (scale.DeviceStatus, bool) {
	for _, st := range f.statuses {
		if st.Descriptor.ID == id {
			return st, true
		}
	}
	return scale.DeviceStatus{}, false
}

func (f *fakeDevices) Stats() scale.Stats { return f.stats }

type fakeRouter struct {
	registered map[string]bool
	metrics    bridge.RouterMetrics
}

func (f *fakeRouter) IsRegistered(id string) bool   { return f.registered[id] }
func (f *fakeRouter) Metrics() bridge.RouterMetrics { return f.metrics }

type fakeEvents struct {
	got    journal.Filter
	result *journal.ListResult
	err    error
}

func (f *fakeEvents) List(_ context.Context, filter journal.Filter) (*journal.ListResult, error) {
	f.got = filter
	return f.result, f.err
}

type fakeBus struct{ connected bool }

func (f fakeBus) IsConnected() bool { return f.connected }

func (f fakeBus) HealthCheck(context.Context) error {
	if !f.connected {
		return errors.New("mqtt: client not connected")
	}
	return nil
}

func (f fakeBus) SubscriptionCount() int {
	if f.connected {
		return 1
	}
	return 0
}

// fakeDB is a journal database with a scripted health result.
type fakeDB struct{ err error }

func (f fakeDB) HealthCheck(context.Context) error { return f.err }
func (f fakeDB) Stats() sql.DBStats                { return sql.DBStats{OpenConnections: 1, Idle: 1} }

func testDeps() Deps {
	since := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return Deps{
		Config: config.APIConfig{Host: "127.0.0.1", Port: 0},
		Logger: logging.Discard(),
		Devices: &fakeDevices{
			statuses: []scale.DeviceStatus{
				{
					Descriptor: scale.Descriptor{ID: "scale-01", Port: "/dev/ttyUSB0", BaudRate: 9600, ReadTimeout: time.Second, Encoding: scale.EncodingStandard},
					Status:     scale.StatusConnected,
					Since:      since,
				},
				{
					Descriptor: scale.Descriptor{ID: "scale-02", Port: "/dev/ttyUSB1", BaudRate: 19200, ReadTimeout: 500 * time.Millisecond, Encoding: scale.EncodingPadded},
					Status:     scale.StatusReconnecting,
					LastError:  "scale: open failed: /dev/ttyUSB1",
					Since:      since,
				},
			},
			stats: scale.Stats{ReconnectAttempts: 3},
		},
		Router: &fakeRouter{
			registered: map[string]bool{"scale-01": true},
			metrics:    bridge.RouterMetrics{Commands: 7, ResponsesOK: 6, Registered: 1},
		},
		Bus:     fakeBus{connected: true},
		Version: "test",
	}
}

func testServer(t *testing.T, deps Deps) http.Handler {
	t.Helper()
	srv, err := New(deps)
	require.NoError(t, err)
	return srv.buildRouter()
}

func get(t *testing.T, h http.Handler, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return rec, body
}

func TestNew_RequiresDeps(t *testing.T) {
	_, err := New(Deps{})
	assert.Error(t, err)

	deps := testDeps()
	deps.Router = nil
	_, err = New(deps)
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	rec, body := get(t, testServer(t, testDeps()), "/api/v1/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "test", body["version"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	assert.Equal(t, map[string]any{"mqtt": "ok"}, body["checks"])

	deps := testDeps()
	deps.Bus = fakeBus{connected: false}
	_, body = get(t, testServer(t, deps), "/api/v1/health")
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, "mqtt: client not connected", body["checks"].(map[string]any)["mqtt"])
}

func TestHealth_JournalCheck(t *testing.T) {
	deps := testDeps()
	deps.DB = fakeDB{}
	_, body := get(t, testServer(t, deps), "/api/v1/health")
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "ok", body["checks"].(map[string]any)["journal"])

	deps.DB = fakeDB{err: errors.New("database health check failed: disk I/O error")}
	_, body = get(t, testServer(t, deps), "/api/v1/health")
	assert.Equal(t, "degraded", body["status"])
	assert.Contains(t, body["checks"].(map[string]any)["journal"], "disk I/O error")
}

func TestRequestIDIsEchoed(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	testServer(t, testDeps()).ServeHTTP(rec, req)

	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
}

func TestListDevices(t *testing.T) {
	rec, body := get(t, testServer(t, testDeps()), "/api/v1/devices")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, body["count"])

	devices := body["devices"].([]any)
	first := devices[0].(map[string]any)
	assert.Equal(t, "scale-01", first["id"])
	assert.Equal(t, "connected", first["status"])
	assert.Equal(t, true, first["registered"])
	assert.EqualValues(t, 1000, first["read_timeout_ms"])

	second := devices[1].(map[string]any)
	assert.Equal(t, "padded", second["encoding"])
	assert.Equal(t, "reconnecting", second["status"])
	assert.Equal(t, false, second["registered"])
	assert.Contains(t, second["last_error"], "open failed")
}

func TestGetDevice(t *testing.T) {
	h := testServer(t, testDeps())

	rec, body := get(t, h, "/api/v1/devices/scale-02")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/dev/ttyUSB1", body["port"])
	assert.EqualValues(t, 19200, body["baud_rate"])

	rec, body = get(t, h, "/api/v1/devices/ghost")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, ErrCodeNotFound, body["code"])
}

func TestDeviceEvents_JournalDisabled(t *testing.T) {
	rec, body := get(t, testServer(t, testDeps()), "/api/v1/devices/scale-01/events")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "event journal is disabled", body["message"])
}

func TestDeviceEvents(t *testing.T) {
	events := &fakeEvents{result: &journal.ListResult{
		Events: []journal.Event{{ID: "evt-1", DeviceID: "scale-01", Kind: "connected"}},
		Total:  1,
		Limit:  10,
	}}
	deps := testDeps()
	deps.Events = events
	h := testServer(t, deps)

	rec, body := get(t, h, "/api/v1/devices/scale-01/events?limit=10&offset=2&kind=connected")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, body["total"])
	assert.Equal(t, journal.Filter{DeviceID: "scale-01", Kind: "connected", Limit: 10, Offset: 2}, events.got)

	rec, _ = get(t, h, "/api/v1/devices/scale-01/events?limit=many")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = get(t, h, "/api/v1/devices/ghost/events")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	events.err = errors.New("disk I/O error")
	rec, _ = get(t, h, "/api/v1/devices/scale-01/events")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestMetrics(t *testing.T) {
	rec, body := get(t, testServer(t, testDeps()), "/api/v1/metrics")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, true, body["mqtt"].(map[string]any)["connected"])
	assert.EqualValues(t, 1, body["mqtt"].(map[string]any)["subscriptions"])

	devices := body["devices"].(map[string]any)
	assert.EqualValues(t, 2, devices["total"])
	assert.EqualValues(t, 1, devices["by_status"].(map[string]any)["reconnecting"])

	assert.EqualValues(t, 7, body["router"].(map[string]any)["commands"])
	assert.EqualValues(t, 3, body["supervisor"].(map[string]any)["reconnect_attempts"])
	assert.NotContains(t, body, "database")
}

func TestMetrics_Database(t *testing.T) {
	deps := testDeps()
	deps.DB = fakeDB{}
	_, body := get(t, testServer(t, deps), "/api/v1/metrics")

	db := body["database"].(map[string]any)
	assert.EqualValues(t, 1, db["open_connections"])
	assert.EqualValues(t, 1, db["idle"])
}

func TestUnknownRoute(t *testing.T) {
	rec, body := get(t, testServer(t, testDeps()), "/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, ErrCodeNotFound, body["code"])
}

func TestCloseWithoutStart(t *testing.T) {
	srv, err := New(testDeps())
	require.NoError(t, err)
	assert.NoError(t, srv.Close())
}
