package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/smarthome-controller/internal/model"
	"github.com/thatsimonsguy/smarthome-controller/internal/state"
)

func newTestServer(breaker string) (*Server, *state.Status) {
	status := state.NewStatus(model.DoorState{AngleDeg: 67})
	return NewServer(status, func() string { return breaker }, 0), status
}

func TestGetStatus(t *testing.T) {
	server, status := newTestServer("closed")
	open := model.DoorOpen
	status.SetDoor(model.DoorState{LastCommanded: &open, AngleDeg: 33})
	status.SetAlarm(model.AlarmActive)
	temp, hum := 22.0, 40.0
	status.SetReading(model.SensorReading{TemperatureC: &temp, HumidityPct: &hum, FlameDetected: true})

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	w := httptest.NewRecorder()
	server.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var resp state.Snapshot
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, model.AlarmActive, resp.Alarm)
	require.NotNil(t, resp.Door.LastCommanded)
	assert.Equal(t, model.DoorOpen, *resp.Door.LastCommanded)
	assert.Equal(t, 33, resp.Door.AngleDeg)
	require.NotNil(t, resp.Reading)
	assert.Equal(t, 22.0, *resp.Reading.TemperatureC)
	assert.True(t, resp.Reading.FlameDetected)
}

func TestGetHealth(t *testing.T) {
	for breaker, want := range map[string]string{"closed": "ok", "half-open": "ok", "open": "degraded"} {
		server, _ := newTestServer(breaker)
		w := httptest.NewRecorder()
		server.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))

		require.Equal(t, http.StatusOK, w.Code)
		var resp HealthResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Equal(t, want, resp.Status, breaker)
		assert.Equal(t, breaker, resp.Breaker)
	}
}

func TestReadOnly(t *testing.T) {
	server, _ := newTestServer("closed")
	w := httptest.NewRecorder()
	server.Router().ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/api/status", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)

	w = httptest.NewRecorder()
	server.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/door", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCORSHeader(t *testing.T) {
	server, _ := newTestServer("closed")
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("Origin", "http://panel.local")
	w := httptest.NewRecorder()
	server.Router().ServeHTTP(w, req)

	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRun_ShutsDownOnCancel(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())

	server := NewServer(state.NewStatus(model.DoorState{}), nil, port)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(6 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestRun_ListenFailureDoesNotFail(t *testing.T) {
	l, err := net.Listen("tcp", "0.0.0.0:0")
	require.NoError(t, err)
	defer l.Close()
	port := l.Addr().(*net.TCPAddr).Port

	server := NewServer(state.NewStatus(model.DoorState{}), nil, port)
	assert.NoError(t, server.Run(context.Background()))
}
