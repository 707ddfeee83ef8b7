package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/devskill-org/solar-irradiance-monitor/solargeo"
)

func newTestServer(t *testing.T) (*Monitor, *WebServer) {
	t.Helper()
	monitor := NewMonitor(DefaultConfig(), nil)
	hs := NewWebServer(monitor, 8080)
	if hs == nil {
		t.Fatal("NewWebServer returned nil for a valid port")
	}
	return monitor, hs
}

func TestNewWebServer(t *testing.T) {
	monitor := NewMonitor(DefaultConfig(), nil)

	if hs := NewWebServer(monitor, 0); hs != nil {
		t.Error("Expected nil web server for port 0")
	}

	if hs := NewWebServer(monitor, -1); hs != nil {
		t.Error("Expected nil web server for negative port")
	}

	hs := NewWebServer(monitor, 8081)
	if hs == nil {
		t.Fatal("Expected web server for port 8081")
	}
	if hs.port != 8081 {
		t.Errorf("Expected port 8081, got %d", hs.port)
	}

	// A disabled server is a nil receiver; Start and Stop are no-ops
	var disabled *WebServer
	if err := disabled.Start(); err != nil {
		t.Errorf("Expected nil error starting disabled server, got %v", err)
	}
	if err := disabled.Stop(context.Background()); err != nil {
		t.Errorf("Expected nil error stopping disabled server, got %v", err)
	}
}

func TestHealthHandler(t *testing.T) {
	monitor, hs := newTestServer(t)

	req := httptest.NewRequest("GET", "/api/health", nil)
	w := httptest.NewRecorder()
	hs.server.Handler.ServeHTTP(w, req)

	// Monitor is not running yet
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503, got %d", w.Code)
	}

	var health HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&health); err != nil {
		t.Fatalf("Failed to decode health response: %v", err)
	}

	if health.Status != "unhealthy" {
		t.Errorf("Expected status unhealthy, got %s", health.Status)
	}

	// Mark the monitor as running and check again
	monitor.mu.Lock()
	monitor.isRunning = true
	monitor.mu.Unlock()

	w = httptest.NewRecorder()
	hs.server.Handler.ServeHTTP(w, httptest.NewRequest("GET", "/api/health", nil))

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	if err := json.NewDecoder(w.Body).Decode(&health); err != nil {
		t.Fatalf("Failed to decode health response: %v", err)
	}

	if health.Status != "healthy" {
		t.Errorf("Expected status healthy, got %s", health.Status)
	}

	if !health.Monitor.IsRunning {
		t.Error("Expected monitor.is_running true")
	}

	if health.Monitor.Latitude != 56.9496 {
		t.Errorf("Expected latitude 56.9496, got %f", health.Monitor.Latitude)
	}

	if health.Monitor.IntegrationPeriod != "15m0s" {
		t.Errorf("Expected integration period 15m0s, got %s", health.Monitor.IntegrationPeriod)
	}

	if health.Monitor.Reference != "END" {
		t.Errorf("Expected reference END, got %s", health.Monitor.Reference)
	}

	if health.System.Uptime == "" {
		t.Error("Expected non-empty uptime")
	}
}

func TestHealthHandlerMethodNotAllowed(t *testing.T) {
	_, hs := newTestServer(t)

	req := httptest.NewRequest("POST", "/api/health", nil)
	w := httptest.NewRecorder()
	hs.server.Handler.ServeHTTP(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected status 405, got %d", w.Code)
	}
}

func TestReadinessHandler(t *testing.T) {
	monitor, hs := newTestServer(t)

	req := httptest.NewRequest("GET", "/api/ready", nil)
	w := httptest.NewRecorder()
	hs.server.Handler.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503 before start, got %d", w.Code)
	}

	var ready map[string]any
	if err := json.NewDecoder(w.Body).Decode(&ready); err != nil {
		t.Fatalf("Failed to decode readiness response: %v", err)
	}
	if ready["ready"] != false {
		t.Errorf("Expected ready false, got %v", ready["ready"])
	}

	monitor.mu.Lock()
	monitor.isRunning = true
	monitor.mu.Unlock()

	w = httptest.NewRecorder()
	hs.server.Handler.ServeHTTP(w, httptest.NewRequest("GET", "/api/ready", nil))

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200 when running, got %d", w.Code)
	}
}

func TestStatusHandler(t *testing.T) {
	monitor, hs := newTestServer(t)

	// Publish one bin so last_bin is populated
	coverage := 25.0
	monitor.mu.Lock()
	monitor.lastBin = &BinRecord{
		BinStart:       time.Date(2026, 6, 21, 10, 15, 0, 0, time.UTC),
		DeviceID:       1,
		MeanIrradiance: 640.0,
		CloudCoverage:  &coverage,
	}
	monitor.mu.Unlock()

	req := httptest.NewRequest("GET", "/api/status", nil)
	w := httptest.NewRecorder()
	hs.server.Handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var status map[string]any
	if err := json.NewDecoder(w.Body).Decode(&status); err != nil {
		t.Fatalf("Failed to decode status response: %v", err)
	}

	if status["monitor_status"] == nil {
		t.Error("Expected monitor_status in response")
	}

	site, ok := status["site"].(map[string]any)
	if !ok {
		t.Fatal("Expected site section in response")
	}
	if site["latitude"] != 56.9496 {
		t.Errorf("Expected site latitude 56.9496, got %v", site["latitude"])
	}

	lastBin, ok := status["last_bin"].(map[string]any)
	if !ok {
		t.Fatal("Expected last_bin in response")
	}
	if lastBin["mean_irradiance"] != 640.0 {
		t.Errorf("Expected mean_irradiance 640.0, got %v", lastBin["mean_irradiance"])
	}
}

func TestPositionHandler(t *testing.T) {
	_, hs := newTestServer(t)

	at := time.Date(2026, 6, 21, 10, 22, 0, 0, time.UTC)

	req := httptest.NewRequest("GET", "/api/position?at="+at.Format(time.RFC3339), nil)
	w := httptest.NewRecorder()
	hs.server.Handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Time      string            `json:"time"`
		Latitude  float64           `json:"latitude"`
		Longitude float64           `json:"longitude"`
		Position  solargeo.Position `json:"position"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode position response: %v", err)
	}

	// Site coordinates are the default
	if resp.Latitude != 56.9496 || resp.Longitude != 24.1052 {
		t.Errorf("Expected site coordinates, got %f, %f", resp.Latitude, resp.Longitude)
	}

	// The endpoint must agree with the calculator
	want, err := solargeo.SunPosition(at, 56.9496, 24.1052, true)
	if err != nil {
		t.Fatalf("SunPosition failed: %v", err)
	}

	if abs(resp.Position.Elevation-want.Elevation) > 1e-9 {
		t.Errorf("Expected elevation %.6f, got %.6f", want.Elevation, resp.Position.Elevation)
	}

	if abs(resp.Position.Azimuth-want.Azimuth) > 1e-9 {
		t.Errorf("Expected azimuth %.6f, got %.6f", want.Azimuth, resp.Position.Azimuth)
	}

	if abs(resp.Position.Distance-want.Distance) > 1e-12 {
		t.Errorf("Expected distance %.8f, got %.8f", want.Distance, resp.Position.Distance)
	}
}

func TestPositionHandlerExplicitCoordinates(t *testing.T) {
	_, hs := newTestServer(t)

	at := time.Date(2026, 6, 21, 19, 0, 0, 0, time.UTC)

	req := httptest.NewRequest("GET", "/api/position?at="+at.Format(time.RFC3339)+"&lat=40.125&lon=-105.237", nil)
	w := httptest.NewRecorder()
	hs.server.Handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Latitude  float64           `json:"latitude"`
		Longitude float64           `json:"longitude"`
		Position  solargeo.Position `json:"position"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode position response: %v", err)
	}

	if resp.Latitude != 40.125 || resp.Longitude != -105.237 {
		t.Errorf("Expected requested coordinates, got %f, %f", resp.Latitude, resp.Longitude)
	}

	want, err := solargeo.SunPosition(at, 40.125, -105.237, true)
	if err != nil {
		t.Fatalf("SunPosition failed: %v", err)
	}

	if abs(resp.Position.Elevation-want.Elevation) > 1e-9 {
		t.Errorf("Expected elevation %.6f, got %.6f", want.Elevation, resp.Position.Elevation)
	}
}

func TestPositionHandlerErrors(t *testing.T) {
	_, hs := newTestServer(t)

	tests := []struct {
		name       string
		method     string
		query      string
		wantStatus int
	}{
		{
			name:       "malformed timestamp",
			method:     "GET",
			query:      "?at=yesterday",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "malformed latitude",
			method:     "GET",
			query:      "?lat=north",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "malformed longitude",
			method:     "GET",
			query:      "?lon=east",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "latitude out of range",
			method:     "GET",
			query:      "?lat=91",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "year before ephemeris validity",
			method:     "GET",
			query:      "?at=1900-06-21T12:00:00Z",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "post not allowed",
			method:     "POST",
			query:      "",
			wantStatus: http.StatusMethodNotAllowed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/position"+tt.query, nil)
			w := httptest.NewRecorder()
			hs.server.Handler.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d: %s", tt.wantStatus, w.Code, w.Body.String())
			}
		})
	}
}

func TestElevationHandler(t *testing.T) {
	monitor, hs := newTestServer(t)

	req := httptest.NewRequest("GET", "/api/elevation?start=2026-06-21T10:00:00Z&end=2026-06-21T11:00:00Z", nil)
	w := httptest.NewRecorder()
	hs.server.Handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Period    string                     `json:"period"`
		Step      string                     `json:"step"`
		Reference string                     `json:"reference"`
		Samples   []solargeo.ElevationSample `json:"samples"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode elevation response: %v", err)
	}

	// Defaults come from the site configuration
	if resp.Period != "15m0s" {
		t.Errorf("Expected period 15m0s, got %s", resp.Period)
	}
	if resp.Reference != "END" {
		t.Errorf("Expected reference END, got %s", resp.Reference)
	}

	// 10:00 to 11:00 inclusive at 15 minute spacing
	if len(resp.Samples) != 5 {
		t.Fatalf("Expected 5 samples, got %d", len(resp.Samples))
	}

	// The endpoint must agree with the calculator
	config := monitor.GetConfig()
	series := make([]time.Time, 5)
	for i := range series {
		series[i] = time.Date(2026, 6, 21, 10, 0, 0, 0, time.UTC).Add(time.Duration(i) * 15 * time.Minute)
	}
	want, err := solargeo.AverageElevation(series, config.Latitude, config.Longitude,
		solargeo.Reference(config.Reference), config.IntegrationStep)
	if err != nil {
		t.Fatalf("AverageElevation failed: %v", err)
	}

	for i, sample := range resp.Samples {
		if !sample.Time.Equal(want[i].Time) {
			t.Errorf("Sample %d: expected time %v, got %v", i, want[i].Time, sample.Time)
		}
		if abs(sample.Elevation-want[i].Elevation) > 1e-9 {
			t.Errorf("Sample %d: expected elevation %.6f, got %.6f", i, want[i].Elevation, sample.Elevation)
		}
		// Midsummer morning in Riga: the sun is up for every bin
		if sample.Elevation <= 0 {
			t.Errorf("Sample %d: expected positive elevation, got %.6f", i, sample.Elevation)
		}
	}
}

func TestElevationHandlerErrors(t *testing.T) {
	_, hs := newTestServer(t)

	tests := []struct {
		name       string
		method     string
		query      string
		wantStatus int
	}{
		{
			name:       "missing start",
			method:     "GET",
			query:      "?end=2026-06-21T11:00:00Z",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "malformed end",
			method:     "GET",
			query:      "?start=2026-06-21T10:00:00Z&end=tomorrow",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "negative period",
			method:     "GET",
			query:      "?start=2026-06-21T10:00:00Z&end=2026-06-21T11:00:00Z&period=-15m",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "malformed period",
			method:     "GET",
			query:      "?start=2026-06-21T10:00:00Z&end=2026-06-21T11:00:00Z&period=15minutes",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown reference convention",
			method:     "GET",
			query:      "?start=2026-06-21T10:00:00Z&end=2026-06-21T11:00:00Z&ref=CENTER",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "start equals end",
			method:     "GET",
			query:      "?start=2026-06-21T10:00:00Z&end=2026-06-21T10:00:00Z",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "range exceeds bin limit",
			method:     "GET",
			query:      "?start=2026-01-01T00:00:00Z&end=2026-01-02T00:00:00Z&period=1m",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "post not allowed",
			method:     "POST",
			query:      "",
			wantStatus: http.StatusMethodNotAllowed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/elevation"+tt.query, nil)
			w := httptest.NewRecorder()
			hs.server.Handler.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d: %s", tt.wantStatus, w.Code, w.Body.String())
			}
		})
	}
}

func TestBinsHandler(t *testing.T) {
	_, hs := newTestServer(t)

	// Without a database connection the endpoint reports unavailable
	req := httptest.NewRequest("GET", "/api/bins", nil)
	w := httptest.NewRecorder()
	hs.server.Handler.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503 without store, got %d", w.Code)
	}

	// Invalid limit is rejected before touching storage
	w = httptest.NewRecorder()
	hs.server.Handler.ServeHTTP(w, httptest.NewRequest("GET", "/api/bins?limit=many", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for invalid limit, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	hs.server.Handler.ServeHTTP(w, httptest.NewRequest("GET", "/api/bins?limit=-5", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for negative limit, got %d", w.Code)
	}
}

func TestSolarErrorStatus(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{
			name:       "range error is the caller's fault",
			err:        &solargeo.RangeError{Field: "lat", Message: "must be within [-90, 90]"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "argument error is the caller's fault",
			err:        &solargeo.ArgumentError{Argument: "ref", Message: "unrecognized"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unsupported series is the caller's fault",
			err:        &solargeo.NotSupportedError{Message: "discontinuous series"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "invariant violation is ours",
			err:        &solargeo.InvariantError{Quantity: "azimuth", Value: 361.0},
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := solarErrorStatus(tt.err); got != tt.wantStatus {
				t.Errorf("Expected status %d, got %d", tt.wantStatus, got)
			}
		})
	}
}

func TestWebSocketStatusAndBroadcast(t *testing.T) {
	_, hs := newTestServer(t)

	// Run the broadcast pump without the full server lifecycle
	go hs.handleBroadcasts()
	defer close(hs.done)

	server := httptest.NewServer(hs.server.Handler)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to dial websocket: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	// Initial status is pushed on connect
	var initial map[string]any
	if err := conn.ReadJSON(&initial); err != nil {
		t.Fatalf("Failed to read initial message: %v", err)
	}
	if initial["type"] != "status_update" {
		t.Errorf("Expected initial message type status_update, got %v", initial["type"])
	}

	// A finished bin reaches connected clients
	coverage := 12.5
	hs.BroadcastBin(&BinRecord{
		BinStart:       time.Date(2026, 6, 21, 10, 15, 0, 0, time.UTC),
		DeviceID:       7,
		MeanIrradiance: 640.0,
		CloudCoverage:  &coverage,
	})

	var update map[string]any
	if err := conn.ReadJSON(&update); err != nil {
		t.Fatalf("Failed to read bin update: %v", err)
	}
	if update["type"] != "bin_update" {
		t.Errorf("Expected message type bin_update, got %v", update["type"])
	}

	bin, ok := update["bin"].(map[string]any)
	if !ok {
		t.Fatal("Expected bin payload in update")
	}
	if bin["device_id"] != float64(7) {
		t.Errorf("Expected device_id 7, got %v", bin["device_id"])
	}
	if bin["cloud_coverage"] != 12.5 {
		t.Errorf("Expected cloud_coverage 12.5, got %v", bin["cloud_coverage"])
	}
}

func TestBroadcastBinNilServer(t *testing.T) {
	// A monitor without a web server must be able to finish bins
	var hs *WebServer
	hs.BroadcastBin(&BinRecord{DeviceID: 1})
}

func TestFormatUptime(t *testing.T) {
	tests := []struct {
		duration time.Duration
		expected string
	}{
		{5 * time.Second, "5s"},
		{90 * time.Second, "1m30s"},
		{1*time.Hour + 2*time.Minute + 3*time.Second, "1h2m3s"},
		{0, "0s"},
		{25 * time.Hour, "25h0m0s"},
	}

	for _, tt := range tests {
		result := formatUptime(tt.duration)
		if result != tt.expected {
			t.Errorf("formatUptime(%v) = %s, expected %s", tt.duration, result, tt.expected)
		}
	}
}
