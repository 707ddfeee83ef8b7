package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/devskill-org/solar-irradiance-monitor/solargeo"
)

// maxElevationPoints bounds the series length a single /api/elevation
// request may ask for (1440 = one day of minute bins).
const maxElevationPoints = 1440

// WebServer provides HTTP endpoints for health checking, monitoring, and web UI
type WebServer struct {
	monitor   *Monitor
	server    *http.Server
	port      int
	startTime time.Time
	upgrader  websocket.Upgrader
	clients   sync.Map
	broadcast chan []byte
	done      chan struct{}
}

// NewWebServer creates a new web server with health endpoints and static file serving
func NewWebServer(monitor *Monitor, port int) *WebServer {
	if port <= 0 {
		return nil // Web server disabled
	}

	mux := http.NewServeMux()
	hs := &WebServer{
		monitor:   monitor,
		port:      port,
		startTime: time.Now(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins in development
			},
		},
		broadcast: make(chan []byte, 256),
		done:      make(chan struct{}),
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}

	// Register API routes
	mux.HandleFunc("/api/health", hs.healthHandler)
	mux.HandleFunc("/api/ready", hs.readinessHandler)
	mux.HandleFunc("/api/status", hs.statusHandler)
	mux.HandleFunc("/api/position", hs.positionHandler)
	mux.HandleFunc("/api/elevation", hs.elevationHandler)
	mux.HandleFunc("/api/bins", hs.binsHandler)
	mux.HandleFunc("/api/ws", hs.wsHandler)

	// Serve static files from web folder
	fs := http.FileServer(http.Dir("./web/dist"))
	mux.Handle("/", fs)

	return hs
}

// Start starts the web server
func (hs *WebServer) Start() error {
	if hs == nil {
		return nil // Web server disabled
	}

	// Start the broadcast handler
	go hs.handleBroadcasts()

	// Start periodic status broadcaster
	go hs.broadcastStatus()

	go func() {
		if err := hs.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			// Log error but don't crash the main application
			fmt.Printf("Web server error: %v\n", err)
		}
	}()

	return nil
}

// Stop gracefully stops the web server
func (hs *WebServer) Stop(ctx context.Context) error {
	if hs == nil {
		return nil // Web server disabled
	}

	// Signal goroutines to stop
	close(hs.done)

	// Close all WebSocket connections
	hs.clients.Range(func(key, value any) bool {
		if conn, ok := key.(*websocket.Conn); ok {
			conn.Close()
		}
		return true
	})

	return hs.server.Shutdown(ctx)
}

// healthHandler handles the /api/health endpoint
func (hs *WebServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	health := hs.buildHealth()

	if health.Status != "healthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(health); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// readinessHandler handles the /api/ready endpoint
func (hs *WebServer) readinessHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status := hs.monitor.GetStatus()

	ready := map[string]any{
		"ready":     status.IsRunning,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")

	if !status.IsRunning {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	if err := json.NewEncoder(w).Encode(ready); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// statusHandler handles the /api/status endpoint (detailed status)
func (hs *WebServer) statusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(hs.buildStatus()); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// positionHandler handles the /api/position endpoint. Query parameters:
// at (RFC3339, default now), lat and lon (degrees, default site coordinates).
func (hs *WebServer) positionHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	query := r.URL.Query()
	config := hs.monitor.GetConfig()

	at := time.Now().UTC()
	if v := query.Get("at"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			http.Error(w, "invalid 'at' timestamp, want RFC3339", http.StatusBadRequest)
			return
		}
		at = parsed.UTC()
	}

	lat := config.Latitude
	if v := query.Get("lat"); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			http.Error(w, "invalid 'lat' parameter", http.StatusBadRequest)
			return
		}
		lat = parsed
	}

	lon := config.Longitude
	if v := query.Get("lon"); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			http.Error(w, "invalid 'lon' parameter", http.StatusBadRequest)
			return
		}
		lon = parsed
	}

	pos, err := solargeo.SunPosition(at, lat, lon, true)
	if err != nil {
		http.Error(w, err.Error(), solarErrorStatus(err))
		return
	}

	response := map[string]any{
		"time":      at.Format(time.RFC3339),
		"latitude":  lat,
		"longitude": lon,
		"position":  pos,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// elevationHandler handles the /api/elevation endpoint: average sun
// elevation per bin over a requested range. Query parameters: start and end
// (RFC3339, required), period, step (Go durations), ref (BEG, MID or END),
// lat and lon. Defaults come from the site configuration.
func (hs *WebServer) elevationHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	query := r.URL.Query()
	config := hs.monitor.GetConfig()

	start, err := time.Parse(time.RFC3339, query.Get("start"))
	if err != nil {
		http.Error(w, "invalid or missing 'start' timestamp, want RFC3339", http.StatusBadRequest)
		return
	}
	end, err := time.Parse(time.RFC3339, query.Get("end"))
	if err != nil {
		http.Error(w, "invalid or missing 'end' timestamp, want RFC3339", http.StatusBadRequest)
		return
	}

	period := config.IntegrationPeriod
	if v := query.Get("period"); v != "" {
		period, err = time.ParseDuration(v)
		if err != nil {
			http.Error(w, "invalid 'period' duration", http.StatusBadRequest)
			return
		}
	}
	if period <= 0 {
		http.Error(w, "'period' must be positive", http.StatusBadRequest)
		return
	}

	step := config.IntegrationStep
	if v := query.Get("step"); v != "" {
		step, err = time.ParseDuration(v)
		if err != nil {
			http.Error(w, "invalid 'step' duration", http.StatusBadRequest)
			return
		}
	}

	ref := solargeo.Reference(config.Reference)
	if v := query.Get("ref"); v != "" {
		ref = solargeo.Reference(v)
	}

	lat := config.Latitude
	if v := query.Get("lat"); v != "" {
		lat, err = strconv.ParseFloat(v, 64)
		if err != nil {
			http.Error(w, "invalid 'lat' parameter", http.StatusBadRequest)
			return
		}
	}

	lon := config.Longitude
	if v := query.Get("lon"); v != "" {
		lon, err = strconv.ParseFloat(v, 64)
		if err != nil {
			http.Error(w, "invalid 'lon' parameter", http.StatusBadRequest)
			return
		}
	}

	if end.Sub(start)/period >= maxElevationPoints {
		http.Error(w, fmt.Sprintf("requested range exceeds %d bins", maxElevationPoints), http.StatusBadRequest)
		return
	}

	var series []time.Time
	for t := start.UTC(); !t.After(end.UTC()); t = t.Add(period) {
		series = append(series, t)
	}

	samples, err := solargeo.AverageElevation(series, lat, lon, ref, step)
	if err != nil {
		http.Error(w, err.Error(), solarErrorStatus(err))
		return
	}

	response := map[string]any{
		"start":     start.UTC().Format(time.RFC3339),
		"end":       end.UTC().Format(time.RFC3339),
		"period":    period.String(),
		"step":      step.String(),
		"reference": string(ref),
		"latitude":  lat,
		"longitude": lon,
		"samples":   samples,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// binsHandler handles the /api/bins endpoint: recent stored bins, newest
// first. Query parameter: limit (default 24).
func (hs *WebServer) binsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := 24
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			http.Error(w, "invalid 'limit' parameter", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	records, err := hs.monitor.LatestBins(limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	response := map[string]any{
		"count":     len(records),
		"bins":      records,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// solarErrorStatus maps calculator errors onto HTTP status codes. Input
// errors are the caller's fault; a broken postcondition is ours.
func solarErrorStatus(err error) int {
	var invErr *solargeo.InvariantError
	if errors.As(err, &invErr) {
		return http.StatusInternalServerError
	}
	return http.StatusBadRequest
}

// wsHandler handles WebSocket connections
func (hs *WebServer) wsHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := hs.upgrader.Upgrade(w, r, nil)
	if err != nil {
		fmt.Printf("WebSocket upgrade error: %v\n", err)
		return
	}

	// Register new client
	hs.clients.Store(conn, true)

	clientCount := 0
	hs.clients.Range(func(key, value any) bool {
		clientCount++
		return true
	})
	fmt.Printf("New WebSocket client connected. Total clients: %d\n", clientCount)

	// Send initial data immediately
	hs.sendStatusToClient(conn)

	// Handle client disconnection
	defer func() {
		hs.clients.Delete(conn)
		conn.Close()

		clientCount := 0
		hs.clients.Range(func(key, value any) bool {
			clientCount++
			return true
		})
		fmt.Printf("WebSocket client disconnected. Total clients: %d\n", clientCount)
	}()

	// Read messages from client (ping/pong, close)
	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				fmt.Printf("WebSocket error: %v\n", err)
			}
			break
		}
	}
}

// BroadcastBin pushes a completed bin to all connected clients.
func (hs *WebServer) BroadcastBin(rec *BinRecord) {
	if hs == nil {
		return
	}

	message, err := json.Marshal(map[string]any{
		"type": "bin_update",
		"bin":  rec,
	})
	if err != nil {
		fmt.Printf("Failed to marshal bin update: %v\n", err)
		return
	}

	select {
	case hs.broadcast <- message:
	default:
		// Drop the update when the channel is full
	}
}

// handleBroadcasts sends messages to all connected clients
func (hs *WebServer) handleBroadcasts() {
	for {
		select {
		case message := <-hs.broadcast:
			hs.clients.Range(func(key, value any) bool {
				conn, ok := key.(*websocket.Conn)
				if !ok {
					return true
				}

				err := conn.WriteMessage(websocket.TextMessage, message)
				if err != nil {
					fmt.Printf("WebSocket write error: %v\n", err)
					conn.Close()
					hs.clients.Delete(conn)
				}
				return true
			})
		case <-hs.done:
			return
		}
	}
}

// broadcastStatus periodically broadcasts status updates
func (hs *WebServer) broadcastStatus() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			hasClients := false
			hs.clients.Range(func(key, value any) bool {
				hasClients = true
				return false // Stop after finding first client
			})

			if hasClients {
				data := hs.buildStatusData()
				message, err := json.Marshal(data)
				if err != nil {
					fmt.Printf("Failed to marshal status data: %v\n", err)
					continue
				}
				hs.broadcast <- message
			}
		case <-hs.done:
			return
		}
	}
}

// sendStatusToClient sends status data to a specific client
func (hs *WebServer) sendStatusToClient(conn *websocket.Conn) {
	data := hs.buildStatusData()
	if err := conn.WriteJSON(data); err != nil {
		fmt.Printf("Failed to send initial data: %v\n", err)
	}
}

