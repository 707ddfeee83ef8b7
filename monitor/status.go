package monitor

import (
	"fmt"
	"runtime"
	"time"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string        `json:"status"`
	Timestamp string        `json:"timestamp"`
	Version   string        `json:"version,omitempty"`
	Monitor   MonitorHealth `json:"monitor"`
	System    SystemHealth  `json:"system"`
}

// MonitorHealth represents monitor-specific health information
type MonitorHealth struct {
	IsRunning         bool    `json:"is_running"`
	PendingSamples    int     `json:"pending_samples"`
	HasStore          bool    `json:"has_store"`
	Latitude          float64 `json:"latitude"`
	Longitude         float64 `json:"longitude"`
	IntegrationPeriod string  `json:"integration_period"`
	Reference         string  `json:"reference"`
}

// SystemHealth represents system-level health information
type SystemHealth struct {
	Uptime     string `json:"uptime"`
	Goroutines int    `json:"goroutines,omitempty"`
}

// buildHealth builds the health check payload
func (hs *WebServer) buildHealth() HealthResponse {
	status := hs.monitor.GetStatus()
	config := hs.monitor.GetConfig()

	health := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   "1.0.0",
		Monitor: MonitorHealth{
			IsRunning:         status.IsRunning,
			PendingSamples:    status.PendingSamples,
			HasStore:          status.HasStore,
			Latitude:          config.Latitude,
			Longitude:         config.Longitude,
			IntegrationPeriod: config.IntegrationPeriod.String(),
			Reference:         config.Reference,
		},
		System: SystemHealth{
			Uptime:     formatUptime(time.Since(hs.startTime)),
			Goroutines: runtime.NumGoroutine(),
		},
	}

	if !status.IsRunning {
		health.Status = "unhealthy"
	}

	return health
}

// buildStatus builds the detailed status payload
func (hs *WebServer) buildStatus() map[string]any {
	status := hs.monitor.GetStatus()
	config := hs.monitor.GetConfig()

	return map[string]any{
		"monitor_status": status,
		"sun":            hs.monitor.GetSunState(),
		"last_bin":       hs.monitor.GetLastBin(),
		"site": map[string]any{
			"latitude":           config.Latitude,
			"longitude":          config.Longitude,
			"integration_period": config.IntegrationPeriod.String(),
			"reference":          config.Reference,
		},
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
}

// buildStatusData builds combined health and status data for websocket clients
func (hs *WebServer) buildStatusData() map[string]any {
	return map[string]any{
		"type":   "status_update",
		"health": hs.buildHealth(),
		"status": hs.buildStatus(),
	}
}

// formatUptime formats a duration as a string with seconds rounded to integer
func formatUptime(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
