// Package monitor polls a pyranometer, averages sun elevation over each
// integration period and persists one record per period.
package monitor

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/sixdouglas/suncalc"

	"github.com/devskill-org/solar-irradiance-monitor/pyranometer"
	"github.com/devskill-org/solar-irradiance-monitor/solargeo"
	"github.com/devskill-org/solar-irradiance-monitor/weather"
)

// solarConstant is the extraterrestrial irradiance at 1 AU, W/m².
const solarConstant = 1361.0

// positionUpdateInterval is how often the live sun state is refreshed.
const positionUpdateInterval = 1 * time.Minute

// PeriodicTask represents a task that runs periodically with an optional initial delay
type PeriodicTask struct {
	name         string
	initialDelay time.Duration
	interval     time.Duration
	runFunc      func()
}

// run executes the periodic task in a loop, respecting the initial delay and context cancellation
func (pt *PeriodicTask) run(ctx context.Context, stopChan <-chan struct{}, logger *log.Logger) {
	// Wait for initial delay
	if pt.initialDelay > 0 {
		logger.Printf("[%s] Waiting for initial delay: %v", pt.name, pt.initialDelay)
		select {
		case <-time.After(pt.initialDelay):
			// Initial delay passed, run the task
			logger.Printf("[%s] Initial delay passed, running first iteration", pt.name)
			pt.runFunc()
		case <-ctx.Done():
			logger.Printf("[%s] Stopped during initial delay due to context cancellation", pt.name)
			return
		case <-stopChan:
			logger.Printf("[%s] Stopped during initial delay due to stop signal", pt.name)
			return
		}
	} else {
		// No initial delay, run immediately
		logger.Printf("[%s] Running immediately (no initial delay)", pt.name)
		pt.runFunc()
	}

	// Create ticker for periodic execution
	ticker := time.NewTicker(pt.interval)
	defer ticker.Stop()

	logger.Printf("[%s] Started with interval: %v", pt.name, pt.interval)

	for {
		select {
		case <-ticker.C:
			pt.runFunc()
		case <-ctx.Done():
			logger.Printf("[%s] Stopped due to context cancellation", pt.name)
			return
		case <-stopChan:
			logger.Printf("[%s] Stopped due to stop signal", pt.name)
			return
		}
	}
}

// WeatherCache caches the last cloud cover observation with expiration.
type WeatherCache struct {
	mu            sync.RWMutex
	cover         *weather.CloudCover
	fetchedAt     time.Time
	cacheDuration time.Duration
}

// Get retrieves the cached cloud cover if it's still valid.
func (w *WeatherCache) Get() (*weather.CloudCover, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.cover == nil {
		return nil, false
	}

	if time.Since(w.fetchedAt) > w.cacheDuration {
		return nil, false
	}

	return w.cover, true
}

// Set updates the cached cloud cover with a new value.
func (w *WeatherCache) Set(cover *weather.CloudCover) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.cover = cover
	w.fetchedAt = time.Now()
}

// SunState is the live solar geometry published on the status endpoints.
type SunState struct {
	Position   solargeo.Position `json:"position"`
	ComputedAt time.Time         `json:"computed_at"`
	Sunrise    time.Time         `json:"sunrise"`
	Sunset     time.Time         `json:"sunset"`
	Daylight   bool              `json:"daylight"`
}

type Monitor struct {
	// Configuration
	config *Config

	// State
	isRunning bool
	stopChan  chan struct{}
	mu        sync.RWMutex
	sunState  *SunState
	lastBin   *BinRecord

	// Pending sensor readings
	samples *IrradianceSamples

	// Cloud cover cache
	weatherCache WeatherCache

	// Web server
	webServer *WebServer

	// Database store
	store *Store

	// Logging
	logger *log.Logger

	// Test hooks for dependency injection
	readMeasurementFunc func() (*pyranometer.Measurement, error)
	cloudCoverFunc      func(lat, lon float64) (*weather.CloudCover, error)
}

// NewMonitor creates a new monitor instance
func NewMonitor(config *Config, logger *log.Logger) *Monitor {
	if logger == nil {
		logger = log.Default()
	}

	monitor := &Monitor{
		config:   config,
		samples:  &IrradianceSamples{},
		stopChan: make(chan struct{}),
		logger:   logger,
		weatherCache: WeatherCache{
			cacheDuration: config.WeatherUpdateInterval,
		},
	}

	return monitor
}

// NewMonitorWithWebServer creates a new monitor instance with the web server
func NewMonitorWithWebServer(config *Config, logger *log.Logger) *Monitor {
	monitor := NewMonitor(config, logger)
	monitor.webServer = NewWebServer(monitor, config.HTTPPort)
	return monitor
}

// SetConfig updates the configuration
func (m *Monitor) SetConfig(config *Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config = config
}

// GetConfig returns the current configuration
func (m *Monitor) GetConfig() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

func (m *Monitor) getInitialDelay(now time.Time, delayInterval time.Duration) time.Duration {
	top := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), 0, 0, 0, now.Location())
	delay := now.Sub(top)
	for delay > 0 {
		delay = delay - delayInterval
	}
	return -delay
}

// Start begins the monitor's periodic tasks
func (m *Monitor) Start(ctx context.Context, serverOnly bool) error {
	m.mu.Lock()
	if m.isRunning {
		m.mu.Unlock()
		return fmt.Errorf("monitor is already running")
	}
	m.isRunning = true
	m.stopChan = make(chan struct{})
	m.mu.Unlock()

	if m.config.DryRun {
		m.logger.Printf("DRY-RUN MODE ENABLED: Bins will be logged only")
	}

	config := m.GetConfig()

	// Open the bin store
	if config.PostgresConnString != "" {
		st, err := OpenStore(config.PostgresConnString, m.logger)
		if err != nil {
			m.logger.Printf("Bin integration: failed to open store: %v", err)
		} else {
			m.store = st
		}
	}

	// Start web server if configured
	if m.webServer != nil {
		err := m.webServer.Start()
		if err != nil {
			m.logger.Printf("Failed to start web server: %v", err)
		} else {
			m.logger.Printf("Web server started on port %d", m.webServer.port)
		}
		if serverOnly {
			return err
		}
	}

	// Calculate initial delays so that bins align to wall-clock boundaries
	now := time.Now()
	sensorPollInitialDelay := m.getInitialDelay(now, config.PollInterval)
	binInitialDelay := m.getInitialDelay(now, config.IntegrationPeriod) + 2*time.Second

	// Create periodic tasks
	tasks := []PeriodicTask{
		{
			name:         "SensorPoll",
			initialDelay: sensorPollInitialDelay,
			interval:     config.PollInterval,
			runFunc: func() {
				m.runSensorPoll()
			},
		},
		{
			name:         "BinIntegration",
			initialDelay: binInitialDelay,
			interval:     config.IntegrationPeriod,
			runFunc: func() {
				m.runBinIntegration()
			},
		},
		{
			name:         "PositionUpdate",
			initialDelay: 0, // Run immediately
			interval:     positionUpdateInterval,
			runFunc: func() {
				m.runPositionUpdate()
			},
		},
	}

	// Start each periodic task in its own goroutine
	var wg sync.WaitGroup
	for _, task := range tasks {
		wg.Add(1)
		task := task // capture loop variable
		go func() {
			defer wg.Done()
			task.run(ctx, m.stopChan, m.logger)
		}()
	}

	// Wait for all tasks to complete
	wg.Wait()

	m.logger.Printf("All periodic tasks stopped")
	m.stop()
	return nil
}

// Stop gracefully stops the monitor
func (m *Monitor) Stop() {
	m.stop()
}

func (m *Monitor) stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.isRunning {
		return
	}

	m.isRunning = false

	// Close stopChan if it's not already closed
	select {
	case <-m.stopChan:
		// Already closed
	default:
		close(m.stopChan)
	}

	// Stop web server if running
	if m.webServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := m.webServer.Stop(ctx); err != nil {
			m.logger.Printf("Error stopping web server: %v", err)
		}
	}

	if m.store != nil {
		if err := m.store.Close(); err != nil {
			m.logger.Printf("Error closing store: %v", err)
		}
	}
}

// IsRunning returns whether the monitor is currently running
func (m *Monitor) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.isRunning
}

// MonitorStatus represents the current status of the monitor
type MonitorStatus struct {
	IsRunning      bool    `json:"is_running"`
	PendingSamples int     `json:"pending_samples"`
	LastIrradiance float64 `json:"last_irradiance"`
	HasStore       bool    `json:"has_store"`
}

// GetStatus returns the current status of the monitor
func (m *Monitor) GetStatus() MonitorStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return MonitorStatus{
		IsRunning:      m.isRunning,
		PendingSamples: m.samples.Count(),
		LastIrradiance: m.samples.GetLatestIrradiance(),
		HasStore:       m.store != nil,
	}
}

// GetSunState returns the most recently computed sun state, or nil before
// the first position update.
func (m *Monitor) GetSunState() *SunState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sunState
}

// GetLastBin returns the most recently integrated bin, or nil before the
// first integration.
func (m *Monitor) GetLastBin() *BinRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastBin
}

// LatestBins loads recent bin records from the store.
func (m *Monitor) LatestBins(limit int) ([]BinRecord, error) {
	if m.store == nil {
		return nil, fmt.Errorf("storage not configured")
	}
	return m.store.LatestBins(m.GetConfig().DeviceID, limit)
}

// runSensorPoll reads one measurement from the pyranometer and queues it
// for the next bin integration.
func (m *Monitor) runSensorPoll() {
	measurement, err := m.readMeasurement()
	if err != nil {
		m.logger.Printf("Sensor poll: %v", err)
		return
	}
	if measurement == nil {
		// Sensor not configured
		return
	}
	m.samples.AddSample(measurement)
}

func (m *Monitor) readMeasurement() (*pyranometer.Measurement, error) {
	if m.readMeasurementFunc != nil {
		return m.readMeasurementFunc()
	}

	config := m.GetConfig()
	if config.SensorAddress == "" {
		return nil, nil
	}

	client, err := pyranometer.NewTCPClient(config.SensorAddress, byte(config.SensorSlaveID))
	if err != nil {
		return nil, fmt.Errorf("failed to create modbus client: %v", err)
	}
	defer client.Close()

	return client.ReadMeasurement()
}

// runBinIntegration closes the integration period that just elapsed.
func (m *Monitor) runBinIntegration() {
	config := m.GetConfig()

	// Calculate the period boundary timestamp (end of current integration period)
	// This ensures samples are grouped by their integration period
	now := time.Now().UTC()
	periodEnd := now.Truncate(config.IntegrationPeriod)
	if periodEnd.Before(now.Add(-config.IntegrationPeriod)) {
		periodEnd = periodEnd.Add(config.IntegrationPeriod)
	}

	m.integrateBin(periodEnd)
}

// integrateBin aggregates sensor samples up to periodEnd, averages the sun
// elevation over the elapsed bin and stores one record.
func (m *Monitor) integrateBin(periodEnd time.Time) {
	config := m.GetConfig()
	period := config.IntegrationPeriod
	binStart := periodEnd.Add(-period)

	agg := m.samples.Aggregate(config.PollInterval, periodEnd)
	if agg.sampleCount == 0 {
		m.logger.Printf("Bin integration: no samples collected in period ending at %s", periodEnd.Format(time.RFC3339))
		return
	}

	ref := solargeo.Reference(config.Reference)
	meanElevation, err := m.binMeanElevation(binStart, period, ref)
	if err != nil {
		m.logger.Printf("Bin integration: failed to average sun elevation: %v", err)
		return
	}

	// Sine of the elevation: 0 at the horizon, 1 at zenith. The same factor
	// the production forecast uses for expected PV output.
	solarFactor := math.Sin(meanElevation * math.Pi / 180)

	rec := &BinRecord{
		BinStart:       binStart,
		DeviceID:       config.DeviceID,
		MeanIrradiance: agg.meanIrradiance,
		PeakIrradiance: agg.peakIrradiance,
		Insolation:     agg.insolation,
		MeanElevation:  meanElevation,
		SolarFactor:    solarFactor,
		SampleCount:    agg.sampleCount,
	}

	if solarFactor > 0 {
		pos, err := solargeo.SunPosition(binStart.Add(period/2), config.Latitude, config.Longitude, false)
		if err == nil {
			// Extraterrestrial horizontal irradiance, corrected for the
			// current Earth-Sun distance.
			extraterrestrial := solarConstant / (pos.Distance * pos.Distance) * solarFactor
			rec.ClearnessIndex = agg.meanIrradiance / extraterrestrial
		}
	}

	if m.store == nil && !config.DryRun {
		m.samples.ClearBefore(periodEnd)
		m.finishBin(rec)
		return
	}

	// Fetch cloud cover from the weather API
	cover, err := m.fetchCloudCover()
	if err != nil {
		m.logger.Printf("Bin integration: failed to fetch cloud cover: %v", err)
	} else if cover != nil {
		rec.CloudCoverage = &cover.Fraction
		if cover.SymbolCode != "" {
			rec.WeatherSymbol = &cover.SymbolCode
		}
	}

	if config.DryRun {
		// DRY-RUN MODE: Log the record without saving to database
		m.logger.Printf("Bin integration [DRY-RUN]: would save bin for device_id=%d starting at %s (samples: %d)",
			rec.DeviceID, rec.BinStart.Format(time.RFC3339), rec.SampleCount)
		m.logger.Printf("  Mean: %.1f W/m2, Peak: %.1f W/m2, Insolation: %.3f Wh/m2",
			rec.MeanIrradiance, rec.PeakIrradiance, rec.Insolation)
		m.logger.Printf("  Sun elevation: %.2f deg, solar factor: %.3f, clearness: %.3f",
			rec.MeanElevation, rec.SolarFactor, rec.ClearnessIndex)
		if rec.CloudCoverage != nil {
			m.logger.Printf("  Cloud Coverage: %.1f%%", *rec.CloudCoverage)
		}
		if rec.WeatherSymbol != nil {
			m.logger.Printf("  Weather: %s", *rec.WeatherSymbol)
		}
		m.samples.ClearBefore(periodEnd)
	} else {
		if err := m.store.InsertBin(rec); err != nil {
			m.logger.Printf("Bin integration: failed to insert bin: %v", err)
			return
		}

		// Only clear samples for this bin after successful DB insertion
		m.samples.ClearBefore(periodEnd)

		m.logger.Printf("Bin integration: saved bin for device_id=%d starting at %s (samples: %d)",
			rec.DeviceID, rec.BinStart.Format(time.RFC3339), rec.SampleCount)
		m.logger.Printf("  Mean: %.1f W/m2, Peak: %.1f W/m2, Insolation: %.3f Wh/m2",
			rec.MeanIrradiance, rec.PeakIrradiance, rec.Insolation)
		m.logger.Printf("  Sun elevation: %.2f deg, solar factor: %.3f, clearness: %.3f",
			rec.MeanElevation, rec.SolarFactor, rec.ClearnessIndex)
	}

	m.finishBin(rec)
}

// finishBin publishes a completed bin to the status state and websocket clients.
func (m *Monitor) finishBin(rec *BinRecord) {
	m.mu.Lock()
	m.lastBin = rec
	m.mu.Unlock()

	if m.webServer != nil {
		m.webServer.BroadcastBin(rec)
	}
}

// binMeanElevation averages the sun elevation over the bin
// [binStart, binStart+period) under the configured reference convention.
func (m *Monitor) binMeanElevation(binStart time.Time, period time.Duration, ref solargeo.Reference) (float64, error) {
	config := m.GetConfig()

	// The series timestamp is the bin label; where inside the bin it points
	// depends on the convention.
	var label time.Time
	switch ref {
	case solargeo.RefBegin:
		label = binStart
	case solargeo.RefMiddle:
		label = binStart.Add(period / 2)
	default: // END
		label = binStart.Add(period)
	}

	series := []time.Time{label, label.Add(period)}
	samples, err := solargeo.AverageElevation(series, config.Latitude, config.Longitude, ref, config.IntegrationStep)
	if err != nil {
		return 0, err
	}
	return samples[0].Elevation, nil
}

func (m *Monitor) fetchCloudCover() (*weather.CloudCover, error) {
	// Check cache first
	if cached, ok := m.weatherCache.Get(); ok {
		return cached, nil
	}

	config := m.GetConfig()

	fetch := m.cloudCoverFunc
	if fetch == nil {
		m.logger.Printf("Bin integration: fetching cloud cover from API")
		client := weather.NewClient(config.UserAgent)
		fetch = client.GetCloudCover
	}

	cover, err := fetch(config.Latitude, config.Longitude)
	if err != nil {
		return nil, err
	}

	// Store in cache
	m.weatherCache.Set(cover)

	return cover, nil
}

// runPositionUpdate refreshes the live sun state served by the web endpoints.
func (m *Monitor) runPositionUpdate() {
	config := m.GetConfig()
	now := time.Now().UTC()

	pos, err := solargeo.SunPosition(now, config.Latitude, config.Longitude, true)
	if err != nil {
		m.logger.Printf("Position update: %v", err)
		return
	}

	sunTimes := suncalc.GetTimes(now, config.Latitude, config.Longitude)
	sunrise := sunTimes["sunrise"].Value.UTC()
	sunset := sunTimes["sunset"].Value.UTC()

	state := &SunState{
		Position:   pos,
		ComputedAt: now,
		Sunrise:    sunrise,
		Sunset:     sunset,
		Daylight:   !now.Before(sunrise) && !now.After(sunset),
	}

	m.mu.Lock()
	m.sunState = state
	m.mu.Unlock()
}
