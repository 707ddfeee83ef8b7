// Package main provides the solar irradiance monitor entry point and CLI interface.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/devskill-org/solar-irradiance-monitor/monitor"
	"github.com/devskill-org/solar-irradiance-monitor/pyranometer"
	"github.com/devskill-org/solar-irradiance-monitor/solargeo"
)

func main() {
	// Command line flags
	var (
		configFile = flag.String("config", "config.json", "Configuration file path")
		info       = flag.Bool("info", false, "Show sensor information")
		position   = flag.Bool("position", false, "Print today's sun path for the site and exit")
		help       = flag.Bool("help", false, "Show help message")
		serverOnly = flag.Bool("serverOnly", false, "Run only web server without periodic tasks")
		dryRun     = flag.Bool("dryRun", false, "Log integrated bins without writing to the database")
	)
	flag.Parse()

	if *help {
		showHelp()
		return
	}

	config, err := monitor.LoadConfig(*configFile)
	if err != nil {
		fmt.Println("Error loading configuration:", err)
		return
	}
	if *dryRun {
		config.DryRun = true
	}

	if *info {
		if err := pyranometer.ShowSensorInfo(config.SensorAddress, byte(config.SensorSlaveID)); err != nil {
			fmt.Println("Error:", err)
			return
		}
		return
	}

	if *position {
		runPositionReport(config)
		return
	}

	fmt.Printf("Starting solar irradiance monitor with the following configuration:\n")
	fmt.Printf("  Site: %.4f, %.4f\n", config.Latitude, config.Longitude)
	if config.SensorAddress != "" {
		fmt.Printf("  Sensor: %s (slave %d)\n", config.SensorAddress, config.SensorSlaveID)
	} else {
		fmt.Printf("  Sensor: disabled\n")
	}
	fmt.Printf("  Poll Interval: %s\n", config.PollInterval)
	fmt.Printf("  Integration Period: %s\n", config.IntegrationPeriod)
	fmt.Printf("  Reference Convention: %s\n", config.Reference)
	if config.HTTPPort > 0 {
		fmt.Printf("  Web Server Port: %d\n", config.HTTPPort)
	}

	if config.DryRun {
		fmt.Printf("  Mode: DRY-RUN (bins will be logged only)\n")
	}
	fmt.Println()

	// Create logger
	logger := log.New(os.Stdout, "[MONITOR] ", log.LstdFlags)

	// Create monitor
	irradianceMonitor := monitor.NewMonitorWithWebServer(config, logger)

	// Set up context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start monitor in a goroutine
	go func() {
		if err := irradianceMonitor.Start(ctx, *serverOnly); err != nil {
			logger.Printf("Monitor error: %v", err)
		}
	}()

	logger.Printf("Monitor started. Press Ctrl+C to stop...")

	// Wait for shutdown signal
	<-sigChan
	logger.Printf("Shutdown signal received, stopping monitor...")

	// Cancel context to stop monitor
	cancel()

	// Give the monitor a moment to clean up
	irradianceMonitor.Stop()

	logger.Printf("Monitor stopped successfully")
}

func runPositionReport(config *monitor.Config) {
	// Extraterrestrial irradiance at 1 AU, W/m2
	const solarConstant = 1361.0

	now := time.Now().UTC()

	pos, err := solargeo.SunPosition(now, config.Latitude, config.Longitude, true)
	if err != nil {
		fmt.Println("Error computing sun position:", err)
		return
	}

	fmt.Println("\n========================================")
	fmt.Println("SUN PATH REPORT")
	fmt.Println("========================================")
	fmt.Printf("Site:      %.4f, %.4f\n", config.Latitude, config.Longitude)
	fmt.Printf("Time:      %s\n", now.Format("2006-01-02 15:04:05 UTC"))
	fmt.Printf("Elevation: %.2f deg\n", pos.Elevation)
	fmt.Printf("Azimuth:   %.2f deg\n", pos.Azimuth)
	fmt.Printf("Distance:  %.5f AU\n\n", pos.Distance)

	// Hourly averaged elevation for the whole UTC day
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	series := make([]time.Time, 25)
	for i := range series {
		series[i] = dayStart.Add(time.Duration(i) * time.Hour)
	}

	samples, err := solargeo.AverageElevation(series, config.Latitude, config.Longitude,
		solargeo.RefBegin, config.IntegrationStep)
	if err != nil {
		fmt.Println("Error averaging sun elevation:", err)
		return
	}

	// Distance varies by well under 0.1% over one day; one correction
	// factor serves the whole table.
	distanceCorrection := solarConstant / (pos.Distance * pos.Distance)

	fmt.Println("┌──────┬───────────────┬───────────┬───────────┬───────────────┐")
	fmt.Println("│ Hour │   Bin (UTC)   │ Mean Elev │ Solar Fct │ Clear-Sky Max │")
	fmt.Println("│      │               │   (deg)   │           │     (W/m2)    │")
	fmt.Println("├──────┼───────────────┼───────────┼───────────┼───────────────┤")

	totalPotential := 0.0
	daylightBins := 0
	for i, sample := range samples[:24] {
		// Averaged elevation is clamped at the horizon, so the factor
		// is zero for fully dark bins.
		factor := math.Sin(sample.Elevation * math.Pi / 180.0)
		clearSkyMax := distanceCorrection * factor
		if factor > 0 {
			daylightBins++
		}
		totalPotential += clearSkyMax

		fmt.Printf("│ %4d │ %5s - %5s │   %6.2f  │   %6.3f  │    %8.1f   │\n",
			i,
			sample.Time.Format("15:04"),
			sample.Time.Add(time.Hour).Format("15:04"),
			sample.Elevation,
			factor,
			clearSkyMax,
		)
	}

	fmt.Println("└──────┴───────────────┴───────────┴───────────┴───────────────┘")
	fmt.Println("\n========================================")
	fmt.Println("SUMMARY")
	fmt.Println("========================================")
	fmt.Printf("Daylight hours:          %d\n", daylightBins)
	fmt.Printf("Clear-sky potential:     %.0f Wh/m2\n", totalPotential)
	fmt.Println("========================================")
}

func showHelp() {
	fmt.Println("Solar Irradiance Monitor - Track measured against potential solar irradiance")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  Polls an SMP-series pyranometer over Modbus, averages the sun elevation over")
	fmt.Println("  each integration period and stores one record per period with the measured")
	fmt.Println("  irradiance, the geometric clear-sky potential and the cloud cover reported")
	fmt.Println("  by the MET Norway forecast API.")
	fmt.Println()
	fmt.Println("  Key Features:")
	fmt.Println("  - Irradiance sampling via Modbus TCP or RS-485")
	fmt.Println("  - Sun position and bin-averaged elevation (1950-2050 ephemeris)")
	fmt.Println("  - Clearness index against the extraterrestrial maximum")
	fmt.Println("  - Cloud cover annotation from the MET Norway API")
	fmt.Println("  - PostgreSQL bin storage with re-integration upserts")
	fmt.Println("  - Real-time web dashboard with WebSocket updates")
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  solar-monitor [OPTIONS]")
	fmt.Println()
	fmt.Println("OPTIONS:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  # Basic usage with default settings")
	fmt.Println("  solar-monitor")
	fmt.Println()
	fmt.Println("  # Custom configuration")
	fmt.Println("  solar-monitor --config=config.json")
	fmt.Println()
	fmt.Println("  # Show sensor information")
	fmt.Println("  solar-monitor -info")
	fmt.Println()
	fmt.Println("  # Print today's sun path for the site")
	fmt.Println("  solar-monitor -position")
	fmt.Println()
	fmt.Println("  # Run only web server without periodic tasks")
	fmt.Println("  solar-monitor -serverOnly")
	fmt.Println()
	fmt.Println("  # Show this help")
	fmt.Println("  solar-monitor -help")
}
