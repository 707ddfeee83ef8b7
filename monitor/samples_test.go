package monitor

import (
	"testing"
	"time"

	"github.com/devskill-org/solar-irradiance-monitor/pyranometer"
)

func addReading(samples *IrradianceSamples, irradiance, bodyTemp float64, ts time.Time) {
	samples.AddSample(&pyranometer.Measurement{
		Irradiance:      irradiance,
		BodyTemperature: bodyTemp,
		Timestamp:       ts,
	})
}

func TestIrradianceSamples_AggregateWithPeriodBoundary(t *testing.T) {
	samples := &IrradianceSamples{}
	pollInterval := 10 * time.Second
	integrationPeriod := 1 * time.Minute

	baseTime := time.Date(2026, 6, 21, 12, 0, 0, 0, time.UTC)

	// Add samples for first period (12:00:00 to 12:00:50)
	// 6 samples: 0s, 10s, 20s, 30s, 40s, 50s
	for i := 0; i < 6; i++ {
		ts := baseTime.Add(time.Duration(i) * pollInterval)
		addReading(samples, 600.0, 25.0, ts)
	}

	// Add samples for second period (12:01:00 to 12:01:50)
	for i := 0; i < 6; i++ {
		ts := baseTime.Add(integrationPeriod).Add(time.Duration(i) * pollInterval)
		addReading(samples, 900.0, 26.0, ts)
	}

	// Aggregate first period only (cutoff at 12:01:00)
	// This includes samples at 0s..50s plus the one at exactly 60s (<=)
	cutoffTime := baseTime.Add(integrationPeriod)
	agg := samples.Aggregate(pollInterval, cutoffTime)

	if agg.sampleCount != 7 {
		t.Errorf("Expected 7 samples aggregated, got %d", agg.sampleCount)
	}

	if !agg.timestamp.Equal(cutoffTime) {
		t.Errorf("Expected timestamp %v, got %v", cutoffTime, agg.timestamp)
	}

	// Mean of 6x600 + 1x900 = 4500/7
	expectedMean := (600.0*6 + 900.0) / 7
	if abs(agg.meanIrradiance-expectedMean) > 0.001 {
		t.Errorf("Expected mean ~%.3f W/m2, got %.3f W/m2", expectedMean, agg.meanIrradiance)
	}

	if agg.peakIrradiance != 900.0 {
		t.Errorf("Expected peak 900.0 W/m2, got %.1f W/m2", agg.peakIrradiance)
	}

	// Insolation = sum(W) * 10s / 3600 = 4500 / 360 Wh/m²
	expectedInsolation := (600.0*6 + 900.0) * (pollInterval.Seconds() / 3600.0)
	if abs(agg.insolation-expectedInsolation) > 0.001 {
		t.Errorf("Expected insolation ~%.3f Wh/m2, got %.3f Wh/m2", expectedInsolation, agg.insolation)
	}

	// Body temperature comes from the last reading of the bin
	if agg.bodyTemperature != 26.0 {
		t.Errorf("Expected body temperature 26.0, got %.1f", agg.bodyTemperature)
	}

	// Verify samples are still present (not cleared)
	if samples.IsEmpty() {
		t.Error("Samples should not be cleared after aggregation")
	}
}

func TestIrradianceSamples_ClearBefore(t *testing.T) {
	samples := &IrradianceSamples{}
	baseTime := time.Date(2026, 6, 21, 12, 0, 0, 0, time.UTC)

	// Add 12 samples at 10s spacing (0s to 110s)
	for i := 0; i < 12; i++ {
		ts := baseTime.Add(time.Duration(i) * 10 * time.Second)
		addReading(samples, 500.0, 25.0, ts)
	}

	// Clear samples before and at the 1 minute mark (60s)
	// This removes samples at: 0s..60s (7 samples)
	cutoffTime := baseTime.Add(1 * time.Minute)
	samples.ClearBefore(cutoffTime)

	samples.mu.Lock()
	sampleCount := len(samples.samples)
	firstSampleTime := samples.samples[0].ts
	samples.mu.Unlock()

	if sampleCount != 5 {
		t.Errorf("Expected 5 samples remaining, got %d", sampleCount)
	}

	if !firstSampleTime.After(cutoffTime) {
		t.Errorf("First remaining sample at %v should be after cutoff %v", firstSampleTime, cutoffTime)
	}
}

func TestIrradianceSamples_AggregationPreservesForRetry(t *testing.T) {
	samples := &IrradianceSamples{}
	pollInterval := 10 * time.Second
	baseTime := time.Date(2026, 6, 21, 12, 0, 0, 0, time.UTC)

	// Add 6 samples for first period (0s to 50s)
	for i := 0; i < 6; i++ {
		ts := baseTime.Add(time.Duration(i) * pollInterval)
		addReading(samples, 400.0, 25.0, ts)
	}

	cutoffTime := baseTime.Add(50 * time.Second)

	// First aggregation attempt
	agg1 := samples.Aggregate(pollInterval, cutoffTime)

	// Simulate a failed insert - don't clear samples, new readings arrive
	for i := 0; i < 6; i++ {
		ts := baseTime.Add(60 * time.Second).Add(time.Duration(i) * pollInterval)
		addReading(samples, 800.0, 26.0, ts)
	}

	// Retry aggregation for the first period (same cutoff)
	agg2 := samples.Aggregate(pollInterval, cutoffTime)

	if agg1.sampleCount != agg2.sampleCount {
		t.Errorf("Retry produced different sample count: first=%d, retry=%d", agg1.sampleCount, agg2.sampleCount)
	}

	if agg1.meanIrradiance != agg2.meanIrradiance {
		t.Errorf("Retry produced different mean: first=%.3f, retry=%.3f", agg1.meanIrradiance, agg2.meanIrradiance)
	}

	if agg2.sampleCount != 6 {
		t.Errorf("Expected 6 samples on retry, got %d", agg2.sampleCount)
	}

	// Samples from the second period must not leak into the first
	if agg2.peakIrradiance != 400.0 {
		t.Errorf("Expected peak 400.0 (first period only), got %.1f", agg2.peakIrradiance)
	}

	// Now clear the first period and aggregate the second
	samples.ClearBefore(cutoffTime)
	agg3 := samples.Aggregate(pollInterval, baseTime.Add(110*time.Second))

	if agg3.sampleCount != 6 {
		t.Errorf("Expected 6 samples for second period, got %d", agg3.sampleCount)
	}

	if agg3.meanIrradiance <= agg1.meanIrradiance {
		t.Errorf("Second period mean (%.1f) should be higher than first (%.1f)",
			agg3.meanIrradiance, agg1.meanIrradiance)
	}
}

func TestIrradianceSamples_EmptyAggregation(t *testing.T) {
	samples := &IrradianceSamples{}

	agg := samples.Aggregate(10*time.Second, time.Now())

	if agg.sampleCount != 0 {
		t.Errorf("Expected 0 samples, got %d", agg.sampleCount)
	}

	if agg.meanIrradiance != 0 {
		t.Errorf("Expected 0 mean irradiance, got %.3f", agg.meanIrradiance)
	}

	if agg.insolation != 0 {
		t.Errorf("Expected 0 insolation, got %.3f", agg.insolation)
	}
}

func TestIrradianceSamples_BoundaryConditions(t *testing.T) {
	samples := &IrradianceSamples{}
	pollInterval := 10 * time.Second
	baseTime := time.Date(2026, 6, 21, 12, 0, 0, 0, time.UTC)

	// One sample exactly at the boundary, one 1ns after
	addReading(samples, 300.0, 25.0, baseTime)
	addReading(samples, 700.0, 25.0, baseTime.Add(1))

	agg := samples.Aggregate(pollInterval, baseTime)

	// Should include the sample at exactly the boundary (<=)
	if agg.sampleCount != 1 {
		t.Errorf("Expected 1 sample at boundary, got %d", agg.sampleCount)
	}

	samples.ClearBefore(baseTime)

	samples.mu.Lock()
	remaining := len(samples.samples)
	samples.mu.Unlock()

	if remaining != 1 {
		t.Errorf("Expected 1 sample remaining after clear, got %d", remaining)
	}
}

func TestIrradianceSamples_GetLatestIrradiance(t *testing.T) {
	samples := &IrradianceSamples{}

	if got := samples.GetLatestIrradiance(); got != 0 {
		t.Errorf("Expected 0 for empty collection, got %.1f", got)
	}

	baseTime := time.Date(2026, 6, 21, 12, 0, 0, 0, time.UTC)
	addReading(samples, 250.0, 25.0, baseTime)
	addReading(samples, 350.0, 25.0, baseTime.Add(10*time.Second))

	if got := samples.GetLatestIrradiance(); got != 350.0 {
		t.Errorf("Expected latest irradiance 350.0, got %.1f", got)
	}

	if got := samples.Count(); got != 2 {
		t.Errorf("Expected 2 pending samples, got %d", got)
	}
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
