package monitor

import (
	"sync"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/devskill-org/solar-irradiance-monitor/pyranometer"
)

// IrradianceSample represents a single pyranometer reading.
type IrradianceSample struct {
	irradiance      float64 // W/m², temperature compensated
	bodyTemperature float64 // °C
	ts              time.Time
}

// IrradianceSamples is a thread-safe collection of pyranometer readings.
type IrradianceSamples struct {
	mu      sync.Mutex
	samples []IrradianceSample
}

// AddSample adds a new reading to the collection.
func (d *IrradianceSamples) AddSample(m *pyranometer.Measurement) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.samples = append(d.samples, IrradianceSample{
		irradiance:      m.Irradiance,
		bodyTemperature: m.BodyTemperature,
		ts:              m.Timestamp,
	})
}

// AggregatedIrradiance represents readings aggregated over one bin.
type AggregatedIrradiance struct {
	meanIrradiance  float64 // W/m²
	peakIrradiance  float64 // W/m²
	insolation      float64 // Wh/m², poll-interval weighted sum
	bodyTemperature float64 // °C, last reading of the bin
	timestamp       time.Time
	sampleCount     int // Number of samples aggregated
}

// Aggregate computes aggregated irradiance values from collected samples up
// to the specified cutoff time. Only samples with timestamp <= cutoffTime
// are included. The cutoffTime represents the end of the bin and is used as
// the result timestamp. Samples are preserved and must be cleared explicitly
// using ClearBefore() after successful processing.
func (d *IrradianceSamples) Aggregate(pollInterval time.Duration, cutoffTime time.Time) AggregatedIrradiance {
	d.mu.Lock()
	defer d.mu.Unlock()

	var result AggregatedIrradiance
	result.timestamp = cutoffTime

	values := make([]float64, 0, len(d.samples))
	for _, sample := range d.samples {
		// Only aggregate samples that belong to this bin
		if sample.ts.After(cutoffTime) {
			continue
		}
		values = append(values, sample.irradiance)
		result.bodyTemperature = sample.bodyTemperature
	}

	result.sampleCount = len(values)
	if result.sampleCount == 0 {
		return result
	}

	result.meanIrradiance = stat.Mean(values, nil)
	result.peakIrradiance = floats.Max(values)

	// W/m² * sec / 3600 = Wh/m²
	result.insolation = floats.Sum(values) * pollInterval.Seconds() / 3600.0

	return result
}

// ClearBefore removes all samples with timestamp <= cutoffTime from the collection.
// Should only be called after samples have been successfully processed for that bin.
func (d *IrradianceSamples) ClearBefore(cutoffTime time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	filteredSamples := make([]IrradianceSample, 0, len(d.samples))
	for _, sample := range d.samples {
		if sample.ts.After(cutoffTime) {
			filteredSamples = append(filteredSamples, sample)
		}
	}
	d.samples = filteredSamples
}

// IsEmpty returns true if there are no samples collected.
func (d *IrradianceSamples) IsEmpty() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.samples) == 0
}

// Count returns the number of pending samples.
func (d *IrradianceSamples) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.samples)
}

// GetLatestIrradiance returns the most recent reading, or 0 if no samples exist
func (d *IrradianceSamples) GetLatestIrradiance() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.samples) == 0 {
		return 0
	}
	return d.samples[len(d.samples)-1].irradiance
}
