package solargeo

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"
)

// elevationFunc evaluates night-clamped elevation angles for a batch of
// instants at a fixed observation point. Tests substitute a synthetic
// calculator through this seam.
type elevationFunc func(times []time.Time, lat, lon float64) ([]float64, error)

// AverageElevation returns the elevation angle averaged over each bin of a
// regular measurement series. For instantaneous values call SunPosition
// directly.
//
// The series timestamps must be equally spaced; ref states whether each
// timestamp marks the beginning, middle or end of its averaging interval.
// Internally the series is shifted to the bin-start convention, sin of the
// elevation angle (the clear-sky production factor) is integrated over a
// fine sub-grid of the given step (DefaultIntegrationStep when step <= 0),
// and the per-bin mean is mapped back to an angle. One sample is returned
// per input bin, labeled with the bin-start timestamp, clamped to 0 for
// bins that fall entirely in the night.
func AverageElevation(times []time.Time, lat, lon float64, ref Reference, step time.Duration) ([]ElevationSample, error) {
	return averageElevation(times, lat, lon, ref, step, fineElevations)
}

func averageElevation(times []time.Time, lat, lon float64, ref Reference, step time.Duration, elevate elevationFunc) ([]ElevationSample, error) {
	if step <= 0 {
		step = DefaultIntegrationStep
	}
	dt, err := seriesSpacing(times)
	if err != nil {
		return nil, err
	}

	// Move the timestamps to the beginning of their averaging interval.
	var shift time.Duration
	switch ref {
	case RefBegin:
		shift = 0
	case RefMiddle:
		shift = -dt / 2
	case RefEnd:
		shift = -dt
	default:
		return nil, &ArgumentError{
			Argument: "ref",
			Message:  fmt.Sprintf("unrecognized reference convention %q", string(ref)),
		}
	}
	starts := make([]time.Time, len(times))
	for i, t := range times {
		starts[i] = t.Add(shift)
	}

	fine := fineGrid(starts[0], starts[len(starts)-1], step)
	elevations, err := elevate(fine, lat, lon)
	if err != nil {
		return nil, err
	}

	// Collect mu = sin(elevation) per bin, left-labeled: a fine sample at
	// starts[0] + x belongs to bin floor(x / dt).
	mu := make([][]float64, len(starts))
	for i, ft := range fine {
		k := int(ft.Sub(starts[0]) / dt)
		mu[k] = append(mu[k], math.Sin(elevations[i]*rpd))
	}

	samples := make([]ElevationSample, len(starts))
	for k, start := range starts {
		var el float64
		if len(mu[k]) > 0 {
			el = math.Asin(stat.Mean(mu[k], nil)) / rpd
		}
		if !(el > 0) {
			el = 0
		}
		samples[k] = ElevationSample{Time: start, Elevation: el}
	}
	return samples, nil
}

// fineElevations evaluates the real calculator, refraction enabled, and
// keeps only the elevation angles.
func fineElevations(times []time.Time, lat, lon float64) ([]float64, error) {
	positions, err := SunPositions(times, []float64{lat}, []float64{lon}, true)
	if err != nil {
		return nil, err
	}
	elevations := make([]float64, len(positions))
	for i, p := range positions {
		elevations[i] = p.Elevation
	}
	return elevations, nil
}

// seriesSpacing returns the single spacing of a regular series.
func seriesSpacing(times []time.Time) (time.Duration, error) {
	if len(times) < 2 {
		return 0, &NotSupportedError{Message: "series too short to establish a sampling interval"}
	}
	dt := times[1].Sub(times[0])
	if dt <= 0 {
		return 0, &NotSupportedError{Message: "series timestamps must be strictly increasing"}
	}
	for i := 2; i < len(times); i++ {
		if times[i].Sub(times[i-1]) != dt {
			return 0, &NotSupportedError{Message: "discontinuous series unsupported"}
		}
	}
	return dt, nil
}

// fineGrid returns the uniform grid from start to end at the given step.
// end is included only when it falls on the grid.
func fineGrid(start, end time.Time, step time.Duration) []time.Time {
	grid := make([]time.Time, int(end.Sub(start)/step)+1)
	for i := range grid {
		grid[i] = start.Add(time.Duration(i) * step)
	}
	return grid
}
