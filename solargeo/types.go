package solargeo

import "time"

// Position represents the apparent position of the Sun as seen from one
// observation point at one instant.
type Position struct {
	// Elevation is the angle above the horizon in degrees, refraction
	// corrected when requested. Positions below the horizon are reported
	// as exactly 0.
	Elevation float64 `json:"elevation"`
	// Azimuth is measured clockwise from true north in degrees, [0, 360).
	Azimuth float64 `json:"azimuth"`
	// Distance is the Earth-Sun distance in astronomical units.
	Distance float64 `json:"distance"`
}

// Reference describes which point of an averaging bin a series timestamp
// denotes. Measurement loggers disagree on this, and getting it wrong
// shifts every averaged value by up to one bin width.
type Reference string

const (
	// RefBegin - timestamps mark the beginning of their averaging interval.
	RefBegin Reference = "BEG"
	// RefMiddle - timestamps mark the middle of their averaging interval.
	RefMiddle Reference = "MID"
	// RefEnd - timestamps mark the end of their averaging interval.
	RefEnd Reference = "END"
)

// ElevationSample pairs a bin-start timestamp with the elevation angle
// averaged over that bin.
type ElevationSample struct {
	Time      time.Time `json:"time"`
	Elevation float64   `json:"elevation"`
}

// DefaultIntegrationStep is the sub-interval width AverageElevation uses
// when the caller does not supply one.
const DefaultIntegrationStep = 5 * time.Minute

// Validity range of the underlying ephemeris approximation.
const (
	MinYear = 1950
	MaxYear = 2050
)
