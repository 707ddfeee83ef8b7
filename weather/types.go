package weather

import "time"

// CloudCover is the sky state over a location at one forecast instant.
type CloudCover struct {
	Time       time.Time // forecast instant, UTC
	Fraction   float64   // cloud area fraction, percent (0-100)
	SymbolCode string    // e.g. "clearsky_day", empty when the API omits it
	UpdatedAt  time.Time // when the forecast was produced
}

// Wire types mirroring the subset of the locationforecast compact
// response this package reads.
type metForecast struct {
	Properties metProperties `json:"properties"`
}

type metProperties struct {
	Meta       metMeta       `json:"meta"`
	Timeseries []metTimeStep `json:"timeseries"`
}

type metMeta struct {
	UpdatedAt time.Time `json:"updated_at"`
}

type metTimeStep struct {
	Time time.Time   `json:"time"`
	Data metStepData `json:"data"`
}

type metStepData struct {
	Instant    metInstant   `json:"instant"`
	Next1Hours *metNextHour `json:"next_1_hours,omitempty"`
}

type metInstant struct {
	Details metInstantDetails `json:"details"`
}

type metInstantDetails struct {
	CloudAreaFraction *float64 `json:"cloud_area_fraction,omitempty"`
}

type metNextHour struct {
	Summary metSummary `json:"summary"`
}

type metSummary struct {
	SymbolCode string `json:"symbol_code"`
}
