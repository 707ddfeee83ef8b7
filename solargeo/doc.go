// Package solargeo computes the apparent position of the Sun for arbitrary
// geographic locations and UTC timestamps, and derives time-averaged
// elevation angles suitable for correcting solar-irradiance measurements
// that are integrated over a sampling interval.
//
// The position calculation implements the Astronomical Almanac's
// low-precision solar ephemeris (Michalsky 1988), which is accurate to
// about 0.01 degrees for years 1950 through 2050. Timestamps outside that
// range are rejected.
//
// Basic Usage:
//
//	pos, err := solargeo.SunPosition(time.Now().UTC(), 47.6097, -122.3331, true)
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Printf("elevation %.2f°, azimuth %.2f°, distance %.4f AU\n",
//		pos.Elevation, pos.Azimuth, pos.Distance)
//
// Averaged elevation angles for a regular measurement series:
//
//	samples, err := solargeo.AverageElevation(stamps, 47.6097, -122.3331,
//		solargeo.RefEnd, 5*time.Minute)
//	if err != nil {
//		log.Fatal(err)
//	}
//	for _, s := range samples {
//		fmt.Printf("%v  %.2f°\n", s.Time, s.Elevation)
//	}
//
// Functions:
//
// - SunPosition(): Position of the Sun at a single instant
// - SunPositions(): Batch evaluation over instants and observation points
// - AverageElevation(): Per-bin average elevation over a regular time series
//
// Elevation angles below the horizon are reported as exactly 0, so sin of
// the returned elevation can be used directly as a clear-sky production
// factor. Averaging integrates sin(elevation) rather than the elevation
// angle itself, because elevation is strongly curved in time near sunrise
// and sunset and a naive average would bias irradiance-derived quantities.
package solargeo
