package solargeo

import (
	"fmt"
	"math"
	"time"
)

const (
	// rpd converts degrees to radians.
	rpd = math.Pi / 180

	// j2000 is the Julian date of the ephemeris epoch 2000-01-01T12:00Z.
	j2000 = 2451545.0
)

// SunPosition computes the apparent solar position for a single instant and
// observation point. Latitude is positive north, longitude positive east,
// both in degrees. The timestamp is interpreted in UTC and its year must
// fall within [MinYear, MaxYear].
func SunPosition(t time.Time, lat, lon float64, refraction bool) (Position, error) {
	positions, err := SunPositions([]time.Time{t}, []float64{lat}, []float64{lon}, refraction)
	if err != nil {
		return Position{}, err
	}
	return positions[0], nil
}

// SunPositions computes the apparent solar position for a batch of instants
// and observation points. A length-1 slice acts as a scalar and pairs with
// every element of the other inputs; otherwise all inputs longer than one
// must have matching lengths, and elements are paired one-to-one. The call
// is atomic: every input is validated before any position is computed, and
// on error no partial results are returned.
func SunPositions(times []time.Time, lats, lons []float64, refraction bool) ([]Position, error) {
	n, err := batchLength(times, lats, lons)
	if err != nil {
		return nil, err
	}
	if err := validateBatch(times, lats, lons); err != nil {
		return nil, err
	}

	positions := make([]Position, n)
	for i := 0; i < n; i++ {
		t := times[pick(i, len(times))]
		lat := lats[pick(i, len(lats))]
		lon := lons[pick(i, len(lons))]

		el, az, dist := sunae(t, lat, lon, refraction)
		if !(el >= -90 && el <= 90) {
			return nil, &InvariantError{Quantity: "elevation", Value: el}
		}
		if !(az >= 0 && az <= 360) {
			return nil, &InvariantError{Quantity: "azimuth", Value: az}
		}
		if el < 0 {
			el = 0
		}
		positions[i] = Position{Elevation: el, Azimuth: az, Distance: dist}
	}
	return positions, nil
}

// sunae implements the Astronomical Almanac low-precision solar ephemeris
// after Michalsky (1988), Solar Energy 40(3). Elevation and azimuth are
// returned in degrees, the Earth-Sun distance in astronomical units. The
// returned elevation may be negative; the caller applies the night clamp
// after checking postconditions.
//
// The quadrant fix-ups are kept exactly as published, including the
// two-step arctangent correction for right ascension. A four-quadrant
// atan2 would be equivalent in exact arithmetic but does not reproduce
// the reference outputs bit for bit.
func sunae(t time.Time, lat, lon float64, refraction bool) (el, az, dist float64) {
	days := julianDate(t) - j2000

	// Ecliptic coordinates of the Sun.
	mnlon := wrap360(280.460 + 0.9856474*days)
	mnanom := wrap360(357.528+0.9856003*days) * rpd
	eclon := wrap360(mnlon+1.915*math.Sin(mnanom)+0.020*math.Sin(2*mnanom)) * rpd
	oblqec := (23.439 - 4.0e-7*days) * rpd

	// Celestial coordinates: right ascension and declination.
	num := math.Cos(oblqec) * math.Sin(eclon)
	den := math.Cos(eclon)
	ra := math.Atan(num / den)
	if den < 0 {
		ra += math.Pi
	} else if num < 0 {
		ra += 2 * math.Pi
	}
	dec := math.Asin(math.Sin(oblqec) * math.Sin(eclon))

	// Local mean sidereal time, in radians.
	gmst := wrap24(6.697375 + 0.0657098242*days + utcHours(t))
	lmst := wrap24(gmst+lon/15) * 15 * rpd

	// Hour angle in (-pi, pi].
	ha := math.Mod(lmst-ra, 2*math.Pi)
	if ha < -math.Pi {
		ha += 2 * math.Pi
	} else if ha > math.Pi {
		ha -= 2 * math.Pi
	}

	// Elevation and azimuth.
	latRad := lat * rpd
	elRad := math.Asin(math.Sin(dec)*math.Sin(latRad) + math.Cos(dec)*math.Cos(latRad)*math.Cos(ha))
	azRad := math.Asin(-math.Cos(dec) * math.Sin(ha) / math.Cos(elRad))
	if math.Sin(dec)-math.Sin(elRad)*math.Sin(latRad) >= 0 {
		if math.Sin(azRad) < 0 {
			azRad += 2 * math.Pi
		}
	} else {
		azRad = math.Pi - azRad
	}

	el = elRad / rpd
	az = azRad / rpd

	if refraction {
		el += refractionCorrection(el)
	}

	dist = 1.00014 - 0.01671*math.Cos(mnanom) - 0.00014*math.Cos(2*mnanom)
	return el, az, dist
}

// refractionCorrection returns the apparent-elevation correction in degrees
// for a geometric elevation el in degrees. The factor 3.51823 scales the
// standard formula to US Standard Atmosphere surface conditions
// (1013.25 mb, 288 K).
func refractionCorrection(el float64) float64 {
	switch {
	case el >= 19.225:
		return 0.00452 * 3.51823 / math.Tan(el*rpd)
	case el > -0.766:
		return 3.51823 * (0.1594 + el*(0.0196+0.00002*el)) / (1 + el*(0.505+0.0845*el))
	default:
		return 0
	}
}

// julianDate returns the Julian date of t in UTC, including the fractional
// day. January and February are treated as months 13 and 14 of the previous
// year, per the standard Gregorian conversion.
func julianDate(t time.Time) float64 {
	t = t.UTC()
	year := t.Year()
	month := int(t.Month())
	if month <= 2 {
		year--
		month += 12
	}
	a := year / 100
	b := 2 - a + a/4
	day := float64(t.Day()) + utcHours(t)/24
	return math.Floor(365.25*float64(year+4716)) +
		math.Floor(30.6001*float64(month+1)) +
		day + float64(b) - 1524.5
}

// utcHours returns the hours elapsed since UTC midnight, including the
// fractional part down to nanoseconds.
func utcHours(t time.Time) float64 {
	t = t.UTC()
	return float64(t.Hour()) + float64(t.Minute())/60 +
		(float64(t.Second())+float64(t.Nanosecond())/1e9)/3600
}

// wrap360 normalizes an angle in degrees into [0, 360). math.Mod keeps the
// result within one period of zero, so a single conditional correction
// suffices.
func wrap360(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}

// wrap24 normalizes a time of day in hours into [0, 24).
func wrap24(h float64) float64 {
	h = math.Mod(h, 24)
	if h < 0 {
		h += 24
	}
	return h
}

// pick maps a batch index onto a possibly scalar (length-1) input.
func pick(i, n int) int {
	if n == 1 {
		return 0
	}
	return i
}

// batchLength determines the common length of the broadcast inputs.
func batchLength(times []time.Time, lats, lons []float64) (int, error) {
	if len(times) == 0 {
		return 0, &RangeError{Field: "time", Message: "at least one timestamp required"}
	}
	if len(lats) == 0 || len(lons) == 0 {
		return 0, &RangeError{Field: "latitude", Message: "at least one observation point required"}
	}
	if len(lats) != len(lons) {
		return 0, &RangeError{
			Field:   "longitude",
			Message: fmt.Sprintf("latitude and longitude counts differ: %d vs %d", len(lats), len(lons)),
		}
	}
	if len(times) > 1 && len(lats) > 1 && len(times) != len(lats) {
		return 0, &RangeError{
			Field:   "time",
			Message: fmt.Sprintf("%d timestamps cannot pair with %d observation points", len(times), len(lats)),
		}
	}
	n := len(times)
	if len(lats) > n {
		n = len(lats)
	}
	return n, nil
}

// validateBatch checks every element of the batch before any computation.
func validateBatch(times []time.Time, lats, lons []float64) error {
	for _, t := range times {
		if y := t.UTC().Year(); y < MinYear || y > MaxYear {
			return &RangeError{
				Field:   "time",
				Message: fmt.Sprintf("year %d outside supported range [%d, %d]", y, MinYear, MaxYear),
			}
		}
	}
	for _, lat := range lats {
		if !(lat >= -90 && lat <= 90) {
			return &RangeError{
				Field:   "latitude",
				Message: fmt.Sprintf("%v outside [-90, 90]", lat),
			}
		}
	}
	for _, lon := range lons {
		if !(lon >= -180 && lon <= 180) {
			return &RangeError{
				Field:   "longitude",
				Message: fmt.Sprintf("%v outside [-180, 180]", lon),
			}
		}
	}
	return nil
}
