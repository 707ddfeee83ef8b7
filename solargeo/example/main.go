// Package main provides an example of computing sun position and averaged elevation.
package main

import (
	"fmt"
	"math"
	"time"

	"github.com/sixdouglas/suncalc"

	"github.com/devskill-org/solar-irradiance-monitor/solargeo"
)

func main() {
	now := time.Now().UTC()

	// Sun position with atmospheric refraction (Riga)
	pos, err := solargeo.SunPosition(now, 56.9496, 24.1052, true)
	if err != nil {
		fmt.Println("position:", err)
		return
	}
	fmt.Printf("Elevation: %.2f°, Azimuth: %.2f°, Distance: %.5f AU\n",
		pos.Elevation, pos.Azimuth, pos.Distance)

	// The same instant through suncalc (altitude in radians, azimuth
	// measured from south)
	scPos := suncalc.GetPosition(now, 56.9496, 24.1052)
	fmt.Printf("suncalc:   Elevation: %.2f°, Azimuth: %.2f°\n",
		scPos.Altitude*180/math.Pi,
		math.Mod(scPos.Azimuth*180/math.Pi+360+180, 360))

	// Sunrise and sunset times
	sunTimes := suncalc.GetTimes(now, 56.9496, 24.1052)
	fmt.Println("Sunrise:", sunTimes["sunrise"].Value.UTC())
	fmt.Println("Sunset:", sunTimes["sunset"].Value.UTC())

	// Mean elevation over the next four 15-minute bins
	series := make([]time.Time, 5)
	start := now.Truncate(time.Hour)
	for i := range series {
		series[i] = start.Add(time.Duration(i) * 15 * time.Minute)
	}
	samples, err := solargeo.AverageElevation(series, 56.9496, 24.1052,
		solargeo.RefBegin, solargeo.DefaultIntegrationStep)
	if err != nil {
		fmt.Println("average:", err)
		return
	}
	for _, s := range samples[:4] {
		fmt.Printf("%s - %s  mean elevation %.2f°\n",
			s.Time.Format("15:04"),
			s.Time.Add(15*time.Minute).Format("15:04"),
			s.Elevation)
	}
}
