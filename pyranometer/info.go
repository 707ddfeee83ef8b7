package pyranometer

import (
	"fmt"
)

// ShowSensorInfo connects to the sensor, reads its identification registers
// and one measurement, and prints them to stdout.
func ShowSensorInfo(address string, slaveID byte) error {
	if address == "" {
		return fmt.Errorf("sensor address is not configured")
	}

	client, err := NewTCPClient(address, slaveID)
	if err != nil {
		return fmt.Errorf("error connecting to sensor at %s: %w", address, err)
	}
	defer client.Close()

	info, err := client.ReadDeviceInfo()
	if err != nil {
		return fmt.Errorf("error reading device information: %w", err)
	}

	measurement, err := client.ReadMeasurement()
	if err != nil {
		return fmt.Errorf("error reading measurement: %w", err)
	}

	fmt.Println()
	fmt.Println("======================== PYRANOMETER INFORMATION ========================")
	fmt.Println()

	fmt.Println("DEVICE")
	fmt.Println("--------------------------------------------------")
	fmt.Printf("  Device Type:                    %d\n", info.DeviceType)
	fmt.Printf("  Firmware Version:               %s\n", info.FirmwareVersion)
	fmt.Printf("  Operational Mode:               %s\n", getOperationalMode(info.OperationalMode))
	fmt.Println()

	fmt.Println("CURRENT MEASUREMENT")
	fmt.Println("--------------------------------------------------")
	fmt.Printf("  Irradiance:                     %.1f W/m2\n", measurement.Irradiance)
	fmt.Printf("  Raw Irradiance:                 %.1f W/m2\n", measurement.RawIrradiance)
	fmt.Printf("  Standard Deviation:             %.1f W/m2\n", measurement.StdDeviation)
	fmt.Printf("  Body Temperature:               %.1f degC\n", measurement.BodyTemperature)
	fmt.Printf("  Status Flags:                   %s\n", getStatusFlags(measurement.StatusFlags))
	fmt.Printf("  Read At:                        %s\n", measurement.Timestamp.Format("2006-01-02 15:04:05 MST"))
	fmt.Println()

	return nil
}

func getOperationalMode(mode uint16) string {
	switch mode {
	case 0:
		return "Standby"
	case 1:
		return "Normal operation"
	case 2:
		return "Calibration"
	default:
		return fmt.Sprintf("Unknown (%d)", mode)
	}
}

func getStatusFlags(flags uint16) string {
	if flags == 0 {
		return "OK"
	}
	return fmt.Sprintf("0x%04X (check sensor manual)", flags)
}
