// Package pyranometer reads irradiance measurements from SMP-series smart
// thermopile pyranometers over Modbus.
package pyranometer

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/goburrow/modbus"
)

// Modbus client configuration
const (
	MinSlaveAddress = 1
	MaxSlaveAddress = 247
	DefaultAddress  = 1
)

// Input register layout of the SMP-series sensors. All registers are 16 bit,
// big-endian; irradiance values are scaled by the power of ten the sensor
// reports in the scale-factor register.
const (
	regDeviceType      = 0 // u16, model identifier
	regFirmwareVersion = 1 // u16, version x100
	regOperationalMode = 2 // u16, 1 = normal operation
	regStatusFlags     = 3 // u16, bit field, 0 = healthy
	regScaleFactor     = 4 // s16, decimal exponent for irradiance registers
	regIrradiance      = 5 // s16, temperature compensated, W/m2 x 10^scale
	regRawIrradiance   = 6 // s16, uncompensated, W/m2 x 10^scale
	regStdDeviation    = 7 // s16, over the last second, W/m2 x 10^scale
	regBodyTemperature = 8 // s16, 0.1 degC
)

const measurementRegisterCount = 9

// Client represents a Modbus connection to one pyranometer.
type Client struct {
	client     modbus.Client
	handler    *modbus.RTUClientHandler
	tcpHandler *modbus.TCPClientHandler
}

// Measurement is one irradiance reading with its sensor diagnostics.
type Measurement struct {
	Irradiance      float64   // W/m², temperature compensated
	RawIrradiance   float64   // W/m², uncompensated
	StdDeviation    float64   // W/m², spread over the sensor's last second
	BodyTemperature float64   // °C
	StatusFlags     uint16    // 0 = healthy
	Timestamp       time.Time // read time, UTC
}

// DeviceInfo identifies the connected sensor.
type DeviceInfo struct {
	DeviceType      uint16
	FirmwareVersion string
	OperationalMode uint16
}

// NewTCPClient connects to a sensor behind a Modbus TCP gateway.
func NewTCPClient(address string, slaveID byte) (*Client, error) {
	if slaveID < MinSlaveAddress || slaveID > MaxSlaveAddress {
		return nil, fmt.Errorf("invalid slave ID: must be between %d and %d", MinSlaveAddress, MaxSlaveAddress)
	}
	handler := modbus.NewTCPClientHandler(address)
	handler.SlaveId = slaveID
	handler.Timeout = 1 * time.Second

	err := handler.Connect()
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %v", err)
	}

	return &Client{
		client:     modbus.NewClient(handler),
		tcpHandler: handler,
	}, nil
}

// NewRTUClient connects to a sensor on a serial RS-485 bus.
func NewRTUClient(device string, baudRate int, slaveID byte) (*Client, error) {
	if slaveID < MinSlaveAddress || slaveID > MaxSlaveAddress {
		return nil, fmt.Errorf("invalid slave ID: must be between %d and %d", MinSlaveAddress, MaxSlaveAddress)
	}
	handler := modbus.NewRTUClientHandler(device)
	handler.BaudRate = baudRate
	handler.DataBits = 8
	handler.Parity = "E"
	handler.StopBits = 1
	handler.SlaveId = slaveID
	handler.Timeout = 1 * time.Second

	err := handler.Connect()
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %v", err)
	}

	return &Client{
		client:  modbus.NewClient(handler),
		handler: handler,
	}, nil
}

// Close closes the Modbus connection.
func (c *Client) Close() error {
	if c.handler != nil {
		return c.handler.Close()
	}
	if c.tcpHandler != nil {
		return c.tcpHandler.Close()
	}
	return nil
}

// ReadMeasurement reads the full measurement block in one request.
func (c *Client) ReadMeasurement() (*Measurement, error) {
	data, err := c.client.ReadInputRegisters(regDeviceType, measurementRegisterCount)
	if err != nil {
		return nil, fmt.Errorf("failed to read measurement block: %v", err)
	}

	scale := math.Pow(10, float64(bytesToS16(data[regScaleFactor*2:regScaleFactor*2+2])))

	return &Measurement{
		Irradiance:      float64(bytesToS16(data[regIrradiance*2:regIrradiance*2+2])) * scale,
		RawIrradiance:   float64(bytesToS16(data[regRawIrradiance*2:regRawIrradiance*2+2])) * scale,
		StdDeviation:    float64(bytesToS16(data[regStdDeviation*2:regStdDeviation*2+2])) * scale,
		BodyTemperature: float64(bytesToS16(data[regBodyTemperature*2:regBodyTemperature*2+2])) / 10.0,
		StatusFlags:     bytesToU16(data[regStatusFlags*2 : regStatusFlags*2+2]),
		Timestamp:       time.Now().UTC(),
	}, nil
}

// ReadDeviceInfo reads the identification registers.
func (c *Client) ReadDeviceInfo() (*DeviceInfo, error) {
	data, err := c.client.ReadInputRegisters(regDeviceType, 3)
	if err != nil {
		return nil, fmt.Errorf("failed to read device info: %v", err)
	}

	version := bytesToU16(data[2:4])
	return &DeviceInfo{
		DeviceType:      bytesToU16(data[0:2]),
		FirmwareVersion: fmt.Sprintf("%d.%02d", version/100, version%100),
		OperationalMode: bytesToU16(data[4:6]),
	}, nil
}

// Helper functions for data conversion
func bytesToU16(data []byte) uint16 {
	return binary.BigEndian.Uint16(data)
}

func bytesToS16(data []byte) int16 {
	return int16(binary.BigEndian.Uint16(data))
}
