package monitor

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/devskill-org/solar-irradiance-monitor/pyranometer"
	"github.com/devskill-org/solar-irradiance-monitor/solargeo"
)

// Config represents the configuration for the irradiance monitor
type Config struct {
	// Site settings
	Latitude  float64 `json:"latitude"`  // Site latitude in degrees, north positive
	Longitude float64 `json:"longitude"` // Site longitude in degrees, east positive

	// Sensor settings
	SensorAddress string `json:"sensor_address"`  // Pyranometer Modbus gateway (format: IP:PORT, e.g., "192.168.1.100:502"), empty = disabled
	SensorSlaveID int    `json:"sensor_slave_id"` // Modbus slave address of the sensor

	// Sampling settings
	PollInterval      time.Duration `json:"poll_interval"`      // How often to read the sensor
	IntegrationPeriod time.Duration `json:"integration_period"` // Width of one stored bin
	IntegrationStep   time.Duration `json:"integration_step"`   // Sub-interval for sun elevation averaging
	Reference         string        `json:"reference"`          // Bin label convention: BEG, MID or END
	DryRun            bool          `json:"dry_run"`            // Log bins instead of writing them to the database

	// Storage settings
	DeviceID           int    `json:"device_id"`            // Device ID for the solar_bins table
	PostgresConnString string `json:"postgres_conn_string"` // PostgreSQL connection string, empty = disabled

	// Web server
	HTTPPort int `json:"http_port"` // Port for the web/API server (0 = disabled)

	// Weather API settings
	UserAgent             string        `json:"user_agent"`              // User agent for the MET API client
	WeatherUpdateInterval time.Duration `json:"weather_update_interval"` // Cloud cover cache lifetime
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Latitude:              56.9496, // Riga, Latvia
		Longitude:             24.1052, // Riga, Latvia
		SensorAddress:         "",
		SensorSlaveID:         pyranometer.DefaultAddress,
		PollInterval:          10 * time.Second,
		IntegrationPeriod:     15 * time.Minute,
		IntegrationStep:       solargeo.DefaultIntegrationStep,
		Reference:             string(solargeo.RefEnd),
		DryRun:                false,
		DeviceID:              0,
		PostgresConnString:    "",
		HTTPPort:              0,
		UserAgent:             "MyApp/1.0 (username@example.com)",
		WeatherUpdateInterval: 1 * time.Hour,
	}
}

// LoadConfig loads configuration from a JSON file
func LoadConfig(filename string) (*Config, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	return LoadConfigFromReader(file)
}

// LoadConfigFromReader loads configuration from an io.Reader
func LoadConfigFromReader(reader io.Reader) (*Config, error) {
	config := DefaultConfig()

	decoder := json.NewDecoder(reader)
	if err := decoder.Decode(config); err != nil {
		return nil, fmt.Errorf("failed to decode config JSON: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// SaveConfig saves the configuration to a JSON file
func (c *Config) SaveConfig(filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	return c.SaveConfigToWriter(file)
}

// SaveConfigToWriter saves the configuration to an io.Writer
func (c *Config) SaveConfigToWriter(writer io.Writer) error {
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(c); err != nil {
		return fmt.Errorf("failed to encode config JSON: %w", err)
	}

	return nil
}

// Validate checks if the configuration values are valid
func (c *Config) Validate() error {
	if c.Latitude < -90 || c.Latitude > 90 {
		return fmt.Errorf("latitude must be between -90 and 90, got: %f", c.Latitude)
	}

	if c.Longitude < -180 || c.Longitude > 180 {
		return fmt.Errorf("longitude must be between -180 and 180, got: %f", c.Longitude)
	}

	if c.SensorSlaveID < pyranometer.MinSlaveAddress || c.SensorSlaveID > pyranometer.MaxSlaveAddress {
		return fmt.Errorf("sensor_slave_id must be between %d and %d, got: %d",
			pyranometer.MinSlaveAddress, pyranometer.MaxSlaveAddress, c.SensorSlaveID)
	}

	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be greater than 0, got: %s", c.PollInterval)
	}

	if c.IntegrationPeriod <= 0 {
		return fmt.Errorf("integration_period must be greater than 0, got: %s", c.IntegrationPeriod)
	}

	if c.IntegrationStep <= 0 {
		return fmt.Errorf("integration_step must be greater than 0, got: %s", c.IntegrationStep)
	}

	switch solargeo.Reference(c.Reference) {
	case solargeo.RefBegin, solargeo.RefMiddle, solargeo.RefEnd:
	default:
		return fmt.Errorf("invalid reference: %s, must be one of: BEG, MID, END", c.Reference)
	}

	if c.DeviceID < 0 {
		return fmt.Errorf("device_id must be non-negative, got: %d", c.DeviceID)
	}

	if c.HTTPPort < 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("http_port must be between 0 and 65535, got: %d", c.HTTPPort)
	}

	if c.UserAgent == "" {
		return fmt.Errorf("user_agent cannot be empty")
	}

	if c.WeatherUpdateInterval <= 0 {
		return fmt.Errorf("weather_update_interval must be greater than 0, got: %s", c.WeatherUpdateInterval)
	}

	return nil
}

// MarshalJSON implements custom JSON marshaling to handle durations
func (c *Config) MarshalJSON() ([]byte, error) {
	type Alias Config
	return json.Marshal(&struct {
		*Alias
		PollInterval          string `json:"poll_interval"`
		IntegrationPeriod     string `json:"integration_period"`
		IntegrationStep       string `json:"integration_step"`
		WeatherUpdateInterval string `json:"weather_update_interval"`
	}{
		Alias:                 (*Alias)(c),
		PollInterval:          c.PollInterval.String(),
		IntegrationPeriod:     c.IntegrationPeriod.String(),
		IntegrationStep:       c.IntegrationStep.String(),
		WeatherUpdateInterval: c.WeatherUpdateInterval.String(),
	})
}

// UnmarshalJSON implements custom JSON unmarshaling to handle durations
func (c *Config) UnmarshalJSON(data []byte) error {
	type Alias Config
	aux := &struct {
		*Alias
		PollInterval          string `json:"poll_interval"`
		IntegrationPeriod     string `json:"integration_period"`
		IntegrationStep       string `json:"integration_step"`
		WeatherUpdateInterval string `json:"weather_update_interval"`
	}{
		Alias: (*Alias)(c),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	var err error
	if aux.PollInterval != "" {
		if c.PollInterval, err = time.ParseDuration(aux.PollInterval); err != nil {
			return fmt.Errorf("invalid poll_interval: %w", err)
		}
	}

	if aux.IntegrationPeriod != "" {
		if c.IntegrationPeriod, err = time.ParseDuration(aux.IntegrationPeriod); err != nil {
			return fmt.Errorf("invalid integration_period: %w", err)
		}
	}

	if aux.IntegrationStep != "" {
		if c.IntegrationStep, err = time.ParseDuration(aux.IntegrationStep); err != nil {
			return fmt.Errorf("invalid integration_step: %w", err)
		}
	}

	if aux.WeatherUpdateInterval != "" {
		if c.WeatherUpdateInterval, err = time.ParseDuration(aux.WeatherUpdateInterval); err != nil {
			return fmt.Errorf("invalid weather_update_interval: %w", err)
		}
	}

	return nil
}

// String returns a string representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}
