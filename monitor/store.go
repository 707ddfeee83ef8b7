package monitor

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/lib/pq"
)

// BinRecord is one integration period persisted to the solar_bins table.
type BinRecord struct {
	BinStart       time.Time `json:"bin_start"`
	DeviceID       int       `json:"device_id"`
	MeanIrradiance float64   `json:"mean_irradiance"` // W/m²
	PeakIrradiance float64   `json:"peak_irradiance"` // W/m²
	Insolation     float64   `json:"insolation"`      // Wh/m²
	MeanElevation  float64   `json:"mean_elevation"`  // degrees above horizon
	SolarFactor    float64   `json:"solar_factor"`    // sine of the mean elevation, 0-1
	ClearnessIndex float64   `json:"clearness_index"` // measured / extraterrestrial horizontal
	CloudCoverage  *float64  `json:"cloud_coverage,omitempty"` // percent
	WeatherSymbol  *string   `json:"weather_symbol,omitempty"`
	SampleCount    int       `json:"sample_count"`
}

// Store persists bin records to PostgreSQL.
type Store struct {
	db     *sql.DB
	logger *log.Logger
}

// OpenStore opens the database connection and makes sure the solar_bins
// table exists.
func OpenStore(connString string, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.Default()
	}

	db, err := sql.Open("postgres", connString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	st := &Store{db: db, logger: logger}
	if err := st.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return st, nil
}

// Close closes the database connection.
func (st *Store) Close() error {
	return st.db.Close()
}

// ensureSchema creates the solar_bins table and its index if they do not exist.
func (st *Store) ensureSchema() error {
	tx, err := st.db.Begin()
	if err != nil {
		return fmt.Errorf("ensure schema: begin tx: %w", err)
	}
	defer tx.Rollback()

	createBinsQuery := `
	CREATE TABLE IF NOT EXISTS solar_bins (
		bin_start TIMESTAMPTZ NOT NULL,
		device_id INTEGER NOT NULL,
		mean_irradiance DOUBLE PRECISION NOT NULL,
		peak_irradiance DOUBLE PRECISION NOT NULL,
		insolation DOUBLE PRECISION NOT NULL,
		mean_elevation DOUBLE PRECISION NOT NULL,
		solar_factor DOUBLE PRECISION NOT NULL,
		clearness_index DOUBLE PRECISION NOT NULL,
		cloud_coverage DOUBLE PRECISION,
		weather_symbol TEXT,
		sample_count INTEGER NOT NULL,
		PRIMARY KEY (bin_start, device_id)
	);
	`

	createIndexQuery := `
	CREATE INDEX IF NOT EXISTS idx_solar_bins_device_start
	ON solar_bins(device_id, bin_start DESC);
	`

	statements := []string{createBinsQuery, createIndexQuery}
	for i, stmt := range statements {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("ensure schema: exec statement #%d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("ensure schema: commit tx: %w", err)
	}

	return nil
}

// InsertBin saves one bin record. Re-integrating the same bin overwrites
// the previous row.
func (st *Store) InsertBin(rec *BinRecord) error {
	_, err := st.db.Exec(`
		INSERT INTO solar_bins (
			bin_start,
			device_id,
			mean_irradiance,
			peak_irradiance,
			insolation,
			mean_elevation,
			solar_factor,
			clearness_index,
			cloud_coverage,
			weather_symbol,
			sample_count
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (bin_start, device_id) DO UPDATE SET
			mean_irradiance = EXCLUDED.mean_irradiance,
			peak_irradiance = EXCLUDED.peak_irradiance,
			insolation = EXCLUDED.insolation,
			mean_elevation = EXCLUDED.mean_elevation,
			solar_factor = EXCLUDED.solar_factor,
			clearness_index = EXCLUDED.clearness_index,
			cloud_coverage = EXCLUDED.cloud_coverage,
			weather_symbol = EXCLUDED.weather_symbol,
			sample_count = EXCLUDED.sample_count
	`,
		rec.BinStart,
		rec.DeviceID,
		rec.MeanIrradiance,
		rec.PeakIrradiance,
		rec.Insolation,
		rec.MeanElevation,
		rec.SolarFactor,
		rec.ClearnessIndex,
		rec.CloudCoverage,
		rec.WeatherSymbol,
		rec.SampleCount,
	)
	if err != nil {
		return fmt.Errorf("failed to insert bin: %w", err)
	}
	return nil
}

// LatestBins loads the most recent bin records for a device, newest first.
func (st *Store) LatestBins(deviceID, limit int) ([]BinRecord, error) {
	rows, err := st.db.Query(`
		SELECT
			bin_start,
			device_id,
			mean_irradiance,
			peak_irradiance,
			insolation,
			mean_elevation,
			solar_factor,
			clearness_index,
			cloud_coverage,
			weather_symbol,
			sample_count
		FROM solar_bins
		WHERE device_id = $1
		ORDER BY bin_start DESC
		LIMIT $2
	`, deviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query bins: %w", err)
	}
	defer rows.Close()

	var records []BinRecord
	for rows.Next() {
		var rec BinRecord
		var cloudCoverage sql.NullFloat64
		var weatherSymbol sql.NullString

		err := rows.Scan(
			&rec.BinStart,
			&rec.DeviceID,
			&rec.MeanIrradiance,
			&rec.PeakIrradiance,
			&rec.Insolation,
			&rec.MeanElevation,
			&rec.SolarFactor,
			&rec.ClearnessIndex,
			&cloudCoverage,
			&weatherSymbol,
			&rec.SampleCount,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bin: %w", err)
		}

		if cloudCoverage.Valid {
			rec.CloudCoverage = &cloudCoverage.Float64
		}
		if weatherSymbol.Valid {
			rec.WeatherSymbol = &weatherSymbol.String
		}

		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bins: %w", err)
	}

	return records, nil
}
