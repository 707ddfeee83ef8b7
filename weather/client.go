// Package weather fetches cloud cover from the MET Norway Location
// Forecast API, for annotating irradiance records with sky state.
package weather

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Client represents a client for the MET Norway Location Forecast API
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
}

// NewClient creates a new client. MET requires an identifying User-Agent
// with contact information, e.g. "acme-solar/1.0 (ops@example.com)".
func NewClient(userAgent string) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL:   "https://api.met.no/weatherapi/locationforecast/2.0",
		userAgent: userAgent,
	}
}

// NewClientWithHTTPClient creates a new client with a custom HTTP client
func NewClientWithHTTPClient(httpClient *http.Client, userAgent string) *Client {
	return &Client{
		httpClient: httpClient,
		baseURL:    "https://api.met.no/weatherapi/locationforecast/2.0",
		userAgent:  userAgent,
	}
}

// SetBaseURL sets the base URL for the API (useful for testing)
func (c *Client) SetBaseURL(baseURL string) {
	c.baseURL = baseURL
}

// GetCloudCover retrieves the current cloud area fraction for the
// specified coordinate from the compact forecast endpoint.
func (c *Client) GetCloudCover(lat, lon float64) (*CloudCover, error) {
	if lat < -90 || lat > 90 {
		return nil, fmt.Errorf("latitude must be between -90 and 90, got %f", lat)
	}
	if lon < -180 || lon > 180 {
		return nil, fmt.Errorf("longitude must be between -180 and 180, got %f", lon)
	}

	reqURL, err := c.buildURL(lat, lon)
	if err != nil {
		return nil, fmt.Errorf("failed to build URL: %w", err)
	}

	req, err := http.NewRequest("GET", reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	// Set required headers
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(body),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var forecast metForecast
	if err := json.Unmarshal(body, &forecast); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if len(forecast.Properties.Timeseries) == 0 {
		return nil, fmt.Errorf("forecast contains no time steps")
	}

	// The first time step is the one closest to now.
	step := forecast.Properties.Timeseries[0]
	if step.Data.Instant.Details.CloudAreaFraction == nil {
		return nil, fmt.Errorf("forecast omits cloud_area_fraction")
	}

	cover := &CloudCover{
		Time:      step.Time,
		Fraction:  *step.Data.Instant.Details.CloudAreaFraction,
		UpdatedAt: forecast.Properties.Meta.UpdatedAt,
	}
	if step.Data.Next1Hours != nil {
		cover.SymbolCode = step.Data.Next1Hours.Summary.SymbolCode
	}
	return cover, nil
}

// buildURL constructs the API URL with query parameters
func (c *Client) buildURL(lat, lon float64) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", err
	}

	u.Path = fmt.Sprintf("%s/compact", u.Path)

	query := u.Query()
	query.Set("lat", formatFloat(lat))
	query.Set("lon", formatFloat(lon))

	u.RawQuery = query.Encode()
	return u.String(), nil
}

// formatFloat formats a float64 to a string with appropriate precision
func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
