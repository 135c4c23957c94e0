// Package weather looks up today's forecast for a city using the Open-Meteo
// geocoding and forecast APIs. It is the stateless data collaborator behind
// the gateway's weather capabilities.
package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// ErrCityNotFound indicates the city could not be geocoded.
var ErrCityNotFound = errors.New("city not found")

// ErrUpstream indicates a network or HTTP failure talking to the provider.
var ErrUpstream = errors.New("weather provider unavailable")

const (
	defaultGeocodingURL = "https://geocoding-api.open-meteo.com"
	defaultForecastURL  = "https://api.open-meteo.com"
)

// Report is today's weather for a resolved city.
type Report struct {
	City            string    `json:"city"`
	Country         string    `json:"country"`
	Latitude        float64   `json:"latitude"`
	Longitude       float64   `json:"longitude"`
	Timezone        string    `json:"timezone"`
	UpdatedAt       time.Time `json:"updatedAt"`
	TmaxC           float64   `json:"tmaxC"`
	TminC           float64   `json:"tminC"`
	PrecipitationMm float64   `json:"precipitationMm"`
	WeatherCode     int       `json:"weatherCode"`
	WeatherText     string    `json:"weatherText"`
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithGeocodingURL overrides the geocoding API base URL.
func WithGeocodingURL(base string) Option {
	return func(c *Client) { c.geocodingURL = base }
}

// WithForecastURL overrides the forecast API base URL.
func WithForecastURL(base string) Option {
	return func(c *Client) { c.forecastURL = base }
}

// Client fetches weather data. The zero options configuration talks to the
// public Open-Meteo endpoints with a 10s timeout.
type Client struct {
	http         *http.Client
	geocodingURL string
	forecastURL  string
}

// NewClient builds a weather client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		http:         &http.Client{Timeout: 10 * time.Second},
		geocodingURL: defaultGeocodingURL,
		forecastURL:  defaultForecastURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type geocodingResponse struct {
	Results []struct {
		Name      string  `json:"name"`
		Country   string  `json:"country"`
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
		Timezone  string  `json:"timezone"`
	} `json:"results"`
}

type forecastResponse struct {
	Timezone string `json:"timezone"`
	Daily    struct {
		Time             []string  `json:"time"`
		TemperatureMax   []float64 `json:"temperature_2m_max"`
		TemperatureMin   []float64 `json:"temperature_2m_min"`
		PrecipitationSum []float64 `json:"precipitation_sum"`
		WeatherCode      []int     `json:"weather_code"`
	} `json:"daily"`
}

// TodayWeather geocodes city and returns today's forecast. It returns
// ErrCityNotFound when geocoding yields no match and ErrUpstream on any
// network or HTTP failure.
func (c *Client) TodayWeather(ctx context.Context, city string) (*Report, error) {
	if city == "" {
		return nil, fmt.Errorf("%w: empty city", ErrCityNotFound)
	}

	geoURL := fmt.Sprintf("%s/v1/search?name=%s&count=1", c.geocodingURL, url.QueryEscape(city))
	var geo geocodingResponse
	if err := c.getJSON(ctx, geoURL, &geo); err != nil {
		return nil, err
	}
	if len(geo.Results) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrCityNotFound, city)
	}
	loc := geo.Results[0]

	q := url.Values{}
	q.Set("latitude", fmt.Sprintf("%g", loc.Latitude))
	q.Set("longitude", fmt.Sprintf("%g", loc.Longitude))
	q.Set("daily", "temperature_2m_max,temperature_2m_min,precipitation_sum,weather_code")
	q.Set("forecast_days", "1")
	q.Set("timezone", "auto")
	fcURL := fmt.Sprintf("%s/v1/forecast?%s", c.forecastURL, q.Encode())

	var fc forecastResponse
	if err := c.getJSON(ctx, fcURL, &fc); err != nil {
		return nil, err
	}
	if len(fc.Daily.Time) == 0 || len(fc.Daily.TemperatureMax) == 0 || len(fc.Daily.TemperatureMin) == 0 {
		return nil, fmt.Errorf("%w: forecast response missing daily data", ErrUpstream)
	}

	report := &Report{
		City:        loc.Name,
		Country:     loc.Country,
		Latitude:    loc.Latitude,
		Longitude:   loc.Longitude,
		Timezone:    fc.Timezone,
		UpdatedAt:   time.Now().UTC(),
		TmaxC:       fc.Daily.TemperatureMax[0],
		TminC:       fc.Daily.TemperatureMin[0],
		WeatherCode: -1,
	}
	if report.Timezone == "" {
		report.Timezone = loc.Timezone
	}
	if len(fc.Daily.PrecipitationSum) > 0 {
		report.PrecipitationMm = fc.Daily.PrecipitationSum[0]
	}
	if len(fc.Daily.WeatherCode) > 0 {
		report.WeatherCode = fc.Daily.WeatherCode[0]
	}
	report.WeatherText = DescribeWeatherCode(report.WeatherCode)

	return report, nil
}

func (c *Client) getJSON(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("%w: build request: %v", ErrUpstream, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: unexpected status %d", ErrUpstream, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrUpstream, err)
	}
	return nil
}
