// Package openweathermap implements the weather provider client against the
// OpenWeatherMap current-conditions and forecast endpoints.
package openweathermap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/weatherdash/weatherdash/internal/provider/resilience"
	"github.com/weatherdash/weatherdash/internal/weather"
)

const (
	// ProviderName identifies this weather provider.
	ProviderName = "openweathermap"

	// DefaultBaseURL is the OpenWeatherMap API base URL.
	DefaultBaseURL = "https://api.openweathermap.org/data/2.5"
)

// Units selects the temperature unit mode of the provider. The mode is an
// explicit configuration choice, never inferred from response shape.
type Units string

const (
	// UnitsMetric requests Celsius directly; temperatures pass through.
	UnitsMetric Units = "metric"

	// UnitsStandard requests the provider default (Kelvin); temperatures
	// are converted to Celsius on the way in.
	UnitsStandard Units = "standard"
)

// ClientConfig holds configuration for the OpenWeatherMap client.
type ClientConfig struct {
	// APIKey is the OpenWeatherMap API key (required).
	APIKey string

	// BaseURL is the API base URL (optional, defaults to OpenWeatherMap).
	BaseURL string

	// Units is the unit mode (optional, defaults to UnitsMetric).
	Units Units

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a circuit-breaking client with defaults.
	HTTPClient *resilience.Client

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client is an OpenWeatherMap API client. It performs exactly one HTTP call
// per fetch; there is no retry logic here.
type Client struct {
	apiKey     string
	baseURL    string
	units      Units
	httpClient *resilience.Client
	logger     zerolog.Logger
}

// NewClient creates a new OpenWeatherMap client. A missing API key is a
// configuration error at construction time, not a per-request failure.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openweathermap: API key is required")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	units := cfg.Units
	if units == "" {
		units = UnitsMetric
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = resilience.NewClient(resilience.DefaultClientConfig(ProviderName))
	}

	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		units:      units,
		httpClient: httpClient,
		logger:     cfg.Logger,
	}, nil
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// FetchCurrent fetches the current conditions for a city. The returned
// reading has no RecordedAt; the ingestion clock stamps it at insert time.
func (c *Client) FetchCurrent(ctx context.Context, key weather.CityKey) (*weather.Reading, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}

	body, err := c.get(ctx, "/weather", key)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var owmResp currentWeatherResponse
	if err := json.NewDecoder(body).Decode(&owmResp); err != nil {
		return nil, fmt.Errorf("%w: %v", weather.ErrMalformedResponse, err)
	}
	if owmResp.Main == nil {
		return nil, fmt.Errorf("%w: missing main section", weather.ErrMalformedResponse)
	}

	reading := c.toReading(&owmResp)
	c.logger.Debug().
		Str("city", key.Key()).
		Float64("temperature", reading.Temperature).
		Msg("fetched current weather")

	return reading, nil
}

// FetchForecast fetches the forecast series for a city as (time, temperature)
// points ordered as the provider returns them.
func (c *Client) FetchForecast(ctx context.Context, key weather.CityKey) ([]weather.ForecastPoint, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}

	body, err := c.get(ctx, "/forecast", key)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var owmResp forecastResponse
	if err := json.NewDecoder(body).Decode(&owmResp); err != nil {
		return nil, fmt.Errorf("%w: %v", weather.ErrMalformedResponse, err)
	}
	if owmResp.List == nil {
		return nil, fmt.Errorf("%w: missing forecast list", weather.ErrMalformedResponse)
	}

	points := make([]weather.ForecastPoint, 0, len(owmResp.List))
	for _, item := range owmResp.List {
		points = append(points, weather.ForecastPoint{
			Time:        time.Unix(item.Dt, 0),
			Temperature: c.toCelsius(item.Main.Temp),
		})
	}

	c.logger.Debug().
		Str("city", key.Key()).
		Int("points", len(points)).
		Msg("fetched forecast")

	return points, nil
}

// get issues the provider request and classifies transport-level failures.
func (c *Client) get(ctx context.Context, path string, key weather.CityKey) (io.ReadCloser, error) {
	values := url.Values{}
	values.Set("q", key.City+","+key.Country)
	values.Set("appid", c.apiKey)
	if c.units == UnitsMetric {
		values.Set("units", string(UnitsMetric))
	}

	reqURL := c.baseURL + path + "?" + values.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: status %d", weather.ErrUnreachable, resp.StatusCode)
	}

	return resp.Body, nil
}

// classifyTransportError maps network-level failures onto the fetch error
// taxonomy: deadline expiry is a timeout, everything else is unreachable.
func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", weather.ErrFetchTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", weather.ErrFetchTimeout, err)
	}
	return fmt.Errorf("%w: %v", weather.ErrUnreachable, err)
}

// toReading converts an OpenWeatherMap response to the domain model.
func (c *Client) toReading(resp *currentWeatherResponse) *weather.Reading {
	r := &weather.Reading{
		City:        resp.Name,
		Country:     resp.Sys.Country,
		Temperature: c.toCelsius(resp.Main.Temp),
		FeelsLike:   c.toCelsius(resp.Main.FeelsLike),
		Humidity:    resp.Main.Humidity,
		Pressure:    resp.Main.Pressure,
		WindSpeed:   resp.Wind.Speed,
	}

	if len(resp.Weather) > 0 {
		r.Condition = mapCondition(resp.Weather[0].Main)
		r.Description = resp.Weather[0].Description
	} else {
		r.Condition = weather.ConditionUnknown
	}

	return r
}

// toCelsius applies the configured unit mode to a provider temperature.
func (c *Client) toCelsius(t float64) float64 {
	if c.units == UnitsStandard {
		return kelvinToCelsius(t)
	}
	return t
}

// kelvinToCelsius converts Kelvin to Celsius, rounded half-even to 2 decimals.
func kelvinToCelsius(k float64) float64 {
	return math.RoundToEven((k-273.15)*100) / 100
}

// mapCondition maps an OpenWeatherMap condition label to a domain condition.
func mapCondition(owmCondition string) weather.Condition {
	switch owmCondition {
	case "Clear":
		return weather.ConditionClear
	case "Clouds":
		return weather.ConditionClouds
	case "Rain":
		return weather.ConditionRain
	case "Drizzle":
		return weather.ConditionDrizzle
	case "Thunderstorm":
		return weather.ConditionThunderstorm
	case "Snow":
		return weather.ConditionSnow
	case "Mist", "Fog":
		return weather.ConditionMist
	case "Haze", "Dust", "Sand", "Ash", "Squall", "Tornado":
		return weather.ConditionHaze
	default:
		return weather.ConditionUnknown
	}
}

// OpenWeatherMap API response structures.

type currentWeatherResponse struct {
	Weather []struct {
		ID          int    `json:"id"`
		Main        string `json:"main"`
		Description string `json:"description"`
	} `json:"weather"`
	Main *struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		Pressure  int     `json:"pressure"`
		Humidity  int     `json:"humidity"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
	Sys struct {
		Country string `json:"country"`
	} `json:"sys"`
	Dt   int64  `json:"dt"`
	Name string `json:"name"`
}

type forecastResponse struct {
	List []struct {
		Dt   int64 `json:"dt"`
		Main struct {
			Temp float64 `json:"temp"`
		} `json:"main"`
	} `json:"list"`
}
