package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	gocache "github.com/patrickmn/go-cache"

	errx "github.com/ecotravel/server/internal/core/errx"
	logx "github.com/ecotravel/server/pkg/logger"
)

const defaultWeatherBaseURL = "https://api.open-meteo.com"

// Doer is the minimal HTTP client surface the API clients need; *http.Client
// satisfies it and tests swap in fakes.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// WeatherReport is the reduced weather result handed back to the model.
type WeatherReport struct {
	Location     string  `json:"location"`
	TemperatureC float64 `json:"temperatureC"`
	WeatherCode  int     `json:"weatherCode"`
	TodayMinC    float64 `json:"todayMinC"`
	TodayMaxC    float64 `json:"todayMaxC"`
}

// WeatherClient queries the Open-Meteo forecast API. No key required.
// Results are cached by rounded coordinates; weather does not change fast
// enough to justify hitting the API on every conversational retry.
type WeatherClient struct {
	baseURL string
	httpc   Doer
	cache   *gocache.Cache
}

func NewWeatherClient(httpc Doer) *WeatherClient {
	return &WeatherClient{
		baseURL: defaultWeatherBaseURL,
		httpc:   httpc,
		cache:   gocache.New(15*time.Minute, 30*time.Minute),
	}
}

// WithBaseURL points the client at a different endpoint (tests).
func (c *WeatherClient) WithBaseURL(base string) *WeatherClient {
	c.baseURL = base
	return c
}

// Current fetches the current conditions plus today's min/max for the given
// coordinates.
func (c *WeatherClient) Current(ctx context.Context, location string, lat, lon float64) (*WeatherReport, error) {
	cacheKey := fmt.Sprintf("%.2f:%.2f", lat, lon)
	if cached, ok := c.cache.Get(cacheKey); ok {
		report := cached.(WeatherReport)
		report.Location = location
		return &report, nil
	}

	q := url.Values{}
	q.Set("latitude", fmt.Sprintf("%.4f", lat))
	q.Set("longitude", fmt.Sprintf("%.4f", lon))
	q.Set("current_weather", "true")
	q.Set("daily", "temperature_2m_min,temperature_2m_max")
	q.Set("forecast_days", "1")
	q.Set("timezone", "auto")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/forecast?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build weather request: %w", err)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, &errx.ExternalAPIError{Provider: "open-meteo", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &errx.ExternalAPIError{Provider: "open-meteo", Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	var payload struct {
		CurrentWeather struct {
			Temperature float64 `json:"temperature"`
			WeatherCode int     `json:"weathercode"`
		} `json:"current_weather"`
		Daily struct {
			TemperatureMin []float64 `json:"temperature_2m_min"`
			TemperatureMax []float64 `json:"temperature_2m_max"`
		} `json:"daily"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, &errx.ExternalAPIError{Provider: "open-meteo", Err: fmt.Errorf("malformed body: %w", err)}
	}

	report := WeatherReport{
		Location:     location,
		TemperatureC: payload.CurrentWeather.Temperature,
		WeatherCode:  payload.CurrentWeather.WeatherCode,
	}
	if len(payload.Daily.TemperatureMin) > 0 {
		report.TodayMinC = payload.Daily.TemperatureMin[0]
	}
	if len(payload.Daily.TemperatureMax) > 0 {
		report.TodayMaxC = payload.Daily.TemperatureMax[0]
	}

	c.cache.Set(cacheKey, report, gocache.DefaultExpiration)
	logx.Debug().Str("location", location).Float64("temperature_c", report.TemperatureC).Msg("weather fetched")
	return &report, nil
}
