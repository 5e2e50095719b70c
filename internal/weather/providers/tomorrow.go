package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/road-weather/internal/weather"
)

var tomorrowFields = []string{
	"temperature", "humidity", "windSpeed", "windGust", "visibility",
	"precipitationIntensity", "precipitationType", "weatherCode",
	"uvIndex", "cloudCover",
}

// TomorrowSource fetches forecasts from the Tomorrow.io timelines API. Its
// weather codes are the canonical ones.
type TomorrowSource struct {
	name    string
	apiKey  string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewTomorrowSource(client *http.Client, apiKey string) *TomorrowSource {
	return &TomorrowSource{
		name:    "tomorrow",
		apiKey:  apiKey,
		baseURL: "https://api.tomorrow.io/v4/timelines",
		httpCfg: DefaultHTTPConfig(client),
		circuit: newBreaker("tomorrow"),
	}
}

func (p *TomorrowSource) Name() string {
	return p.name
}

type tomorrowValues struct {
	Temperature            float64  `json:"temperature"`
	Humidity               float64  `json:"humidity"`
	WindSpeed              float64  `json:"windSpeed"`
	WindGust               float64  `json:"windGust"`
	Visibility             *float64 `json:"visibility"`
	PrecipitationIntensity float64  `json:"precipitationIntensity"`
	PrecipitationType      int      `json:"precipitationType"`
	WeatherCode            int      `json:"weatherCode"`
	UVIndex                float64  `json:"uvIndex"`
	CloudCover             float64  `json:"cloudCover"`
}

type tomorrowResponse struct {
	Data struct {
		Timelines []struct {
			Timestep  string `json:"timestep"`
			Intervals []struct {
				StartTime time.Time      `json:"startTime"`
				Values    tomorrowValues `json:"values"`
			} `json:"intervals"`
		} `json:"timelines"`
	} `json:"data"`
}

func (p *TomorrowSource) Forecast(ctx context.Context, lat, lng float64, hours int) (weather.Timelines, error) {
	if p.apiKey == "" {
		return weather.Timelines{}, fmt.Errorf("tomorrow: %w", errMissingAPIKey)
	}

	values := url.Values{}
	values.Set("apikey", p.apiKey)
	values.Set("location", fmt.Sprintf("%f,%f", lat, lng))
	values.Set("fields", strings.Join(tomorrowFields, ","))
	values.Set("timesteps", "current,1h")
	values.Set("units", "metric")
	values.Set("startTime", "now")
	values.Set("endTime", "nowPlus"+strconv.Itoa(hours)+"h")

	var payload tomorrowResponse
	if err := getJSON(ctx, p.httpCfg, p.circuit, p.baseURL+"?"+values.Encode(), &payload); err != nil {
		return weather.Timelines{}, err
	}

	var (
		tl          weather.Timelines
		haveCurrent bool
	)
	for _, timeline := range payload.Data.Timelines {
		switch timeline.Timestep {
		case "current":
			if len(timeline.Intervals) > 0 {
				tl.Current = tomorrowSignal(timeline.Intervals[0].Values)
				haveCurrent = true
			}
		case "1h":
			for _, iv := range timeline.Intervals {
				if len(tl.Hourly) == hours {
					break
				}
				tl.Hourly = append(tl.Hourly, weather.HourlyForecast{
					Time:    iv.StartTime.UTC(),
					Weather: tomorrowSignal(iv.Values),
				})
			}
		}
	}
	if !haveCurrent && len(tl.Hourly) > 0 {
		// Some plans omit the current timestep; the first hour stands in.
		tl.Current = tl.Hourly[0].Weather
	}
	return tl, nil
}

func tomorrowSignal(v tomorrowValues) weather.WeatherSignal {
	vis := 0.0
	if v.Visibility != nil {
		vis = *v.Visibility
	}
	return weather.WeatherSignal{
		Temperature:            v.Temperature,
		Humidity:               v.Humidity,
		WindSpeed:              msToKmh(v.WindSpeed),
		WindGust:               msToKmh(v.WindGust),
		Visibility:             visibilityOrDefault(vis, v.Visibility != nil),
		PrecipitationIntensity: v.PrecipitationIntensity,
		PrecipitationType:      tomorrowPrecipitation(v.PrecipitationType, v.WeatherCode, v.PrecipitationIntensity),
		WeatherCode:            v.WeatherCode,
		UVIndex:                v.UVIndex,
		CloudCover:             v.CloudCover,
	}
}

// tomorrowPrecipitation maps 1 rain, 2 snow, 3 freezing rain, 4 ice pellets.
func tomorrowPrecipitation(kind, code int, intensity float64) weather.PrecipitationType {
	switch kind {
	case 1, 3:
		return weather.PrecipRain
	case 2:
		return weather.PrecipSnow
	case 4:
		return weather.PrecipHail
	default:
		return precipitationType(code, intensity)
	}
}
