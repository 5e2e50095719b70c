package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/road-weather/internal/weather"
)

const openMeteoVariables = "temperature_2m,relative_humidity_2m,wind_speed_10m,wind_gusts_10m," +
	"visibility,precipitation,weather_code,cloud_cover,uv_index"

// openMeteoTimeLayout is the ISO8601 form Open-Meteo returns with timezone=UTC.
const openMeteoTimeLayout = "2006-01-02T15:04"

// OpenMeteoSource fetches forecasts from Open-Meteo. It needs no API key.
type OpenMeteoSource struct {
	name    string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewOpenMeteoSource(client *http.Client) *OpenMeteoSource {
	return &OpenMeteoSource{
		name:    "openmeteo",
		baseURL: "https://api.open-meteo.com/v1/forecast",
		httpCfg: DefaultHTTPConfig(client),
		circuit: newBreaker("openmeteo"),
	}
}

func (p *OpenMeteoSource) Name() string {
	return p.name
}

func (p *OpenMeteoSource) Forecast(ctx context.Context, lat, lng float64, hours int) (weather.Timelines, error) {
	values := url.Values{}
	values.Set("latitude", fmt.Sprintf("%f", lat))
	values.Set("longitude", fmt.Sprintf("%f", lng))
	values.Set("current", openMeteoVariables)
	values.Set("hourly", openMeteoVariables)
	values.Set("forecast_hours", strconv.Itoa(hours))
	values.Set("wind_speed_unit", "kmh")
	values.Set("timezone", "UTC")

	var payload struct {
		Current struct {
			Temperature   float64  `json:"temperature_2m"`
			Humidity      float64  `json:"relative_humidity_2m"`
			WindSpeed     float64  `json:"wind_speed_10m"`
			WindGust      float64  `json:"wind_gusts_10m"`
			Visibility    *float64 `json:"visibility"`
			Precipitation float64  `json:"precipitation"`
			WeatherCode   int      `json:"weather_code"`
			CloudCover    float64  `json:"cloud_cover"`
			UVIndex       float64  `json:"uv_index"`
		} `json:"current"`
		Hourly struct {
			Time          []string   `json:"time"`
			Temperature   []float64  `json:"temperature_2m"`
			Humidity      []float64  `json:"relative_humidity_2m"`
			WindSpeed     []float64  `json:"wind_speed_10m"`
			WindGust      []float64  `json:"wind_gusts_10m"`
			Visibility    []*float64 `json:"visibility"`
			Precipitation []float64  `json:"precipitation"`
			WeatherCode   []int      `json:"weather_code"`
			CloudCover    []float64  `json:"cloud_cover"`
			UVIndex       []float64  `json:"uv_index"`
		} `json:"hourly"`
	}
	if err := getJSON(ctx, p.httpCfg, p.circuit, p.baseURL+"?"+values.Encode(), &payload); err != nil {
		return weather.Timelines{}, err
	}

	c := payload.Current
	tl := weather.Timelines{
		Current: openMeteoSignal(c.Temperature, c.Humidity, c.WindSpeed, c.WindGust, c.Visibility,
			c.Precipitation, c.WeatherCode, c.CloudCover, c.UVIndex),
	}

	h := payload.Hourly
	for i, raw := range h.Time {
		if len(tl.Hourly) == hours {
			break
		}
		ts, err := time.ParseInLocation(openMeteoTimeLayout, raw, time.UTC)
		if err != nil {
			return weather.Timelines{}, fmt.Errorf("openmeteo hourly time %q: %w", raw, err)
		}
		tl.Hourly = append(tl.Hourly, weather.HourlyForecast{
			Time: ts,
			Weather: openMeteoSignal(at(h.Temperature, i), at(h.Humidity, i), at(h.WindSpeed, i), at(h.WindGust, i),
				at(h.Visibility, i), at(h.Precipitation, i), at(h.WeatherCode, i), at(h.CloudCover, i), at(h.UVIndex, i)),
		})
	}
	return tl, nil
}

// at returns s[i], or the zero value when the series is short.
func at[T any](s []T, i int) T {
	var zero T
	if i < len(s) {
		return s[i]
	}
	return zero
}

func openMeteoSignal(temp, humidity, wind, gust float64, visibilityM *float64, precip float64, wmo int, cloud, uv float64) weather.WeatherSignal {
	code := mapOpenMeteoCondition(wmo)

	vis := 0.0
	if visibilityM != nil {
		vis = *visibilityM / 1000
	}

	return weather.WeatherSignal{
		Temperature:            temp,
		Humidity:               humidity,
		WindSpeed:              wind,
		WindGust:               gust,
		Visibility:             visibilityOrDefault(vis, visibilityM != nil),
		PrecipitationIntensity: precip,
		PrecipitationType:      precipitationType(code, precip),
		WeatherCode:            code,
		UVIndex:                uv,
		CloudCover:             cloud,
	}
}

// mapOpenMeteoCondition maps WMO weather interpretation codes onto canonical codes.
func mapOpenMeteoCondition(code int) int {
	switch code {
	case 0:
		return weather.CodeClear
	case 1:
		return weather.CodeMostlyClear
	case 2:
		return weather.CodePartlyCloudy
	case 3:
		return weather.CodeCloudy
	case 45, 48:
		return weather.CodeFog
	case 51, 53, 55:
		return weather.CodeDrizzle
	case 56, 57:
		return weather.CodeFreezingDrizzle
	case 61, 80:
		return weather.CodeLightRain
	case 63, 81:
		return weather.CodeRain
	case 65, 82:
		return weather.CodeHeavyRain
	case 66:
		return weather.CodeLightFreezingRain
	case 67:
		return weather.CodeHeavyFreezingRain
	case 71, 85:
		return weather.CodeLightSnow
	case 73, 77:
		return weather.CodeSnow
	case 75, 86:
		return weather.CodeHeavySnow
	case 95, 96, 99:
		return weather.CodeThunderstorm
	default:
		return weather.CodeUnknown
	}
}
