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

	"github.com/i474232898/road-weather/internal/common"
	"github.com/i474232898/road-weather/internal/weather"
)

// WeatherAPISource fetches forecasts from WeatherAPI.com.
type WeatherAPISource struct {
	name    string
	apiKey  string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewWeatherAPISource(client *http.Client, apiKey string) *WeatherAPISource {
	return &WeatherAPISource{
		name:    "weatherapi",
		apiKey:  apiKey,
		baseURL: "https://api.weatherapi.com/v1/forecast.json",
		httpCfg: DefaultHTTPConfig(client),
		circuit: newBreaker("weatherapi"),
	}
}

func (p *WeatherAPISource) Name() string {
	return p.name
}

type weatherAPIPoint struct {
	TimeEpoch int64    `json:"time_epoch"`
	TempC     float64  `json:"temp_c"`
	Humidity  float64  `json:"humidity"`
	WindKph   float64  `json:"wind_kph"`
	GustKph   float64  `json:"gust_kph"`
	VisKm     *float64 `json:"vis_km"`
	PrecipMm  float64  `json:"precip_mm"`
	UV        float64  `json:"uv"`
	Cloud     float64  `json:"cloud"`
	Condition struct {
		Text string `json:"text"`
	} `json:"condition"`
}

func (p *WeatherAPISource) Forecast(ctx context.Context, lat, lng float64, hours int) (weather.Timelines, error) {
	if p.apiKey == "" {
		return weather.Timelines{}, fmt.Errorf("weatherapi: %w", errMissingAPIKey)
	}

	// The current day is included, so one extra day covers the horizon.
	days := hours/24 + 1

	values := url.Values{}
	values.Set("key", p.apiKey)
	// WeatherAPI uses "q" for location; it accepts "lat,lon".
	values.Set("q", fmt.Sprintf("%f,%f", lat, lng))
	values.Set("days", strconv.Itoa(days))
	values.Set("aqi", "no")
	values.Set("alerts", "no")

	var payload struct {
		Current struct {
			weatherAPIPoint
			LastUpdatedEpoch int64 `json:"last_updated_epoch"`
		} `json:"current"`
		Forecast struct {
			Forecastday []struct {
				Hour []weatherAPIPoint `json:"hour"`
			} `json:"forecastday"`
		} `json:"forecast"`
	}
	if err := getJSON(ctx, p.httpCfg, p.circuit, p.baseURL+"?"+values.Encode(), &payload); err != nil {
		return weather.Timelines{}, err
	}

	tl := weather.Timelines{Current: weatherAPISignal(payload.Current.weatherAPIPoint)}

	// Forecast days start at local midnight; skip hours already past.
	from := payload.Current.LastUpdatedEpoch - int64(time.Hour/time.Second)
	for _, day := range payload.Forecast.Forecastday {
		for _, h := range day.Hour {
			if len(tl.Hourly) == hours {
				return tl, nil
			}
			if h.TimeEpoch <= from {
				continue
			}
			tl.Hourly = append(tl.Hourly, weather.HourlyForecast{
				Time:    time.Unix(h.TimeEpoch, 0).UTC(),
				Weather: weatherAPISignal(h),
			})
		}
	}
	return tl, nil
}

func weatherAPISignal(pt weatherAPIPoint) weather.WeatherSignal {
	code := mapWeatherAPICondition(pt.Condition.Text)

	vis := 0.0
	if pt.VisKm != nil {
		vis = *pt.VisKm
	}

	return weather.WeatherSignal{
		Temperature:            pt.TempC,
		Humidity:               pt.Humidity,
		WindSpeed:              pt.WindKph,
		WindGust:               pt.GustKph,
		Visibility:             visibilityOrDefault(vis, pt.VisKm != nil),
		PrecipitationIntensity: pt.PrecipMm,
		PrecipitationType:      precipitationType(code, pt.PrecipMm),
		WeatherCode:            code,
		UVIndex:                pt.UV,
		CloudCover:             pt.Cloud,
	}
}

// mapWeatherAPICondition maps condition text onto canonical codes. Order
// matters: "Patchy light snow with thunder" is a thunderstorm.
func mapWeatherAPICondition(text string) int {
	t := strings.ToLower(text)
	switch {
	case t == "":
		return weather.CodeUnknown
	case common.HasAny(t, "thunder"):
		return weather.CodeThunderstorm
	case common.HasAny(t, "ice pellets", "hail"):
		return weather.CodeIcePellets
	case common.HasAny(t, "sleet"):
		return weather.CodeLightIcePellets
	case common.HasAny(t, "fog"):
		return weather.CodeFog
	case common.HasAny(t, "mist"):
		return weather.CodeLightFog
	case common.HasAny(t, "freezing"):
		return weather.CodeFreezingRain
	case common.HasAny(t, "blizzard", "heavy snow"):
		return weather.CodeHeavySnow
	case common.HasAny(t, "light snow"):
		return weather.CodeLightSnow
	case common.HasAny(t, "snow"):
		return weather.CodeSnow
	case common.HasAny(t, "heavy rain", "torrential"):
		return weather.CodeHeavyRain
	case common.HasAny(t, "light rain", "patchy rain"):
		return weather.CodeLightRain
	case common.HasAny(t, "rain", "shower"):
		return weather.CodeRain
	case common.HasAny(t, "drizzle"):
		return weather.CodeDrizzle
	case common.HasAny(t, "overcast"):
		return weather.CodeCloudy
	case common.HasAny(t, "partly"):
		return weather.CodePartlyCloudy
	case common.HasAny(t, "cloudy"):
		return weather.CodeMostlyCloudy
	case common.HasAny(t, "sunny", "clear"):
		return weather.CodeClear
	default:
		return weather.CodeUnknown
	}
}
