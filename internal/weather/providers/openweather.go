package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/road-weather/internal/weather"
)

// OpenWeatherSource fetches forecasts from the OpenWeatherMap One Call API.
type OpenWeatherSource struct {
	name    string
	apiKey  string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewOpenWeatherSource(client *http.Client, apiKey string) *OpenWeatherSource {
	return &OpenWeatherSource{
		name:    "openweather",
		apiKey:  apiKey,
		baseURL: "https://api.openweathermap.org/data/3.0/onecall",
		httpCfg: DefaultHTTPConfig(client),
		circuit: newBreaker("openweather"),
	}
}

func (p *OpenWeatherSource) Name() string {
	return p.name
}

type openWeatherPoint struct {
	Dt         int64    `json:"dt"`
	Temp       float64  `json:"temp"`
	Humidity   float64  `json:"humidity"`
	UVI        float64  `json:"uvi"`
	Clouds     float64  `json:"clouds"`
	Visibility *float64 `json:"visibility"`
	WindSpeed  float64  `json:"wind_speed"`
	WindGust   float64  `json:"wind_gust"`
	Rain       struct {
		OneH float64 `json:"1h"`
	} `json:"rain"`
	Snow struct {
		OneH float64 `json:"1h"`
	} `json:"snow"`
	Weather []struct {
		ID   int    `json:"id"`
		Main string `json:"main"`
	} `json:"weather"`
}

func (p *OpenWeatherSource) Forecast(ctx context.Context, lat, lng float64, hours int) (weather.Timelines, error) {
	if p.apiKey == "" {
		return weather.Timelines{}, fmt.Errorf("openweather: %w", errMissingAPIKey)
	}

	values := url.Values{}
	values.Set("appid", p.apiKey)
	values.Set("units", "metric")
	values.Set("lat", fmt.Sprintf("%f", lat))
	values.Set("lon", fmt.Sprintf("%f", lng))
	values.Set("exclude", "minutely,daily,alerts")

	var payload struct {
		Current openWeatherPoint   `json:"current"`
		Hourly  []openWeatherPoint `json:"hourly"`
	}
	if err := getJSON(ctx, p.httpCfg, p.circuit, p.baseURL+"?"+values.Encode(), &payload); err != nil {
		return weather.Timelines{}, err
	}

	tl := weather.Timelines{Current: openWeatherSignal(payload.Current)}
	for _, h := range payload.Hourly {
		if len(tl.Hourly) == hours {
			break
		}
		tl.Hourly = append(tl.Hourly, weather.HourlyForecast{
			Time:    time.Unix(h.Dt, 0).UTC(),
			Weather: openWeatherSignal(h),
		})
	}
	return tl, nil
}

func openWeatherSignal(pt openWeatherPoint) weather.WeatherSignal {
	id := 0
	if len(pt.Weather) > 0 {
		id = pt.Weather[0].ID
	}
	code := mapOpenWeatherCondition(id)

	vis := 0.0
	if pt.Visibility != nil {
		vis = *pt.Visibility / 1000
	}

	precip := pt.Rain.OneH + pt.Snow.OneH

	return weather.WeatherSignal{
		Temperature:            pt.Temp,
		Humidity:               pt.Humidity,
		WindSpeed:              msToKmh(pt.WindSpeed),
		WindGust:               msToKmh(pt.WindGust),
		Visibility:             visibilityOrDefault(vis, pt.Visibility != nil),
		PrecipitationIntensity: precip,
		PrecipitationType:      precipitationType(code, precip),
		WeatherCode:            code,
		UVIndex:                pt.UVI,
		CloudCover:             pt.Clouds,
	}
}

// mapOpenWeatherCondition maps OpenWeatherMap condition IDs onto canonical codes.
func mapOpenWeatherCondition(id int) int {
	switch {
	case id >= 200 && id < 300:
		return weather.CodeThunderstorm
	case id >= 300 && id < 400:
		return weather.CodeDrizzle
	case id == 500:
		return weather.CodeLightRain
	case id == 501:
		return weather.CodeRain
	case id >= 502 && id <= 504:
		return weather.CodeHeavyRain
	case id == 511:
		return weather.CodeFreezingRain
	case id >= 520 && id < 600:
		return weather.CodeRain
	case id == 600:
		return weather.CodeLightSnow
	case id == 602:
		return weather.CodeHeavySnow
	case id >= 611 && id <= 613:
		return weather.CodeIcePellets
	case id >= 600 && id < 700:
		return weather.CodeSnow
	case id == 741:
		return weather.CodeFog
	case id >= 700 && id < 800:
		return weather.CodeLightFog
	case id == 800:
		return weather.CodeClear
	case id == 801:
		return weather.CodeMostlyClear
	case id == 802:
		return weather.CodePartlyCloudy
	case id == 803:
		return weather.CodeMostlyCloudy
	case id == 804:
		return weather.CodeCloudy
	default:
		return weather.CodeUnknown
	}
}
