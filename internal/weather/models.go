package weather

import (
	"time"
)

// RiskLevel is the four-level road hazard classification.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskModerate RiskLevel = "moderate"
	RiskHigh     RiskLevel = "high"
	RiskExtreme  RiskLevel = "extreme"
)

// Severity orders risk levels: low < moderate < high < extreme.
// Unknown levels rank below low.
func (r RiskLevel) Severity() int {
	switch r {
	case RiskLow:
		return 1
	case RiskModerate:
		return 2
	case RiskHigh:
		return 3
	case RiskExtreme:
		return 4
	default:
		return 0
	}
}

// PrecipitationType represents the normalized kind of precipitation.
type PrecipitationType string

const (
	PrecipNone PrecipitationType = "none"
	PrecipRain PrecipitationType = "rain"
	PrecipSnow PrecipitationType = "snow"
	PrecipHail PrecipitationType = "hail"
)

// Canonical weather codes. Every provider maps its own condition codes into
// this space (it follows the Tomorrow.io code table).
const (
	CodeUnknown           = 0
	CodeClear             = 1000
	CodeMostlyClear       = 1100
	CodePartlyCloudy      = 1101
	CodeMostlyCloudy      = 1102
	CodeCloudy            = 1001
	CodeFog               = 2000
	CodeLightFog          = 2100
	CodeDrizzle           = 4000
	CodeRain              = 4001
	CodeLightRain         = 4200
	CodeHeavyRain         = 4201
	CodeSnow              = 5000
	CodeFlurries          = 5001
	CodeLightSnow         = 5100
	CodeHeavySnow         = 5101
	CodeFreezingDrizzle   = 6000
	CodeFreezingRain      = 6001
	CodeLightFreezingRain = 6200
	CodeHeavyFreezingRain = 6201
	CodeIcePellets        = 7000
	CodeHeavyIcePellets   = 7101
	CodeLightIcePellets   = 7102
	CodeThunderstorm      = 8000
)

// WeatherSignal is one normalized observation or forecast hour.
// Units: °C, %, km/h, km, mm/h.
type WeatherSignal struct {
	Temperature            float64           `json:"temperature"`
	Humidity               float64           `json:"humidity"`
	WindSpeed              float64           `json:"windSpeed"`
	WindGust               float64           `json:"windGust"`
	Visibility             float64           `json:"visibility"`
	PrecipitationIntensity float64           `json:"precipitationIntensity"`
	PrecipitationType      PrecipitationType `json:"precipitationType"`
	WeatherCode            int               `json:"weatherCode"`
	UVIndex                float64           `json:"uvIndex"`
	CloudCover             float64           `json:"cloudCover"`

	// RoadRisk is always set by Classify, never copied from a provider.
	RoadRisk RiskLevel `json:"roadRisk"`
}

// HourlyForecast is one entry of an hourly forecast series.
type HourlyForecast struct {
	Time    time.Time     `json:"time"`
	Weather WeatherSignal `json:"weather"`
}

// Timelines bundles the current signal with an hourly forecast.
type Timelines struct {
	Current WeatherSignal    `json:"current"`
	Hourly  []HourlyForecast `json:"hourly"`
}

// Forecast horizon bounds, in hours.
const (
	DefaultForecastHours = 24
	MaxForecastHours     = 120
)

// TimelineOptions controls the forecast horizon of a timelines request.
type TimelineOptions struct {
	Hours int
}

// Horizon resolves Hours: zero or less means DefaultForecastHours, and
// anything above MaxForecastHours is capped.
func (o TimelineOptions) Horizon() int {
	if o.Hours <= 0 {
		return DefaultForecastHours
	}
	return min(o.Hours, MaxForecastHours)
}

// RoutePoint is one point of a travel route. KM is the cumulative distance
// from the route start and never decreases along a route.
type RoutePoint struct {
	Lat float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lng float64 `json:"lng" validate:"gte=-180,lte=180"`
	KM  float64 `json:"km" validate:"gte=0"`
}

// RouteSegment is a route point annotated with its fetched weather.
type RouteSegment struct {
	Point   RoutePoint    `json:"point"`
	Weather WeatherSignal `json:"weather"`
}

// RouteAnalysis is the result of analyzing a route.
type RouteAnalysis struct {
	Segments    []RouteSegment `json:"segments"`
	OverallRisk RiskLevel      `json:"overallRisk"`
}

// EventSeverity grades a derived hazard event.
type EventSeverity string

const (
	SeverityMinor    EventSeverity = "minor"
	SeverityModerate EventSeverity = "moderate"
	SeveritySevere   EventSeverity = "severe"
	SeverityExtreme  EventSeverity = "extreme"
)

// WeatherEvent is a time-bounded hazard built from consecutive forecast hours.
type WeatherEvent struct {
	ID          string        `json:"id"`
	Type        string        `json:"type"`
	Severity    EventSeverity `json:"severity"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	StartTime   time.Time     `json:"startTime"`
	EndTime     time.Time     `json:"endTime"`
}

// Features lists what a provider can serve.
type Features struct {
	Current    bool `json:"current"`
	Forecast   bool `json:"forecast"`
	Alerts     bool `json:"alerts"`
	Historical bool `json:"historical"`
}

// ProviderConfig describes a registered provider. Lower Priority is preferred.
type ProviderConfig struct {
	Name       string   `json:"name" validate:"required"`
	DailyLimit int      `json:"dailyLimit" validate:"gt=0"`
	Priority   int      `json:"priority"`
	Features   Features `json:"supportedFeatures"`
}

// ProviderStatus is the externally reported state of one provider.
type ProviderStatus struct {
	Name           string `json:"name"`
	Available      bool   `json:"available"`
	RemainingCalls int    `json:"remainingCalls"`
	DailyLimit     int    `json:"dailyLimit"`
	Priority       int    `json:"priority"`
}

// TimelinesResult is a timelines response plus the provider that served it.
type TimelinesResult struct {
	Timelines
	Provider string `json:"provider"`
}

// EventsResult is an events response plus the provider that served it.
// Provider is empty when no provider could serve the request.
type EventsResult struct {
	Events   []WeatherEvent `json:"events"`
	Provider string         `json:"provider,omitempty"`
}

// RouteResult is a route analysis plus the providers that contributed to it.
type RouteResult struct {
	RouteAnalysis
	Providers []string `json:"providers"`
}
