package weather

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Hazard types produced by DetectSevereCondition.
const (
	HazardThunderstorm       = "thunderstorm"
	HazardHeavyPrecipitation = "heavy_precipitation"
	HazardHighWind           = "high_wind"
	HazardLowVisibility      = "low_visibility"
	HazardFreezing           = "freezing_conditions"
)

// eventNamespace scopes deterministic event IDs.
var eventNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("road-weather/events"))

// SevereCondition describes the hazard detected in a single forecast hour.
type SevereCondition struct {
	Type        string
	Severity    EventSeverity
	Title       string
	Description string
}

// DetectSevereCondition inspects one hour of forecast and returns the hazard
// it shows, or nil. Its thresholds are independent of Classify.
func DetectSevereCondition(s WeatherSignal) *SevereCondition {
	switch {
	case s.WeatherCode >= CodeThunderstorm:
		sev := SeveritySevere
		if s.WeatherCode > CodeThunderstorm+1 {
			sev = SeverityExtreme
		}
		return &SevereCondition{
			Type:        HazardThunderstorm,
			Severity:    sev,
			Title:       "Thunderstorm",
			Description: "Thunderstorm activity expected. Lightning, sudden downpours and gusts are likely.",
		}
	case s.PrecipitationIntensity > 10:
		sev := SeverityModerate
		if s.PrecipitationIntensity > 20 {
			sev = SeveritySevere
		}
		return &SevereCondition{
			Type:        HazardHeavyPrecipitation,
			Severity:    sev,
			Title:       "Heavy precipitation",
			Description: fmt.Sprintf("Precipitation of %.1f mm/h expected. Risk of aquaplaning and reduced visibility.", s.PrecipitationIntensity),
		}
	case s.WindGust > 80 || s.WindSpeed > 60:
		sev := SeveritySevere
		if s.WindGust > 100 {
			sev = SeverityExtreme
		}
		return &SevereCondition{
			Type:        HazardHighWind,
			Severity:    sev,
			Title:       "High wind",
			Description: fmt.Sprintf("Wind %.0f km/h with gusts up to %.0f km/h.", s.WindSpeed, s.WindGust),
		}
	case s.Visibility < 1:
		sev := SeverityModerate
		if s.Visibility < 0.5 {
			sev = SeveritySevere
		}
		return &SevereCondition{
			Type:        HazardLowVisibility,
			Severity:    sev,
			Title:       "Low visibility",
			Description: fmt.Sprintf("Visibility down to %.1f km.", s.Visibility),
		}
	case s.Temperature < 0 && s.PrecipitationIntensity > 0:
		return &SevereCondition{
			Type:        HazardFreezing,
			Severity:    SeverityModerate,
			Title:       "Freezing conditions",
			Description: fmt.Sprintf("Precipitation at %.1f°C. Expect ice on roads.", s.Temperature),
		}
	default:
		return nil
	}
}

// DeriveEvents merges consecutive hours with the same hazard type into
// events. A gap hour without a hazard closes the open event. An event keeps
// the severity, title and description of the hour that opened it.
func DeriveEvents(lat, lng float64, hourly []HourlyForecast) []WeatherEvent {
	var (
		events []WeatherEvent
		open   *WeatherEvent
	)

	closeOpen := func() {
		if open != nil {
			events = append(events, *open)
			open = nil
		}
	}

	for _, h := range hourly {
		cond := DetectSevereCondition(h.Weather)
		if cond == nil {
			closeOpen()
			continue
		}
		if open != nil && open.Type == cond.Type {
			open.EndTime = h.Time
			continue
		}
		closeOpen()
		open = &WeatherEvent{
			ID:          eventID(lat, lng, cond.Type, h.Time),
			Type:        cond.Type,
			Severity:    cond.Severity,
			Title:       cond.Title,
			Description: cond.Description,
			StartTime:   h.Time,
			EndTime:     h.Time,
		}
	}
	closeOpen()

	return events
}

func eventID(lat, lng float64, hazard string, start time.Time) string {
	name := fmt.Sprintf("%s|%s|%s", CacheKey(lat, lng), hazard, start.UTC().Format(time.RFC3339))
	return uuid.NewSHA1(eventNamespace, []byte(name)).String()
}
