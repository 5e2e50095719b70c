package weather

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hourAt(h int) time.Time {
	return time.Date(2026, 1, 15, h, 0, 0, 0, time.UTC)
}

func thunder() WeatherSignal {
	s := clearSky()
	s.WeatherCode = CodeThunderstorm
	return s
}

func heavyRain(mmh float64) WeatherSignal {
	s := clearSky()
	s.WeatherCode = CodeHeavyRain
	s.PrecipitationIntensity = mmh
	return s
}

func TestDetectSevereCondition(t *testing.T) {
	tests := []struct {
		name     string
		modify   func(*WeatherSignal)
		wantType string
		wantSev  EventSeverity
	}{
		{"thunderstorm", func(s *WeatherSignal) { s.WeatherCode = 8000 }, HazardThunderstorm, SeveritySevere},
		{"thunderstorm 8001 not escalated", func(s *WeatherSignal) { s.WeatherCode = 8001 }, HazardThunderstorm, SeveritySevere},
		{"escalated thunderstorm", func(s *WeatherSignal) { s.WeatherCode = 8002 }, HazardThunderstorm, SeverityExtreme},
		{"heavy rain", func(s *WeatherSignal) { s.PrecipitationIntensity = 12 }, HazardHeavyPrecipitation, SeverityModerate},
		{"torrential rain", func(s *WeatherSignal) { s.PrecipitationIntensity = 25 }, HazardHeavyPrecipitation, SeveritySevere},
		{"gusts", func(s *WeatherSignal) { s.WindGust = 85 }, HazardHighWind, SeveritySevere},
		{"sustained wind", func(s *WeatherSignal) { s.WindSpeed = 65 }, HazardHighWind, SeveritySevere},
		{"violent gusts", func(s *WeatherSignal) { s.WindGust = 110 }, HazardHighWind, SeverityExtreme},
		{"fog", func(s *WeatherSignal) { s.Visibility = 0.8 }, HazardLowVisibility, SeverityModerate},
		{"dense fog", func(s *WeatherSignal) { s.Visibility = 0.3 }, HazardLowVisibility, SeveritySevere},
		{"freezing drizzle", func(s *WeatherSignal) { s.Temperature = -2; s.PrecipitationIntensity = 0.4 }, HazardFreezing, SeverityModerate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := clearSky()
			tt.modify(&s)
			cond := DetectSevereCondition(s)
			require.NotNil(t, cond)
			assert.Equal(t, tt.wantType, cond.Type)
			assert.Equal(t, tt.wantSev, cond.Severity)
		})
	}
}

func TestDetectSevereCondition_None(t *testing.T) {
	assert.Nil(t, DetectSevereCondition(clearSky()))

	cold := clearSky()
	cold.Temperature = -5
	assert.Nil(t, DetectSevereCondition(cold), "cold without precipitation is not a hazard")

	rain := clearSky()
	rain.PrecipitationIntensity = 10
	assert.Nil(t, DetectSevereCondition(rain), "exactly 10 mm/h is not heavy")
}

func TestDeriveEvents_GapPreventsMerge(t *testing.T) {
	hourly := []HourlyForecast{
		{Time: hourAt(10), Weather: thunder()},
		{Time: hourAt(11), Weather: thunder()},
		{Time: hourAt(12), Weather: clearSky()},
		{Time: hourAt(13), Weather: heavyRain(15)},
	}

	events := DeriveEvents(45, 7, hourly)

	require.Len(t, events, 2)
	assert.Equal(t, HazardThunderstorm, events[0].Type)
	assert.Equal(t, hourAt(10), events[0].StartTime)
	assert.Equal(t, hourAt(11), events[0].EndTime)
	assert.Equal(t, HazardHeavyPrecipitation, events[1].Type)
	assert.Equal(t, hourAt(13), events[1].StartTime)
	assert.Equal(t, hourAt(13), events[1].EndTime)
}

func TestDeriveEvents_TypeChangeClosesEvent(t *testing.T) {
	hourly := []HourlyForecast{
		{Time: hourAt(1), Weather: heavyRain(12)},
		{Time: hourAt(2), Weather: thunder()},
		{Time: hourAt(3), Weather: thunder()},
	}

	events := DeriveEvents(45, 7, hourly)

	require.Len(t, events, 2)
	assert.Equal(t, hourAt(1), events[0].EndTime)
	assert.Equal(t, hourAt(2), events[1].StartTime)
	assert.Equal(t, hourAt(3), events[1].EndTime)
}

func TestDeriveEvents_SeverityFixedAtStart(t *testing.T) {
	hourly := []HourlyForecast{
		{Time: hourAt(6), Weather: heavyRain(12)},
		{Time: hourAt(7), Weather: heavyRain(30)},
	}

	events := DeriveEvents(45, 7, hourly)

	require.Len(t, events, 1)
	assert.Equal(t, SeverityModerate, events[0].Severity)
	assert.Equal(t, hourAt(7), events[0].EndTime)
}

func TestDeriveEvents_DeterministicIDs(t *testing.T) {
	hourly := []HourlyForecast{{Time: hourAt(10), Weather: thunder()}}

	a := DeriveEvents(45.001, 7.001, hourly)
	b := DeriveEvents(45.002, 7.002, hourly)
	c := DeriveEvents(46, 7, hourly)

	require.Len(t, a, 1)
	assert.Equal(t, a[0].ID, b[0].ID)
	assert.NotEqual(t, a[0].ID, c[0].ID)
	assert.Empty(t, DeriveEvents(45, 7, nil))
}
