package weather

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func straightRoute(n int) []RoutePoint {
	points := make([]RoutePoint, n)
	for i := range points {
		points[i] = RoutePoint{Lat: 48 + float64(i)*0.01, Lng: 2, KM: float64(i) * 5}
	}
	return points
}

func TestSampleRoute(t *testing.T) {
	points := straightRoute(37)

	sampled := SampleRoute(points, 4)
	require.Len(t, sampled, 4)
	assert.Equal(t, points[0], sampled[0])
	assert.Equal(t, points[10], sampled[1])
	assert.Equal(t, points[30], sampled[3])

	assert.Len(t, SampleRoute(points, 10), 10)
	assert.Nil(t, SampleRoute(points, 0))
	assert.Nil(t, SampleRoute(nil, 5))
}

func TestHybridSample(t *testing.T) {
	assert.Len(t, HybridSample(straightRoute(12)), 12)
	assert.Len(t, HybridSample(straightRoute(5)), 5)

	sampled := HybridSample(straightRoute(35))
	assert.Len(t, sampled, 12) // stride 3
	assert.Equal(t, float64(15), sampled[1].KM)
}

func TestOverallRisk(t *testing.T) {
	assert.Equal(t, RiskLow, OverallRisk(nil))

	segments := []RouteSegment{
		{Weather: WeatherSignal{RoadRisk: RiskLow}},
		{Weather: WeatherSignal{RoadRisk: RiskExtreme}},
		{Weather: WeatherSignal{RoadRisk: RiskLow}},
		{Weather: WeatherSignal{RoadRisk: RiskModerate}},
	}
	assert.Equal(t, RiskExtreme, OverallRisk(segments))
}

func TestAnalyzeRouteSequential_RespectsQuota(t *testing.T) {
	var calls int
	fetch := func(_ context.Context, _ RoutePoint) (WeatherSignal, error) {
		calls++
		return clearSky(), nil
	}

	result := AnalyzeRouteSequential(context.Background(), straightRoute(37), 4, fetch, slog.Default())

	assert.Equal(t, 4, calls)
	assert.Len(t, result.Segments, 4)
	assert.Equal(t, RiskLow, result.OverallRisk)
}

func TestAnalyzeRouteSequential_CapsAtTen(t *testing.T) {
	var calls int
	fetch := func(_ context.Context, _ RoutePoint) (WeatherSignal, error) {
		calls++
		return clearSky(), nil
	}

	AnalyzeRouteSequential(context.Background(), straightRoute(100), 500, fetch, slog.Default())

	assert.Equal(t, 10, calls)
}

func TestAnalyzeRouteSequential_SkipsFailedPoints(t *testing.T) {
	fetch := func(_ context.Context, p RoutePoint) (WeatherSignal, error) {
		if p.KM == 5 {
			return WeatherSignal{}, errors.New("timeout")
		}
		s := clearSky()
		if p.KM == 10 {
			s.WindGust = 95
		}
		// Provider supplied risk must be ignored.
		s.RoadRisk = RiskModerate
		return s, nil
	}

	result := AnalyzeRouteSequential(context.Background(), straightRoute(3), 10, fetch, slog.Default())

	require.Len(t, result.Segments, 2)
	assert.Equal(t, float64(0), result.Segments[0].Point.KM)
	assert.Equal(t, RiskLow, result.Segments[0].Weather.RoadRisk)
	assert.Equal(t, float64(10), result.Segments[1].Point.KM)
	assert.Equal(t, RiskExtreme, result.OverallRisk)
}

func TestAnalyzeRouteSequential_NoQuotaDefaultsLow(t *testing.T) {
	fetch := func(_ context.Context, _ RoutePoint) (WeatherSignal, error) {
		t.Fatal("fetch must not be called without quota")
		return WeatherSignal{}, nil
	}

	result := AnalyzeRouteSequential(context.Background(), straightRoute(5), 0, fetch, slog.Default())

	assert.Empty(t, result.Segments)
	assert.Equal(t, RiskLow, result.OverallRisk)
}
