package weather

import (
	"context"
	"log/slog"
)

// MaxRouteSamples bounds how many points a single route analysis fetches.
const MaxRouteSamples = 10

// SampleRoute picks at most maxPoints evenly strided points, always
// starting with the first point.
func SampleRoute(points []RoutePoint, maxPoints int) []RoutePoint {
	if len(points) == 0 || maxPoints <= 0 {
		return nil
	}
	stride := (len(points) + maxPoints - 1) / maxPoints
	return every(points, stride)
}

// HybridSample takes every max(1, len/10)-th point for hybrid analysis.
func HybridSample(points []RoutePoint) []RoutePoint {
	stride := len(points) / MaxRouteSamples
	if stride < 1 {
		stride = 1
	}
	return every(points, stride)
}

func every(points []RoutePoint, stride int) []RoutePoint {
	sampled := make([]RoutePoint, 0, len(points)/stride+1)
	for i := 0; i < len(points); i += stride {
		sampled = append(sampled, points[i])
	}
	return sampled
}

// OverallRisk returns the most severe segment risk, or low when there are
// no segments.
func OverallRisk(segments []RouteSegment) RiskLevel {
	overall := RiskLow
	for _, s := range segments {
		if s.Weather.RoadRisk.Severity() > overall.Severity() {
			overall = s.Weather.RoadRisk
		}
	}
	return overall
}

// PointFetcher fetches the near-term signal for one route point.
type PointFetcher func(ctx context.Context, p RoutePoint) (WeatherSignal, error)

// AnalyzeRouteSequential samples up to min(len(points), remaining, 10) points
// and fetches them one at a time. Failed points are logged and left out.
func AnalyzeRouteSequential(ctx context.Context, points []RoutePoint, remaining int, fetch PointFetcher, logger *slog.Logger) RouteAnalysis {
	maxPoints := min(len(points), remaining, MaxRouteSamples)
	sampled := SampleRoute(points, maxPoints)

	segments := make([]RouteSegment, 0, len(sampled))
	for _, p := range sampled {
		signal, err := fetch(ctx, p)
		if err != nil {
			logger.Warn("route point skipped", "lat", p.Lat, "lng", p.Lng, "km", p.KM, "error", err)
			continue
		}
		segments = append(segments, RouteSegment{Point: p, Weather: WithRisk(signal)})
	}

	if missing := len(sampled) - len(segments); missing > 0 {
		logger.Warn("partial route data", "sampled", len(sampled), "missing", missing)
	}

	return RouteAnalysis{
		Segments:    segments,
		OverallRisk: OverallRisk(segments),
	}
}
