package weather

import (
	"context"
)

// Provider is a weather data source (e.g. Tomorrow.io, OpenWeatherMap, Open-Meteo)
// with its own quota and capabilities.
type Provider interface {
	Config() ProviderConfig
	IsAvailable(ctx context.Context) bool
	RemainingCalls(ctx context.Context) int
	GetTimelines(ctx context.Context, lat, lng float64, opts TimelineOptions) (Timelines, error)
	GetEvents(ctx context.Context, lat, lng, radiusKm float64) ([]WeatherEvent, error)
	AnalyzeRoute(ctx context.Context, points []RoutePoint) (RouteAnalysis, error)
}

// CacheStore is the contract the in-memory cache (and Redis) must satisfy.
// Get returns ErrCacheMiss for absent or expired keys.
type CacheStore interface {
	Get(ctx context.Context, key string) (CacheEntry, error)
	Set(ctx context.Context, entry CacheEntry) error
}

// EventPublisher forwards derived events to downstream consumers.
type EventPublisher interface {
	PublishEvents(ctx context.Context, locationKey string, events []WeatherEvent) error
}
