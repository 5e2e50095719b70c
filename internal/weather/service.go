package weather

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/i474232898/road-weather/internal/observability"
)

// eventsKeyPrefix keeps event payloads apart from timelines in the cache.
const eventsKeyPrefix = "events:"

// RouteMode selects how a route is spread over providers.
type RouteMode string

const (
	RouteModeSingle RouteMode = "single"
	RouteModeHybrid RouteMode = "hybrid"
)

// ParseRouteMode maps an empty string to single mode.
func ParseRouteMode(s string) (RouteMode, error) {
	switch RouteMode(s) {
	case "", RouteModeSingle:
		return RouteModeSingle, nil
	case RouteModeHybrid:
		return RouteModeHybrid, nil
	default:
		return "", fmt.Errorf("unknown route mode %q", s)
	}
}

// Service is what request handlers and the watch job call. It reads
// timelines and events through the cache and falls back to the Factory on
// a miss. Cache failures are logged and never fail a request.
type Service struct {
	factory *Factory
	cache   CacheStore
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewService creates a Service. A nil clock uses real time.
func NewService(factory *Factory, cache CacheStore, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NewMetricsForTesting()
	}
	return &Service{
		factory: factory,
		cache:   cache,
		clock:   clock,
		logger:  logger,
		metrics: metrics,
	}
}

// cachedTimelines records the horizon a cached payload was fetched for,
// which can exceed len(Result.Hourly) near the end of a provider's range.
type cachedTimelines struct {
	Hours  int             `json:"hours"`
	Result TimelinesResult `json:"result"`
}

// Timelines returns current and hourly weather for a location. A cached
// entry only serves requests whose resolved horizon it covers.
func (s *Service) Timelines(ctx context.Context, lat, lng float64, topts TimelineOptions, opts SelectOptions) (TimelinesResult, error) {
	key := CacheKey(lat, lng)
	hours := topts.Horizon()

	var cached cachedTimelines
	if s.lookup(ctx, "timelines", key, &cached) && cached.Hours >= hours {
		res := cached.Result
		if len(res.Hourly) > hours {
			res.Hourly = res.Hourly[:hours]
		}
		return res, nil
	}

	res, err := s.factory.GetTimelines(ctx, lat, lng, TimelineOptions{Hours: hours}, opts)
	if err != nil {
		return TimelinesResult{}, err
	}

	s.store(ctx, key, cachedTimelines{Hours: hours, Result: res}, res.Provider, res.Current.RoadRisk)
	return res, nil
}

// Events returns derived hazard events for a location. Empty best-effort
// results are not cached so the next request tries again.
func (s *Service) Events(ctx context.Context, lat, lng, radiusKm float64, opts SelectOptions) (EventsResult, error) {
	key := eventsKeyPrefix + CacheKey(lat, lng)

	var cached EventsResult
	if s.lookup(ctx, "events", key, &cached) {
		return cached, nil
	}

	res, err := s.factory.GetEvents(ctx, lat, lng, radiusKm, opts)
	if err != nil {
		return EventsResult{}, err
	}
	if res.Provider != "" {
		s.store(ctx, key, res, res.Provider, eventsRisk(res.Events))
	}
	return res, nil
}

// AnalyzeRoute runs a route analysis in the given mode. Routes are not cached.
func (s *Service) AnalyzeRoute(ctx context.Context, points []RoutePoint, mode RouteMode, opts SelectOptions) (RouteResult, error) {
	if mode == RouteModeHybrid {
		return s.factory.AnalyzeRouteHybrid(ctx, points)
	}
	return s.factory.AnalyzeRoute(ctx, points, opts)
}

// ProvidersStatus reports every provider and the pooled remaining calls.
func (s *Service) ProvidersStatus(ctx context.Context) ([]ProviderStatus, int) {
	statuses := s.factory.ProvidersStatus(ctx)
	total := 0
	for _, st := range statuses {
		total += st.RemainingCalls
	}
	return statuses, total
}

func (s *Service) lookup(ctx context.Context, kind, key string, v any) bool {
	if s.cache == nil {
		return false
	}

	entry, err := s.cache.Get(ctx, key)
	if err == nil && entry.Expired(s.clock.Now()) {
		err = ErrCacheMiss
	}
	if err == nil {
		err = entry.Decode(v)
	}
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			s.logger.Warn("cache read failed", "key", key, "error", err)
		}
		s.metrics.CacheLookups.WithLabelValues(kind, "miss").Inc()
		return false
	}

	s.metrics.CacheLookups.WithLabelValues(kind, "hit").Inc()
	return true
}

func (s *Service) store(ctx context.Context, key string, payload any, source string, risk RiskLevel) {
	if s.cache == nil {
		return
	}

	entry, err := NewCacheEntry(key, payload, source, risk, s.clock.Now())
	if err != nil {
		s.logger.Warn("cache entry not built", "key", key, "error", err)
		return
	}
	if err := s.cache.Set(ctx, entry); err != nil {
		s.logger.Warn("cache write failed", "key", key, "error", err)
	}
}

// eventsRisk maps the worst event severity onto a risk level so riskier
// event lists expire sooner.
func eventsRisk(events []WeatherEvent) RiskLevel {
	risk := RiskLow
	for _, e := range events {
		var r RiskLevel
		switch e.Severity {
		case SeverityExtreme:
			r = RiskExtreme
		case SeveritySevere:
			r = RiskHigh
		case SeverityModerate:
			r = RiskModerate
		default:
			r = RiskLow
		}
		if r.Severity() > risk.Severity() {
			risk = r
		}
	}
	return risk
}
