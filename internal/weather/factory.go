package weather

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/i474232898/road-weather/internal/observability"
)

const hybridSliceSize = 5

// FactoryConfig configures provider selection.
type FactoryConfig struct {
	// Strategies maps a strategy to its preferred provider names.
	Strategies map[Strategy][]string
	// DefaultStrategy is used when a request names none.
	DefaultStrategy Strategy
	// DefaultProvider receives the best-effort events call when no
	// alert-capable provider is available.
	DefaultProvider string
	// CallTimeout bounds each single provider call. Zero disables it.
	CallTimeout time.Duration
}

// SelectOptions tune provider selection for one request.
type SelectOptions struct {
	Strategy  Strategy
	Preferred string
}

// Factory selects providers under quota constraints and runs requests with
// fallback. Providers are kept in registration order.
type Factory struct {
	providers       []Provider
	byName          map[string]Provider
	orders          map[Strategy][]Provider
	defaultStrategy Strategy
	defaultProvider string
	callTimeout     time.Duration
	logger          *slog.Logger
	metrics         *observability.Metrics
}

// NewFactory registers providers in the given order.
func NewFactory(providers []Provider, cfg FactoryConfig, logger *slog.Logger, metrics *observability.Metrics) (*Factory, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NewMetricsForTesting()
	}

	f := &Factory{
		providers:       providers,
		byName:          make(map[string]Provider, len(providers)),
		orders:          make(map[Strategy][]Provider),
		defaultStrategy: cfg.DefaultStrategy,
		defaultProvider: cfg.DefaultProvider,
		callTimeout:     cfg.CallTimeout,
		logger:          logger,
		metrics:         metrics,
	}

	for _, p := range providers {
		name := p.Config().Name
		if name == "" {
			return nil, errors.New("provider registered without a name")
		}
		if _, dup := f.byName[name]; dup {
			return nil, fmt.Errorf("provider %q registered twice", name)
		}
		f.byName[name] = p
	}

	f.orders[StrategyPriority] = byPriority(providers)
	for strategy, names := range cfg.Strategies {
		order, unknown := resolveOrder(names, providers)
		if len(unknown) > 0 {
			logger.Warn("strategy references unregistered providers", "strategy", strategy, "providers", unknown)
		}
		f.orders[strategy] = order
	}
	if f.defaultStrategy == "" {
		f.defaultStrategy = StrategyPriority
	}
	if _, ok := f.orders[f.defaultStrategy]; !ok {
		return nil, fmt.Errorf("default strategy %q is not configured", f.defaultStrategy)
	}

	return f, nil
}

// Providers returns the registered providers in registration order.
func (f *Factory) Providers() []Provider {
	return append([]Provider(nil), f.providers...)
}

func (f *Factory) names() []string {
	names := make([]string, len(f.providers))
	for i, p := range f.providers {
		names[i] = p.Config().Name
	}
	return names
}

func (f *Factory) orderFor(strategy Strategy) []Provider {
	if order, ok := f.orders[strategy]; ok {
		return order
	}
	if strategy != "" {
		f.logger.Warn("unknown strategy, using default", "strategy", strategy, "default", f.defaultStrategy)
	}
	return f.orders[f.defaultStrategy]
}

// SortedProviders returns the available providers for a request: the
// preferred provider first when it is available, then the strategy order.
// Providers out of quota are left out.
func (f *Factory) SortedProviders(ctx context.Context, opts SelectOptions) []Provider {
	var (
		out    []Provider
		placed = make(map[string]bool, len(f.providers))
	)

	if opts.Preferred != "" {
		if p, ok := f.byName[opts.Preferred]; ok && p.IsAvailable(ctx) {
			out = append(out, p)
			placed[opts.Preferred] = true
		}
	}

	for _, p := range f.orderFor(opts.Strategy) {
		name := p.Config().Name
		if placed[name] || !p.IsAvailable(ctx) {
			continue
		}
		placed[name] = true
		out = append(out, p)
	}
	return out
}

// BestProvider returns the head of SortedProviders. It fails with a
// QuotaExceededError when every provider is exhausted.
func (f *Factory) BestProvider(ctx context.Context, opts SelectOptions) (Provider, error) {
	sorted := f.SortedProviders(ctx, opts)
	if len(sorted) == 0 {
		return nil, &QuotaExceededError{Providers: f.names()}
	}
	return sorted[0], nil
}

// GetProvider is the public selection entry point for handlers.
func (f *Factory) GetProvider(ctx context.Context, opts SelectOptions) (Provider, error) {
	return f.BestProvider(ctx, opts)
}

// ProviderForBulk picks a provider for requiredCalls calls: the first in
// preference order with enough quota, else the one with the most quota left.
func (f *Factory) ProviderForBulk(ctx context.Context, requiredCalls int, opts SelectOptions) (Provider, error) {
	var (
		best          Provider
		bestRemaining int
	)
	for _, p := range f.SortedProviders(ctx, opts) {
		remaining := p.RemainingCalls(ctx)
		if remaining >= requiredCalls && remaining > 0 {
			return p, nil
		}
		if remaining > bestRemaining {
			best, bestRemaining = p, remaining
		}
	}
	if best == nil {
		return nil, &QuotaExceededError{Providers: f.names()}
	}
	f.logger.Info("no provider has enough quota for bulk request, using largest remaining",
		"provider", best.Config().Name, "required", requiredCalls, "remaining", bestRemaining)
	return best, nil
}

// ProvidersStatus reports every registered provider in registration order.
func (f *Factory) ProvidersStatus(ctx context.Context) []ProviderStatus {
	statuses := make([]ProviderStatus, 0, len(f.providers))
	for _, p := range f.providers {
		cfg := p.Config()
		remaining := p.RemainingCalls(ctx)
		f.metrics.QuotaRemaining.WithLabelValues(cfg.Name).Set(float64(remaining))
		statuses = append(statuses, ProviderStatus{
			Name:           cfg.Name,
			Available:      p.IsAvailable(ctx),
			RemainingCalls: remaining,
			DailyLimit:     cfg.DailyLimit,
			Priority:       cfg.Priority,
		})
	}
	return statuses
}

// TotalRemainingCalls sums remaining quota over all providers.
func (f *Factory) TotalRemainingCalls(ctx context.Context) int {
	total := 0
	for _, p := range f.providers {
		total += p.RemainingCalls(ctx)
	}
	return total
}

func (f *Factory) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if f.callTimeout > 0 {
		return context.WithTimeout(ctx, f.callTimeout)
	}
	return context.WithCancel(ctx)
}

// withFallback tries candidates in order and returns the first success.
// When all fail, the last error is returned inside an AllProvidersFailedError.
func withFallback[T any](ctx context.Context, f *Factory, op string, candidates []Provider, call func(context.Context, Provider) (T, error)) (T, string, error) {
	var zero T
	if len(candidates) == 0 {
		return zero, "", &QuotaExceededError{Providers: f.names()}
	}

	var (
		tried []string
		last  error
	)
	for i, p := range candidates {
		name := p.Config().Name
		tried = append(tried, name)

		callCtx, cancel := f.callContext(ctx)
		v, err := call(callCtx, p)
		cancel()
		if err == nil {
			f.metrics.ProviderCalls.WithLabelValues(name, op, "success").Inc()
			return v, name, nil
		}

		f.metrics.ProviderCalls.WithLabelValues(name, op, "error").Inc()
		last = err
		if i < len(candidates)-1 {
			f.metrics.ProviderFallbacks.WithLabelValues(op).Inc()
			f.logger.Warn("provider failed, trying next", "operation", op, "provider", name, "error", err)
		}
	}

	f.logger.Error("all providers failed", "operation", op, "providers", tried, "error", last)
	return zero, "", &AllProvidersFailedError{Tried: tried, Last: last}
}

// GetTimelines fetches current and hourly weather with fallback.
func (f *Factory) GetTimelines(ctx context.Context, lat, lng float64, topts TimelineOptions, opts SelectOptions) (TimelinesResult, error) {
	tl, name, err := withFallback(ctx, f, "timelines", f.SortedProviders(ctx, opts),
		func(ctx context.Context, p Provider) (Timelines, error) {
			return p.GetTimelines(ctx, lat, lng, topts)
		})
	if err != nil {
		return TimelinesResult{}, err
	}
	return TimelinesResult{Timelines: reclassifyTimelines(tl), Provider: name}, nil
}

// GetEvents fetches derived hazard events. Only alert-capable providers are
// tried. Without any, one best-effort call goes to the default provider and
// a failure yields an empty result.
func (f *Factory) GetEvents(ctx context.Context, lat, lng, radiusKm float64, opts SelectOptions) (EventsResult, error) {
	var capable []Provider
	for _, p := range f.SortedProviders(ctx, opts) {
		if p.Config().Features.Alerts {
			capable = append(capable, p)
		}
	}

	if len(capable) == 0 {
		return f.bestEffortEvents(ctx, lat, lng, radiusKm), nil
	}

	events, name, err := withFallback(ctx, f, "events", capable,
		func(ctx context.Context, p Provider) ([]WeatherEvent, error) {
			return p.GetEvents(ctx, lat, lng, radiusKm)
		})
	if err != nil {
		return EventsResult{}, err
	}
	if events == nil {
		events = []WeatherEvent{}
	}
	return EventsResult{Events: events, Provider: name}, nil
}

func (f *Factory) bestEffortEvents(ctx context.Context, lat, lng, radiusKm float64) EventsResult {
	empty := EventsResult{Events: []WeatherEvent{}}

	p, ok := f.byName[f.defaultProvider]
	if !ok {
		f.logger.Warn("no alert-capable provider and no default provider configured")
		return empty
	}

	name := p.Config().Name
	callCtx, cancel := f.callContext(ctx)
	defer cancel()

	events, err := p.GetEvents(callCtx, lat, lng, radiusKm)
	if err != nil {
		f.metrics.ProviderCalls.WithLabelValues(name, "events", "error").Inc()
		f.logger.Warn("best-effort events call failed", "provider", name, "error", err)
		return empty
	}
	f.metrics.ProviderCalls.WithLabelValues(name, "events", "success").Inc()
	if events == nil {
		events = []WeatherEvent{}
	}
	return EventsResult{Events: events, Provider: name}
}

// AnalyzeRoute analyzes a route with a single provider chosen for bulk work.
// A route that yields no segments reports low overall risk.
func (f *Factory) AnalyzeRoute(ctx context.Context, points []RoutePoint, opts SelectOptions) (RouteResult, error) {
	if err := ValidateRoute(points); err != nil {
		return RouteResult{}, err
	}

	required := min(len(points), MaxRouteSamples)
	p, err := f.ProviderForBulk(ctx, required, opts)
	if err != nil {
		return RouteResult{}, err
	}

	name := p.Config().Name
	analysis, err := p.AnalyzeRoute(ctx, points)
	if err != nil {
		f.metrics.ProviderCalls.WithLabelValues(name, "route", "error").Inc()
		return RouteResult{}, &AllProvidersFailedError{Tried: []string{name}, Last: err}
	}
	f.metrics.ProviderCalls.WithLabelValues(name, "route", "success").Inc()

	segments := reclassifySegments(analysis.Segments)
	f.metrics.RouteSegments.WithLabelValues("single").Observe(float64(len(segments)))

	return RouteResult{
		RouteAnalysis: RouteAnalysis{Segments: segments, OverallRisk: OverallRisk(segments)},
		Providers:     []string{name},
	}, nil
}

type routeClaim struct {
	provider int
	points   []RoutePoint
}

// AnalyzeRouteHybrid spreads a sampled route over providers in registration
// order, each claiming up to five contiguous points it has quota for.
// Providers run concurrently; each runs its own slices sequentially.
// It fails with ErrRouteAnalysisFailed when no segment was collected.
func (f *Factory) AnalyzeRouteHybrid(ctx context.Context, points []RoutePoint) (RouteResult, error) {
	if err := ValidateRoute(points); err != nil {
		return RouteResult{}, err
	}

	sampled := HybridSample(points)
	claims := f.claimSlices(ctx, sampled)

	slices := make([][][]RoutePoint, len(f.providers))
	for _, c := range claims {
		slices[c.provider] = append(slices[c.provider], c.points)
	}

	results := make([][]RouteSegment, len(f.providers))
	var wg sync.WaitGroup
	for i, owned := range slices {
		if len(owned) == 0 {
			continue
		}
		wg.Add(1)
		go func(i int, owned [][]RoutePoint) {
			defer wg.Done()
			p := f.providers[i]
			name := p.Config().Name
			for _, slice := range owned {
				analysis, err := p.AnalyzeRoute(ctx, slice)
				if err != nil {
					f.metrics.ProviderCalls.WithLabelValues(name, "route", "error").Inc()
					f.logger.Warn("hybrid slice failed", "provider", name, "points", len(slice), "error", err)
					continue
				}
				f.metrics.ProviderCalls.WithLabelValues(name, "route", "success").Inc()
				results[i] = append(results[i], analysis.Segments...)
			}
		}(i, owned)
	}
	wg.Wait()

	var (
		segments []RouteSegment
		used     []string
	)
	for i, segs := range results {
		if len(segs) == 0 {
			continue
		}
		used = append(used, f.providers[i].Config().Name)
		segments = append(segments, segs...)
	}

	f.metrics.RouteSegments.WithLabelValues("hybrid").Observe(float64(len(segments)))
	if len(segments) == 0 {
		f.logger.Error("hybrid route analysis collected no segments", "sampled", len(sampled), "claims", len(claims))
		return RouteResult{}, ErrRouteAnalysisFailed
	}
	if len(segments) < len(sampled) {
		f.logger.Warn("partial route data", "mode", "hybrid", "sampled", len(sampled), "segments", len(segments))
	}

	segments = reclassifySegments(segments)
	sort.SliceStable(segments, func(i, j int) bool {
		return segments[i].Point.KM < segments[j].Point.KM
	})

	return RouteResult{
		RouteAnalysis: RouteAnalysis{Segments: segments, OverallRisk: OverallRisk(segments)},
		Providers:     used,
	}, nil
}

// claimSlices walks providers in registration order, handing each provider
// with quota the next contiguous run of unclaimed points. It repeats while
// points remain and some provider still has quota.
func (f *Factory) claimSlices(ctx context.Context, sampled []RoutePoint) []routeClaim {
	remaining := make([]int, len(f.providers))
	for i, p := range f.providers {
		remaining[i] = p.RemainingCalls(ctx)
	}

	var claims []routeClaim
	cursor := 0
	for cursor < len(sampled) {
		claimed := false
		for i := range f.providers {
			if cursor >= len(sampled) {
				break
			}
			if remaining[i] <= 0 {
				continue
			}
			n := min(hybridSliceSize, remaining[i], len(sampled)-cursor)
			claims = append(claims, routeClaim{provider: i, points: sampled[cursor : cursor+n]})
			remaining[i] -= n
			cursor += n
			claimed = true
		}
		if !claimed {
			break
		}
	}
	return claims
}

// ValidateRoute checks that a route is non-empty and its km markers never decrease.
func ValidateRoute(points []RoutePoint) error {
	if len(points) == 0 {
		return fmt.Errorf("%w: no points", ErrInvalidRoute)
	}
	for i := 1; i < len(points); i++ {
		if points[i].KM < points[i-1].KM {
			return fmt.Errorf("%w: km decreases at point %d", ErrInvalidRoute, i)
		}
	}
	return nil
}

func reclassifyTimelines(tl Timelines) Timelines {
	tl.Current = WithRisk(tl.Current)
	for i := range tl.Hourly {
		tl.Hourly[i].Weather = WithRisk(tl.Hourly[i].Weather)
	}
	return tl
}

func reclassifySegments(segments []RouteSegment) []RouteSegment {
	out := make([]RouteSegment, len(segments))
	for i, s := range segments {
		s.Weather = WithRisk(s.Weather)
		out[i] = s
	}
	return out
}
