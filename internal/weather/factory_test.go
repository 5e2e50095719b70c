package weather

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/road-weather/internal/observability"
)

// --- fake provider ---

type fakeProvider struct {
	cfg       ProviderConfig
	remaining int
	err       error
	signal    WeatherSignal
	events    []WeatherEvent
	reverse   bool // return route segments in reverse order
	// hourlyPerRequest returns one hourly entry per requested hour.
	hourlyPerRequest bool

	mu         sync.Mutex
	calls      int
	hours      []int
	routeSizes []int
}

func newFake(name string, priority, remaining int) *fakeProvider {
	return &fakeProvider{
		cfg: ProviderConfig{
			Name:       name,
			DailyLimit: 100,
			Priority:   priority,
			Features:   Features{Current: true, Forecast: true},
		},
		remaining: remaining,
		signal:    clearSky(),
	}
}

func (p *fakeProvider) Config() ProviderConfig               { return p.cfg }
func (p *fakeProvider) IsAvailable(_ context.Context) bool   { return p.remaining > 0 }
func (p *fakeProvider) RemainingCalls(_ context.Context) int { return p.remaining }
func (p *fakeProvider) callCount() int                       { p.mu.Lock(); defer p.mu.Unlock(); return p.calls }
func (p *fakeProvider) recordCall()                          { p.mu.Lock(); p.calls++; p.mu.Unlock() }

func (p *fakeProvider) GetTimelines(_ context.Context, _, _ float64, opts TimelineOptions) (Timelines, error) {
	p.recordCall()
	p.mu.Lock()
	p.hours = append(p.hours, opts.Hours)
	p.mu.Unlock()
	if p.err != nil {
		return Timelines{}, p.err
	}
	tl := Timelines{Current: p.signal}
	if p.hourlyPerRequest {
		start := time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC)
		for i := 0; i < opts.Horizon(); i++ {
			tl.Hourly = append(tl.Hourly, HourlyForecast{Time: start.Add(time.Duration(i) * time.Hour), Weather: p.signal})
		}
	}
	return tl, nil
}

func (p *fakeProvider) GetEvents(_ context.Context, _, _, _ float64) ([]WeatherEvent, error) {
	p.recordCall()
	if p.err != nil {
		return nil, p.err
	}
	return p.events, nil
}

func (p *fakeProvider) AnalyzeRoute(_ context.Context, points []RoutePoint) (RouteAnalysis, error) {
	p.mu.Lock()
	p.calls++
	p.routeSizes = append(p.routeSizes, len(points))
	p.mu.Unlock()
	if p.err != nil {
		return RouteAnalysis{}, p.err
	}
	segments := make([]RouteSegment, 0, len(points))
	for _, pt := range points {
		segments = append(segments, RouteSegment{Point: pt, Weather: p.signal})
	}
	if p.reverse {
		for i, j := 0, len(segments)-1; i < j; i, j = i+1, j-1 {
			segments[i], segments[j] = segments[j], segments[i]
		}
	}
	return RouteAnalysis{Segments: segments, OverallRisk: RiskLow}, nil
}

func newTestFactory(t *testing.T, cfg FactoryConfig, providers ...Provider) *Factory {
	t.Helper()
	f, err := NewFactory(providers, cfg, slog.Default(), observability.NewMetricsForTesting())
	require.NoError(t, err)
	return f
}

func names(providers []Provider) []string {
	out := make([]string, len(providers))
	for i, p := range providers {
		out[i] = p.Config().Name
	}
	return out
}

// --- selection ---

func TestSortedProviders_PreferredFirst(t *testing.T) {
	a := newFake("A", 1, 10)
	b := newFake("B", 2, 10)
	f := newTestFactory(t, FactoryConfig{}, a, b)

	assert.Equal(t, []string{"A", "B"}, names(f.SortedProviders(context.Background(), SelectOptions{})))
	assert.Equal(t, []string{"B", "A"}, names(f.SortedProviders(context.Background(), SelectOptions{Preferred: "B"})))
}

func TestSortedProviders_SkipsUnavailablePreferred(t *testing.T) {
	a := newFake("A", 1, 10)
	b := newFake("B", 2, 0)
	f := newTestFactory(t, FactoryConfig{}, a, b)

	assert.Equal(t, []string{"A"}, names(f.SortedProviders(context.Background(), SelectOptions{Preferred: "B"})))
}

func TestSortedProviders_StrategyOrder(t *testing.T) {
	a := newFake("A", 1, 10)
	b := newFake("B", 2, 10)
	c := newFake("C", 3, 10)
	f := newTestFactory(t, FactoryConfig{
		Strategies: map[Strategy][]string{
			StrategyCostOptimized: {"C", "A"},
			StrategyReliability:   {"B", "missing"},
		},
	}, a, b, c)

	ctx := context.Background()
	assert.Equal(t, []string{"C", "A", "B"}, names(f.SortedProviders(ctx, SelectOptions{Strategy: StrategyCostOptimized})))
	assert.Equal(t, []string{"B", "A", "C"}, names(f.SortedProviders(ctx, SelectOptions{Strategy: StrategyReliability})))
	assert.Equal(t, []string{"A", "B", "C"}, names(f.SortedProviders(ctx, SelectOptions{Strategy: StrategyPerformance})))
}

func TestNewFactory_RejectsDuplicates(t *testing.T) {
	_, err := NewFactory([]Provider{newFake("A", 1, 1), newFake("A", 2, 1)}, FactoryConfig{}, nil, nil)
	require.Error(t, err)
}

func TestBestProvider_AllExhausted(t *testing.T) {
	f := newTestFactory(t, FactoryConfig{}, newFake("A", 1, 0), newFake("B", 2, 0))

	_, err := f.BestProvider(context.Background(), SelectOptions{})

	var quotaErr *QuotaExceededError
	require.ErrorAs(t, err, &quotaErr)
	assert.ErrorIs(t, err, ErrNoProviderAvailable)
	assert.Equal(t, []string{"A", "B"}, quotaErr.Providers)
}

func TestProviderForBulk(t *testing.T) {
	ctx := context.Background()

	t.Run("first with enough quota", func(t *testing.T) {
		f := newTestFactory(t, FactoryConfig{}, newFake("A", 1, 3), newFake("B", 2, 20), newFake("C", 3, 50))
		p, err := f.ProviderForBulk(ctx, 10, SelectOptions{})
		require.NoError(t, err)
		assert.Equal(t, "B", p.Config().Name)
	})

	t.Run("falls back to largest remaining", func(t *testing.T) {
		f := newTestFactory(t, FactoryConfig{}, newFake("A", 1, 3), newFake("B", 2, 7), newFake("C", 3, 2))
		p, err := f.ProviderForBulk(ctx, 10, SelectOptions{})
		require.NoError(t, err)
		assert.Equal(t, "B", p.Config().Name)
	})

	t.Run("fails when all are empty", func(t *testing.T) {
		f := newTestFactory(t, FactoryConfig{}, newFake("A", 1, 0), newFake("B", 2, 0))
		_, err := f.ProviderForBulk(ctx, 10, SelectOptions{})
		assert.ErrorIs(t, err, ErrNoProviderAvailable)
	})
}

func TestProvidersStatusAndTotal(t *testing.T) {
	f := newTestFactory(t, FactoryConfig{}, newFake("A", 1, 4), newFake("B", 2, 0))

	statuses := f.ProvidersStatus(context.Background())
	require.Len(t, statuses, 2)
	assert.Equal(t, ProviderStatus{Name: "A", Available: true, RemainingCalls: 4, DailyLimit: 100, Priority: 1}, statuses[0])
	assert.False(t, statuses[1].Available)
	assert.Equal(t, 4, f.TotalRemainingCalls(context.Background()))
}

// --- fallback ---

func TestGetTimelines_FallsBack(t *testing.T) {
	a := newFake("A", 1, 10)
	a.err = &ProviderRequestError{Provider: "A", Endpoint: "timelines", StatusCode: 500, Err: errors.New("boom")}
	b := newFake("B", 2, 10)
	b.signal.RoadRisk = RiskExtreme // must be recomputed
	f := newTestFactory(t, FactoryConfig{}, a, b)

	res, err := f.GetTimelines(context.Background(), 1, 2, TimelineOptions{Hours: 1}, SelectOptions{})
	require.NoError(t, err)
	assert.Equal(t, "B", res.Provider)
	assert.Equal(t, RiskLow, res.Current.RoadRisk)
	assert.Equal(t, 1, a.callCount())
}

func TestGetTimelines_AllFailReturnsLastError(t *testing.T) {
	errA := errors.New("a down")
	errB := errors.New("b down")
	a := newFake("A", 1, 10)
	a.err = errA
	b := newFake("B", 2, 10)
	b.err = errB
	f := newTestFactory(t, FactoryConfig{}, a, b)

	_, err := f.GetTimelines(context.Background(), 1, 2, TimelineOptions{}, SelectOptions{})

	var failed *AllProvidersFailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, []string{"A", "B"}, failed.Tried)
	assert.ErrorIs(t, err, errB)
	assert.NotErrorIs(t, err, errA)
	assert.True(t, IsUnavailable(err))
}

func TestGetTimelines_CallTimeout(t *testing.T) {
	slow := &blockingProvider{fakeProvider: newFake("slow", 1, 10)}
	fast := newFake("fast", 2, 10)
	f := newTestFactory(t, FactoryConfig{CallTimeout: 20 * time.Millisecond}, slow, fast)

	res, err := f.GetTimelines(context.Background(), 1, 2, TimelineOptions{}, SelectOptions{})
	require.NoError(t, err)
	assert.Equal(t, "fast", res.Provider)
}

type blockingProvider struct {
	*fakeProvider
}

func (p *blockingProvider) GetTimelines(ctx context.Context, _, _ float64, _ TimelineOptions) (Timelines, error) {
	<-ctx.Done()
	return Timelines{}, ctx.Err()
}

// --- events ---

func TestGetEvents_OnlyAlertCapable(t *testing.T) {
	a := newFake("A", 1, 10)
	b := newFake("B", 2, 10)
	b.cfg.Features.Alerts = true
	b.events = []WeatherEvent{{ID: "e1", Type: HazardThunderstorm}}
	f := newTestFactory(t, FactoryConfig{}, a, b)

	res, err := f.GetEvents(context.Background(), 1, 2, 25, SelectOptions{})
	require.NoError(t, err)
	assert.Equal(t, "B", res.Provider)
	assert.Len(t, res.Events, 1)
	assert.Zero(t, a.callCount())
}

func TestGetEvents_DefaultProviderBestEffort(t *testing.T) {
	a := newFake("A", 1, 10)
	a.err = errors.New("down")
	f := newTestFactory(t, FactoryConfig{DefaultProvider: "A"}, a)

	res, err := f.GetEvents(context.Background(), 1, 2, 25, SelectOptions{})
	require.NoError(t, err)
	assert.NotNil(t, res.Events)
	assert.Empty(t, res.Events)
	assert.Equal(t, 1, a.callCount())
}

func TestGetEvents_DefaultProviderServes(t *testing.T) {
	a := newFake("A", 1, 10)
	a.events = []WeatherEvent{{ID: "e1"}}
	f := newTestFactory(t, FactoryConfig{DefaultProvider: "A"}, a)

	res, err := f.GetEvents(context.Background(), 1, 2, 25, SelectOptions{})
	require.NoError(t, err)
	assert.Equal(t, "A", res.Provider)
	assert.Len(t, res.Events, 1)
}

// --- routes ---

func TestAnalyzeRoute_SingleProvider(t *testing.T) {
	a := newFake("A", 1, 4)
	b := newFake("B", 2, 50)
	f := newTestFactory(t, FactoryConfig{}, a, b)

	res, err := f.AnalyzeRoute(context.Background(), straightRoute(37), SelectOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"B"}, res.Providers)
	assert.Equal(t, RiskLow, res.OverallRisk)
}

func TestAnalyzeRoute_InvalidRoute(t *testing.T) {
	f := newTestFactory(t, FactoryConfig{}, newFake("A", 1, 4))

	_, err := f.AnalyzeRoute(context.Background(), nil, SelectOptions{})
	assert.ErrorIs(t, err, ErrInvalidRoute)

	_, err = f.AnalyzeRouteHybrid(context.Background(), []RoutePoint{{KM: 5}, {KM: 1}})
	assert.ErrorIs(t, err, ErrInvalidRoute)
}

func TestAnalyzeRouteHybrid_SplitsByQuota(t *testing.T) {
	a := newFake("A", 1, 5)
	b := newFake("B", 2, 3)
	b.reverse = true
	b.signal.WindGust = 90
	f := newTestFactory(t, FactoryConfig{}, a, b)

	res, err := f.AnalyzeRouteHybrid(context.Background(), straightRoute(12))
	require.NoError(t, err)

	require.Len(t, res.Segments, 8)
	for i := 1; i < len(res.Segments); i++ {
		assert.LessOrEqual(t, res.Segments[i-1].Point.KM, res.Segments[i].Point.KM)
	}
	assert.Equal(t, []string{"A", "B"}, res.Providers)
	assert.Equal(t, []int{5}, a.routeSizes)
	assert.Equal(t, []int{3}, b.routeSizes)
	assert.Equal(t, float64(25), res.Segments[5].Point.KM)
	assert.Equal(t, RiskExtreme, res.OverallRisk)
}

func TestAnalyzeRouteHybrid_MultipleRounds(t *testing.T) {
	a := newFake("A", 1, 100)
	b := newFake("B", 2, 100)
	f := newTestFactory(t, FactoryConfig{}, a, b)

	res, err := f.AnalyzeRouteHybrid(context.Background(), straightRoute(12))
	require.NoError(t, err)

	assert.Len(t, res.Segments, 12)
	assert.Equal(t, []int{5, 2}, a.routeSizes)
	assert.Equal(t, []int{5}, b.routeSizes)
}

func TestAnalyzeRouteHybrid_ProviderWithoutSegmentsNotUsed(t *testing.T) {
	a := newFake("A", 1, 5)
	a.err = errors.New("down")
	b := newFake("B", 2, 5)
	f := newTestFactory(t, FactoryConfig{}, a, b)

	res, err := f.AnalyzeRouteHybrid(context.Background(), straightRoute(12))
	require.NoError(t, err)
	assert.Equal(t, []string{"B"}, res.Providers)
	assert.Len(t, res.Segments, 5)
}

func TestAnalyzeRouteHybrid_NoSegmentsFails(t *testing.T) {
	f := newTestFactory(t, FactoryConfig{}, newFake("A", 1, 0), newFake("B", 2, 0))

	_, err := f.AnalyzeRouteHybrid(context.Background(), straightRoute(12))
	assert.ErrorIs(t, err, ErrRouteAnalysisFailed)
}
