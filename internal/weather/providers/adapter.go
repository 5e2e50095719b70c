// Package providers adapts third-party weather APIs to weather.Provider.
//
// Each upstream API is a Source that only fetches and normalizes a forecast.
// Adapter layers the shared behaviour on top: quota accounting, risk
// classification, event derivation and sequential route analysis.
package providers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/i474232898/road-weather/internal/quota"
	"github.com/i474232898/road-weather/internal/weather"
)

// Quota endpoints.
const (
	EndpointTimelines = "timelines"
	EndpointEvents    = "events"
	EndpointRoute     = "route"
)

const (
	eventHorizonHours   = 48
	defaultPointTimeout = 10 * time.Second
)

var errQuotaExhausted = errors.New("daily quota exhausted")

var validate = validator.New()

// Source fetches a forecast from one upstream API and normalizes it into
// the canonical signal. RoadRisk is left for the Adapter to compute.
type Source interface {
	Name() string
	Forecast(ctx context.Context, lat, lng float64, hours int) (weather.Timelines, error)
}

// Adapter implements weather.Provider on top of a Source.
type Adapter struct {
	cfg          weather.ProviderConfig
	source       Source
	quota        *quota.Tracker
	logger       *slog.Logger
	pointTimeout time.Duration
}

// AdapterOption customizes an Adapter.
type AdapterOption func(*Adapter)

// WithPointTimeout bounds each per-point fetch of a route analysis.
func WithPointTimeout(d time.Duration) AdapterOption {
	return func(a *Adapter) {
		if d > 0 {
			a.pointTimeout = d
		}
	}
}

// NewAdapter validates cfg and wraps source. cfg.Name is the quota key.
func NewAdapter(cfg weather.ProviderConfig, source Source, tracker *quota.Tracker, logger *slog.Logger, opts ...AdapterOption) (*Adapter, error) {
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("provider %q config: %w", cfg.Name, err)
	}
	if source == nil || tracker == nil {
		return nil, fmt.Errorf("provider %q: source and quota tracker are required", cfg.Name)
	}
	if logger == nil {
		logger = slog.Default()
	}

	a := &Adapter{
		cfg:          cfg,
		source:       source,
		quota:        tracker,
		logger:       logger.With("provider", cfg.Name),
		pointTimeout: defaultPointTimeout,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

func (a *Adapter) Config() weather.ProviderConfig {
	return a.cfg
}

// IsAvailable is false when today's quota is used up or cannot be read.
func (a *Adapter) IsAvailable(ctx context.Context) bool {
	avail, err := a.quota.CheckAvailability(ctx, a.cfg.Name, a.cfg.DailyLimit)
	if err != nil {
		a.logger.Error("quota check failed", "error", err)
		return false
	}
	return !avail.Exceeded
}

// RemainingCalls is 0 when the quota store cannot be read.
func (a *Adapter) RemainingCalls(ctx context.Context) int {
	avail, err := a.quota.CheckAvailability(ctx, a.cfg.Name, a.cfg.DailyLimit)
	if err != nil {
		a.logger.Error("quota check failed", "error", err)
		return 0
	}
	return avail.Remaining
}

func (a *Adapter) GetTimelines(ctx context.Context, lat, lng float64, opts weather.TimelineOptions) (weather.Timelines, error) {
	tl, err := a.fetch(ctx, EndpointTimelines, lat, lng, opts.Horizon())
	if err != nil {
		return weather.Timelines{}, err
	}

	tl.Current = weather.WithRisk(tl.Current)
	for i := range tl.Hourly {
		tl.Hourly[i].Weather = weather.WithRisk(tl.Hourly[i].Weather)
	}
	return tl, nil
}

// GetEvents derives hazard events from the hourly forecast. Point forecasts
// have no area, so radiusKm does not change the result.
func (a *Adapter) GetEvents(ctx context.Context, lat, lng, radiusKm float64) ([]weather.WeatherEvent, error) {
	tl, err := a.fetch(ctx, EndpointEvents, lat, lng, eventHorizonHours)
	if err != nil {
		return nil, err
	}

	events := weather.DeriveEvents(lat, lng, tl.Hourly)
	if events == nil {
		events = []weather.WeatherEvent{}
	}
	a.logger.Debug("events derived", "lat", lat, "lng", lng, "radiusKm", radiusKm, "count", len(events))
	return events, nil
}

// AnalyzeRoute fetches sampled points one at a time. Each point costs one
// call of the route endpoint.
func (a *Adapter) AnalyzeRoute(ctx context.Context, points []weather.RoutePoint) (weather.RouteAnalysis, error) {
	remaining := a.RemainingCalls(ctx)

	fetch := func(ctx context.Context, p weather.RoutePoint) (weather.WeatherSignal, error) {
		ctx, cancel := context.WithTimeout(ctx, a.pointTimeout)
		defer cancel()

		tl, err := a.fetch(ctx, EndpointRoute, p.Lat, p.Lng, 1)
		if err != nil {
			return weather.WeatherSignal{}, err
		}
		return tl.Current, nil
	}

	return weather.AnalyzeRouteSequential(ctx, points, remaining, fetch, a.logger), nil
}

// fetch checks and consumes quota, then calls the source. A retried HTTP
// request still counts as one call.
func (a *Adapter) fetch(ctx context.Context, endpoint string, lat, lng float64, hours int) (weather.Timelines, error) {
	avail, err := a.quota.CheckAvailability(ctx, a.cfg.Name, a.cfg.DailyLimit)
	if err != nil {
		return weather.Timelines{}, a.requestError(endpoint, err)
	}
	if avail.Exceeded {
		return weather.Timelines{}, a.requestError(endpoint, errQuotaExhausted)
	}
	if _, err := a.quota.Consume(ctx, a.cfg.Name, endpoint); err != nil {
		return weather.Timelines{}, a.requestError(endpoint, err)
	}

	tl, err := a.source.Forecast(ctx, lat, lng, hours)
	if err != nil {
		return weather.Timelines{}, a.requestError(endpoint, err)
	}
	return tl, nil
}

func (a *Adapter) requestError(endpoint string, err error) error {
	return &weather.ProviderRequestError{
		Provider:   a.cfg.Name,
		Endpoint:   endpoint,
		StatusCode: statusCode(err),
		Err:        err,
	}
}
