// Package scheduler runs the periodic watch job: derive events for watched
// locations and publish the ones not seen before.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/jonboulle/clockwork"

	"github.com/i474232898/road-weather/internal/observability"
	"github.com/i474232898/road-weather/internal/weather"
)

const (
	defaultInterval = 15 * time.Minute
	jobTimeout      = 30 * time.Second
	watchRadiusKm   = 25
)

// Location is a watched point.
type Location struct {
	Name string
	Lat  float64
	Lng  float64
}

// EventSource is the part of weather.Service the job needs.
type EventSource interface {
	Events(ctx context.Context, lat, lng, radiusKm float64, opts weather.SelectOptions) (weather.EventsResult, error)
}

// Scheduler periodically checks watched locations for hazard events.
type Scheduler struct {
	scheduler *gocron.Scheduler
	source    EventSource
	publisher weather.EventPublisher
	locations []Location
	interval  time.Duration
	clock     clockwork.Clock
	logger    *slog.Logger
	metrics   *observability.Metrics

	mu   sync.Mutex
	seen map[string][]span // location key + hazard type -> published spans
}

// span is the time range of a published event.
type span struct {
	start, end time.Time
}

// New creates a new Scheduler. A nil publisher only logs events.
func New(locations []Location, interval time.Duration, source EventSource, publisher weather.EventPublisher, logger *slog.Logger, metrics *observability.Metrics) *Scheduler {
	if interval <= 0 {
		interval = defaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NewMetricsForTesting()
	}
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		source:    source,
		publisher: publisher,
		locations: locations,
		interval:  interval,
		clock:     clockwork.NewRealClock(),
		logger:    logger,
		metrics:   metrics,
		seen:      make(map[string][]span),
	}
}

// Start schedules the periodic job and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	if len(s.locations) == 0 {
		s.logger.Info("scheduler: no locations configured; nothing to schedule")
		return nil
	}

	_, err := s.scheduler.Every(s.interval).SingletonMode().Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()
		s.RunOnce(ctx)
	})
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

// RunOnce checks every location concurrently and publishes new events.
// It returns how many events were published.
func (s *Scheduler) RunOnce(ctx context.Context) int {
	s.logger.Debug("scheduler: running watch job", "locations", len(s.locations))

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		published int
	)
	for _, loc := range s.locations {
		wg.Add(1)
		go func(loc Location) {
			defer wg.Done()
			n := s.checkLocation(ctx, loc)
			mu.Lock()
			published += n
			mu.Unlock()
		}(loc)
	}
	wg.Wait()

	s.prune()
	s.logger.Info("scheduler: completed watch job", "locations", len(s.locations), "published", published)
	return published
}

func (s *Scheduler) checkLocation(ctx context.Context, loc Location) int {
	res, err := s.source.Events(ctx, loc.Lat, loc.Lng, watchRadiusKm, weather.SelectOptions{})
	if err != nil {
		s.logger.Warn("scheduler: events failed", "location", loc.Name, "error", err)
		return 0
	}

	key := weather.CacheKey(loc.Lat, loc.Lng)
	fresh := s.unseen(key, res.Events)
	if len(fresh) == 0 {
		return 0
	}

	if s.publisher == nil {
		for _, e := range fresh {
			s.logger.Info("scheduler: hazard event", "location", loc.Name, "type", e.Type, "severity", e.Severity, "start", e.StartTime)
		}
		return 0
	}
	if err := s.publisher.PublishEvents(ctx, key, fresh); err != nil {
		s.forget(key, fresh)
		s.logger.Error("scheduler: publish failed", "location", loc.Name, "events", len(fresh), "error", err)
		return 0
	}

	s.metrics.EventsPublished.Add(float64(len(fresh)))
	return len(fresh)
}

// unseen returns the events not published before and marks them seen.
// Event IDs include the start hour, which moves forward while a hazard is
// ongoing, so an event counts as seen when a published event of the same
// type at the same location overlaps or directly precedes it.
func (s *Scheduler) unseen(locationKey string, events []weather.WeatherEvent) []weather.WeatherEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	var fresh []weather.WeatherEvent
	for _, e := range events {
		k := seenKey(locationKey, e.Type)
		if s.extendSeen(k, e) {
			continue
		}
		s.seen[k] = append(s.seen[k], span{start: e.StartTime, end: e.EndTime})
		fresh = append(fresh, e)
	}
	return fresh
}

// extendSeen grows the matching span to cover e. Hourly events are adjacent
// when one starts an hour after the other ends.
func (s *Scheduler) extendSeen(k string, e weather.WeatherEvent) bool {
	spans := s.seen[k]
	for i := range spans {
		sp := &spans[i]
		if e.StartTime.After(sp.end.Add(time.Hour)) || e.EndTime.Add(time.Hour).Before(sp.start) {
			continue
		}
		if e.StartTime.Before(sp.start) {
			sp.start = e.StartTime
		}
		if e.EndTime.After(sp.end) {
			sp.end = e.EndTime
		}
		return true
	}
	return false
}

func (s *Scheduler) forget(locationKey string, events []weather.WeatherEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range events {
		k := seenKey(locationKey, e.Type)
		spans := s.seen[k][:0]
		for _, sp := range s.seen[k] {
			if !sp.start.Equal(e.StartTime) {
				spans = append(spans, sp)
			}
		}
		if len(spans) == 0 {
			delete(s.seen, k)
		} else {
			s.seen[k] = spans
		}
	}
}

// prune drops events that ended more than a day ago.
func (s *Scheduler) prune() {
	cutoff := s.clock.Now().Add(-24 * time.Hour)

	s.mu.Lock()
	defer s.mu.Unlock()
	for k, spans := range s.seen {
		kept := spans[:0]
		for _, sp := range spans {
			if !sp.end.Before(cutoff) {
				kept = append(kept, sp)
			}
		}
		if len(kept) == 0 {
			delete(s.seen, k)
		} else {
			s.seen[k] = kept
		}
	}
}

func seenKey(locationKey, hazard string) string {
	return locationKey + "|" + hazard
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
