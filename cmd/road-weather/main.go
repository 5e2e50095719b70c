package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	httpapi "github.com/i474232898/road-weather/internal/api/http"
	"github.com/i474232898/road-weather/internal/config"
	"github.com/i474232898/road-weather/internal/geocode"
	"github.com/i474232898/road-weather/internal/mq"
	"github.com/i474232898/road-weather/internal/observability"
	"github.com/i474232898/road-weather/internal/quota"
	"github.com/i474232898/road-weather/internal/scheduler"
	"github.com/i474232898/road-weather/internal/store"
	"github.com/i474232898/road-weather/internal/weather"
	"github.com/i474232898/road-weather/internal/weather/providers"
)

func main() {
	if err := run(); err != nil {
		slog.Error("road-weather stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(log)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var redisClient *redis.Client
	if cfg.QuotaBackend == config.BackendRedis || cfg.CacheBackend == config.BackendRedis {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse REDIS_URL: %w", err)
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
	}

	counters, closeCounters, err := newCounterStore(ctx, cfg, redisClient)
	if err != nil {
		return err
	}
	defer closeCounters()
	tracker := quota.NewTracker(counters, clock, log)

	// Shared HTTP client for outbound provider calls.
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	provs, err := newProviders(cfg, httpClient, tracker, log)
	if err != nil {
		return err
	}

	factory, err := weather.NewFactory(provs, weather.FactoryConfig{
		Strategies:      cfg.Strategies,
		DefaultStrategy: cfg.DefaultStrategy,
		DefaultProvider: cfg.DefaultProvider,
		CallTimeout:     cfg.CallTimeout,
	}, log, metrics)
	if err != nil {
		return fmt.Errorf("build provider factory: %w", err)
	}

	var cache weather.CacheStore
	if cfg.CacheBackend == config.BackendRedis {
		cache = store.NewRedisCache(redisClient, "weather")
	} else {
		cache = store.NewMemoryCache(cfg.CacheMaxEntries, clock)
	}

	service := weather.NewService(factory, cache, clock, log, metrics)

	var resolver geocode.Resolver
	if cfg.GeocoderAPIKey != "" {
		resolver = geocode.NewCachedResolver(geocode.NewGoogleResolver(cfg.GeocoderAPIKey))
	}

	var publisher weather.EventPublisher
	if len(cfg.KafkaBrokers) > 0 {
		pub := mq.NewPublisher(cfg.KafkaBrokers, cfg.KafkaEventsTopic, log)
		defer pub.Close()
		publisher = pub
	}

	// Watch job that derives and publishes hazard events.
	sched := scheduler.New(watchLocations(ctx, cfg, resolver, log), cfg.WatchInterval, service, publisher, log, metrics)
	if err := sched.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer sched.Stop()

	app := fiber.New(fiber.Config{
		AppName:               "road-weather",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          2 * cfg.CallTimeout,
		ErrorHandler:          httpapi.ErrorHandler,
	})

	// Global middleware
	app.Use(logger.New())
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":    "ok",
			"service":   "road-weather",
			"providers": len(provs),
		})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	httpapi.RegisterRoutes(app, service, resolver)

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", "port", cfg.Port, "providers", len(provs))
		errCh <- app.Listen(":" + cfg.Port)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error("error during shutdown", "error", err)
	}
	return nil
}

func newCounterStore(ctx context.Context, cfg *config.AppConfig, redisClient *redis.Client) (quota.CounterStore, func(), error) {
	switch cfg.QuotaBackend {
	case config.BackendRedis:
		return quota.NewRedisCounter(redisClient, "quota"), func() {}, nil
	case config.BackendPostgres:
		pool, err := quota.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := quota.RunMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return quota.NewPostgresCounter(pool), pool.Close, nil
	default:
		return quota.NewMemoryCounter(), func() {}, nil
	}
}

func newProviders(cfg *config.AppConfig, client *http.Client, tracker *quota.Tracker, log *slog.Logger) ([]weather.Provider, error) {
	var provs []weather.Provider
	for _, p := range cfg.EnabledProviders() {
		src, err := providers.NewSource(p.Name, client, p.APIKey)
		if err != nil {
			return nil, err
		}
		adapter, err := providers.NewAdapter(weather.ProviderConfig{
			Name:       p.Name,
			DailyLimit: p.DailyLimit,
			Priority:   p.Priority,
			Features:   weather.Features{Current: true, Forecast: true, Alerts: p.Alerts},
		}, src, tracker, log, providers.WithPointTimeout(cfg.HTTPTimeout))
		if err != nil {
			return nil, err
		}
		provs = append(provs, adapter)
	}
	return provs, nil
}

// watchLocations merges coordinate and city watch lists. Cities that fail
// to geocode are logged and skipped.
func watchLocations(ctx context.Context, cfg *config.AppConfig, resolver geocode.Resolver, log *slog.Logger) []scheduler.Location {
	var locs []scheduler.Location
	for _, p := range cfg.WatchPoints {
		locs = append(locs, scheduler.Location{Name: weather.CacheKey(p.Lat, p.Lng), Lat: p.Lat, Lng: p.Lng})
	}
	if resolver == nil {
		return locs
	}
	for _, c := range cfg.WatchCities {
		place, err := resolver.Resolve(ctx, c.City, c.Country)
		if err != nil {
			log.Warn("watch city skipped", "city", c.City, "country", c.Country, "error", err)
			continue
		}
		locs = append(locs, scheduler.Location{Name: c.City, Lat: place.Lat, Lng: place.Lng})
	}
	return locs
}
