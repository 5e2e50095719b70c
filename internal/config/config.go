package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/i474232898/road-weather/internal/weather"
)

// Provider names known to the service, in default registration order.
const (
	ProviderTomorrow    = "tomorrow"
	ProviderOpenWeather = "openweather"
	ProviderWeatherAPI  = "weatherapi"
	ProviderOpenMeteo   = "openmeteo"
)

// Backends for quota counters and the weather cache.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// ProviderSettings configures one upstream provider.
type ProviderSettings struct {
	Name       string
	APIKey     string
	DailyLimit int
	Priority   int
	Alerts     bool
	// Enabled is false for keyed providers without an API key.
	Enabled bool
}

// WatchCity is a watched place that still needs geocoding.
type WatchCity struct {
	City    string
	Country string
}

// WatchPoint is a watched coordinate.
type WatchPoint struct {
	Lat float64
	Lng float64
}

type AppConfig struct {
	Port            string
	LogLevel        string
	LogFormat       string
	HTTPTimeout     time.Duration // per outbound HTTP request
	CallTimeout     time.Duration // per provider call made by the factory
	ShutdownTimeout time.Duration

	// Providers in registration order.
	Providers       []ProviderSettings
	Strategies      map[weather.Strategy][]string
	DefaultStrategy weather.Strategy
	DefaultProvider string

	GeocoderAPIKey string

	QuotaBackend    string
	CacheBackend    string
	CacheMaxEntries int
	RedisURL        string
	DatabaseURL     string

	KafkaBrokers     []string
	KafkaEventsTopic string

	// Watch job; disabled when both lists are empty.
	WatchPoints   []WatchPoint
	WatchCities   []WatchCity
	WatchInterval time.Duration
}

var defaultProviders = []ProviderSettings{
	{Name: ProviderTomorrow, DailyLimit: 500, Priority: 1, Alerts: true},
	{Name: ProviderOpenWeather, DailyLimit: 1000, Priority: 2, Alerts: true},
	{Name: ProviderWeatherAPI, DailyLimit: 1000, Priority: 3},
	{Name: ProviderOpenMeteo, DailyLimit: 10000, Priority: 4},
}

// Load reads configuration from environment with sensible defaults. A .env
// file in the working directory is loaded first when present.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("could not load .env file", "error", err)
	}

	cfg := &AppConfig{
		Port:             getenvDefault("PORT", "8080"),
		LogLevel:         getenvDefault("LOG_LEVEL", "info"),
		LogFormat:        getenvDefault("LOG_FORMAT", "json"),
		GeocoderAPIKey:   os.Getenv("GEOCODER_API_KEY"),
		QuotaBackend:     strings.ToLower(getenvDefault("QUOTA_BACKEND", BackendMemory)),
		CacheBackend:     strings.ToLower(getenvDefault("CACHE_BACKEND", BackendMemory)),
		CacheMaxEntries:  getenvInt("CACHE_MAX_ENTRIES", 10000),
		RedisURL:         getenvDefault("REDIS_URL", "redis://localhost:6379/0"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		KafkaBrokers:     splitList(os.Getenv("KAFKA_BROKERS"), ","),
		KafkaEventsTopic: getenvDefault("KAFKA_EVENTS_TOPIC", "road-weather-events"),
		DefaultProvider:  strings.ToLower(strings.TrimSpace(os.Getenv("DEFAULT_PROVIDER"))),
	}

	var err error
	if cfg.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.CallTimeout, err = getenvDuration("PROVIDER_CALL_TIMEOUT", 15*time.Second); err != nil {
		return nil, err
	}
	if cfg.ShutdownTimeout, err = getenvDuration("SHUTDOWN_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.WatchInterval, err = getenvDuration("WATCH_INTERVAL", 15*time.Minute); err != nil {
		return nil, err
	}

	if cfg.Providers, err = loadProviders(); err != nil {
		return nil, err
	}
	if cfg.DefaultProvider == "" {
		if enabled := cfg.EnabledProviders(); len(enabled) > 0 {
			cfg.DefaultProvider = enabled[0].Name
		}
	}

	if cfg.DefaultStrategy, err = weather.ParseStrategy(os.Getenv("DEFAULT_STRATEGY")); err != nil {
		return nil, fmt.Errorf("invalid DEFAULT_STRATEGY: %w", err)
	}
	cfg.Strategies = map[weather.Strategy][]string{}
	for st, env := range map[weather.Strategy]string{
		weather.StrategyCostOptimized: "STRATEGY_COST_OPTIMIZED",
		weather.StrategyPerformance:   "STRATEGY_PERFORMANCE",
		weather.StrategyReliability:   "STRATEGY_RELIABILITY",
	} {
		if names := splitList(os.Getenv(env), ","); len(names) > 0 {
			cfg.Strategies[st] = names
		}
	}

	if cfg.WatchPoints, err = parseWatchPoints(os.Getenv("WATCH_LOCATIONS")); err != nil {
		return nil, err
	}
	if cfg.WatchCities, err = parseWatchCities(os.Getenv("WATCH_CITIES")); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) validate() error {
	switch c.QuotaBackend {
	case BackendMemory, BackendRedis, BackendPostgres:
	default:
		return fmt.Errorf("invalid QUOTA_BACKEND %q", c.QuotaBackend)
	}
	switch c.CacheBackend {
	case BackendMemory, BackendRedis:
	default:
		return fmt.Errorf("invalid CACHE_BACKEND %q", c.CacheBackend)
	}
	if c.QuotaBackend == BackendPostgres && c.DatabaseURL == "" {
		return errors.New("QUOTA_BACKEND is postgres but DATABASE_URL is not set")
	}
	if len(c.WatchCities) > 0 && c.GeocoderAPIKey == "" {
		return errors.New("WATCH_CITIES is set but GEOCODER_API_KEY is not")
	}
	enabled := c.EnabledProviders()
	if len(enabled) == 0 {
		return errors.New("no weather provider enabled")
	}
	if !slices.ContainsFunc(enabled, func(p ProviderSettings) bool { return p.Name == c.DefaultProvider }) {
		return fmt.Errorf("DEFAULT_PROVIDER %q is not an enabled provider", c.DefaultProvider)
	}
	return nil
}

// EnabledProviders returns the providers that can be registered.
func (c *AppConfig) EnabledProviders() []ProviderSettings {
	var out []ProviderSettings
	for _, p := range c.Providers {
		if p.Enabled {
			out = append(out, p)
		}
	}
	return out
}

// loadProviders applies per-provider env overrides and PROVIDER_ORDER.
func loadProviders() ([]ProviderSettings, error) {
	byName := make(map[string]ProviderSettings, len(defaultProviders))
	var order []string
	for _, d := range defaultProviders {
		p := d
		prefix := strings.ToUpper(p.Name)
		p.DailyLimit = getenvInt(prefix+"_DAILY_LIMIT", p.DailyLimit)
		p.Priority = getenvInt(prefix+"_PRIORITY", p.Priority)
		if p.Name == ProviderOpenMeteo {
			p.Enabled = getenvDefault("OPENMETEO_ENABLED", "true") == "true"
		} else {
			p.APIKey = os.Getenv(prefix + "_API_KEY")
			p.Enabled = p.APIKey != ""
		}
		byName[p.Name] = p
		order = append(order, p.Name)
	}

	if custom := splitList(os.Getenv("PROVIDER_ORDER"), ","); len(custom) > 0 {
		seen := make(map[string]bool, len(custom))
		for _, name := range custom {
			if _, ok := byName[name]; !ok {
				return nil, fmt.Errorf("invalid PROVIDER_ORDER: unknown provider %q", name)
			}
			if seen[name] {
				return nil, fmt.Errorf("invalid PROVIDER_ORDER: provider %q listed twice", name)
			}
			seen[name] = true
		}
		for _, name := range order {
			if !seen[name] {
				custom = append(custom, name)
			}
		}
		order = custom
	}

	out := make([]ProviderSettings, 0, len(order))
	for _, name := range order {
		out = append(out, byName[name])
	}
	return out, nil
}

// parseWatchPoints parses "lat,lng;lat,lng".
func parseWatchPoints(s string) ([]WatchPoint, error) {
	var points []WatchPoint
	for _, pair := range splitList(s, ";") {
		parts := strings.Split(pair, ",")
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid WATCH_LOCATIONS entry %q", pair)
		}
		lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		if err != nil || lat < -90 || lat > 90 {
			return nil, fmt.Errorf("invalid WATCH_LOCATIONS latitude in %q", pair)
		}
		lng, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil || lng < -180 || lng > 180 {
			return nil, fmt.Errorf("invalid WATCH_LOCATIONS longitude in %q", pair)
		}
		points = append(points, WatchPoint{Lat: lat, Lng: lng})
	}
	return points, nil
}

// parseWatchCities parses "City:CC,City:CC". The country code is optional.
func parseWatchCities(s string) ([]WatchCity, error) {
	var cities []WatchCity
	for _, item := range splitList(s, ",") {
		city, country, _ := strings.Cut(item, ":")
		city = strings.TrimSpace(city)
		if city == "" {
			return nil, fmt.Errorf("invalid WATCH_CITIES entry %q", item)
		}
		cities = append(cities, WatchCity{City: city, Country: strings.TrimSpace(country)})
	}
	return cities, nil
}

func splitList(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return d, nil
}
