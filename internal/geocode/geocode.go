// Package geocode turns place names into coordinates for API queries and
// watched locations.
package geocode

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/kelvins/geocoder"
)

// ErrNotFound is returned when a place name resolves to no coordinates.
var ErrNotFound = errors.New("location not found")

// Place is a resolved location.
type Place struct {
	City    string  `json:"city"`
	Country string  `json:"country"`
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
}

// Resolver resolves a city and optional country code to coordinates.
type Resolver interface {
	Resolve(ctx context.Context, city, country string) (Place, error)
}

// lookupFunc matches geocoder.Geocoding.
type lookupFunc func(geocoder.Address) (geocoder.Location, error)

// GoogleResolver resolves places through the Google Geocoding API.
type GoogleResolver struct {
	lookup lookupFunc
}

// NewGoogleResolver sets the package-level API key used by the geocoder library.
func NewGoogleResolver(apiKey string) *GoogleResolver {
	geocoder.ApiKey = apiKey
	return &GoogleResolver{lookup: geocoder.Geocoding}
}

func (r *GoogleResolver) Resolve(ctx context.Context, city, country string) (Place, error) {
	if err := ctx.Err(); err != nil {
		return Place{}, err
	}
	if strings.TrimSpace(city) == "" {
		return Place{}, fmt.Errorf("%w: empty city", ErrNotFound)
	}

	loc, err := r.lookup(geocoder.Address{City: city, Country: country})
	if err != nil {
		return Place{}, fmt.Errorf("geocode %s,%s: %w", city, country, err)
	}
	if loc.Latitude == 0 && loc.Longitude == 0 {
		return Place{}, fmt.Errorf("%w: %s,%s", ErrNotFound, city, country)
	}
	return Place{City: city, Country: country, Lat: loc.Latitude, Lng: loc.Longitude}, nil
}

// CachedResolver memoizes successful lookups. Place names do not move, so
// entries never expire.
type CachedResolver struct {
	inner Resolver

	mu      sync.RWMutex
	entries map[string]Place
}

func NewCachedResolver(inner Resolver) *CachedResolver {
	return &CachedResolver{inner: inner, entries: make(map[string]Place)}
}

func (c *CachedResolver) Resolve(ctx context.Context, city, country string) (Place, error) {
	key := strings.ToLower(city) + "|" + strings.ToLower(country)

	c.mu.RLock()
	p, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		return p, nil
	}

	p, err := c.inner.Resolve(ctx, city, country)
	if err != nil {
		return Place{}, err
	}

	c.mu.Lock()
	c.entries[key] = p
	c.mu.Unlock()
	return p, nil
}
