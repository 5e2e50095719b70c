package weather

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// CacheKey snaps a coordinate onto a 0.01° grid (~1.1 km) and returns "lat:lng".
// Coordinates that round to the same cell share a key.
func CacheKey(lat, lng float64) string {
	return formatCoord(roundTo2(lat)) + ":" + formatCoord(roundTo2(lng))
}

func roundTo2(v float64) float64 {
	r := math.Round(v*100) / 100
	if r == 0 {
		// Collapse -0 so both sides of the equator share a cell.
		return 0
	}
	return r
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// TTLFor returns how long a payload with the given risk stays fresh.
// Riskier conditions expire sooner.
func TTLFor(risk RiskLevel) time.Duration {
	switch risk {
	case RiskExtreme:
		return 2 * time.Minute
	case RiskHigh:
		return 5 * time.Minute
	case RiskModerate:
		return 10 * time.Minute
	default:
		return 15 * time.Minute
	}
}

// CacheEntry is a cached provider payload. ExpiresAt is fixed when the entry
// is written and is never recomputed on read.
type CacheEntry struct {
	Key       string          `json:"key"`
	Payload   json.RawMessage `json:"payload"`
	Source    string          `json:"source"`
	Risk      RiskLevel       `json:"risk"`
	FetchedAt time.Time       `json:"fetchedAt"`
	ExpiresAt time.Time       `json:"expiresAt"`
}

// NewCacheEntry serializes payload and stamps it with the TTL for risk.
func NewCacheEntry(key string, payload any, source string, risk RiskLevel, now time.Time) (CacheEntry, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return CacheEntry{}, fmt.Errorf("marshal cache payload: %w", err)
	}
	now = now.UTC()
	return CacheEntry{
		Key:       key,
		Payload:   data,
		Source:    source,
		Risk:      risk,
		FetchedAt: now,
		ExpiresAt: now.Add(TTLFor(risk)),
	}, nil
}

// TTL is the lifetime the entry was written with.
func (e CacheEntry) TTL() time.Duration {
	return e.ExpiresAt.Sub(e.FetchedAt)
}

// Expired reports whether the entry is stale at now.
func (e CacheEntry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// Decode unmarshals the payload into v.
func (e CacheEntry) Decode(v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode cache entry %s: %w", e.Key, err)
	}
	return nil
}
