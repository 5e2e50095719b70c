// Package quota tracks per-provider daily call budgets.
//
// Counters are keyed by (UTC date, provider, endpoint). A new day starts a
// new key, so no reset job is needed. Increments are atomic at the store,
// but checking and consuming are two steps: concurrent callers may both pass
// a check, so the daily limit is a soft cap.
package quota

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"
)

const dateLayout = "2006-01-02"

// Key identifies one counter.
type Key struct {
	Date     string
	Provider string
	Endpoint string
}

// CounterStore persists call counters.
type CounterStore interface {
	// Increment atomically adds one to the counter and returns the new value.
	Increment(ctx context.Context, key Key) (int64, error)
	// Usage returns the sum of all endpoint counters for a provider on a date.
	Usage(ctx context.Context, date, provider string) (int64, error)
}

// Availability is a provider's quota state for today.
type Availability struct {
	Used      int  `json:"used"`
	Remaining int  `json:"remaining"`
	Exceeded  bool `json:"exceeded"`
}

// Tracker accounts provider calls against daily limits.
type Tracker struct {
	store  CounterStore
	clock  clockwork.Clock
	logger *slog.Logger
}

// NewTracker creates a Tracker. A nil clock uses real time.
func NewTracker(store CounterStore, clock clockwork.Clock, logger *slog.Logger) *Tracker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{store: store, clock: clock, logger: logger}
}

// Today returns the current UTC date key.
func (t *Tracker) Today() string {
	return t.clock.Now().UTC().Format(dateLayout)
}

// CheckAvailability reports today's usage for provider against dailyLimit.
// Exceeded means used >= dailyLimit.
func (t *Tracker) CheckAvailability(ctx context.Context, provider string, dailyLimit int) (Availability, error) {
	used64, err := t.store.Usage(ctx, t.Today(), provider)
	if err != nil {
		return Availability{}, fmt.Errorf("quota usage for %s: %w", provider, err)
	}
	used := int(used64)
	remaining := dailyLimit - used
	if remaining < 0 {
		remaining = 0
	}
	return Availability{
		Used:      used,
		Remaining: remaining,
		Exceeded:  used >= dailyLimit,
	}, nil
}

// Consume records one call to provider's endpoint and returns the endpoint's
// new count for today.
func (t *Tracker) Consume(ctx context.Context, provider, endpoint string) (int64, error) {
	key := Key{Date: t.Today(), Provider: provider, Endpoint: endpoint}
	n, err := t.store.Increment(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("consume quota for %s/%s: %w", provider, endpoint, err)
	}
	t.logger.Debug("quota consumed", "provider", provider, "endpoint", endpoint, "count", n, "date", key.Date)
	return n, nil
}
