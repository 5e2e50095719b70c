package weather

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoProviderAvailable is returned when no registered provider can take a call.
	ErrNoProviderAvailable = errors.New("no weather provider available")

	// ErrRouteAnalysisFailed is returned when hybrid analysis collected no segments.
	ErrRouteAnalysisFailed = errors.New("failed to analyze route with any provider")

	// ErrInvalidRoute is returned for empty routes or decreasing km markers.
	ErrInvalidRoute = errors.New("invalid route")

	// ErrCacheMiss is returned by cache stores when a key is absent or expired.
	ErrCacheMiss = errors.New("cache miss")
)

// QuotaExceededError reports that every eligible provider is out of quota.
// It matches ErrNoProviderAvailable with errors.Is.
type QuotaExceededError struct {
	Providers []string
}

func (e *QuotaExceededError) Error() string {
	if len(e.Providers) == 0 {
		return "quota exceeded: no providers registered"
	}
	return "quota exceeded for providers: " + strings.Join(e.Providers, ", ")
}

func (e *QuotaExceededError) Is(target error) bool {
	return target == ErrNoProviderAvailable
}

// ProviderRequestError is a single provider failure (network, HTTP status,
// decoding or an exhausted quota detected at call time).
type ProviderRequestError struct {
	Provider   string
	Endpoint   string
	StatusCode int
	Err        error
}

func (e *ProviderRequestError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("provider %s %s: status %d: %v", e.Provider, e.Endpoint, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("provider %s %s: %v", e.Provider, e.Endpoint, e.Err)
}

func (e *ProviderRequestError) Unwrap() error {
	return e.Err
}

// AllProvidersFailedError is returned when a fallback chain is exhausted.
// It unwraps to the last provider error.
type AllProvidersFailedError struct {
	Tried []string
	Last  error
}

func (e *AllProvidersFailedError) Error() string {
	return fmt.Sprintf("all providers failed (%s): %v", strings.Join(e.Tried, ", "), e.Last)
}

func (e *AllProvidersFailedError) Unwrap() error {
	return e.Last
}

// IsUnavailable reports whether err means no provider could serve a request.
func IsUnavailable(err error) bool {
	var failed *AllProvidersFailedError
	return errors.Is(err, ErrNoProviderAvailable) ||
		errors.Is(err, ErrRouteAnalysisFailed) ||
		errors.As(err, &failed)
}
