package httpapi

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/road-weather/internal/geocode"
	"github.com/i474232898/road-weather/internal/weather"
)

const defaultRadiusKm = 25

var validate = validator.New()

// WeatherService is what the handlers need from weather.Service.
type WeatherService interface {
	Timelines(ctx context.Context, lat, lng float64, topts weather.TimelineOptions, opts weather.SelectOptions) (weather.TimelinesResult, error)
	Events(ctx context.Context, lat, lng, radiusKm float64, opts weather.SelectOptions) (weather.EventsResult, error)
	AnalyzeRoute(ctx context.Context, points []weather.RoutePoint, mode weather.RouteMode, opts weather.SelectOptions) (weather.RouteResult, error)
	ProvidersStatus(ctx context.Context) ([]weather.ProviderStatus, int)
}

// RegisterRoutes wires the HTTP handlers into the Fiber app. A nil resolver
// disables city lookups.
func RegisterRoutes(app *fiber.App, service WeatherService, resolver geocode.Resolver) {
	v1 := app.Group("/api/v1")

	v1.Get("/weather/timelines", func(c *fiber.Ctx) error {
		var q timelinesQuery
		if err := q.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		lat, lng, err := q.Location.resolve(c.UserContext(), resolver)
		if err != nil {
			return err
		}

		res, err := service.Timelines(c.UserContext(), lat, lng, weather.TimelineOptions{Hours: q.Hours}, q.Select.options())
		if err != nil {
			return serviceError(err)
		}
		return c.JSON(res)
	})

	v1.Get("/weather/events", func(c *fiber.Ctx) error {
		var q eventsQuery
		if err := q.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		lat, lng, err := q.Location.resolve(c.UserContext(), resolver)
		if err != nil {
			return err
		}

		res, err := service.Events(c.UserContext(), lat, lng, q.RadiusKm, q.Select.options())
		if err != nil {
			return serviceError(err)
		}
		return c.JSON(res)
	})

	v1.Post("/routes/analyze", func(c *fiber.Ctx) error {
		var req routeRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		mode, err := weather.ParseRouteMode(req.Mode)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		opts, err := selectQuery{Strategy: req.Strategy, Provider: req.PreferredProvider}.parse()
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		res, err := service.AnalyzeRoute(c.UserContext(), req.Points, mode, opts)
		if err != nil {
			return serviceError(err)
		}
		return c.JSON(res)
	})

	v1.Get("/providers/status", func(c *fiber.Ctx) error {
		statuses, total := service.ProvidersStatus(c.UserContext())
		return c.JSON(fiber.Map{
			"providers":           statuses,
			"totalRemainingCalls": total,
		})
	})
}

// ErrorHandler renders every error as {"error": true, "message": ...}.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	msg := "internal server error"
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		msg = fe.Message
	}
	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": msg,
	})
}

// serviceError maps weather errors to HTTP errors. Provider details stay in
// the logs.
func serviceError(err error) error {
	switch {
	case errors.Is(err, weather.ErrInvalidRoute):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case weather.IsUnavailable(err):
		return fiber.NewError(fiber.StatusServiceUnavailable, "weather data unavailable, try again")
	default:
		return err
	}
}

// locationQuery identifies a location by coordinates or by city.
type locationQuery struct {
	Lat     *float64 `validate:"required_without=City,omitempty,gte=-90,lte=90"`
	Lng     *float64 `validate:"required_with=Lat,omitempty,gte=-180,lte=180"`
	City    string
	Country string
}

func (l *locationQuery) bind(c *fiber.Ctx) error {
	var err error
	if l.Lat, err = optionalFloat(c, "lat"); err != nil {
		return err
	}
	if l.Lng, err = optionalFloat(c, "lng"); err != nil {
		return err
	}
	l.City = c.Query("city")
	l.Country = c.Query("country")
	return nil
}

func (l locationQuery) resolve(ctx context.Context, resolver geocode.Resolver) (float64, float64, error) {
	if l.Lat != nil && l.Lng != nil {
		return *l.Lat, *l.Lng, nil
	}
	if resolver == nil {
		return 0, 0, fiber.NewError(fiber.StatusBadRequest, "lat and lng are required")
	}
	place, err := resolver.Resolve(ctx, l.City, l.Country)
	if err != nil {
		if errors.Is(err, geocode.ErrNotFound) {
			return 0, 0, fiber.NewError(fiber.StatusNotFound, "location not found")
		}
		return 0, 0, fiber.NewError(fiber.StatusBadGateway, "geocoding failed")
	}
	return place.Lat, place.Lng, nil
}

// selectQuery holds the provider selection parameters.
type selectQuery struct {
	Strategy string
	Provider string
}

func (s selectQuery) parse() (weather.SelectOptions, error) {
	st, err := weather.ParseStrategy(s.Strategy)
	if err != nil {
		return weather.SelectOptions{}, err
	}
	return weather.SelectOptions{Strategy: st, Preferred: s.Provider}, nil
}

func (s selectQuery) options() weather.SelectOptions {
	opts, _ := s.parse()
	return opts
}

// timelinesQuery holds query parameters for the timelines endpoint.
type timelinesQuery struct {
	Location locationQuery
	Hours    int `validate:"gte=0,lte=120"`
	Select   selectQuery
}

func (q *timelinesQuery) bind(c *fiber.Ctx) error {
	if err := q.Location.bind(c); err != nil {
		return err
	}
	hours, err := optionalInt(c, "hours")
	if err != nil {
		return err
	}
	q.Hours = hours
	q.Select = selectQuery{Strategy: c.Query("strategy"), Provider: c.Query("provider")}
	if _, err := q.Select.parse(); err != nil {
		return err
	}
	return validate.Struct(q)
}

// eventsQuery holds query parameters for the events endpoint.
type eventsQuery struct {
	Location locationQuery
	RadiusKm float64 `validate:"gt=0,lte=500"`
	Select   selectQuery
}

func (q *eventsQuery) bind(c *fiber.Ctx) error {
	if err := q.Location.bind(c); err != nil {
		return err
	}
	radius, err := optionalFloat(c, "radiusKm")
	if err != nil {
		return err
	}
	q.RadiusKm = defaultRadiusKm
	if radius != nil {
		q.RadiusKm = *radius
	}
	q.Select = selectQuery{Strategy: c.Query("strategy"), Provider: c.Query("provider")}
	if _, err := q.Select.parse(); err != nil {
		return err
	}
	return validate.Struct(q)
}

// routeRequest is the body of POST /routes/analyze.
type routeRequest struct {
	Points            []weather.RoutePoint `json:"points" validate:"required,min=1,max=1000,dive"`
	Mode              string               `json:"mode"`
	Strategy          string               `json:"strategy"`
	PreferredProvider string               `json:"preferredProvider"`
}

func optionalFloat(c *fiber.Ctx, key string) (*float64, error) {
	s := c.Query(key)
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %q", key, s)
	}
	return &v, nil
}

func optionalInt(c *fiber.Ctx, key string) (int, error) {
	s := c.Query(key)
	if s == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return v, nil
}
