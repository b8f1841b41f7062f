// Package provider fetches upstream weather payloads and normalizes them
// into the canonical snapshot. Adapters treat upstream JSON as opaque and
// untrusted: every expected field may be absent, non-numeric, or out of
// range, and is replaced per-field with a literal default. Adapters return
// errors; substituting a whole synthetic snapshot is the caller's job.
package provider

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	"github.com/mbeverdam/weatherdash/internal/models"
)

// Adapter fetches weather for a location and normalizes it into a snapshot.
// Implementations share the normalize-to-snapshot contract; callers never
// special-case providers.
type Adapter interface {
	Name() string
	Fetch(ctx context.Context, loc models.Location) (models.WeatherSnapshot, error)
}

var (
	ErrNetworkUnavailable = errors.New("network unavailable")
	ErrUpstreamMalformed  = errors.New("upstream response malformed")
	ErrTimeout            = errors.New("request timed out")
)

// Per-field literal defaults, substituted whenever a field is missing,
// non-numeric, or outside its sane range. Chosen to be plausible rather
// than sentinel-like so rendering never looks broken.
const (
	DefaultTemp     = 12.0
	DefaultHumidity = 60
	DefaultWind     = 3.0

	minTemp = -60.0
	maxTemp = 60.0
	maxWind = 120.0
)

// newBreaker returns the circuit breaker shared configuration for adapters.
func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
	})
}

// classifyErr folds a transport or breaker error into the package sentinels.
func classifyErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return ErrTimeout
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return ErrNetworkUnavailable
	default:
		return ErrNetworkUnavailable
	}
}

// floatField parses s, clamping to [min, max]; def on failure or out of range.
func floatField(s string, def, min, max float64) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < min || v > max {
		return def
	}
	return v
}

// numField validates an already-parsed number the same way floatField does.
func numField(v, def, min, max float64) float64 {
	if v < min || v > max {
		return def
	}
	return v
}

// intField parses s as an int within [min, max]; def otherwise.
func intField(s string, def, min, max int) int {
	v, err := strconv.Atoi(s)
	if err != nil || v < min || v > max {
		return def
	}
	return v
}

// padDaily extends days to exactly models.DailyCount points, continuing the
// last known day with a mild cooling trend, and truncates any excess.
func padDaily(days []models.DailyPoint, start time.Time) []models.DailyPoint {
	if len(days) > models.DailyCount {
		days = days[:models.DailyCount]
	}
	for len(days) < models.DailyCount {
		prev := models.DailyPoint{
			Time:      startOfDay(start).AddDate(0, 0, len(days)-1),
			MinTemp:   DefaultTemp - 5,
			MaxTemp:   DefaultTemp + 5,
			Condition: models.Condition{Code: models.CondPartlyCloudy, Description: "Partly cloudy"},
		}
		if len(days) > 0 {
			prev = days[len(days)-1]
		}
		days = append(days, models.DailyPoint{
			Time:      prev.Time.AddDate(0, 0, 1),
			MinTemp:   prev.MinTemp - 0.5,
			MaxTemp:   prev.MaxTemp - 0.5,
			Condition: prev.Condition,
		})
	}
	return days
}

// padHourly extends points to exactly models.HourlyCount, carrying the last
// known temperature forward hour by hour, and truncates any excess.
func padHourly(points []models.HourlyPoint, start time.Time) []models.HourlyPoint {
	if len(points) > models.HourlyCount {
		points = points[:models.HourlyCount]
	}
	for len(points) < models.HourlyCount {
		prev := models.HourlyPoint{
			Time:        start.Truncate(time.Hour).Add(-time.Hour),
			Temperature: DefaultTemp,
			Condition:   models.Condition{Code: models.CondPartlyCloudy, Description: "Partly cloudy"},
		}
		if len(points) > 0 {
			prev = points[len(points)-1]
		}
		next := prev
		next.Time = prev.Time.Add(time.Hour)
		points = append(points, next)
	}
	return points
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
