// Package dashboard is the application controller: it decides between cached
// and fetched weather data, bounds perceived load latency, and is the only
// writer of the persisted snapshot. The presentation layer drives it through
// the explicit command methods; there are no ambient globals.
package dashboard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mbeverdam/weatherdash/internal/models"
	"github.com/mbeverdam/weatherdash/internal/observability"
	"github.com/mbeverdam/weatherdash/internal/provider"
	"github.com/mbeverdam/weatherdash/internal/radar"
	"github.com/mbeverdam/weatherdash/internal/store"
	"github.com/mbeverdam/weatherdash/internal/synthetic"
)

// DefaultLoadTimeout bounds how long a cold start may wait on the network
// before the synthetic path is forced.
const DefaultLoadTimeout = 5 * time.Second

// RadarClient is the radar branch of the fetch join.
type RadarClient interface {
	Forecast(ctx context.Context, loc models.Location) (radar.Forecast, error)
}

// View is what the presentation layer renders: always fully populated,
// whatever happened underneath.
type View struct {
	Weather   models.WeatherSnapshot `json:"weather"`
	Radar     radar.Forecast         `json:"radar"`
	Location  models.Location        `json:"location"`
	Cached    bool                   `json:"cached"`
	FetchedAt time.Time              `json:"fetchedAt"`
}

// Dashboard is constructed once at startup with injected dependencies.
// Methods are safe for concurrent use; command execution is serialized.
type Dashboard struct {
	store       *store.Store
	adapter     provider.Adapter
	radar       RadarClient
	logger      *zap.Logger
	now         func() time.Time
	loadTimeout time.Duration

	mu          sync.Mutex
	locations   []models.Location
	current     models.Location
	view        View
	initialized bool
}

// Option configures a Dashboard.
type Option func(*Dashboard)

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(d *Dashboard) { d.now = now }
}

// WithLoadTimeout overrides the loading-timeout guard.
func WithLoadTimeout(timeout time.Duration) Option {
	return func(d *Dashboard) { d.loadTimeout = timeout }
}

// New returns a Dashboard for the given locations; the first one is selected.
func New(st *store.Store, adapter provider.Adapter, radarClient RadarClient, locations []models.Location, logger *zap.Logger, opts ...Option) (*Dashboard, error) {
	if len(locations) == 0 {
		return nil, fmt.Errorf("dashboard: at least one location required")
	}
	d := &Dashboard{
		store:       st,
		adapter:     adapter,
		radar:       radarClient,
		logger:      logger,
		now:         time.Now,
		loadTimeout: DefaultLoadTimeout,
		locations:   locations,
		current:     locations[0],
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Init runs the cold-start refresh decision exactly once: load the persisted
// entry, render it directly when fresh, otherwise fetch, normalize and save.
// Subsequent calls return the current view without re-evaluating freshness.
func (d *Dashboard) Init(ctx context.Context) View {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.initialized {
		return d.view
	}

	if entry, ok := d.store.Load(); ok && d.store.Fresh(entry) {
		d.logger.Info("serving cached snapshot",
			zap.Time("capturedAt", entry.CapturedAt),
			zap.String("location", entry.Location.Name))
		d.view = View{
			Weather:   entry.Data,
			Radar:     radar.Synthetic(d.now()),
			Location:  entry.Location,
			Cached:    true,
			FetchedAt: entry.CapturedAt,
		}
		d.initialized = true
		return d.view
	}

	d.view = d.refresh(ctx)
	d.initialized = true
	return d.view
}

// Refresh always bypasses freshness and forces a new fetch. This is the
// user-triggered path; it never consults the cached entry's age.
func (d *Dashboard) Refresh(ctx context.Context) View {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.view = d.refresh(ctx)
	d.initialized = true
	return d.view
}

// RetryLoad is the retry affordance the presentation layer exposes after its
// own request failures. It behaves like Refresh.
func (d *Dashboard) RetryLoad(ctx context.Context) View {
	return d.Refresh(ctx)
}

// SelectLocation switches the active location by id. The view updates on the
// next Refresh; an unknown id is rejected.
func (d *Dashboard) SelectLocation(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, loc := range d.locations {
		if loc.ID == id {
			d.current = loc
			return nil
		}
	}
	return fmt.Errorf("unknown location %q", id)
}

// Location returns the currently selected location.
func (d *Dashboard) Location() models.Location {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current
}

// View returns the last rendered view and whether one exists yet.
func (d *Dashboard) View() (View, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.view, d.initialized
}

// refresh runs the fetch pipeline against the loading-timeout guard. The
// weather and radar branches fan out concurrently and join; each falls back
// to its own synthetic default, so neither can fail the other. Whichever of
// pipeline and timer resolves first wins; the loser's result is discarded
// without re-rendering. Callers hold d.mu.
func (d *Dashboard) refresh(ctx context.Context) View {
	loc := d.current
	done := make(chan View, 1)

	go func() {
		var wg sync.WaitGroup
		var snap models.WeatherSnapshot
		var rad radar.Forecast
		wg.Add(2)
		go func() {
			defer wg.Done()
			snap = d.fetchAndNormalize(ctx, loc)
		}()
		go func() {
			defer wg.Done()
			rad = d.fetchRadar(ctx, loc)
		}()
		wg.Wait()
		done <- View{
			Weather:   snap,
			Radar:     rad,
			Location:  loc,
			FetchedAt: d.now(),
		}
	}()

	timer := time.NewTimer(d.loadTimeout)
	defer timer.Stop()

	select {
	case view := <-done:
		if !view.Weather.Synthetic {
			if err := d.store.Save(view.Weather, loc); err != nil {
				// Best-effort: the app degrades to no cross-session cache.
				d.logger.Warn("snapshot save failed", zap.Error(err))
			}
		}
		return view
	case <-timer.C:
		observability.LoadTimeoutsTotal.Inc()
		observability.SyntheticFallbacksTotal.WithLabelValues("dashboard").Inc()
		d.logger.Warn("load timeout, serving synthetic snapshot",
			zap.Duration("timeout", d.loadTimeout),
			zap.String("location", loc.Name))
		now := d.now()
		return View{
			Weather:   synthetic.Snapshot(loc, now),
			Radar:     radar.Synthetic(now),
			Location:  loc,
			FetchedAt: now,
		}
	}
}

// fetchAndNormalize never fails: any adapter error collapses into a fully
// synthetic snapshot. This is the terminal case of the error taxonomy for
// the weather branch.
func (d *Dashboard) fetchAndNormalize(ctx context.Context, loc models.Location) models.WeatherSnapshot {
	snap, err := d.adapter.Fetch(ctx, loc)
	if err != nil {
		observability.SyntheticFallbacksTotal.WithLabelValues("dashboard").Inc()
		d.logger.Warn("weather fetch failed, substituting synthetic snapshot",
			zap.String("provider", d.adapter.Name()),
			zap.String("location", loc.Name),
			zap.Error(err))
		return synthetic.Snapshot(loc, d.now())
	}
	return snap
}

// fetchRadar mirrors fetchAndNormalize for the radar branch.
func (d *Dashboard) fetchRadar(ctx context.Context, loc models.Location) radar.Forecast {
	if d.radar == nil {
		return radar.Synthetic(d.now())
	}
	fc, err := d.radar.Forecast(ctx, loc)
	if err != nil {
		observability.SyntheticFallbacksTotal.WithLabelValues("radar").Inc()
		d.logger.Warn("radar fetch failed, substituting dry series",
			zap.String("location", loc.Name),
			zap.Error(err))
		return radar.Synthetic(d.now())
	}
	return fc
}
