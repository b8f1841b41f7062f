package dashboard

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mbeverdam/weatherdash/internal/models"
	"github.com/mbeverdam/weatherdash/internal/radar"
	"github.com/mbeverdam/weatherdash/internal/store"
)

var testLocations = []models.Location{
	{ID: "amsterdam", Name: "Amsterdam", Lat: 52.37, Lon: 4.89},
	{ID: "rotterdam", Name: "Rotterdam", Lat: 51.92, Lon: 4.48},
}

// mockAdapter counts fetches and can block or fail on demand.
type mockAdapter struct {
	mu    sync.Mutex
	calls int
	err   error
	block chan struct{}
}

func (m *mockAdapter) Name() string { return "mock" }

func (m *mockAdapter) Fetch(ctx context.Context, loc models.Location) (models.WeatherSnapshot, error) {
	m.mu.Lock()
	m.calls++
	block := m.block
	err := m.err
	m.mu.Unlock()
	if block != nil {
		<-block
	}
	if err != nil {
		return models.WeatherSnapshot{}, err
	}
	return liveSnapshot(), nil
}

func (m *mockAdapter) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// mockRadar counts forecasts and can fail on demand.
type mockRadar struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (m *mockRadar) Forecast(ctx context.Context, loc models.Location) (radar.Forecast, error) {
	m.mu.Lock()
	m.calls++
	err := m.err
	m.mu.Unlock()
	if err != nil {
		return radar.Forecast{}, err
	}
	return radar.Forecast{Points: []radar.Point{{Time: time.Now()}}}, nil
}

func liveSnapshot() models.WeatherSnapshot {
	return models.WeatherSnapshot{
		Current: models.CurrentConditions{
			Temperature: 18.5,
			FeelsLike:   17.0,
			Humidity:    62,
			WindSpeed:   4.2,
			Condition:   models.Condition{Code: models.CondPartlyCloudy, Description: "Partly cloudy"},
		},
		TimezoneID: "Europe/Amsterdam",
	}
}

func newTestStore(t *testing.T, opts ...store.Option) *store.Store {
	t.Helper()
	primary, err := store.NewFileMedium(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileMedium() error = %v", err)
	}
	return store.New(primary, nil, zap.NewNop(), opts...)
}

// TestInit_FreshCacheSkipsNetwork verifies a fresh persisted entry is served
// on cold start without a single upstream call.
func TestInit_FreshCacheSkipsNetwork(t *testing.T) {
	st := newTestStore(t)
	if err := st.Save(liveSnapshot(), testLocations[0]); err != nil {
		t.Fatalf("seed save failed: %v", err)
	}

	adapter := &mockAdapter{}
	rad := &mockRadar{}
	d, err := New(st, adapter, rad, testLocations, zap.NewNop())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	view := d.Init(context.Background())
	if !view.Cached {
		t.Error("view.Cached = false, want true")
	}
	if adapter.callCount() != 0 {
		t.Errorf("adapter calls = %d, want 0", adapter.callCount())
	}
	if rad.calls != 0 {
		t.Errorf("radar calls = %d, want 0", rad.calls)
	}
	if !view.Radar.Synthetic {
		t.Error("cached view should carry the synthetic radar series")
	}
	if view.Weather.Current.Humidity != 62 {
		t.Errorf("humidity = %d, want the cached 62", view.Weather.Current.Humidity)
	}
}

// TestInit_StaleCacheFetches verifies a stale entry forces a refresh and the
// live result supersedes it in the store.
func TestInit_StaleCacheFetches(t *testing.T) {
	primary, err := store.NewFileMedium(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileMedium() error = %v", err)
	}
	past := time.Now().Add(-time.Hour)
	seeder := store.New(primary, nil, zap.NewNop(),
		store.WithClock(func() time.Time { return past }))
	if err := seeder.Save(liveSnapshot(), testLocations[0]); err != nil {
		t.Fatalf("seed save failed: %v", err)
	}
	// Same medium, real clock: the seeded entry is an hour stale.
	st := store.New(primary, nil, zap.NewNop())

	adapter := &mockAdapter{}
	d, err := New(st, adapter, nil, testLocations, zap.NewNop())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	view := d.Init(context.Background())
	if view.Cached {
		t.Error("view.Cached = true, want false after refresh")
	}
	if adapter.callCount() != 1 {
		t.Errorf("adapter calls = %d, want 1", adapter.callCount())
	}
	entry, ok := st.Load()
	if !ok {
		t.Fatal("refresh did not persist the fetched snapshot")
	}
	if entry.Location.ID != "amsterdam" {
		t.Errorf("persisted location = %q, want amsterdam", entry.Location.ID)
	}
}

// TestInit_RunsOnce verifies the cold-start decision is evaluated exactly
// once: a second Init returns the existing view without refetching.
func TestInit_RunsOnce(t *testing.T) {
	adapter := &mockAdapter{}
	d, err := New(newTestStore(t), adapter, nil, testLocations, zap.NewNop())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	d.Init(context.Background())
	d.Init(context.Background())
	if adapter.callCount() != 1 {
		t.Errorf("adapter calls = %d, want 1", adapter.callCount())
	}
}

// TestRefresh_BypassesFreshness verifies the user-triggered path refetches
// even when the persisted entry is well inside its freshness window.
func TestRefresh_BypassesFreshness(t *testing.T) {
	st := newTestStore(t)
	if err := st.Save(liveSnapshot(), testLocations[0]); err != nil {
		t.Fatalf("seed save failed: %v", err)
	}

	adapter := &mockAdapter{}
	d, err := New(st, adapter, nil, testLocations, zap.NewNop())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	view := d.Refresh(context.Background())
	if adapter.callCount() != 1 {
		t.Errorf("adapter calls = %d, want 1", adapter.callCount())
	}
	if view.Cached {
		t.Error("refreshed view marked cached")
	}
}

// TestRefresh_AdapterFailureYieldsSynthetic verifies an adapter error
// collapses into a synthetic snapshot that is not persisted.
func TestRefresh_AdapterFailureYieldsSynthetic(t *testing.T) {
	st := newTestStore(t)
	adapter := &mockAdapter{err: errors.New("upstream down")}
	d, err := New(st, adapter, nil, testLocations, zap.NewNop())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	view := d.Refresh(context.Background())
	if !view.Weather.Synthetic {
		t.Error("view.Weather.Synthetic = false, want true")
	}
	if len(view.Weather.Hourly) != models.HourlyCount {
		t.Errorf("synthetic hourly points = %d, want %d", len(view.Weather.Hourly), models.HourlyCount)
	}
	if _, ok := st.Load(); ok {
		t.Error("synthetic snapshot was persisted")
	}
}

// TestRefresh_RadarFailureIsolated verifies a radar error never degrades the
// weather branch: the view carries live weather and the dry fallback series.
func TestRefresh_RadarFailureIsolated(t *testing.T) {
	adapter := &mockAdapter{}
	rad := &mockRadar{err: errors.New("feed down")}
	d, err := New(newTestStore(t), adapter, rad, testLocations, zap.NewNop())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	view := d.Refresh(context.Background())
	if view.Weather.Synthetic {
		t.Error("weather branch degraded by radar failure")
	}
	if !view.Radar.Synthetic {
		t.Error("radar fallback not synthetic")
	}
	if len(view.Radar.Points) != radar.PointCount {
		t.Errorf("radar fallback points = %d, want %d", len(view.Radar.Points), radar.PointCount)
	}
}

// TestRefresh_LoadTimeout verifies the loading guard: a hung fetch is cut off
// at the timeout, the synthetic view wins, and the late result is discarded
// without being saved.
func TestRefresh_LoadTimeout(t *testing.T) {
	st := newTestStore(t)
	block := make(chan struct{})
	adapter := &mockAdapter{block: block}
	d, err := New(st, adapter, nil, testLocations, zap.NewNop(),
		WithLoadTimeout(30*time.Millisecond))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	start := time.Now()
	view := d.Refresh(context.Background())
	elapsed := time.Since(start)

	if !view.Weather.Synthetic {
		t.Error("timed-out view is not synthetic")
	}
	if elapsed > time.Second {
		t.Errorf("refresh took %v, guard did not fire", elapsed)
	}

	// Release the hung fetch; its result must go nowhere.
	close(block)
	time.Sleep(20 * time.Millisecond)
	if _, ok := st.Load(); ok {
		t.Error("late pipeline result was persisted")
	}
	if got, _ := d.View(); !got.Weather.Synthetic {
		t.Error("late pipeline result replaced the rendered view")
	}
}

// TestSelectLocation verifies switching by id takes effect on the next
// refresh and unknown ids are rejected.
func TestSelectLocation(t *testing.T) {
	adapter := &mockAdapter{}
	d, err := New(newTestStore(t), adapter, nil, testLocations, zap.NewNop())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	if err := d.SelectLocation("nowhere"); err == nil {
		t.Error("expected error for unknown location id")
	}
	if d.Location().ID != "amsterdam" {
		t.Errorf("selection changed on rejected id: %q", d.Location().ID)
	}

	if err := d.SelectLocation("rotterdam"); err != nil {
		t.Fatalf("SelectLocation(rotterdam) error: %v", err)
	}
	view := d.Refresh(context.Background())
	if view.Location.ID != "rotterdam" {
		t.Errorf("view location = %q, want rotterdam", view.Location.ID)
	}
}

// TestNew_RequiresLocations verifies construction fails without locations.
func TestNew_RequiresLocations(t *testing.T) {
	if _, err := New(newTestStore(t), &mockAdapter{}, nil, nil, zap.NewNop()); err == nil {
		t.Fatal("expected error for empty location list")
	}
}
