// Package store owns the persisted weather snapshot and the decision of
// whether it is still usable. It writes every entry to a primary medium and
// duplicates it to a small secondary fallback, and reads back whichever is
// available and parseable.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mbeverdam/weatherdash/internal/models"
	"github.com/mbeverdam/weatherdash/internal/observability"
)

// StorageKey is the single fixed key the snapshot entry is stored under on
// both media. The cache is single-slot: a new entry supersedes the old one
// wholesale, regardless of location.
const StorageKey = "weather-cache"

// DefaultTTL is the application-level freshness window.
const DefaultTTL = 10 * time.Minute

// ErrStorageUnavailable reports that no medium accepted a write. Callers treat
// it as a degradation, not a failure: the app continues without a cross-session
// cache.
var ErrStorageUnavailable = errors.New("storage unavailable")

// Store persists one CacheEntry across restarts. Not safe for concurrent
// writers; the dashboard serializes access. Two concurrent processes race
// with last-write-wins, which is acceptable for re-derivable data.
type Store struct {
	primary   Medium
	secondary Medium
	ttl       time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithTTL overrides the freshness window.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) { s.ttl = ttl }
}

// New returns a Store writing to primary and duplicating to secondary.
// secondary may be nil to disable the fallback medium.
func New(primary, secondary Medium, logger *zap.Logger, opts ...Option) *Store {
	s := &Store{
		primary:   primary,
		secondary: secondary,
		ttl:       DefaultTTL,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TTL returns the configured freshness window.
func (s *Store) TTL() time.Duration { return s.ttl }

// IsFresh reports whether entry is usable without refetching at time now.
// Pure and total: a zero CapturedAt is never fresh, and age == ttl is stale.
func IsFresh(entry models.CacheEntry, now time.Time, ttl time.Duration) bool {
	if entry.CapturedAt.IsZero() {
		return false
	}
	return now.Sub(entry.CapturedAt) < ttl
}

// Fresh applies IsFresh with the store's TTL and clock.
func (s *Store) Fresh(entry models.CacheEntry) bool {
	return IsFresh(entry, s.now(), s.ttl)
}

// Load reads the persisted entry, primary medium first, secondary as backup.
// Any medium or parse failure is treated as nothing-found; Load never errors.
func (s *Store) Load() (models.CacheEntry, bool) {
	for _, m := range []Medium{s.primary, s.secondary} {
		if m == nil {
			continue
		}
		raw, ok, err := m.Read(StorageKey)
		if err != nil {
			s.logger.Warn("store read failed", zap.String("medium", m.Name()), zap.Error(err))
			continue
		}
		if !ok {
			continue
		}
		var entry models.CacheEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			observability.StoreLoadsTotal.WithLabelValues("corrupt").Inc()
			s.logger.Warn("store entry corrupt", zap.String("medium", m.Name()), zap.Error(err))
			continue
		}
		if entry.CapturedAt.IsZero() {
			observability.StoreLoadsTotal.WithLabelValues("corrupt").Inc()
			continue
		}
		if s.Fresh(entry) {
			observability.StoreLoadsTotal.WithLabelValues("fresh").Inc()
		} else {
			observability.StoreLoadsTotal.WithLabelValues("stale").Inc()
		}
		return entry, true
	}
	observability.StoreLoadsTotal.WithLabelValues("miss").Inc()
	return models.CacheEntry{}, false
}

// Save writes a new entry wrapping snapshot to both media, overwriting the
// previous one. Caching is best-effort: individual medium failures are logged
// and swallowed, and an error comes back only when every medium rejected the
// write. Save must never block the render path on storage problems.
func (s *Store) Save(snapshot models.WeatherSnapshot, loc models.Location) error {
	entry := models.CacheEntry{
		Data:       snapshot,
		CapturedAt: s.now(),
		Location:   loc,
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		observability.StoreSavesTotal.WithLabelValues("serialize", "error").Inc()
		return err
	}

	var lastErr error
	wrote := false
	for _, m := range []Medium{s.primary, s.secondary} {
		if m == nil {
			continue
		}
		if err := m.Write(StorageKey, raw); err != nil {
			observability.StoreSavesTotal.WithLabelValues(m.Name(), "error").Inc()
			s.logger.Warn("store write failed", zap.String("medium", m.Name()), zap.Error(err))
			lastErr = err
			continue
		}
		observability.StoreSavesTotal.WithLabelValues(m.Name(), "success").Inc()
		wrote = true
	}
	if !wrote {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, lastErr)
	}
	return nil
}
