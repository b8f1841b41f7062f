// Package gateway is the request-interception layer: it classifies every
// request into a resource class and applies that class's caching policy
// against named, versioned cache partitions. It knows nothing about the
// application store; to the dashboard it is simply "the network".
package gateway

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/mbeverdam/weatherdash/internal/models"
	"github.com/mbeverdam/weatherdash/internal/observability"
	"github.com/mbeverdam/weatherdash/internal/synthetic"
)

// DefaultWeatherTTL is the freshness window of the weather partition. It is
// configured independently from the application store's TTL; the two are not
// required to match.
const DefaultWeatherTTL = 30 * time.Minute

// maxBodyBytes caps how much of an upstream response body is read and cached.
const maxBodyBytes = 4 << 20

// Options configures a Gateway.
type Options struct {
	Store           PartitionStore
	Version         string // cache partition version, e.g. "v3"
	WeatherTTL      time.Duration
	Origin          string // base URL for relative request paths
	StartPage       string // path served as navigation fallback, default "/"
	DefaultLocation models.Location
	Client          *http.Client
	Logger          *zap.Logger
}

// Gateway applies per-class caching policies. Each intercepted request is
// classified once, dispatched to exactly one policy, and answered with
// exactly one response: live, cached, synthetic, or a fixed placeholder.
type Gateway struct {
	store      PartitionStore
	classifier *Classifier
	version    string
	weatherTTL time.Duration
	origin     *url.URL
	startPage  string
	defaultLoc models.Location
	client     *http.Client
	breaker    *gobreaker.CircuitBreaker
	coalescer  *fetchCoalescer
	logger     *zap.Logger
	now        func() time.Time
}

// New builds a Gateway. The classifier decides resource classes; Options
// supplies everything else.
func New(opts Options, classifier *Classifier) (*Gateway, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("gateway: partition store required")
	}
	if opts.Version == "" {
		return nil, fmt.Errorf("gateway: cache version required")
	}
	var origin *url.URL
	if opts.Origin != "" {
		parsed, err := url.Parse(opts.Origin)
		if err != nil {
			return nil, fmt.Errorf("gateway: parse origin: %w", err)
		}
		origin = parsed
	}
	weatherTTL := opts.WeatherTTL
	if weatherTTL <= 0 {
		weatherTTL = DefaultWeatherTTL
	}
	startPage := opts.StartPage
	if startPage == "" {
		startPage = "/"
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Gateway{
		store:      opts.Store,
		classifier: classifier,
		version:    opts.Version,
		weatherTTL: weatherTTL,
		origin:     origin,
		startPage:  startPage,
		defaultLoc: opts.DefaultLocation,
		client:     client,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "gateway-upstream",
			MaxRequests: 3,
			Interval:    time.Minute,
			Timeout:     2 * time.Minute,
		}),
		coalescer: newFetchCoalescer(),
		logger:    opts.Logger,
		now:       time.Now,
	}, nil
}

// Activate drops every partition whose version does not match the current
// build. Call once at startup before serving.
func (g *Gateway) Activate(ctx context.Context) error {
	return Activate(ctx, g.store, g.version, g.logger)
}

// ServeHTTP runs the per-request state machine:
// Classify -> Dispatch -> policy -> Respond.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	class := g.classifier.Classify(r)
	key := g.target(r).String()

	var rec Record
	var outcome string
	switch class {
	case ClassStaticAsset, ClassImage:
		rec, outcome = g.cacheFirst(r, class, key)
	case ClassWeatherAPI:
		rec, outcome = g.weatherPolicy(r, key)
	default:
		rec, outcome = g.networkFirst(r, key)
	}

	observability.GatewayRequestsTotal.WithLabelValues(class.String(), outcome).Inc()
	respond(w, rec, outcome)
}

// cacheFirst serves static assets and images: an exact cache match wins
// without touching the network; a miss is fetched and stored. These classes
// never fall back to synthetic content.
func (g *Gateway) cacheFirst(r *http.Request, class ResourceClass, key string) (Record, string) {
	partition := partitionName(class, g.version)

	if rec, ok := g.lookup(r, partition, key); ok {
		return rec, "cacheHit"
	}

	rec, err := g.fetch(r)
	if err != nil {
		g.logger.Warn("cache-first fetch failed", zap.String("key", key), zap.Error(err))
		return placeholder(), "placeholder"
	}
	g.put(r, partition, key, rec)
	return rec, "network"
}

// weatherPolicy implements the freshness-aware path for weather API calls.
// Fresh cache short-circuits the network entirely; an expired entry triggers
// a revalidation whose live result is preferred over the cached copy; a
// failed revalidation serves the stale entry regardless of age; and with no
// entry at all, a synthetic payload in the provider's shape keeps the calling
// normalizer from ever seeing a missing or error response.
func (g *Gateway) weatherPolicy(r *http.Request, key string) (Record, string) {
	partition := partitionName(ClassWeatherAPI, g.version)

	cached, haveCached := g.lookup(r, partition, key)
	if haveCached && g.now().Sub(cached.CapturedAt) < g.weatherTTL {
		return cached, "cacheHit"
	}

	rec, err := g.coalescer.GetOrDo(r.Context(), key, func() (Record, error) {
		return g.fetch(r)
	})
	if err == nil {
		rec.CapturedAt = g.now()
		g.put(r, partition, key, rec)
		return rec, "network"
	}

	if haveCached {
		g.logger.Info("serving stale weather response",
			zap.String("key", key),
			zap.Duration("age", g.now().Sub(cached.CapturedAt)),
			zap.Error(err))
		return cached, "staleServed"
	}

	observability.SyntheticFallbacksTotal.WithLabelValues("gateway").Inc()
	g.logger.Warn("no cached weather response, synthesizing payload",
		zap.String("key", key), zap.Error(err))
	return Record{
		Status:     http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       synthetic.Payload(g.locationFor(r), g.now()),
		CapturedAt: g.now(),
	}, "synthetic"
}

// networkFirst serves everything else: live when possible, the stored copy
// otherwise, and for page navigations the cached start page before giving up.
func (g *Gateway) networkFirst(r *http.Request, key string) (Record, string) {
	partition := partitionName(ClassOther, g.version)

	rec, err := g.fetch(r)
	if err == nil {
		g.put(r, partition, key, rec)
		return rec, "network"
	}

	if cached, ok := g.lookup(r, partition, key); ok {
		return cached, "staleServed"
	}
	if isNavigation(r) {
		startKey := g.resolve(g.startPage).String()
		if cached, ok := g.lookup(r, partition, startKey); ok {
			return cached, "staleServed"
		}
	}
	g.logger.Warn("network-first fetch failed with empty cache", zap.String("key", key), zap.Error(err))
	return placeholder(), "placeholder"
}

// fetch performs the upstream request through the circuit breaker. Transport
// errors and non-success statuses are both failures; policies decide what a
// failure means for their class.
func (g *Gateway) fetch(r *http.Request) (Record, error) {
	result, err := g.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(r.Context(), r.Method, g.target(r).String(), nil)
		if err != nil {
			return nil, err
		}
		for _, h := range []string{"Accept", "Accept-Language", "User-Agent"} {
			if v := r.Header.Get(h); v != "" {
				req.Header.Set(h, v)
			}
		}

		resp, err := g.client.Do(req)
		if err != nil {
			observability.UpstreamCallsTotal.WithLabelValues("gateway", "error").Inc()
			return nil, err
		}
		defer resp.Body.Close()

		observability.UpstreamCallsTotal.WithLabelValues("gateway", observability.StatusLabel(resp.StatusCode)).Inc()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("upstream status %d", resp.StatusCode)
		}
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return nil, fmt.Errorf("read upstream body: %w", err)
		}
		return Record{
			Status:     resp.StatusCode,
			Header:     resp.Header.Clone(),
			Body:       body,
			CapturedAt: g.now(),
		}, nil
	})
	if err != nil {
		return Record{}, err
	}
	rec, _ := result.(Record)
	return rec, nil
}

// lookup reads a partition entry, treating store errors as misses.
func (g *Gateway) lookup(r *http.Request, partition, key string) (Record, bool) {
	rec, ok, err := g.store.Get(r.Context(), partition, key)
	if err != nil {
		g.logger.Warn("partition read failed", zap.String("partition", partition), zap.Error(err))
		return Record{}, false
	}
	return rec, ok
}

// put stores a partition entry, logging and swallowing failures. Caching is
// best-effort and never fails a response.
func (g *Gateway) put(r *http.Request, partition, key string, rec Record) {
	if err := g.store.Put(r.Context(), partition, key, rec); err != nil {
		g.logger.Warn("partition write failed", zap.String("partition", partition), zap.Error(err))
	}
}

// target resolves the request to an absolute upstream URL.
func (g *Gateway) target(r *http.Request) *url.URL {
	if r.URL.IsAbs() {
		return r.URL
	}
	return g.resolve(r.URL.RequestURI())
}

func (g *Gateway) resolve(path string) *url.URL {
	ref, err := url.Parse(path)
	if err != nil || g.origin == nil {
		return &url.URL{Path: path}
	}
	return g.origin.ResolveReference(ref)
}

// locationFor extracts lat/lon query parameters for the synthetic payload,
// falling back to the configured default location.
func (g *Gateway) locationFor(r *http.Request) models.Location {
	loc := g.defaultLoc
	q := g.target(r).Query()
	if lat, err := strconv.ParseFloat(q.Get("lat"), 64); err == nil {
		loc.Lat = lat
	}
	if lon, err := strconv.ParseFloat(q.Get("lon"), 64); err == nil {
		loc.Lon = lon
	}
	return loc
}

// placeholder is the fixed 503 response for classes that never synthesize.
func placeholder() Record {
	return Record{
		Status: http.StatusServiceUnavailable,
		Header: http.Header{"Content-Type": []string{"text/plain; charset=utf-8"}},
		Body:   []byte("resource temporarily unavailable"),
	}
}

// respond replays a record to the client, tagging how it was produced.
func respond(w http.ResponseWriter, rec Record, outcome string) {
	for name, values := range rec.Header {
		for _, v := range values {
			w.Header().Add(name, v)
		}
	}
	w.Header().Set("X-Gateway-Cache", outcome)
	w.WriteHeader(rec.Status)
	_, _ = w.Write(rec.Body)
}
