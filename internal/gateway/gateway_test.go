package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mbeverdam/weatherdash/internal/models"
)

// fakeUpstream is the origin the gateway proxies to. It counts calls and can
// be switched into failure mode mid-test.
type fakeUpstream struct {
	mu    sync.Mutex
	fail  bool
	calls int
	body  string
}

func (u *fakeUpstream) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u.mu.Lock()
		u.calls++
		fail := u.fail
		body := u.body
		u.mu.Unlock()
		if fail {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(body))
	}
}

func (u *fakeUpstream) setFail(v bool) {
	u.mu.Lock()
	u.fail = v
	u.mu.Unlock()
}

func (u *fakeUpstream) setBody(v string) {
	u.mu.Lock()
	u.body = v
	u.mu.Unlock()
}

func (u *fakeUpstream) callCount() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.calls
}

func newTestGateway(t *testing.T, origin string, classifier *Classifier) *Gateway {
	t.Helper()
	g, err := New(Options{
		Store:           NewMemoryPartitionStore(),
		Version:         "v2",
		Origin:          origin,
		DefaultLocation: models.Location{ID: "amsterdam", Name: "Amsterdam", Lat: 52.37, Lon: 4.89},
		Logger:          zap.NewNop(),
	}, classifier)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return g
}

func defaultClassifier() *Classifier {
	return NewClassifier([]string{"/", "/app.js", "/styles.css"}, []string{"/weather"})
}

func serve(g *Gateway, target string, headers map[string]string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range headers {
		r.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	g.ServeHTTP(w, r)
	return w
}

// TestNew_Validation verifies construction rejects a missing store or version.
func TestNew_Validation(t *testing.T) {
	if _, err := New(Options{Version: "v1", Logger: zap.NewNop()}, defaultClassifier()); err == nil {
		t.Error("expected error without partition store")
	}
	if _, err := New(Options{Store: NewMemoryPartitionStore(), Logger: zap.NewNop()}, defaultClassifier()); err == nil {
		t.Error("expected error without cache version")
	}
}

// TestCacheFirst_HitSkipsNetwork verifies a stored static asset is served
// without a second upstream call.
func TestCacheFirst_HitSkipsNetwork(t *testing.T) {
	up := &fakeUpstream{body: "console.log('app')"}
	server := httptest.NewServer(up.handler())
	defer server.Close()
	g := newTestGateway(t, server.URL, defaultClassifier())

	first := serve(g, "/app.js", nil)
	if got := first.Header().Get("X-Gateway-Cache"); got != "network" {
		t.Fatalf("first outcome = %q, want network", got)
	}
	second := serve(g, "/app.js", nil)
	if got := second.Header().Get("X-Gateway-Cache"); got != "cacheHit" {
		t.Errorf("second outcome = %q, want cacheHit", got)
	}
	if second.Body.String() != "console.log('app')" {
		t.Errorf("cached body = %q", second.Body.String())
	}
	if up.callCount() != 1 {
		t.Errorf("upstream calls = %d, want 1", up.callCount())
	}
}

// TestCacheFirst_MissWithDeadNetwork verifies the fixed placeholder response
// for an uncached asset that cannot be fetched. Static classes never get
// synthetic content.
func TestCacheFirst_MissWithDeadNetwork(t *testing.T) {
	up := &fakeUpstream{fail: true}
	server := httptest.NewServer(up.handler())
	defer server.Close()
	g := newTestGateway(t, server.URL, defaultClassifier())

	w := serve(g, "/styles.css", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
	if got := w.Header().Get("X-Gateway-Cache"); got != "placeholder" {
		t.Errorf("outcome = %q, want placeholder", got)
	}
}

// TestWeatherPolicy_FreshHit verifies an entry inside the freshness window
// short-circuits the network entirely.
func TestWeatherPolicy_FreshHit(t *testing.T) {
	up := &fakeUpstream{body: `{"current_condition":[{"temp_C":"18"}]}`}
	server := httptest.NewServer(up.handler())
	defer server.Close()
	g := newTestGateway(t, server.URL, defaultClassifier())

	if got := serve(g, "/weather?lat=52.37&lon=4.89", nil); got.Header().Get("X-Gateway-Cache") != "network" {
		t.Fatalf("first outcome = %q, want network", got.Header().Get("X-Gateway-Cache"))
	}

	// Twenty-nine minutes later the entry is still inside the window.
	g.now = func() time.Time { return time.Now().Add(29 * time.Minute) }
	w := serve(g, "/weather?lat=52.37&lon=4.89", nil)
	if got := w.Header().Get("X-Gateway-Cache"); got != "cacheHit" {
		t.Errorf("outcome = %q, want cacheHit", got)
	}
	if up.callCount() != 1 {
		t.Errorf("upstream calls = %d, want 1", up.callCount())
	}
}

// TestWeatherPolicy_ExpiredRevalidates verifies an expired entry triggers a
// revalidation whose live result wins over the cached copy.
func TestWeatherPolicy_ExpiredRevalidates(t *testing.T) {
	up := &fakeUpstream{body: `{"current_condition":[{"temp_C":"18"}]}`}
	server := httptest.NewServer(up.handler())
	defer server.Close()
	g := newTestGateway(t, server.URL, defaultClassifier())

	serve(g, "/weather?lat=52.37&lon=4.89", nil)
	up.setBody(`{"current_condition":[{"temp_C":"7"}]}`)

	g.now = func() time.Time { return time.Now().Add(31 * time.Minute) }
	w := serve(g, "/weather?lat=52.37&lon=4.89", nil)
	if got := w.Header().Get("X-Gateway-Cache"); got != "network" {
		t.Errorf("outcome = %q, want network", got)
	}
	if w.Body.String() != `{"current_condition":[{"temp_C":"7"}]}` {
		t.Errorf("body = %q, want the live response", w.Body.String())
	}
	if up.callCount() != 2 {
		t.Errorf("upstream calls = %d, want 2", up.callCount())
	}
}

// TestWeatherPolicy_StaleServedOnFailure verifies a failed revalidation falls
// back to the expired entry with no upper bound on its age.
func TestWeatherPolicy_StaleServedOnFailure(t *testing.T) {
	up := &fakeUpstream{body: `{"current_condition":[{"temp_C":"18"}]}`}
	server := httptest.NewServer(up.handler())
	defer server.Close()
	g := newTestGateway(t, server.URL, defaultClassifier())

	serve(g, "/weather?lat=52.37&lon=4.89", nil)
	up.setFail(true)

	// Two days stale, still preferable to nothing.
	g.now = func() time.Time { return time.Now().Add(48 * time.Hour) }
	w := serve(g, "/weather?lat=52.37&lon=4.89", nil)
	if got := w.Header().Get("X-Gateway-Cache"); got != "staleServed" {
		t.Errorf("outcome = %q, want staleServed", got)
	}
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if w.Body.String() != `{"current_condition":[{"temp_C":"18"}]}` {
		t.Errorf("body = %q, want the cached response", w.Body.String())
	}
}

// TestWeatherPolicy_SyntheticTerminal verifies the terminal fallback: no
// cached entry and no network still produces a well-formed provider-shaped
// payload with a success status, and the fallback is never stored.
func TestWeatherPolicy_SyntheticTerminal(t *testing.T) {
	up := &fakeUpstream{fail: true}
	server := httptest.NewServer(up.handler())
	defer server.Close()
	g := newTestGateway(t, server.URL, defaultClassifier())

	w := serve(g, "/weather?lat=52.37&lon=4.89", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got := w.Header().Get("X-Gateway-Cache"); got != "synthetic" {
		t.Errorf("outcome = %q, want synthetic", got)
	}

	var payload struct {
		CurrentCondition []map[string]any `json:"current_condition"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("synthetic payload is not valid JSON: %v", err)
	}
	if len(payload.CurrentCondition) == 0 {
		t.Error("synthetic payload has no current_condition")
	}

	partition := partitionName(ClassWeatherAPI, "v2")
	key := g.target(httptest.NewRequest(http.MethodGet, "/weather?lat=52.37&lon=4.89", nil)).String()
	if _, ok, _ := g.store.Get(httptest.NewRequest(http.MethodGet, "/", nil).Context(), partition, key); ok {
		t.Error("synthetic payload was stored in the weather partition")
	}
}

// TestNetworkFirst_StaleOnFailure verifies the network-first path serves the
// previously stored copy when the live fetch fails.
func TestNetworkFirst_StaleOnFailure(t *testing.T) {
	up := &fakeUpstream{body: "<html>about</html>"}
	server := httptest.NewServer(up.handler())
	defer server.Close()
	g := newTestGateway(t, server.URL, defaultClassifier())

	if got := serve(g, "/about", nil); got.Header().Get("X-Gateway-Cache") != "network" {
		t.Fatalf("first outcome = %q, want network", got.Header().Get("X-Gateway-Cache"))
	}
	up.setFail(true)

	w := serve(g, "/about", nil)
	if got := w.Header().Get("X-Gateway-Cache"); got != "staleServed" {
		t.Errorf("outcome = %q, want staleServed", got)
	}
	if w.Body.String() != "<html>about</html>" {
		t.Errorf("body = %q, want the stored copy", w.Body.String())
	}
}

// TestNetworkFirst_NavigationStartPage verifies an offline page navigation
// with no exact cached match falls back to the cached start page.
func TestNetworkFirst_NavigationStartPage(t *testing.T) {
	up := &fakeUpstream{body: "<html>start</html>"}
	server := httptest.NewServer(up.handler())
	defer server.Close()
	// No static allow-list: "/" goes through the network-first partition.
	g := newTestGateway(t, server.URL, NewClassifier(nil, []string{"/weather"}))

	if got := serve(g, "/", nil); got.Header().Get("X-Gateway-Cache") != "network" {
		t.Fatalf("start page seed outcome = %q, want network", got.Header().Get("X-Gateway-Cache"))
	}
	up.setFail(true)

	w := serve(g, "/deep/link", map[string]string{"Sec-Fetch-Mode": "navigate"})
	if got := w.Header().Get("X-Gateway-Cache"); got != "staleServed" {
		t.Errorf("outcome = %q, want staleServed", got)
	}
	if w.Body.String() != "<html>start</html>" {
		t.Errorf("body = %q, want the start page", w.Body.String())
	}
}

// TestNetworkFirst_PlaceholderWhenEmpty verifies a non-navigation request
// with nothing cached gets the placeholder, not the start page.
func TestNetworkFirst_PlaceholderWhenEmpty(t *testing.T) {
	up := &fakeUpstream{fail: true}
	server := httptest.NewServer(up.handler())
	defer server.Close()
	g := newTestGateway(t, server.URL, defaultClassifier())

	w := serve(g, "/api/session", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
	if got := w.Header().Get("X-Gateway-Cache"); got != "placeholder" {
		t.Errorf("outcome = %q, want placeholder", got)
	}
}
