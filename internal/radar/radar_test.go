package radar

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mbeverdam/weatherdash/internal/models"
)

var testLoc = models.Location{ID: "utrecht", Name: "Utrecht", Lat: 52.09, Lon: 5.12}

// TestIntensity verifies the raindata value conversion: zero is dry and the
// reference points of the 10^((v-109)/32) curve come out right.
func TestIntensity(t *testing.T) {
	tests := []struct {
		value int
		want  float64
	}{
		{0, 0},
		{109, 1},    // 10^0
		{141, 10},   // 10^1
		{77, 0.1},   // 10^-1
		{173, 100},  // 10^2
	}
	for _, tt := range tests {
		got := intensity(tt.value)
		if math.Abs(got-tt.want) > 0.01 {
			t.Errorf("intensity(%d) = %v, want %v", tt.value, got, tt.want)
		}
	}
}

// TestParse verifies line parsing: valid lines become points, malformed ones
// are skipped, and times keep the order of the feed.
func TestParse(t *testing.T) {
	now := time.Date(2025, 6, 1, 21, 20, 0, 0, time.UTC)
	c := &Client{now: func() time.Time { return now }}

	body := strings.Join([]string{
		"000|21:25",
		"077|21:30",
		"garbage",
		"999|21:35", // out of range
		"109|21:40",
		"",
	}, "\n")

	fc := c.parse(body)
	if len(fc.Points) != 3 {
		t.Fatalf("points = %d, want 3", len(fc.Points))
	}
	if fc.Points[0].Intensity != 0 {
		t.Errorf("points[0].Intensity = %v, want 0", fc.Points[0].Intensity)
	}
	if math.Abs(fc.Points[1].Intensity-0.1) > 0.01 {
		t.Errorf("points[1].Intensity = %v, want 0.1", fc.Points[1].Intensity)
	}
	if math.Abs(fc.Points[2].Intensity-1) > 0.01 {
		t.Errorf("points[2].Intensity = %v, want 1", fc.Points[2].Intensity)
	}
	want := time.Date(2025, 6, 1, 21, 25, 0, 0, time.UTC)
	if !fc.Points[0].Time.Equal(want) {
		t.Errorf("points[0].Time = %v, want %v", fc.Points[0].Time, want)
	}
}

// TestParse_MidnightRollover verifies times that wrapped past midnight land
// on the next calendar day instead of twelve hours in the past.
func TestParse_MidnightRollover(t *testing.T) {
	now := time.Date(2025, 6, 1, 23, 50, 0, 0, time.UTC)
	c := &Client{now: func() time.Time { return now }}

	fc := c.parse("050|23:55\n050|00:05")
	if len(fc.Points) != 2 {
		t.Fatalf("points = %d, want 2", len(fc.Points))
	}
	if fc.Points[1].Time.Day() != 2 {
		t.Errorf("rolled-over point day = %d, want 2", fc.Points[1].Time.Day())
	}
	if !fc.Points[1].Time.After(fc.Points[0].Time) {
		t.Errorf("points out of order: %v then %v", fc.Points[0].Time, fc.Points[1].Time)
	}
}

// TestForecast verifies the HTTP round trip against a stub raindata feed.
func TestForecast(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("lat") == "" || r.URL.Query().Get("lon") == "" {
			t.Errorf("missing lat/lon query params: %s", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte("000|21:25\n077|21:30"))
	}))
	defer server.Close()

	c := NewClient(server.URL, 2*time.Second)
	fc, err := c.Forecast(context.Background(), testLoc)
	if err != nil {
		t.Fatalf("Forecast() error: %v", err)
	}
	if fc.Synthetic {
		t.Error("live forecast marked synthetic")
	}
	if len(fc.Points) != 2 {
		t.Errorf("points = %d, want 2", len(fc.Points))
	}
}

// TestForecast_NoValidLines verifies a body with nothing parseable is an
// error rather than an empty series.
func TestForecast_NoValidLines(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>not a feed</html>"))
	}))
	defer server.Close()

	c := NewClient(server.URL, 2*time.Second)
	if _, err := c.Forecast(context.Background(), testLoc); err == nil {
		t.Fatal("expected error for feed without valid lines")
	}
}

// TestForecast_BadStatus verifies upstream 5xx responses surface as errors.
func TestForecast_BadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	c := NewClient(server.URL, 2*time.Second)
	if _, err := c.Forecast(context.Background(), testLoc); err == nil {
		t.Fatal("expected error for HTTP 502")
	}
}

// TestSynthetic verifies the fallback series: full length, dry, 5-minute
// spacing, marked synthetic.
func TestSynthetic(t *testing.T) {
	now := time.Date(2025, 6, 1, 14, 3, 0, 0, time.UTC)
	fc := Synthetic(now)

	if !fc.Synthetic {
		t.Error("Synthetic = false, want true")
	}
	if len(fc.Points) != PointCount {
		t.Fatalf("points = %d, want %d", len(fc.Points), PointCount)
	}
	for i, p := range fc.Points {
		if p.Intensity != 0 {
			t.Errorf("points[%d].Intensity = %v, want 0", i, p.Intensity)
		}
		if i > 0 {
			gap := p.Time.Sub(fc.Points[i-1].Time)
			if gap != 5*time.Minute {
				t.Errorf("points[%d] gap = %v, want 5m", i, gap)
			}
		}
	}
}
