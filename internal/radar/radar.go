// Package radar fetches the short-term precipitation forecast that renders
// next to the weather panel. It is an independent branch of the dashboard's
// fetch join: its failures never affect the weather branch, and it carries
// its own synthetic fallback.
package radar

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/mbeverdam/weatherdash/internal/models"
	"github.com/mbeverdam/weatherdash/internal/observability"
)

// Point is one precipitation sample. Intensity is in mm/h.
type Point struct {
	Time      time.Time `json:"time"`
	Intensity float64   `json:"intensity"`
}

// Forecast is the two-hour precipitation series, one point per 5 minutes.
type Forecast struct {
	Points    []Point `json:"points"`
	Synthetic bool    `json:"synthetic,omitempty"`
}

// PointCount is the fixed series length (2 hours at 5-minute steps).
const PointCount = 24

// Client fetches the Buienradar raindata feed: plain-text lines of the form
// "077|21:25" where the value maps to mm/h as 10^((v-109)/32).
type Client struct {
	baseURL string
	client  *resty.Client
	now     func() time.Time
}

// NewClient returns a radar client against baseURL
// (default https://gpsgadget.buienradar.nl/data/raindata).
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = "https://gpsgadget.buienradar.nl/data/raindata"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		client:  resty.New().SetTimeout(timeout),
		now:     time.Now,
	}
}

// Forecast fetches and parses the precipitation series for loc. Unparseable
// lines are skipped; a response without a single valid line is an error.
func (c *Client) Forecast(ctx context.Context, loc models.Location) (Forecast, error) {
	start := time.Now()
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("lat", fmt.Sprintf("%.2f", loc.Lat)).
		SetQueryParam("lon", fmt.Sprintf("%.2f", loc.Lon)).
		Get(c.baseURL)
	duration := time.Since(start).Seconds()
	if err != nil {
		observability.UpstreamCallsTotal.WithLabelValues("radar", "error").Inc()
		observability.UpstreamDuration.WithLabelValues("radar", "error").Observe(duration)
		return Forecast{}, fmt.Errorf("radar fetch: %w", err)
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		observability.UpstreamCallsTotal.WithLabelValues("radar", "error").Inc()
		observability.UpstreamDuration.WithLabelValues("radar", "error").Observe(duration)
		return Forecast{}, fmt.Errorf("radar fetch: HTTP %d", resp.StatusCode())
	}
	observability.UpstreamCallsTotal.WithLabelValues("radar", "success").Inc()
	observability.UpstreamDuration.WithLabelValues("radar", "success").Observe(duration)

	fc := c.parse(string(resp.Body()))
	if len(fc.Points) == 0 {
		return Forecast{}, fmt.Errorf("radar parse: no valid lines")
	}
	return fc, nil
}

func (c *Client) parse(body string) Forecast {
	now := c.now()
	var fc Forecast
	for _, line := range strings.Split(body, "\n") {
		parts := strings.SplitN(strings.TrimSpace(line), "|", 2)
		if len(parts) != 2 {
			continue
		}
		value, err := strconv.Atoi(strings.TrimSpace(parts[0]))
		if err != nil || value < 0 || value > 255 {
			continue
		}
		clock, err := time.Parse("15:04", strings.TrimSpace(parts[1]))
		if err != nil {
			continue
		}
		t := time.Date(now.Year(), now.Month(), now.Day(), clock.Hour(), clock.Minute(), 0, 0, now.Location())
		if t.Before(now.Add(-12 * time.Hour)) {
			t = t.AddDate(0, 0, 1) // series crosses midnight
		}
		fc.Points = append(fc.Points, Point{Time: t, Intensity: intensity(value)})
		if len(fc.Points) == PointCount {
			break
		}
	}
	return fc
}

// intensity converts the 0-255 raindata value to mm/h. Zero means dry.
func intensity(value int) float64 {
	if value == 0 {
		return 0
	}
	mmh := math.Pow(10, (float64(value)-109)/32)
	return math.Round(mmh*100) / 100
}

// Synthetic returns the fallback series: a dry two-hour window starting at
// now. It never fails and is used whenever the radar branch errors out.
func Synthetic(now time.Time) Forecast {
	points := make([]Point, PointCount)
	base := now.Truncate(5 * time.Minute)
	for i := range points {
		points[i] = Point{Time: base.Add(time.Duration(i) * 5 * time.Minute)}
	}
	return Forecast{Points: points, Synthetic: true}
}
