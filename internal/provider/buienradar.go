package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"

	"github.com/mbeverdam/weatherdash/internal/models"
	"github.com/mbeverdam/weatherdash/internal/observability"
)

// BuienradarAdapter normalizes the Buienradar 2.0 JSON feed. The feed has
// current measurements per station and a five-day forecast but no hourly
// series; the 24-hour series is derived from the current temperature with a
// diurnal curve so the snapshot contract holds.
type BuienradarAdapter struct {
	feedURL string
	client  *resty.Client
	breaker *gobreaker.CircuitBreaker
	now     func() time.Time
}

// NewBuienradarAdapter returns an adapter against feedURL
// (default https://data.buienradar.nl/2.0/feed/json).
func NewBuienradarAdapter(feedURL string, timeout time.Duration) *BuienradarAdapter {
	if feedURL == "" {
		feedURL = "https://data.buienradar.nl/2.0/feed/json"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &BuienradarAdapter{
		feedURL: feedURL,
		client:  resty.New().SetTimeout(timeout),
		breaker: newBreaker("buienradar"),
		now:     time.Now,
	}
}

func (a *BuienradarAdapter) Name() string { return "buienradar" }

type buienradarStation struct {
	StationID          int     `json:"stationid"`
	Lat                float64 `json:"lat"`
	Lon                float64 `json:"lon"`
	Temperature        float64 `json:"temperature"`
	FeelTemperature    float64 `json:"feeltemperature"`
	Humidity           float64 `json:"humidity"`
	WindSpeed          float64 `json:"windspeed"`
	WeatherDescription string  `json:"weatherdescription"`
	IconURL            string  `json:"iconurl"`
}

type buienradarDay struct {
	Day                string  `json:"day"`
	MinTemperature     string  `json:"mintemperature"`
	MaxTemperature     string  `json:"maxtemperature"`
	WeatherDescription string  `json:"weatherdescription"`
	IconCode           string  `json:"iconcode"`
	RainChance         float64 `json:"rainChance"`
}

type buienradarFeed struct {
	Actual struct {
		StationMeasurements []buienradarStation `json:"stationmeasurements"`
	} `json:"actual"`
	Forecast struct {
		FiveDayForecast []buienradarDay `json:"fivedayforecast"`
	} `json:"forecast"`
}

// Fetch downloads the national feed and normalizes the measurement of the
// station nearest to loc.
func (a *BuienradarAdapter) Fetch(ctx context.Context, loc models.Location) (models.WeatherSnapshot, error) {
	start := time.Now()
	result, err := a.breaker.Execute(func() (interface{}, error) {
		resp, err := a.client.R().SetContext(ctx).Get(a.feedURL)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
			return nil, fmt.Errorf("%w: HTTP %d", ErrUpstreamMalformed, resp.StatusCode())
		}
		return resp.Body(), nil
	})
	duration := time.Since(start).Seconds()
	if err != nil {
		observability.UpstreamCallsTotal.WithLabelValues("buienradar", "error").Inc()
		observability.UpstreamDuration.WithLabelValues("buienradar", "error").Observe(duration)
		return models.WeatherSnapshot{}, fmt.Errorf("buienradar fetch: %w", classifyErr(err))
	}
	observability.UpstreamCallsTotal.WithLabelValues("buienradar", "success").Inc()
	observability.UpstreamDuration.WithLabelValues("buienradar", "success").Observe(duration)

	body, _ := result.([]byte)
	var feed buienradarFeed
	if err := json.Unmarshal(body, &feed); err != nil {
		return models.WeatherSnapshot{}, fmt.Errorf("buienradar parse: %w", ErrUpstreamMalformed)
	}
	return a.normalize(feed, loc), nil
}

func (a *BuienradarAdapter) normalize(feed buienradarFeed, loc models.Location) models.WeatherSnapshot {
	now := a.now()

	station := nearestStation(feed.Actual.StationMeasurements, loc)
	cond := buienradarCondition(station.IconURL, station.WeatherDescription)
	current := models.CurrentConditions{
		Temperature: numField(station.Temperature, DefaultTemp, minTemp, maxTemp),
		FeelsLike:   numField(station.FeelTemperature, numField(station.Temperature, DefaultTemp, minTemp, maxTemp), minTemp, maxTemp),
		Humidity:    int(numField(station.Humidity, DefaultHumidity, 0, 100)),
		WindSpeed:   numField(station.WindSpeed, DefaultWind, 0, maxWind),
		Condition:   cond,
	}

	var daily []models.DailyPoint
	for _, day := range feed.Forecast.FiveDayForecast {
		date, dateErr := time.Parse(time.RFC3339, day.Day)
		if dateErr != nil {
			date = startOfDay(now).AddDate(0, 0, len(daily))
		}
		daily = append(daily, models.DailyPoint{
			Time: date,
			// Buienradar encodes forecast temperatures as "8/10" ranges.
			MinTemp:   rangeField(day.MinTemperature, DefaultTemp-5),
			MaxTemp:   rangeField(day.MaxTemperature, DefaultTemp+5),
			Condition: buienradarCondition(day.IconCode, day.WeatherDescription),
		})
	}

	// No hourly series upstream: derive one from the current reading.
	hourly := make([]models.HourlyPoint, 0, models.HourlyCount)
	for i := 0; i < models.HourlyCount; i++ {
		t := now.Truncate(time.Hour).Add(time.Duration(i) * time.Hour)
		offset := 4.0 * math.Sin((float64(t.Hour())-10.0)/24.0*2*math.Pi)
		hourly = append(hourly, models.HourlyPoint{
			Time:        t,
			Temperature: math.Round((current.Temperature+offset)*10) / 10,
			Condition:   cond,
		})
	}

	return models.WeatherSnapshot{
		Current:    current,
		Hourly:     hourly,
		Daily:      padDaily(daily, now),
		TimezoneID: "Europe/Amsterdam",
	}
}

// nearestStation returns the measurement closest to loc, or a zero station
// when the feed carries none (fields then default during normalization).
func nearestStation(stations []buienradarStation, loc models.Location) buienradarStation {
	var best buienradarStation
	bestDist := math.MaxFloat64
	for _, st := range stations {
		d := (st.Lat-loc.Lat)*(st.Lat-loc.Lat) + (st.Lon-loc.Lon)*(st.Lon-loc.Lon)
		if d < bestDist {
			bestDist = d
			best = st
		}
	}
	if bestDist == math.MaxFloat64 {
		return buienradarStation{Temperature: DefaultTemp, FeelTemperature: DefaultTemp, Humidity: DefaultHumidity, WindSpeed: DefaultWind}
	}
	return best
}

// rangeField parses Buienradar's "min/max" temperature strings, averaging the
// two bounds; plain numbers parse as themselves.
func rangeField(s string, def float64) float64 {
	parts := strings.Split(strings.TrimSpace(s), "/")
	switch len(parts) {
	case 1:
		return floatField(parts[0], def, minTemp, maxTemp)
	case 2:
		lo := floatField(parts[0], def, minTemp, maxTemp)
		hi := floatField(parts[1], lo, minTemp, maxTemp)
		return (lo + hi) / 2
	default:
		return def
	}
}

// buienradarCondition maps Buienradar icon codes (single letters, also found
// at the end of icon URLs) to the canonical condition set.
func buienradarCondition(icon, desc string) models.Condition {
	letter := icon
	if idx := strings.LastIndex(icon, "/"); idx >= 0 {
		letter = icon[idx+1:]
	}
	letter = strings.TrimSuffix(strings.ToLower(letter), ".png")

	canonical := models.CondCloudy
	switch letter {
	case "a", "aa":
		canonical = models.CondClear
	case "b", "bb", "r":
		canonical = models.CondPartlyCloudy
	case "c", "cc", "o", "p":
		canonical = models.CondCloudy
	case "d", "n":
		canonical = models.CondFog
	case "f", "ff", "k", "l":
		canonical = models.CondDrizzle
	case "m", "q", "mm", "qq":
		canonical = models.CondRain
	case "h", "i", "u", "v", "t", "w":
		canonical = models.CondSnow
	case "g", "gg", "s", "j":
		canonical = models.CondThunder
	}
	if desc == "" {
		desc = "Bewolkt"
	}
	return models.Condition{Code: canonical, Description: desc}
}
