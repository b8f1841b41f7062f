package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"

	"github.com/mbeverdam/weatherdash/internal/models"
	"github.com/mbeverdam/weatherdash/internal/observability"
)

// WttrAdapter normalizes wttr.in's j1 JSON format. wttr.in encodes every
// number as a string and serves three days of 3-hourly forecast points.
type WttrAdapter struct {
	baseURL string
	client  *resty.Client
	breaker *gobreaker.CircuitBreaker
	now     func() time.Time
}

// NewWttrAdapter returns an adapter against baseURL (default https://wttr.in).
func NewWttrAdapter(baseURL string, timeout time.Duration) *WttrAdapter {
	if baseURL == "" {
		baseURL = "https://wttr.in"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WttrAdapter{
		baseURL: baseURL,
		client:  resty.New().SetTimeout(timeout),
		breaker: newBreaker("wttr"),
		now:     time.Now,
	}
}

func (a *WttrAdapter) Name() string { return "wttr" }

type wttrDesc struct {
	Value string `json:"value"`
}

type wttrHour struct {
	Time        string     `json:"time"`
	TempC       string     `json:"tempC"`
	WeatherCode string     `json:"weatherCode"`
	WeatherDesc []wttrDesc `json:"weatherDesc"`
}

type wttrDay struct {
	Date     string     `json:"date"`
	MaxTempC string     `json:"maxtempC"`
	MinTempC string     `json:"mintempC"`
	Hourly   []wttrHour `json:"hourly"`
}

type wttrResponse struct {
	CurrentCondition []struct {
		TempC       string     `json:"temp_C"`
		FeelsLikeC  string     `json:"FeelsLikeC"`
		Humidity    string     `json:"humidity"`
		WindKmph    string     `json:"windspeedKmph"`
		WeatherCode string     `json:"weatherCode"`
		WeatherDesc []wttrDesc `json:"weatherDesc"`
	} `json:"current_condition"`
	Weather  []wttrDay `json:"weather"`
	TimeZone []struct {
		Zone string `json:"zone"`
	} `json:"time_zone"`
}

// Fetch issues one request for the location and normalizes the body.
// Any transport failure, non-success status, or unparseable body returns a
// classified error; normalization itself never fails on bad field values.
func (a *WttrAdapter) Fetch(ctx context.Context, loc models.Location) (models.WeatherSnapshot, error) {
	start := time.Now()
	result, err := a.breaker.Execute(func() (interface{}, error) {
		resp, err := a.client.R().
			SetContext(ctx).
			SetQueryParam("format", "j1").
			Get(fmt.Sprintf("%s/%f,%f", a.baseURL, loc.Lat, loc.Lon))
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
		observability.UpstreamCallsTotal.WithLabelValues("wttr", "error").Inc()
		observability.UpstreamDuration.WithLabelValues("wttr", "error").Observe(duration)
		return models.WeatherSnapshot{}, fmt.Errorf("wttr fetch: %w", classifyErr(err))
	}
	observability.UpstreamCallsTotal.WithLabelValues("wttr", "success").Inc()
	observability.UpstreamDuration.WithLabelValues("wttr", "success").Observe(duration)

	body, _ := result.([]byte)
	var payload wttrResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return models.WeatherSnapshot{}, fmt.Errorf("wttr parse: %w", ErrUpstreamMalformed)
	}
	return a.normalize(payload), nil
}

// normalize maps the raw payload to the canonical snapshot, replacing every
// invalid field with its literal default and padding the series to their
// fixed lengths. Total: never returns an error.
func (a *WttrAdapter) normalize(payload wttrResponse) models.WeatherSnapshot {
	now := a.now()

	current := models.CurrentConditions{
		Temperature: DefaultTemp,
		FeelsLike:   DefaultTemp,
		Humidity:    DefaultHumidity,
		WindSpeed:   DefaultWind,
		Condition:   models.Condition{Code: models.CondPartlyCloudy, Description: "Partly cloudy"},
	}
	if len(payload.CurrentCondition) > 0 {
		cc := payload.CurrentCondition[0]
		current.Temperature = floatField(cc.TempC, DefaultTemp, minTemp, maxTemp)
		current.FeelsLike = floatField(cc.FeelsLikeC, current.Temperature, minTemp, maxTemp)
		current.Humidity = intField(cc.Humidity, DefaultHumidity, 0, 100)
		// wttr reports km/h; the model uses m/s.
		current.WindSpeed = floatField(cc.WindKmph, DefaultWind*3.6, 0, maxWind) / 3.6
		current.Condition = wwoCondition(cc.WeatherCode, descValue(cc.WeatherDesc))
	}

	var hourly []models.HourlyPoint
	var daily []models.DailyPoint
	for _, day := range payload.Weather {
		date, dateErr := time.Parse("2006-01-02", day.Date)
		if dateErr != nil {
			date = startOfDay(now).AddDate(0, 0, len(daily))
		}
		daily = append(daily, models.DailyPoint{
			Time:      date,
			MinTemp:   floatField(day.MinTempC, DefaultTemp-5, minTemp, maxTemp),
			MaxTemp:   floatField(day.MaxTempC, DefaultTemp+5, minTemp, maxTemp),
			Condition: dayCondition(day.Hourly),
		})
		for _, h := range day.Hourly {
			// Hour encoded as "0", "300", ... "2100".
			hour := intField(h.Time, 0, 0, 2300) / 100
			hourly = append(hourly, models.HourlyPoint{
				Time:        date.Add(time.Duration(hour) * time.Hour),
				Temperature: floatField(h.TempC, DefaultTemp, minTemp, maxTemp),
				Condition:   wwoCondition(h.WeatherCode, descValue(h.WeatherDesc)),
			})
		}
	}

	tz := "Europe/Amsterdam"
	if len(payload.TimeZone) > 0 && payload.TimeZone[0].Zone != "" {
		tz = payload.TimeZone[0].Zone
	}

	return models.WeatherSnapshot{
		Current:    current,
		Hourly:     padHourly(hourly, now),
		Daily:      padDaily(daily, now),
		TimezoneID: tz,
	}
}

func descValue(desc []wttrDesc) string {
	if len(desc) > 0 {
		return desc[0].Value
	}
	return ""
}

// dayCondition picks the midday condition as representative for the day.
func dayCondition(hours []wttrHour) models.Condition {
	if len(hours) == 0 {
		return models.Condition{Code: models.CondPartlyCloudy, Description: "Partly cloudy"}
	}
	h := hours[len(hours)/2]
	return wwoCondition(h.WeatherCode, descValue(h.WeatherDesc))
}

// wwoCondition maps a World Weather Online code (wttr.in's scheme) to the
// canonical condition set.
func wwoCondition(codeStr, desc string) models.Condition {
	code := intField(codeStr, 116, 0, 999)
	canonical := models.CondCloudy
	switch {
	case code == 113:
		canonical = models.CondClear
	case code == 116:
		canonical = models.CondPartlyCloudy
	case code == 119 || code == 122:
		canonical = models.CondCloudy
	case code == 143 || code == 248 || code == 260:
		canonical = models.CondFog
	case code == 176 || code == 263 || code == 266 || code == 281 || code == 284 || code == 353:
		canonical = models.CondDrizzle
	case code == 227 || code == 230 || (code >= 320 && code <= 338) || (code >= 368 && code <= 377):
		canonical = models.CondSnow
	case code == 200 || (code >= 386 && code <= 395):
		canonical = models.CondThunder
	case code >= 293 && code <= 359:
		canonical = models.CondRain
	}
	if desc == "" {
		desc = "Partly cloudy"
	}
	return models.Condition{Code: canonical, Description: desc}
}
