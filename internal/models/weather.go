package models

import (
	"encoding/json"
	"time"
)

// HourlyCount and DailyCount are the fixed lengths of the hourly and daily
// series in a normalized snapshot. Provider adapters pad or truncate to these
// so rendering never branches on absence.
const (
	HourlyCount = 24
	DailyCount  = 7
)

// Condition is a single weather condition in canonical form. Code is one of
// the Cond* constants; provider-specific codes are mapped on normalization.
type Condition struct {
	Code        int    `json:"code"`
	Description string `json:"description"`
}

// MarshalJSON adds the derived icon id so renderers never need the code table.
func (c Condition) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Code        int    `json:"code"`
		Description string `json:"description"`
		Icon        string `json:"icon"`
	}{c.Code, c.Description, IconID(c.Code)})
}

// Canonical condition codes. Every provider code collapses into one of these.
const (
	CondClear = iota
	CondPartlyCloudy
	CondCloudy
	CondFog
	CondDrizzle
	CondRain
	CondSnow
	CondThunder
)

// CurrentConditions holds the observed weather at snapshot time.
// Temperature and FeelsLike are in Celsius, WindSpeed in m/s, Humidity in percent.
type CurrentConditions struct {
	Temperature float64   `json:"temperature"`
	FeelsLike   float64   `json:"feelsLike"`
	Humidity    int       `json:"humidity"`
	WindSpeed   float64   `json:"windSpeed"`
	Condition   Condition `json:"condition"`
}

// HourlyPoint is one point of the 24-hour forecast series.
type HourlyPoint struct {
	Time        time.Time `json:"time"`
	Temperature float64   `json:"temperature"`
	Condition   Condition `json:"condition"`
}

// DailyPoint is one point of the 7-day forecast series.
type DailyPoint struct {
	Time      time.Time `json:"time"`
	MinTemp   float64   `json:"minTemp"`
	MaxTemp   float64   `json:"maxTemp"`
	Condition Condition `json:"condition"`
}

// WeatherSnapshot is the canonical normalized weather model consumed by
// rendering. Hourly and Daily are always non-empty: adapters substitute
// plausible values for anything missing or malformed upstream.
type WeatherSnapshot struct {
	Current    CurrentConditions `json:"current"`
	Hourly     []HourlyPoint     `json:"hourly"`
	Daily      []DailyPoint      `json:"daily"`
	TimezoneID string            `json:"timezoneId"`
	Synthetic  bool              `json:"synthetic,omitempty"` // true when generated, not fetched
}

// Location identifies a place weather is fetched for.
type Location struct {
	ID   string  `json:"id"`
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
}

// CacheEntry wraps a snapshot with the capture timestamp and location it was
// captured for. Entries are read-only once created and superseded wholesale
// by the next successful fetch.
type CacheEntry struct {
	Data       WeatherSnapshot `json:"data"`
	CapturedAt time.Time       `json:"timestamp"`
	Location   Location        `json:"location"`
}
