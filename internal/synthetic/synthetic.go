// Package synthetic generates plausible weather data used as the terminal
// fallback when no real data is obtainable. Generation never fails.
package synthetic

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/mbeverdam/weatherdash/internal/models"
)

// Bounds for generated values. Everything produced stays inside these so
// downstream rendering and normalization never see out-of-range data.
const (
	baseTempMin = 2.0
	baseTempMax = 22.0
	diurnalAmp  = 5.0 // peak-to-mean amplitude of the day/night curve, Celsius
	dailyCool   = 0.8 // day-over-day cooling trend, Celsius per day
	humidityMin = 30
	humidityMax = 90
	windMax     = 15.0
)

// Snapshot produces a fully populated synthetic snapshot for the location at
// the given time: a diurnal sinusoid across the 24 hourly points and a
// day-over-day cooling trend across the 7 daily points. The generator is
// seeded from the location and calendar day, so repeated fallbacks within one
// day stay consistent with each other.
func Snapshot(loc models.Location, now time.Time) models.WeatherSnapshot {
	rng := rand.New(rand.NewSource(seed(loc, now)))

	base := baseTempMin + rng.Float64()*(baseTempMax-baseTempMin)
	cond := pickCondition(rng)

	hourly := make([]models.HourlyPoint, models.HourlyCount)
	for i := range hourly {
		t := now.Truncate(time.Hour).Add(time.Duration(i) * time.Hour)
		hourly[i] = models.HourlyPoint{
			Time:        t,
			Temperature: round1(base + diurnal(t) + rng.Float64()*0.6 - 0.3),
			Condition:   cond,
		}
	}

	daily := make([]models.DailyPoint, models.DailyCount)
	for i := range daily {
		day := base - dailyCool*float64(i)
		daily[i] = models.DailyPoint{
			Time:      startOfDay(now).AddDate(0, 0, i),
			MinTemp:   round1(day - diurnalAmp),
			MaxTemp:   round1(day + diurnalAmp),
			Condition: pickCondition(rng),
		}
	}

	return models.WeatherSnapshot{
		Current: models.CurrentConditions{
			Temperature: hourly[0].Temperature,
			FeelsLike:   round1(hourly[0].Temperature - 1.0 - rng.Float64()),
			Humidity:    humidityMin + rng.Intn(humidityMax-humidityMin+1),
			WindSpeed:   round1(rng.Float64() * windMax),
			Condition:   cond,
		},
		Hourly:     hourly,
		Daily:      daily,
		TimezoneID: "Europe/Amsterdam",
		Synthetic:  true,
	}
}

// Payload renders a synthetic snapshot in the wttr.in wire shape, for use as
// a transport-level fallback response. The calling normalizer must never
// receive a missing or error body, so this always returns valid JSON.
func Payload(loc models.Location, now time.Time) []byte {
	snap := Snapshot(loc, now)

	type wttrCondition struct {
		TempC       string              `json:"temp_C"`
		FeelsLikeC  string              `json:"FeelsLikeC"`
		Humidity    string              `json:"humidity"`
		WindKmph    string              `json:"windspeedKmph"`
		WeatherCode string              `json:"weatherCode"`
		WeatherDesc []map[string]string `json:"weatherDesc"`
	}
	type wttrHour struct {
		Time        string              `json:"time"`
		TempC       string              `json:"tempC"`
		WeatherCode string              `json:"weatherCode"`
		WeatherDesc []map[string]string `json:"weatherDesc"`
	}
	type wttrDay struct {
		Date     string     `json:"date"`
		MaxTempC string     `json:"maxtempC"`
		MinTempC string     `json:"mintempC"`
		Hourly   []wttrHour `json:"hourly"`
	}

	desc := []map[string]string{{"value": snap.Current.Condition.Description}}
	payload := struct {
		CurrentCondition []wttrCondition     `json:"current_condition"`
		Weather          []wttrDay           `json:"weather"`
		NearestArea      []map[string]any    `json:"nearest_area"`
		TimeZone         []map[string]string `json:"time_zone"`
	}{
		CurrentCondition: []wttrCondition{{
			TempC:       fmt.Sprintf("%.0f", snap.Current.Temperature),
			FeelsLikeC:  fmt.Sprintf("%.0f", snap.Current.FeelsLike),
			Humidity:    fmt.Sprintf("%d", snap.Current.Humidity),
			WindKmph:    fmt.Sprintf("%.0f", snap.Current.WindSpeed*3.6),
			WeatherCode: wttrCode(snap.Current.Condition.Code),
			WeatherDesc: desc,
		}},
		TimeZone: []map[string]string{{"zone": snap.TimezoneID}},
	}

	for d := 0; d < 3; d++ {
		day := wttrDay{
			Date:     snap.Daily[d].Time.Format("2006-01-02"),
			MaxTempC: fmt.Sprintf("%.0f", snap.Daily[d].MaxTemp),
			MinTempC: fmt.Sprintf("%.0f", snap.Daily[d].MinTemp),
		}
		for h := 0; h < 8; h++ {
			idx := d*8 + h
			point := snap.Hourly[idx%len(snap.Hourly)]
			day.Hourly = append(day.Hourly, wttrHour{
				Time:        fmt.Sprintf("%d", h*300),
				TempC:       fmt.Sprintf("%.0f", point.Temperature),
				WeatherCode: wttrCode(point.Condition.Code),
				WeatherDesc: []map[string]string{{"value": point.Condition.Description}},
			})
		}
		payload.Weather = append(payload.Weather, day)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		// Marshalling a struct of strings cannot fail; keep the guarantee anyway.
		return []byte(`{"current_condition":[{"temp_C":"12"}],"weather":[]}`)
	}
	return raw
}

// diurnal returns the temperature offset for the hour of day: coldest around
// 04:00, warmest around 16:00.
func diurnal(t time.Time) float64 {
	hour := float64(t.Hour())
	return diurnalAmp * math.Sin((hour-10.0)/24.0*2*math.Pi)
}

func pickCondition(rng *rand.Rand) models.Condition {
	codes := []struct {
		code int
		desc string
	}{
		{models.CondClear, "Clear"},
		{models.CondPartlyCloudy, "Partly cloudy"},
		{models.CondCloudy, "Cloudy"},
		{models.CondDrizzle, "Light drizzle"},
		{models.CondRain, "Rain"},
	}
	c := codes[rng.Intn(len(codes))]
	return models.Condition{Code: c.code, Description: c.desc}
}

// wttrCode maps a canonical condition code back to a representative WWO code
// for the wire-shaped payload.
func wttrCode(code int) string {
	switch code {
	case models.CondClear:
		return "113"
	case models.CondPartlyCloudy:
		return "116"
	case models.CondFog:
		return "248"
	case models.CondDrizzle:
		return "266"
	case models.CondRain:
		return "296"
	case models.CondSnow:
		return "332"
	case models.CondThunder:
		return "389"
	default:
		return "122"
	}
}

func seed(loc models.Location, now time.Time) int64 {
	y, m, d := now.Date()
	return int64(loc.Lat*1e4)<<20 ^ int64(loc.Lon*1e4)<<8 ^ int64(y*10000+int(m)*100+d)
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
