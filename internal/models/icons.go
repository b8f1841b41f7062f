package models

// iconIDs maps canonical condition codes to icon identifiers. This is the
// single owner of the condition-to-icon mapping; renderers receive the icon
// id, never the table.
var iconIDs = map[int]string{
	CondClear:        "clear-day",
	CondPartlyCloudy: "partly-cloudy-day",
	CondCloudy:       "cloudy",
	CondFog:          "fog",
	CondDrizzle:      "drizzle",
	CondRain:         "rain",
	CondSnow:         "snow",
	CondThunder:      "thunderstorm",
}

// IconID returns the icon identifier for a canonical condition code.
// Unknown codes fall back to the cloudy icon.
func IconID(code int) string {
	if id, ok := iconIDs[code]; ok {
		return id
	}
	return iconIDs[CondCloudy]
}
