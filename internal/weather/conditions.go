package weather

// Condition represents a normalized high-level weather condition.
type Condition string

const (
	ConditionUnknown Condition = "unknown"
	ConditionClear   Condition = "clear"
	ConditionCloudy  Condition = "cloudy"
	ConditionFog     Condition = "fog"
	ConditionDrizzle Condition = "drizzle"
	ConditionRain    Condition = "rain"
	ConditionSnow    Condition = "snow"
	ConditionStorm   Condition = "storm"
)

// ConditionFromWMO maps a WMO weather interpretation code to a Condition.
func ConditionFromWMO(code int) Condition {
	switch {
	case code == 0:
		return ConditionClear
	case code >= 1 && code <= 3:
		return ConditionCloudy
	case code == 45 || code == 48:
		return ConditionFog
	case code >= 51 && code <= 57:
		return ConditionDrizzle
	case (code >= 61 && code <= 67) || (code >= 80 && code <= 82):
		return ConditionRain
	case (code >= 71 && code <= 77) || code == 85 || code == 86:
		return ConditionSnow
	case code >= 95 && code <= 99:
		return ConditionStorm
	default:
		return ConditionUnknown
	}
}

// Condition returns the normalized condition of the current weather code.
func (c CurrentConditions) Condition() Condition {
	return ConditionFromWMO(c.WeatherCode)
}

// Condition returns the normalized condition of the hourly weather code.
func (h HourlyPoint) Condition() Condition {
	return ConditionFromWMO(h.WeatherCode)
}

// Condition returns the normalized condition of the daily weather code.
func (d DailyPoint) Condition() Condition {
	return ConditionFromWMO(d.WeatherCode)
}

// AQIDescription returns the US EPA category for a US AQI value.
func AQIDescription(aqi int) string {
	switch {
	case aqi < 0:
		return "Unknown"
	case aqi <= 50:
		return "Good"
	case aqi <= 100:
		return "Moderate"
	case aqi <= 150:
		return "Unhealthy for Sensitive Groups"
	case aqi <= 200:
		return "Unhealthy"
	case aqi <= 300:
		return "Very Unhealthy"
	default:
		return "Hazardous"
	}
}

// UVDescription returns the WHO exposure category for a UV index.
func UVDescription(uvi float64) string {
	switch {
	case uvi < 0:
		return "Unknown"
	case uvi < 3:
		return "Low"
	case uvi < 6:
		return "Moderate"
	case uvi < 8:
		return "High"
	case uvi < 11:
		return "Very High"
	default:
		return "Extreme"
	}
}
