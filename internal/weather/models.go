package weather

import (
	"fmt"
	"time"
)

// Fixed capacities of the forecast time series.
const (
	NumHourly = 48
	NumDaily  = 8
)

// Location identifies the place a forecast is requested for.
// Timezone is passed through to the API ("auto" lets the API resolve it).
type Location struct {
	Latitude  float64 `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64 `json:"longitude" validate:"gte=-180,lte=180"`
	Timezone  string  `json:"timezone,omitempty"`
}

// Key returns a canonical string key for indexing this location in stores.
func (l Location) Key() string {
	return fmt.Sprintf("%.4f:%.4f", l.Latitude, l.Longitude)
}

// CurrentConditions holds the "current" block of a forecast, in API units
// (Celsius, km/h, hPa, meters). Sunrise and Sunset are copied from the first
// daily entry.
type CurrentConditions struct {
	Temperature   float64 `json:"temperature"`
	FeelsLike     float64 `json:"feelsLike"`
	Humidity      int     `json:"humidity"`
	Pressure      int     `json:"pressure"`
	WindSpeed     float64 `json:"windSpeed"`
	WindDirection int     `json:"windDirection"`
	WindGust      float64 `json:"windGust"`
	UVIndex       float64 `json:"uvIndex"`
	Visibility    int     `json:"visibility"`
	WeatherCode   int     `json:"weatherCode"`
	IsDay         int     `json:"isDay"`
	Sunrise       int64   `json:"sunrise"`
	Sunset        int64   `json:"sunset"`
}

// HourlyPoint is one slot of the hourly series. Time is epoch seconds.
type HourlyPoint struct {
	Time              int64   `json:"time"`
	Temperature       float64 `json:"temperature"`
	Humidity          int     `json:"humidity"`
	PrecipProbability float64 `json:"precipProbability"`
	Precipitation     float64 `json:"precipitation"`
	WeatherCode       int     `json:"weatherCode"`
	IsDay             int     `json:"isDay"`
}

// DailyPoint is one slot of the daily series. Time is local noon of the day.
type DailyPoint struct {
	Time              int64   `json:"time"`
	TempMin           float64 `json:"tempMin"`
	TempMax           float64 `json:"tempMax"`
	Sunrise           int64   `json:"sunrise"`
	Sunset            int64   `json:"sunset"`
	PrecipProbability float64 `json:"precipProbability"`
	Precipitation     float64 `json:"precipitation"`
	WeatherCode       int     `json:"weatherCode"`
	UVIndexMax        float64 `json:"uvIndexMax"`
}

// ForecastResponse is the parsed forecast endpoint payload. The series are
// arrays so their capacity never depends on the payload.
type ForecastResponse struct {
	Latitude         float64                `json:"latitude"`
	Longitude        float64                `json:"longitude"`
	Timezone         string                 `json:"timezone"`
	UTCOffsetSeconds int                    `json:"utcOffsetSeconds"`
	Current          CurrentConditions      `json:"current"`
	Hourly           [NumHourly]HourlyPoint `json:"hourly"`
	Daily            [NumDaily]DailyPoint   `json:"daily"`
}

// AirQualityResponse is the parsed air quality endpoint payload.
// AQI is passed through unvalidated.
type AirQualityResponse struct {
	AQI int `json:"usAqi"`
}

// Snapshot is one refresh result for a location as kept by the store.
type Snapshot struct {
	ID         string              `json:"id"`
	Location   Location            `json:"location"`
	FetchedAt  time.Time           `json:"fetchedAt"` // always UTC
	Forecast   *ForecastResponse   `json:"forecast,omitempty"`
	AirQuality *AirQualityResponse `json:"airQuality,omitempty"`

	// Errors from the refresh that produced this snapshot, keyed by endpoint.
	Errors map[string]string `json:"errors,omitempty"`
}
