package weather

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"
)

// ErrMalformed is returned when a payload is not a JSON object.
var ErrMalformed = errors.New("malformed payload")

// Defaults for fields absent from a payload.
const (
	DefaultTimezone   = "UTC"
	DefaultVisibility = 10000
	DefaultIsDay      = 1
)

// decodeRoot decodes payload and requires the document to be a single JSON object.
func decodeRoot(payload []byte) (map[string]interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var root interface{}
	if err := dec.Decode(&root); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data after top-level value", ErrMalformed)
	}

	obj, ok := root.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: top-level value is not an object", ErrMalformed)
	}
	return obj, nil
}

// ParseForecast parses a forecast payload, resolving local timestamps in
// the process local timezone.
func ParseForecast(payload []byte) (ForecastResponse, error) {
	return ParseForecastIn(payload, time.Local)
}

// ParseForecastIn parses a forecast payload. Missing or mistyped fields take
// their defaults; only a payload that is not a JSON object is an error.
// Hourly and daily series are bounded by NumHourly and NumDaily.
func ParseForecastIn(payload []byte, loc *time.Location) (ForecastResponse, error) {
	doc, err := decodeRoot(payload)
	if err != nil {
		return ForecastResponse{}, err
	}
	return parseForecastDoc(doc, loc), nil
}

// ParseForecastAuto parses a forecast requested with timezone=auto, where
// the API picks the zone of the coordinates. Local timestamps are resolved
// in the zone the payload names, or at its utc_offset_seconds when the
// runtime has no such zone. A payload without a timezone uses time.Local.
func ParseForecastAuto(payload []byte) (ForecastResponse, error) {
	doc, err := decodeRoot(payload)
	if err != nil {
		return ForecastResponse{}, err
	}
	return parseForecastDoc(doc, payloadZone(doc)), nil
}

func payloadZone(doc map[string]interface{}) *time.Location {
	name := stringField(doc, "timezone", "")
	if name == "" {
		return time.Local
	}
	if loc, err := time.LoadLocation(name); err == nil {
		return loc
	}
	if _, ok := doc["utc_offset_seconds"]; ok {
		return time.FixedZone(name, intField(doc, "utc_offset_seconds", 0))
	}
	return time.Local
}

func parseForecastDoc(doc map[string]interface{}, loc *time.Location) ForecastResponse {
	var r ForecastResponse

	r.Latitude = floatField(doc, "latitude", 0)
	r.Longitude = floatField(doc, "longitude", 0)
	r.Timezone = stringField(doc, "timezone", DefaultTimezone)
	r.UTCOffsetSeconds = intField(doc, "utc_offset_seconds", 0)

	current := objectField(doc, "current")
	r.Current = CurrentConditions{
		Temperature:   floatField(current, "temperature_2m", 0),
		FeelsLike:     floatField(current, "apparent_temperature", 0),
		Humidity:      intField(current, "relative_humidity_2m", 0),
		Pressure:      int(floatField(current, "pressure_msl", 0)), // truncated, not rounded
		WindSpeed:     floatField(current, "wind_speed_10m", 0),
		WindDirection: intField(current, "wind_direction_10m", 0),
		WindGust:      floatField(current, "wind_gusts_10m", 0),
		UVIndex:       floatField(current, "uv_index", 0),
		Visibility:    intField(current, "visibility", DefaultVisibility),
		WeatherCode:   intField(current, "weather_code", 0),
		IsDay:         intField(current, "is_day", DefaultIsDay),
	}

	parseHourly(objectField(doc, "hourly"), loc, &r.Hourly)
	parseDaily(objectField(doc, "daily"), loc, &r.Daily)

	r.Current.Sunrise = r.Daily[0].Sunrise
	r.Current.Sunset = r.Daily[0].Sunset

	return r
}

// parseHourly zips the parallel hourly arrays by index. The "time" array
// decides how many entries exist.
func parseHourly(hourly map[string]interface{}, loc *time.Location, out *[NumHourly]HourlyPoint) {
	times := arrayField(hourly, "time")
	temp := arrayField(hourly, "temperature_2m")
	humidity := arrayField(hourly, "relative_humidity_2m")
	pop := arrayField(hourly, "precipitation_probability")
	precip := arrayField(hourly, "precipitation")
	code := arrayField(hourly, "weather_code")
	isDay := arrayField(hourly, "is_day")

	for i := 0; i < NumHourly && i < len(times); i++ {
		out[i] = HourlyPoint{
			Time:              ParseLocalDateTimeIn(stringValue(times[i], ""), loc),
			Temperature:       floatValue(element(temp, i), 0),
			Humidity:          intValue(element(humidity, i), 0),
			PrecipProbability: floatValue(element(pop, i), 0),
			Precipitation:     floatValue(element(precip, i), 0),
			WeatherCode:       intValue(element(code, i), 0),
			IsDay:             intValue(element(isDay, i), DefaultIsDay),
		}
	}
}

func parseDaily(daily map[string]interface{}, loc *time.Location, out *[NumDaily]DailyPoint) {
	times := arrayField(daily, "time")
	tempMax := arrayField(daily, "temperature_2m_max")
	tempMin := arrayField(daily, "temperature_2m_min")
	sunrise := arrayField(daily, "sunrise")
	sunset := arrayField(daily, "sunset")
	pop := arrayField(daily, "precipitation_probability_max")
	precip := arrayField(daily, "precipitation_sum")
	code := arrayField(daily, "weather_code")
	uvi := arrayField(daily, "uv_index_max")

	for i := 0; i < NumDaily && i < len(times); i++ {
		out[i] = DailyPoint{
			Time:              ParseLocalDateTimeIn(stringValue(times[i], ""), loc),
			TempMax:           floatValue(element(tempMax, i), 0),
			TempMin:           floatValue(element(tempMin, i), 0),
			Sunrise:           ParseLocalDateTimeIn(stringValue(element(sunrise, i), ""), loc),
			Sunset:            ParseLocalDateTimeIn(stringValue(element(sunset, i), ""), loc),
			PrecipProbability: floatValue(element(pop, i), 0),
			Precipitation:     floatValue(element(precip, i), 0),
			WeatherCode:       intValue(element(code, i), 0),
			UVIndexMax:        floatValue(element(uvi, i), 0),
		}
	}
}

// ParseAirQuality parses an air quality payload. A missing current.us_aqi
// yields 0.
func ParseAirQuality(payload []byte) (AirQualityResponse, error) {
	doc, err := decodeRoot(payload)
	if err != nil {
		return AirQualityResponse{}, err
	}

	return AirQualityResponse{
		AQI: intField(objectField(doc, "current"), "us_aqi", 0),
	}, nil
}
