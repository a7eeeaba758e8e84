package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/i474232898/epd-weather/internal/diagnostics"
	"github.com/i474232898/epd-weather/internal/logger"
	"github.com/i474232898/epd-weather/internal/weather"
)

// Open-Meteo endpoints.
const (
	ForecastURL   = "https://api.open-meteo.com/v1/forecast"
	AirQualityURL = "https://air-quality-api.open-meteo.com/v1/air-quality"

	userAgent = "epd-weather/1.0"
)

// Requested variables. The parser reads every one of them.
var (
	currentFields = []string{
		"temperature_2m", "relative_humidity_2m", "apparent_temperature",
		"pressure_msl", "wind_speed_10m", "wind_direction_10m", "wind_gusts_10m",
		"weather_code", "uv_index", "visibility", "is_day",
	}
	hourlyFields = []string{
		"temperature_2m", "relative_humidity_2m", "precipitation_probability",
		"precipitation", "weather_code", "is_day",
	}
	dailyFields = []string{
		"temperature_2m_max", "temperature_2m_min", "sunrise", "sunset",
		"precipitation_probability_max", "precipitation_sum", "weather_code", "uv_index_max",
	}
	airQualityFields = []string{"us_aqi"}
)

// OpenMeteoClient fetches forecast and air quality data from Open-Meteo.
// It keeps no state between calls apart from its configuration and the
// optional outbound rate limiter.
type OpenMeteoClient struct {
	name          string
	forecastURL   string
	airQualityURL string

	httpClient *http.Client
	insecure   bool
	limiter    *rate.Limiter
	signal     diagnostics.SignalReporter
	sleep      Sleeper
}

// Option customizes an OpenMeteoClient.
type Option func(*OpenMeteoClient)

// WithHTTPClient replaces the HTTP client. WithInsecureSkipVerify has no
// effect on a supplied client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *OpenMeteoClient) { c.httpClient = client }
}

// WithBaseURLs points the client at other forecast and air quality URLs.
// Empty values keep the defaults.
func WithBaseURLs(forecastURL, airQualityURL string) Option {
	return func(c *OpenMeteoClient) {
		if forecastURL != "" {
			c.forecastURL = forecastURL
		}
		if airQualityURL != "" {
			c.airQualityURL = airQualityURL
		}
	}
}

// WithInsecureSkipVerify disables TLS certificate verification. Off unless
// explicitly requested.
func WithInsecureSkipVerify(skip bool) Option {
	return func(c *OpenMeteoClient) { c.insecure = skip }
}

// WithRateLimit limits outbound attempts to rps per second. rps <= 0
// disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *OpenMeteoClient) { c.limiter = newLimiter(rps, burst) }
}

// WithSignalReporter sets the source of the RSSI reported in errors.
func WithSignalReporter(r diagnostics.SignalReporter) Option {
	return func(c *OpenMeteoClient) { c.signal = r }
}

// WithSleeper replaces the pause between attempts.
func WithSleeper(s Sleeper) Option {
	return func(c *OpenMeteoClient) { c.sleep = s }
}

// NewOpenMeteoClient creates a client with certificate verification on.
func NewOpenMeteoClient(opts ...Option) *OpenMeteoClient {
	c := &OpenMeteoClient{
		name:          "openmeteo",
		forecastURL:   ForecastURL,
		airQualityURL: AirQualityURL,
		signal:        diagnostics.NoSignal{},
		sleep:         sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Transport: newTransport(c.insecure)}
	}
	if c.insecure {
		logger.Log.Warn("TLS certificate verification is disabled for Open-Meteo requests")
	}
	return c
}

// Name returns the provider name.
func (c *OpenMeteoClient) Name() string {
	return c.name
}

// FetchForecast fetches and parses current, 48 hourly and 8 daily records.
func (c *OpenMeteoClient) FetchForecast(ctx context.Context, loc weather.Location, cfg weather.FetchConfig) (weather.ForecastResponse, error) {
	u := c.forecastURL + "?" + forecastQuery(loc).Encode()
	parse := weather.ParseForecastAuto
	if tz := parseLocation(loc.Timezone); tz != nil {
		parse = func(body []byte) (weather.ForecastResponse, error) {
			return weather.ParseForecastIn(body, tz)
		}
	}

	return fetch(ctx, c, weather.EndpointForecast, u, cfg, parse)
}

// FetchAirQuality fetches and parses the current US AQI.
func (c *OpenMeteoClient) FetchAirQuality(ctx context.Context, loc weather.Location, cfg weather.FetchConfig) (weather.AirQualityResponse, error) {
	u := c.airQualityURL + "?" + airQualityQuery(loc).Encode()

	return fetch(ctx, c, weather.EndpointAirQuality, u, cfg, weather.ParseAirQuality)
}

// fetch runs the retry loop for rawURL and hands the body to parse. A parse
// failure is final; a malformed body does not improve on retry.
func fetch[T any](
	ctx context.Context,
	c *OpenMeteoClient,
	endpoint string,
	rawURL string,
	cfg weather.FetchConfig,
	parse func([]byte) (T, error),
) (T, error) {
	var zero T

	log := logger.Log.WithFields(logrus.Fields{
		"provider": c.name,
		"endpoint": endpoint,
		"fetch_id": uuid.NewString(),
	})
	log.WithField("url", rawURL).Debug("fetching")

	body, attempts, ferr := c.retryLoop(ctx, log, rawURL, cfg)
	if ferr != nil {
		ferr.Endpoint = endpoint
		c.annotate(ferr)
		if ferr.HasRSSI {
			log.WithFields(logrus.Fields{
				"rssi":   ferr.RSSI,
				"signal": diagnostics.SignalDescription(ferr.RSSI),
			}).Warn("fetch failed")
		}
		return zero, ferr
	}

	log.WithFields(logrus.Fields{
		"attempts": attempts,
		"bytes":    len(body),
	}).Debug("HTTP GET successful")

	result, err := parse(body)
	if err != nil {
		ferr = parseError(err)
		ferr.Endpoint = endpoint
		ferr.Attempts = attempts
		log.WithError(err).WithField("head", head(body, 200)).Error("JSON parsing failed")
		return zero, ferr
	}

	log.Info("data received successfully")
	diagnostics.LogHeapUsage()
	return result, nil
}

// annotate attaches the current RSSI reading to a transport or protocol failure.
func (c *OpenMeteoClient) annotate(ferr *FetchError) {
	if c.signal == nil || ferr.Kind == KindParse {
		return
	}
	if rssi, ok := c.signal.RSSI(); ok {
		ferr.RSSI = rssi
		ferr.HasRSSI = true
	}
}

func forecastQuery(loc weather.Location) url.Values {
	values := coordinates(loc)
	values.Set("current", strings.Join(currentFields, ","))
	values.Set("hourly", strings.Join(hourlyFields, ","))
	values.Set("daily", strings.Join(dailyFields, ","))
	values.Set("timezone", timezoneParam(loc.Timezone))
	values.Set("forecast_days", strconv.Itoa(weather.NumDaily))
	values.Set("forecast_hours", strconv.Itoa(weather.NumHourly))
	return values
}

func airQualityQuery(loc weather.Location) url.Values {
	values := coordinates(loc)
	values.Set("current", strings.Join(airQualityFields, ","))
	return values
}

func coordinates(loc weather.Location) url.Values {
	values := url.Values{}
	values.Set("latitude", fmt.Sprintf("%f", loc.Latitude))
	values.Set("longitude", fmt.Sprintf("%f", loc.Longitude))
	return values
}

func timezoneParam(tz string) string {
	if tz == "" {
		return "auto"
	}
	return tz
}

// parseLocation resolves the zone local timestamps are interpreted in. It
// returns nil for "auto", where the zone comes from the response. Names the
// runtime cannot load fall back to time.Local.
func parseLocation(tz string) *time.Location {
	if tz == "" || strings.EqualFold(tz, "auto") {
		return nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		logger.Log.WithError(err).WithField("timezone", tz).Warn("unknown timezone; using local time")
		return time.Local
	}
	return loc
}

func head(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}
