package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelvins/geocoder"
	"github.com/pkg/errors"

	"github.com/i474232898/epd-weather/internal/logger"
	"github.com/i474232898/epd-weather/internal/weather"
)

var validate = validator.New()

// AppConfig is the environment derived configuration.
type AppConfig struct {
	// Locations to track.
	Locations []weather.Location `validate:"required,min=1,dive"`

	// Fetch is the per-call retry and timeout policy.
	Fetch weather.FetchConfig

	// Outbound rate limiting (0 = off).
	RateLimitRPS   float64 `validate:"gte=0"`
	RateLimitBurst int     `validate:"gte=1"`

	// InsecureSkipVerify turns off TLS certificate checks. Opt-in only.
	InsecureSkipVerify bool

	// FetchInterval controls how often we refresh each location.
	FetchInterval time.Duration `validate:"gt=0"`

	// In-memory store retention.
	StoreMaxHistory int           `validate:"gte=0"` // max number of snapshots per location (0 = unlimited)
	StoreMaxAge     time.Duration `validate:"gte=0"` // max age of snapshots (0 = unlimited)

	Breaker weather.BreakerConfig

	LogLevel  string
	LogFormat string `validate:"oneof=text json"`

	Port string `validate:"required,numeric"`
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		logger.Log.Debugf("no .env file loaded: %v", err)
	}
	cfg := &AppConfig{}

	var err error
	if cfg.Fetch.Timeout, err = getenvDuration("HTTP_TIMEOUT", "10s"); err != nil {
		return nil, err
	}
	cfg.Fetch.RetryAttempts = getenvInt("API_RETRY_ATTEMPTS", 3)
	if cfg.Fetch.RetryDelay, err = getenvDuration("API_RETRY_DELAY", "5s"); err != nil {
		return nil, err
	}
	cfg.Fetch.MaxBodyBytes = int64(getenvInt("API_MAX_BODY_BYTES", 256<<10))

	cfg.RateLimitRPS = getenvFloat("API_RATE_LIMIT_RPS", 0)
	cfg.RateLimitBurst = getenvInt("API_RATE_LIMIT_BURST", 1)
	cfg.InsecureSkipVerify = getenvBool("TLS_INSECURE_SKIP_VERIFY", false)

	// Refresh interval: default 30 minutes.
	if cfg.FetchInterval, err = getenvDuration("FETCH_INTERVAL", "30m"); err != nil {
		return nil, err
	}

	// Store retention.
	cfg.StoreMaxHistory = getenvInt("STORE_MAX_HISTORY", 48) // 24h at 30-minute intervals
	if cfg.StoreMaxAge, err = getenvDuration("STORE_MAX_AGE", "24h"); err != nil {
		return nil, err
	}

	if cfg.Breaker.FailureThreshold, err = getenvUint32("BREAKER_FAILURE_THRESHOLD", 5); err != nil {
		return nil, err
	}
	if cfg.Breaker.Cooldown, err = getenvDuration("BREAKER_COOLDOWN", "10m"); err != nil {
		return nil, err
	}

	cfg.LogLevel = getenvDefault("LOG_LEVEL", "info")
	cfg.LogFormat = getenvDefault("LOG_FORMAT", "text")
	cfg.Port = getenvDefault("PORT", "8080")

	locs, err := loadLocations(getenvDefault("WEATHER_TIMEZONE", "auto"))
	if err != nil {
		return nil, err
	}
	cfg.Locations = locs

	if err := validate.Struct(cfg); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}

	return cfg, nil
}

// loadLocations reads coordinate lists, or geocodes city/country lists when
// no coordinates are configured.
func loadLocations(timezone string) ([]weather.Location, error) {
	lat := os.Getenv("WEATHER_LATITUDE")
	lon := os.Getenv("WEATHER_LONGITUDE")
	if lat != "" || lon != "" {
		return parseCoordinates(lat, lon, timezone)
	}

	city := os.Getenv("WEATHER_LOCATION_CITY")
	country := os.Getenv("WEATHER_LOCATION_COUNTRY")
	if city == "" {
		return nil, errors.New("no location configured: set WEATHER_LATITUDE/WEATHER_LONGITUDE or WEATHER_LOCATION_CITY")
	}
	return geocodeLocations(city, country, os.Getenv("GEOCODER_API_KEY"), timezone)
}

func parseCoordinates(lat, lon, timezone string) ([]weather.Location, error) {
	lats := splitList(lat)
	lons := splitList(lon)
	if len(lats) != len(lons) {
		return nil, errors.New("number of latitudes and longitudes must be the same")
	}

	locs := make([]weather.Location, 0, len(lats))
	for i := range lats {
		la, err := strconv.ParseFloat(lats[i], 64)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid latitude %q", lats[i])
		}
		lo, err := strconv.ParseFloat(lons[i], 64)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid longitude %q", lons[i])
		}
		locs = append(locs, weather.Location{Latitude: la, Longitude: lo, Timezone: timezone})
	}
	return locs, nil
}

// geocode resolves a city/country pair to coordinates. Replaced in tests.
var geocode = func(apiKey, city, country string) (float64, float64, error) {
	geocoder.ApiKey = apiKey
	loc, err := geocoder.Geocoding(geocoder.Address{City: city, Country: country})
	if err != nil {
		return 0, 0, err
	}
	return loc.Latitude, loc.Longitude, nil
}

func geocodeLocations(city, country, apiKey, timezone string) ([]weather.Location, error) {
	if apiKey == "" {
		return nil, errors.New("GEOCODER_API_KEY is required to resolve WEATHER_LOCATION_CITY")
	}

	cities := splitList(city)
	countries := splitList(country)
	if len(cities) != len(countries) {
		return nil, errors.New("number of cities and countries must be the same")
	}

	locs := make([]weather.Location, 0, len(cities))
	for i := range cities {
		la, lo, err := geocode(apiKey, cities[i], countries[i])
		if err != nil {
			return nil, errors.Wrapf(err, "geocoding %s,%s", cities[i], countries[i])
		}
		logger.Log.Infof("geocoded %s,%s to %.4f,%.4f", cities[i], countries[i], la, lo)
		locs = append(locs, weather.Location{Latitude: la, Longitude: lo, Timezone: timezone})
	}
	return locs, nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getenvUint32(key string, def uint32) (uint32, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseUint(strings.TrimSpace(v), 10, 32)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid %s", key)
	}
	return uint32(n), nil
}

func getenvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			return f
		}
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getenvDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(getenvDefault(key, def))
	if err != nil {
		return 0, errors.Wrapf(err, "invalid %s", key)
	}
	return d, nil
}
