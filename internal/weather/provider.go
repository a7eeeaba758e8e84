package weather

import (
	"context"
	"time"
)

// FetchConfig is the per-call policy of a fetch. It is passed at call time
// so tests can use small attempt counts and zero delays.
type FetchConfig struct {
	// Timeout bounds a single attempt, connection and body read included.
	Timeout time.Duration `validate:"gt=0"`

	// RetryAttempts is the total number of attempts; values below 1 mean 1.
	RetryAttempts int `validate:"gte=1"`

	// RetryDelay is the fixed pause between attempts.
	RetryDelay time.Duration `validate:"gte=0"`

	// MaxBodyBytes caps the buffered response body (0 = unlimited).
	MaxBodyBytes int64 `validate:"gte=0"`
}

// Fetcher abstracts the remote weather API (Open-Meteo).
type Fetcher interface {
	FetchForecast(ctx context.Context, loc Location, cfg FetchConfig) (ForecastResponse, error)
	FetchAirQuality(ctx context.Context, loc Location, cfg FetchConfig) (AirQualityResponse, error)
}

// Store is the contract the in-memory store must satisfy.
type Store interface {
	SaveSnapshot(loc Location, snapshot Snapshot)
	GetLatest(loc Location) (Snapshot, error)
	GetRange(loc Location, from, to time.Time) ([]Snapshot, error)
}
