package weather

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/i474232898/epd-weather/internal/logger"
)

// Endpoint names used in logs, breaker names and Snapshot.Errors.
const (
	EndpointForecast   = "forecast"
	EndpointAirQuality = "airQuality"
)

// ErrNoData is returned by Refresh when neither endpoint produced data.
var ErrNoData = errors.New("no weather data fetched")

// BreakerConfig controls the circuit breakers guarding scheduled refreshes.
// A zero FailureThreshold disables tripping.
type BreakerConfig struct {
	FailureThreshold uint32
	Cooldown         time.Duration
}

// Service refreshes forecast and air quality for a location and keeps the
// results in a Store.
type Service struct {
	store   Store
	fetcher Fetcher
	cfg     FetchConfig

	forecastBreaker *gobreaker.CircuitBreaker
	airBreaker      *gobreaker.CircuitBreaker

	now func() time.Time
}

// NewService creates a new Service.
func NewService(store Store, fetcher Fetcher, cfg FetchConfig, breaker BreakerConfig) *Service {
	return &Service{
		store:           store,
		fetcher:         fetcher,
		cfg:             cfg,
		forecastBreaker: newBreaker(EndpointForecast, breaker),
		airBreaker:      newBreaker(EndpointAirQuality, breaker),
		now:             time.Now,
	}
}

func newBreaker(name string, cfg BreakerConfig) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return cfg.FailureThreshold > 0 && counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Log.WithFields(logrus.Fields{
				"endpoint": name,
				"from":     from.String(),
				"to":       to.String(),
			}).Warn("refresh breaker changed state")
		},
	})
}

// Refresh fetches the forecast and then the air quality for loc and stores
// a snapshot. An endpoint that fails keeps its value from the previous
// snapshot and its error is recorded in Snapshot.Errors. When both fail
// nothing is stored and ErrNoData is returned.
func (s *Service) Refresh(ctx context.Context, loc Location) (Snapshot, error) {
	log := logger.Log.WithField("location", loc.Key())

	snap := Snapshot{
		ID:        uuid.NewString(),
		Location:  loc,
		FetchedAt: s.now().UTC(),
	}
	if prev, err := s.store.GetLatest(loc); err == nil {
		snap.Forecast = prev.Forecast
		snap.AirQuality = prev.AirQuality
	}

	var failures int

	forecast, err := s.fetchForecast(ctx, loc)
	if err != nil {
		failures++
		snap.addError(EndpointForecast, err)
		log.WithError(err).Error("forecast refresh failed")
	} else {
		snap.Forecast = &forecast
	}

	air, err := s.fetchAirQuality(ctx, loc)
	if err != nil {
		failures++
		snap.addError(EndpointAirQuality, err)
		log.WithError(err).Error("air quality refresh failed")
	} else {
		snap.AirQuality = &air
	}

	if failures == 2 {
		log.Warn("no endpoint succeeded; keeping last good snapshot if any")
		return Snapshot{}, errors.Wrapf(ErrNoData, "refresh %s: forecast: %s; air quality: %s",
			loc.Key(), snap.Errors[EndpointForecast], snap.Errors[EndpointAirQuality])
	}

	s.store.SaveSnapshot(loc, snap)
	log.WithField("snapshot", snap.ID).Info("weather snapshot stored")
	return snap, nil
}

func (s *Service) fetchForecast(ctx context.Context, loc Location) (ForecastResponse, error) {
	result, err := s.forecastBreaker.Execute(func() (interface{}, error) {
		return s.fetcher.FetchForecast(ctx, loc, s.cfg)
	})
	if err != nil {
		return ForecastResponse{}, breakerError(err)
	}
	return result.(ForecastResponse), nil
}

func (s *Service) fetchAirQuality(ctx context.Context, loc Location) (AirQualityResponse, error) {
	result, err := s.airBreaker.Execute(func() (interface{}, error) {
		return s.fetcher.FetchAirQuality(ctx, loc, s.cfg)
	})
	if err != nil {
		return AirQualityResponse{}, breakerError(err)
	}
	return result.(AirQualityResponse), nil
}

func breakerError(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return errors.Wrap(err, "refresh skipped")
	}
	return err
}

func (s *Snapshot) addError(endpoint string, err error) {
	if s.Errors == nil {
		s.Errors = make(map[string]string)
	}
	s.Errors[endpoint] = err.Error()
}

// GetLatest delegates to the underlying store.
func (s *Service) GetLatest(loc Location) (Snapshot, error) {
	return s.store.GetLatest(loc)
}

// GetRange delegates to the underlying store.
func (s *Service) GetRange(loc Location, from, to time.Time) ([]Snapshot, error) {
	return s.store.GetRange(loc, from, to)
}
