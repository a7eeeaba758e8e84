package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/sirupsen/logrus"

	"github.com/i474232898/epd-weather/internal/logger"
	"github.com/i474232898/epd-weather/internal/weather"
)

// Refresher is the part of weather.Service the scheduler drives.
type Refresher interface {
	Refresh(ctx context.Context, loc weather.Location) (weather.Snapshot, error)
}

// Scheduler periodically refreshes weather data for configured locations.
type Scheduler struct {
	scheduler  *gocron.Scheduler
	service    Refresher
	locations  []weather.Location
	interval   time.Duration
	jobTimeout time.Duration
}

// New creates a new Scheduler. jobTimeout bounds one refresh of one
// location; it should cover every retry of both endpoints.
func New(locations []weather.Location, interval, jobTimeout time.Duration, service Refresher) *Scheduler {
	if jobTimeout <= 0 {
		jobTimeout = 2 * time.Minute
	}

	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &Scheduler{
		scheduler:  s,
		service:    service,
		locations:  locations,
		interval:   interval,
		jobTimeout: jobTimeout,
	}
}

// Start schedules the periodic job and starts the underlying scheduler. The
// first run happens immediately.
func (s *Scheduler) Start() error {
	if len(s.locations) == 0 {
		logger.Log.Warn("scheduler: no locations configured; nothing to schedule")
		return nil
	}

	minutes := int(s.interval.Minutes())
	if minutes <= 0 {
		minutes = 30
	}

	_, err := s.scheduler.Every(minutes).Minutes().Do(s.RunOnce)
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

// RunOnce refreshes every location once and waits for all of them.
// Each location runs forecast then air quality sequentially.
func (s *Scheduler) RunOnce() {
	logger.Log.Info("scheduler: running weather refresh job")

	var wg sync.WaitGroup
	for _, loc := range s.locations {
		loc := loc
		wg.Add(1)
		go func() {
			defer wg.Done()

			ctx, cancel := context.WithTimeout(context.Background(), s.jobTimeout)
			defer cancel()

			if _, err := s.service.Refresh(ctx, loc); err != nil {
				logger.Log.WithFields(logrus.Fields{
					"location": loc.Key(),
				}).WithError(err).Error("scheduler: refresh failed")
			}
		}()
	}
	wg.Wait()
	logger.Log.Info("scheduler: completed weather refresh job")
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
