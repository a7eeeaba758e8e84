package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/i474232898/epd-weather/internal/weather"
)

type fakeRefresher struct {
	mu       sync.Mutex
	seen     map[string]int
	deadline bool
}

func (f *fakeRefresher) Refresh(ctx context.Context, loc weather.Location) (weather.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.seen == nil {
		f.seen = map[string]int{}
	}
	f.seen[loc.Key()]++
	_, f.deadline = ctx.Deadline()
	if loc.Latitude < 0 {
		return weather.Snapshot{}, errors.New("boom")
	}
	return weather.Snapshot{Location: loc}, nil
}

func TestRunOnceRefreshesEveryLocation(t *testing.T) {
	locs := []weather.Location{
		{Latitude: 52.52, Longitude: 13.42},
		{Latitude: 48.85, Longitude: 2.35},
		{Latitude: -33.87, Longitude: 151.21},
	}
	f := &fakeRefresher{}

	s := New(locs, time.Hour, 0, f)
	s.RunOnce()

	if len(f.seen) != len(locs) {
		t.Fatalf("expected %d locations refreshed, got %d", len(locs), len(f.seen))
	}
	for _, loc := range locs {
		if f.seen[loc.Key()] != 1 {
			t.Fatalf("expected one refresh for %s, got %d", loc.Key(), f.seen[loc.Key()])
		}
	}
	if !f.deadline {
		t.Fatalf("expected refresh context to carry a deadline")
	}
}

func TestStartWithoutLocationsIsNoop(t *testing.T) {
	s := New(nil, time.Minute, time.Second, &fakeRefresher{})
	if err := s.Start(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s.Stop()
}
