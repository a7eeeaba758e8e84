package providers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/i474232898/epd-weather/internal/diagnostics"
	"github.com/i474232898/epd-weather/internal/weather"
)

const forecastBody = `{
	"latitude": 52.52,
	"longitude": 13.42,
	"timezone": "UTC",
	"utc_offset_seconds": 0,
	"current": {"temperature_2m": 3.5, "pressure_msl": 1009.7},
	"hourly": {"time": ["2024-01-15T14:00"], "temperature_2m": [3.1]},
	"daily": {
		"time": ["2024-01-15"],
		"sunrise": ["2024-01-15T07:31"],
		"sunset": ["2024-01-15T16:45"]
	}
}`

var testLoc = weather.Location{Latitude: 52.52, Longitude: 13.42, Timezone: "UTC"}

func testConfig(attempts int) weather.FetchConfig {
	return weather.FetchConfig{
		Timeout:       2 * time.Second,
		RetryAttempts: attempts,
		RetryDelay:    time.Second,
		MaxBodyBytes:  1 << 20,
	}
}

// sleepRecorder is a Sleeper that records requested delays without waiting.
type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return ctx.Err()
}

func (s *sleepRecorder) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.delays)
}

// flakyTransport fails the first `failures` round trips with err.
type flakyTransport struct {
	mu       sync.Mutex
	failures int
	calls    int
	err      error
	next     http.RoundTripper
}

func (f *flakyTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	f.mu.Lock()
	f.calls++
	fail := f.calls <= f.failures
	f.mu.Unlock()

	if fail {
		return nil, f.err
	}
	return f.next.RoundTrip(r)
}

// countingServer serves body with status and counts requests.
func countingServer(t *testing.T, status int, body string) (*httptest.Server, *int) {
	t.Helper()

	var (
		mu   sync.Mutex
		hits int
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits++
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func asFetchError(t *testing.T, err error) *FetchError {
	t.Helper()

	var ferr *FetchError
	if !errors.As(err, &ferr) {
		t.Fatalf("expected *FetchError, got %T: %v", err, err)
	}
	return ferr
}

func TestFetchForecastSuccess(t *testing.T) {
	srv, hits := countingServer(t, http.StatusOK, forecastBody)
	sleeper := &sleepRecorder{}
	client := NewOpenMeteoClient(WithBaseURLs(srv.URL, srv.URL), WithSleeper(sleeper.sleep))

	r, err := client.FetchForecast(context.Background(), testLoc, testConfig(3))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *hits != 1 || sleeper.count() != 0 {
		t.Fatalf("expected 1 request and no delays, got %d/%d", *hits, sleeper.count())
	}
	if r.Current.Temperature != 3.5 || r.Current.Pressure != 1009 {
		t.Fatalf("unexpected current: %+v", r.Current)
	}
	wantSunrise := time.Date(2024, 1, 15, 7, 31, 0, 0, time.UTC).Unix()
	if r.Current.Sunrise != wantSunrise || r.Daily[0].Sunrise != wantSunrise {
		t.Fatalf("expected sunrise %d, got current %d daily %d", wantSunrise, r.Current.Sunrise, r.Daily[0].Sunrise)
	}
}

func TestFetchForecastRequestsFixedFieldSet(t *testing.T) {
	var query map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query()
		_, _ = w.Write([]byte(forecastBody))
	}))
	defer srv.Close()

	client := NewOpenMeteoClient(WithBaseURLs(srv.URL, srv.URL))
	if _, err := client.FetchForecast(context.Background(), testLoc, testConfig(1)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expect := map[string]string{
		"latitude":       "52.520000",
		"longitude":      "13.420000",
		"timezone":       "UTC",
		"forecast_days":  "8",
		"forecast_hours": "48",
		"current":        strings.Join(currentFields, ","),
		"hourly":         strings.Join(hourlyFields, ","),
		"daily":          strings.Join(dailyFields, ","),
	}
	for k, want := range expect {
		if got := query[k]; len(got) != 1 || got[0] != want {
			t.Fatalf("query %s: expected %q, got %v", k, want, got)
		}
	}
}

func TestFetchAirQuality(t *testing.T) {
	var gotCurrent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCurrent = r.URL.Query().Get("current")
		_, _ = w.Write([]byte(`{"current":{"us_aqi":42}}`))
	}))
	defer srv.Close()

	client := NewOpenMeteoClient(WithBaseURLs("", srv.URL))
	r, err := client.FetchAirQuality(context.Background(), testLoc, testConfig(1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.AQI != 42 || gotCurrent != "us_aqi" {
		t.Fatalf("expected AQI 42 for current=us_aqi, got %d for %q", r.AQI, gotCurrent)
	}
}

func TestFetchRetriesTransportFailuresThenSucceeds(t *testing.T) {
	const attempts = 4

	srv, hits := countingServer(t, http.StatusOK, forecastBody)
	transport := &flakyTransport{failures: attempts - 1, err: syscall.ECONNRESET, next: http.DefaultTransport}
	sleeper := &sleepRecorder{}

	client := NewOpenMeteoClient(
		WithBaseURLs(srv.URL, srv.URL),
		WithHTTPClient(&http.Client{Transport: transport}),
		WithSleeper(sleeper.sleep),
	)

	r, err := client.FetchForecast(context.Background(), testLoc, testConfig(attempts))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Current.Temperature != 3.5 {
		t.Fatalf("unexpected record: %+v", r.Current)
	}
	if transport.calls != attempts || *hits != 1 {
		t.Fatalf("expected %d round trips and 1 server hit, got %d/%d", attempts, transport.calls, *hits)
	}
	if sleeper.count() != attempts-1 {
		t.Fatalf("expected %d delays, got %d", attempts-1, sleeper.count())
	}
	for _, d := range sleeper.delays {
		if d != time.Second {
			t.Fatalf("expected fixed delay of 1s, got %s", d)
		}
	}
}

func TestFetchExhaustsRetries(t *testing.T) {
	transport := &flakyTransport{failures: 100, err: syscall.ECONNRESET, next: http.DefaultTransport}
	sleeper := &sleepRecorder{}

	client := NewOpenMeteoClient(
		WithBaseURLs("http://open-meteo.invalid", "http://open-meteo.invalid"),
		WithHTTPClient(&http.Client{Transport: transport}),
		WithSleeper(sleeper.sleep),
		WithSignalReporter(diagnostics.StaticSignal(-71)),
	)

	_, err := client.FetchForecast(context.Background(), testLoc, testConfig(3))
	ferr := asFetchError(t, err)

	if ferr.Kind != KindTransport || ferr.Reason != ReasonConnectionLost {
		t.Fatalf("expected transport/Connection Lost, got %s/%s", ferr.Kind, ferr.Reason)
	}
	if ferr.Attempts != 3 || transport.calls != 3 || sleeper.count() != 2 {
		t.Fatalf("expected 3 attempts and 2 delays, got %d attempts %d calls %d delays",
			ferr.Attempts, transport.calls, sleeper.count())
	}
	if got, want := err.Error(), "Connection Lost RSSI:-71dBm (after 3 attempts)"; got != want {
		t.Fatalf("expected message %q, got %q", want, got)
	}
	if !errors.Is(err, syscall.ECONNRESET) {
		t.Fatalf("expected error to wrap ECONNRESET")
	}
	if ferr.Endpoint != weather.EndpointForecast {
		t.Fatalf("expected endpoint %q, got %q", weather.EndpointForecast, ferr.Endpoint)
	}
}

func TestFetchHTTPStatusIsNotRetried(t *testing.T) {
	srv, hits := countingServer(t, http.StatusNotFound, `{"error":true,"reason":"not found"}`)
	sleeper := &sleepRecorder{}
	client := NewOpenMeteoClient(WithBaseURLs(srv.URL, srv.URL), WithSleeper(sleeper.sleep))

	_, err := client.FetchForecast(context.Background(), testLoc, testConfig(3))
	ferr := asFetchError(t, err)

	if ferr.Kind != KindProtocol || ferr.StatusCode != http.StatusNotFound {
		t.Fatalf("expected protocol error with status 404, got %s/%d", ferr.Kind, ferr.StatusCode)
	}
	if *hits != 1 || sleeper.count() != 0 || ferr.Attempts != 1 {
		t.Fatalf("expected a single attempt without delay, got %d hits %d delays", *hits, sleeper.count())
	}
	if err.Error() != "HTTP 404" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestFetchServerErrorIsNotRetried(t *testing.T) {
	srv, hits := countingServer(t, http.StatusServiceUnavailable, ``)
	client := NewOpenMeteoClient(WithBaseURLs(srv.URL, srv.URL), WithSleeper((&sleepRecorder{}).sleep))

	_, err := client.FetchAirQuality(context.Background(), testLoc, testConfig(3))
	if ferr := asFetchError(t, err); ferr.Retryable() || *hits != 1 {
		t.Fatalf("expected one non-retryable attempt, got retryable=%v hits=%d", ferr.Retryable(), *hits)
	}
}

func TestFetchMalformedBodyIsNotRetried(t *testing.T) {
	srv, hits := countingServer(t, http.StatusOK, `{"latitude": 52.5, "current": {`)
	sleeper := &sleepRecorder{}
	client := NewOpenMeteoClient(
		WithBaseURLs(srv.URL, srv.URL),
		WithSleeper(sleeper.sleep),
		WithSignalReporter(diagnostics.StaticSignal(-60)),
	)

	_, err := client.FetchForecast(context.Background(), testLoc, testConfig(3))
	ferr := asFetchError(t, err)

	if ferr.Kind != KindParse || !errors.Is(err, weather.ErrMalformed) {
		t.Fatalf("expected parse error wrapping ErrMalformed, got %s: %v", ferr.Kind, err)
	}
	if *hits != 1 || sleeper.count() != 0 || ferr.Attempts != 1 {
		t.Fatalf("expected a single attempt without delay, got %d hits %d delays", *hits, sleeper.count())
	}
	if !strings.HasPrefix(err.Error(), "JSON parse: ") || strings.Contains(err.Error(), "RSSI") {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestFetchConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	sleeper := &sleepRecorder{}
	client := NewOpenMeteoClient(WithBaseURLs(url, url), WithSleeper(sleeper.sleep))

	_, err := client.FetchForecast(context.Background(), testLoc, testConfig(2))
	ferr := asFetchError(t, err)

	if ferr.Reason != ReasonConnectionRefused || !ferr.Retryable() {
		t.Fatalf("expected retryable Connection Refused, got %s (%v)", ferr.Reason, ferr.Err)
	}
	if ferr.Attempts != 2 || sleeper.count() != 1 {
		t.Fatalf("expected 2 attempts and 1 delay, got %d/%d", ferr.Attempts, sleeper.count())
	}
	if ferr.HasRSSI {
		t.Fatalf("expected no RSSI without a signal reporter reading")
	}
}

func TestFetchReadTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	cfg := testConfig(2)
	cfg.Timeout = 50 * time.Millisecond

	client := NewOpenMeteoClient(WithBaseURLs(srv.URL, srv.URL), WithSleeper((&sleepRecorder{}).sleep))
	_, err := client.FetchForecast(context.Background(), testLoc, cfg)
	ferr := asFetchError(t, err)

	if ferr.Reason != ReasonReadTimeout || ferr.Attempts != 2 {
		t.Fatalf("expected Read Timeout after 2 attempts, got %s after %d", ferr.Reason, ferr.Attempts)
	}
}

func TestFetchBodyTooLarge(t *testing.T) {
	srv, hits := countingServer(t, http.StatusOK, forecastBody)
	client := NewOpenMeteoClient(WithBaseURLs(srv.URL, srv.URL))

	cfg := testConfig(3)
	cfg.MaxBodyBytes = 16

	_, err := client.FetchForecast(context.Background(), testLoc, cfg)
	ferr := asFetchError(t, err)
	if ferr.Reason != ReasonTooLarge || ferr.Retryable() || *hits != 1 {
		t.Fatalf("expected one non-retryable Response Too Large, got %s hits=%d", ferr.Reason, *hits)
	}
}

func TestFetchVerifiesCertificatesByDefault(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"current":{"us_aqi":7}}`))
	}))
	defer srv.Close()

	sleeper := &sleepRecorder{}
	client := NewOpenMeteoClient(WithBaseURLs(srv.URL, srv.URL), WithSleeper(sleeper.sleep))
	_, err := client.FetchAirQuality(context.Background(), testLoc, testConfig(3))
	ferr := asFetchError(t, err)
	if ferr.Reason != ReasonTLS || ferr.Attempts != 1 || sleeper.count() != 0 {
		t.Fatalf("expected a single TLS verification failure, got %s after %d attempts", ferr.Reason, ferr.Attempts)
	}

	insecure := NewOpenMeteoClient(WithBaseURLs(srv.URL, srv.URL), WithInsecureSkipVerify(true))
	r, err := insecure.FetchAirQuality(context.Background(), testLoc, testConfig(1))
	if err != nil {
		t.Fatalf("unexpected error with verification disabled: %v", err)
	}
	if r.AQI != 7 {
		t.Fatalf("expected AQI 7, got %d", r.AQI)
	}
}

func TestFetchCancelledContext(t *testing.T) {
	srv, hits := countingServer(t, http.StatusOK, forecastBody)
	client := NewOpenMeteoClient(WithBaseURLs(srv.URL, srv.URL), WithRateLimit(10, 1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.FetchForecast(ctx, testLoc, testConfig(3))
	ferr := asFetchError(t, err)
	if ferr.Reason != ReasonCancelled || *hits != 0 {
		t.Fatalf("expected Cancelled without requests, got %s hits=%d", ferr.Reason, *hits)
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected error to wrap context.Canceled")
	}
}

func TestFetchAttemptsBelowOneMeansOne(t *testing.T) {
	transport := &flakyTransport{failures: 100, err: syscall.ECONNREFUSED, next: http.DefaultTransport}
	sleeper := &sleepRecorder{}
	client := NewOpenMeteoClient(
		WithBaseURLs("http://open-meteo.invalid", "http://open-meteo.invalid"),
		WithHTTPClient(&http.Client{Transport: transport}),
		WithSleeper(sleeper.sleep),
	)

	_, err := client.FetchAirQuality(context.Background(), testLoc, testConfig(0))
	ferr := asFetchError(t, err)
	if transport.calls != 1 || sleeper.count() != 0 {
		t.Fatalf("expected a single attempt, got %d calls %d delays", transport.calls, sleeper.count())
	}
	if err.Error() != "Connection Refused" || ferr.Attempts != 1 {
		t.Fatalf("unexpected error %q", err.Error())
	}
}

func TestFetchForecastAutoTimezoneUsesResponseZone(t *testing.T) {
	var gotTZ string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTZ = r.URL.Query().Get("timezone")
		_, _ = w.Write([]byte(`{"timezone":"Nowhere/Station","utc_offset_seconds":7200,"hourly":{"time":["2024-01-15T14:00"]}}`))
	}))
	defer srv.Close()

	client := NewOpenMeteoClient(WithBaseURLs(srv.URL, srv.URL))
	loc := weather.Location{Latitude: 52.52, Longitude: 13.42, Timezone: "auto"}
	r, err := client.FetchForecast(context.Background(), loc, testConfig(1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotTZ != "auto" {
		t.Fatalf("expected timezone=auto in the request, got %q", gotTZ)
	}
	if want := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC).Unix(); r.Hourly[0].Time != want {
		t.Fatalf("expected %d, got %d", want, r.Hourly[0].Time)
	}
}
