package providers

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/i474232898/epd-weather/internal/weather"
)

// Sleeper pauses between attempts. It returns early with ctx.Err() when ctx
// is done.
type Sleeper func(ctx context.Context, d time.Duration) error

var (
	errUnexpected   = errors.New("unexpected status code")
	errBodyTooLarge = errors.New("response body exceeds limit")
	errNoHTTPClient = errors.New("http client not configured")
)

// drainLimit bounds how much of an unread body is discarded before close.
const drainLimit = 64 << 10

// retryLoop issues GET rawURL until it gets a 200 body, a non-retryable
// failure, or cfg.RetryAttempts attempts have been made. Only transport
// failures are retried, with a fixed cfg.RetryDelay in between.
func (c *OpenMeteoClient) retryLoop(ctx context.Context, log *logrus.Entry, rawURL string, cfg weather.FetchConfig) ([]byte, int, *FetchError) {
	if c.httpClient == nil {
		return nil, 0, protocolError(ReasonUnknown, errNoHTTPClient)
	}

	maxAttempts := cfg.RetryAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	for attempt := 1; ; attempt++ {
		if attempt > 1 {
			log.Infof("retry attempt %d/%d", attempt, maxAttempts)
		}

		body, ferr := c.attempt(ctx, rawURL, cfg)
		if ferr == nil {
			return body, attempt, nil
		}
		ferr.Attempts = attempt

		entry := log.WithFields(logrus.Fields{
			"attempt": attempt,
			"kind":    ferr.Kind.String(),
			"reason":  ferr.Reason,
		})
		if ferr.Err != nil {
			entry = entry.WithError(ferr.Err)
		}

		if !ferr.Retryable() || attempt >= maxAttempts {
			entry.Error("request failed")
			return nil, attempt, ferr
		}

		entry.Warnf("retryable error, waiting %s before retry", cfg.RetryDelay)

		// Drop pooled connections so the next attempt dials fresh.
		c.httpClient.CloseIdleConnections()

		if err := c.sleep(ctx, cfg.RetryDelay); err != nil {
			ferr = protocolError(ReasonCancelled, err)
			ferr.Attempts = attempt
			return nil, attempt, ferr
		}
	}
}

// attempt performs one GET and returns the buffered body of a 200 response.
// The response body is closed on every path.
func (c *OpenMeteoClient) attempt(ctx context.Context, rawURL string, cfg weather.FetchConfig) ([]byte, *FetchError) {
	if err := ctx.Err(); err != nil {
		return nil, protocolError(ReasonCancelled, err)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, protocolError(ReasonCancelled, err)
		}
	}

	attemptCtx := ctx
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, protocolError(ReasonEncoding, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classify(ctx, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, drainLimit))
		resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp.StatusCode)
	}

	body, err := readBody(resp.Body, cfg.MaxBodyBytes)
	if err != nil {
		if errors.Is(err, errBodyTooLarge) {
			return nil, protocolError(ReasonTooLarge, err)
		}
		return nil, classify(ctx, err)
	}
	return body, nil
}

// readBody reads r fully, failing with errBodyTooLarge past limit bytes.
func readBody(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		return io.ReadAll(r)
	}
	body, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > limit {
		return nil, errBodyTooLarge
	}
	return body, nil
}

// classify maps an error from Do or from reading the body onto the failure
// taxonomy. ctx is the caller's context, not the per-attempt one, so an
// attempt timeout is a Read Timeout while a cancelled caller is Cancelled.
func classify(ctx context.Context, err error) *FetchError {
	if ctx.Err() != nil {
		return protocolError(ReasonCancelled, err)
	}

	var (
		netErr  net.Error
		dnsErr  *net.DNSError
		opErr   *net.OpError
		certErr *tls.CertificateVerificationError
	)

	switch {
	case errors.As(err, &certErr):
		return protocolError(ReasonTLS, err)
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return transportError(ReasonReadTimeout, err)
	case errors.Is(err, syscall.ECONNREFUSED):
		return transportError(ReasonConnectionRefused, err)
	case errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNABORTED),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, io.EOF):
		return transportError(ReasonConnectionLost, err)
	case errors.Is(err, syscall.ENETUNREACH),
		errors.Is(err, syscall.EHOSTUNREACH),
		errors.Is(err, syscall.ENETDOWN),
		errors.As(err, &dnsErr):
		return transportError(ReasonNotConnected, err)
	case errors.As(err, &opErr) && opErr.Op == "dial":
		return transportError(ReasonNotConnected, err)
	case containsAny(strings.ToLower(err.Error()), "connection reset", "broken pipe", "server closed idle connection"):
		return transportError(ReasonConnectionLost, err)
	default:
		return protocolError(ReasonUnknown, err)
	}
}

// containsAny reports whether s contains any of subs. Some platforms only
// surface a dropped connection through the error text.
func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	select {
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func newLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

func newTransport(insecureSkipVerify bool) *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.TLSClientConfig = &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: insecureSkipVerify,
	}
	return t
}
