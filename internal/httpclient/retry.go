package httpclient

import (
	"io"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/cenkalti/backoff/v4"
)

var DefaultRetryStatuses = []int{
	http.StatusTooManyRequests,
	http.StatusInternalServerError,
	http.StatusBadGateway,
	http.StatusServiceUnavailable,
	http.StatusGatewayTimeout,
}

// Retry wraps the client transport so idempotent requests are repeated on
// transport errors and on the configured statuses. Waits grow as
// factor, 2*factor, 4*factor...
type Retry struct {
	NopStrategy
	retries  int
	factor   time.Duration
	statuses []int
	logger   *slog.Logger
}

func NewRetry(retries int, factor time.Duration, statuses []int, logger *slog.Logger) *Retry {
	if len(statuses) == 0 {
		statuses = DefaultRetryStatuses
	}
	return &Retry{
		retries:  retries,
		factor:   factor,
		statuses: statuses,
		logger:   logger,
	}
}

func (s *Retry) ApplyToSession(c *http.Client) {
	next := c.Transport
	if next == nil {
		next = http.DefaultTransport
	}
	c.Transport = &retryTransport{next: next, policy: s}
}

func (s *Retry) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.factor
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0
	return backoff.WithMaxRetries(b, uint64(max(s.retries, 0)))
}

type retryTransport struct {
	next   http.RoundTripper
	policy *Retry
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		return t.next.RoundTrip(req)
	}

	ctx := req.Context()
	b := backoff.WithContext(t.policy.newBackOff(), ctx)
	b.Reset()

	for attempt := 1; ; attempt++ {
		resp, err := t.next.RoundTrip(req)
		if !t.shouldRetry(resp, err) {
			return resp, err
		}

		wait := b.NextBackOff()
		if wait == backoff.Stop {
			// out of attempts: hand back whatever the last try produced
			return resp, err
		}

		status := 0
		if resp != nil {
			status = resp.StatusCode
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}

		t.policy.logger.Warn("request failed, retrying",
			"url", req.URL.String(),
			"attempt", attempt,
			"status", status,
			"backoff", wait,
			"error", err,
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (t *retryTransport) shouldRetry(resp *http.Response, err error) bool {
	if err != nil {
		return true
	}
	return slices.Contains(t.policy.statuses, resp.StatusCode)
}
