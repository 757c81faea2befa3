package httpclient

import (
	"context"
	"math/rand/v2"
	"net/http"
	"time"
)

// Strategy is one anti-blocking behaviour. Strategies are applied in the
// order they are registered with the client.
type Strategy interface {
	// ApplyToSession runs once, when the client is built.
	ApplyToSession(c *http.Client)
	// ApplyToHeaders adjusts the outgoing headers of every request.
	ApplyToHeaders(h http.Header)
	// PreRequest runs before every request. An error aborts the request.
	PreRequest(ctx context.Context) error
	// PostRequest runs after a response was received.
	PostRequest(ctx context.Context, resp *http.Response)
}

// NopStrategy implements every hook as a no-op; embed it to override only what matters.
type NopStrategy struct{}

func (NopStrategy) ApplyToSession(*http.Client)                 {}
func (NopStrategy) ApplyToHeaders(http.Header)                  {}
func (NopStrategy) PreRequest(context.Context) error            { return nil }
func (NopStrategy) PostRequest(context.Context, *http.Response) {}

var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/14.0 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:89.0) Gecko/20100101 Firefox/89.0",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/92.0.4515.107 Safari/537.36",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 14_6 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/14.0 Mobile/15E148 Safari/604.1",
}

// UserAgentRotation sets User-Agent on every request, either the fixed value
// or a random pick from the pool.
type UserAgentRotation struct {
	NopStrategy
	pool  []string
	fixed string
}

func NewUserAgentRotation(pool []string, fixed string) *UserAgentRotation {
	if len(pool) == 0 {
		pool = DefaultUserAgents
	}
	return &UserAgentRotation{pool: pool, fixed: fixed}
}

func (s *UserAgentRotation) ApplyToHeaders(h http.Header) {
	if s.fixed != "" {
		h.Set("User-Agent", s.fixed)
		return
	}
	h.Set("User-Agent", s.pool[rand.IntN(len(s.pool))])
}

// StandardHeaders adds the headers a desktop browser sends. Values already
// present on the request win.
type StandardHeaders struct {
	NopStrategy
}

var standardHeaders = [][2]string{
	{"Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8"},
	{"Accept-Language", "en-US,en;q=0.5"},
	{"Accept-Encoding", "gzip, deflate"},
	{"Connection", "keep-alive"},
	{"Upgrade-Insecure-Requests", "1"},
	{"Cache-Control", "max-age=0"},
}

func (StandardHeaders) ApplyToHeaders(h http.Header) {
	for _, kv := range standardHeaders {
		if h.Get(kv[0]) == "" {
			h.Set(kv[0], kv[1])
		}
	}
}

// Throttling sleeps before every request. With jitter the delay is uniform in
// [min, max], otherwise it is always min.
type Throttling struct {
	NopStrategy
	min    time.Duration
	max    time.Duration
	jitter bool
}

func NewThrottling(min, max time.Duration, jitter bool) *Throttling {
	if max < min {
		max = min
	}
	return &Throttling{min: min, max: max, jitter: jitter}
}

func (s *Throttling) Delay() time.Duration {
	if !s.jitter || s.max == s.min {
		return s.min
	}
	return s.min + rand.N(s.max-s.min+1)
}

func (s *Throttling) PreRequest(ctx context.Context) error {
	delay := s.Delay()
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
