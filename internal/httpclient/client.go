package httpclient

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const maxBodySize = 32 << 20

const (
	DefaultRetries     = 3
	DefaultBackoffBase = 300 * time.Millisecond
	DefaultMinDelay    = 1 * time.Second
	DefaultMaxDelay    = 3 * time.Second
	DefaultTimeout     = 30 * time.Second
)

// Config zero values mean the defaults above: three retries, a 0.3s backoff
// base and a jittered 1-3s delay before each request. Negative Retries turns
// retrying off and DisableThrottle removes the delay.
type Config struct {
	UserAgent       string
	UserAgents      []string
	MinDelay        time.Duration
	MaxDelay        time.Duration
	DisableJitter   bool
	DisableThrottle bool
	Retries         int
	BackoffBase     time.Duration
	RetryOn         []int
	Timeout         time.Duration
	Transport       http.RoundTripper
}

func (c Config) withDefaults() Config {
	switch {
	case c.Retries == 0:
		c.Retries = DefaultRetries
	case c.Retries < 0:
		c.Retries = 0
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = DefaultBackoffBase
	}
	switch {
	case c.DisableThrottle:
		c.MinDelay, c.MaxDelay = 0, 0
	case c.MinDelay == 0 && c.MaxDelay == 0:
		c.MinDelay, c.MaxDelay = DefaultMinDelay, DefaultMaxDelay
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}

type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Client issues GET requests through an ordered list of strategies. It is safe
// for sequential reuse across a batch so throttling and rotation span it.
type Client struct {
	http       *http.Client
	strategies []Strategy
	logger     *slog.Logger
}

func New(strategies []Strategy, timeout time.Duration, transport http.RoundTripper, logger *slog.Logger) *Client {
	hc := &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}

	for _, s := range strategies {
		s.ApplyToSession(hc)
	}

	return &Client{
		http:       hc,
		strategies: strategies,
		logger:     logger,
	}
}

// NewDefault builds the stock strategy list: user agent rotation, browser
// headers, throttling and retry, in that order. Unset fields take the
// package defaults.
func NewDefault(cfg Config, logger *slog.Logger) *Client {
	cfg = cfg.withDefaults()

	strategies := []Strategy{
		NewUserAgentRotation(cfg.UserAgents, cfg.UserAgent),
		StandardHeaders{},
		NewThrottling(cfg.MinDelay, cfg.MaxDelay, !cfg.DisableJitter),
		NewRetry(cfg.Retries, cfg.BackoffBase, cfg.RetryOn, logger),
	}
	return New(strategies, cfg.Timeout, cfg.Transport, logger)
}

func (c *Client) Get(ctx context.Context, url string, headers http.Header) (*Response, error) {
	h := headers.Clone()
	if h == nil {
		h = http.Header{}
	}
	for _, s := range c.strategies {
		s.ApplyToHeaders(h)
	}

	for _, s := range c.strategies {
		if err := s.PreRequest(ctx); err != nil {
			return nil, &NetworkError{URL: url, Err: err}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header = h

	c.logger.Debug("http get", "url", url, "user_agent", h.Get("User-Agent"))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &NetworkError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	for _, s := range c.strategies {
		s.PostRequest(ctx, resp)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{URL: url, StatusCode: resp.StatusCode}
	}

	body, err := readBody(resp)
	if err != nil {
		return nil, &NetworkError{URL: url, Err: fmt.Errorf("read body: %w", err)}
	}

	c.logger.Debug("http response",
		"url", url,
		"status", resp.StatusCode,
		"bytes", len(body),
	)

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

// readBody decodes the content encodings we advertise. Setting
// Accept-Encoding ourselves disables the transport's transparent gzip.
func readBody(resp *http.Response) ([]byte, error) {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		defer zr.Close()
		return io.ReadAll(io.LimitReader(zr, maxBodySize))
	case "deflate":
		// servers disagree on zlib-wrapped vs raw deflate
		if zr, err := zlib.NewReader(bytes.NewReader(raw)); err == nil {
			defer zr.Close()
			return io.ReadAll(io.LimitReader(zr, maxBodySize))
		}
		fr := flate.NewReader(bytes.NewReader(raw))
		defer fr.Close()
		return io.ReadAll(io.LimitReader(fr, maxBodySize))
	default:
		return raw, nil
	}
}
