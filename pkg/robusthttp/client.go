package robusthttp

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type LeveledSlog struct {
	inner *slog.Logger
}

// re-writes HTTP client ERROR to WARN level (because of retries)
func (l LeveledSlog) Error(msg string, keysAndValues ...any) {
	l.inner.Warn(msg, keysAndValues...)
}

func (l LeveledSlog) Warn(msg string, keysAndValues ...any) {
	l.inner.Warn(msg, keysAndValues...)
}

func (l LeveledSlog) Info(msg string, keysAndValues ...any) {
	l.inner.Debug(msg, keysAndValues...)
}

func (l LeveledSlog) Debug(msg string, keysAndValues ...any) {
	l.inner.Debug(msg, keysAndValues...)
}

type config struct {
	maxRetries int
	waitMin    time.Duration
	waitMax    time.Duration
	timeout    time.Duration
	proxy      string
	logger     *slog.Logger
	policy     retryablehttp.CheckRetry
}

type Option func(*config)

// WithMaxRetries sets the maximum number of retries for the HTTP client.
func WithMaxRetries(maxRetries int) Option {
	return func(c *config) {
		c.maxRetries = maxRetries
	}
}

// WithRetryWait sets the minimum and maximum wait time between retries.
func WithRetryWait(waitMin, waitMax time.Duration) Option {
	return func(c *config) {
		c.waitMin = waitMin
		c.waitMax = waitMax
	}
}

// WithTimeout sets the overall per-request timeout, including retries.
func WithTimeout(timeout time.Duration) Option {
	return func(c *config) {
		c.timeout = timeout
	}
}

// WithProxy routes all requests through an HTTP(S) proxy. An empty URL is ignored.
func WithProxy(proxyURL string) Option {
	return func(c *config) {
		c.proxy = proxyURL
	}
}

// WithLogger sets a custom logger for the HTTP client.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithRetryPolicy sets a custom retry policy for the HTTP client.
func WithRetryPolicy(policy retryablehttp.CheckRetry) Option {
	return func(c *config) {
		c.policy = policy
	}
}

// Generates an HTTP client with general-purpose defaults around timeouts and
// retries. The returned client has the stdlib http.Client interface, but has
// Hashicorp retryablehttp logic internally.
//
// This client will retry on connection errors and 5xx status (except 501).
// It will not retry 429, so the caller sees rate-limiting immediately.
func NewClient(options ...Option) (*http.Client, error) {
	cfg := config{
		maxRetries: 2,
		waitMin:    time.Second,
		waitMax:    10 * time.Second,
		timeout:    30 * time.Second,
		logger:     slog.Default(),
		policy:     DefaultRetryPolicy,
	}
	for _, option := range options {
		option(&cfg)
	}

	transport := cleanhttp.DefaultPooledTransport()
	if cfg.proxy != "" {
		u, err := url.Parse(cfg.proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL: %w", err)
		}
		if u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("invalid proxy URL: missing scheme or host")
		}
		transport.Proxy = http.ProxyURL(u)
	}

	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient.Transport = otelhttp.NewTransport(transport)
	retryClient.RetryMax = cfg.maxRetries
	retryClient.RetryWaitMin = cfg.waitMin
	retryClient.RetryWaitMax = cfg.waitMax
	retryClient.Logger = retryablehttp.LeveledLogger(LeveledSlog{inner: cfg.logger.With("subsystem", "RobustHTTPClient")})
	retryClient.CheckRetry = cfg.policy
	// hand the final response back to the caller instead of a generic "giving up" error, so XRPC error bodies can be parsed
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	client := retryClient.StandardClient()
	client.Timeout = cfg.timeout
	return client, nil
}

// DefaultRetryPolicy is a custom wrapper around retryablehttp.DefaultRetryPolicy.
// It treats `429 Too Many Requests` as non-retryable, so the application can decide
// how to deal with rate-limiting.
func DefaultRetryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if err == nil && resp.StatusCode == http.StatusTooManyRequests {
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}
