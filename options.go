package appcrafted

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/jmgilman/go/errors"
	"golang.org/x/time/rate"

	"github.com/jmgilman/go/appcrafted/internal/fetch"
	"github.com/jmgilman/go/appcrafted/internal/logging"
)

// DefaultEndpoint is the base URL of the public assets API.
const DefaultEndpoint = "http://api.appcrafted.com/v0/assets/"

// Options contains configuration options for the Client.
type Options struct {
	// Endpoint is the base URL of the assets API. Container requests go to
	// Endpoint + containerID + "/all".
	Endpoint string

	// HTTPClient performs all requests.
	// If nil, a client with a 30 second timeout is used.
	HTTPClient *http.Client

	// Credentials are registered at construction time. They can be
	// replaced later with RegisterCredentials.
	Credentials Credentials

	// MaxRetries is the number of extra attempts for retryable failures
	// (transport errors, 5xx and 429 responses). Zero disables retries.
	MaxRetries int

	// RetryDelay is the base delay of the exponential backoff between retries.
	RetryDelay time.Duration

	// RateLimit throttles outgoing requests. Zero disables throttling.
	RateLimit rate.Limit

	// RateBurst is the burst size of the rate limiter.
	RateBurst int

	// MaxBodyBytes bounds the size of a single response body.
	MaxBodyBytes int64

	// Logger receives structured logs. If nil, logging is disabled.
	Logger *logging.Logger
}

// Option configures the Client.
type Option func(*Options)

// DefaultOptions returns the default client configuration.
func DefaultOptions() *Options {
	return &Options{
		Endpoint:     DefaultEndpoint,
		RetryDelay:   fetch.DefaultRetryDelay,
		MaxBodyBytes: fetch.DefaultMaxBodyBytes,
	}
}

// WithEndpoint overrides the base URL of the assets API.
func WithEndpoint(endpoint string) Option {
	return func(o *Options) {
		o.Endpoint = endpoint
	}
}

// WithHTTPClient sets the HTTP client used for all requests.
func WithHTTPClient(client *http.Client) Option {
	return func(o *Options) {
		o.HTTPClient = client
	}
}

// WithCredentials registers credentials at construction time.
func WithCredentials(accessKey, secretKey string) Option {
	return func(o *Options) {
		o.Credentials = Credentials{AccessKey: accessKey, SecretKey: secretKey}
	}
}

// WithMaxRetries enables bounded retries of retryable failures.
func WithMaxRetries(n int) Option {
	return func(o *Options) {
		o.MaxRetries = n
	}
}

// WithRetryDelay sets the base backoff delay between retries.
func WithRetryDelay(d time.Duration) Option {
	return func(o *Options) {
		o.RetryDelay = d
	}
}

// WithRateLimit throttles outgoing requests to r per second with the given burst.
func WithRateLimit(r rate.Limit, burst int) Option {
	return func(o *Options) {
		o.RateLimit = r
		o.RateBurst = burst
	}
}

// WithMaxBodyBytes bounds the size of a single response body.
func WithMaxBodyBytes(n int64) Option {
	return func(o *Options) {
		o.MaxBodyBytes = n
	}
}

// WithLogger routes client logs to the given slog logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = logging.FromSlog(logger)
	}
}

// WithLogLevel enables text logging to stderr at the given level
// ("debug", "info", "warn" or "error"). An unknown level falls back to info.
func WithLogLevel(level string) Option {
	return func(o *Options) {
		config := logging.DefaultConfig()
		if parsed, err := logging.ParseLevel(level); err == nil {
			config.Level = parsed
		}
		o.Logger = logging.New(config)
	}
}

// validateOptions checks the options for values the fetch layer cannot
// correct on its own. The endpoint is validated when the fetch client is built.
func validateOptions(opts *Options) error {
	if opts == nil {
		return errors.New(errors.CodeInvalidConfig, "client options cannot be nil")
	}
	if opts.MaxRetries < 0 {
		return errors.Newf(errors.CodeInvalidConfig, "max retries cannot be negative: %d", opts.MaxRetries)
	}
	if opts.RetryDelay < 0 {
		return errors.Newf(errors.CodeInvalidConfig, "retry delay cannot be negative: %s", opts.RetryDelay)
	}
	if opts.MaxBodyBytes < 0 {
		return errors.Newf(errors.CodeInvalidConfig, "max body bytes cannot be negative: %d", opts.MaxBodyBytes)
	}
	if opts.RateLimit < 0 {
		return errors.New(errors.CodeInvalidConfig, "rate limit cannot be negative")
	}
	if opts.RateLimit > 0 && opts.RateBurst < 1 {
		return errors.Newf(errors.CodeInvalidConfig, "rate burst must be at least 1 when a rate limit is set, got %d", opts.RateBurst)
	}
	return nil
}
