// Package fetch performs the HTTP requests of the asset client: the
// authenticated container request and the plain image download.
package fetch

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jmgilman/go/errors"
	"golang.org/x/time/rate"

	"github.com/jmgilman/go/appcrafted/internal/logging"
	"github.com/jmgilman/go/appcrafted/internal/metrics"
	"github.com/jmgilman/go/appcrafted/internal/model"
)

const (
	// DefaultTimeout is the request timeout of the default HTTP client.
	DefaultTimeout = 30 * time.Second

	// DefaultRetryDelay is the base delay between retries.
	DefaultRetryDelay = 250 * time.Millisecond

	// DefaultMaxBodyBytes bounds the size of a single response body.
	DefaultMaxBodyBytes int64 = 64 << 20

	userAgent = "appcrafted-go"
)

// Options configures a Client.
type Options struct {
	// Endpoint is the base URL of the assets API. A trailing slash is added
	// if missing.
	Endpoint string

	// HTTPClient performs the requests. Defaults to a client with DefaultTimeout.
	HTTPClient *http.Client

	// MaxRetries is the number of additional attempts made for retryable
	// failures. Zero disables retries.
	MaxRetries int

	// RetryDelay is the base delay of the exponential backoff.
	RetryDelay time.Duration

	// Limiter, if set, throttles outgoing requests.
	Limiter *rate.Limiter

	// MaxBodyBytes bounds the size of a response body.
	MaxBodyBytes int64

	Logger  *logging.Logger
	Metrics *metrics.Metrics
}

// Client talks to the assets API.
// It is safe for concurrent use.
type Client struct {
	endpoint     *url.URL
	http         *http.Client
	maxRetries   int
	retryDelay   time.Duration
	limiter      *rate.Limiter
	maxBodyBytes int64
	logger       *logging.Logger
	metrics      *metrics.Metrics
}

// New creates a Client from the given options.
func New(opts Options) (*Client, error) {
	endpoint, err := parseEndpoint(opts.Endpoint)
	if err != nil {
		return nil, err
	}
	if opts.MaxRetries < 0 {
		return nil, errors.Newf(errors.CodeInvalidConfig, "max retries cannot be negative: %d", opts.MaxRetries)
	}

	c := &Client{
		endpoint:     endpoint,
		http:         opts.HTTPClient,
		maxRetries:   opts.MaxRetries,
		retryDelay:   opts.RetryDelay,
		limiter:      opts.Limiter,
		maxBodyBytes: opts.MaxBodyBytes,
		logger:       opts.Logger,
		metrics:      opts.Metrics,
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: DefaultTimeout}
	}
	if c.retryDelay <= 0 {
		c.retryDelay = DefaultRetryDelay
	}
	if c.maxBodyBytes <= 0 {
		c.maxBodyBytes = DefaultMaxBodyBytes
	}
	if c.logger == nil {
		c.logger = logging.NewNop()
	}
	if c.metrics == nil {
		c.metrics = metrics.New()
	}

	return c, nil
}

func parseEndpoint(raw string) (*url.URL, error) {
	if raw == "" {
		return nil, errors.New(errors.CodeInvalidConfig, "endpoint cannot be empty")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, errors.WithContext(
			errors.Wrap(err, errors.CodeInvalidConfig, "invalid endpoint"),
			"endpoint", raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.WithContext(
			errors.Newf(errors.CodeInvalidConfig, "unsupported endpoint scheme %q", u.Scheme),
			"endpoint", raw)
	}
	if u.Host == "" {
		return nil, errors.WithContext(
			errors.New(errors.CodeInvalidConfig, "endpoint has no host"),
			"endpoint", raw)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}

	return u, nil
}

// Endpoint returns the normalized base URL.
func (c *Client) Endpoint() string {
	return c.endpoint.String()
}

// ContainerURL returns the URL listing every asset of a container.
func (c *Client) ContainerURL(containerID string) string {
	return c.endpoint.String() + url.PathEscape(containerID) + "/all"
}

// BasicAuth returns the Authorization header value for the credentials.
func BasicAuth(creds model.Credentials) string {
	token := creds.AccessKey + ":" + creds.SecretKey
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(token))
}

// FetchContainer downloads the raw container payload.
//
// Incomplete credentials fail with a CredentialsMissing error before any
// request is made.
func (c *Client) FetchContainer(ctx context.Context, containerID string, creds model.Credentials) ([]byte, error) {
	if !creds.IsComplete() {
		err := errors.Wrap(model.ErrCredentialsMissing, errors.CodeUnauthorized,
			"access key and secret key must be registered before fetching")
		return nil, errors.WithContext(err, "container_id", containerID)
	}

	target := c.ContainerURL(containerID)
	logger := c.logger.WithContainer(containerID).WithOperation(logging.OpFetchContainer)
	header := http.Header{}
	header.Set("Authorization", BasicAuth(creds))
	header.Set("Accept", "application/json")

	start := time.Now()
	body, err := c.getWithRetry(ctx, logger, target, header)
	elapsed := time.Since(start)
	logging.LogFetch(ctx, logger, logging.OpFetchContainer, elapsed, len(body), err)

	if err != nil {
		c.metrics.RecordError()
		return nil, errors.WithContext(err, "container_id", containerID)
	}

	c.metrics.RecordContainerFetch(int64(len(body)), elapsed)
	return body, nil
}

// FetchImage downloads the raw bytes of an image. Image URLs are absolute
// and are requested without credentials.
func (c *Client) FetchImage(ctx context.Context, imageURL string) ([]byte, error) {
	logger := c.logger.WithOperation(logging.OpFetchImage).With("url", imageURL)

	start := time.Now()
	body, err := c.getWithRetry(ctx, logger, imageURL, nil)
	logging.LogFetch(ctx, logger, logging.OpFetchImage, time.Since(start), len(body), err)

	if err != nil {
		c.metrics.RecordError()
		return nil, err
	}

	c.metrics.RecordImageFetch(int64(len(body)))
	return body, nil
}

func (c *Client) getWithRetry(ctx context.Context, logger *logging.Logger, target string, header http.Header) ([]byte, error) {
	var body []byte
	err := retryOperation(ctx, logger, c.maxRetries, c.retryDelay, func() error {
		var err error
		body, err = c.get(ctx, target, header)
		return err
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

// get performs a single GET and returns the body of a 2xx response.
func (c *Client) get(ctx context.Context, target string, header http.Header) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			wrapped := errors.Wrapf(model.ErrNetwork, errors.CodeRateLimit, "rate limiter: %v", err)
			wrapped = errors.WithClassification(wrapped, errors.ClassificationPermanent)
			return nil, errors.WithContext(wrapped, "url", target)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		wrapped := errors.Wrap(err, errors.CodeInvalidInput, "failed to build request")
		return nil, errors.WithContext(wrapped, "url", target)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, transportError(ctx, err, target)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain a little of the body so the connection can be reused.
		_, _ = io.CopyN(io.Discard, resp.Body, 4096)
		return nil, statusError(resp.StatusCode, target)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodyBytes+1))
	if err != nil {
		return nil, transportError(ctx, err, target)
	}
	if int64(len(body)) > c.maxBodyBytes {
		err := errors.Wrapf(model.ErrNetwork, errors.CodeNetwork,
			"response body exceeds %d bytes", c.maxBodyBytes)
		err = errors.WithClassification(err, errors.ClassificationPermanent)
		return nil, errors.WithContext(err, "url", target)
	}

	return body, nil
}

// transportError wraps a failure that produced no HTTP response.
// Failures caused by the caller's context are not retried.
func transportError(ctx context.Context, cause error, target string) error {
	err := errors.Wrapf(model.ErrNetwork, errors.CodeNetwork, "request failed: %v", cause)
	if ctx.Err() != nil {
		err = errors.WithClassification(err, errors.ClassificationPermanent)
	}
	return errors.WithContext(err, "url", target)
}

// statusError maps a non-2xx status to a NetworkError. Server errors and
// throttling are retryable; every other status is permanent.
func statusError(status int, target string) error {
	code := errors.CodeNetwork
	classification := errors.ClassificationPermanent
	switch {
	case status == http.StatusTooManyRequests:
		code = errors.CodeRateLimit
		classification = errors.ClassificationRetryable
	case status >= 500:
		classification = errors.ClassificationRetryable
	}

	err := errors.Wrap(model.ErrNetwork, code, fmt.Sprintf("unexpected status %d %s", status, http.StatusText(status)))
	err = errors.WithClassification(err, classification)
	return errors.WithContextMap(err, map[string]interface{}{
		"status_code": status,
		"url":         target,
	})
}
