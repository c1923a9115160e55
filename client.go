package appcrafted

import (
	"context"
	"fmt"
	"sync"

	"github.com/jmgilman/go/errors"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/jmgilman/go/appcrafted/internal/decode"
	"github.com/jmgilman/go/appcrafted/internal/fetch"
	"github.com/jmgilman/go/appcrafted/internal/logging"
	"github.com/jmgilman/go/appcrafted/internal/metrics"
	"github.com/jmgilman/go/appcrafted/internal/model"
	"github.com/jmgilman/go/appcrafted/internal/store"
)

// Client fetches, decodes and caches assets.
// The client is safe for concurrent use.
type Client struct {
	fetcher *fetch.Client
	decoder *decode.Decoder
	store   *store.Store
	metrics *metrics.Metrics
	logger  *logging.Logger

	// inflight deduplicates container fetches. Keys are scoped to the store
	// generation so a reset never joins a fetch that began before it.
	inflight singleflight.Group

	events subscribers

	credsMu sync.RWMutex
	creds   Credentials

	closeMu sync.RWMutex
	closed  bool
	wg      sync.WaitGroup
}

// New creates a Client with the given options.
//
// Example usage:
//
//	client, err := New(
//	    WithCredentials("access-key", "secret-key"),
//	    WithMaxRetries(2),
//	)
func New(opts ...Option) (*Client, error) {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	if err := validateOptions(options); err != nil {
		return nil, err
	}

	logger := options.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	m := metrics.New()

	var limiter *rate.Limiter
	if options.RateLimit > 0 {
		limiter = rate.NewLimiter(options.RateLimit, options.RateBurst)
	}

	fetcher, err := fetch.New(fetch.Options{
		Endpoint:     options.Endpoint,
		HTTPClient:   options.HTTPClient,
		MaxRetries:   options.MaxRetries,
		RetryDelay:   options.RetryDelay,
		Limiter:      limiter,
		MaxBodyBytes: options.MaxBodyBytes,
		Logger:       logger,
		Metrics:      m,
	})
	if err != nil {
		return nil, err
	}

	return &Client{
		fetcher: fetcher,
		decoder: decode.New(fetcher, logger.WithOperation(logging.OpDecode)),
		store:   store.New(),
		metrics: m,
		logger:  logger,
		creds:   options.Credentials,
	}, nil
}

// RegisterCredentials sets the keys used for container requests. The keys
// are not validated; the latest registration wins. A fetch reads the
// credentials when it starts, so fetches already in flight are unaffected.
func (c *Client) RegisterCredentials(accessKey, secretKey string) {
	c.credsMu.Lock()
	defer c.credsMu.Unlock()
	c.creds = Credentials{AccessKey: accessKey, SecretKey: secretKey}
}

func (c *Client) credentials() Credentials {
	c.credsMu.RLock()
	defer c.credsMu.RUnlock()
	return c.creds
}

// GetAsset requests an asset.
//
// If the asset's container is cached, the returned request has already
// resolved and listeners have already been notified. Otherwise the container
// is fetched in the background and the request resolves when the fetch
// completes. A container that is cached but lacks the asset resolves with an
// error matching ErrAssetNotFound without fetching again.
func (c *Client) GetAsset(ctx context.Context, containerID, assetID string) *Request {
	req := newRequest(containerID, assetID)
	logger := c.logger.WithRequest(req.ID()).WithOperation(logging.OpGetAsset)

	asset, lookup := c.store.Find(containerID, assetID)
	switch lookup {
	case store.LookupHit:
		c.metrics.RecordHit()
		logging.LogCacheHit(ctx, logger, containerID, assetID)
		c.finish(ctx, logger, req, asset, nil, true)
		return req
	case store.LookupNoAsset:
		c.metrics.RecordHit()
		logging.LogCacheMiss(ctx, logger, containerID, assetID, lookup.String())
		c.finish(ctx, logger, req, nil, notFound(containerID, assetID), true)
		return req
	}

	c.metrics.RecordMiss()
	logging.LogCacheMiss(ctx, logger, containerID, assetID, lookup.String())
	c.startFetch(ctx, logger, req)
	return req
}

// Get requests an asset and waits for it.
func (c *Client) Get(ctx context.Context, containerID, assetID string) (*Asset, error) {
	return c.GetAsset(ctx, containerID, assetID).Wait(ctx)
}

// Reset drops every cached container, then requests the asset again.
// Fetches that were in flight still resolve their own requests, but their
// results are not cached.
func (c *Client) Reset(ctx context.Context, containerID, assetID string) *Request {
	dropped := c.store.Clear()
	c.metrics.RecordReset()
	c.logger.WithOperation(logging.OpReset).Info(ctx, "cache reset",
		"containers_dropped", dropped,
		"container_id", containerID,
		"asset_id", assetID)

	return c.GetAsset(ctx, containerID, assetID)
}

// Lookup returns a cached asset without fetching.
func (c *Client) Lookup(containerID, assetID string) (*Asset, bool) {
	return c.store.TryGet(containerID, assetID)
}

// Close waits for in-flight fetches to finish. Cached assets remain
// available after Close, but requests that need a fetch fail.
func (c *Client) Close() error {
	c.closeMu.Lock()
	c.closed = true
	c.closeMu.Unlock()

	c.wg.Wait()
	return nil
}

// startFetch loads the request's container on a new goroutine.
// The fetch outlives the caller's context so that a waiter giving up does
// not fail other requests sharing the same fetch.
func (c *Client) startFetch(ctx context.Context, logger *logging.Logger, req *Request) {
	generation := c.store.Generation()
	creds := c.credentials()
	fetchCtx := context.WithoutCancel(ctx)

	c.closeMu.RLock()
	if c.closed {
		c.closeMu.RUnlock()
		c.finish(ctx, logger, req, nil, errors.New(errors.CodeUnavailable, "client is closed"), false)
		return
	}
	c.wg.Add(1)
	c.closeMu.RUnlock()

	go func() {
		defer c.wg.Done()

		container, err := c.loadContainer(fetchCtx, logger, generation, req.containerID, creds)
		if err != nil {
			c.finish(fetchCtx, logger, req, nil, err, false)
			return
		}

		asset, ok := container.Asset(req.assetID)
		if !ok {
			c.finish(fetchCtx, logger, req, nil, notFound(req.containerID, req.assetID), false)
			return
		}
		c.finish(fetchCtx, logger, req, asset, nil, false)
	}()
}

// loadContainer fetches, decodes and caches a container, sharing the work
// with concurrent callers for the same container and generation.
func (c *Client) loadContainer(ctx context.Context, logger *logging.Logger, generation uint64, containerID string, creds Credentials) (*model.Container, error) {
	key := fmt.Sprintf("%d/%s", generation, containerID)

	v, err, shared := c.inflight.Do(key, func() (interface{}, error) {
		// A fetch for this key may have completed since the caller's lookup.
		if existing, ok := c.store.Container(containerID); ok && c.store.Generation() == generation {
			return existing, nil
		}

		raw, err := c.fetcher.FetchContainer(ctx, containerID, creds)
		if err != nil {
			return nil, err
		}

		container, err := c.decoder.DecodeContainer(ctx, containerID, raw)
		if err != nil {
			// Image download failures are already counted by the fetcher.
			if !model.IsNetworkError(err) {
				c.metrics.RecordError()
			}
			return nil, err
		}

		if !c.store.Commit(generation, container) {
			logger.Debug(ctx, "discarding container fetched before reset",
				"container_id", containerID)
		}
		logger.Debug(ctx, "container loaded",
			"container_id", containerID,
			"assets", container.Len())
		return container, nil
	})
	if shared {
		c.metrics.RecordSharedFetch()
	}
	if err != nil {
		return nil, err
	}
	return v.(*model.Container), nil
}

// finish resolves the request and notifies listeners.
func (c *Client) finish(ctx context.Context, logger *logging.Logger, req *Request, asset *Asset, err error, cacheHit bool) {
	req.resolve(asset, err, cacheHit, func() {
		if err != nil {
			logger.Warn(ctx, "asset request failed",
				"container_id", req.containerID,
				"asset_id", req.assetID,
				"error", err.Error())
		}

		c.events.notify(Event{
			RequestID:   req.id,
			ContainerID: req.containerID,
			AssetID:     req.assetID,
			Asset:       asset,
			Err:         err,
			CacheHit:    cacheHit,
		})
	})
}

func notFound(containerID, assetID string) error {
	err := errors.Wrap(model.ErrAssetNotFound, errors.CodeNotFound, "asset not found in container")
	return errors.WithContextMap(err, map[string]interface{}{
		"container_id": containerID,
		"asset_id":     assetID,
	})
}
