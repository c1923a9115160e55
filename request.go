package appcrafted

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/jmgilman/go/errors"
)

// ErrRequestPending is returned by Request.Result before the request resolves.
var ErrRequestPending = errors.New(errors.CodeUnavailable, "request has not resolved yet")

// Request tracks a single asset request. It resolves exactly once, with
// either an asset or an error.
type Request struct {
	id          string
	containerID string
	assetID     string

	once     sync.Once
	done     chan struct{}
	asset    *Asset
	err      error
	cacheHit bool
}

func newRequest(containerID, assetID string) *Request {
	return &Request{
		id:          uuid.NewString(),
		containerID: containerID,
		assetID:     assetID,
		done:        make(chan struct{}),
	}
}

// ID returns the unique token of this request. Events carry the same token.
func (r *Request) ID() string {
	return r.id
}

// ContainerID returns the requested container id.
func (r *Request) ContainerID() string {
	return r.containerID
}

// AssetID returns the requested asset id.
func (r *Request) AssetID() string {
	return r.assetID
}

// Done returns a channel that is closed when the request resolves, after
// every listener has been notified.
func (r *Request) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the request resolves or ctx is done.
// Giving up on a request does not cancel the underlying fetch.
func (r *Request) Wait(ctx context.Context) (*Asset, error) {
	select {
	case <-r.done:
		return r.asset, r.err
	case <-ctx.Done():
		err := errors.Wrap(ctx.Err(), errors.CodeTimeout, "stopped waiting for asset")
		return nil, errors.WithContextMap(err, map[string]interface{}{
			"request_id":   r.id,
			"container_id": r.containerID,
			"asset_id":     r.assetID,
		})
	}
}

// Result returns the outcome without blocking. It returns ErrRequestPending
// if the request has not resolved.
func (r *Request) Result() (*Asset, error) {
	select {
	case <-r.done:
		return r.asset, r.err
	default:
		return nil, ErrRequestPending
	}
}

// CacheHit reports whether the request was served from the cache.
// It is only meaningful once the request has resolved.
func (r *Request) CacheHit() bool {
	select {
	case <-r.done:
		return r.cacheHit
	default:
		return false
	}
}

// resolve records the outcome, runs notify, then releases waiters.
// Only the first call has any effect.
func (r *Request) resolve(asset *Asset, err error, cacheHit bool, notify func()) bool {
	resolved := false
	r.once.Do(func() {
		r.asset = asset
		r.err = err
		r.cacheHit = cacheHit
		if notify != nil {
			notify()
		}
		close(r.done)
		resolved = true
	})
	return resolved
}
