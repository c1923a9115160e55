package appcrafted

import (
	"sync"
)

// Event describes the resolution of a request.
type Event struct {
	// RequestID is the ID of the request that resolved.
	RequestID string

	ContainerID string
	AssetID     string

	// Asset is set when the request succeeded.
	Asset *Asset

	// Err is set when the request failed.
	Err error

	// CacheHit reports whether the request was served without a fetch.
	CacheHit bool
}

// Listener receives request events.
type Listener func(Event)

type subscription struct {
	id uint64
	fn Listener
}

// subscribers is an ordered set of listeners.
type subscribers struct {
	mu     sync.RWMutex
	nextID uint64
	subs   []subscription
}

func (s *subscribers) add(fn Listener) func() {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.subs = append(s.subs, subscription{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { s.remove(id) })
	}
}

func (s *subscribers) remove(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, sub := range s.subs {
		if sub.id == id {
			s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
			return
		}
	}
}

func (s *subscribers) count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

// notify calls every listener in subscription order. Listeners run outside
// the lock so they may subscribe or unsubscribe.
func (s *subscribers) notify(e Event) {
	s.mu.RLock()
	subs := make([]subscription, len(s.subs))
	copy(subs, s.subs)
	s.mu.RUnlock()

	for _, sub := range subs {
		sub.fn(e)
	}
}

// Subscribe registers a listener for every request resolution, successful
// or not. Listeners are called synchronously in subscription order: for a
// cache hit before GetAsset returns, otherwise on the fetch goroutine.
// The returned function removes the listener.
func (c *Client) Subscribe(fn Listener) func() {
	if fn == nil {
		return func() {}
	}
	return c.events.add(fn)
}

// OnAssetLoaded registers fn to be called with every successfully loaded asset.
// The returned function removes the listener.
func (c *Client) OnAssetLoaded(fn func(*Asset)) func() {
	if fn == nil {
		return func() {}
	}
	return c.Subscribe(func(e Event) {
		if e.Err == nil && e.Asset != nil {
			fn(e.Asset)
		}
	})
}
