// Package store holds the in-memory cache of decoded containers.
//
// The store is generation-stamped: Clear starts a new generation, and a commit
// that was prepared against an older generation is rejected. This keeps a
// fetch that was in flight during a reset from repopulating the fresh cache.
package store

import (
	"sort"
	"sync"

	"github.com/jmgilman/go/errors"

	"github.com/jmgilman/go/appcrafted/internal/model"
)

// Store is an in-memory mapping from container id to container.
// It is safe for concurrent use.
type Store struct {
	mu         sync.RWMutex
	containers map[string]*model.Container
	generation uint64
}

// New creates an empty store.
func New() *Store {
	return &Store{containers: make(map[string]*model.Container)}
}

// Generation returns the current cache generation.
func (s *Store) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// EnsureContainer returns the container with the given id, creating an empty
// one if absent. The boolean reports whether the container was created.
func (s *Store) EnsureContainer(id string) (*model.Container, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.containers[id]; ok {
		return c, false
	}
	c := model.NewContainer(id)
	s.containers[id] = c
	return c, true
}

// HasContainer reports whether a container has been cached.
func (s *Store) HasContainer(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.containers[id]
	return ok
}

// Container returns the cached container with the given id.
func (s *Store) Container(id string) (*model.Container, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.containers[id]
	return c, ok
}

// Put stores an asset under a container, creating the container if needed.
// An existing asset with the same id is replaced.
func (s *Store) Put(containerID string, asset *model.Asset) error {
	if asset == nil {
		return errors.New(errors.CodeInvalidInput, "asset cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.containers[containerID]
	if !ok {
		c = model.NewContainer(containerID)
		s.containers[containerID] = c
	}
	c.Put(asset)
	return nil
}

// Commit installs a fully decoded container if the store is still at the
// given generation. It reports whether the container was installed.
// An installed container replaces any previous entry for the same id.
func (s *Store) Commit(generation uint64, c *model.Container) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if generation != s.generation {
		return false
	}
	s.containers[c.ID] = c
	return true
}

// TryGet looks up an asset. It reports false when either the container has
// not been cached or the asset is absent from it.
func (s *Store) TryGet(containerID, assetID string) (*model.Asset, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.containers[containerID]
	if !ok {
		return nil, false
	}
	return c.Asset(assetID)
}

// Lookup classifies a lookup.
type Lookup int

// Lookup outcomes.
const (
	// LookupHit means the asset is cached.
	LookupHit Lookup = iota
	// LookupNoContainer means the container has not been fetched.
	LookupNoContainer
	// LookupNoAsset means the container is cached but does not hold the asset.
	LookupNoAsset
)

// String implements fmt.Stringer.
func (l Lookup) String() string {
	switch l {
	case LookupHit:
		return "hit"
	case LookupNoContainer:
		return "container not fetched"
	case LookupNoAsset:
		return "asset not in container"
	default:
		return "unknown"
	}
}

// Find looks up an asset and reports why a lookup missed.
func (s *Store) Find(containerID, assetID string) (*model.Asset, Lookup) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.containers[containerID]
	if !ok {
		return nil, LookupNoContainer
	}
	a, ok := c.Asset(assetID)
	if !ok {
		return nil, LookupNoAsset
	}
	return a, LookupHit
}

// Clear drops every cached container and starts a new generation.
// It returns the number of containers that were dropped.
func (s *Store) Clear() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.containers)
	s.containers = make(map[string]*model.Container)
	s.generation++
	return n
}

// ContainerIDs returns the ids of all cached containers, sorted.
func (s *Store) ContainerIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.containers))
	for id := range s.containers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Stats describes the store contents.
type Stats struct {
	Containers int
	Assets     int
	Images     int
	Generation uint64
}

// Stats returns a summary of the store contents.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{
		Containers: len(s.containers),
		Generation: s.generation,
	}
	for _, c := range s.containers {
		stats.Assets += c.Len()
		for _, id := range c.AssetIDs() {
			if a, ok := c.Asset(id); ok {
				stats.Images += len(a.Images())
			}
		}
	}
	return stats
}
