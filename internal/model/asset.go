package model

import (
	"github.com/jmgilman/go/errors"
)

// Credentials authenticate container requests.
type Credentials struct {
	AccessKey string
	SecretKey string
}

// IsComplete reports whether both keys are set.
func (c Credentials) IsComplete() bool {
	return c.AccessKey != "" && c.SecretKey != ""
}

// Asset is a named bundle of typed attributes within a container.
//
// An Asset is built by the decoder and is read-only once it has been handed to
// the store.
type Asset struct {
	// ID is the asset identifier, unique within its container.
	ID string
	// ContainerID is the identifier of the owning container.
	ContainerID string

	attributes map[string]Value
	order      []string
}

// NewAsset creates an empty asset.
func NewAsset(containerID, id string) *Asset {
	return &Asset{
		ID:          id,
		ContainerID: containerID,
		attributes:  make(map[string]Value),
	}
}

// Set stores an attribute. Setting an existing name replaces its value but
// keeps its original position.
func (a *Asset) Set(name string, v Value) {
	if _, exists := a.attributes[name]; !exists {
		a.order = append(a.order, name)
	}
	a.attributes[name] = v
}

// Attribute returns the named attribute.
func (a *Asset) Attribute(name string) (Value, bool) {
	v, ok := a.attributes[name]
	return v, ok
}

// Names returns the attribute names in source order.
func (a *Asset) Names() []string {
	return append([]string(nil), a.order...)
}

// Attributes returns a copy of the attribute mapping.
func (a *Asset) Attributes() map[string]Value {
	out := make(map[string]Value, len(a.attributes))
	for k, v := range a.attributes {
		out[k] = v
	}
	return out
}

// Len returns the number of attributes.
func (a *Asset) Len() int {
	return len(a.attributes)
}

// Images returns the image attributes of the asset in source order.
func (a *Asset) Images() []*Image {
	var images []*Image
	for _, name := range a.order {
		if img, ok := a.attributes[name].AsImage(); ok && img != nil {
			images = append(images, img)
		}
	}
	return images
}

// Container is a named collection of assets, fetched and cached as a unit.
//
// Container is not safe for concurrent mutation. Once committed to a store,
// the store serializes access.
type Container struct {
	// ID is the container identifier.
	ID string

	assets map[string]*Asset
	order  []string
}

// NewContainer creates an empty container.
func NewContainer(id string) *Container {
	return &Container{
		ID:     id,
		assets: make(map[string]*Asset),
	}
}

// Add inserts an asset. Asset ids are unique within a container, so adding an
// id that is already present fails with CodeConflict.
func (c *Container) Add(asset *Asset) error {
	if asset == nil {
		return errors.New(errors.CodeInvalidInput, "asset cannot be nil")
	}
	if _, exists := c.assets[asset.ID]; exists {
		err := errors.Newf(errors.CodeConflict, "duplicate asset %q in container %q", asset.ID, c.ID)
		return errors.WithContextMap(err, map[string]interface{}{
			"container_id": c.ID,
			"asset_id":     asset.ID,
		})
	}
	c.assets[asset.ID] = asset
	c.order = append(c.order, asset.ID)
	return nil
}

// Put inserts or replaces an asset.
func (c *Container) Put(asset *Asset) {
	if _, exists := c.assets[asset.ID]; !exists {
		c.order = append(c.order, asset.ID)
	}
	c.assets[asset.ID] = asset
}

// Asset returns the asset with the given id.
func (c *Container) Asset(id string) (*Asset, bool) {
	a, ok := c.assets[id]
	return a, ok
}

// AssetIDs returns asset ids in the order they were added.
func (c *Container) AssetIDs() []string {
	return append([]string(nil), c.order...)
}

// Len returns the number of assets.
func (c *Container) Len() int {
	return len(c.assets)
}
