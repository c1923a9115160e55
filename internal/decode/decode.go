// Package decode turns the container JSON returned by the assets API into
// typed assets.
//
// A container payload has the shape
//
//	{"Assets": [{"AssetID": "a1", "color": {"Type": "STRING", "Value": "red"}}]}
//
// Within an asset object only fields whose value is itself a JSON object are
// attribute candidates; every other field is metadata and is skipped. Assets
// and attributes are materialized in the order they appear in the source, and
// IMAGE attributes are fetched one at a time in that same order.
package decode

import (
	"bytes"
	"context"
	"encoding/json"
	"io"

	"github.com/jmgilman/go/errors"

	"github.com/jmgilman/go/appcrafted/internal/logging"
	"github.com/jmgilman/go/appcrafted/internal/model"
)

const (
	// fieldAssets is the top-level field holding the ordered asset array.
	fieldAssets = "Assets"
	// fieldAssetID is the metadata field identifying an asset.
	fieldAssetID = "AssetID"
)

// ImageFetcher retrieves the raw bytes of an image attribute.
type ImageFetcher interface {
	FetchImage(ctx context.Context, url string) ([]byte, error)
}

// Decoder decodes container payloads into assets.
// A Decoder holds no per-call state and is safe for concurrent use as long as
// its ImageFetcher is.
type Decoder struct {
	images ImageFetcher
	logger *logging.Logger
}

// New creates a Decoder. images may be nil, in which case IMAGE attributes
// fail to decode. logger may be nil.
func New(images ImageFetcher, logger *logging.Logger) *Decoder {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Decoder{images: images, logger: logger}
}

// field is one key/value pair of a JSON object, in source order.
type field struct {
	name  string
	value json.RawMessage
}

// DecodeContainer decodes a full container payload.
//
// The returned container holds every asset of the payload in source order.
// Asset ids must be unique within the payload.
func (d *Decoder) DecodeContainer(ctx context.Context, containerID string, raw []byte) (*model.Container, error) {
	fields, err := objectFields(raw)
	if err != nil {
		return nil, malformed(err, containerID, "container payload is not a JSON object")
	}

	var assets json.RawMessage
	for _, f := range fields {
		if f.name == fieldAssets {
			assets = f.value
		}
	}
	if assets == nil {
		return nil, malformed(nil, containerID, "container payload has no Assets field")
	}

	var items []json.RawMessage
	if err := json.Unmarshal(assets, &items); err != nil {
		return nil, malformed(err, containerID, "Assets is not an array")
	}

	container := model.NewContainer(containerID)
	for i, item := range items {
		asset, err := d.DecodeAsset(ctx, containerID, item)
		if err != nil {
			return nil, errors.WithContext(err, "asset_index", i)
		}
		if err := container.Add(asset); err != nil {
			return nil, err
		}
	}

	d.logger.Debug(ctx, "container decoded",
		"container_id", containerID,
		"assets", container.Len())

	return container, nil
}

// DecodeAsset decodes a single asset object.
func (d *Decoder) DecodeAsset(ctx context.Context, containerID string, raw json.RawMessage) (*model.Asset, error) {
	fields, err := objectFields(raw)
	if err != nil {
		return nil, malformed(err, containerID, "asset is not a JSON object")
	}

	// AssetID may follow the attributes, so collect candidates first.
	var (
		assetID    string
		hasID      bool
		candidates []field
	)
	for _, f := range fields {
		if f.name == fieldAssetID {
			if err := json.Unmarshal(f.value, &assetID); err != nil {
				return nil, malformed(err, containerID, "AssetID is not a string")
			}
			hasID = true
			continue
		}
		if isObject(f.value) {
			candidates = append(candidates, f)
		}
	}
	if !hasID {
		return nil, malformed(nil, containerID, "asset has no AssetID")
	}

	logger := d.logger.WithAsset(containerID, assetID)
	logger.Debug(ctx, "decoding asset", "candidates", len(candidates))

	asset := model.NewAsset(containerID, assetID)
	for _, f := range candidates {
		v, ok, err := d.DecodeAttribute(ctx, f.name, f.value)
		if err != nil {
			return nil, errors.WithContextMap(err, map[string]interface{}{
				"container_id": containerID,
				"asset_id":     assetID,
			})
		}
		if !ok {
			continue
		}
		asset.Set(f.name, v)
		logger.Debug(ctx, "attribute decoded", "attribute", f.name, "type", string(v.Kind()))
	}

	return asset, nil
}

// objectFields returns the key/value pairs of a JSON object in source order.
func objectFields(raw []byte) ([]field, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, errors.New(errors.CodeInvalidInput, "expected JSON object")
	}

	var fields []field
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		name, ok := tok.(string)
		if !ok {
			return nil, errors.New(errors.CodeInvalidInput, "expected object key")
		}

		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, err
		}
		fields = append(fields, field{name: name, value: value})
	}

	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New(errors.CodeInvalidInput, "unexpected data after JSON object")
	}

	return fields, nil
}

// isObject reports whether raw holds a JSON object.
func isObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	return len(trimmed) > 0 && trimmed[0] == '{'
}

func malformed(cause error, containerID, message string) error {
	var err errors.PlatformError
	if cause != nil {
		err = errors.Wrapf(model.ErrMalformedPayload, errors.CodeInvalidInput, "%s: %v", message, cause)
	} else {
		err = errors.Wrap(model.ErrMalformedPayload, errors.CodeInvalidInput, message)
	}
	return errors.WithContext(err, "container_id", containerID)
}
