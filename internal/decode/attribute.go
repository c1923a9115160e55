package decode

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"strconv"

	// Register bitmap formats with image.Decode.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/jmgilman/go/errors"
	"github.com/opencontainers/go-digest"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/jmgilman/go/appcrafted/internal/model"
)

// rawAttribute is the wire shape of an attribute object.
type rawAttribute struct {
	Type  string          `json:"Type"`
	Value json.RawMessage `json:"Value"`
}

// DecodeAttribute decodes one attribute object into a typed value.
//
// It reports false, with a nil error, when the Type tag is not recognized; the
// attribute is dropped and a warning is logged. IMAGE attributes block on the
// image fetch.
func (d *Decoder) DecodeAttribute(ctx context.Context, name string, raw json.RawMessage) (model.Value, bool, error) {
	var attr rawAttribute
	if err := json.Unmarshal(raw, &attr); err != nil {
		return model.Value{}, false, mismatch(name, "", "attribute is not an object: "+err.Error())
	}
	if len(attr.Value) == 0 {
		attr.Value = json.RawMessage("null")
	}

	kind, ok := model.ParseKind(attr.Type)
	if !ok {
		d.logger.Warn(ctx, "skipping attribute with unrecognized type",
			"attribute", name,
			"type", attr.Type)
		return model.Value{}, false, nil
	}

	var (
		v   model.Value
		err error
	)
	switch kind {
	case model.KindString:
		var s string
		s, err = decodeString(attr.Value)
		v = model.StringValue(s)
	case model.KindURL:
		var s string
		s, err = decodeString(attr.Value)
		v = model.URLValue(s)
	case model.KindNumber:
		var n float64
		n, err = decodeNumber(attr.Value)
		v = model.NumberValue(n)
	case model.KindFile:
		v = model.FileValue(attr.Value)
	case model.KindNumberArray:
		var ns []float64
		ns, err = decodeNumberArray(attr.Value)
		v = model.NumberArrayValue(ns)
	case model.KindStringArray:
		var ss []string
		ss, err = decodeStringArray(attr.Value)
		v = model.StringArrayValue(ss)
	case model.KindImage:
		return d.decodeImageAttribute(ctx, name, attr.Value)
	}
	if err != nil {
		return model.Value{}, false, mismatch(name, attr.Type, err.Error())
	}

	return v, true, nil
}

// decodeImageAttribute resolves an IMAGE attribute: the Value is a URL whose
// content is fetched and decoded into a bitmap.
func (d *Decoder) decodeImageAttribute(ctx context.Context, name string, raw json.RawMessage) (model.Value, bool, error) {
	url, err := decodeString(raw)
	if err != nil {
		return model.Value{}, false, mismatch(name, string(model.KindImage), err.Error())
	}
	if d.images == nil {
		err := errors.New(errors.CodeInternal, "no image fetcher configured")
		return model.Value{}, false, errors.WithContext(err, "attribute", name)
	}

	data, err := d.images.FetchImage(ctx, url)
	if err != nil {
		return model.Value{}, false, errors.WithContext(err, "attribute", name)
	}

	img, err := DecodeImage(url, data)
	if err != nil {
		return model.Value{}, false, errors.WithContext(err, "attribute", name)
	}

	return model.ImageValue(img), true, nil
}

// DecodeImage decodes raw image bytes into a bitmap.
// PNG, JPEG, GIF, BMP, TIFF and WebP are supported.
func DecodeImage(url string, data []byte) (*model.Image, error) {
	bitmap, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		wrapped := errors.Wrap(err, errors.CodeInvalidInput, "failed to decode image")
		return nil, errors.WithContextMap(wrapped, map[string]interface{}{
			"url":  url,
			"size": len(data),
		})
	}

	bounds := bitmap.Bounds()
	return &model.Image{
		URL:    url,
		Format: format,
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
		Bitmap: bitmap,
		Digest: digest.FromBytes(data),
		Size:   int64(len(data)),
	}, nil
}

func decodeString(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("value is not a string")
	}
	return s, nil
}

// decodeNumber accepts a JSON number or a string holding one.
func decodeNumber(raw json.RawMessage) (float64, error) {
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if parsed, perr := strconv.ParseFloat(s, 64); perr == nil {
			return parsed, nil
		}
	}

	return 0, fmt.Errorf("value %s is not a number", string(raw))
}

func decodeNumberArray(raw json.RawMessage) ([]float64, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("value is not an array")
	}

	out := make([]float64, len(items))
	for i, item := range items {
		n, err := decodeNumber(item)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out[i] = n
	}
	return out, nil
}

// decodeStringArray converts every element to a string. Strings are taken
// as-is, null becomes "", and any other element keeps its compact JSON text.
func decodeStringArray(raw json.RawMessage) ([]string, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("value is not an array")
	}

	out := make([]string, len(items))
	for i, item := range items {
		out[i] = elementString(item)
	}
	return out, nil
}

func elementString(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	switch {
	case bytes.Equal(trimmed, []byte("null")):
		return ""
	case len(trimmed) > 0 && trimmed[0] == '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return s
		}
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return string(trimmed)
	}
	return buf.String()
}

// mismatch builds an attribute type-mismatch error.
func mismatch(name, typ, reason string) error {
	err := errors.Wrapf(model.ErrAttributeMismatch, errors.CodeSchemaFailed, "attribute %q: %s", name, reason)
	return errors.WithContextMap(err, map[string]interface{}{
		"attribute": name,
		"type":      typ,
	})
}
