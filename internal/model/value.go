// Package model defines the asset, container and attribute types shared by the
// decoder, the store and the public client.
package model

import (
	"encoding/json"
	"fmt"
	"image"
	"strconv"
	"strings"

	"github.com/opencontainers/go-digest"
)

// Kind identifies the type of an attribute value.
// Kinds use the same spelling as the Type tag on the wire.
type Kind string

// Supported attribute kinds.
const (
	KindString      Kind = "STRING"
	KindURL         Kind = "URL"
	KindNumber      Kind = "NUMBER"
	KindImage       Kind = "IMAGE"
	KindFile        Kind = "FILE"
	KindNumberArray Kind = "NUMBER_ARRAY"
	KindStringArray Kind = "STRING_ARRAY"
)

// ParseKind maps a wire Type tag onto a Kind.
// It reports false for tags outside the known set.
func ParseKind(tag string) (Kind, bool) {
	switch k := Kind(tag); k {
	case KindString, KindURL, KindNumber, KindImage, KindFile, KindNumberArray, KindStringArray:
		return k, true
	default:
		return "", false
	}
}

// Image is a decoded bitmap attribute.
type Image struct {
	// URL is where the image was fetched from.
	URL string
	// Format is the name reported by the image decoder (png, jpeg, ...).
	Format string
	// Width and Height are the bitmap dimensions in pixels.
	Width  int
	Height int
	// Bitmap holds the decoded pixels.
	Bitmap image.Image
	// Digest is the sha256 digest of the raw image bytes.
	Digest digest.Digest
	// Size is the number of raw bytes that were downloaded.
	Size int64
}

// File is an opaque attribute value, kept verbatim as raw JSON.
type File json.RawMessage

// Unmarshal decodes the file payload into v.
func (f File) Unmarshal(v any) error {
	return json.Unmarshal(f, v)
}

// Value is a typed attribute value.
// Exactly one of the payload fields is meaningful, selected by Kind.
type Value struct {
	kind Kind
	str  string
	num  float64
	img  *Image
	file File
	nums []float64
	strs []string
}

// StringValue returns a STRING value.
func StringValue(s string) Value {
	return Value{kind: KindString, str: s}
}

// URLValue returns a URL value.
func URLValue(s string) Value {
	return Value{kind: KindURL, str: s}
}

// NumberValue returns a NUMBER value.
func NumberValue(n float64) Value {
	return Value{kind: KindNumber, num: n}
}

// ImageValue returns an IMAGE value.
func ImageValue(img *Image) Value {
	return Value{kind: KindImage, img: img}
}

// FileValue returns a FILE value. The raw bytes are copied.
func FileValue(raw []byte) Value {
	var f File
	if raw != nil {
		f = make(File, len(raw))
		copy(f, raw)
	}
	return Value{kind: KindFile, file: f}
}

// NumberArrayValue returns a NUMBER_ARRAY value. The slice is copied.
func NumberArrayValue(ns []float64) Value {
	return Value{kind: KindNumberArray, nums: append([]float64(nil), ns...)}
}

// StringArrayValue returns a STRING_ARRAY value. The slice is copied.
func StringArrayValue(ss []string) Value {
	return Value{kind: KindStringArray, strs: append([]string(nil), ss...)}
}

// Kind returns the value's kind. The zero Value has an empty kind.
func (v Value) Kind() Kind {
	return v.kind
}

// AsString returns the payload of a STRING or URL value.
func (v Value) AsString() (string, bool) {
	if v.kind != KindString && v.kind != KindURL {
		return "", false
	}
	return v.str, true
}

// AsNumber returns the payload of a NUMBER value.
func (v Value) AsNumber() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	return v.num, true
}

// AsImage returns the payload of an IMAGE value.
func (v Value) AsImage() (*Image, bool) {
	if v.kind != KindImage {
		return nil, false
	}
	return v.img, true
}

// AsFile returns the payload of a FILE value.
func (v Value) AsFile() (File, bool) {
	if v.kind != KindFile {
		return nil, false
	}
	return v.file, true
}

// AsNumbers returns a copy of the payload of a NUMBER_ARRAY value.
func (v Value) AsNumbers() ([]float64, bool) {
	if v.kind != KindNumberArray {
		return nil, false
	}
	return append([]float64(nil), v.nums...), true
}

// AsStrings returns a copy of the payload of a STRING_ARRAY value.
func (v Value) AsStrings() ([]string, bool) {
	if v.kind != KindStringArray {
		return nil, false
	}
	return append([]string(nil), v.strs...), true
}

// Interface returns the payload as an untyped value.
func (v Value) Interface() any {
	switch v.kind {
	case KindString, KindURL:
		return v.str
	case KindNumber:
		return v.num
	case KindImage:
		return v.img
	case KindFile:
		return v.file
	case KindNumberArray:
		return append([]float64(nil), v.nums...)
	case KindStringArray:
		return append([]string(nil), v.strs...)
	default:
		return nil
	}
}

// String implements fmt.Stringer.
func (v Value) String() string {
	switch v.kind {
	case KindString, KindURL:
		return v.str
	case KindNumber:
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	case KindImage:
		if v.img == nil {
			return "image(nil)"
		}
		return fmt.Sprintf("image(%s %dx%d)", v.img.Format, v.img.Width, v.img.Height)
	case KindFile:
		return string(v.file)
	case KindNumberArray:
		parts := make([]string, len(v.nums))
		for i, n := range v.nums {
			parts[i] = strconv.FormatFloat(n, 'g', -1, 64)
		}
		return "[" + strings.Join(parts, " ") + "]"
	case KindStringArray:
		return "[" + strings.Join(v.strs, " ") + "]"
	default:
		return ""
	}
}
