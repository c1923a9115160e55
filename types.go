package appcrafted

import (
	"github.com/jmgilman/go/appcrafted/internal/model"
)

type (
	// Asset is a decoded asset: an id and its typed attributes in source order.
	Asset = model.Asset

	// Container is the set of assets fetched together under one container id.
	Container = model.Container

	// Value is a typed attribute value.
	Value = model.Value

	// Kind identifies the type of an attribute value.
	Kind = model.Kind

	// Image is a decoded IMAGE attribute.
	Image = model.Image

	// File is the verbatim JSON payload of a FILE attribute.
	File = model.File

	// Credentials are the access and secret keys used for container requests.
	Credentials = model.Credentials
)

// Attribute kinds.
const (
	KindString      = model.KindString
	KindURL         = model.KindURL
	KindNumber      = model.KindNumber
	KindImage       = model.KindImage
	KindFile        = model.KindFile
	KindNumberArray = model.KindNumberArray
	KindStringArray = model.KindStringArray
)

// Errors returned by the client wrap one of these sentinels.
var (
	ErrCredentialsMissing = model.ErrCredentialsMissing
	ErrNetwork            = model.ErrNetwork
	ErrAssetNotFound      = model.ErrAssetNotFound
	ErrMalformedPayload   = model.ErrMalformedPayload
	ErrAttributeMismatch  = model.ErrAttributeMismatch
)

// IsCredentialsMissing reports whether err was caused by a request made
// before both credential keys were registered.
func IsCredentialsMissing(err error) bool {
	return model.IsCredentialsMissing(err)
}

// IsNetworkError reports whether err was caused by a failed HTTP request.
func IsNetworkError(err error) bool {
	return model.IsNetworkError(err)
}

// IsNotFound reports whether err means the asset is not in its container.
func IsNotFound(err error) bool {
	return model.IsNotFound(err)
}
