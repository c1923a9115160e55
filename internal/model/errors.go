package model

import (
	"github.com/jmgilman/go/errors"
)

// Sentinel errors for the failure kinds of the asset client.
// Errors returned by the client wrap these, so they can be matched with
// errors.Is while still carrying a code and context.
var (
	// ErrCredentialsMissing indicates a fetch was attempted before both
	// credential keys were registered.
	ErrCredentialsMissing = errors.New(errors.CodeUnauthorized, "missing credentials")

	// ErrNetwork indicates a transport failure or a non-2xx response.
	ErrNetwork = errors.New(errors.CodeNetwork, "network error")

	// ErrAssetNotFound indicates the requested asset is not present in a
	// successfully fetched container.
	ErrAssetNotFound = errors.New(errors.CodeNotFound, "asset not found")

	// ErrMalformedPayload indicates the container JSON could not be decoded.
	ErrMalformedPayload = errors.New(errors.CodeInvalidInput, "malformed container payload")

	// ErrAttributeMismatch indicates an attribute Value does not match its Type.
	ErrAttributeMismatch = errors.New(errors.CodeSchemaFailed, "attribute value does not match type")
)

// IsCredentialsMissing reports whether err is a CredentialsMissing failure.
func IsCredentialsMissing(err error) bool {
	return errors.Is(err, ErrCredentialsMissing)
}

// IsNetworkError reports whether err is a NetworkError failure.
func IsNetworkError(err error) bool {
	return errors.Is(err, ErrNetwork)
}

// IsNotFound reports whether err is a LookupMiss failure.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAssetNotFound)
}
