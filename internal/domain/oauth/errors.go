package oauth

import "errors"

var (
	// ErrProviderNotFound signals an unknown or unconfigured provider slug.
	ErrProviderNotFound = errors.New("oauth: provider not found")
	// ErrInvalidRequest indicates caller input validation errors.
	ErrInvalidRequest = errors.New("oauth: invalid request")
	// ErrInvalidState indicates the state is unknown, already used, or owned by someone else.
	ErrInvalidState = errors.New("oauth: invalid state")
	// ErrStateExpired indicates the state outlived its TTL.
	ErrStateExpired = errors.New("oauth: state expired")
	// ErrTokenInvalid indicates the provider returned no usable token.
	ErrTokenInvalid = errors.New("oauth: token invalid")
	// ErrNotConnected signals that the user has no stored token for the provider.
	ErrNotConnected = errors.New("oauth: integration not connected")
	// ErrProviderDenied carries an error reported by the provider on callback.
	ErrProviderDenied = errors.New("oauth: provider denied authorization")
)
