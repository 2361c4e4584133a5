package provider

import "errors"

// Domain errors surfaced to callers. Provider-library errors are wrapped
// into these before crossing the API boundary.
var (
	// ErrProviderExchange means a one-time code or public token was
	// invalid or expired. Recoverable by restarting the link flow.
	ErrProviderExchange = errors.New("provider token exchange failed")

	// ErrUnsupportedRegion means the provider does not operate in the
	// user's region. Not retryable.
	ErrUnsupportedRegion = errors.New("provider not supported in region")

	// ErrProviderUnavailable means the provider has no operator
	// credentials configured and demo mode is off.
	ErrProviderUnavailable = errors.New("provider not available")

	// ErrUnknownProvider means the requested provider id is not registered.
	ErrUnknownProvider = errors.New("unknown provider")

	// ErrRefreshUnsupported means the provider issues no refresh tokens.
	ErrRefreshUnsupported = errors.New("provider does not support token refresh")
)
