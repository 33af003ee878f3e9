package provider

import "errors"

// Sentinel failures surfaced by every adapter. Adapters wrap the
// provider-specific cause with fmt.Errorf("...: %w", ErrXxx) so callers
// can test with errors.Is regardless of which provider is configured.
var (
	// ErrUnauthorized indicates the configured credential was rejected.
	ErrUnauthorized = errors.New("provider: unauthorized")

	// ErrRateLimited indicates the provider rejected the request due to
	// rate limiting.
	ErrRateLimited = errors.New("provider: rate limited")

	// ErrBadResponse indicates a non-2xx or non-decodable response.
	ErrBadResponse = errors.New("provider: bad response")

	// ErrEmptyContent indicates the provider returned an empty or
	// whitespace-only completion.
	ErrEmptyContent = errors.New("provider: empty content")
)
