package authtoken

import "errors"

var (
	// ErrRefreshFailed wraps the last error of a fetch whose attempts were all exhausted.
	ErrRefreshFailed = errors.New("token refresh failed")

	// ErrProviderClosed is returned to consumers of a provider that has been shut down.
	ErrProviderClosed = errors.New("token provider closed")
)
