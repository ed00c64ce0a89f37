package sender

import "errors"

// Sentinel errors for probe delivery. Callers should use errors.Is.
var (
	// ErrMalformedRequest means the captured bytes are not an HTTP/1.x request.
	ErrMalformedRequest = errors.New("sender: malformed raw request")

	// ErrProxy covers bad proxy settings and failures to reach the proxy.
	ErrProxy = errors.New("sender: proxy failure")

	// ErrRequestFailed wraps every other transport error.
	ErrRequestFailed = errors.New("sender: request failed")

	// ErrBodyTooLarge means the response body, raw or decoded, exceeded
	// MaxBodyBytes. Always wrapped together with ErrRequestFailed.
	ErrBodyTooLarge = errors.New("sender: response body too large")

	// ErrDecode means a declared Content-Encoding could not be decoded.
	// Always wrapped together with ErrRequestFailed.
	ErrDecode = errors.New("sender: cannot decode response body")
)
