package ingest

import "errors"

// Fetch and extraction failures callers may branch on.
var (
	// ErrUnsafeURL marks targets the fetch policy refuses to touch.
	ErrUnsafeURL = errors.New("url blocked by fetch policy")
	// ErrUnexpectedStatus reports a non-200 response.
	ErrUnexpectedStatus = errors.New("unexpected response status")
	// ErrResponseTooLarge reports a body over the configured byte cap.
	ErrResponseTooLarge = errors.New("response exceeds size limit")
	// ErrUnsupportedContent reports a media type that is not text.
	ErrUnsupportedContent = errors.New("unsupported content type")
	// ErrNoContent means the page yielded no readable text.
	ErrNoContent = errors.New("no readable text in page")
)
