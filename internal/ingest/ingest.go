// Package ingest fetches remote pages and reduces them to plain text fit
// for generation source material.
//
// Fetching is guarded against server-side request forgery: schemes other
// than http and https, private and link-local addresses, and cloud
// metadata endpoints are refused, on the initial URL, on every redirect
// hop, and at dial time. Extraction prefers readability's article view
// and falls back to walking block elements when a page does not score as
// an article.
package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Fetch limits, applied unless an Option overrides them.
const (
	DefaultMaxBytes  = 10 * 1024 * 1024
	DefaultTimeout   = 30 * time.Second
	DefaultUserAgent = "inkwell/1.0"
)

// Source is one fetched page reduced to generation source material.
type Source struct {
	// URL is the final URL after redirects.
	URL string
	// Title comes from the article metadata or the title element. It may
	// be empty for plain text sources.
	Title string
	// Text is the extracted, whitespace-normalized body text.
	Text string
	// ContentType is the bare media type the server declared.
	ContentType string
}

// Option adjusts a Fetcher.
type Option func(*Fetcher)

// WithMaxBytes caps the response body size.
func WithMaxBytes(n int64) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxBytes = n
		}
	}
}

// WithTimeout bounds the whole fetch, including redirects and the body
// read.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// WithUserAgent sets the User-Agent header on fetches.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) {
		if ua != "" {
			f.userAgent = ua
		}
	}
}

// WithLogger sets the fetch logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Fetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithAllowPrivateHosts admits loopback and private address ranges, for
// source pages hosted inside the perimeter. Cloud metadata endpoints stay
// blocked.
func WithAllowPrivateHosts() Option {
	return func(f *Fetcher) {
		f.guard.allowPrivate = true
	}
}

// Fetcher downloads pages and extracts their text. It is safe for
// concurrent use.
type Fetcher struct {
	client    *http.Client
	guard     urlGuard
	maxBytes  int64
	timeout   time.Duration
	userAgent string
	logger    *slog.Logger
}

// New builds a Fetcher with the default limits applied.
func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		maxBytes:  DefaultMaxBytes,
		timeout:   DefaultTimeout,
		userAgent: DefaultUserAgent,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.client = &http.Client{
		Timeout:       f.timeout,
		Transport:     f.guard.transport(),
		CheckRedirect: f.guard.checkRedirect,
	}
	return f
}

// Fetch downloads rawURL and extracts its readable text. It returns
// ErrUnsafeURL for targets the fetch policy refuses, ErrUnexpectedStatus
// for non-200 responses, ErrResponseTooLarge when the body exceeds the
// byte cap, ErrUnsupportedContent for non-text media types, and
// ErrNoContent when extraction finds nothing.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Source, error) {
	if err := f.guard.validate(rawURL); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnsafeURL, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.1")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", rawURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %d from %s", ErrUnexpectedStatus, resp.StatusCode, rawURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if int64(len(body)) > f.maxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes from %s", ErrResponseTooLarge, f.maxBytes, rawURL)
	}

	header := resp.Header.Get("Content-Type")
	mediaType := parseMediaType(header)

	var title, text string
	switch mediaType {
	case "text/plain", "text/markdown":
		text, err = extractPlain(header, body)
	case "text/html", "application/xhtml+xml":
		title, text, err = extractHTML(resp.Request.URL, header, body)
	default:
		err = fmt.Errorf("%w: %q", ErrUnsupportedContent, mediaType)
	}
	if err != nil {
		return nil, fmt.Errorf("extracting %s: %w", rawURL, err)
	}

	f.logger.Debug("source fetched",
		"url", rawURL,
		"bytes", len(body),
		"text_length", len(text),
	)

	return &Source{
		URL:         resp.Request.URL.String(),
		Title:       title,
		Text:        text,
		ContentType: mediaType,
	}, nil
}
