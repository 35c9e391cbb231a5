// SPDX-License-Identifier: MPL-2.0

package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultUserAgent is sent when no explicit User-Agent is configured.
	DefaultUserAgent = "clash-launcher/dev"

	// DefaultTimeout bounds a metadata request end to end.
	DefaultTimeout = 30 * time.Second
)

var (
	// ErrNetwork is the sentinel wrapped by NetworkError.
	ErrNetwork = errors.New("network error")
	// ErrRemote is the sentinel wrapped by RemoteError.
	ErrRemote = errors.New("remote returned an unsuccessful status")
	// ErrDecode is the sentinel wrapped by DecodeError.
	ErrDecode = errors.New("decode error")
)

type (
	// NetworkError reports that a request could not be sent, timed out, or that
	// the response body could not be read to completion.
	NetworkError struct {
		Op  string // "request", "read body"
		URL string
		Err error
	}

	// RemoteError reports a non-2xx HTTP status.
	RemoteError struct {
		URL    string
		Status int
	}

	// DecodeError reports a response body that could not be parsed.
	DecodeError struct {
		URL string
		Err error
	}

	// Client issues GET requests with common headers. The zero value is not
	// usable; construct with NewClient.
	Client struct {
		httpClient *http.Client
		userAgent  string
		accept     string
	}

	// ClientOption configures a Client during construction.
	ClientOption func(*Client)
)

// Error implements the error interface.
func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, RedactURL(e.URL), e.Err)
}

// Unwrap exposes both the sentinel and the underlying cause so that
// errors.Is works for ErrNetwork as well as context.DeadlineExceeded.
func (e *NetworkError) Unwrap() []error {
	return []error{ErrNetwork, e.Err}
}

// Error implements the error interface.
func (e *RemoteError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d %s", RedactURL(e.URL), e.Status, http.StatusText(e.Status))
}

// Unwrap returns ErrRemote for errors.Is compatibility.
func (e *RemoteError) Unwrap() error {
	return ErrRemote
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding response from %s: %v", RedactURL(e.URL), e.Err)
}

// Unwrap exposes the sentinel and the parser error.
func (e *DecodeError) Unwrap() []error {
	return []error{ErrDecode, e.Err}
}

// WithHTTPClient sets a custom HTTP client, useful for tests or proxies.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(r *Client) {
		r.httpClient = c
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) ClientOption {
	return func(r *Client) {
		if ua != "" {
			r.userAgent = ua
		}
	}
}

// WithTimeout replaces the HTTP client with one bounded by d. A zero or
// negative duration leaves the request bounded by its context only.
func WithTimeout(d time.Duration) ClientOption {
	return func(r *Client) {
		if d > 0 {
			r.httpClient = &http.Client{Timeout: d}
		} else {
			r.httpClient = &http.Client{}
		}
	}
}

// WithAccept sets the Accept header.
func WithAccept(accept string) ClientOption {
	return func(r *Client) {
		r.accept = accept
	}
}

// NewClient creates a Client. Defaults: a plain http.Client without an overall
// timeout (streaming downloads are bounded by context instead) and
// DefaultUserAgent.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{},
		userAgent:  DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get performs a GET request and verifies a 2xx status. On success the caller
// owns the response body. Transport failures yield *NetworkError and non-2xx
// statuses yield *RemoteError; in the latter case the body is already closed.
func (c *Client) Get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, &NetworkError{Op: "request", URL: rawURL, Err: err}
	}

	req.Header.Set("User-Agent", c.userAgent)
	if c.accept != "" {
		req.Header.Set("Accept", c.accept)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &NetworkError{Op: "request", URL: rawURL, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_ = resp.Body.Close()
		return nil, &RemoteError{URL: rawURL, Status: resp.StatusCode}
	}

	return resp, nil
}

// RedactURL strips query parameters and fragments from a URL for safe
// inclusion in error messages and logs. Signed CDN download URLs carry
// credentials in the query string.
func RedactURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<invalid-url>"
	}
	u.RawQuery = ""
	u.Fragment = ""
	return strings.TrimSuffix(u.String(), "?")
}
