// SPDX-License-Identifier: MPL-2.0

package release

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"

	"github.com/charmbracelet/log"

	"clash-launcher/internal/remote"
)

const (
	// DefaultEndpoint is the hosted release-metadata endpoint.
	DefaultEndpoint = "https://api.github.com/repos/Superbro525Alt/Y11PY/releases/latest"

	// maxMetadataBytes is the upper bound on the metadata response body (10 MB).
	maxMetadataBytes = 10 << 20
)

type (
	// wireRelease is the JSON wire format of the metadata endpoint.
	wireRelease struct {
		TagName string      `json:"tag_name"`
		Name    string      `json:"name"`
		Body    string      `json:"body"`
		Assets  []wireAsset `json:"assets"`
	}

	wireAsset struct {
		Name               string `json:"name"`
		BrowserDownloadURL string `json:"browser_download_url"`
	}

	// Resolver queries the release-metadata endpoint.
	Resolver struct {
		client   *remote.Client
		endpoint string
		logger   *log.Logger
	}

	// ResolverOption configures a Resolver during construction.
	ResolverOption func(*Resolver)
)

// WithClient sets the HTTP client wrapper used for the metadata request.
func WithClient(c *remote.Client) ResolverOption {
	return func(r *Resolver) {
		r.client = c
	}
}

// WithEndpoint overrides the metadata endpoint URL, primarily for test servers.
func WithEndpoint(endpoint string) ResolverOption {
	return func(r *Resolver) {
		if endpoint != "" {
			r.endpoint = endpoint
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) ResolverOption {
	return func(r *Resolver) {
		r.logger = l
	}
}

// NewResolver creates a Resolver with defaults: DefaultEndpoint and a remote
// client bounded by remote.DefaultTimeout.
func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{endpoint: DefaultEndpoint}
	for _, opt := range opts {
		opt(r)
	}
	if r.client == nil {
		r.client = remote.NewClient(
			remote.WithTimeout(remote.DefaultTimeout),
			remote.WithAccept("application/vnd.github+json"),
		)
	}
	if r.logger == nil {
		r.logger = log.NewWithOptions(os.Stderr, log.Options{Prefix: "release"})
	}
	return r
}

// Latest fetches and decodes the latest release descriptor. It issues exactly
// one request and never retries.
func (r *Resolver) Latest(ctx context.Context) (*Release, error) {
	resp, err := r.client.Get(ctx, r.endpoint)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }() // read-only response body

	var wr wireRelease
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxMetadataBytes)).Decode(&wr); err != nil {
		// A body cut short by the transport surfaces as an unexpected EOF from
		// the decoder; either way the descriptor is unusable.
		return nil, &remote.DecodeError{URL: r.endpoint, Err: err}
	}
	if wr.TagName == "" {
		return nil, &remote.DecodeError{URL: r.endpoint, Err: errors.New("release has no tag_name")}
	}

	rel := &Release{
		Tag:    wr.TagName,
		Name:   wr.Name,
		Body:   wr.Body,
		Assets: make([]Asset, 0, len(wr.Assets)),
	}
	for _, a := range wr.Assets {
		rel.Assets = append(rel.Assets, Asset{Name: a.Name, DownloadURL: a.BrowserDownloadURL})
	}
	return rel, nil
}

// CheckForUpdate fetches the latest release and evaluates it against
// currentTag. Transport, status, and decode failures are returned as errors;
// an incomplete asset set is reported as UpdateAmbiguous, not as an error.
func (r *Resolver) CheckForUpdate(ctx context.Context, currentTag string) (Availability, error) {
	rel, err := r.Latest(ctx)
	if err != nil {
		return Availability{}, err
	}

	av := Evaluate(rel, currentTag)
	switch av.Kind {
	case NoUpdate:
		r.logger.Debug("installed release is current", "tag", rel.Tag)
	case UpdateFound:
		r.logger.Info("update available", "current", currentTag, "latest", rel.Tag)
	case UpdateAmbiguous:
		r.logger.Warn("release is missing its client/server pair", "tag", rel.Tag, "reason", av.Reason)
	}
	return av, nil
}
