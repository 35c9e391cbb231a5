// SPDX-License-Identifier: MPL-2.0

// Package install unpacks downloaded release archives into their install
// directories.
package install

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/hashicorp/go-multierror"
)

type (
	// Archive pairs a tar.gz file with the directory it unpacks into.
	Archive struct {
		Path string
		Dest string
	}

	// ExtractionError reports a failure to unpack one archive.
	ExtractionError struct {
		Archive string
		Dest    string
		Err     error
	}

	// Installer extracts batches of archives.
	Installer struct {
		logger *log.Logger
	}

	// Option configures an Installer.
	Option func(*Installer)
)

// Error implements the error interface.
func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extracting %s into %s: %v", e.Archive, e.Dest, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(i *Installer) {
		i.logger = l
	}
}

// New creates an Installer.
func New(opts ...Option) *Installer {
	i := &Installer{}
	for _, opt := range opts {
		opt(i)
	}
	if i.logger == nil {
		i.logger = log.NewWithOptions(os.Stderr, log.Options{Prefix: "install"})
	}
	return i
}

// ExtractAll unpacks every archive concurrently. A failing archive does not
// stop its siblings; once all have finished, the failures are returned
// together as a *multierror.Error whose entries are *ExtractionError values.
// Archives that succeeded stay extracted.
func (i *Installer) ExtractAll(ctx context.Context, archives []Archive) error {
	var g multierror.Group
	for _, a := range archives {
		g.Go(func() error {
			if err := i.extractOne(ctx, a); err != nil {
				i.logger.Error("extraction failed", "archive", a.Path, "dest", a.Dest, "error", err)
				return &ExtractionError{Archive: a.Path, Dest: a.Dest, Err: err}
			}
			i.logger.Info("extraction finished", "archive", a.Path, "dest", a.Dest)
			return nil
		})
	}
	return g.Wait().ErrorOrNil()
}

func (i *Installer) extractOne(ctx context.Context, a Archive) error {
	if err := os.MkdirAll(a.Dest, 0o755); err != nil {
		return fmt.Errorf("creating destination: %w", err)
	}
	f, err := os.Open(a.Path)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer func() { _ = f.Close() }() // read-only archive handle

	return Extract(ctx, f, a.Dest)
}
