// SPDX-License-Identifier: MPL-2.0

package update

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/charmbracelet/log"

	"clash-launcher/internal/events"
	"clash-launcher/internal/fetch"
	"clash-launcher/internal/install"
	"clash-launcher/internal/release"
)

var (
	// ErrNothingToApply is returned by Apply for a NoUpdate availability.
	ErrNothingToApply = errors.New("no update to apply")
	// ErrUpdateInProgress is returned when Apply is called while another
	// Apply on the same Updater is running.
	ErrUpdateInProgress = errors.New("update already in progress")
)

type (
	// Checker reports whether a newer release exists.
	Checker interface {
		CheckForUpdate(ctx context.Context, currentTag string) (release.Availability, error)
	}

	// Downloader fetches a batch of files.
	Downloader interface {
		FetchAll(ctx context.Context, tasks []fetch.Task) error
	}

	// Extractor unpacks a batch of archives.
	Extractor interface {
		ExtractAll(ctx context.Context, archives []install.Archive) error
	}

	// Result summarizes one Run.
	Result struct {
		Availability release.Availability
		Applied      bool
	}

	// Updater runs the check, download and extract stages.
	Updater struct {
		layout     Layout
		checker    Checker
		downloader Downloader
		extractor  Extractor
		sink       events.Sink
		logger     *log.Logger
		applying   sync.Mutex
	}

	// Option configures an Updater during construction.
	Option func(*Updater)
)

// WithSink sets where update-status events go.
func WithSink(s events.Sink) Option {
	return func(u *Updater) {
		if s != nil {
			u.sink = s
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(u *Updater) {
		if l != nil {
			u.logger = l
		}
	}
}

// New creates an Updater over layout.
func New(layout Layout, checker Checker, downloader Downloader, extractor Extractor, opts ...Option) *Updater {
	u := &Updater{
		layout:     layout,
		checker:    checker,
		downloader: downloader,
		extractor:  extractor,
		sink:       events.Discard,
		logger:     log.NewWithOptions(os.Stderr, log.Options{Prefix: "update"}),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Layout returns the filesystem layout the Updater writes to.
func (u *Updater) Layout() Layout { return u.layout }

// Check asks the release resolver whether currentTag is out of date.
func (u *Updater) Check(ctx context.Context, currentTag string) (release.Availability, error) {
	u.status("checking for updates")
	av, err := u.checker.CheckForUpdate(ctx, currentTag)
	if err != nil {
		u.status("update check failed: " + err.Error())
		return release.Availability{}, fmt.Errorf("check for update: %w", err)
	}

	switch av.Kind {
	case release.NoUpdate:
		u.status("up to date: " + av.Tag)
	case release.UpdateFound:
		u.status(fmt.Sprintf("update available: %s (%s)", av.Tag, av.Direction()))
	case release.UpdateAmbiguous:
		u.status(fmt.Sprintf("release %s is ambiguous: %s", av.Tag, av.Reason))
	}
	return av, nil
}

// Apply downloads both packages of an UpdateFound availability, then
// extracts both. Ambiguous availabilities return their Err.
func (u *Updater) Apply(ctx context.Context, av release.Availability) error {
	switch av.Kind {
	case release.UpdateFound:
	case release.UpdateAmbiguous:
		return av.Err()
	default:
		return ErrNothingToApply
	}

	if !u.applying.TryLock() {
		return ErrUpdateInProgress
	}
	defer u.applying.Unlock()

	u.status("downloading " + av.Tag)
	if err := u.downloader.FetchAll(ctx, u.layout.tasks(av)); err != nil {
		u.status("download failed: " + err.Error())
		return fmt.Errorf("download %s: %w", av.Tag, err)
	}

	u.status("extracting " + av.Tag)
	if err := u.extractor.ExtractAll(ctx, u.layout.archives()); err != nil {
		u.status("extraction failed: " + err.Error())
		return fmt.Errorf("extract %s: %w", av.Tag, err)
	}

	u.logger.Info("update installed", "tag", av.Tag, "client", u.layout.ClientDir, "server", u.layout.ServerDir)
	u.status("installed " + av.Tag)
	return nil
}

// Run checks for an update and applies it when one is found. An ambiguous
// release is reported in Result and is not an error.
func (u *Updater) Run(ctx context.Context, currentTag string) (Result, error) {
	av, err := u.Check(ctx, currentTag)
	if err != nil {
		return Result{}, err
	}
	res := Result{Availability: av}
	if av.Kind != release.UpdateFound {
		return res, nil
	}
	if err := u.Apply(ctx, av); err != nil {
		return res, err
	}
	res.Applied = true
	return res, nil
}

func (u *Updater) status(msg string) {
	u.sink.Emit(events.Event{Name: events.UpdateStatus, Payload: msg})
}
