// SPDX-License-Identifier: MPL-2.0

// Package fetch downloads release artifacts concurrently to local files.
//
// Every download streams into "<dest>.part" and is renamed onto its
// destination only after the body has been copied, flushed, and closed, so a
// truncated transfer never appears at the destination path.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"clash-launcher/internal/remote"
)

const (
	// copyBufferSize is the fixed chunk size used to stream a response body.
	copyBufferSize = 32 << 10

	partSuffix = ".part"
)

var (
	// ErrOverlappingDestination is returned when two tasks in a batch share a
	// destination path.
	ErrOverlappingDestination = errors.New("overlapping download destination")

	// ErrInvalidTask is returned when a task lacks a URL or destination.
	ErrInvalidTask = errors.New("invalid download task")
)

type (
	// Task is one download: the body at URL is written to Dest.
	Task struct {
		URL  string
		Dest string
	}

	// Progress reports bytes written so far for one task.
	Progress struct {
		Task    Task
		Written int64
		Total   int64 // -1 when the server sent no Content-Length
		Done    bool
	}

	// IOError reports a local filesystem failure while writing a download.
	IOError struct {
		Op   string // "create", "write", "sync", "close", "rename", "mkdir"
		Path string
		Err  error
	}

	// TaskError attributes a failure to the task that caused it.
	TaskError struct {
		URL  string
		Dest string
		Err  error
	}

	// Fetcher runs batches of downloads.
	Fetcher struct {
		client   *remote.Client
		logger   *log.Logger
		progress func(Progress)
	}

	// Option configures a Fetcher.
	Option func(*Fetcher)
)

// Error implements the error interface.
func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying filesystem error.
func (e *IOError) Unwrap() error {
	return e.Err
}

// Error implements the error interface.
func (e *TaskError) Error() string {
	return fmt.Sprintf("downloading %s to %s: %v", remote.RedactURL(e.URL), e.Dest, e.Err)
}

// Unwrap returns the task's failure cause.
func (e *TaskError) Unwrap() error {
	return e.Err
}

// WithClient sets the HTTP client wrapper used for downloads.
func WithClient(c *remote.Client) Option {
	return func(f *Fetcher) {
		f.client = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(f *Fetcher) {
		f.logger = l
	}
}

// WithProgress registers a callback invoked from download goroutines as bytes
// are written. The callback must be safe for concurrent use.
func WithProgress(fn func(Progress)) Option {
	return func(f *Fetcher) {
		f.progress = fn
	}
}

// New creates a Fetcher. Downloads have no overall client timeout; they are
// bounded by the context passed to FetchAll.
func New(opts ...Option) *Fetcher {
	f := &Fetcher{}
	for _, opt := range opts {
		opt(f)
	}
	if f.client == nil {
		f.client = remote.NewClient()
	}
	if f.logger == nil {
		f.logger = log.NewWithOptions(os.Stderr, log.Options{Prefix: "fetch"})
	}
	return f
}

// FetchAll downloads every task concurrently and returns once all have
// finished. The first failure cancels the remaining downloads and is returned
// as a *TaskError. Destinations that were already renamed into place stay;
// in-flight ".part" files are left behind and overwritten by the next attempt.
func (f *Fetcher) FetchAll(ctx context.Context, tasks []Task) error {
	if err := validate(tasks); err != nil {
		return err
	}

	for _, t := range tasks {
		dir := filepath.Dir(t.Dest)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return &TaskError{URL: t.URL, Dest: t.Dest, Err: &IOError{Op: "mkdir", Path: dir, Err: err}}
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, t := range tasks {
		g.Go(func() error {
			n, err := f.fetchOne(gctx, t)
			if err != nil {
				return &TaskError{URL: t.URL, Dest: t.Dest, Err: err}
			}
			f.logger.Info("download finished", "url", remote.RedactURL(t.URL), "dest", t.Dest, "bytes", n)
			return nil
		})
	}
	return g.Wait()
}

func validate(tasks []Task) error {
	seen := make(map[string]string, len(tasks))
	for i, t := range tasks {
		if t.URL == "" || t.Dest == "" {
			return fmt.Errorf("%w: task %d needs both a URL and a destination", ErrInvalidTask, i)
		}
		clean := filepath.Clean(t.Dest)
		if prev, ok := seen[clean]; ok {
			return fmt.Errorf("%w: %s is the destination of both %s and %s",
				ErrOverlappingDestination, clean, remote.RedactURL(prev), remote.RedactURL(t.URL))
		}
		seen[clean] = t.URL
	}
	return nil
}

func (f *Fetcher) fetchOne(ctx context.Context, t Task) (int64, error) {
	resp, err := f.client.Get(ctx, t.URL)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }() // read-only response body

	part := t.Dest + partSuffix
	out, err := os.OpenFile(part, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, &IOError{Op: "create", Path: part, Err: err}
	}
	closed := false
	defer func() {
		if !closed {
			_ = out.Close()
		}
	}()

	n, err := f.copyBody(out, resp.Body, t, resp.ContentLength)
	if err != nil {
		return n, err
	}
	if err := out.Sync(); err != nil {
		return n, &IOError{Op: "sync", Path: part, Err: err}
	}
	closed = true
	if err := out.Close(); err != nil {
		return n, &IOError{Op: "close", Path: part, Err: err}
	}
	if err := os.Rename(part, t.Dest); err != nil {
		return n, &IOError{Op: "rename", Path: t.Dest, Err: err}
	}

	f.report(Progress{Task: t, Written: n, Total: resp.ContentLength, Done: true})
	return n, nil
}

// copyBody streams src into dst in fixed-size chunks. Read failures are
// reported as network errors and write failures as *IOError so callers can
// tell a dropped connection from a full disk.
func (f *Fetcher) copyBody(dst *os.File, src io.Reader, t Task, total int64) (int64, error) {
	buf := make([]byte, copyBufferSize)
	var written int64
	for {
		nr, rerr := src.Read(buf)
		if nr > 0 {
			nw, werr := dst.Write(buf[:nr])
			written += int64(nw)
			if werr == nil && nw != nr {
				werr = io.ErrShortWrite
			}
			if werr != nil {
				return written, &IOError{Op: "write", Path: dst.Name(), Err: werr}
			}
			f.report(Progress{Task: t, Written: written, Total: total})
		}
		if errors.Is(rerr, io.EOF) {
			return written, nil
		}
		if rerr != nil {
			return written, &remote.NetworkError{Op: "read body", URL: t.URL, Err: rerr}
		}
	}
}

func (f *Fetcher) report(p Progress) {
	if f.progress != nil {
		f.progress(p)
	}
}
