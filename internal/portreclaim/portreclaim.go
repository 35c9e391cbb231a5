// SPDX-License-Identifier: MPL-2.0

// Package portreclaim frees a TCP port by terminating the process that holds
// it.
//
// Reclaiming is inherently racy: the owner can exit, or another process can
// bind the port, between the availability probe, the owner lookup, and the
// kill. FreePort reports what it observed and never claims the port for
// itself.
package portreclaim

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/charmbracelet/log"
)

const (
	// DefaultHost is the address probed for availability.
	DefaultHost = "127.0.0.1"

	// DefaultReleaseTimeout bounds the wait for the port to become bindable
	// after its owner was killed.
	DefaultReleaseTimeout = 3 * time.Second
)

var (
	// ErrPortInUseUnidentified is returned when the port is bound but no
	// owning process could be found.
	ErrPortInUseUnidentified = errors.New("port in use by an unidentified process")

	// ErrSelfOwned is returned when the only owner of the port is the calling
	// process.
	ErrSelfOwned = errors.New("port is held by this process")

	// ErrKillFailed is the sentinel wrapped by KillError.
	ErrKillFailed = errors.New("failed to terminate port owner")

	// ErrPortStillBound is wrapped by KillError when the owner was signalled
	// but the port did not become available in time.
	ErrPortStillBound = errors.New("port still bound after kill")
)

type (
	// Reclaimed describes a successful reclaim.
	Reclaimed struct {
		PID  int32
		Port uint16
		Name string // executable name, if known
	}

	// KillError reports a failure to terminate the owning process.
	KillError struct {
		PID  int32
		Port uint16
		Err  error
	}

	// Reclaimer frees ports held by other processes.
	Reclaimer struct {
		host           string
		inspector      Inspector
		killer         Killer
		releaseTimeout time.Duration
		selfPID        int32
		logger         *log.Logger
	}

	// Option configures a Reclaimer.
	Option func(*Reclaimer)
)

// String returns the user-facing summary of the reclaim.
func (r *Reclaimed) String() string {
	return fmt.Sprintf("Killed process with PID %d using port %d", r.PID, r.Port)
}

// Error implements the error interface.
func (e *KillError) Error() string {
	return fmt.Sprintf("terminating PID %d holding port %d: %v", e.PID, e.Port, e.Err)
}

// Unwrap exposes ErrKillFailed and the underlying cause.
func (e *KillError) Unwrap() []error {
	return []error{ErrKillFailed, e.Err}
}

// WithHost overrides the address used for availability probes.
func WithHost(host string) Option {
	return func(r *Reclaimer) {
		if host != "" {
			r.host = host
		}
	}
}

// WithInspector replaces the owner lookup.
func WithInspector(i Inspector) Option {
	return func(r *Reclaimer) {
		r.inspector = i
	}
}

// WithKiller replaces the process terminator.
func WithKiller(k Killer) Option {
	return func(r *Reclaimer) {
		r.killer = k
	}
}

// WithReleaseTimeout sets how long FreePort waits for the port to become
// bindable after a kill.
func WithReleaseTimeout(d time.Duration) Option {
	return func(r *Reclaimer) {
		if d > 0 {
			r.releaseTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(r *Reclaimer) {
		r.logger = l
	}
}

// New creates a Reclaimer that looks owners up through the OS socket table,
// falls back to the platform command-line tool, and kills with SIGKILL (or
// TerminateProcess on Windows).
func New(opts ...Option) *Reclaimer {
	r := &Reclaimer{
		host:           DefaultHost,
		releaseTimeout: DefaultReleaseTimeout,
		selfPID:        int32(os.Getpid()), //nolint:gosec // PIDs fit in int32
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.inspector == nil {
		r.inspector = Chain{SocketTable{}, NewCommandInspector()}
	}
	if r.killer == nil {
		r.killer = ProcessKiller{}
	}
	if r.logger == nil {
		r.logger = log.NewWithOptions(os.Stderr, log.Options{Prefix: "portreclaim"})
	}
	return r
}

// FreePort makes port available. It returns nil, nil when nothing was bound
// to it. Otherwise it terminates every process listening on the port and
// returns the first one killed.
func (r *Reclaimer) FreePort(ctx context.Context, port uint16) (*Reclaimed, error) {
	if r.Available(ctx, port) {
		return nil, nil
	}

	pids, err := r.inspector.Owners(ctx, port)
	if err != nil {
		return nil, fmt.Errorf("%w: port %d: %w", ErrPortInUseUnidentified, port, err)
	}

	var targets []int32
	for _, pid := range pids {
		if pid == r.selfPID {
			continue
		}
		targets = append(targets, pid)
	}
	if len(targets) == 0 {
		if len(pids) > 0 {
			return nil, fmt.Errorf("%w: port %d", ErrSelfOwned, port)
		}
		return nil, fmt.Errorf("%w: port %d", ErrPortInUseUnidentified, port)
	}

	reclaimed := &Reclaimed{PID: targets[0], Port: port, Name: r.killer.Name(ctx, targets[0])}
	for _, pid := range targets {
		r.logger.Info("terminating port owner", "pid", pid, "port", port)
		if err := r.killer.Kill(ctx, pid); err != nil {
			return nil, &KillError{PID: pid, Port: port, Err: err}
		}
	}

	if err := r.waitReleased(ctx, port); err != nil {
		return nil, &KillError{PID: targets[0], Port: port, Err: err}
	}

	r.logger.Info(reclaimed.String(), "name", reclaimed.Name)
	return reclaimed, nil
}

// Available reports whether port can be bound on the probe host right now.
// The probe listener is closed before returning.
func (r *Reclaimer) Available(ctx context.Context, port uint16) bool {
	var lc net.ListenConfig
	l, err := lc.Listen(ctx, "tcp", net.JoinHostPort(r.host, strconv.Itoa(int(port))))
	if err != nil {
		return false
	}
	_ = l.Close()
	return true
}

func (r *Reclaimer) waitReleased(ctx context.Context, port uint16) error {
	ctx, cancel := context.WithTimeout(ctx, r.releaseTimeout)
	defer cancel()

	b := backoff.WithContext(&backoff.ExponentialBackOff{
		InitialInterval:     20 * time.Millisecond,
		RandomizationFactor: backoff.DefaultRandomizationFactor,
		Multiplier:          backoff.DefaultMultiplier,
		MaxInterval:         250 * time.Millisecond,
		MaxElapsedTime:      r.releaseTimeout,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}, ctx)

	err := backoff.Retry(func() error {
		if r.Available(ctx, port) {
			return nil
		}
		return ErrPortStillBound
	}, b)
	if err != nil && !errors.Is(err, ErrPortStillBound) {
		// Retry surfaces the context error when the window closes first.
		return fmt.Errorf("%w: %w", ErrPortStillBound, err)
	}
	return err
}
