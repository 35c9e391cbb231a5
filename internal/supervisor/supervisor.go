// SPDX-License-Identifier: MPL-2.0

// Package supervisor launches and stops the game client and server as child
// processes and relays the server's output as events.
//
// The Supervisor is the single owner of both process slots. Each slot holds
// at most one process; its state lives in a lifecycle.Machine and its handle
// in a mutex-guarded registry, so stop requests always target the exact
// process that was started.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"clash-launcher/internal/core/lifecycle"
	"clash-launcher/internal/events"
	"clash-launcher/internal/portreclaim"
)

const (
	// KindClient is the game client slot.
	KindClient Kind = iota
	// KindServer is the game server slot.
	KindServer
)

const (
	// DefaultServerPort is the port the server listens on.
	DefaultServerPort uint16 = 12345

	// DefaultStopTimeout bounds how long Stop waits for a killed process to be
	// reaped.
	DefaultStopTimeout = 5 * time.Second
)

type (
	// Kind selects a process slot.
	Kind int

	// PortFreer makes the server port available before launch.
	PortFreer interface {
		FreePort(ctx context.Context, port uint16) (*portreclaim.Reclaimed, error)
	}

	// Config holds the launch parameters.
	Config struct {
		ClientPath  string
		ServerPath  string
		ServerPort  uint16
		StopTimeout time.Duration
		// KillByNameFallback makes Stop terminate every process whose
		// executable name matches the slot's binary when a process this
		// Supervisor started was killed but never finished exiting. It can
		// kill unrelated processes that share the name.
		KillByNameFallback bool
	}

	// Supervisor owns the client and server process slots.
	Supervisor struct {
		cfg    Config
		ports  PortFreer
		names  NameKiller
		sink   events.Sink
		logger *log.Logger

		mu    sync.Mutex
		slots map[Kind]*slot
	}

	// Option configures a Supervisor.
	Option func(*Supervisor)

	slot struct {
		kind    Kind
		machine lifecycle.Machine

		// guarded by Supervisor.mu
		cmd  *exec.Cmd
		pid  int
		done chan struct{}
	}
)

// String returns the slot name used in logs and errors.
func (k Kind) String() string {
	switch k {
	case KindClient:
		return "client"
	case KindServer:
		return "server"
	default:
		return "unknown"
	}
}

// WithPortFreer sets the port reclaimer consulted by StartServer. Without
// one, StartServer spawns without checking the port.
func WithPortFreer(p PortFreer) Option {
	return func(s *Supervisor) {
		s.ports = p
	}
}

// WithNameKiller replaces the process-table lookup used by the name fallback.
func WithNameKiller(n NameKiller) Option {
	return func(s *Supervisor) {
		s.names = n
	}
}

// WithSink sets the event sink.
func WithSink(sink events.Sink) Option {
	return func(s *Supervisor) {
		s.sink = sink
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Supervisor) {
		s.logger = l
	}
}

// New creates a Supervisor with both slots idle.
func New(cfg Config, opts ...Option) *Supervisor {
	if cfg.ServerPort == 0 {
		cfg.ServerPort = DefaultServerPort
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = DefaultStopTimeout
	}

	s := &Supervisor{
		cfg: cfg,
		slots: map[Kind]*slot{
			KindClient: {kind: KindClient},
			KindServer: {kind: KindServer},
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.sink == nil {
		s.sink = events.Discard
	}
	if s.names == nil {
		s.names = ProcessTable{}
	}
	if s.logger == nil {
		s.logger = log.NewWithOptions(os.Stderr, log.Options{Prefix: "supervisor"})
	}
	return s
}

// StartClient launches the client with "--name <name> --ip <address>" and
// returns its PID. The client's output is not captured.
func (s *Supervisor) StartClient(ctx context.Context, name, address string) (int, error) {
	sl := s.slots[KindClient]
	if err := s.beginSpawn(ctx, sl); err != nil {
		return 0, err
	}

	path, err := s.locate(KindClient)
	if err != nil {
		sl.machine.Abort()
		return 0, err
	}

	cmd := exec.Command(path, "--name", name, "--ip", address) //nolint:gosec,noctx // path is operator-configured; the client outlives any request context
	if err := cmd.Start(); err != nil {
		spawnErr := &SpawnError{Kind: KindClient, Path: path, Err: err}
		sl.machine.Abort()
		return 0, spawnErr
	}

	pid := s.track(sl, cmd)
	s.logger.Info("client started", "pid", pid, "name", name, "ip", address)
	s.sink.Emit(events.Event{Name: events.GameProcess, PID: pid})

	go s.wait(sl, cmd, nil, events.GameExit)
	return pid, nil
}

// StartServer frees the server port, launches the server and returns its PID.
// Each line the server writes is emitted as a server-log (stdout) or
// server-error (stderr) event.
func (s *Supervisor) StartServer(ctx context.Context) (int, error) {
	sl := s.slots[KindServer]
	if err := s.beginSpawn(ctx, sl); err != nil {
		return 0, err
	}

	if s.ports != nil {
		reclaimed, err := s.ports.FreePort(ctx, s.cfg.ServerPort)
		if err != nil {
			portErr := &PortError{Port: s.cfg.ServerPort, Err: err}
			sl.machine.Abort()
			return 0, portErr
		}
		if reclaimed != nil {
			s.sink.Emit(events.Event{Name: events.PortReclaimed, PID: int(reclaimed.PID), Payload: reclaimed.String()})
		}
	}

	path, err := s.locate(KindServer)
	if err != nil {
		sl.machine.Abort()
		return 0, err
	}

	cmd := exec.Command(path) //nolint:gosec,noctx // path is operator-configured; the server outlives any request context
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		spawnErr := &SpawnError{Kind: KindServer, Path: path, Err: err}
		sl.machine.Abort()
		return 0, spawnErr
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		spawnErr := &SpawnError{Kind: KindServer, Path: path, Err: err}
		sl.machine.Abort()
		return 0, spawnErr
	}
	if err := cmd.Start(); err != nil {
		spawnErr := &SpawnError{Kind: KindServer, Path: path, Err: err}
		sl.machine.Abort()
		return 0, spawnErr
	}

	pid := s.track(sl, cmd)
	s.logger.Info("server started", "pid", pid, "port", s.cfg.ServerPort)
	s.sink.Emit(events.Event{Name: events.ServerProcess, PID: pid})

	var relays sync.WaitGroup
	relays.Go(func() { s.relay(stdout, pid, "stdout", events.ServerLog) })
	relays.Go(func() { s.relay(stderr, pid, "stderr", events.ServerError) })

	go s.wait(sl, cmd, &relays, events.ServerExit)
	return pid, nil
}

// StopServer terminates the tracked server.
func (s *Supervisor) StopServer(ctx context.Context) error {
	return s.Stop(ctx, KindServer)
}

// StopClient terminates the tracked client.
func (s *Supervisor) StopClient(ctx context.Context) error {
	return s.Stop(ctx, KindClient)
}

// Stop forcibly terminates the process tracked in the kind slot and waits,
// bounded by ctx and the configured stop timeout, until it has been reaped
// and its output fully relayed. Stopping an idle slot is always a no-op.
//
// With the kill-by-name fallback enabled, a killed process that has not
// finished exiting when the timeout expires is treated as lost: its slot's
// executable name is killed and Stop waits one more timeout.
func (s *Supervisor) Stop(ctx context.Context, kind Kind) error {
	sl, ok := s.slots[kind]
	if !ok {
		return fmt.Errorf("unknown process kind %d", kind)
	}

	s.mu.Lock()
	state := sl.machine.State()
	cmd, done := sl.cmd, sl.done
	initiated := sl.machine.BeginStop()
	s.mu.Unlock()

	switch {
	case initiated:
		s.logger.Info("stopping", "kind", kind, "pid", cmd.Process.Pid)
		if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			return fmt.Errorf("killing %s (pid %d): %w", kind, cmd.Process.Pid, err)
		}
	case state == lifecycle.StateStopping:
		// Another caller already killed it; wait for the same exit.
	case state == lifecycle.StateSpawning:
		return fmt.Errorf("%w: %s", ErrStillStarting, kind)
	default:
		return nil
	}

	err := s.awaitExit(ctx, kind, done)
	if err == nil || !s.cfg.KillByNameFallback || ctx.Err() != nil {
		return err
	}
	if killErr := s.killByName(ctx, kind); killErr != nil {
		return errors.Join(err, killErr)
	}
	return s.awaitExit(ctx, kind, done)
}

func (s *Supervisor) awaitExit(ctx context.Context, kind Kind, done <-chan struct{}) error {
	waitCtx, cancel := context.WithTimeout(ctx, s.cfg.StopTimeout)
	defer cancel()
	select {
	case <-done:
		return nil
	case <-waitCtx.Done():
		return fmt.Errorf("waiting for %s to exit: %w", kind, waitCtx.Err())
	}
}

// StopAll stops both slots and returns every failure.
func (s *Supervisor) StopAll(ctx context.Context) error {
	return errors.Join(s.Stop(ctx, KindClient), s.Stop(ctx, KindServer))
}

// HandleSignal maps the inbound stop-server and stop-game signals onto Stop.
func (s *Supervisor) HandleSignal(ctx context.Context, name events.Name) error {
	if !name.IsInbound() {
		return fmt.Errorf("%w: %q", ErrUnknownSignal, name)
	}
	if name == events.StopGame {
		return s.Stop(ctx, KindClient)
	}
	return s.Stop(ctx, KindServer)
}

// State returns the lifecycle state of the kind slot.
func (s *Supervisor) State(kind Kind) lifecycle.State {
	sl, ok := s.slots[kind]
	if !ok {
		return lifecycle.StateIdle
	}
	return sl.machine.State()
}

// PID returns the PID tracked in the kind slot, or 0 if none.
func (s *Supervisor) PID(kind Kind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sl, ok := s.slots[kind]; ok {
		return sl.pid
	}
	return 0
}

// Done returns a channel closed when the process tracked in the kind slot has
// exited and been reaped. For an idle slot the channel is already closed.
func (s *Supervisor) Done(kind Kind) <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sl, ok := s.slots[kind]; ok && sl.done != nil {
		return sl.done
	}
	closed := make(chan struct{})
	close(closed)
	return closed
}

func (s *Supervisor) beginSpawn(ctx context.Context, sl *slot) error {
	if err := sl.machine.BeginSpawn(ctx); err != nil {
		if errors.Is(err, lifecycle.ErrBusy) {
			return fmt.Errorf("%w: %s (pid %d)", ErrAlreadyRunning, sl.kind, s.PID(sl.kind))
		}
		return err
	}
	return nil
}

func (s *Supervisor) locate(kind Kind) (string, error) {
	path := s.cfg.ClientPath
	if kind == KindServer {
		path = s.cfg.ServerPath
	}
	if path == "" {
		return "", &ExecutableNotFoundError{Kind: kind, Path: path}
	}
	fi, err := os.Stat(path)
	if err != nil || fi.IsDir() {
		return "", &ExecutableNotFoundError{Kind: kind, Path: path}
	}
	// exec.Command resolves bare names through PATH; keep relative paths
	// anchored to the working directory.
	if !filepath.IsAbs(path) && filepath.Base(path) == path {
		path = "." + string(filepath.Separator) + path
	}
	return path, nil
}

func (s *Supervisor) track(sl *slot, cmd *exec.Cmd) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl.cmd = cmd
	sl.pid = cmd.Process.Pid
	sl.done = make(chan struct{})
	sl.machine.MarkRunning()
	return sl.pid
}

// wait reaps cmd once its relays have drained, emits the exit event and
// returns the slot to idle.
func (s *Supervisor) wait(sl *slot, cmd *exec.Cmd, relays *sync.WaitGroup, exitEvent events.Name) {
	if relays != nil {
		relays.Wait()
	}
	err := cmd.Wait()
	pid := cmd.Process.Pid
	status := exitStatus(err)
	s.logger.Info("process exited", "kind", sl.kind, "pid", pid, "status", status)
	s.sink.Emit(events.Event{Name: exitEvent, PID: pid, Payload: status})

	s.mu.Lock()
	done := sl.done
	sl.cmd = nil
	sl.pid = 0
	sl.machine.MarkIdle()
	s.mu.Unlock()
	close(done)
}

func exitStatus(err error) string {
	if err == nil {
		return "exit status 0"
	}
	return err.Error()
}
