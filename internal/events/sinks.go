// SPDX-License-Identifier: MPL-2.0

package events

import (
	"context"
	"slices"
	"sync"

	"github.com/charmbracelet/log"
)

type (
	// Recorder stores every event it receives.
	Recorder struct {
		mu     sync.Mutex
		events []Event
		notify chan struct{}
	}

	// LogSink writes every event to a structured logger. Log lines from the
	// server go out at info level, error-stream lines at warn.
	LogSink struct {
		logger *log.Logger
	}
)

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{notify: make(chan struct{}, 1)}
}

// Emit appends e.
func (r *Recorder) Emit(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()

	select {
	case r.notify <- struct{}{}:
	default:
	}
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events)
}

// Named returns the recorded events with the given name, in arrival order.
func (r *Recorder) Named(name Name) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

// WaitFor blocks until cond holds for the recorded events or ctx is done.
func (r *Recorder) WaitFor(ctx context.Context, cond func([]Event) bool) error {
	for {
		if cond(r.Events()) {
			return nil
		}
		select {
		case <-r.notify:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// NewLogSink creates a LogSink writing to logger.
func NewLogSink(logger *log.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Emit logs e.
func (s *LogSink) Emit(e Event) {
	kv := []any{"event", string(e.Name)}
	if e.PID != 0 {
		kv = append(kv, "pid", e.PID)
	}

	switch e.Name {
	case ServerError:
		s.logger.Warn(e.Payload, kv...)
	case ServerLog, ServerLogClosed, ServerExit, GameExit, PortReclaimed:
		s.logger.Info(e.Payload, kv...)
	default:
		s.logger.Debug(e.Payload, kv...)
	}
}
