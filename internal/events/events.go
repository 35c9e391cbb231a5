// SPDX-License-Identifier: MPL-2.0

// Package events defines the named notifications the launcher core publishes
// to its presentation layer and the sinks that deliver them.
package events

import "fmt"

// Outbound event names.
const (
	GameProcess          Name = "game-process"
	ServerProcess        Name = "server-process"
	ServerLog            Name = "server-log"
	ServerError          Name = "server-error"
	ServerLogClosed      Name = "server-log-closed"
	ServerExit           Name = "server-exit"
	GameExit             Name = "game-exit"
	PortReclaimed        Name = "port-reclaimed"
	ConfigCurrentVersion Name = "config-current-version"
	UpdateStatus         Name = "update-status"
)

// Inbound signal names accepted from the presentation layer.
const (
	StopServer Name = "stop-server"
	StopGame   Name = "stop-game"
)

type (
	// Name identifies an event.
	Name string

	// Event is one notification. PID is set for process events; Payload carries
	// the log line, status text, or version string.
	Event struct {
		Name    Name
		PID     int
		Payload string
	}

	// Sink receives events. Implementations must be safe for concurrent use;
	// relay goroutines emit from several goroutines at once.
	Sink interface {
		Emit(Event)
	}

	// SinkFunc adapts a function to the Sink interface.
	SinkFunc func(Event)

	// Fanout delivers every event to each of its sinks in order.
	Fanout []Sink

	discard struct{}
)

// Discard is a Sink that drops every event.
var Discard Sink = discard{}

// String implements fmt.Stringer.
func (e Event) String() string {
	if e.PID != 0 {
		return fmt.Sprintf("%s[%d] %s", e.Name, e.PID, e.Payload)
	}
	return fmt.Sprintf("%s %s", e.Name, e.Payload)
}

// IsInbound reports whether n is a signal the core accepts rather than emits.
func (n Name) IsInbound() bool {
	return n == StopServer || n == StopGame
}

// Emit calls f(e).
func (f SinkFunc) Emit(e Event) { f(e) }

// Emit forwards e to every sink.
func (f Fanout) Emit(e Event) {
	for _, s := range f {
		if s != nil {
			s.Emit(e)
		}
	}
}

func (discard) Emit(Event) {}
