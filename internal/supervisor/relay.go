// SPDX-License-Identifier: MPL-2.0

package supervisor

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"clash-launcher/internal/events"
)

// maxLineBytes caps a single relayed line; longer output ends the relay.
const maxLineBytes = 1 << 20

// relay emits one event per line read from r until EOF or a read error, then
// emits a terminal server-log-closed event naming the stream and the reason.
func (s *Supervisor) relay(r io.Reader, pid int, stream string, name events.Name) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), maxLineBytes)
	for sc.Scan() {
		s.sink.Emit(events.Event{Name: name, PID: pid, Payload: strings.TrimSuffix(sc.Text(), "\r")})
	}

	reason := "EOF"
	if err := sc.Err(); err != nil {
		reason = err.Error()
		s.logger.Warn("log relay stopped", "pid", pid, "stream", stream, "error", err)
		// Keep draining so the child never blocks on a full pipe.
		_, _ = io.Copy(io.Discard, r)
	}
	s.sink.Emit(events.Event{
		Name:    events.ServerLogClosed,
		PID:     pid,
		Payload: fmt.Sprintf("log stream closed: %s: %s", stream, reason),
	})
}
