// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"io"
	"sync"

	"clash-launcher/internal/events"
)

// consoleSink renders events as terminal lines. Relays emit from several
// goroutines, so writes are serialized.
type consoleSink struct {
	mu      sync.Mutex
	w       io.Writer
	verbose bool
}

func newConsoleSink(w io.Writer, verbose bool) *consoleSink {
	return &consoleSink{w: w, verbose: verbose}
}

func (c *consoleSink) Emit(e events.Event) {
	line, ok := c.render(e)
	if !ok {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.w, line)
}

func (c *consoleSink) render(e events.Event) (string, bool) {
	switch e.Name {
	case events.ServerLog:
		return serverTagStyle.Render("[server]") + " " + e.Payload, true
	case events.ServerError:
		return serverTagStyle.Render("[server]") + " " + WarningStyle.Render(e.Payload), true
	case events.ServerProcess:
		return SubtitleStyle.Render(fmt.Sprintf("server started (pid %d)", e.PID)), true
	case events.GameProcess:
		return SubtitleStyle.Render(fmt.Sprintf("client started (pid %d)", e.PID)), true
	case events.ServerExit:
		return SubtitleStyle.Render(fmt.Sprintf("server (pid %d) exited: %s", e.PID, e.Payload)), true
	case events.GameExit:
		return SubtitleStyle.Render(fmt.Sprintf("client (pid %d) exited: %s", e.PID, e.Payload)), true
	case events.PortReclaimed:
		return WarningStyle.Render(e.Payload), true
	case events.UpdateStatus:
		return CmdStyle.Render("›") + " " + e.Payload, true
	case events.ConfigCurrentVersion:
		v := e.Payload
		if v == "" {
			v = "none"
		}
		return SubtitleStyle.Render("installed version: ") + CmdStyle.Render(v), true
	case events.ServerLogClosed:
		return SubtitleStyle.Render(e.Payload), c.verbose
	default:
		return e.String(), c.verbose
	}
}
