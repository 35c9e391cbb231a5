// SPDX-License-Identifier: MPL-2.0

package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shirou/gopsutil/v4/process"

	"clash-launcher/internal/events"
)

type (
	// NameKiller terminates processes by executable name.
	NameKiller interface {
		KillByName(ctx context.Context, name string) ([]int32, error)
	}

	// ProcessTable implements NameKiller over the OS process list.
	ProcessTable struct{}
)

// KillByName kills every process other than the caller whose executable name
// equals name, ignoring case and a trailing ".exe".
func (ProcessTable) KillByName(ctx context.Context, name string) ([]int32, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing processes: %w", err)
	}

	want := normalizeName(name)
	self := int32(os.Getpid()) //nolint:gosec // PIDs fit in int32
	var (
		killed []int32
		errs   []error
	)
	for _, p := range procs {
		if p.Pid == self {
			continue
		}
		pname, err := p.NameWithContext(ctx)
		if err != nil || normalizeName(pname) != want {
			continue
		}
		if err := p.KillWithContext(ctx); err != nil {
			errs = append(errs, fmt.Errorf("pid %d: %w", p.Pid, err))
			continue
		}
		killed = append(killed, p.Pid)
	}
	return killed, errors.Join(errs...)
}

func normalizeName(name string) string {
	return strings.TrimSuffix(strings.ToLower(name), ".exe")
}

func (s *Supervisor) killByName(ctx context.Context, kind Kind) error {
	path := s.cfg.ClientPath
	exitEvent := events.GameExit
	if kind == KindServer {
		path = s.cfg.ServerPath
		exitEvent = events.ServerExit
	}
	name := filepath.Base(path)
	if path == "" || name == "." {
		return nil
	}

	s.logger.Warn("tracked process did not exit; killing by executable name", "kind", kind, "name", name)
	killed, err := s.names.KillByName(ctx, name)
	for _, pid := range killed {
		s.sink.Emit(events.Event{Name: exitEvent, PID: int(pid), Payload: "killed by name"})
	}
	if err != nil {
		return fmt.Errorf("killing %s processes named %s: %w", kind, name, err)
	}
	return nil
}
