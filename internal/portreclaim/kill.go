// SPDX-License-Identifier: MPL-2.0

package portreclaim

import (
	"context"

	"github.com/shirou/gopsutil/v4/process"
)

type (
	// Killer terminates processes by PID.
	Killer interface {
		Kill(ctx context.Context, pid int32) error
		// Name returns the executable name of pid, or "" if unknown.
		Name(ctx context.Context, pid int32) string
	}

	// ProcessKiller terminates processes with SIGKILL, or TerminateProcess on
	// Windows.
	ProcessKiller struct{}
)

// Kill forcibly terminates pid.
func (ProcessKiller) Kill(ctx context.Context, pid int32) error {
	p, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return err
	}
	return p.KillWithContext(ctx)
}

// Name looks up the executable name of pid.
func (ProcessKiller) Name(ctx context.Context, pid int32) string {
	p, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return ""
	}
	name, err := p.NameWithContext(ctx)
	if err != nil {
		return ""
	}
	return name
}
