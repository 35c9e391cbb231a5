// SPDX-License-Identifier: MPL-2.0

package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
)

// ErrBusy is returned by BeginSpawn when the slot is not idle.
var ErrBusy = errors.New("slot is busy")

// Machine tracks the state of one process slot. The zero value is an idle
// machine ready for use.
type Machine struct {
	// atomic for lock-free reads
	state atomic.Int32
}

// State returns the current slot state (atomic, lock-free read).
func (m *Machine) State() State {
	return State(m.state.Load())
}

// BeginSpawn moves Idle to Spawning. It fails with an error wrapping ErrBusy
// when the slot is in any other state, and with the context error when ctx is
// already done.
func (m *Machine) BeginSpawn(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("context cancelled before spawn: %w", ctx.Err())
	default:
	}

	if !m.state.CompareAndSwap(int32(StateIdle), int32(StateSpawning)) {
		return fmt.Errorf("%w (state %s)", ErrBusy, m.State())
	}
	return nil
}

// MarkRunning moves Spawning to Running. It returns false if the slot was not
// spawning.
func (m *Machine) MarkRunning() bool {
	return m.state.CompareAndSwap(int32(StateSpawning), int32(StateRunning))
}

// Abort returns a Spawning slot to Idle after a failed launch. It is a no-op
// in any other state.
func (m *Machine) Abort() {
	m.state.CompareAndSwap(int32(StateSpawning), int32(StateIdle))
}

// BeginStop moves Running to Stopping. It returns true only for the caller
// that performed the transition; callers that observe Idle, Spawning or
// Stopping get false.
func (m *Machine) BeginStop() bool {
	for {
		current := m.State()
		if current != StateRunning {
			return false
		}
		if m.state.CompareAndSwap(int32(current), int32(StateStopping)) {
			return true
		}
	}
}

// MarkIdle returns the slot to Idle after its process has exited, whether
// the exit was requested or not.
func (m *Machine) MarkIdle() {
	m.state.Store(int32(StateIdle))
}
