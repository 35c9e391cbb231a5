// SPDX-License-Identifier: MPL-2.0

package lifecycle

const (
	// StateIdle indicates no process is tracked in the slot.
	StateIdle State = iota
	// StateSpawning indicates a launch is in progress.
	StateSpawning
	// StateRunning indicates the slot owns a live process.
	StateRunning
	// StateStopping indicates termination was requested and the exit has not
	// been observed yet.
	StateStopping
)

// State is the lifecycle state of a process slot.
type State int32

// String returns a human-readable representation of the slot state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSpawning:
		return "spawning"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}
