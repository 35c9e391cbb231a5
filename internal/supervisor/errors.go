// SPDX-License-Identifier: MPL-2.0

package supervisor

import (
	"errors"
	"fmt"
)

var (
	// ErrExecutableNotFound is the sentinel wrapped by ExecutableNotFoundError.
	ErrExecutableNotFound = errors.New("executable not found")

	// ErrSpawnFailed is the sentinel wrapped by SpawnError.
	ErrSpawnFailed = errors.New("failed to start process")

	// ErrPortUnavailable is the sentinel wrapped by PortError.
	ErrPortUnavailable = errors.New("server port unavailable")

	// ErrAlreadyRunning is returned when starting a slot that already tracks
	// a process.
	ErrAlreadyRunning = errors.New("process already running")

	// ErrStillStarting is returned by Stop while the slot's launch is in
	// progress.
	ErrStillStarting = errors.New("process is still starting")

	// ErrUnknownSignal is returned by HandleSignal for names it does not accept.
	ErrUnknownSignal = errors.New("unknown signal")
)

type (
	// ExecutableNotFoundError reports a missing client or server binary.
	ExecutableNotFoundError struct {
		Kind Kind
		Path string
	}

	// SpawnError reports an OS-level failure to start a process.
	SpawnError struct {
		Kind Kind
		Path string
		Err  error
	}

	// PortError reports that the server port could not be freed before launch.
	PortError struct {
		Port uint16
		Err  error
	}
)

// Error implements the error interface.
func (e *ExecutableNotFoundError) Error() string {
	return fmt.Sprintf("%s executable not found at %s", e.Kind, e.Path)
}

// Unwrap returns ErrExecutableNotFound for errors.Is compatibility.
func (e *ExecutableNotFoundError) Unwrap() error {
	return ErrExecutableNotFound
}

// Error implements the error interface.
func (e *SpawnError) Error() string {
	return fmt.Sprintf("starting %s %s: %v", e.Kind, e.Path, e.Err)
}

// Unwrap exposes ErrSpawnFailed and the OS error.
func (e *SpawnError) Unwrap() []error {
	return []error{ErrSpawnFailed, e.Err}
}

// Error implements the error interface.
func (e *PortError) Error() string {
	return fmt.Sprintf("freeing server port %d: %v", e.Port, e.Err)
}

// Unwrap exposes ErrPortUnavailable and the reclaim failure.
func (e *PortError) Unwrap() []error {
	return []error{ErrPortUnavailable, e.Err}
}
