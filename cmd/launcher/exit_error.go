// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"os"

	"clash-launcher/internal/config"
	"clash-launcher/internal/install"
	"clash-launcher/internal/portreclaim"
	"clash-launcher/internal/release"
	"clash-launcher/internal/supervisor"
)

const (
	// exitUserError is returned for problems the user can fix locally:
	// missing executables, bad configuration, permissions, a busy port.
	exitUserError = 1
	// exitTransient is returned for network, remote and other failures
	// that may succeed on retry.
	exitTransient = 2
)

// ExitError signals a non-zero exit code without forcing os.Exit in RunE handlers.
type ExitError struct {
	Code int
	Err  error
}

// Error returns the error message for ExitError.
func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

// Unwrap returns the underlying error, if any.
func (e *ExitError) Unwrap() error {
	return e.Err
}

// classifyExitCode maps a core error to the process exit code.
func classifyExitCode(err error) int {
	switch {
	case errors.Is(err, os.ErrPermission),
		errors.Is(err, config.ErrInvalidConfig),
		errors.Is(err, config.ErrConfigNotFound),
		errors.Is(err, release.ErrAmbiguousRelease),
		errors.Is(err, supervisor.ErrExecutableNotFound),
		errors.Is(err, supervisor.ErrAlreadyRunning),
		errors.Is(err, supervisor.ErrPortUnavailable),
		errors.Is(err, portreclaim.ErrPortInUseUnidentified),
		errors.Is(err, portreclaim.ErrKillFailed),
		errors.Is(err, portreclaim.ErrSelfOwned),
		errors.Is(err, portreclaim.ErrPortStillBound),
		errors.Is(err, install.ErrUnsafePath):
		return exitUserError
	default:
		return exitTransient
	}
}
