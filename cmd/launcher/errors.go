// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"os"

	"clash-launcher/internal/fetch"
	"clash-launcher/internal/install"
	"clash-launcher/internal/issue"
	"clash-launcher/internal/portreclaim"
	"clash-launcher/internal/release"
	"clash-launcher/internal/remote"
	"clash-launcher/internal/supervisor"
)

// actionable wraps a core error with remediation hints and a guide. Errors
// that already are actionable (configuration) pass through unchanged.
func actionable(operation, resource string, err error) error {
	if err == nil {
		return nil
	}
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		return err
	}

	ctx := issue.NewErrorContext().WithOperation(operation).WithResource(resource).Wrap(err)

	var (
		notFound *supervisor.ExecutableNotFoundError
		portErr  *supervisor.PortError
		taskErr  *fetch.TaskError
		xerr     *install.ExtractionError
	)
	switch {
	case errors.Is(err, os.ErrPermission):
		ctx.WithGuide(issue.PermissionDeniedId).
			WithSuggestion("Check ownership of the install directories")
	case errors.As(err, &notFound):
		ctx.WithGuide(issue.ExecutableMissingId).
			WithResource(notFound.Path).
			WithSuggestion("Run 'clash-launcher update' to install the game")
	case errors.As(err, &portErr), errors.Is(err, portreclaim.ErrPortInUseUnidentified),
		errors.Is(err, portreclaim.ErrKillFailed), errors.Is(err, portreclaim.ErrPortStillBound):
		ctx.WithGuide(issue.PortInUseId).
			WithSuggestion("Run 'clash-launcher free-port' to see which process holds the port")
	case errors.Is(err, supervisor.ErrAlreadyRunning):
		ctx.WithSuggestion("Stop the running process first")
	case errors.Is(err, release.ErrAmbiguousRelease):
		ctx.WithGuide(issue.AmbiguousReleaseId)
	case errors.As(err, &taskErr):
		ctx.WithGuide(issue.DownloadFailedId).
			WithResource(taskErr.Dest).
			WithSuggestion("Retry 'clash-launcher update'")
	case errors.As(err, &xerr):
		ctx.WithGuide(issue.ExtractionFailedId).
			WithResource(xerr.Archive)
	case errors.Is(err, remote.ErrNetwork), errors.Is(err, remote.ErrRemote), errors.Is(err, remote.ErrDecode):
		ctx.WithGuide(issue.UpdateCheckFailedId).
			WithSuggestion("You can still start the installed version")
	}
	return ctx.BuildError()
}

// formatErrorForDisplay formats an error for user display. In verbose mode
// the error chain and the linked troubleshooting guide are included.
func formatErrorForDisplay(err error, verbose bool) string {
	var ae *issue.ActionableError
	if !errors.As(err, &ae) {
		return ErrorStyle.Render("Error: ") + err.Error()
	}

	out := ErrorStyle.Render("Error: ") + ae.Format(verbose)
	if verbose && ae.Guide != 0 {
		if guide := issue.Get(ae.Guide); guide != nil {
			if rendered, renderErr := guide.Render("auto"); renderErr == nil {
				out += "\n" + rendered
			}
		}
	}
	return out
}
