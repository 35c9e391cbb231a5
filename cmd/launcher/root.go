// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"
)

// newRootCommand builds the command tree around app.
func newRootCommand(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:   "clash-launcher",
		Short: "Update and launch the game client and server",
		Long: TitleStyle.Render("clash-launcher") + SubtitleStyle.Render(" - update and launch the game") + `

clash-launcher checks the release service for a newer game release,
downloads and unpacks the client and server packages, and runs both
as supervised processes, freeing the server port first.

` + SubtitleStyle.Render("Examples:") + `
  clash-launcher check --notes           Show whether an update is available
  clash-launcher update                  Install the latest release
  clash-launcher launch --name Ada       Start the server, then the client
  clash-launcher free-port 12345         Stop whatever listens on the server port`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := app.Init(cmd.Context()); err != nil {
				return app.fail(cmd, err)
			}
			return nil
		},
	}

	root.PersistentFlags().BoolVarP(&app.flags.verbose, "verbose", "v", false, "enable verbose output")
	root.PersistentFlags().StringVar(&app.flags.configPath, "config", "", "config file (default is ./config.json)")

	root.AddCommand(
		newCheckCommand(app),
		newUpdateCommand(app),
		newFreePortCommand(app),
		newStartCommand(app),
		newLaunchCommand(app),
		newConfigCommand(app),
		newVersionCommand(app),
	)
	return root
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Execute runs the CLI. It is called by main.main().
func Execute() {
	app := NewApp(Dependencies{})
	// fang overrides rootCmd.Version, so the version goes through WithVersion.
	err := fang.Execute(
		context.Background(),
		newRootCommand(app),
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
		fang.WithErrorHandler(errorHandler),
	)
	if closeErr := app.Close(); closeErr != nil {
		fmt.Fprintln(os.Stderr, WarningStyle.Render("Warning: ")+closeErr.Error())
	}
	if err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}

// errorHandler leaves errors already printed by fail to the exit code and
// hands everything else (usage errors, unknown flags) to fang.
func errorHandler(w io.Writer, styles fang.Styles, err error) {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return
	}
	fang.DefaultErrorHandler(w, styles, err)
}

// fail prints err for the user and converts it to an ExitError carrying the
// classified exit code.
func (a *App) fail(cmd *cobra.Command, err error) error {
	cmd.SilenceErrors = true
	fmt.Fprintln(a.stderr, formatErrorForDisplay(err, a.flags.verbose))
	return &ExitError{Code: classifyExitCode(err), Err: err}
}
