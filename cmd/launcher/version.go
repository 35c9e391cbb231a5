// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func newVersionCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show the launcher and installed game versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			printVersions(app.stdout, app.cfg.CurrentVersion)
			return nil
		},
	}
}

func printVersions(w io.Writer, installed string) {
	fmt.Fprintf(w, "%s %s\n", SubtitleStyle.Render("launcher:"), getVersionString())
	fmt.Fprintf(w, "%s %s\n", SubtitleStyle.Render("game:    "), CmdStyle.Render(displayVersion(installed)))
}
