// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"clash-launcher/internal/fetch"
	"clash-launcher/internal/release"
	"clash-launcher/internal/update"
)

type (
	// checkParams bundles the inputs of runCheck so it can be tested without
	// a Cobra command.
	checkParams struct {
		stdout  io.Writer
		updater *update.Updater
		current string
		notes   bool
	}

	// updateParams bundles the inputs of runUpdate.
	updateParams struct {
		stdout  io.Writer
		updater *update.Updater
		current string
	}
)

func newCheckCommand(app *App) *cobra.Command {
	var notes bool
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check whether a newer release is available",
		Long: `Check whether a newer release is available.

Any release whose tag differs from the installed version counts as an
update. A release that lacks exactly one client and one server package
is reported as ambiguous and is never installed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p := checkParams{
				stdout:  app.stdout,
				updater: app.updater(nil),
				current: app.cfg.CurrentVersion,
				notes:   notes,
			}
			if err := runCheck(cmd.Context(), p); err != nil {
				return app.fail(cmd, actionable("check for updates", app.cfg.Release.URL, err))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&notes, "notes", false, "render the release notes of an available update")
	return cmd
}

func runCheck(ctx context.Context, p checkParams) error {
	av, err := p.updater.Check(ctx, p.current)
	if err != nil {
		return err
	}

	fmt.Fprintf(p.stdout, "Installed version: %s\n", displayVersion(p.current))
	fmt.Fprintf(p.stdout, "Latest release:    %s\n\n", CmdStyle.Render(av.Tag))

	switch av.Kind {
	case release.NoUpdate:
		fmt.Fprintln(p.stdout, SuccessStyle.Render("You are running the latest release."))
	case release.UpdateAmbiguous:
		fmt.Fprintln(p.stdout, WarningStyle.Render("The latest release cannot be installed: "+av.Reason))
	case release.UpdateFound:
		fmt.Fprintf(p.stdout, "An update is available (%s).\n", av.Direction())
		fmt.Fprintln(p.stdout, "Run "+CmdStyle.Render("clash-launcher update")+" to install it.")
		if p.notes && av.Release != nil && strings.TrimSpace(av.Release.Body) != "" {
			rendered, renderErr := glamour.Render(av.Release.Body, "auto")
			if renderErr != nil {
				rendered = av.Release.Body
			}
			fmt.Fprintln(p.stdout, rendered)
		}
	}
	return nil
}

func newUpdateCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "update",
		Short: "Download and install the latest release",
		Long: `Download and install the latest release.

Both packages are downloaded to the staging directory first and then
extracted into the client and server install directories. Stop the
game before updating.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p := updateParams{
				stdout:  app.stdout,
				updater: app.updater(newProgressPrinter(app.stdout).report),
				current: app.cfg.CurrentVersion,
			}
			if err := runUpdate(cmd.Context(), p); err != nil {
				return app.fail(cmd, actionable("update the game", app.cfg.Paths.Root, err))
			}
			return nil
		},
	}
}

func runUpdate(ctx context.Context, p updateParams) error {
	res, err := p.updater.Run(ctx, p.current)
	if err != nil {
		return err
	}

	switch res.Availability.Kind {
	case release.NoUpdate:
		fmt.Fprintln(p.stdout, SuccessStyle.Render("Already up to date ("+displayVersion(p.current)+")."))
	case release.UpdateAmbiguous:
		return res.Availability.Err()
	case release.UpdateFound:
		layout := p.updater.Layout()
		fmt.Fprintln(p.stdout, SuccessStyle.Render("Installed "+res.Availability.Tag+"."))
		fmt.Fprintf(p.stdout, "  client: %s\n  server: %s\n", layout.ClientDir, layout.ServerDir)
		fmt.Fprintln(p.stdout, SubtitleStyle.Render("current_version in config.json is managed outside the launcher and was not changed."))
	}
	return nil
}

// progressPrinter reports each finished download once.
type progressPrinter struct {
	mu sync.Mutex
	w  io.Writer
}

func newProgressPrinter(w io.Writer) *progressPrinter {
	return &progressPrinter{w: w}
}

func (p *progressPrinter) report(pr fetch.Progress) {
	if !pr.Done {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "  downloaded %s (%s)\n", pr.Task.Dest, humanBytes(pr.Written))
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func displayVersion(v string) string {
	if v == "" {
		return "none"
	}
	return v
}
