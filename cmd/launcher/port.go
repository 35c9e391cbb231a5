// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"clash-launcher/internal/supervisor"
)

func newFreePortCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "free-port [port]",
		Short: "Stop the process listening on the server port",
		Long: `Stop the process listening on the server port.

Without an argument the configured server port is used. If the port is
free nothing happens. Otherwise the owning process is identified from the
socket table (or lsof/netstat) and killed.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			port := uint16(app.cfg.Server.Port) //nolint:gosec // validated to 1-65535
			if len(args) == 1 {
				p, err := parsePort(args[0])
				if err != nil {
					return app.fail(cmd, err)
				}
				port = p
			}

			if err := runFreePort(cmd.Context(), app.stdout, app.reclaimer(), port); err != nil {
				return app.fail(cmd, actionable("free port", strconv.Itoa(int(port)), err))
			}
			return nil
		},
	}
}

func runFreePort(ctx context.Context, stdout io.Writer, freer supervisor.PortFreer, port uint16) error {
	reclaimed, err := freer.FreePort(ctx, port)
	if err != nil {
		return err
	}
	if reclaimed == nil {
		fmt.Fprintln(stdout, SuccessStyle.Render(fmt.Sprintf("Port %d is free.", port)))
		return nil
	}
	fmt.Fprintln(stdout, WarningStyle.Render(reclaimed.String()))
	return nil
}

func parsePort(s string) (uint16, error) {
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("invalid port %q: want a number between 1 and 65535", s)
	}
	return uint16(n), nil
}
