// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"clash-launcher/internal/events"
	"clash-launcher/internal/supervisor"
)

// stopGrace is added to the configured stop timeout when stopping after the
// command context was cancelled.
const stopGrace = time.Second

type (
	// clientFlags are shared by "start client" and "launch".
	clientFlags struct {
		name    string
		address string
	}

	// launchParams bundles the inputs of runLaunch.
	launchParams struct {
		stdout   io.Writer
		sup      *supervisor.Supervisor
		client   clientFlags
		host     bool
		control  io.Reader // inbound stop-server / stop-game lines; may be nil
		stopWait time.Duration
	}
)

func (f *clientFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.name, "name", "", "player name passed to the client")
	cmd.Flags().StringVar(&f.address, "ip", "127.0.0.1", "server address passed to the client")
	_ = cmd.MarkFlagRequired("name")
}

func newStartCommand(app *App) *cobra.Command {
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the game server or client",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	startCmd.AddCommand(&cobra.Command{
		Use:   "server",
		Short: "Free the server port and run the server in the foreground",
		Long: `Free the server port and run the server in the foreground.

Server stdout and stderr are relayed line by line. Interrupt to stop it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sup := app.supervisor(app.sink)
			if err := runForeground(cmd.Context(), sup, supervisor.KindServer, app.stopWait(), func(ctx context.Context) error {
				_, err := sup.StartServer(ctx)
				return err
			}); err != nil {
				return app.fail(cmd, actionable("start server", app.cfg.Paths.ServerExecutablePath(), err))
			}
			return nil
		},
	})

	var cf clientFlags
	clientCmd := &cobra.Command{
		Use:   "client",
		Short: "Run the game client in the foreground",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sup := app.supervisor(app.sink)
			if err := runForeground(cmd.Context(), sup, supervisor.KindClient, app.stopWait(), func(ctx context.Context) error {
				_, err := sup.StartClient(ctx, cf.name, cf.address)
				return err
			}); err != nil {
				return app.fail(cmd, actionable("start client", app.cfg.Paths.ClientExecutablePath(), err))
			}
			return nil
		},
	}
	cf.register(clientCmd)
	startCmd.AddCommand(clientCmd)

	return startCmd
}

func newLaunchCommand(app *App) *cobra.Command {
	var (
		cf      clientFlags
		host    bool
		control bool
	)
	cmd := &cobra.Command{
		Use:   "launch",
		Short: "Start the server and the client, stop both when the client exits",
		Long: `Start the server and the client, stop both when the client exits.

The installed version is published on start and again whenever the config
file changes. With --control, lines read from stdin are handled as the
inbound signals "stop-server" and "stop-game".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			pub, runWatcher, err := app.versionWatcher()
			if err != nil {
				return app.fail(cmd, actionable("watch configuration", app.cfgPath, err))
			}
			if err := pub.Publish(ctx); err != nil {
				app.logger.Warn("could not publish installed version", "err", err)
			}
			go func() {
				if err := runWatcher(ctx); err != nil {
					app.logger.Warn("config watcher stopped", "err", err)
				}
			}()

			p := launchParams{
				stdout:   app.stdout,
				sup:      app.supervisor(app.sink),
				client:   cf,
				host:     host,
				stopWait: app.stopWait(),
			}
			if control {
				p.control = cmd.InOrStdin()
			}
			if err := runLaunch(ctx, p); err != nil {
				return app.fail(cmd, actionable("launch the game", "", err))
			}
			return nil
		},
	}
	cf.register(cmd)
	cmd.Flags().BoolVar(&host, "host", true, "also run the server (disable to join another host)")
	cmd.Flags().BoolVar(&control, "control", false, "read stop-server / stop-game signals from stdin")
	return cmd
}

func (a *App) stopWait() time.Duration {
	return a.cfg.Server.StopTimeout + stopGrace
}

// runForeground starts one process and blocks until it exits or ctx is
// cancelled, in which case the process is stopped.
func runForeground(ctx context.Context, sup *supervisor.Supervisor, kind supervisor.Kind, stopWait time.Duration, start func(context.Context) error) error {
	if err := start(ctx); err != nil {
		return err
	}
	select {
	case <-sup.Done(kind):
		return nil
	case <-ctx.Done():
		return stopDetached(ctx, stopWait, func(stopCtx context.Context) error {
			return sup.Stop(stopCtx, kind)
		})
	}
}

func runLaunch(ctx context.Context, p launchParams) error {
	if p.host {
		if _, err := p.sup.StartServer(ctx); err != nil {
			return err
		}
	}
	if _, err := p.sup.StartClient(ctx, p.client.name, p.client.address); err != nil {
		stopErr := stopDetached(ctx, p.stopWait, p.sup.StopAll)
		return errors.Join(err, stopErr)
	}

	if p.control != nil {
		go readControl(ctx, p.control, p.sup, p.stdout)
	}

	select {
	case <-p.sup.Done(supervisor.KindClient):
	case <-ctx.Done():
	}
	return stopDetached(ctx, p.stopWait, p.sup.StopAll)
}

// stopDetached runs stop with a context that survives cancellation of ctx
// but is bounded by wait.
func stopDetached(ctx context.Context, wait time.Duration, stop func(context.Context) error) error {
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), wait)
	defer cancel()
	return stop(stopCtx)
}

// readControl forwards inbound signal names read from r to the supervisor
// until r is exhausted or ctx is done.
func readControl(ctx context.Context, r io.Reader, sup *supervisor.Supervisor, out io.Writer) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		name := events.Name(strings.TrimSpace(scanner.Text()))
		if name == "" {
			continue
		}
		if err := sup.HandleSignal(ctx, name); err != nil {
			fmt.Fprintln(out, WarningStyle.Render(err.Error()))
		}
	}
}
