// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"clash-launcher/internal/config"
	"clash-launcher/internal/events"
	"clash-launcher/internal/fetch"
	"clash-launcher/internal/install"
	"clash-launcher/internal/portreclaim"
	"clash-launcher/internal/release"
	"clash-launcher/internal/remote"
	"clash-launcher/internal/supervisor"
	"clash-launcher/internal/update"
	"clash-launcher/internal/watch"
)

type (
	// App wires CLI services and shared dependencies. It is the composition
	// root for the CLI layer: command handlers receive an App, call Init
	// through the root command's pre-run hook and build core services from
	// the loaded configuration.
	App struct {
		Config config.Provider
		stdout io.Writer
		stderr io.Writer

		flags   globalFlags
		cfg     *config.Config
		cfgPath string
		logger  *log.Logger
		logFile io.Closer
		sink    events.Sink
	}

	// Dependencies defines the injection points for building an App. Nil
	// fields are replaced with production defaults by NewApp.
	Dependencies struct {
		Config config.Provider
		Stdout io.Writer
		Stderr io.Writer
	}

	globalFlags struct {
		verbose    bool
		configPath string
	}
)

// NewApp creates an App from deps.
func NewApp(deps Dependencies) *App {
	app := &App{
		Config: deps.Config,
		stdout: deps.Stdout,
		stderr: deps.Stderr,
	}
	if app.Config == nil {
		app.Config = config.NewProvider()
	}
	if app.stdout == nil {
		app.stdout = os.Stdout
	}
	if app.stderr == nil {
		app.stderr = os.Stderr
	}
	return app
}

// Init loads configuration and sets up logging and the event sink. It is
// idempotent.
func (a *App) Init(ctx context.Context) error {
	if a.cfg != nil {
		return nil
	}

	cfg, path, err := config.Load(ctx, a.loadOptions())
	if err != nil {
		return err
	}
	a.cfg, a.cfgPath = cfg, path

	a.logger = log.NewWithOptions(a.stderr, log.Options{Prefix: config.AppName})
	if lvl, err := log.ParseLevel(cfg.Log.Level.String()); err == nil {
		a.logger.SetLevel(lvl)
	}
	if a.flags.verbose {
		a.logger.SetLevel(log.DebugLevel)
	}

	console := newConsoleSink(a.stdout, a.flags.verbose)
	a.sink = console
	if cfg.Log.File != "" {
		rotating := &lumberjack.Logger{
			Filename:   cfg.Log.File,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		}
		a.logFile = rotating
		a.logger.SetOutput(io.MultiWriter(a.stderr, rotating))

		fileLogger := log.NewWithOptions(rotating, log.Options{
			Prefix:          "events",
			ReportTimestamp: true,
			Formatter:       log.LogfmtFormatter,
			Level:           log.DebugLevel,
		})
		a.sink = events.Fanout{console, events.NewLogSink(fileLogger)}
	}

	a.logger.Debug("configuration loaded", "file", path, "version", cfg.CurrentVersion)
	return nil
}

// Close releases the rotating log file, if any.
func (a *App) Close() error {
	if a.logFile == nil {
		return nil
	}
	err := a.logFile.Close()
	a.logFile = nil
	return err
}

func (a *App) loadOptions() config.LoadOptions {
	return config.LoadOptions{ConfigFilePath: a.flags.configPath}
}

// component returns a child logger for one core package.
func (a *App) component(name string) *log.Logger {
	return a.logger.WithPrefix(name)
}

func (a *App) userAgent() string {
	ua := a.cfg.Release.UserAgent
	if ua == config.DefaultConfig().Release.UserAgent && Version != "dev" {
		return config.AppName + "/" + Version
	}
	return ua
}

func (a *App) resolver() *release.Resolver {
	client := remote.NewClient(
		remote.WithUserAgent(a.userAgent()),
		remote.WithTimeout(a.cfg.Release.Timeout),
		remote.WithAccept("application/vnd.github+json"),
	)
	return release.NewResolver(
		release.WithClient(client),
		release.WithEndpoint(a.cfg.Release.URL),
		release.WithLogger(a.component("release")),
	)
}

func (a *App) updater(progress func(fetch.Progress)) *update.Updater {
	// Downloads are bounded by the command context, not the metadata timeout.
	client := remote.NewClient(remote.WithUserAgent(a.userAgent()))
	return update.New(
		update.LayoutFromConfig(a.cfg.Paths),
		a.resolver(),
		fetch.New(fetch.WithClient(client), fetch.WithLogger(a.component("fetch")), fetch.WithProgress(progress)),
		install.New(install.WithLogger(a.component("install"))),
		update.WithSink(a.sink),
		update.WithLogger(a.component("update")),
	)
}

func (a *App) reclaimer() *portreclaim.Reclaimer {
	return portreclaim.New(portreclaim.WithLogger(a.component("portreclaim")))
}

func (a *App) supervisor(sink events.Sink) *supervisor.Supervisor {
	return supervisor.New(
		supervisor.Config{
			ClientPath:         a.cfg.Paths.ClientExecutablePath(),
			ServerPath:         a.cfg.Paths.ServerExecutablePath(),
			ServerPort:         uint16(a.cfg.Server.Port), //nolint:gosec // validated to 1-65535
			StopTimeout:        a.cfg.Server.StopTimeout,
			KillByNameFallback: a.cfg.Server.KillByNameFallback,
		},
		supervisor.WithPortFreer(a.reclaimer()),
		supervisor.WithSink(sink),
		supervisor.WithLogger(a.component("supervisor")),
	)
}

// versionWatcher publishes the installed version now and again whenever the
// config file changes. Without a config file there is nothing to watch and
// the returned run function only publishes once.
func (a *App) versionWatcher() (*watch.VersionPublisher, func(context.Context) error, error) {
	opts := a.loadOptions()
	if a.cfgPath != "" {
		opts = config.LoadOptions{ConfigFilePath: a.cfgPath}
	}
	pub := watch.NewVersionPublisher(a.Config, opts, a.sink, a.component("config"))
	if a.cfgPath == "" {
		return pub, func(context.Context) error { return nil }, nil
	}

	w, err := watch.ForFile(a.cfgPath, 0, pub.OnChange, a.component("watch"))
	if err != nil {
		return nil, nil, err
	}
	return pub, func(ctx context.Context) error {
		if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	}, nil
}
