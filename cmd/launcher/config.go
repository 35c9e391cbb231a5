// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"clash-launcher/internal/config"
)

// newConfigCommand creates the `clash-launcher config` command tree.
func newConfigCommand(app *App) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the launcher configuration",
		Long: `Inspect the launcher configuration.

Settings are read from config.json in the working directory (or the file
given with --config) and may be overridden by CLASH_LAUNCHER_* environment
variables, e.g. CLASH_LAUNCHER_SERVER_PORT=23456.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	var asJSON bool
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if asJSON {
				return writeConfigJSON(app.stdout, app.cfg)
			}
			showConfig(app.stdout, app.cfg, app.cfgPath)
			return nil
		},
	}
	showCmd.Flags().BoolVar(&asJSON, "json", false, "print the configuration as JSON")
	cfgCmd.AddCommand(showCmd)

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show the configuration file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if app.cfgPath == "" {
				fmt.Fprintln(app.stdout, SubtitleStyle.Render("(no config file, using defaults)"))
				return nil
			}
			fmt.Fprintln(app.stdout, app.cfgPath)
			return nil
		},
	})

	return cfgCmd
}

func showConfig(w io.Writer, cfg *config.Config, path string) {
	key := func(k string) string { return CmdStyle.Render(k) }
	val := func(v any) string { return SuccessStyle.Render(fmt.Sprint(v)) }

	fmt.Fprintln(w, TitleStyle.Render("Current Configuration"))
	fmt.Fprintln(w)
	if path == "" {
		fmt.Fprintf(w, "%s: %s\n", key("Config file"), SubtitleStyle.Render("(using defaults)"))
	} else {
		fmt.Fprintf(w, "%s: %s\n", key("Config file"), path)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "%s: %s\n", key("current_version"), val(displayVersion(cfg.CurrentVersion)))
	fmt.Fprintf(w, "%s: %s\n", key("release.url"), val(cfg.Release.URL))
	fmt.Fprintf(w, "%s: %s\n", key("release.timeout"), val(cfg.Release.Timeout))
	fmt.Fprintf(w, "%s: %s\n", key("server.port"), val(cfg.Server.Port))
	fmt.Fprintf(w, "%s: %s\n", key("server.stop_timeout"), val(cfg.Server.StopTimeout))
	fmt.Fprintf(w, "%s: %s\n", key("server.kill_by_name_fallback"), val(cfg.Server.KillByNameFallback))
	fmt.Fprintf(w, "%s: %s\n", key("log.level"), val(cfg.Log.Level))
	if cfg.Log.File != "" {
		fmt.Fprintf(w, "%s: %s\n", key("log.file"), val(cfg.Log.File))
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, SubtitleStyle.Render("Resolved paths:"))
	fmt.Fprintf(w, "  %s: %s\n", key("staging"), cfg.Paths.StagingPath())
	fmt.Fprintf(w, "  %s: %s\n", key("client"), cfg.Paths.ClientExecutablePath())
	fmt.Fprintf(w, "  %s: %s\n", key("server"), cfg.Paths.ServerExecutablePath())
}

// writeConfigJSON prints cfg in the config.json format, with durations as
// strings so the output can be fed back as a config file.
func writeConfigJSON(w io.Writer, cfg *config.Config) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	var tree map[string]any
	if err := json.Unmarshal(raw, &tree); err != nil {
		return err
	}
	setDuration(tree, "release", "timeout", cfg.Release.Timeout.String())
	setDuration(tree, "server", "stop_timeout", cfg.Server.StopTimeout.String())

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(tree)
}

func setDuration(tree map[string]any, section, key, value string) {
	if m, ok := tree[section].(map[string]any); ok {
		m[key] = value
	}
}
