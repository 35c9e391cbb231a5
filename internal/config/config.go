// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"clash-launcher/internal/issue"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/spf13/viper"
)

const (
	// AppName is the application name.
	AppName = "clash-launcher"
	// EnvPrefix prefixes environment overrides, e.g. CLASH_LAUNCHER_SERVER_PORT.
	EnvPrefix = "CLASH_LAUNCHER"
	// FileName is the config file looked up in the working directory.
	FileName = "config.json"
)

//go:embed config_schema.cue
var configSchema string

// ErrConfigNotFound is returned when an explicitly requested config file does not exist.
var ErrConfigNotFound = errors.New("config file not found")

// loadWithOptions loads defaults, the config file and environment overrides
// into a fresh Viper instance and decodes the result. The returned path is
// empty when no file was read.
func loadWithOptions(ctx context.Context, opts LoadOptions) (*Config, string, error) {
	select {
	case <-ctx.Done():
		return nil, "", fmt.Errorf("load config canceled: %w", ctx.Err())
	default:
	}

	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	resolvedPath := ""
	switch {
	case opts.ConfigFilePath != "":
		if !fileExists(opts.ConfigFilePath) {
			return nil, "", issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(opts.ConfigFilePath).
				WithSuggestion("Verify the file path passed with --config").
				WithGuide(issue.ConfigLoadFailedId).
				Wrap(fmt.Errorf("%w: %s", ErrConfigNotFound, opts.ConfigFilePath)).
				BuildError()
		}
		resolvedPath = opts.ConfigFilePath
	default:
		candidate := filepath.Join(dirOrCwd(opts.Dir), FileName)
		if fileExists(candidate) {
			resolvedPath = candidate
		}
		// No config file: defaults and environment only.
	}

	if resolvedPath != "" {
		if err := loadCUEIntoViper(v, resolvedPath); err != nil {
			return nil, "", issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(resolvedPath).
				WithSuggestion("Check that the file is valid JSON").
				WithSuggestion("Verify the configuration values match the expected schema").
				WithGuide(issue.ConfigLoadFailedId).
				Wrap(err).
				BuildError()
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", issue.NewErrorContext().
			WithOperation("validate configuration").
			WithResource(resolvedPath).
			WithSuggestion("Check CLASH_LAUNCHER_* environment variables for typos").
			WithGuide(issue.ConfigLoadFailedId).
			Wrap(err).
			BuildError()
	}

	return &cfg, resolvedPath, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("current_version", d.CurrentVersion)
	v.SetDefault("release.url", d.Release.URL)
	v.SetDefault("release.user_agent", d.Release.UserAgent)
	v.SetDefault("release.timeout", d.Release.Timeout)
	v.SetDefault("paths.root", d.Paths.Root)
	v.SetDefault("paths.staging_dir", d.Paths.StagingDir)
	v.SetDefault("paths.client_dir", d.Paths.ClientDir)
	v.SetDefault("paths.server_dir", d.Paths.ServerDir)
	v.SetDefault("paths.client_executable", d.Paths.ClientExecutable)
	v.SetDefault("paths.server_executable", d.Paths.ServerExecutable)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.stop_timeout", d.Server.StopTimeout)
	v.SetDefault("server.kill_by_name_fallback", d.Server.KillByNameFallback)
	v.SetDefault("log.level", string(d.Log.Level))
	v.SetDefault("log.file", d.Log.File)
}

// loadCUEIntoViper compiles a JSON config file as CUE, validates it against
// the #Config schema and merges its contents into Viper.
//
// Concrete(false) is used because every schema field is optional.
func loadCUEIntoViper(v *viper.Viper, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := checkFileSize(data, maxFileSize, path); err != nil {
		return err
	}

	ctx := cuecontext.New()

	schemaValue := ctx.CompileString(configSchema)
	if schemaValue.Err() != nil {
		return fmt.Errorf("internal error: failed to compile config schema: %w", schemaValue.Err())
	}

	userValue := ctx.CompileBytes(data, cue.Filename(path))
	if userValue.Err() != nil {
		return formatCUEError(userValue.Err(), path)
	}

	schema := schemaValue.LookupPath(cue.ParsePath("#Config"))
	unified := schema.Unify(userValue)
	if err := unified.Validate(cue.Concrete(false)); err != nil {
		return formatCUEError(err, path)
	}

	var configMap map[string]any
	if err := unified.Decode(&configMap); err != nil {
		return formatCUEError(err, path)
	}

	if err := v.MergeConfigMap(configMap); err != nil {
		return fmt.Errorf("failed to merge config: %w", err)
	}

	return nil
}

// fileExists checks if a file exists and is not a directory
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirOrCwd(dir string) string {
	if dir == "" {
		return "."
	}
	return dir
}
