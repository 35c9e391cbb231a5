// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

const (
	// LogLevelDebug enables debug output.
	LogLevelDebug LogLevel = "debug"
	// LogLevelInfo is the default level.
	LogLevelInfo LogLevel = "info"
	// LogLevelWarn limits output to warnings and errors.
	LogLevelWarn LogLevel = "warn"
	// LogLevelError limits output to errors.
	LogLevelError LogLevel = "error"

	// DefaultReleaseURL is the metadata endpoint describing the latest release.
	DefaultReleaseURL = "https://api.github.com/repos/Superbro525Alt/Y11PY/releases/latest"
	// DefaultServerPort is the port the game server listens on.
	DefaultServerPort = 12345
)

var (
	// ErrInvalidConfig is the sentinel error wrapped by InvalidConfigError.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrInvalidLogLevel is returned when a LogLevel value is not recognized.
	ErrInvalidLogLevel = errors.New("invalid log level")
)

type (
	// LogLevel names a charmbracelet/log level.
	LogLevel string

	// Config holds the launcher configuration.
	Config struct {
		// CurrentVersion is the tag of the installed release.
		CurrentVersion string        `json:"current_version" mapstructure:"current_version"`
		Release        ReleaseConfig `json:"release" mapstructure:"release"`
		Paths          PathsConfig   `json:"paths" mapstructure:"paths"`
		Server         ServerConfig  `json:"server" mapstructure:"server"`
		Log            LogConfig     `json:"log" mapstructure:"log"`
	}

	// ReleaseConfig configures the release metadata request.
	ReleaseConfig struct {
		URL       string        `json:"url" mapstructure:"url"`
		UserAgent string        `json:"user_agent" mapstructure:"user_agent"`
		Timeout   time.Duration `json:"timeout" mapstructure:"timeout"`
	}

	// PathsConfig is the on-disk layout. Relative paths resolve against Root.
	// Empty executable paths derive from the install directories.
	PathsConfig struct {
		Root             string `json:"root" mapstructure:"root"`
		StagingDir       string `json:"staging_dir" mapstructure:"staging_dir"`
		ClientDir        string `json:"client_dir" mapstructure:"client_dir"`
		ServerDir        string `json:"server_dir" mapstructure:"server_dir"`
		ClientExecutable string `json:"client_executable,omitempty" mapstructure:"client_executable"`
		ServerExecutable string `json:"server_executable,omitempty" mapstructure:"server_executable"`
	}

	// ServerConfig configures the supervised server process.
	ServerConfig struct {
		Port               int           `json:"port" mapstructure:"port"`
		StopTimeout        time.Duration `json:"stop_timeout" mapstructure:"stop_timeout"`
		KillByNameFallback bool          `json:"kill_by_name_fallback" mapstructure:"kill_by_name_fallback"`
	}

	// LogConfig configures the launcher's own logging.
	LogConfig struct {
		Level LogLevel `json:"level" mapstructure:"level"`
		// File enables a rotating log file in addition to stderr.
		File string `json:"file" mapstructure:"file"`
	}

	// InvalidLogLevelError is returned when a LogLevel value is not recognized.
	// It wraps ErrInvalidLogLevel for errors.Is() compatibility.
	InvalidLogLevelError struct {
		Value LogLevel
	}

	// FieldError describes one invalid configuration key.
	FieldError struct {
		Key    string
		Reason string
	}

	// InvalidConfigError is returned when a Config has invalid fields.
	// It wraps ErrInvalidConfig for errors.Is() compatibility and collects
	// every field-level problem.
	InvalidConfigError struct {
		FieldErrors []error
	}
)

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Release: ReleaseConfig{
			URL:       DefaultReleaseURL,
			UserAgent: "clash-launcher/dev",
			Timeout:   30 * time.Second,
		},
		Paths: PathsConfig{
			Root:       ".",
			StagingDir: "updates",
			ClientDir:  "client_update",
			ServerDir:  "server_update",
		},
		Server: ServerConfig{
			Port:        DefaultServerPort,
			StopTimeout: 5 * time.Second,
		},
		Log: LogConfig{
			Level: LogLevelInfo,
		},
	}
}

// String returns the string representation of the LogLevel.
func (l LogLevel) String() string { return string(l) }

// Validate returns nil if the LogLevel is recognized, or an InvalidLogLevelError.
func (l LogLevel) Validate() error {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return nil
	default:
		return &InvalidLogLevelError{Value: l}
	}
}

// Error implements the error interface for InvalidLogLevelError.
func (e *InvalidLogLevelError) Error() string {
	return fmt.Sprintf("invalid log level %q (valid: debug, info, warn, error)", e.Value)
}

// Unwrap returns ErrInvalidLogLevel for errors.Is() compatibility.
func (e *InvalidLogLevelError) Unwrap() error { return ErrInvalidLogLevel }

func (e *FieldError) Error() string {
	return e.Key + ": " + e.Reason
}

// Error implements the error interface for InvalidConfigError.
func (e *InvalidConfigError) Error() string {
	msgs := make([]string, 0, len(e.FieldErrors))
	for _, fe := range e.FieldErrors {
		msgs = append(msgs, fe.Error())
	}
	return fmt.Sprintf("invalid config: %s", strings.Join(msgs, "; "))
}

// Unwrap returns ErrInvalidConfig followed by the field errors, so both the
// sentinel and field causes such as ErrInvalidLogLevel match errors.Is().
func (e *InvalidConfigError) Unwrap() []error {
	return append([]error{ErrInvalidConfig}, e.FieldErrors...)
}

// Validate checks values that may bypass the file schema, such as
// environment overrides. It returns an *InvalidConfigError listing every
// problem, or nil.
func (c *Config) Validate() error {
	var errs []error
	field := func(key, reason string) {
		errs = append(errs, &FieldError{Key: key, Reason: reason})
	}

	if u, err := url.Parse(c.Release.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		field("release.url", fmt.Sprintf("%q is not an http(s) URL", c.Release.URL))
	}
	if strings.TrimSpace(c.Release.UserAgent) == "" {
		field("release.user_agent", "must not be empty")
	}
	if c.Release.Timeout <= 0 {
		field("release.timeout", "must be positive")
	}
	for key, p := range map[string]string{
		"paths.root":        c.Paths.Root,
		"paths.staging_dir": c.Paths.StagingDir,
		"paths.client_dir":  c.Paths.ClientDir,
		"paths.server_dir":  c.Paths.ServerDir,
	} {
		if strings.TrimSpace(p) == "" {
			field(key, "must not be empty")
		}
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		field("server.port", fmt.Sprintf("%d is outside 1-65535", c.Server.Port))
	}
	if c.Server.StopTimeout <= 0 {
		field("server.stop_timeout", "must be positive")
	}
	if err := c.Log.Level.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}

	if len(errs) > 0 {
		return &InvalidConfigError{FieldErrors: errs}
	}
	return nil
}

// StagingPath returns the directory holding downloaded archives.
func (p PathsConfig) StagingPath() string { return p.resolve(p.StagingDir) }

// ClientInstallDir returns the directory the client archive extracts into.
func (p PathsConfig) ClientInstallDir() string { return p.resolve(p.ClientDir) }

// ServerInstallDir returns the directory the server archive extracts into.
func (p PathsConfig) ServerInstallDir() string { return p.resolve(p.ServerDir) }

// ClientExecutablePath returns the client executable, defaulting to
// <client_dir>/client (client.exe on Windows).
func (p PathsConfig) ClientExecutablePath() string {
	if p.ClientExecutable != "" {
		return p.resolve(p.ClientExecutable)
	}
	return filepath.Join(p.ClientInstallDir(), executableName("client"))
}

// ServerExecutablePath returns the server executable, defaulting to
// <server_dir>/server (server.exe on Windows).
func (p PathsConfig) ServerExecutablePath() string {
	if p.ServerExecutable != "" {
		return p.resolve(p.ServerExecutable)
	}
	return filepath.Join(p.ServerInstallDir(), executableName("server"))
}

func (p PathsConfig) resolve(path string) string {
	if filepath.IsAbs(path) || p.Root == "" || p.Root == "." {
		return filepath.Clean(path)
	}
	return filepath.Join(p.Root, path)
}

func executableName(base string) string {
	if runtime.GOOS == "windows" {
		return base + ".exe"
	}
	return base
}
