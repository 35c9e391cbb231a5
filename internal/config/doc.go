// SPDX-License-Identifier: MPL-2.0

// Package config handles launcher configuration using Viper with a JSON file
// validated by an embedded CUE schema.
//
// The file is config.json in the working directory unless an explicit path is
// given. Values resolve in this order: CLASH_LAUNCHER_* environment variables,
// the config file, then DefaultConfig. The installed release tag
// (current_version) is read here and never written by the launcher.
package config
