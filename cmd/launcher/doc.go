// SPDX-License-Identifier: MPL-2.0

// Package cmd contains the clash-launcher command tree.
//
// Commands are thin: they load configuration through App, build the core
// services (resolver, updater, reclaimer, supervisor) from it and render
// their events and errors to the terminal.
package cmd
