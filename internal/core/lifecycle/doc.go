// SPDX-License-Identifier: MPL-2.0

// Package lifecycle provides the reusable state machine behind a supervised
// process slot.
//
// A slot cycles through Idle, Spawning, Running and Stopping and returns to
// Idle once its process has exited, so a single Machine is reused for every
// launch. Reads are lock-free atomics; every transition is a compare-and-swap
// so that concurrent Start and Stop calls cannot both win.
package lifecycle
