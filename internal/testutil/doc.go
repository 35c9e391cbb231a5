// SPDX-License-Identifier: MPL-2.0

// Package testutil provides helper functions for tests that handle errors
// appropriately, reducing boilerplate and ensuring consistent error handling.
//
// Helpers cover files (MustWriteFile, MustReadFile), release fixtures
// (TarGz), loopback ports (FreePort, Listen) and fake executables
// (WriteScript).
package testutil
