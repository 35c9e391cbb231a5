// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"path/filepath"
	"runtime"
	"testing"
)

// WriteScript writes an executable POSIX shell script at dir/name and returns
// its path. Tests that use it must skip on Windows.
func WriteScript(t testing.TB, dir, name, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell-script fake executables require a POSIX shell")
	}
	path := filepath.Join(dir, name)
	MustWriteFile(t, path, []byte("#!/bin/sh\n"+body+"\n"), 0o755)
	return path
}
