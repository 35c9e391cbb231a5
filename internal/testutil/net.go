// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"net"
	"testing"
)

// FreePort returns a loopback TCP port that was free at the time of the call.
func FreePort(t testing.TB) uint16 {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("allocating port: %v", err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	MustClose(t, l)
	return uint16(port) //nolint:gosec // TCP ports fit in uint16
}

// Listen binds a loopback TCP listener on an ephemeral port and closes it
// when the test ends.
func Listen(t testing.TB) (net.Listener, uint16) {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listening: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return l, uint16(l.Addr().(*net.TCPAddr).Port) //nolint:gosec // TCP ports fit in uint16
}
