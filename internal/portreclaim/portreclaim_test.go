// SPDX-License-Identifier: MPL-2.0

package portreclaim

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"clash-launcher/internal/testutil"
)

// TestHelperProcess is re-executed as a child process by tests in this
// package. It prints GO_HELPER_STDOUT and exits with GO_HELPER_EXIT_CODE, or,
// when GO_HELPER_LISTEN_PORT is set, listens on that port until killed.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}

	if port := os.Getenv("GO_HELPER_LISTEN_PORT"); port != "" {
		l, err := net.Listen("tcp", net.JoinHostPort(DefaultHost, port))
		if err != nil {
			fmt.Fprintf(os.Stderr, "listen: %v\n", err)
			os.Exit(3)
		}
		fmt.Fprintln(os.Stdout, "ready")
		for {
			conn, err := l.Accept()
			if err != nil {
				os.Exit(4)
			}
			_ = conn.Close()
		}
	}

	if stdout := os.Getenv("GO_HELPER_STDOUT"); stdout != "" {
		fmt.Fprint(os.Stdout, stdout)
	}
	exitCode := 0
	if code := os.Getenv("GO_HELPER_EXIT_CODE"); code != "" {
		exitCode, _ = strconv.Atoi(code)
	}
	os.Exit(exitCode)
}

func quietLogger() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{})
}

// listenerKiller simulates killing the owner by closing a listener held by the test.
type listenerKiller struct {
	mu     sync.Mutex
	l      net.Listener
	err    error
	killed []int32
}

func (k *listenerKiller) Kill(_ context.Context, pid int32) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.killed = append(k.killed, pid)
	if k.err != nil {
		return k.err
	}
	if k.l != nil {
		return k.l.Close()
	}
	return nil
}

func (k *listenerKiller) Name(context.Context, int32) string { return "server" }

func TestFreePort_FreePortReturnsNil(t *testing.T) {
	t.Parallel()

	port := testutil.FreePort(t)
	k := &listenerKiller{}
	r := New(WithLogger(quietLogger()), WithInspector(staticInspector{pids: []int32{99}}), WithKiller(k))

	got, err := r.FreePort(context.Background(), port)
	if err != nil {
		t.Fatalf("FreePort() error: %v", err)
	}
	if got != nil {
		t.Errorf("FreePort() = %v, want nil for a free port", got)
	}
	if len(k.killed) != 0 {
		t.Errorf("nothing should be killed, got %v", k.killed)
	}
}

func TestFreePort_KillsOwner(t *testing.T) {
	t.Parallel()

	l, port := testutil.Listen(t)
	k := &listenerKiller{l: l}
	r := New(WithLogger(quietLogger()), WithInspector(staticInspector{pids: []int32{4242}}), WithKiller(k))

	got, err := r.FreePort(context.Background(), port)
	if err != nil {
		t.Fatalf("FreePort() error: %v", err)
	}
	if got == nil {
		t.Fatal("FreePort() = nil, want a reclaim result")
	}
	want := fmt.Sprintf("Killed process with PID 4242 using port %d", port)
	if got.String() != want {
		t.Errorf("String() = %q, want %q", got.String(), want)
	}
	if got.Name != "server" {
		t.Errorf("Name = %q", got.Name)
	}
	if !r.Available(context.Background(), port) {
		t.Error("port should be bindable after reclaim")
	}
}

func TestFreePort_Errors(t *testing.T) {
	t.Parallel()

	boom := errors.New("operation not permitted")
	tests := []struct {
		name      string
		inspector Inspector
		killErr   error
		want      error
	}{
		{name: "no owner found", inspector: staticInspector{}, want: ErrPortInUseUnidentified},
		{name: "inspector failed", inspector: staticInspector{err: boom}, want: ErrPortInUseUnidentified},
		{name: "only self", inspector: staticInspector{pids: []int32{int32(os.Getpid())}}, want: ErrSelfOwned}, //nolint:gosec // PIDs fit in int32
		{name: "kill refused", inspector: staticInspector{pids: []int32{4242}}, killErr: boom, want: ErrKillFailed},
		{name: "port never released", inspector: staticInspector{pids: []int32{4242}}, want: ErrPortStillBound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, port := testutil.Listen(t)
			k := &listenerKiller{err: tt.killErr}
			r := New(
				WithLogger(quietLogger()),
				WithInspector(tt.inspector),
				WithKiller(k),
				WithReleaseTimeout(100*time.Millisecond),
			)

			got, err := r.FreePort(context.Background(), port)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if got != nil {
				t.Errorf("result = %v, want nil on error", got)
			}
		})
	}
}

func TestFreePort_KillErrorCarriesPID(t *testing.T) {
	t.Parallel()

	_, port := testutil.Listen(t)
	boom := errors.New("denied")
	r := New(
		WithLogger(quietLogger()),
		WithInspector(staticInspector{pids: []int32{777}}),
		WithKiller(&listenerKiller{err: boom}),
	)

	_, err := r.FreePort(context.Background(), port)
	var killErr *KillError
	if !errors.As(err, &killErr) {
		t.Fatalf("expected *KillError, got %T: %v", err, err)
	}
	if killErr.PID != 777 || !errors.Is(err, boom) {
		t.Errorf("KillError = %+v", killErr)
	}
}

func TestFreePort_KillsRealListenerProcess(t *testing.T) {
	t.Parallel()
	if testing.Short() {
		t.Skip("spawns a helper process")
	}

	port := testutil.FreePort(t)
	cmd := exec.Command(os.Args[0], "-test.run=TestHelperProcess", "--") //nolint:gosec,noctx // TestHelperProcess is a test-only pattern
	cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", "GO_HELPER_LISTEN_PORT="+strconv.Itoa(int(port)))
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		t.Fatal(err)
	}
	if err := cmd.Start(); err != nil {
		t.Fatalf("starting helper: %v", err)
	}
	exited := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(exited)
	}()
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		<-exited
	})

	line, err := bufio.NewReader(stdout).ReadString('\n')
	if err != nil || line != "ready\n" {
		t.Fatalf("helper did not become ready: %q, %v", line, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	got, err := New(WithLogger(quietLogger())).FreePort(ctx, port)
	if err != nil {
		t.Fatalf("FreePort() error: %v", err)
	}
	if got == nil || int(got.PID) != cmd.Process.Pid {
		t.Fatalf("FreePort() = %v, want PID %d", got, cmd.Process.Pid)
	}

	select {
	case <-exited:
	case <-ctx.Done():
		t.Fatal("helper process still running after reclaim")
	}
}
