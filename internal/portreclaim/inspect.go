// SPDX-License-Identifier: MPL-2.0

package portreclaim

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"slices"
	"strconv"
	"strings"

	psnet "github.com/shirou/gopsutil/v4/net"
)

type (
	// Inspector finds the processes listening on a TCP port.
	Inspector interface {
		Owners(ctx context.Context, port uint16) ([]int32, error)
	}

	// SocketTable reads the OS socket table directly.
	SocketTable struct{}

	// CommandInspector shells out to the platform's socket listing tool.
	CommandInspector struct {
		// Command builds the tool invocation; tests replace it.
		Command func(ctx context.Context, name string, args ...string) *exec.Cmd
		GOOS    string
	}

	// Chain tries each inspector in order and returns the first non-empty
	// result. Errors are only reported when every inspector failed.
	Chain []Inspector
)

// Owners returns the PIDs of sockets in LISTEN state bound to port.
func (SocketTable) Owners(ctx context.Context, port uint16) ([]int32, error) {
	conns, err := psnet.ConnectionsWithContext(ctx, "tcp")
	if err != nil {
		return nil, fmt.Errorf("reading socket table: %w", err)
	}

	var pids []int32
	for _, c := range conns {
		if c.Status != "LISTEN" || c.Laddr.Port != uint32(port) || c.Pid <= 0 {
			continue
		}
		if !slices.Contains(pids, c.Pid) {
			pids = append(pids, c.Pid)
		}
	}
	return pids, nil
}

// NewCommandInspector creates a CommandInspector for the running platform.
func NewCommandInspector() CommandInspector {
	return CommandInspector{Command: exec.CommandContext, GOOS: runtime.GOOS}
}

// Owners runs lsof on Unix-like systems and netstat on Windows.
func (c CommandInspector) Owners(ctx context.Context, port uint16) ([]int32, error) {
	if c.GOOS == "windows" {
		out, err := c.Command(ctx, "netstat", "-ano", "-p", "tcp").Output()
		if err != nil {
			return nil, fmt.Errorf("running netstat: %w", err)
		}
		return parseNetstat(string(out), port), nil
	}

	out, err := c.Command(ctx, "lsof", "-nP", "-t", fmt.Sprintf("-iTCP:%d", port), "-sTCP:LISTEN").Output()
	if err != nil {
		// lsof exits 1 with no output when nothing matches.
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 && len(out) == 0 {
			return nil, nil
		}
		return nil, fmt.Errorf("running lsof: %w", err)
	}
	return parseLsof(string(out)), nil
}

// Owners implements Inspector.
func (c Chain) Owners(ctx context.Context, port uint16) ([]int32, error) {
	var errs []error
	for _, i := range c {
		pids, err := i.Owners(ctx, port)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if len(pids) > 0 {
			return pids, nil
		}
	}
	if len(errs) == len(c) && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return nil, nil
}

// parseLsof reads "lsof -t" output: one PID per line.
func parseLsof(out string) []int32 {
	var pids []int32
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		pid, err := strconv.ParseInt(strings.TrimSpace(sc.Text()), 10, 32)
		if err != nil || pid <= 0 {
			continue
		}
		if !slices.Contains(pids, int32(pid)) {
			pids = append(pids, int32(pid))
		}
	}
	return pids
}

// parseNetstat reads "netstat -ano -p tcp" output on Windows:
//
//	Proto  Local Address          Foreign Address        State           PID
//	TCP    0.0.0.0:12345          0.0.0.0:0              LISTENING       4242
func parseNetstat(out string, port uint16) []int32 {
	suffix := ":" + strconv.Itoa(int(port))
	var pids []int32
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 5 || !strings.EqualFold(fields[0], "TCP") {
			continue
		}
		if !strings.HasSuffix(fields[1], suffix) || fields[3] != "LISTENING" {
			continue
		}
		pid, err := strconv.ParseInt(fields[4], 10, 32)
		if err != nil || pid <= 0 {
			continue
		}
		if !slices.Contains(pids, int32(pid)) {
			pids = append(pids, int32(pid))
		}
	}
	return pids
}
