// SPDX-License-Identifier: MPL-2.0

package install

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/hashicorp/go-multierror"

	"clash-launcher/internal/testutil"
)

func newTestInstaller() *Installer {
	return New(WithLogger(log.NewWithOptions(io.Discard, log.Options{})))
}

func writeArchive(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(dir, name)
	testutil.MustWriteFile(t, p, data, 0o644)
	return p
}

func TestExtractAll_ReproducesTree(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	archive := writeArchive(t, dir, "server.tar.gz", testutil.TarGz(t,
		testutil.TarEntry{Name: "bin/", Type: tar.TypeDir},
		testutil.TarEntry{Name: "bin/server", Body: "#!/bin/sh\necho hi\n", Mode: 0o755},
		testutil.TarEntry{Name: "data/maps/arena.json", Body: `{"w":10}`},
		testutil.TarEntry{Name: "README", Body: "readme"},
	))
	dest := filepath.Join(dir, "server_update")

	if err := newTestInstaller().ExtractAll(context.Background(), []Archive{{Path: archive, Dest: dest}}); err != nil {
		t.Fatalf("ExtractAll() error: %v", err)
	}

	if got := testutil.MustReadFile(t, filepath.Join(dest, "data", "maps", "arena.json")); got != `{"w":10}` {
		t.Errorf("arena.json = %q", got)
	}
	if got := testutil.MustReadFile(t, filepath.Join(dest, "README")); got != "readme" {
		t.Errorf("README = %q", got)
	}

	fi, err := os.Stat(filepath.Join(dest, "bin", "server"))
	if err != nil {
		t.Fatal(err)
	}
	if runtime.GOOS != "windows" && fi.Mode().Perm()&0o100 == 0 {
		t.Errorf("server mode = %v, want executable bit preserved", fi.Mode())
	}
	if !fi.ModTime().Equal(testutil.FixtureTime) {
		t.Errorf("mtime = %v, want %v", fi.ModTime(), testutil.FixtureTime)
	}
}

func TestExtractAll_OverwritesExistingFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	dest := filepath.Join(dir, "client_update")
	testutil.MustWriteFile(t, filepath.Join(dest, "client"), []byte("old binary content, longer than new"), 0o644)
	testutil.MustWriteFile(t, filepath.Join(dest, "keep.txt"), []byte("untouched"), 0o644)

	archive := writeArchive(t, dir, "client.tar.gz", testutil.TarGz(t,
		testutil.TarEntry{Name: "client", Body: "new"},
	))

	if err := newTestInstaller().ExtractAll(context.Background(), []Archive{{Path: archive, Dest: dest}}); err != nil {
		t.Fatalf("ExtractAll() error: %v", err)
	}
	if got := testutil.MustReadFile(t, filepath.Join(dest, "client")); got != "new" {
		t.Errorf("client = %q, want %q", got, "new")
	}
	if got := testutil.MustReadFile(t, filepath.Join(dest, "keep.txt")); got != "untouched" {
		t.Errorf("keep.txt = %q", got)
	}
}

func TestExtractAll_PlainTarAccepted(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	archive := writeArchive(t, dir, "client.tar.gz", testutil.Tar(t, testutil.TarEntry{Name: "a.txt", Body: "a"}))
	dest := filepath.Join(dir, "out")

	if err := newTestInstaller().ExtractAll(context.Background(), []Archive{{Path: archive, Dest: dest}}); err != nil {
		t.Fatalf("ExtractAll() error: %v", err)
	}
	if got := testutil.MustReadFile(t, filepath.Join(dest, "a.txt")); got != "a" {
		t.Errorf("a.txt = %q", got)
	}
}

func TestExtractAll_FailureDoesNotCancelSibling(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	good := writeArchive(t, dir, "client.tar.gz", testutil.TarGz(t, testutil.TarEntry{Name: "client", Body: "ok"}))
	bad := writeArchive(t, dir, "server.tar.gz", []byte("this is not an archive at all"))
	missing := filepath.Join(dir, "missing.tar.gz")

	err := newTestInstaller().ExtractAll(context.Background(), []Archive{
		{Path: good, Dest: filepath.Join(dir, "client_update")},
		{Path: bad, Dest: filepath.Join(dir, "server_update")},
		{Path: missing, Dest: filepath.Join(dir, "other")},
	})
	if err == nil {
		t.Fatal("expected an aggregate error")
	}

	var merr *multierror.Error
	if !errors.As(err, &merr) {
		t.Fatalf("expected *multierror.Error, got %T", err)
	}
	if len(merr.Errors) != 2 {
		t.Fatalf("got %d errors, want 2: %v", len(merr.Errors), err)
	}
	failed := map[string]bool{}
	for _, e := range merr.Errors {
		var xerr *ExtractionError
		if !errors.As(e, &xerr) {
			t.Fatalf("expected *ExtractionError, got %T", e)
		}
		failed[xerr.Archive] = true
	}
	if !failed[bad] || !failed[missing] {
		t.Errorf("failed archives = %v, want %s and %s", failed, bad, missing)
	}

	if got := testutil.MustReadFile(t, filepath.Join(dir, "client_update", "client")); got != "ok" {
		t.Errorf("sibling extraction result = %q, want ok", got)
	}
}

func TestExtract_RejectsEscapingEntries(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		entries   []testutil.TarEntry
		needsLink bool
		// outLink plants dest/out pointing at the parent of dest before extraction.
		outLink bool
	}{
		{name: "parent traversal", entries: []testutil.TarEntry{{Name: "../evil.txt", Body: "x"}}},
		{name: "nested traversal", entries: []testutil.TarEntry{{Name: "a/../../evil.txt", Body: "x"}}},
		{name: "absolute path", entries: []testutil.TarEntry{{Name: "/tmp/evil.txt", Body: "x"}}},
		{name: "absolute symlink", entries: []testutil.TarEntry{{Name: "link", Type: tar.TypeSymlink, Linkname: "/etc/passwd"}}},
		{name: "escaping symlink", entries: []testutil.TarEntry{{Name: "sub/link", Type: tar.TypeSymlink, Linkname: "../../outside"}}},
		{name: "escaping hard link", entries: []testutil.TarEntry{{Name: "hl", Type: tar.TypeLink, Linkname: "../outside"}}},
		{
			name: "symlink chain",
			entries: []testutil.TarEntry{
				{Name: "x/", Type: tar.TypeDir},
				{Name: "d", Type: tar.TypeSymlink, Linkname: "x/.."},
				{Name: "d/e", Type: tar.TypeSymlink, Linkname: ".."},
				{Name: "d/e/evil.txt", Body: "pwned"},
			},
			needsLink: true,
		},
		{
			name: "file below an existing outward link",
			entries: []testutil.TarEntry{
				{Name: "out/evil.txt", Body: "pwned"},
			},
			needsLink: true,
			outLink:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if tt.needsLink && runtime.GOOS == "windows" {
				t.Skip("symlinks need elevated privileges on Windows")
			}

			root := t.TempDir()
			dest := filepath.Join(root, "dest")
			if tt.outLink {
				testutil.MustMkdirAll(t, dest, 0o755)
				if err := os.Symlink(root, filepath.Join(dest, "out")); err != nil {
					t.Fatal(err)
				}
			}
			err := Extract(context.Background(), bytes.NewReader(testutil.TarGz(t, tt.entries...)), dest)
			if !errors.Is(err, ErrUnsafePath) {
				t.Fatalf("expected ErrUnsafePath, got %v", err)
			}
			if _, statErr := os.Lstat(filepath.Join(root, "evil.txt")); !os.IsNotExist(statErr) {
				t.Error("entry was written outside the destination")
			}
		})
	}
}

func TestExtract_Links(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need elevated privileges on Windows")
	}

	dest := t.TempDir()
	testutil.MustWriteFile(t, filepath.Join(dest, "current"), []byte("stale"), 0o644)

	data := testutil.TarGz(t,
		testutil.TarEntry{Name: "lib/libgame.so.1", Body: "lib"},
		testutil.TarEntry{Name: "lib/libgame.so", Type: tar.TypeSymlink, Linkname: "libgame.so.1"},
		testutil.TarEntry{Name: "current", Type: tar.TypeSymlink, Linkname: "lib/libgame.so.1"},
		testutil.TarEntry{Name: "copy.so", Type: tar.TypeLink, Linkname: "lib/libgame.so.1"},
	)
	if err := Extract(context.Background(), bytes.NewReader(data), dest); err != nil {
		t.Fatalf("Extract() error: %v", err)
	}

	for _, name := range []string{"lib/libgame.so", "current", "copy.so"} {
		if got := testutil.MustReadFile(t, filepath.Join(dest, filepath.FromSlash(name))); got != "lib" {
			t.Errorf("%s resolves to %q, want lib", name, got)
		}
	}
	target, err := os.Readlink(filepath.Join(dest, "current"))
	if err != nil {
		t.Fatalf("current should be a symlink after replacement: %v", err)
	}
	if target != "lib/libgame.so.1" {
		t.Errorf("current -> %q", target)
	}
}

func TestExtract_CancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	data := testutil.TarGz(t, testutil.TarEntry{Name: "a", Body: "a"})
	dest := t.TempDir()
	if err := Extract(ctx, bytes.NewReader(data), dest); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(dest, "a")); !os.IsNotExist(err) {
		t.Error("no entry should be extracted after cancellation")
	}
}

func TestExtract_EmptyInput(t *testing.T) {
	t.Parallel()

	if err := Extract(context.Background(), bytes.NewReader(nil), t.TempDir()); err == nil {
		t.Fatal("expected error for empty archive")
	}
}
