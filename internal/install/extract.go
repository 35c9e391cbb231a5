// SPDX-License-Identifier: MPL-2.0

package install

import (
	"archive/tar"
	"bufio"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	gzipMagic0 = 0x1f
	gzipMagic1 = 0x8b

	readAheadSize = 1 << 20
)

// ErrUnsafePath is returned for archive entries that would be written, or
// would link, outside the destination directory.
var ErrUnsafePath = errors.New("archive entry escapes destination")

// Extract unpacks the tar stream read from r into dest. Gzip compression is
// detected from the magic bytes; an uncompressed tar stream is accepted too.
// Existing files are truncated and overwritten. ctx is checked before every
// entry.
func Extract(ctx context.Context, r io.Reader, dest string) error {
	br := bufio.NewReaderSize(r, readAheadSize)
	magic, err := br.Peek(2)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("archive is empty")
		}
		return fmt.Errorf("reading archive header: %w", err)
	}

	var src io.Reader = br
	if magic[0] == gzipMagic0 && magic[1] == gzipMagic1 {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return fmt.Errorf("decompressing: %w", err)
		}
		defer func() { _ = gz.Close() }() // read-only decompressor
		src = gz
	}

	x, err := openExtractor(dest)
	if err != nil {
		return err
	}
	defer func() { _ = x.root.Close() }()

	tr := tar.NewReader(src)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		// Insecure names are rejected by extractEntry with ErrUnsafePath.
		if err != nil && !errors.Is(err, tar.ErrInsecurePath) {
			return fmt.Errorf("reading tar entry: %w", err)
		}
		if err := x.extractEntry(tr, hdr); err != nil {
			return fmt.Errorf("%s: %w", hdr.Name, err)
		}
	}
}

// extractor writes entries below one destination. Every filesystem call goes
// through an os.Root, so a symlink planted by an earlier entry can never be
// followed outside the destination; the explicit checks turn such attempts
// into ErrUnsafePath.
type extractor struct {
	root    *os.Root
	dir     string // absolute destination
	realDir string // dir with symlinks resolved
}

func openExtractor(dest string) (*extractor, error) {
	dir, err := filepath.Abs(dest)
	if err != nil {
		return nil, fmt.Errorf("resolving destination: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating destination: %w", err)
	}
	realDir, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving destination: %w", err)
	}
	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, fmt.Errorf("opening destination: %w", err)
	}
	return &extractor{root: root, dir: dir, realDir: realDir}, nil
}

func (x *extractor) extractEntry(tr *tar.Reader, hdr *tar.Header) error {
	rel, err := safeRel(hdr.Name)
	if err != nil {
		return err
	}
	if rel == "." && hdr.Typeflag != tar.TypeDir {
		return fmt.Errorf("%w: entry resolves to the destination root", ErrUnsafePath)
	}

	switch hdr.Typeflag {
	case tar.TypeDir:
		if err := x.checkExisting(rel); err != nil {
			return err
		}
		return x.root.MkdirAll(rel, 0o755)
	case tar.TypeReg:
		return x.writeFile(tr, hdr, rel)
	case tar.TypeSymlink:
		return x.writeSymlink(hdr, rel)
	case tar.TypeLink:
		return x.writeHardLink(hdr, rel)
	default:
		// Devices, FIFOs and PAX/GNU metadata entries carry nothing to install.
		return nil
	}
}

func (x *extractor) writeFile(tr *tar.Reader, hdr *tar.Header, rel string) error {
	if _, err := x.prepareParent(rel); err != nil {
		return err
	}
	// A previous install may have left a symlink here; never write through it.
	if fi, err := x.root.Lstat(rel); err == nil && fi.Mode()&os.ModeSymlink != 0 {
		if err := x.root.Remove(rel); err != nil {
			return err
		}
	}

	mode := hdr.FileInfo().Mode().Perm() | 0o600
	out, err := x.root.OpenFile(rel, os.O_RDWR|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("create: %w", err)
	}
	if _, err := io.Copy(out, tr); err != nil {
		_ = out.Close()
		return fmt.Errorf("write: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close: %w", err)
	}

	// OpenFile only applies the mode on creation and is subject to umask.
	if err := x.root.Chmod(rel, mode); err != nil {
		return fmt.Errorf("chmod: %w", err)
	}
	_ = x.root.Chtimes(rel, time.Now(), hdr.ModTime)
	return nil
}

func (x *extractor) writeSymlink(hdr *tar.Header, rel string) error {
	link := filepath.FromSlash(hdr.Linkname)
	if filepath.IsAbs(link) || filepath.VolumeName(link) != "" || strings.HasPrefix(hdr.Linkname, "/") {
		return fmt.Errorf("%w: absolute symlink target %q", ErrUnsafePath, hdr.Linkname)
	}
	parent, err := x.prepareParent(rel)
	if err != nil {
		return err
	}
	// The link is resolved from where its parent really is, not from where
	// the entry name says it is.
	resolved := filepath.Join(parent, link)
	if !within(x.realDir, resolved) {
		return fmt.Errorf("%w: symlink target %q", ErrUnsafePath, hdr.Linkname)
	}
	if real, err := filepath.EvalSymlinks(resolved); err == nil && !within(x.realDir, real) {
		return fmt.Errorf("%w: symlink target %q", ErrUnsafePath, hdr.Linkname)
	}
	if err := x.removeExisting(rel); err != nil {
		return err
	}
	return x.root.Symlink(hdr.Linkname, rel)
}

func (x *extractor) writeHardLink(hdr *tar.Header, rel string) error {
	source, err := safeRel(hdr.Linkname)
	if err != nil {
		return err
	}
	if err := x.checkExisting(source); err != nil {
		return err
	}
	if _, err := x.prepareParent(rel); err != nil {
		return err
	}
	if err := x.removeExisting(rel); err != nil {
		return err
	}
	return x.root.Link(source, rel)
}

func (x *extractor) removeExisting(rel string) error {
	fi, err := x.root.Lstat(rel)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if fi.IsDir() {
		return fmt.Errorf("cannot replace directory %s with a link", rel)
	}
	return x.root.Remove(rel)
}

// prepareParent creates the parent directory of rel and returns its real
// path, failing with ErrUnsafePath if symlinks lead it out of the
// destination.
func (x *extractor) prepareParent(rel string) (string, error) {
	dir := filepath.Dir(rel)
	if err := x.checkExisting(dir); err != nil {
		return "", err
	}
	if err := x.root.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	real, err := filepath.EvalSymlinks(filepath.Join(x.dir, dir))
	if err != nil {
		return "", err
	}
	if !within(x.realDir, real) {
		return "", fmt.Errorf("%w: %q leaves the destination", ErrUnsafePath, dir)
	}
	return real, nil
}

// checkExisting resolves the deepest existing ancestor of rel (rel itself
// included) and fails with ErrUnsafePath if it lies outside the destination.
func (x *extractor) checkExisting(rel string) error {
	for p := rel; ; p = filepath.Dir(p) {
		real, err := filepath.EvalSymlinks(filepath.Join(x.dir, p))
		if err == nil {
			if !within(x.realDir, real) {
				return fmt.Errorf("%w: %q leaves the destination", ErrUnsafePath, rel)
			}
			return nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		if p == "." {
			return err
		}
	}
}

// safeRel cleans an archive entry name into a path relative to the
// destination, rejecting absolute names and names that climb out of it.
func safeRel(name string) (string, error) {
	native := filepath.FromSlash(name)
	if filepath.IsAbs(native) || filepath.VolumeName(native) != "" || strings.HasPrefix(name, "/") {
		return "", fmt.Errorf("%w: absolute path %q", ErrUnsafePath, name)
	}
	rel := filepath.Clean(native)
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, name)
	}
	return rel, nil
}

func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
