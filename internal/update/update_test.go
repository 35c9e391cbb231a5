// SPDX-License-Identifier: MPL-2.0

package update

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/charmbracelet/log"

	"clash-launcher/internal/events"
	"clash-launcher/internal/fetch"
	"clash-launcher/internal/install"
	"clash-launcher/internal/release"
	"clash-launcher/internal/remote"
	"clash-launcher/internal/testutil"
)

func quietLogger() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{})
}

// releaseServer serves release metadata at /latest and package bodies at
// /dl/<name>. assets maps asset names to archive bytes; a nil body answers 404.
type releaseServer struct {
	*httptest.Server
	downloads atomic.Int32
}

func newReleaseServer(t *testing.T, tag string, assets map[string][]byte) *releaseServer {
	t.Helper()
	rs := &releaseServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("/latest", func(w http.ResponseWriter, _ *http.Request) {
		type asset struct {
			Name string `json:"name"`
			URL  string `json:"browser_download_url"`
		}
		var list []asset
		for name := range assets {
			list = append(list, asset{Name: name, URL: rs.URL + "/dl/" + name})
		}
		if err := json.NewEncoder(w).Encode(map[string]any{"tag_name": tag, "assets": list}); err != nil {
			t.Errorf("encoding metadata: %v", err)
		}
	})
	mux.HandleFunc("/dl/", func(w http.ResponseWriter, r *http.Request) {
		rs.downloads.Add(1)
		body := assets[strings.TrimPrefix(r.URL.Path, "/dl/")]
		if body == nil {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(body)
	})
	rs.Server = httptest.NewServer(mux)
	t.Cleanup(rs.Close)
	return rs
}

func newTestUpdater(t *testing.T, srv *releaseServer, root string, sink events.Sink) *Updater {
	t.Helper()
	client := remote.NewClient()
	layout := Layout{
		StagingDir: filepath.Join(root, "updates"),
		ClientDir:  filepath.Join(root, "client_update"),
		ServerDir:  filepath.Join(root, "server_update"),
	}
	return New(layout,
		release.NewResolver(release.WithClient(client), release.WithEndpoint(srv.URL+"/latest"), release.WithLogger(quietLogger())),
		fetch.New(fetch.WithClient(client), fetch.WithLogger(quietLogger())),
		install.New(install.WithLogger(quietLogger())),
		WithSink(sink), WithLogger(quietLogger()),
	)
}

func gamePackages(t *testing.T, tag string) map[string][]byte {
	t.Helper()
	return map[string][]byte{
		"client-" + tag + ".tar.gz": testutil.TarGz(t, testutil.TarEntry{Name: "client", Body: "client " + tag, Mode: 0o755}),
		"server-" + tag + ".tar.gz": testutil.TarGz(t,
			testutil.TarEntry{Name: "server", Body: "server " + tag, Mode: 0o755},
			testutil.TarEntry{Name: "maps/arena.json", Body: "{}"},
		),
	}
}

func statuses(rec *events.Recorder) []string {
	var out []string
	for _, e := range rec.Named(events.UpdateStatus) {
		out = append(out, e.Payload)
	}
	return out
}

func TestRun_InstallsNewRelease(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	srv := newReleaseServer(t, "v2", gamePackages(t, "v2"))
	rec := events.NewRecorder()

	res, err := newTestUpdater(t, srv, root, rec).Run(context.Background(), "v1")
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if !res.Applied || res.Availability.Kind != release.UpdateFound || res.Availability.Tag != "v2" {
		t.Fatalf("Run() = %+v", res)
	}

	for _, f := range []struct{ path, want string }{
		{filepath.Join(root, "client_update", "client"), "client v2"},
		{filepath.Join(root, "server_update", "server"), "server v2"},
		{filepath.Join(root, "server_update", "maps", "arena.json"), "{}"},
	} {
		if got := testutil.MustReadFile(t, f.path); got != f.want {
			t.Errorf("%s = %q, want %q", f.path, got, f.want)
		}
	}
	for _, staged := range []string{"client.tar.gz", "server.tar.gz"} {
		if _, err := os.Stat(filepath.Join(root, "updates", staged)); err != nil {
			t.Errorf("staged archive %s: %v", staged, err)
		}
	}

	got := statuses(rec)
	want := []string{"checking for updates", "update available: v2 (upgrade)", "downloading v2", "extracting v2", "installed v2"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("statuses = %q, want %q", got, want)
	}
}

func TestRun_UpToDateSkipsDownload(t *testing.T) {
	t.Parallel()

	srv := newReleaseServer(t, "v2", gamePackages(t, "v2"))
	res, err := newTestUpdater(t, srv, t.TempDir(), events.Discard).Run(context.Background(), "v2")
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if res.Applied || res.Availability.Kind != release.NoUpdate {
		t.Errorf("Run() = %+v, want NoUpdate", res)
	}
	if n := srv.downloads.Load(); n != 0 {
		t.Errorf("%d downloads, want none", n)
	}
}

func TestRun_AmbiguousReleaseSkipsDownload(t *testing.T) {
	t.Parallel()

	pkgs := gamePackages(t, "v2")
	delete(pkgs, "server-v2.tar.gz")
	srv := newReleaseServer(t, "v2", pkgs)
	rec := events.NewRecorder()

	u := newTestUpdater(t, srv, t.TempDir(), rec)
	res, err := u.Run(context.Background(), "v1")
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if res.Applied || res.Availability.Kind != release.UpdateAmbiguous {
		t.Fatalf("Run() = %+v, want UpdateAmbiguous", res)
	}
	if n := srv.downloads.Load(); n != 0 {
		t.Errorf("%d downloads, want none", n)
	}
	if err := u.Apply(context.Background(), res.Availability); !errors.Is(err, release.ErrAmbiguousRelease) {
		t.Errorf("Apply(ambiguous) = %v, want ErrAmbiguousRelease", err)
	}
}

func TestApply_DownloadFailureSkipsExtraction(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	srv := newReleaseServer(t, "v2", gamePackages(t, "v2"))
	u := newTestUpdater(t, srv, root, events.Discard)

	av := release.Availability{
		Kind:      release.UpdateFound,
		Tag:       "v2",
		ClientURL: srv.URL + "/dl/client-v2.tar.gz",
		ServerURL: srv.URL + "/dl/missing.tar.gz",
	}
	err := u.Apply(context.Background(), av)

	var remoteErr *remote.RemoteError
	if !errors.As(err, &remoteErr) || remoteErr.Status != http.StatusNotFound {
		t.Fatalf("Apply() = %v, want a 404 RemoteError", err)
	}
	if _, statErr := os.Stat(filepath.Join(root, "client_update")); !os.IsNotExist(statErr) {
		t.Error("nothing should be extracted when a download fails")
	}
}

func TestApply_ExtractionFailureReported(t *testing.T) {
	t.Parallel()

	pkgs := gamePackages(t, "v3")
	pkgs["server-v3.tar.gz"] = []byte("not a tarball")
	srv := newReleaseServer(t, "v3", pkgs)
	root := t.TempDir()

	_, err := newTestUpdater(t, srv, root, events.Discard).Run(context.Background(), "v2")
	var xerr *install.ExtractionError
	if !errors.As(err, &xerr) {
		t.Fatalf("Run() = %v, want *install.ExtractionError", err)
	}
	if xerr.Archive != filepath.Join(root, "updates", "server.tar.gz") {
		t.Errorf("failed archive = %q", xerr.Archive)
	}
	if got := testutil.MustReadFile(t, filepath.Join(root, "client_update", "client")); got != "client v3" {
		t.Errorf("client sibling extraction = %q", got)
	}
}

func TestApply_NothingToApply(t *testing.T) {
	t.Parallel()

	u := New(Layout{}, nil, nil, nil, WithLogger(quietLogger()))
	if err := u.Apply(context.Background(), release.Availability{Kind: release.NoUpdate}); !errors.Is(err, ErrNothingToApply) {
		t.Fatalf("Apply(NoUpdate) = %v, want ErrNothingToApply", err)
	}
}

type blockingDownloader struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingDownloader) FetchAll(ctx context.Context, _ []fetch.Task) error {
	close(b.entered)
	select {
	case <-b.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type nopExtractor struct{}

func (nopExtractor) ExtractAll(context.Context, []install.Archive) error { return nil }

func TestApply_RejectsConcurrentApply(t *testing.T) {
	t.Parallel()

	dl := &blockingDownloader{entered: make(chan struct{}), release: make(chan struct{})}
	u := New(Layout{}, nil, dl, nopExtractor{}, WithLogger(quietLogger()))
	av := release.Availability{Kind: release.UpdateFound, Tag: "v2", ClientURL: "http://x/c", ServerURL: "http://x/s"}

	errCh := make(chan error, 1)
	go func() { errCh <- u.Apply(context.Background(), av) }()
	<-dl.entered

	if err := u.Apply(context.Background(), av); !errors.Is(err, ErrUpdateInProgress) {
		t.Errorf("concurrent Apply() = %v, want ErrUpdateInProgress", err)
	}
	close(dl.release)
	if err := <-errCh; err != nil {
		t.Fatalf("first Apply() error: %v", err)
	}
}

func TestCheck_WrapsResolverErrors(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)

	rec := events.NewRecorder()
	u := New(Layout{}, release.NewResolver(release.WithEndpoint(srv.URL), release.WithLogger(quietLogger())), nil, nil,
		WithSink(rec), WithLogger(quietLogger()))

	_, err := u.Check(context.Background(), "v1")
	if !errors.Is(err, remote.ErrRemote) {
		t.Fatalf("Check() = %v, want ErrRemote", err)
	}
	got := statuses(rec)
	if len(got) != 2 || !strings.HasPrefix(got[1], "update check failed") {
		t.Errorf("statuses = %q", got)
	}
}

func TestLayout(t *testing.T) {
	t.Parallel()

	l := Layout{StagingDir: "updates", ClientDir: "client_update", ServerDir: "server_update"}
	if got := l.ClientArchive(); got != filepath.Join("updates", "client.tar.gz") {
		t.Errorf("ClientArchive() = %q", got)
	}
	if got := l.ServerArchive(); got != filepath.Join("updates", "server.tar.gz") {
		t.Errorf("ServerArchive() = %q", got)
	}
	archives := l.archives()
	if archives[0].Dest != "client_update" || archives[1].Dest != "server_update" {
		t.Errorf("archives = %+v", archives)
	}
}
