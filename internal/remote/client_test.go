// SPDX-License-Identifier: MPL-2.0

package remote

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestGet_SendsUserAgentAndAccept(t *testing.T) {
	t.Parallel()

	var gotUA, gotAccept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotAccept = r.Header.Get("Accept")
		_, _ = io.WriteString(w, "ok")
	}))
	defer srv.Close()

	c := NewClient(WithUserAgent("clash-launcher/v9"), WithAccept("application/vnd.github+json"))
	resp, err := c.Get(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if gotUA != "clash-launcher/v9" {
		t.Errorf("User-Agent = %q, want %q", gotUA, "clash-launcher/v9")
	}
	if gotAccept != "application/vnd.github+json" {
		t.Errorf("Accept = %q, want %q", gotAccept, "application/vnd.github+json")
	}
}

func TestGet_EmptyUserAgentKeepsDefault(t *testing.T) {
	t.Parallel()

	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	resp, err := NewClient(WithUserAgent("")).Get(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if gotUA != DefaultUserAgent {
		t.Errorf("User-Agent = %q, want %q", gotUA, DefaultUserAgent)
	}
}

func TestGet_NonSuccessStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := NewClient().Get(context.Background(), srv.URL)
	if err == nil {
		t.Fatal("expected error for 403")
	}

	var remoteErr *RemoteError
	if !errors.As(err, &remoteErr) {
		t.Fatalf("expected *RemoteError, got %T: %v", err, err)
	}
	if remoteErr.Status != http.StatusForbidden {
		t.Errorf("Status = %d, want %d", remoteErr.Status, http.StatusForbidden)
	}
	if !errors.Is(err, ErrRemote) {
		t.Error("expected errors.Is(err, ErrRemote)")
	}
}

func TestGet_NetworkFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	addr := srv.URL
	srv.Close()

	_, err := NewClient().Get(context.Background(), addr)
	if err == nil {
		t.Fatal("expected error for closed server")
	}
	if !errors.Is(err, ErrNetwork) {
		t.Errorf("expected errors.Is(err, ErrNetwork), got %v", err)
	}
}

func TestGet_Timeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	c := NewClient(WithTimeout(50 * time.Millisecond))
	_, err := c.Get(context.Background(), srv.URL)
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("expected network error on timeout, got %v", err)
	}
}

func TestRedactURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "https://example.com/a/b.tar.gz", want: "https://example.com/a/b.tar.gz"},
		{name: "query stripped", in: "https://cdn.example.com/x?sig=secret&exp=1", want: "https://cdn.example.com/x"},
		{name: "fragment stripped", in: "https://example.com/x#frag", want: "https://example.com/x"},
		{name: "invalid", in: "://bad", want: "<invalid-url>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := RedactURL(tt.in); got != tt.want {
				t.Errorf("RedactURL(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestErrorMessagesRedactCredentials(t *testing.T) {
	t.Parallel()

	err := &RemoteError{URL: "https://cdn.example.com/server.tar.gz?token=abc", Status: 404}
	if strings.Contains(err.Error(), "token=abc") {
		t.Errorf("error message leaks query string: %s", err.Error())
	}
}
