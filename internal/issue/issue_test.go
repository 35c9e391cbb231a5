// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"strings"
	"testing"
)

func TestValues_OrderedAndComplete(t *testing.T) {
	t.Parallel()

	values := Values()
	if len(values) != int(PermissionDeniedId) {
		t.Fatalf("Values() returned %d issues, want %d", len(values), PermissionDeniedId)
	}
	for i, v := range values {
		if v.Id() != Id(i+1) {
			t.Errorf("Values()[%d].Id() = %d, want %d", i, v.Id(), i+1)
		}
		if strings.TrimSpace(string(v.MarkdownMsg())) == "" {
			t.Errorf("issue %d has no content", v.Id())
		}
	}
}

func TestGet(t *testing.T) {
	t.Parallel()

	if Get(0) != nil {
		t.Error("Get(0) should be nil")
	}
	if Get(PermissionDeniedId+1) != nil {
		t.Error("Get(unknown) should be nil")
	}
	if got := Get(PortInUseId); got == nil || !strings.Contains(string(got.MarkdownMsg()), "Server port is busy") {
		t.Errorf("Get(PortInUseId) = %v", got)
	}
}

func TestIssue_ExtLinksIsCopy(t *testing.T) {
	t.Parallel()

	links := Get(PermissionDeniedId).ExtLinks()
	if len(links) == 0 {
		t.Fatal("expected external links")
	}
	links[0] = "mutated"
	if Get(PermissionDeniedId).ExtLinks()[0] == "mutated" {
		t.Error("ExtLinks() must return a copy")
	}
}

func TestIssue_RenderAppendsLinks(t *testing.T) {
	original := render
	t.Cleanup(func() { render = original })

	var captured string
	render = func(in, _ string) (string, error) {
		captured = in
		return in, nil
	}

	if _, err := Get(PermissionDeniedId).Render("notty"); err != nil {
		t.Fatalf("Render() error: %v", err)
	}
	if !strings.Contains(captured, "## See also") || !strings.Contains(captured, "https://pkg.go.dev/os#ErrPermission") {
		t.Errorf("rendered markdown missing links:\n%s", captured)
	}

	if _, err := Get(PortInUseId).Render("notty"); err != nil {
		t.Fatalf("Render() error: %v", err)
	}
	if strings.Contains(captured, "See also") {
		t.Error("issue without links should not render a See also section")
	}
}

func TestAllIssuesAreRenderable(t *testing.T) {
	t.Parallel()

	for _, i := range Values() {
		out, err := i.Render("notty")
		if err != nil {
			t.Errorf("Render(%d) error: %v", i.Id(), err)
			continue
		}
		if strings.TrimSpace(out) == "" {
			t.Errorf("Render(%d) produced empty output", i.Id())
		}
	}
}
