// SPDX-License-Identifier: MPL-2.0

// Package release resolves whether a newer client/server release pair is
// published. It fetches the latest release metadata, compares its tag with the
// installed tag, and locates the client and server tarballs by naming
// convention.
package release

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/mod/semver"
)

const (
	// AssetOther is any asset that is neither a client nor a server tarball.
	AssetOther AssetKind = iota
	// AssetClient matches "client-*.tar.gz".
	AssetClient
	// AssetServer matches "server-*.tar.gz".
	AssetServer
)

const (
	// NoUpdate means the published tag equals the installed tag.
	NoUpdate AvailabilityKind = iota
	// UpdateFound means a different tag is published with exactly one client
	// and one server tarball.
	UpdateFound
	// UpdateAmbiguous means a different tag is published but the expected
	// tarball pair could not be located unambiguously.
	UpdateAmbiguous
)

const (
	clientPrefix  = "client-"
	serverPrefix  = "server-"
	archiveSuffix = ".tar.gz"
)

// ErrAmbiguousRelease is returned by Availability.Err for UpdateAmbiguous results.
var ErrAmbiguousRelease = errors.New("ambiguous release")

type (
	// AssetKind classifies a release asset by its file name.
	AssetKind int

	// AvailabilityKind discriminates Availability results.
	AvailabilityKind int

	// Asset is a single downloadable file attached to a release.
	Asset struct {
		Name        string
		DownloadURL string
	}

	// Release is the decoded release descriptor. It is immutable after decoding.
	Release struct {
		Tag    string
		Name   string
		Body   string // release notes, markdown
		Assets []Asset
	}

	// Availability is the outcome of one update check. It is computed fresh on
	// every check and never persisted.
	Availability struct {
		Kind       AvailabilityKind
		CurrentTag string
		Tag        string
		ClientURL  string
		ServerURL  string
		Reason     string // set for UpdateAmbiguous
		Release    *Release
	}
)

// String returns the lowercase asset kind name.
func (k AssetKind) String() string {
	switch k {
	case AssetClient:
		return "client"
	case AssetServer:
		return "server"
	default:
		return "other"
	}
}

// String returns a human-readable availability kind.
func (k AvailabilityKind) String() string {
	switch k {
	case NoUpdate:
		return "no update"
	case UpdateFound:
		return "update found"
	case UpdateAmbiguous:
		return "update ambiguous"
	default:
		return "unknown"
	}
}

// Classify maps an asset name to its kind using the release naming convention.
func Classify(name string) AssetKind {
	if !strings.HasSuffix(name, archiveSuffix) {
		return AssetOther
	}
	switch {
	case strings.HasPrefix(name, clientPrefix):
		return AssetClient
	case strings.HasPrefix(name, serverPrefix):
		return AssetServer
	default:
		return AssetOther
	}
}

// Evaluate compares rel against currentTag. It never fails: a missing or
// duplicated tarball yields UpdateAmbiguous with a reason naming the problem.
func Evaluate(rel *Release, currentTag string) Availability {
	if rel.Tag == currentTag {
		return Availability{Kind: NoUpdate, CurrentTag: currentTag, Tag: rel.Tag, Release: rel}
	}

	var clients, servers []Asset
	for _, a := range rel.Assets {
		switch Classify(a.Name) {
		case AssetClient:
			clients = append(clients, a)
		case AssetServer:
			servers = append(servers, a)
		case AssetOther:
		}
	}

	var problems []string
	if p := pairProblem(AssetClient, clients); p != "" {
		problems = append(problems, p)
	}
	if p := pairProblem(AssetServer, servers); p != "" {
		problems = append(problems, p)
	}
	if len(problems) > 0 {
		return Availability{
			Kind:       UpdateAmbiguous,
			CurrentTag: currentTag,
			Tag:        rel.Tag,
			Reason:     strings.Join(problems, "; "),
			Release:    rel,
		}
	}

	return Availability{
		Kind:       UpdateFound,
		CurrentTag: currentTag,
		Tag:        rel.Tag,
		ClientURL:  clients[0].DownloadURL,
		ServerURL:  servers[0].DownloadURL,
		Release:    rel,
	}
}

func pairProblem(kind AssetKind, matches []Asset) string {
	switch len(matches) {
	case 1:
		return ""
	case 0:
		return fmt.Sprintf("no %s package (%s*%s) in release", kind, kind, archiveSuffix)
	default:
		names := make([]string, 0, len(matches))
		for _, m := range matches {
			names = append(names, m.Name)
		}
		return fmt.Sprintf("%d %s packages in release (%s)", len(matches), kind, strings.Join(names, ", "))
	}
}

// Err returns nil unless the availability is ambiguous, in which case it
// returns an error wrapping ErrAmbiguousRelease with the reason.
func (a Availability) Err() error {
	if a.Kind != UpdateAmbiguous {
		return nil
	}
	return fmt.Errorf("%w %s: %s", ErrAmbiguousRelease, a.Tag, a.Reason)
}

// Direction reports "upgrade" or "downgrade" when both tags are valid semantic
// versions, and "unknown" otherwise. It is informational only: any tag
// mismatch is treated as an available update.
func (a Availability) Direction() string {
	cur, latest := canonical(a.CurrentTag), canonical(a.Tag)
	if !semver.IsValid(cur) || !semver.IsValid(latest) {
		return "unknown"
	}
	switch semver.Compare(latest, cur) {
	case 1:
		return "upgrade"
	case -1:
		return "downgrade"
	default:
		return "unknown"
	}
}

func canonical(tag string) string {
	if tag != "" && !strings.HasPrefix(tag, "v") {
		return "v" + tag
	}
	return tag
}
