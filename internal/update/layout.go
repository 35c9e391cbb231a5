// SPDX-License-Identifier: MPL-2.0

package update

import (
	"path/filepath"

	"clash-launcher/internal/config"
	"clash-launcher/internal/fetch"
	"clash-launcher/internal/install"
	"clash-launcher/internal/release"
)

const (
	clientArchiveName = "client.tar.gz"
	serverArchiveName = "server.tar.gz"
)

// Layout is the on-disk location of staged archives and install directories.
type Layout struct {
	StagingDir string
	ClientDir  string
	ServerDir  string
}

// LayoutFromConfig resolves a Layout from configured paths.
func LayoutFromConfig(p config.PathsConfig) Layout {
	return Layout{
		StagingDir: p.StagingPath(),
		ClientDir:  p.ClientInstallDir(),
		ServerDir:  p.ServerInstallDir(),
	}
}

// ClientArchive is where the client package is downloaded.
func (l Layout) ClientArchive() string { return filepath.Join(l.StagingDir, clientArchiveName) }

// ServerArchive is where the server package is downloaded.
func (l Layout) ServerArchive() string { return filepath.Join(l.StagingDir, serverArchiveName) }

func (l Layout) tasks(av release.Availability) []fetch.Task {
	return []fetch.Task{
		{URL: av.ClientURL, Dest: l.ClientArchive()},
		{URL: av.ServerURL, Dest: l.ServerArchive()},
	}
}

func (l Layout) archives() []install.Archive {
	return []install.Archive{
		{Path: l.ClientArchive(), Dest: l.ClientDir},
		{Path: l.ServerArchive(), Dest: l.ServerDir},
	}
}
