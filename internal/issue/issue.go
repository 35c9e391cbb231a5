// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"cmp"
	"strings"

	"github.com/charmbracelet/glamour"
	"golang.org/x/exp/slices"
)

// Id identifies a troubleshooting guide. The zero value means "no guide".
type Id int

const (
	UpdateCheckFailedId Id = iota + 1
	AmbiguousReleaseId
	DownloadFailedId
	ExtractionFailedId
	ExecutableMissingId
	PortInUseId
	ConfigLoadFailedId
	PermissionDeniedId
)

type MarkdownMsg string

type HttpLink string

type Issue struct {
	id       Id          // ID used to lookup the issue
	mdMsg    MarkdownMsg // Markdown text that will be rendered
	extLinks []HttpLink  // external links that might be useful for the user
}

func (i *Issue) Id() Id {
	return i.id
}

func (i *Issue) MarkdownMsg() MarkdownMsg {
	return i.mdMsg
}

func (i *Issue) ExtLinks() []HttpLink {
	return slices.Clone(i.extLinks)
}

// Render renders the guide as terminal Markdown using the named glamour style
// ("dark", "light", "notty", "auto" or a JSON style path).
func (i *Issue) Render(stylePath string) (string, error) {
	var md strings.Builder
	md.WriteString(string(i.mdMsg))
	if len(i.extLinks) > 0 {
		md.WriteString("\n\n## See also\n")
		for _, link := range i.extLinks {
			md.WriteString("- <" + string(link) + ">\n")
		}
	}
	return render(md.String(), stylePath)
}

var (
	render = glamour.Render

	updateCheckFailedIssue = &Issue{
		id: UpdateCheckFailedId,
		mdMsg: `
# Could not check for updates

The release service did not answer with a usable release description.

## Things you can try
- Check your network connection and proxy settings
- Retry in a few minutes; the release service may be rate limiting you
- Point the launcher at another endpoint:
~~~
$ CLASH_LAUNCHER_RELEASE_URL=https://example.org/releases/latest clash-launcher check
~~~

The game can still be started with the currently installed version.`,
	}

	ambiguousReleaseIssue = &Issue{
		id: AmbiguousReleaseId,
		mdMsg: `
# The latest release is ambiguous

A release must carry exactly one server package and exactly one client
package. The newest release is missing one of them or carries duplicates,
so the launcher refuses to guess.

## Things you can try
- Wait for the release to be fixed upstream and run ` + "`clash-launcher check`" + ` again
- Keep playing with the installed version`,
	}

	downloadFailedIssue = &Issue{
		id: DownloadFailedId,
		mdMsg: `
# Download failed

One of the update packages could not be downloaded. Partially written
files are left with a ` + "`.part`" + ` suffix and never replace a good package.

## Things you can try
- Check free disk space in the staging directory
- Retry the update:
~~~
$ clash-launcher update
~~~`,
	}

	extractionFailedIssue = &Issue{
		id: ExtractionFailedId,
		mdMsg: `
# Extraction failed

A downloaded package is not a valid tar.gz archive or contains entries that
would be written outside the install directory.

## Things you can try
- Delete the staging directory and run the update again
- Make sure nothing holds the client or server executable open (stop the game first)`,
	}

	executableMissingIssue = &Issue{
		id: ExecutableMissingId,
		mdMsg: `
# Game executable not found

The client or server executable does not exist at the configured path.

## Things you can try
- Install the game files:
~~~
$ clash-launcher update
~~~
- Check ` + "`paths.client_executable`" + ` and ` + "`paths.server_executable`" + ` in config.json`,
	}

	portInUseIssue = &Issue{
		id: PortInUseId,
		mdMsg: `
# Server port is busy

Another process is listening on the game server port and could not be
stopped, or its owner could not be identified.

## Things you can try
- Free the port explicitly and inspect the result:
~~~
$ clash-launcher free-port 12345
~~~
- Stop the other program manually
- Configure a different ` + "`server.port`" + ` in config.json`,
	}

	configLoadFailedIssue = &Issue{
		id: ConfigLoadFailedId,
		mdMsg: `
# Failed to load configuration

config.json could not be read or does not match the expected schema.

## Things you can try
- Show the effective configuration:
~~~
$ clash-launcher config show
~~~
- Remove unknown keys; only ` + "`current_version`, `release`, `paths`, `server` and `log`" + ` are accepted
- Delete the file to fall back to defaults`,
	}

	permissionDeniedIssue = &Issue{
		id: PermissionDeniedId,
		mdMsg: `
# Permission denied

The launcher could not write to the install directory or stop a process.

## Things you can try
- Run the launcher from a directory you own
- Stopping a process owned by another user requires elevated permissions`,
		extLinks: []HttpLink{"https://pkg.go.dev/os#ErrPermission"},
	}

	issues = map[Id]*Issue{
		updateCheckFailedIssue.Id(): updateCheckFailedIssue,
		ambiguousReleaseIssue.Id():  ambiguousReleaseIssue,
		downloadFailedIssue.Id():    downloadFailedIssue,
		extractionFailedIssue.Id():  extractionFailedIssue,
		executableMissingIssue.Id(): executableMissingIssue,
		portInUseIssue.Id():         portInUseIssue,
		configLoadFailedIssue.Id():  configLoadFailedIssue,
		permissionDeniedIssue.Id():  permissionDeniedIssue,
	}
)

// Values returns every catalog entry ordered by Id.
func Values() []*Issue {
	out := make([]*Issue, 0, len(issues))
	for _, i := range issues {
		out = append(out, i)
	}
	slices.SortFunc(out, func(a, b *Issue) int { return cmp.Compare(a.id, b.id) })
	return out
}

func Get(id Id) *Issue {
	return issues[id]
}
