// SPDX-License-Identifier: MPL-2.0

// Package update chains the release resolver, the artifact fetcher and the
// archive installer over the launcher's fixed filesystem layout.
//
// An update downloads both packages to the staging directory under fixed
// names (client.tar.gz, server.tar.gz) and only then extracts both. Nothing
// is rolled back if extraction fails part-way; the next successful update
// overwrites the install directories.
package update
