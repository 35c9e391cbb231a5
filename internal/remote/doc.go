// SPDX-License-Identifier: MPL-2.0

// Package remote holds the HTTP plumbing shared by the release resolver and the
// artifact fetcher: request construction with an identifying User-Agent, and
// the network, status, and decode error types both stages report.
package remote
