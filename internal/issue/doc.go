// SPDX-License-Identifier: MPL-2.0

// Package issue provides actionable error handling with user-friendly messages.
//
// ActionableError carries the failed operation, the resource involved and
// remediation hints; an optional guide Id links it to a Markdown troubleshooting
// page that the CLI renders with glamour.
package issue
