// SPDX-License-Identifier: MPL-2.0

package config

import (
	"fmt"
	"strings"

	cueerrors "cuelang.org/go/cue/errors"
)

// maxFileSize bounds config files read into memory.
const maxFileSize = 1 << 20

// FileTooLargeError is returned when a config file exceeds the size limit.
type FileTooLargeError struct {
	Path  string
	Size  int
	Limit int
}

func (e *FileTooLargeError) Error() string {
	return fmt.Sprintf("%s: file size %d bytes exceeds limit of %d bytes", e.Path, e.Size, e.Limit)
}

// SchemaError reports a config file that does not parse or does not match
// the schema. It wraps ErrInvalidConfig for errors.Is() compatibility.
type SchemaError struct {
	Path     string
	Problems []string
}

func (e *SchemaError) Error() string {
	if len(e.Problems) == 1 {
		return fmt.Sprintf("%s: %s", e.Path, e.Problems[0])
	}
	return fmt.Sprintf("%s: validation failed:\n  %s", e.Path, strings.Join(e.Problems, "\n  "))
}

// Unwrap returns ErrInvalidConfig.
func (e *SchemaError) Unwrap() error { return ErrInvalidConfig }

func checkFileSize(data []byte, limit int, path string) error {
	if len(data) > limit {
		return &FileTooLargeError{Path: path, Size: len(data), Limit: limit}
	}
	return nil
}

// formatCUEError flattens a CUE error list into a *SchemaError whose
// "<key path>: <message>" lines point at the offending config keys.
func formatCUEError(err error, filePath string) error {
	if err == nil {
		return nil
	}

	cueErrs := cueerrors.Errors(err)
	if len(cueErrs) == 0 {
		return &SchemaError{Path: filePath, Problems: []string{err.Error()}}
	}

	lines := make([]string, 0, len(cueErrs))
	for _, e := range cueErrs {
		key := strings.Join(trimDefinition(cueerrors.Path(e)), ".")
		msg := e.Error()
		if key != "" && strings.HasPrefix(msg, key) {
			msg = strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(msg, key), ":"))
		}
		if key != "" {
			msg = key + ": " + msg
		}
		lines = append(lines, msg)
	}

	return &SchemaError{Path: filePath, Problems: lines}
}

// trimDefinition drops the leading "#Config" selector CUE reports for
// schema violations.
func trimDefinition(path []string) []string {
	if len(path) > 0 && strings.HasPrefix(path[0], "#") {
		return path[1:]
	}
	return path
}
