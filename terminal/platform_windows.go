//go:build windows

package terminal

import "strings"

// platformFoldCase folds cwd to lowercase: Windows paths are compared
// case-insensitively (§4.3 "cwd normalization").
func platformFoldCase(cwd string) string {
	return strings.ToLower(cwd)
}
