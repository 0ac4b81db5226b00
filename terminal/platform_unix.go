//go:build !windows

package terminal

// platformFoldCase leaves cwd untouched: Unix filesystems are
// case-sensitive (§4.3 "cwd normalization").
func platformFoldCase(cwd string) string {
	return cwd
}
