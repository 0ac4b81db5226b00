package spawn

import "strings"

// cmdExeSpecials is applied in order, matching the bit-exact rule:
// ^ -> ^^, & -> ^&, | -> ^|, < -> ^<, > -> ^>, % -> %%, " -> \".
var cmdExeSpecials = []struct{ from, to string }{
	{"^", "^^"},
	{"&", "^&"},
	{"|", "^|"},
	{"<", "^<"},
	{">", "^>"},
	{"%", "%%"},
	{"\"", "\\\""},
}

// EscapeCmdExe escapes s so it is safe to embed in a cmd.exe command line.
func EscapeCmdExe(s string) string {
	for _, sub := range cmdExeSpecials {
		s = strings.ReplaceAll(s, sub.from, sub.to)
	}
	return s
}

// QuotePowerShellLiteral wraps s in single quotes, doubling any embedded
// single quote, PowerShell's escaping rule for literal strings.
func QuotePowerShellLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// WindowsToWSLPath converts a Windows path like `D:\users\words with
// spaces` to its WSL-mounted equivalent, e.g. `/mnt/d/users/words with
// spaces`, using the given mount prefix (normally "/mnt").
func WindowsToWSLPath(winPath, mountPrefix string) string {
	if len(winPath) < 2 || winPath[1] != ':' {
		return winPath
	}
	drive := strings.ToLower(winPath[:1])
	rest := winPath[2:]
	rest = strings.ReplaceAll(rest, "\\", "/")
	rest = strings.TrimPrefix(rest, "/")
	if rest == "" {
		return mountPrefix + "/" + drive
	}
	return mountPrefix + "/" + drive + "/" + rest
}

// UnixToWindowsPath converts a WSL-mounted path like `/mnt/d/users/words
// with spaces` back to its Windows equivalent `D:\users\words with
// spaces`, using the given mount prefix. Paths not under the mount
// prefix are returned unchanged (e.g. pure-Linux paths with no Windows
// equivalent).
func UnixToWindowsPath(unixPath, mountPrefix string) string {
	prefix := mountPrefix + "/"
	if !strings.HasPrefix(unixPath, prefix) {
		return unixPath
	}
	rest := unixPath[len(prefix):]
	if rest == "" {
		return unixPath
	}
	slash := strings.IndexByte(rest, '/')
	var drive, tail string
	if slash < 0 {
		drive, tail = rest, ""
	} else {
		drive, tail = rest[:slash], rest[slash+1:]
	}
	if len(drive) != 1 {
		return unixPath
	}
	winPath := strings.ToUpper(drive) + ":\\"
	winPath += strings.ReplaceAll(tail, "/", "\\")
	return winPath
}

// IsUnixStylePath reports whether p looks like a Unix absolute path
// (leading "/") rather than a Windows drive-letter or UNC path.
func IsUnixStylePath(p string) bool {
	return strings.HasPrefix(p, "/") && !strings.HasPrefix(p, "//")
}

// normalizeCwdForComparison applies the cwd comparison rule from the
// Terminal Registry's session-lookup helpers: case-insensitive on
// Windows, case-sensitive on Unix, with backslashes normalized to
// forward slashes and trailing slashes stripped.
func normalizeCwdForComparison(cwd string, goos string) string {
	cwd = strings.ReplaceAll(cwd, "\\", "/")
	for len(cwd) > 1 && strings.HasSuffix(cwd, "/") {
		cwd = cwd[:len(cwd)-1]
	}
	if goos == "windows" {
		cwd = strings.ToLower(cwd)
	}
	return cwd
}

// NormalizeCwd is the exported form of normalizeCwdForComparison, used by
// the terminal registry's session-lookup helpers.
func NormalizeCwd(cwd string, goos string) string {
	return normalizeCwdForComparison(cwd, goos)
}
