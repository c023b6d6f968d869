package session

import (
	"path/filepath"
	"strings"
)

// resolvePath joins arg onto cwd (unless arg is absolute), cleans the
// result and reports whether it stays within root.  root and cwd must
// already be clean absolute paths.
//
// An absolute arg names a host path, matching the host paths PWD
// reports; it is not re-rooted under cwd or root.  "/" is therefore
// outside any root but "/" itself and is refused.
func resolvePath(root, cwd, arg string) (string, bool) {
	p := arg
	if !filepath.IsAbs(p) {
		p = filepath.Join(cwd, p)
	}
	p = filepath.Clean(p)
	return p, within(root, p)
}

// within reports whether p equals root or is a descendant of it.  The
// check is on path components, so "/srv/ftp-other" is not inside
// "/srv/ftp".
func within(root, p string) bool {
	if p == root {
		return true
	}
	prefix := root
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(p, prefix)
}
