package fsys

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	ftperrors "goftpd/internal/errors"
)

// OS is an Adapter backed by the local disk.  Every operation goes
// through an os.Root opened on the server root, so neither ".." nor a
// symlink can reach a file outside it.
type OS struct {
	dir  string
	root *os.Root
}

// NewOS opens dir as the jail for all subsequent operations.  dir must
// be an existing directory; it is made absolute and cleaned.
func NewOS(dir string) (*OS, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving root %q: %w", dir, err)
	}
	root, err := os.OpenRoot(abs)
	if err != nil {
		return nil, ftperrors.ClassifyFS("open", abs, err)
	}
	return &OS{dir: abs, root: root}, nil
}

// Dir returns the absolute root directory.
func (o *OS) Dir() string { return o.dir }

// Close releases the root handle.
func (o *OS) Close() error { return o.root.Close() }

// rel converts an absolute path under the root into the root-relative
// form os.Root expects.
func (o *OS) rel(op, path string) (string, error) {
	r, err := filepath.Rel(o.dir, filepath.Clean(path))
	if err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", &ftperrors.FilesystemError{
			Op: op, Path: path, Kind: ftperrors.KindEscapesRoot, Err: ftperrors.ErrEscapesRoot,
		}
	}
	return r, nil
}

// ListDirectory returns entry names sorted lexically.
func (o *OS) ListDirectory(ctx context.Context, path string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r, err := o.rel("list", path)
	if err != nil {
		return nil, err
	}
	f, err := o.root.Open(r)
	if err != nil {
		return nil, ftperrors.ClassifyFS("list", path, err)
	}
	defer f.Close()

	entries, err := f.ReadDir(-1)
	if err != nil {
		return nil, ftperrors.ClassifyFS("list", path, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// DirectoryExists reports false for anything that cannot be stat'ed,
// including paths outside the root.
func (o *OS) DirectoryExists(ctx context.Context, path string) bool {
	if ctx.Err() != nil {
		return false
	}
	r, err := o.rel("stat", path)
	if err != nil {
		return false
	}
	fi, err := o.root.Stat(r)
	return err == nil && fi.IsDir()
}

// CreateDirectory creates one directory with mode 0755.
func (o *OS) CreateDirectory(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r, err := o.rel("mkdir", path)
	if err != nil {
		return err
	}
	return ftperrors.ClassifyFS("mkdir", path, o.root.Mkdir(r, 0o755))
}

// RemoveDirectory removes an empty directory.  Regular files are refused
// with NotDirectory so RMD never deletes file content.
func (o *OS) RemoveDirectory(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r, err := o.rel("rmdir", path)
	if err != nil {
		return err
	}
	if r == "." {
		return &ftperrors.FilesystemError{
			Op: "rmdir", Path: path, Kind: ftperrors.KindPermissionDenied, Err: fs.ErrPermission,
		}
	}
	fi, err := o.root.Lstat(r)
	if err != nil {
		return ftperrors.ClassifyFS("rmdir", path, err)
	}
	if !fi.IsDir() {
		return &ftperrors.FilesystemError{
			Op: "rmdir", Path: path, Kind: ftperrors.KindNotDirectory, Err: ftperrors.ErrNotDirectory,
		}
	}
	return ftperrors.ClassifyFS("rmdir", path, o.root.Remove(r))
}

var _ Adapter = (*OS)(nil)
