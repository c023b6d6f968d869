// Package fsys defines the directory operations a control session needs
// and a local-disk implementation of them.
package fsys

import "context"

// Adapter performs directory operations on absolute paths.  Failures are
// reported as *errors.FilesystemError so callers can branch on Kind.
type Adapter interface {
	// ListDirectory returns the entry names of the directory at path.
	ListDirectory(ctx context.Context, path string) ([]string, error)

	// DirectoryExists reports whether path names an existing directory.
	DirectoryExists(ctx context.Context, path string) bool

	// CreateDirectory makes a single directory.  It fails with
	// AlreadyExists, PermissionDenied, or NotFound when the parent is
	// missing.
	CreateDirectory(ctx context.Context, path string) error

	// RemoveDirectory removes an empty directory.  It fails with
	// NotFound, NotEmpty, PermissionDenied, or NotDirectory.
	RemoveDirectory(ctx context.Context, path string) error
}
