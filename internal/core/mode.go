// Package core is the orchestration layer.  It composes a transport and
// a capability into a running server and provides a builder that
// assembles one from a Config.
//
// Architecture layers (bottom → top):
//
//	fsys/session  →  capability  →  transport/tunnel  →  core  →  cmd (CLI)
package core

import "context"

// Mode is a complete operational mode of goftpd.  It owns its full
// lifecycle from binding the listener to draining the last session.
type Mode interface {
	Run(ctx context.Context) error
}
