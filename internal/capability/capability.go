// Package capability defines what happens over an accepted connection.
// The listener hands every connection to a Capability and does not know
// which protocol is spoken on it.
package capability

import (
	"context"
	"net"
)

// Capability handles a single accepted connection.
type Capability interface {
	// Handle serves conn until the peer leaves or ctx is cancelled.
	// It owns conn and closes it before returning.
	Handle(ctx context.Context, conn net.Conn) error
}

// Func adapts a function to Capability.
type Func func(ctx context.Context, conn net.Conn) error

func (f Func) Handle(ctx context.Context, conn net.Conn) error { return f(ctx, conn) }
