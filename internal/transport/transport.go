// Package transport decides where control connections come from: a
// local TCP port or a port published on a remote SSH gateway.  What is
// spoken over the connections is the capability layer's job.
package transport

import (
	"context"
	"net"
)

// Listener produces net.Listeners.  Listen may be called again after the
// previous listener failed, which is how a dropped gateway is restored.
type Listener interface {
	Listen(ctx context.Context) (net.Listener, error)

	// Reconnectable reports whether a failed listener is worth
	// re-establishing rather than treating as fatal.
	Reconnectable() bool

	// String describes the endpoint for logs.
	String() string
}
