package transport

import (
	"context"
	"net"

	ftperrors "goftpd/internal/errors"
	"goftpd/util"
)

// TCPListener binds a local host:port.
type TCPListener struct {
	Host string
	Port int
}

// Listen binds the socket.
func (t *TCPListener) Listen(ctx context.Context) (net.Listener, error) {
	addr := util.FormatAddr(t.Host, t.Port)
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, ftperrors.Wrap("listen", addr, err)
	}
	return ln, nil
}

// Reconnectable is false: a local socket does not drop by itself.
func (t *TCPListener) Reconnectable() bool { return false }

func (t *TCPListener) String() string { return "tcp " + util.FormatAddr(t.Host, t.Port) }
