package util

import (
	"errors"
	"io"
	"net"
	"sync/atomic"
	"syscall"
	"time"
)

// IsHarmless returns true for errors that are expected when a peer hangs
// up or the server shuts a connection down.
func IsHarmless(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return true
	}
	// net.OpError wrapping "use of closed network connection"
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return errors.Is(opErr.Err, net.ErrClosed)
	}
	return false
}

// IdleConn wraps a net.Conn and pushes the read deadline forward before
// every Read, so the connection is dropped after Timeout of silence.
// A zero Timeout disables the deadline.
type IdleConn struct {
	net.Conn
	Timeout time.Duration
}

func (c *IdleConn) Read(p []byte) (int, error) {
	if c.Timeout > 0 {
		if err := c.Conn.SetReadDeadline(time.Now().Add(c.Timeout)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Read(p)
}

// CountingConn tallies bytes read from and written to the wrapped conn.
type CountingConn struct {
	net.Conn
	in  atomic.Int64
	out atomic.Int64
}

// NewCountingConn wraps c.
func NewCountingConn(c net.Conn) *CountingConn {
	return &CountingConn{Conn: c}
}

func (c *CountingConn) Read(p []byte) (int, error) {
	n, err := c.Conn.Read(p)
	c.in.Add(int64(n))
	return n, err
}

func (c *CountingConn) Write(p []byte) (int, error) {
	n, err := c.Conn.Write(p)
	c.out.Add(int64(n))
	return n, err
}

// BytesIn returns the number of bytes read so far.
func (c *CountingConn) BytesIn() int64 { return c.in.Load() }

// BytesOut returns the number of bytes written so far.
func (c *CountingConn) BytesOut() int64 { return c.out.Load() }
