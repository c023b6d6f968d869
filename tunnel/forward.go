package tunnel

import (
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
)

// Wire formats from RFC 4254 §7.
type channelForwardMsg struct {
	Addr string
	Port uint32
}

type forwardedTCPPayload struct {
	Addr       string
	Port       uint32
	OriginAddr string
	OriginPort uint32
}

type channelForwardReply struct {
	Port uint32
}

// forwardListener is a net.Listener fed by forwarded-tcpip channels.
// ssh.Client.Listen matches channels on the exact bind address it sent,
// and public gateways often echo a different one, so every
// forwarded-tcpip channel on the connection is accepted here.
type forwardListener struct {
	client   *ssh.Client
	bindAddr string
	port     uint32
	incoming <-chan ssh.NewChannel
	done     chan struct{}
	once     sync.Once
}

// listenRemote asks the gateway to listen on bindAddr:port.  Port 0 lets
// the gateway choose; the chosen port is reported by Addr.
func listenRemote(client *ssh.Client, bindAddr string, port int) (*forwardListener, error) {
	incoming := client.HandleChannelOpen("forwarded-tcpip")
	if incoming == nil {
		return nil, fmt.Errorf("forwarded-tcpip handler already registered")
	}

	msg := channelForwardMsg{Addr: bindAddr, Port: uint32(port)}
	ok, reply, err := client.SendRequest("tcpip-forward", true, ssh.Marshal(&msg))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("gateway refused to listen on %s", net.JoinHostPort(bindAddr, fmt.Sprint(port)))
	}
	if port == 0 {
		var r channelForwardReply
		if err := ssh.Unmarshal(reply, &r); err == nil {
			msg.Port = r.Port
		}
	}

	return &forwardListener{
		client:   client,
		bindAddr: bindAddr,
		port:     msg.Port,
		incoming: incoming,
		done:     make(chan struct{}),
	}, nil
}

func (l *forwardListener) Accept() (net.Conn, error) {
	select {
	case <-l.done:
		return nil, net.ErrClosed
	case nc, ok := <-l.incoming:
		if !ok {
			// The SSH connection went away.
			return nil, io.EOF
		}
		ch, reqs, err := nc.Accept()
		if err != nil {
			return nil, fmt.Errorf("channel accept: %w", err)
		}
		go ssh.DiscardRequests(reqs)

		raddr := &net.TCPAddr{}
		var p forwardedTCPPayload
		if err := ssh.Unmarshal(nc.ExtraData(), &p); err == nil {
			raddr = &net.TCPAddr{IP: net.ParseIP(p.OriginAddr), Port: int(p.OriginPort)}
		}
		laddr := &net.TCPAddr{IP: net.ParseIP(l.bindAddr), Port: int(l.port)}
		return newChanConn(ch, laddr, raddr), nil
	}
}

// Close cancels the remote forward and unblocks Accept.  It leaves the
// SSH connection open.
func (l *forwardListener) Close() error {
	l.once.Do(func() {
		close(l.done)
		msg := channelForwardMsg{Addr: l.bindAddr, Port: l.port}
		l.client.SendRequest("cancel-tcpip-forward", true, ssh.Marshal(&msg)) //nolint:errcheck
	})
	return nil
}

func (l *forwardListener) Addr() net.Addr {
	return &net.TCPAddr{IP: net.ParseIP(l.bindAddr), Port: int(l.port)}
}

// chanConn adapts an ssh.Channel to net.Conn.  SSH channels have no
// deadlines, so a read deadline is emulated by closing the channel when
// it passes during a Read; that Read then reports os.ErrDeadlineExceeded.
// The timer only runs while a Read is blocked, so a deadline passing
// between reads leaves writes alone, as it would on a TCP conn.
type chanConn struct {
	ssh.Channel
	laddr, raddr net.Addr

	mu       sync.Mutex
	deadline time.Time
	reading  bool
	gen      uint64
	timer    *time.Timer
	expired  bool
}

func newChanConn(ch ssh.Channel, laddr, raddr net.Addr) *chanConn {
	return &chanConn{Channel: ch, laddr: laddr, raddr: raddr}
}

func (c *chanConn) Read(p []byte) (int, error) {
	c.mu.Lock()
	if c.expired || (!c.deadline.IsZero() && !time.Now().Before(c.deadline)) {
		c.mu.Unlock()
		return 0, os.ErrDeadlineExceeded
	}
	c.reading = true
	c.armLocked()
	c.mu.Unlock()

	n, err := c.Channel.Read(p)

	c.mu.Lock()
	c.reading = false
	c.armLocked()
	expired := c.expired
	c.mu.Unlock()
	if err != nil && expired {
		return n, os.ErrDeadlineExceeded
	}
	return n, err
}

func (c *chanConn) LocalAddr() net.Addr  { return c.laddr }
func (c *chanConn) RemoteAddr() net.Addr { return c.raddr }

func (c *chanConn) SetDeadline(t time.Time) error      { return c.SetReadDeadline(t) }
func (c *chanConn) SetWriteDeadline(_ time.Time) error { return nil }

// SetReadDeadline records t (zero clears it) and re-arms the timer of a
// blocked Read.  Once a deadline has fired the channel is gone for good.
func (c *chanConn) SetReadDeadline(t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.expired {
		return os.ErrDeadlineExceeded
	}
	c.deadline = t
	c.armLocked()
	return nil
}

// armLocked stops any pending timer and starts a new one if a Read is
// blocked under a deadline.  c.mu must be held.
func (c *chanConn) armLocked() {
	c.gen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if !c.reading || c.deadline.IsZero() {
		return
	}
	gen := c.gen
	c.timer = time.AfterFunc(time.Until(c.deadline), func() { c.expire(gen) })
}

func (c *chanConn) expire(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || c.expired {
		c.mu.Unlock()
		return
	}
	c.expired = true
	c.mu.Unlock()
	c.Channel.Close() //nolint:errcheck
}

func (c *chanConn) Close() error {
	c.mu.Lock()
	c.gen++
	if c.timer != nil {
		c.timer.Stop()
	}
	c.mu.Unlock()
	return c.Channel.Close()
}
