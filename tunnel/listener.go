package tunnel

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	ftperrors "goftpd/internal/errors"
	"goftpd/util"
)

// ReverseConfig describes a port published on an SSH gateway.
type ReverseConfig struct {
	SSH               *SSHConfig
	RemoteBindAddress string        // "" lets the gateway decide
	RemotePort        int           // 0 lets the gateway pick
	KeepAlive         time.Duration // 0 disables keep-alives
}

// Listener accepts connections arriving on the gateway's published port.
// It owns the SSH connection: Close tears down both.
type Listener struct {
	client *ssh.Client
	fwd    *forwardListener
	logger *util.Logger
	cancel context.CancelFunc

	mu      sync.Mutex
	lastErr error
	closed  bool // Close was called
	once    sync.Once
}

// Listen dials the gateway, requests the remote forward and starts
// keep-alives.  Accept fails once the SSH connection drops, so the
// caller can re-establish it.
func Listen(ctx context.Context, cfg *ReverseConfig, logger *util.Logger) (*Listener, error) {
	client, err := Dial(ctx, cfg.SSH, logger)
	if err != nil {
		return nil, err
	}
	fwd, err := listenRemote(client, cfg.RemoteBindAddress, cfg.RemotePort)
	if err != nil {
		client.Close()
		return nil, ftperrors.WrapSSH("forward", cfg.SSH.Host, cfg.SSH.Port, err)
	}

	kctx, cancel := context.WithCancel(context.Background())
	l := &Listener{client: client, fwd: fwd, logger: logger, cancel: cancel}

	go keepAlive(kctx, client, cfg.KeepAlive, func(err error) {
		l.fail(fmt.Errorf("keep-alive: %w", err))
	})
	go func() {
		err := client.Wait()
		if err == nil {
			err = ftperrors.ErrNotConnected
		}
		l.fail(fmt.Errorf("gateway connection closed: %w", err))
	}()

	if logger != nil {
		logger.Info("published on %s via %s", fwd.Addr(), cfg.SSH.Addr())
	}
	return l, nil
}

// fail records why the gateway went away and unblocks Accept.
func (l *Listener) fail(err error) {
	l.mu.Lock()
	if l.lastErr == nil && !l.closed {
		l.lastErr = err
	}
	l.mu.Unlock()
	l.shutdown()
}

// Accept returns the next forwarded connection.
func (l *Listener) Accept() (net.Conn, error) {
	conn, err := l.fwd.Accept()
	if err == nil {
		return conn, nil
	}
	l.mu.Lock()
	cause, closed := l.lastErr, l.closed
	l.mu.Unlock()
	if cause != nil && !closed {
		return nil, ftperrors.Wrap("accept", l.fwd.Addr().String(), cause)
	}
	return nil, err
}

// Close stops keep-alives and closes the SSH connection, which also
// drops the remote forward.
func (l *Listener) Close() error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	return l.shutdown()
}

func (l *Listener) shutdown() error {
	var err error
	l.once.Do(func() {
		l.cancel()
		err = l.client.Close()
		l.fwd.Close()
	})
	return err
}

// Addr is the address bound on the gateway.
func (l *Listener) Addr() net.Addr { return l.fwd.Addr() }
