package core

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"goftpd/internal/capability"
	ftperrors "goftpd/internal/errors"
	"goftpd/internal/metrics"
	"goftpd/internal/retry"
	"goftpd/internal/transport"
	"goftpd/util"
)

// acceptBackoff paces Accept after a temporary failure such as EMFILE.
var acceptBackoff = retry.Backoff{InitialDelay: 5 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2}

// ListenMode accepts control connections and runs Capability on each
// one in its own goroutine.
type ListenMode struct {
	Listener   transport.Listener
	Capability capability.Capability
	Metrics    *metrics.Collector // optional
	Logger     *util.Logger

	// GracePeriod bounds how long Run waits for sessions after the
	// listener is gone.
	GracePeriod time.Duration

	// Backoff paces re-establishing a reconnectable listener.  Nil
	// means retry.DefaultBackoff.
	Backoff *retry.Backoff

	// Closers are released when Run returns.
	Closers []io.Closer
}

// Run serves until ctx is cancelled or the listener fails for good.
// Cancellation closes the listener and every live connection; Run then
// waits up to GracePeriod for the session goroutines.
func (m *ListenMode) Run(ctx context.Context) error {
	defer m.release()

	ln, err := m.Listener.Listen(ctx)
	if err != nil {
		return err
	}

	conns := newConnSet()
	var wg sync.WaitGroup
	defer m.drain(&wg, conns)

	for {
		m.Logger.Info("serving on %s (%s)", ln.Addr(), m.Listener)
		err := m.acceptLoop(ctx, ln, &wg, conns)
		ln.Close()
		if ctx.Err() != nil {
			return nil
		}
		if !m.Listener.Reconnectable() {
			return err
		}
		m.Logger.Warn("lost %s: %v", m.Listener, err)
		m.Metrics.RecordError(err.Error())

		if ln, err = m.reconnect(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// acceptLoop hands connections to the capability until Accept fails.
// It returns nil when ctx ended.
func (m *ListenMode) acceptLoop(ctx context.Context, ln net.Listener, wg *sync.WaitGroup, conns *connSet) error {
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	failures := 0
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if !temporary(err) {
				return err
			}
			failures++
			delay := acceptBackoff.Delay(failures)
			m.Logger.Warn("accept: %v; retrying in %s", err, delay)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(delay):
			}
			continue
		}
		failures = 0
		m.serveConn(ctx, conn, wg, conns)
	}
}

func (m *ListenMode) serveConn(ctx context.Context, conn net.Conn, wg *sync.WaitGroup, conns *connSet) {
	conns.add(conn)
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer conns.remove(conn)
		m.Logger.Debug("accepted %s", conn.RemoteAddr())
		if err := m.Capability.Handle(ctx, conn); err != nil {
			m.Logger.Warn("%s: %v", conn.RemoteAddr(), err)
		}
	}()
}

// reconnect re-establishes the listener with backoff.  Rejected
// credentials and host keys end the loop at once.
func (m *ListenMode) reconnect(ctx context.Context) (net.Listener, error) {
	b := retry.DefaultBackoff()
	if m.Backoff != nil {
		cp := *m.Backoff
		b = &cp
	}
	b.OnRetry = func(attempt int, err error, wait time.Duration) {
		m.Logger.Warn("reconnect attempt %d failed: %v; next in %s", attempt, err, wait.Truncate(time.Millisecond))
	}

	var ln net.Listener
	err := b.Do(ctx, func(attempt int) error {
		m.Logger.Verbose("re-establishing %s (attempt %d)", m.Listener, attempt)
		l, err := m.Listener.Listen(ctx)
		if err != nil {
			if rejected(err) {
				return retry.Permanent(err)
			}
			return err
		}
		ln = l
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.Metrics.TunnelReconnect()
	return ln, nil
}

// drain closes whatever is still connected and waits for the session
// goroutines, giving up after GracePeriod.
func (m *ListenMode) drain(wg *sync.WaitGroup, conns *connSet) {
	conns.closeAll()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	grace := m.GracePeriod
	if grace <= 0 {
		grace = 5 * time.Second
	}
	select {
	case <-done:
	case <-time.After(grace):
		m.Logger.Warn("%d session(s) still running after %s", conns.len(), grace)
	}

	if m.Metrics != nil {
		m.Logger.Verbose("metrics: %s", m.Metrics.JSON())
	}
}

func (m *ListenMode) release() {
	for _, c := range m.Closers {
		if err := c.Close(); err != nil {
			m.Logger.Debug("release: %v", err)
		}
	}
}

// temporary reports whether a local Accept failure will clear up by
// itself.  A failed gateway listener is not temporary: it has to be
// re-established.
func temporary(err error) bool {
	if errors.Is(err, net.ErrClosed) {
		return false
	}
	var ne *ftperrors.NetworkError
	if errors.As(err, &ne) {
		return false
	}
	return ftperrors.IsRetryable(err)
}

func rejected(err error) bool {
	var se *ftperrors.SSHError
	return errors.As(err, &se) && (se.Op == "auth" || se.Op == "hostkey")
}

// connSet tracks live connections so shutdown can close them.
type connSet struct {
	mu sync.Mutex
	m  map[net.Conn]struct{}
}

func newConnSet() *connSet { return &connSet{m: make(map[net.Conn]struct{})} }

func (s *connSet) add(c net.Conn) {
	s.mu.Lock()
	s.m[c] = struct{}{}
	s.mu.Unlock()
}

func (s *connSet) remove(c net.Conn) {
	s.mu.Lock()
	delete(s.m, c)
	s.mu.Unlock()
}

func (s *connSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}

func (s *connSet) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.m {
		c.Close()
	}
}
