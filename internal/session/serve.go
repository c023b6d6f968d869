package session

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"math"
	"net"

	"golang.org/x/time/rate"

	ftperrors "goftpd/internal/errors"
	"goftpd/util"
)

// MaxLineLength bounds a single command line, excluding its terminator.
const MaxLineLength = 4096

// Serve greets the client and handles lines until QUIT, EOF, a transport
// error or ctx cancellation.  It always ends with OnDisconnect.  A clean
// end of session returns nil.
func (s *Session) Serve(ctx context.Context) error {
	defer s.OnDisconnect()

	// Cancelling ctx closes the connection, unblocking the read below.
	// The disconnect event itself is left to the deferred OnDisconnect.
	stop := context.AfterFunc(ctx, s.abort)
	defer stop()

	if err := s.OnConnect(); err != nil {
		return s.transportError(err)
	}

	var src io.Reader = s.conn
	if nc, ok := s.conn.(net.Conn); ok && s.opts.IdleTimeout > 0 {
		src = &util.IdleConn{Conn: nc, Timeout: s.opts.IdleTimeout}
	}
	br := bufio.NewReaderSize(newTelnetFilter(src), MaxLineLength+2)
	limiter := newLimiter(s.opts.CommandRate)

	for !s.closed.Load() {
		line, rerr := readLine(br)
		if errors.Is(rerr, ftperrors.ErrLineTooLong) {
			s.write(Reply(CodeSyntaxError, "Command line too long")) //nolint:errcheck
			s.obs.Observe(Event{
				Kind: EventError, SessionID: s.id, Remote: s.remote,
				Code: CodeSyntaxError, Err: rerr,
			})
			return nil
		}
		if line != nil {
			if limiter != nil {
				if err := limiter.Wait(ctx); err != nil {
					return nil
				}
			}
			if err := s.OnLine(ctx, string(line)); err != nil {
				return s.transportError(err)
			}
		}
		if rerr != nil {
			if s.closed.Load() {
				return nil
			}
			if ftperrors.IsTimeout(rerr) {
				s.write(Reply(CodeServiceNotAvailable, "Idle timeout, closing control connection")) //nolint:errcheck
			}
			return s.transportError(rerr)
		}
	}
	return nil
}

// transportError reports err to the observer and returns it, unless the
// failure is an ordinary hang-up or the session was already closed.
func (s *Session) transportError(err error) error {
	if s.closed.Load() || errors.Is(err, ftperrors.ErrSessionClosed) || util.IsHarmless(err) {
		return nil
	}
	if ftperrors.IsTimeout(err) {
		err = ftperrors.Wrap("read", s.remote, ftperrors.ErrTimeout)
	}
	s.obs.Observe(Event{Kind: EventError, SessionID: s.id, Remote: s.remote, Err: err})
	return err
}

// readLine returns the next line without its "\n" or "\r\n".  A final
// unterminated line is returned together with the read error.
func readLine(br *bufio.Reader) ([]byte, error) {
	raw, err := br.ReadSlice('\n')
	if errors.Is(err, bufio.ErrBufferFull) {
		return nil, ftperrors.ErrLineTooLong
	}
	line := bytes.TrimSuffix(bytes.TrimSuffix(raw, []byte("\n")), []byte("\r"))
	if len(line) > MaxLineLength {
		return nil, ftperrors.ErrLineTooLong
	}
	if err != nil && len(raw) == 0 {
		return nil, err
	}
	// ReadSlice's buffer is reused on the next call.
	return bytes.Clone(line), err
}

// newLimiter returns nil when perSecond is zero or negative.
func newLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return nil
	}
	burst := int(math.Ceil(perSecond))
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}
