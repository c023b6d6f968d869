// Package session implements the per-connection FTP control channel:
// greeting, line parsing, command dispatch and reply framing.
//
// A Session owns one client's state (root, working directory, login
// flag).  Directory work is delegated to an fsys.Adapter and every
// command is reported to an Observer.
package session

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	ftperrors "goftpd/internal/errors"
	"goftpd/internal/fsys"
)

// DefaultWelcome is sent on connect when Options.Welcome is empty.
const DefaultWelcome = "220 Welcome to the FTP server"

// Options configures a Session.
type Options struct {
	RootDir  string       // absolute root; required
	Welcome  string       // banner line, sent as is
	FS       fsys.Adapter // required
	Observer Observer     // optional
	Remote   string       // peer address for events

	// IdleTimeout drops the connection after this long without input.
	// Zero disables it.
	IdleTimeout time.Duration

	// CommandRate limits dispatch to this many commands per second.
	// Zero means unlimited.
	CommandRate float64
}

// Session is one client's control-channel state.  OnLine is not safe for
// concurrent use.  OnDisconnect may be called from any goroutine; it
// aborts a write that is in flight.
type Session struct {
	id      string
	conn    io.ReadWriteCloser
	fs      fsys.Adapter
	obs     Observer
	remote  string
	welcome string
	opts    Options
	started time.Time

	rootDir       string
	currentDir    string
	authenticated bool
	user          string

	closed    atomic.Bool
	closeOnce sync.Once
}

// New binds a session to conn.  The root directory is cleaned and made
// absolute; it becomes the initial working directory.
func New(conn io.ReadWriteCloser, opts Options) (*Session, error) {
	if conn == nil {
		return nil, fmt.Errorf("session: nil connection")
	}
	if opts.FS == nil {
		return nil, fmt.Errorf("session: nil filesystem adapter")
	}
	if opts.RootDir == "" {
		return nil, fmt.Errorf("session: empty root directory")
	}
	root, err := filepath.Abs(opts.RootDir)
	if err != nil {
		return nil, fmt.Errorf("session: root %q: %w", opts.RootDir, err)
	}
	root = filepath.Clean(root)

	obs := opts.Observer
	if obs == nil {
		obs = Observers(nil)
	}
	return &Session{
		id:         uuid.NewString(),
		conn:       conn,
		fs:         opts.FS,
		obs:        obs,
		remote:     opts.Remote,
		welcome:    welcomeLine(opts.Welcome),
		opts:       opts,
		started:    time.Now(),
		rootDir:    root,
		currentDir: root,
	}, nil
}

// welcomeLine returns the banner sent verbatim by OnConnect.
func welcomeLine(msg string) string {
	if msg == "" {
		return DefaultWelcome
	}
	return msg
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// RootDir returns the absolute session root.
func (s *Session) RootDir() string { return s.rootDir }

// CurrentDir returns the absolute working directory.
func (s *Session) CurrentDir() string { return s.currentDir }

// Authenticated reports whether PASS has been received.
func (s *Session) Authenticated() bool { return s.authenticated }

// User returns the name given with the last USER command.
func (s *Session) User() string { return s.user }

// Closed reports whether OnDisconnect has run.
func (s *Session) Closed() bool { return s.closed.Load() }

// OnConnect sends the welcome banner.
func (s *Session) OnConnect() error {
	s.obs.Observe(Event{Kind: EventConnect, SessionID: s.id, Remote: s.remote})
	return s.write(Response{Code: CodeServiceReady, Lines: []string{s.welcome}})
}

// OnLine handles one raw control line and writes exactly one response.
// Filesystem and protocol failures become replies; only a failed write
// is returned.  After OnDisconnect it writes nothing and returns
// ErrSessionClosed.
func (s *Session) OnLine(ctx context.Context, raw string) error {
	if s.closed.Load() {
		return ftperrors.ErrSessionClosed
	}
	start := time.Now()
	cmd := ParseCommand(raw)
	resp, cause := s.dispatch(ctx, cmd)

	err := s.write(resp)
	s.obs.Observe(Event{
		Kind:      EventCommand,
		SessionID: s.id,
		Remote:    s.remote,
		Verb:      cmd.Verb,
		Name:      cmd.Name,
		Code:      resp.Code,
		Duration:  time.Since(start),
		Err:       cause,
	})
	if err != nil {
		return err
	}
	if cmd.Verb == VerbQUIT {
		s.OnDisconnect()
	}
	return nil
}

// dispatch runs the handler for cmd, converting a panic into a 550.
func (s *Session) dispatch(ctx context.Context, cmd Command) (resp Response, cause error) {
	defer func() {
		if r := recover(); r != nil {
			resp = Reply(CodeFileUnavailable, "Internal server error")
			cause = fmt.Errorf("panic in %s: %v", cmd.Name, r)
		}
	}()
	h := handlers[cmd.Verb]
	if h == nil {
		return Reply(CodeNotImplemented, "Command not implemented"),
			&ftperrors.ProtocolError{Verb: cmd.Name, Code: CodeNotImplemented, Msg: "Command not implemented"}
	}
	return h(ctx, s, cmd.Arg)
}

// OnDisconnect closes the connection and releases the session.  It is
// idempotent and never writes.
func (s *Session) OnDisconnect() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.conn.Close() //nolint:errcheck
		s.obs.Observe(Event{
			Kind:      EventDisconnect,
			SessionID: s.id,
			Remote:    s.remote,
			Duration:  time.Since(s.started),
		})
	})
}

// abort marks the session closed and closes the connection without
// reporting the disconnect.
func (s *Session) abort() {
	s.closed.Store(true)
	s.conn.Close() //nolint:errcheck
}

func (s *Session) write(r Response) error {
	if s.closed.Load() {
		return ftperrors.ErrSessionClosed
	}
	if _, err := r.WriteTo(s.conn); err != nil {
		return ftperrors.Wrap("write", s.remote, err)
	}
	return nil
}
