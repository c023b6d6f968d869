// Package errors provides domain-specific error types for goftpd.
//
// The types follow the three failure classes of a control connection:
// protocol errors (bad verb, missing argument), filesystem errors (caught
// at the command boundary and turned into a reply), and network errors
// (the session is torn down without a reply).
package errors

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"syscall"
)

// ── Sentinel errors ──────────────────────────────────────────────────

var (
	ErrSessionClosed = errors.New("session is closed")
	ErrEscapesRoot   = errors.New("path escapes root directory")
	ErrNotDirectory  = errors.New("not a directory")
	ErrLineTooLong   = errors.New("command line too long")
	ErrNotConnected  = errors.New("not connected")
	ErrTimeout       = errors.New("operation timed out")
	ErrAuthFailed    = errors.New("authentication failed")
)

// ── Protocol errors ──────────────────────────────────────────────────

// ProtocolError is a client mistake that is answered with a 5xx reply
// while the connection stays open.
type ProtocolError struct {
	Verb string // verb as sent by the client
	Code int    // reply code sent back
	Msg  string
}

func (e *ProtocolError) Error() string {
	if e.Verb == "" {
		return fmt.Sprintf("protocol: %d %s", e.Code, e.Msg)
	}
	return fmt.Sprintf("protocol %s: %d %s", e.Verb, e.Code, e.Msg)
}

// ── Filesystem errors ────────────────────────────────────────────────

// Kind classifies a filesystem failure.
type Kind int

const (
	KindOther Kind = iota
	KindNotFound
	KindAlreadyExists
	KindPermissionDenied
	KindNotEmpty
	KindNotDirectory
	KindEscapesRoot
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindAlreadyExists:
		return "already exists"
	case KindPermissionDenied:
		return "permission denied"
	case KindNotEmpty:
		return "not empty"
	case KindNotDirectory:
		return "not a directory"
	case KindEscapesRoot:
		return "escapes root"
	default:
		return "other"
	}
}

// FilesystemError is returned by filesystem adapters.
type FilesystemError struct {
	Op   string // "list", "stat", "mkdir", "rmdir", "resolve"
	Path string
	Kind Kind
	Err  error
}

func (e *FilesystemError) Error() string {
	return fmt.Sprintf("%s %s: %s: %v", e.Op, e.Path, e.Kind, e.Err)
}

func (e *FilesystemError) Unwrap() error { return e.Err }

// ClassifyFS wraps err in a FilesystemError, deriving the Kind from the
// underlying os/syscall error.  A nil err yields nil.
func ClassifyFS(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var fe *FilesystemError
	if errors.As(err, &fe) {
		return err
	}
	return &FilesystemError{Op: op, Path: path, Kind: kindOf(err), Err: err}
}

// KindOf returns the Kind carried by err, or KindOther.
func KindOf(err error) Kind {
	var fe *FilesystemError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return kindOf(err)
}

func kindOf(err error) Kind {
	switch {
	case errors.Is(err, ErrEscapesRoot):
		return KindEscapesRoot
	case errors.Is(err, ErrNotDirectory), errors.Is(err, syscall.ENOTDIR):
		return KindNotDirectory
	case errors.Is(err, syscall.ENOTEMPTY), errors.Is(err, syscall.EEXIST) && isRmdir(err):
		return KindNotEmpty
	case errors.Is(err, fs.ErrNotExist):
		return KindNotFound
	case errors.Is(err, fs.ErrExist):
		return KindAlreadyExists
	case errors.Is(err, fs.ErrPermission):
		return KindPermissionDenied
	default:
		return KindOther
	}
}

// isRmdir reports whether err came from a remove call.  Some platforms
// report a non-empty directory as EEXIST from rmdir(2).
func isRmdir(err error) bool {
	var pe *fs.PathError
	return errors.As(err, &pe) && (pe.Op == "remove" || pe.Op == "rmdir" || pe.Op == "removeat")
}

// ── Network errors ───────────────────────────────────────────────────

// NetworkError represents a failure in a network operation.
type NetworkError struct {
	Op        string // operation: "listen", "accept", "read", "write"
	Addr      string // network address involved
	Err       error  // underlying error
	Retryable bool   // whether the caller should retry
}

func (e *NetworkError) Error() string {
	s := fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
	if e.Retryable {
		s += " (retryable)"
	}
	return s
}

func (e *NetworkError) Unwrap() error { return e.Err }

// SSHError represents an SSH-specific failure with gateway context.
type SSHError struct {
	Op   string // "handshake", "auth", "hostkey", "forward"
	Host string
	Port int
	Err  error
}

func (e *SSHError) Error() string {
	return fmt.Sprintf("ssh %s %s:%d: %v", e.Op, e.Host, e.Port, e.Err)
}

func (e *SSHError) Unwrap() error { return e.Err }

// ConfigError represents an invalid configuration value.
type ConfigError struct {
	Field   string      // config field name
	Value   interface{} // the invalid value (nil if missing)
	Message string      // human-readable explanation
	Hint    string      // suggestion for the user (optional)
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("config: --%s", e.Field)
	if e.Value != nil {
		msg += fmt.Sprintf("=%v", e.Value)
	}
	msg += ": " + e.Message
	if e.Hint != "" {
		msg += "\n  hint: " + e.Hint
	}
	return msg
}

// ── Constructors ─────────────────────────────────────────────────────

// Wrap creates a NetworkError, automatically detecting retryability
// from the underlying error.
func Wrap(op, addr string, err error) *NetworkError {
	return &NetworkError{
		Op:        op,
		Addr:      addr,
		Err:       err,
		Retryable: classifyRetryable(err),
	}
}

// WrapSSH creates an SSHError.
func WrapSSH(op, host string, port int, err error) *SSHError {
	return &SSHError{Op: op, Host: host, Port: port, Err: err}
}

// ── Classification helpers ───────────────────────────────────────────

// IsRetryable reports whether err is worth retrying.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var ne *NetworkError
	if errors.As(err, &ne) {
		return ne.Retryable
	}
	return classifyRetryable(err)
}

// IsTimeout reports whether err is a deadline or timeout error.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTimeout) {
		return true
	}
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}

// classifyRetryable inspects standard library error types.
func classifyRetryable(err error) bool {
	if err == nil {
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Temporary() //nolint:staticcheck // Temporary is deprecated but still useful
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.Temporary() //nolint:staticcheck
	}
	return false
}

// ── Re-exports for convenience ───────────────────────────────────────

// As is [errors.As].
func As(err error, target interface{}) bool { return errors.As(err, target) }

// Is is [errors.Is].
func Is(err, target error) bool { return errors.Is(err, target) }

// New is [errors.New].
func New(text string) error { return errors.New(text) }

// Unwrap is [errors.Unwrap].
func Unwrap(err error) error { return errors.Unwrap(err) }

// Join is [errors.Join].
func Join(errs ...error) error { return errors.Join(errs...) }
