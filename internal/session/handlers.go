package session

import (
	"context"
	"strings"
	"unicode"

	ftperrors "goftpd/internal/errors"
)

// handlerFunc produces the reply for one command.  The error is the
// underlying cause of a failure reply and is only reported to the
// Observer; it never reaches the client.
type handlerFunc func(ctx context.Context, s *Session, arg string) (Response, error)

var handlers = [numVerbs]handlerFunc{
	VerbUSER: handleUSER,
	VerbPASS: handlePASS,
	VerbPWD:  handlePWD,
	VerbLIST: handleLIST,
	VerbCWD:  handleCWD,
	VerbMKD:  handleMKD,
	VerbRMD:  handleRMD,
	VerbQUIT: handleQUIT,
	VerbSTAT: handleSTAT,
	VerbHELP: handleHELP,
}

var helpText = func() string {
	names := make([]string, 0, numVerbs)
	for _, v := range SupportedVerbs() {
		names = append(names, v.String())
	}
	return "Supported commands: " + strings.Join(names, ", ")
}()

func handleUSER(_ context.Context, s *Session, arg string) (Response, error) {
	s.user = arg
	return Reply(CodeNeedPassword, "User name okay, need password"), nil
}

// handlePASS accepts any password.
func handlePASS(_ context.Context, s *Session, _ string) (Response, error) {
	s.authenticated = true
	return Reply(CodeLoggedIn, "User logged in, proceed"), nil
}

func handlePWD(_ context.Context, s *Session, _ string) (Response, error) {
	return Replyf(CodePathCreated, "%s is the current directory", quotePath(s.currentDir)), nil
}

func handleLIST(ctx context.Context, s *Session, arg string) (Response, error) {
	fail := Reply(CodeActionNotTaken, "Requested file action not taken")

	dir := s.currentDir
	if p := stripListFlags(arg); p != "" {
		resolved, ok := resolvePath(s.rootDir, s.currentDir, p)
		if !ok {
			return fail, escapeError("list", resolved)
		}
		dir = resolved
	}
	entries, err := s.fs.ListDirectory(ctx, dir)
	if err != nil {
		return fail, err
	}
	return listing(entries), nil
}

func handleCWD(ctx context.Context, s *Session, arg string) (Response, error) {
	fail := Reply(CodeFileUnavailable, "Failed to change directory")

	target, err := s.target(VerbCWD, "cwd", arg)
	if err != nil {
		return fail, err
	}
	if !s.fs.DirectoryExists(ctx, target) {
		return fail, &ftperrors.FilesystemError{
			Op: "cwd", Path: target, Kind: ftperrors.KindNotFound, Err: ftperrors.ErrNotDirectory,
		}
	}
	s.currentDir = target
	return Replyf(CodeFileActionOK, "Directory successfully changed to %s", target), nil
}

func handleMKD(ctx context.Context, s *Session, arg string) (Response, error) {
	fail := Reply(CodeFileUnavailable, "Failed to create directory")

	target, err := s.target(VerbMKD, "mkdir", arg)
	if err != nil {
		return fail, err
	}
	if err := s.fs.CreateDirectory(ctx, target); err != nil {
		return fail, err
	}
	return Replyf(CodePathCreated, "%s directory created", quotePath(target)), nil
}

func handleRMD(ctx context.Context, s *Session, arg string) (Response, error) {
	fail := Reply(CodeFileUnavailable, "Failed to remove directory")

	target, err := s.target(VerbRMD, "rmdir", arg)
	if err != nil {
		return fail, err
	}
	// The root, and any ancestor of the working directory, stays.
	if target == s.rootDir || within(target, s.currentDir) {
		return fail, &ftperrors.FilesystemError{
			Op: "rmdir", Path: target, Kind: ftperrors.KindPermissionDenied, Err: ftperrors.ErrEscapesRoot,
		}
	}
	if err := s.fs.RemoveDirectory(ctx, target); err != nil {
		return fail, err
	}
	return Replyf(CodeFileActionOK, "Directory %s removed", quotePath(target)), nil
}

// handleQUIT only replies; OnLine closes the session once 221 is out.
func handleQUIT(context.Context, *Session, string) (Response, error) {
	return Reply(CodeClosing, "Goodbye"), nil
}

func handleSTAT(context.Context, *Session, string) (Response, error) {
	return Reply(CodeSystemStatus, "FTP server status OK"), nil
}

func handleHELP(context.Context, *Session, string) (Response, error) {
	return Reply(CodeHelp, helpText), nil
}

// target resolves a required path argument for CWD, MKD and RMD.
func (s *Session) target(v Verb, op, arg string) (string, error) {
	if arg == "" {
		return "", &ftperrors.ProtocolError{Verb: v.String(), Code: CodeFileUnavailable, Msg: "missing path argument"}
	}
	p, ok := resolvePath(s.rootDir, s.currentDir, arg)
	if !ok {
		return "", escapeError(op, p)
	}
	return p, nil
}

func escapeError(op, path string) error {
	return &ftperrors.FilesystemError{
		Op: op, Path: path, Kind: ftperrors.KindEscapesRoot, Err: ftperrors.ErrEscapesRoot,
	}
}

// stripListFlags drops leading "-x" style options that clients such as
// ls-emulating browsers append to LIST.
func stripListFlags(arg string) string {
	for strings.HasPrefix(arg, "-") {
		i := strings.IndexFunc(arg, unicode.IsSpace)
		if i < 0 {
			return ""
		}
		arg = strings.TrimLeftFunc(arg[i:], unicode.IsSpace)
	}
	return arg
}

// quotePath wraps p in double quotes, doubling any embedded quote.
func quotePath(p string) string {
	return `"` + strings.ReplaceAll(p, `"`, `""`) + `"`
}
