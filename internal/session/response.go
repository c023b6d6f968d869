package session

import (
	"fmt"
	"io"
	"strings"

	"goftpd/util"
)

// Reply codes used by the control channel.
const (
	CodeOpeningData         = 150
	CodeSystemStatus        = 211
	CodeHelp                = 214
	CodeServiceReady        = 220
	CodeClosing             = 221
	CodeTransferDone        = 226
	CodeLoggedIn            = 230
	CodeFileActionOK        = 250
	CodePathCreated         = 257
	CodeNeedPassword        = 331
	CodeServiceNotAvailable = 421
	CodeActionNotTaken      = 450
	CodeSyntaxError         = 500
	CodeNotImplemented      = 502
	CodeFileUnavailable     = 550
)

// Response is a complete reply.  Every entry in Lines is written
// followed by CRLF; the last line carries Code.
type Response struct {
	Code  int
	Lines []string
}

// Reply builds a single-line response.
func Reply(code int, text string) Response {
	return Response{Code: code, Lines: []string{fmt.Sprintf("%d %s", code, text)}}
}

// Replyf is Reply with a format string.
func Replyf(code int, format string, args ...interface{}) Response {
	return Reply(code, fmt.Sprintf(format, args...))
}

// listing builds the LIST reply: a 150 mark, one line per entry, then 226.
func listing(entries []string) Response {
	lines := make([]string, 0, len(entries)+2)
	lines = append(lines, fmt.Sprintf("%d Here comes the directory listing", CodeOpeningData))
	for _, e := range entries {
		lines = append(lines, sanitizeLine(e))
	}
	lines = append(lines, fmt.Sprintf("%d Directory send okay", CodeTransferDone))
	return Response{Code: CodeTransferDone, Lines: lines}
}

// sanitizeLine drops CR and LF so a file name cannot forge reply lines.
func sanitizeLine(s string) string {
	if !strings.ContainsAny(s, "\r\n") {
		return s
	}
	return strings.NewReplacer("\r", "", "\n", "").Replace(s)
}

// String returns the wire form of the response.
func (r Response) String() string {
	var b strings.Builder
	for _, l := range r.Lines {
		b.WriteString(l)
		b.WriteString("\r\n")
	}
	return b.String()
}

// WriteTo writes the whole response in a single Write call.
func (r Response) WriteTo(w io.Writer) (int64, error) {
	buf := util.GetBuf()
	defer util.PutBuf(buf)
	for _, l := range r.Lines {
		buf.WriteString(l)
		buf.WriteString("\r\n")
	}
	n, err := w.Write(buf.Bytes())
	return int64(n), err
}
