package session

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"goftpd/util"
)

func TestLogObserver(t *testing.T) {
	var buf bytes.Buffer
	logger := util.NewLogger(2)
	logger.SetOutput(&buf)
	logger.SetTimestamps(false)
	obs := LogObserver{Logger: logger}

	id := "0123456789abcdef"
	obs.Observe(Event{Kind: EventConnect, SessionID: id, Remote: "198.51.100.7:2020"})
	obs.Observe(Event{Kind: EventCommand, SessionID: id, Verb: VerbCWD, Name: "CWD", Code: 550, Err: errors.New("nope")})
	obs.Observe(Event{Kind: EventCommand, SessionID: id, Name: "FEAT", Code: 502})
	obs.Observe(Event{Kind: EventError, SessionID: id, Err: errors.New("reset")})
	obs.Observe(Event{Kind: EventDisconnect, SessionID: id, Duration: 1500 * time.Millisecond})

	want := []string{
		"[INF] session 01234567: connected from 198.51.100.7:2020",
		"[VRB] session 01234567: CWD -> 550 (nope) in 0s",
		"[VRB] session 01234567: FEAT -> 502 in 0s",
		"[WRN] session 01234567: connection error: reset",
		"[INF] session 01234567: closed after 1.5s",
	}
	got := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(got) != len(want) {
		t.Fatalf("got %d lines:\n%s", len(got), buf.String())
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestLogObserver_NilLogger(t *testing.T) {
	LogObserver{}.Observe(Event{Kind: EventConnect}) // must not panic
}

func TestEventKind_String(t *testing.T) {
	kinds := map[EventKind]string{
		EventConnect:    "connect",
		EventCommand:    "command",
		EventError:      "error",
		EventDisconnect: "disconnect",
		EventKind(99):   "unknown",
	}
	for k, want := range kinds {
		if k.String() != want {
			t.Errorf("%d.String() = %q, want %q", k, k.String(), want)
		}
	}
}
