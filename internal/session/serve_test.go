package session

import (
	"bufio"
	"context"
	"io"
	"net"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"goftpd/internal/fsys"
)

// startServe runs Serve on one end of a pipe and returns the client end.
func startServe(t *testing.T, opts Options) (net.Conn, *bufio.Reader, <-chan error) {
	t.Helper()
	adapter, err := fsys.NewOS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { adapter.Close() })
	opts.RootDir = adapter.Dir()
	opts.FS = adapter

	server, client := net.Pipe()
	t.Cleanup(func() { client.Close() })
	s, err := New(server, opts)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()

	client.SetDeadline(time.Now().Add(5 * time.Second)) //nolint:errcheck
	return client, bufio.NewReader(client), done
}

func readReply(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	line, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("reading reply: %v", err)
	}
	return line
}

func waitDone(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
		return nil
	}
}

func TestServe_Conversation(t *testing.T) {
	client, r, done := startServe(t, Options{Welcome: "220 ready"})

	if got := readReply(t, r); got != "220 ready\r\n" {
		t.Fatalf("banner = %q", got)
	}

	steps := []struct {
		send string
		want string
	}{
		{"USER bob\r\n", "331 User name okay, need password\r\n"},
		{"PASS x\n", "230 User logged in, proceed\r\n"},
		{"MKD sub\r\n", ""},
		{"CWD sub\r\n", ""},
		{"BOGUS\r\n", "502 Command not implemented\r\n"},
	}
	for _, st := range steps {
		if _, err := io.WriteString(client, st.send); err != nil {
			t.Fatal(err)
		}
		got := readReply(t, r)
		if st.want != "" && got != st.want {
			t.Errorf("%q -> %q, want %q", st.send, got, st.want)
		}
		if st.want == "" && !strings.HasPrefix(got, "2") {
			t.Errorf("%q -> %q, want success", st.send, got)
		}
	}

	io.WriteString(client, "QUIT\r\n") //nolint:errcheck
	if got := readReply(t, r); got != "221 Goodbye\r\n" {
		t.Errorf("QUIT = %q", got)
	}
	if _, err := r.ReadByte(); err == nil {
		t.Error("connection should be closed after QUIT")
	}
	if err := waitDone(t, done); err != nil {
		t.Errorf("Serve = %v, want nil", err)
	}
}

func TestServe_TelnetNegotiationStripped(t *testing.T) {
	client, r, _ := startServe(t, Options{})
	readReply(t, r)

	// IAC DO ECHO, then "ST", IAC NOP, "AT".
	msg := []byte{iac, do, 1, 'S', 'T', iac, 0xF1, 'A', 'T', '\r', '\n'}
	if _, err := client.Write(msg); err != nil {
		t.Fatal(err)
	}
	if got := readReply(t, r); got != "211 FTP server status OK\r\n" {
		t.Errorf("reply = %q", got)
	}
}

func TestServe_LineTooLong(t *testing.T) {
	client, r, done := startServe(t, Options{})
	readReply(t, r)

	go func() {
		io.WriteString(client, "USER "+strings.Repeat("a", MaxLineLength+10)+"\r\n") //nolint:errcheck
	}()
	if got := readReply(t, r); got != "500 Command line too long\r\n" {
		t.Errorf("reply = %q", got)
	}
	if err := waitDone(t, done); err != nil {
		t.Errorf("Serve = %v", err)
	}
}

func TestServe_MaxLengthLineAccepted(t *testing.T) {
	client, r, _ := startServe(t, Options{})
	readReply(t, r)

	line := "USER " + strings.Repeat("a", MaxLineLength-5)
	go io.WriteString(client, line+"\r\n") //nolint:errcheck
	if got := readReply(t, r); got != "331 User name okay, need password\r\n" {
		t.Errorf("reply = %q", got)
	}
}

func TestServe_ClientEOF(t *testing.T) {
	client, r, done := startServe(t, Options{})
	readReply(t, r)

	client.Close()
	if err := waitDone(t, done); err != nil {
		t.Errorf("Serve after client hang-up = %v, want nil", err)
	}
}

func TestServe_ContextCancel(t *testing.T) {
	adapter, err := fsys.NewOS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer adapter.Close()

	server, client := net.Pipe()
	defer client.Close()
	rec := &recorder{}
	s, err := New(server, Options{RootDir: adapter.Dir(), FS: adapter, Observer: rec})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()
	readReply(t, bufio.NewReader(client))

	cancel()
	if err := waitDone(t, done); err != nil {
		t.Errorf("Serve after cancel = %v", err)
	}
	if !s.Closed() {
		t.Error("session should be closed after cancel")
	}
	kinds := rec.kinds()
	if kinds[len(kinds)-1] != EventDisconnect {
		t.Errorf("last event = %v, want disconnect", kinds[len(kinds)-1])
	}
}

func TestServe_IdleTimeout(t *testing.T) {
	_, r, done := startServe(t, Options{IdleTimeout: 100 * time.Millisecond})
	readReply(t, r)

	if got := readReply(t, r); !strings.HasPrefix(got, "421 ") {
		t.Errorf("idle reply = %q, want 421", got)
	}
	if err := waitDone(t, done); err == nil {
		t.Error("idle timeout should be reported as an error")
	}
}

func TestServe_CommandRate(t *testing.T) {
	client, r, _ := startServe(t, Options{CommandRate: 5})
	readReply(t, r)

	go func() {
		for i := 0; i < 8; i++ {
			io.WriteString(client, "STAT\r\n") //nolint:errcheck
		}
	}()
	start := time.Now()
	for i := 0; i < 8; i++ {
		readReply(t, r)
	}
	// Burst of 5, then 3 more at 5/s.
	if elapsed := time.Since(start); elapsed < 400*time.Millisecond {
		t.Errorf("8 commands at 5/s took %s, expected throttling", elapsed)
	}
}

func TestServe_UnterminatedFinalLine(t *testing.T) {
	client, r, done := startServe(t, Options{})
	readReply(t, r)

	go func() {
		io.WriteString(client, "STAT") //nolint:errcheck
		client.Close()
	}()
	// The pipe is closed right after the write, so the reply cannot be
	// delivered; Serve must still return cleanly.
	if err := waitDone(t, done); err != nil {
		t.Errorf("Serve = %v", err)
	}
}

func TestServe_CancelWaitsForCommandEvent(t *testing.T) {
	adapter, err := fsys.NewOS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer adapter.Close()

	entered := make(chan struct{})
	release := make(chan struct{})
	var inCommand, overlapped atomic.Bool
	obs := ObserverFunc(func(e Event) {
		switch e.Kind {
		case EventCommand:
			inCommand.Store(true)
			close(entered)
			<-release
			inCommand.Store(false)
		case EventDisconnect:
			overlapped.Store(inCommand.Load())
		}
	})

	server, client := net.Pipe()
	defer client.Close()
	s, err := New(server, Options{RootDir: adapter.Dir(), FS: adapter, Observer: obs})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()

	client.SetDeadline(time.Now().Add(5 * time.Second)) //nolint:errcheck
	r := bufio.NewReader(client)
	readReply(t, r)
	client.Write([]byte("NOOP\r\n")) //nolint:errcheck
	readReply(t, r)
	<-entered

	cancel()
	time.Sleep(50 * time.Millisecond)
	close(release)

	if err := waitDone(t, done); err != nil {
		t.Errorf("Serve after cancel = %v", err)
	}
	if overlapped.Load() {
		t.Error("disconnect was reported while the command event was still being observed")
	}
}
