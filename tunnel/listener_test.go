package tunnel

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	ftperrors "goftpd/internal/errors"
	"goftpd/util"
)

func quietLogger() *util.Logger {
	l := util.NewLogger(0)
	l.SetOutput(io.Discard)
	return l
}

func listenTest(t *testing.T, g *testGateway, keepAlive time.Duration) *Listener {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	l, err := Listen(ctx, &ReverseConfig{SSH: g.sshConfig(), KeepAlive: keepAlive}, quietLogger())
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestListen_AcceptsForwardedConnection(t *testing.T) {
	g := startGateway(t)
	l := listenTest(t, g, 0)

	fwd := <-g.forwards
	if fwd.Port != 2121 {
		t.Errorf("forward port = %d, want gateway-chosen 2121", fwd.Port)
	}
	if got := l.Addr().(*net.TCPAddr).Port; got != 2121 {
		t.Errorf("Addr port = %d, want 2121", got)
	}

	sconn := <-g.conns
	remote := g.dialIn(sconn, fwd)
	defer remote.Close()

	conn, err := l.Accept()
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	defer conn.Close()

	if got := conn.RemoteAddr().String(); got != "203.0.113.9:5555" {
		t.Errorf("RemoteAddr = %q", got)
	}

	go remote.Write([]byte("USER x\r\n")) //nolint:errcheck
	buf := make([]byte, 8)
	if _, err := io.ReadFull(conn, buf); err != nil {
		t.Fatal(err)
	}
	if string(buf) != "USER x\r\n" {
		t.Errorf("server read %q", buf)
	}

	go conn.Write([]byte("331 ok\r\n")) //nolint:errcheck
	if _, err := io.ReadFull(remote, buf); err != nil {
		t.Fatal(err)
	}
	if string(buf) != "331 ok\r\n" {
		t.Errorf("client read %q", buf)
	}
}

func TestListen_BadPassword(t *testing.T) {
	g := startGateway(t)
	cfg := g.sshConfig()
	cfg.Password = "wrong"

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := Listen(ctx, &ReverseConfig{SSH: cfg}, quietLogger())
	var sshErr *ftperrors.SSHError
	if !errors.As(err, &sshErr) || sshErr.Op != "auth" {
		t.Fatalf("err = %v, want auth SSHError", err)
	}
	if !errors.Is(err, ftperrors.ErrAuthFailed) {
		t.Errorf("err = %v, want ErrAuthFailed", err)
	}
}

func TestListen_Unreachable(t *testing.T) {
	port, err := util.FindFreePort()
	if err != nil {
		t.Fatal(err)
	}
	cfg := &SSHConfig{User: "ftp", Host: "127.0.0.1", Port: port, Password: "x"}
	_, err = Listen(context.Background(), &ReverseConfig{SSH: cfg}, quietLogger())
	var netErr *ftperrors.NetworkError
	if !errors.As(err, &netErr) || netErr.Op != "dial" {
		t.Fatalf("err = %v, want dial NetworkError", err)
	}
}

func TestListener_CloseUnblocksAccept(t *testing.T) {
	g := startGateway(t)
	l := listenTest(t, g, 0)

	errc := make(chan error, 1)
	go func() {
		_, err := l.Accept()
		errc <- err
	}()
	time.Sleep(50 * time.Millisecond)
	l.Close()

	select {
	case err := <-errc:
		if !errors.Is(err, net.ErrClosed) {
			t.Errorf("Accept after Close = %v, want net.ErrClosed", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Accept not unblocked by Close")
	}
}

func TestListener_GatewayDrop(t *testing.T) {
	g := startGateway(t)
	l := listenTest(t, g, 0)
	sconn := <-g.conns

	errc := make(chan error, 1)
	go func() {
		_, err := l.Accept()
		errc <- err
	}()
	sconn.Close()

	select {
	case err := <-errc:
		if err == nil || errors.Is(err, net.ErrClosed) {
			t.Errorf("Accept after gateway drop = %v, want a connection error", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Accept not unblocked by gateway drop")
	}
}

func TestListener_KeepAlive(t *testing.T) {
	g := startGateway(t)
	listenTest(t, g, 20*time.Millisecond)

	deadline := time.Now().Add(3 * time.Second)
	for g.keepAlives() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("keep-alives sent = %d, want >= 2", g.keepAlives())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestChanConn_ReadDeadline(t *testing.T) {
	g := startGateway(t)
	l := listenTest(t, g, 0)
	fwd := <-g.forwards
	remote := g.dialIn(<-g.conns, fwd)
	defer remote.Close()

	conn, err := l.Accept()
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	// A deadline pushed forward before it fires does not cut the read.
	conn.SetReadDeadline(time.Now().Add(30 * time.Millisecond)) //nolint:errcheck
	conn.SetReadDeadline(time.Now().Add(time.Hour))             //nolint:errcheck
	go func() {
		time.Sleep(80 * time.Millisecond)
		remote.Write([]byte("x")) //nolint:errcheck
	}()
	b := make([]byte, 1)
	if _, err := conn.Read(b); err != nil {
		t.Fatalf("read before deadline: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(50 * time.Millisecond)) //nolint:errcheck
	_, err = conn.Read(b)
	if !errors.Is(err, os.ErrDeadlineExceeded) {
		t.Fatalf("read after deadline = %v, want ErrDeadlineExceeded", err)
	}
	if !ftperrors.IsTimeout(err) {
		t.Error("deadline error should classify as a timeout")
	}
}

// A deadline that passes while no Read is pending must not close the
// channel under a reply that is still being written.
func TestChanConn_DeadlineBetweenReads(t *testing.T) {
	g := startGateway(t)
	l := listenTest(t, g, 0)
	fwd := <-g.forwards
	remote := g.dialIn(<-g.conns, fwd)
	defer remote.Close()

	conn, err := l.Accept()
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(30 * time.Millisecond)) //nolint:errcheck
	remote.Write([]byte("x"))                                   //nolint:errcheck
	b := make([]byte, 1)
	if _, err := conn.Read(b); err != nil {
		t.Fatalf("read: %v", err)
	}

	time.Sleep(80 * time.Millisecond)
	if _, err := conn.Write([]byte("reply")); err != nil {
		t.Fatalf("write after deadline passed: %v", err)
	}
	got := make([]byte, 5)
	if _, err := io.ReadFull(remote, got); err != nil || string(got) != "reply" {
		t.Fatalf("remote read = %q, %v", got, err)
	}

	conn.SetReadDeadline(time.Time{}) //nolint:errcheck
	remote.Write([]byte("y"))         //nolint:errcheck
	if _, err := conn.Read(b); err != nil || b[0] != 'y' {
		t.Fatalf("read after clearing deadline = %q, %v", b, err)
	}
}

func TestDial_BannerLogged(t *testing.T) {
	g := startGateway(t)
	var buf bytes.Buffer
	logger := util.NewLogger(1)
	logger.SetOutput(&buf)

	client, err := Dial(context.Background(), g.sshConfig(), logger)
	if err != nil {
		t.Fatal(err)
	}
	client.Close()

	if !strings.Contains(buf.String(), "[INF] gateway: welcome to the test gateway") {
		t.Errorf("banner not logged: %q", buf.String())
	}
}
