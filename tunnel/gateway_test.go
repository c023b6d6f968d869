package tunnel

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"net"
	"sync"
	"testing"

	"golang.org/x/crypto/ssh"
)

const testPassword = "hunter2"

// testGateway is an in-process SSH server that honours tcpip-forward
// requests, enough to stand in for a real "ssh -R" gateway.
type testGateway struct {
	t        *testing.T
	ln       net.Listener
	hostKey  ssh.Signer
	forwards chan channelForwardMsg
	conns    chan *ssh.ServerConn

	mu        sync.Mutex
	keepAlive int
}

func startGateway(t *testing.T) *testGateway {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatal(err)
	}
	cfg := &ssh.ServerConfig{
		PasswordCallback: func(_ ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if string(pass) == testPassword {
				return nil, nil
			}
			return nil, errors.New("denied")
		},
		PublicKeyCallback: func(ssh.ConnMetadata, ssh.PublicKey) (*ssh.Permissions, error) {
			return nil, nil
		},
		BannerCallback: func(ssh.ConnMetadata) string {
			return "welcome to the test gateway\n"
		},
	}
	cfg.AddHostKey(signer)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	g := &testGateway{
		t:        t,
		ln:       ln,
		hostKey:  signer,
		forwards: make(chan channelForwardMsg, 4),
		conns:    make(chan *ssh.ServerConn, 4),
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go g.serve(c, cfg)
		}
	}()
	return g
}

func (g *testGateway) serve(c net.Conn, cfg *ssh.ServerConfig) {
	sconn, chans, reqs, err := ssh.NewServerConn(c, cfg)
	if err != nil {
		c.Close()
		return
	}
	go func() {
		for nc := range chans {
			nc.Reject(ssh.Prohibited, "no sessions here") //nolint:errcheck
		}
	}()
	g.conns <- sconn

	for req := range reqs {
		switch req.Type {
		case "tcpip-forward":
			var m channelForwardMsg
			if err := ssh.Unmarshal(req.Payload, &m); err != nil {
				req.Reply(false, nil) //nolint:errcheck
				continue
			}
			if m.Port == 0 {
				m.Port = 2121
			}
			req.Reply(true, ssh.Marshal(&channelForwardReply{Port: m.Port})) //nolint:errcheck
			g.forwards <- m
		case "cancel-tcpip-forward":
			req.Reply(true, nil) //nolint:errcheck
		case "keepalive@openssh.com":
			g.mu.Lock()
			g.keepAlive++
			g.mu.Unlock()
			req.Reply(false, nil) //nolint:errcheck
		default:
			req.Reply(false, nil) //nolint:errcheck
		}
	}
}

func (g *testGateway) port() int { return g.ln.Addr().(*net.TCPAddr).Port }

func (g *testGateway) keepAlives() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.keepAlive
}

func (g *testGateway) sshConfig() *SSHConfig {
	return &SSHConfig{User: "ftp", Host: "127.0.0.1", Port: g.port(), Password: testPassword}
}

// dialIn simulates a client reaching the published port.
func (g *testGateway) dialIn(sconn *ssh.ServerConn, fwd channelForwardMsg) ssh.Channel {
	g.t.Helper()
	payload := forwardedTCPPayload{
		Addr: fwd.Addr, Port: fwd.Port,
		OriginAddr: "203.0.113.9", OriginPort: 5555,
	}
	ch, reqs, err := sconn.OpenChannel("forwarded-tcpip", ssh.Marshal(&payload))
	if err != nil {
		g.t.Fatalf("open forwarded-tcpip: %v", err)
	}
	go ssh.DiscardRequests(reqs)
	return ch
}
