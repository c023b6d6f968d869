// Package tunnel publishes the control port on a remote SSH gateway,
// the equivalent of "ssh -R", using golang.org/x/crypto/ssh.
package tunnel

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	ftperrors "goftpd/internal/errors"
	"goftpd/util"
)

// SSHConfig holds everything needed to log in to an SSH gateway.
type SSHConfig struct {
	User          string
	Host          string
	Port          int
	KeyPath       string
	Password      string // used as-is when set; never prompted
	PromptPass    bool   // ask for a password on the terminal
	UseAgent      bool
	StrictHostKey bool
	KnownHosts    string
	ConnTimeout   time.Duration
}

// Addr returns the gateway's host:port.
func (c *SSHConfig) Addr() string {
	port := c.Port
	if port == 0 {
		port = 22
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(port))
}

// Dial connects and authenticates to the gateway.  The pre-auth banner,
// which public tunnel services use to print the public address, is
// logged at info level.
func Dial(ctx context.Context, cfg *SSHConfig, logger *util.Logger) (*ssh.Client, error) {
	auth, err := BuildAuthMethods(cfg)
	if err != nil {
		return nil, ftperrors.WrapSSH("auth", cfg.Host, cfg.Port, err)
	}
	hkCb, err := hostKeyCallback(cfg)
	if err != nil {
		return nil, ftperrors.WrapSSH("hostkey", cfg.Host, cfg.Port, err)
	}

	timeout := cfg.ConnTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	sshCfg := &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            auth,
		HostKeyCallback: hkCb,
		Timeout:         timeout,
		BannerCallback: func(message string) error {
			if msg := strings.TrimSpace(message); msg != "" && logger != nil {
				logger.Info("gateway: %s", msg)
			}
			return nil
		},
	}

	addr := cfg.Addr()
	if logger != nil {
		logger.Debug("ssh: dialing %s as %s", addr, cfg.User)
	}

	dialer := net.Dialer{Timeout: timeout}
	tcpConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, ftperrors.Wrap("dial", addr, err)
	}

	// NewClientConn has no context; closing the socket aborts the
	// handshake if ctx ends first.
	stop := context.AfterFunc(ctx, func() { tcpConn.Close() })
	defer stop()

	sshConn, chans, reqs, err := ssh.NewClientConn(tcpConn, addr, sshCfg)
	if err != nil {
		tcpConn.Close()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, handshakeError(cfg, err)
	}
	return ssh.NewClient(sshConn, chans, reqs), nil
}

// handshakeError separates rejected credentials and host keys, which a
// reconnect cannot fix, from other handshake failures.
func handshakeError(cfg *SSHConfig, err error) error {
	var keyErr *knownhosts.KeyError
	var revoked *knownhosts.RevokedError
	switch {
	case errors.As(err, &keyErr), errors.As(err, &revoked):
		return ftperrors.WrapSSH("hostkey", cfg.Host, cfg.Port, err)
	case strings.Contains(err.Error(), "unable to authenticate"):
		return ftperrors.WrapSSH("auth", cfg.Host, cfg.Port, fmt.Errorf("%w: %v", ftperrors.ErrAuthFailed, err))
	default:
		return ftperrors.WrapSSH("handshake", cfg.Host, cfg.Port, err)
	}
}
