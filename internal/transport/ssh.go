package transport

import (
	"context"
	"fmt"
	"net"

	"goftpd/tunnel"
	"goftpd/util"
)

// SSHListener publishes the control port on an SSH gateway, so clients
// connect to the gateway and their sessions are carried back here.
type SSHListener struct {
	Config        *tunnel.ReverseConfig
	AutoReconnect bool
	Logger        *util.Logger
}

// Listen dials the gateway and requests the remote forward.
func (s *SSHListener) Listen(ctx context.Context) (net.Listener, error) {
	l, err := tunnel.Listen(ctx, s.Config, s.Logger)
	if err != nil {
		return nil, fmt.Errorf("reverse tunnel: %w", err)
	}
	return l, nil
}

// Reconnectable follows --auto-reconnect.
func (s *SSHListener) Reconnectable() bool { return s.AutoReconnect }

func (s *SSHListener) String() string {
	bind := s.Config.RemoteBindAddress
	return fmt.Sprintf("ssh %s@%s -> %s", s.Config.SSH.User, s.Config.SSH.Addr(),
		util.FormatAddr(bind, s.Config.RemotePort))
}
