package core

import (
	"fmt"
	"io"
	"time"

	"goftpd/config"
	"goftpd/internal/capability"
	"goftpd/internal/fsys"
	"goftpd/internal/metrics"
	"goftpd/internal/retry"
	"goftpd/internal/transport"
	"goftpd/tunnel"
	"goftpd/util"
)

// Build constructs the server from a resolved, validated configuration.
// It opens the root directory; the returned Mode releases it when Run
// returns.
func Build(cfg *config.Config, logger *util.Logger) (Mode, error) {
	root, err := fsys.NewOS(cfg.RootDir)
	if err != nil {
		return nil, fmt.Errorf("root: %w", err)
	}
	mc := metrics.New()

	logger.Verbose("root %s, idle timeout %s, command rate %g/s", root.Dir(), cfg.IdleTimeout, cfg.CommandRate)

	return &ListenMode{
		Listener: buildListener(cfg, logger),
		Capability: &capability.Control{
			RootDir:     root.Dir(),
			Welcome:     cfg.Welcome,
			FS:          root,
			IdleTimeout: cfg.IdleTimeout,
			CommandRate: cfg.CommandRate,
			Metrics:     mc,
			Logger:      logger,
		},
		Metrics:     mc,
		Logger:      logger,
		GracePeriod: config.DefaultGracePeriod,
		Backoff:     reconnectBackoff(),
		Closers:     []io.Closer{root},
	}, nil
}

// ── helpers ──────────────────────────────────────────────────────────

// buildListener picks a local socket or an SSH gateway.
func buildListener(cfg *config.Config, logger *util.Logger) transport.Listener {
	if !cfg.ReverseTunnelEnabled {
		return &transport.TCPListener{Host: cfg.Host, Port: cfg.Port}
	}
	return &transport.SSHListener{
		Config: &tunnel.ReverseConfig{
			SSH: &tunnel.SSHConfig{
				User:          cfg.ReverseTunnelUser,
				Host:          cfg.ReverseTunnelHost,
				Port:          cfg.ReverseTunnelPort,
				KeyPath:       cfg.SSHKeyPath,
				Password:      cfg.SSHPasswordValue,
				PromptPass:    cfg.SSHPassword,
				UseAgent:      cfg.UseSSHAgent,
				StrictHostKey: cfg.StrictHostKey,
				KnownHosts:    cfg.KnownHostsPath,
				ConnTimeout:   config.DefaultConnTimeout,
			},
			RemoteBindAddress: cfg.RemoteBindAddress,
			RemotePort:        cfg.RemotePort,
			KeepAlive:         cfg.KeepAlive,
		},
		AutoReconnect: cfg.AutoReconnect,
		Logger:        logger,
	}
}

func reconnectBackoff() *retry.Backoff {
	return &retry.Backoff{
		InitialDelay: time.Second,
		MaxDelay:     config.DefaultMaxReconnectBackoff,
		Multiplier:   2.0,
		MaxAttempts:  config.DefaultMaxReconnectAttempts,
		Jitter:       true,
	}
}
