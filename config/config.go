// Package config defines the runtime configuration for goftpd and the
// layers it is assembled from: defaults, a YAML file, GOFTPD_*
// environment variables and command-line flags, in increasing order of
// precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	ftperrors "goftpd/internal/errors"
	"goftpd/util"
)

// Config holds every tuneable for a goftpd process.
type Config struct {
	// ── Control listener ─────────────────────────────────────────────
	Host        string
	Port        int
	RootDir     string
	Welcome     string
	IdleTimeout time.Duration // 0 disables
	CommandRate float64       // commands/second per session; 0 = unlimited

	// ── Reverse tunnel ───────────────────────────────────────────────
	ReverseTunnelSpec    string // raw user@host[:port] from -R
	ReverseTunnelEnabled bool
	ReverseTunnelUser    string
	ReverseTunnelHost    string
	ReverseTunnelPort    int
	RemotePort           int    // port to publish on the gateway; 0 lets it pick
	RemoteBindAddress    string // "" lets the gateway decide
	SSHKeyPath           string
	SSHPassword          bool   // true → prompt interactively
	SSHPasswordValue     string // from the config file or GOFTPD_SSH_PASS
	UseSSHAgent          bool
	StrictHostKey        bool
	KnownHostsPath       string
	KeepAlive            time.Duration
	AutoReconnect        bool

	// ── Process ──────────────────────────────────────────────────────
	ConfigFile string
	Verbose    int
	DryRun     bool
}

// Defaults returns a Config with every built-in default applied.
func Defaults() *Config {
	return &Config{
		Host:        DefaultHost,
		Port:        DefaultPort,
		Welcome:     DefaultWelcome,
		IdleTimeout: DefaultIdleTimeout,
		KeepAlive:   DefaultKeepAlive,
	}
}

// ParseTunnelSpec splits "user@host[:port]".  Port defaults to 22.
func ParseTunnelSpec(spec string) (user, host string, port int, err error) {
	user, host, port, err = util.ParseUserHost(spec, DefaultSSHPort)
	if err != nil {
		return "", "", 0, fmt.Errorf("invalid tunnel spec: %w", err)
	}
	if host == "" {
		return "", "", 0, fmt.Errorf("invalid tunnel spec %q: empty host", spec)
	}
	return user, host, port, nil
}

// Resolve fills the derived fields: the tunnel parts from
// ReverseTunnelSpec and an absolute RootDir (the working directory
// when unset).
func (c *Config) Resolve() error {
	if c.ReverseTunnelSpec != "" {
		user, host, port, err := ParseTunnelSpec(c.ReverseTunnelSpec)
		if err != nil {
			return &ftperrors.ConfigError{
				Field:   "reverse-tunnel",
				Value:   c.ReverseTunnelSpec,
				Message: err.Error(),
				Hint:    "use user@host or user@host:port",
			}
		}
		c.ReverseTunnelEnabled = true
		c.ReverseTunnelUser = user
		c.ReverseTunnelHost = host
		c.ReverseTunnelPort = port
	}

	root := c.RootDir
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("resolving working directory: %w", err)
		}
		root = wd
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolving root %q: %w", root, err)
	}
	c.RootDir = filepath.Clean(abs)
	return nil
}

// ── Validation ───────────────────────────────────────────────────────

// Validate checks that the configuration is internally consistent.
// Call it after Resolve.  Failures are *errors.ConfigError.
func (c *Config) Validate() error {
	if !c.ReverseTunnelEnabled && (c.Port < 1 || c.Port > 65535) {
		return &ftperrors.ConfigError{
			Field: "port", Value: c.Port,
			Message: "out of range 1-65535",
			Hint:    "use a port between 1 and 65535",
		}
	}

	info, err := os.Stat(c.RootDir)
	switch {
	case err != nil:
		return &ftperrors.ConfigError{
			Field: "root", Value: c.RootDir,
			Message: "cannot be opened: " + rootReason(err),
			Hint:    "create the directory or point -r at an existing one",
		}
	case !info.IsDir():
		return &ftperrors.ConfigError{
			Field: "root", Value: c.RootDir,
			Message: "not a directory",
		}
	}

	if strings.ContainsAny(c.Welcome, "\r\n") {
		return &ftperrors.ConfigError{
			Field:   "welcome",
			Message: "must be a single line",
		}
	}
	if c.Welcome != "" && !strings.HasPrefix(c.Welcome, "220 ") {
		return &ftperrors.ConfigError{
			Field: "welcome", Value: c.Welcome,
			Message: "must be a 220 reply line",
			Hint:    `start the banner with "220 ", e.g. "220 ` + c.Welcome + `"`,
		}
	}
	if c.IdleTimeout < 0 {
		return &ftperrors.ConfigError{
			Field: "idle-timeout", Value: c.IdleTimeout,
			Message: "must not be negative",
			Hint:    "use 0 to disable the idle timeout",
		}
	}
	if c.CommandRate < 0 {
		return &ftperrors.ConfigError{
			Field: "command-rate", Value: c.CommandRate,
			Message: "must not be negative",
			Hint:    "use 0 for no limit",
		}
	}
	if c.Verbose < 0 {
		return &ftperrors.ConfigError{Field: "verbose", Value: c.Verbose, Message: "must not be negative"}
	}

	if !c.ReverseTunnelEnabled {
		if c.RemotePort != 0 || c.RemoteBindAddress != "" {
			return &ftperrors.ConfigError{
				Field:   "remote-port",
				Message: "only applies to a reverse tunnel",
				Hint:    "add -R user@gateway",
			}
		}
		return nil
	}
	return c.validateTunnel()
}

func (c *Config) validateTunnel() error {
	if c.ReverseTunnelHost == "" {
		return &ftperrors.ConfigError{Field: "reverse-tunnel", Message: "gateway host is required"}
	}
	if c.RemotePort < 0 || c.RemotePort > 65535 {
		return &ftperrors.ConfigError{
			Field: "remote-port", Value: c.RemotePort,
			Message: "out of range 0-65535",
			Hint:    "use 0 to let the gateway pick a port",
		}
	}
	if c.KeepAlive < 0 {
		return &ftperrors.ConfigError{
			Field: "keep-alive", Value: c.KeepAlive,
			Message: "must not be negative",
			Hint:    "use 0 to disable keep-alives",
		}
	}
	if c.SSHPassword && c.SSHPasswordValue != "" {
		return &ftperrors.ConfigError{
			Field:   "ssh-password",
			Message: "a password is already configured",
			Hint:    "drop --ssh-password or remove the stored password",
		}
	}
	if c.SSHKeyPath != "" {
		if _, err := os.Stat(c.SSHKeyPath); err != nil {
			return &ftperrors.ConfigError{
				Field: "ssh-key", Value: c.SSHKeyPath,
				Message: "cannot be read: " + rootReason(err),
			}
		}
	}
	return nil
}

func rootReason(err error) string {
	switch ftperrors.KindOf(err) {
	case ftperrors.KindNotFound:
		return "no such file or directory"
	case ftperrors.KindPermissionDenied:
		return "permission denied"
	default:
		return err.Error()
	}
}
