package config

import "time"

// ── Default values ───────────────────────────────────────────────────
//
// All tuneable defaults live here so they are easy to audit and reuse
// across CLI flags, config file parsing, and environment variable
// loading.

const (
	// DefaultHost binds every interface.
	DefaultHost = "0.0.0.0"

	// DefaultPort is the standard FTP control port.
	DefaultPort = 21

	// DefaultWelcome is the greeting sent on connect.
	DefaultWelcome = "220 Welcome to the FTP server"

	// DefaultIdleTimeout closes a control connection that has sent
	// nothing for this long.
	DefaultIdleTimeout = 5 * time.Minute

	// DefaultSSHPort is the standard SSH port.
	DefaultSSHPort = 22

	// DefaultKeepAlive is the SSH keepalive interval for the gateway.
	DefaultKeepAlive = 30 * time.Second

	// DefaultConnTimeout bounds the SSH dial and handshake.
	DefaultConnTimeout = 30 * time.Second

	// DefaultMaxReconnectAttempts is how many times to retry after a
	// gateway disconnect.
	DefaultMaxReconnectAttempts = 10

	// DefaultMaxReconnectBackoff caps the exponential backoff between
	// reconnection attempts.
	DefaultMaxReconnectBackoff = 60 * time.Second

	// DefaultGracePeriod is how long shutdown waits for sessions.
	DefaultGracePeriod = 5 * time.Second
)
