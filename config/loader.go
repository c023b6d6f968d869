package config

// loader.go - configuration loading from environment variables.
//
// Precedence order (highest wins):
//   1. CLI flags  (handled by cmd/root.go)
//   2. Environment variables  (this file)
//   3. Config file  (file.go)
//   4. Defaults   (defaults.go)

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// ── Environment variable mapping ─────────────────────────────────────
//
// Every supported env var uses the GOFTPD_ prefix.  Boolean values
// accept "1", "true", "yes" (case-insensitive).  Durations are whole
// seconds.

// ConfigFileFromEnv returns GOFTPD_CONFIG.
func ConfigFileFromEnv() string { return os.Getenv("GOFTPD_CONFIG") }

// LoadFromEnv overlays environment variables onto cfg.  Only non-empty
// env vars override the existing value.  Call it after LoadFile and
// before CLI flag parsing so that flags take precedence.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("GOFTPD_HOST"); v != "" {
		cfg.Host = v
	}
	if v := envInt("GOFTPD_PORT"); v > 0 {
		cfg.Port = v
	}
	if v := os.Getenv("GOFTPD_ROOT"); v != "" {
		cfg.RootDir = v
	}
	if v := os.Getenv("GOFTPD_WELCOME"); v != "" {
		cfg.Welcome = v
	}
	if v, ok := envSeconds("GOFTPD_IDLE_TIMEOUT"); ok {
		cfg.IdleTimeout = v
	}
	if v := envFloat("GOFTPD_COMMAND_RATE"); v > 0 {
		cfg.CommandRate = v
	}

	// Reverse tunnel
	if v := os.Getenv("GOFTPD_REVERSE_TUNNEL"); v != "" {
		cfg.ReverseTunnelSpec = v
	}
	if v := envInt("GOFTPD_REMOTE_PORT"); v > 0 {
		cfg.RemotePort = v
	}
	if v := os.Getenv("GOFTPD_REMOTE_BIND_ADDRESS"); v != "" {
		cfg.RemoteBindAddress = v
	}
	if v := os.Getenv("GOFTPD_SSH_KEY"); v != "" {
		cfg.SSHKeyPath = v
	}
	if envBool("GOFTPD_SSH_PASSWORD") {
		cfg.SSHPassword = true
	}
	if v := os.Getenv("GOFTPD_SSH_PASS"); v != "" {
		cfg.SSHPasswordValue = v
	}
	if envBool("GOFTPD_SSH_AGENT") {
		cfg.UseSSHAgent = true
	}
	if envBool("GOFTPD_STRICT_HOSTKEY") {
		cfg.StrictHostKey = true
	}
	if v := os.Getenv("GOFTPD_KNOWN_HOSTS"); v != "" {
		cfg.KnownHostsPath = v
	}
	if v, ok := envSeconds("GOFTPD_KEEP_ALIVE"); ok {
		cfg.KeepAlive = v
	}
	if envBool("GOFTPD_AUTO_RECONNECT") {
		cfg.AutoReconnect = true
	}

	// Output
	if v := envInt("GOFTPD_VERBOSE"); v > 0 {
		cfg.Verbose = v
	}
}

// ── helpers ──────────────────────────────────────────────────────────

func envInt(key string) int {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func envFloat(key string) float64 {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0
	}
	return f
}

func envBool(key string) bool {
	v := strings.ToLower(os.Getenv(key))
	return v == "1" || v == "true" || v == "yes"
}

// envSeconds reads a non-negative number of seconds.  "0" is a valid
// value (it disables the feature), so presence is reported separately.
func envSeconds(key string) (time.Duration, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, false
	}
	return secondsDuration(n), true
}

func secondsDuration(sec int) time.Duration {
	return time.Duration(sec) * time.Second
}
