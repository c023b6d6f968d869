package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig mirrors the YAML layout.  Pointers tell "absent" from a
// zero value, so a file only overrides what it mentions.
type fileConfig struct {
	Host          *string     `yaml:"host"`
	Port          *int        `yaml:"port"`
	Root          *string     `yaml:"root"`
	Welcome       *string     `yaml:"welcome"`
	IdleTimeout   *string     `yaml:"idle_timeout"`
	CommandRate   *float64    `yaml:"command_rate"`
	Verbose       *int        `yaml:"verbose"`
	ReverseTunnel *tunnelFile `yaml:"reverse_tunnel"`
}

type tunnelFile struct {
	Spec              *string `yaml:"spec"`
	RemotePort        *int    `yaml:"remote_port"`
	RemoteBindAddress *string `yaml:"remote_bind_address"`
	SSHKey            *string `yaml:"ssh_key"`
	Password          *string `yaml:"password"`
	PromptPassword    *bool   `yaml:"prompt_password"`
	SSHAgent          *bool   `yaml:"ssh_agent"`
	StrictHostKey     *bool   `yaml:"strict_hostkey"`
	KnownHosts        *string `yaml:"known_hosts"`
	KeepAlive         *string `yaml:"keep_alive"`
	AutoReconnect     *bool   `yaml:"auto_reconnect"`
}

// LoadFile overlays the YAML file at path onto cfg.  Unknown keys are
// an error.  Relative root, ssh_key and known_hosts paths are taken
// relative to the file's directory.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config file: %w", err)
	}

	var fc fileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("config file %s: %w", path, err)
	}
	if err := fc.apply(cfg, filepath.Dir(path)); err != nil {
		return fmt.Errorf("config file %s: %w", path, err)
	}
	cfg.ConfigFile = path
	return nil
}

func (fc *fileConfig) apply(cfg *Config, base string) error {
	setString(&cfg.Host, fc.Host)
	setInt(&cfg.Port, fc.Port)
	if fc.Root != nil {
		cfg.RootDir = relTo(base, *fc.Root)
	}
	setString(&cfg.Welcome, fc.Welcome)
	if fc.IdleTimeout != nil {
		d, err := parseDuration(*fc.IdleTimeout)
		if err != nil {
			return fmt.Errorf("idle_timeout: %w", err)
		}
		cfg.IdleTimeout = d
	}
	if fc.CommandRate != nil {
		cfg.CommandRate = *fc.CommandRate
	}
	setInt(&cfg.Verbose, fc.Verbose)

	t := fc.ReverseTunnel
	if t == nil {
		return nil
	}
	setString(&cfg.ReverseTunnelSpec, t.Spec)
	setInt(&cfg.RemotePort, t.RemotePort)
	setString(&cfg.RemoteBindAddress, t.RemoteBindAddress)
	if t.SSHKey != nil {
		cfg.SSHKeyPath = relTo(base, *t.SSHKey)
	}
	setString(&cfg.SSHPasswordValue, t.Password)
	setBool(&cfg.SSHPassword, t.PromptPassword)
	setBool(&cfg.UseSSHAgent, t.SSHAgent)
	setBool(&cfg.StrictHostKey, t.StrictHostKey)
	if t.KnownHosts != nil {
		cfg.KnownHostsPath = relTo(base, *t.KnownHosts)
	}
	if t.KeepAlive != nil {
		d, err := parseDuration(*t.KeepAlive)
		if err != nil {
			return fmt.Errorf("reverse_tunnel.keep_alive: %w", err)
		}
		cfg.KeepAlive = d
	}
	setBool(&cfg.AutoReconnect, t.AutoReconnect)
	return nil
}

// parseDuration accepts Go duration syntax ("90s", "5m") or a bare
// number of seconds.
func parseDuration(s string) (time.Duration, error) {
	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("%q is negative", s)
		}
		return secondsDuration(n), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%q is not a duration", s)
	}
	return d, nil
}

func relTo(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}
