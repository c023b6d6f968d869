// Package cmd wires up the CLI flags and starts the server.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	flag "github.com/spf13/pflag"

	"goftpd/config"
	"goftpd/internal/core"
	"goftpd/util"
)

// version is overridable at link time:
//
//	go build -ldflags "-X goftpd/cmd.version=2.0.0"
var version = "1.0.0" //nolint:gochecknoglobals

// stdout receives --version, --help and --dry-run output.
var stdout io.Writer = os.Stdout //nolint:gochecknoglobals

// cliOptions holds flags that are not configuration.
type cliOptions struct {
	verbose     int
	showVersion bool
	showHelp    bool
}

// Execute parses args and runs the server until ctx is cancelled.
func Execute(ctx context.Context, args []string) error {
	cfg, opts, fs, err := loadConfig(args)
	if err != nil {
		return err
	}
	if opts.showHelp {
		printUsage(fs)
		return nil
	}
	if opts.showVersion {
		fmt.Fprintf(stdout, "goftpd %s\n", version)
		return nil
	}

	// ── validate ─────────────────────────────────────────────────
	if err := cfg.Resolve(); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.DryRun {
		printSummary(cfg)
		return nil
	}

	// ── build and run ────────────────────────────────────────────
	logger := util.NewLogger(cfg.Verbose)
	if cfg.ConfigFile != "" {
		logger.Verbose("loaded %s", cfg.ConfigFile)
	}
	mode, err := core.Build(cfg, logger)
	if err != nil {
		return err
	}
	return mode.Run(ctx)
}

// loadConfig layers defaults, the config file, the environment and the
// flags.  Flags are parsed twice: once to find --config, then on top of
// the file and environment so that only flags actually given override.
func loadConfig(args []string) (*config.Config, *cliOptions, *flag.FlagSet, error) {
	probe := config.Defaults()
	var probeOpts cliOptions
	probeFS := newFlagSet(probe, &probeOpts)
	if err := probeFS.Parse(args); err != nil {
		return nil, nil, nil, err
	}
	if probeOpts.showHelp || probeOpts.showVersion {
		return probe, &probeOpts, probeFS, nil
	}
	if probeFS.NArg() > 0 {
		return nil, nil, nil, fmt.Errorf("unexpected argument %q (use --help for usage)", probeFS.Arg(0))
	}

	path := probe.ConfigFile
	if !probeFS.Changed("config") {
		path = config.ConfigFileFromEnv()
	}

	cfg := config.Defaults()
	if path != "" {
		if err := config.LoadFile(path, cfg); err != nil {
			return nil, nil, nil, err
		}
	}
	config.LoadFromEnv(cfg)

	var opts cliOptions
	fs := newFlagSet(cfg, &opts)
	if err := fs.Parse(args); err != nil {
		return nil, nil, nil, err
	}
	if fs.Changed("verbose") {
		cfg.Verbose = opts.verbose
	}
	return cfg, &opts, fs, nil
}

// newFlagSet binds every flag to cfg, using cfg's current values as the
// flag defaults.
func newFlagSet(cfg *config.Config, opts *cliOptions) *flag.FlagSet {
	fs := flag.NewFlagSet("goftpd", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	// ── control listener ─────────────────────────────────────────
	fs.StringVarP(&cfg.Host, "host", "H", cfg.Host, "Address to bind")
	fs.IntVarP(&cfg.Port, "port", "p", cfg.Port, "Control port")
	fs.StringVarP(&cfg.RootDir, "root", "r", cfg.RootDir, "Root directory (default: working directory)")
	fs.StringVarP(&cfg.Welcome, "welcome", "w", cfg.Welcome, "Greeting sent on connect")
	fs.DurationVar(&cfg.IdleTimeout, "idle-timeout", cfg.IdleTimeout, "Close idle control connections (0 disables)")
	fs.Float64Var(&cfg.CommandRate, "command-rate", cfg.CommandRate, "Commands per second per session (0 = unlimited)")
	fs.StringVarP(&cfg.ConfigFile, "config", "c", cfg.ConfigFile, "YAML config file")

	// ── reverse tunnel ───────────────────────────────────────────
	fs.StringVarP(&cfg.ReverseTunnelSpec, "reverse-tunnel", "R", cfg.ReverseTunnelSpec, "Publish on an SSH gateway: user@host[:port]")
	fs.IntVar(&cfg.RemotePort, "remote-port", cfg.RemotePort, "Port to open on the gateway (0 = gateway picks)")
	fs.StringVar(&cfg.RemoteBindAddress, "remote-bind-address", cfg.RemoteBindAddress, "Address to bind on the gateway")
	fs.StringVar(&cfg.SSHKeyPath, "ssh-key", cfg.SSHKeyPath, "SSH private key file")
	fs.BoolVar(&cfg.SSHPassword, "ssh-password", cfg.SSHPassword, "Prompt for the SSH password")
	fs.BoolVar(&cfg.UseSSHAgent, "ssh-agent", cfg.UseSSHAgent, "Use SSH agent")
	fs.BoolVar(&cfg.StrictHostKey, "strict-hostkey", cfg.StrictHostKey, "Verify the gateway host key")
	fs.StringVar(&cfg.KnownHostsPath, "known-hosts", cfg.KnownHostsPath, "Custom known_hosts path")
	fs.DurationVar(&cfg.KeepAlive, "keep-alive", cfg.KeepAlive, "SSH keep-alive interval (0 disables)")
	fs.BoolVar(&cfg.AutoReconnect, "auto-reconnect", cfg.AutoReconnect, "Re-establish a dropped gateway")

	// ── output ───────────────────────────────────────────────────
	fs.CountVarP(&opts.verbose, "verbose", "v", "Increase verbosity (repeatable)")
	fs.BoolVar(&cfg.DryRun, "dry-run", cfg.DryRun, "Validate the configuration and exit")
	fs.BoolVar(&opts.showVersion, "version", false, "Print version and exit")
	fs.BoolVarP(&opts.showHelp, "help", "h", false, "Show this help")

	return fs
}

// ── helpers ──────────────────────────────────────────────────────────

func printSummary(cfg *config.Config) {
	fmt.Fprintf(stdout, "root:         %s\n", cfg.RootDir)
	if cfg.ReverseTunnelEnabled {
		fmt.Fprintf(stdout, "listen:       ssh %s@%s -> %s\n",
			cfg.ReverseTunnelUser,
			util.FormatAddr(cfg.ReverseTunnelHost, cfg.ReverseTunnelPort),
			util.FormatAddr(cfg.RemoteBindAddress, cfg.RemotePort))
	} else {
		fmt.Fprintf(stdout, "listen:       tcp %s\n", util.FormatAddr(cfg.Host, cfg.Port))
	}
	fmt.Fprintf(stdout, "welcome:      %s\n", cfg.Welcome)
	fmt.Fprintf(stdout, "idle timeout: %s\n", cfg.IdleTimeout)
	fmt.Fprintf(stdout, "command rate: %g/s\n", cfg.CommandRate)
	fmt.Fprintln(stdout, "configuration OK")
}

func printUsage(fs *flag.FlagSet) {
	fmt.Fprintf(stdout, `goftpd – FTP control-channel server v%s

Serves the FTP control connection for a directory tree: directory
listing and navigation, directory creation and removal.

Usage:
  goftpd [options]

Options:
`, version)
	fs.SetOutput(stdout)
	fs.PrintDefaults()
	fmt.Fprintf(stdout, `
Examples:
  goftpd -p 2121 -r /srv/ftp                  Serve /srv/ftp on port 2121
  goftpd -c /etc/goftpd.yaml -vv              Use a config file, verbose
  goftpd -R ops@gw.example.com --remote-port 2121 --auto-reconnect
                                              Publish through an SSH gateway
  goftpd --dry-run -r ./pub                   Check the configuration
`)
}
