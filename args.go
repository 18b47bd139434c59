package main

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"
)

// Args are command line arguments.
type Args struct {
	Port     int
	Password string

	ConfigFile    string
	MetricsListen string
	Debug         bool

	// Descriptor of an already listening socket to use instead of opening
	// one. -1 if unset.
	ListenFD int
}

func newRootCommand() *cobra.Command {
	args := Args{ListenFD: -1}

	cmd := &cobra.Command{
		Use:   "ircserv <port> <password>",
		Short: "IRC server",
		Long: "ircserv is a single process IRC server. Clients must send the " +
			"password with PASS before registering unless it is empty.",
		Args:         cobra.ExactArgs(2),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, positional []string) error {
			port, err := parsePort(positional[0])
			if err != nil {
				return err
			}
			args.Port = port
			args.Password = positional[1]

			if args.ConfigFile != "" {
				path, err := filepath.Abs(args.ConfigFile)
				if err != nil {
					return fmt.Errorf("unable to determine absolute path to config file: %s: %s",
						args.ConfigFile, err)
				}
				args.ConfigFile = path
			}

			return runServer(args, cmd.Flags().Changed("metrics-listen"))
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&args.ConfigFile, "config", "c", "", "Configuration file (key = value, .yaml, or .toml).")
	flags.StringVar(&args.MetricsListen, "metrics-listen", "", "Serve Prometheus metrics on this host:port.")
	flags.BoolVar(&args.Debug, "debug", false, "Log every line sent and received.")
	flags.IntVar(&args.ListenFD, "listen-fd", -1, "Use this already listening socket descriptor.")
	_ = flags.MarkHidden("listen-fd")

	return cmd
}

// parsePort checks a TCP port argument.
func parsePort(s string) (int, error) {
	port, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid port: %s", s)
	}
	if port < 1 || port > 65535 {
		return 0, fmt.Errorf("port out of range: %d", port)
	}
	return port, nil
}

// runServer loads the configuration, starts the server, and runs it until
// shutdown. The positional arguments override the config file and
// environment.
func runServer(args Args, metricsFlagSet bool) error {
	cfg, err := loadConfig(args.ConfigFile, ".env")
	if err != nil {
		return err
	}

	cfg.ListenPort = args.Port
	cfg.Password = args.Password
	if metricsFlagSet {
		cfg.MetricsListen = args.MetricsListen
	}
	if args.Debug {
		cfg.Debug = true
	}

	if err := cfg.finalize(); err != nil {
		return err
	}

	logger := newLogger(cfg.Debug)

	s := newServer(cfg, logger)

	if args.ListenFD >= 0 {
		if err := s.useListener(args.ListenFD); err != nil {
			logger.Error("unable to use listener", "fd", args.ListenFD, "error", err)
			return err
		}
	}

	if err := s.run(); err != nil {
		logger.Error("server failed", "error", err)
		return err
	}

	return nil
}
