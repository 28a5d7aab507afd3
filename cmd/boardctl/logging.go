package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/boardlink/pkg/config"
)

// loadConfig builds the effective configuration: defaults, then --config, then flags.
// Without --log-level or a config file the logger stays quiet (panic level).
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()
	quiet := true

	if path, _ := cmd.Flags().GetString("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
		quiet = false
	}

	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		if err := cfg.SetLogLevel(level); err != nil {
			return nil, err
		}
		quiet = false
	}
	if quiet {
		cfg.LogLevel = logrus.PanicLevel
	}

	if port, _ := cmd.Flags().GetString("port"); port != "" {
		cfg.Port = port
	}
	if codec, _ := cmd.Flags().GetString("codec"); codec != "" {
		cfg.Codec = codec
	}
	if timeout, _ := cmd.Flags().GetDuration("timeout"); timeout > 0 {
		cfg.ReplyTimeout = timeout
	}
	if output, _ := cmd.Flags().GetString("output"); output != "" {
		cfg.OutputFormat = output
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// configureLogger creates the command logger from the effective configuration
func configureLogger(cfg *config.Config, cmd *cobra.Command) *logrus.Logger {
	logger := cfg.NewLogger()
	logger.SetOutput(cmd.ErrOrStderr())
	return logger
}
