package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/srg/boardlink/internal/ptyio"
	"github.com/srg/boardlink/internal/simboard"
	"github.com/srg/boardlink/internal/wire"
)

// simCmd serves a simulated board on a PTY
var simCmd = &cobra.Command{
	Use:   "sim",
	Short: "Serve a simulated board on a PTY",
	Long: `Creates a pseudo-terminal and answers board commands on it until Ctrl+C.
The printed device path can be passed to --port of another boardctl invocation.

Example:
  boardctl sim --codec cbor
  boardctl io read 0 --port /dev/pts/7 --codec cbor`,
	Args: cobra.NoArgs,
	RunE: runSim,
}

func runSim(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	codec, err := wire.Lookup(cfg.Codec)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true
	logger := configureLogger(cfg, cmd)

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt)
	defer stop()

	p, err := ptyio.Open()
	if err != nil {
		return err
	}
	defer p.Close()

	fmt.Fprintf(cmd.OutOrStdout(), "Simulated board on %s (codec %s)\n", p.TTYName(), codec.Name())
	if err := simboard.New(logger).Serve(ctx, p, codec); err != nil {
		return err
	}
	return ctx.Err()
}
