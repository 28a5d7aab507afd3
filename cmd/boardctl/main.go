package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"unicode"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// formatVersion adds 'v' prefix if version starts with a digit
func formatVersion(ver string) string {
	if len(ver) > 0 && unicode.IsDigit(rune(ver[0])) {
		return "v" + ver
	}
	return ver
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "boardctl",
	Short: "Drive the peripherals of a remote board",
	Long: `Command-line client for a board reachable over a serial-like port:

- Read, write and watch digital IO lines
- Run SPI transfers in master mode
- Write and read BLE local attributes hosted by the board
- Serve a simulated board on a PTY for development without hardware

Commands and replies are exchanged as JSON lines or CBOR frames (--codec).`,
	Version: fmt.Sprintf("%s (commit %s, built %s)", formatVersion(version), commit, date),
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		// Ctrl+C is a normal exit, not an error
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", formatUserError(err))
		os.Exit(1)
	}
}

func init() {
	// main() prints clean errors
	rootCmd.SilenceErrors = true

	rootCmd.AddCommand(ioCmd)
	rootCmd.AddCommand(spiCmd)
	rootCmd.AddCommand(attrCmd)
	rootCmd.AddCommand(simCmd)

	flags := rootCmd.PersistentFlags()
	flags.String("log-level", "", "Log level (trace, debug, info, warn, error)")
	flags.String("config", "", "Path to a YAML config file")
	flags.String("port", "", "Board port (serial device or PTY path)")
	flags.String("codec", "", "Frame codec (json, cbor)")
	flags.Duration("timeout", 0, "Time to wait for a reply")
	flags.String("output", "", "Output format (text, json)")
	flags.Bool("dry-run", false, "Answer commands with the built-in simulator instead of a port")

	rootCmd.Flags().BoolP("version", "v", false, "Show version information")
}
