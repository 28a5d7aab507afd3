package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/srg/boardlink/pkg/gpio"
	"github.com/srg/boardlink/pkg/peripheral"
)

// ioCmd groups the digital IO commands
var ioCmd = &cobra.Command{
	Use:   "io",
	Short: "Digital IO lines",
}

var ioReadCmd = &cobra.Command{
	Use:   "read <id>",
	Short: "Read the input level of an IO line",
	Long: `Switches the line to input and prints its level.

Examples:
  boardctl io read 3 --port /dev/ttyUSB0
  boardctl io read 3 --pull 0v --dry-run`,
	Args: cobra.ExactArgs(1),
	RunE: runIORead,
}

var ioWriteCmd = &cobra.Command{
	Use:   "write <id> <0|1>",
	Short: "Drive an IO line as output",
	Long: `Drives the line high or low.

Examples:
  boardctl io write 0 1 --port /dev/ttyUSB0
  boardctl io write 0 0 --drive open-drain --pull 5v`,
	Args: cobra.ExactArgs(2),
	RunE: runIOWrite,
}

var ioWatchCmd = &cobra.Command{
	Use:   "watch <id>",
	Short: "Stream level changes of an IO line",
	Long: `Switches the line to streaming input and prints every change until Ctrl+C
or until --count changes were seen.`,
	Args: cobra.ExactArgs(1),
	RunE: runIOWatch,
}

var (
	ioDrive string
	ioPull  string
	ioCount int
)

func init() {
	ioCmd.AddCommand(ioReadCmd, ioWriteCmd, ioWatchCmd)

	for _, c := range []*cobra.Command{ioReadCmd, ioWriteCmd, ioWatchCmd} {
		c.Flags().StringVar(&ioPull, "pull", "", "Pull resistor (5v, 3v, 0v, float)")
	}
	ioWriteCmd.Flags().StringVar(&ioDrive, "drive", "", "Output drive (5v, 3v, open-drain)")
	ioWatchCmd.Flags().IntVar(&ioCount, "count", 0, "Stop after N changes; default 0, run until interrupted")
}

func parseLineID(arg string) (int, error) {
	id, err := strconv.Atoi(arg)
	if err != nil || id < 0 {
		return 0, peripheral.NewArgumentError("id", arg, "IO line must be a non-negative number")
	}
	return id, nil
}

func parseLevel(arg string) (bool, error) {
	switch strings.ToLower(arg) {
	case "1", "high", "true", "on":
		return true, nil
	case "0", "low", "false", "off":
		return false, nil
	}
	return false, peripheral.NewArgumentError("level", arg, "level must be 0 or 1")
}

// applyPull configures the pull resistor when --pull was given
func applyPull(line *gpio.IO) error {
	if ioPull == "" {
		return nil
	}
	method, err := gpio.ParsePull(ioPull)
	if err != nil {
		return err
	}
	return line.Pull(method)
}

func runIORead(cmd *cobra.Command, args []string) error {
	id, err := parseLineID(args[0])
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	bc, err := connect(ctx, cmd)
	if err != nil {
		return err
	}
	defer bc.close(cmd)

	line := bc.session.IO(id)
	if err := applyPull(line); err != nil {
		return err
	}
	f, err := line.InputAsync()
	if err != nil {
		return err
	}
	if err := bc.pump(); err != nil {
		bc.logger.WithError(err).Debug("Dry-run delivery reported errors")
	}

	waitCtx, cancel := bc.replyContext(ctx)
	defer cancel()
	level, err := f.Wait(waitCtx)
	bc.drainAlerts()
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", line.Address(), err)
	}
	bc.printer.result(line.Address(), level)
	return nil
}

func runIOWrite(cmd *cobra.Command, args []string) error {
	id, err := parseLineID(args[0])
	if err != nil {
		return err
	}
	level, err := parseLevel(args[1])
	if err != nil {
		return err
	}
	var drive gpio.DriveMethod
	if ioDrive != "" {
		if drive, err = gpio.ParseDrive(ioDrive); err != nil {
			return err
		}
	}
	cmd.SilenceUsage = true

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	bc, err := connect(ctx, cmd)
	if err != nil {
		return err
	}
	defer bc.close(cmd)

	line := bc.session.IO(id)
	if drive != "" {
		if err := line.Drive(drive); err != nil {
			return err
		}
	}
	if err := applyPull(line); err != nil {
		return err
	}
	if err := line.Output(level); err != nil {
		return fmt.Errorf("failed to write %s: %w", line.Address(), err)
	}
	if err := bc.pump(); err != nil {
		bc.logger.WithError(err).Debug("Dry-run delivery reported errors")
	}
	bc.drainAlerts()
	bc.printer.result(line.Address(), level)
	return nil
}

func runIOWatch(cmd *cobra.Command, args []string) error {
	id, err := parseLineID(args[0])
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt)
	defer stop()

	bc, err := connect(ctx, cmd)
	if err != nil {
		return err
	}
	defer bc.close(cmd)

	line := bc.session.IO(id)
	if err := applyPull(line); err != nil {
		return err
	}

	changes := make(chan peripheral.Event, 16)
	sub := line.Subscribe(peripheral.EventChange, func(ev peripheral.Event) {
		select {
		case changes <- ev:
		default:
			bc.logger.WithField("address", ev.Address).Warn("Change dropped, output too slow")
		}
	})
	defer line.Off(sub)

	if _, err := line.Input(nil); err != nil {
		return fmt.Errorf("failed to watch %s: %w", line.Address(), err)
	}
	if err := bc.pump(); err != nil {
		bc.logger.WithError(err).Debug("Dry-run delivery reported errors")
	}

	alerts := bc.session.Alerts()
	seen := 0
	for {
		select {
		case ev := <-changes:
			bc.printer.event(ev)
			seen++
			if ioCount > 0 && seen >= ioCount {
				return nil
			}
		case a, ok := <-alerts:
			if !ok {
				alerts = nil
				continue
			}
			bc.printer.alert(a)
		case <-ctx.Done():
			return ctx.Err()
		case <-bc.session.Done():
			return peripheral.ErrConnectionClosed
		}
	}
}
