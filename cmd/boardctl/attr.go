package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/srg/boardlink/pkg/attribute"
)

// attrCmd groups the BLE local attribute commands
var attrCmd = &cobra.Command{
	Use:   "attr",
	Short: "BLE attributes hosted by the board",
}

var attrWriteCmd = &cobra.Command{
	Use:   "write <uuid> <data>",
	Short: "Write the value of a local attribute",
	Long: `Writes the attribute value and waits for the board to confirm it.

Examples:
  boardctl attr write 2a19 "hello"
  boardctl attr write 6e400002-b5a3-f393-e0a9-e50e24dcca9e 0102 --hex`,
	Args: cobra.ExactArgs(2),
	RunE: runAttrWrite,
}

var attrReadCmd = &cobra.Command{
	Use:   "read <uuid>",
	Short: "Read the value of a local attribute",
	Args:  cobra.ExactArgs(1),
	RunE:  runAttrRead,
}

var attrHex bool

func init() {
	attrCmd.AddCommand(attrWriteCmd, attrReadCmd)
	attrWriteCmd.Flags().BoolVar(&attrHex, "hex", false, "Parse input as hex string (e.g., 'FF01'); raw bytes by default")
}

func runAttrWrite(cmd *cobra.Command, args []string) error {
	data := []byte(args[1])
	if attrHex {
		var err error
		if data, err = parseHex(args[1]); err != nil {
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

	attr, err := bc.session.Attribute(args[0])
	if err != nil {
		return err
	}
	f, err := attr.WriteAsync(data)
	if err != nil {
		return err
	}
	if err := bc.pump(); err != nil {
		bc.logger.WithError(err).Debug("Dry-run delivery reported errors")
	}

	waitCtx, cancel := bc.replyContext(ctx)
	defer cancel()
	resp, err := f.Wait(waitCtx)
	bc.drainAlerts()
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", attr.Address(), err)
	}
	if resp.Result != attribute.ResultSuccess {
		return &attribute.WriteError{Address: attr.Address(), Result: resp.Result}
	}
	bc.printer.result(attr.Address(), resp.Result)
	return nil
}

func runAttrRead(cmd *cobra.Command, args []string) error {
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

	attr, err := bc.session.Attribute(args[0])
	if err != nil {
		return err
	}
	f, err := attr.ReadAsync()
	if err != nil {
		return err
	}
	if err := bc.pump(); err != nil {
		bc.logger.WithError(err).Debug("Dry-run delivery reported errors")
	}

	waitCtx, cancel := bc.replyContext(ctx)
	defer cancel()
	resp, err := f.Wait(waitCtx)
	bc.drainAlerts()
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", attr.Address(), err)
	}
	bc.printer.result(attr.Address(), resp.Data)
	return nil
}
