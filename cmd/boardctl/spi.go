package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/srg/boardlink/pkg/gpio"
	"github.com/srg/boardlink/pkg/peripheral"
	"github.com/srg/boardlink/pkg/spi"
)

// spiCmd groups the SPI commands
var spiCmd = &cobra.Command{
	Use:   "spi",
	Short: "SPI bus in master mode",
}

var spiWriteCmd = &cobra.Command{
	Use:   "write <bus> <hex-data>",
	Short: "Start the bus and run one transfer",
	Long: `Starts the bus in master mode and writes the given bytes, printing the bytes read back.

Examples:
  boardctl spi write 0 9f000000 --frequency 1000000 --clk 0 --mosi 1 --miso 2
  boardctl spi write 0 "01 02 03" --no-read`,
	Args: cobra.ExactArgs(2),
	RunE: runSPIWrite,
}

var (
	spiFrequency int
	spiClk       int
	spiMosi      int
	spiMiso      int
	spiDrive     string
	spiPull      string
	spiNoRead    bool
)

func init() {
	spiCmd.AddCommand(spiWriteCmd)

	spiWriteCmd.Flags().IntVar(&spiFrequency, "frequency", 1000000, "Clock frequency in Hz")
	spiWriteCmd.Flags().IntVar(&spiClk, "clk", -1, "Clock pin; default -1, keep the board's assignment")
	spiWriteCmd.Flags().IntVar(&spiMosi, "mosi", -1, "MOSI pin; default -1, keep the board's assignment")
	spiWriteCmd.Flags().IntVar(&spiMiso, "miso", -1, "MISO pin; default -1, keep the board's assignment")
	spiWriteCmd.Flags().StringVar(&spiDrive, "drive", "", "Output drive applied to the pins (5v, 3v, open-drain)")
	spiWriteCmd.Flags().StringVar(&spiPull, "pull", "", "Pull resistor applied to the pins (5v, 3v, 0v, float)")
	spiWriteCmd.Flags().BoolVar(&spiNoRead, "no-read", false, "Write only, do not wait for the bytes read back")
}

// parseHex accepts "0a0b", "0a 0b", "0a:0b" and "0x0a0b"
func parseHex(s string) ([]byte, error) {
	cleaned := strings.NewReplacer(" ", "", ":", "", "-", "", "0x", "").Replace(s)
	data, err := hex.DecodeString(cleaned)
	if err != nil {
		return nil, peripheral.NewArgumentError("data", s, "invalid hex data: %v", err)
	}
	return data, nil
}

func optionalPin(v int) *int {
	if v < 0 {
		return nil
	}
	return spi.Pin(v)
}

func spiParams() (spi.Params, error) {
	p := spi.Params{
		Mode:      spi.ModeMaster,
		Frequency: spiFrequency,
		Clk:       optionalPin(spiClk),
		Mosi:      optionalPin(spiMosi),
		Miso:      optionalPin(spiMiso),
	}
	if spiDrive != "" {
		drive, err := gpio.ParseDrive(spiDrive)
		if err != nil {
			return p, err
		}
		p.Drive = drive
	}
	if spiPull != "" {
		pull, err := gpio.ParsePull(spiPull)
		if err != nil {
			return p, err
		}
		p.Pull = pull
	}
	return p, nil
}

func runSPIWrite(cmd *cobra.Command, args []string) error {
	id, err := parseLineID(args[0])
	if err != nil {
		return err
	}
	data, err := parseHex(args[1])
	if err != nil {
		return err
	}
	params, err := spiParams()
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

	bus := bc.session.SPI(id)
	if err := bus.Start(params); err != nil {
		return fmt.Errorf("failed to start %s: %w", bus.Address(), err)
	}

	if spiNoRead {
		if err := bus.Write(data); err != nil {
			return err
		}
		if err := bc.pump(); err != nil {
			bc.logger.WithError(err).Debug("Dry-run delivery reported errors")
		}
		bc.drainAlerts()
		bc.printer.result(bus.Address(), data)
		return nil
	}

	f, err := bus.WriteAsync(data)
	if err != nil {
		return err
	}
	if err := bc.pump(); err != nil {
		bc.logger.WithError(err).Debug("Dry-run delivery reported errors")
	}

	waitCtx, cancel := bc.replyContext(ctx)
	defer cancel()
	read, err := f.Wait(waitCtx)
	bc.drainAlerts()
	if err != nil {
		return fmt.Errorf("transfer on %s failed: %w", bus.Address(), err)
	}
	bc.printer.result(bus.Address(), read)
	return nil
}
