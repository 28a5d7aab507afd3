package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/srg/boardlink/pkg/attribute"
	"github.com/srg/boardlink/pkg/peripheral"
	"github.com/srg/boardlink/pkg/spi"
)

// Command-level errors
var (
	// ErrNoPort is returned when neither --port, the config file nor --dry-run selects a board
	ErrNoPort = errors.New("no board port configured (use --port, a config file or --dry-run)")
)

// formatUserError turns library errors into one-line messages for the terminal
func formatUserError(err error) string {
	var argErr *peripheral.ArgumentError
	var remoteErr *peripheral.RemoteError
	var writeErr *attribute.WriteError

	switch {
	case errors.As(err, &argErr):
		return fmt.Sprintf("invalid %s: %s", argErr.Param, argErr.Msg)
	case errors.As(err, &remoteErr):
		return fmt.Sprintf("board reported %s", remoteErr.Message)
	case errors.As(err, &writeErr):
		return fmt.Sprintf("board rejected the write (%s)", writeErr.Result)
	case errors.Is(err, spi.ErrNotStarted):
		return "SPI bus is not started"
	case errors.Is(err, peripheral.ErrConnectionClosed):
		return "connection to the board was closed"
	case errors.Is(err, context.DeadlineExceeded):
		return "timed out waiting for the board to reply"
	}
	return err.Error()
}
