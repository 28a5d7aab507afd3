package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/boardlink/internal/simboard"
	"github.com/srg/boardlink/internal/wire"
	"github.com/srg/boardlink/pkg/config"
	"github.com/srg/boardlink/pkg/peripheral"
	"github.com/srg/boardlink/pkg/session"
	"github.com/srg/boardlink/pkg/transport"
)

// openPort opens the board port; tests replace it with an in-memory pipe
var openPort = func(path string) (io.ReadWriteCloser, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open port %s: %w", path, err)
	}
	return f, nil
}

// boardConn is one command invocation's connection to a board
type boardConn struct {
	cfg      *config.Config
	logger   *logrus.Logger
	session  *session.Session
	stream   *transport.Stream
	recorder *transport.Recorder
	printer  *printer
}

// connect opens the configured port (or the dry-run recorder) and starts a session
func connect(ctx context.Context, cmd *cobra.Command) (*boardConn, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	codec, err := wire.Lookup(cfg.Codec)
	if err != nil {
		return nil, err
	}
	logger := configureLogger(cfg, cmd)
	opts := &session.Options{Logger: logger, AlertBuffer: cfg.AlertBuffer}

	bc := &boardConn{
		cfg:     cfg,
		logger:  logger,
		printer: newPrinter(cmd.OutOrStdout(), cfg.OutputFormat),
	}

	if dryRun, _ := cmd.Flags().GetBool("dry-run"); dryRun {
		board := simboard.New(logger)
		bc.recorder = transport.NewRecorder(0, func(c peripheral.Command) []transport.Reply {
			reply, ok := board.Handle(string(c.Address), c.Payload)
			if !ok {
				return nil
			}
			return []transport.Reply{{Address: c.Address, Payload: reply}}
		}, logger)
		bc.session = session.New(bc.recorder, opts)
		return bc, nil
	}

	if cfg.Port == "" {
		return nil, ErrNoPort
	}
	rwc, err := openPort(cfg.Port)
	if err != nil {
		return nil, err
	}
	bc.stream = transport.NewStream(cfg.Port, rwc, codec, logger)
	bc.session = session.New(bc.stream, opts)
	bc.stream.Start(ctx, bc.session.DeliverFrame)

	logger.WithFields(logrus.Fields{
		"port":    cfg.Port,
		"codec":   codec.Name(),
		"session": bc.session.ID(),
	}).Debug("Connected to board")
	return bc, nil
}

// pump delivers replies queued by the dry-run recorder; it is a no-op for real ports
func (bc *boardConn) pump() error {
	if bc.recorder == nil {
		return nil
	}
	return bc.recorder.Flush(bc.session.Deliver)
}

// replyContext bounds a wait by the configured reply timeout
func (bc *boardConn) replyContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, bc.cfg.ReplyTimeout)
}

// close tears the session down and, in dry-run mode, lists the commands that would have been sent
func (bc *boardConn) close(cmd *cobra.Command) {
	_ = bc.session.Close()
	if bc.stream != nil {
		_ = bc.stream.Close()
	}
	if bc.recorder != nil {
		for _, c := range bc.recorder.Commands() {
			fmt.Fprintf(cmd.ErrOrStderr(), "dry-run: %s <- %s\n", c.Address, formatPayload(c.Payload))
		}
	}
}

// drainAlerts prints the warnings and errors the board reported during the command
func (bc *boardConn) drainAlerts() {
	for {
		select {
		case a, ok := <-bc.session.Alerts():
			if !ok {
				return
			}
			bc.printer.alert(a)
		default:
			return
		}
	}
}
