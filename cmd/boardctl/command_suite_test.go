package main

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/srg/boardlink/internal/simboard"
	"github.com/srg/boardlink/internal/wire"
	"github.com/srg/boardlink/pkg/transport"
	"github.com/stretchr/testify/suite"
)

// CommandTestSuite runs boardctl commands against a simulated board behind openPort.
// Every opened port gets its own pipe; the board state is shared across them.
type CommandTestSuite struct {
	suite.Suite

	Board  *simboard.Board
	Codec  wire.Codec
	Silent bool // open ports nobody answers on

	originalOpenPort func(string) (io.ReadWriteCloser, error)
	ctx              context.Context
	cancel           context.CancelFunc
	serving          sync.WaitGroup
	opened           []string
}

func (s *CommandTestSuite) SetupSuite() {
	s.originalOpenPort = openPort
}

func (s *CommandTestSuite) TearDownSuite() {
	openPort = s.originalOpenPort
}

func (s *CommandTestSuite) SetupTest() {
	resetFlags(rootCmd)

	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)
	s.Board = simboard.New(logger)
	s.Codec = wire.JSON
	s.Silent = false
	s.opened = nil
	s.ctx, s.cancel = context.WithCancel(context.Background())

	openPort = func(path string) (io.ReadWriteCloser, error) {
		s.opened = append(s.opened, path)
		host, board := transport.Pipe(0)
		if s.Silent {
			return host, nil
		}
		s.serving.Add(1)
		go func() {
			defer s.serving.Done()
			_ = s.Board.Serve(s.ctx, board, s.Codec)
		}()
		return host, nil
	}
}

func (s *CommandTestSuite) TearDownTest() {
	s.cancel()
	done := make(chan struct{})
	go func() {
		s.serving.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		s.Fail("simulated board MUST stop after the test")
	}
}

// ExecuteCommand runs boardctl with args, returns stdout, stderr and the error.
func (s *CommandTestSuite) ExecuteCommand(args ...string) (string, string, error) {
	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)
	err := rootCmd.Execute()
	return stdout.String(), stderr.String(), err
}

// resetFlags restores every flag of cmd and its subcommands to its default value
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}
