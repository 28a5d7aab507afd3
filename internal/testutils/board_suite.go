package testutils

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/boardlink/internal/simboard"
	"github.com/srg/boardlink/internal/wire"
	"github.com/srg/boardlink/pkg/session"
	"github.com/srg/boardlink/pkg/transport"
	"github.com/stretchr/testify/suite"
)

// BoardSuite wires a Session to a simulated board over an in-memory pipe.
//
//	type IOSuite struct {
//	    testutils.BoardSuite
//	}
//
//	func (s *IOSuite) TestOutput() {
//	    s.Require().NoError(s.Session.IO(0).Output(true))
//	    s.Eventually(func() bool { return s.Board.Level(0) }, time.Second, time.Millisecond)
//	}
//
// Set Codec before SetupTest to run over CBOR instead of JSON.
type BoardSuite struct {
	suite.Suite

	Logger      *logrus.Logger
	Codec       wire.Codec
	TestTimeout time.Duration

	Board   *simboard.Board
	Session *session.Session
	Stream  *transport.Stream

	ctx       context.Context
	cancel    context.CancelFunc
	boardDone chan error
}

// SetupTest starts a fresh board, stream and session for every test
func (s *BoardSuite) SetupTest() {
	if s.Logger == nil {
		s.Logger = logrus.New()
		s.Logger.SetLevel(logrus.DebugLevel)
	}
	if s.Codec == nil {
		s.Codec = wire.JSON
	}
	if s.TestTimeout == 0 {
		s.TestTimeout = 2 * time.Second
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	host, board := transport.Pipe(0)

	s.Board = simboard.New(s.Logger)
	s.boardDone = make(chan error, 1)
	s.Board.Attach(board, s.Codec)
	go func() {
		s.boardDone <- s.Board.Serve(s.ctx, board, s.Codec)
	}()

	s.Stream = transport.NewStream("pipe", host, s.Codec, s.Logger)
	s.Session = session.New(s.Stream, &session.Options{Logger: s.Logger})
	s.Stream.Start(s.ctx, s.Session.DeliverFrame)
}

// TearDownTest closes the session and stops the board
func (s *BoardSuite) TearDownTest() {
	s.Require().NoError(s.Session.Close(), "session close MUST succeed")
	_ = s.Stream.Close()
	s.cancel()

	select {
	case err := <-s.boardDone:
		s.NoError(err, "board MUST stop cleanly")
	case <-time.After(s.TestTimeout):
		s.Fail("board MUST stop after teardown")
	}
}

// Ctx returns a context bounded by TestTimeout
func (s *BoardSuite) Ctx() context.Context {
	ctx, cancel := context.WithTimeout(s.ctx, s.TestTimeout)
	s.T().Cleanup(cancel)
	return ctx
}
