package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/smallnest/ringbuffer"
	"github.com/srg/boardlink/internal/wire"
	"github.com/srg/boardlink/pkg/peripheral"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type StreamTestSuite struct {
	suite.Suite
	codec  wire.Codec
	host   *End
	board  *End
	stream *Stream
	frames chan map[string]any
	ctx    context.Context
	cancel context.CancelFunc
}

func (s *StreamTestSuite) SetupTest() {
	if s.codec == nil {
		s.codec = wire.JSON
	}
	s.ctx, s.cancel = context.WithTimeout(context.Background(), 2*time.Second)
	s.host, s.board = Pipe(0)
	s.stream = NewStream("test", s.host, s.codec, nil)
	s.frames = make(chan map[string]any, 8)
	s.stream.Start(s.ctx, func(frame map[string]any) error {
		s.frames <- frame
		return nil
	})
}

func (s *StreamTestSuite) TearDownTest() {
	_ = s.stream.Close()
	_ = s.board.Close()
	s.cancel()
}

func (s *StreamTestSuite) next() map[string]any {
	select {
	case f := <-s.frames:
		return f
	case <-s.ctx.Done():
		s.FailNow("frame MUST be delivered")
		return nil
	}
}

func (s *StreamTestSuite) TestSendEncodesFrame() {
	s.Require().NoError(s.stream.Send(peripheral.Command{
		Address: "spi0",
		Payload: map[string]any{"data": []int{1, 2}, "read": true},
	}))

	frame, err := s.codec.NewDecoder(s.board).Decode()
	s.Require().NoError(err)
	s.Require().Contains(frame, "spi0")
	payload := frame["spi0"].(map[string]any)
	s.Equal(true, payload["read"])

	data, err := peripheral.ToBytes(payload["data"])
	s.Require().NoError(err)
	s.Equal([]byte{1, 2}, data)
}

func (s *StreamTestSuite) TestReadLoopDeliversInOrder() {
	enc := s.codec.NewEncoder(s.board)
	s.Require().NoError(enc.Encode(wire.Frame{"io0": true}))
	s.Require().NoError(enc.Encode(wire.Frame{"io1": false, "spi0": map[string]any{"data": []int{3}}}))

	first := s.next()
	s.Equal(map[string]any{"io0": true}, first)
	second := s.next()
	s.Equal(false, second["io1"])
	s.Contains(second, "spi0", "multi-peripheral frames MUST arrive whole")
}

func (s *StreamTestSuite) TestPeerCloseEndsReadLoop() {
	s.Require().NoError(s.board.Close())
	s.NoError(s.stream.Wait(), "peer close MUST end the loop without error")
}

func (s *StreamTestSuite) TestSendAfterClose() {
	s.Require().NoError(s.stream.Close())
	s.Require().NoError(s.stream.Close(), "Close MUST be idempotent")

	err := s.stream.Send(peripheral.Command{Address: "io0", Payload: true})
	s.ErrorIs(err, ErrStreamClosed)
	s.NoError(s.stream.Wait())
}

func (s *StreamTestSuite) TestContextCancelClosesStream() {
	s.cancel()
	s.NoError(s.stream.Wait())
	s.Eventually(func() bool {
		return errors.Is(s.stream.Send(peripheral.Command{Address: "io0"}), ErrStreamClosed)
	}, time.Second, time.Millisecond)
}

func TestStreamTestSuite(t *testing.T) {
	suite.Run(t, new(StreamTestSuite))
}

func TestCBORStreamTestSuite(t *testing.T) {
	suite.Run(t, &StreamTestSuite{codec: wire.CBOR})
}

func TestStreamDecodeErrorStopsLoop(t *testing.T) {
	host, board := Pipe(0)
	stream := NewStream("garbage", host, wire.JSON, nil)
	stream.Start(context.Background(), func(map[string]any) error { return nil })
	defer stream.Close()

	_, err := board.Write([]byte("{not json}\n"))
	require.NoError(t, err)
	assert.Error(t, stream.Wait(), "malformed input MUST stop the loop with its decode error")
}

func TestStreamDeliverErrorsAreNotFatal(t *testing.T) {
	host, board := Pipe(0)
	stream := NewStream("errs", host, nil, nil)

	var mu sync.Mutex
	calls := 0
	stream.Start(context.Background(), func(map[string]any) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		return errors.New("unknown peripheral")
	})

	enc := wire.JSON.NewEncoder(board)
	require.NoError(t, enc.Encode(wire.Frame{"x": 1}))
	require.NoError(t, enc.Encode(wire.Frame{"y": 2}))
	require.NoError(t, board.Close())
	require.NoError(t, stream.Wait())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, calls, "a failing delivery MUST NOT stop the loop")
}

func TestPipeClose(t *testing.T) {
	host, board := Pipe(16)

	_, err := host.Write([]byte("abc"))
	require.NoError(t, err)
	require.NoError(t, host.Close())

	buf := make([]byte, 3)
	_, err = io.ReadFull(board, buf)
	require.NoError(t, err, "bytes written before close MUST stay readable")
	assert.Equal(t, "abc", string(buf))

	_, err = board.Read(buf)
	assert.Error(t, err, "reads past the closed writer MUST fail")

	_, err = host.Read(buf)
	assert.ErrorIs(t, err, io.ErrClosedPipe)
}

func TestIsEOFTreatsClosedPipeStatesAsCleanStop(t *testing.T) {
	for _, err := range []error{
		io.EOF,
		io.ErrUnexpectedEOF,
		io.ErrClosedPipe,
		ringbuffer.ErrWriteOnClosed,
		ringbuffer.ErrReaderClosed,
		fmt.Errorf("read: %w", ringbuffer.ErrWriteOnClosed),
	} {
		assert.True(t, isEOF(err), "%v MUST end the read loop cleanly", err)
	}
	assert.False(t, isEOF(errors.New("garbage")), "other errors MUST NOT count as a clean stop")
}
