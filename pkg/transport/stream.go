// Package transport moves commands and notifications between a Session and a board.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/smallnest/ringbuffer"
	"github.com/srg/boardlink/internal/groutine"
	"github.com/srg/boardlink/internal/wire"
	"github.com/srg/boardlink/pkg/peripheral"
)

// ErrStreamClosed is returned by Send after Close
var ErrStreamClosed = errors.New("stream closed")

// DeliverFunc receives every decoded inbound frame, in arrival order
type DeliverFunc func(frame map[string]any) error

// Stream sends commands and reads notifications over one ordered byte stream
type Stream struct {
	name   string
	rwc    io.ReadWriteCloser
	codec  wire.Codec
	logger *logrus.Logger

	writeMu sync.Mutex
	enc     wire.Encoder

	closeOnce sync.Once
	closed    chan struct{}
	readDone  <-chan struct{}
	readErr   error
}

// NewStream wraps rwc. name identifies the stream in logs (e.g. the port path).
func NewStream(name string, rwc io.ReadWriteCloser, codec wire.Codec, logger *logrus.Logger) *Stream {
	if logger == nil {
		logger = logrus.New()
	}
	if codec == nil {
		codec = wire.JSON
	}
	return &Stream{
		name:   name,
		rwc:    rwc,
		codec:  codec,
		logger: logger,
		enc:    codec.NewEncoder(rwc),
		closed: make(chan struct{}),
	}
}

// Send implements peripheral.Sender by writing a single-entry frame
func (s *Stream) Send(cmd peripheral.Command) error {
	select {
	case <-s.closed:
		return fmt.Errorf("%w: %s", ErrStreamClosed, s.name)
	default:
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.enc.Encode(wire.Frame{string(cmd.Address): cmd.Payload}); err != nil {
		return fmt.Errorf("failed to encode %s frame for %s: %w", s.codec.Name(), cmd.Address, err)
	}
	return nil
}

// Start runs the read loop in a named goroutine. deliver errors are logged, not fatal.
// The loop ends when ctx is done, the stream is closed or the peer closes its side.
func (s *Stream) Start(ctx context.Context, deliver DeliverFunc) {
	s.readDone = groutine.Go(ctx, "transport-read:"+s.name, func(ctx context.Context) {
		s.readLoop(ctx, deliver)
	})
	groutine.Go(ctx, "transport-watch:"+s.name, func(ctx context.Context) {
		select {
		case <-ctx.Done():
			_ = s.Close()
		case <-s.closed:
		}
	})
}

func (s *Stream) readLoop(ctx context.Context, deliver DeliverFunc) {
	dec := s.codec.NewDecoder(s.rwc)
	for {
		frame, err := dec.Decode()
		if err != nil {
			if !isEOF(err) {
				select {
				case <-s.closed:
				default:
					s.readErr = err
					s.logger.WithFields(logrus.Fields{
						"stream": s.name,
						"error":  err,
					}).Error("Failed to decode frame, stopping read loop")
				}
			}
			s.logger.WithFields(logrus.Fields{
				"stream":    s.name,
				"goroutine": groutine.GetName(ctx),
			}).Debug("Read loop stopped")
			return
		}

		if err := deliver(frame); err != nil {
			s.logger.WithFields(logrus.Fields{
				"stream": s.name,
				"error":  err,
			}).Debug("Frame delivered with errors")
		}
	}
}

func isEOF(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, ringbuffer.ErrWriteOnClosed) ||
		errors.Is(err, ringbuffer.ErrReaderClosed)
}

// Wait blocks until the read loop has stopped and returns its decode error, if any
func (s *Stream) Wait() error {
	if s.readDone == nil {
		return nil
	}
	<-s.readDone
	return s.readErr
}

// Close closes the underlying stream; the read loop ends once the reader unblocks
func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		err = s.rwc.Close()
	})
	return err
}
