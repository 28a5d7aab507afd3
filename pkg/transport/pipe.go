package transport

import (
	"io"
	"sync"

	"github.com/smallnest/ringbuffer"
)

// DefaultPipeSize is the per-direction buffer size used when Pipe is given size <= 0
const DefaultPipeSize = 64 * 1024

// End is one side of an in-memory duplex pipe
type End struct {
	in        *ringbuffer.RingBuffer
	out       *ringbuffer.RingBuffer
	closeOnce sync.Once
}

// Pipe returns two connected ends: what host writes board reads, and the other way round.
// Both directions are bounded blocking ring buffers, so a slow reader applies back-pressure.
func Pipe(size int) (host *End, board *End) {
	if size <= 0 {
		size = DefaultPipeSize
	}
	toBoard := ringbuffer.New(size).SetBlocking(true)
	toHost := ringbuffer.New(size).SetBlocking(true)
	return &End{in: toHost, out: toBoard}, &End{in: toBoard, out: toHost}
}

func (e *End) Read(p []byte) (int, error) {
	return e.in.Read(p)
}

func (e *End) Write(p []byte) (int, error) {
	return e.out.Write(p)
}

// Close ends both directions: the peer reads io.EOF once it drained what was written,
// and pending reads on this end fail with io.ErrClosedPipe.
func (e *End) Close() error {
	e.closeOnce.Do(func() {
		e.out.CloseWriter()
		e.in.CloseWithError(io.ErrClosedPipe)
	})
	return nil
}
