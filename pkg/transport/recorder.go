package transport

import (
	"errors"
	"fmt"
	"sync"

	"github.com/hedzr/go-ringbuf/v2/mpmc"
	"github.com/sirupsen/logrus"
	"github.com/srg/boardlink/pkg/peripheral"
)

// DefaultRecorderSize is the number of commands a Recorder keeps
const DefaultRecorderSize = 256

// Reply is a notification a Responder wants delivered for a recorded command
type Reply struct {
	Address peripheral.Address
	Payload any
}

// Responder answers recorded commands. It runs inside Send and must not call back into the session.
type Responder func(cmd peripheral.Command) []Reply

// Recorder is a Sender that keeps the most recent commands instead of writing them anywhere.
// Replies produced by the responder are queued and only delivered by Flush, so a
// dispatcher never sees a reply while its own Request is still in progress.
type Recorder struct {
	log       mpmc.RichOverlappedRingBuffer[peripheral.Command]
	respond   Responder
	logger    *logrus.Logger
	mu        sync.Mutex
	pending   []Reply
	sent      int64
	overwrote int64
	failNext  error
}

// NewRecorder creates a recorder keeping up to size commands
func NewRecorder(size uint32, respond Responder, logger *logrus.Logger) *Recorder {
	if size == 0 {
		size = DefaultRecorderSize
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Recorder{
		log:     mpmc.NewOverlappedRingBuffer[peripheral.Command](size),
		respond: respond,
		logger:  logger,
	}
}

// FailNext makes the next Send return err without recording the command
func (r *Recorder) FailNext(err error) {
	r.mu.Lock()
	r.failNext = err
	r.mu.Unlock()
}

// Send implements peripheral.Sender
func (r *Recorder) Send(cmd peripheral.Command) error {
	r.mu.Lock()
	if err := r.failNext; err != nil {
		r.failNext = nil
		r.mu.Unlock()
		return err
	}
	r.mu.Unlock()

	overwrites, err := r.log.EnqueueM(cmd)
	if err != nil {
		return fmt.Errorf("failed to record command for %s: %w", cmd.Address, err)
	}

	r.mu.Lock()
	r.sent++
	r.overwrote += int64(overwrites)
	if r.respond != nil {
		r.pending = append(r.pending, r.respond(cmd)...)
	}
	r.mu.Unlock()

	r.logger.WithFields(logrus.Fields{
		"address": cmd.Address,
		"payload": cmd.Payload,
	}).Debug("Command recorded")
	return nil
}

// Commands drains and returns the recorded commands, oldest first
func (r *Recorder) Commands() []peripheral.Command {
	var out []peripheral.Command
	for !r.log.IsEmpty() {
		cmd, err := r.log.Dequeue()
		if err != nil {
			break
		}
		out = append(out, cmd)
	}
	return out
}

// Sent returns how many commands were recorded and how many of them were overwritten
func (r *Recorder) Sent() (sent, overwritten int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sent, r.overwrote
}

// Flush delivers every queued reply in order and returns the joined delivery errors
func (r *Recorder) Flush(deliver func(addr peripheral.Address, raw any) error) error {
	r.mu.Lock()
	replies := r.pending
	r.pending = nil
	r.mu.Unlock()

	var errs []error
	for _, reply := range replies {
		if err := deliver(reply.Address, reply.Payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
