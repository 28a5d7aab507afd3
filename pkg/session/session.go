// Package session ties the peripherals of one board connection together: it owns the
// peripheral registry, routes inbound notifications to the right dispatcher, collects
// device alerts and tears every peripheral down when the connection ends.
package session

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/cornelk/hashmap"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/srg/boardlink/internal/ringchan"
	"github.com/srg/boardlink/pkg/attribute"
	"github.com/srg/boardlink/pkg/gpio"
	"github.com/srg/boardlink/pkg/peripheral"
	"github.com/srg/boardlink/pkg/spi"
)

// DefaultAlertBuffer is the number of alerts kept for Alerts() consumers
const DefaultAlertBuffer = 64

// UnknownPeripheralError reports a notification for an address nothing is registered at
type UnknownPeripheralError struct {
	Address peripheral.Address
}

func (e *UnknownPeripheralError) Error() string {
	return fmt.Sprintf("unknown peripheral %q", e.Address)
}

// Options configures a Session
type Options struct {
	Logger      *logrus.Logger
	AlertBuffer int
}

// Session is the lifetime of one active connection to a board
type Session struct {
	id          string
	transport   peripheral.Sender
	logger      *logrus.Logger
	peripherals *hashmap.Map[peripheral.Address, peripheral.Peripheral]
	hub         *peripheral.EventHub
	alerts      *ringchan.RingChannel[peripheral.Alert]

	closeMu sync.RWMutex
	closed  bool
	done    chan struct{}
}

// New creates a session sending commands through transport
func New(transport peripheral.Sender, opts *Options) *Session {
	if opts == nil {
		opts = &Options{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
	}
	alertBuffer := opts.AlertBuffer
	if alertBuffer <= 0 {
		alertBuffer = DefaultAlertBuffer
	}

	s := &Session{
		id:          uuid.NewString(),
		transport:   transport,
		logger:      logger,
		peripherals: hashmap.New[peripheral.Address, peripheral.Peripheral](),
		hub:         peripheral.NewEventHub(logger),
		alerts:      ringchan.New[peripheral.Alert](alertBuffer),
		done:        make(chan struct{}),
	}
	s.logger.WithField("session", s.id).Debug("Session opened")
	return s
}

// ID returns the session identifier used in logs
func (s *Session) ID() string {
	return s.id
}

// Send implements peripheral.Sender for the facades owned by this session.
// Commands issued after Close fail with ErrConnectionClosed.
func (s *Session) Send(cmd peripheral.Command) error {
	s.closeMu.RLock()
	defer s.closeMu.RUnlock()
	if s.closed {
		return fmt.Errorf("%w: %s", peripheral.ErrConnectionClosed, cmd.Address)
	}
	if err := s.transport.Send(cmd); err != nil {
		return fmt.Errorf("failed to send command to %s: %w", cmd.Address, err)
	}
	s.logger.WithFields(logrus.Fields{
		"session": s.id,
		"address": cmd.Address,
	}).Trace("Command sent")
	return nil
}

// IsClosed reports whether Close has been called
func (s *Session) IsClosed() bool {
	s.closeMu.RLock()
	defer s.closeMu.RUnlock()
	return s.closed
}

// Done is closed when the session is closed
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// IO returns the facade for io<id>, creating it on first use
func (s *Session) IO(id int) *gpio.IO {
	addr := gpio.Address(id)
	if p, ok := s.peripherals.Get(addr); ok {
		return p.(*gpio.IO)
	}
	p, _ := s.peripherals.GetOrInsert(addr, gpio.New(id, s, s, s.logger))
	return p.(*gpio.IO)
}

// SPI returns the facade for spi<id>, creating it on first use
func (s *Session) SPI(id int) *spi.SPI {
	addr := spi.Address(id)
	if p, ok := s.peripherals.Get(addr); ok {
		return p.(*spi.SPI)
	}
	p, _ := s.peripherals.GetOrInsert(addr, spi.New(id, s, s, s, s.logger))
	return p.(*spi.SPI)
}

// Attribute returns the facade for the local attribute with the given UUID, creating it on first use
func (s *Session) Attribute(uuidStr string) (*attribute.Attribute, error) {
	u, err := attribute.Parse(uuidStr)
	if err != nil {
		return nil, err
	}
	addr := attribute.Address(u)
	if p, ok := s.peripherals.Get(addr); ok {
		return p.(*attribute.Attribute), nil
	}
	p, _ := s.peripherals.GetOrInsert(addr, attribute.New(u, s, s, s.logger))
	return p.(*attribute.Attribute), nil
}

// Peripheral returns the registered peripheral at addr
func (s *Session) Peripheral(addr peripheral.Address) (peripheral.Peripheral, bool) {
	return s.peripherals.Get(addr)
}

// Peripherals returns every registered peripheral sorted by address
func (s *Session) Peripherals() []peripheral.Peripheral {
	out := make([]peripheral.Peripheral, 0, s.peripherals.Len())
	s.peripherals.Range(func(_ peripheral.Address, p peripheral.Peripheral) bool {
		out = append(out, p)
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		return out[i].Address() < out[j].Address()
	})
	return out
}

// resolve finds the peripheral for addr; io<N> and spi<N> are created on demand
func (s *Session) resolve(addr peripheral.Address) (peripheral.Peripheral, bool) {
	if p, ok := s.peripherals.Get(addr); ok {
		return p, true
	}
	name := string(addr)
	if rest, ok := strings.CutPrefix(name, "spi"); ok {
		if id, err := strconv.Atoi(rest); err == nil && id >= 0 {
			return s.SPI(id), true
		}
	}
	if rest, ok := strings.CutPrefix(name, "io"); ok {
		if id, err := strconv.Atoi(rest); err == nil && id >= 0 {
			return s.IO(id), true
		}
	}
	return nil, false
}

// Deliver is the inbound entry point: it classifies a decoded payload addressed to
// one peripheral and hands the notifications to its dispatcher.
func (s *Session) Deliver(addr peripheral.Address, raw any) error {
	if s.IsClosed() {
		return fmt.Errorf("%w: dropped notification for %s", peripheral.ErrConnectionClosed, addr)
	}

	p, ok := s.resolve(addr)
	if !ok {
		err := &UnknownPeripheralError{Address: addr}
		s.logger.WithFields(logrus.Fields{
			"session": s.id,
			"address": addr,
		}).Debug("Notification for unknown peripheral ignored")
		return err
	}

	notes, err := p.Classifier().Classify(raw)
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"session": s.id,
			"address": addr,
			"error":   err,
		}).Warn("Failed to classify notification")
		return fmt.Errorf("%s: %w", addr, err)
	}

	p.Dispatch(notes)
	return nil
}

// DeliverFrame delivers every entry of a multi-peripheral frame, in address order
func (s *Session) DeliverFrame(frame map[string]any) error {
	keys := make([]string, 0, len(frame))
	for k := range frame {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var errs []error
	for _, k := range keys {
		if err := s.Deliver(peripheral.Address(k), frame[k]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Alert implements peripheral.AlertSink
func (s *Session) Alert(a peripheral.Alert) {
	entry := s.logger.WithFields(logrus.Fields{
		"session": s.id,
		"address": a.Address,
	})
	name := peripheral.EventWarning
	if a.Severity == peripheral.SeverityError {
		name = peripheral.EventError
		entry.Error(a.Message)
	} else {
		entry.Warn(a.Message)
	}

	if s.alerts.Push(a) {
		s.logger.WithField("session", s.id).Debug("Alert buffer full, oldest alert dropped")
	}

	_ = s.hub.Emit(name, peripheral.Event{
		Address: a.Address,
		Value:   a.Err(),
		Params: map[string]any{
			"alert":   string(a.Severity),
			"message": a.Message,
		},
	})
}

// Alerts returns the channel of device warnings and errors; it is closed by Close
func (s *Session) Alerts() <-chan peripheral.Alert {
	return s.alerts.C()
}

// On adds a session-wide listener for warning or error events
func (s *Session) On(event string, l peripheral.Listener) peripheral.SubscriptionID {
	return s.hub.On(event, l, peripheral.ModeAdd)
}

// Off removes a session-wide listener
func (s *Session) Off(id peripheral.SubscriptionID) bool {
	return s.hub.Off(id)
}

// Pending returns the number of waiters pending across all peripherals
func (s *Session) Pending() int {
	total := 0
	s.peripherals.Range(func(_ peripheral.Address, p peripheral.Peripheral) bool {
		if st, ok := p.(interface{ State() peripheral.State }); ok {
			total += st.State().Pending
		}
		return true
	})
	return total
}

// Close ends the session: every pending waiter on every peripheral is rejected with
// ErrConnectionClosed before Close returns, and later commands fail.
func (s *Session) Close() error {
	s.closeMu.Lock()
	if s.closed {
		s.closeMu.Unlock()
		return nil
	}
	s.closed = true
	close(s.done)
	s.closeMu.Unlock()

	rejected := 0
	for _, p := range s.Peripherals() {
		rejected += p.Close(peripheral.ErrConnectionClosed)
	}
	s.alerts.Close()

	s.logger.WithFields(logrus.Fields{
		"session":  s.id,
		"rejected": rejected,
	}).Debug("Session closed")
	return nil
}
