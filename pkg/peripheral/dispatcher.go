package peripheral

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// DecodeFunc converts a PlainValue, Reply or RemoteEvent into the peripheral's value type.
// store reports whether the value replaces the contents of the ValueStore.
type DecodeFunc[T any] func(n Notification) (value T, store bool, err error)

// DecodeError reports a reply whose payload could not be converted
type DecodeError struct {
	Address Address
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: failed to decode notification: %v", e.Address, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// State is the dispatcher's state: Idle or AwaitingReplies(Pending)
type State struct {
	Pending int
}

// Idle reports whether no replies are awaited
func (s State) Idle() bool {
	return s.Pending == 0
}

func (s State) String() string {
	if s.Idle() {
		return "idle"
	}
	return fmt.Sprintf("awaiting_replies(%d)", s.Pending)
}

// Stats provides lock-free counters for a dispatcher.
//
// All fields use atomic operations for thread-safe access
type Stats struct {
	Dispatched int64 // notifications handled
	Resolved   int64 // waiters resolved by replies
	Unmatched  int64 // replies that found no pending waiter
	Alerts     int64 // warnings and errors routed to the sink
	Errors     int64 // decode failures and panicking listeners
}

// DispatcherConfig configures a Dispatcher
type DispatcherConfig[T any] struct {
	Address    Address
	Decode     DecodeFunc[T]
	Sink       AlertSink
	ValueEvent string // event emitted for plain values
	ReplyEvent string // event emitted for replies without a kind label
	Logger     *logrus.Logger
}

// Dispatcher routes a peripheral's notifications to its ValueStore, ObserverQueue
// and EventHub, and reports device warnings and errors to the AlertSink.
type Dispatcher[T any] struct {
	address    Address
	store      ValueStore[T]
	queue      ObserverQueue[T]
	hub        *EventHub
	sink       AlertSink
	decode     DecodeFunc[T]
	valueEvent string
	replyEvent string
	logger     *logrus.Logger

	issueMu sync.Mutex
	stats   Stats
}

// NewDispatcher creates a dispatcher for one peripheral instance
func NewDispatcher[T any](cfg DispatcherConfig[T]) *Dispatcher[T] {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.New()
	}
	valueEvent := cfg.ValueEvent
	if valueEvent == "" {
		valueEvent = EventChange
	}
	replyEvent := cfg.ReplyEvent
	if replyEvent == "" {
		replyEvent = EventData
	}
	return &Dispatcher[T]{
		address:    cfg.Address,
		hub:        NewEventHub(logger),
		sink:       cfg.Sink,
		decode:     cfg.Decode,
		valueEvent: valueEvent,
		replyEvent: replyEvent,
		logger:     logger,
	}
}

// Address returns the peripheral address this dispatcher serves
func (d *Dispatcher[T]) Address() Address {
	return d.address
}

// Store returns the peripheral's ValueStore
func (d *Dispatcher[T]) Store() *ValueStore[T] {
	return &d.store
}

// Queue returns the peripheral's ObserverQueue
func (d *Dispatcher[T]) Queue() *ObserverQueue[T] {
	return &d.queue
}

// Hub returns the peripheral's EventHub
func (d *Dispatcher[T]) Hub() *EventHub {
	return d.hub
}

// State reports Idle or AwaitingReplies(n)
func (d *Dispatcher[T]) State() State {
	return State{Pending: d.queue.Len()}
}

// Stats returns a snapshot of the dispatcher counters
func (d *Dispatcher[T]) Stats() Stats {
	return Stats{
		Dispatched: atomic.LoadInt64(&d.stats.Dispatched),
		Resolved:   atomic.LoadInt64(&d.stats.Resolved),
		Unmatched:  atomic.LoadInt64(&d.stats.Unmatched),
		Alerts:     atomic.LoadInt64(&d.stats.Alerts),
		Errors:     atomic.LoadInt64(&d.stats.Errors),
	}
}

// Request enqueues a waiter and sends cmd as one step, so the order of waiters
// always matches the order in which their commands reached the transport.
// If the send fails the waiter is withdrawn and the send error returned.
func (d *Dispatcher[T]) Request(sender Sender, cmd Command) (*Future[T], error) {
	d.issueMu.Lock()
	defer d.issueMu.Unlock()

	f := d.queue.Enqueue()
	if err := sender.Send(cmd); err != nil {
		d.queue.Remove(f)
		f.reject(err)
		return nil, err
	}
	d.logger.WithFields(logrus.Fields{
		"address": d.address,
		"pending": d.queue.Len(),
	}).Debug("Waiter enqueued")
	return f, nil
}

// Fire sends cmd without enqueuing a waiter, ordered with respect to Request
func (d *Dispatcher[T]) Fire(sender Sender, cmd Command) error {
	d.issueMu.Lock()
	defer d.issueMu.Unlock()
	return sender.Send(cmd)
}

// Dispatch handles classified notifications in order
func (d *Dispatcher[T]) Dispatch(notes []Notification) {
	for _, n := range notes {
		d.dispatchOne(n)
	}
}

func (d *Dispatcher[T]) dispatchOne(n Notification) {
	atomic.AddInt64(&d.stats.Dispatched, 1)

	switch note := n.(type) {
	case Warning:
		d.alert(SeverityWarning, note.Message)
	case Fault:
		d.alert(SeverityError, note.Message)
	case PlainValue:
		v, ok := d.decodeReply(note)
		if !ok {
			return
		}
		d.emit(d.valueEvent, Event{Value: v})
	case Reply:
		v, ok := d.decodeReply(note)
		if !ok {
			return
		}
		name := note.Kind
		if name == "" {
			name = d.replyEvent
		}
		d.emit(name, Event{Value: v, Params: note.Params})
	case RemoteEvent:
		var value any
		if d.decode != nil {
			v, store, err := d.decode(note)
			if err != nil {
				d.decodeFailed(note, err)
			} else {
				if store {
					d.store.Set(v)
				}
				value = v
			}
		}
		d.emit(note.Kind, Event{Value: value, Params: note.Params})
	default:
		d.logger.WithFields(logrus.Fields{
			"address": d.address,
			"type":    fmt.Sprintf("%T", n),
		}).Warn("Unknown notification type")
	}
}

// decodeReply updates the store and resolves the head waiter.
// A payload that cannot be decoded rejects the head waiter instead.
func (d *Dispatcher[T]) decodeReply(n Notification) (T, bool) {
	var v T
	store := true
	if d.decode != nil {
		var err error
		v, store, err = d.decode(n)
		if err != nil {
			d.decodeFailed(n, err)
			d.queue.Reject(&DecodeError{Address: d.address, Err: err})
			return v, false
		}
	}
	if store {
		d.store.Set(v)
	}

	if d.queue.Resolve(v) {
		atomic.AddInt64(&d.stats.Resolved, 1)
	} else if _, isReply := n.(Reply); isReply {
		atomic.AddInt64(&d.stats.Unmatched, 1)
		d.logger.WithFields(logrus.Fields{
			"address": d.address,
			"error":   ErrUnmatchedNotification,
		}).Debug("Reply arrived with no pending waiter")
	}
	return v, true
}

func (d *Dispatcher[T]) decodeFailed(n Notification, err error) {
	atomic.AddInt64(&d.stats.Errors, 1)
	d.logger.WithFields(logrus.Fields{
		"address":      d.address,
		"notification": fmt.Sprintf("%T", n),
		"error":        err,
	}).Warn("Failed to decode notification")
}

func (d *Dispatcher[T]) alert(severity Severity, msg string) {
	atomic.AddInt64(&d.stats.Alerts, 1)
	a := Alert{
		Severity: severity,
		Address:  d.address,
		Message:  fmt.Sprintf("%s: %s", d.address, msg),
	}
	if d.sink != nil {
		d.sink.Alert(a)
	} else {
		entry := d.logger.WithField("address", d.address)
		if severity == SeverityError {
			entry.Error(a.Message)
		} else {
			entry.Warn(a.Message)
		}
	}

	name := EventWarning
	if severity == SeverityError {
		name = EventError
	}
	d.emit(name, Event{Value: a.Err(), Params: map[string]any{"message": msg}})
}

func (d *Dispatcher[T]) emit(name string, ev Event) {
	ev.Address = d.address
	if err := d.hub.Emit(name, ev); err != nil {
		atomic.AddInt64(&d.stats.Errors, 1)
	}
}

// Close rejects every pending waiter with err and clears the store.
// It returns the number of rejected waiters.
func (d *Dispatcher[T]) Close(err error) int {
	n := d.queue.RejectAll(err)
	d.store.Reset()
	if n > 0 {
		d.logger.WithFields(logrus.Fields{
			"address":  d.address,
			"rejected": n,
			"reason":   err,
		}).Debug("Rejected pending waiters")
	}
	return n
}
