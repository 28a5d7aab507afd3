package peripheral

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Event names shared by the facades
const (
	EventChange  = "change"
	EventData    = "data"
	EventWarning = "warning"
	EventError   = "error"
)

// Mode selects how a listener is registered on an EventHub
type Mode int

const (
	// ModeAdd appends the listener; every added listener is invoked
	ModeAdd Mode = iota
	// ModeReplace occupies the single callback slot of an event, overwriting a previous one in place
	ModeReplace
)

// SubscriptionID identifies a registered listener for Off
type SubscriptionID uint64

// Event is what listeners receive
type Event struct {
	Name    string
	Address Address
	Value   any            // decoded value, if the notification carried one
	Params  map[string]any // payload fields of object-shaped notifications
}

// Listener observes events emitted on a hub
type Listener func(Event)

// ListenerPanicError reports a listener that panicked during Emit
type ListenerPanicError struct {
	Event string
	ID    SubscriptionID
	Value any
}

func (e *ListenerPanicError) Error() string {
	return fmt.Sprintf("listener %d for %q panicked: %v", e.ID, e.Event, e.Value)
}

// EventHub is a per-peripheral registry of persistent named-event listeners.
// Listeners run synchronously, in registration order, outside the hub lock.
type EventHub struct {
	mu     sync.Mutex
	nextID SubscriptionID
	events map[string]*orderedmap.OrderedMap[SubscriptionID, Listener]
	slots  map[string]SubscriptionID
	names  map[SubscriptionID]string
	logger *logrus.Logger
}

// NewEventHub creates an empty hub
func NewEventHub(logger *logrus.Logger) *EventHub {
	if logger == nil {
		logger = logrus.New()
	}
	return &EventHub{
		events: make(map[string]*orderedmap.OrderedMap[SubscriptionID, Listener]),
		slots:  make(map[string]SubscriptionID),
		names:  make(map[SubscriptionID]string),
		logger: logger,
	}
}

// On registers l for name. A nil listener in ModeReplace clears the slot.
func (h *EventHub) On(name string, l Listener, mode Mode) SubscriptionID {
	h.mu.Lock()
	defer h.mu.Unlock()

	if mode == ModeReplace {
		if id, ok := h.slots[name]; ok {
			if l == nil {
				h.removeLocked(id)
				return 0
			}
			h.events[name].Set(id, l)
			return id
		}
	}
	if l == nil {
		return 0
	}

	h.nextID++
	id := h.nextID
	listeners, ok := h.events[name]
	if !ok {
		listeners = orderedmap.New[SubscriptionID, Listener]()
		h.events[name] = listeners
	}
	listeners.Set(id, l)
	h.names[id] = name
	if mode == ModeReplace {
		h.slots[name] = id
	}
	return id
}

// Off removes a listener. It returns false if id is unknown.
func (h *EventHub) Off(id SubscriptionID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.removeLocked(id)
}

func (h *EventHub) removeLocked(id SubscriptionID) bool {
	name, ok := h.names[id]
	if !ok {
		return false
	}
	delete(h.names, id)
	if slot, ok := h.slots[name]; ok && slot == id {
		delete(h.slots, name)
	}
	if listeners, ok := h.events[name]; ok {
		listeners.Delete(id)
		if listeners.Len() == 0 {
			delete(h.events, name)
		}
	}
	return true
}

// Emit invokes every listener registered for name with ev.
// A panicking listener does not stop the remaining ones; recovered panics are
// logged and returned joined.
func (h *EventHub) Emit(name string, ev Event) error {
	ev.Name = name

	type entry struct {
		id SubscriptionID
		fn Listener
	}
	h.mu.Lock()
	var snapshot []entry
	if listeners, ok := h.events[name]; ok {
		snapshot = make([]entry, 0, listeners.Len())
		for pair := listeners.Oldest(); pair != nil; pair = pair.Next() {
			snapshot = append(snapshot, entry{id: pair.Key, fn: pair.Value})
		}
	}
	h.mu.Unlock()

	var errs []error
	for _, e := range snapshot {
		if err := h.invoke(e.id, e.fn, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h *EventHub) invoke(id SubscriptionID, fn Listener, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &ListenerPanicError{Event: ev.Name, ID: id, Value: r}
			h.logger.WithFields(logrus.Fields{
				"event":   ev.Name,
				"address": ev.Address,
				"panic":   r,
			}).Error("Event listener panicked")
		}
	}()
	fn(ev)
	return nil
}

// Len returns the number of listeners registered for name
func (h *EventHub) Len(name string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if listeners, ok := h.events[name]; ok {
		return listeners.Len()
	}
	return 0
}

// Clear removes every listener
func (h *EventHub) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = make(map[string]*orderedmap.OrderedMap[SubscriptionID, Listener])
	h.slots = make(map[string]SubscriptionID)
	h.names = make(map[SubscriptionID]string)
}
