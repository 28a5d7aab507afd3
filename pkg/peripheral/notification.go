package peripheral

import (
	"fmt"
	"reflect"
)

// KindKey is the payload field carrying an explicit notification kind label
const KindKey = "notify_type"

// Notification is the closed set of classified inbound messages:
// PlainValue, Reply, Warning, Fault and RemoteEvent.
type Notification interface {
	notification()
}

// PlainValue is a bare scalar or sequence update, e.g. a digital line level.
// It updates the store and may answer the oldest pending waiter.
type PlainValue struct {
	Value any
}

// Reply is an object-shaped answer to a prior command; Value holds its data/result field
type Reply struct {
	Kind   string // kind label, empty when the payload had none
	Field  string // "data" or "result"
	Value  any
	Params map[string]any
}

// Warning is a device-reported warning
type Warning struct {
	Message string
}

// Fault is a device-reported error
type Fault struct {
	Message string
}

// RemoteEvent is a remote-initiated event distinct from a local reply,
// e.g. a peer writing an attribute. It never answers a waiter.
type RemoteEvent struct {
	Kind   string
	Params map[string]any
}

func (PlainValue) notification()  {}
func (Reply) notification()       {}
func (Warning) notification()     {}
func (Fault) notification()       {}
func (RemoteEvent) notification() {}

// Classifier turns decoded transport payloads into notifications.
// RemoteEvents lists the kind labels that denote remote-initiated events.
type Classifier struct {
	RemoteEvents []string
}

func (c Classifier) isRemote(kind string) bool {
	for _, k := range c.RemoteEvents {
		if k == kind {
			return true
		}
	}
	return false
}

// Classify converts raw into notifications in the order the dispatcher must handle them:
// warning, error, then reply or remote event.
func (c Classifier) Classify(raw any) ([]Notification, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return c.classifyObject(v)
	case map[any]any:
		obj := make(map[string]any, len(v))
		for k, val := range v {
			obj[fmt.Sprint(k)] = val
		}
		return c.classifyObject(obj)
	case bool, string, []byte:
		return []Notification{PlainValue{Value: v}}, nil
	}

	rv := reflect.ValueOf(raw)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64, reflect.Slice, reflect.Array:
		return []Notification{PlainValue{Value: raw}}, nil
	}
	return nil, &UnclassifiedError{Payload: raw}
}

func (c Classifier) classifyObject(obj map[string]any) ([]Notification, error) {
	var notes []Notification

	if w, ok := obj["warning"]; ok && w != nil {
		notes = append(notes, Warning{Message: alertMessage(w)})
	}
	if e, ok := obj["error"]; ok && e != nil {
		notes = append(notes, Fault{Message: alertMessage(e)})
	}

	kind, _ := obj[KindKey].(string)
	params := make(map[string]any, len(obj))
	for k, v := range obj {
		if k == KindKey || k == "warning" || k == "error" {
			continue
		}
		params[k] = v
	}

	switch {
	case kind != "" && c.isRemote(kind):
		notes = append(notes, RemoteEvent{Kind: kind, Params: params})
	case hasKey(obj, "data"):
		notes = append(notes, Reply{Kind: kind, Field: "data", Value: obj["data"], Params: params})
	case hasKey(obj, "result"):
		notes = append(notes, Reply{Kind: kind, Field: "result", Value: obj["result"], Params: params})
	}

	if len(notes) == 0 {
		return nil, &UnclassifiedError{Payload: obj}
	}
	return notes, nil
}

func hasKey(obj map[string]any, key string) bool {
	_, ok := obj[key]
	return ok
}

// alertMessage extracts the message of {message: "..."} or a bare string
func alertMessage(v any) string {
	switch m := v.(type) {
	case string:
		return m
	case map[string]any:
		if s, ok := m["message"].(string); ok {
			return s
		}
	case map[any]any:
		if s, ok := m["message"].(string); ok {
			return s
		}
	}
	return fmt.Sprint(v)
}
