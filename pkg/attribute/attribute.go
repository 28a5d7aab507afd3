// Package attribute provides the BLE local value attribute facade: a characteristic or
// descriptor hosted by the board's GATT server whose value the host writes and reads,
// and which remote centrals may write and read as well.
package attribute

import (
	"context"
	"fmt"
	"math"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/boardlink/pkg/peripheral"
)

// Notification kind labels sent by the board for attributes
const (
	KindWrite           = "onwrite"
	KindRead            = "onread"
	KindWriteFromRemote = "onwritefromremote"
	KindReadFromRemote  = "onreadfromremote"
)

// ResultSuccess is the result reported for a completed write
const ResultSuccess = "success"

// MaxValueSize is the largest attribute value allowed by ATT
const MaxValueSize = 512

// Response is what the board answers to an attribute write or read
type Response struct {
	Result string
	Data   []byte
}

// WriteError reports a write the board did not complete
type WriteError struct {
	Address peripheral.Address
	Result  string
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("%s: write failed: %s", e.Address, e.Result)
}

// Attribute is a local value attribute identified by its UUID
type Attribute struct {
	uuid   ble.UUID
	sender peripheral.Sender
	disp   *peripheral.Dispatcher[Response]
	logger *logrus.Logger
}

// Parse validates an attribute UUID (16-bit or 128-bit, dashes optional)
func Parse(uuid string) (ble.UUID, error) {
	u, err := ble.Parse(uuid)
	if err != nil {
		return nil, peripheral.NewArgumentError("uuid", uuid, "invalid attribute UUID: %v", err)
	}
	return u, nil
}

// Address returns the board address of an attribute
func Address(uuid ble.UUID) peripheral.Address {
	return peripheral.Address("attr:" + uuid.String())
}

// New creates the facade for the attribute identified by uuid
func New(uuid ble.UUID, sender peripheral.Sender, sink peripheral.AlertSink, logger *logrus.Logger) *Attribute {
	if logger == nil {
		logger = logrus.New()
	}
	return &Attribute{
		uuid:   uuid,
		sender: sender,
		logger: logger,
		disp: peripheral.NewDispatcher(peripheral.DispatcherConfig[Response]{
			Address:    Address(uuid),
			Decode:     decodeResponse,
			Sink:       sink,
			ReplyEvent: KindRead,
			Logger:     logger,
		}),
	}
}

func decodeResponse(n peripheral.Notification) (Response, bool, error) {
	switch note := n.(type) {
	case peripheral.Reply:
		if note.Field == "result" {
			result, ok := note.Value.(string)
			if !ok {
				return Response{}, false, fmt.Errorf("expected string result, got %T", note.Value)
			}
			return Response{Result: result}, false, nil
		}
		data, err := peripheral.ToBytes(note.Value)
		return Response{Result: ResultSuccess, Data: data}, true, err
	case peripheral.RemoteEvent:
		raw, ok := note.Params["data"]
		if !ok {
			return Response{}, false, nil
		}
		data, err := peripheral.ToBytes(raw)
		return Response{Data: data}, true, err
	case peripheral.PlainValue:
		data, err := peripheral.ToBytes(note.Value)
		return Response{Data: data}, true, err
	}
	return Response{}, false, fmt.Errorf("unexpected notification %T", n)
}

// UUID returns the attribute UUID
func (a *Attribute) UUID() ble.UUID {
	return a.uuid
}

// Address implements peripheral.Peripheral
func (a *Attribute) Address() peripheral.Address {
	return a.disp.Address()
}

// Classifier implements peripheral.Peripheral
func (a *Attribute) Classifier() peripheral.Classifier {
	return peripheral.Classifier{RemoteEvents: []string{KindWriteFromRemote, KindReadFromRemote}}
}

// Dispatch implements peripheral.Peripheral
func (a *Attribute) Dispatch(notes []peripheral.Notification) {
	a.disp.Dispatch(notes)
}

// Close implements peripheral.Peripheral
func (a *Attribute) Close(err error) int {
	return a.disp.Close(err)
}

// State reports whether writes or reads are awaiting replies
func (a *Attribute) State() peripheral.State {
	return a.disp.State()
}

func (a *Attribute) command(payload any) peripheral.Command {
	return peripheral.Command{Address: a.Address(), Payload: payload}
}

func checkValue(data []byte) error {
	if len(data) > MaxValueSize {
		return peripheral.NewArgumentError("data", len(data), "attribute value exceeds %d bytes", MaxValueSize)
	}
	return nil
}

// EncodeValue converts a string, a byte-sized integer or a byte slice to the attribute's binary form
func EncodeValue(v any) ([]byte, error) {
	switch val := v.(type) {
	case []byte:
		return val, nil
	case string:
		return []byte(val), nil
	case int:
		if val < 0 || val > math.MaxUint8 {
			return nil, peripheral.NewArgumentError("value", val, "number must fit in one byte")
		}
		return []byte{byte(val)}, nil
	case uint8:
		return []byte{val}, nil
	case []int:
		data, err := peripheral.ToBytes(val)
		if err != nil {
			return nil, peripheral.NewArgumentError("value", val, "%v", err)
		}
		return data, nil
	}
	return nil, peripheral.NewArgumentError("value", v, "unsupported value type %T", v)
}

// WriteAsync sends data to the board and returns a future resolved by the board's
// onwrite reply. The local value changes only once the command was sent.
func (a *Attribute) WriteAsync(data []byte) (*peripheral.Future[Response], error) {
	if err := checkValue(data); err != nil {
		return nil, err
	}
	stored := make([]byte, len(data))
	copy(stored, data)

	f, err := a.disp.Request(a.sender, a.command(map[string]any{
		"operation": "write",
		"data":      peripheral.ByteArray(data),
	}))
	if err != nil {
		return nil, err
	}
	a.disp.Store().Set(Response{Data: stored})
	return f, nil
}

// WriteWait writes data and blocks until the board confirms it or ctx ends
func (a *Attribute) WriteWait(ctx context.Context, data []byte) error {
	f, err := a.WriteAsync(data)
	if err != nil {
		return err
	}
	resp, err := f.Wait(ctx)
	if err != nil {
		return err
	}
	if resp.Result != ResultSuccess {
		return &WriteError{Address: a.Address(), Result: resp.Result}
	}
	return nil
}

// WriteValueWait converts v with EncodeValue and writes it
func (a *Attribute) WriteValueWait(ctx context.Context, v any) error {
	data, err := EncodeValue(v)
	if err != nil {
		return err
	}
	return a.WriteWait(ctx, data)
}

// Write writes data without waiting; the outcome is reported through onwrite events.
// The reply slot is still reserved so later waiters stay correlated.
func (a *Attribute) Write(data []byte) error {
	_, err := a.WriteAsync(data)
	return err
}

// ReadAsync requests the value and returns a future resolved by the board's onread reply
func (a *Attribute) ReadAsync() (*peripheral.Future[Response], error) {
	return a.disp.Request(a.sender, a.command(map[string]any{
		"operation": "read",
	}))
}

// ReadWait reads the value and blocks until it arrives or ctx ends
func (a *Attribute) ReadWait(ctx context.Context) ([]byte, error) {
	f, err := a.ReadAsync()
	if err != nil {
		return nil, err
	}
	resp, err := f.Wait(ctx)
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// Read requests the value without waiting; the outcome is reported through onread events
func (a *Attribute) Read() error {
	_, err := a.ReadAsync()
	return err
}

// OnWrite adds a listener for onwrite replies; Params carries the board's result
func (a *Attribute) OnWrite(l peripheral.Listener) peripheral.SubscriptionID {
	return a.disp.Hub().On(KindWrite, l, peripheral.ModeAdd)
}

// OnRead adds a listener for onread replies; Params carries the data read
func (a *Attribute) OnRead(l peripheral.Listener) peripheral.SubscriptionID {
	return a.disp.Hub().On(KindRead, l, peripheral.ModeAdd)
}

// Subscribe adds a listener for any named event
func (a *Attribute) Subscribe(event string, l peripheral.Listener) peripheral.SubscriptionID {
	return a.disp.Hub().On(event, l, peripheral.ModeAdd)
}

// Off removes a listener
func (a *Attribute) Off(id peripheral.SubscriptionID) bool {
	return a.disp.Hub().Off(id)
}

// OnWriteFromRemote sets the callback invoked when a remote central writes the attribute; nil clears it
func (a *Attribute) OnWriteFromRemote(callback func(address string, data []byte)) {
	if callback == nil {
		a.disp.Hub().On(KindWriteFromRemote, nil, peripheral.ModeReplace)
		return
	}
	a.disp.Hub().On(KindWriteFromRemote, func(ev peripheral.Event) {
		address, _ := ev.Params["address"].(string)
		var data []byte
		if resp, ok := ev.Value.(Response); ok {
			data = resp.Data
		}
		callback(address, data)
	}, peripheral.ModeReplace)
}

// OnReadFromRemote sets the callback invoked when a remote central reads the attribute; nil clears it
func (a *Attribute) OnReadFromRemote(callback func(address string)) {
	if callback == nil {
		a.disp.Hub().On(KindReadFromRemote, nil, peripheral.ModeReplace)
		return
	}
	a.disp.Hub().On(KindReadFromRemote, func(ev peripheral.Event) {
		address, _ := ev.Params["address"].(string)
		callback(address)
	}, peripheral.ModeReplace)
}

// Value returns the last known attribute value
func (a *Attribute) Value() []byte {
	return a.disp.Store().Get().Data
}

// End removes the attribute from the board and rejects pending operations with ErrReleased
func (a *Attribute) End() error {
	err := a.disp.Fire(a.sender, a.command(nil))
	a.disp.Close(fmt.Errorf("%w: %s", peripheral.ErrReleased, a.Address()))
	return err
}
