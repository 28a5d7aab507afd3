// Package gpio provides the digital IO facade of a board (io0, io1, ...).
package gpio

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/srg/boardlink/pkg/peripheral"
)

// DriveMethod is the output drive of an IO line
type DriveMethod string

const (
	Drive5V        DriveMethod = "5v"
	Drive3V        DriveMethod = "3v"
	DriveOpenDrain DriveMethod = "open-drain"
)

// PullMethod is the internal weak pull resistor setting of an IO line
type PullMethod string

const (
	Pull5V    PullMethod = "5v"
	Pull3V    PullMethod = "3v"
	PullDown  PullMethod = "0v"
	PullFloat PullMethod = "float"
)

var driveTypes = map[DriveMethod]string{
	Drive5V:        "push-pull5v",
	Drive3V:        "push-pull3v",
	DriveOpenDrain: "open-drain",
}

var pullTypes = map[PullMethod]string{
	Pull5V:    "pull-up5v",
	Pull3V:    "pull-up3v",
	PullDown:  "pull-down",
	PullFloat: "float",
}

// ParseDrive validates a drive method name
func ParseDrive(s string) (DriveMethod, error) {
	m := DriveMethod(s)
	if _, ok := driveTypes[m]; !ok {
		return "", peripheral.NewArgumentError("drive", s, "unknown drive method (must be 5v, 3v or open-drain)")
	}
	return m, nil
}

// ParsePull validates a pull method name; an empty string means floating
func ParsePull(s string) (PullMethod, error) {
	if s == "" {
		return PullFloat, nil
	}
	m := PullMethod(s)
	if _, ok := pullTypes[m]; !ok {
		return "", peripheral.NewArgumentError("pull", s, "unknown pull method (must be 5v, 3v, 0v or float)")
	}
	return m, nil
}

// IO is a general purpose digital line
type IO struct {
	id     int
	sender peripheral.Sender
	disp   *peripheral.Dispatcher[bool]
	logger *logrus.Logger
}

// New creates the facade for io<id>. Commands go to sender; device warnings and errors to sink.
func New(id int, sender peripheral.Sender, sink peripheral.AlertSink, logger *logrus.Logger) *IO {
	if logger == nil {
		logger = logrus.New()
	}
	addr := Address(id)
	return &IO{
		id:     id,
		sender: sender,
		logger: logger,
		disp: peripheral.NewDispatcher(peripheral.DispatcherConfig[bool]{
			Address:    addr,
			Decode:     decodeLevel,
			Sink:       sink,
			ValueEvent: peripheral.EventChange,
			Logger:     logger,
		}),
	}
}

// Address returns the board address of io<id>
func Address(id int) peripheral.Address {
	return peripheral.Address(fmt.Sprintf("io%d", id))
}

func decodeLevel(n peripheral.Notification) (bool, bool, error) {
	switch note := n.(type) {
	case peripheral.PlainValue:
		v, err := peripheral.ToBool(note.Value)
		return v, true, err
	case peripheral.Reply:
		v, err := peripheral.ToBool(note.Value)
		return v, true, err
	}
	return false, false, fmt.Errorf("unexpected notification %T", n)
}

// ID returns the line number
func (io *IO) ID() int {
	return io.id
}

// Address implements peripheral.Peripheral
func (io *IO) Address() peripheral.Address {
	return io.disp.Address()
}

// Classifier implements peripheral.Peripheral
func (io *IO) Classifier() peripheral.Classifier {
	return peripheral.Classifier{}
}

// Dispatch implements peripheral.Peripheral
func (io *IO) Dispatch(notes []peripheral.Notification) {
	io.disp.Dispatch(notes)
}

// Close implements peripheral.Peripheral
func (io *IO) Close(err error) int {
	return io.disp.Close(err)
}

// State reports whether input reads are awaiting replies
func (io *IO) State() peripheral.State {
	return io.disp.State()
}

// Stats returns the dispatcher counters
func (io *IO) Stats() peripheral.Stats {
	return io.disp.Stats()
}

func (io *IO) command(payload any) peripheral.Command {
	return peripheral.Command{Address: io.Address(), Payload: payload}
}

// Output makes the line an output and drives it to value
func (io *IO) Output(value bool) error {
	if err := io.disp.Fire(io.sender, io.command(value)); err != nil {
		return err
	}
	io.disp.Store().Set(value)
	return nil
}

// Drive changes the output drive method
func (io *IO) Drive(method DriveMethod) error {
	outputType, ok := driveTypes[method]
	if !ok {
		return peripheral.NewArgumentError("drive", string(method), "unknown drive method (must be 5v, 3v or open-drain)")
	}
	return io.disp.Fire(io.sender, io.command(map[string]any{"output_type": outputType}))
}

// Pull enables or disables the internal weak pull-up/down resistors
func (io *IO) Pull(method PullMethod) error {
	if method == "" {
		method = PullFloat
	}
	pullType, ok := pullTypes[method]
	if !ok {
		return peripheral.NewArgumentError("pull", string(method), "unknown pull method (must be 5v, 3v, 0v or float)")
	}
	return io.disp.Fire(io.sender, io.command(map[string]any{"pull_type": pullType}))
}

// Input makes the line an input streaming every change to callback.
// callback occupies the single change slot; it returns the last known value.
func (io *IO) Input(callback func(bool)) (bool, error) {
	io.OnChange(callback)
	err := io.disp.Fire(io.sender, io.command(map[string]any{
		"direction": "input",
		"stream":    true,
	}))
	return io.disp.Store().Get(), err
}

// InputAsync requests the current input level and returns a future resolved by the reply
func (io *IO) InputAsync() (*peripheral.Future[bool], error) {
	return io.disp.Request(io.sender, io.command(map[string]any{
		"direction": "input",
		"stream":    false,
	}))
}

// InputWait requests the current input level and blocks until it arrives or ctx ends
func (io *IO) InputWait(ctx context.Context) (bool, error) {
	f, err := io.InputAsync()
	if err != nil {
		return false, err
	}
	return f.Wait(ctx)
}

// OnChange sets the single change callback; nil clears it
func (io *IO) OnChange(callback func(bool)) {
	if callback == nil {
		io.disp.Hub().On(peripheral.EventChange, nil, peripheral.ModeReplace)
		return
	}
	io.disp.Hub().On(peripheral.EventChange, func(ev peripheral.Event) {
		if v, ok := ev.Value.(bool); ok {
			callback(v)
		}
	}, peripheral.ModeReplace)
}

// Subscribe adds a listener for a named event (change, warning, error)
func (io *IO) Subscribe(event string, l peripheral.Listener) peripheral.SubscriptionID {
	return io.disp.Hub().On(event, l, peripheral.ModeAdd)
}

// Off removes a listener added by Subscribe
func (io *IO) Off(id peripheral.SubscriptionID) bool {
	return io.disp.Hub().Off(id)
}

// Value returns the last known level
func (io *IO) Value() bool {
	return io.disp.Store().Get()
}

// End stops output/input on the line and rejects pending input reads with ErrReleased
func (io *IO) End() error {
	err := io.disp.Fire(io.sender, io.command(nil))
	io.disp.Close(fmt.Errorf("%w: %s", peripheral.ErrReleased, io.Address()))
	return err
}
