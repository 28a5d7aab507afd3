package peripheral

// Address identifies a peripheral instance on the board, e.g. "io1", "spi0" or "attr:2a37"
type Address string

func (a Address) String() string {
	return string(a)
}

// Command is an outbound, peripheral-addressed instruction.
// A nil Payload releases the peripheral on the device.
type Command struct {
	Address Address
	Payload any
}

// Sender is the outbound capability injected into facades.
// Send is fire-and-forget: success means the transport accepted the command.
type Sender interface {
	Send(cmd Command) error
}

// SenderFunc adapts an ordinary function to the Sender interface
type SenderFunc func(cmd Command) error

// Send calls f(cmd)
func (f SenderFunc) Send(cmd Command) error {
	return f(cmd)
}

// Alert is a device-reported warning or error routed to the alert sink
type Alert struct {
	Severity Severity
	Address  Address
	Message  string
}

// Err converts the alert to a *RemoteError
func (a Alert) Err() error {
	return &RemoteError{Severity: a.Severity, Address: a.Address, Message: a.Message}
}

// AlertSink receives warnings and errors reported by the device
type AlertSink interface {
	Alert(a Alert)
}

// AlertSinkFunc adapts an ordinary function to the AlertSink interface
type AlertSinkFunc func(a Alert)

// Alert calls f(a)
func (f AlertSinkFunc) Alert(a Alert) {
	f(a)
}

// Peripheral is what a session needs from every facade to route inbound traffic
// and to tear it down.
type Peripheral interface {
	Address() Address
	Classifier() Classifier
	Dispatch(notes []Notification)
	Close(err error) int
}
