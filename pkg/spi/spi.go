// Package spi provides the SPI bus facade of a board (spi0, spi1).
package spi

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/boardlink/pkg/gpio"
	"github.com/srg/boardlink/pkg/peripheral"
)

// MaxTransferSize is the largest payload accepted for one transfer
const MaxTransferSize = 1024

// ModeMaster is the only bus mode the board supports
const ModeMaster = "master"

// ErrNotStarted is returned by transfers issued before Start or after End
var ErrNotStarted = errors.New("spi not started")

// PinResolver gives access to the IO lines a bus is wired to
type PinResolver interface {
	IO(id int) *gpio.IO
}

// Params configures a bus. Mode and Frequency are required.
type Params struct {
	Mode      string
	Frequency int
	Clk       *int
	Mosi      *int
	Miso      *int
	Drive     gpio.DriveMethod
	Pull      gpio.PullMethod
}

// Pin is a helper for optional pin numbers in Params
func Pin(id int) *int {
	return &id
}

func (p Params) pins() []int {
	var out []int
	for _, pin := range []*int{p.Clk, p.Mosi, p.Miso} {
		if pin != nil {
			out = append(out, *pin)
		}
	}
	return out
}

// SPI is a bus in master mode
type SPI struct {
	id     int
	sender peripheral.Sender
	pins   PinResolver
	disp   *peripheral.Dispatcher[[]byte]
	logger *logrus.Logger

	mu     sync.RWMutex
	params *Params
}

// New creates the facade for spi<id>. pins may be nil when drive/pull settings are never used.
func New(id int, sender peripheral.Sender, pins PinResolver, sink peripheral.AlertSink, logger *logrus.Logger) *SPI {
	if logger == nil {
		logger = logrus.New()
	}
	return &SPI{
		id:     id,
		sender: sender,
		pins:   pins,
		logger: logger,
		disp: peripheral.NewDispatcher(peripheral.DispatcherConfig[[]byte]{
			Address:    Address(id),
			Decode:     decodeTransfer,
			Sink:       sink,
			ReplyEvent: peripheral.EventData,
			Logger:     logger,
		}),
	}
}

// Address returns the board address of spi<id>
func Address(id int) peripheral.Address {
	return peripheral.Address(fmt.Sprintf("spi%d", id))
}

func decodeTransfer(n peripheral.Notification) ([]byte, bool, error) {
	switch note := n.(type) {
	case peripheral.Reply:
		data, err := peripheral.ToBytes(note.Value)
		return data, true, err
	case peripheral.PlainValue:
		data, err := peripheral.ToBytes(note.Value)
		return data, true, err
	}
	return nil, false, fmt.Errorf("unexpected notification %T", n)
}

// Address implements peripheral.Peripheral
func (s *SPI) Address() peripheral.Address {
	return s.disp.Address()
}

// Classifier implements peripheral.Peripheral
func (s *SPI) Classifier() peripheral.Classifier {
	return peripheral.Classifier{}
}

// Dispatch implements peripheral.Peripheral
func (s *SPI) Dispatch(notes []peripheral.Notification) {
	s.disp.Dispatch(notes)
}

// Close implements peripheral.Peripheral
func (s *SPI) Close(err error) int {
	return s.disp.Close(err)
}

// State reports whether transfers are awaiting replies
func (s *SPI) State() peripheral.State {
	return s.disp.State()
}

func (s *SPI) command(payload any) peripheral.Command {
	return peripheral.Command{Address: s.Address(), Payload: payload}
}

func validate(p Params) error {
	if p.Mode == "" {
		return peripheral.NewArgumentError("mode", nil, "spi start param 'mode' required, but not found")
	}
	if p.Mode != ModeMaster {
		return peripheral.NewArgumentError("mode", p.Mode, "unknown mode (must be %s)", ModeMaster)
	}
	if p.Frequency <= 0 {
		return peripheral.NewArgumentError("frequency", p.Frequency, "spi start param 'frequency' required, must be positive")
	}
	for _, pin := range p.pins() {
		if pin < 0 {
			return peripheral.NewArgumentError("pin", pin, "pin number must not be negative")
		}
	}
	if p.Drive != "" {
		if _, err := gpio.ParseDrive(string(p.Drive)); err != nil {
			return err
		}
	}
	if p.Pull != "" {
		if _, err := gpio.ParsePull(string(p.Pull)); err != nil {
			return err
		}
	}
	return nil
}

// Start configures the bus. Drive and pull settings are applied to the configured pins first.
func (s *SPI) Start(p Params) error {
	if err := validate(p); err != nil {
		return err
	}
	if (p.Drive != "" || p.Pull != "") && len(p.pins()) > 0 && s.pins == nil {
		return peripheral.NewArgumentError("drive", string(p.Drive), "no pin resolver available to apply drive/pull settings")
	}

	for _, pin := range p.pins() {
		if p.Drive != "" {
			if err := s.pins.IO(pin).Drive(p.Drive); err != nil {
				return fmt.Errorf("failed to set drive on io%d: %w", pin, err)
			}
		}
		if p.Pull != "" {
			if err := s.pins.IO(pin).Pull(p.Pull); err != nil {
				return fmt.Errorf("failed to set pull on io%d: %w", pin, err)
			}
		}
	}

	payload := map[string]any{
		"mode":  p.Mode,
		"clock": p.Frequency,
	}
	if p.Clk != nil {
		payload["clk"] = *p.Clk
	}
	if p.Mosi != nil {
		payload["mosi"] = *p.Mosi
	}
	if p.Miso != nil {
		payload["miso"] = *p.Miso
	}

	if err := s.disp.Fire(s.sender, s.command(payload)); err != nil {
		return err
	}

	s.mu.Lock()
	s.params = &p
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"address":   s.Address(),
		"frequency": p.Frequency,
	}).Debug("SPI started")
	return nil
}

// IsUsed reports whether the bus has been started
func (s *SPI) IsUsed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.params != nil
}

func (s *SPI) checkTransfer(data []byte) error {
	if !s.IsUsed() {
		return fmt.Errorf("%s: %w", s.Address(), ErrNotStarted)
	}
	if len(data) == 0 {
		return peripheral.NewArgumentError("data", nil, "transfer data must not be empty")
	}
	if len(data) > MaxTransferSize {
		return peripheral.NewArgumentError("data", len(data), "transfer exceeds %d bytes", MaxTransferSize)
	}
	return nil
}

// WriteAsync writes data and returns a future resolved with the bytes read back
func (s *SPI) WriteAsync(data []byte) (*peripheral.Future[[]byte], error) {
	if err := s.checkTransfer(data); err != nil {
		return nil, err
	}
	return s.disp.Request(s.sender, s.command(map[string]any{
		"data": peripheral.ByteArray(data),
		"read": true,
	}))
}

// WriteWait writes data and blocks until the bytes read back arrive or ctx ends
func (s *SPI) WriteWait(ctx context.Context, data []byte) ([]byte, error) {
	f, err := s.WriteAsync(data)
	if err != nil {
		return nil, err
	}
	return f.Wait(ctx)
}

// Write writes data without reading back
func (s *SPI) Write(data []byte) error {
	if err := s.checkTransfer(data); err != nil {
		return err
	}
	return s.disp.Fire(s.sender, s.command(map[string]any{
		"data": peripheral.ByteArray(data),
	}))
}

// Subscribe adds a listener for a named event (data, warning, error)
func (s *SPI) Subscribe(event string, l peripheral.Listener) peripheral.SubscriptionID {
	return s.disp.Hub().On(event, l, peripheral.ModeAdd)
}

// Off removes a listener added by Subscribe
func (s *SPI) Off(id peripheral.SubscriptionID) bool {
	return s.disp.Hub().Off(id)
}

// Value returns the bytes of the last completed transfer
func (s *SPI) Value() []byte {
	return s.disp.Store().Get()
}

// End releases the bus and rejects pending transfers with ErrReleased
func (s *SPI) End() error {
	s.mu.Lock()
	s.params = nil
	s.mu.Unlock()

	err := s.disp.Fire(s.sender, s.command(nil))
	s.disp.Close(fmt.Errorf("%w: %s", peripheral.ErrReleased, s.Address()))
	return err
}
