package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/srg/boardlink/pkg/peripheral"
	"github.com/srg/boardlink/pkg/spi"
	"github.com/srg/boardlink/pkg/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type SessionTestSuite struct {
	suite.Suite
	recorder *transport.Recorder
	session  *Session
}

func (s *SessionTestSuite) SetupTest() {
	s.recorder = transport.NewRecorder(0, nil, nil)
	s.session = New(s.recorder, &Options{AlertBuffer: 2})
}

func (s *SessionTestSuite) TearDownTest() {
	s.NoError(s.session.Close())
}

func (s *SessionTestSuite) TestFacadesAreCached() {
	s.Same(s.session.IO(3), s.session.IO(3), "IO MUST return one facade per line")
	s.Same(s.session.SPI(0), s.session.SPI(0))

	a1, err := s.session.Attribute("2a19")
	s.Require().NoError(err)
	a2, err := s.session.Attribute("2A19")
	s.Require().NoError(err)
	s.Same(a1, a2, "UUID case MUST NOT create a second facade")

	var addrs []peripheral.Address
	for _, p := range s.session.Peripherals() {
		addrs = append(addrs, p.Address())
	}
	s.Equal([]peripheral.Address{a1.Address(), "io3", "spi0"}, addrs, "peripherals MUST be sorted by address")
}

func (s *SessionTestSuite) TestAttributeInvalidUUID() {
	_, err := s.session.Attribute("zz")
	s.ErrorIs(err, peripheral.ErrInvalidArgument)
	s.Empty(s.session.Peripherals())
}

func (s *SessionTestSuite) TestDeliverAutoResolves() {
	// GOAL: Verify notifications for io<N>/spi<N> create the facade on demand
	//
	// TEST SCENARIO: deliver true to io7 before anyone asked for it → io7 exists with level true

	s.Require().NoError(s.session.Deliver("io7", true))
	p, ok := s.session.Peripheral("io7")
	s.Require().True(ok)
	s.Same(s.session.IO(7), p)
	s.True(s.session.IO(7).Value())
}

func (s *SessionTestSuite) TestDeliverUnknownPeripheral() {
	for _, addr := range []peripheral.Address{"attr:2a19", "uart0", "io-1", "spix"} {
		err := s.session.Deliver(addr, true)
		var unknown *UnknownPeripheralError
		s.Require().True(errors.As(err, &unknown), "%s MUST be reported as unknown", addr)
		s.Equal(addr, unknown.Address)
	}
}

func (s *SessionTestSuite) TestDeliverUnclassified() {
	err := s.session.Deliver("io1", map[string]any{"foo": 1.0})
	var uerr *peripheral.UnclassifiedError
	s.True(errors.As(err, &uerr))
}

func (s *SessionTestSuite) TestDeliverFrame() {
	var order []peripheral.Address
	for _, id := range []int{2, 1} {
		s.session.IO(id).Subscribe(peripheral.EventChange, func(ev peripheral.Event) {
			order = append(order, ev.Address)
		})
	}

	err := s.session.DeliverFrame(map[string]any{
		"io2":   true,
		"io1":   false,
		"bogus": 1.0,
	})
	var unknown *UnknownPeripheralError
	s.True(errors.As(err, &unknown), "unknown entries MUST be reported")
	s.Equal([]peripheral.Address{"io1", "io2"}, order, "known entries MUST still be delivered in address order")
}

func (s *SessionTestSuite) TestAlerts() {
	// GOAL: Verify device alerts reach the alert channel and session listeners
	//
	// TEST SCENARIO: three faults with a buffer of two → oldest dropped, error listener called three times

	var events []peripheral.Event
	id := s.session.On(peripheral.EventError, func(ev peripheral.Event) { events = append(events, ev) })

	for _, msg := range []string{"one", "two", "three"} {
		s.Require().NoError(s.session.Deliver("io0", map[string]any{"error": map[string]any{"message": msg}}))
	}

	s.Len(events, 3)
	s.Equal("error", events[0].Params["alert"])
	s.Equal(peripheral.Address("io0"), events[0].Address)

	a := <-s.session.Alerts()
	s.Equal("io0: two", a.Message, "oldest alert MUST be dropped when the buffer is full")
	a = <-s.session.Alerts()
	s.Equal("io0: three", a.Message)

	s.True(s.session.Off(id))
}

func (s *SessionTestSuite) TestCloseRejectsAllWaiters() {
	// GOAL: Verify teardown rejects every pending waiter on every peripheral
	//
	// TEST SCENARIO: 2 io reads + 1 spi transfer + 1 attribute read pending → Close → all ErrConnectionClosed

	io := s.session.IO(1)
	bus := s.session.SPI(0)
	attr, err := s.session.Attribute("2a19")
	s.Require().NoError(err)
	s.Require().NoError(bus.Start(spiParams()))

	var waits []func(context.Context) error
	for i := 0; i < 2; i++ {
		f, err := io.InputAsync()
		s.Require().NoError(err)
		waits = append(waits, func(ctx context.Context) error { _, err := f.Wait(ctx); return err })
	}
	tf, err := bus.WriteAsync([]byte{1})
	s.Require().NoError(err)
	waits = append(waits, func(ctx context.Context) error { _, err := tf.Wait(ctx); return err })
	rf, err := attr.ReadAsync()
	s.Require().NoError(err)
	waits = append(waits, func(ctx context.Context) error { _, err := rf.Wait(ctx); return err })

	s.Equal(4, s.session.Pending())

	s.Require().NoError(s.session.Close())
	s.True(s.session.IsClosed())
	s.Equal(0, s.session.Pending(), "Close MUST leave every queue empty")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for i, wait := range waits {
		s.ErrorIs(wait(ctx), peripheral.ErrConnectionClosed, "waiter %d MUST be rejected", i)
	}

	select {
	case <-s.session.Done():
	default:
		s.Fail("Done MUST be closed")
	}
	_, open := <-s.session.Alerts()
	s.False(open, "alert channel MUST be closed")
}

func (s *SessionTestSuite) TestSendAfterClose() {
	s.Require().NoError(s.session.Close())
	s.Require().NoError(s.session.Close(), "Close MUST be idempotent")

	err := s.session.IO(0).Output(true)
	s.ErrorIs(err, peripheral.ErrConnectionClosed)

	_, err = s.session.IO(0).InputWait(context.Background())
	s.ErrorIs(err, peripheral.ErrConnectionClosed)

	s.ErrorIs(s.session.Deliver("io0", true), peripheral.ErrConnectionClosed)
	sent, _ := s.recorder.Sent()
	s.Equal(int64(0), sent)
}

func (s *SessionTestSuite) TestSendWrapsTransportError() {
	boom := errors.New("write failed")
	s.recorder.FailNext(boom)
	err := s.session.IO(0).Output(true)
	s.ErrorIs(err, boom)
	s.Contains(err.Error(), "io0")
}

func TestSessionTestSuite(t *testing.T) {
	suite.Run(t, new(SessionTestSuite))
}

func TestSessionIDsAreUnique(t *testing.T) {
	a := New(transport.NewRecorder(0, nil, nil), nil)
	b := New(transport.NewRecorder(0, nil, nil), nil)
	defer a.Close()
	defer b.Close()
	require.NotEmpty(t, a.ID())
	assert.NotEqual(t, a.ID(), b.ID())
}

func spiParams() spi.Params {
	return spi.Params{Mode: spi.ModeMaster, Frequency: 1000000}
}
