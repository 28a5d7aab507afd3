package attribute

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/srg/boardlink/internal/simboard"
	"github.com/srg/boardlink/pkg/peripheral"
	"github.com/srg/boardlink/pkg/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type AttributeTestSuite struct {
	suite.Suite
	board    *simboard.Board
	recorder *transport.Recorder
	attr     *Attribute
}

func (s *AttributeTestSuite) SetupTest() {
	s.board = simboard.New(nil)
	s.recorder = transport.NewRecorder(0, func(cmd peripheral.Command) []transport.Reply {
		reply, ok := s.board.Handle(string(cmd.Address), cmd.Payload)
		if !ok {
			return nil
		}
		return []transport.Reply{{Address: cmd.Address, Payload: reply}}
	}, nil)

	u, err := Parse("f0001111-0451-4000-b000-000000000000")
	s.Require().NoError(err)
	s.attr = New(u, s.recorder, nil, nil)
}

func (s *AttributeTestSuite) deliver(raw any) {
	notes, err := s.attr.Classifier().Classify(raw)
	s.Require().NoError(err)
	s.attr.Dispatch(notes)
}

func (s *AttributeTestSuite) flush() {
	s.Require().NoError(s.recorder.Flush(func(addr peripheral.Address, raw any) error {
		s.Equal(s.attr.Address(), addr)
		s.deliver(raw)
		return nil
	}))
}

func (s *AttributeTestSuite) TestWriteThenRead() {
	// GOAL: Verify the write-then-read round trip through onwrite and onread
	//
	// TEST SCENARIO: write [0xf0,0x27] → onwrite {result: success}; read → onread {data: [0xf0,0x27]}

	var writes, reads []peripheral.Event
	s.attr.OnWrite(func(ev peripheral.Event) { writes = append(writes, ev) })
	s.attr.OnRead(func(ev peripheral.Event) { reads = append(reads, ev) })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	wf, err := s.attr.WriteAsync([]byte{0xf0, 0x27})
	s.Require().NoError(err)
	s.flush()
	resp, err := wf.Wait(ctx)
	s.Require().NoError(err)
	s.Equal(ResultSuccess, resp.Result)

	s.Require().Len(writes, 1)
	s.Equal(KindWrite, writes[0].Name)
	s.Equal("success", writes[0].Params["result"])

	rf, err := s.attr.ReadAsync()
	s.Require().NoError(err)
	s.flush()
	resp, err = rf.Wait(ctx)
	s.Require().NoError(err)
	s.Equal([]byte{0xf0, 0x27}, resp.Data)

	s.Require().Len(reads, 1)
	s.Equal(KindRead, reads[0].Name)
	data, err := peripheral.ToBytes(reads[0].Params["data"])
	s.Require().NoError(err)
	s.Equal([]byte{0xf0, 0x27}, data)

	s.Equal([]byte{0xf0, 0x27}, s.attr.Value())
	s.Equal([]byte{0xf0, 0x27}, s.board.AttributeValue(string(s.attr.Address())))
}

func (s *AttributeTestSuite) TestWriteWait() {
	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		done <- s.attr.WriteValueWait(ctx, "hi")
	}()

	s.Eventually(func() bool {
		sent, _ := s.recorder.Sent()
		return sent == 1
	}, time.Second, time.Millisecond)
	s.flush()
	s.NoError(<-done)
	s.Equal([]byte("hi"), s.attr.Value())
}

func (s *AttributeTestSuite) TestWriteFailedResult() {
	f, err := s.attr.WriteAsync([]byte{1})
	s.Require().NoError(err)
	s.recorder.Flush(func(peripheral.Address, any) error { return nil })

	s.deliver(map[string]any{peripheral.KindKey: KindWrite, "result": "failed"})
	resp, err, ok := f.Result()
	s.True(ok)
	s.NoError(err)
	s.Equal("failed", resp.Result)
}

func (s *AttributeTestSuite) TestWriteSendFailureKeepsValue() {
	// GOAL: Verify the local value only follows writes the board was sent
	//
	// TEST SCENARIO: write [7] succeeds; write [9] fails to send → Value stays [7], no waiter left

	s.Require().NoError(s.attr.Write([]byte{7}))
	s.flush()

	boom := errors.New("port unplugged")
	s.recorder.FailNext(boom)
	_, err := s.attr.WriteAsync([]byte{9})
	s.ErrorIs(err, boom)

	s.Equal([]byte{7}, s.attr.Value(), "a failed send MUST NOT change the stored value")
	s.True(s.attr.State().Idle(), "a failed send MUST NOT leave a waiter behind")
}

func (s *AttributeTestSuite) TestWriteTooLarge() {
	err := s.attr.Write(make([]byte, MaxValueSize+1))
	s.ErrorIs(err, peripheral.ErrInvalidArgument)
	sent, _ := s.recorder.Sent()
	s.Equal(int64(0), sent)
}

func (s *AttributeTestSuite) TestRemoteWrite() {
	// GOAL: Verify a remote central's write is an event, not a reply
	//
	// TEST SCENARIO: pending read, onwritefromremote arrives → callback fires, store updated, read still pending

	f, err := s.attr.ReadAsync()
	s.Require().NoError(err)
	s.recorder.Flush(func(peripheral.Address, any) error { return nil })

	var central string
	var written []byte
	s.attr.OnWriteFromRemote(func(address string, data []byte) {
		central = address
		written = data
	})

	s.deliver(map[string]any{
		peripheral.KindKey: KindWriteFromRemote,
		"address":          "11:22:33:44:55:66",
		"data":             []any{7.0, 8.0},
	})

	s.Equal("11:22:33:44:55:66", central)
	s.Equal([]byte{7, 8}, written)
	s.Equal([]byte{7, 8}, s.attr.Value())
	_, _, ok := f.Result()
	s.False(ok, "remote events MUST NOT settle a local read")

	s.attr.OnWriteFromRemote(nil)
	written = nil
	s.deliver(map[string]any{peripheral.KindKey: KindWriteFromRemote, "data": []any{1.0}})
	s.Nil(written, "cleared callback MUST NOT be called")
}

func (s *AttributeTestSuite) TestRemoteRead() {
	var centrals []string
	s.attr.OnReadFromRemote(func(address string) { centrals = append(centrals, address) })

	s.deliver(map[string]any{peripheral.KindKey: KindReadFromRemote, "address": "aa"})
	s.Equal([]string{"aa"}, centrals)
}

func (s *AttributeTestSuite) TestEnd() {
	f, err := s.attr.ReadAsync()
	s.Require().NoError(err)

	s.Require().NoError(s.attr.End())
	_, err, ok := f.Result()
	s.True(ok)
	s.ErrorIs(err, peripheral.ErrReleased)
	s.Nil(s.attr.Value())
}

func TestAttributeTestSuite(t *testing.T) {
	suite.Run(t, new(AttributeTestSuite))
}

func TestParse(t *testing.T) {
	u, err := Parse("2a19")
	require.NoError(t, err)
	assert.Equal(t, peripheral.Address("attr:"+u.String()), Address(u))

	_, err = Parse("not-a-uuid")
	var argErr *peripheral.ArgumentError
	require.True(t, errors.As(err, &argErr))
	assert.Equal(t, "uuid", argErr.Param)
}

func TestEncodeValue(t *testing.T) {
	tests := []struct {
		name    string
		in      any
		want    []byte
		wantErr bool
	}{
		{"bytes", []byte{1}, []byte{1}, false},
		{"string", "ok", []byte("ok"), false},
		{"int", 200, []byte{200}, false},
		{"uint8", uint8(3), []byte{3}, false},
		{"int slice", []int{1, 2}, []byte{1, 2}, false},
		{"int too large", 256, nil, true},
		{"slice out of range", []int{300}, nil, true},
		{"float", 1.5, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EncodeValue(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, peripheral.ErrInvalidArgument)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
