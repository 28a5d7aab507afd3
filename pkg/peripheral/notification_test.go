package peripheral

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyPlainValues(t *testing.T) {
	c := Classifier{}
	tests := []struct {
		name string
		raw  any
	}{
		{"bool", true},
		{"float", 3.0},
		{"int64", int64(-2)},
		{"uint64", uint64(7)},
		{"string", "hello"},
		{"bytes", []byte{1, 2}},
		{"json array", []any{1.0, 2.0}},
		{"int array", []int{1, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			notes, err := c.Classify(tt.raw)
			require.NoError(t, err)
			require.Len(t, notes, 1)
			assert.Equal(t, PlainValue{Value: tt.raw}, notes[0])
		})
	}
}

func TestClassifyNil(t *testing.T) {
	notes, err := Classifier{}.Classify(nil)
	assert.NoError(t, err)
	assert.Empty(t, notes, "nil payload MUST produce no notifications")
}

func TestClassifyAlertOrder(t *testing.T) {
	// GOAL: Verify warning, error and reply are ordered for dispatch
	//
	// TEST SCENARIO: object carrying all three → Warning, Fault, Reply

	notes, err := Classifier{}.Classify(map[string]any{
		"data":    []any{1.0},
		"error":   map[string]any{"message": "overcurrent"},
		"warning": "pin busy",
	})
	require.NoError(t, err)
	require.Len(t, notes, 3)
	assert.Equal(t, Warning{Message: "pin busy"}, notes[0])
	assert.Equal(t, Fault{Message: "overcurrent"}, notes[1])

	reply, ok := notes[2].(Reply)
	require.True(t, ok, "third notification MUST be the reply")
	assert.Equal(t, "data", reply.Field)
	assert.Equal(t, []any{1.0}, reply.Value)
	assert.NotContains(t, reply.Params, "warning", "alert fields MUST NOT leak into params")
}

func TestClassifyAlertOnly(t *testing.T) {
	notes, err := Classifier{}.Classify(map[string]any{
		"error": map[string]any{"message": "spi not started"},
	})
	require.NoError(t, err)
	assert.Equal(t, []Notification{Fault{Message: "spi not started"}}, notes)
}

func TestClassifyResultReply(t *testing.T) {
	notes, err := Classifier{}.Classify(map[string]any{
		KindKey:  "onwrite",
		"result": "success",
	})
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, Reply{
		Kind:   "onwrite",
		Field:  "result",
		Value:  "success",
		Params: map[string]any{"result": "success"},
	}, notes[0])
}

func TestClassifyRemoteEvent(t *testing.T) {
	c := Classifier{RemoteEvents: []string{"onwritefromremote"}}

	notes, err := c.Classify(map[string]any{
		KindKey:   "onwritefromremote",
		"address": "aa:bb:cc:dd:ee:ff",
		"data":    []any{5.0},
	})
	require.NoError(t, err)
	require.Len(t, notes, 1)
	ev, ok := notes[0].(RemoteEvent)
	require.True(t, ok, "remote kind MUST win over the data field")
	assert.Equal(t, "onwritefromremote", ev.Kind)
	assert.Equal(t, "aa:bb:cc:dd:ee:ff", ev.Params["address"])

	notes, err = Classifier{}.Classify(map[string]any{
		KindKey: "onwritefromremote",
		"data":  []any{5.0},
	})
	require.NoError(t, err)
	_, isReply := notes[0].(Reply)
	assert.True(t, isReply, "kinds not declared remote MUST classify as replies")
}

func TestClassifyAnyKeyedMap(t *testing.T) {
	notes, err := Classifier{}.Classify(map[any]any{
		"data": []byte{9},
	})
	require.NoError(t, err)
	require.Len(t, notes, 1)
	reply := notes[0].(Reply)
	assert.Equal(t, []byte{9}, reply.Value)
}

func TestClassifyUnrecognised(t *testing.T) {
	_, err := Classifier{}.Classify(map[string]any{"foo": 1.0})
	var uerr *UnclassifiedError
	assert.True(t, errors.As(err, &uerr), "object without known fields MUST be unclassified")

	_, err = Classifier{}.Classify(struct{}{})
	assert.True(t, errors.As(err, &uerr))
}
