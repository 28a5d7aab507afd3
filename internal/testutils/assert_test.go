package testutils

import (
	"fmt"
	"testing"

	"github.com/srg/boardlink/pkg/peripheral"
	"github.com/stretchr/testify/assert"
)

type recordingT struct {
	errors []string
}

func (r *recordingT) Errorf(format string, args ...any) {
	r.errors = append(r.errors, fmt.Sprintf(format, args...))
}

func TestJSONAsserterLooseMatch(t *testing.T) {
	rt := &recordingT{}
	ja := NewJSONAsserter(rt)

	assert.True(t, ja.Assert(`{"address": "io4", "value": false, "extra": 1}`, `{"address": "io4", "value": false}`),
		"extra keys MUST be ignored by default")
	assert.True(t, ja.Assert(`{"session": "0b1c", "value": 1}`, `{"session": "<<PRESENCE>>", "value": 1}`),
		"placeholder MUST match any value")
	assert.Empty(t, rt.errors)

	assert.False(t, ja.Assert(`{"value": true}`, `{"value": false}`))
	assert.Len(t, rt.errors, 1)
}

func TestJSONAsserterStrict(t *testing.T) {
	rt := &recordingT{}
	ja := NewJSONAsserter(rt).WithOptions(WithIgnoreExtraKeys(false), WithAllowPresencePlaceholder(false))

	assert.False(t, ja.Assert(`{"a": 1, "b": 2}`, `{"a": 1}`), "extra keys MUST fail in strict mode")
	assert.False(t, ja.Assert(`{"a": 1}`, `{"a": "<<PRESENCE>>"}`))

	ja = NewJSONAsserter(rt).WithOptions(WithIgnoredFields("ts"))
	assert.True(t, ja.Assert(`{"ts": 1, "v": 2}`, `{"ts": 9, "v": 2}`), "ignored fields MUST NOT be compared")
}

func TestAssertCommands(t *testing.T) {
	rt := &recordingT{}
	cmds := []peripheral.Command{
		{Address: "io0", Payload: true},
		{Address: "spi0", Payload: map[string]any{"data": []int{1}, "read": true}},
		{Address: "io0", Payload: nil},
	}
	ja := NewJSONAsserter(rt)

	assert.True(t, ja.AssertCommands(cmds, `[{"io0": true}, {"spi0": {"data": [1], "read": true}}, {"io0": null}]`))
	assert.False(t, ja.AssertCommands(cmds[:2], `[{"io0": true}, {"spi0": {"data": [1]}}, {"io0": null}]`),
		"a missing command MUST be reported")
}

func TestTextAsserter(t *testing.T) {
	rt := &recordingT{}
	ta := NewTextAsserter(rt)

	assert.True(t, ta.Assert("io0: 1  \nio1: 0\n\n", "io0: 1\nio1: 0"), "trailing whitespace MUST be ignored")
	assert.False(t, ta.Assert("io0: 1", "io0: 0"))
	assert.Len(t, rt.errors, 1)
	assert.Contains(t, rt.errors[0], "-io0: 0")
	assert.Contains(t, rt.errors[0], "+io0: 1")

	colored := NewTextAsserter(rt).WithOptions(WithEnableColors(true)).Diff("a b", "a c")
	assert.Contains(t, colored, "a·b", "changed lines MUST show spaces when coloured")
}
