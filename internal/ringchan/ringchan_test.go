package ringchan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushDropsOldest(t *testing.T) {
	rc := New[int](2)
	assert.False(t, rc.Push(1))
	assert.False(t, rc.Push(2))
	assert.True(t, rc.Push(3), "push into a full buffer MUST report a drop")

	assert.Equal(t, 2, rc.Len())
	assert.Equal(t, 2, rc.Cap())

	v, ok := rc.TryReceive()
	require.True(t, ok)
	assert.Equal(t, 2, v, "oldest element MUST be the one dropped")
	v, _ = rc.TryReceive()
	assert.Equal(t, 3, v)

	_, ok = rc.TryReceive()
	assert.False(t, ok, "empty buffer MUST not block")

	m := rc.GetMetrics()
	assert.Equal(t, int64(3), m.Written)
	assert.Equal(t, int64(1), m.Dropped)
}

func TestClose(t *testing.T) {
	rc := New[string](4)
	rc.Push("a")
	rc.Close()
	rc.Close()

	assert.False(t, rc.Push("b"), "Push after Close MUST be a no-op")

	var got []string
	for v := range rc.C() {
		got = append(got, v)
	}
	assert.Equal(t, []string{"a"}, got, "buffered elements MUST remain readable after Close")
}

func TestNewPanicsOnZeroCapacity(t *testing.T) {
	assert.Panics(t, func() { New[int](0) })
}
