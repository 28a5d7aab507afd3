package ptyio

import (
	"io"
	"os"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenRoundTrip(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("pseudo-terminals are not available on windows")
	}

	p, err := Open()
	if err != nil {
		t.Skipf("PTY not available: %v", err)
	}
	defer p.Close()

	require.NotEmpty(t, p.TTYName(), "slave path MUST be known")

	client, err := os.OpenFile(p.TTYName(), os.O_RDWR, 0)
	require.NoError(t, err, "client MUST be able to open the slave")
	defer client.Close()

	_, err = client.Write([]byte("{\"io0\":true}\n"))
	require.NoError(t, err)

	frame := "{\"io0\":true}\n"
	buf := make([]byte, len(frame))
	_, err = io.ReadFull(p, buf)
	require.NoError(t, err)
	assert.Equal(t, frame, string(buf), "raw mode MUST pass bytes through unchanged")

	assert.NoError(t, p.Close())
	assert.NoError(t, p.Close(), "second close MUST be a no-op")
}
