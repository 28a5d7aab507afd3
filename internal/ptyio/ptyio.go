// Package ptyio exposes a pseudo-terminal pair so a simulated board can be reached
// through a device path, the same way a board on a USB serial adapter is.
//
//	p, err := ptyio.Open()
//	if err != nil {
//	    return err
//	}
//	defer p.Close()
//	fmt.Println(p.TTYName()) // "/dev/pts/5", pass it to --port
//	board.Serve(ctx, p, wire.JSON)
package ptyio

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/creack/pty"
	"golang.org/x/term"
)

// PTY is the master side of a pseudo-terminal; the slave path is handed to clients.
// The slave stays open for the lifetime of the PTY so reads on the master do not fail
// with EIO between client connections.
type PTY struct {
	master    *os.File
	slave     *os.File
	ttyName   string
	closeOnce sync.Once
}

// Open creates a PTY pair and configures the slave for raw mode
func Open() (*PTY, error) {
	master, slave, err := pty.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to create PTY (check permissions and available PTY devices): %w", err)
	}

	if _, err := term.MakeRaw(int(slave.Fd())); err != nil {
		ptyPath := slave.Name()
		cleanupErr := errors.Join(master.Close(), slave.Close())
		if cleanupErr != nil {
			return nil, fmt.Errorf("failed to set PTY(tty) %s to raw mode: %w (cleanup errors: %v)", ptyPath, err, cleanupErr)
		}
		return nil, fmt.Errorf("failed to set PTY(tty) %s to raw mode: %w", ptyPath, err)
	}

	return &PTY{master: master, slave: slave, ttyName: slave.Name()}, nil
}

// TTYName returns the filesystem path to the slave (e.g., "/dev/pts/5")
func (p *PTY) TTYName() string {
	return p.ttyName
}

func (p *PTY) Read(b []byte) (int, error) {
	return p.master.Read(b)
}

func (p *PTY) Write(b []byte) (int, error) {
	return p.master.Write(b)
}

// Close closes both sides
func (p *PTY) Close() error {
	var err error
	p.closeOnce.Do(func() {
		err = errors.Join(p.master.Close(), p.slave.Close())
	})
	return err
}
