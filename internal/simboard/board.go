// Package simboard is an in-process stand-in for a board: it decodes command frames,
// keeps IO levels, SPI bus state and attribute values, and answers the way firmware does.
// It backs `boardctl sim` and the end-to-end tests.
package simboard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/boardlink/internal/groutine"
	"github.com/srg/boardlink/internal/wire"
	"github.com/srg/boardlink/pkg/peripheral"
)

// ErrNotServing is returned by notifications sent before the board has a host to write to
var ErrNotServing = errors.New("board is not serving")

// Board is a simulated board
type Board struct {
	logger *logrus.Logger

	mu        sync.Mutex
	levels    map[int]bool
	streaming map[int]bool
	spiClock  map[int]int
	attrs     map[string][]byte
	commands  int

	writeMu sync.Mutex
	enc     wire.Encoder
}

// New creates an idle board
func New(logger *logrus.Logger) *Board {
	if logger == nil {
		logger = logrus.New()
	}
	return &Board{
		logger:    logger,
		levels:    make(map[int]bool),
		streaming: make(map[int]bool),
		spiClock:  make(map[int]int),
		attrs:     make(map[string][]byte),
	}
}

// Attach sets where notifications go. Serve attaches to its own stream; callers that
// notify before the serving goroutine runs attach to the same stream first.
func (b *Board) Attach(w io.Writer, codec wire.Codec) {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	b.enc = codec.NewEncoder(w)
}

// Serve answers commands read from rwc until ctx is done or the host closes its side
func (b *Board) Serve(ctx context.Context, rwc io.ReadWriteCloser, codec wire.Codec) error {
	b.Attach(rwc, codec)

	groutine.Go(ctx, "simboard-close", func(ctx context.Context) {
		<-ctx.Done()
		_ = rwc.Close()
	})

	dec := codec.NewDecoder(rwc)
	for {
		frame, err := dec.Decode()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				return nil
			}
			return fmt.Errorf("failed to decode command frame: %w", err)
		}
		if err := b.handleFrame(frame); err != nil {
			if errors.Is(err, io.ErrClosedPipe) {
				return nil
			}
			return fmt.Errorf("failed to send notification: %w", err)
		}
	}
}

func (b *Board) handleFrame(frame wire.Frame) error {
	keys := make([]string, 0, len(frame))
	for k := range frame {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, addr := range keys {
		reply, ok := b.Handle(addr, frame[addr])
		if !ok {
			continue
		}
		if err := b.Notify(addr, reply); err != nil {
			return err
		}
	}
	return nil
}

// Notify writes a notification for addr to the host
func (b *Board) Notify(addr string, payload any) error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	if b.enc == nil {
		return ErrNotServing
	}
	return b.enc.Encode(wire.Frame{addr: payload})
}

// Commands returns the number of commands handled so far
func (b *Board) Commands() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.commands
}

// Level returns the current level of io<id>
func (b *Board) Level(id int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.levels[id]
}

// SetInput changes the level seen on io<id>, notifying the host when the line streams
func (b *Board) SetInput(id int, level bool) error {
	b.mu.Lock()
	b.levels[id] = level
	stream := b.streaming[id]
	b.mu.Unlock()

	if !stream {
		return nil
	}
	return b.Notify(fmt.Sprintf("io%d", id), level)
}

// AttributeValue returns the value hosted for attr:<uuid>
func (b *Board) AttributeValue(addr string) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attrs[addr]
}

// RemoteWrite simulates a central writing an attribute
func (b *Board) RemoteWrite(addr, central string, data []byte) error {
	b.mu.Lock()
	b.attrs[addr] = append([]byte(nil), data...)
	b.mu.Unlock()
	return b.Notify(addr, map[string]any{
		peripheral.KindKey: "onwritefromremote",
		"address":          central,
		"data":             peripheral.ByteArray(data),
	})
}

// RemoteRead simulates a central reading an attribute
func (b *Board) RemoteRead(addr, central string) error {
	return b.Notify(addr, map[string]any{
		peripheral.KindKey: "onreadfromremote",
		"address":          central,
	})
}

// Handle applies one command and returns the reply to send back, if any
func (b *Board) Handle(addr string, payload any) (any, bool) {
	b.mu.Lock()
	b.commands++
	b.mu.Unlock()

	b.logger.WithFields(logrus.Fields{
		"address": addr,
		"payload": payload,
	}).Debug("Board received command")

	switch {
	case strings.HasPrefix(addr, "attr:"):
		return b.handleAttribute(addr, payload)
	case strings.HasPrefix(addr, "spi"):
		id, err := strconv.Atoi(strings.TrimPrefix(addr, "spi"))
		if err != nil {
			return fault("unknown peripheral"), true
		}
		return b.handleSPI(id, payload)
	case strings.HasPrefix(addr, "io"):
		id, err := strconv.Atoi(strings.TrimPrefix(addr, "io"))
		if err != nil {
			return fault("unknown peripheral"), true
		}
		return b.handleIO(id, payload)
	}
	return fault("unknown peripheral"), true
}

func fault(msg string) map[string]any {
	return map[string]any{"error": map[string]any{"message": msg}}
}

func warning(msg string) map[string]any {
	return map[string]any{"warning": map[string]any{"message": msg}}
}

func (b *Board) handleIO(id int, payload any) (any, bool) {
	switch p := payload.(type) {
	case nil:
		b.mu.Lock()
		delete(b.streaming, id)
		b.mu.Unlock()
		return nil, false
	case bool:
		b.mu.Lock()
		b.levels[id] = p
		b.mu.Unlock()
		return nil, false
	case map[string]any:
		if t, ok := p["output_type"].(string); ok {
			switch t {
			case "push-pull5v", "push-pull3v", "open-drain":
				return nil, false
			}
			return fault("unknown output_type " + t), true
		}
		if t, ok := p["pull_type"].(string); ok {
			switch t {
			case "pull-up5v", "pull-up3v", "pull-down", "float":
				if t == "pull-up5v" {
					return warning("pull-up5v on a 3v tolerant pin"), true
				}
				return nil, false
			}
			return fault("unknown pull_type " + t), true
		}
		if p["direction"] == "input" {
			stream, _ := p["stream"].(bool)
			b.mu.Lock()
			level := b.levels[id]
			if stream {
				b.streaming[id] = true
			}
			b.mu.Unlock()
			return level, true
		}
	}
	return fault("unsupported io command"), true
}

func (b *Board) handleSPI(id int, payload any) (any, bool) {
	if payload == nil {
		b.mu.Lock()
		delete(b.spiClock, id)
		b.mu.Unlock()
		return nil, false
	}
	p, ok := payload.(map[string]any)
	if !ok {
		return fault("unsupported spi command"), true
	}

	if mode, ok := p["mode"]; ok {
		if mode != "master" {
			return fault("unsupported spi mode"), true
		}
		freq, err := peripheral.ToInt(p["clock"])
		if err != nil || freq <= 0 {
			return fault("invalid spi clock"), true
		}
		b.mu.Lock()
		b.spiClock[id] = freq
		b.mu.Unlock()
		return nil, false
	}

	b.mu.Lock()
	_, started := b.spiClock[id]
	b.mu.Unlock()
	if !started {
		return fault("spi not started"), true
	}

	data, err := peripheral.ToBytes(p["data"])
	if err != nil {
		return fault("invalid spi data"), true
	}
	if read, _ := p["read"].(bool); !read {
		return nil, false
	}
	// MOSI looped back to MISO
	return map[string]any{"data": peripheral.ByteArray(data)}, true
}

func (b *Board) handleAttribute(addr string, payload any) (any, bool) {
	if payload == nil {
		b.mu.Lock()
		delete(b.attrs, addr)
		b.mu.Unlock()
		return nil, false
	}
	p, ok := payload.(map[string]any)
	if !ok {
		return fault("unsupported attribute command"), true
	}

	switch p["operation"] {
	case "write":
		data, err := peripheral.ToBytes(p["data"])
		if err != nil {
			return map[string]any{peripheral.KindKey: "onwrite", "result": "failed"}, true
		}
		b.mu.Lock()
		b.attrs[addr] = data
		b.mu.Unlock()
		return map[string]any{peripheral.KindKey: "onwrite", "result": "success"}, true
	case "read":
		b.mu.Lock()
		data := b.attrs[addr]
		b.mu.Unlock()
		return map[string]any{peripheral.KindKey: "onread", "data": peripheral.ByteArray(data)}, true
	}
	return fault("unsupported attribute operation"), true
}
