// Package wire encodes and decodes the frames exchanged with a board.
//
// A frame is an object keyed by peripheral address. Outbound frames carry one
// command payload; inbound frames may carry notifications for several peripherals.
//
//	{"io0": true}
//	{"spi0": {"data": [1, 2, 3]}, "io3": false}
package wire

import (
	"fmt"
	"io"
	"sort"
	"strings"
)

// Frame is one wire message keyed by peripheral address
type Frame map[string]any

// Encoder writes frames to a stream
type Encoder interface {
	Encode(f Frame) error
}

// Decoder reads frames from a stream
type Decoder interface {
	Decode() (Frame, error)
}

// Codec creates encoders and decoders for one wire format
type Codec interface {
	Name() string
	NewEncoder(w io.Writer) Encoder
	NewDecoder(r io.Reader) Decoder
}

var codecs = map[string]Codec{
	JSON.Name(): JSON,
	CBOR.Name(): CBOR,
}

// Lookup returns the codec registered under name
func Lookup(name string) (Codec, error) {
	c, ok := codecs[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown codec %q (available: %s)", name, strings.Join(Names(), ", "))
	}
	return c, nil
}

// Names lists the registered codec names
func Names() []string {
	names := make([]string, 0, len(codecs))
	for n := range codecs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
