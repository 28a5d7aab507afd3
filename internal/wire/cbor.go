package wire

import (
	"fmt"
	"io"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

var (
	cborEncMode cbor.EncMode
	cborDecMode cbor.DecMode
)

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
	}
	cborEncMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create frame CBOR encoder mode: %v", err))
	}

	// Nested objects decode as map[string]any so the classifier sees the same shapes as with JSON
	decOpts := cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyQuiet,
		IndefLength:       cbor.IndefLengthAllowed,
		ExtraReturnErrors: cbor.ExtraDecErrorNone,
		DefaultMapType:    reflect.TypeOf(map[string]any(nil)),
	}
	cborDecMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create frame CBOR decoder mode: %v", err))
	}
}

type cborCodec struct{}

// CBOR is the binary codec: a stream of concatenated CBOR maps
var CBOR Codec = cborCodec{}

func (cborCodec) Name() string { return "cbor" }

func (cborCodec) NewEncoder(w io.Writer) Encoder {
	return &cborEncoder{enc: cborEncMode.NewEncoder(w)}
}

func (cborCodec) NewDecoder(r io.Reader) Decoder {
	return &cborDecoder{dec: cborDecMode.NewDecoder(r)}
}

type cborEncoder struct {
	enc *cbor.Encoder
}

func (e *cborEncoder) Encode(f Frame) error {
	return e.enc.Encode(map[string]any(f))
}

type cborDecoder struct {
	dec *cbor.Decoder
}

func (d *cborDecoder) Decode() (Frame, error) {
	var f map[string]any
	if err := d.dec.Decode(&f); err != nil {
		return nil, err
	}
	return Frame(f), nil
}

// MarshalCBOR encodes a single frame
func MarshalCBOR(f Frame) ([]byte, error) {
	return cborEncMode.Marshal(map[string]any(f))
}

// UnmarshalCBOR decodes a single frame
func UnmarshalCBOR(data []byte) (Frame, error) {
	var f map[string]any
	if err := cborDecMode.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return Frame(f), nil
}
