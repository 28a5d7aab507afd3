package wire

import (
	"encoding/json"
	"io"
)

type jsonCodec struct{}

// JSON is the newline-delimited JSON codec
var JSON Codec = jsonCodec{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) NewEncoder(w io.Writer) Encoder {
	return &jsonEncoder{enc: json.NewEncoder(w)}
}

func (jsonCodec) NewDecoder(r io.Reader) Decoder {
	return &jsonDecoder{dec: json.NewDecoder(r)}
}

type jsonEncoder struct {
	enc *json.Encoder
}

// Encode writes f followed by a newline
func (e *jsonEncoder) Encode(f Frame) error {
	return e.enc.Encode(map[string]any(f))
}

type jsonDecoder struct {
	dec *json.Decoder
}

func (d *jsonDecoder) Decode() (Frame, error) {
	var f map[string]any
	if err := d.dec.Decode(&f); err != nil {
		return nil, err
	}
	return Frame(f), nil
}
