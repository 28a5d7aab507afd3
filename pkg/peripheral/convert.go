package peripheral

import (
	"fmt"
	"math"
)

// ToBool converts a decoded payload value to a digital level.
// Numbers are true when non-zero.
func ToBool(v any) (bool, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case nil:
		return false, fmt.Errorf("expected boolean, got nil")
	}
	n, err := toInt64(v)
	if err != nil {
		return false, fmt.Errorf("expected boolean: %w", err)
	}
	return n != 0, nil
}

// ToBytes converts a decoded payload value to a byte sequence.
// Accepts []byte (CBOR byte strings), arrays of integers 0..255 (JSON) and strings.
func ToBytes(v any) ([]byte, error) {
	switch b := v.(type) {
	case nil:
		return nil, nil
	case []byte:
		out := make([]byte, len(b))
		copy(out, b)
		return out, nil
	case string:
		return []byte(b), nil
	case []int:
		out := make([]byte, len(b))
		for i, n := range b {
			if n < 0 || n > math.MaxUint8 {
				return nil, fmt.Errorf("byte %d out of range: %d", i, n)
			}
			out[i] = byte(n)
		}
		return out, nil
	case []any:
		out := make([]byte, len(b))
		for i, e := range b {
			n, err := toInt64(e)
			if err != nil {
				return nil, fmt.Errorf("byte %d: %w", i, err)
			}
			if n < 0 || n > math.MaxUint8 {
				return nil, fmt.Errorf("byte %d out of range: %d", i, n)
			}
			out[i] = byte(n)
		}
		return out, nil
	}
	return nil, fmt.Errorf("expected byte sequence, got %T", v)
}

// ByteArray converts data to the integer array form used in outbound payloads
func ByteArray(data []byte) []int {
	out := make([]int, len(data))
	for i, b := range data {
		out[i] = int(b)
	}
	return out
}

// ToInt converts a decoded integral number (JSON float64, CBOR int64/uint64) to int
func ToInt(v any) (int, error) {
	n, err := toInt64(v)
	if err != nil {
		return 0, err
	}
	if n > math.MaxInt || n < math.MinInt {
		return 0, fmt.Errorf("integer overflow: %d", n)
	}
	return int(n), nil
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint:
		return int64(n), nil
	case uint8:
		return int64(n), nil
	case uint16:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint64:
		if n > math.MaxInt64 {
			return 0, fmt.Errorf("integer overflow: %d", n)
		}
		return int64(n), nil
	case float32:
		return floatToInt(float64(n))
	case float64:
		return floatToInt(n)
	}
	return 0, fmt.Errorf("expected number, got %T", v)
}

func floatToInt(f float64) (int64, error) {
	if f != math.Trunc(f) || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, fmt.Errorf("expected integer, got %v", f)
	}
	return int64(f), nil
}
