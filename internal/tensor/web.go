package tensor

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/x448/float16"
)

// WebDType returns the dtype a browser runtime can load for a source dtype.
// Floats widen or narrow to float32, integers map to int32 and bools stay bools.
func WebDType(d DType) (DType, error) {
	switch d {
	case Float16, BFloat16, Float32, Float64:
		return Float32, nil
	case Int8, Int16, Int32, Int64, Uint8, Uint16:
		return Int32, nil
	case Bool:
		return Bool, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedDType, d)
}

// ToWeb returns a copy of t re-encoded in its web dtype. Tensors that are
// already in a web dtype are returned unchanged.
func ToWeb(t *Tensor) (*Tensor, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}

	target, err := WebDType(t.DType)
	if err != nil {
		return nil, fmt.Errorf("tensor %q: %w", t.Name, err)
	}
	if target == t.DType {
		return t, nil
	}

	n := t.NumElements()
	out := make([]byte, n*target.Size())

	switch target {
	case Float32:
		for i := 0; i < n; i++ {
			binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(floatAt(t, i)))
		}
	case Int32:
		for i := 0; i < n; i++ {
			v := intAt(t, i)
			if v < math.MinInt32 || v > math.MaxInt32 {
				return nil, fmt.Errorf("tensor %q element %d = %d: %w", t.Name, i, v, ErrValueOutOfRange)
			}
			binary.LittleEndian.PutUint32(out[i*4:], uint32(int32(v)))
		}
	}

	return &Tensor{
		Name:  t.Name,
		DType: target,
		Shape: t.Shape,
		Data:  out,
	}, nil
}

// Float32s decodes a float32 tensor into a slice.
func Float32s(t *Tensor) ([]float32, error) {
	if t.DType != Float32 {
		return nil, fmt.Errorf("tensor %q is %s, not float32", t.Name, t.DType)
	}

	out := make([]float32, len(t.Data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(t.Data[i*4:]))
	}
	return out, nil
}

// FromFloat32s builds a float32 tensor from values.
func FromFloat32s(name string, shape []int, values []float32) *Tensor {
	data := make([]byte, len(values)*4)
	for i, v := range values {
		binary.LittleEndian.PutUint32(data[i*4:], math.Float32bits(v))
	}
	return &Tensor{Name: name, DType: Float32, Shape: shape, Data: data}
}

// BFloat16ToFloat32 widens a bfloat16 bit pattern.
func BFloat16ToFloat32(bits uint16) float32 {
	return math.Float32frombits(uint32(bits) << 16)
}

func floatAt(t *Tensor, i int) float32 {
	switch t.DType {
	case Float16:
		return float16.Frombits(binary.LittleEndian.Uint16(t.Data[i*2:])).Float32()
	case BFloat16:
		return BFloat16ToFloat32(binary.LittleEndian.Uint16(t.Data[i*2:]))
	case Float64:
		return float32(math.Float64frombits(binary.LittleEndian.Uint64(t.Data[i*8:])))
	default:
		return math.Float32frombits(binary.LittleEndian.Uint32(t.Data[i*4:]))
	}
}

func intAt(t *Tensor, i int) int64 {
	switch t.DType {
	case Int8:
		return int64(int8(t.Data[i]))
	case Uint8:
		return int64(t.Data[i])
	case Int16:
		return int64(int16(binary.LittleEndian.Uint16(t.Data[i*2:])))
	case Uint16:
		return int64(binary.LittleEndian.Uint16(t.Data[i*2:]))
	case Int64:
		return int64(binary.LittleEndian.Uint64(t.Data[i*8:]))
	default:
		return int64(int32(binary.LittleEndian.Uint32(t.Data[i*4:])))
	}
}
