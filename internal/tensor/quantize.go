package tensor

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/x448/float16"
)

// Quantization selects how float32 weights are stored on the wire.
type Quantization string

const (
	QuantizeNone    Quantization = ""
	QuantizeFloat16 Quantization = "float16"
	QuantizeUint8   Quantization = "uint8"
)

// ParseQuantization validates a user supplied quantization name.
func ParseQuantization(s string) (Quantization, error) {
	switch q := Quantization(s); q {
	case QuantizeNone, QuantizeFloat16, QuantizeUint8:
		return q, nil
	case "none":
		return QuantizeNone, nil
	}
	return "", fmt.Errorf("unknown quantization %q (want float16 or uint8)", s)
}

// Quantized is the stored form of a quantized tensor.
type Quantized struct {
	DType DType
	Data  []byte
	// Min and Scale are set for affine uint8 quantization only.
	Min   float32
	Scale float32
}

// Quantize stores a float32 tensor with fewer bits. It returns nil for
// QuantizeNone and for tensors that are not float32.
func Quantize(t *Tensor, q Quantization) (*Quantized, error) {
	if q == QuantizeNone || t.DType != Float32 {
		return nil, nil
	}

	values, err := Float32s(t)
	if err != nil {
		return nil, err
	}

	switch q {
	case QuantizeFloat16:
		data := make([]byte, len(values)*2)
		for i, v := range values {
			binary.LittleEndian.PutUint16(data[i*2:], float16.Fromfloat32(v).Bits())
		}
		return &Quantized{DType: Float16, Data: data}, nil

	case QuantizeUint8:
		return quantizeUint8(values), nil
	}

	return nil, fmt.Errorf("unknown quantization %q", q)
}

// quantizeUint8 maps [min, max] onto 0..255.
func quantizeUint8(values []float32) *Quantized {
	lo, hi := float32(0), float32(0)
	if len(values) > 0 {
		lo, hi = values[0], values[0]
	}
	for _, v := range values {
		lo = min(lo, v)
		hi = max(hi, v)
	}

	scale := (hi - lo) / 255
	if scale == 0 {
		scale = 1
	}

	data := make([]byte, len(values))
	for i, v := range values {
		q := math.Round(float64((v - lo) / scale))
		data[i] = uint8(max(0, min(255, q)))
	}

	return &Quantized{DType: Uint8, Data: data, Min: lo, Scale: scale}
}

// Dequantize reverses Quantize, producing float32 values.
func Dequantize(q *Quantized) ([]float32, error) {
	switch q.DType {
	case Float16:
		out := make([]float32, len(q.Data)/2)
		for i := range out {
			out[i] = float16.Frombits(binary.LittleEndian.Uint16(q.Data[i*2:])).Float32()
		}
		return out, nil
	case Uint8:
		out := make([]float32, len(q.Data))
		for i, b := range q.Data {
			out[i] = q.Min + float32(b)*q.Scale
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: quantized %s", ErrUnsupportedDType, q.DType)
}
