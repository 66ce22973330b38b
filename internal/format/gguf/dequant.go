package gguf

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/x448/float16"

	"github.com/ekisa-team/modelweb/internal/tensor"
)

// dequantize expands block-quantized data into little-endian float32 bytes.
func dequantize(data []byte, typ GGMLType, n int) ([]byte, error) {
	tr := traits[typ]
	if len(data)%tr.typeSize != 0 || len(data)/tr.typeSize*tr.blockSize != n {
		return nil, fmt.Errorf("%s: %d bytes do not hold %d elements", typ, len(data), n)
	}

	var block func(b []byte, out []float32)
	switch typ {
	case TypeQ8_0:
		block = blockQ8_0
	case TypeQ4_0:
		block = blockQ4_0
	case TypeQ4_1:
		block = blockQ4_1
	default:
		return nil, fmt.Errorf("%w: GGML %s", tensor.ErrUnsupportedDType, typ)
	}

	values := make([]float32, tr.blockSize)
	out := make([]byte, n*4)
	for i := 0; i*tr.typeSize < len(data); i++ {
		block(data[i*tr.typeSize:(i+1)*tr.typeSize], values)
		for j, v := range values {
			binary.LittleEndian.PutUint32(out[(i*tr.blockSize+j)*4:], math.Float32bits(v))
		}
	}

	return out, nil
}

func half(b []byte) float32 {
	return float16.Frombits(binary.LittleEndian.Uint16(b)).Float32()
}

// blockQ8_0: half d, int8 qs[32]. x = d * q.
func blockQ8_0(b []byte, out []float32) {
	d := half(b)
	for i := 0; i < 32; i++ {
		out[i] = d * float32(int8(b[2+i]))
	}
}

// blockQ4_0: half d, uint8 qs[16]. Low nibbles hold elements 0..15, high nibbles 16..31.
// x = d * (q - 8).
func blockQ4_0(b []byte, out []float32) {
	d := half(b)
	for i := 0; i < 16; i++ {
		q := b[2+i]
		out[i] = d * (float32(q&0x0F) - 8)
		out[i+16] = d * (float32(q>>4) - 8)
	}
}

// blockQ4_1: half d, half m, uint8 qs[16]. x = d * q + m.
func blockQ4_1(b []byte, out []float32) {
	d, m := half(b), half(b[2:])
	for i := 0; i < 16; i++ {
		q := b[4+i]
		out[i] = d*float32(q&0x0F) + m
		out[i+16] = d*float32(q>>4) + m
	}
}
