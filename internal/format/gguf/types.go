// Package gguf reads llama.cpp GGUF model files.
//
// Specification: https://github.com/ggerganov/ggml/blob/master/docs/gguf.md
package gguf

import (
	"fmt"

	"github.com/ekisa-team/modelweb/internal/tensor"
)

// Magic bytes for GGUF format.
const (
	MagicLE uint32 = 0x46554747 // "GGUF" little-endian.
	MagicBE uint32 = 0x47475546 // "GGUF" big-endian (reversed).
)

// DefaultAlignment is the default alignment for tensor data.
const DefaultAlignment = 32

// ValueType is the type tag of a metadata value.
type ValueType uint32

// Metadata value types.
const (
	ValueTypeUint8   ValueType = 0
	ValueTypeInt8    ValueType = 1
	ValueTypeUint16  ValueType = 2
	ValueTypeInt16   ValueType = 3
	ValueTypeUint32  ValueType = 4
	ValueTypeInt32   ValueType = 5
	ValueTypeFloat32 ValueType = 6
	ValueTypeBool    ValueType = 7
	ValueTypeString  ValueType = 8
	ValueTypeArray   ValueType = 9
	ValueTypeUint64  ValueType = 10
	ValueTypeInt64   ValueType = 11
	ValueTypeFloat64 ValueType = 12
)

// GGMLType is the element type of a tensor.
type GGMLType uint32

//nolint:revive // Underscores in names match GGML specification.
const (
	TypeF32  GGMLType = 0
	TypeF16  GGMLType = 1
	TypeQ4_0 GGMLType = 2
	TypeQ4_1 GGMLType = 3
	TypeQ8_0 GGMLType = 8
	TypeI8   GGMLType = 24
	TypeI16  GGMLType = 25
	TypeI32  GGMLType = 26
	TypeI64  GGMLType = 27
	TypeF64  GGMLType = 28
	TypeBF16 GGMLType = 29
)

// trait describes the storage of a GGML type.
type trait struct {
	name      string
	blockSize int
	typeSize  int
	// dtype is the element type after decoding; quantized types decode to float32.
	dtype tensor.DType
}

var traits = map[GGMLType]trait{
	TypeF32:  {name: "F32", blockSize: 1, typeSize: 4, dtype: tensor.Float32},
	TypeF16:  {name: "F16", blockSize: 1, typeSize: 2, dtype: tensor.Float16},
	TypeQ4_0: {name: "Q4_0", blockSize: 32, typeSize: 18, dtype: tensor.Float32},
	TypeQ4_1: {name: "Q4_1", blockSize: 32, typeSize: 20, dtype: tensor.Float32},
	TypeQ8_0: {name: "Q8_0", blockSize: 32, typeSize: 34, dtype: tensor.Float32},
	TypeI8:   {name: "I8", blockSize: 1, typeSize: 1, dtype: tensor.Int8},
	TypeI16:  {name: "I16", blockSize: 1, typeSize: 2, dtype: tensor.Int16},
	TypeI32:  {name: "I32", blockSize: 1, typeSize: 4, dtype: tensor.Int32},
	TypeI64:  {name: "I64", blockSize: 1, typeSize: 8, dtype: tensor.Int64},
	TypeF64:  {name: "F64", blockSize: 1, typeSize: 8, dtype: tensor.Float64},
	TypeBF16: {name: "BF16", blockSize: 1, typeSize: 2, dtype: tensor.BFloat16},
}

// String returns the GGML name of the type.
func (t GGMLType) String() string {
	if tr, ok := traits[t]; ok {
		return tr.name
	}
	return fmt.Sprintf("type(%d)", uint32(t))
}

// Quantized reports whether the type stores blocks with shared scales.
func (t GGMLType) Quantized() bool {
	return traits[t].blockSize > 1
}

// ByteSize returns the encoded size of n elements, or an error for unsupported types.
func (t GGMLType) ByteSize(n uint64) (uint64, error) {
	tr, ok := traits[t]
	if !ok {
		return 0, fmt.Errorf("%w: GGML %s", tensor.ErrUnsupportedDType, t)
	}
	bs := uint64(tr.blockSize)
	if n%bs != 0 {
		return 0, fmt.Errorf("%d elements is not a multiple of the %s block size %d", n, t, bs)
	}
	return n / bs * uint64(tr.typeSize), nil
}

// Header is the fixed GGUF file header.
type Header struct {
	Magic           uint32
	Version         uint32
	TensorCount     uint64
	MetadataKVCount uint64
}

// TensorInfo describes one tensor. Dimensions are in GGML order, fastest varying first.
type TensorInfo struct {
	Name       string
	Dimensions []uint64
	Type       GGMLType
	Offset     uint64
}

// NumElements returns the element count.
func (ti *TensorInfo) NumElements() uint64 {
	n := uint64(1)
	for _, d := range ti.Dimensions {
		n *= d
	}
	return n
}

// Shape returns the row-major shape, slowest varying dimension first.
func (ti *TensorInfo) Shape() []int {
	shape := make([]int, len(ti.Dimensions))
	for i, d := range ti.Dimensions {
		shape[len(shape)-1-i] = int(d)
	}
	return shape
}

// File is a parsed GGUF header block.
type File struct {
	Header     Header
	Metadata   map[string]any
	Tensors    []TensorInfo
	Alignment  int
	DataOffset int64
}
