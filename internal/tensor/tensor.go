// Package tensor holds the raw tensor representation shared by every loader
// and the dtype rules used to turn it into web-loadable weights.
package tensor

import (
	"fmt"
)

// DType is the element type of a tensor as stored in the source artifact.
type DType string

const (
	Float16  DType = "float16"
	BFloat16 DType = "bfloat16"
	Float32  DType = "float32"
	Float64  DType = "float64"
	Int8     DType = "int8"
	Int16    DType = "int16"
	Int32    DType = "int32"
	Int64    DType = "int64"
	Uint8    DType = "uint8"
	Uint16   DType = "uint16"
	Bool     DType = "bool"
)

var dtypeSizes = map[DType]int{
	Float16:  2,
	BFloat16: 2,
	Float32:  4,
	Float64:  8,
	Int8:     1,
	Int16:    2,
	Int32:    4,
	Int64:    8,
	Uint8:    1,
	Uint16:   2,
	Bool:     1,
}

// Size returns the element size in bytes, or 0 for unknown dtypes.
func (d DType) Size() int {
	return dtypeSizes[d]
}

// Valid reports whether d is a known dtype.
func (d DType) Valid() bool {
	_, ok := dtypeSizes[d]
	return ok
}

// IsFloat reports whether d is a floating point dtype.
func (d DType) IsFloat() bool {
	switch d {
	case Float16, BFloat16, Float32, Float64:
		return true
	}
	return false
}

// Tensor is a named block of little-endian element data.
type Tensor struct {
	Name  string
	DType DType
	Shape []int
	Data  []byte
}

// NumElements returns the element count implied by the shape. A scalar has one element.
func (t *Tensor) NumElements() int {
	n := 1
	for _, d := range t.Shape {
		n *= d
	}
	return n
}

// ByteSize returns the number of bytes the shape and dtype require.
func (t *Tensor) ByteSize() int {
	return t.NumElements() * t.DType.Size()
}

// Validate checks the dtype, the shape and that the data length matches both.
func (t *Tensor) Validate() error {
	if !t.DType.Valid() {
		return fmt.Errorf("tensor %q: %w: %s", t.Name, ErrUnsupportedDType, t.DType)
	}
	for _, d := range t.Shape {
		if d < 0 {
			return fmt.Errorf("tensor %q: negative dimension in shape %v", t.Name, t.Shape)
		}
	}
	if want := t.ByteSize(); len(t.Data) != want {
		return fmt.Errorf("tensor %q: %w: have %d bytes, want %d", t.Name, ErrSizeMismatch, len(t.Data), want)
	}
	return nil
}
