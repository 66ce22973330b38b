package tensor

import "errors"

// Error definitions for the tensor package.
var (
	ErrUnsupportedDType = errors.New("unsupported tensor dtype")
	ErrValueOutOfRange  = errors.New("tensor value out of range for target dtype")
	ErrSizeMismatch     = errors.New("tensor data size does not match shape")
)
