package safetensors

import "errors"

// Error definitions for the safetensors package.
var (
	ErrHeaderTooLarge = errors.New("safetensors header exceeds maximum size")
	ErrOutOfBounds    = errors.New("tensor extends beyond data section")
	ErrOffsetOverlap  = errors.New("tensor offsets overlap")
)
