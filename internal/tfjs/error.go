package tfjs

import "errors"

var (
	// ErrCorruptBundle is returned when a written bundle does not match its manifest.
	ErrCorruptBundle = errors.New("corrupt bundle")

	// ErrInvalidShardSize is returned for non-positive shard sizes.
	ErrInvalidShardSize = errors.New("shard size must be positive")
)
