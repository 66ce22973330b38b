package conversion

import "errors"

// Error definitions for the conversion package.
var (
	ErrJobNotFound = errors.New("conversion job not found in registry")
)
