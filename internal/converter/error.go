package converter

import "errors"

// ErrInvalidRequest is returned when a request lacks a source or destination.
var ErrInvalidRequest = errors.New("invalid conversion request")
