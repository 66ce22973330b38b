package model

import "errors"

// Error definitions for the model package.
var (
	ErrLoaderNotFound          = errors.New("loader not found in registry")
	ErrLoaderAlreadyRegistered = errors.New("loader is already registered in the registry")
	ErrUnsupportedFormat       = errors.New("unsupported model format")
)
