package model

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
)

// Registry manages loaders by format.
type Registry struct {
	loaders map[Format]Loader
	mu      sync.RWMutex
}

// NewRegistry creates a new loader registry.
func NewRegistry() *Registry {
	return &Registry{
		loaders: make(map[Format]Loader),
	}
}

// Register adds a loader to the registry.
func (r *Registry) Register(l Loader) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.loaders[l.Format()]; ok {
		return fmt.Errorf("%w: %s", ErrLoaderAlreadyRegistered, l.Format())
	}

	r.loaders[l.Format()] = l

	return nil
}

// Get retrieves a loader by format.
func (r *Registry) Get(format Format) (Loader, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	l, ok := r.loaders[format]
	return l, ok
}

// Formats lists the registered formats in sorted order.
func (r *Registry) Formats() []Format {
	r.mu.RLock()
	defer r.mu.RUnlock()

	formats := make([]Format, 0, len(r.loaders))
	for f := range r.loaders {
		formats = append(formats, f)
	}
	slices.Sort(formats)

	return formats
}

// Resolve returns the loader for path. With FormatAuto the format is detected
// from the file contents.
func (r *Registry) Resolve(path string, format Format) (Loader, error) {
	if format == FormatAuto {
		detected, err := Detect(path)
		if err != nil {
			return nil, err
		}
		format = detected
	}

	l, ok := r.Get(format)
	if !ok {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnsupportedFormat, format, ErrLoaderNotFound)
	}

	return l, nil
}

var (
	magicGGUF   = []byte("GGUF")
	magicGGUFBE = []byte("FUGG")
	magicHDF5   = []byte("\x89HDF\r\n\x1a\n")
)

// Detect identifies the format of the file at path from its leading bytes,
// falling back to the file extension.
func Detect(path string) (Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return FormatAuto, fmt.Errorf("failed to open model: %w", err)
	}
	defer f.Close()

	head := make([]byte, 16)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return FormatAuto, fmt.Errorf("failed to read model header: %w", err)
	}
	head = head[:n]

	switch {
	case bytes.HasPrefix(head, magicGGUF), bytes.HasPrefix(head, magicGGUFBE):
		return FormatGGUF, nil
	case bytes.HasPrefix(head, magicHDF5):
		return FormatHDF5, nil
	case looksLikeSafeTensors(head):
		return FormatSafeTensors, nil
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".safetensors":
		return FormatSafeTensors, nil
	case ".gguf":
		return FormatGGUF, nil
	case ".onnx":
		return FormatONNX, nil
	case ".h5", ".hdf5", ".keras":
		return FormatHDF5, nil
	}

	return FormatAuto, fmt.Errorf("%w: cannot detect format of %s", ErrUnsupportedFormat, path)
}

// looksLikeSafeTensors checks for a small little-endian header length followed by '{'.
func looksLikeSafeTensors(head []byte) bool {
	if len(head) < 9 || head[8] != '{' {
		return false
	}
	var size uint64
	for i := 7; i >= 0; i-- {
		size = size<<8 | uint64(head[i])
	}
	return size > 1 && size < 100*1024*1024
}
