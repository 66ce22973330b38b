package gguf

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"

	"github.com/ekisa-team/modelweb/internal/model"
	"github.com/ekisa-team/modelweb/internal/tensor"
	"github.com/ekisa-team/modelweb/mapsafe"
)

// maxMetadataArray bounds the arrays copied into the topology; tokenizer
// vocabularies are far larger and belong to a tokenizer file, not model.json.
const maxMetadataArray = 64

// Loader implements model.Loader for GGUF files.
type Loader struct{}

// NewLoader creates a GGUF loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Format returns model.FormatGGUF.
func (l *Loader) Format() model.Format {
	return model.FormatGGUF
}

// Load reads the GGUF file at path. Quantized tensors are expanded to float32.
func (l *Loader) Load(ctx context.Context, path string) (*model.Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}

	file, err := Parse(f)
	if err != nil {
		return nil, err
	}
	bigEndian := file.Header.Magic == MagicBE

	mdl := &model.Model{
		Format: model.FormatGGUF,
		Producer: model.Producer{
			Name:    mapsafe.Get(file.Metadata, "general.name", "gguf"),
			Version: fmt.Sprintf("GGUF v%d", file.Header.Version),
		},
		Topology: model.Topology{
			SourceFormat: model.FormatGGUF,
			Metadata:     topologyMetadata(file.Metadata),
		},
		Tensors: make([]*tensor.Tensor, 0, len(file.Tensors)),
	}

	for i := range file.Tensors {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		t, err := readTensor(f, file, &file.Tensors[i], stat.Size(), bigEndian)
		if err != nil {
			return nil, err
		}
		mdl.Tensors = append(mdl.Tensors, t)
	}

	slog.Debug("GGUF model loaded",
		"path", path,
		"architecture", mapsafe.Get(file.Metadata, "general.architecture", ""),
		"tensors", len(mdl.Tensors),
	)

	return mdl, nil
}

func readTensor(f *os.File, file *File, ti *TensorInfo, fileSize int64, bigEndian bool) (*tensor.Tensor, error) {
	tr, ok := traits[ti.Type]
	if !ok {
		return nil, fmt.Errorf("tensor %s: %w: GGML %s", ti.Name, tensor.ErrUnsupportedDType, ti.Type)
	}

	n := ti.NumElements()
	size, err := ti.Type.ByteSize(n)
	if err != nil {
		return nil, fmt.Errorf("tensor %s: %w", ti.Name, err)
	}

	start := file.DataOffset + int64(ti.Offset)
	if start+int64(size) > fileSize {
		return nil, fmt.Errorf("tensor %s [%d, %d] exceeds file size %d", ti.Name, start, start+int64(size), fileSize)
	}

	data := make([]byte, size)
	if _, err := f.ReadAt(data, start); err != nil {
		return nil, fmt.Errorf("read tensor %s: %w", ti.Name, err)
	}

	switch {
	case ti.Type.Quantized():
		if bigEndian {
			return nil, fmt.Errorf("tensor %s: big-endian %s: %w", ti.Name, ti.Type, tensor.ErrUnsupportedDType)
		}
		if data, err = dequantize(data, ti.Type, int(n)); err != nil {
			return nil, fmt.Errorf("tensor %s: %w", ti.Name, err)
		}
	case bigEndian:
		swapBytes(data, tr.typeSize)
	}

	t := &tensor.Tensor{Name: ti.Name, DType: tr.dtype, Shape: ti.Shape(), Data: data}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// swapBytes converts big-endian elements of width bytes to little-endian in place.
func swapBytes(data []byte, width int) {
	if width < 2 {
		return
	}
	for i := 0; i+width <= len(data); i += width {
		switch width {
		case 2:
			binary.LittleEndian.PutUint16(data[i:], binary.BigEndian.Uint16(data[i:]))
		case 4:
			binary.LittleEndian.PutUint32(data[i:], binary.BigEndian.Uint32(data[i:]))
		case 8:
			binary.LittleEndian.PutUint64(data[i:], binary.BigEndian.Uint64(data[i:]))
		}
	}
}

func topologyMetadata(meta map[string]any) map[string]any {
	out := make(map[string]any, len(meta))
	for k, v := range meta {
		if arr, ok := v.([]any); ok && len(arr) > maxMetadataArray {
			slog.Debug("Dropping large GGUF metadata array from topology", "key", k, "length", len(arr))
			continue
		}
		out[k] = v
	}
	return out
}
