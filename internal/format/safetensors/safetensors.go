// Package safetensors reads Hugging Face SafeTensors files.
//
// Layout:
//
//	[8 bytes: header_size (uint64 LE)]
//	[header_size bytes: JSON header]
//	[tensor data: raw bytes]
package safetensors

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"

	"github.com/ekisa-team/modelweb/internal/model"
	"github.com/ekisa-team/modelweb/internal/tensor"
)

const (
	maxHeaderSize = 100 * 1024 * 1024
	metadataKey   = "__metadata__"
)

var dtypes = map[string]tensor.DType{
	"F16":  tensor.Float16,
	"BF16": tensor.BFloat16,
	"F32":  tensor.Float32,
	"F64":  tensor.Float64,
	"I8":   tensor.Int8,
	"I16":  tensor.Int16,
	"I32":  tensor.Int32,
	"I64":  tensor.Int64,
	"U8":   tensor.Uint8,
	"U16":  tensor.Uint16,
	"BOOL": tensor.Bool,
}

// TensorInfo describes a tensor in the header.
type TensorInfo struct {
	DType       string   `json:"dtype"`
	Shape       []int    `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"`
}

// Header is the decoded JSON header.
type Header struct {
	Metadata map[string]string
	Tensors  map[string]TensorInfo
}

// UnmarshalJSON splits __metadata__ from the tensor entries.
func (h *Header) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	h.Tensors = make(map[string]TensorInfo, len(raw))
	for key, value := range raw {
		if key == metadataKey {
			if err := json.Unmarshal(value, &h.Metadata); err != nil {
				return fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
			continue
		}

		var info TensorInfo
		if err := json.Unmarshal(value, &info); err != nil {
			return fmt.Errorf("failed to unmarshal tensor %s: %w", key, err)
		}
		h.Tensors[key] = info
	}

	return nil
}

// Loader implements model.Loader for SafeTensors files.
type Loader struct{}

// NewLoader creates a SafeTensors loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Format returns model.FormatSafeTensors.
func (l *Loader) Format() model.Format {
	return model.FormatSafeTensors
}

// Load reads every tensor of the file at path in data offset order.
func (l *Loader) Load(ctx context.Context, path string) (*model.Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	header, dataOffset, err := ReadHeader(f)
	if err != nil {
		return nil, err
	}

	names, err := orderedNames(header, stat.Size()-dataOffset)
	if err != nil {
		return nil, err
	}

	mdl := &model.Model{
		Format:   model.FormatSafeTensors,
		Producer: model.Producer{Name: "safetensors"},
		Topology: model.Topology{SourceFormat: model.FormatSafeTensors},
		Tensors:  make([]*tensor.Tensor, 0, len(names)),
	}
	if len(header.Metadata) > 0 {
		mdl.Topology.Metadata = make(map[string]any, len(header.Metadata))
		for k, v := range header.Metadata {
			mdl.Topology.Metadata[k] = v
		}
		if fmtName, ok := header.Metadata["format"]; ok {
			mdl.Producer.Name = fmtName
		}
	}

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		info := header.Tensors[name]
		dtype, ok := dtypes[info.DType]
		if !ok {
			return nil, fmt.Errorf("tensor %s: %w: %s", name, tensor.ErrUnsupportedDType, info.DType)
		}

		data := make([]byte, info.DataOffsets[1]-info.DataOffsets[0])
		if _, err := f.ReadAt(data, dataOffset+info.DataOffsets[0]); err != nil {
			return nil, fmt.Errorf("failed to read tensor %s: %w", name, err)
		}

		t := &tensor.Tensor{Name: name, DType: dtype, Shape: info.Shape, Data: data}
		if err := t.Validate(); err != nil {
			return nil, err
		}
		mdl.Tensors = append(mdl.Tensors, t)
	}

	slog.Debug("SafeTensors model loaded", "path", path, "tensors", len(mdl.Tensors), "bytes", mdl.WeightBytes())

	return mdl, nil
}

// ReadHeader reads the header and returns it with the offset of the data section.
func ReadHeader(r io.Reader) (*Header, int64, error) {
	var headerSize uint64
	if err := binary.Read(r, binary.LittleEndian, &headerSize); err != nil {
		return nil, 0, fmt.Errorf("failed to read header size: %w", err)
	}

	if headerSize > maxHeaderSize {
		return nil, 0, fmt.Errorf("%w: %d bytes", ErrHeaderTooLarge, headerSize)
	}

	headerBytes := make([]byte, headerSize)
	if _, err := io.ReadFull(r, headerBytes); err != nil {
		return nil, 0, fmt.Errorf("failed to read header: %w", err)
	}

	var header Header
	if err := json.Unmarshal(headerBytes, &header); err != nil {
		return nil, 0, fmt.Errorf("failed to parse header JSON: %w", err)
	}

	return &header, int64(8 + headerSize), nil
}

// orderedNames returns tensor names sorted by data offset after checking
// that every range lies inside the data section and no two ranges overlap.
func orderedNames(h *Header, dataSize int64) ([]string, error) {
	names := make([]string, 0, len(h.Tensors))
	for name, info := range h.Tensors {
		start, end := info.DataOffsets[0], info.DataOffsets[1]
		if start < 0 || end < start || end > dataSize {
			return nil, fmt.Errorf("tensor %s [%d, %d] of %d bytes: %w", name, start, end, dataSize, ErrOutOfBounds)
		}
		names = append(names, name)
	}

	sort.Slice(names, func(i, j int) bool {
		a, b := h.Tensors[names[i]].DataOffsets, h.Tensors[names[j]].DataOffsets
		if a[0] != b[0] {
			return a[0] < b[0]
		}
		return names[i] < names[j]
	})

	for i := 1; i < len(names); i++ {
		prev, cur := h.Tensors[names[i-1]].DataOffsets, h.Tensors[names[i]].DataOffsets
		if cur[0] < prev[1] {
			return nil, fmt.Errorf("tensors %s and %s: %w", names[i-1], names[i], ErrOffsetOverlap)
		}
	}

	return names, nil
}
