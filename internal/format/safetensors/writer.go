package safetensors

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/ekisa-team/modelweb/internal/tensor"
)

var dtypeNames = func() map[tensor.DType]string {
	names := make(map[tensor.DType]string, len(dtypes))
	for name, dtype := range dtypes {
		names[dtype] = name
	}
	return names
}()

// Write encodes tensors as a SafeTensors stream, in the given order.
func Write(w io.Writer, tensors []*tensor.Tensor, metadata map[string]string) error {
	header := make(map[string]any, len(tensors)+1)
	if len(metadata) > 0 {
		header[metadataKey] = metadata
	}

	var offset int64
	for _, t := range tensors {
		name, ok := dtypeNames[t.DType]
		if !ok {
			return fmt.Errorf("tensor %s: %w: %s", t.Name, tensor.ErrUnsupportedDType, t.DType)
		}

		shape := t.Shape
		if shape == nil {
			shape = []int{}
		}

		size := int64(len(t.Data))
		header[t.Name] = TensorInfo{
			DType:       name,
			Shape:       shape,
			DataOffsets: [2]int64{offset, offset + size},
		}
		offset += size
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}

	if err := binary.Write(w, binary.LittleEndian, uint64(len(headerJSON))); err != nil {
		return fmt.Errorf("failed to write header size: %w", err)
	}
	if _, err := w.Write(headerJSON); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, t := range tensors {
		if _, err := w.Write(t.Data); err != nil {
			return fmt.Errorf("failed to write tensor %s: %w", t.Name, err)
		}
	}

	return nil
}

// WriteFile writes tensors to a SafeTensors file at path.
func WriteFile(path string, tensors []*tensor.Tensor, metadata map[string]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}

	if err := Write(f, tensors, metadata); err != nil {
		_ = f.Close()
		return err
	}

	return f.Close()
}
