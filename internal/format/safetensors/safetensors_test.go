package safetensors

import (
	"bytes"
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekisa-team/modelweb/internal/model"
	"github.com/ekisa-team/modelweb/internal/tensor"
)

func writeRaw(t *testing.T, header string, data []byte) string {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint64(len(header))))
	buf.WriteString(header)
	buf.Write(data)

	path := filepath.Join(t.TempDir(), "model.safetensors")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func TestLoader_RoundTrip(t *testing.T) {
	tensors := []*tensor.Tensor{
		tensor.FromFloat32s("dense/kernel", []int{2, 3}, []float32{1, 2, 3, 4, 5, 6}),
		tensor.FromFloat32s("dense/bias", []int{3}, []float32{0.1, 0.2, 0.3}),
		{Name: "step", DType: tensor.Int64, Shape: []int{}, Data: make([]byte, 8)},
	}

	path := filepath.Join(t.TempDir(), "model.safetensors")
	require.NoError(t, WriteFile(path, tensors, map[string]string{"format": "pt"}))

	mdl, err := NewLoader().Load(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, model.FormatSafeTensors, mdl.Format)
	assert.Equal(t, "pt", mdl.Producer.Name)
	assert.Equal(t, "pt", mdl.Topology.Metadata["format"])
	require.Len(t, mdl.Tensors, 3)

	// Source order is kept because offsets are ascending.
	assert.Equal(t, "dense/kernel", mdl.Tensors[0].Name)
	assert.Equal(t, "dense/bias", mdl.Tensors[1].Name)
	assert.Equal(t, "step", mdl.Tensors[2].Name)
	assert.Equal(t, []int{2, 3}, mdl.Tensors[0].Shape)
	assert.Equal(t, tensors[1].Data, mdl.Tensors[1].Data)
	assert.Equal(t, int64(24+12+8), mdl.WeightBytes())
}

func TestLoader_OutOfBounds(t *testing.T) {
	path := writeRaw(t, `{"w":{"dtype":"F32","shape":[4],"data_offsets":[0,16]}}`, make([]byte, 8))

	_, err := NewLoader().Load(context.Background(), path)
	assert.ErrorIs(t, err, ErrOutOfBounds)
}

func TestLoader_Overlap(t *testing.T) {
	header := `{"a":{"dtype":"F32","shape":[2],"data_offsets":[0,8]},"b":{"dtype":"F32","shape":[2],"data_offsets":[4,12]}}`
	path := writeRaw(t, header, make([]byte, 12))

	_, err := NewLoader().Load(context.Background(), path)
	assert.ErrorIs(t, err, ErrOffsetOverlap)
}

func TestLoader_UnsupportedDType(t *testing.T) {
	path := writeRaw(t, `{"w":{"dtype":"F8_E4M3","shape":[2],"data_offsets":[0,2]}}`, make([]byte, 2))

	_, err := NewLoader().Load(context.Background(), path)
	assert.ErrorIs(t, err, tensor.ErrUnsupportedDType)
}

func TestLoader_ShapeMismatch(t *testing.T) {
	path := writeRaw(t, `{"w":{"dtype":"F32","shape":[3],"data_offsets":[0,8]}}`, make([]byte, 8))

	_, err := NewLoader().Load(context.Background(), path)
	assert.ErrorIs(t, err, tensor.ErrSizeMismatch)
}

func TestLoader_HeaderTooLarge(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint64(maxHeaderSize+1)))

	_, _, err := ReadHeader(&buf)
	assert.ErrorIs(t, err, ErrHeaderTooLarge)
}

func TestLoader_MissingFile(t *testing.T) {
	_, err := NewLoader().Load(context.Background(), filepath.Join(t.TempDir(), "nope.safetensors"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoader_Canceled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.safetensors")
	require.NoError(t, WriteFile(path, []*tensor.Tensor{tensor.FromFloat32s("w", []int{1}, []float32{1})}, nil))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewLoader().Load(ctx, path)
	assert.ErrorIs(t, err, context.Canceled)
}
