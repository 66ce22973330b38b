package converter

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ekisa-team/modelweb/internal/format/safetensors"
	"github.com/ekisa-team/modelweb/internal/model"
	"github.com/ekisa-team/modelweb/internal/tensor"
	"github.com/ekisa-team/modelweb/internal/tfjs"
)

type MockWriter struct {
	mock.Mock
}

func (m *MockWriter) Write(ctx context.Context, dest string, b *tfjs.Bundle) ([]string, error) {
	args := m.Called(ctx, dest, b)
	files, _ := args.Get(0).([]string)
	return files, args.Error(1)
}

func writeFixture(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model.safetensors")
	err := safetensors.WriteFile(path, []*tensor.Tensor{
		tensor.FromFloat32s("dense.weight", []int{2, 2}, []float32{1, 2, 3, 4}),
		tensor.FromFloat32s("dense.bias", []int{2}, []float32{0.5, -0.5}),
	}, map[string]string{"format": "pt"})
	require.NoError(t, err)
	return path
}

func newConverter(store BundleWriter) *Converter {
	return New(DefaultLoaders(), store, WithVersion("1.2.3"))
}

func TestConvert(t *testing.T) {
	source := writeFixture(t)
	dest := filepath.Join(t.TempDir(), "web")

	res, err := newConverter(tfjs.NewStore(nil)).Convert(context.Background(), Request{
		Source:      source,
		Destination: dest,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, int64(24), res.Bytes)
	assert.Equal(t, []string{"group1-shard1of1.bin", tfjs.ModelFile}, res.Files)
	assert.Equal(t, "modelweb 1.2.3", res.Manifest.ConvertedBy)
	assert.Equal(t, "pt", res.Manifest.GeneratedBy)
	assert.Equal(t, tfjs.FormatWeightsModel, res.Manifest.Format)

	for _, f := range res.Files {
		info, err := os.Stat(filepath.Join(dest, f))
		require.NoError(t, err)
		assert.Positive(t, info.Size())
	}

	m, err := tfjs.NewStore(nil).Read(context.Background(), dest)
	require.NoError(t, err)
	assert.Equal(t, res.Manifest.WeightsManifest, m.WeightsManifest)
}

func TestConvert_MissingSource(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "web")
	store := new(MockWriter)

	for _, format := range []model.Format{model.FormatAuto, model.FormatSafeTensors} {
		_, err := newConverter(store).Convert(context.Background(), Request{
			Source:      filepath.Join(t.TempDir(), "missing.safetensors"),
			Destination: dest,
			Format:      format,
		})
		assert.ErrorIs(t, err, fs.ErrNotExist)
	}

	_, err := os.Stat(dest)
	assert.ErrorIs(t, err, fs.ErrNotExist)
	store.AssertNotCalled(t, "Write", mock.Anything, mock.Anything, mock.Anything)
}

func TestConvert_UnwritableDestination(t *testing.T) {
	source := writeFixture(t)
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	_, err := newConverter(tfjs.NewStore(nil)).Convert(context.Background(), Request{
		Source:      source,
		Destination: filepath.Join(blocker, "web"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "write bundle to")
}

func TestConvert_WriteErrorIsWrapped(t *testing.T) {
	source := writeFixture(t)
	errDisk := errors.New("disk full")

	store := new(MockWriter)
	store.On("Write", mock.Anything, "out", mock.AnythingOfType("*tfjs.Bundle")).
		Return([]string{"group1-shard1of1.bin"}, errDisk)

	_, err := newConverter(store).Convert(context.Background(), Request{Source: source, Destination: "out"})
	assert.ErrorIs(t, err, errDisk)
	store.AssertExpectations(t)
}

func TestConvert_Idempotent(t *testing.T) {
	source := writeFixture(t)
	dest := t.TempDir()
	conv := newConverter(tfjs.NewStore(nil))

	read := func() map[string][]byte {
		entries, err := os.ReadDir(dest)
		require.NoError(t, err)
		out := map[string][]byte{}
		for _, e := range entries {
			data, err := os.ReadFile(filepath.Join(dest, e.Name()))
			require.NoError(t, err)
			out[e.Name()] = data
		}
		return out
	}

	req := Request{Source: source, Destination: dest, ShardSize: 8}
	_, err := conv.Convert(context.Background(), req)
	require.NoError(t, err)
	first := read()

	_, err = conv.Convert(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first, read())
	assert.Len(t, first, 4)
}

func TestConvert_Options(t *testing.T) {
	source := writeFixture(t)
	dest := t.TempDir()

	res, err := newConverter(tfjs.NewStore(nil)).Convert(context.Background(), Request{
		Source:       source,
		Destination:  dest,
		Format:       model.FormatSafeTensors,
		Quantization: tensor.QuantizeFloat16,
		Group:        2,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(12), res.Bytes)
	assert.Equal(t, []string{"group2-shard1of1.bin", tfjs.ModelFile}, res.Files)
}

func TestConvert_Errors(t *testing.T) {
	conv := newConverter(new(MockWriter))

	_, err := conv.Convert(context.Background(), Request{Source: "a.onnx"})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	h5 := filepath.Join(t.TempDir(), "model.h5")
	require.NoError(t, os.WriteFile(h5, []byte("\x89HDF\r\n\x1a\n\x00\x00"), 0o644))
	_, err = conv.Convert(context.Background(), Request{Source: h5, Destination: t.TempDir()})
	assert.ErrorIs(t, err, model.ErrUnsupportedFormat)
}
