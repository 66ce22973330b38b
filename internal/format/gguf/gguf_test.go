package gguf

import (
	"bytes"
	"context"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"

	"github.com/ekisa-team/modelweb/internal/model"
	"github.com/ekisa-team/modelweb/internal/tensor"
)

type kv struct {
	key   string
	typ   ValueType
	value any
}

type rawTensor struct {
	name string
	dims []uint64
	typ  GGMLType
	data []byte
}

// buildGGUF encodes a little-endian GGUF v3 file.
func buildGGUF(t *testing.T, kvs []kv, tensors []rawTensor, alignment int) []byte {
	t.Helper()

	var buf bytes.Buffer
	w := func(v any) { require.NoError(t, binary.Write(&buf, binary.LittleEndian, v)) }
	str := func(s string) {
		w(uint64(len(s)))
		buf.WriteString(s)
	}

	w(MagicLE)
	w(uint32(3))
	w(uint64(len(tensors)))
	w(uint64(len(kvs)))

	for _, e := range kvs {
		str(e.key)
		w(uint32(e.typ))
		switch e.typ {
		case ValueTypeString:
			str(e.value.(string))
		case ValueTypeArray:
			items := e.value.([]string)
			w(uint32(ValueTypeString))
			w(uint64(len(items)))
			for _, s := range items {
				str(s)
			}
		default:
			w(e.value)
		}
	}

	var offset uint64
	offsets := make([]uint64, len(tensors))
	for i, rt := range tensors {
		offsets[i] = offset
		offset += uint64(len(rt.data))
		offset = (offset + uint64(alignment) - 1) / uint64(alignment) * uint64(alignment)
	}

	for i, rt := range tensors {
		str(rt.name)
		w(uint32(len(rt.dims)))
		for _, d := range rt.dims {
			w(d)
		}
		w(uint32(rt.typ))
		w(offsets[i])
	}

	for buf.Len()%alignment != 0 {
		buf.WriteByte(0)
	}
	base := buf.Len()
	for i, rt := range tensors {
		for buf.Len() < base+int(offsets[i]) {
			buf.WriteByte(0)
		}
		buf.Write(rt.data)
	}

	return buf.Bytes()
}

func f32Bytes(values ...float32) []byte {
	out := make([]byte, len(values)*4)
	for i, v := range values {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

func writeModel(t *testing.T, data []byte) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "model.gguf")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestParse_HeaderAndMetadata(t *testing.T) {
	data := buildGGUF(t, []kv{
		{key: "general.architecture", typ: ValueTypeString, value: "llama"},
		{key: "general.alignment", typ: ValueTypeUint32, value: uint32(64)},
		{key: "llama.rope.freq_base", typ: ValueTypeFloat32, value: float32(10000)},
		{key: "general.tags", typ: ValueTypeArray, value: []string{"a", "b"}},
	}, []rawTensor{
		{name: "w", dims: []uint64{2}, typ: TypeF32, data: f32Bytes(1, 2)},
	}, 64)

	file, err := Parse(bytes.NewReader(data))
	require.NoError(t, err)

	assert.Equal(t, uint32(3), file.Header.Version)
	assert.Equal(t, 64, file.Alignment)
	assert.Equal(t, "llama", file.Metadata["general.architecture"])
	assert.Equal(t, 10000.0, file.Metadata["llama.rope.freq_base"])
	assert.Equal(t, []any{"a", "b"}, file.Metadata["general.tags"])
	assert.Equal(t, int64(0), file.DataOffset%64)
	require.Len(t, file.Tensors, 1)
}

func TestParse_InvalidMagic(t *testing.T) {
	_, err := Parse(bytes.NewReader([]byte("NOPE\x03\x00\x00\x00")))
	assert.ErrorIs(t, err, ErrInvalidMagic)
}

func TestParse_UnsupportedVersion(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, MagicLE))
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint32(9)))

	_, err := Parse(&buf)
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestLoader_Load(t *testing.T) {
	f16 := make([]byte, 4)
	binary.LittleEndian.PutUint16(f16, float16.Fromfloat32(0.5).Bits())
	binary.LittleEndian.PutUint16(f16[2:], float16.Fromfloat32(-4).Bits())

	data := buildGGUF(t, []kv{
		{key: "general.name", typ: ValueTypeString, value: "tiny"},
	}, []rawTensor{
		{name: "token_embd.weight", dims: []uint64{3, 2}, typ: TypeF32, data: f32Bytes(1, 2, 3, 4, 5, 6)},
		{name: "norm.weight", dims: []uint64{2}, typ: TypeF16, data: f16},
	}, DefaultAlignment)

	mdl, err := NewLoader().Load(context.Background(), writeModel(t, data))
	require.NoError(t, err)

	assert.Equal(t, model.FormatGGUF, mdl.Format)
	assert.Equal(t, "tiny", mdl.Producer.Name)
	assert.Equal(t, "GGUF v3", mdl.Producer.Version)
	require.Len(t, mdl.Tensors, 2)

	emb := mdl.Tensors[0]
	assert.Equal(t, "token_embd.weight", emb.Name)
	assert.Equal(t, []int{2, 3}, emb.Shape)
	assert.Equal(t, tensor.Float32, emb.DType)
	assert.Equal(t, f32Bytes(1, 2, 3, 4, 5, 6), emb.Data)

	norm := mdl.Tensors[1]
	assert.Equal(t, tensor.Float16, norm.DType)
	assert.Equal(t, f16, norm.Data)
}

func TestLoader_DequantizeQ8_0(t *testing.T) {
	block := make([]byte, 34)
	binary.LittleEndian.PutUint16(block, float16.Fromfloat32(0.5).Bits())
	for i := 0; i < 32; i++ {
		block[2+i] = byte(int8(i - 16))
	}

	data := buildGGUF(t, nil, []rawTensor{
		{name: "q", dims: []uint64{32}, typ: TypeQ8_0, data: block},
	}, DefaultAlignment)

	mdl, err := NewLoader().Load(context.Background(), writeModel(t, data))
	require.NoError(t, err)

	values, err := tensor.Float32s(mdl.Tensors[0])
	require.NoError(t, err)
	require.Len(t, values, 32)
	assert.Equal(t, float32(-8), values[0])
	assert.Equal(t, float32(0), values[16])
	assert.Equal(t, float32(7.5), values[31])
}

func TestDequantize_Q4(t *testing.T) {
	q40 := make([]byte, 18)
	binary.LittleEndian.PutUint16(q40, float16.Fromfloat32(2).Bits())
	q40[2] = 0xF0 // element 0 -> low nibble 0, element 16 -> high nibble 15

	out, err := dequantize(q40, TypeQ4_0, 32)
	require.NoError(t, err)
	values, err := tensor.Float32s(&tensor.Tensor{DType: tensor.Float32, Data: out})
	require.NoError(t, err)
	assert.Equal(t, float32(-16), values[0])
	assert.Equal(t, float32(14), values[16])

	q41 := make([]byte, 20)
	binary.LittleEndian.PutUint16(q41, float16.Fromfloat32(1).Bits())
	binary.LittleEndian.PutUint16(q41[2:], float16.Fromfloat32(-1).Bits())
	q41[4] = 0x21

	out, err = dequantize(q41, TypeQ4_1, 32)
	require.NoError(t, err)
	values, err = tensor.Float32s(&tensor.Tensor{DType: tensor.Float32, Data: out})
	require.NoError(t, err)
	assert.Equal(t, float32(0), values[0])
	assert.Equal(t, float32(1), values[16])
	assert.Equal(t, float32(-1), values[1])
}

func TestLoader_UnsupportedType(t *testing.T) {
	data := buildGGUF(t, nil, []rawTensor{
		{name: "k", dims: []uint64{256}, typ: GGMLType(12), data: make([]byte, 144)},
	}, DefaultAlignment)

	_, err := NewLoader().Load(context.Background(), writeModel(t, data))
	assert.ErrorIs(t, err, tensor.ErrUnsupportedDType)
}

func TestLoader_TruncatedData(t *testing.T) {
	data := buildGGUF(t, nil, []rawTensor{
		{name: "w", dims: []uint64{4}, typ: TypeF32, data: f32Bytes(1, 2, 3, 4)},
	}, DefaultAlignment)

	_, err := NewLoader().Load(context.Background(), writeModel(t, data[:len(data)-4]))
	assert.Error(t, err)
}

func TestTopologyMetadata_DropsLargeArrays(t *testing.T) {
	big := make([]any, maxMetadataArray+1)
	out := topologyMetadata(map[string]any{
		"tokenizer.ggml.tokens": big,
		"general.name":          "x",
	})

	assert.NotContains(t, out, "tokenizer.ggml.tokens")
	assert.Equal(t, "x", out["general.name"])
}
