package onnx

import (
	"context"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/ekisa-team/modelweb/internal/model"
	"github.com/ekisa-team/modelweb/internal/tensor"
)

// --- protobuf builders ---

func str(b []byte, num protowire.Number, s string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func msg(b []byte, num protowire.Number, m []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, m)
}

func varint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func packedVarints(b []byte, num protowire.Number, vs ...int64) []byte {
	var p []byte
	for _, v := range vs {
		p = protowire.AppendVarint(p, uint64(v))
	}
	return msg(b, num, p)
}

func packedFloats(b []byte, num protowire.Number, vs ...float32) []byte {
	var p []byte
	for _, v := range vs {
		p = protowire.AppendFixed32(p, math.Float32bits(v))
	}
	return msg(b, num, p)
}

func rawFloats(vs ...float32) []byte {
	out := make([]byte, len(vs)*4)
	for i, v := range vs {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

func valueInfo(name string, elem int32, dims ...any) []byte {
	var shape []byte
	for _, d := range dims {
		var dim []byte
		switch v := d.(type) {
		case int:
			dim = varint(dim, 1, uint64(v))
		case string:
			dim = str(dim, 2, v)
		}
		shape = msg(shape, 1, dim)
	}

	var tt []byte
	tt = varint(tt, 1, uint64(elem))
	tt = msg(tt, 2, shape)

	var typ []byte
	typ = msg(typ, 1, tt)

	var vi []byte
	vi = str(vi, 1, name)
	return msg(vi, 2, typ)
}

func buildModel() []byte {
	// W: 2x2 raw float, B: 2 floats via packed float_data.
	var w []byte
	w = packedVarints(w, 1, 2, 2)
	w = varint(w, 2, dataTypeFloat)
	w = str(w, 8, "W")
	w = msg(w, 9, rawFloats(1, 2, 3, 4))

	var bias []byte
	bias = varint(bias, 1, 2)
	bias = varint(bias, 2, dataTypeFloat)
	bias = str(bias, 8, "B")
	bias = packedFloats(bias, 4, 0.5, -0.5)

	var alpha []byte
	alpha = str(alpha, 1, "alpha")
	alpha = protowire.AppendTag(alpha, 2, protowire.Fixed32Type)
	alpha = protowire.AppendFixed32(alpha, math.Float32bits(1))
	alpha = varint(alpha, 20, attrFloat)

	var transB []byte
	transB = str(transB, 1, "transB")
	transB = varint(transB, 3, 1)
	transB = varint(transB, 20, attrInt)

	var gemm []byte
	for _, in := range []string{"x", "W", "B"} {
		gemm = str(gemm, 1, in)
	}
	gemm = str(gemm, 2, "h")
	gemm = str(gemm, 3, "fc")
	gemm = str(gemm, 4, "Gemm")
	gemm = msg(gemm, 5, alpha)
	gemm = msg(gemm, 5, transB)

	// Constant node without a name, tensor attribute encoded with int64_data and no type field.
	var shapeValue []byte
	shapeValue = varint(shapeValue, 1, 2)
	shapeValue = varint(shapeValue, 2, dataTypeInt64)
	shapeValue = packedVarints(shapeValue, 7, -1, 2)

	var valueAttr []byte
	valueAttr = str(valueAttr, 1, "value")
	valueAttr = msg(valueAttr, 5, shapeValue)

	var constant []byte
	constant = str(constant, 2, "shape")
	constant = str(constant, 4, "Constant")
	constant = msg(constant, 5, valueAttr)

	var graph []byte
	graph = msg(graph, 1, gemm)
	graph = msg(graph, 1, constant)
	graph = str(graph, 2, "main")
	graph = msg(graph, 5, w)
	graph = msg(graph, 5, bias)
	graph = msg(graph, 11, valueInfo("x", dataTypeFloat, "N", 2))
	graph = msg(graph, 11, valueInfo("W", dataTypeFloat, 2, 2))
	graph = msg(graph, 12, valueInfo("h", dataTypeFloat, "N", 2))

	var opset []byte
	opset = varint(opset, 2, 17)

	var meta []byte
	meta = str(meta, 1, "author")
	meta = str(meta, 2, "ekisa")

	var m []byte
	m = varint(m, 1, 8)
	m = str(m, 2, "pytorch")
	m = str(m, 3, "2.1.0")
	m = msg(m, 7, graph)
	m = msg(m, 8, opset)
	m = msg(m, 14, meta)
	return m
}

// --- tests ---

func TestDecode(t *testing.T) {
	mdl, err := Decode(buildModel())
	require.NoError(t, err)

	assert.Equal(t, model.FormatONNX, mdl.Format)
	assert.Equal(t, "pytorch 2.1.0", mdl.Producer.String())

	meta := mdl.Topology.Metadata
	assert.Equal(t, int64(8), meta["ir_version"])
	assert.Equal(t, "main", meta["graph_name"])
	assert.Equal(t, map[string]int64{"ai.onnx": 17}, meta["opset_import"])
	assert.Equal(t, "ekisa", meta["author"])

	// W is an initializer, so it is not a graph input.
	require.Len(t, mdl.Topology.Inputs, 1)
	assert.Equal(t, model.ValueInfo{Name: "x", DType: tensor.Float32, Shape: []int{-1, 2}}, mdl.Topology.Inputs[0])
	require.Len(t, mdl.Topology.Outputs, 1)
	assert.Equal(t, "h", mdl.Topology.Outputs[0].Name)

	require.Len(t, mdl.Topology.Nodes, 2)
	gemm := mdl.Topology.Nodes[0]
	assert.Equal(t, "Gemm", gemm.Op)
	assert.Equal(t, []string{"x", "W", "B"}, gemm.Inputs)
	assert.Equal(t, 1.0, gemm.Attributes["alpha"])
	assert.Equal(t, int64(1), gemm.Attributes["transB"])

	constant := mdl.Topology.Nodes[1]
	assert.Equal(t, map[string]any{"tensor": "shape/value"}, constant.Attributes["value"])

	require.Len(t, mdl.Tensors, 3)
	assert.Equal(t, "W", mdl.Tensors[0].Name)
	assert.Equal(t, rawFloats(1, 2, 3, 4), mdl.Tensors[0].Data)
	assert.Equal(t, "B", mdl.Tensors[1].Name)
	assert.Equal(t, rawFloats(0.5, -0.5), mdl.Tensors[1].Data)

	shape := mdl.Tensors[2]
	assert.Equal(t, "shape/value", shape.Name)
	assert.Equal(t, tensor.Int64, shape.DType)
	assert.Equal(t, int64(-1), int64(binary.LittleEndian.Uint64(shape.Data)))
	assert.Equal(t, int64(2), int64(binary.LittleEndian.Uint64(shape.Data[8:])))
}

func TestDecode_NoGraph(t *testing.T) {
	var m []byte
	m = varint(m, 1, 8)

	_, err := Decode(m)
	assert.ErrorIs(t, err, ErrNoGraph)
}

func TestDecode_ExternalData(t *testing.T) {
	var w []byte
	w = varint(w, 1, 1)
	w = varint(w, 2, dataTypeFloat)
	w = str(w, 8, "W")
	w = varint(w, 14, dataLocationExternal)

	var graph []byte
	graph = msg(graph, 5, w)

	var m []byte
	m = msg(m, 7, graph)

	_, err := Decode(m)
	assert.ErrorIs(t, err, ErrExternalData)
}

func TestDecode_Truncated(t *testing.T) {
	data := buildModel()

	_, err := Decode(data[:len(data)-3])
	assert.Error(t, err)
}

func TestDecode_UnsupportedDType(t *testing.T) {
	var s []byte
	s = varint(s, 2, dataTypeString)
	s = str(s, 8, "labels")

	var graph []byte
	graph = msg(graph, 5, s)

	var m []byte
	m = msg(m, 7, graph)

	_, err := Decode(m)
	assert.ErrorIs(t, err, tensor.ErrUnsupportedDType)
}

func TestLoader_Load(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.onnx")
	require.NoError(t, os.WriteFile(path, buildModel(), 0o644))

	mdl, err := NewLoader().Load(context.Background(), path)
	require.NoError(t, err)
	assert.Len(t, mdl.Tensors, 3)
	assert.Equal(t, model.FormatONNX, NewLoader().Format())
}
