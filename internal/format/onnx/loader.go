package onnx

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strconv"

	"github.com/ekisa-team/modelweb/internal/model"
	"github.com/ekisa-team/modelweb/internal/tensor"
)

// Error definitions for the onnx package.
var (
	ErrNoGraph      = errors.New("onnx model has no graph")
	ErrExternalData = errors.New("onnx tensors with external data are not supported")
)

var dtypes = map[int32]tensor.DType{
	dataTypeFloat:    tensor.Float32,
	dataTypeUint8:    tensor.Uint8,
	dataTypeInt8:     tensor.Int8,
	dataTypeUint16:   tensor.Uint16,
	dataTypeInt16:    tensor.Int16,
	dataTypeInt32:    tensor.Int32,
	dataTypeInt64:    tensor.Int64,
	dataTypeBool:     tensor.Bool,
	dataTypeFloat16:  tensor.Float16,
	dataTypeDouble:   tensor.Float64,
	dataTypeBFloat16: tensor.BFloat16,
}

// Loader implements model.Loader for ONNX files.
type Loader struct{}

// NewLoader creates an ONNX loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Format returns model.FormatONNX.
func (l *Loader) Format() model.Format {
	return model.FormatONNX
}

// Load decodes the ONNX model at path.
func (l *Loader) Load(ctx context.Context, path string) (*model.Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mdl, err := Decode(data)
	if err != nil {
		return nil, err
	}

	slog.Debug("ONNX model loaded", "path", path, "nodes", len(mdl.Topology.Nodes), "tensors", len(mdl.Tensors))

	return mdl, nil
}

// Decode converts an encoded ModelProto into a model.
func Decode(data []byte) (*model.Model, error) {
	mp, err := decodeModel(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse model: %w", err)
	}
	if mp.Graph == nil {
		return nil, ErrNoGraph
	}

	producer := model.Producer{Name: mp.ProducerName, Version: mp.ProducerVersion}
	if producer.Name == "" {
		producer.Name = "onnx"
	}

	mdl := &model.Model{
		Format:   model.FormatONNX,
		Producer: producer,
		Topology: model.Topology{
			SourceFormat: model.FormatONNX,
			Metadata:     modelMetadata(mp),
		},
	}

	initialized := make(map[string]bool, len(mp.Graph.Initializers))
	for i := range mp.Graph.Initializers {
		t, err := toTensor(&mp.Graph.Initializers[i])
		if err != nil {
			return nil, err
		}
		initialized[t.Name] = true
		mdl.Tensors = append(mdl.Tensors, t)
	}

	for _, in := range mp.Graph.Inputs {
		if !initialized[in.Name] {
			mdl.Topology.Inputs = append(mdl.Topology.Inputs, toValueInfo(in))
		}
	}
	for _, out := range mp.Graph.Outputs {
		mdl.Topology.Outputs = append(mdl.Topology.Outputs, toValueInfo(out))
	}

	for i := range mp.Graph.Nodes {
		node, extra, err := toNode(&mp.Graph.Nodes[i], i)
		if err != nil {
			return nil, err
		}
		mdl.Topology.Nodes = append(mdl.Topology.Nodes, node)
		mdl.Tensors = append(mdl.Tensors, extra...)
	}

	return mdl, nil
}

func modelMetadata(mp *modelProto) map[string]any {
	meta := map[string]any{
		"ir_version": mp.IRVersion,
	}
	if mp.Graph.Name != "" {
		meta["graph_name"] = mp.Graph.Name
	}
	if mp.Domain != "" {
		meta["domain"] = mp.Domain
	}
	if mp.ModelVersion != 0 {
		meta["model_version"] = mp.ModelVersion
	}
	if mp.DocString != "" {
		meta["doc_string"] = mp.DocString
	}

	if len(mp.OpsetImport) > 0 {
		opsets := make(map[string]int64, len(mp.OpsetImport))
		for _, op := range mp.OpsetImport {
			domain := op.Domain
			if domain == "" {
				domain = "ai.onnx"
			}
			opsets[domain] = op.Version
		}
		meta["opset_import"] = opsets
	}

	for _, e := range mp.MetadataProps {
		meta[e.Key] = e.Value
	}

	return meta
}

func toValueInfo(vi valueInfoProto) model.ValueInfo {
	out := model.ValueInfo{Name: vi.Name, DType: dtypes[vi.ElemType]}
	if vi.HasShape {
		out.Shape = make([]int, len(vi.Dims))
		for i, d := range vi.Dims {
			out.Shape[i] = -1
			if d.Value > 0 {
				out.Shape[i] = int(d.Value)
			}
		}
	}
	return out
}

// toNode converts a node. Tensor attributes are moved into weights and
// referenced by name from the attribute map.
func toNode(np *nodeProto, index int) (model.Node, []*tensor.Tensor, error) {
	node := model.Node{
		Name:    np.Name,
		Op:      np.OpType,
		Domain:  np.Domain,
		Inputs:  np.Inputs,
		Outputs: np.Outputs,
	}
	if len(np.Attributes) == 0 {
		return node, nil, nil
	}

	key := np.Name
	if key == "" && len(np.Outputs) > 0 {
		key = np.Outputs[0]
	}
	if key == "" {
		key = np.OpType + "_" + strconv.Itoa(index)
	}

	var extra []*tensor.Tensor
	node.Attributes = make(map[string]any, len(np.Attributes))
	for i := range np.Attributes {
		a := &np.Attributes[i]
		switch attrKind(a) {
		case attrFloat:
			node.Attributes[a.Name] = float64(a.F)
		case attrInt:
			node.Attributes[a.Name] = a.I
		case attrString:
			node.Attributes[a.Name] = string(a.S)
		case attrFloats:
			node.Attributes[a.Name] = a.Floats
		case attrInts:
			node.Attributes[a.Name] = a.Ints
		case attrStrings:
			strs := make([]string, len(a.Strings))
			for j, s := range a.Strings {
				strs[j] = string(s)
			}
			node.Attributes[a.Name] = strs
		case attrTensor:
			a.T.Name = key + "/" + a.Name
			t, err := toTensor(a.T)
			if err != nil {
				return node, nil, err
			}
			extra = append(extra, t)
			node.Attributes[a.Name] = map[string]any{"tensor": t.Name}
		case attrGraph:
			node.Attributes[a.Name] = map[string]any{"graph": a.G.Name, "nodes": len(a.G.Nodes)}
		default:
			slog.Debug("Skipping unsupported ONNX attribute", "node", key, "attribute", a.Name, "type", a.Type)
		}
	}

	return node, extra, nil
}

func attrKind(a *attributeProto) int32 {
	if a.Type != 0 {
		if (a.Type == attrTensor && a.T == nil) || (a.Type == attrGraph && a.G == nil) {
			return 0
		}
		return a.Type
	}

	switch {
	case a.set&setT != 0:
		return attrTensor
	case a.set&setG != 0:
		return attrGraph
	case a.set&setFloats != 0:
		return attrFloats
	case a.set&setInts != 0:
		return attrInts
	case a.set&setStrings != 0:
		return attrStrings
	case a.set&setS != 0:
		return attrString
	case a.set&setF != 0:
		return attrFloat
	case a.set&setI != 0:
		return attrInt
	}
	return 0
}

func toTensor(tp *tensorProto) (*tensor.Tensor, error) {
	if tp.DataLocation == dataLocationExternal {
		return nil, fmt.Errorf("tensor %s: %w", tp.Name, ErrExternalData)
	}

	dtype, ok := dtypes[tp.DataType]
	if !ok {
		return nil, fmt.Errorf("tensor %s: %w: onnx data type %d", tp.Name, tensor.ErrUnsupportedDType, tp.DataType)
	}

	t := &tensor.Tensor{Name: tp.Name, DType: dtype, Shape: make([]int, len(tp.Dims))}
	for i, d := range tp.Dims {
		t.Shape[i] = int(d)
	}

	if tp.RawData != nil {
		t.Data = tp.RawData
	} else {
		t.Data = typedData(tp, dtype, t.NumElements())
	}

	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// typedData encodes the legacy typed fields as little-endian bytes.
func typedData(tp *tensorProto, dtype tensor.DType, n int) []byte {
	size := dtype.Size()
	out := make([]byte, 0, n*size)

	switch dtype {
	case tensor.Float32:
		for _, v := range tp.FloatData {
			out = binary.LittleEndian.AppendUint32(out, math.Float32bits(v))
		}
	case tensor.Float64:
		for _, v := range tp.DoubleData {
			out = binary.LittleEndian.AppendUint64(out, math.Float64bits(v))
		}
	case tensor.Int64:
		for _, v := range tp.Int64Data {
			out = binary.LittleEndian.AppendUint64(out, uint64(v))
		}
	default:
		// int32_data carries every element type of 32 bits or fewer.
		for _, v := range tp.Int32Data {
			switch size {
			case 1:
				out = append(out, byte(v))
			case 2:
				out = binary.LittleEndian.AppendUint16(out, uint16(v))
			default:
				out = binary.LittleEndian.AppendUint32(out, uint32(v))
			}
		}
	}

	return out
}
