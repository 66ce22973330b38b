package model

import (
	"context"

	"github.com/ekisa-team/modelweb/internal/tensor"
)

// Format identifies the serialization of a model artifact.
type Format string

const (
	// FormatAuto asks the registry to detect the format from the file.
	FormatAuto Format = ""

	// FormatSafeTensors is the Hugging Face SafeTensors container.
	FormatSafeTensors Format = "safetensors"

	// FormatGGUF is the llama.cpp GGUF container.
	FormatGGUF Format = "gguf"

	// FormatONNX is an ONNX ModelProto.
	FormatONNX Format = "onnx"

	// FormatHDF5 is a Keras HDF5 file. It is detected so it can be rejected with a clear error.
	FormatHDF5 Format = "hdf5"
)

// Loader reads a model artifact of one format into memory.
type Loader interface {
	// Format returns the format this loader reads.
	Format() Format

	// Load reads the model at path.
	Load(ctx context.Context, path string) (*Model, error)
}

// Model is a loaded artifact: a graph description plus its weights.
type Model struct {
	Format   Format
	Producer Producer
	Topology Topology
	// Tensors keeps the order of the source file.
	Tensors []*tensor.Tensor
}

// Producer names the tool that wrote the source artifact.
type Producer struct {
	Name    string
	Version string
}

// String returns "name version", or just the name.
func (p Producer) String() string {
	if p.Version == "" {
		return p.Name
	}
	return p.Name + " " + p.Version
}

// Topology is a format neutral description of the model graph.
type Topology struct {
	SourceFormat Format         `json:"source_format"`
	Inputs       []ValueInfo    `json:"inputs,omitempty"`
	Outputs      []ValueInfo    `json:"outputs,omitempty"`
	Nodes        []Node         `json:"nodes,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// ValueInfo describes a graph input or output. Dynamic dimensions are -1.
type ValueInfo struct {
	Name  string       `json:"name"`
	DType tensor.DType `json:"dtype,omitempty"`
	Shape []int        `json:"shape,omitempty"`
}

// Node is one operation of the graph.
type Node struct {
	Name       string         `json:"name,omitempty"`
	Op         string         `json:"op"`
	Domain     string         `json:"domain,omitempty"`
	Inputs     []string       `json:"inputs,omitempty"`
	Outputs    []string       `json:"outputs,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// WeightBytes returns the total size of all tensor data.
func (m *Model) WeightBytes() int64 {
	var n int64
	for _, t := range m.Tensors {
		n += int64(len(t.Data))
	}
	return n
}

// Tensor returns the tensor with the given name.
func (m *Model) Tensor(name string) (*tensor.Tensor, bool) {
	for _, t := range m.Tensors {
		if t.Name == name {
			return t, true
		}
	}
	return nil, false
}
