// Package tfjs builds, writes and reads TensorFlow.js style model bundles:
// a model.json descriptor next to binary weight shards.
package tfjs

import (
	"context"
	"fmt"
	"regexp"

	"github.com/ekisa-team/modelweb/internal/model"
	"github.com/ekisa-team/modelweb/internal/tensor"
)

const (
	// ModelFile is the descriptor name. It is written last.
	ModelFile = "model.json"

	// DefaultShardSize matches the 4 MiB shards of the tensorflowjs converter.
	DefaultShardSize int64 = 4 * 1024 * 1024

	// DefaultGroup is the weight group number used in shard names.
	DefaultGroup = 1

	FormatGraphModel   = "graph-model"
	FormatWeightsModel = "weights-model"
)

var shardPattern = regexp.MustCompile(`^group\d+-shard\d+of\d+\.bin$`)

// ShardName returns the file name of shard i (1-based) out of n for a group.
func ShardName(group, i, n int) string {
	return fmt.Sprintf("group%d-shard%dof%d.bin", group, i, n)
}

// IsShardName reports whether name looks like a weight shard file.
func IsShardName(name string) bool {
	return shardPattern.MatchString(name)
}

// Manifest is the content of model.json.
type Manifest struct {
	Format          string         `json:"format"`
	GeneratedBy     string         `json:"generatedBy"`
	ConvertedBy     string         `json:"convertedBy"`
	ModelTopology   model.Topology `json:"modelTopology"`
	WeightsManifest []WeightGroup  `json:"weightsManifest"`
}

// WeightGroup lists the shards of one group and the weights packed into them, in order.
type WeightGroup struct {
	Paths   []string      `json:"paths"`
	Weights []WeightEntry `json:"weights"`
}

// WeightEntry describes one weight inside the concatenated shard stream.
type WeightEntry struct {
	Name         string            `json:"name"`
	Shape        []int             `json:"shape"`
	DType        tensor.DType      `json:"dtype"`
	Quantization *QuantizationInfo `json:"quantization,omitempty"`
}

// QuantizationInfo tells the loader how to restore a quantized weight.
type QuantizationInfo struct {
	DType         tensor.DType `json:"dtype"`
	Min           *float32     `json:"min,omitempty"`
	Scale         *float32     `json:"scale,omitempty"`
	OriginalDType tensor.DType `json:"original_dtype,omitempty"`
}

// ByteSize is the number of bytes the entry occupies in the shard stream.
func (e WeightEntry) ByteSize() int64 {
	dtype := e.DType
	if e.Quantization != nil {
		dtype = e.Quantization.DType
	}

	n := int64(1)
	for _, d := range e.Shape {
		n *= int64(d)
	}

	return n * int64(dtype.Size())
}

// Bytes sums the entry sizes of the group.
func (g WeightGroup) Bytes() int64 {
	var total int64
	for _, w := range g.Weights {
		total += w.ByteSize()
	}
	return total
}

// Options controls how a model is turned into a bundle.
type Options struct {
	ShardSize    int64
	Quantization tensor.Quantization
	Group        int
	ConvertedBy  string
}

func (o Options) withDefaults() Options {
	if o.ShardSize == 0 {
		o.ShardSize = DefaultShardSize
	}
	if o.Group == 0 {
		o.Group = DefaultGroup
	}
	return o
}

// Bundle is a manifest plus the weight payloads it describes, ready to be written.
type Bundle struct {
	Manifest  Manifest
	shardSize int64
	// one payload per manifest entry, same order
	weights [][]byte
}

// Bytes returns the size of the weight stream.
func (b *Bundle) Bytes() int64 {
	var total int64
	for _, w := range b.weights {
		total += int64(len(w))
	}
	return total
}

// ShardSize returns the maximum shard size the bundle is cut with.
func (b *Bundle) ShardSize() int64 {
	return b.shardSize
}

// Build converts every tensor of m to a web dtype, applies the requested
// quantization and lays the weights out in source order.
func Build(ctx context.Context, m *model.Model, opts Options) (*Bundle, error) {
	opts = opts.withDefaults()
	if opts.ShardSize < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidShardSize, opts.ShardSize)
	}
	if opts.Group < 0 {
		return nil, fmt.Errorf("invalid weight group %d", opts.Group)
	}

	b := &Bundle{shardSize: opts.ShardSize}
	group := WeightGroup{Paths: []string{}, Weights: []WeightEntry{}}

	for _, t := range m.Tensors {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		web, err := tensor.ToWeb(t)
		if err != nil {
			return nil, err
		}

		entry := WeightEntry{Name: web.Name, Shape: shapeOf(web), DType: web.DType}
		data := web.Data

		q, err := tensor.Quantize(web, opts.Quantization)
		if err != nil {
			return nil, fmt.Errorf("quantize %q: %w", web.Name, err)
		}
		if q != nil {
			entry.Quantization = quantizationInfo(q)
			data = q.Data
		}

		group.Weights = append(group.Weights, entry)
		b.weights = append(b.weights, data)
	}

	n := shardCount(b.Bytes(), opts.ShardSize)
	for i := 1; i <= n; i++ {
		group.Paths = append(group.Paths, ShardName(opts.Group, i, n))
	}

	b.Manifest = Manifest{
		Format:          FormatWeightsModel,
		GeneratedBy:     generatedBy(m),
		ConvertedBy:     opts.ConvertedBy,
		ModelTopology:   m.Topology,
		WeightsManifest: []WeightGroup{group},
	}
	if len(m.Topology.Nodes) > 0 {
		b.Manifest.Format = FormatGraphModel
	}
	if b.Manifest.ModelTopology.SourceFormat == "" {
		b.Manifest.ModelTopology.SourceFormat = m.Format
	}

	return b, nil
}

func shapeOf(t *tensor.Tensor) []int {
	if t.Shape == nil {
		return []int{}
	}
	return t.Shape
}

func quantizationInfo(q *tensor.Quantized) *QuantizationInfo {
	info := &QuantizationInfo{DType: q.DType}
	if q.DType == tensor.Uint8 {
		lo, scale := q.Min, q.Scale
		info.Min = &lo
		info.Scale = &scale
		info.OriginalDType = tensor.Float32
	}
	return info
}

func generatedBy(m *model.Model) string {
	if p := m.Producer.String(); p != "" {
		return p
	}
	return string(m.Format)
}

func shardCount(total, size int64) int {
	if total == 0 {
		return 0
	}
	return int((total + size - 1) / size)
}
