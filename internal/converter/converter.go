// Package converter turns a model artifact on disk into a web bundle in one call:
// load, convert, write, report.
package converter

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ekisa-team/modelweb/internal/format/gguf"
	"github.com/ekisa-team/modelweb/internal/format/onnx"
	"github.com/ekisa-team/modelweb/internal/format/safetensors"
	"github.com/ekisa-team/modelweb/internal/model"
	"github.com/ekisa-team/modelweb/internal/tensor"
	"github.com/ekisa-team/modelweb/internal/tfjs"
)

// BundleWriter persists a built bundle and returns the files it wrote.
type BundleWriter interface {
	Write(ctx context.Context, dest string, b *tfjs.Bundle) ([]string, error)
}

// Request describes one conversion.
type Request struct {
	Source       string
	Destination  string
	Format       model.Format
	ShardSize    int64
	Quantization tensor.Quantization
	Group        int
}

// Result reports a finished conversion.
type Result struct {
	RunID    string
	Manifest *tfjs.Manifest
	Files    []string
	Bytes    int64
	Duration time.Duration
}

// Converter loads models through a loader registry and writes bundles through a BundleWriter.
type Converter struct {
	loaders *model.Registry
	store   BundleWriter
	version string
	log     *slog.Logger
}

// Option configures a Converter.
type Option func(*Converter)

// WithVersion sets the version reported in convertedBy.
func WithVersion(version string) Option {
	return func(c *Converter) { c.version = version }
}

// WithLogger replaces slog.Default.
func WithLogger(log *slog.Logger) Option {
	return func(c *Converter) { c.log = log }
}

// New creates a converter.
func New(loaders *model.Registry, store BundleWriter, opts ...Option) *Converter {
	c := &Converter{
		loaders: loaders,
		store:   store,
		version: "dev",
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DefaultLoaders returns a registry with every built-in loader.
func DefaultLoaders() *model.Registry {
	r := model.NewRegistry()
	for _, l := range []model.Loader{
		safetensors.NewLoader(),
		gguf.NewLoader(),
		onnx.NewLoader(),
	} {
		// Formats are distinct, so registration cannot fail.
		_ = r.Register(l)
	}
	return r
}

// ConvertedBy is the convertedBy value written to model.json.
func (c *Converter) ConvertedBy() string {
	return "modelweb " + c.version
}

// Convert loads req.Source and writes the bundle to req.Destination. Nothing
// is written unless the model loads and converts. Files written before a
// write error are left in place.
func (c *Converter) Convert(ctx context.Context, req Request) (*Result, error) {
	if req.Source == "" || req.Destination == "" {
		return nil, fmt.Errorf("%w: source and destination are required", ErrInvalidRequest)
	}

	runID := uuid.NewString()
	log := c.log.With("run_id", runID)
	start := time.Now()

	loader, err := c.loaders.Resolve(req.Source, req.Format)
	if err != nil {
		return nil, fmt.Errorf("resolve loader for %s: %w", req.Source, err)
	}

	log.Info("Loading model", "source", req.Source, "format", loader.Format())

	m, err := loader.Load(ctx, req.Source)
	if err != nil {
		return nil, fmt.Errorf("load model %s: %w", req.Source, err)
	}

	log.Info("Model loaded",
		"producer", m.Producer.String(),
		"tensors", len(m.Tensors),
		"nodes", len(m.Topology.Nodes),
		"bytes", m.WeightBytes())

	bundle, err := tfjs.Build(ctx, m, tfjs.Options{
		ShardSize:    req.ShardSize,
		Quantization: req.Quantization,
		Group:        req.Group,
		ConvertedBy:  c.ConvertedBy(),
	})
	if err != nil {
		return nil, fmt.Errorf("convert model %s: %w", req.Source, err)
	}

	files, err := c.store.Write(ctx, req.Destination, bundle)
	if err != nil {
		log.Error("Failed to write bundle", "destination", req.Destination, "written", len(files), "error", err)
		return nil, fmt.Errorf("write bundle to %s: %w", req.Destination, err)
	}

	result := &Result{
		RunID:    runID,
		Manifest: &bundle.Manifest,
		Files:    files,
		Bytes:    bundle.Bytes(),
		Duration: time.Since(start),
	}

	log.Info("Bundle written",
		"destination", req.Destination,
		"format", bundle.Manifest.Format,
		"files", len(files),
		"bytes", result.Bytes,
		"duration", result.Duration)

	return result, nil
}
