package config

import (
	"errors"
	"fmt"

	"github.com/ekisa-team/modelweb/internal/model"
	"github.com/ekisa-team/modelweb/internal/tensor"
)

// SourceType represents the type of model source.
type SourceType string

const (
	// SourceTypeLocal is a model file on the local file system.
	SourceTypeLocal SourceType = "local"

	// SourceTypeHuggingFace represents a Hugging Face model repository source.
	SourceTypeHuggingFace SourceType = "huggingface"
)

// ErrNoSource is returned when a conversion has no source configured.
var ErrNoSource = errors.New("no source configured for conversion")

// Config holds the main configuration for the application.
type Config struct {
	Version     string                      `json:"version"           yaml:"version"`
	Storage     StorageConfig               `json:"storage,omitempty" yaml:"storage,omitempty"`
	Conversions map[string]ConversionConfig `json:"conversions"       yaml:"conversions"`
}

// StorageConfig holds where remote sources are cached.
type StorageConfig struct {
	ModelsDir string `json:"models_dir,omitempty" yaml:"models_dir,omitempty"`
}

// ConversionConfig describes one conversion job.
type ConversionConfig struct {
	Source SourceConfig `json:"source" yaml:"source"`
	// Output is the bundle directory.
	Output string `json:"output" yaml:"output"`
	// File selects the model file inside a downloaded repository.
	File           string `json:"file,omitempty"             yaml:"file,omitempty"`
	Format         string `json:"format,omitempty"           yaml:"format,omitempty"`
	ShardSizeBytes int64  `json:"shard_size_bytes,omitempty" yaml:"shard_size_bytes,omitempty"`
	Quantize       string `json:"quantize,omitempty"         yaml:"quantize,omitempty"`
	Group          int    `json:"group,omitempty"            yaml:"group,omitempty"`
}

// SourceConfig wraps optional sources (only one should be set).
type SourceConfig struct {
	Local       *LocalSource       `json:"local,omitempty"       yaml:"local,omitempty"`
	HuggingFace *HuggingFaceSource `json:"huggingface,omitempty" yaml:"huggingface,omitempty"`
}

// -------------------------
// Source definitions
// -------------------------

// ModelSource represents a source for a model.
type ModelSource interface {
	Type() SourceType
}

// LocalSource is a model file already on disk.
type LocalSource struct {
	Path string `json:"path" yaml:"path"`
}

// Type returns the local source type.
func (l LocalSource) Type() SourceType {
	return SourceTypeLocal
}

// HuggingFaceSource represents a Hugging Face model repository source.
type HuggingFaceSource struct {
	Repo          string   `json:"repo"                     yaml:"repo"`
	Revision      string   `json:"revision,omitempty"       yaml:"revision,omitempty"`
	RepoType      string   `json:"repo_type,omitempty"      yaml:"repo_type,omitempty"`
	Token         string   `json:"token,omitempty"          yaml:"token,omitempty"`
	Include       []string `json:"include,omitempty"        yaml:"include,omitempty"`
	Exclude       []string `json:"exclude,omitempty"        yaml:"exclude,omitempty"`
	MaxWorkers    int      `json:"max_workers,omitempty"    yaml:"max_workers,omitempty"`
	ForceDownload bool     `json:"force_download,omitempty" yaml:"force_download,omitempty"`
}

// Type returns the Hugging Face source type.
func (h HuggingFaceSource) Type() SourceType {
	return SourceTypeHuggingFace
}

// GetSource returns the active source for the conversion.
func (c *ConversionConfig) GetSource() (ModelSource, error) {
	switch {
	case c.Source.Local != nil && c.Source.HuggingFace != nil:
		return nil, errors.New("conversion has more than one source")
	case c.Source.Local != nil:
		return *c.Source.Local, nil
	case c.Source.HuggingFace != nil:
		return *c.Source.HuggingFace, nil
	}

	return nil, ErrNoSource
}

// SetHuggingFaceSource sets the Hugging Face source.
func (c *ConversionConfig) SetHuggingFaceSource(source HuggingFaceSource) {
	c.Source.HuggingFace = &source
}

// SetLocalSource sets the local source.
func (c *ConversionConfig) SetLocalSource(path string) {
	c.Source.Local = &LocalSource{Path: path}
}

// ModelFormat returns the configured input format, FormatAuto when unset.
func (c *ConversionConfig) ModelFormat() model.Format {
	if c.Format == "auto" {
		return model.FormatAuto
	}
	return model.Format(c.Format)
}

// Quantization parses the quantize field.
func (c *ConversionConfig) Quantization() (tensor.Quantization, error) {
	q, err := tensor.ParseQuantization(c.Quantize)
	if err != nil {
		return "", fmt.Errorf("quantize: %w", err)
	}
	return q, nil
}
