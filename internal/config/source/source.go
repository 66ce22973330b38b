// Package source fetches the model files conversions read from.
package source

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ekisa-team/modelweb/internal/config"
	"github.com/ekisa-team/modelweb/internal/xfs"
)

var (
	ErrUnknownSource      = errors.New("unknown source type")
	ErrModelFileNotFound  = errors.New("no model file found")
	ErrAmbiguousModelFile = errors.New("more than one model file found")
)

// modelExtensions are the file extensions a loader exists for.
var modelExtensions = map[string]bool{
	".safetensors": true,
	".gguf":        true,
	".onnx":        true,
}

// Downloader makes a conversion's source available as a local file.
type Downloader interface {
	// Download returns the local model file path and whether it was already present.
	Download(ctx context.Context, conv *config.ConversionConfig, targetDir string) (string, bool, error)
}

// GetDownloader returns the downloader for a source type.
func GetDownloader(_ context.Context, sourceType config.SourceType) (Downloader, error) {
	switch sourceType {
	case config.SourceTypeLocal:
		return &LocalDownloader{}, nil
	case config.SourceTypeHuggingFace:
		return &HuggingFaceDownloader{}, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrUnknownSource, sourceType)
}

// EnsureModelsDirectory creates the download cache if needed.
func EnsureModelsDirectory(path string) error {
	return os.MkdirAll(path, 0o755)
}

// LocalDownloader resolves local paths. Nothing is copied.
type LocalDownloader struct{}

// Download returns the configured path, or the single model file inside it when it is a directory.
func (d *LocalDownloader) Download(_ context.Context, conv *config.ConversionConfig, _ string) (string, bool, error) {
	src, err := conv.GetSource()
	if err != nil {
		return "", false, fmt.Errorf("failed to get source: %w", err)
	}

	local, ok := src.(config.LocalSource)
	if !ok {
		return "", false, fmt.Errorf("invalid source type: %T", src)
	}

	path := xfs.ExpandTilde(local.Path)
	info, err := os.Stat(path)
	if err != nil {
		return "", false, fmt.Errorf("local source: %w", err)
	}

	if info.IsDir() {
		file, err := ResolveModelFile(path, conv.File)
		return file, true, err
	}

	return path, true, nil
}

// ResolveModelFile picks the model file inside dir. An explicit name wins;
// otherwise dir must hold exactly one file with a supported extension.
// Hidden directories such as .cache are skipped.
func ResolveModelFile(dir, name string) (string, error) {
	if name != "" {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("%w: %w", ErrModelFileNotFound, err)
		}
		return path, nil
	}

	var found []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if modelExtensions[strings.ToLower(filepath.Ext(path))] {
			found = append(found, path)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to scan %s: %w", dir, err)
	}

	switch len(found) {
	case 0:
		return "", fmt.Errorf("%w in %s", ErrModelFileNotFound, dir)
	case 1:
		return found[0], nil
	}

	sort.Strings(found)
	return "", fmt.Errorf("%w in %s (set file): %s", ErrAmbiguousModelFile, dir, strings.Join(found, ", "))
}
