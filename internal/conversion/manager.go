// Package conversion runs the conversion jobs declared in a config file and
// tracks the outcome of each one.
package conversion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/ekisa-team/modelweb/internal/config"
	"github.com/ekisa-team/modelweb/internal/config/source"
	"github.com/ekisa-team/modelweb/internal/converter"
)

// Converter converts one model.
type Converter interface {
	Convert(ctx context.Context, req converter.Request) (*converter.Result, error)
}

// DownloaderFunc returns the downloader for a source type.
type DownloaderFunc func(ctx context.Context, sourceType config.SourceType) (source.Downloader, error)

// Manager runs configured conversions one after another.
type Manager struct {
	registry    *Registry
	converter   Converter
	downloaders DownloaderFunc
	mu          sync.Mutex // one run at a time
}

// Option configures a Manager.
type Option func(*Manager)

// WithDownloaders replaces source.GetDownloader.
func WithDownloaders(fn DownloaderFunc) Option {
	return func(m *Manager) { m.downloaders = fn }
}

// NewManager creates a manager around conv.
func NewManager(conv Converter, opts ...Option) *Manager {
	m := &Manager{
		registry:    NewRegistry(),
		converter:   conv,
		downloaders: source.GetDownloader,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Registry returns the job registry.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// RunFromConfig converts every job of cfg in ID order and records the outcome
// in the registry. Jobs that are no longer configured are dropped. A failing
// job does not stop the others; all failures are returned joined.
func (m *Manager) RunFromConfig(ctx context.Context, cfg *config.Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(cfg.Conversions))
	for id := range cfg.Conversions {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	modelsPath := config.ResolveModelsPath(cfg)
	configured := make(map[string]bool, len(ids))

	var errs []error
	for _, id := range ids {
		configured[id] = true
		job := NewJob(id, cfg.Conversions[id])
		m.registry.Set(job)

		if err := ctx.Err(); err != nil {
			job.fail(err)
			errs = append(errs, fmt.Errorf("conversion %s: %w", id, err))
			continue
		}

		if err := m.run(ctx, job, modelsPath); err != nil {
			job.fail(err)
			slog.Error("Conversion failed", "conversion", id, "error", err)
			errs = append(errs, fmt.Errorf("conversion %s: %w", id, err))
		}
	}

	for _, job := range m.registry.List() {
		if !configured[job.ID] {
			m.registry.Delete(job.ID)
			slog.Info("Conversion removed from registry", "conversion", job.ID)
		}
	}

	return errors.Join(errs...)
}

func (m *Manager) run(ctx context.Context, job *Job, modelsPath string) error {
	src, err := job.Config.GetSource()
	if err != nil {
		return err
	}

	if src.Type() != config.SourceTypeLocal {
		if err := source.EnsureModelsDirectory(modelsPath); err != nil {
			return fmt.Errorf("failed to prepare models directory %s: %w", modelsPath, err)
		}
	}

	downloader, err := m.downloaders(ctx, src.Type())
	if err != nil {
		return fmt.Errorf("failed to get downloader: %w", err)
	}

	path, cached, err := downloader.Download(ctx, &job.Config, modelsPath)
	if err != nil {
		return fmt.Errorf("failed to fetch source: %w", err)
	}

	quant, err := job.Config.Quantization()
	if err != nil {
		return err
	}

	job.start(path)
	slog.Info("Converting model", "conversion", job.ID, "source", path, "cached", cached, "output", job.Config.Output)

	res, err := m.converter.Convert(ctx, converter.Request{
		Source:       path,
		Destination:  job.Config.Output,
		Format:       job.Config.ModelFormat(),
		ShardSize:    job.Config.ShardSizeBytes,
		Quantization: quant,
		Group:        job.Config.Group,
	})
	if err != nil {
		return err
	}

	job.succeed(res.RunID, res.Files)
	slog.Info("Conversion complete", "conversion", job.ID, "run_id", res.RunID, "files", len(res.Files))

	return nil
}
