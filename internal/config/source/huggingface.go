package source

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ekisa-team/modelweb/internal/command"
	"github.com/ekisa-team/modelweb/internal/config"
)

const (
	defaultRetryDelay = 2 * time.Second
	defaultMaxRetries = 3
	defaultTimeout    = 5 * time.Minute
	markerFilename    = ".modelweb-downloaded"
	hfBinary          = "hf"
)

// HuggingFaceDownloader downloads a repository with the hf CLI.
type HuggingFaceDownloader struct {
	// Executor runs hf. When nil, hf is looked up in PATH.
	Executor *command.Executor
	// RetryDelay defaults to two seconds.
	RetryDelay time.Duration
}

// Download downloads the Hugging Face repository to the local cache and
// returns the model file inside it.
func (d *HuggingFaceDownloader) Download(ctx context.Context, conv *config.ConversionConfig, targetDir string) (string, bool, error) {
	src, err := conv.GetSource()
	if err != nil {
		return "", false, fmt.Errorf("failed to get source: %w", err)
	}

	hfSource, ok := src.(config.HuggingFaceSource)
	if !ok {
		return "", false, fmt.Errorf("invalid source type: %T", src)
	}

	repo := strings.TrimSpace(hfSource.Repo)
	if repo == "" {
		return "", false, fmt.Errorf("invalid repo name: %q", repo)
	}

	fullPath := filepath.Join(targetDir, repo)
	markerPath := filepath.Join(fullPath, markerFilename)
	markerContent := d.markerContent(repo, hfSource.Revision)

	if _, err := os.Stat(markerPath); err == nil && !hfSource.ForceDownload {
		if !d.shouldRedownload(markerPath, markerContent) {
			slog.Info("Model already downloaded and up-to-date (marker match), skipping", "repo", repo, "path", fullPath)
			file, err := ResolveModelFile(fullPath, conv.File)
			return file, true, err
		}
	}

	if err := os.MkdirAll(fullPath, 0o755); err != nil {
		return "", false, fmt.Errorf("failed to create directory: %w", err)
	}

	executor := d.Executor
	if executor == nil {
		executor, err = command.NewExecutor(hfBinary, defaultTimeout)
		if err != nil {
			return "", false, fmt.Errorf("hugging face CLI: %w", err)
		}
	}

	args := downloadArgs(repo, fullPath, hfSource)
	delay := d.RetryDelay
	if delay == 0 {
		delay = defaultRetryDelay
	}

	var lastErr error
	for attempt := 0; attempt < defaultMaxRetries; attempt++ {
		if attempt > 0 {
			slog.Info("Retrying download", "repo", repo, "attempt", attempt+1, "last_error", lastErr)
			select {
			case <-ctx.Done():
				return "", false, fmt.Errorf("download canceled: %w", ctx.Err())
			case <-time.After(delay):
			}
		} else {
			slog.Info("Downloading model", "repo", repo, "path", fullPath)
		}

		_, stderr, err := executor.Execute(ctx, args, nil)
		if err == nil {
			if err := os.WriteFile(markerPath, []byte(markerContent), 0o644); err != nil {
				slog.Warn("Failed to write download marker", "path", markerPath, "error", err)
			} else {
				slog.Info("Download marker updated", "path", markerPath)
			}

			slog.Info("Model downloaded successfully", "repo", repo, "path", fullPath, "attempt", attempt+1)
			file, err := ResolveModelFile(fullPath, conv.File)
			return file, false, err
		}

		lastErr = err
		slog.Error("Failed to download model", "repo", repo, "path", fullPath, "attempt", attempt+1, "error", err, "output", string(stderr))

		if ctx.Err() != nil {
			return "", false, fmt.Errorf("download canceled: %w", ctx.Err())
		}
	}

	return "", false, fmt.Errorf("download %s: %w", repo, lastErr)
}

func downloadArgs(repo, dir string, src config.HuggingFaceSource) []string {
	args := []string{
		"download",
		repo,
		"--local-dir", dir,
	}

	if src.Revision != "" {
		args = append(args, "--revision", src.Revision)
	}
	if src.RepoType != "" {
		args = append(args, "--repo-type", src.RepoType)
	}
	for _, inc := range src.Include {
		args = append(args, "--include", inc)
	}
	for _, exc := range src.Exclude {
		args = append(args, "--exclude", exc)
	}
	if src.ForceDownload {
		args = append(args, "--force-download")
	}
	if src.Token != "" {
		args = append(args, "--token", src.Token)
	}
	if src.MaxWorkers > 0 {
		args = append(args, "--max-workers", fmt.Sprintf("%d", src.MaxWorkers))
	}

	return args
}

// markerContent generates the expected content of the marker file.
// Used to detect if we need to redownload due to config change.
func (d *HuggingFaceDownloader) markerContent(repo, revision string) string {
	return fmt.Sprintf("repo: %s\nrevision: %s\n", repo, revision)
}

// shouldRedownload checks if the model should be redownloaded by comparing marker content.
func (d *HuggingFaceDownloader) shouldRedownload(markerPath, expectedContent string) bool {
	content, err := os.ReadFile(markerPath)
	if err != nil {
		slog.Debug("Marker file missing or unreadable", "path", markerPath, "error", err)
		return true
	}

	if string(content) != expectedContent {
		slog.Info("Model config changed (marker mismatch), will redownload",
			"marker_path", markerPath,
			"expected_snippet", expectedContent,
			"actual_snippet", string(content))
		return true
	}

	return false
}
