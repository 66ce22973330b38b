package config

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/ekisa-team/modelweb/internal/envvar"
	"github.com/ekisa-team/modelweb/internal/xfs"
)

// DefaultConfigPath returns the default path for the modelweb config directory.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "modelweb", "config")
	}

	switch runtime.GOOS {
	case "windows":
		return filepath.Join(home, "AppData", "Roaming", "modelweb")
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "modelweb")
	default: // Linux, BSD, etc.
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, "modelweb")
		}
		return filepath.Join(home, ".config", "modelweb")
	}
}

// DefaultModelsPath returns the default download cache for remote sources.
func DefaultModelsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "modelweb", "models")
	}

	switch runtime.GOOS {
	case "windows":
		return filepath.Join(home, "AppData", "Local", "modelweb", "models")
	case "darwin":
		return filepath.Join(home, "Library", "Caches", "modelweb", "models")
	default: // Linux, BSD, etc.
		if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
			return filepath.Join(xdg, "modelweb", "models")
		}
		return filepath.Join(home, ".cache", "modelweb", "models")
	}
}

// ResolveConfigFile returns the config file to use.
// Precedence:
// 1. The explicit path.
// 2. MODELWEB_CONFIG environment variable.
// 3. config.yaml in the default config directory.
func ResolveConfigFile(path string) string {
	if path != "" {
		return xfs.ExpandTilde(path)
	}
	if p := os.Getenv(envvar.ModelwebConfig); p != "" {
		return xfs.ExpandTilde(p)
	}
	return filepath.Join(DefaultConfigPath(), "config.yaml")
}

// ResolveModelsPath returns the path to the models directory.
// Precedence:
// 1. MODELWEB_MODELS_PATH environment variable.
// 2. ModelsDir field in the config.
// 3. Default models path.
func ResolveModelsPath(cfg *Config) string {
	if p := os.Getenv(envvar.ModelwebModelsPath); p != "" {
		return xfs.ExpandTilde(p)
	}
	if cfg != nil && cfg.Storage.ModelsDir != "" {
		return xfs.ExpandTilde(cfg.Storage.ModelsDir)
	}
	return xfs.ExpandTilde(DefaultModelsPath())
}
