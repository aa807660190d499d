// Package toolenv decides how a step's tool is executed: directly through the
// system shell or inside an isolated micromamba environment.
package toolenv

import (
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
)

const (
	EnvMapFileName = "env_map.json"
	MicromambaName = "micromamba"
)

// Config locates the tool environment collaborators. It is resolved once at
// startup and passed explicitly to whatever needs it.
type Config struct {
	// EnvMapPath is the JSON file mapping tool names to environment names.
	EnvMapPath string
	// MicromambaPath is the micromamba executable.
	MicromambaPath string
	// RootPrefix is exported as MAMBA_ROOT_PREFIX for every micromamba call.
	RootPrefix string
}

// ResolveConfig fills empty fields of overrides with discovered defaults:
// files next to the running executable first, then the working directory or
// PATH, and ~/.stepflow/micromamba as the root prefix.
func ResolveConfig(logger *slog.Logger, overrides Config) Config {
	cfg := overrides
	exeDir := executableDir()

	if cfg.EnvMapPath == "" {
		cfg.EnvMapPath = EnvMapFileName

		if exeDir != "" {
			candidate := filepath.Join(exeDir, EnvMapFileName)
			if fileExists(candidate) {
				cfg.EnvMapPath = candidate
			}
		}
	}

	if cfg.MicromambaPath == "" {
		cfg.MicromambaPath = findMicromamba(logger, exeDir)
	}

	if cfg.RootPrefix == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}

		cfg.RootPrefix = filepath.Join(home, ".stepflow", MicromambaName)
	}

	logger.Debug("Tool environment configuration resolved",
		"env_map", cfg.EnvMapPath,
		"micromamba", cfg.MicromambaPath,
		"root_prefix", cfg.RootPrefix)

	return cfg
}

func findMicromamba(logger *slog.Logger, exeDir string) string {
	if exeDir != "" {
		candidate := filepath.Join(exeDir, MicromambaName)
		if fileExists(candidate) {
			return candidate
		}
	}

	if path, err := exec.LookPath(MicromambaName); err == nil {
		return path
	}

	logger.Warn("Micromamba binary not found next to the executable or on PATH; isolated tools will fail",
		"download", "https://micro.mamba.pm/")

	return MicromambaName
}

func executableDir() string {
	exe, err := os.Executable()
	if err != nil {
		return ""
	}

	return filepath.Dir(exe)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)

	return err == nil
}
