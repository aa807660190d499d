package toolenv

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
)

// ErrNoEnvironment indicates a non-system tool has no isolated environment mapped.
var ErrNoEnvironment = errors.New("no isolated environment configured for tool")

// Strategy builds the process that runs a step script. Implementations are
// SystemShell and IsolatedEnv.
type Strategy interface {
	Command(ctx context.Context, scriptPath string) *exec.Cmd
	String() string
}

// SystemShell runs scripts with the host bash.
type SystemShell struct{}

func (SystemShell) Command(ctx context.Context, scriptPath string) *exec.Cmd {
	return exec.CommandContext(ctx, "bash", scriptPath)
}

func (SystemShell) String() string {
	return "system"
}

// IsolatedEnv runs scripts through "micromamba run -n <env>".
type IsolatedEnv struct {
	Micromamba string
	RootPrefix string
	EnvName    string
}

func (e IsolatedEnv) Command(ctx context.Context, scriptPath string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, e.Micromamba, "run", "-n", e.EnvName, "bash", scriptPath)
	cmd.Env = append(os.Environ(), "MAMBA_ROOT_PREFIX="+e.RootPrefix)

	return cmd
}

func (e IsolatedEnv) String() string {
	return "env:" + e.EnvName
}

// Resolve picks the strategy for a tool.
func Resolve(tool string, envs *EnvMap, cfg Config) (Strategy, error) {
	if IsSystemTool(tool) {
		return SystemShell{}, nil
	}

	env, ok := envs.Get(tool)
	if !ok || env == "" {
		return nil, fmt.Errorf("%w '%s'; create one with: micromamba create -n %s %s -c bioconda -c conda-forge",
			ErrNoEnvironment, tool, tool, tool)
	}

	return IsolatedEnv{Micromamba: cfg.MicromambaPath, RootPrefix: cfg.RootPrefix, EnvName: env}, nil
}
