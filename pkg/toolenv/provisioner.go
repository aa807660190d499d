package toolenv

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
)

// Provisioner creates isolated micromamba environments for tools that lack one.
type Provisioner struct {
	cfg    Config
	logger *slog.Logger
}

func NewProvisioner(logger *slog.Logger, cfg Config) *Provisioner {
	return &Provisioner{cfg: cfg, logger: logger.With("module", "toolenv_provisioner")}
}

// Ensure makes sure every non-system tool has an environment named after the
// tool, records new mappings in envs and saves the map. Failures for a single
// tool are logged and do not stop the others.
func (p *Provisioner) Ensure(ctx context.Context, tools []string, envs *EnvMap) error {
	isolated := IsolatedTools(tools)
	if len(isolated) == 0 {
		p.logger.InfoContext(ctx, "No isolated tools required, using system tools only")

		return nil
	}

	p.logger.InfoContext(ctx, "Setting up environments", "tools", isolated)

	if err := os.MkdirAll(p.cfg.RootPrefix, 0o750); err != nil {
		p.logger.WarnContext(ctx, "Failed to create micromamba root prefix", "path", p.cfg.RootPrefix, "error", err)
	}

	for _, tool := range isolated {
		if err := p.createEnv(ctx, tool, tool); err != nil {
			p.logger.WarnContext(ctx, "Failed to create environment, continuing", "tool", tool, "error", err)

			continue
		}

		if _, mapped := envs.Get(tool); !mapped {
			envs.Set(tool, tool)
		}

		p.logger.InfoContext(ctx, "Environment ready", "tool", tool)
	}

	if err := envs.Save(p.cfg.EnvMapPath); err != nil {
		p.logger.WarnContext(ctx, "Failed to save environment map", "path", p.cfg.EnvMapPath, "error", err)
	}

	return nil
}

func (p *Provisioner) command(ctx context.Context, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, p.cfg.MicromambaPath, args...)
	cmd.Env = append(os.Environ(), "MAMBA_ROOT_PREFIX="+p.cfg.RootPrefix)

	return cmd
}

// EnvExists reports whether micromamba lists an environment with the given name.
func (p *Provisioner) EnvExists(ctx context.Context, name string) (bool, error) {
	var stderr bytes.Buffer

	cmd := p.command(ctx, "env", "list")
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		return false, fmt.Errorf("failed to list micromamba environments: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) > 0 && fields[0] == name {
			return true, nil
		}
	}

	return false, nil
}

func (p *Provisioner) createEnv(ctx context.Context, name string, packages ...string) error {
	exists, err := p.EnvExists(ctx, name)
	if err != nil {
		return err
	}

	if exists {
		p.logger.InfoContext(ctx, "Environment already exists", "env", name)

		return nil
	}

	p.logger.InfoContext(ctx, "Creating environment", "env", name, "packages", packages)

	args := append([]string{"create", "-y", "-n", name, "-c", "bioconda", "-c", "conda-forge"}, packages...)

	output, err := p.command(ctx, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("failed to create environment '%s': %w: %s", name, err, strings.TrimSpace(string(output)))
	}

	return nil
}
