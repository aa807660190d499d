package toolenv

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestIsSystemTool(t *testing.T) {
	tests := []struct {
		tool     string
		expected bool
	}{
		{"bash", true},
		{"awk", true},
		{"false", true},
		{"bowtie2", false},
		{"samtools", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.tool, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsSystemTool(tt.tool))
		})
	}

	assert.Equal(t, []string{"bwa", "samtools"}, IsolatedTools([]string{"bash", "bwa", "cat", "samtools"}))
}

func TestEnvMap_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", EnvMapFileName)

	envs := NewEnvMap()
	envs.Set("bowtie2", "alignment_env")
	envs.Set("samtools", "alignment_env")
	envs.Set("bowtie2", "bowtie2")
	require.NoError(t, envs.Save(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"map"`)

	loaded, err := LoadEnvMap(path)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Len())

	env, ok := loaded.Get("bowtie2")
	assert.True(t, ok)
	assert.Equal(t, "bowtie2", env)

	all := loaded.All()
	all["samtools"] = "changed"
	env, _ = loaded.Get("samtools")
	assert.Equal(t, "alignment_env", env)
}

func TestLoadEnvMap_MissingAndCorrupt(t *testing.T) {
	envs, err := LoadEnvMap(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Equal(t, 0, envs.Len())

	corrupt := filepath.Join(t.TempDir(), EnvMapFileName)
	require.NoError(t, os.WriteFile(corrupt, []byte("{"), 0o600))

	envs, err = LoadEnvMap(corrupt)
	require.Error(t, err)
	assert.Equal(t, 0, envs.Len())
}

func TestResolve(t *testing.T) {
	cfg := Config{MicromambaPath: "/opt/micromamba", RootPrefix: "/opt/root"}
	envs := NewEnvMap()
	envs.Set("bwa", "mapping")

	strategy, err := Resolve("bash", envs, cfg)
	require.NoError(t, err)
	assert.Equal(t, SystemShell{}, strategy)

	strategy, err = Resolve("bwa", envs, cfg)
	require.NoError(t, err)
	assert.Equal(t, IsolatedEnv{Micromamba: "/opt/micromamba", RootPrefix: "/opt/root", EnvName: "mapping"}, strategy)
	assert.Equal(t, "env:mapping", strategy.String())

	cmd := strategy.Command(context.Background(), "/tmp/step.sh")
	assert.Equal(t, []string{"/opt/micromamba", "run", "-n", "mapping", "bash", "/tmp/step.sh"}, cmd.Args)
	assert.Contains(t, cmd.Env, "MAMBA_ROOT_PREFIX=/opt/root")

	_, err = Resolve("samtools", envs, cfg)
	require.ErrorIs(t, err, ErrNoEnvironment)
	assert.Contains(t, err.Error(), "micromamba create -n samtools samtools")
}

func TestResolveConfig_KeepsOverrides(t *testing.T) {
	cfg := ResolveConfig(testLogger(), Config{
		EnvMapPath:     "/etc/stepflow/env_map.json",
		MicromambaPath: "/usr/local/bin/micromamba",
		RootPrefix:     "/data/mamba",
	})

	assert.Equal(t, "/etc/stepflow/env_map.json", cfg.EnvMapPath)
	assert.Equal(t, "/usr/local/bin/micromamba", cfg.MicromambaPath)
	assert.Equal(t, "/data/mamba", cfg.RootPrefix)
}

func TestResolveConfig_Defaults(t *testing.T) {
	cfg := ResolveConfig(testLogger(), Config{})

	assert.NotEmpty(t, cfg.EnvMapPath)
	assert.NotEmpty(t, cfg.MicromambaPath)
	assert.Equal(t, filepath.Join(".stepflow", MicromambaName), lastTwo(cfg.RootPrefix))
}

func lastTwo(path string) string {
	return filepath.Join(filepath.Base(filepath.Dir(path)), filepath.Base(path))
}

// fakeMicromamba writes a script that records its arguments and lists the
// environments named in the existing argument.
func fakeMicromamba(t *testing.T, existing ...string) (string, string) {
	t.Helper()

	dir := t.TempDir()
	logPath := filepath.Join(dir, "calls.log")
	script := "#!/bin/bash\n" +
		"echo \"$@\" >> " + logPath + "\n" +
		"if [ \"$1\" = env ]; then\n" +
		"  echo '# conda environments:'\n"

	for _, name := range existing {
		script += "  echo '" + name + "   /envs/" + name + "'\n"
	}

	script += "fi\n" +
		"if [ \"$4\" = broken ]; then exit 1; fi\n"

	path := filepath.Join(dir, "micromamba")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o700))

	return path, logPath
}

func TestProvisioner_Ensure(t *testing.T) {
	micromamba, logPath := fakeMicromamba(t, "bwa")
	dir := t.TempDir()

	cfg := Config{
		EnvMapPath:     filepath.Join(dir, EnvMapFileName),
		MicromambaPath: micromamba,
		RootPrefix:     filepath.Join(dir, "root"),
	}

	envs := NewEnvMap()
	provisioner := NewProvisioner(testLogger(), cfg)

	require.NoError(t, provisioner.Ensure(t.Context(), []string{"bash", "bwa", "samtools", "broken"}, envs))

	env, ok := envs.Get("bwa")
	assert.True(t, ok)
	assert.Equal(t, "bwa", env)

	env, ok = envs.Get("samtools")
	assert.True(t, ok)
	assert.Equal(t, "samtools", env)

	_, ok = envs.Get("broken")
	assert.False(t, ok, "failed environments are not mapped")

	_, ok = envs.Get("bash")
	assert.False(t, ok)

	saved, err := LoadEnvMap(cfg.EnvMapPath)
	require.NoError(t, err)
	assert.Equal(t, 2, saved.Len())

	calls, err := os.ReadFile(logPath)
	require.NoError(t, err)

	lines := slices.DeleteFunc(strings.Split(string(calls), "\n"), func(s string) bool { return s == "" })
	assert.Contains(t, lines, "create -y -n samtools -c bioconda -c conda-forge samtools")
	assert.NotContains(t, lines, "create -y -n bwa -c bioconda -c conda-forge bwa")
}

func TestProvisioner_SystemToolsOnly(t *testing.T) {
	provisioner := NewProvisioner(testLogger(), Config{MicromambaPath: "/nonexistent"})

	assert.NoError(t, provisioner.Ensure(t.Context(), []string{"bash", "cat"}, NewEnvMap()))
}
