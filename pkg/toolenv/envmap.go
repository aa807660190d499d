package toolenv

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
)

// EnvMap maps tool names to isolated environment names. It is populated
// before a run starts and only read while steps execute.
type EnvMap struct {
	envs map[string]string
}

type envMapFile struct {
	Map map[string]string `json:"map"`
}

func NewEnvMap() *EnvMap {
	return &EnvMap{envs: map[string]string{}}
}

// LoadEnvMap reads the map from path. A missing or unreadable file yields an
// empty map.
func LoadEnvMap(path string) (*EnvMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewEnvMap(), nil
		}

		return NewEnvMap(), fmt.Errorf("failed to read environment map %s: %w", path, err)
	}

	var file envMapFile
	if err := json.Unmarshal(data, &file); err != nil {
		return NewEnvMap(), fmt.Errorf("failed to decode environment map %s: %w", path, err)
	}

	if file.Map == nil {
		file.Map = map[string]string{}
	}

	return &EnvMap{envs: file.Map}, nil
}

func (m *EnvMap) Save(path string) error {
	data, err := json.MarshalIndent(envMapFile{Map: m.envs}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode environment map: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write environment map %s: %w", path, err)
	}

	return nil
}

func (m *EnvMap) Get(tool string) (string, bool) {
	env, ok := m.envs[tool]

	return env, ok
}

func (m *EnvMap) Set(tool, env string) {
	m.envs[tool] = env
}

func (m *EnvMap) Len() int {
	return len(m.envs)
}

// All returns a copy of the mapping.
func (m *EnvMap) All() map[string]string {
	return maps.Clone(m.envs)
}
