package models

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// Step is a single unit of work: a shell command run under a tool environment.
type Step struct {
	ID            string              `json:"id"                       validate:"required" yaml:"id"`
	Tool          string              `json:"tool"                     validate:"required" yaml:"tool"`
	Command       string              `json:"command"                  validate:"required" yaml:"command"`
	Input         StringList          `json:"input,omitempty"          yaml:"input,omitempty"`
	Output        StringList          `json:"output,omitempty"         yaml:"output,omitempty"`
	Threads       int                 `json:"threads"                  validate:"gte=1"    yaml:"threads"`
	Previous      []string            `json:"previous,omitempty"       yaml:"previous,omitempty"`
	Next          []string            `json:"next,omitempty"           yaml:"next,omitempty"`
	WildcardFiles map[string][]string `json:"wildcard_files,omitempty" yaml:"wildcard_files,omitempty"`
}

// Normalize trims string fields and applies the default thread count.
func (s *Step) Normalize() {
	s.ID = strings.TrimSpace(s.ID)
	s.Tool = strings.TrimSpace(s.Tool)
	s.Command = strings.TrimSpace(s.Command)
	s.Input = trimAll(s.Input)
	s.Output = trimAll(s.Output)
	s.Previous = trimAll(s.Previous)
	s.Next = trimAll(s.Next)

	if s.Threads == 0 {
		s.Threads = 1
	}
}

// Inputs returns the flattened input paths, splitting comma sub-lists.
func (s *Step) Inputs() []string {
	return flatten(s.Input)
}

// Outputs returns the flattened output paths, splitting comma sub-lists.
func (s *Step) Outputs() []string {
	return flatten(s.Output)
}

// OutputsExist reports whether every declared output is present under dir.
// A step without declared outputs has nothing to verify and reports true.
func (s *Step) OutputsExist(dir string) bool {
	for _, out := range s.Outputs() {
		path := out
		if dir != "" && !filepath.IsAbs(out) {
			path = filepath.Join(dir, out)
		}

		if _, err := os.Stat(path); err != nil {
			return false
		}
	}

	return true
}

// Clone returns a deep copy, used to hand immutable snapshots to workers.
func (s *Step) Clone() Step {
	clone := *s
	clone.Input = slices.Clone(s.Input)
	clone.Output = slices.Clone(s.Output)
	clone.Previous = slices.Clone(s.Previous)
	clone.Next = slices.Clone(s.Next)

	if s.WildcardFiles != nil {
		clone.WildcardFiles = make(map[string][]string, len(s.WildcardFiles))
		for name, files := range s.WildcardFiles {
			clone.WildcardFiles[name] = slices.Clone(files)
		}
	}

	return clone
}

func flatten(entries []string) []string {
	var out []string

	for _, entry := range entries {
		for part := range strings.SplitSeq(entry, ",") {
			part = strings.TrimSpace(part)
			if part != "" {
				out = append(out, part)
			}
		}
	}

	return out
}

func trimAll(values []string) []string {
	if values == nil {
		return nil
	}

	out := make([]string, 0, len(values))

	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			out = append(out, v)
		}
	}

	return out
}
