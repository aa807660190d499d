package workflow

import (
	"log/slog"
	"path/filepath"
	"regexp"
	"slices"
	"sort"
	"strings"

	"github.com/dukex/stepflow/pkg/models"
)

var wildcardToken = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Command placeholders resolved at execution time, never treated as wildcards.
var reservedPlaceholders = map[string]struct{}{
	"input":   {},
	"inputs":  {},
	"output":  {},
	"outputs": {},
}

type expansion struct {
	name   string
	values []string
}

// ExpandWildcards replaces every templated step with one concrete step per
// bound file value. It must run before dependency population.
func ExpandWildcards(logger *slog.Logger, wf *models.Workflow) error {
	bindings := mergeBindings(wf.Steps)
	plans := make(map[string]expansion)

	for _, step := range wf.Steps {
		names := wildcardNames(step)
		if len(names) == 0 {
			continue
		}

		if len(names) > 1 {
			return &WildcardError{StepID: step.ID, Names: names, Err: ErrMultipleWildcards}
		}

		files, ok := bindings[names[0]]
		if !ok || len(files) == 0 {
			return &WildcardError{StepID: step.ID, Names: names, Err: ErrWildcardUnbound}
		}

		plans[step.ID] = expansion{name: names[0], values: wildcardValues(files)}
	}

	if len(plans) == 0 {
		return nil
	}

	for name, files := range bindings {
		logger.Debug("Wildcard binding", "wildcard", name, "files", len(files))
	}

	before := len(wf.Steps)
	expanded := make([]*models.Step, 0, before)

	for _, step := range wf.Steps {
		plan, ok := plans[step.ID]
		if !ok {
			clone := step.Clone()
			clone.Previous = fanOutReferences(clone.Previous, plans)
			clone.Next = fanOutReferences(clone.Next, plans)
			expanded = append(expanded, &clone)

			continue
		}

		for _, value := range plan.values {
			instance := step.Clone()
			instance.ID = step.ID + "_" + value
			instance.Command = replaceToken(instance.Command, plan.name, value)
			instance.Input = replaceAll(instance.Input, plan.name, value)
			instance.Output = replaceAll(instance.Output, plan.name, value)
			instance.Previous = suffixReferences(instance.Previous, value, plans)
			instance.Next = suffixReferences(instance.Next, value, plans)
			instance.WildcardFiles = nil

			expanded = append(expanded, &instance)
		}
	}

	wf.Steps = expanded

	logger.Info("Expanded wildcard steps", "steps_before", before, "steps_after", len(expanded))

	return nil
}

// mergeBindings unions the file lists declared for each wildcard name across all steps.
func mergeBindings(steps []*models.Step) map[string][]string {
	bindings := make(map[string][]string)

	for _, step := range steps {
		for name, files := range step.WildcardFiles {
			bindings[name] = append(bindings[name], files...)
		}
	}

	for name, files := range bindings {
		sort.Strings(files)
		bindings[name] = slices.Compact(files)
	}

	return bindings
}

// wildcardNames returns the distinct wildcard names used by the step, sorted.
func wildcardNames(step *models.Step) []string {
	seen := map[string]struct{}{}

	collect := func(text string) {
		for _, name := range findTokens(text) {
			if _, reserved := reservedPlaceholders[name]; !reserved {
				seen[name] = struct{}{}
			}
		}
	}

	for _, in := range step.Input {
		collect(in)
	}

	for _, out := range step.Output {
		collect(out)
	}

	collect(step.Command)

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// findTokens returns the names of {name} tokens, ignoring shell ${name} expansions.
func findTokens(text string) []string {
	var names []string

	for _, loc := range wildcardToken.FindAllStringSubmatchIndex(text, -1) {
		if loc[0] > 0 && text[loc[0]-1] == '$' {
			continue
		}

		names = append(names, text[loc[2]:loc[3]])
	}

	return names
}

func replaceToken(text, name, value string) string {
	var b strings.Builder

	last := 0

	for _, loc := range wildcardToken.FindAllStringSubmatchIndex(text, -1) {
		if text[loc[2]:loc[3]] != name || (loc[0] > 0 && text[loc[0]-1] == '$') {
			continue
		}

		b.WriteString(text[last:loc[0]])
		b.WriteString(value)
		last = loc[1]
	}

	b.WriteString(text[last:])

	return b.String()
}

func replaceAll(values models.StringList, name, value string) models.StringList {
	if values == nil {
		return nil
	}

	out := make(models.StringList, len(values))
	for i, v := range values {
		out[i] = replaceToken(v, name, value)
	}

	return out
}

// wildcardValues derives one value per file: the stem when every file shares a
// single extension, the base name otherwise.
func wildcardValues(files []string) []string {
	ext := commonExtension(files)
	values := make([]string, 0, len(files))

	for _, file := range files {
		base := filepath.Base(file)
		if ext != "" {
			base = strings.TrimSuffix(base, ext)
		}

		if !slices.Contains(values, base) {
			values = append(values, base)
		}
	}

	return values
}

func commonExtension(files []string) string {
	var ext string

	for i, file := range files {
		e := filepath.Ext(file)
		if e == "" {
			return ""
		}

		if i == 0 {
			ext = e
		} else if e != ext {
			return ""
		}
	}

	return ext
}

// suffixReferences rewrites references from an expanded instance. References to
// steps expanded under the same value point at that instance; references to
// steps that are not expanded are kept.
func suffixReferences(refs []string, value string, plans map[string]expansion) []string {
	if refs == nil {
		return nil
	}

	out := make([]string, 0, len(refs))

	for _, ref := range refs {
		if _, expanded := plans[ref]; expanded {
			out = append(out, ref+"_"+value)
		} else {
			out = append(out, ref)
		}
	}

	return out
}

// fanOutReferences rewrites references from a plain step to an expanded step
// into references to every instance.
func fanOutReferences(refs []string, plans map[string]expansion) []string {
	if refs == nil {
		return nil
	}

	out := make([]string, 0, len(refs))

	for _, ref := range refs {
		plan, expanded := plans[ref]
		if !expanded {
			out = append(out, ref)

			continue
		}

		for _, value := range plan.values {
			out = append(out, ref+"_"+value)
		}
	}

	return out
}
