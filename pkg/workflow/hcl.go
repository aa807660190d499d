package workflow

import (
	"os"
	"strings"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
)

// hclWorkflowFile is the top-level structure of an HCL workflow file.
type hclWorkflowFile struct {
	Steps []*hclStep `hcl:"step,block"`
}

// tool and command are optional here so that missing values reach the
// validator and are reported alongside every other violation.
type hclStep struct {
	ID            string              `hcl:"id,label"`
	Tool          string              `hcl:"tool,optional"`
	Command       string              `hcl:"command,optional"`
	Input         []string            `hcl:"input,optional"`
	Output        []string            `hcl:"output,optional"`
	Threads       *int                `hcl:"threads,optional"`
	Previous      []string            `hcl:"previous,optional"`
	Next          []string            `hcl:"next,optional"`
	WildcardFiles map[string][]string `hcl:"wildcard_files,optional"`
}

// ParseHCL decodes an HCL workflow. Expressions may read the process
// environment through the env object, e.g. "${env.REFERENCE}".
func ParseHCL(data []byte, filename string) (*models.Workflow, error) {
	parser := hclparse.NewParser()

	file, diags := parser.ParseHCL(data, filename)
	if diags.HasErrors() {
		return nil, diags
	}

	var parsed hclWorkflowFile

	diags = gohcl.DecodeBody(file.Body, evalContext(), &parsed)
	if diags.HasErrors() {
		return nil, diags
	}

	wf := &models.Workflow{Steps: make([]*models.Step, 0, len(parsed.Steps))}

	for _, s := range parsed.Steps {
		step := &models.Step{
			ID:            s.ID,
			Tool:          s.Tool,
			Command:       s.Command,
			Input:         s.Input,
			Output:        s.Output,
			Previous:      s.Previous,
			Next:          s.Next,
			WildcardFiles: s.WildcardFiles,
		}

		if s.Threads != nil {
			step.Threads = *s.Threads
		}

		wf.Steps = append(wf.Steps, step)
	}

	return wf, nil
}

func evalContext() *hcl.EvalContext {
	vars := make(map[string]cty.Value)

	for _, kv := range os.Environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			continue
		}

		vars[name] = cty.StringVal(value)
	}

	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"env": cty.ObjectVal(vars),
		},
	}
}
