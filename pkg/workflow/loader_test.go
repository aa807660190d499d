package workflow

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const variantCallingYAML = `
steps:
  - id: call
    tool: bcftools
    command: bcftools call {input} -o {output}
    input: sorted/{sample}.bam
    output: calls/{sample}.vcf
  - id: align
    tool: bwa
    command: bwa mem ref.fa {input} > {output}
    input: reads/{sample}.fq
    output: aligned/{sample}.sam
    threads: 4
    wildcard_files:
      sample: [reads/s1.fq, reads/s2.fq]
  - id: sort
    tool: samtools
    command: samtools sort {input} -o {output}
    input:
      - aligned/{sample}.sam
    output:
      - sorted/{sample}.bam
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoad_YAMLExpandsDerivesAndOrders(t *testing.T) {
	path := writeFile(t, "variants.yaml", variantCallingYAML)

	wf, err := Load(t.Context(), testLogger(), path)
	require.NoError(t, err)

	assert.Equal(t, path, wf.Path)
	assert.Equal(t, []string{"align_s1", "align_s2", "sort_s1", "sort_s2", "call_s1", "call_s2"}, wf.StepIDs())
	assert.Equal(t, []string{"bcftools", "bwa", "samtools"}, wf.Tools)

	sortS2 := wf.Step("sort_s2")
	assert.Equal(t, []string{"align_s2"}, sortS2.Previous)
	assert.Equal(t, []string{"call_s2"}, sortS2.Next)
	assert.Equal(t, 1, sortS2.Threads)
	assert.Equal(t, 4, wf.Step("align_s1").Threads)
}

func TestParseYAML_SchemaViolations(t *testing.T) {
	tests := []struct {
		name     string
		document string
	}{
		{"missing steps", "name: nothing"},
		{"steps not a list", "steps: {id: a}"},
		{"threads not integer", "steps:\n  - id: a\n    threads: many"},
		{"input mapping", "steps:\n  - id: a\n    input: {x: y}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseYAML([]byte(tt.document))
			require.Error(t, err)

			var structural *StructuralError
			require.ErrorAs(t, err, &structural)
			assert.NotEmpty(t, structural.Violations)
		})
	}
}

func TestParseYAML_MalformedDocument(t *testing.T) {
	_, err := ParseYAML([]byte("steps: [unterminated"))
	assert.Error(t, err)
}

func TestLoad_ReportsMissingFile(t *testing.T) {
	_, err := Load(t.Context(), testLogger(), filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read workflow file")
}

func TestLoad_HCL(t *testing.T) {
	t.Setenv("STEPFLOW_TEST_REF", "hg38.fa")

	path := writeFile(t, "pipeline.hcl", `
step "index" {
  tool    = "bwa"
  command = "bwa index ${env.STEPFLOW_TEST_REF}"
  output  = ["hg38.fa.bwt"]
}

step "align" {
  tool    = "bwa"
  command = "bwa mem ${env.STEPFLOW_TEST_REF} {input} > {output}"
  input   = ["hg38.fa.bwt", "{sample}.fq"]
  output  = ["{sample}.sam"]
  threads = 8
  wildcard_files = { sample = ["a.fq"] }
}
`)

	wf, err := Load(t.Context(), testLogger(), path)
	require.NoError(t, err)

	assert.Equal(t, []string{"index", "align_a"}, wf.StepIDs())
	assert.Equal(t, "bwa index hg38.fa", wf.Step("index").Command)
	assert.Equal(t, 8, wf.Step("align_a").Threads)
	assert.Equal(t, []string{"index"}, wf.Step("align_a").Previous)
}

func TestParseHCL_SyntaxError(t *testing.T) {
	_, err := ParseHCL([]byte(`step "a" {`), "broken.hcl")
	assert.Error(t, err)
}

func TestPrepare_MissingFieldsFromHCLReachValidator(t *testing.T) {
	wf, err := ParseHCL([]byte(`step "a" {}`), "a.hcl")
	require.NoError(t, err)

	err = Prepare(t.Context(), testLogger(), wf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Step 'a' has no tool specified")
	assert.Contains(t, err.Error(), "Step 'a' has no command specified")
}

func TestSave_WritesExpandedWorkflow(t *testing.T) {
	wf := &models.Workflow{Steps: []*models.Step{
		{ID: "a", Tool: "bash", Command: "echo hi", Threads: 1, Output: models.StringList{"a.txt"}},
	}}

	path := filepath.Join(t.TempDir(), "out", "expanded.yaml")
	require.NoError(t, Save(wf, path))

	reloaded, err := Parse(path)
	require.NoError(t, err)
	require.Len(t, reloaded.Steps, 1)
	assert.Equal(t, "echo hi", reloaded.Steps[0].Command)
	assert.Equal(t, models.StringList{"a.txt"}, reloaded.Steps[0].Output)
}
