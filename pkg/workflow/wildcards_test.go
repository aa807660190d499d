package workflow

import (
	"log/slog"
	"testing"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestExpandWildcards_SharedExtensionUsesStem(t *testing.T) {
	wf := &models.Workflow{Steps: []*models.Step{
		{
			ID:            "align",
			Tool:          "bowtie2",
			Command:       "bowtie2 -U {input} -S {output} --rg-id {sample}",
			Input:         models.StringList{"reads/{sample}.fq"},
			Output:        models.StringList{"aligned/{sample}.sam"},
			Threads:       2,
			WildcardFiles: map[string][]string{"sample": {"reads/b.fq", "reads/a.fq", "reads/a.fq"}},
		},
	}}

	require.NoError(t, ExpandWildcards(testLogger(), wf))
	require.Len(t, wf.Steps, 2)

	assert.Equal(t, []string{"align_a", "align_b"}, wf.StepIDs())

	first := wf.Steps[0]
	assert.Equal(t, "bowtie2 -U {input} -S {output} --rg-id a", first.Command)
	assert.Equal(t, models.StringList{"reads/a.fq"}, first.Input)
	assert.Equal(t, models.StringList{"aligned/a.sam"}, first.Output)
	assert.Equal(t, 2, first.Threads)
	assert.Nil(t, first.WildcardFiles)
}

func TestExpandWildcards_MixedExtensionsUseFileName(t *testing.T) {
	wf := &models.Workflow{Steps: []*models.Step{
		{
			ID:            "compress",
			Tool:          "gzip",
			Command:       "gzip -k {file}",
			WildcardFiles: map[string][]string{"file": {"data/x.txt", "data/y.csv"}},
		},
	}}

	require.NoError(t, ExpandWildcards(testLogger(), wf))
	assert.Equal(t, []string{"compress_x.txt", "compress_y.csv"}, wf.StepIDs())
	assert.Equal(t, "gzip -k x.txt", wf.Steps[0].Command)
}

func TestExpandWildcards_BindingsMergedAcrossSteps(t *testing.T) {
	wf := &models.Workflow{Steps: []*models.Step{
		{
			ID:            "trim",
			Tool:          "cutadapt",
			Command:       "cutadapt {s}",
			Input:         models.StringList{"{s}.fq"},
			Output:        models.StringList{"{s}.trimmed.fq"},
			WildcardFiles: map[string][]string{"s": {"a.fq"}},
		},
		{
			ID:            "count",
			Tool:          "wc",
			Command:       "wc -l {s}.trimmed.fq",
			Input:         models.StringList{"{s}.trimmed.fq"},
			WildcardFiles: map[string][]string{"s": {"b.fq"}},
		},
	}}

	require.NoError(t, ExpandWildcards(testLogger(), wf))
	assert.Equal(t, []string{"trim_a", "trim_b", "count_a", "count_b"}, wf.StepIDs())
}

func TestExpandWildcards_ReferenceRewriting(t *testing.T) {
	wf := &models.Workflow{Steps: []*models.Step{
		{ID: "index", Tool: "bwa", Command: "bwa index ref.fa", Next: []string{"align"}},
		{
			ID:            "align",
			Tool:          "bwa",
			Command:       "bwa mem ref.fa {sample}.fq",
			Previous:      []string{"index"},
			Next:          []string{"sort"},
			WildcardFiles: map[string][]string{"sample": {"a.fq", "b.fq"}},
		},
		{
			ID:       "sort",
			Tool:     "samtools",
			Command:  "samtools sort {sample}.bam",
			Previous: []string{"align"},
		},
	}}

	require.NoError(t, ExpandWildcards(testLogger(), wf))
	assert.Equal(t, []string{"index", "align_a", "align_b", "sort_a", "sort_b"}, wf.StepIDs())

	assert.Equal(t, []string{"align_a", "align_b"}, wf.Step("index").Next)
	assert.Equal(t, []string{"index"}, wf.Step("align_a").Previous)
	assert.Equal(t, []string{"sort_a"}, wf.Step("align_a").Next)
	assert.Equal(t, []string{"align_b"}, wf.Step("sort_b").Previous)
}

func TestExpandWildcards_NoTemplatesLeavesWorkflowUntouched(t *testing.T) {
	wf := &models.Workflow{Steps: []*models.Step{
		{ID: "a", Tool: "echo", Command: "echo ${HOME} {input} > {output}", Input: models.StringList{"in"}, Output: models.StringList{"out"}},
	}}
	original := wf.Steps[0]

	require.NoError(t, ExpandWildcards(testLogger(), wf))
	require.Len(t, wf.Steps, 1)
	assert.Same(t, original, wf.Steps[0])
}

func TestExpandWildcards_Errors(t *testing.T) {
	tests := []struct {
		name     string
		step     *models.Step
		expected error
	}{
		{
			name: "multiple names",
			step: &models.Step{
				ID:            "x",
				Command:       "cat {a} {b}",
				WildcardFiles: map[string][]string{"a": {"1"}, "b": {"2"}},
			},
			expected: ErrMultipleWildcards,
		},
		{
			name:     "unbound name",
			step:     &models.Step{ID: "x", Command: "cat {sample}"},
			expected: ErrWildcardUnbound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wf := &models.Workflow{Steps: []*models.Step{tt.step}}

			err := ExpandWildcards(testLogger(), wf)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.expected)
			assert.ErrorIs(t, err, ErrInvalidWorkflow)

			var wildcardErr *WildcardError
			require.ErrorAs(t, err, &wildcardErr)
			assert.Equal(t, "x", wildcardErr.StepID)
		})
	}
}

func TestFindTokens_IgnoresShellExpansion(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, findTokens("{a}{b} ${c} awk '{print $1}'"))
	assert.Equal(t, "x-${s}-x", replaceToken("{s}-${s}-{s}", "s", "x"))
}

func TestWildcardValues(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, wildcardValues([]string{"d1/a.fq", "d2/b.fq"}))
	assert.Equal(t, []string{"a.fq", "b"}, wildcardValues([]string{"a.fq", "b"}))
	assert.Equal(t, []string{"x.tar"}, wildcardValues([]string{"x.tar.gz"}))
}
