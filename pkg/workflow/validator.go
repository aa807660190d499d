package workflow

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/go-playground/validator/v10"
)

// Validator checks workflow structure and orders the steps topologically.
type Validator struct {
	logger   *slog.Logger
	validate *validator.Validate
}

func NewValidator(logger *slog.Logger) *Validator {
	return &Validator{
		logger:   logger.With("module", "workflow_validator"),
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Validate collects every structural violation and returns them together as a
// *StructuralError. On success the steps are reordered so that every step comes
// after all of its predecessors, and the tool set is refreshed.
func (v *Validator) Validate(wf *models.Workflow) error {
	v.logger.Info("Validating workflow", "steps", len(wf.Steps))

	if len(wf.Steps) == 0 {
		return &StructuralError{Violations: []Violation{{Message: "Workflow has no steps"}}}
	}

	wf.RefreshTools()

	var violations []Violation

	ids := make(map[string]struct{}, len(wf.Steps))
	reported := make(map[string]struct{})

	for _, step := range wf.Steps {
		if step.ID == "" {
			continue
		}

		if _, dup := ids[step.ID]; dup {
			if _, done := reported[step.ID]; !done {
				violations = append(violations, Violation{
					StepID:  step.ID,
					Message: fmt.Sprintf("Duplicate step ID: '%s'", step.ID),
				})
				reported[step.ID] = struct{}{}
			}

			continue
		}

		ids[step.ID] = struct{}{}
	}

	for i, step := range wf.Steps {
		violations = append(violations, v.checkStep(i, step)...)

		if step.ID == "" {
			continue
		}

		for _, ref := range step.Previous {
			if _, ok := ids[ref]; !ok {
				violations = append(violations, danglingReference(step.ID, ref))
			}
		}

		for _, ref := range step.Next {
			if _, ok := ids[ref]; !ok {
				violations = append(violations, danglingReference(step.ID, ref))
			}
		}
	}

	if len(violations) > 0 {
		return &StructuralError{Violations: violations}
	}

	order, err := TopologicalOrder(wf.Steps)
	if err != nil {
		return err
	}

	byID := make(map[string]*models.Step, len(wf.Steps))
	for _, step := range wf.Steps {
		byID[step.ID] = step
	}

	sorted := make([]*models.Step, 0, len(order))
	for _, id := range order {
		sorted = append(sorted, byID[id])
	}

	wf.Steps = sorted

	v.logger.Info("Workflow validated", "steps", len(wf.Steps), "tools", len(wf.Tools))

	return nil
}

func (v *Validator) checkStep(index int, step *models.Step) []Violation {
	err := v.validate.Struct(step)
	if err == nil {
		v.warnPlaceholders(step)

		return nil
	}

	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return []Violation{{StepID: step.ID, Message: err.Error()}}
	}

	if step.ID == "" {
		return []Violation{{Message: fmt.Sprintf("Step at position %d has empty or whitespace-only ID", index+1)}}
	}

	violations := make([]Violation, 0, len(fieldErrors))

	for _, fe := range fieldErrors {
		var message string

		switch fe.StructField() {
		case "Tool":
			message = fmt.Sprintf("Step '%s' has no tool specified", step.ID)
		case "Command":
			message = fmt.Sprintf("Step '%s' has no command specified", step.ID)
		case "Threads":
			message = fmt.Sprintf("Step '%s' must request at least 1 thread, got %d", step.ID, step.Threads)
		default:
			message = fmt.Sprintf("Step '%s': field %s failed '%s'", step.ID, fe.Field(), fe.Tag())
		}

		violations = append(violations, Violation{StepID: step.ID, Message: message})
	}

	return violations
}

func (v *Validator) warnPlaceholders(step *models.Step) {
	usesInput := strings.Contains(step.Command, "{input}") || strings.Contains(step.Command, "{inputs}")
	if usesInput && len(step.Inputs()) == 0 {
		v.logger.Warn("Command uses {input} but no input specified", "step_id", step.ID)
	}

	usesOutput := strings.Contains(step.Command, "{output}") || strings.Contains(step.Command, "{outputs}")
	if usesOutput && len(step.Outputs()) == 0 {
		v.logger.Warn("Command uses {output} but no output specified", "step_id", step.ID)
	}
}

func danglingReference(stepID, ref string) Violation {
	return Violation{
		StepID:  stepID,
		Message: fmt.Sprintf("Step '%s' references unknown step '%s'", stepID, ref),
	}
}

// TopologicalOrder orders step ids with Kahn's algorithm. The queue is seeded
// with zero in-degree steps in their original order. It returns a
// *CyclicDependencyError when not every step can be ordered.
func TopologicalOrder(steps []*models.Step) ([]string, error) {
	inDegree := make(map[string]int, len(steps))
	successors := make(map[string][]string, len(steps))

	queue := make([]string, 0, len(steps))

	for _, step := range steps {
		inDegree[step.ID] = len(step.Previous)
		successors[step.ID] = step.Next

		if len(step.Previous) == 0 {
			queue = append(queue, step.ID)
		}
	}

	order := make([]string, 0, len(steps))

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		order = append(order, current)

		for _, next := range successors[current] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if len(order) != len(steps) {
		ordered := make(map[string]struct{}, len(order))
		for _, id := range order {
			ordered[id] = struct{}{}
		}

		var remaining []string

		for _, step := range steps {
			if _, ok := ordered[step.ID]; !ok {
				remaining = append(remaining, step.ID)
			}
		}

		return nil, &CyclicDependencyError{Remaining: remaining}
	}

	return order, nil
}
