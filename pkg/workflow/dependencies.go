package workflow

import (
	"log/slog"
	"sort"

	"github.com/dukex/stepflow/pkg/models"
)

// DependencyMode selects how edges between steps are obtained.
type DependencyMode string

const (
	// ModeExplicit uses the previous/next lists declared on the steps.
	ModeExplicit DependencyMode = "explicit"
	// ModeImplicit derives edges by matching inputs to the outputs that produce them.
	ModeImplicit DependencyMode = "implicit"
)

// DetectMode returns ModeExplicit when any step declares previous or next.
func DetectMode(wf *models.Workflow) DependencyMode {
	for _, step := range wf.Steps {
		if len(step.Previous) > 0 || len(step.Next) > 0 {
			return ModeExplicit
		}
	}

	return ModeImplicit
}

// PopulateDependencies fills previous/next for every step so that the two
// directions are mutually consistent. Lists come out sorted and deduplicated.
func PopulateDependencies(logger *slog.Logger, wf *models.Workflow) (DependencyMode, error) {
	mode := DetectMode(wf)

	switch mode {
	case ModeExplicit:
		logger.Info("Using explicit dependencies from workflow definition")
		reconcileExplicit(logger, wf)
	case ModeImplicit:
		logger.Info("Deriving dependencies from input/output file matching")

		if err := deriveFromFiles(logger, wf); err != nil {
			return mode, err
		}
	}

	return mode, nil
}

type edgeSet map[string]map[string]struct{}

func (e edgeSet) add(from, to string) bool {
	if e[from] == nil {
		e[from] = map[string]struct{}{}
	}

	if _, ok := e[from][to]; ok {
		return false
	}

	e[from][to] = struct{}{}

	return true
}

func (e edgeSet) sorted(id string) []string {
	if len(e[id]) == 0 {
		return nil
	}

	out := make([]string, 0, len(e[id]))
	for ref := range e[id] {
		out = append(out, ref)
	}

	sort.Strings(out)

	return out
}

// reconcileExplicit warns about one-sided edges and adds the missing direction.
// Unknown references are kept so validation reports them.
func reconcileExplicit(logger *slog.Logger, wf *models.Workflow) {
	known := make(map[string]struct{}, len(wf.Steps))
	for _, step := range wf.Steps {
		known[step.ID] = struct{}{}
	}

	previous := edgeSet{}
	next := edgeSet{}

	for _, step := range wf.Steps {
		for _, ref := range step.Previous {
			previous.add(step.ID, ref)
		}

		for _, ref := range step.Next {
			next.add(step.ID, ref)
		}
	}

	for _, step := range wf.Steps {
		for _, ref := range step.Previous {
			if _, ok := known[ref]; !ok {
				logger.Warn("Step references unknown dependency", "step_id", step.ID, "reference", ref)

				continue
			}

			if next.add(ref, step.ID) {
				logger.Warn("Inconsistent dependency, adding missing next edge", "from", ref, "to", step.ID)
			}
		}

		for _, ref := range step.Next {
			if _, ok := known[ref]; !ok {
				logger.Warn("Step references unknown dependent", "step_id", step.ID, "reference", ref)

				continue
			}

			if previous.add(ref, step.ID) {
				logger.Warn("Inconsistent dependency, adding missing previous edge", "from", step.ID, "to", ref)
			}
		}
	}

	for _, step := range wf.Steps {
		step.Previous = previous.sorted(step.ID)
		step.Next = next.sorted(step.ID)
	}
}

func deriveFromFiles(logger *slog.Logger, wf *models.Workflow) error {
	producers := make(map[string]string)

	for _, step := range wf.Steps {
		for _, file := range step.Outputs() {
			if producer, ok := producers[file]; ok && producer != step.ID {
				return &AmbiguousProducerError{File: file, First: producer, Second: step.ID}
			}

			producers[file] = step.ID
		}
	}

	previous := edgeSet{}
	next := edgeSet{}
	edges := 0

	for _, step := range wf.Steps {
		for _, file := range step.Inputs() {
			producer, ok := producers[file]
			if !ok {
				continue
			}

			if previous.add(step.ID, producer) {
				edges++
			}

			next.add(producer, step.ID)
		}
	}

	for _, step := range wf.Steps {
		step.Previous = previous.sorted(step.ID)
		step.Next = next.sorted(step.ID)

		if len(step.Previous) > 0 {
			logger.Debug("Step dependencies derived", "step_id", step.ID, "previous", step.Previous)
		}
	}

	logger.Info("Derived dependency relationships", "edges", edges)

	return nil
}
