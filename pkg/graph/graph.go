// Package graph validates the directed graph of workflow steps and resolves
// the next step after a rule-approved submission.
package graph

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/flowdesk/flowdesk/pkg/expr"
	"github.com/flowdesk/flowdesk/pkg/models"
)

var (
	// ErrNoStartStep indicates the definition has no START step.
	ErrNoStartStep = errors.New("workflow has no START step")

	// ErrMultipleStartSteps indicates the definition has more than one START step.
	ErrMultipleStartSteps = errors.New("workflow has more than one START step")

	// ErrNoEndStep indicates the definition has no END step.
	ErrNoEndStep = errors.New("workflow has no END step")

	// ErrDanglingStep indicates a non-END step with no outgoing transitions.
	ErrDanglingStep = errors.New("non-END step has no outgoing transitions")

	// ErrUnknownTarget indicates a transition references a step id that does
	// not exist in the definition.
	ErrUnknownTarget = errors.New("transition references unknown step")

	// ErrUnreachableEnd indicates a step reachable from START that can never
	// reach an END step.
	ErrUnreachableEnd = errors.New("step cannot reach an END step")

	// ErrNoMatchingTransition indicates no CONDITION edge guard matched the
	// submitted data.
	ErrNoMatchingTransition = errors.New("no transition guard matched")

	// ErrStepNotFound indicates navigation was asked about a step id that is
	// not part of the definition.
	ErrStepNotFound = errors.New("step not found in workflow")
)

// Next is the result of resolving a step's successor.
type Next struct {
	StepID   string
	Terminal bool // True when the successor is an END step
}

// Validate checks the structural invariants required to publish a definition:
// exactly one START, at least one END, no dangling transitions, every non-END
// step has at least one outgoing edge, every step reachable from START can
// reach an END, and every rule condition and edge guard parses. Cycles are
// permitted. DRAFT definitions may violate all of this; publishing may not.
func Validate(workflow *models.Workflow) error {
	steps := make(map[string]*models.Step, len(workflow.Steps))
	for _, step := range workflow.Steps {
		steps[step.ID] = step
	}

	startCount := 0
	endCount := 0

	for _, step := range workflow.Steps {
		switch step.Type {
		case models.StepTypeStart:
			startCount++
		case models.StepTypeEnd:
			endCount++
		}
	}

	if startCount == 0 {
		return ErrNoStartStep
	}

	if startCount > 1 {
		return ErrMultipleStartSteps
	}

	if endCount == 0 {
		return ErrNoEndStep
	}

	for _, step := range workflow.Steps {
		targets := step.Targets()

		if step.Type != models.StepTypeEnd && len(targets) == 0 {
			return fmt.Errorf("%w: %s", ErrDanglingStep, step.ID)
		}

		for _, transition := range targets {
			if _, ok := steps[transition.Target]; !ok {
				return fmt.Errorf("%w: %s -> %s", ErrUnknownTarget, step.ID, transition.Target)
			}

			if err := expr.Check(transition.Guard); err != nil {
				return fmt.Errorf("guard on %s -> %s: %w", step.ID, transition.Target, err)
			}
		}

		for _, rule := range step.Rules {
			if err := expr.Check(rule.Condition); err != nil {
				return fmt.Errorf("rule %q on step %s: %w", rule.Name, step.ID, err)
			}
		}
	}

	for _, rule := range workflow.Rules {
		if err := expr.Check(rule.Condition); err != nil {
			return fmt.Errorf("workflow rule %q: %w", rule.Name, err)
		}
	}

	return checkReachability(workflow, steps)
}

// checkReachability walks forward from START and verifies every visited step
// can still reach an END.
func checkReachability(workflow *models.Workflow, steps map[string]*models.Step) error {
	start, _ := workflow.StartStep()

	reachesEnd := endReachers(workflow, steps)

	visited := make(map[string]bool, len(steps))
	queue := []string{start.ID}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		if visited[id] {
			continue
		}

		visited[id] = true

		if !reachesEnd[id] {
			return fmt.Errorf("%w: %s", ErrUnreachableEnd, id)
		}

		for _, transition := range steps[id].Targets() {
			queue = append(queue, transition.Target)
		}
	}

	return nil
}

// endReachers computes, via reverse traversal from the END steps, the set of
// step ids that have a path to some END.
func endReachers(workflow *models.Workflow, steps map[string]*models.Step) map[string]bool {
	incoming := make(map[string][]string, len(steps))

	for _, step := range workflow.Steps {
		for _, transition := range step.Targets() {
			incoming[transition.Target] = append(incoming[transition.Target], step.ID)
		}
	}

	reaches := make(map[string]bool, len(steps))

	var queue []string

	for _, step := range workflow.Steps {
		if step.Type == models.StepTypeEnd {
			reaches[step.ID] = true
			queue = append(queue, step.ID)
		}
	}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		for _, source := range incoming[id] {
			if !reaches[source] {
				reaches[source] = true
				queue = append(queue, source)
			}
		}
	}

	return reaches
}

// NextStep resolves the successor of current after a rule-approved submission.
// Ordinary steps advance to their first declared target. CONDITION steps
// evaluate each edge's guard against formData in declared order and take the
// first match; an empty guard always matches. A guard that fails to evaluate,
// typically because it references a field absent from formData, is treated as
// a non-match and logged, so routing falls through to later edges.
func NextStep(logger *slog.Logger, workflow *models.Workflow, current *models.Step, formData map[string]string) (Next, error) {
	targets := current.Targets()
	if len(targets) == 0 {
		return Next{}, fmt.Errorf("%w: %s", ErrDanglingStep, current.ID)
	}

	var chosen *models.Transition

	if current.Type == models.StepTypeCondition {
		for i := range targets {
			matched, err := expr.Evaluate(targets[i].Guard, formData)
			if err != nil {
				logger.Warn("Transition guard failed to evaluate, skipping edge",
					"step_id", current.ID,
					"target", targets[i].Target,
					"guard", targets[i].Guard,
					"error", err,
				)

				continue
			}

			if matched {
				chosen = &targets[i]

				break
			}
		}

		if chosen == nil {
			return Next{}, fmt.Errorf("%w: step %s", ErrNoMatchingTransition, current.ID)
		}
	} else {
		chosen = &targets[0]
	}

	next, ok := workflow.StepByID(chosen.Target)
	if !ok {
		return Next{}, fmt.Errorf("%w: %s", ErrUnknownTarget, chosen.Target)
	}

	return Next{StepID: next.ID, Terminal: next.IsTerminal()}, nil
}
