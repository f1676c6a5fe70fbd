package models

import "strings"

// StepType represents the kind of node a step is in the workflow graph.
type StepType string

const (
	StepTypeStart        StepType = "START"
	StepTypeTask         StepType = "TASK"
	StepTypeApproval     StepType = "APPROVAL"
	StepTypeNotification StepType = "NOTIFICATION"
	StepTypeCondition    StepType = "CONDITION"
	StepTypeEnd          StepType = "END"
)

// Transition is a directed edge to a candidate next step. Guard is a condition
// expression evaluated against submitted form data; only CONDITION steps carry
// guards, and an empty guard always matches (usable as a default edge).
type Transition struct {
	Target string `json:"target" validate:"required"`
	Guard  string `json:"guard,omitempty"`
}

// Step represents a node in the workflow graph with an optional form and an
// ordered list of business rules evaluated on submission.
type Step struct {
	ID           string          `json:"id"                       validate:"required"`
	Name         string          `json:"name"                     validate:"required,min=1"`
	Type         StepType        `json:"type"                     validate:"required"`
	StepOrder    int             `json:"step_order"`
	AssignedRole string          `json:"assigned_role,omitempty"` // Advisory: who may act, not enforced here
	PositionX    float64         `json:"position_x"`
	PositionY    float64         `json:"position_y"`
	Transitions  []Transition    `json:"transitions,omitempty"`
	// TransitionTargets is the legacy comma-separated edge list. It is parsed
	// into guard-less transitions when Transitions is empty.
	TransitionTargets string          `json:"transition_targets,omitempty"`
	FormFields        []*FormField    `json:"form_fields,omitempty"`
	Rules             []*BusinessRule `json:"business_rules,omitempty"`
}

// Targets returns the step's outgoing edges in declared order, falling back to
// the legacy comma-separated representation when no structured transitions are
// set.
func (s *Step) Targets() []Transition {
	if len(s.Transitions) > 0 {
		return s.Transitions
	}

	if s.TransitionTargets == "" {
		return nil
	}

	parts := strings.Split(s.TransitionTargets, ",")
	targets := make([]Transition, 0, len(parts))

	for _, part := range parts {
		id := strings.TrimSpace(part)
		if id == "" {
			continue
		}

		targets = append(targets, Transition{Target: id})
	}

	return targets
}

// IsTerminal reports whether reaching this step completes the instance.
func (s *Step) IsTerminal() bool {
	return s.Type == StepTypeEnd
}
