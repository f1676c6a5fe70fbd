package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStepTargets(t *testing.T) {
	tests := []struct {
		name     string
		step     Step
		expected []Transition
	}{
		{
			name: "structured transitions win",
			step: Step{
				Transitions:       []Transition{{Target: "a", Guard: "amount > 10"}, {Target: "b"}},
				TransitionTargets: "c,d",
			},
			expected: []Transition{{Target: "a", Guard: "amount > 10"}, {Target: "b"}},
		},
		{
			name:     "legacy comma list",
			step:     Step{TransitionTargets: "a, b ,c"},
			expected: []Transition{{Target: "a"}, {Target: "b"}, {Target: "c"}},
		},
		{
			name:     "legacy list skips empty segments",
			step:     Step{TransitionTargets: "a,,b,"},
			expected: []Transition{{Target: "a"}, {Target: "b"}},
		},
		{
			name:     "no edges",
			step:     Step{},
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.step.Targets())
		})
	}
}

func TestStepIsTerminal(t *testing.T) {
	assert.True(t, (&Step{Type: StepTypeEnd}).IsTerminal())
	assert.False(t, (&Step{Type: StepTypeTask}).IsTerminal())
	assert.False(t, (&Step{Type: StepTypeStart}).IsTerminal())
}
