// Package models defines the core domain models for step-based workflow automation
package models

import "time"

// WorkflowStatus represents the lifecycle state of a workflow definition.
type WorkflowStatus string

const (
	WorkflowStatusDraft     WorkflowStatus = "draft"     // Editable, not startable
	WorkflowStatusPublished WorkflowStatus = "published" // Frozen, startable
	WorkflowStatusArchived  WorkflowStatus = "archived"  // Historical, not startable
)

// Workflow represents an authored workflow definition: an ordered sequence of
// steps forming a directed graph, plus an optional legacy workflow-level rule
// list consulted only when a step defines no rules of its own.
type Workflow struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"                     validate:"required,min=3"`
	Description string          `json:"description"`
	Status      WorkflowStatus  `json:"status"                   validate:"required"`
	Steps       []*Step         `json:"steps"`
	Rules       []*BusinessRule `json:"business_rules,omitempty"` // Deprecated: step-level rules supersede these
	Owner       string          `json:"owner"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	PublishedAt *time.Time      `json:"published_at,omitempty"`
}

// IsPublished reports whether the definition can be started.
func (w *Workflow) IsPublished() bool {
	return w.Status == WorkflowStatusPublished
}

// StepByID returns the step with the given id, if present.
func (w *Workflow) StepByID(id string) (*Step, bool) {
	for _, step := range w.Steps {
		if step.ID == id {
			return step, true
		}
	}

	return nil, false
}

// StartStep returns the definition's START step, if present.
func (w *Workflow) StartStep() (*Step, bool) {
	for _, step := range w.Steps {
		if step.Type == StepTypeStart {
			return step, true
		}
	}

	return nil, false
}
