package models

import "time"

// InstanceStatus represents the lifecycle state of a running workflow instance.
type InstanceStatus string

const (
	InstanceStatusInProgress InstanceStatus = "in_progress"
	InstanceStatusCompleted  InstanceStatus = "completed"
	InstanceStatusCancelled  InstanceStatus = "cancelled"
)

// Instance is one running execution of a published workflow definition.
// FormData accumulates submitted values across all steps, keyed by field key.
type Instance struct {
	ID            string            `json:"id"`
	WorkflowID    string            `json:"workflow_id"`
	CurrentStepID string            `json:"current_step_id,omitempty"` // Empty once terminal
	Status        InstanceStatus    `json:"status"`
	FormData      map[string]string `json:"form_data,omitempty"`
	StartedBy     string            `json:"started_by,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	CompletedAt   *time.Time        `json:"completed_at,omitempty"`
}

// Terminal reports whether the instance accepts no further submissions.
func (i *Instance) Terminal() bool {
	return i.Status == InstanceStatusCompleted || i.Status == InstanceStatusCancelled
}
