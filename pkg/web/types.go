// Package web provides HTTP request and response types for the workflow API.
package web

import (
	"github.com/flowdesk/flowdesk/pkg/models"
	"github.com/flowdesk/flowdesk/pkg/rules"
	"github.com/flowdesk/flowdesk/pkg/workflow"
)

// CreateWorkflowRequest represents the request body for creating a new workflow.
type CreateWorkflowRequest struct {
	Name        string                 `json:"name"        validate:"required,min=3"`
	Description string                 `json:"description"`
	Owner       string                 `json:"owner"       validate:"required"`
	Steps       []*models.Step         `json:"steps"       validate:"required,min=1"`
	Rules       []*models.BusinessRule `json:"business_rules,omitempty"`
}

// UpdateWorkflowRequest represents the request body for updating a draft
// workflow. Name and description support partial updates; a non-nil steps or
// rules list replaces the stored one wholesale.
type UpdateWorkflowRequest struct {
	Name        *string                `json:"name,omitempty"        validate:"omitempty,min=3"`
	Description *string                `json:"description,omitempty"`
	Steps       []*models.Step         `json:"steps,omitempty"`
	Rules       []*models.BusinessRule `json:"business_rules,omitempty"`
}

// StartInstanceRequest represents the request body for starting a workflow
// instance.
type StartInstanceRequest struct {
	StartedBy string `json:"started_by" validate:"required"`
}

// SubmitStepRequest represents the request body for submitting a task step.
// ExpectedStepID is the step the client believes the instance is on; a
// mismatch is rejected instead of double-applying the submission.
type SubmitStepRequest struct {
	ExpectedStepID string            `json:"expected_step_id" validate:"required"`
	FormData       map[string]string `json:"form_data"`
}

// SubmitStepResponse reports what the submission did to the instance.
type SubmitStepResponse struct {
	Instance      *models.Instance      `json:"instance"`
	Outcome       rules.Kind            `json:"outcome"`
	Reason        string                `json:"reason,omitempty"`
	NextStepID    string                `json:"next_step_id,omitempty"`
	Completed     bool                  `json:"completed"`
	Notifications []rules.Notification  `json:"notifications,omitempty"`
}

func newSubmitStepResponse(instance *models.Instance, decision *workflow.Decision) SubmitStepResponse {
	return SubmitStepResponse{
		Instance:      instance,
		Outcome:       decision.Outcome.Kind,
		Reason:        decision.Outcome.Reason,
		NextStepID:    decision.NextStepID,
		Completed:     decision.Completed,
		Notifications: decision.Outcome.Notifications,
	}
}
