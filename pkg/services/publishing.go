// Package services provides workflow lifecycle operations: definition CRUD,
// publishing, import, and instance execution.
package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/flowdesk/flowdesk/pkg/graph"
	"github.com/flowdesk/flowdesk/pkg/models"
	"github.com/flowdesk/flowdesk/pkg/persistence"
)

// Publishing handles the draft -> published -> archived lifecycle. Publishing
// freezes a definition in place: the same record flips status, and once
// published its graph can no longer be edited.
type Publishing struct {
	persistence persistence.Persistence
}

// NewPublishing creates a new workflow publishing service.
func NewPublishing(persistence persistence.Persistence) *Publishing {
	return &Publishing{
		persistence: persistence,
	}
}

// PublishWorkflow validates the definition's step graph and marks it
// published. Validation failures carry the graph error so callers can report
// the offending step.
func (p *Publishing) PublishWorkflow(ctx context.Context, workflowID string) (*models.Workflow, error) {
	workflow, err := p.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to get workflow: %w", err)
	}

	if workflow == nil {
		return nil, ErrWorkflowNotFound
	}

	switch workflow.Status {
	case models.WorkflowStatusPublished:
		// Republishing is a no-op.
		return workflow, nil
	case models.WorkflowStatusArchived:
		return nil, fmt.Errorf("%w: %s", ErrCannotPublishArchived, workflowID)
	}

	if err := p.validateForPublishing(workflow); err != nil {
		return nil, fmt.Errorf("workflow validation failed: %w", err)
	}

	now := time.Now().UTC()
	workflow.Status = models.WorkflowStatusPublished
	workflow.PublishedAt = &now

	if err := p.persistence.WorkflowRepository().Save(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to publish workflow: %w", err)
	}

	return workflow, nil
}

// ArchiveWorkflow retires a published definition. Archived definitions cannot
// start new instances; running instances keep executing against them.
func (p *Publishing) ArchiveWorkflow(ctx context.Context, workflowID string) (*models.Workflow, error) {
	workflow, err := p.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to get workflow: %w", err)
	}

	if workflow == nil {
		return nil, ErrWorkflowNotFound
	}

	if workflow.Status != models.WorkflowStatusPublished {
		return nil, fmt.Errorf("%w: %s", ErrCannotArchiveDraft, workflowID)
	}

	workflow.Status = models.WorkflowStatusArchived

	if err := p.persistence.WorkflowRepository().Save(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to archive workflow: %w", err)
	}

	return workflow, nil
}

// validateForPublishing ensures a workflow is ready to be published: a named
// definition with a structurally sound graph and well-formed expressions.
func (p *Publishing) validateForPublishing(workflow *models.Workflow) error {
	if workflow == nil {
		return ErrWorkflowNil
	}

	if strings.TrimSpace(workflow.Name) == "" {
		return ErrWorkflowNameRequired
	}

	if err := validateDefinitionShape(workflow); err != nil {
		return err
	}

	if err := graph.Validate(workflow); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	return nil
}
