// Package persistence provides the data storage abstraction layer for
// workflow definitions and instances.
package persistence

import (
	"context"

	"github.com/flowdesk/flowdesk/pkg/models"
)

// Persistence is the storage backend contract. Implementations live in the
// file and postgresql subpackages.
type Persistence interface {
	WorkflowRepository() WorkflowRepository
	InstanceRepository() InstanceRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// WorkflowRepository stores workflow definitions. GetByID returns (nil, nil)
// when no definition exists with the given id.
type WorkflowRepository interface {
	ListWorkflows(ctx context.Context, opts ListWorkflowsOptions) (*WorkflowListResult, error)
	GetByID(ctx context.Context, id string) (*models.Workflow, error)
	Save(ctx context.Context, workflow *models.Workflow) error
	Delete(ctx context.Context, id string) error
}

// InstanceRepository stores running and finished workflow instances. GetByID
// returns (nil, nil) when no instance exists with the given id.
type InstanceRepository interface {
	ListInstances(ctx context.Context, opts ListInstancesOptions) (*InstanceListResult, error)
	GetByID(ctx context.Context, id string) (*models.Instance, error)
	Save(ctx context.Context, instance *models.Instance) error
}

// ListWorkflowsOptions controls filtering, sorting, and pagination of
// definition listings.
type ListWorkflowsOptions struct {
	Limit  int
	Offset int

	Owner  string
	Status *models.WorkflowStatus

	SortBy    string // created_at, updated_at, name
	SortOrder string // asc, desc
}

// WorkflowListResult is one page of a definition listing.
type WorkflowListResult struct {
	Workflows   []*models.Workflow
	TotalCount  int64
	HasNextPage bool
}

// ListInstancesOptions controls filtering, sorting, and pagination of
// instance listings.
type ListInstancesOptions struct {
	Limit  int
	Offset int

	WorkflowID string
	StartedBy  string
	Status     *models.InstanceStatus

	SortBy    string // created_at, completed_at
	SortOrder string // asc, desc
}

// InstanceListResult is one page of an instance listing.
type InstanceListResult struct {
	Instances   []*models.Instance
	TotalCount  int64
	HasNextPage bool
}
