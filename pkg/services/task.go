package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/flowdesk/flowdesk/pkg/eventbus"
	"github.com/flowdesk/flowdesk/pkg/events"
	"github.com/flowdesk/flowdesk/pkg/locks"
	"github.com/flowdesk/flowdesk/pkg/models"
	"github.com/flowdesk/flowdesk/pkg/otelhelper"
	"github.com/flowdesk/flowdesk/pkg/persistence"
	"github.com/flowdesk/flowdesk/pkg/workflow"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrInstanceNotFound is returned when an instance is not found.
	ErrInstanceNotFound = persistence.ErrInstanceNotFound
)

// Task orchestrates instance execution: it loads state, serializes concurrent
// submissions per instance, delegates the decision to the executor, persists
// the result, and publishes lifecycle events.
type Task struct {
	persistence persistence.Persistence
	executor    *workflow.Executor
	locker      locks.Locker
	eventBus    eventbus.EventBus
	tracer      trace.Tracer
	logger      *slog.Logger
}

// NewTask creates a new task service.
func NewTask(
	persistence persistence.Persistence,
	executor *workflow.Executor,
	locker locks.Locker,
	eventBus eventbus.EventBus,
	tracer trace.Tracer,
	logger *slog.Logger,
) *Task {
	return &Task{
		persistence: persistence,
		executor:    executor,
		locker:      locker,
		eventBus:    eventBus,
		tracer:      tracer,
		logger:      logger,
	}
}

// StartInstance creates a new instance of a published workflow.
func (t *Task) StartInstance(ctx context.Context, workflowID, startedBy string) (*models.Instance, error) {
	ctx, span := otelhelper.StartSpan(ctx, t.tracer, "task.start_instance",
		attribute.String(otelhelper.WorkflowIDKey, workflowID),
	)
	defer span.End()

	definition, err := t.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("failed to get workflow: %w", err)
	}

	if definition == nil {
		return nil, ErrWorkflowNotFound
	}

	instance, emitted, err := t.executor.Start(definition, startedBy)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	if err := t.persistence.InstanceRepository().Save(ctx, instance); err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("failed to save instance: %w", err)
	}

	span.SetAttributes(attribute.String(otelhelper.InstanceIDKey, instance.ID))
	t.publishEvents(ctx, instance.ID, emitted)

	return instance, nil
}

// SubmitResult carries the instance after a submission together with the
// executor's decision.
type SubmitResult struct {
	Instance *models.Instance
	Decision *workflow.Decision
}

// SubmitStep applies one form submission to an instance. The per-instance
// lock rejects concurrent submissions instead of queueing them; the
// ExpectedStepID check in the executor catches lost updates that slip past
// the lock window.
func (t *Task) SubmitStep(ctx context.Context, instanceID string, submission workflow.Submission) (*SubmitResult, error) {
	ctx, span := otelhelper.StartSpan(ctx, t.tracer, "task.submit_step",
		attribute.String(otelhelper.InstanceIDKey, instanceID),
		attribute.String(otelhelper.StepIDKey, submission.ExpectedStepID),
	)
	defer span.End()

	if err := t.locker.Acquire(ctx, instanceID); err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("%w: %s", ErrInstanceLocked, instanceID)
	}

	defer func() {
		if err := t.locker.Release(ctx, instanceID); err != nil {
			t.logger.Warn("Failed to release instance lock", "instance_id", instanceID, "error", err)
		}
	}()

	instance, err := t.persistence.InstanceRepository().GetByID(ctx, instanceID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("failed to get instance: %w", err)
	}

	if instance == nil {
		return nil, ErrInstanceNotFound
	}

	definition, err := t.persistence.WorkflowRepository().GetByID(ctx, instance.WorkflowID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("failed to get workflow: %w", err)
	}

	if definition == nil {
		return nil, ErrWorkflowNotFound
	}

	decision, err := t.executor.Submit(definition, instance, submission)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	if err := t.persistence.InstanceRepository().Save(ctx, instance); err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("failed to save instance: %w", err)
	}

	t.publishEvents(ctx, instance.ID, decision.Events)

	return &SubmitResult{Instance: instance, Decision: decision}, nil
}

// CancelInstance terminates an in-progress instance.
func (t *Task) CancelInstance(ctx context.Context, instanceID string) (*models.Instance, error) {
	ctx, span := otelhelper.StartSpan(ctx, t.tracer, "task.cancel_instance",
		attribute.String(otelhelper.InstanceIDKey, instanceID),
	)
	defer span.End()

	if err := t.locker.Acquire(ctx, instanceID); err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("%w: %s", ErrInstanceLocked, instanceID)
	}

	defer func() {
		if err := t.locker.Release(ctx, instanceID); err != nil {
			t.logger.Warn("Failed to release instance lock", "instance_id", instanceID, "error", err)
		}
	}()

	instance, err := t.persistence.InstanceRepository().GetByID(ctx, instanceID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("failed to get instance: %w", err)
	}

	if instance == nil {
		return nil, ErrInstanceNotFound
	}

	emitted, err := t.executor.Cancel(instance)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	if err := t.persistence.InstanceRepository().Save(ctx, instance); err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("failed to save instance: %w", err)
	}

	t.publishEvents(ctx, instance.ID, emitted)

	return instance, nil
}

// FetchInstance retrieves an instance by its ID.
func (t *Task) FetchInstance(ctx context.Context, instanceID string) (*models.Instance, error) {
	instance, err := t.persistence.InstanceRepository().GetByID(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	if instance == nil {
		return nil, ErrInstanceNotFound
	}

	return instance, nil
}

// ListInstancesRequest contains options for listing instances.
type ListInstancesRequest struct {
	Limit  int
	Offset int

	WorkflowID string
	StartedBy  string
	Status     *models.InstanceStatus
}

// ListInstancesResponse contains the result of listing instances.
type ListInstancesResponse struct {
	Instances   []*models.Instance `json:"instances"`
	TotalCount  int64              `json:"total_count"`
	HasNextPage bool               `json:"has_next_page"`
}

// ListInstances retrieves instances with filtering and pagination.
func (t *Task) ListInstances(ctx context.Context, req ListInstancesRequest) (*ListInstancesResponse, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}

	if req.Limit > 100 {
		req.Limit = 100
	}

	if req.Offset < 0 {
		req.Offset = 0
	}

	result, err := t.persistence.InstanceRepository().ListInstances(ctx, persistence.ListInstancesOptions{
		Limit:      req.Limit,
		Offset:     req.Offset,
		WorkflowID: req.WorkflowID,
		StartedBy:  req.StartedBy,
		Status:     req.Status,
	})
	if err != nil {
		if persistence.IsInvalidSortField(err) {
			return nil, ErrInvalidSortField
		}

		return nil, fmt.Errorf("failed to list instances: %w", err)
	}

	return &ListInstancesResponse{
		Instances:   result.Instances,
		TotalCount:  result.TotalCount,
		HasNextPage: result.HasNextPage,
	}, nil
}

// publishEvents pushes executor events to the bus. Publishing is best-effort:
// a bus failure is logged, not surfaced, because the state change is already
// durable.
func (t *Task) publishEvents(ctx context.Context, key string, emitted []events.Event) {
	for _, event := range emitted {
		if err := t.eventBus.Publish(ctx, key, event); err != nil {
			t.logger.Warn("Failed to publish event",
				"event_type", event.GetType(),
				"instance_id", key,
				"error", err,
			)
		}
	}
}
