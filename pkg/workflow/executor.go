// Package workflow drives a running instance through its definition's step
// graph: validating submissions, applying business rules, and committing state
// transitions. The executor is a pure decision engine over its inputs; loading
// and saving instances, locking, and event publishing belong to the caller.
package workflow

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/flowdesk/flowdesk/pkg/events"
	"github.com/flowdesk/flowdesk/pkg/forms"
	"github.com/flowdesk/flowdesk/pkg/graph"
	"github.com/flowdesk/flowdesk/pkg/models"
	"github.com/flowdesk/flowdesk/pkg/rules"
	"github.com/google/uuid"
)

var (
	// ErrNoPublishedVersion indicates an attempt to start a workflow that is
	// not in PUBLISHED status.
	ErrNoPublishedVersion = errors.New("workflow is not published")

	// ErrInstanceFinished indicates a submission or cancellation against a
	// COMPLETED or CANCELLED instance.
	ErrInstanceFinished = errors.New("instance is already completed or cancelled")

	// ErrStaleInstance indicates the instance's current step changed since
	// the caller read it; refetch and retry.
	ErrStaleInstance = errors.New("instance has advanced since it was read")

	// ErrStepNotFound indicates the instance points at a step id missing from
	// its definition.
	ErrStepNotFound = errors.New("current step not found in workflow definition")

	// ErrFormDataTooLarge indicates the accumulated form data would exceed
	// the configured cap.
	ErrFormDataTooLarge = errors.New("accumulated form data exceeds maximum allowed size")
)

// DefaultMaxFormDataBytes caps accumulated form data per instance.
const DefaultMaxFormDataBytes = 50_000

// Submission is one step-submission request against an instance.
// ExpectedStepID is the current step id as the caller last read it; a mismatch
// fails with ErrStaleInstance instead of double-applying the submission.
type Submission struct {
	ExpectedStepID string
	FormData       map[string]string
}

// Decision describes what a submission did to the instance.
type Decision struct {
	Outcome    rules.Outcome
	FromStepID string
	NextStepID string // Set when the instance advanced to a non-terminal step
	Completed  bool
	Events     []events.Event
}

// Executor owns instance lifecycle transitions. All methods mutate the passed
// instance at most once and only after every fallible check has passed.
type Executor struct {
	rules            *rules.Engine
	logger           *slog.Logger
	maxFormDataBytes int
}

// NewExecutor creates an executor. maxFormDataBytes of 0 selects the default cap.
func NewExecutor(logger *slog.Logger, maxFormDataBytes int) *Executor {
	if maxFormDataBytes <= 0 {
		maxFormDataBytes = DefaultMaxFormDataBytes
	}

	return &Executor{
		rules:            rules.NewEngine(logger),
		logger:           logger,
		maxFormDataBytes: maxFormDataBytes,
	}
}

// Start creates a new instance of a published definition, positioned at the
// START step's successor (START carries no form, so it is crossed immediately).
func (e *Executor) Start(definition *models.Workflow, startedBy string) (*models.Instance, []events.Event, error) {
	if !definition.IsPublished() {
		return nil, nil, fmt.Errorf("%w: %s", ErrNoPublishedVersion, definition.ID)
	}

	start, ok := definition.StartStep()
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s has no START step", ErrStepNotFound, definition.ID)
	}

	next, err := graph.NextStep(e.logger, definition, start, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("resolving first step of %s: %w", definition.ID, err)
	}

	now := time.Now().UTC()
	instance := &models.Instance{
		ID:         uuid.New().String(),
		WorkflowID: definition.ID,
		Status:     models.InstanceStatusInProgress,
		FormData:   make(map[string]string),
		StartedBy:  startedBy,
		CreatedAt:  now,
	}

	emitted := []events.Event{
		events.InstanceStarted{
			BaseEvent:     events.NewBaseEvent(events.InstanceStartedEvent, definition.ID, instance.ID),
			CurrentStepID: next.StepID,
			StartedBy:     startedBy,
		},
	}

	if next.Terminal {
		// Degenerate START -> END graph: the instance completes on creation.
		instance.Status = models.InstanceStatusCompleted
		instance.CompletedAt = &now
		emitted = append(emitted, events.InstanceCompleted{
			BaseEvent:   events.NewBaseEvent(events.InstanceCompletedEvent, definition.ID, instance.ID),
			FinalStepID: next.StepID,
		})
	} else {
		instance.CurrentStepID = next.StepID
	}

	e.logger.Info("Started workflow instance",
		"workflow_id", definition.ID,
		"instance_id", instance.ID,
		"current_step_id", instance.CurrentStepID,
	)

	return instance, emitted, nil
}

// Submit applies one step submission to the instance. Merged form data is
// retained on every outcome, including Block and Pending, so the user can
// resubmit with prior context intact. The instance is mutated exactly once;
// on error it is untouched.
func (e *Executor) Submit(definition *models.Workflow, instance *models.Instance, submission Submission) (*Decision, error) {
	if instance.Terminal() {
		return nil, fmt.Errorf("%w: %s", ErrInstanceFinished, instance.ID)
	}

	if submission.ExpectedStepID != instance.CurrentStepID {
		return nil, fmt.Errorf("%w: expected step %q, instance is at %q",
			ErrStaleInstance, submission.ExpectedStepID, instance.CurrentStepID)
	}

	step, ok := definition.StepByID(instance.CurrentStepID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrStepNotFound, instance.CurrentStepID)
	}

	if err := forms.ValidateSubmission(step.FormFields, submission.FormData); err != nil {
		return nil, err
	}

	merged, err := e.mergeFormData(instance.FormData, submission.FormData)
	if err != nil {
		return nil, err
	}

	context := forms.BuildContext(merged, step.FormFields)

	// Step-scoped rules are canonical; the workflow-level list is a legacy
	// fallback consulted only when the step defines none.
	ruleList := step.Rules
	if len(ruleList) == 0 {
		ruleList = definition.Rules
	}

	outcome := e.rules.Apply(ruleList, context, step.AssignedRole)

	decision := &Decision{
		Outcome:    outcome,
		FromStepID: step.ID,
	}

	for _, notification := range outcome.Notifications {
		decision.Events = append(decision.Events,
			events.FromRuleNotification(definition.ID, instance.ID, step.ID, notification))
	}

	switch outcome.Kind {
	case rules.Block:
		instance.FormData = merged
		decision.Events = append(decision.Events, events.SubmissionRejected{
			BaseEvent: events.NewBaseEvent(events.SubmissionRejectedEvent, definition.ID, instance.ID),
			StepID:    step.ID,
			Rule:      outcome.Rule.Name,
			Reason:    outcome.Reason,
		})

		e.logger.Info("Submission blocked by business rule",
			"instance_id", instance.ID,
			"step_id", step.ID,
			"rule", outcome.Rule.Name,
		)

		return decision, nil

	case rules.Pending:
		instance.FormData = merged
		decision.Events = append(decision.Events, events.ApprovalRequested{
			BaseEvent:    events.NewBaseEvent(events.ApprovalRequestedEvent, definition.ID, instance.ID),
			StepID:       step.ID,
			Rule:         outcome.Rule.Name,
			ApproverRole: outcome.ApproverRole,
		})

		e.logger.Info("Submission held for approval",
			"instance_id", instance.ID,
			"step_id", step.ID,
			"rule", outcome.Rule.Name,
			"approver_role", outcome.ApproverRole,
		)

		return decision, nil
	}

	// Proceed: resolve the next step before touching the instance. Guard
	// expressions see the same context as business rules, label aliases
	// included.
	next, err := graph.NextStep(e.logger, definition, step, context)
	if err != nil {
		return nil, err
	}

	instance.FormData = merged

	if next.Terminal {
		now := time.Now().UTC()
		instance.Status = models.InstanceStatusCompleted
		instance.CurrentStepID = ""
		instance.CompletedAt = &now

		decision.Completed = true
		decision.Events = append(decision.Events, events.InstanceCompleted{
			BaseEvent:   events.NewBaseEvent(events.InstanceCompletedEvent, definition.ID, instance.ID),
			FinalStepID: next.StepID,
			FormData:    merged,
		})

		e.logger.Info("Workflow instance completed",
			"workflow_id", definition.ID,
			"instance_id", instance.ID,
		)

		return decision, nil
	}

	instance.CurrentStepID = next.StepID
	decision.NextStepID = next.StepID
	decision.Events = append(decision.Events, events.InstanceAdvanced{
		BaseEvent:  events.NewBaseEvent(events.InstanceAdvancedEvent, definition.ID, instance.ID),
		FromStepID: step.ID,
		ToStepID:   next.StepID,
	})

	e.logger.Info("Workflow instance advanced",
		"instance_id", instance.ID,
		"from_step_id", step.ID,
		"to_step_id", next.StepID,
	)

	return decision, nil
}

// Cancel irreversibly terminates an in-progress instance.
func (e *Executor) Cancel(instance *models.Instance) ([]events.Event, error) {
	if instance.Terminal() {
		return nil, fmt.Errorf("%w: %s", ErrInstanceFinished, instance.ID)
	}

	lastStepID := instance.CurrentStepID
	instance.Status = models.InstanceStatusCancelled
	instance.CurrentStepID = ""

	e.logger.Info("Workflow instance cancelled",
		"workflow_id", instance.WorkflowID,
		"instance_id", instance.ID,
	)

	return []events.Event{
		events.InstanceCancelled{
			BaseEvent:  events.NewBaseEvent(events.InstanceCancelledEvent, instance.WorkflowID, instance.ID),
			LastStepID: lastStepID,
		},
	}, nil
}

func (e *Executor) mergeFormData(existing, submitted map[string]string) (map[string]string, error) {
	merged := make(map[string]string, len(existing)+len(submitted))

	for key, value := range existing {
		merged[key] = value
	}

	for key, value := range submitted {
		merged[key] = value
	}

	size := 0
	for key, value := range merged {
		size += len(key) + len(value)
	}

	if size > e.maxFormDataBytes {
		return nil, fmt.Errorf("%w: %d bytes (limit %d)", ErrFormDataTooLarge, size, e.maxFormDataBytes)
	}

	return merged, nil
}
