package workflow

import (
	"log/slog"
	"testing"

	"github.com/flowdesk/flowdesk/pkg/events"
	"github.com/flowdesk/flowdesk/pkg/forms"
	"github.com/flowdesk/flowdesk/pkg/models"
	"github.com/flowdesk/flowdesk/pkg/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testExecutor() *Executor {
	return NewExecutor(slog.Default(), 0)
}

// publishedWorkflow builds START -> task -> END with one required numeric field.
func publishedWorkflow() *models.Workflow {
	return &models.Workflow{
		ID:     "wf-1",
		Name:   "Expense",
		Status: models.WorkflowStatusPublished,
		Steps: []*models.Step{
			{ID: "start", Name: "Start", Type: models.StepTypeStart, Transitions: []models.Transition{{Target: "task"}}},
			{
				ID:   "task",
				Name: "Fill expense",
				Type: models.StepTypeTask,
				FormFields: []*models.FormField{
					{Label: "Amount", Key: "amount", Type: models.FieldTypeNumber, Required: true},
				},
				Transitions: []models.Transition{{Target: "end"}},
			},
			{ID: "end", Name: "End", Type: models.StepTypeEnd},
		},
	}
}

func TestStart_PositionsAfterStart(t *testing.T) {
	definition := publishedWorkflow()

	instance, emitted, err := testExecutor().Start(definition, "alice")
	require.NoError(t, err)

	assert.Equal(t, "task", instance.CurrentStepID)
	assert.Equal(t, models.InstanceStatusInProgress, instance.Status)
	assert.Equal(t, "alice", instance.StartedBy)
	assert.NotEmpty(t, instance.ID)
	require.Len(t, emitted, 1)
	assert.Equal(t, events.InstanceStartedEvent, emitted[0].GetType())
}

func TestStart_RequiresPublishedStatus(t *testing.T) {
	for _, status := range []models.WorkflowStatus{models.WorkflowStatusDraft, models.WorkflowStatusArchived} {
		definition := publishedWorkflow()
		definition.Status = status

		_, _, err := testExecutor().Start(definition, "alice")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrNoPublishedVersion)
	}
}

func TestSubmit_RoundTripToCompleted(t *testing.T) {
	definition := publishedWorkflow()
	executor := testExecutor()

	instance, _, err := executor.Start(definition, "alice")
	require.NoError(t, err)

	decision, err := executor.Submit(definition, instance, Submission{
		ExpectedStepID: "task",
		FormData:       map[string]string{"amount": "250"},
	})
	require.NoError(t, err)

	assert.True(t, decision.Completed)
	assert.Equal(t, models.InstanceStatusCompleted, instance.Status)
	assert.Empty(t, instance.CurrentStepID)
	require.NotNil(t, instance.CompletedAt)
	assert.Equal(t, "250", instance.FormData["amount"])
}

func TestSubmit_ValidationErrorLeavesInstanceUntouched(t *testing.T) {
	definition := publishedWorkflow()
	executor := testExecutor()

	instance, _, err := executor.Start(definition, "alice")
	require.NoError(t, err)

	_, err = executor.Submit(definition, instance, Submission{
		ExpectedStepID: "task",
		FormData:       map[string]string{},
	})

	var verr *forms.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"amount"}, verr.Fields)

	// Instance unchanged: same step, no merged data.
	assert.Equal(t, "task", instance.CurrentStepID)
	assert.Empty(t, instance.FormData)
	assert.Equal(t, models.InstanceStatusInProgress, instance.Status)
}

func TestSubmit_StaleExpectedStep(t *testing.T) {
	definition := publishedWorkflow()
	executor := testExecutor()

	instance, _, err := executor.Start(definition, "alice")
	require.NoError(t, err)

	submission := Submission{
		ExpectedStepID: "task",
		FormData:       map[string]string{"amount": "250"},
	}

	_, err = executor.Submit(definition, instance, submission)
	require.NoError(t, err)

	// Same submission again, without re-reading the instance: its current
	// step moved on, so the stale expectation must be rejected rather than
	// double-applied.
	_, err = executor.Submit(definition, instance, submission)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInstanceFinished)
}

func TestSubmit_StaleOnWrongStep(t *testing.T) {
	definition := &models.Workflow{
		ID:     "wf-2",
		Name:   "Two tasks",
		Status: models.WorkflowStatusPublished,
		Steps: []*models.Step{
			{ID: "start", Name: "Start", Type: models.StepTypeStart, Transitions: []models.Transition{{Target: "a"}}},
			{ID: "a", Name: "A", Type: models.StepTypeTask, Transitions: []models.Transition{{Target: "b"}}},
			{ID: "b", Name: "B", Type: models.StepTypeTask, Transitions: []models.Transition{{Target: "end"}}},
			{ID: "end", Name: "End", Type: models.StepTypeEnd},
		},
	}
	executor := testExecutor()

	instance, _, err := executor.Start(definition, "alice")
	require.NoError(t, err)

	_, err = executor.Submit(definition, instance, Submission{ExpectedStepID: "a"})
	require.NoError(t, err)
	assert.Equal(t, "b", instance.CurrentStepID)

	_, err = executor.Submit(definition, instance, Submission{ExpectedStepID: "a"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStaleInstance)
}

func TestSubmit_RejectRuleBlocksAndRetainsData(t *testing.T) {
	definition := publishedWorkflow()
	definition.Steps[1].Rules = []*models.BusinessRule{
		{Name: "too-big", Condition: "amount > 10000", Action: models.RuleActionReject},
	}
	executor := testExecutor()

	instance, _, err := executor.Start(definition, "alice")
	require.NoError(t, err)

	decision, err := executor.Submit(definition, instance, Submission{
		ExpectedStepID: "task",
		FormData:       map[string]string{"amount": "20000"},
	})
	require.NoError(t, err)

	assert.Equal(t, rules.Block, decision.Outcome.Kind)
	assert.Contains(t, decision.Outcome.Reason, "too-big")

	// Blocked: still in progress on the same step, but merged data retained
	// so the user can resubmit with prior context.
	assert.Equal(t, models.InstanceStatusInProgress, instance.Status)
	assert.Equal(t, "task", instance.CurrentStepID)
	assert.Equal(t, "20000", instance.FormData["amount"])

	require.Len(t, decision.Events, 1)
	assert.Equal(t, events.SubmissionRejectedEvent, decision.Events[0].GetType())
}

func TestSubmit_FirstMatchWinsAcrossActions(t *testing.T) {
	definition := publishedWorkflow()
	definition.Steps[1].AssignedRole = "manager"
	definition.Steps[1].Rules = []*models.BusinessRule{
		{Name: "reject-huge", Condition: "amount > 10000", Action: models.RuleActionReject, RuleOrder: 0},
		{Name: "approve-large", Condition: "amount > 5000", Action: models.RuleActionRequireApproval, RuleOrder: 1},
	}
	executor := testExecutor()

	instance, _, err := executor.Start(definition, "alice")
	require.NoError(t, err)

	decision, err := executor.Submit(definition, instance, Submission{
		ExpectedStepID: "task",
		FormData:       map[string]string{"amount": "12000"},
	})
	require.NoError(t, err)

	// Both rules match amount=12000; the first (REJECT) wins.
	assert.Equal(t, rules.Block, decision.Outcome.Kind)
}

func TestSubmit_RequireApprovalHoldsStep(t *testing.T) {
	definition := publishedWorkflow()
	definition.Steps[1].AssignedRole = "manager"
	definition.Steps[1].Rules = []*models.BusinessRule{
		{Name: "needs-signoff", Condition: "amount > 5000", Action: models.RuleActionRequireApproval},
	}
	executor := testExecutor()

	instance, _, err := executor.Start(definition, "alice")
	require.NoError(t, err)

	decision, err := executor.Submit(definition, instance, Submission{
		ExpectedStepID: "task",
		FormData:       map[string]string{"amount": "7000"},
	})
	require.NoError(t, err)

	assert.Equal(t, rules.Pending, decision.Outcome.Kind)
	assert.Equal(t, "manager", decision.Outcome.ApproverRole)
	assert.Equal(t, "task", instance.CurrentStepID)
	assert.Equal(t, "7000", instance.FormData["amount"])

	require.Len(t, decision.Events, 1)
	assert.Equal(t, events.ApprovalRequestedEvent, decision.Events[0].GetType())
}

func TestSubmit_NotifyAdminProceedsWithNotification(t *testing.T) {
	definition := publishedWorkflow()
	definition.Steps[1].Rules = []*models.BusinessRule{
		{Name: "flag-admin", Condition: "amount > 100", Action: models.RuleActionNotifyAdmin},
	}
	executor := testExecutor()

	instance, _, err := executor.Start(definition, "alice")
	require.NoError(t, err)

	decision, err := executor.Submit(definition, instance, Submission{
		ExpectedStepID: "task",
		FormData:       map[string]string{"amount": "500"},
	})
	require.NoError(t, err)

	assert.True(t, decision.Completed)

	types := make([]events.EventType, 0, len(decision.Events))
	for _, event := range decision.Events {
		types = append(types, event.GetType())
	}

	assert.Contains(t, types, events.RuleNotificationEvent)
	assert.Contains(t, types, events.InstanceCompletedEvent)
}

func TestSubmit_EmptyRuleListProceeds(t *testing.T) {
	definition := publishedWorkflow()
	executor := testExecutor()

	instance, _, err := executor.Start(definition, "alice")
	require.NoError(t, err)

	decision, err := executor.Submit(definition, instance, Submission{
		ExpectedStepID: "task",
		FormData:       map[string]string{"amount": "999999"},
	})
	require.NoError(t, err)
	assert.Equal(t, rules.Proceed, decision.Outcome.Kind)
}

func TestSubmit_LegacyWorkflowRulesFallback(t *testing.T) {
	definition := publishedWorkflow()
	definition.Rules = []*models.BusinessRule{
		{Name: "workflow-level-reject", Condition: "amount > 1000", Action: models.RuleActionReject},
	}
	executor := testExecutor()

	instance, _, err := executor.Start(definition, "alice")
	require.NoError(t, err)

	// The step has no rules of its own, so the legacy workflow-level list
	// applies.
	decision, err := executor.Submit(definition, instance, Submission{
		ExpectedStepID: "task",
		FormData:       map[string]string{"amount": "2000"},
	})
	require.NoError(t, err)
	assert.Equal(t, rules.Block, decision.Outcome.Kind)

	// Step-level rules shadow the workflow-level list entirely.
	definition.Steps[1].Rules = []*models.BusinessRule{
		{Name: "step-level-ok", Condition: "", Action: models.RuleActionAutoApprove},
	}

	decision, err = executor.Submit(definition, instance, Submission{
		ExpectedStepID: "task",
		FormData:       map[string]string{"amount": "2000"},
	})
	require.NoError(t, err)
	assert.Equal(t, rules.Proceed, decision.Outcome.Kind)
}

func TestSubmit_ConditionStepRoutesOnMergedData(t *testing.T) {
	definition := &models.Workflow{
		ID:     "wf-cond",
		Name:   "Conditional",
		Status: models.WorkflowStatusPublished,
		Steps: []*models.Step{
			{ID: "start", Name: "Start", Type: models.StepTypeStart, Transitions: []models.Transition{{Target: "amount"}}},
			{
				ID:   "amount",
				Name: "Enter amount",
				Type: models.StepTypeTask,
				FormFields: []*models.FormField{
					{Label: "Amount", Key: "amount", Type: models.FieldTypeNumber, Required: true},
				},
				Transitions: []models.Transition{{Target: "route"}},
			},
			{
				ID:   "route",
				Name: "Route",
				Type: models.StepTypeCondition,
				Transitions: []models.Transition{
					{Target: "manager", Guard: "amount > 1000"},
					{Target: "end"},
				},
			},
			{ID: "manager", Name: "Manager review", Type: models.StepTypeApproval, Transitions: []models.Transition{{Target: "end"}}},
			{ID: "end", Name: "End", Type: models.StepTypeEnd},
		},
	}
	executor := testExecutor()

	instance, _, err := executor.Start(definition, "alice")
	require.NoError(t, err)

	_, err = executor.Submit(definition, instance, Submission{
		ExpectedStepID: "amount",
		FormData:       map[string]string{"amount": "5000"},
	})
	require.NoError(t, err)
	assert.Equal(t, "route", instance.CurrentStepID)

	// The CONDITION step has no form; its guards see data accumulated on
	// earlier steps.
	decision, err := executor.Submit(definition, instance, Submission{
		ExpectedStepID: "route",
	})
	require.NoError(t, err)
	assert.Equal(t, "manager", decision.NextStepID)
	assert.Equal(t, "manager", instance.CurrentStepID)
}

func TestSubmit_FormDataCap(t *testing.T) {
	definition := publishedWorkflow()
	executor := NewExecutor(slog.Default(), 16)

	instance, _, err := executor.Start(definition, "alice")
	require.NoError(t, err)

	_, err = executor.Submit(definition, instance, Submission{
		ExpectedStepID: "task",
		FormData:       map[string]string{"amount": "123456789012345678901234567890"},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFormDataTooLarge)
	assert.Empty(t, instance.FormData)
}

func TestCancel(t *testing.T) {
	definition := publishedWorkflow()
	executor := testExecutor()

	instance, _, err := executor.Start(definition, "alice")
	require.NoError(t, err)

	emitted, err := executor.Cancel(instance)
	require.NoError(t, err)

	assert.Equal(t, models.InstanceStatusCancelled, instance.Status)
	assert.Empty(t, instance.CurrentStepID)
	require.Len(t, emitted, 1)
	assert.Equal(t, events.InstanceCancelledEvent, emitted[0].GetType())

	// Irreversible: nothing further is accepted.
	_, err = executor.Cancel(instance)
	assert.ErrorIs(t, err, ErrInstanceFinished)

	_, err = executor.Submit(definition, instance, Submission{ExpectedStepID: ""})
	assert.ErrorIs(t, err, ErrInstanceFinished)
}
