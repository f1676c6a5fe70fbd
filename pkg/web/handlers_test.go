package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/flowdesk/flowdesk/pkg/channels/gochannel"
	"github.com/flowdesk/flowdesk/pkg/eventbus"
	"github.com/flowdesk/flowdesk/pkg/locks"
	"github.com/flowdesk/flowdesk/pkg/models"
	"github.com/flowdesk/flowdesk/pkg/persistence/file"
	"github.com/flowdesk/flowdesk/pkg/services"
	"github.com/flowdesk/flowdesk/pkg/web"
	wf "github.com/flowdesk/flowdesk/pkg/workflow"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
)

type testEnv struct {
	app        *fiber.App
	workflows  *services.Workflow
	publishing *services.Publishing
	tasks      *services.Task
}

func setupTestApp(t *testing.T) *testEnv {
	t.Helper()

	persistence := file.NewPersistence(t.TempDir())
	logger := slog.Default()

	pub, sub, err := gochannel.CreateTestChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub)
	t.Cleanup(func() { _ = bus.Close() })

	workflowService := services.NewWorkflow(persistence)
	publishingService := services.NewPublishing(persistence)
	taskService := services.NewTask(
		persistence,
		wf.NewExecutor(logger, 0),
		locks.NewMemoryLocker(0),
		bus,
		noop.NewTracerProvider().Tracer("test"),
		logger,
	)

	importer, err := services.NewImporter(workflowService)
	require.NoError(t, err)

	handlers := web.NewAPIHandlers(
		workflowService,
		publishingService,
		taskService,
		importer,
		validator.New(validator.WithRequiredStructEnabled()),
	)

	app := fiber.New()
	handlers.RegisterRoutes(app)

	return &testEnv{
		app:        app,
		workflows:  workflowService,
		publishing: publishingService,
		tasks:      taskService,
	}
}

func validSteps() []*models.Step {
	return []*models.Step{
		{ID: "start", Name: "Start", Type: models.StepTypeStart, Transitions: []models.Transition{{Target: "review"}}},
		{
			ID:   "review",
			Name: "Review",
			Type: models.StepTypeTask,
			FormFields: []*models.FormField{
				{Label: "Amount", Key: "amount", Type: models.FieldTypeNumber, Required: true},
			},
			Transitions: []models.Transition{{Target: "end"}},
		},
		{ID: "end", Name: "End", Type: models.StepTypeEnd},
	}
}

func (env *testEnv) createPublished(t *testing.T) *models.Workflow {
	t.Helper()

	created, err := env.workflows.Create(context.Background(), &models.Workflow{
		Name:  "Expense Approval",
		Owner: "finance",
		Steps: validSteps(),
	})
	require.NoError(t, err)

	published, err := env.publishing.PublishWorkflow(context.Background(), created.ID)
	require.NoError(t, err)

	return published
}

func (env *testEnv) request(t *testing.T, method, path string, payload any) *http.Response {
	t.Helper()

	var body []byte

	switch value := payload.(type) {
	case nil:
	case string:
		body = []byte(value)
	default:
		var err error

		body, err = json.Marshal(value)
		require.NoError(t, err)
	}

	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := env.app.Test(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var value T

	require.NoError(t, json.Unmarshal(raw, &value), "body: %s", raw)

	return value
}

func TestAPIHandlers_CreateWorkflow(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		requestBody    interface{}
		expectedStatus int
	}{
		{
			name: "successful creation",
			requestBody: web.CreateWorkflowRequest{
				Name:        "Test Workflow",
				Description: "Test Description",
				Owner:       "test-user",
				Steps:       validSteps(),
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name: "validation error - missing name",
			requestBody: web.CreateWorkflowRequest{
				Owner: "test-user",
				Steps: validSteps(),
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "validation error - name too short",
			requestBody: web.CreateWorkflowRequest{
				Name:  "Te",
				Owner: "test-user",
				Steps: validSteps(),
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "validation error - no steps",
			requestBody: web.CreateWorkflowRequest{
				Name:  "Test Workflow",
				Owner: "test-user",
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "duplicate field keys",
			requestBody: web.CreateWorkflowRequest{
				Name:  "Test Workflow",
				Owner: "test-user",
				Steps: []*models.Step{
					{ID: "start", Name: "Start", Type: models.StepTypeStart, Transitions: []models.Transition{{Target: "task"}}},
					{
						ID:   "task",
						Name: "Task",
						Type: models.StepTypeTask,
						FormFields: []*models.FormField{
							{Label: "A", Key: "amount", Type: models.FieldTypeNumber},
							{Label: "B", Key: "amount", Type: models.FieldTypeText},
						},
						Transitions: []models.Transition{{Target: "end"}},
					},
					{ID: "end", Name: "End", Type: models.StepTypeEnd},
				},
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "invalid JSON",
			requestBody:    "invalid-json",
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			env := setupTestApp(t)

			resp := env.request(t, http.MethodPost, "/workflows", tt.requestBody)
			assert.Equal(t, tt.expectedStatus, resp.StatusCode)

			if tt.expectedStatus == http.StatusCreated {
				created := decodeBody[models.Workflow](t, resp)
				assert.NotEmpty(t, created.ID)
				assert.Equal(t, models.WorkflowStatusDraft, created.Status)
			}
		})
	}
}

func TestAPIHandlers_GetWorkflow(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)
	definition := env.createPublished(t)

	resp := env.request(t, http.MethodGet, "/workflows/"+definition.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	fetched := decodeBody[models.Workflow](t, resp)
	assert.Equal(t, definition.ID, fetched.ID)
	assert.Len(t, fetched.Steps, 3)

	resp = env.request(t, http.MethodGet, "/workflows/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPIHandlers_UpdateWorkflow(t *testing.T) {
	t.Parallel()

	t.Run("partial update of a draft", func(t *testing.T) {
		t.Parallel()

		env := setupTestApp(t)

		created, err := env.workflows.Create(context.Background(), &models.Workflow{
			Name:  "Original Name",
			Owner: "test-user",
			Steps: validSteps(),
		})
		require.NoError(t, err)

		newName := "Updated Name"
		resp := env.request(t, http.MethodPatch, "/workflows/"+created.ID, web.UpdateWorkflowRequest{Name: &newName})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		updated := decodeBody[models.Workflow](t, resp)
		assert.Equal(t, "Updated Name", updated.Name)
		assert.Len(t, updated.Steps, 3)
	})

	t.Run("workflow not found", func(t *testing.T) {
		t.Parallel()

		env := setupTestApp(t)

		newName := "Updated Name"
		resp := env.request(t, http.MethodPatch, "/workflows/missing", web.UpdateWorkflowRequest{Name: &newName})
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("published workflows are immutable", func(t *testing.T) {
		t.Parallel()

		env := setupTestApp(t)
		definition := env.createPublished(t)

		newName := "Updated Name"
		resp := env.request(t, http.MethodPatch, "/workflows/"+definition.ID, web.UpdateWorkflowRequest{Name: &newName})
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})
}

func TestAPIHandlers_DeleteWorkflow(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)

	created, err := env.workflows.Create(context.Background(), &models.Workflow{
		Name:  "Disposable",
		Owner: "test-user",
		Steps: validSteps(),
	})
	require.NoError(t, err)

	resp := env.request(t, http.MethodDelete, "/workflows/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = env.request(t, http.MethodDelete, "/workflows/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	published := env.createPublished(t)

	resp = env.request(t, http.MethodDelete, "/workflows/"+published.ID, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAPIHandlers_PublishAndArchive(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)

	created, err := env.workflows.Create(context.Background(), &models.Workflow{
		Name:  "Publish me",
		Owner: "test-user",
		Steps: validSteps(),
	})
	require.NoError(t, err)

	// Drafts cannot be archived.
	resp := env.request(t, http.MethodPost, "/workflows/"+created.ID+"/archive", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = env.request(t, http.MethodPost, "/workflows/"+created.ID+"/publish", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	published := decodeBody[models.Workflow](t, resp)
	assert.Equal(t, models.WorkflowStatusPublished, published.Status)
	assert.NotNil(t, published.PublishedAt)

	resp = env.request(t, http.MethodPost, "/workflows/"+created.ID+"/archive", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	archived := decodeBody[models.Workflow](t, resp)
	assert.Equal(t, models.WorkflowStatusArchived, archived.Status)
}

func TestAPIHandlers_PublishRejectsBrokenGraph(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)

	created, err := env.workflows.Create(context.Background(), &models.Workflow{
		Name:  "Broken",
		Owner: "test-user",
		Steps: []*models.Step{
			{ID: "start", Name: "Start", Type: models.StepTypeStart, Transitions: []models.Transition{{Target: "ghost"}}},
			{ID: "end", Name: "End", Type: models.StepTypeEnd},
		},
	})
	require.NoError(t, err)

	resp := env.request(t, http.MethodPost, "/workflows/"+created.ID+"/publish", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPIHandlers_ImportWorkflow(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)

	document := `{
		"name": "Imported Flow",
		"steps": [
			{"id": "start", "name": "Start", "type": "START", "transitions": [{"target": "end"}]},
			{"id": "end", "name": "End", "type": "END"}
		]
	}`

	resp := env.request(t, http.MethodPost, "/workflows/import", document)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	created := decodeBody[models.Workflow](t, resp)
	assert.Equal(t, "Imported Flow", created.Name)
	assert.Equal(t, models.WorkflowStatusDraft, created.Status)

	resp = env.request(t, http.MethodPost, "/workflows/import", `{"name": "No steps"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPIHandlers_InstanceLifecycle(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)
	definition := env.createPublished(t)

	resp := env.request(t, http.MethodPost, "/workflows/"+definition.ID+"/start", web.StartInstanceRequest{StartedBy: "alice"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	instance := decodeBody[models.Instance](t, resp)
	assert.Equal(t, "review", instance.CurrentStepID)

	resp = env.request(t, http.MethodGet, "/tasks/"+instance.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.request(t, http.MethodPost, "/tasks/"+instance.ID+"/submit", web.SubmitStepRequest{
		ExpectedStepID: "review",
		FormData:       map[string]string{"amount": "120"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	result := decodeBody[web.SubmitStepResponse](t, resp)
	assert.True(t, result.Completed)
	assert.Equal(t, models.InstanceStatusCompleted, result.Instance.Status)

	// The instance is finished; a second submission conflicts.
	resp = env.request(t, http.MethodPost, "/tasks/"+instance.ID+"/submit", web.SubmitStepRequest{
		ExpectedStepID: "review",
		FormData:       map[string]string{"amount": "120"},
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAPIHandlers_SubmitTask_MissingGuardFieldTakesDefaultRoute(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)

	created, err := env.workflows.Create(context.Background(), &models.Workflow{
		Name:  "Ticket Routing",
		Owner: "support",
		Steps: []*models.Step{
			{ID: "start", Name: "Start", Type: models.StepTypeStart, Transitions: []models.Transition{{Target: "route"}}},
			{ID: "route", Name: "Route", Type: models.StepTypeCondition, Transitions: []models.Transition{
				{Target: "fast", Guard: "priority == 'high'"},
				{Target: "slow"},
			}},
			{ID: "fast", Name: "Fast", Type: models.StepTypeTask, Transitions: []models.Transition{{Target: "end"}}},
			{ID: "slow", Name: "Slow", Type: models.StepTypeTask, Transitions: []models.Transition{{Target: "end"}}},
			{ID: "end", Name: "End", Type: models.StepTypeEnd},
		},
	})
	require.NoError(t, err)

	_, err = env.publishing.PublishWorkflow(context.Background(), created.ID)
	require.NoError(t, err)

	instance, err := env.tasks.StartInstance(context.Background(), created.ID, "alice")
	require.NoError(t, err)
	require.Equal(t, "route", instance.CurrentStepID)

	// No "priority" value was ever submitted, so the guarded edge cannot
	// evaluate; routing takes the default edge instead of erroring out.
	resp := env.request(t, http.MethodPost, "/tasks/"+instance.ID+"/submit", web.SubmitStepRequest{
		ExpectedStepID: "route",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	result := decodeBody[web.SubmitStepResponse](t, resp)
	assert.Equal(t, "slow", result.NextStepID)
	assert.Equal(t, "slow", result.Instance.CurrentStepID)
	assert.False(t, result.Completed)
}

func TestAPIHandlers_SubmitTask_FormValidation(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)
	definition := env.createPublished(t)

	instance, err := env.tasks.StartInstance(context.Background(), definition.ID, "alice")
	require.NoError(t, err)

	resp := env.request(t, http.MethodPost, "/tasks/"+instance.ID+"/submit", web.SubmitStepRequest{
		ExpectedStepID: "review",
		FormData:       map[string]string{"amount": "not-a-number"},
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	problem := decodeBody[map[string]any](t, resp)
	assert.Equal(t, "form_validation_failed", problem["type"])
	assert.Equal(t, []any{"amount"}, problem["fields"])
}

func TestAPIHandlers_SubmitTask_StaleStep(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)
	definition := env.createPublished(t)

	instance, err := env.tasks.StartInstance(context.Background(), definition.ID, "alice")
	require.NoError(t, err)

	resp := env.request(t, http.MethodPost, "/tasks/"+instance.ID+"/submit", web.SubmitStepRequest{
		ExpectedStepID: "some-other-step",
		FormData:       map[string]string{"amount": "10"},
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAPIHandlers_StartInstance_RequiresPublished(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)

	draft, err := env.workflows.Create(context.Background(), &models.Workflow{
		Name:  "Still a draft",
		Owner: "test-user",
		Steps: validSteps(),
	})
	require.NoError(t, err)

	resp := env.request(t, http.MethodPost, "/workflows/"+draft.ID+"/start", web.StartInstanceRequest{StartedBy: "alice"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAPIHandlers_CancelTask(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)
	definition := env.createPublished(t)

	instance, err := env.tasks.StartInstance(context.Background(), definition.ID, "alice")
	require.NoError(t, err)

	resp := env.request(t, http.MethodPost, "/tasks/"+instance.ID+"/cancel", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	cancelled := decodeBody[models.Instance](t, resp)
	assert.Equal(t, models.InstanceStatusCancelled, cancelled.Status)

	resp = env.request(t, http.MethodPost, "/tasks/"+instance.ID+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = env.request(t, http.MethodPost, "/tasks/missing/cancel", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPIHandlers_GetTasks(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)
	definition := env.createPublished(t)

	for range 3 {
		_, err := env.tasks.StartInstance(context.Background(), definition.ID, "alice")
		require.NoError(t, err)
	}

	resp := env.request(t, http.MethodGet, "/tasks/?workflow_id="+definition.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	listing := decodeBody[map[string]any](t, resp)
	assert.Equal(t, float64(3), listing["total_count"])

	resp = env.request(t, http.MethodGet, "/tasks/?status=completed", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	listing = decodeBody[map[string]any](t, resp)
	assert.Equal(t, float64(0), listing["total_count"])

	resp = env.request(t, http.MethodGet, "/tasks/?limit=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPIHandlers_HealthCheck(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)

	resp := env.request(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	health := decodeBody[map[string]any](t, resp)
	assert.Equal(t, "healthy", health["status"])
}
