package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cascadehq/cascade/pkg/adapters"
	"github.com/cascadehq/cascade/pkg/analytics"
	"github.com/cascadehq/cascade/pkg/auth"
	"github.com/cascadehq/cascade/pkg/eventbus"
	"github.com/cascadehq/cascade/pkg/execution"
	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/nodes/query"
	"github.com/cascadehq/cascade/pkg/persistence/memory"
	"github.com/cascadehq/cascade/pkg/registry"
	"github.com/cascadehq/cascade/pkg/services"
	"github.com/cascadehq/cascade/pkg/testutil"
	"github.com/cascadehq/cascade/pkg/web"
)

type noopBus struct{}

func (noopBus) Publish(_ context.Context, _ string, _ eventbus.Event) error { return nil }

type testAPI struct {
	app   *fiber.App
	store *memory.Persistence
}

func setupTestApp(t *testing.T, checker auth.Checker) *testAPI {
	t.Helper()

	store := memory.NewPersistence()

	reg := registry.NewRegistry(testutil.Logger())
	reg.RegisterDefaultHandlers(&query.InMemorySource{}, adapters.NewRegistry(), nil)

	orchestrator := execution.NewOrchestrator(testutil.Logger(), store, reg, noopBus{})

	handlers := web.NewAPIHandlers(
		testutil.Logger(),
		services.NewWorkflow(store),
		services.NewGraph(store, reg),
		services.NewTrigger(store),
		services.NewExecution(store, orchestrator),
		analytics.NewAggregator(testutil.Logger(), store),
		reg,
		checker,
		validator.New(validator.WithRequiredStructEnabled()),
	)

	app := fiber.New()
	app.Use(web.BearerToken())
	handlers.RegisterRoutes(app)

	return &testAPI{app: app, store: store}
}

func (api *testAPI) request(t *testing.T, method, path string, body any, headers map[string]string) *http.Response {
	t.Helper()

	var reader io.Reader

	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)

		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := api.app.Test(req)
	require.NoError(t, err)

	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()

	defer resp.Body.Close()

	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))

	return out
}

func (api *testAPI) seedWorkflow(t *testing.T, overrides ...func(*models.Workflow)) *models.Workflow {
	t.Helper()

	workflow := testutil.CreateTestWorkflow(overrides...)
	require.NoError(t, api.store.WorkflowRepository().Save(context.Background(), workflow))

	return workflow
}

func TestCreateWorkflow(t *testing.T) {
	api := setupTestApp(t, auth.AllowAll{})

	resp := api.request(t, http.MethodPost, "/workflows/", web.CreateWorkflowRequest{
		Name:           "Lead routing",
		Description:    "Routes hot leads",
		OrganizationID: "org-1",
	}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	created := decodeBody[models.Workflow](t, resp)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, models.WorkflowStatusDraft, created.Status)
	assert.Equal(t, "org-1", created.OrganizationID)
}

func TestCreateWorkflow_Validation(t *testing.T) {
	api := setupTestApp(t, auth.AllowAll{})

	resp := api.request(t, http.MethodPost, "/workflows/", web.CreateWorkflowRequest{
		Name:           "ab",
		OrganizationID: "org-1",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = api.request(t, http.MethodPost, "/workflows/", web.CreateWorkflowRequest{
		Name: "No organization",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetWorkflow_NotFound(t *testing.T) {
	api := setupTestApp(t, auth.AllowAll{})

	resp := api.request(t, http.MethodGet, "/workflows/missing", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDeleteWorkflow_NotFound(t *testing.T) {
	api := setupTestApp(t, auth.AllowAll{})

	resp := api.request(t, http.MethodDelete, "/workflows/missing", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUpdateWorkflowStatus_ArchivedConflicts(t *testing.T) {
	api := setupTestApp(t, auth.AllowAll{})
	workflow := api.seedWorkflow(t, testutil.WithStatus(models.WorkflowStatusArchived))

	resp := api.request(t, http.MethodPost, "/workflows/"+workflow.ID+"/status",
		web.UpdateWorkflowStatusRequest{Status: models.WorkflowStatusActive}, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestCreateNode_InvalidConfigRejected(t *testing.T) {
	api := setupTestApp(t, auth.AllowAll{})
	workflow := api.seedWorkflow(t)

	resp := api.request(t, http.MethodPost, "/workflows/"+workflow.ID+"/nodes", web.NodeRequest{
		NodeID: "wait",
		Type:   "delay",
		Name:   "wait",
		Config: map[string]any{"delay_ms": -1},
	}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = api.request(t, http.MethodPost, "/workflows/"+workflow.ID+"/nodes", web.NodeRequest{
		NodeID: "wait",
		Type:   "delay",
		Name:   "wait",
		Config: map[string]any{"delay_ms": 1000},
	}, nil)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestSyncNodes_ReplacesCanvas(t *testing.T) {
	api := setupTestApp(t, auth.AllowAll{})
	workflow := api.seedWorkflow(t)
	ctx := context.Background()

	require.NoError(t, api.store.NodeRepository().Save(ctx,
		testutil.CreateTestNode(workflow.ID, "old", models.NodeTypeDelay, map[string]any{"delay_ms": 1000})))

	resp := api.request(t, http.MethodPut, "/workflows/"+workflow.ID+"/nodes", fiber.Map{
		"nodes": []web.NodeRequest{
			{NodeID: "a", Type: "delay", Name: "a", Config: map[string]any{"delay_ms": 500}},
			{NodeID: "b", Type: "delay", Name: "b", Config: map[string]any{"delay_ms": 500}},
		},
	}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	nodes, err := api.store.NodeRepository().ListByWorkflow(ctx, workflow.ID)
	require.NoError(t, err)
	assert.Len(t, nodes, 2)
}

func TestTriggerEndpoints(t *testing.T) {
	api := setupTestApp(t, auth.AllowAll{})
	workflow := api.seedWorkflow(t)

	resp := api.request(t, http.MethodPost, "/workflows/"+workflow.ID+"/triggers", web.TriggerRequest{
		Type:      "event",
		Name:      "lead created",
		Module:    "crm",
		EventType: "lead.created",
		IsActive:  true,
	}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	trigger := decodeBody[models.WorkflowTrigger](t, resp)
	require.NotEmpty(t, trigger.ID)

	resp = api.request(t, http.MethodGet, "/triggers/"+trigger.ID, nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = api.request(t, http.MethodDelete, "/triggers/"+trigger.ID, nil, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = api.request(t, http.MethodGet, "/triggers/"+trigger.ID, nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateTrigger_ScheduleValidation(t *testing.T) {
	api := setupTestApp(t, auth.AllowAll{})
	workflow := api.seedWorkflow(t)

	resp := api.request(t, http.MethodPost, "/workflows/"+workflow.ID+"/triggers", web.TriggerRequest{
		Type: "schedule",
		Name: "no cadence",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func seedDelayNode(t *testing.T, api *testAPI, workflowID string) {
	t.Helper()

	require.NoError(t, api.store.NodeRepository().Save(context.Background(),
		testutil.CreateTestNode(workflowID, "wait", models.NodeTypeDelay, map[string]any{"delay_ms": 1000})))
}

func TestTriggerExecution(t *testing.T) {
	api := setupTestApp(t, auth.AllowAll{})
	workflow := api.seedWorkflow(t)
	seedDelayNode(t, api, workflow.ID)

	resp := api.request(t, http.MethodPost, "/workflows/"+workflow.ID+"/executions",
		web.TriggerExecutionRequest{TriggerData: map[string]any{"source": "manual"}}, nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	run := decodeBody[models.WorkflowExecution](t, resp)
	assert.Equal(t, models.ExecutionStatusPending, run.Status)

	resp = api.request(t, http.MethodGet, "/executions/"+run.ID, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	detail := decodeBody[services.ExecutionDetail](t, resp)
	assert.Len(t, detail.NodeExecutions, 1)
}

func TestTriggerExecution_PausedWorkflowConflicts(t *testing.T) {
	api := setupTestApp(t, auth.AllowAll{})
	workflow := api.seedWorkflow(t, testutil.WithStatus(models.WorkflowStatusPaused))

	resp := api.request(t, http.MethodPost, "/workflows/"+workflow.ID+"/executions",
		web.TriggerExecutionRequest{}, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestExecutionControl(t *testing.T) {
	api := setupTestApp(t, auth.AllowAll{})
	workflow := api.seedWorkflow(t)
	seedDelayNode(t, api, workflow.ID)

	resp := api.request(t, http.MethodPost, "/workflows/"+workflow.ID+"/executions",
		web.TriggerExecutionRequest{}, nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	run := decodeBody[models.WorkflowExecution](t, resp)

	resp = api.request(t, http.MethodPost, "/executions/"+run.ID+"/cancel",
		web.CancelExecutionRequest{Reason: "operator request"}, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	// Terminal executions reject further control actions.
	resp = api.request(t, http.MethodPost, "/executions/"+run.ID+"/cancel", nil, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = api.request(t, http.MethodPost, "/executions/"+run.ID+"/retry", nil, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestBulkExecutions(t *testing.T) {
	api := setupTestApp(t, auth.AllowAll{})
	workflow := api.seedWorkflow(t)
	seedDelayNode(t, api, workflow.ID)

	resp := api.request(t, http.MethodPost, "/workflows/"+workflow.ID+"/executions",
		web.TriggerExecutionRequest{}, nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	run := decodeBody[models.WorkflowExecution](t, resp)

	resp = api.request(t, http.MethodPost, "/executions/bulk", web.BulkExecutionsRequest{
		Action:       "cancel",
		ExecutionIDs: []string{run.ID, "missing"},
	}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody[map[string][]execution.BulkResult](t, resp)
	results := body["results"]
	require.Len(t, results, 2)
	assert.True(t, results[0].OK)
	assert.False(t, results[1].OK)
}

func TestBulkExecutions_UnknownAction(t *testing.T) {
	api := setupTestApp(t, auth.AllowAll{})

	resp := api.request(t, http.MethodPost, "/executions/bulk", web.BulkExecutionsRequest{
		Action:       "restart",
		ExecutionIDs: []string{"exec-1"},
	}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetWorkflowAnalytics(t *testing.T) {
	api := setupTestApp(t, auth.AllowAll{})
	workflow := api.seedWorkflow(t)

	resp := api.request(t, http.MethodGet, "/workflows/"+workflow.ID+"/analytics", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	report := decodeBody[analytics.Report](t, resp)
	assert.Equal(t, workflow.ID, report.WorkflowID)
	assert.Zero(t, report.Total)

	resp = api.request(t, http.MethodGet,
		"/workflows/"+workflow.ID+"/analytics?granularity=decade", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAuth_TokenTable(t *testing.T) {
	checker := &auth.StaticChecker{Tokens: map[string]map[string]auth.Role{
		"viewer-token": {"org-test": auth.RoleViewer},
		"editor-token": {"org-test": auth.RoleEditor},
	}}

	api := setupTestApp(t, checker)
	workflow := api.seedWorkflow(t) // org-test

	// No token at all.
	resp := api.request(t, http.MethodGet, "/workflows/"+workflow.ID, nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Viewers read but cannot write.
	viewer := map[string]string{"Authorization": "Bearer viewer-token"}

	resp = api.request(t, http.MethodGet, "/workflows/"+workflow.ID, nil, viewer)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = api.request(t, http.MethodDelete, "/workflows/"+workflow.ID, nil, viewer)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// The rejected delete must not have touched the workflow.
	resp = api.request(t, http.MethodGet, "/workflows/"+workflow.ID, nil, viewer)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Editors write.
	editor := map[string]string{"Authorization": "Bearer editor-token"}

	resp = api.request(t, http.MethodDelete, "/workflows/"+workflow.ID, nil, editor)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}
