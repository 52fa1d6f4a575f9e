package services_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cascadehq/cascade/pkg/adapters"
	"github.com/cascadehq/cascade/pkg/eventbus"
	"github.com/cascadehq/cascade/pkg/execution"
	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/nodes/query"
	"github.com/cascadehq/cascade/pkg/persistence/memory"
	"github.com/cascadehq/cascade/pkg/registry"
	"github.com/cascadehq/cascade/pkg/services"
	"github.com/cascadehq/cascade/pkg/testutil"
)

type noopBus struct{}

func (noopBus) Publish(_ context.Context, _ string, _ eventbus.Event) error { return nil }

type executionFixture struct {
	store    *memory.Persistence
	service  *services.Execution
	workflow *models.Workflow
}

func newExecutionFixture(t *testing.T) *executionFixture {
	t.Helper()

	store := memory.NewPersistence()
	ctx := context.Background()

	reg := registry.NewRegistry(testutil.Logger())
	reg.RegisterDefaultHandlers(&query.InMemorySource{}, adapters.NewRegistry(), nil)

	workflow := testutil.CreateTestWorkflow()
	require.NoError(t, store.WorkflowRepository().Save(ctx, workflow))

	require.NoError(t, store.NodeRepository().Save(ctx,
		testutil.CreateTestNode(workflow.ID, "wait", models.NodeTypeDelay, map[string]any{"delay_ms": 1000})))

	orchestrator := execution.NewOrchestrator(testutil.Logger(), store, reg, noopBus{})

	return &executionFixture{
		store:    store,
		service:  services.NewExecution(store, orchestrator),
		workflow: workflow,
	}
}

func TestTriggerExecution_QueuesRun(t *testing.T) {
	f := newExecutionFixture(t)
	ctx := context.Background()

	run, err := f.service.Trigger(ctx, f.workflow.ID, &services.TriggerExecutionRequest{
		TriggerData: map[string]any{"source": "manual"},
	})
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusPending, run.Status)
	assert.Equal(t, models.PriorityNormal, run.Priority)

	detail, err := f.service.FetchByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Len(t, detail.NodeExecutions, 1)
	assert.NotEmpty(t, detail.Logs)
}

func TestTriggerExecution_InactiveWorkflowConflicts(t *testing.T) {
	f := newExecutionFixture(t)
	ctx := context.Background()

	f.workflow.Status = models.WorkflowStatusPaused
	require.NoError(t, f.store.WorkflowRepository().Save(ctx, f.workflow))

	_, err := f.service.Trigger(ctx, f.workflow.ID, &services.TriggerExecutionRequest{})
	require.ErrorIs(t, err, services.ErrWorkflowNotTriggerable)
	assert.True(t, services.IsConflictError(err))
}

func TestTriggerExecution_NegativeDelayRejected(t *testing.T) {
	f := newExecutionFixture(t)

	_, err := f.service.Trigger(context.Background(), f.workflow.ID, &services.TriggerExecutionRequest{
		DelayMs: -1,
	})
	require.ErrorIs(t, err, services.ErrInvalidRequest)
}

func TestCancelExecution_InvalidTransitionConflicts(t *testing.T) {
	f := newExecutionFixture(t)
	ctx := context.Background()

	run, err := f.service.Trigger(ctx, f.workflow.ID, &services.TriggerExecutionRequest{})
	require.NoError(t, err)

	require.NoError(t, f.service.Cancel(ctx, run.ID, "operator request"))

	err = f.service.Cancel(ctx, run.ID, "again")
	require.ErrorIs(t, err, services.ErrExecutionNotControllable)
	assert.True(t, services.IsConflictError(err))
}

func TestListExecutions_FiltersByStatus(t *testing.T) {
	f := newExecutionFixture(t)
	ctx := context.Background()

	first, err := f.service.Trigger(ctx, f.workflow.ID, &services.TriggerExecutionRequest{})
	require.NoError(t, err)

	_, err = f.service.Trigger(ctx, f.workflow.ID, &services.TriggerExecutionRequest{})
	require.NoError(t, err)

	require.NoError(t, f.service.Cancel(ctx, first.ID, "cleanup"))

	cancelled := models.ExecutionStatusCancelled
	runs, err := f.service.List(ctx, services.ListExecutionsRequest{
		WorkflowID: f.workflow.ID,
		Status:     &cancelled,
	})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, first.ID, runs[0].ID)
}

func TestBulk_UnknownActionRejected(t *testing.T) {
	f := newExecutionFixture(t)

	_, err := f.service.Bulk(context.Background(), "restart", []string{"exec-1"})
	require.ErrorIs(t, err, services.ErrInvalidBulkAction)

	_, err = f.service.Bulk(context.Background(), "cancel", nil)
	require.ErrorIs(t, err, services.ErrInvalidBulkAction)
}

func TestBulk_IndependentPerExecution(t *testing.T) {
	f := newExecutionFixture(t)
	ctx := context.Background()

	run, err := f.service.Trigger(ctx, f.workflow.ID, &services.TriggerExecutionRequest{})
	require.NoError(t, err)

	results, err := f.service.Bulk(ctx, "cancel", []string{run.ID, "missing"})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.True(t, results[0].OK)
	assert.False(t, results[1].OK)
	assert.NotEmpty(t, results[1].Error)
}
