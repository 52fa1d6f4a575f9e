package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/persistence/memory"
	"github.com/cascadehq/cascade/pkg/services"
	"github.com/cascadehq/cascade/pkg/testutil"
)

func newTriggerService(t *testing.T) (*services.Trigger, *memory.Persistence, *models.Workflow) {
	t.Helper()

	store := memory.NewPersistence()
	workflow := testutil.CreateTestWorkflow()
	require.NoError(t, store.WorkflowRepository().Save(context.Background(), workflow))

	return services.NewTrigger(store), store, workflow
}

func TestCreateTrigger_EventBinding(t *testing.T) {
	service, _, workflow := newTriggerService(t)

	trigger, err := service.Create(context.Background(), workflow.ID, &services.CreateTriggerRequest{
		Type:      models.TriggerTypeEvent,
		Name:      "lead created",
		Module:    "crm",
		EventType: "lead.created",
		IsActive:  true,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, trigger.ID)
	assert.Equal(t, workflow.ID, trigger.WorkflowID)
	assert.True(t, trigger.IsActive)
}

func TestCreateTrigger_EventRequiresModuleAndType(t *testing.T) {
	service, _, workflow := newTriggerService(t)

	_, err := service.Create(context.Background(), workflow.ID, &services.CreateTriggerRequest{
		Type: models.TriggerTypeEvent,
		Name: "incomplete",
	})
	require.ErrorIs(t, err, services.ErrInvalidTriggerBinding)
	assert.True(t, services.IsValidationError(err))
}

func TestCreateTrigger_ScheduleCreatesEntry(t *testing.T) {
	service, store, workflow := newTriggerService(t)
	ctx := context.Background()

	trigger, err := service.Create(ctx, workflow.ID, &services.CreateTriggerRequest{
		Type:      models.TriggerTypeSchedule,
		Name:      "hourly digest",
		Frequency: models.FrequencyHourly,
		IsActive:  true,
	})
	require.NoError(t, err)

	// The entry becomes due within the next hour.
	due, err := store.ScheduleRepository().DueSchedules(ctx, time.Now().UTC().Add(61*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, trigger.ID, due[0].TriggerID)
	assert.Equal(t, workflow.ID, due[0].WorkflowID)
}

func TestCreateTrigger_ScheduleCronXorFrequency(t *testing.T) {
	service, _, workflow := newTriggerService(t)
	ctx := context.Background()

	_, err := service.Create(ctx, workflow.ID, &services.CreateTriggerRequest{
		Type: models.TriggerTypeSchedule,
		Name: "neither",
	})
	require.ErrorIs(t, err, services.ErrInvalidScheduleBinding)

	_, err = service.Create(ctx, workflow.ID, &services.CreateTriggerRequest{
		Type:           models.TriggerTypeSchedule,
		Name:           "both",
		CronExpression: "0 * * * *",
		Frequency:      models.FrequencyHourly,
	})
	require.ErrorIs(t, err, services.ErrInvalidScheduleBinding)

	_, err = service.Create(ctx, workflow.ID, &services.CreateTriggerRequest{
		Type:           models.TriggerTypeSchedule,
		Name:           "bad cron",
		CronExpression: "not a cron",
	})
	require.ErrorIs(t, err, services.ErrInvalidScheduleBinding)
}

func TestUpdateTrigger_TypeCannotChange(t *testing.T) {
	service, _, workflow := newTriggerService(t)
	ctx := context.Background()

	trigger, err := service.Create(ctx, workflow.ID, &services.CreateTriggerRequest{
		Type:      models.TriggerTypeEvent,
		Name:      "lead created",
		Module:    "crm",
		EventType: "lead.created",
	})
	require.NoError(t, err)

	_, err = service.Update(ctx, trigger.ID, &services.CreateTriggerRequest{
		Type:      models.TriggerTypeSchedule,
		Name:      "now a schedule",
		Frequency: models.FrequencyDaily,
	})
	require.ErrorIs(t, err, services.ErrInvalidTriggerBinding)
}

func TestUpdateTrigger_DeactivatingScheduleDeactivatesEntry(t *testing.T) {
	service, store, workflow := newTriggerService(t)
	ctx := context.Background()

	trigger, err := service.Create(ctx, workflow.ID, &services.CreateTriggerRequest{
		Type:      models.TriggerTypeSchedule,
		Name:      "hourly digest",
		Frequency: models.FrequencyHourly,
		IsActive:  true,
	})
	require.NoError(t, err)

	_, err = service.Update(ctx, trigger.ID, &services.CreateTriggerRequest{
		Type:      models.TriggerTypeSchedule,
		Name:      "hourly digest",
		Frequency: models.FrequencyHourly,
		IsActive:  false,
	})
	require.NoError(t, err)

	due, err := store.ScheduleRepository().DueSchedules(ctx, time.Now().UTC().Add(25*time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestDeleteTrigger_RemovesScheduleEntry(t *testing.T) {
	service, store, workflow := newTriggerService(t)
	ctx := context.Background()

	trigger, err := service.Create(ctx, workflow.ID, &services.CreateTriggerRequest{
		Type:      models.TriggerTypeSchedule,
		Name:      "hourly digest",
		Frequency: models.FrequencyHourly,
		IsActive:  true,
	})
	require.NoError(t, err)

	require.NoError(t, service.Delete(ctx, trigger.ID))

	due, err := store.ScheduleRepository().DueSchedules(ctx, time.Now().UTC().Add(61*time.Minute), 10)
	require.NoError(t, err)
	assert.Empty(t, due)

	_, err = service.FetchByID(ctx, trigger.ID)
	require.Error(t, err)
}
