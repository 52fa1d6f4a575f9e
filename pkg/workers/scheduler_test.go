package workers_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/persistence/memory"
	"github.com/cascadehq/cascade/pkg/testutil"
	"github.com/cascadehq/cascade/pkg/workers"
)

type mockStarter struct {
	mock.Mock
}

func (m *mockStarter) StartFromSchedule(ctx context.Context, entry *models.ScheduleEntry) (*models.WorkflowExecution, error) {
	args := m.Called(ctx, entry)

	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	// Mirror the orchestrator: firing advances the entry.
	_ = entry.UpdateNextDueAt()

	return args.Get(0).(*models.WorkflowExecution), args.Error(1)
}

func (m *mockStarter) WakeDelay(ctx context.Context, wakeup *models.DelayWakeup) error {
	args := m.Called(ctx, wakeup)

	return args.Error(0)
}

func dueEntry(t *testing.T, store *memory.Persistence, id string) *models.ScheduleEntry {
	t.Helper()

	entry, err := models.NewScheduleEntry(id, "wf-1", "", models.FrequencyHourly, "")
	require.NoError(t, err)

	entry.NextDueAt = time.Now().UTC().Add(-time.Minute)
	require.NoError(t, store.ScheduleRepository().Save(context.Background(), entry))

	return entry
}

func TestTick_FiresDueSchedules(t *testing.T) {
	store := memory.NewPersistence()
	starter := &mockStarter{}
	scheduler := workers.NewScheduler(testutil.Logger(), store, starter)

	dueEntry(t, store, "sched-1")

	starter.On("StartFromSchedule", mock.Anything, mock.MatchedBy(func(entry *models.ScheduleEntry) bool {
		return entry.ID == "sched-1"
	})).Return(&models.WorkflowExecution{ID: "exec-1"}, nil)

	scheduler.Tick(context.Background())
	starter.AssertExpectations(t)
}

func TestTick_FailedScheduleIsAdvancedNotWedged(t *testing.T) {
	store := memory.NewPersistence()
	starter := &mockStarter{}
	scheduler := workers.NewScheduler(testutil.Logger(), store, starter)
	ctx := context.Background()

	dueEntry(t, store, "sched-1")

	starter.On("StartFromSchedule", mock.Anything, mock.Anything).
		Return(nil, errors.New("workflow gone"))

	scheduler.Tick(ctx)

	// The entry moved past now; the next tick does not retry it.
	due, err := store.ScheduleRepository().DueSchedules(ctx, time.Now().UTC(), 10)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestTick_WakesDueDelays(t *testing.T) {
	store := memory.NewPersistence()
	starter := &mockStarter{}
	scheduler := workers.NewScheduler(testutil.Logger(), store, starter)
	ctx := context.Background()

	wakeup := &models.DelayWakeup{
		ID:          "wake-1",
		ExecutionID: "exec-1",
		ResumeAt:    time.Now().UTC().Add(-time.Second),
		CreatedAt:   time.Now().UTC(),
	}
	require.NoError(t, store.ExecutionRepository().CreateDelayWakeup(ctx, wakeup))

	starter.On("WakeDelay", mock.Anything, mock.MatchedBy(func(w *models.DelayWakeup) bool {
		return w.ID == "wake-1"
	})).Return(nil)

	scheduler.Tick(ctx)
	starter.AssertExpectations(t)
}

func TestTick_FutureWorkUntouched(t *testing.T) {
	store := memory.NewPersistence()
	starter := &mockStarter{}
	scheduler := workers.NewScheduler(testutil.Logger(), store, starter)
	ctx := context.Background()

	entry, err := models.NewScheduleEntry("sched-1", "wf-1", "", models.FrequencyDaily, "")
	require.NoError(t, err)
	require.NoError(t, store.ScheduleRepository().Save(ctx, entry))

	require.NoError(t, store.ExecutionRepository().CreateDelayWakeup(ctx, &models.DelayWakeup{
		ID:          "wake-1",
		ExecutionID: "exec-1",
		ResumeAt:    time.Now().UTC().Add(time.Hour),
	}))

	scheduler.Tick(ctx)
	starter.AssertNotCalled(t, "StartFromSchedule", mock.Anything, mock.Anything)
	starter.AssertNotCalled(t, "WakeDelay", mock.Anything, mock.Anything)
}
