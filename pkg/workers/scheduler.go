package workers

import (
	"context"
	"log/slog"
	"time"

	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/persistence"
)

const (
	// DefaultPollInterval is how often the scheduler checks for due work.
	DefaultPollInterval = 10 * time.Second

	// DefaultPollBatch caps how many due rows one tick processes.
	DefaultPollBatch = 100
)

// ScheduleStarter is the orchestrator surface the scheduler drives: firing
// due schedule entries and waking suspended delays.
type ScheduleStarter interface {
	StartFromSchedule(ctx context.Context, entry *models.ScheduleEntry) (*models.WorkflowExecution, error)
	WakeDelay(ctx context.Context, wakeup *models.DelayWakeup) error
}

// Scheduler polls the durable schedule entries and delay wake-ups. It is the
// only component that turns wall-clock time into executions; workers never
// sleep on a delay.
type Scheduler struct {
	logger   *slog.Logger
	store    persistence.Persistence
	starter  ScheduleStarter
	interval time.Duration
	batch    int

	now func() time.Time
}

type SchedulerOption func(*Scheduler)

func WithPollInterval(interval time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

func WithPollBatch(batch int) SchedulerOption {
	return func(s *Scheduler) {
		if batch > 0 {
			s.batch = batch
		}
	}
}

func NewScheduler(logger *slog.Logger, store persistence.Persistence, starter ScheduleStarter, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		logger:   logger.With("module", "scheduler"),
		store:    store,
		starter:  starter,
		interval: DefaultPollInterval,
		batch:    DefaultPollBatch,
		now:      func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Run polls until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.InfoContext(ctx, "Scheduler started", "interval", s.interval)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick processes one polling round. Errors are logged per row; a bad entry
// never blocks the rest of the batch.
func (s *Scheduler) Tick(ctx context.Context) {
	now := s.now()

	entries, err := s.store.ScheduleRepository().DueSchedules(ctx, now, s.batch)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to list due schedules", "error", err)
	} else {
		for _, entry := range entries {
			execution, err := s.starter.StartFromSchedule(ctx, entry)
			if err != nil {
				s.logger.ErrorContext(ctx, "Failed to fire schedule",
					"schedule_id", entry.ID, "workflow_id", entry.WorkflowID, "error", err)

				// Push the entry forward anyway so a broken workflow does
				// not wedge the poller on the same row every tick.
				if advanceErr := entry.UpdateNextDueAt(); advanceErr == nil {
					if saveErr := s.store.ScheduleRepository().Save(ctx, entry); saveErr != nil {
						s.logger.ErrorContext(ctx, "Failed to advance schedule",
							"schedule_id", entry.ID, "error", saveErr)
					}
				}

				continue
			}

			s.logger.InfoContext(ctx, "Schedule fired",
				"schedule_id", entry.ID, "workflow_id", entry.WorkflowID,
				"execution_id", execution.ID, "next_due_at", entry.NextDueAt)
		}
	}

	wakeups, err := s.store.ExecutionRepository().DueDelayWakeups(ctx, now, s.batch)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to list due wakeups", "error", err)

		return
	}

	for _, wakeup := range wakeups {
		if err := s.starter.WakeDelay(ctx, wakeup); err != nil {
			s.logger.ErrorContext(ctx, "Failed to wake delayed execution",
				"wakeup_id", wakeup.ID, "execution_id", wakeup.ExecutionID, "error", err)

			continue
		}

		s.logger.InfoContext(ctx, "Delayed execution woken",
			"wakeup_id", wakeup.ID, "execution_id", wakeup.ExecutionID)
	}
}
