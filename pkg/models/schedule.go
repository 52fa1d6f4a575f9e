package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrInvalidSchedule is returned when schedule validation fails.
var ErrInvalidSchedule = errors.New("invalid schedule configuration")

// ScheduleFrequency is a coarse alternative to a cron expression.
type ScheduleFrequency string

const (
	FrequencyHourly  ScheduleFrequency = "hourly"
	FrequencyDaily   ScheduleFrequency = "daily"
	FrequencyWeekly  ScheduleFrequency = "weekly"
	FrequencyMonthly ScheduleFrequency = "monthly"
)

var frequencyCron = map[ScheduleFrequency]string{
	FrequencyHourly:  "0 * * * *",
	FrequencyDaily:   "0 0 * * *",
	FrequencyWeekly:  "0 0 * * 1",
	FrequencyMonthly: "0 0 1 * *",
}

// ScheduleEntry is the durable schedule state behind a schedule trigger or a
// SCHEDULE node. NextDueAt is precomputed so the scheduler can poll due
// entries with a single indexed query instead of per-entry timers.
// Exactly one of CronExpression and Frequency must be set.
type ScheduleEntry struct {
	ID             string            `json:"id"`
	WorkflowID     string            `json:"workflow_id" validate:"required"`
	TriggerID      string            `json:"trigger_id,omitempty"`
	CronExpression string            `json:"cron_expression,omitempty"`
	Frequency      ScheduleFrequency `json:"frequency,omitempty"`
	Timezone       string            `json:"timezone,omitempty"`
	NextDueAt      time.Time         `json:"next_due_at"`
	Active         bool              `json:"active"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// NewScheduleEntry creates an entry with the first due time precomputed.
func NewScheduleEntry(id, workflowID, cronExpression string, frequency ScheduleFrequency, timezone string) (*ScheduleEntry, error) {
	now := time.Now().UTC()
	entry := &ScheduleEntry{
		ID:             id,
		WorkflowID:     workflowID,
		CronExpression: cronExpression,
		Frequency:      frequency,
		Timezone:       timezone,
		Active:         true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := entry.Validate(); err != nil {
		return nil, err
	}

	if err := entry.calculateNextDueAt(now); err != nil {
		return nil, err
	}

	return entry, nil
}

// Validate enforces the cron-xor-frequency rule and parses the expression.
func (s *ScheduleEntry) Validate() error {
	if s.WorkflowID == "" {
		return ErrInvalidSchedule
	}

	hasCron := s.CronExpression != ""
	hasFrequency := s.Frequency != ""

	if hasCron == hasFrequency {
		return fmt.Errorf("%w: exactly one of cron_expression or frequency is required", ErrInvalidSchedule)
	}

	if hasFrequency {
		if _, ok := frequencyCron[s.Frequency]; !ok {
			return fmt.Errorf("%w: unknown frequency %q", ErrInvalidSchedule, s.Frequency)
		}
	}

	if s.Timezone != "" {
		if _, err := time.LoadLocation(s.Timezone); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidSchedule, err)
		}
	}

	_, err := s.parse()

	return err
}

// UpdateNextDueAt advances NextDueAt past the current time.
func (s *ScheduleEntry) UpdateNextDueAt() error {
	return s.calculateNextDueAt(time.Now().UTC())
}

// NextAfter returns the first occurrence strictly after the reference time.
func (s *ScheduleEntry) NextAfter(referenceTime time.Time) (time.Time, error) {
	schedule, err := s.parse()
	if err != nil {
		return time.Time{}, err
	}

	return schedule.Next(referenceTime), nil
}

// IsDue reports whether the entry should fire at the given time.
func (s *ScheduleEntry) IsDue(now time.Time) bool {
	return s.Active && !s.NextDueAt.After(now)
}

func (s *ScheduleEntry) parse() (cron.Schedule, error) {
	expression := s.CronExpression
	if expression == "" {
		expression = frequencyCron[s.Frequency]
	}

	if s.Timezone != "" {
		expression = "CRON_TZ=" + s.Timezone + " " + expression
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

	schedule, err := parser.Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSchedule, err)
	}

	return schedule, nil
}

func (s *ScheduleEntry) calculateNextDueAt(referenceTime time.Time) error {
	schedule, err := s.parse()
	if err != nil {
		return err
	}

	s.NextDueAt = schedule.Next(referenceTime)
	s.UpdatedAt = time.Now().UTC()

	return nil
}
