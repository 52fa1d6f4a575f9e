package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/persistence"
)

// CreateTriggerRequest describes a new trigger binding. The schedule fields
// apply only to schedule triggers; exactly one of CronExpression and
// Frequency must be set for those.
type CreateTriggerRequest struct {
	Type       models.TriggerType
	Name       string
	Module     string
	EventType  string
	EntityType string
	Conditions *models.ConditionGroup
	DelayMs    int64
	IsActive   bool

	CronExpression string
	Frequency      models.ScheduleFrequency
	Timezone       string
}

// Trigger manages trigger bindings and their durable schedule entries. A
// schedule trigger owns exactly one schedule entry, keyed by the trigger ID,
// so creating, deactivating, and deleting the trigger keeps the poller's
// view consistent.
type Trigger struct {
	persistence persistence.Persistence
}

// NewTrigger creates a new trigger service.
func NewTrigger(persistence persistence.Persistence) *Trigger {
	return &Trigger{
		persistence: persistence,
	}
}

// ListByWorkflow returns the trigger bindings of a workflow.
func (t *Trigger) ListByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowTrigger, error) {
	if _, err := t.persistence.WorkflowRepository().GetByID(ctx, workflowID); err != nil {
		return nil, err
	}

	return t.persistence.TriggerRepository().ListByWorkflow(ctx, workflowID)
}

// FetchByID retrieves a trigger by its ID.
func (t *Trigger) FetchByID(ctx context.Context, id string) (*models.WorkflowTrigger, error) {
	return t.persistence.TriggerRepository().GetByID(ctx, id)
}

// Create validates and saves a trigger binding. Schedule triggers also get
// their durable schedule entry created in the same call.
func (t *Trigger) Create(ctx context.Context, workflowID string, req *CreateTriggerRequest) (*models.WorkflowTrigger, error) {
	workflow, err := t.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if workflow == nil {
		return nil, persistence.ErrWorkflowNotFound
	}

	if workflow.Status == models.WorkflowStatusArchived {
		return nil, ErrWorkflowArchived
	}

	if err := validateTriggerRequest(req); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	trigger := &models.WorkflowTrigger{
		ID:         uuid.New().String(),
		WorkflowID: workflowID,
		Type:       req.Type,
		Name:       req.Name,
		Module:     req.Module,
		EventType:  req.EventType,
		EntityType: req.EntityType,
		Conditions: req.Conditions,
		DelayMs:    req.DelayMs,
		IsActive:   req.IsActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if trigger.Type == models.TriggerTypeSchedule {
		entry, err := models.NewScheduleEntry(trigger.ID, workflowID, req.CronExpression, req.Frequency, req.Timezone)
		if err != nil {
			return nil, NewValidationError("CreateTrigger", "INVALID_SCHEDULE", err.Error(), ErrInvalidScheduleBinding)
		}

		entry.TriggerID = trigger.ID
		entry.Active = req.IsActive

		if err := t.persistence.ScheduleRepository().Save(ctx, entry); err != nil {
			return nil, fmt.Errorf("failed to save schedule entry: %w", err)
		}
	}

	if err := t.persistence.TriggerRepository().Save(ctx, trigger); err != nil {
		return nil, fmt.Errorf("failed to save trigger: %w", err)
	}

	return trigger, nil
}

// Update modifies a trigger binding. Toggling a schedule trigger's activity
// flips its schedule entry as well.
func (t *Trigger) Update(ctx context.Context, triggerID string, req *CreateTriggerRequest) (*models.WorkflowTrigger, error) {
	existing, err := t.persistence.TriggerRepository().GetByID(ctx, triggerID)
	if err != nil {
		return nil, err
	}

	if err := validateTriggerRequest(req); err != nil {
		return nil, err
	}

	if req.Type != existing.Type {
		return nil, NewValidationError("UpdateTrigger", "INVALID_TRIGGER",
			"trigger type cannot change", ErrInvalidTriggerBinding)
	}

	existing.Name = req.Name
	existing.Module = req.Module
	existing.EventType = req.EventType
	existing.EntityType = req.EntityType
	existing.Conditions = req.Conditions
	existing.DelayMs = req.DelayMs
	existing.IsActive = req.IsActive
	existing.UpdatedAt = time.Now().UTC()

	if existing.Type == models.TriggerTypeSchedule {
		entry, err := models.NewScheduleEntry(existing.ID, existing.WorkflowID, req.CronExpression, req.Frequency, req.Timezone)
		if err != nil {
			return nil, NewValidationError("UpdateTrigger", "INVALID_SCHEDULE", err.Error(), ErrInvalidScheduleBinding)
		}

		entry.TriggerID = existing.ID
		entry.Active = req.IsActive

		if err := t.persistence.ScheduleRepository().Save(ctx, entry); err != nil {
			return nil, fmt.Errorf("failed to save schedule entry: %w", err)
		}
	}

	if err := t.persistence.TriggerRepository().Save(ctx, existing); err != nil {
		return nil, fmt.Errorf("failed to update trigger: %w", err)
	}

	return existing, nil
}

// Delete removes a trigger and, for schedule triggers, its schedule entry.
func (t *Trigger) Delete(ctx context.Context, triggerID string) error {
	existing, err := t.persistence.TriggerRepository().GetByID(ctx, triggerID)
	if err != nil {
		return err
	}

	if existing.Type == models.TriggerTypeSchedule {
		if err := t.persistence.ScheduleRepository().Delete(ctx, triggerID); err != nil &&
			!errors.Is(err, persistence.ErrScheduleNotFound) {
			return fmt.Errorf("failed to delete schedule entry: %w", err)
		}
	}

	if err := t.persistence.TriggerRepository().Delete(ctx, triggerID); err != nil {
		return fmt.Errorf("failed to delete trigger: %w", err)
	}

	return nil
}

func validateTriggerRequest(req *CreateTriggerRequest) error {
	if req.Name == "" {
		return NewValidationError("validateTriggerRequest", "INVALID_TRIGGER",
			"trigger name is required", ErrInvalidTriggerBinding)
	}

	switch req.Type {
	case models.TriggerTypeEvent:
		if req.Module == "" || req.EventType == "" {
			return NewValidationError("validateTriggerRequest", "INVALID_TRIGGER",
				"event triggers require module and event_type", ErrInvalidTriggerBinding)
		}
	case models.TriggerTypeSchedule:
		if (req.CronExpression == "") == (req.Frequency == "") {
			return NewValidationError("validateTriggerRequest", "INVALID_SCHEDULE",
				"exactly one of cron_expression or frequency is required", ErrInvalidScheduleBinding)
		}
	case models.TriggerTypeManual:
	default:
		return NewValidationError("validateTriggerRequest", "INVALID_TRIGGER",
			fmt.Sprintf("unknown trigger type %q", req.Type), ErrInvalidTriggerBinding)
	}

	if req.DelayMs < 0 {
		return NewValidationError("validateTriggerRequest", "INVALID_TRIGGER",
			"delay_ms cannot be negative", ErrInvalidTriggerBinding)
	}

	return nil
}
