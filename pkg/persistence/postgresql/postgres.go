// Package postgresql provides the PostgreSQL persistence implementation for
// workflows, executions, triggers, schedules, and analytics rollups.
package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/cascadehq/cascade/pkg/persistence"
	"github.com/cascadehq/cascade/pkg/persistence/sqlbase"
)

// Persistence implements persistence.Persistence on PostgreSQL.
type Persistence struct {
	db     *sql.DB
	logger *slog.Logger

	workflowRepo   *WorkflowRepository
	nodeRepo       *NodeRepository
	connectionRepo *ConnectionRepository
	triggerRepo    *TriggerRepository
	executionRepo  *ExecutionRepository
	scheduleRepo   *ScheduleRepository
	rollupRepo     *RollupRepository
}

// NewPersistence connects to PostgreSQL and runs pending migrations.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:             database,
		logger:         logger,
		workflowRepo:   NewWorkflowRepository(database, logger),
		nodeRepo:       NewNodeRepository(database, logger),
		connectionRepo: NewConnectionRepository(database, logger),
		triggerRepo:    NewTriggerRepository(database, logger),
		executionRepo:  NewExecutionRepository(database, logger),
		scheduleRepo:   NewScheduleRepository(database, logger),
		rollupRepo:     NewRollupRepository(database, logger),
	}, nil
}

// WorkflowRepository returns the workflow repository.
func (p *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return p.workflowRepo
}

// NodeRepository returns the node repository.
func (p *Persistence) NodeRepository() persistence.NodeRepository {
	return p.nodeRepo
}

// ConnectionRepository returns the connection repository.
func (p *Persistence) ConnectionRepository() persistence.ConnectionRepository {
	return p.connectionRepo
}

// TriggerRepository returns the trigger repository.
func (p *Persistence) TriggerRepository() persistence.TriggerRepository {
	return p.triggerRepo
}

// ExecutionRepository returns the execution repository.
func (p *Persistence) ExecutionRepository() persistence.ExecutionRepository {
	return p.executionRepo
}

// ScheduleRepository returns the schedule repository.
func (p *Persistence) ScheduleRepository() persistence.ScheduleRepository {
	return p.scheduleRepo
}

// RollupRepository returns the analytics rollup repository.
func (p *Persistence) RollupRepository() persistence.RollupRepository {
	return p.rollupRepo
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// marshalJSON encodes a value for a JSONB column, mapping nil to SQL NULL.
func marshalJSON(value any) (any, error) {
	if value == nil {
		return nil, nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSONB value: %w", err)
	}

	return data, nil
}

// unmarshalJSON decodes a JSONB column into target, leaving it untouched for
// SQL NULL.
func unmarshalJSON(data []byte, target any) error {
	if len(data) == 0 {
		return nil
	}

	err := json.Unmarshal(data, target)
	if err != nil {
		return fmt.Errorf("failed to unmarshal JSONB value: %w", err)
	}

	return nil
}

// isUniqueViolation reports whether err is a PostgreSQL unique constraint
// violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}

	return false
}

func closeRows(ctx context.Context, logger *slog.Logger, rows *sql.Rows) {
	if closeErr := rows.Close(); closeErr != nil {
		logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
	}
}

func timePtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}

	t := value.Time

	return &t
}

func int64Ptr(value sql.NullInt64) *int64 {
	if !value.Valid {
		return nil
	}

	v := value.Int64

	return &v
}
