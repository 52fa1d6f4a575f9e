package postgresql

// migrations returns the schema migrations keyed by version.
func migrations() map[int]string {
	return map[int]string{
		1: schemaV1,
	}
}

const schemaV1 = `
CREATE TABLE IF NOT EXISTS workflows (
	id TEXT PRIMARY KEY,
	organization_id TEXT NOT NULL,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'draft',
	total_executions BIGINT NOT NULL DEFAULT 0,
	successful_executions BIGINT NOT NULL DEFAULT 0,
	failed_executions BIGINT NOT NULL DEFAULT 0,
	last_executed_at TIMESTAMP WITH TIME ZONE,
	metadata JSONB,
	created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
	deleted_at TIMESTAMP WITH TIME ZONE
);

CREATE INDEX IF NOT EXISTS idx_workflows_organization
	ON workflows (organization_id) WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS workflow_nodes (
	id TEXT PRIMARY KEY,
	workflow_id TEXT NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
	node_id TEXT NOT NULL,
	type TEXT NOT NULL,
	name TEXT NOT NULL,
	config JSONB,
	position_x INTEGER NOT NULL DEFAULT 0,
	position_y INTEGER NOT NULL DEFAULT 0,
	execution_order INTEGER NOT NULL DEFAULT 0,
	is_optional BOOLEAN NOT NULL DEFAULT FALSE,
	retry_limit INTEGER NOT NULL DEFAULT 0,
	timeout_ms BIGINT NOT NULL DEFAULT 0,
	created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
	UNIQUE (workflow_id, node_id)
);

CREATE TABLE IF NOT EXISTS workflow_connections (
	id TEXT PRIMARY KEY,
	workflow_id TEXT NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
	edge_id TEXT NOT NULL,
	source_node_id TEXT NOT NULL,
	target_node_id TEXT NOT NULL,
	source_handle TEXT NOT NULL DEFAULT '',
	target_handle TEXT NOT NULL DEFAULT '',
	conditions JSONB,
	execution_order INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
	UNIQUE (workflow_id, edge_id)
);

CREATE TABLE IF NOT EXISTS workflow_triggers (
	id TEXT PRIMARY KEY,
	workflow_id TEXT NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
	type TEXT NOT NULL,
	name TEXT NOT NULL,
	module TEXT NOT NULL DEFAULT '',
	event_type TEXT NOT NULL DEFAULT '',
	entity_type TEXT NOT NULL DEFAULT '',
	conditions JSONB,
	delay_ms BIGINT NOT NULL DEFAULT 0,
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_triggers_event_class
	ON workflow_triggers (module, event_type) WHERE is_active;

CREATE TABLE IF NOT EXISTS workflow_executions (
	id TEXT PRIMARY KEY,
	workflow_id TEXT NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
	organization_id TEXT NOT NULL,
	trigger_id TEXT,
	status TEXT NOT NULL DEFAULT 'pending',
	priority TEXT NOT NULL DEFAULT 'normal',
	trigger_data JSONB,
	progress INTEGER NOT NULL DEFAULT 0,
	retry_count INTEGER NOT NULL DEFAULT 0,
	max_retries INTEGER NOT NULL DEFAULT 0,
	duration_ms BIGINT,
	error TEXT NOT NULL DEFAULT '',
	error_details JSONB,
	node_snapshot JSONB,
	created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
	started_at TIMESTAMP WITH TIME ZONE,
	completed_at TIMESTAMP WITH TIME ZONE,
	failed_at TIMESTAMP WITH TIME ZONE
);

CREATE INDEX IF NOT EXISTS idx_executions_workflow_created
	ON workflow_executions (workflow_id, created_at);

CREATE TABLE IF NOT EXISTS node_executions (
	id TEXT PRIMARY KEY,
	execution_id TEXT NOT NULL REFERENCES workflow_executions(id) ON DELETE CASCADE,
	node_id TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending',
	execution_order INTEGER NOT NULL DEFAULT 0,
	retry_count INTEGER NOT NULL DEFAULT 0,
	max_retries INTEGER NOT NULL DEFAULT 0,
	duration_ms BIGINT,
	input JSONB,
	output JSONB,
	error TEXT NOT NULL DEFAULT '',
	started_at TIMESTAMP WITH TIME ZONE,
	completed_at TIMESTAMP WITH TIME ZONE,
	UNIQUE (execution_id, node_id)
);

CREATE TABLE IF NOT EXISTS execution_variables (
	execution_id TEXT NOT NULL REFERENCES workflow_executions(id) ON DELETE CASCADE,
	name TEXT NOT NULL,
	value JSONB,
	data_type TEXT NOT NULL,
	source TEXT NOT NULL DEFAULT '',
	updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
	PRIMARY KEY (execution_id, name)
);

CREATE TABLE IF NOT EXISTS execution_logs (
	id TEXT PRIMARY KEY,
	execution_id TEXT NOT NULL REFERENCES workflow_executions(id) ON DELETE CASCADE,
	level TEXT NOT NULL DEFAULT 'info',
	message TEXT NOT NULL,
	details JSONB,
	category TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_execution_logs_execution
	ON execution_logs (execution_id, created_at);

CREATE TABLE IF NOT EXISTS delay_wakeups (
	id TEXT PRIMARY KEY,
	execution_id TEXT NOT NULL REFERENCES workflow_executions(id) ON DELETE CASCADE,
	node_execution_id TEXT NOT NULL,
	resume_at TIMESTAMP WITH TIME ZONE NOT NULL,
	created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_delay_wakeups_due ON delay_wakeups (resume_at);

CREATE TABLE IF NOT EXISTS schedule_entries (
	id TEXT PRIMARY KEY,
	workflow_id TEXT NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
	trigger_id TEXT NOT NULL DEFAULT '',
	cron_expression TEXT NOT NULL DEFAULT '',
	frequency TEXT NOT NULL DEFAULT '',
	timezone TEXT NOT NULL DEFAULT '',
	next_due_at TIMESTAMP WITH TIME ZONE NOT NULL,
	active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_schedule_entries_due
	ON schedule_entries (next_due_at) WHERE active;

CREATE TABLE IF NOT EXISTS analytics_rollups (
	id TEXT PRIMARY KEY,
	workflow_id TEXT NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
	period TEXT NOT NULL,
	bucket_start TIMESTAMP WITH TIME ZONE NOT NULL,
	total_count BIGINT NOT NULL DEFAULT 0,
	completed_count BIGINT NOT NULL DEFAULT 0,
	failed_count BIGINT NOT NULL DEFAULT 0,
	cancelled_count BIGINT NOT NULL DEFAULT 0,
	duration_count BIGINT NOT NULL DEFAULT 0,
	duration_sum_ms BIGINT NOT NULL DEFAULT 0,
	duration_min_ms BIGINT NOT NULL DEFAULT 0,
	duration_max_ms BIGINT NOT NULL DEFAULT 0,
	updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
	UNIQUE (workflow_id, period, bucket_start)
);
`
