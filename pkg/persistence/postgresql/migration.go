package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Create workflows table. Steps (with their forms, rules, and
			-- transitions) are stored as a JSONB document alongside the
			-- scalar columns used for filtering and sorting.
			CREATE TABLE workflows (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				status VARCHAR(50) NOT NULL CHECK (status IN ('draft', 'published', 'archived')),
				steps JSONB NOT NULL DEFAULT '[]',
				business_rules JSONB,
				owner VARCHAR(255),
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				published_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_workflows_status ON workflows(status);
			CREATE INDEX idx_workflows_owner ON workflows(owner);
			CREATE INDEX idx_workflows_created_at ON workflows(created_at);
		`,
		2: `
			-- Create workflow_instances table
			CREATE TABLE workflow_instances (
				id VARCHAR(255) PRIMARY KEY,
				workflow_id VARCHAR(255) NOT NULL REFERENCES workflows(id),
				current_step_id VARCHAR(255),
				status VARCHAR(50) NOT NULL CHECK (status IN ('in_progress', 'completed', 'cancelled')),
				form_data JSONB NOT NULL DEFAULT '{}',
				started_by VARCHAR(255),
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_workflow_instances_workflow_id ON workflow_instances(workflow_id);
			CREATE INDEX idx_workflow_instances_status ON workflow_instances(status);
			CREATE INDEX idx_workflow_instances_started_by ON workflow_instances(started_by);
			CREATE INDEX idx_workflow_instances_created_at ON workflow_instances(created_at);
		`,
	}
}
