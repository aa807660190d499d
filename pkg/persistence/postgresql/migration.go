package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Run ledgers, one row per workflow stem
			CREATE TABLE workflow_states (
				workflow_key VARCHAR(255) PRIMARY KEY,
				workflow_path TEXT NOT NULL,
				completed_steps JSONB NOT NULL DEFAULT '[]',
				failed_step VARCHAR(255),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_workflow_states_updated_at ON workflow_states(updated_at);
		`,
	}
}
