package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE leads (
				id VARCHAR(64) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				phone VARCHAR(64) NOT NULL DEFAULT '',
				email VARCHAR(255) NOT NULL DEFAULT '',
				dni VARCHAR(32) NOT NULL DEFAULT '',
				fields JSONB,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE TABLE pipeline_stages (
				id VARCHAR(64) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				position INT NOT NULL,
				is_active BOOLEAN NOT NULL DEFAULT true,
				target_duration_days INT,
				default_probability INT NOT NULL DEFAULT 0 CHECK (default_probability BETWEEN 0 AND 100),
				color VARCHAR(16) NOT NULL DEFAULT ''
			);

			CREATE UNIQUE INDEX idx_pipeline_stages_active_position ON pipeline_stages(position) WHERE is_active;

			CREATE TABLE pipeline_transitions (
				from_stage VARCHAR(64) NOT NULL REFERENCES pipeline_stages(id) ON DELETE CASCADE,
				to_stage VARCHAR(64) NOT NULL REFERENCES pipeline_stages(id) ON DELETE CASCADE,
				is_allowed BOOLEAN NOT NULL DEFAULT true,
				requires_approval BOOLEAN NOT NULL DEFAULT false,
				auto_transition_days INT CHECK (auto_transition_days > 0),
				required_fields JSONB,
				PRIMARY KEY (from_stage, to_stage)
			);
		`,
		2: `
			CREATE TABLE lead_pipeline (
				id VARCHAR(64) PRIMARY KEY,
				lead_id VARCHAR(64) NOT NULL UNIQUE REFERENCES leads(id) ON DELETE CASCADE,
				current_stage VARCHAR(64) NOT NULL,
				stage_entered_at TIMESTAMP WITH TIME ZONE NOT NULL,
				closed_at TIMESTAMP WITH TIME ZONE,
				won BOOLEAN,
				loss_reason VARCHAR(32),
				total_value NUMERIC(14, 2) NOT NULL DEFAULT 0 CHECK (total_value >= 0),
				probability_percent INT NOT NULL DEFAULT 0 CHECK (probability_percent BETWEEN 0 AND 100),
				expected_close_date TIMESTAMP WITH TIME ZONE,
				assigned_to VARCHAR(255) NOT NULL DEFAULT '',
				version BIGINT NOT NULL DEFAULT 1,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_lead_pipeline_current_stage ON lead_pipeline(current_stage);
			CREATE INDEX idx_lead_pipeline_expected_close_date ON lead_pipeline(expected_close_date);

			CREATE TABLE pipeline_history (
				id VARCHAR(64) PRIMARY KEY,
				pipeline_record_id VARCHAR(64) NOT NULL REFERENCES lead_pipeline(id) ON DELETE CASCADE,
				kind VARCHAR(16) NOT NULL CHECK (kind IN ('created', 'transitioned')),
				from_stage VARCHAR(64),
				to_stage VARCHAR(64) NOT NULL,
				transition_type VARCHAR(16) NOT NULL CHECK (transition_type IN ('MANUAL', 'AUTOMATIC', 'SCHEDULED')),
				duration_in_previous_stage_days INT NOT NULL DEFAULT 0 CHECK (duration_in_previous_stage_days >= 0),
				notes TEXT NOT NULL DEFAULT '',
				changed_by VARCHAR(255) NOT NULL,
				changed_at TIMESTAMP WITH TIME ZONE NOT NULL,
				metadata JSONB,
				CHECK ((kind = 'created') = (from_stage IS NULL))
			);

			CREATE INDEX idx_pipeline_history_record ON pipeline_history(pipeline_record_id, changed_at);
			CREATE INDEX idx_pipeline_history_to_stage ON pipeline_history(to_stage);
		`,
	}
}
