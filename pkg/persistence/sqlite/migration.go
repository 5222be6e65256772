package sqlite

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE leads (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				phone TEXT NOT NULL DEFAULT '',
				email TEXT NOT NULL DEFAULT '',
				dni TEXT NOT NULL DEFAULT '',
				fields TEXT,
				created_at TIMESTAMP NOT NULL
			);

			CREATE TABLE pipeline_stages (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				position INTEGER NOT NULL,
				is_active BOOLEAN NOT NULL DEFAULT 1,
				target_duration_days INTEGER,
				default_probability INTEGER NOT NULL DEFAULT 0 CHECK (default_probability BETWEEN 0 AND 100),
				color TEXT NOT NULL DEFAULT ''
			);

			CREATE UNIQUE INDEX idx_pipeline_stages_active_position ON pipeline_stages(position) WHERE is_active;

			CREATE TABLE pipeline_transitions (
				from_stage TEXT NOT NULL REFERENCES pipeline_stages(id) ON DELETE CASCADE,
				to_stage TEXT NOT NULL REFERENCES pipeline_stages(id) ON DELETE CASCADE,
				is_allowed BOOLEAN NOT NULL DEFAULT 1,
				requires_approval BOOLEAN NOT NULL DEFAULT 0,
				auto_transition_days INTEGER CHECK (auto_transition_days > 0),
				required_fields TEXT,
				PRIMARY KEY (from_stage, to_stage)
			);
		`,
		2: `
			CREATE TABLE lead_pipeline (
				id TEXT PRIMARY KEY,
				lead_id TEXT NOT NULL UNIQUE REFERENCES leads(id) ON DELETE CASCADE,
				current_stage TEXT NOT NULL,
				stage_entered_at TIMESTAMP NOT NULL,
				closed_at TIMESTAMP,
				won BOOLEAN,
				loss_reason TEXT,
				total_value REAL NOT NULL DEFAULT 0 CHECK (total_value >= 0),
				probability_percent INTEGER NOT NULL DEFAULT 0 CHECK (probability_percent BETWEEN 0 AND 100),
				expected_close_date TIMESTAMP,
				assigned_to TEXT NOT NULL DEFAULT '',
				version INTEGER NOT NULL DEFAULT 1,
				created_at TIMESTAMP NOT NULL,
				updated_at TIMESTAMP NOT NULL
			);

			CREATE INDEX idx_lead_pipeline_current_stage ON lead_pipeline(current_stage);

			CREATE TABLE pipeline_history (
				id TEXT PRIMARY KEY,
				pipeline_record_id TEXT NOT NULL REFERENCES lead_pipeline(id) ON DELETE CASCADE,
				kind TEXT NOT NULL CHECK (kind IN ('created', 'transitioned')),
				from_stage TEXT,
				to_stage TEXT NOT NULL,
				transition_type TEXT NOT NULL CHECK (transition_type IN ('MANUAL', 'AUTOMATIC', 'SCHEDULED')),
				duration_in_previous_stage_days INTEGER NOT NULL DEFAULT 0 CHECK (duration_in_previous_stage_days >= 0),
				notes TEXT NOT NULL DEFAULT '',
				changed_by TEXT NOT NULL,
				changed_at TIMESTAMP NOT NULL,
				metadata TEXT,
				CHECK ((kind = 'created') = (from_stage IS NULL))
			);

			CREATE INDEX idx_pipeline_history_record ON pipeline_history(pipeline_record_id, changed_at);
		`,
	}
}
