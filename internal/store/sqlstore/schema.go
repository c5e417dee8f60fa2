package sqlstore

func schema(d Dialect) []string {
	if d == Postgres {
		return []string{
			`CREATE TABLE IF NOT EXISTS jobs (
				job_id       BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
				job_name     VARCHAR(100) NOT NULL,
				job_status   VARCHAR(50)  NOT NULL,
				container_id VARCHAR(128),
				vnc_port     INTEGER,
				created_at   TIMESTAMPTZ  NOT NULL,
				updated_at   TIMESTAMPTZ  NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS jobs_status_idx ON jobs (job_status)`,
			`CREATE INDEX IF NOT EXISTS jobs_container_idx ON jobs (container_id)`,
		}
	}
	return []string{
		`CREATE TABLE IF NOT EXISTS jobs (
			job_id       INTEGER PRIMARY KEY AUTOINCREMENT,
			job_name     VARCHAR(100) NOT NULL,
			job_status   VARCHAR(50)  NOT NULL,
			container_id VARCHAR(128),
			vnc_port     INTEGER,
			created_at   TIMESTAMP    NOT NULL,
			updated_at   TIMESTAMP    NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS jobs_status_idx ON jobs (job_status)`,
		`CREATE INDEX IF NOT EXISTS jobs_container_idx ON jobs (container_id)`,
	}
}
