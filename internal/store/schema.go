package store

import "fmt"

// schemaVersion is written to schema_meta(key='version') per spec.md §6
// ("Schema version stored in schema_meta(key='version', value)").
const schemaVersion = "1"

// InitSchema creates netwatch's ten logical tables if they do not already
// exist, alongside goqite's own schema set up in Open.
func (d *DB) InitSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS schema_meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS browser_configs (
			config_id               TEXT PRIMARY KEY,
			headless_mode           TEXT NOT NULL,
			wait_strategy           TEXT NOT NULL,
			user_agent              TEXT NOT NULL,
			viewport_width          INTEGER NOT NULL,
			viewport_height         INTEGER NOT NULL,
			stealth_enabled         INTEGER NOT NULL DEFAULT 0,
			disable_automation_flag INTEGER NOT NULL DEFAULT 0,
			total_attempts          INTEGER NOT NULL DEFAULT 0,
			success_count           INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS domain_arms (
			domain        TEXT NOT NULL,
			config_key    TEXT NOT NULL,
			success_count INTEGER NOT NULL DEFAULT 0,
			failure_count INTEGER NOT NULL DEFAULT 0,
			last_used     TEXT NOT NULL,
			PRIMARY KEY (domain, config_key),
			CHECK (success_count >= 0 AND failure_count >= 0)
		)`,
		`CREATE TABLE IF NOT EXISTS request_outcomes (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			domain        TEXT NOT NULL,
			config_hash   TEXT NOT NULL,
			success       INTEGER NOT NULL,
			response_code INTEGER,
			blocked_by    TEXT,
			created_at    TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_request_outcomes_domain ON request_outcomes(domain)`,
		`CREATE TABLE IF NOT EXISTS domain_similarity (
			domain_a         TEXT NOT NULL,
			domain_b         TEXT NOT NULL,
			similarity_score REAL NOT NULL,
			similarity_type  TEXT NOT NULL,
			PRIMARY KEY (domain_a, domain_b)
		)`,
		`CREATE TABLE IF NOT EXISTS jobs (
			job_id        TEXT PRIMARY KEY,
			job_type      TEXT NOT NULL,
			payload       TEXT NOT NULL,
			status        TEXT NOT NULL,
			priority      INTEGER NOT NULL DEFAULT 0,
			retry_count   INTEGER NOT NULL DEFAULT 0,
			depends_on    TEXT,
			scheduled_for TEXT NOT NULL,
			created_at    TEXT NOT NULL,
			started_at    TEXT,
			completed_at  TEXT,
			result        TEXT,
			error         TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_claim ON jobs(status, scheduled_for, priority)`,
		`CREATE TABLE IF NOT EXISTS dead_letters (
			id                  INTEGER PRIMARY KEY AUTOINCREMENT,
			job_id              TEXT NOT NULL,
			job_type            TEXT NOT NULL,
			payload             TEXT NOT NULL,
			error               TEXT NOT NULL,
			retry_count         INTEGER NOT NULL,
			original_created_at TEXT NOT NULL,
			failed_at           TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS selector_patterns (
			site          TEXT NOT NULL,
			field         TEXT NOT NULL,
			selector      TEXT NOT NULL,
			success_count INTEGER NOT NULL DEFAULT 0,
			failure_count INTEGER NOT NULL DEFAULT 0,
			last_used     TEXT NOT NULL,
			last_value    TEXT,
			PRIMARY KEY (site, field, selector),
			CHECK (success_count >= 0 AND failure_count >= 0)
		)`,
		`CREATE TABLE IF NOT EXISTS url_patterns (
			site           TEXT NOT NULL,
			pattern_type   TEXT NOT NULL,
			pattern        TEXT NOT NULL,
			success_count  INTEGER NOT NULL DEFAULT 0,
			failure_count  INTEGER NOT NULL DEFAULT 0,
			last_used      TEXT NOT NULL,
			example_source TEXT,
			example_result TEXT,
			PRIMARY KEY (site, pattern_type, pattern)
		)`,
		`CREATE TABLE IF NOT EXISTS web_sources (
			source_id       TEXT PRIMARY KEY,
			url             TEXT NOT NULL,
			status          TEXT NOT NULL,
			archive_method  TEXT NOT NULL,
			screenshot_path TEXT,
			pdf_path        TEXT,
			html_path       TEXT,
			markdown_path   TEXT,
			warc_path       TEXT,
			wacz_path       TEXT,
			title           TEXT,
			description     TEXT,
			open_graph      TEXT,
			json_ld         TEXT,
			dublin_core     TEXT,
			word_count      INTEGER NOT NULL DEFAULT 0,
			image_count     INTEGER NOT NULL DEFAULT 0,
			video_count     INTEGER NOT NULL DEFAULT 0,
			duration_ms     INTEGER NOT NULL DEFAULT 0,
			error           TEXT,
			created_at      TEXT NOT NULL,
			updated_at      TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS web_source_images (
			image_id           TEXT PRIMARY KEY,
			source_id          TEXT NOT NULL REFERENCES web_sources(source_id) ON DELETE CASCADE,
			original_url       TEXT NOT NULL,
			normalized_url     TEXT NOT NULL,
			enhanced_url       TEXT,
			kind               TEXT NOT NULL,
			width              INTEGER,
			height             INTEGER,
			alt                TEXT,
			hash               TEXT,
			enhancement_method TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_web_source_images_source ON web_source_images(source_id)`,
	}

	for _, stmt := range stmts {
		if _, err := d.conn.Exec(stmt); err != nil {
			return fmt.Errorf("exec schema statement: %w", err)
		}
	}

	_, err := d.conn.Exec(
		`INSERT INTO schema_meta(key, value) VALUES ('version', ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		schemaVersion,
	)
	if err != nil {
		return fmt.Errorf("write schema version: %w", err)
	}

	return nil
}
