package store

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/netwatch/internal/models"
)

// TrainingStore persists TrainingService's per-(site,field,selector) and
// per-(site,pattern_type,pattern) confidence counters (spec.md §3, I5).
type TrainingStore struct {
	db *DB
}

// NewTrainingStore wraps db for TrainingService persistence.
func NewTrainingStore(db *DB) *TrainingStore {
	return &TrainingStore{db: db}
}

// RecordSelectorOutcome upserts (site, field, selector), incrementing the
// appropriate counter and recording lastValue when extraction succeeded.
func (s *TrainingStore) RecordSelectorOutcome(ctx context.Context, site, field, selector string, success bool, lastValue string) error {
	successDelta, failureDelta := 0, 1
	if success {
		successDelta, failureDelta = 1, 0
	}
	_, err := s.db.conn.ExecContext(ctx, `
		INSERT INTO selector_patterns (site, field, selector, success_count, failure_count, last_used, last_value)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(site, field, selector) DO UPDATE SET
			success_count = success_count + ?,
			failure_count = failure_count + ?,
			last_used = excluded.last_used,
			last_value = CASE WHEN ? THEN excluded.last_value ELSE selector_patterns.last_value END`,
		site, field, selector, successDelta, failureDelta, nowISO(), lastValue,
		successDelta, failureDelta, success,
	)
	if err != nil {
		return fmt.Errorf("record selector outcome %s/%s/%s: %w", site, field, selector, err)
	}
	return nil
}

// SelectorsForField returns every candidate selector for (site, field),
// ordered by confidence descending — TrainingService's fallback-chain source.
func (s *TrainingStore) SelectorsForField(ctx context.Context, site, field string) ([]models.SelectorPattern, error) {
	rows, err := s.db.conn.QueryContext(ctx, `
		SELECT site, field, selector, success_count, failure_count, last_used, last_value
		FROM selector_patterns WHERE site = ? AND field = ?
		ORDER BY (CAST(success_count AS REAL) / NULLIF(success_count + failure_count, 0)) DESC NULLS LAST`,
		site, field,
	)
	if err != nil {
		return nil, fmt.Errorf("load selectors for %s/%s: %w", site, field, err)
	}
	defer rows.Close()

	var out []models.SelectorPattern
	for rows.Next() {
		var p models.SelectorPattern
		var lastUsed string
		var lastValue *string
		if err := rows.Scan(&p.Site, &p.Field, &p.Selector, &p.SuccessCount, &p.FailureCount, &lastUsed, &lastValue); err != nil {
			return nil, err
		}
		p.LastUsed, _ = time.Parse(time.RFC3339Nano, lastUsed)
		if lastValue != nil {
			p.LastValue = *lastValue
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// RecordURLPatternOutcome upserts (site, pattern_type, pattern).
func (s *TrainingStore) RecordURLPatternOutcome(ctx context.Context, site, patternType, pattern string, success bool, exampleSource, exampleResult string) error {
	successDelta, failureDelta := 0, 1
	if success {
		successDelta, failureDelta = 1, 0
	}
	_, err := s.db.conn.ExecContext(ctx, `
		INSERT INTO url_patterns (site, pattern_type, pattern, success_count, failure_count, last_used, example_source, example_result)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(site, pattern_type, pattern) DO UPDATE SET
			success_count = success_count + ?,
			failure_count = failure_count + ?,
			last_used = excluded.last_used,
			example_source = excluded.example_source,
			example_result = excluded.example_result`,
		site, patternType, pattern, successDelta, failureDelta, nowISO(), exampleSource, exampleResult,
		successDelta, failureDelta,
	)
	if err != nil {
		return fmt.Errorf("record url pattern outcome %s/%s/%s: %w", site, patternType, pattern, err)
	}
	return nil
}

// URLPatternsForSite returns every URL pattern recorded for site, ordered
// by confidence descending.
func (s *TrainingStore) URLPatternsForSite(ctx context.Context, site string) ([]models.UrlPattern, error) {
	rows, err := s.db.conn.QueryContext(ctx, `
		SELECT site, pattern_type, pattern, success_count, failure_count, last_used, example_source, example_result
		FROM url_patterns WHERE site = ?
		ORDER BY (CAST(success_count AS REAL) / NULLIF(success_count + failure_count, 0)) DESC NULLS LAST`,
		site,
	)
	if err != nil {
		return nil, fmt.Errorf("load url patterns for %s: %w", site, err)
	}
	defer rows.Close()

	var out []models.UrlPattern
	for rows.Next() {
		var p models.UrlPattern
		var lastUsed string
		var exampleSource, exampleResult *string
		if err := rows.Scan(&p.Site, &p.PatternType, &p.Pattern, &p.SuccessCount, &p.FailureCount, &lastUsed, &exampleSource, &exampleResult); err != nil {
			return nil, err
		}
		p.LastUsed, _ = time.Parse(time.RFC3339Nano, lastUsed)
		if exampleSource != nil {
			p.ExampleSource = *exampleSource
		}
		if exampleResult != nil {
			p.ExampleResult = *exampleResult
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Export produces the full two-section training document (training export).
func (s *TrainingStore) Export(ctx context.Context) (models.TrainingExport, error) {
	var export models.TrainingExport

	rows, err := s.db.conn.QueryContext(ctx, `
		SELECT site, field, selector, success_count, failure_count, last_used, last_value FROM selector_patterns`)
	if err != nil {
		return export, fmt.Errorf("export selectors: %w", err)
	}
	for rows.Next() {
		var p models.SelectorPattern
		var lastUsed string
		var lastValue *string
		if err := rows.Scan(&p.Site, &p.Field, &p.Selector, &p.SuccessCount, &p.FailureCount, &lastUsed, &lastValue); err != nil {
			rows.Close()
			return export, err
		}
		p.LastUsed, _ = time.Parse(time.RFC3339Nano, lastUsed)
		if lastValue != nil {
			p.LastValue = *lastValue
		}
		export.Selectors = append(export.Selectors, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return export, err
	}

	urlRows, err := s.db.conn.QueryContext(ctx, `
		SELECT site, pattern_type, pattern, success_count, failure_count, last_used, example_source, example_result FROM url_patterns`)
	if err != nil {
		return export, fmt.Errorf("export url patterns: %w", err)
	}
	defer urlRows.Close()
	for urlRows.Next() {
		var p models.UrlPattern
		var lastUsed string
		var exampleSource, exampleResult *string
		if err := urlRows.Scan(&p.Site, &p.PatternType, &p.Pattern, &p.SuccessCount, &p.FailureCount, &lastUsed, &exampleSource, &exampleResult); err != nil {
			return export, err
		}
		p.LastUsed, _ = time.Parse(time.RFC3339Nano, lastUsed)
		if exampleSource != nil {
			p.ExampleSource = *exampleSource
		}
		if exampleResult != nil {
			p.ExampleResult = *exampleResult
		}
		export.UrlPatterns = append(export.UrlPatterns, p)
	}

	return export, urlRows.Err()
}

// ImportMode controls how Import reconciles incoming rows with existing ones.
type ImportMode string

const (
	ImportMerge   ImportMode = "merge"
	ImportReplace ImportMode = "replace"
)

// Import merges or replaces selector/url-pattern rows from a TrainingExport.
func (s *TrainingStore) Import(ctx context.Context, export models.TrainingExport, mode ImportMode) error {
	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin import: %w", err)
	}
	defer tx.Rollback()

	if mode == ImportReplace {
		if _, err := tx.ExecContext(ctx, `DELETE FROM selector_patterns`); err != nil {
			return fmt.Errorf("clear selector_patterns for replace: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM url_patterns`); err != nil {
			return fmt.Errorf("clear url_patterns for replace: %w", err)
		}
	}

	for _, p := range export.Selectors {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO selector_patterns (site, field, selector, success_count, failure_count, last_used, last_value)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(site, field, selector) DO UPDATE SET
				success_count = CASE WHEN ? = ?  THEN selector_patterns.success_count + excluded.success_count ELSE excluded.success_count END,
				failure_count = CASE WHEN ? = ?  THEN selector_patterns.failure_count + excluded.failure_count ELSE excluded.failure_count END,
				last_used = excluded.last_used,
				last_value = excluded.last_value`,
			p.Site, p.Field, p.Selector, p.SuccessCount, p.FailureCount, p.LastUsed.UTC().Format(time.RFC3339Nano), p.LastValue,
			string(mode), string(ImportMerge), string(mode), string(ImportMerge),
		); err != nil {
			return fmt.Errorf("import selector %s/%s/%s: %w", p.Site, p.Field, p.Selector, err)
		}
	}

	for _, p := range export.UrlPatterns {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO url_patterns (site, pattern_type, pattern, success_count, failure_count, last_used, example_source, example_result)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(site, pattern_type, pattern) DO UPDATE SET
				success_count = CASE WHEN ? = ? THEN url_patterns.success_count + excluded.success_count ELSE excluded.success_count END,
				failure_count = CASE WHEN ? = ? THEN url_patterns.failure_count + excluded.failure_count ELSE excluded.failure_count END,
				last_used = excluded.last_used,
				example_source = excluded.example_source,
				example_result = excluded.example_result`,
			p.Site, p.PatternType, p.Pattern, p.SuccessCount, p.FailureCount, p.LastUsed.UTC().Format(time.RFC3339Nano), p.ExampleSource, p.ExampleResult,
			string(mode), string(ImportMerge), string(mode), string(ImportMerge),
		); err != nil {
			return fmt.Errorf("import url pattern %s/%s/%s: %w", p.Site, p.PatternType, p.Pattern, err)
		}
	}

	return tx.Commit()
}
