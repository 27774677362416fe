package store

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/netwatch/internal/models"
)

// LearningStore persists DomainLearner's state: per-domain bandit arm
// counts, the append-only outcome audit log, and curated domain similarity
// rows used for cold-start transfer (spec.md §3, §4's DomainLearner).
type LearningStore struct {
	db *DB
}

// NewLearningStore wraps db for DomainLearner persistence.
func NewLearningStore(db *DB) *LearningStore {
	return &LearningStore{db: db}
}

// UpsertArm increments success_count or failure_count for (domain,
// config_key), creating the row if absent (I1, I6: callers write one row
// per axis per outcome).
func (s *LearningStore) UpsertArm(ctx context.Context, domain, configKey string, success bool) error {
	successDelta, failureDelta := 0, 1
	if success {
		successDelta, failureDelta = 1, 0
	}

	_, err := s.db.conn.ExecContext(ctx, `
		INSERT INTO domain_arms (domain, config_key, success_count, failure_count, last_used)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(domain, config_key) DO UPDATE SET
			success_count = success_count + ?,
			failure_count = failure_count + ?,
			last_used = excluded.last_used`,
		domain, configKey, successDelta, failureDelta, nowISO(), successDelta, failureDelta,
	)
	if err != nil {
		return fmt.Errorf("upsert domain arm %s/%s: %w", domain, configKey, err)
	}
	return nil
}

// ArmsForDomain returns every arm row recorded for domain, keyed by config_key.
func (s *LearningStore) ArmsForDomain(ctx context.Context, domain string) ([]models.DomainArm, error) {
	rows, err := s.db.conn.QueryContext(ctx, `
		SELECT domain, config_key, success_count, failure_count, last_used
		FROM domain_arms WHERE domain = ?`, domain)
	if err != nil {
		return nil, fmt.Errorf("load domain arms for %s: %w", domain, err)
	}
	defer rows.Close()

	var out []models.DomainArm
	for rows.Next() {
		var a models.DomainArm
		var lastUsed string
		if err := rows.Scan(&a.Domain, &a.ConfigKey, &a.SuccessCount, &a.FailureCount, &lastUsed); err != nil {
			return nil, err
		}
		a.LastUsed, _ = time.Parse(time.RFC3339Nano, lastUsed)
		out = append(out, a)
	}
	return out, rows.Err()
}

// AllArms returns every domain_arms row across every domain, used by
// DomainLearner's fleet-wide GlobalStats aggregation.
func (s *LearningStore) AllArms(ctx context.Context) ([]models.DomainArm, error) {
	rows, err := s.db.conn.QueryContext(ctx, `
		SELECT domain, config_key, success_count, failure_count, last_used FROM domain_arms`)
	if err != nil {
		return nil, fmt.Errorf("load all domain arms: %w", err)
	}
	defer rows.Close()

	var out []models.DomainArm
	for rows.Next() {
		var a models.DomainArm
		var lastUsed string
		if err := rows.Scan(&a.Domain, &a.ConfigKey, &a.SuccessCount, &a.FailureCount, &lastUsed); err != nil {
			return nil, err
		}
		a.LastUsed, _ = time.Parse(time.RFC3339Nano, lastUsed)
		out = append(out, a)
	}
	return out, rows.Err()
}

// HasObservations reports whether domain has any recorded arms at all —
// the cold-start trigger for similarity-based transfer.
func (s *LearningStore) HasObservations(ctx context.Context, domain string) (bool, error) {
	var count int
	err := s.db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM domain_arms WHERE domain = ?`, domain).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check domain observations for %s: %w", domain, err)
	}
	return count > 0, nil
}

// RecordOutcome appends an immutable RequestOutcome row (spec.md §3: "Append-only audit log").
func (s *LearningStore) RecordOutcome(ctx context.Context, domain, configHash string, success bool, responseCode *int, blockedBy string) error {
	_, err := s.db.conn.ExecContext(ctx, `
		INSERT INTO request_outcomes (domain, config_hash, success, response_code, blocked_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		domain, configHash, success, responseCode, nullIfEmpty(blockedBy), nowISO(),
	)
	if err != nil {
		return fmt.Errorf("record outcome for %s: %w", domain, err)
	}
	return nil
}

// OutcomesForDomain returns the audit log for domain, most recent first.
func (s *LearningStore) OutcomesForDomain(ctx context.Context, domain string, limit int) ([]models.RequestOutcome, error) {
	rows, err := s.db.conn.QueryContext(ctx, `
		SELECT id, domain, config_hash, success, response_code, blocked_by, created_at
		FROM request_outcomes WHERE domain = ? ORDER BY id DESC LIMIT ?`, domain, limit)
	if err != nil {
		return nil, fmt.Errorf("load outcomes for %s: %w", domain, err)
	}
	defer rows.Close()

	var out []models.RequestOutcome
	for rows.Next() {
		var o models.RequestOutcome
		var createdAt string
		var responseCode *int
		var blockedBy *string
		if err := rows.Scan(&o.ID, &o.Domain, &o.ConfigHash, &o.Success, &responseCode, &blockedBy, &createdAt); err != nil {
			return nil, err
		}
		if responseCode != nil {
			o.ResponseCode = *responseCode
		}
		if blockedBy != nil {
			o.BlockedBy = *blockedBy
		}
		o.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		out = append(out, o)
	}
	return out, rows.Err()
}

// SimilarDomains returns curated DomainSimilarity rows for domain, ordered
// by descending score (cold-start fallback source, spec.md §4's DomainLearner).
func (s *LearningStore) SimilarDomains(ctx context.Context, domain string) ([]models.DomainSimilarity, error) {
	rows, err := s.db.conn.QueryContext(ctx, `
		SELECT domain_a, domain_b, similarity_score, similarity_type
		FROM domain_similarity
		WHERE domain_a = ? OR domain_b = ?
		ORDER BY similarity_score DESC`, domain, domain)
	if err != nil {
		return nil, fmt.Errorf("load domain similarity for %s: %w", domain, err)
	}
	defer rows.Close()

	var out []models.DomainSimilarity
	for rows.Next() {
		var d models.DomainSimilarity
		if err := rows.Scan(&d.DomainA, &d.DomainB, &d.SimilarityScore, &d.SimilarityType); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// DomainsSharingTLD returns up to limit other domains with recorded arm
// stats that share domain's top-level label, ordered alphabetically
// (cold-start fallback when no curated domain_similarity row exists,
// spec.md §4.5's "else find domains sharing the same TLD"). tld is the
// substring after the final '.', e.g. "com" for "example.com".
func (s *LearningStore) DomainsSharingTLD(ctx context.Context, domain, tld string, limit int) ([]string, error) {
	rows, err := s.db.conn.QueryContext(ctx, `
		SELECT DISTINCT domain FROM domain_arms
		WHERE domain LIKE ? AND domain != ?
		ORDER BY domain
		LIMIT ?`, "%."+tld, domain, limit)
	if err != nil {
		return nil, fmt.Errorf("load domains sharing tld %q for %s: %w", tld, domain, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// PutSimilarity upserts a curated (domainA, domainB) similarity row.
func (s *LearningStore) PutSimilarity(ctx context.Context, sim models.DomainSimilarity) error {
	_, err := s.db.conn.ExecContext(ctx, `
		INSERT INTO domain_similarity (domain_a, domain_b, similarity_score, similarity_type)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(domain_a, domain_b) DO UPDATE SET
			similarity_score = excluded.similarity_score,
			similarity_type = excluded.similarity_type`,
		sim.DomainA, sim.DomainB, sim.SimilarityScore, sim.SimilarityType,
	)
	if err != nil {
		return fmt.Errorf("put domain similarity %s/%s: %w", sim.DomainA, sim.DomainB, err)
	}
	return nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
