package learning

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/netwatch/internal/models"
	"github.com/ternarybob/netwatch/internal/store"
)

// TrainingService ranks CSS/XPath/JS extractors per (site, field) and URL
// patterns per (site, pattern_type) by empirical confidence (spec.md §4.6).
type TrainingService struct {
	trainingStore *store.TrainingStore
	logger        arbor.ILogger
}

// NewTrainingService constructs a service backed by trainingStore.
func NewTrainingService(trainingStore *store.TrainingStore, logger arbor.ILogger) *TrainingService {
	return &TrainingService{trainingStore: trainingStore, logger: logger}
}

// RecordSelectorOutcome upserts (site, field, selector) after an extraction attempt.
func (t *TrainingService) RecordSelectorOutcome(ctx context.Context, site, field, selector string, success bool, lastValue string) error {
	return t.trainingStore.RecordSelectorOutcome(ctx, site, field, selector, success, lastValue)
}

// BestSelector returns the highest-confidence pattern for (site, field)
// above minConfidence, tie-broken by raw success count (spec.md §4.6).
func (t *TrainingService) BestSelector(ctx context.Context, site, field string, minConfidence float64) (*models.SelectorPattern, error) {
	patterns, err := t.trainingStore.SelectorsForField(ctx, site, field)
	if err != nil {
		return nil, fmt.Errorf("best selector %s/%s: %w", site, field, err)
	}

	var best *models.SelectorPattern
	for i := range patterns {
		p := patterns[i]
		if p.Confidence() < minConfidence {
			continue
		}
		if best == nil || p.Confidence() > best.Confidence() ||
			(p.Confidence() == best.Confidence() && p.SuccessCount > best.SuccessCount) {
			best = &p
		}
	}
	return best, nil
}

// FallbackSelectors returns up to limit candidates for (site, field),
// highest confidence first.
func (t *TrainingService) FallbackSelectors(ctx context.Context, site, field string, limit int) ([]models.SelectorPattern, error) {
	patterns, err := t.trainingStore.SelectorsForField(ctx, site, field)
	if err != nil {
		return nil, fmt.Errorf("fallback selectors %s/%s: %w", site, field, err)
	}
	if limit > 0 && len(patterns) > limit {
		patterns = patterns[:limit]
	}
	return patterns, nil
}

// SelectorsForSite returns the patterns recorded for site under each of the
// given fields, filtered by minConfidence.
func (t *TrainingService) SelectorsForSite(ctx context.Context, site string, minConfidence float64, fields []string) ([]models.SelectorPattern, error) {
	var out []models.SelectorPattern
	for _, field := range fields {
		patterns, err := t.trainingStore.SelectorsForField(ctx, site, field)
		if err != nil {
			return nil, fmt.Errorf("selectors for site %s field %s: %w", site, field, err)
		}
		for _, p := range patterns {
			if p.Confidence() >= minConfidence {
				out = append(out, p)
			}
		}
	}
	return out, nil
}

// RecordURLPatternOutcome upserts (site, pattern_type, pattern).
func (t *TrainingService) RecordURLPatternOutcome(ctx context.Context, site, patternType, pattern string, success bool, exampleSource, exampleResult string) error {
	return t.trainingStore.RecordURLPatternOutcome(ctx, site, patternType, pattern, success, exampleSource, exampleResult)
}

// URLPatternsForSite returns confidence-ordered URL patterns for site.
func (t *TrainingService) URLPatternsForSite(ctx context.Context, site string) ([]models.UrlPattern, error) {
	return t.trainingStore.URLPatternsForSite(ctx, site)
}

// Export returns the full two-section training document.
func (t *TrainingService) Export(ctx context.Context) (models.TrainingExport, error) {
	return t.trainingStore.Export(ctx)
}

// ExportForSite returns the training document filtered to one site.
func (t *TrainingService) ExportForSite(ctx context.Context, site string) (models.TrainingExport, error) {
	full, err := t.trainingStore.Export(ctx)
	if err != nil {
		return full, err
	}
	var filtered models.TrainingExport
	for _, p := range full.Selectors {
		if p.Site == site {
			filtered.Selectors = append(filtered.Selectors, p)
		}
	}
	for _, p := range full.UrlPatterns {
		if p.Site == site {
			filtered.UrlPatterns = append(filtered.UrlPatterns, p)
		}
	}
	return filtered, nil
}

// Import merges (merge=true) or replaces (merge=false) the store's rows
// with export (spec.md §4.6 Import/export).
func (t *TrainingService) Import(ctx context.Context, export models.TrainingExport, merge bool) error {
	mode := store.ImportReplace
	if merge {
		mode = store.ImportMerge
	}
	return t.trainingStore.Import(ctx, export, mode)
}
