package models

import "time"

// SelectorPattern is one (site, field, selector) row; I5 requires the key
// to be unique and the counts to be monotonic.
type SelectorPattern struct {
	Site         string    `json:"site"`
	Field        string    `json:"field"`
	Selector     string    `json:"selector"`
	SuccessCount int       `json:"success_count"`
	FailureCount int       `json:"failure_count"`
	LastUsed     time.Time `json:"last_used"`
	LastValue    string    `json:"last_value,omitempty"`
}

// Confidence is success / (success + failure), 0 when no observations exist.
func (p SelectorPattern) Confidence() float64 {
	total := p.SuccessCount + p.FailureCount
	if total == 0 {
		return 0
	}
	return float64(p.SuccessCount) / float64(total)
}

// UrlPattern is the URL-pattern counterpart of SelectorPattern, keyed by
// (site, pattern_type, pattern) and additionally recording one example.
type UrlPattern struct {
	Site          string    `json:"site"`
	PatternType   string    `json:"pattern_type"`
	Pattern       string    `json:"pattern"`
	SuccessCount  int       `json:"success_count"`
	FailureCount  int       `json:"failure_count"`
	LastUsed      time.Time `json:"last_used"`
	ExampleSource string    `json:"example_source,omitempty"`
	ExampleResult string    `json:"example_result,omitempty"`
}

// Confidence is success / (success + failure), 0 when no observations exist.
func (p UrlPattern) Confidence() float64 {
	total := p.SuccessCount + p.FailureCount
	if total == 0 {
		return 0
	}
	return float64(p.SuccessCount) / float64(total)
}

// TrainingExport is the two-section document produced by TrainingService.Export.
type TrainingExport struct {
	Selectors   []SelectorPattern `json:"selectors"`
	UrlPatterns []UrlPattern      `json:"url_patterns"`
}
