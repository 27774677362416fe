package learning

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/netwatch/internal/models"
	"github.com/ternarybob/netwatch/internal/store"
)

var (
	headlessOptions = []string{string(models.HeadlessShell), string(models.HeadlessNew), string(models.HeadlessVisible)}
	waitOptions     = []string{string(models.WaitNetworkIdle), string(models.WaitDOMContentLoaded), string(models.WaitLoad)}
	uaOptions       = []string{string(models.UserAgentChromeMac), string(models.UserAgentChromeWin), string(models.UserAgentFirefoxMac), string(models.UserAgentSafariMac)}
)

// betaSampler draws one sample from Beta(alpha, beta) via two independent
// Gamma draws — the standard construction used when a dedicated Beta
// sampler isn't in the standard library's math/rand surface.
func betaSampler(rng *rand.Rand, alpha, beta float64) float64 {
	x := gammaSample(rng, alpha)
	y := gammaSample(rng, beta)
	if x+y == 0 {
		return 0.5
	}
	return x / (x + y)
}

// gammaSample implements Marsaglia-Tsang for shape >= 1, with the standard
// boost transform for shape in (0, 1).
func gammaSample(rng *rand.Rand, shape float64) float64 {
	if shape < 1 {
		u := rng.Float64()
		return gammaSample(rng, shape+1) * math.Pow(u, 1/shape)
	}

	d := shape - 1.0/3.0
	c := 1.0 / math.Sqrt(9*d)

	for {
		var x, v float64
		for {
			x = rng.NormFloat64()
			v = 1 + c*x
			if v > 0 {
				break
			}
		}
		v = v * v * v
		u := rng.Float64()
		if u < 1-0.0331*x*x*x*x {
			return d * v
		}
		if math.Log(u) < 0.5*x*x+d*(1-v+math.Log(v)) {
			return d * v
		}
	}
}

// AxisInsight reports the best option on one arm axis (spec.md §4.5 Insights).
type AxisInsight struct {
	BestOption string  `json:"best_option"`
	SuccessRate float64 `json:"success_rate"`
	Attempts    int     `json:"attempts"`
}

// DomainInsights is DomainLearner's per-domain report.
type DomainInsights struct {
	Domain          string                 `json:"domain"`
	OverallSuccess  float64                `json:"overall_success_rate"`
	Axes            map[string]AxisInsight `json:"axes"`
	Advisory        string                 `json:"advisory,omitempty"`
}

// GlobalStats is DomainLearner's fleet-wide report.
type GlobalStats struct {
	DistinctDomains   int      `json:"distinct_domains"`
	TotalAttempts     int      `json:"total_attempts"`
	OverallSuccess    float64  `json:"overall_success_rate"`
	TopArms           []string `json:"top_arms"`
	StrugglingDomains []string `json:"struggling_domains"`
}

// DomainLearner is the Thompson-Sampling bandit over headless_mode ×
// wait_strategy × user_agent, one independent arm set per domain
// (spec.md §4.5).
type DomainLearner struct {
	learningStore *store.LearningStore
	logger        arbor.ILogger
	rng           *rand.Rand
}

// NewDomainLearner constructs a learner backed by learningStore. rng may be
// nil, in which case a source with the fixed seed 1 is used; tests pass a seeded
// *rand.Rand for determinism.
func NewDomainLearner(learningStore *store.LearningStore, logger arbor.ILogger, rng *rand.Rand) *DomainLearner {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &DomainLearner{learningStore: learningStore, logger: logger, rng: rng}
}

// Select draws one BrowserConfig by independently Thompson-sampling each
// axis, falling back to similarity-based cold-start transfer when domain
// has zero recorded arms.
func (l *DomainLearner) Select(ctx context.Context, domain string) (*models.BrowserConfig, error) {
	hasObservations, err := l.learningStore.HasObservations(ctx, domain)
	if err != nil {
		return nil, fmt.Errorf("check observations for %s: %w", domain, err)
	}
	if !hasObservations {
		if err := l.coldStart(ctx, domain); err != nil {
			l.logger.Warn().Err(err).Str("domain", domain).Msg("cold-start transfer failed, proceeding with uniform priors")
		}
	}

	headless, err := l.sampleAxis(ctx, domain, "headless", headlessOptions)
	if err != nil {
		return nil, err
	}
	wait, err := l.sampleAxis(ctx, domain, "wait", waitOptions)
	if err != nil {
		return nil, err
	}
	ua, err := l.sampleAxis(ctx, domain, "ua", uaOptions)
	if err != nil {
		return nil, err
	}

	return &models.BrowserConfig{
		HeadlessMode:   models.HeadlessMode(headless),
		WaitStrategy:   models.WaitStrategy(wait),
		UserAgent:      models.UserAgentProfile(ua),
		Viewport:       models.DefaultViewport,
		StealthEnabled: true,
	}, nil
}

// sampleAxis draws one Beta(success+1, failure+1) sample per candidate
// option on axis and returns the option with the maximum draw.
func (l *DomainLearner) sampleAxis(ctx context.Context, domain, axis string, options []string) (string, error) {
	arms, err := l.learningStore.ArmsForDomain(ctx, domain)
	if err != nil {
		return "", fmt.Errorf("load arms for %s: %w", domain, err)
	}

	counts := map[string][2]int{} // option -> (success, failure)
	for _, a := range arms {
		if !strings.HasPrefix(a.ConfigKey, axis+":") {
			continue
		}
		option := strings.TrimPrefix(a.ConfigKey, axis+":")
		counts[option] = [2]int{a.SuccessCount, a.FailureCount}
	}

	best := options[0]
	bestSample := -1.0
	for _, opt := range options {
		sf := counts[opt]
		sample := betaSampler(l.rng, float64(sf[0]+1), float64(sf[1]+1))
		if sample > bestSample {
			bestSample = sample
			best = opt
		}
	}
	return best, nil
}

// RecordOutcome upserts all three axis arms and appends a RequestOutcome
// audit row (spec.md §4.5 Recording, I6).
func (l *DomainLearner) RecordOutcome(ctx context.Context, domain string, cfg *models.BrowserConfig, success bool, responseCode *int, blockedBy string) error {
	axes := map[string]string{
		"headless": string(cfg.HeadlessMode),
		"wait":     string(cfg.WaitStrategy),
		"ua":       string(cfg.UserAgent),
	}
	for axis, option := range axes {
		configKey := models.ConfigKey(models.ArmAxis(axis), option)
		if err := l.learningStore.UpsertArm(ctx, domain, configKey, success); err != nil {
			return fmt.Errorf("upsert arm %s/%s: %w", domain, configKey, err)
		}
	}
	return l.learningStore.RecordOutcome(ctx, domain, cfg.ConfigHash(), success, responseCode, blockedBy)
}

// coldStart transfers halved arm counts from the highest-similarity
// domains (explicit mappings first, then shared-TLD peers), spec.md §4.5.
func (l *DomainLearner) coldStart(ctx context.Context, domain string) error {
	similar, err := l.learningStore.SimilarDomains(ctx, domain)
	if err != nil {
		return err
	}

	sources := topSimilarPeers(similar, domain, 5)
	if len(sources) == 0 {
		if tld := sharedTLD(domain); tld != "" {
			peers, err := l.learningStore.DomainsSharingTLD(ctx, domain, tld, 5)
			if err != nil {
				return err
			}
			sources = peers
		}
	}
	if len(sources) == 0 {
		return nil
	}

	for _, peer := range sources {
		arms, err := l.learningStore.ArmsForDomain(ctx, peer)
		if err != nil {
			return fmt.Errorf("load arms for peer %s: %w", peer, err)
		}
		for _, a := range arms {
			halfSuccess := a.SuccessCount / 2
			halfFailure := a.FailureCount / 2
			for i := 0; i < halfSuccess; i++ {
				if err := l.learningStore.UpsertArm(ctx, domain, a.ConfigKey, true); err != nil {
					return err
				}
			}
			for i := 0; i < halfFailure; i++ {
				if err := l.learningStore.UpsertArm(ctx, domain, a.ConfigKey, false); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// Insights reports, for domain, the overall success rate, the best option
// per axis with its rate and attempt count, and an advisory string
// (spec.md §4.5 Insights).
func (l *DomainLearner) Insights(ctx context.Context, domain string) (*DomainInsights, error) {
	arms, err := l.learningStore.ArmsForDomain(ctx, domain)
	if err != nil {
		return nil, fmt.Errorf("load arms for %s: %w", domain, err)
	}

	axes := map[string]AxisInsight{}
	var totalSuccess, totalAttempts int

	byAxis := map[string][]models.DomainArm{}
	for _, a := range arms {
		axis := strings.SplitN(a.ConfigKey, ":", 2)[0]
		byAxis[axis] = append(byAxis[axis], a)
		totalSuccess += a.SuccessCount
		totalAttempts += a.SuccessCount + a.FailureCount
	}

	for axis, axisArms := range byAxis {
		best := AxisInsight{}
		bestRate := -1.0
		for _, a := range axisArms {
			attempts := a.SuccessCount + a.FailureCount
			if attempts == 0 {
				continue
			}
			rate := float64(a.SuccessCount) / float64(attempts)
			if rate > bestRate {
				bestRate = rate
				best = AxisInsight{
					BestOption:  strings.TrimPrefix(a.ConfigKey, axis+":"),
					SuccessRate: rate,
					Attempts:    attempts,
				}
			}
		}
		axes[axis] = best
	}

	insights := &DomainInsights{Domain: domain, Axes: axes}
	if totalAttempts > 0 {
		insights.OverallSuccess = float64(totalSuccess) / float64(totalAttempts)
	}
	switch {
	case insights.OverallSuccess < 0.5 && totalAttempts > 0:
		insights.Advisory = "low success rate"
	case insights.OverallSuccess > 0.9:
		insights.Advisory = "high success rate"
	}

	return insights, nil
}

// GlobalStats reports fleet-wide bandit health: distinct domains, total
// attempts, overall success rate, top-5 arms by rate, and domains with
// >=5 attempts and <0.7 success rate (spec.md §4.5 Global stats).
func (l *DomainLearner) GlobalStats(ctx context.Context) (*GlobalStats, error) {
	arms, err := l.learningStore.AllArms(ctx)
	if err != nil {
		return nil, fmt.Errorf("load all arms: %w", err)
	}

	domains := map[string]struct{}{}
	domainAttempts := map[string]int{}
	domainSuccess := map[string]int{}
	var totalSuccess, totalAttempts int

	type armRate struct {
		label string
		rate  float64
	}
	var rates []armRate

	for _, a := range arms {
		domains[a.Domain] = struct{}{}
		attempts := a.SuccessCount + a.FailureCount
		domainAttempts[a.Domain] += attempts
		domainSuccess[a.Domain] += a.SuccessCount
		totalSuccess += a.SuccessCount
		totalAttempts += attempts
		if attempts > 0 {
			rates = append(rates, armRate{
				label: fmt.Sprintf("%s/%s", a.Domain, a.ConfigKey),
				rate:  float64(a.SuccessCount) / float64(attempts),
			})
		}
	}

	// Simple selection of the top-5 by rate; fleet-wide arm counts are
	// small enough that a full sort is not worth a heap here.
	for i := 0; i < len(rates); i++ {
		for j := i + 1; j < len(rates); j++ {
			if rates[j].rate > rates[i].rate {
				rates[i], rates[j] = rates[j], rates[i]
			}
		}
	}
	topN := 5
	if len(rates) < topN {
		topN = len(rates)
	}
	topArms := make([]string, 0, topN)
	for i := 0; i < topN; i++ {
		topArms = append(topArms, rates[i].label)
	}

	var struggling []string
	for domain, attempts := range domainAttempts {
		if attempts >= 5 {
			rate := float64(domainSuccess[domain]) / float64(attempts)
			if rate < 0.7 {
				struggling = append(struggling, domain)
			}
		}
	}

	stats := &GlobalStats{
		DistinctDomains:   len(domains),
		TotalAttempts:     totalAttempts,
		TopArms:           topArms,
		StrugglingDomains: struggling,
	}
	if totalAttempts > 0 {
		stats.OverallSuccess = float64(totalSuccess) / float64(totalAttempts)
	}
	return stats, nil
}

// sharedTLD returns the label after domain's final '.', or "" if domain has
// no dot (nothing to match peers on).
func sharedTLD(domain string) string {
	idx := strings.LastIndex(domain, ".")
	if idx < 0 || idx == len(domain)-1 {
		return ""
	}
	return domain[idx+1:]
}

func topSimilarPeers(similar []models.DomainSimilarity, domain string, limit int) []string {
	out := make([]string, 0, limit)
	for _, s := range similar {
		peer := s.DomainB
		if s.DomainB == domain {
			peer = s.DomainA
		}
		out = append(out, peer)
		if len(out) >= limit {
			break
		}
	}
	return out
}
