// Package validator implements the bot-detection classifier: the
// header/body/status pattern matrix that turns one navigation result into
// a ValidationResult (spec.md §4.4).
package validator

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/netwatch/internal/models"
)

// cloudflareSentinels match Cloudflare's JS-challenge interstitial body text.
var cloudflareSentinels = []string{
	"just a moment",
	"checking your browser",
	"ddos protection by cloudflare",
	"cf-browser-verification",
	"enable javascript and cookies to continue",
}

// captchaSentinels match common CAPTCHA challenge pages.
var captchaSentinels = []string{
	"recaptcha",
	"hcaptcha",
	"verify you are human",
	"complete the security check",
	"press and hold",
}

// rateLimitSentinels match body text indicating a soft rate limit, as
// distinct from an HTTP 429 status.
var rateLimitSentinels = []string{
	"rate limit exceeded",
	"too many requests",
	"slow down",
	"you have made too many requests",
}

// loginWallSentinels match body text indicating the page requires
// authentication — reported but not treated as a block (spec.md §4.4 step 8).
var loginWallSentinels = []string{
	"please sign in to continue",
	"log in to view this content",
	"you must be logged in",
	"create an account to continue reading",
}

var metaRefreshPattern = regexp.MustCompile(`(?i)<meta[^>]+http-equiv=["']?refresh["']?`)
var domTagPattern = regexp.MustCompile(`<[a-zA-Z][^>]*>`)

// Input bundles what the Validator needs to classify one navigation.
type Input struct {
	HasResponse       bool
	FetchError        error
	HTTPStatus        int
	Headers           map[string]string // header name (any case) -> value
	Body              string
	BodyFetchError    error
	MinContentLength  int
	CustomBlockPatterns   []string
	CustomSuccessPatterns []string
}

// Validator classifies navigation results in the fixed decision order
// spec.md §4.4 specifies: status-based blocks dominate body-pattern blocks,
// and custom success patterns dominate custom block patterns (P7).
type Validator struct {
	logger arbor.ILogger
}

// New constructs a Validator.
func New(logger arbor.ILogger) *Validator {
	return &Validator{logger: logger}
}

// Validate runs the ten-step decision tree and returns the first matching result.
func (v *Validator) Validate(in Input) models.ValidationResult {
	if !in.HasResponse {
		return models.ValidationResult{Blocked: true, Reason: models.BlockReasonNavigationFailed}
	}

	if in.BodyFetchError != nil {
		return models.ValidationResult{Blocked: true, Reason: models.BlockReasonContentError,
			Details: in.BodyFetchError.Error()}
	}

	if result, matched := v.checkStatus(in); matched {
		return result
	}

	bodyLower := strings.ToLower(in.Body)

	if pattern, matched := matchAny(bodyLower, cloudflareSentinels); matched {
		return models.ValidationResult{Blocked: true, Reason: models.BlockReasonCloudflare, Pattern: pattern}
	}

	if pattern, matched := matchAny(bodyLower, captchaSentinels); matched {
		return models.ValidationResult{Blocked: true, Reason: models.BlockReasonCaptcha, Pattern: pattern}
	}

	if pattern, matched := matchAny(bodyLower, rateLimitSentinels); matched {
		return models.ValidationResult{Blocked: true, Reason: models.BlockReasonRateLimit, Pattern: pattern}
	}

	if pattern, matched := matchAny(bodyLower, in.CustomBlockPatterns); matched {
		if _, successMatched := matchAny(bodyLower, in.CustomSuccessPatterns); !successMatched {
			return models.ValidationResult{Blocked: true, Reason: models.BlockReasonCustomBlock, Pattern: pattern}
		}
	}

	if pattern, matched := matchAny(bodyLower, loginWallSentinels); matched {
		return models.ValidationResult{Blocked: false, Reason: models.BlockReasonLoginRequired, Pattern: pattern}
	}

	if len(in.Body) < in.MinContentLength && !isExpectedShortPage(in.Body) {
		return models.ValidationResult{Blocked: true, Reason: models.BlockReasonContentTooShort,
			Details: fmt.Sprintf("body length %d below minimum %d", len(in.Body), in.MinContentLength)}
	}

	return models.ValidationResult{Blocked: false}
}

// checkStatus applies step 3: status ∈ {403, 429, 503} blocks, augmented by
// service detection from CDN-specific headers.
func (v *Validator) checkStatus(in Input) (models.ValidationResult, bool) {
	var reason models.BlockReason
	switch in.HTTPStatus {
	case 403:
		reason = models.BlockReasonStatus403
	case 429:
		reason = models.BlockReasonStatus429
	case 503:
		reason = models.BlockReasonStatus503
	default:
		return models.ValidationResult{}, false
	}

	blockedBy := detectService(in.Headers)
	return models.ValidationResult{
		Blocked:    true,
		Reason:     reason,
		HTTPStatus: in.HTTPStatus,
		BlockedBy:  blockedBy,
	}, true
}

// detectService inspects CDN-identifying headers to attribute a block to a
// specific edge service (spec.md §4.4 step 3).
func detectService(headers map[string]string) string {
	var services []string

	if headerAny(headers, "x-amz-cf-id", "x-amz-cf-pop") {
		services = append(services, "cloudfront")
	}
	if headerAny(headers, "x-akamai-request-id") {
		services = append(services, "akamai")
	}

	return strings.Join(services, ",")
}

func headerAny(headers map[string]string, names ...string) bool {
	for _, name := range names {
		for k := range headers {
			if strings.EqualFold(k, name) {
				return true
			}
		}
	}
	return false
}

func matchAny(bodyLower string, patterns []string) (string, bool) {
	for _, p := range patterns {
		if p == "" {
			continue
		}
		if strings.Contains(bodyLower, strings.ToLower(p)) {
			return p, true
		}
	}
	return "", false
}

// isExpectedShortPage implements spec.md §4.4's expected-short-page
// exceptions so JSON endpoints and redirect pages never trip
// content_too_short (spec.md §9 "Validator false positives").
func isExpectedShortPage(body string) bool {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return false
	}

	if trimmed[0] == '{' || trimmed[0] == '[' {
		var js json.RawMessage
		if json.Unmarshal([]byte(trimmed), &js) == nil {
			return true
		}
	}

	if metaRefreshPattern.MatchString(body) {
		return true
	}

	if len(domTagPattern.FindAllString(body, 21)) <= 20 {
		return true
	}

	return false
}
