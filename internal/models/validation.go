package models

// BlockReason is the closed set of reasons Validator can cite for blocking
// (or for a reported-but-non-blocking classification), per spec.md §4.4.
type BlockReason string

const (
	BlockReasonNone             BlockReason = ""
	BlockReasonNavigationFailed BlockReason = "navigation_failed"
	BlockReasonContentError     BlockReason = "content_error"
	BlockReasonStatus403        BlockReason = "status_403"
	BlockReasonStatus429        BlockReason = "status_429"
	BlockReasonStatus503        BlockReason = "status_503"
	BlockReasonCloudflare       BlockReason = "cloudflare"
	BlockReasonCaptcha          BlockReason = "captcha"
	BlockReasonRateLimit        BlockReason = "rate_limit"
	BlockReasonCustomBlock      BlockReason = "custom_block"
	BlockReasonLoginRequired    BlockReason = "login_required"
	BlockReasonContentTooShort  BlockReason = "content_too_short"
)

// ValidationResult is Validator's classification of one navigation result
// (spec.md §4.4). Reason is always set when Blocked is true; LoginRequired
// is the one case where Reason is set but Blocked is false.
type ValidationResult struct {
	Blocked    bool        `json:"blocked"`
	Reason     BlockReason `json:"reason,omitempty"`
	Pattern    string      `json:"pattern,omitempty"`
	Details    string      `json:"details,omitempty"`
	HTTPStatus int         `json:"http_status,omitempty"`
	BlockedBy  string      `json:"blocked_by,omitempty"`
}
