package models

// HeadlessMode selects how the browser process presents itself.
type HeadlessMode string

const (
	HeadlessShell   HeadlessMode = "shell"
	HeadlessNew     HeadlessMode = "new"
	HeadlessVisible HeadlessMode = "visible"
)

// WaitStrategy selects the navigation completion signal chromedp waits for.
type WaitStrategy string

const (
	WaitLoad              WaitStrategy = "load"
	WaitDOMContentLoaded  WaitStrategy = "domcontentloaded"
	WaitNetworkIdle       WaitStrategy = "networkidle"
	WaitCommit            WaitStrategy = "commit"
)

// UserAgentProfile names one of the four fixed user-agent arms.
type UserAgentProfile string

const (
	UserAgentChromeMac  UserAgentProfile = "chrome_mac"
	UserAgentChromeWin  UserAgentProfile = "chrome_win"
	UserAgentFirefoxMac UserAgentProfile = "firefox_mac"
	UserAgentSafariMac  UserAgentProfile = "safari_mac"
)

// UserAgentStrings maps each profile to the literal header value sent to the origin.
var UserAgentStrings = map[UserAgentProfile]string{
	UserAgentChromeMac:  "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	UserAgentChromeWin:  "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	UserAgentFirefoxMac: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:125.0) Gecko/20100101 Firefox/125.0",
	UserAgentSafariMac:  "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
}

// Viewport is the rendered page size chromedp emulates.
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// DefaultViewport is applied whenever a config omits one.
var DefaultViewport = Viewport{Width: 1366, Height: 900}

// BrowserConfig is a candidate browser-control configuration, the arm
// selected by DomainLearner and the knob CaptureService actually drives.
type BrowserConfig struct {
	ConfigID              string           `json:"config_id"`
	HeadlessMode          HeadlessMode     `json:"headless_mode" validate:"oneof=shell new visible"`
	WaitStrategy          WaitStrategy     `json:"wait_strategy" validate:"oneof=load domcontentloaded networkidle commit"`
	UserAgent             UserAgentProfile `json:"user_agent" validate:"oneof=chrome_mac chrome_win firefox_mac safari_mac"`
	Viewport              Viewport         `json:"viewport"`
	StealthEnabled        bool             `json:"stealth_enabled"`
	DisableAutomationFlag bool             `json:"disable_automation_flag"`
	TotalAttempts         int              `json:"total_attempts"`
	SuccessCount          int              `json:"success_count"`
}

// ConfigHash produces a short, stable identifier for the triple of arms this
// config represents; used as RequestOutcome.ConfigHash.
func (c BrowserConfig) ConfigHash() string {
	return string(c.HeadlessMode) + "|" + string(c.WaitStrategy) + "|" + string(c.UserAgent)
}
