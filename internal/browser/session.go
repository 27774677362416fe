package browser

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/go-pdf/fpdf"
	"github.com/ternarybob/arbor"
)

// Session drives one browser tab through the navigate/evaluate/content/
// title/query_selector(_all)/screenshot/pdf/add_cookies/add_init_script/
// keyboard.press contract spec.md §1 names as the out-of-scope browser
// automation runtime collaborator. CaptureService owns exactly one Session
// per capture and calls Close when finished.
type Session struct {
	ctx       context.Context
	cancel    context.CancelFunc
	userAgent string
	logger    arbor.ILogger

	mu          sync.Mutex
	lastURL     string
	lastStatus  int
	lastHeaders map[string]string
}

func newSession(ctx context.Context, cancel context.CancelFunc, userAgent string, logger arbor.ILogger) *Session {
	return &Session{ctx: ctx, cancel: cancel, userAgent: userAgent, logger: logger}
}

// Close releases the tab. The underlying allocator process stays pooled.
func (s *Session) Close() {
	s.cancel()
}

// Navigate loads url and applies the session's user-agent override before
// the request, emulating the teacher's per-request UA rotation. The main
// frame's HTTP status and response headers are captured for the Validator
// and are retrievable afterward via NavigationStatus.
func (s *Session) Navigate(ctx context.Context, url string) error {
	runCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	_ = ctx

	s.mu.Lock()
	s.lastURL = url
	s.lastStatus = 0
	s.lastHeaders = nil
	s.mu.Unlock()

	chromedp.ListenTarget(runCtx, func(ev interface{}) {
		resp, ok := ev.(*network.EventResponseReceived)
		if !ok || resp.Response == nil || resp.Type != network.ResourceTypeDocument {
			return
		}

		headers := make(map[string]string, len(resp.Response.Headers))
		for k, v := range resp.Response.Headers {
			if str, ok := v.(string); ok {
				headers[k] = str
			}
		}

		s.mu.Lock()
		s.lastStatus = int(resp.Response.Status)
		s.lastHeaders = headers
		s.mu.Unlock()
	})

	err := chromedp.Run(runCtx,
		emulation.SetUserAgentOverride(s.userAgent),
		network.Enable(),
		chromedp.Navigate(url),
	)
	if err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

// NavigationStatus returns the HTTP status and response headers captured
// from the most recent Navigate call's main-frame document response. Status
// is 0 if no document response was observed (e.g. navigation failed before
// a response arrived).
func (s *Session) NavigationStatus() (int, map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastStatus, s.lastHeaders
}

// WaitVisible waits until selector is present and visible (spec.md §4.2
// wait strategies resolve to this on top of chromedp's default load-event
// wait). The wait runs on the session's own browser context; the ctx
// argument is not consulted.
func (s *Session) WaitVisible(ctx context.Context, selector string) error {
	if err := chromedp.Run(s.ctx, chromedp.WaitVisible(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("wait visible %s: %w", selector, err)
	}
	return nil
}

// Evaluate runs js and decodes the result into out.
func (s *Session) Evaluate(ctx context.Context, js string, out interface{}) error {
	if err := chromedp.Run(s.ctx, chromedp.Evaluate(js, out)); err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}
	return nil
}

// Content returns the fully rendered document's outer HTML.
func (s *Session) Content(ctx context.Context) (string, error) {
	var html string
	if err := chromedp.Run(s.ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("content: %w", err)
	}
	return html, nil
}

// Title returns document.title.
func (s *Session) Title(ctx context.Context) (string, error) {
	var title string
	if err := chromedp.Run(s.ctx, chromedp.Title(&title)); err != nil {
		return "", fmt.Errorf("title: %w", err)
	}
	return title, nil
}

// QuerySelector reports whether selector matches at least one node.
func (s *Session) QuerySelector(ctx context.Context, selector string) (bool, error) {
	var nodes []*cdp.Node
	if err := chromedp.Run(s.ctx, chromedp.Nodes(selector, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0))); err != nil {
		return false, fmt.Errorf("query selector %s: %w", selector, err)
	}
	return len(nodes) > 0, nil
}

// QuerySelectorAll returns the outer HTML of every node matching selector.
func (s *Session) QuerySelectorAll(ctx context.Context, selector string) ([]string, error) {
	var outerHTMLs []string
	if err := chromedp.Run(s.ctx, chromedp.EvaluateAsDevTools(
		fmt.Sprintf(`Array.from(document.querySelectorAll(%q)).map(n => n.outerHTML)`, selector),
		&outerHTMLs,
	)); err != nil {
		return nil, fmt.Errorf("query selector all %s: %w", selector, err)
	}
	return outerHTMLs, nil
}

// Click clicks the first node matching selector.
func (s *Session) Click(ctx context.Context, selector string) error {
	if err := chromedp.Run(s.ctx, chromedp.Click(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("click %s: %w", selector, err)
	}
	return nil
}

// Scroll scrolls the window by (x, y) pixels.
func (s *Session) Scroll(ctx context.Context, x, y int) error {
	js := fmt.Sprintf(`window.scrollBy(%d, %d)`, x, y)
	var discard string
	if err := chromedp.Run(s.ctx, chromedp.Evaluate(js, &discard)); err != nil {
		return fmt.Errorf("scroll: %w", err)
	}
	return nil
}

// Screenshot captures a full-page PNG.
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := chromedp.Run(s.ctx, chromedp.FullScreenshot(&buf, 90)); err != nil {
		return nil, fmt.Errorf("screenshot: %w", err)
	}
	return buf, nil
}

// PDF renders the current page to a PDF via the Page.printToPDF CDP call.
// headless=shell targets don't always expose the Page.printToPDF domain; when
// the native call fails, renderFallbackPDF produces a minimal text-only PDF
// from the page's title and content instead of losing the artifact.
func (s *Session) PDF(ctx context.Context) ([]byte, error) {
	var buf []byte
	err := chromedp.Run(s.ctx, chromedp.ActionFunc(func(pctx context.Context) error {
		data, _, err := page.PrintToPDF().WithPrintBackground(true).Do(pctx)
		if err != nil {
			return err
		}
		buf = data
		return nil
	}))
	if err == nil {
		return buf, nil
	}

	title, _ := s.Title(ctx)
	html, contentErr := s.Content(ctx)
	if contentErr != nil {
		return nil, fmt.Errorf("pdf: %w (fallback content also failed: %v)", err, contentErr)
	}

	fallback, fbErr := renderFallbackPDF(title, html)
	if fbErr != nil {
		return nil, fmt.Errorf("pdf: %w (fallback render failed: %v)", err, fbErr)
	}
	return fallback, nil
}

var tagStripper = regexp.MustCompile(`(?s)<[^>]*>`)

// renderFallbackPDF builds a minimal single-column text PDF from html's
// stripped-tag content, for browser targets where Page.printToPDF is
// unavailable.
func renderFallbackPDF(title, html string) ([]byte, error) {
	text := strings.TrimSpace(tagStripper.ReplaceAllString(html, " "))
	text = strings.Join(strings.Fields(text), " ")

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Arial", "B", 14)
	if title == "" {
		title = "Untitled"
	}
	pdf.MultiCell(0, 8, title, "", "L", false)
	pdf.Ln(4)

	pdf.SetFont("Arial", "", 10)
	const chunkSize = 4000
	for len(text) > 0 {
		n := chunkSize
		if n > len(text) {
			n = len(text)
		}
		pdf.MultiCell(0, 5, text[:n], "", "L", false)
		text = text[n:]
	}

	var out bytes.Buffer
	if err := pdf.Output(&out); err != nil {
		return nil, fmt.Errorf("render fallback pdf: %w", err)
	}
	return out.Bytes(), nil
}

// Cookie mirrors the subset of network.CookieParam a capture needs to set.
type Cookie struct {
	Name   string
	Value  string
	Domain string
	Path   string
}

// AddCookies injects cookies before navigation (spec.md §4.2 per-domain
// cookie priming for sites that gate content on a consent cookie).
func (s *Session) AddCookies(ctx context.Context, cookies []Cookie) error {
	params := make([]*network.CookieParam, 0, len(cookies))
	for _, c := range cookies {
		params = append(params, &network.CookieParam{
			Name: c.Name, Value: c.Value, Domain: c.Domain, Path: c.Path,
		})
	}
	if err := chromedp.Run(s.ctx, network.SetCookies(params)); err != nil {
		return fmt.Errorf("add cookies: %w", err)
	}
	return nil
}

// AddInitScript registers script to run on every subsequent document before
// any page script, via Page.addScriptToEvaluateOnNewDocument.
func (s *Session) AddInitScript(ctx context.Context, script string) error {
	if err := chromedp.Run(s.ctx, page.AddScriptToEvaluateOnNewDocument(script)); err != nil {
		return fmt.Errorf("add init script: %w", err)
	}
	return nil
}

// KeyboardPress dispatches a single key press, used by the overlay-dismissal
// capture behavior to press Escape (spec.md §4.3).
func (s *Session) KeyboardPress(ctx context.Context, key string) error {
	if err := chromedp.Run(s.ctx, chromedp.KeyEvent(key)); err != nil {
		return fmt.Errorf("keyboard press %s: %w", key, err)
	}
	return nil
}
