// Package behaviors drives the post-navigation interaction sequence that
// surfaces lazily-loaded content before capture: dismissing overlays,
// scrolling to trigger lazy loads, expanding collapsed sections, clicking
// through tabs and carousels, and exhausting infinite scroll (spec.md
// §4.3).
package behaviors

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"
)

// Session is the subset of browser.Session the engine drives against,
// narrowed to an interface so behaviors can be unit tested against a fake.
type Session interface {
	Evaluate(ctx context.Context, js string, out interface{}) error
	Click(ctx context.Context, selector string) error
	Scroll(ctx context.Context, x, y int) error
	QuerySelector(ctx context.Context, selector string) (bool, error)
	QuerySelectorAll(ctx context.Context, selector string) ([]string, error)
	KeyboardPress(ctx context.Context, key string) error
}

// Config bounds the engine's deadlines and iteration counts.
type Config struct {
	PerBehaviorDeadline  time.Duration
	TotalDeadline        time.Duration
	MaxScrollAttempts    int
	MaxCarouselAdvances  int
	MaxInfiniteScrollPages int
}

// DefaultConfig mirrors spec.md §4.3's stated defaults.
func DefaultConfig() Config {
	return Config{
		PerBehaviorDeadline:    30 * time.Second,
		TotalDeadline:          120 * time.Second,
		MaxScrollAttempts:      20,
		MaxCarouselAdvances:    5,
		MaxInfiniteScrollPages: 10,
	}
}

// Stats counts what each sub-behavior actually did.
type Stats struct {
	OverlaysDismissed   int           `json:"overlays_dismissed"`
	ScrollSteps         int           `json:"scroll_steps"`
	SectionsExpanded    int           `json:"sections_expanded"`
	TabsClicked         int           `json:"tabs_clicked"`
	CarouselAdvances    int           `json:"carousel_advances"`
	CommentsExpanded    int           `json:"comments_expanded"`
	InfiniteScrollPages int           `json:"infinite_scroll_pages"`
	DurationMS          int64         `json:"duration_ms"`
	Skipped             []string      `json:"skipped,omitempty"`
}

// overlaySelectors are known cookie/consent/modal dismiss buttons, checked
// in order; the first several are common consent-management-platform IDs.
var overlaySelectors = []string{
	`#onetrust-accept-btn-handler`,
	`.cc-btn.cc-dismiss`,
	`button[aria-label="Close"]`,
	`button[aria-label="Dismiss"]`,
	`.modal-close`,
	`.cookie-consent button`,
	`[class*="cookie"] button[class*="accept"]`,
}

var expandSelectors = []string{
	`button:contains("Read more")`,
	`button:contains("Show more")`,
	`a:contains("Read more")`,
	`a:contains("Show more")`,
	`[aria-expanded="false"]`,
	`.expand, .expandable-trigger`,
}

var tabSelectors = []string{
	`[role="tab"]`,
	`.nav-link`,
	`.tab`,
}

var carouselNextSelectors = []string{
	`.carousel-next, .slick-next, .swiper-button-next`,
	`button[aria-label="Next"]`,
}

var commentExpandSelectors = []string{
	`[class*="comment"] button:contains("Load more")`,
	`[class*="comment"] button:contains("Show more")`,
	`[class*="comment"] a:contains("Load more")`,
}

// Engine runs the seven sub-behaviors in the fixed order spec.md §4.3
// mandates, enforcing a per-behavior deadline and an overall stage deadline.
type Engine struct {
	config Config
	logger arbor.ILogger
}

// New constructs an Engine.
func New(config Config, logger arbor.ILogger) *Engine {
	return &Engine{config: config, logger: logger}
}

// step is one of the seven named sub-behaviors.
type step struct {
	name string
	run  func(ctx context.Context, sess Session, stats *Stats) error
}

// Run executes every step in order within config.TotalDeadline, each bounded
// additionally by config.PerBehaviorDeadline. Exceeding either deadline
// abandons the current step and skips the rest, preserving counts captured
// so far (spec.md §4.3). Per-step errors are suppressed.
func (e *Engine) Run(ctx context.Context, sess Session) Stats {
	start := time.Now()
	stats := Stats{}

	totalCtx, totalCancel := context.WithTimeout(ctx, e.config.TotalDeadline)
	defer totalCancel()

	steps := []step{
		{"overlays", e.dismissOverlays},
		{"scroll-to-load", e.scrollToLoad},
		{"expand-content", e.expandContent},
		{"click-tabs", e.clickTabs},
		{"navigate-carousels", e.navigateCarousels},
		{"expand-comments", e.expandComments},
		{"infinite-scroll", e.infiniteScroll},
	}

	for _, s := range steps {
		if totalCtx.Err() != nil {
			stats.Skipped = append(stats.Skipped, s.name)
			continue
		}

		stepCtx, stepCancel := context.WithTimeout(totalCtx, e.config.PerBehaviorDeadline)
		err := s.run(stepCtx, sess, &stats)
		stepCancel()

		if err != nil {
			e.logger.Debug().Err(err).Str("behavior", s.name).Msg("behavior step failed, continuing")
		}
	}

	stats.DurationMS = time.Since(start).Milliseconds()
	return stats
}

// dismissOverlays clicks known cookie/consent/modal selectors, presses
// Escape, then removes any fixed/sticky element taller than half the
// viewport via JS.
func (e *Engine) dismissOverlays(ctx context.Context, sess Session, stats *Stats) error {
	for _, sel := range overlaySelectors {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		found, err := sess.QuerySelector(ctx, sel)
		if err != nil || !found {
			continue
		}
		if err := sess.Click(ctx, sel); err == nil {
			stats.OverlaysDismissed++
		}
	}

	_ = sess.KeyboardPress(ctx, "Escape")

	var removed int
	js := `(function() {
		var removed = 0;
		var vh = window.innerHeight;
		document.querySelectorAll('*').forEach(function(el) {
			var style = window.getComputedStyle(el);
			if ((style.position === 'fixed' || style.position === 'sticky') && el.offsetHeight > vh * 0.5) {
				el.remove();
				removed++;
			}
		});
		return removed;
	})()`
	if err := sess.Evaluate(ctx, js, &removed); err == nil {
		stats.OverlaysDismissed += removed
	}
	return nil
}

// scrollToLoad repeats scrollBy(stepPx) until scrollHeight stops growing and
// the viewport bottom reaches scrollHeight, then scrolls back to top.
func (e *Engine) scrollToLoad(ctx context.Context, sess Session, stats *Stats) error {
	const stepPx = 800
	var lastHeight int

	for attempt := 0; attempt < e.config.MaxScrollAttempts; attempt++ {
		if ctx.Err() != nil {
			break
		}

		var height int
		if err := sess.Evaluate(ctx, `document.body.scrollHeight`, &height); err != nil {
			return err
		}

		var scrollBottom int
		_ = sess.Evaluate(ctx, `window.scrollY + window.innerHeight`, &scrollBottom)

		if height == lastHeight && scrollBottom >= height {
			break
		}
		lastHeight = height

		if err := sess.Scroll(ctx, 0, stepPx); err != nil {
			return err
		}
		stats.ScrollSteps++
		time.Sleep(200 * time.Millisecond)
	}

	return sess.Scroll(ctx, 0, -lastHeight)
}

// expandContent opens every <details> element and clicks read-more/show-more
// triggers and aria-expanded=false elements.
func (e *Engine) expandContent(ctx context.Context, sess Session, stats *Stats) error {
	var opened int
	js := `(function() {
		var nodes = document.querySelectorAll('details:not([open])');
		nodes.forEach(function(d) { d.setAttribute('open', ''); });
		return nodes.length;
	})()`
	if err := sess.Evaluate(ctx, js, &opened); err == nil {
		stats.SectionsExpanded += opened
	}

	for _, sel := range expandSelectors {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		matches, err := sess.QuerySelectorAll(ctx, sel)
		if err != nil {
			continue
		}
		for range matches {
			if err := sess.Click(ctx, sel); err == nil {
				stats.SectionsExpanded++
			}
		}
	}
	return nil
}

// clickTabs clicks every visible tab-like element so its panel renders.
func (e *Engine) clickTabs(ctx context.Context, sess Session, stats *Stats) error {
	for _, sel := range tabSelectors {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		matches, err := sess.QuerySelectorAll(ctx, sel)
		if err != nil {
			continue
		}
		for range matches {
			if err := sess.Click(ctx, sel); err == nil {
				stats.TabsClicked++
			}
		}
	}
	return nil
}

// navigateCarousels clicks each carousel's "next" control up to
// MaxCarouselAdvances times.
func (e *Engine) navigateCarousels(ctx context.Context, sess Session, stats *Stats) error {
	for _, sel := range carouselNextSelectors {
		for i := 0; i < e.config.MaxCarouselAdvances; i++ {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			found, err := sess.QuerySelector(ctx, sel)
			if err != nil || !found {
				break
			}
			if err := sess.Click(ctx, sel); err != nil {
				break
			}
			stats.CarouselAdvances++
			time.Sleep(150 * time.Millisecond)
		}
	}
	return nil
}

// expandComments clicks "load more / show more" within any comment region.
func (e *Engine) expandComments(ctx context.Context, sess Session, stats *Stats) error {
	for _, sel := range commentExpandSelectors {
		for {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			found, err := sess.QuerySelector(ctx, sel)
			if err != nil || !found {
				break
			}
			if err := sess.Click(ctx, sel); err != nil {
				break
			}
			stats.CommentsExpanded++
			time.Sleep(150 * time.Millisecond)
		}
	}
	return nil
}

// infiniteScroll scrolls to the bottom repeatedly, waiting 1s between
// attempts, stopping when the DOM node count stops growing or
// MaxInfiniteScrollPages is reached.
func (e *Engine) infiniteScroll(ctx context.Context, sess Session, stats *Stats) error {
	var lastNodeCount int

	for page := 0; page < e.config.MaxInfiniteScrollPages; page++ {
		if ctx.Err() != nil {
			break
		}

		if err := sess.Scroll(ctx, 0, 1_000_000); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}

		var nodeCount int
		if err := sess.Evaluate(ctx, `document.getElementsByTagName('*').length`, &nodeCount); err != nil {
			return err
		}

		if nodeCount <= lastNodeCount {
			break
		}
		lastNodeCount = nodeCount
		stats.InfiniteScrollPages++
	}

	return nil
}
