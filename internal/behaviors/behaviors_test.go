package behaviors

import (
	"context"
	"testing"
	"time"

	"github.com/ternarybob/arbor"
)

// fakeSession is a minimal in-memory stand-in for browser.Session used to
// unit test the behavior engine without a real browser.
type fakeSession struct {
	querySelectorResults map[string]bool
	querySelectorAllResults map[string][]string
	evaluateResults      map[string]interface{}
	clicks               []string
	scrolls              [][2]int
	keys                 []string
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		querySelectorResults:    map[string]bool{},
		querySelectorAllResults: map[string][]string{},
		evaluateResults:         map[string]interface{}{},
	}
}

func (f *fakeSession) Evaluate(ctx context.Context, js string, out interface{}) error {
	switch o := out.(type) {
	case *int:
		if v, ok := f.evaluateResults[js].(int); ok {
			*o = v
		}
	}
	return nil
}

func (f *fakeSession) Click(ctx context.Context, selector string) error {
	f.clicks = append(f.clicks, selector)
	return nil
}

func (f *fakeSession) Scroll(ctx context.Context, x, y int) error {
	f.scrolls = append(f.scrolls, [2]int{x, y})
	return nil
}

func (f *fakeSession) QuerySelector(ctx context.Context, selector string) (bool, error) {
	return f.querySelectorResults[selector], nil
}

func (f *fakeSession) QuerySelectorAll(ctx context.Context, selector string) ([]string, error) {
	return f.querySelectorAllResults[selector], nil
}

func (f *fakeSession) KeyboardPress(ctx context.Context, key string) error {
	f.keys = append(f.keys, key)
	return nil
}

func fastConfig() Config {
	return Config{
		PerBehaviorDeadline:    2 * time.Second,
		TotalDeadline:          5 * time.Second,
		MaxScrollAttempts:      3,
		MaxCarouselAdvances:    2,
		MaxInfiniteScrollPages: 2,
	}
}

func TestEngine_DismissesKnownOverlay(t *testing.T) {
	sess := newFakeSession()
	sess.querySelectorResults["#onetrust-accept-btn-handler"] = true

	e := New(fastConfig(), arbor.NewLogger())
	stats := e.Run(context.Background(), sess)

	if stats.OverlaysDismissed == 0 {
		t.Error("expected at least one overlay dismissed")
	}
	if len(sess.keys) == 0 || sess.keys[0] != "Escape" {
		t.Error("expected Escape key press during overlay dismissal")
	}
}

func TestEngine_ClicksTabs(t *testing.T) {
	sess := newFakeSession()
	sess.querySelectorAllResults[`[role="tab"]`] = []string{"tab1", "tab2"}

	e := New(fastConfig(), arbor.NewLogger())
	stats := e.Run(context.Background(), sess)

	if stats.TabsClicked != 2 {
		t.Errorf("expected 2 tabs clicked, got %d", stats.TabsClicked)
	}
}

func TestEngine_ScrollStopsWhenHeightStable(t *testing.T) {
	sess := newFakeSession()
	sess.evaluateResults[`document.body.scrollHeight`] = 1000
	sess.evaluateResults[`window.scrollY + window.innerHeight`] = 1000

	e := New(fastConfig(), arbor.NewLogger())
	stats := e.Run(context.Background(), sess)

	if stats.ScrollSteps != 1 {
		t.Errorf("expected a single scroll step before the stable height stops the loop, got %d", stats.ScrollSteps)
	}
}

func TestEngine_RespectsTotalDeadline(t *testing.T) {
	sess := newFakeSession()
	// A visible carousel control makes navigate-carousels sleep after its
	// first advance, so the stage outlasts the total deadline.
	sess.querySelectorResults[`.carousel-next, .slick-next, .swiper-button-next`] = true
	config := fastConfig()
	config.TotalDeadline = 1 * time.Millisecond

	e := New(config, arbor.NewLogger())
	stats := e.Run(context.Background(), sess)

	if len(stats.Skipped) == 0 {
		t.Error("expected remaining behaviors to be skipped when total deadline is exceeded")
	}
}

func TestEngine_CarouselAdvancesBounded(t *testing.T) {
	sess := newFakeSession()
	sess.querySelectorResults[`.carousel-next, .slick-next, .swiper-button-next`] = true

	config := fastConfig()
	config.MaxCarouselAdvances = 3
	e := New(config, arbor.NewLogger())
	stats := e.Run(context.Background(), sess)

	if stats.CarouselAdvances != 3 {
		t.Errorf("expected carousel advances capped at 3, got %d", stats.CarouselAdvances)
	}
}
