package imagediscovery

import (
	"testing"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/netwatch/internal/models"
)

func TestDiscoverer_OpenGraphPrimaryWinsCollision(t *testing.T) {
	html := `
<html><head>
<meta property="og:image" content="https://example.com/hero.jpg?v=2">
</head><body>
<img src="https://example.com/hero.jpg" width="200" height="100" alt="hero">
</body></html>`

	d := NewDiscoverer(arbor.NewLogger())
	images, err := d.Discover(html, "https://example.com/article")
	if err != nil {
		t.Fatalf("discover: %v", err)
	}

	if len(images) != 1 {
		t.Fatalf("expected 1 deduped image, got %d: %+v", len(images), images)
	}
	img := images[0]
	if img.Kind != models.ImageSourceOpenGraphPrimary {
		t.Errorf("expected og:image to win priority collision, got kind=%s", img.Kind)
	}
	if img.Width != 200 || img.Height != 100 {
		t.Errorf("expected width/height backfilled from img tag, got %dx%d", img.Width, img.Height)
	}
}

func TestDiscoverer_SrcsetWidthDescriptor(t *testing.T) {
	html := `<img srcset="https://example.com/small.jpg 400w, https://example.com/large.jpg 1200w">`

	d := NewDiscoverer(arbor.NewLogger())
	images, err := d.Discover(html, "https://example.com/article")
	if err != nil {
		t.Fatalf("discover: %v", err)
	}

	if len(images) != 2 {
		t.Fatalf("expected 2 srcset candidates, got %d", len(images))
	}
	widths := map[string]int{}
	for _, img := range images {
		widths[img.OriginalURL] = img.Width
	}
	if widths["https://example.com/small.jpg"] != 400 {
		t.Errorf("expected small.jpg width=400, got %d", widths["https://example.com/small.jpg"])
	}
	if widths["https://example.com/large.jpg"] != 1200 {
		t.Errorf("expected large.jpg width=1200, got %d", widths["https://example.com/large.jpg"])
	}
}

func TestDiscoverer_CSSBackgroundImage(t *testing.T) {
	html := `<div style="background-image: url('/banner.png'); color: red;"></div>`

	d := NewDiscoverer(arbor.NewLogger())
	images, err := d.Discover(html, "https://example.com/page")
	if err != nil {
		t.Fatalf("discover: %v", err)
	}

	if len(images) != 1 {
		t.Fatalf("expected 1 image, got %d", len(images))
	}
	if images[0].Kind != models.ImageSourceCSSBackground {
		t.Errorf("expected css background kind, got %s", images[0].Kind)
	}
	if images[0].OriginalURL != "https://example.com/banner.png" {
		t.Errorf("expected resolved absolute URL, got %s", images[0].OriginalURL)
	}
}

func TestDiscoverer_NormalizedURLDedup(t *testing.T) {
	html := `
<img src="https://example.com/pic.jpg?cachebust=1">
<img src="https://example.com/pic.jpg?cachebust=2">`

	d := NewDiscoverer(arbor.NewLogger())
	images, err := d.Discover(html, "https://example.com/page")
	if err != nil {
		t.Fatalf("discover: %v", err)
	}

	if len(images) != 1 {
		t.Fatalf("expected cache-busted query variants to dedupe to 1, got %d", len(images))
	}
}

func TestDiscoverer_SkipsDataURLs(t *testing.T) {
	html := `<img src="data:image/png;base64,iVBORw0KGgo=">`

	d := NewDiscoverer(arbor.NewLogger())
	images, err := d.Discover(html, "https://example.com/page")
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if len(images) != 0 {
		t.Errorf("expected data: URLs to be skipped, got %d images", len(images))
	}
}

func TestDiscoverer_LazyLoadAttributes(t *testing.T) {
	html := `<img data-src="/lazy.jpg" class="lazyload">`

	d := NewDiscoverer(arbor.NewLogger())
	images, err := d.Discover(html, "https://example.com/page")
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if len(images) != 1 || images[0].Kind != models.ImageSourceLazyOrSrcset {
		t.Errorf("expected 1 lazy-load image, got %+v", images)
	}
}
