package capture

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// extractedMetadata is the raw scrape result METADATA_EXTRACT folds into
// the WebSource row (spec.md §3: "title, description, OG, JSON-LD, Dublin
// Core" plus word/image/video counts).
type extractedMetadata struct {
	Title       string
	Description string
	OpenGraph   map[string]string
	JSONLD      []string
	DublinCore  map[string]string
	WordCount   int
	ImageCount  int
	VideoCount  int
}

// extractMetadata walks the rendered document the same way
// imagediscovery.Discoverer does, pulling the page-level fields
// CaptureService's METADATA_EXTRACT state persists.
func extractMetadata(html string) (extractedMetadata, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return extractedMetadata{}, err
	}

	meta := extractedMetadata{
		OpenGraph:  map[string]string{},
		DublinCore: map[string]string{},
	}

	meta.Title = strings.TrimSpace(doc.Find("title").First().Text())
	if meta.Title == "" {
		if content, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok {
			meta.Title = strings.TrimSpace(content)
		}
	}

	if content, ok := doc.Find(`meta[name="description"]`).Attr("content"); ok {
		meta.Description = strings.TrimSpace(content)
	} else if content, ok := doc.Find(`meta[property="og:description"]`).Attr("content"); ok {
		meta.Description = strings.TrimSpace(content)
	}

	doc.Find(`meta[property^="og:"]`).Each(func(_ int, sel *goquery.Selection) {
		property, _ := sel.Attr("property")
		content, ok := sel.Attr("content")
		if !ok {
			return
		}
		key := strings.TrimPrefix(property, "og:")
		meta.OpenGraph[key] = content
	})

	doc.Find(`meta[name^="dc."], meta[name^="DC."]`).Each(func(_ int, sel *goquery.Selection) {
		name, _ := sel.Attr("name")
		content, ok := sel.Attr("content")
		if !ok {
			return
		}
		key := strings.ToLower(strings.TrimPrefix(strings.TrimPrefix(name, "dc."), "DC."))
		meta.DublinCore[key] = content
	})

	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, sel *goquery.Selection) {
		raw := strings.TrimSpace(sel.Text())
		if raw != "" {
			meta.JSONLD = append(meta.JSONLD, raw)
		}
	})

	bodyText := strings.TrimSpace(doc.Find("body").Text())
	if bodyText != "" {
		meta.WordCount = len(strings.Fields(bodyText))
	}

	meta.ImageCount = doc.Find("img").Length()
	meta.VideoCount = doc.Find("video, iframe[src*='youtube'], iframe[src*='vimeo']").Length()

	return meta, nil
}
