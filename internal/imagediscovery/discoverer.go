// Package imagediscovery finds every image reference a captured page
// exposes — Open Graph/Twitter/JSON-LD metadata, <img> tags, srcset/lazy
// attributes, and CSS background-image declarations — ranks them by
// models.ImageSourcePriority, and deduplicates to one WebSourceImage per
// distinct picture (spec.md §4.7).
package imagediscovery

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/netwatch/internal/models"
)

// Discoverer extracts ranked image candidates from rendered HTML, in the
// goquery traversal idiom the teacher uses for HTML scraping.
type Discoverer struct {
	logger arbor.ILogger
}

// NewDiscoverer constructs a Discoverer.
func NewDiscoverer(logger arbor.ILogger) *Discoverer {
	return &Discoverer{logger: logger}
}

// candidate is a pre-dedup image reference tagged with its source kind.
type candidate struct {
	originalURL string
	kind        models.ImageSourceKind
	width       int
	height      int
	alt         string
}

// Discover parses html (resolving relative URLs against pageURL) and
// returns one WebSourceImage per distinct normalized URL, keeping whichever
// candidate has the highest ImageSourcePriority on collision (spec.md
// §4.7's "two dedup passes: exact URL, then normalized URL keeping highest
// priority").
func (d *Discoverer) Discover(html, pageURL string) ([]models.WebSourceImage, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html for image discovery: %w", err)
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		d.logger.Warn().Err(err).Str("page_url", pageURL).Msg("failed to parse page URL for image resolution")
		base = nil
	}

	var candidates []candidate
	candidates = append(candidates, d.openGraphCandidates(doc, base)...)
	candidates = append(candidates, d.imgTagCandidates(doc, base)...)
	candidates = append(candidates, d.srcsetAndLazyCandidates(doc, base)...)
	candidates = append(candidates, d.cssBackgroundCandidates(doc, base)...)

	images := dedupeExactURL(candidates)
	images = dedupeNormalizedURL(images)

	d.logger.Debug().
		Str("page_url", pageURL).
		Int("candidates", len(candidates)).
		Int("deduped", len(images)).
		Msg("image discovery completed")

	return images, nil
}

// openGraphCandidates covers og:image (primary), og:image:* siblings,
// twitter:image, and JSON-LD "image" fields (all ranked as auxiliary
// except the first og:image, which is primary).
func (d *Discoverer) openGraphCandidates(doc *goquery.Document, base *url.URL) []candidate {
	var out []candidate
	first := true

	doc.Find(`meta[property="og:image"], meta[property="og:image:url"]`).Each(func(_ int, s *goquery.Selection) {
		content, ok := s.Attr("content")
		if !ok || content == "" {
			return
		}
		kind := models.ImageSourceOpenGraphAux
		if first {
			kind = models.ImageSourceOpenGraphPrimary
			first = false
		}
		if resolved := resolveURL(content, base); resolved != "" {
			out = append(out, candidate{originalURL: resolved, kind: kind})
		}
	})

	doc.Find(`meta[name="twitter:image"], meta[name="twitter:image:src"]`).Each(func(_ int, s *goquery.Selection) {
		content, ok := s.Attr("content")
		if !ok || content == "" {
			return
		}
		if resolved := resolveURL(content, base); resolved != "" {
			out = append(out, candidate{originalURL: resolved, kind: models.ImageSourceOpenGraphAux})
		}
	})

	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		for _, imgURL := range extractJSONLDImages(s.Text()) {
			if resolved := resolveURL(imgURL, base); resolved != "" {
				out = append(out, candidate{originalURL: resolved, kind: models.ImageSourceOpenGraphAux})
			}
		}
	})

	return out
}

// extractJSONLDImages walks a JSON-LD document's "image" field, which may
// be a string, an array of strings, or an array of ImageObject entries.
func extractJSONLDImages(raw string) []string {
	var doc interface{}
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil
	}
	return collectImageField(doc)
}

func collectImageField(node interface{}) []string {
	switch v := node.(type) {
	case map[string]interface{}:
		var out []string
		if img, ok := v["image"]; ok {
			out = append(out, collectImageValue(img)...)
		}
		for _, value := range v {
			if nested, ok := value.(map[string]interface{}); ok {
				out = append(out, collectImageField(nested)...)
			}
			if arr, ok := value.([]interface{}); ok {
				for _, item := range arr {
					out = append(out, collectImageField(item)...)
				}
			}
		}
		return out
	case []interface{}:
		var out []string
		for _, item := range v {
			out = append(out, collectImageField(item)...)
		}
		return out
	}
	return nil
}

func collectImageValue(v interface{}) []string {
	switch val := v.(type) {
	case string:
		return []string{val}
	case []interface{}:
		var out []string
		for _, item := range val {
			out = append(out, collectImageValue(item)...)
		}
		return out
	case map[string]interface{}:
		if url, ok := val["url"].(string); ok {
			return []string{url}
		}
	}
	return nil
}

// imgTagCandidates covers plain <img src="...">.
func (d *Discoverer) imgTagCandidates(doc *goquery.Document, base *url.URL) []candidate {
	var out []candidate
	doc.Find("img[src]").Each(func(_ int, s *goquery.Selection) {
		src, ok := s.Attr("src")
		if !ok || src == "" || strings.HasPrefix(src, "data:") {
			return
		}
		resolved := resolveURL(src, base)
		if resolved == "" {
			return
		}
		width, _ := strconv.Atoi(s.AttrOr("width", ""))
		height, _ := strconv.Atoi(s.AttrOr("height", ""))
		out = append(out, candidate{
			originalURL: resolved,
			kind:        models.ImageSourceImgTag,
			width:       width,
			height:      height,
			alt:         s.AttrOr("alt", ""),
		})
	})
	return out
}

// srcsetWidthPattern matches the "<url> <N>w" width descriptor form.
var srcsetWidthPattern = regexp.MustCompile(`^(\S+)\s+(\d+)w$`)

// srcsetAndLazyCandidates covers srcset/data-srcset and common lazy-load
// attributes (data-src, data-lazy-src), parsing srcset width descriptors
// into the candidate's width field (spec.md §4.7).
func (d *Discoverer) srcsetAndLazyCandidates(doc *goquery.Document, base *url.URL) []candidate {
	var out []candidate

	doc.Find("img[srcset], source[srcset], img[data-srcset]").Each(func(_ int, s *goquery.Selection) {
		srcset := s.AttrOr("srcset", s.AttrOr("data-srcset", ""))
		for _, entry := range strings.Split(srcset, ",") {
			entry = strings.TrimSpace(entry)
			if entry == "" {
				continue
			}
			width := 0
			target := entry
			if m := srcsetWidthPattern.FindStringSubmatch(entry); m != nil {
				target = m[1]
				width, _ = strconv.Atoi(m[2])
			} else if idx := strings.IndexByte(entry, ' '); idx > 0 {
				target = entry[:idx]
			}
			if strings.HasPrefix(target, "data:") {
				continue
			}
			if resolved := resolveURL(target, base); resolved != "" {
				out = append(out, candidate{originalURL: resolved, kind: models.ImageSourceLazyOrSrcset, width: width})
			}
		}
	})

	doc.Find("img[data-src], img[data-lazy-src], img[data-original]").Each(func(_ int, s *goquery.Selection) {
		for _, attr := range []string{"data-src", "data-lazy-src", "data-original"} {
			lazySrc, ok := s.Attr(attr)
			if !ok || lazySrc == "" || strings.HasPrefix(lazySrc, "data:") {
				continue
			}
			if resolved := resolveURL(lazySrc, base); resolved != "" {
				out = append(out, candidate{originalURL: resolved, kind: models.ImageSourceLazyOrSrcset})
			}
		}
	})

	return out
}

var cssBackgroundPattern = regexp.MustCompile(`background(?:-image)?:\s*url\(['"]?([^'")\s]+)['"]?\)`)

// cssBackgroundCandidates covers inline style="background-image:url(...)".
func (d *Discoverer) cssBackgroundCandidates(doc *goquery.Document, base *url.URL) []candidate {
	var out []candidate
	doc.Find("[style]").Each(func(_ int, s *goquery.Selection) {
		style, ok := s.Attr("style")
		if !ok {
			return
		}
		for _, m := range cssBackgroundPattern.FindAllStringSubmatch(style, -1) {
			imgURL := m[1]
			if strings.HasPrefix(imgURL, "data:") {
				continue
			}
			if resolved := resolveURL(imgURL, base); resolved != "" {
				out = append(out, candidate{originalURL: resolved, kind: models.ImageSourceCSSBackground})
			}
		}
	})
	return out
}

func resolveURL(raw string, base *url.URL) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if base == nil {
		if parsed, err := url.Parse(raw); err == nil && parsed.IsAbs() {
			return parsed.String()
		}
		return ""
	}
	if strings.HasPrefix(raw, "//") {
		return base.Scheme + ":" + raw
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}

// normalizeURL strips query strings and fragments so cache-busting
// parameters on the same picture collapse to one entry.
func normalizeURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	parsed.RawQuery = ""
	parsed.Fragment = ""
	return parsed.String()
}

// dedupeExactURL collapses byte-identical original URLs, keeping the
// highest-priority candidate.
func dedupeExactURL(candidates []candidate) []models.WebSourceImage {
	best := make(map[string]candidate)
	order := make([]string, 0, len(candidates))
	for _, c := range candidates {
		existing, seen := best[c.originalURL]
		if !seen {
			order = append(order, c.originalURL)
			best[c.originalURL] = c
			continue
		}
		if models.ImageSourcePriority[c.kind] > models.ImageSourcePriority[existing.kind] {
			best[c.originalURL] = mergeCandidate(existing, c)
		} else {
			best[c.originalURL] = mergeCandidate(c, existing)
		}
	}

	out := make([]models.WebSourceImage, 0, len(order))
	for _, u := range order {
		c := best[u]
		out = append(out, models.WebSourceImage{
			OriginalURL:   c.originalURL,
			NormalizedURL: normalizeURL(c.originalURL),
			Kind:          c.kind,
			Width:         c.width,
			Height:        c.height,
			Alt:           c.alt,
		})
	}
	return out
}

// mergeCandidate keeps winner's kind/priority but backfills width/height/alt
// from loser when winner lacks them (e.g. an OG image has no width but an
// img tag for the same URL does).
func mergeCandidate(winner, loser candidate) candidate {
	if winner.width == 0 {
		winner.width = loser.width
	}
	if winner.height == 0 {
		winner.height = loser.height
	}
	if winner.alt == "" {
		winner.alt = loser.alt
	}
	return winner
}

// dedupeNormalizedURL runs a second pass over exact-URL-deduped images,
// collapsing query-string variants of the same picture and keeping the
// highest-priority one, with width/height/alt backfilled as mergeCandidate does.
func dedupeNormalizedURL(images []models.WebSourceImage) []models.WebSourceImage {
	best := make(map[string]models.WebSourceImage)
	order := make([]string, 0, len(images))

	for _, img := range images {
		existing, seen := best[img.NormalizedURL]
		if !seen {
			order = append(order, img.NormalizedURL)
			best[img.NormalizedURL] = img
			continue
		}
		winner, loser := existing, img
		if models.ImageSourcePriority[img.Kind] > models.ImageSourcePriority[existing.Kind] {
			winner, loser = img, existing
		}
		if winner.Width == 0 {
			winner.Width = loser.Width
		}
		if winner.Height == 0 {
			winner.Height = loser.Height
		}
		if winner.Alt == "" {
			winner.Alt = loser.Alt
		}
		best[img.NormalizedURL] = winner
	}

	out := make([]models.WebSourceImage, 0, len(order))
	for _, n := range order {
		out = append(out, best[n])
	}
	return out
}
