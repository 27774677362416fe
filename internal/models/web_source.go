package models

import "time"

// SourceStatus is the lifecycle stage of a captured WebSource.
type SourceStatus string

const (
	SourceInitializing SourceStatus = "initializing"
	SourceCapturing    SourceStatus = "capturing"
	SourceComplete     SourceStatus = "complete"
	SourceFailed       SourceStatus = "failed"
)

// ArchiveMethod records which path produced the WARC artifact, if any.
type ArchiveMethod string

const (
	ArchiveExternal  ArchiveMethod = "external_binary"
	ArchiveMinimal   ArchiveMethod = "minimal_internal"
	ArchiveHTMLOnly  ArchiveMethod = "html_fallback"
	ArchiveNone      ArchiveMethod = "none"
)

// WebSource is the persisted record of one capture.
type WebSource struct {
	SourceID      string        `json:"source_id"`
	URL           string        `json:"url"`
	Status        SourceStatus  `json:"status"`
	ArchiveMethod ArchiveMethod `json:"archive_method"`

	ScreenshotPath string `json:"screenshot_path,omitempty"`
	PDFPath        string `json:"pdf_path,omitempty"`
	HTMLPath       string `json:"html_path,omitempty"`
	MarkdownPath   string `json:"markdown_path,omitempty"`
	WARCPath       string `json:"warc_path,omitempty"`
	WACZPath       string `json:"wacz_path,omitempty"`

	Title          string         `json:"title,omitempty"`
	Description    string         `json:"description,omitempty"`
	OpenGraph      map[string]string `json:"open_graph,omitempty"`
	JSONLD         []string       `json:"json_ld,omitempty"`
	DublinCore     map[string]string `json:"dublin_core,omitempty"`

	WordCount  int `json:"word_count"`
	ImageCount int `json:"image_count"`
	VideoCount int `json:"video_count"`

	DurationMS int64 `json:"duration_ms"`
	Error      string `json:"error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ImageSourceKind names where an image reference was discovered, used to
// resolve priority when the same normalized URL appears more than once.
type ImageSourceKind string

const (
	ImageSourceOpenGraphPrimary ImageSourceKind = "og_image"
	ImageSourceOpenGraphAux     ImageSourceKind = "og_aux_twitter_jsonld"
	ImageSourceImgTag           ImageSourceKind = "img_src"
	ImageSourceLazyOrSrcset     ImageSourceKind = "srcset_or_lazy"
	ImageSourceCSSBackground    ImageSourceKind = "css_background"
)

// ImageSourcePriority ranks each kind; higher wins on normalized-URL collision.
var ImageSourcePriority = map[ImageSourceKind]int{
	ImageSourceOpenGraphPrimary: 5,
	ImageSourceOpenGraphAux:     4,
	ImageSourceImgTag:           3,
	ImageSourceLazyOrSrcset:     2,
	ImageSourceCSSBackground:    1,
}

// WebSourceImage is one discovered/enhanced image belonging to a WebSource.
type WebSourceImage struct {
	ImageID          string          `json:"image_id"`
	SourceID         string          `json:"source_id"`
	OriginalURL      string          `json:"original_url"`
	NormalizedURL    string          `json:"normalized_url"`
	EnhancedURL      string          `json:"enhanced_url,omitempty"`
	Kind             ImageSourceKind `json:"kind"`
	Width            int             `json:"width,omitempty"`
	Height           int             `json:"height,omitempty"`
	Alt              string          `json:"alt,omitempty"`
	Hash             string          `json:"hash,omitempty"`
	EnhancementMethod string         `json:"enhancement_method,omitempty"`
}
