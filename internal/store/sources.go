package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/netwatch/internal/models"
)

// ErrSourceNotFound is returned when a WebSource row does not exist.
var ErrSourceNotFound = errors.New("web source not found")

// SourceStore persists WebSource and WebSourceImage rows (spec.md §3).
type SourceStore struct {
	db *DB
}

// NewSourceStore wraps db for WebSource persistence.
func NewSourceStore(db *DB) *SourceStore {
	return &SourceStore{db: db}
}

// Create inserts a new WebSource in the initializing state (CaptureService's
// first transition, spec.md §4.2).
func (s *SourceStore) Create(ctx context.Context, sourceID, url string) error {
	now := nowISO()
	_, err := s.db.conn.ExecContext(ctx, `
		INSERT INTO web_sources (source_id, url, status, archive_method, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		sourceID, url, string(models.SourceInitializing), string(models.ArchiveNone), now, now,
	)
	if err != nil {
		return fmt.Errorf("create web source %s: %w", sourceID, err)
	}
	return nil
}

// Update persists the full WebSource row, e.g. at each state-machine stage.
func (s *SourceStore) Update(ctx context.Context, src *models.WebSource) error {
	openGraph, err := marshalMap(src.OpenGraph)
	if err != nil {
		return fmt.Errorf("marshal open_graph: %w", err)
	}
	jsonLD, err := json.Marshal(src.JSONLD)
	if err != nil {
		return fmt.Errorf("marshal json_ld: %w", err)
	}
	dublinCore, err := marshalMap(src.DublinCore)
	if err != nil {
		return fmt.Errorf("marshal dublin_core: %w", err)
	}

	_, err = s.db.conn.ExecContext(ctx, `
		UPDATE web_sources SET
			status = ?, archive_method = ?,
			screenshot_path = ?, pdf_path = ?, html_path = ?, markdown_path = ?, warc_path = ?, wacz_path = ?,
			title = ?, description = ?, open_graph = ?, json_ld = ?, dublin_core = ?,
			word_count = ?, image_count = ?, video_count = ?, duration_ms = ?, error = ?,
			updated_at = ?
		WHERE source_id = ?`,
		string(src.Status), string(src.ArchiveMethod),
		nullIfEmpty(src.ScreenshotPath), nullIfEmpty(src.PDFPath), nullIfEmpty(src.HTMLPath), nullIfEmpty(src.MarkdownPath), nullIfEmpty(src.WARCPath), nullIfEmpty(src.WACZPath),
		nullIfEmpty(src.Title), nullIfEmpty(src.Description), string(openGraph), string(jsonLD), string(dublinCore),
		src.WordCount, src.ImageCount, src.VideoCount, src.DurationMS, nullIfEmpty(src.Error),
		nowISO(), src.SourceID,
	)
	if err != nil {
		return fmt.Errorf("update web source %s: %w", src.SourceID, err)
	}
	return nil
}

// Get returns a WebSource row, or ErrSourceNotFound.
func (s *SourceStore) Get(ctx context.Context, sourceID string) (*models.WebSource, error) {
	row := s.db.conn.QueryRowContext(ctx, `
		SELECT source_id, url, status, archive_method, screenshot_path, pdf_path, html_path, markdown_path, warc_path, wacz_path,
		       title, description, open_graph, json_ld, dublin_core, word_count, image_count, video_count,
		       duration_ms, error, created_at, updated_at
		FROM web_sources WHERE source_id = ?`, sourceID)

	src, err := scanWebSource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSourceNotFound
	}
	return src, err
}

// AddImage inserts a WebSourceImage row.
func (s *SourceStore) AddImage(ctx context.Context, img *models.WebSourceImage) error {
	_, err := s.db.conn.ExecContext(ctx, `
		INSERT INTO web_source_images (image_id, source_id, original_url, normalized_url, enhanced_url, kind, width, height, alt, hash, enhancement_method)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		img.ImageID, img.SourceID, img.OriginalURL, img.NormalizedURL, nullIfEmpty(img.EnhancedURL), string(img.Kind),
		nullIfZero(img.Width), nullIfZero(img.Height), nullIfEmpty(img.Alt), nullIfEmpty(img.Hash), nullIfEmpty(img.EnhancementMethod),
	)
	if err != nil {
		return fmt.Errorf("add image %s to source %s: %w", img.ImageID, img.SourceID, err)
	}
	return nil
}

// ImagesForSource returns every image recorded for sourceID.
func (s *SourceStore) ImagesForSource(ctx context.Context, sourceID string) ([]models.WebSourceImage, error) {
	rows, err := s.db.conn.QueryContext(ctx, `
		SELECT image_id, source_id, original_url, normalized_url, enhanced_url, kind, width, height, alt, hash, enhancement_method
		FROM web_source_images WHERE source_id = ?`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("load images for source %s: %w", sourceID, err)
	}
	defer rows.Close()

	var out []models.WebSourceImage
	for rows.Next() {
		var img models.WebSourceImage
		var kind string
		var enhancedURL, alt, hash, method *string
		var width, height *int
		if err := rows.Scan(&img.ImageID, &img.SourceID, &img.OriginalURL, &img.NormalizedURL, &enhancedURL, &kind, &width, &height, &alt, &hash, &method); err != nil {
			return nil, err
		}
		img.Kind = models.ImageSourceKind(kind)
		if enhancedURL != nil {
			img.EnhancedURL = *enhancedURL
		}
		if width != nil {
			img.Width = *width
		}
		if height != nil {
			img.Height = *height
		}
		if alt != nil {
			img.Alt = *alt
		}
		if hash != nil {
			img.Hash = *hash
		}
		if method != nil {
			img.EnhancementMethod = *method
		}
		out = append(out, img)
	}
	return out, rows.Err()
}

func marshalMap(m map[string]string) ([]byte, error) {
	if m == nil {
		m = map[string]string{}
	}
	return json.Marshal(m)
}

func nullIfZero(n int) interface{} {
	if n == 0 {
		return nil
	}
	return n
}

func scanWebSource(row *sql.Row) (*models.WebSource, error) {
	var src models.WebSource
	var status, archiveMethod, createdAt, updatedAt string
	var screenshotPath, pdfPath, htmlPath, markdownPath, warcPath, waczPath, title, description, errStr *string
	var openGraphJSON, jsonLDJSON, dublinCoreJSON string

	err := row.Scan(&src.SourceID, &src.URL, &status, &archiveMethod, &screenshotPath, &pdfPath, &htmlPath, &markdownPath, &warcPath, &waczPath,
		&title, &description, &openGraphJSON, &jsonLDJSON, &dublinCoreJSON, &src.WordCount, &src.ImageCount, &src.VideoCount,
		&src.DurationMS, &errStr, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	src.Status = models.SourceStatus(status)
	src.ArchiveMethod = models.ArchiveMethod(archiveMethod)
	src.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	src.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)

	if screenshotPath != nil {
		src.ScreenshotPath = *screenshotPath
	}
	if pdfPath != nil {
		src.PDFPath = *pdfPath
	}
	if htmlPath != nil {
		src.HTMLPath = *htmlPath
	}
	if markdownPath != nil {
		src.MarkdownPath = *markdownPath
	}
	if warcPath != nil {
		src.WARCPath = *warcPath
	}
	if waczPath != nil {
		src.WACZPath = *waczPath
	}
	if title != nil {
		src.Title = *title
	}
	if description != nil {
		src.Description = *description
	}
	if errStr != nil {
		src.Error = *errStr
	}

	if openGraphJSON != "" {
		_ = json.Unmarshal([]byte(openGraphJSON), &src.OpenGraph)
	}
	if jsonLDJSON != "" {
		_ = json.Unmarshal([]byte(jsonLDJSON), &src.JSONLD)
	}
	if dublinCoreJSON != "" {
		_ = json.Unmarshal([]byte(dublinCoreJSON), &src.DublinCore)
	}

	return &src, nil
}
