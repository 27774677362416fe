// -----------------------------------------------------------------------
// Image Storage Service
// Downloads and stores WebSourceImage candidates from Discoverer locally
// -----------------------------------------------------------------------

package imagediscovery

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/netwatch/internal/models"
)

// StorageConfig holds configuration for image storage.
type StorageConfig struct {
	// BaseDir is the base directory for storing images (e.g. archive_dir/<host>/.../images).
	BaseDir string

	// MaxImageSize is the maximum image size to download (default: 10MB).
	MaxImageSize int64

	// DownloadTimeout bounds each download.
	DownloadTimeout time.Duration

	// Concurrency bounds parallel downloads.
	Concurrency int

	// UserAgent is sent with every download request.
	UserAgent string
}

// DefaultStorageConfig returns sensible defaults.
func DefaultStorageConfig() StorageConfig {
	return StorageConfig{
		MaxImageSize:    10 * 1024 * 1024,
		DownloadTimeout: 30 * time.Second,
		Concurrency:     5,
		UserAgent:       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	}
}

// Storage downloads discovered images and stores them content-addressed,
// deduplicating by SHA256 so the same picture referenced from multiple
// candidates is only downloaded once.
type Storage struct {
	config StorageConfig
	logger arbor.ILogger
	client *http.Client

	hashCache   map[string]string // sha256 -> local path relative to BaseDir
	hashCacheMu sync.RWMutex
}

// NewStorage creates a storage engine rooted at config.BaseDir.
func NewStorage(config StorageConfig, logger arbor.ILogger) (*Storage, error) {
	if err := os.MkdirAll(config.BaseDir, 0755); err != nil {
		return nil, fmt.Errorf("create image directory: %w", err)
	}

	return &Storage{
		config:    config,
		logger:    logger,
		client:    &http.Client{Timeout: config.DownloadTimeout},
		hashCache: make(map[string]string),
	}, nil
}

// StoreAll downloads every candidate concurrently and returns the subset
// that downloaded successfully, each enriched with Hash and
// EnhancementMethod="downloaded" (spec.md §4.7).
func (s *Storage) StoreAll(ctx context.Context, images []models.WebSourceImage, referer string, cookies []*http.Cookie) []models.WebSourceImage {
	if len(images) == 0 {
		return nil
	}

	baseURL, _ := url.Parse(referer)

	results := make([]models.WebSourceImage, len(images))
	var wg sync.WaitGroup
	sem := make(chan struct{}, s.config.Concurrency)

	for i, img := range images {
		wg.Add(1)
		go func(idx int, image models.WebSourceImage) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[idx] = s.storeOne(ctx, image, baseURL, cookies)
		}(i, img)
	}
	wg.Wait()

	stored := make([]models.WebSourceImage, 0, len(results))
	for _, r := range results {
		if r.Hash != "" {
			stored = append(stored, r)
		}
	}
	return stored
}

func (s *Storage) storeOne(ctx context.Context, img models.WebSourceImage, baseURL *url.URL, cookies []*http.Cookie) models.WebSourceImage {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, img.OriginalURL, nil)
	if err != nil {
		s.logger.Debug().Err(err).Str("url", img.OriginalURL).Msg("failed to build image request")
		return img
	}

	req.Header.Set("User-Agent", s.config.UserAgent)
	if baseURL != nil {
		req.Header.Set("Referer", baseURL.String())
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Debug().Err(err).Str("url", img.OriginalURL).Msg("image download failed")
		return img
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		s.logger.Debug().Int("status", resp.StatusCode).Str("url", img.OriginalURL).Msg("image download non-200")
		return img
	}

	contentType := resp.Header.Get("Content-Type")
	if !isImageContentType(contentType) {
		s.logger.Debug().Str("content_type", contentType).Str("url", img.OriginalURL).Msg("response is not an image")
		return img
	}

	limitReader := io.LimitReader(resp.Body, s.config.MaxImageSize+1)
	data, err := io.ReadAll(limitReader)
	if err != nil {
		s.logger.Debug().Err(err).Str("url", img.OriginalURL).Msg("failed to read image body")
		return img
	}
	if int64(len(data)) > s.config.MaxImageSize {
		s.logger.Debug().Str("url", img.OriginalURL).Msg("image exceeds max size, skipped")
		return img
	}

	hash := sha256.Sum256(data)
	img.Hash = hex.EncodeToString(hash[:])
	img.EnhancementMethod = "downloaded"

	s.hashCacheMu.RLock()
	existingPath, exists := s.hashCache[img.Hash]
	s.hashCacheMu.RUnlock()
	if exists {
		img.EnhancedURL = existingPath
		return img
	}

	ext := extensionFromContentType(contentType)
	if ext == "" {
		ext = extensionFromURL(img.OriginalURL)
	}
	if ext == "" {
		ext = ".bin"
	}

	subDir := img.Hash[:2]
	localPath := filepath.Join(subDir, img.Hash+ext)
	fullPath := filepath.Join(s.config.BaseDir, localPath)

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		s.logger.Warn().Err(err).Str("path", fullPath).Msg("failed to create image storage directory")
		return img
	}
	if err := os.WriteFile(fullPath, data, 0644); err != nil {
		s.logger.Warn().Err(err).Str("path", fullPath).Msg("failed to write image file")
		return img
	}

	s.hashCacheMu.Lock()
	s.hashCache[img.Hash] = localPath
	s.hashCacheMu.Unlock()

	img.EnhancedURL = localPath
	s.logger.Debug().Str("url", img.OriginalURL).Str("path", localPath).Int("size", len(data)).Msg("image stored")
	return img
}

func isImageContentType(contentType string) bool {
	return strings.HasPrefix(strings.ToLower(contentType), "image/")
}

func extensionFromContentType(contentType string) string {
	contentType = strings.ToLower(strings.Split(contentType, ";")[0])
	switch contentType {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/svg+xml":
		return ".svg"
	case "image/bmp":
		return ".bmp"
	case "image/ico", "image/x-icon", "image/vnd.microsoft.icon":
		return ".ico"
	default:
		return ""
	}
}

func extensionFromURL(imageURL string) string {
	parsed, err := url.Parse(imageURL)
	if err != nil {
		return ""
	}
	ext := strings.ToLower(filepath.Ext(parsed.Path))
	switch ext {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp", ".svg", ".bmp", ".ico":
		return ext
	default:
		return ""
	}
}

// StoredPath returns the local path for a previously stored image by hash.
func (s *Storage) StoredPath(hash string) (string, bool) {
	s.hashCacheMu.RLock()
	defer s.hashCacheMu.RUnlock()
	localPath, exists := s.hashCache[hash]
	if !exists {
		return "", false
	}
	return filepath.Join(s.config.BaseDir, localPath), true
}

// CleanupOrphaned removes stored images whose hash isn't in referencedHashes.
func (s *Storage) CleanupOrphaned(referencedHashes map[string]bool) (int, error) {
	removed := 0
	err := filepath.Walk(s.config.BaseDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		filename := filepath.Base(path)
		hash := strings.TrimSuffix(filename, filepath.Ext(filename))
		if !referencedHashes[hash] {
			if err := os.Remove(path); err != nil {
				s.logger.Warn().Err(err).Str("path", path).Msg("failed to remove orphaned image")
			} else {
				removed++
			}
		}
		return nil
	})
	return removed, err
}
