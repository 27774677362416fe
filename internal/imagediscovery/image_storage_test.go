package imagediscovery

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/netwatch/internal/models"
)

func TestStorage_StoreAll_DownloadsAndDeduplicates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("fake-png-bytes"))
	}))
	defer server.Close()

	dir := t.TempDir()
	storage, err := NewStorage(StorageConfig{
		BaseDir:         dir,
		MaxImageSize:    1024,
		DownloadTimeout: 5e9,
		Concurrency:     2,
		UserAgent:       "test-agent",
	}, arbor.NewLogger())
	if err != nil {
		t.Fatalf("new storage: %v", err)
	}

	images := []models.WebSourceImage{
		{OriginalURL: server.URL + "/a.png", Kind: models.ImageSourceImgTag},
		{OriginalURL: server.URL + "/b.png", Kind: models.ImageSourceImgTag},
	}

	stored := storage.StoreAll(context.Background(), images, server.URL, nil)
	if len(stored) != 2 {
		t.Fatalf("expected 2 stored images, got %d", len(stored))
	}

	// Same content hashes to the same file, so the second download should
	// reuse the first's EnhancedURL path instead of writing a new file.
	if stored[0].Hash != stored[1].Hash {
		t.Errorf("expected identical content to hash the same, got %s vs %s", stored[0].Hash, stored[1].Hash)
	}
	if stored[0].EnhancedURL != stored[1].EnhancedURL {
		t.Errorf("expected deduplicated images to share a stored path")
	}

	path, ok := storage.StoredPath(stored[0].Hash)
	if !ok {
		t.Fatal("expected StoredPath to resolve cached hash")
	}
	if filepath.Dir(path) == "" {
		t.Error("expected a non-empty stored path")
	}
}

func TestStorage_StoreAll_SkipsNonImageResponses(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html></html>"))
	}))
	defer server.Close()

	config := DefaultStorageConfig()
	config.BaseDir = t.TempDir()
	storage, err := NewStorage(config, arbor.NewLogger())
	if err != nil {
		t.Fatalf("new storage: %v", err)
	}

	images := []models.WebSourceImage{{OriginalURL: server.URL + "/not-an-image", Kind: models.ImageSourceImgTag}}
	stored := storage.StoreAll(context.Background(), images, server.URL, nil)
	if len(stored) != 0 {
		t.Errorf("expected non-image response to be skipped, got %d stored", len(stored))
	}
}

func TestStorage_StoreAll_Empty(t *testing.T) {
	storage, err := NewStorage(StorageConfig{BaseDir: t.TempDir(), Concurrency: 1}, arbor.NewLogger())
	if err != nil {
		t.Fatalf("new storage: %v", err)
	}
	if got := storage.StoreAll(context.Background(), nil, "", nil); got != nil {
		t.Errorf("expected nil for empty input, got %v", got)
	}
}
