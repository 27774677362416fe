package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/netwatch/internal/models"
)

func setupSourceTestDB(t *testing.T) *SourceStore {
	t.Helper()
	dbPath := t.TempDir() + "/test.db"

	db, err := Open(arbor.NewLogger(), DefaultStoreConfig(dbPath))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewSourceStore(db)
}

func TestSourceStore_CreateAndGet(t *testing.T) {
	sourceStore := setupSourceTestDB(t)
	ctx := context.Background()

	require.NoError(t, sourceStore.Create(ctx, "src-1", "https://example.com"))

	src, err := sourceStore.Get(ctx, "src-1")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", src.URL)
	assert.Equal(t, models.SourceInitializing, src.Status)
	assert.Equal(t, models.ArchiveNone, src.ArchiveMethod)
}

func TestSourceStore_Get_NotFound(t *testing.T) {
	sourceStore := setupSourceTestDB(t)
	_, err := sourceStore.Get(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrSourceNotFound))
}

func TestSourceStore_Update_RoundTripsAllArtifactPaths(t *testing.T) {
	sourceStore := setupSourceTestDB(t)
	ctx := context.Background()
	require.NoError(t, sourceStore.Create(ctx, "src-1", "https://example.com"))

	src, err := sourceStore.Get(ctx, "src-1")
	require.NoError(t, err)

	src.Status = models.SourceComplete
	src.ArchiveMethod = models.ArchiveMinimal
	src.ScreenshotPath = "/out/screenshot.png"
	src.PDFPath = "/out/page.pdf"
	src.HTMLPath = "/out/page.html"
	src.MarkdownPath = "/out/page.md"
	src.WARCPath = "/out/archive.warc"
	src.Title = "Example Domain"
	src.OpenGraph = map[string]string{"og:title": "Example"}
	src.JSONLD = []string{`{"@type":"WebPage"}`}
	src.DublinCore = map[string]string{"dc:creator": "acme"}
	src.WordCount = 42
	src.ImageCount = 3
	src.VideoCount = 1
	src.DurationMS = 1234

	require.NoError(t, sourceStore.Update(ctx, src))

	reloaded, err := sourceStore.Get(ctx, "src-1")
	require.NoError(t, err)
	assert.Equal(t, models.SourceComplete, reloaded.Status)
	assert.Equal(t, models.ArchiveMinimal, reloaded.ArchiveMethod)
	assert.Equal(t, "/out/screenshot.png", reloaded.ScreenshotPath)
	assert.Equal(t, "/out/page.pdf", reloaded.PDFPath)
	assert.Equal(t, "/out/page.html", reloaded.HTMLPath)
	assert.Equal(t, "/out/page.md", reloaded.MarkdownPath, "markdown artifact path must round-trip like the other formats")
	assert.Equal(t, "/out/archive.warc", reloaded.WARCPath)
	assert.Equal(t, "Example Domain", reloaded.Title)
	assert.Equal(t, map[string]string{"og:title": "Example"}, reloaded.OpenGraph)
	assert.Equal(t, []string{`{"@type":"WebPage"}`}, reloaded.JSONLD)
	assert.Equal(t, 42, reloaded.WordCount)
	assert.Equal(t, int64(1234), reloaded.DurationMS)
}

func TestSourceStore_Update_ClearsErrorOnSuccess(t *testing.T) {
	sourceStore := setupSourceTestDB(t)
	ctx := context.Background()
	require.NoError(t, sourceStore.Create(ctx, "src-1", "https://example.com"))

	src, err := sourceStore.Get(ctx, "src-1")
	require.NoError(t, err)
	src.Status = models.SourceFailed
	src.Error = "Blocked: cloudflare challenge"
	require.NoError(t, sourceStore.Update(ctx, src))

	reloaded, err := sourceStore.Get(ctx, "src-1")
	require.NoError(t, err)
	assert.Equal(t, "Blocked: cloudflare challenge", reloaded.Error)
}

func TestSourceStore_AddImage(t *testing.T) {
	sourceStore := setupSourceTestDB(t)
	ctx := context.Background()
	require.NoError(t, sourceStore.Create(ctx, "src-1", "https://example.com"))

	img := &models.WebSourceImage{
		ImageID:       "img-1",
		SourceID:      "src-1",
		OriginalURL:   "https://example.com/a.png",
		NormalizedURL: "https://example.com/a.png",
		Kind:          models.ImageSourceOpenGraphPrimary,
		Width:         800,
		Height:        600,
	}
	require.NoError(t, sourceStore.AddImage(ctx, img))
}
