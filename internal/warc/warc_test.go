package warc

import (
	"compress/gzip"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ternarybob/arbor"
)

func TestArchiver_SynthesizesMinimalWARCWhenWgetMissing(t *testing.T) {
	a := New(Config{WgetPath: "definitely-not-a-real-binary", Timeout: 0}, arbor.NewLogger())
	dir := t.TempDir()

	result := a.Capture(context.Background(), "https://example.com/page", dir, "<html>hi</html>")

	if result.Method != "minimal_internal" {
		t.Fatalf("expected minimal_internal method, got %+v", result)
	}
	if _, err := os.Stat(result.WARCPath); err != nil {
		t.Fatalf("expected WARC file to exist: %v", err)
	}

	f, err := os.Open(result.WARCPath)
	if err != nil {
		t.Fatalf("failed to open WARC file: %v", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		t.Fatalf("WARC file is not valid gzip: %v", err)
	}
	defer gz.Close()

	content, err := io.ReadAll(gz)
	if err != nil {
		t.Fatalf("failed to decompress WARC content: %v", err)
	}
	if !strings.Contains(string(content), "WARC-Type: warcinfo") {
		t.Error("expected a warcinfo record in the synthesized WARC")
	}
	if !strings.Contains(string(content), "WARC-Type: response") {
		t.Error("expected a response record in the synthesized WARC")
	}
}

func TestArchiver_HTMLFallbackWritesHTMLFile(t *testing.T) {
	// Point output at a path nested under a file, which cannot be MkdirAll'd,
	// forcing the synthesis step to fail so HTML fallback takes over is not
	// exercisable portably; instead verify the fallback directly produces
	// a usable .html file when invoked with a writable directory and no wget.
	a := New(Config{WgetPath: "definitely-not-a-real-binary", Timeout: 0}, arbor.NewLogger())
	dir := t.TempDir()

	result, ok := a.writeHTMLFallback("https://example.com", dir, "<html>fallback</html>")
	if !ok {
		t.Fatal("expected HTML fallback to succeed")
	}
	if result.Method != "html_fallback" {
		t.Errorf("expected html_fallback method, got %q", result.Method)
	}

	data, err := os.ReadFile(result.HTMLPath)
	if err != nil {
		t.Fatalf("failed to read fallback HTML: %v", err)
	}
	if string(data) != "<html>fallback</html>" {
		t.Errorf("unexpected fallback HTML content: %q", data)
	}
}

func TestArchiver_CaptureNeverErrors(t *testing.T) {
	a := New(Config{WgetPath: "definitely-not-a-real-binary", Timeout: 0}, arbor.NewLogger())
	dir := filepath.Join(t.TempDir(), "nested", "output")

	result := a.Capture(context.Background(), "https://example.com", dir, "")
	if result.Method == "" {
		t.Error("expected Capture to always report a method, even when empty-handed")
	}
}
