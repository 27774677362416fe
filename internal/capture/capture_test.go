package capture

import (
	"strings"
	"testing"
)

func TestHostOf_ExtractsHostname(t *testing.T) {
	host, err := hostOf("https://www.example.com:8443/path?x=1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if host != "www.example.com" {
		t.Errorf("host = %q, want www.example.com", host)
	}
}

func TestHostOf_RejectsURLWithoutHost(t *testing.T) {
	if _, err := hostOf("not-a-url"); err == nil {
		t.Error("expected error for url with no host")
	}
}

func TestOutputDirFor_IncludesHostAndTimestampAndHash(t *testing.T) {
	s := &Service{config: Config{OutputRoot: "/data/archive"}}

	dir := s.outputDirFor("example.com", "https://example.com/article")

	if !strings.HasPrefix(dir, "/data/archive/example.com/") {
		t.Errorf("outputDirFor = %q, want prefix /data/archive/example.com/", dir)
	}

	base := dir[strings.LastIndex(dir, "/")+1:]
	parts := strings.Split(base, "_")
	if len(parts) != 3 {
		t.Fatalf("expected <date>_<time>_<hash> basename, got %q", base)
	}
	if len(parts[2]) != 12 {
		t.Errorf("hash suffix = %q, want 12 hex chars", parts[2])
	}
}

func TestOutputDirFor_StableHashForSameURL(t *testing.T) {
	s := &Service{config: Config{OutputRoot: "/data/archive"}}

	dirA := s.outputDirFor("example.com", "https://example.com/article")
	dirB := s.outputDirFor("example.com", "https://example.com/article")

	hashA := dirA[strings.LastIndex(dirA, "_")+1:]
	hashB := dirB[strings.LastIndex(dirB, "_")+1:]
	if hashA != hashB {
		t.Errorf("hash suffix should be stable for the same URL: %q != %q", hashA, hashB)
	}
}

func TestWriteArtifact_CreatesFileUnderDir(t *testing.T) {
	dir := t.TempDir() + "/nested/output"

	path, err := writeArtifact(dir, "page.html", []byte("<html></html>"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasSuffix(path, "/nested/output/page.html") {
		t.Errorf("path = %q, want suffix /nested/output/page.html", path)
	}
}
