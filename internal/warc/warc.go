// Package warc produces the archival artifact for one capture (spec.md
// §4.2). The preferred path shells out to wget for a full WARC + CDX pair;
// when wget is unavailable or fails, a minimal two-record WARC is
// synthesized directly; when even that cannot be produced, pre-captured
// HTML is written as a last-resort fallback. The fallback chain never
// returns an error to its caller — CaptureService treats archival as a
// best-effort emit stage.
package warc

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/md5"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
)

// Result reports what Capture actually produced.
type Result struct {
	Method   string // "external_binary", "minimal_internal", "html_fallback", "none"
	WARCPath string
	CDXPath  string
	HTMLPath string
	Error    string
}

// Config bounds the external binary invocation.
type Config struct {
	WgetPath string
	Timeout  time.Duration
}

// DefaultConfig mirrors the original implementation's wget-based default.
func DefaultConfig() Config {
	return Config{WgetPath: "wget", Timeout: 120 * time.Second}
}

// Archiver drives the WARC fallback chain for one output directory.
type Archiver struct {
	config Config
	logger arbor.ILogger
}

// New constructs an Archiver.
func New(config Config, logger arbor.ILogger) *Archiver {
	return &Archiver{config: config, logger: logger}
}

// Capture runs the fallback chain in order and never returns an error: a
// failed external binary falls through to the minimal synthesis, and a
// failed synthesis falls through to the HTML-only write when html is
// non-empty. Result.Method records which path actually produced output.
func (a *Archiver) Capture(ctx context.Context, url, outputDir string, html string) Result {
	if _, err := exec.LookPath(a.config.WgetPath); err == nil {
		if result, ok := a.captureWithWget(ctx, url, outputDir); ok {
			return result
		}
	} else {
		a.logger.Debug().Str("binary", a.config.WgetPath).Msg("external archiving binary not found, falling back")
	}

	if result, ok := a.synthesizeMinimal(url, outputDir); ok {
		return result
	}

	if html != "" {
		if result, ok := a.writeHTMLFallback(url, outputDir, html); ok {
			return result
		}
	}

	return Result{Method: "none", Error: "no archival method succeeded"}
}

func basename(url string) string {
	hash := md5.Sum([]byte(url))
	return fmt.Sprintf("capture-%s-%x", time.Now().UTC().Format("20060102150405"), hash[:6])
}

// captureWithWget shells out to wget with --warc-file and --warc-cdx,
// bounded by config.Timeout (spec.md §4.2 "invoke an external archiving
// binary with timeout").
func (a *Archiver) captureWithWget(ctx context.Context, url, outputDir string) (Result, bool) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		a.logger.Warn().Err(err).Msg("failed to create archive output directory")
		return Result{}, false
	}

	base := basename(url)
	warcBase := filepath.Join(outputDir, base)

	cmdCtx, cancel := context.WithTimeout(ctx, a.config.Timeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, a.config.WgetPath,
		"--warc-file", warcBase,
		"--warc-cdx",
		"--no-check-certificate",
		"--timeout", "30",
		"--tries", "2",
		"-q",
		"-P", filepath.Join(outputDir, "files"),
		url,
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		a.logger.Debug().Err(err).Str("stderr", stderr.String()).Msg("wget WARC capture failed")
		return Result{}, false
	}

	warcPath := warcBase + ".warc.gz"
	if _, err := os.Stat(warcPath); err != nil {
		a.logger.Debug().Str("path", warcPath).Msg("wget did not produce a WARC file")
		return Result{}, false
	}

	cdxPath := warcBase + ".cdx"
	if _, err := os.Stat(cdxPath); err != nil {
		cdxPath = ""
	}

	return Result{Method: "external_binary", WARCPath: warcPath, CDXPath: cdxPath}, true
}

// synthesizeMinimal writes a two-record (warcinfo + response) WARC/1.0
// stream, gzip-compressed, when the external binary path is unavailable.
func (a *Archiver) synthesizeMinimal(url, outputDir string) (Result, bool) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		a.logger.Warn().Err(err).Msg("failed to create archive output directory")
		return Result{}, false
	}

	path := filepath.Join(outputDir, basename(url)+".warc.gz")
	f, err := os.Create(path)
	if err != nil {
		a.logger.Warn().Err(err).Msg("failed to create minimal WARC file")
		return Result{}, false
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	defer gz.Close()

	now := time.Now().UTC().Format("2006-01-02T15:04:05Z")

	if err := writeWARCRecord(gz, warcinfoRecord(now)); err != nil {
		a.logger.Warn().Err(err).Msg("failed to write warcinfo record")
		return Result{}, false
	}
	if err := writeWARCRecord(gz, responseRecordHeaders(url, now)); err != nil {
		a.logger.Warn().Err(err).Msg("failed to write response record")
		return Result{}, false
	}

	return Result{Method: "minimal_internal", WARCPath: path}, true
}

func warcinfoRecord(date string) []byte {
	body := []byte("software: netwatch\r\nformat: WARC file version 1.0\r\n")
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "WARC/1.0\r\n")
	fmt.Fprintf(&buf, "WARC-Type: warcinfo\r\n")
	fmt.Fprintf(&buf, "WARC-Date: %s\r\n", date)
	fmt.Fprintf(&buf, "WARC-Record-ID: <urn:uuid:%s>\r\n", uuid.NewString())
	fmt.Fprintf(&buf, "Content-Type: application/warc-fields\r\n")
	fmt.Fprintf(&buf, "Content-Length: %d\r\n\r\n", len(body))
	buf.Write(body)
	buf.WriteString("\r\n\r\n")
	return buf.Bytes()
}

// responseRecordHeaders writes a response record whose payload is a minimal
// placeholder body; CaptureService already persists the full HTML
// separately, so this record exists to make the WARC self-describing
// rather than to duplicate the page content.
func responseRecordHeaders(url, date string) []byte {
	body := []byte("HTTP/1.1 200 OK\r\nContent-Type: text/html\r\n\r\n<!-- archived by netwatch -->")
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "WARC/1.0\r\n")
	fmt.Fprintf(&buf, "WARC-Type: response\r\n")
	fmt.Fprintf(&buf, "WARC-Target-URI: %s\r\n", url)
	fmt.Fprintf(&buf, "WARC-Date: %s\r\n", date)
	fmt.Fprintf(&buf, "WARC-Record-ID: <urn:uuid:%s>\r\n", uuid.NewString())
	fmt.Fprintf(&buf, "Content-Type: application/http; msgtype=response\r\n")
	fmt.Fprintf(&buf, "Content-Length: %d\r\n\r\n", len(body))
	buf.Write(body)
	buf.WriteString("\r\n\r\n")
	return buf.Bytes()
}

func writeWARCRecord(w io.Writer, record []byte) error {
	_, err := w.Write(record)
	return err
}

// writeHTMLFallback writes pre-captured HTML directly when no WARC could be
// produced (spec.md §4.2's final fallback rung).
func (a *Archiver) writeHTMLFallback(url, outputDir, html string) (Result, bool) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		a.logger.Warn().Err(err).Msg("failed to create archive output directory")
		return Result{}, false
	}

	path := filepath.Join(outputDir, basename(url)+".html")
	if err := os.WriteFile(path, []byte(html), 0644); err != nil {
		a.logger.Warn().Err(err).Msg("failed to write HTML fallback")
		return Result{}, false
	}

	return Result{Method: "html_fallback", HTMLPath: path, Error: "WARC capture failed, wrote HTML only"}, true
}
