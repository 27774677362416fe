// Package capture implements CaptureService, the state machine that drives
// one browser tab through navigate → validate → behaviors → metadata
// extraction → multi-format emit (spec.md §4.2).
package capture

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	validatorpkg "github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/netwatch/internal/behaviors"
	"github.com/ternarybob/netwatch/internal/browser"
	"github.com/ternarybob/netwatch/internal/common"
	"github.com/ternarybob/netwatch/internal/imagediscovery"
	"github.com/ternarybob/netwatch/internal/learning"
	"github.com/ternarybob/netwatch/internal/models"
	"github.com/ternarybob/netwatch/internal/ratelimit"
	"github.com/ternarybob/netwatch/internal/retry"
	"github.com/ternarybob/netwatch/internal/store"
	"github.com/ternarybob/netwatch/internal/validator"
	"github.com/ternarybob/netwatch/internal/warc"
)

// Config bounds what artifacts CaptureService emits and where.
type Config struct {
	OutputRoot         string
	EnableScreenshot   bool
	EnablePDF          bool
	EnableHTML         bool
	EnableMarkdown     bool
	EnableWARC         bool
	EnableImages       bool
	MinContentLength   int
	NavigateTimeout    time.Duration
	CustomBlockPatterns   []string
	CustomSuccessPatterns []string
}

// DefaultConfig turns on every artifact format.
func DefaultConfig(outputRoot string) Config {
	return Config{
		OutputRoot:       outputRoot,
		EnableScreenshot: true,
		EnablePDF:        true,
		EnableHTML:       true,
		EnableMarkdown:   true,
		EnableWARC:       true,
		EnableImages:     true,
		MinContentLength: 200,
		NavigateTimeout:  30 * time.Second,
	}
}

// Service orchestrates one capture end-to-end, composing the browser pool,
// the domain learner, the validator, the behaviors engine, image discovery,
// and the WARC archiver (spec.md §2 data-flow diagram).
type Service struct {
	config Config
	logger arbor.ILogger

	pool            *browser.Pool
	learner         *learning.DomainLearner
	validator       *validator.Validator
	behaviors       *behaviors.Engine
	discoverer      *imagediscovery.Discoverer
	images          *imagediscovery.Storage
	archiver        *warc.Archiver
	sources         *store.SourceStore
	retryPolicy     *retry.Policy
	rateLimiter     *ratelimit.RateLimiter
	structValidator *validatorpkg.Validate
}

// New constructs a Service.
func New(
	config Config,
	pool *browser.Pool,
	learner *learning.DomainLearner,
	v *validator.Validator,
	behaviorsEngine *behaviors.Engine,
	discoverer *imagediscovery.Discoverer,
	images *imagediscovery.Storage,
	archiver *warc.Archiver,
	sources *store.SourceStore,
	retryPolicy *retry.Policy,
	rateLimiter *ratelimit.RateLimiter,
	logger arbor.ILogger,
) *Service {
	return &Service{
		config:          config,
		logger:          logger,
		pool:            pool,
		learner:         learner,
		validator:       v,
		behaviors:       behaviorsEngine,
		discoverer:      discoverer,
		images:          images,
		archiver:        archiver,
		sources:         sources,
		retryPolicy:     retryPolicy,
		rateLimiter:     rateLimiter,
		structValidator: validatorpkg.New(),
	}
}

// Capture runs the full state machine for targetURL and persists the
// resulting WebSource row. The returned error is non-nil only for
// unrecoverable failures (stages before VALIDATING); a validator block is
// reported through WebSource.Status/Error, not through the return value,
// matching the state machine's "VALIDATING with blocked=true → FAILED"
// transition being a terminal-but-not-exceptional outcome.
func (s *Service) Capture(ctx context.Context, sourceID, targetURL string) (*models.WebSource, error) {
	start := time.Now()

	if _, isTestURL, warnings, err := common.ValidateCaptureURL(targetURL, s.logger); err != nil {
		return nil, fmt.Errorf("invalid capture target: %w", err)
	} else if isTestURL {
		for _, w := range warnings {
			s.logger.Warn().Str("source_id", sourceID).Msg(w)
		}
	}

	src := &models.WebSource{SourceID: sourceID, URL: targetURL, Status: models.SourceInitializing, ArchiveMethod: models.ArchiveNone}
	if err := s.sources.Create(ctx, sourceID, targetURL); err != nil {
		return nil, fmt.Errorf("create source record: %w", err)
	}

	domain, err := hostOf(targetURL)
	if err != nil {
		return s.fail(ctx, src, start, fmt.Errorf("parse url: %w", err))
	}

	if err := s.rateLimiter.Wait(ctx, targetURL); err != nil {
		return s.fail(ctx, src, start, fmt.Errorf("rate limit wait: %w", err))
	}

	cfg, err := s.learner.Select(ctx, domain)
	if err != nil {
		return s.fail(ctx, src, start, fmt.Errorf("select browser config: %w", err))
	}
	if err := s.structValidator.Struct(cfg); err != nil {
		return s.fail(ctx, src, start, fmt.Errorf("learner selected an invalid browser config: %w", err))
	}

	sess, navResult, navErr := s.navigate(ctx, cfg, targetURL)
	if sess != nil {
		defer sess.Close()
	}

	result := s.validator.Validate(navResult)

	success := navErr == nil && !result.Blocked
	s.recordOutcome(ctx, domain, cfg, success, navResult.HTTPStatus, result.BlockedBy)

	if navErr != nil {
		return s.fail(ctx, src, start, navErr)
	}

	if result.Blocked {
		src.Status = models.SourceFailed
		src.Error = fmt.Sprintf("Blocked: %s", result.Reason)
		src.DurationMS = time.Since(start).Milliseconds()
		_ = s.sources.Update(ctx, src)
		return src, nil
	}

	src.Status = models.SourceCapturing
	_ = s.sources.Update(ctx, src)

	s.runBehaviors(ctx, sess)

	html, _ := sess.Content(ctx)
	title, _ := sess.Title(ctx)

	meta, err := extractMetadata(html)
	if err == nil {
		if meta.Title != "" {
			src.Title = meta.Title
		} else {
			src.Title = title
		}
		src.Description = meta.Description
		src.OpenGraph = meta.OpenGraph
		src.JSONLD = meta.JSONLD
		src.DublinCore = meta.DublinCore
		src.WordCount = meta.WordCount
		src.ImageCount = meta.ImageCount
		src.VideoCount = meta.VideoCount
	} else {
		src.Title = title
	}

	outputDir := s.outputDirFor(domain, targetURL)

	s.emitArtifacts(ctx, sess, src, targetURL, html, outputDir)

	if s.config.EnableImages {
		// Image discovery/storage is a best-effort side artifact: run it off
		// the capture's critical path so a slow image fetch never delays the
		// source record being marked complete.
		common.SafeGoWithContext(context.Background(), s.logger, "discoverImages", func() {
			s.discoverImages(ctx, html, targetURL, sourceID)
		})
	}

	src.Status = models.SourceComplete
	src.DurationMS = time.Since(start).Milliseconds()
	if err := s.sources.Update(ctx, src); err != nil {
		s.logger.Error().Err(err).Str("source_id", sourceID).Msg("failed to persist completed source")
	}

	return src, nil
}

// navigate acquires a session for cfg and drives the browser to targetURL,
// wrapping the attempt in the shared retry policy (spec.md §8 supplement).
func (s *Service) navigate(ctx context.Context, cfg *models.BrowserConfig, targetURL string) (*browser.Session, validator.Input, error) {
	userAgent := models.UserAgentStrings[cfg.UserAgent]

	sess, err := s.pool.Acquire(ctx, cfg.HeadlessMode, userAgent)
	if err != nil {
		return nil, validator.Input{HasResponse: false}, fmt.Errorf("acquire browser session: %w", err)
	}

	navCtx, cancel := context.WithTimeout(ctx, s.config.NavigateTimeout)
	defer cancel()

	var navErr error
	_, err = s.retryPolicy.ExecuteWithRetry(navCtx, s.logger, func() (int, error) {
		navErr = sess.Navigate(navCtx, targetURL)
		status, _ := sess.NavigationStatus()
		return status, navErr
	})

	status, headers := sess.NavigationStatus()

	if err != nil {
		return sess, validator.Input{HasResponse: false}, fmt.Errorf("navigate: %w", err)
	}

	body, bodyErr := sess.Content(navCtx)

	return sess, validator.Input{
		HasResponse:           true,
		HTTPStatus:            status,
		Headers:               headers,
		Body:                  body,
		BodyFetchError:        bodyErr,
		MinContentLength:      s.config.MinContentLength,
		CustomBlockPatterns:   s.config.CustomBlockPatterns,
		CustomSuccessPatterns: s.config.CustomSuccessPatterns,
	}, nil
}

func (s *Service) runBehaviors(ctx context.Context, sess *browser.Session) behaviors.Stats {
	return s.behaviors.Run(ctx, sess)
}

// emitArtifacts runs the [SCREENSHOT?] → [PDF?] → [HTML?] → [WARC?] leg of
// the state machine. Each format's failure is logged and suppressed — the
// overall capture still succeeds once NAVIGATE+VALIDATE have (spec.md §4.2
// partial-failure semantics).
func (s *Service) emitArtifacts(ctx context.Context, sess *browser.Session, src *models.WebSource, targetURL, html, outputDir string) {
	if s.config.EnableScreenshot {
		if data, err := sess.Screenshot(ctx); err != nil {
			s.logger.Warn().Err(err).Str("url", targetURL).Msg("screenshot emit failed, continuing")
		} else if path, err := writeArtifact(outputDir, "screenshot.png", data); err != nil {
			s.logger.Warn().Err(err).Msg("failed to write screenshot")
		} else {
			src.ScreenshotPath = path
		}
	}

	if s.config.EnablePDF {
		if data, err := sess.PDF(ctx); err != nil {
			s.logger.Warn().Err(err).Str("url", targetURL).Msg("pdf emit failed, continuing")
		} else if path, err := writeArtifact(outputDir, "page.pdf", data); err != nil {
			s.logger.Warn().Err(err).Msg("failed to write pdf")
		} else {
			src.PDFPath = path
			if err := validatePDF(path); err != nil {
				s.logger.Warn().Err(err).Str("path", path).Msg("captured pdf failed post-capture validation")
			}
		}
	}

	if s.config.EnableHTML {
		if path, err := writeArtifact(outputDir, "page.html", []byte(html)); err != nil {
			s.logger.Warn().Err(err).Msg("failed to write html")
		} else {
			src.HTMLPath = path
		}
	}

	if s.config.EnableMarkdown {
		if doc, err := htmlMarkdownConverter(targetURL).ConvertString(html); err != nil {
			s.logger.Warn().Err(err).Str("url", targetURL).Msg("markdown conversion failed, continuing")
		} else if path, err := writeArtifact(outputDir, "page.md", []byte(doc)); err != nil {
			s.logger.Warn().Err(err).Msg("failed to write markdown")
		} else {
			src.MarkdownPath = path
		}
	}

	if s.config.EnableWARC {
		result := s.archiver.Capture(ctx, targetURL, outputDir, html)
		switch result.Method {
		case "external_binary":
			src.ArchiveMethod = models.ArchiveExternal
			src.WARCPath = result.WARCPath
		case "minimal_internal":
			src.ArchiveMethod = models.ArchiveMinimal
			src.WARCPath = result.WARCPath
		case "html_fallback":
			src.ArchiveMethod = models.ArchiveHTMLOnly
			if src.HTMLPath == "" {
				src.HTMLPath = result.HTMLPath
			}
		default:
			s.logger.Warn().Str("url", targetURL).Msg("all WARC archival methods failed, continuing")
		}
	}
}

func (s *Service) discoverImages(ctx context.Context, html, targetURL, sourceID string) {
	images, err := s.discoverer.Discover(html, targetURL)
	if err != nil {
		s.logger.Warn().Err(err).Str("url", targetURL).Msg("image discovery failed, continuing")
		return
	}
	if len(images) == 0 {
		return
	}

	for i := range images {
		images[i].SourceID = sourceID
		if images[i].ImageID == "" {
			images[i].ImageID = common.NewID()
		}
	}

	stored := s.images.StoreAll(ctx, images, targetURL, nil)
	for i := range stored {
		if err := s.sources.AddImage(ctx, &stored[i]); err != nil {
			s.logger.Warn().Err(err).Str("image_id", stored[i].ImageID).Msg("failed to persist image record")
		}
	}
}

func (s *Service) recordOutcome(ctx context.Context, domain string, cfg *models.BrowserConfig, success bool, status int, blockedBy string) {
	var statusPtr *int
	if status != 0 {
		statusPtr = &status
	}
	if err := s.learner.RecordOutcome(ctx, domain, cfg, success, statusPtr, blockedBy); err != nil {
		s.logger.Warn().Err(err).Str("domain", domain).Msg("failed to record learner outcome")
	}
}

func (s *Service) fail(ctx context.Context, src *models.WebSource, start time.Time, err error) (*models.WebSource, error) {
	src.Status = models.SourceFailed
	src.Error = err.Error()
	src.DurationMS = time.Since(start).Milliseconds()
	if updateErr := s.sources.Update(ctx, src); updateErr != nil {
		s.logger.Error().Err(updateErr).Str("source_id", src.SourceID).Msg("failed to persist failed source")
	}
	return src, err
}

// outputDirFor computes output_root/host/<YYYYmmdd_HHMMSS>_<12hex> (spec.md
// §4.2 "Output path"), deferring directory creation to the first artifact
// write.
func (s *Service) outputDirFor(host, targetURL string) string {
	stamp := time.Now().UTC().Format("20060102_150405")
	hashPrefix := common.ContentHashPrefix(targetURL)
	return filepath.Join(s.config.OutputRoot, host, fmt.Sprintf("%s_%s", stamp, hashPrefix))
}

// htmlMarkdownConverter builds a converter that resolves relative links
// against pageURL, the same options quaero's transform.Service uses.
func htmlMarkdownConverter(pageURL string) *md.Converter {
	return md.NewConverter(pageURL, true, nil)
}

func writeArtifact(dir, name string, data []byte) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	return path, nil
}

func hostOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if u.Host == "" {
		return "", fmt.Errorf("url has no host: %s", rawURL)
	}
	return u.Hostname(), nil
}
