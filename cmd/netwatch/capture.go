package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/pflag"
	"github.com/ternarybob/netwatch/internal/behaviors"
	"github.com/ternarybob/netwatch/internal/browser"
	"github.com/ternarybob/netwatch/internal/capture"
	"github.com/ternarybob/netwatch/internal/common"
	"github.com/ternarybob/netwatch/internal/imagediscovery"
	"github.com/ternarybob/netwatch/internal/learning"
	"github.com/ternarybob/netwatch/internal/models"
	"github.com/ternarybob/netwatch/internal/progress"
	"github.com/ternarybob/netwatch/internal/ratelimit"
	"github.com/ternarybob/netwatch/internal/retry"
	"github.com/ternarybob/netwatch/internal/store"
	"github.com/ternarybob/netwatch/internal/validator"
	"github.com/ternarybob/netwatch/internal/warc"
)

func runCapture(cfg *common.Config, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: netwatch capture <url|batch>")
	}

	switch args[0] {
	case "url":
		return captureURL(cfg, args[1:])
	case "batch":
		return captureBatch(cfg, args[1:])
	default:
		return fmt.Errorf("unknown capture subcommand %q", args[0])
	}
}

func captureURL(cfg *common.Config, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: netwatch capture url <url>")
	}
	targetURL := args[0]

	db, err := store.Open(logger, store.DefaultStoreConfig(cfg.DatabasePath))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	svc, closeSvc, err := buildCaptureService(cfg, db)
	if err != nil {
		return err
	}
	defer closeSvc()

	src, err := svc.Capture(context.Background(), common.NewID(), targetURL)
	if err != nil {
		common.PrintFailure(logger, targetURL, err.Error())
		return err
	}

	if src.Status == models.SourceFailed {
		common.PrintFailure(logger, targetURL, src.Error)
		return fmt.Errorf("%s", src.Error)
	}

	common.PrintSuccess(logger, fmt.Sprintf("captured %s in %dms", targetURL, src.DurationMS))
	return nil
}

// captureBatch reads newline-delimited URLs from file and captures each in
// turn, reporting progress with a schollz/progressbar bar and colorized
// per-line outcomes (spec.md §7 "User-visible failure").
func captureBatch(cfg *common.Config, args []string) error {
	fs := pflag.NewFlagSet("capture batch", pflag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	rest := fs.Args()
	if len(rest) == 0 {
		return fmt.Errorf("usage: netwatch capture batch <file>")
	}

	urls, err := readURLFile(rest[0])
	if err != nil {
		return err
	}
	if len(urls) == 0 {
		return fmt.Errorf("no urls found in %s", rest[0])
	}

	db, err := store.Open(logger, store.DefaultStoreConfig(cfg.DatabasePath))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	svc, closeSvc, err := buildCaptureService(cfg, db)
	if err != nil {
		return err
	}
	defer closeSvc()

	state := progress.New(len(urls))
	bar := progressbar.Default(int64(len(urls)), "capturing")

	var failures int
	for _, u := range urls {
		state.SetCurrentItem(u, models.StageNavigating)
		start := time.Now()

		src, captureErr := svc.Capture(context.Background(), common.NewID(), u)
		elapsed := time.Since(start)

		if captureErr != nil || (src != nil && src.Status == models.SourceFailed) {
			failures++
			var reason string
			if captureErr != nil {
				reason = captureErr.Error()
			}
			if src != nil {
				reason = src.Error
			}
			common.PrintFailure(logger, u, reason)
			state.FailItem()
		} else {
			state.CompleteItem(elapsed, 0)
		}
		_ = bar.Add(1)
	}

	color.New(color.FgCyan).Printf("done: %d/%d succeeded\n", len(urls)-failures, len(urls))
	if failures > 0 {
		return fmt.Errorf("%d of %d captures failed", failures, len(urls))
	}
	return nil
}

func readURLFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var urls []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	return urls, scanner.Err()
}

// buildCaptureService wires every collaborator CaptureService needs from
// cfg and an already-open database handle. The returned close func tears
// down the browser pool; the caller closes the database separately.
func buildCaptureService(cfg *common.Config, db *store.DB) (*capture.Service, func(), error) {
	sourceStore := store.NewSourceStore(db)
	learningStore := store.NewLearningStore(db)

	learner := learning.NewDomainLearner(learningStore, logger, rand.New(rand.NewSource(time.Now().UnixNano())))
	v := validator.New(logger)
	behaviorsEngine := behaviors.New(behaviors.DefaultConfig(), logger)

	discoverer := imagediscovery.NewDiscoverer(logger)
	storageConfig := imagediscovery.DefaultStorageConfig()
	storageConfig.BaseDir = filepath.Join(cfg.ArchiveDir, "images")
	imageStorage, err := imagediscovery.NewStorage(storageConfig, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("init image storage: %w", err)
	}

	archiver := warc.New(warc.DefaultConfig(), logger)
	retryPolicy := retry.NewPolicy()

	rateLimiter := ratelimit.NewRateLimiter(ratelimit.Limits{
		MinDelay:           time.Duration(cfg.DefaultRateLimit.MinDelayMS) * time.Millisecond,
		MaxRequestsPerMin:  cfg.DefaultRateLimit.MaxRequestsPerMin,
		MaxRequestsPerHour: cfg.DefaultRateLimit.MaxRequestsPerHour,
	})
	for domain, limit := range cfg.DomainRateLimits {
		rateLimiter.SetDomainLimits(domain, ratelimit.Limits{
			MinDelay:           time.Duration(limit.MinDelayMS) * time.Millisecond,
			MaxRequestsPerMin:  limit.MaxRequestsPerMin,
			MaxRequestsPerHour: limit.MaxRequestsPerHour,
		})
	}

	pool := browser.NewPool(browser.DefaultPoolConfig(), logger)

	svcConfig := capture.DefaultConfig(cfg.ArchiveDir)
	svc := capture.New(svcConfig, pool, learner, v, behaviorsEngine, discoverer, imageStorage, archiver, sourceStore, retryPolicy, rateLimiter, logger)

	return svc, pool.Shutdown, nil
}

// captureJobHandler adapts Service.Capture to the queue.Handler contract,
// decoding the {"url": "..."} payload JobQueue's capture jobs carry.
func captureJobHandler(svc *capture.Service) func(ctx context.Context, job *models.Job) error {
	return func(ctx context.Context, job *models.Job) error {
		var payload struct {
			URL string `json:"url"`
		}
		if err := json.Unmarshal([]byte(job.Payload), &payload); err != nil {
			return fmt.Errorf("decode capture payload: %w", err)
		}

		src, err := svc.Capture(ctx, job.JobID, payload.URL)
		if err != nil {
			return err
		}
		if src.Status == models.SourceFailed {
			return fmt.Errorf("%s", src.Error)
		}
		return nil
	}
}
