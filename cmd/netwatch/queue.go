package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/robfig/cron/v3"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/pflag"
	"github.com/ternarybob/netwatch/internal/common"
	"github.com/ternarybob/netwatch/internal/models"
	"github.com/ternarybob/netwatch/internal/queue"
	"github.com/ternarybob/netwatch/internal/store"
)

func runQueue(cfg *common.Config, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: netwatch queue <add|status|run|dead-letter>")
	}

	switch args[0] {
	case "add":
		return queueAdd(cfg, args[1:])
	case "status":
		return queueStatus(cfg, args[1:])
	case "run":
		return queueRun(cfg, args[1:])
	case "dead-letter":
		return queueDeadLetter(cfg, args[1:])
	default:
		return fmt.Errorf("unknown queue subcommand %q", args[0])
	}
}

func openJobStore(cfg *common.Config) (*store.DB, *store.JobStore, error) {
	db, err := store.Open(logger, store.DefaultStoreConfig(cfg.DatabasePath))
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	return db, store.NewJobStore(db), nil
}

func queueAdd(cfg *common.Config, args []string) error {
	fs := pflag.NewFlagSet("queue add", pflag.ContinueOnError)
	priority := fs.Int("priority", 0, "job priority (higher runs first)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	rest := fs.Args()
	if len(rest) == 0 {
		return fmt.Errorf("usage: netwatch queue add <url> [--priority N]")
	}
	targetURL := rest[0]

	db, jobStore, err := openJobStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	payload, err := json.Marshal(map[string]string{"url": targetURL})
	if err != nil {
		return fmt.Errorf("marshal job payload: %w", err)
	}

	jobID := jobIDForURL(targetURL)
	if err := jobStore.Enqueue(context.Background(), jobID, "capture", string(payload), *priority, nil, time.Now()); err != nil {
		return fmt.Errorf("enqueue: %w", err)
	}

	common.PrintSuccess(logger, fmt.Sprintf("enqueued job %s for %s", jobID, targetURL))
	return nil
}

func queueStatus(cfg *common.Config, args []string) error {
	db, jobStore, err := openJobStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := context.Background()

	if len(args) > 0 {
		job, err := jobStore.Get(ctx, args[0])
		if err != nil {
			return fmt.Errorf("get job %s: %w", args[0], err)
		}
		printJob(job)
		return nil
	}

	stats, err := jobStore.Stats(ctx)
	if err != nil {
		return fmt.Errorf("queue stats: %w", err)
	}
	fmt.Printf("pending=%d running=%d completed=%d failed=%d cancelled=%d\n",
		stats.Pending, stats.Running, stats.Completed, stats.Failed, stats.Cancelled)
	return nil
}

func printJob(job *models.Job) {
	fmt.Printf("job_id:      %s\n", job.JobID)
	fmt.Printf("job_type:    %s\n", job.JobType)
	fmt.Printf("status:      %s\n", job.Status)
	fmt.Printf("retry_count: %d\n", job.RetryCount)
	if job.Error != "" {
		fmt.Printf("error:       %s\n", job.Error)
	}
}

// queueRun starts the worker pool in the foreground, registering the
// capture handler, until interrupted. With both --schedule and
// --schedule-url, a robfig/cron expression re-enqueues a capture job for
// that single URL on every tick; stored sources are not re-enqueued.
func queueRun(cfg *common.Config, args []string) error {
	fs := pflag.NewFlagSet("queue run", pflag.ContinueOnError)
	workers := fs.Int("workers", 0, "number of worker goroutines (0 = config default)")
	schedule := fs.String("schedule", "", "cron expression for re-enqueueing --schedule-url")
	scheduleURL := fs.String("schedule-url", "", "url to re-enqueue on each --schedule tick")
	if err := fs.Parse(args); err != nil {
		return err
	}

	db, jobStore, err := openJobStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	qConfig := queue.DefaultConfig()
	if *workers > 0 {
		qConfig.NumWorkers = *workers
	}

	svc, closeSvc, err := buildCaptureService(cfg, db)
	if err != nil {
		return err
	}
	defer closeSvc()

	jq := queue.New(jobStore, qConfig, logger)
	jq.RegisterHandler("capture", captureJobHandler(svc))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var scheduler *cron.Cron
	if *schedule != "" && *scheduleURL != "" {
		scheduler = cron.New()
		if _, err := scheduler.AddFunc(*schedule, func() {
			payload, _ := json.Marshal(map[string]string{"url": *scheduleURL})
			if err := jq.Enqueue(ctx, jobIDForURL(*scheduleURL)+"-"+strconv.FormatInt(time.Now().Unix(), 10), "capture", string(payload), 0, nil, time.Now()); err != nil {
				logger.Warn().Err(err).Msg("scheduled re-enqueue failed")
			}
		}); err != nil {
			return fmt.Errorf("invalid cron schedule %q: %w", *schedule, err)
		}
		scheduler.Start()
		defer scheduler.Stop()
	}

	jq.Start(ctx)

	color.New(color.FgCyan).Printf("queue worker running (workers=%d) - press Ctrl+C to stop\n", qConfig.NumWorkers)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("stopping job queue")
	jq.Stop()
	return nil
}

func queueDeadLetter(cfg *common.Config, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: netwatch queue dead-letter <list|retry>")
	}

	db, jobStore, err := openJobStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := context.Background()

	switch args[0] {
	case "list":
		fs := pflag.NewFlagSet("queue dead-letter list", pflag.ContinueOnError)
		toIssue := fs.String("to-issue", "", "file a summary GitHub issue at owner/repo (requires GITHUB_TOKEN)")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}

		entries, err := jobStore.DeadLetterList(ctx, 50, 0)
		if err != nil {
			return fmt.Errorf("list dead letters: %w", err)
		}
		bar := progressbar.Default(int64(len(entries)), "dead-lettered jobs")
		for _, e := range entries {
			fmt.Printf("[%d] %s %s: %s\n", e.ID, e.JobType, e.JobID, e.Error)
			_ = bar.Add(1)
		}

		if *toIssue != "" && len(entries) > 0 {
			owner, repo, ok := strings.Cut(*toIssue, "/")
			if !ok {
				return fmt.Errorf("--to-issue wants owner/repo, got %q", *toIssue)
			}
			url, err := fileDeadLetterIssue(ctx, owner, repo, entries)
			if err != nil {
				return fmt.Errorf("file dead-letter issue: %w", err)
			}
			common.PrintSuccess(logger, fmt.Sprintf("filed dead-letter issue: %s", url))
		}
		return nil
	case "retry":
		if len(args) < 2 {
			return fmt.Errorf("usage: netwatch queue dead-letter retry <id>")
		}
		id, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid dead-letter id %q: %w", args[1], err)
		}
		newJobID, err := jobStore.RetryDeadLetter(ctx, id, jobIDForURL(args[1])+"-retry")
		if err != nil {
			return fmt.Errorf("retry dead letter %d: %w", id, err)
		}
		common.PrintSuccess(logger, fmt.Sprintf("re-enqueued dead letter %d as job %s", id, newJobID))
		return nil
	default:
		return fmt.Errorf("unknown dead-letter subcommand %q", args[0])
	}
}

func jobIDForURL(url string) string {
	return "job-" + common.ContentHashPrefix(url)
}
