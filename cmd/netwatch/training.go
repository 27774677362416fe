package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"github.com/ternarybob/netwatch/internal/common"
	"github.com/ternarybob/netwatch/internal/learning"
	"github.com/ternarybob/netwatch/internal/models"
	"github.com/ternarybob/netwatch/internal/store"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	goldtext "github.com/yuin/goldmark/text"
)

func runTraining(cfg *common.Config, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: netwatch training <export|import|stats>")
	}

	db, err := store.Open(logger, store.DefaultStoreConfig(cfg.DatabasePath))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	svc := learning.NewTrainingService(store.NewTrainingStore(db), logger)

	switch args[0] {
	case "export":
		return trainingExport(svc, args[1:])
	case "import":
		return trainingImport(svc, args[1:])
	case "stats":
		return trainingStats(svc, args[1:])
	default:
		return fmt.Errorf("unknown training subcommand %q", args[0])
	}
}

func trainingExport(svc *learning.TrainingService, args []string) error {
	fs := pflag.NewFlagSet("training export", pflag.ContinueOnError)
	site := fs.String("site", "", "limit export to one site")
	format := fs.String("format", "json", "output format: json or md")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	var export models.TrainingExport
	var err error
	if *site != "" {
		export, err = svc.ExportForSite(ctx, *site)
	} else {
		export, err = svc.Export(ctx)
	}
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}

	switch *format {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(export)
	case "md":
		doc := renderTrainingMarkdown(export)
		fmt.Println(doc)
		// The printed document is also run through goldmark's parser; the
		// parse result is discarded and does not affect the output.
		md := goldmark.New(goldmark.WithExtensions(extension.Table))
		_ = md.Parser().Parse(goldtext.NewReader([]byte(doc)))
		return nil
	default:
		return fmt.Errorf("unknown export format %q (want json or md)", *format)
	}
}

func renderTrainingMarkdown(export models.TrainingExport) string {
	var b strings.Builder
	b.WriteString("# Training Export\n\n## Selector Patterns\n\n")
	b.WriteString("| Site | Field | Selector | Confidence | Success | Failure |\n")
	b.WriteString("|---|---|---|---|---|---|\n")
	for _, p := range export.Selectors {
		fmt.Fprintf(&b, "| %s | %s | `%s` | %.2f | %d | %d |\n",
			p.Site, p.Field, p.Selector, p.Confidence(), p.SuccessCount, p.FailureCount)
	}
	b.WriteString("\n## URL Patterns\n\n")
	b.WriteString("| Site | Type | Pattern | Confidence |\n")
	b.WriteString("|---|---|---|---|\n")
	for _, p := range export.UrlPatterns {
		fmt.Fprintf(&b, "| %s | %s | `%s` | %.2f |\n", p.Site, p.PatternType, p.Pattern, p.Confidence())
	}
	return b.String()
}

func trainingImport(svc *learning.TrainingService, args []string) error {
	fs := pflag.NewFlagSet("training import", pflag.ContinueOnError)
	merge := fs.Bool("merge", true, "merge into existing rows instead of replacing them")
	if err := fs.Parse(args); err != nil {
		return err
	}
	rest := fs.Args()
	if len(rest) == 0 {
		return fmt.Errorf("usage: netwatch training import <file> [--merge=false]")
	}

	data, err := os.ReadFile(rest[0])
	if err != nil {
		return fmt.Errorf("read %s: %w", rest[0], err)
	}

	var export models.TrainingExport
	if err := json.Unmarshal(data, &export); err != nil {
		return fmt.Errorf("decode training export: %w", err)
	}

	if err := svc.Import(context.Background(), export, *merge); err != nil {
		return fmt.Errorf("import: %w", err)
	}

	common.PrintSuccess(logger, fmt.Sprintf("imported %d selectors, %d url patterns",
		len(export.Selectors), len(export.UrlPatterns)))
	return nil
}

func trainingStats(svc *learning.TrainingService, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: netwatch training stats <site> <field>")
	}
	site, field := args[0], args[1]

	ctx := context.Background()
	best, err := svc.BestSelector(ctx, site, field, 0)
	if err != nil {
		return fmt.Errorf("best selector: %w", err)
	}
	if best == nil {
		fmt.Printf("no selectors recorded for %s/%s\n", site, field)
		return nil
	}
	fmt.Printf("best selector: %s (confidence=%.2f, success=%d, failure=%d)\n",
		best.Selector, best.Confidence(), best.SuccessCount, best.FailureCount)
	return nil
}

// fileDeadLetterIssue optionally files a GitHub issue summarizing a batch
// of dead-lettered jobs for operator triage, guarded by GITHUB_TOKEN the
// same way the teacher's github-log-connector command reads it — not wired
// into the default `queue dead-letter list` path, only called when an
// owner/repo is explicitly provided.
func fileDeadLetterIssue(ctx context.Context, owner, repo string, entries []models.DeadLetter) (string, error) {
	token := os.Getenv("GITHUB_TOKEN")
	if token == "" {
		return "", fmt.Errorf("GITHUB_TOKEN environment variable is required to file a dead-letter issue")
	}

	var body bytes.Buffer
	fmt.Fprintf(&body, "%d jobs dead-lettered:\n\n", len(entries))
	for _, e := range entries {
		fmt.Fprintf(&body, "- `%s` (%s): %s\n", e.JobID, e.JobType, e.Error)
	}

	title := "netwatch: " + strconv.Itoa(len(entries)) + " dead-lettered jobs"
	return createGitHubIssue(ctx, token, owner, repo, title, body.String())
}
