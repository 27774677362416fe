package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/ternarybob/netwatch/internal/common"
	"github.com/ternarybob/netwatch/internal/store"
)

func runDB(cfg *common.Config, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: netwatch db <init|info>")
	}

	switch args[0] {
	case "init":
		return dbInit(cfg)
	case "info":
		return dbInfo(cfg, args[1:])
	default:
		return fmt.Errorf("unknown db subcommand %q", args[0])
	}
}

func dbInit(cfg *common.Config) error {
	db, err := store.Open(logger, store.DefaultStoreConfig(cfg.DatabasePath))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	common.PrintSuccess(logger, fmt.Sprintf("database initialized at %s", cfg.DatabasePath))
	return nil
}

func dbInfo(cfg *common.Config, args []string) error {
	db, err := store.Open(logger, store.DefaultStoreConfig(cfg.DatabasePath))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.Ping(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	jobStore := store.NewJobStore(db)
	stats, err := jobStore.Stats(ctx)
	if err != nil {
		return fmt.Errorf("job stats: %w", err)
	}

	fmt.Printf("database:  %s\n", cfg.DatabasePath)
	fmt.Printf("jobs:      pending=%d running=%d completed=%d failed=%d cancelled=%d\n",
		stats.Pending, stats.Running, stats.Completed, stats.Failed, stats.Cancelled)

	if len(args) > 0 && args[0] == "--recount-pdf" {
		if len(args) < 2 {
			return fmt.Errorf("usage: netwatch db info --recount-pdf <path>")
		}
		count, err := recountPDFWords(args[1])
		if err != nil {
			return fmt.Errorf("recount pdf words: %w", err)
		}
		fmt.Printf("pdf word count (%s): %d\n", args[1], count)
	}
	return nil
}

// recountPDFWords reads back a previously captured page.pdf and recomputes
// its word count, complementing fpdf/pdfcpu's write path with a read path
// for word-count reconciliation against the WebSource row's stored count.
func recountPDFWords(path string) (count int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during pdf text extraction: %v", r)
		}
	}()

	f, r, openErr := pdf.Open(path)
	if openErr != nil {
		return 0, fmt.Errorf("open pdf: %w", openErr)
	}
	defer f.Close()

	var sb strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, pageErr := page.GetPlainText(nil)
		if pageErr != nil {
			continue
		}
		sb.WriteString(text)
		sb.WriteString(" ")
	}

	return len(strings.Fields(sb.String())), nil
}
