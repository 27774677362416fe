package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/spf13/pflag"
	"github.com/ternarybob/netwatch/internal/common"
	"github.com/ternarybob/netwatch/internal/learning"
	"github.com/ternarybob/netwatch/internal/store"
	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

func runLearning(cfg *common.Config, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: netwatch learning <insights|stats>")
	}

	db, err := store.Open(logger, store.DefaultStoreConfig(cfg.DatabasePath))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	learner := learning.NewDomainLearner(store.NewLearningStore(db), logger, rand.New(rand.NewSource(time.Now().UnixNano())))

	switch args[0] {
	case "insights":
		return learningInsights(learner, args[1:])
	case "stats":
		return learningStats(learner, args[1:])
	default:
		return fmt.Errorf("unknown learning subcommand %q", args[0])
	}
}

func learningInsights(learner *learning.DomainLearner, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: netwatch learning insights <domain>")
	}
	insights, err := learner.Insights(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("insights for %s: %w", args[0], err)
	}
	fmt.Printf("domain:  %s\n", insights.Domain)
	fmt.Printf("overall: %.1f%%\n", insights.OverallSuccess*100)
	for axis, a := range insights.Axes {
		fmt.Printf("  %-14s best=%-10s success=%.1f%% (n=%d)\n", axis, a.BestOption, a.SuccessRate*100, a.Attempts)
	}
	if insights.Advisory != "" {
		fmt.Printf("advisory: %s\n", insights.Advisory)
	}
	return nil
}

// learningStats prints the fleet-wide bandit summary (spec.md §4.5 Global
// stats) and, with --chart, renders a go-chart/v2 PNG bar chart of the top
// arms. The bar heights encode rank order only, not success rates.
func learningStats(learner *learning.DomainLearner, args []string) error {
	fs := pflag.NewFlagSet("learning stats", pflag.ContinueOnError)
	chartPath := fs.String("chart", "", "render a PNG bar chart of top arms to this path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	stats, err := learner.GlobalStats(context.Background())
	if err != nil {
		return fmt.Errorf("global stats: %w", err)
	}

	fmt.Printf("distinct_domains: %d\n", stats.DistinctDomains)
	fmt.Printf("total_attempts:   %d\n", stats.TotalAttempts)
	fmt.Printf("overall_success:  %.1f%%\n", stats.OverallSuccess*100)
	fmt.Printf("top_arms:         %v\n", stats.TopArms)
	fmt.Printf("struggling:       %v\n", stats.StrugglingDomains)

	if *chartPath != "" {
		if err := renderTopArmsChart(*chartPath, stats.TopArms); err != nil {
			return fmt.Errorf("render chart: %w", err)
		}
		common.PrintSuccess(logger, fmt.Sprintf("wrote chart to %s", *chartPath))
	}
	return nil
}

func renderTopArmsChart(path string, topArms []string) error {
	if len(topArms) == 0 {
		return fmt.Errorf("no arms to chart")
	}

	bars := make([]chart.Value, len(topArms))
	for i, label := range topArms {
		bars[i] = chart.Value{
			Label: label,
			Value: float64(len(topArms) - i),
			Style: chart.Style{FillColor: drawing.ColorFromHex("2563eb")},
		}
	}

	graph := chart.BarChart{
		Title:  "Top Arms",
		Width:  900,
		Height: 400,
		Bars:   bars,
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	return graph.Render(chart.PNG, f)
}
