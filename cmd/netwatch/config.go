package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"github.com/ternarybob/netwatch/internal/common"
)

// loadConfigForCommand resolves --config/-c ahead of each subcommand's own
// flag parsing, since the config path decides which logger gets built
// before any subcommand flags are otherwise meaningful.
func loadConfigForCommand(args []string) (*common.Config, error) {
	fs := pflag.NewFlagSet("netwatch", pflag.ContinueOnError)
	fs.ParseErrorsWhitelist.UnknownFlags = true
	path := fs.StringP("config", "c", "", "configuration file path (YAML)")
	_ = fs.Parse(args)

	configPath := *path
	if configPath == "" {
		if _, err := os.Stat("netwatch.yaml"); err == nil {
			configPath = "netwatch.yaml"
		}
	}

	return common.LoadConfig(configPath)
}

func runConfigCmd(cfg *common.Config, args []string) error {
	if len(args) == 0 || args[0] != "show" {
		return fmt.Errorf("usage: netwatch config show")
	}
	fmt.Printf("data_dir:      %s\n", cfg.DataDir)
	fmt.Printf("archive_dir:   %s\n", cfg.ArchiveDir)
	fmt.Printf("database_path: %s\n", cfg.DatabasePath)
	fmt.Printf("headless_mode: %s\n", cfg.Browser.HeadlessMode)
	fmt.Printf("log_level:     %s\n", cfg.Logging.Level)
	fmt.Printf("log_output:    %v\n", cfg.Logging.Output)
	fmt.Printf("default_rate_limit: min_delay_ms=%d max_per_min=%d max_per_hour=%d\n",
		cfg.DefaultRateLimit.MinDelayMS, cfg.DefaultRateLimit.MaxRequestsPerMin, cfg.DefaultRateLimit.MaxRequestsPerHour)
	return nil
}
