package common

import (
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/banner"
)

// PrintBanner displays the application startup banner.
func PrintBanner(cfg *Config, logger arbor.ILogger) {
	version := GetVersion()

	b := banner.New().
		SetStyle(banner.StyleDouble).
		SetBorderColor(banner.ColorGreen).
		SetTextColor(banner.ColorWhite).
		SetBold(true).
		SetWidth(80)

	fmt.Printf("\n")
	b.PrintTopLine()
	b.PrintCenteredText("NETWATCH")
	b.PrintCenteredText("Adaptive Web Archive & Capture Pipeline")
	b.PrintSeparatorLine()
	b.PrintKeyValue("Version", version, 15)
	b.PrintKeyValue("Data Dir", cfg.DataDir, 15)
	b.PrintKeyValue("Database", cfg.DatabasePath, 15)
	b.PrintKeyValue("Archive Dir", cfg.ArchiveDir, 15)
	b.PrintBottomLine()
	fmt.Printf("\n")

	logger.Info().
		Str("version", version).
		Str("data_dir", cfg.DataDir).
		Str("database_path", cfg.DatabasePath).
		Str("archive_dir", cfg.ArchiveDir).
		Str("headless_mode", string(cfg.Browser.HeadlessMode)).
		Msg("netwatch started")
}

// PrintShutdownBanner displays the application shutdown banner.
func PrintShutdownBanner(logger arbor.ILogger) {
	b := banner.New().
		SetStyle(banner.StyleDouble).
		SetBorderColor(banner.ColorGreen).
		SetTextColor(banner.ColorWhite).
		SetBold(true).
		SetWidth(42)

	b.PrintTopLine()
	b.PrintCenteredText("SHUTTING DOWN")
	b.PrintCenteredText("NETWATCH")
	b.PrintBottomLine()
	fmt.Println()

	logger.Info().Msg("netwatch shutting down")
}

// PrintColorizedMessage prints a message with the given color.
func PrintColorizedMessage(color, message string) {
	fmt.Printf("%s%s%s\n", color, message, banner.ColorReset)
}

// PrintSuccess prints a success message in green and logs it.
func PrintSuccess(logger arbor.ILogger, message string) {
	PrintColorizedMessage(banner.ColorGreen, fmt.Sprintf("✓ %s", message))
	logger.Info().Str("type", "success").Msg(message)
}

// PrintFailure prints a failure line in the CLI's user-visible one-line
// format (spec.md §7 "User-visible failure"): "Failed: <url> - <error>".
func PrintFailure(logger arbor.ILogger, url, reason string) {
	line := fmt.Sprintf("Failed: %s - %s", url, reason)
	PrintColorizedMessage(banner.ColorRed, fmt.Sprintf("✗ %s", line))
	logger.Error().Str("url", url).Str("reason", reason).Msg(line)
}

// PrintWarning prints a warning message in yellow and logs it.
func PrintWarning(logger arbor.ILogger, message string) {
	PrintColorizedMessage(banner.ColorYellow, fmt.Sprintf("⚠ %s", message))
	logger.Warn().Str("type", "warning").Msg(message)
}

// PrintInfo prints an info message in cyan and logs it.
func PrintInfo(logger arbor.ILogger, message string) {
	PrintColorizedMessage(banner.ColorCyan, fmt.Sprintf("ℹ %s", message))
	logger.Info().Str("type", "info").Msg(message)
}
